// Package models содержит доменные структуры маркетплейса курсов:
// пользователей, курсы, уроки, записи на курсы, платежи и прогресс просмотра.
// Структуры используются в бизнес-логике и при работе с хранилищем.
package models

import "time"

// Роли пользователей системы.
const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
	RoleInfluencer = "influencer"
)

// User представляет зарегистрированного пользователя системы.
//
// Поля подписки живут прямо на пользователе: подписка даёт доступ
// ко всем курсам до SubscriptionEndDate. Инвариант: если
// SubscriptionCancelled = true, то SubscriptionEndDate не nil —
// отмена вступает в силу только в конце оплаченного периода.
type User struct {
	UID                   string     // Уникальный идентификатор пользователя
	Email                 string     // Электронная почта
	Username              string     // Имя пользователя (уникальное)
	PasswordHash          string     // Хэш пароля (пустой для OAuth-аккаунтов)
	Role                  string     // Роль: student, instructor, admin, influencer
	SubscriptionPlan      *string    // Название тарифа подписки
	SubscriptionStartDate *time.Time // Дата начала подписки
	SubscriptionEndDate   *time.Time // Дата окончания оплаченного периода
	SubscriptionCancelled bool       // Подписка отменена (доступ до конца периода)
}

// HasActiveSubscription сообщает, действует ли подписка пользователя
// на момент now. Отмена не учитывается: доступ сохраняется до конца периода.
func (u *User) HasActiveSubscription(now time.Time) bool {
	return u.SubscriptionEndDate != nil && u.SubscriptionEndDate.After(now)
}

// Identity — результат разрешения учётных данных запроса.
// Роль всегда читается из хранилища, а не из токена.
type Identity struct {
	UserUID  string
	Username string
	Email    string
	Role     string
}
