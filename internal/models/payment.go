package models

import "time"

// Статусы платежа. Платёж переходит из PENDING в COMPLETED или FAILED
// ровно один раз, терминальные статусы неизменны.
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
)

// Payment фиксирует одну попытку покупки. ExternalReference — глобально
// уникальный ключ корреляции между локальным состоянием и событиями
// платёжного провайдера; по нему выполняются все идемпотентные переходы.
type Payment struct {
	ID                int
	UserUID           string
	CourseID          *int // nil для платежа за подписку
	Amount            int
	Currency          string
	Status            string
	ExternalReference string
	Metadata          map[string]string // Доп. данные: plan, months для подписочных платежей
	CreatedAt         time.Time
}

// DummyPurchase используется для приёма данных из JSON-запроса на покупку курсов.
// CorrelationID задаёт клиент, он входит в external_reference каждого платежа.
type DummyPurchase struct {
	CorrelationID string `json:"correlation_id" validate:"required,uuid"` // Идентификатор корреляции от клиента
	CourseIDs     []int  `json:"course_ids" validate:"required,min=1"`    // Курсы в корзине
}

// DummyComplete используется для приёма подтверждения оплаты от клиента.
type DummyComplete struct {
	CorrelationID string `json:"correlation_id" validate:"required,uuid"`
}

// DummySubscriptionCheckout используется для приёма запроса на оформление подписки.
type DummySubscriptionCheckout struct {
	CorrelationID string `json:"correlation_id" validate:"required,uuid"`
	Plan          string `json:"plan" validate:"required"`               // Название тарифа
	Months        int    `json:"months" validate:"required,gt=0,lte=12"` // Длительность в месяцах
	Price         int    `json:"price" validate:"required,gt=0"`
}

// DummyProgress используется для приёма обновления прогресса просмотра урока.
type DummyProgress struct {
	LessonID    int  `json:"lesson_id" validate:"required"`
	TimeWatched int  `json:"time_watched" validate:"gte=0"`
	IsCompleted bool `json:"is_completed"`
}
