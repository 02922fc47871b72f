// Package access реализует правило видимости урока. Решение чистое:
// функция не пишет в хранилище и одинаково вычисляется для одиночного
// урока и для листинга.
package access

import (
	"time"

	"github.com/magabrotheeeer/course-marketplace/internal/models"
)

// Причины решения о доступе, попадают в ответ как есть.
const (
	ReasonFreeLesson      = "free lesson"
	ReasonPreviewLesson   = "preview lesson"
	ReasonEnrolled        = "enrolled"
	ReasonSubscription    = "active subscription"
	ReasonNotEntitled     = "not entitled"
	ReasonUnauthenticated = "unauthenticated"
)

// Decision — результат проверки доступа к уроку.
type Decision struct {
	Allowed bool
	Reason  string
}

// Decide возвращает решение о показе полного медиа урока.
//
// Правила в строгом порядке: бесплатный урок; превью (минимальный
// lesson_order в курсе); аноним — отказ; запись на курс; действующая
// подписка (отмена не учитывается, доступ до конца периода); иначе отказ.
// user == nil означает анонимного посетителя.
func Decide(user *models.User, enrolled bool, lesson *models.Lesson, firstLessonOrder int, now time.Time) Decision {
	if lesson.IsFree {
		return Decision{Allowed: true, Reason: ReasonFreeLesson}
	}
	if lesson.Order == firstLessonOrder {
		return Decision{Allowed: true, Reason: ReasonPreviewLesson}
	}
	if user == nil {
		return Decision{Allowed: false, Reason: ReasonUnauthenticated}
	}
	if enrolled {
		return Decision{Allowed: true, Reason: ReasonEnrolled}
	}
	if user.HasActiveSubscription(now) {
		return Decision{Allowed: true, Reason: ReasonSubscription}
	}
	return Decision{Allowed: false, Reason: ReasonNotEntitled}
}
