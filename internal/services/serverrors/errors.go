// Package serverrors содержит сентинельные ошибки бизнес-уровня.
// Обработчики сопоставляют их с HTTP-статусами через errors.Is.
package serverrors

import "errors"

var (
	// ErrUnauthenticated — учётные данные отсутствуют или невалидны.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden — пользователь аутентифицирован, но не имеет права.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound — сущность не найдена.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyEnrolled — покупка курса, на который уже есть запись.
	ErrAlreadyEnrolled = errors.New("already enrolled")
	// ErrCourseUnpublished — курс не опубликован и недоступен для покупки.
	ErrCourseUnpublished = errors.New("course is not published")
	// ErrInvalidSignature — подпись вебхука не прошла проверку,
	// состояние не изменено и повтор не планируется.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrNoActiveSubscription — отменять нечего: нет подписки с датой окончания.
	ErrNoActiveSubscription = errors.New("no active subscription")
)
