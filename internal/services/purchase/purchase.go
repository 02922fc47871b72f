// Package purchase реализует реконсиляцию платежей: превращает запросы на
// оплату и асинхронные, возможно дублирующиеся события провайдера в
// устойчивое состояние записей на курсы и подписок.
//
// Все переходы идемпотентны и ключуются по external_reference платежа:
// смена статуса — compare-and-set в хранилище, создание записи на курс
// опирается на уникальную пару (user_uid, course_id). Повтор того же
// события не создаёт вторую запись и не выводит платёж из терминального
// статуса.
package purchase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/magabrotheeeer/course-marketplace/internal/lib/sl"
	"github.com/magabrotheeeer/course-marketplace/internal/metrics"
	"github.com/magabrotheeeer/course-marketplace/internal/models"
	"github.com/magabrotheeeer/course-marketplace/internal/paymentprovider"
	"github.com/magabrotheeeer/course-marketplace/internal/services/serverrors"
)

// Repository определяет методы хранилища, нужные реконсиляции.
type Repository interface {
	GetCourse(ctx context.Context, id int) (*models.Course, error)
	GetEnrollment(ctx context.Context, userUID string, courseID int) (*models.Enrollment, error)
	CreateEnrollment(ctx context.Context, userUID string, courseID int) (*models.Enrollment, error)
	CreatePayment(ctx context.Context, p models.Payment) (int, error)
	ListPaymentsByCorrelation(ctx context.Context, correlationID string) ([]*models.Payment, error)
	CompletePaymentByReference(ctx context.Context, externalReference string) (int, error)
	FailPaymentByReference(ctx context.Context, externalReference string) (int, error)
	ActivateSubscription(ctx context.Context, userUID, plan string, startDate, endDate time.Time) error
	CancelSubscription(ctx context.Context, userUID string) (int, error)
}

// ProviderClient создаёт платёж на стороне платёжного провайдера.
type ProviderClient interface {
	CreatePayment(req paymentprovider.CreatePaymentRequest) (*paymentprovider.CreatePaymentResponse, error)
}

// Event — событие платёжного провайдера после проверки подписи.
// Metadata.correlation_id связывает событие с локальными платежами.
type Event struct {
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Amount struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		} `json:"amount"`
		Metadata map[string]string `json:"metadata"`
	} `json:"object"`
}

// Известные типы событий провайдера. Остальные подтверждаются и игнорируются.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentCanceled  = "payment.canceled"
)

// Service реализует бизнес-логику покупок и подписок.
type Service struct {
	repo     Repository
	provider ProviderClient
	log      *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, provider ProviderClient, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		log:      log,
	}
}

// subReferenceSuffix — суффикс external_reference подписочного платежа.
const subReferenceSuffix = "sub"

// BeginPurchase создаёт по одному платежу PENDING на каждый курс корзины.
// Отклоняет неопубликованные курсы и курсы, на которые пользователь уже
// записан. external_reference = correlationID + ":" + courseID — стабилен
// и глобально уникален для каждой позиции.
func (s *Service) BeginPurchase(ctx context.Context, userUID, correlationID string, courseIDs []int) ([]*models.Payment, error) {
	const op = "purchase.BeginPurchase"

	// вся корзина проверяется до создания первого платежа: отклонённая
	// позиция не оставляет после себя частично созданных PENDING-платежей
	courses := make([]*models.Course, 0, len(courseIDs))
	for _, courseID := range courseIDs {
		course, err := s.repo.GetCourse(ctx, courseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, fmt.Errorf("%s: %w", op, serverrors.ErrNotFound)
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if !course.IsPublished {
			return nil, serverrors.ErrCourseUnpublished
		}
		enrollment, err := s.repo.GetEnrollment(ctx, userUID, courseID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if enrollment != nil {
			return nil, serverrors.ErrAlreadyEnrolled
		}
		courses = append(courses, course)
	}

	var payments []*models.Payment
	for i, courseID := range courseIDs {
		course := courses[i]

		p := models.Payment{
			UserUID:           userUID,
			CourseID:          &courseID,
			Amount:            course.Price,
			Currency:          course.Currency,
			Status:            models.PaymentStatusPending,
			ExternalReference: fmt.Sprintf("%s:%d", correlationID, courseID),
		}
		id, err := s.repo.CreatePayment(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		p.ID = id
		payments = append(payments, &p)

		if err := s.createProviderPayment(&p, correlationID); err != nil {
			s.log.Error("failed to create provider payment", sl.Err(err),
				slog.String("external_reference", p.ExternalReference))
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	s.log.Info("purchase started", slog.String("correlation_id", correlationID),
		slog.Int("payments", len(payments)))
	return payments, nil
}

// BeginSubscription создаёт платёж PENDING за подписку. План и длительность
// кладутся в метаданные платежа и применяются при завершении.
func (s *Service) BeginSubscription(ctx context.Context, userUID, correlationID, plan string, months, price int) (*models.Payment, error) {
	const op = "purchase.BeginSubscription"

	p := models.Payment{
		UserUID:           userUID,
		Amount:            price,
		Currency:          "RUB",
		Status:            models.PaymentStatusPending,
		ExternalReference: fmt.Sprintf("%s:%s", correlationID, subReferenceSuffix),
		Metadata: map[string]string{
			"plan":   plan,
			"months": strconv.Itoa(months),
		},
	}
	id, err := s.repo.CreatePayment(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p.ID = id

	if err := s.createProviderPayment(&p, correlationID); err != nil {
		s.log.Error("failed to create provider payment", sl.Err(err),
			slog.String("external_reference", p.ExternalReference))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &p, nil
}

// createProviderPayment создаёт платёж у провайдера. correlation_id входит
// в метаданные: провайдер возвращает их как есть в object.metadata вебхука,
// и HandleProviderEvent находит по нему локальные платежи.
func (s *Service) createProviderPayment(p *models.Payment, correlationID string) error {
	req := paymentprovider.CreatePaymentRequest{
		Metadata: map[string]string{
			"correlation_id":     correlationID,
			"external_reference": p.ExternalReference,
			"user_uid":           p.UserUID,
		},
	}
	req.Amount.Value = fmt.Sprintf("%d.00", p.Amount)
	req.Amount.Currency = p.Currency
	_, err := s.provider.CreatePayment(req)
	return err
}

// CompletePurchase — клиентское подтверждение оплаты. Сходится в тот же
// идемпотентный путь, что и вебхук провайдера; повторный вызов с тем же
// correlationID возвращает те же записи без ошибки.
func (s *Service) CompletePurchase(ctx context.Context, userUID, correlationID string) ([]*models.Enrollment, error) {
	const op = "purchase.CompletePurchase"

	payments, err := s.repo.ListPaymentsByCorrelation(ctx, correlationID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(payments) == 0 {
		return nil, serverrors.ErrNotFound
	}
	for _, p := range payments {
		if p.UserUID != userUID {
			return nil, serverrors.ErrForbidden
		}
	}
	return s.settle(ctx, payments)
}

// HandleProviderEvent обрабатывает событие провайдера с уже проверенной
// подписью. Неизвестные типы событий подтверждаются без изменений состояния.
func (s *Service) HandleProviderEvent(ctx context.Context, event *Event) error {
	const op = "purchase.HandleProviderEvent"

	correlationID := event.Object.Metadata["correlation_id"]
	if correlationID == "" {
		s.log.Info("provider event without correlation id, ignored",
			slog.String("event", event.Event))
		return nil
	}

	payments, err := s.repo.ListPaymentsByCorrelation(ctx, correlationID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if len(payments) == 0 {
		s.log.Info("provider event for unknown correlation id, ignored",
			slog.String("correlation_id", correlationID))
		return nil
	}

	switch event.Event {
	case EventPaymentSucceeded:
		_, err := s.settle(ctx, payments)
		return err
	case EventPaymentCanceled:
		for _, p := range payments {
			if _, err := s.repo.FailPaymentByReference(ctx, p.ExternalReference); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
		return nil
	default:
		s.log.Info("ignored provider event", slog.String("event", event.Event))
		return nil
	}
}

// settle завершает платежи и создаёт вытекающие из них права доступа.
// Каждый платёж проходит compare-and-set PENDING -> COMPLETED; нулевой
// результат означает, что другой вызов успел раньше — это не ошибка,
// существующие записи просто возвращаются.
func (s *Service) settle(ctx context.Context, payments []*models.Payment) ([]*models.Enrollment, error) {
	const op = "purchase.settle"

	var enrollments []*models.Enrollment
	for _, p := range payments {
		completed, err := s.repo.CompletePaymentByReference(ctx, p.ExternalReference)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if completed > 0 {
			metrics.PaymentsCompleted.Inc()
		}
		if completed == 0 && p.Status == models.PaymentStatusFailed {
			// терминально неуспешный платёж прав не даёт
			continue
		}

		if p.CourseID != nil {
			enrollment, err := s.repo.CreateEnrollment(ctx, p.UserUID, *p.CourseID)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			if enrollment != nil {
				enrollments = append(enrollments, enrollment)
				if completed > 0 {
					metrics.EnrollmentsCreated.Inc()
				}
			}
			continue
		}

		if plan := p.Metadata["plan"]; plan != "" {
			months, err := strconv.Atoi(p.Metadata["months"])
			if err != nil || months <= 0 {
				months = 1
			}
			// даты детерминированы платежом: активация повторяется при
			// каждой доставке события, не продлевая оплаченный период
			startDate := p.CreatedAt
			endDate := startDate.AddDate(0, months, 0)
			if err := s.repo.ActivateSubscription(ctx, p.UserUID, plan, startDate, endDate); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			s.log.Info("subscription activated", slog.String("user_uid", p.UserUID),
				slog.String("plan", plan), slog.Time("end_date", endDate))
		}
	}
	return enrollments, nil
}

// CancelSubscription помечает подписку пользователя отменённой.
// Доступ сохраняется до конца оплаченного периода, поля чистит sweep.
func (s *Service) CancelSubscription(ctx context.Context, userUID string) error {
	const op = "purchase.CancelSubscription"
	rows, err := s.repo.CancelSubscription(ctx, userUID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rows == 0 {
		return serverrors.ErrNoActiveSubscription
	}
	s.log.Info("subscription cancelled", slog.String("user_uid", userUID))
	return nil
}
