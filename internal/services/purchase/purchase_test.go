package purchase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/course-marketplace/internal/models"
	"github.com/magabrotheeeer/course-marketplace/internal/paymentprovider"
	"github.com/magabrotheeeer/course-marketplace/internal/services/serverrors"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetCourse(ctx context.Context, id int) (*models.Course, error) {
	args := m.Called(ctx, id)
	if res := args.Get(0); res != nil {
		return res.(*models.Course), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) GetEnrollment(ctx context.Context, userUID string, courseID int) (*models.Enrollment, error) {
	args := m.Called(ctx, userUID, courseID)
	if res := args.Get(0); res != nil {
		return res.(*models.Enrollment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) CreateEnrollment(ctx context.Context, userUID string, courseID int) (*models.Enrollment, error) {
	args := m.Called(ctx, userUID, courseID)
	if res := args.Get(0); res != nil {
		return res.(*models.Enrollment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) CreatePayment(ctx context.Context, p models.Payment) (int, error) {
	args := m.Called(ctx, p)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) ListPaymentsByCorrelation(ctx context.Context, correlationID string) ([]*models.Payment, error) {
	args := m.Called(ctx, correlationID)
	if res := args.Get(0); res != nil {
		return res.([]*models.Payment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) CompletePaymentByReference(ctx context.Context, externalReference string) (int, error) {
	args := m.Called(ctx, externalReference)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) FailPaymentByReference(ctx context.Context, externalReference string) (int, error) {
	args := m.Called(ctx, externalReference)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) ActivateSubscription(ctx context.Context, userUID, plan string, startDate, endDate time.Time) error {
	args := m.Called(ctx, userUID, plan, startDate, endDate)
	return args.Error(0)
}

func (m *MockRepository) CancelSubscription(ctx context.Context, userUID string) (int, error) {
	args := m.Called(ctx, userUID)
	return args.Int(0), args.Error(1)
}

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) CreatePayment(req paymentprovider.CreatePaymentRequest) (*paymentprovider.CreatePaymentResponse, error) {
	args := m.Called(req)
	if res := args.Get(0); res != nil {
		return res.(*paymentprovider.CreatePaymentResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

const correlationID = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"

func TestService_BeginPurchase(t *testing.T) {
	publishedCourse := &models.Course{ID: 7, Price: 4900, Currency: "RUB", IsPublished: true}

	tests := []struct {
		name          string
		courseIDs     []int
		setupMocks    func(*MockRepository, *MockProvider)
		expectedCount int
		expectedError error
	}{
		{
			name:      "успешная покупка одного курса",
			courseIDs: []int{7},
			setupMocks: func(r *MockRepository, p *MockProvider) {
				r.On("GetCourse", mock.Anything, 7).Return(publishedCourse, nil).Once()
				r.On("GetEnrollment", mock.Anything, "user123", 7).Return(nil, nil).Once()
				r.On("CreatePayment", mock.Anything, mock.MatchedBy(func(pay models.Payment) bool {
					return pay.ExternalReference == correlationID+":7" &&
						pay.Status == models.PaymentStatusPending &&
						pay.Amount == 4900
				})).Return(101, nil).Once()
				p.On("CreatePayment", mock.Anything).Return(&paymentprovider.CreatePaymentResponse{ID: "prov-1"}, nil).Once()
			},
			expectedCount: 1,
		},
		{
			name:      "неопубликованный курс отклоняется",
			courseIDs: []int{8},
			setupMocks: func(r *MockRepository, _ *MockProvider) {
				r.On("GetCourse", mock.Anything, 8).
					Return(&models.Course{ID: 8, IsPublished: false}, nil).Once()
			},
			expectedError: serverrors.ErrCourseUnpublished,
		},
		{
			name:      "повторная покупка того же курса отклоняется",
			courseIDs: []int{7},
			setupMocks: func(r *MockRepository, _ *MockProvider) {
				r.On("GetCourse", mock.Anything, 7).Return(publishedCourse, nil).Once()
				r.On("GetEnrollment", mock.Anything, "user123", 7).
					Return(&models.Enrollment{ID: 1, UserUID: "user123", CourseID: 7}, nil).Once()
			},
			expectedError: serverrors.ErrAlreadyEnrolled,
		},
		{
			name:      "course not found",
			courseIDs: []int{99},
			setupMocks: func(r *MockRepository, _ *MockProvider) {
				r.On("GetCourse", mock.Anything, 99).
					Return(nil, fmt.Errorf("storage.GetCourse: %w", sql.ErrNoRows)).Once()
			},
			expectedError: serverrors.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			provider := new(MockProvider)
			service := New(repo, provider, newNoopLogger())

			tt.setupMocks(repo, provider)

			payments, err := service.BeginPurchase(context.Background(), "user123", correlationID, tt.courseIDs)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, payments)
			} else {
				assert.NoError(t, err)
				assert.Len(t, payments, tt.expectedCount)
			}

			repo.AssertExpectations(t)
			provider.AssertExpectations(t)
		})
	}
}

func TestService_BeginPurchase_StorageError(t *testing.T) {
	repo := new(MockRepository)
	service := New(repo, new(MockProvider), newNoopLogger())

	// временный сбой хранилища не превращается в "курс не найден"
	repo.On("GetCourse", mock.Anything, 7).
		Return(nil, errors.New("connection refused")).Once()

	payments, err := service.BeginPurchase(context.Background(), "user123", correlationID, []int{7})

	assert.Error(t, err)
	assert.NotErrorIs(t, err, serverrors.ErrNotFound)
	assert.Nil(t, payments)
	repo.AssertExpectations(t)
}

func TestService_BeginPurchase_RejectedCartCreatesNothing(t *testing.T) {
	repo := new(MockRepository)
	provider := new(MockProvider)
	service := New(repo, provider, newNoopLogger())

	// первая позиция валидна, вторая не опубликована: ни одного платежа
	// не создаётся ни локально, ни у провайдера
	repo.On("GetCourse", mock.Anything, 3).
		Return(&models.Course{ID: 3, Price: 1000, Currency: "RUB", IsPublished: true}, nil).Once()
	repo.On("GetEnrollment", mock.Anything, "user123", 3).Return(nil, nil).Once()
	repo.On("GetCourse", mock.Anything, 4).
		Return(&models.Course{ID: 4, IsPublished: false}, nil).Once()

	payments, err := service.BeginPurchase(context.Background(), "user123", correlationID, []int{3, 4})

	assert.ErrorIs(t, err, serverrors.ErrCourseUnpublished)
	assert.Nil(t, payments)
	repo.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
	provider.AssertNotCalled(t, "CreatePayment", mock.Anything)
	repo.AssertExpectations(t)
}

func TestService_BeginPurchase_Cart(t *testing.T) {
	repo := new(MockRepository)
	provider := new(MockProvider)
	service := New(repo, provider, newNoopLogger())

	for _, id := range []int{3, 4} {
		repo.On("GetCourse", mock.Anything, id).
			Return(&models.Course{ID: id, Price: 1000, Currency: "RUB", IsPublished: true}, nil).Once()
		repo.On("GetEnrollment", mock.Anything, "user123", id).Return(nil, nil).Once()
	}
	repo.On("CreatePayment", mock.Anything, mock.Anything).Return(1, nil).Twice()
	provider.On("CreatePayment", mock.Anything).Return(&paymentprovider.CreatePaymentResponse{ID: "prov"}, nil).Twice()

	payments, err := service.BeginPurchase(context.Background(), "user123", correlationID, []int{3, 4})

	assert.NoError(t, err)
	assert.Len(t, payments, 2)
	// по одному платежу на позицию корзины, каждый со своим референсом
	assert.Equal(t, correlationID+":3", payments[0].ExternalReference)
	assert.Equal(t, correlationID+":4", payments[1].ExternalReference)
	repo.AssertExpectations(t)
	provider.AssertExpectations(t)
}

func TestService_CompletePurchase(t *testing.T) {
	courseID := 7
	pending := func() []*models.Payment {
		return []*models.Payment{{
			ID:                101,
			UserUID:           "user123",
			CourseID:          &courseID,
			Status:            models.PaymentStatusPending,
			ExternalReference: correlationID + ":7",
		}}
	}
	enrollment := &models.Enrollment{ID: 55, UserUID: "user123", CourseID: 7}

	tests := []struct {
		name          string
		userUID       string
		setupMocks    func(*MockRepository)
		expectedError error
		expectedCount int
	}{
		{
			name:    "первое подтверждение создаёт запись",
			userUID: "user123",
			setupMocks: func(r *MockRepository) {
				r.On("ListPaymentsByCorrelation", mock.Anything, correlationID).Return(pending(), nil).Once()
				r.On("CompletePaymentByReference", mock.Anything, correlationID+":7").Return(1, nil).Once()
				r.On("CreateEnrollment", mock.Anything, "user123", 7).Return(enrollment, nil).Once()
			},
			expectedCount: 1,
		},
		{
			name:    "повторное подтверждение возвращает ту же запись без ошибки",
			userUID: "user123",
			setupMocks: func(r *MockRepository) {
				completed := pending()
				completed[0].Status = models.PaymentStatusCompleted
				r.On("ListPaymentsByCorrelation", mock.Anything, correlationID).Return(completed, nil).Once()
				// CAS проигран: платёж уже COMPLETED
				r.On("CompletePaymentByReference", mock.Anything, correlationID+":7").Return(0, nil).Once()
				r.On("CreateEnrollment", mock.Anything, "user123", 7).Return(enrollment, nil).Once()
			},
			expectedCount: 1,
		},
		{
			name:    "чужая корреляция запрещена",
			userUID: "intruder",
			setupMocks: func(r *MockRepository) {
				r.On("ListPaymentsByCorrelation", mock.Anything, correlationID).Return(pending(), nil).Once()
			},
			expectedError: serverrors.ErrForbidden,
		},
		{
			name:    "неизвестная корреляция",
			userUID: "user123",
			setupMocks: func(r *MockRepository) {
				r.On("ListPaymentsByCorrelation", mock.Anything, correlationID).Return([]*models.Payment{}, nil).Once()
			},
			expectedError: serverrors.ErrNotFound,
		},
		{
			name:    "терминально неуспешный платёж прав не даёт",
			userUID: "user123",
			setupMocks: func(r *MockRepository) {
				failed := pending()
				failed[0].Status = models.PaymentStatusFailed
				r.On("ListPaymentsByCorrelation", mock.Anything, correlationID).Return(failed, nil).Once()
				r.On("CompletePaymentByReference", mock.Anything, correlationID+":7").Return(0, nil).Once()
			},
			expectedCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			service := New(repo, new(MockProvider), newNoopLogger())

			tt.setupMocks(repo)

			enrollments, err := service.CompletePurchase(context.Background(), tt.userUID, correlationID)

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
			} else {
				assert.NoError(t, err)
				assert.Len(t, enrollments, tt.expectedCount)
			}

			repo.AssertExpectations(t)
		})
	}
}

func TestService_HandleProviderEvent(t *testing.T) {
	courseID := 7
	pending := func() []*models.Payment {
		return []*models.Payment{{
			ID:                101,
			UserUID:           "user123",
			CourseID:          &courseID,
			Status:            models.PaymentStatusPending,
			ExternalReference: correlationID + ":7",
		}}
	}

	eventWith := func(eventType string) *Event {
		e := &Event{Event: eventType}
		e.Object.ID = "prov-1"
		e.Object.Metadata = map[string]string{"correlation_id": correlationID}
		return e
	}

	tests := []struct {
		name          string
		event         *Event
		setupMocks    func(*MockRepository)
		expectedError bool
	}{
		{
			name:  "успешная оплата создаёт запись",
			event: eventWith(EventPaymentSucceeded),
			setupMocks: func(r *MockRepository) {
				r.On("ListPaymentsByCorrelation", mock.Anything, correlationID).Return(pending(), nil).Once()
				r.On("CompletePaymentByReference", mock.Anything, correlationID+":7").Return(1, nil).Once()
				r.On("CreateEnrollment", mock.Anything, "user123", 7).
					Return(&models.Enrollment{ID: 55, UserUID: "user123", CourseID: 7}, nil).Once()
			},
		},
		{
			name:  "отмена платежа переводит его в FAILED",
			event: eventWith(EventPaymentCanceled),
			setupMocks: func(r *MockRepository) {
				r.On("ListPaymentsByCorrelation", mock.Anything, correlationID).Return(pending(), nil).Once()
				r.On("FailPaymentByReference", mock.Anything, correlationID+":7").Return(1, nil).Once()
			},
		},
		{
			name:  "неизвестный тип события подтверждается без изменений",
			event: eventWith("refund.succeeded"),
			setupMocks: func(r *MockRepository) {
				r.On("ListPaymentsByCorrelation", mock.Anything, correlationID).Return(pending(), nil).Once()
			},
		},
		{
			name:       "событие без correlation_id игнорируется",
			event:      &Event{Event: EventPaymentSucceeded},
			setupMocks: func(_ *MockRepository) {},
		},
		{
			name:  "событие для неизвестной корреляции игнорируется",
			event: eventWith(EventPaymentSucceeded),
			setupMocks: func(r *MockRepository) {
				r.On("ListPaymentsByCorrelation", mock.Anything, correlationID).Return([]*models.Payment{}, nil).Once()
			},
		},
		{
			name:  "storage error",
			event: eventWith(EventPaymentSucceeded),
			setupMocks: func(r *MockRepository) {
				r.On("ListPaymentsByCorrelation", mock.Anything, correlationID).Return(nil, errors.New("db error")).Once()
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			service := New(repo, new(MockProvider), newNoopLogger())

			tt.setupMocks(repo)

			err := service.HandleProviderEvent(context.Background(), tt.event)

			if tt.expectedError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			repo.AssertExpectations(t)
		})
	}
}

func TestService_HandleProviderEvent_DuplicateDelivery(t *testing.T) {
	courseID := 7
	repo := new(MockRepository)
	service := New(repo, new(MockProvider), newNoopLogger())

	payment := &models.Payment{
		ID:                101,
		UserUID:           "user123",
		CourseID:          &courseID,
		Status:            models.PaymentStatusPending,
		ExternalReference: correlationID + ":7",
	}
	enrollment := &models.Enrollment{ID: 55, UserUID: "user123", CourseID: 7}

	repo.On("ListPaymentsByCorrelation", mock.Anything, correlationID).
		Return([]*models.Payment{payment}, nil).Twice()
	// первая доставка выигрывает CAS, вторая — нет
	repo.On("CompletePaymentByReference", mock.Anything, correlationID+":7").Return(1, nil).Once()
	repo.On("CompletePaymentByReference", mock.Anything, correlationID+":7").Return(0, nil).Once()
	// ON CONFLICT DO NOTHING в хранилище возвращает существующую запись
	repo.On("CreateEnrollment", mock.Anything, "user123", 7).Return(enrollment, nil).Twice()

	event := &Event{Event: EventPaymentSucceeded}
	event.Object.Metadata = map[string]string{"correlation_id": correlationID}

	assert.NoError(t, service.HandleProviderEvent(context.Background(), event))
	assert.NoError(t, service.HandleProviderEvent(context.Background(), event))
	repo.AssertExpectations(t)
}

func TestService_BeginSubscription(t *testing.T) {
	repo := new(MockRepository)
	provider := new(MockProvider)
	service := New(repo, provider, newNoopLogger())

	repo.On("CreatePayment", mock.Anything, mock.MatchedBy(func(p models.Payment) bool {
		return p.ExternalReference == correlationID+":sub" &&
			p.CourseID == nil &&
			p.Metadata["plan"] == "premium" &&
			p.Metadata["months"] == "3"
	})).Return(102, nil).Once()
	provider.On("CreatePayment", mock.Anything).Return(&paymentprovider.CreatePaymentResponse{ID: "prov-2"}, nil).Once()

	payment, err := service.BeginSubscription(context.Background(), "user123", correlationID, "premium", 3, 2990)

	assert.NoError(t, err)
	assert.Equal(t, 102, payment.ID)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	repo.AssertExpectations(t)
	provider.AssertExpectations(t)
}

func TestService_HandleProviderEvent_SubscriptionActivation(t *testing.T) {
	repo := new(MockRepository)
	service := New(repo, new(MockProvider), newNoopLogger())

	payment := &models.Payment{
		ID:                102,
		UserUID:           "user123",
		Status:            models.PaymentStatusPending,
		ExternalReference: correlationID + ":sub",
		Metadata:          map[string]string{"plan": "premium", "months": "3"},
	}
	repo.On("ListPaymentsByCorrelation", mock.Anything, correlationID).
		Return([]*models.Payment{payment}, nil).Once()
	repo.On("CompletePaymentByReference", mock.Anything, correlationID+":sub").Return(1, nil).Once()
	repo.On("ActivateSubscription", mock.Anything, "user123", "premium",
		mock.AnythingOfType("time.Time"), mock.AnythingOfType("time.Time")).Return(nil).Once()

	event := &Event{Event: EventPaymentSucceeded}
	event.Object.Metadata = map[string]string{"correlation_id": correlationID}

	err := service.HandleProviderEvent(context.Background(), event)

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

// Сквозная проверка метаданных: событие провайдера несёт ровно те
// метаданные, что сервис сам отправил при создании платежа, и по ним
// платёж находится и завершается.
func TestService_ProviderEventRoundTrip(t *testing.T) {
	courseID := 7
	repo := new(MockRepository)
	provider := new(MockProvider)
	service := New(repo, provider, newNoopLogger())

	repo.On("GetCourse", mock.Anything, 7).
		Return(&models.Course{ID: 7, Price: 4900, Currency: "RUB", IsPublished: true}, nil).Once()
	repo.On("GetEnrollment", mock.Anything, "user123", 7).Return(nil, nil).Once()
	repo.On("CreatePayment", mock.Anything, mock.Anything).Return(101, nil).Once()

	var sentMetadata map[string]string
	provider.On("CreatePayment", mock.Anything).
		Run(func(args mock.Arguments) {
			sentMetadata = args.Get(0).(paymentprovider.CreatePaymentRequest).Metadata
		}).
		Return(&paymentprovider.CreatePaymentResponse{ID: "prov-1"}, nil).Once()

	_, err := service.BeginPurchase(context.Background(), "user123", correlationID, []int{7})
	assert.NoError(t, err)
	assert.Equal(t, correlationID, sentMetadata["correlation_id"])

	pending := []*models.Payment{{
		ID:                101,
		UserUID:           "user123",
		CourseID:          &courseID,
		Status:            models.PaymentStatusPending,
		ExternalReference: correlationID + ":7",
	}}
	repo.On("ListPaymentsByCorrelation", mock.Anything, correlationID).Return(pending, nil).Once()
	repo.On("CompletePaymentByReference", mock.Anything, correlationID+":7").Return(1, nil).Once()
	repo.On("CreateEnrollment", mock.Anything, "user123", 7).
		Return(&models.Enrollment{ID: 55, UserUID: "user123", CourseID: 7}, nil).Once()

	event := &Event{Event: EventPaymentSucceeded}
	event.Object.ID = "prov-1"
	event.Object.Metadata = sentMetadata

	assert.NoError(t, service.HandleProviderEvent(context.Background(), event))
	repo.AssertExpectations(t)
	provider.AssertExpectations(t)
}

// Сбой активации после выигранного CAS не теряет подписку: повторная
// доставка события активирует её, даты детерминированы платежом.
func TestService_ActivationRetriedAfterFailure(t *testing.T) {
	createdAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	wantEnd := createdAt.AddDate(0, 3, 0)

	subPayment := func(status string) []*models.Payment {
		return []*models.Payment{{
			ID:                102,
			UserUID:           "user123",
			Status:            status,
			ExternalReference: correlationID + ":sub",
			Metadata:          map[string]string{"plan": "premium", "months": "3"},
			CreatedAt:         createdAt,
		}}
	}

	repo := new(MockRepository)
	service := New(repo, new(MockProvider), newNoopLogger())

	// первая доставка: CAS выигран, активация падает
	repo.On("ListPaymentsByCorrelation", mock.Anything, correlationID).
		Return(subPayment(models.PaymentStatusPending), nil).Once()
	repo.On("CompletePaymentByReference", mock.Anything, correlationID+":sub").Return(1, nil).Once()
	repo.On("ActivateSubscription", mock.Anything, "user123", "premium", createdAt, wantEnd).
		Return(errors.New("connection refused")).Once()

	event := &Event{Event: EventPaymentSucceeded}
	event.Object.Metadata = map[string]string{"correlation_id": correlationID}

	assert.Error(t, service.HandleProviderEvent(context.Background(), event))

	// повторная доставка: CAS уже проигран, активация выполняется
	repo.On("ListPaymentsByCorrelation", mock.Anything, correlationID).
		Return(subPayment(models.PaymentStatusCompleted), nil).Once()
	repo.On("CompletePaymentByReference", mock.Anything, correlationID+":sub").Return(0, nil).Once()
	repo.On("ActivateSubscription", mock.Anything, "user123", "premium", createdAt, wantEnd).
		Return(nil).Once()

	assert.NoError(t, service.HandleProviderEvent(context.Background(), event))
	repo.AssertExpectations(t)
}

func TestService_CancelSubscription(t *testing.T) {
	tests := []struct {
		name          string
		setupMocks    func(*MockRepository)
		expectedError error
	}{
		{
			name: "успешная отмена",
			setupMocks: func(r *MockRepository) {
				r.On("CancelSubscription", mock.Anything, "user123").Return(1, nil).Once()
			},
		},
		{
			name: "нет активной подписки",
			setupMocks: func(r *MockRepository) {
				r.On("CancelSubscription", mock.Anything, "user123").Return(0, nil).Once()
			},
			expectedError: serverrors.ErrNoActiveSubscription,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			service := New(repo, new(MockProvider), newNoopLogger())

			tt.setupMocks(repo)

			err := service.CancelSubscription(context.Background(), "user123")

			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
			} else {
				assert.NoError(t, err)
			}

			repo.AssertExpectations(t)
		})
	}
}
