package access

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/course-marketplace/internal/models"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetLesson(ctx context.Context, id int) (*models.Lesson, error) {
	args := m.Called(ctx, id)
	if res := args.Get(0); res != nil {
		return res.(*models.Lesson), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) GetCourse(ctx context.Context, id int) (*models.Course, error) {
	args := m.Called(ctx, id)
	if res := args.Get(0); res != nil {
		return res.(*models.Course), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRepository) GetFirstLessonOrder(ctx context.Context, courseID int) (int, error) {
	args := m.Called(ctx, courseID)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) ListLessons(ctx context.Context, courseID int) ([]*models.Lesson, error) {
	args := m.Called(ctx, courseID)
	if res := args.Get(0); res != nil {
		return res.([]*models.Lesson), args.Error(1)
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

func (m *MockRepository) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	args := m.Called(ctx, userUID)
	if res := args.Get(0); res != nil {
		return res.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestService_LessonView(t *testing.T) {
	paidLesson := &models.Lesson{ID: 10, CourseID: 1, Title: "Деплой", Order: 3, MediaURL: "media/10"}
	identity := &models.Identity{UserUID: "user123", Role: models.RoleStudent}

	tests := []struct {
		name             string
		identity         *models.Identity
		setupMocks       func(*MockRepository)
		expectedAllow    bool
		expectedMediaURL string
		expectedError    bool
	}{
		{
			name:     "записанный пользователь получает media_url",
			identity: identity,
			setupMocks: func(r *MockRepository) {
				r.On("GetLesson", mock.Anything, 10).Return(paidLesson, nil).Once()
				r.On("GetFirstLessonOrder", mock.Anything, 1).Return(1, nil).Once()
				r.On("GetUser", mock.Anything, "user123").Return(&models.User{UID: "user123"}, nil).Once()
				r.On("GetEnrollment", mock.Anything, "user123", 1).
					Return(&models.Enrollment{ID: 5, UserUID: "user123", CourseID: 1}, nil).Once()
			},
			expectedAllow:    true,
			expectedMediaURL: "media/10",
		},
		{
			name:     "при отказе media_url пуст",
			identity: identity,
			setupMocks: func(r *MockRepository) {
				r.On("GetLesson", mock.Anything, 10).Return(paidLesson, nil).Once()
				r.On("GetFirstLessonOrder", mock.Anything, 1).Return(1, nil).Once()
				r.On("GetUser", mock.Anything, "user123").Return(&models.User{UID: "user123"}, nil).Once()
				r.On("GetEnrollment", mock.Anything, "user123", 1).Return(nil, nil).Once()
			},
			expectedAllow:    false,
			expectedMediaURL: "",
		},
		{
			name:     "аноним: пользователь не читается из хранилища",
			identity: nil,
			setupMocks: func(r *MockRepository) {
				r.On("GetLesson", mock.Anything, 10).Return(paidLesson, nil).Once()
				r.On("GetFirstLessonOrder", mock.Anything, 1).Return(1, nil).Once()
			},
			expectedAllow:    false,
			expectedMediaURL: "",
		},
		{
			name:     "lesson not found",
			identity: identity,
			setupMocks: func(r *MockRepository) {
				r.On("GetLesson", mock.Anything, 10).Return(nil, errors.New("sql: no rows in result set")).Once()
			},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			service := NewService(repo, newNoopLogger())

			tt.setupMocks(repo)

			view, err := service.LessonView(context.Background(), tt.identity, 10)

			if tt.expectedError {
				assert.Error(t, err)
				assert.Nil(t, view)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expectedAllow, view.Allowed)
				assert.Equal(t, tt.expectedMediaURL, view.MediaURL)
			}

			repo.AssertExpectations(t)
		})
	}
}

func TestService_CourseLessons(t *testing.T) {
	course := &models.Course{ID: 1, IsPublished: true}
	lessons := []*models.Lesson{
		{ID: 1, CourseID: 1, Order: 1, MediaURL: "media/1"},
		{ID: 2, CourseID: 1, Order: 2, IsFree: true, MediaURL: "media/2"},
		{ID: 3, CourseID: 1, Order: 3, MediaURL: "media/3"},
	}
	endDate := time.Now().UTC().AddDate(0, 1, 0)
	plan := "premium"

	t.Run("подписчик видит все уроки, причины различаются", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetCourse", mock.Anything, 1).Return(course, nil).Once()
		repo.On("ListLessons", mock.Anything, 1).Return(lessons, nil).Once()
		repo.On("GetFirstLessonOrder", mock.Anything, 1).Return(1, nil).Once()
		repo.On("GetUser", mock.Anything, "user123").
			Return(&models.User{UID: "user123", SubscriptionPlan: &plan, SubscriptionEndDate: &endDate}, nil).Once()
		repo.On("GetEnrollment", mock.Anything, "user123", 1).Return(nil, nil).Once()

		service := NewService(repo, newNoopLogger())
		views, err := service.CourseLessons(context.Background(), &models.Identity{UserUID: "user123"}, 1)

		assert.NoError(t, err)
		assert.Len(t, views, 3)
		assert.Equal(t, ReasonPreviewLesson, views[0].Reason)
		assert.Equal(t, ReasonFreeLesson, views[1].Reason)
		assert.Equal(t, ReasonSubscription, views[2].Reason)
		for _, v := range views {
			assert.True(t, v.Allowed)
			assert.NotEmpty(t, v.MediaURL)
		}
		repo.AssertExpectations(t)
	})

	t.Run("аноним видит только превью и бесплатный урок", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetCourse", mock.Anything, 1).Return(course, nil).Once()
		repo.On("ListLessons", mock.Anything, 1).Return(lessons, nil).Once()
		repo.On("GetFirstLessonOrder", mock.Anything, 1).Return(1, nil).Once()

		service := NewService(repo, newNoopLogger())
		views, err := service.CourseLessons(context.Background(), nil, 1)

		assert.NoError(t, err)
		assert.Len(t, views, 3)
		assert.True(t, views[0].Allowed)
		assert.True(t, views[1].Allowed)
		assert.False(t, views[2].Allowed)
		assert.Empty(t, views[2].MediaURL)
		assert.Equal(t, ReasonUnauthenticated, views[2].Reason)
		repo.AssertExpectations(t)
	})

	t.Run("course not found", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("GetCourse", mock.Anything, 99).Return(nil, errors.New("sql: no rows in result set")).Once()

		service := NewService(repo, newNoopLogger())
		views, err := service.CourseLessons(context.Background(), nil, 99)

		assert.Error(t, err)
		assert.Nil(t, views)
		repo.AssertExpectations(t)
	})
}
