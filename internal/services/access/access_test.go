package access

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/course-marketplace/internal/models"
)

func subscribedUser(endDate time.Time) *models.User {
	plan := "premium"
	start := endDate.AddDate(0, -1, 0)
	return &models.User{
		UID:                   "user123",
		Role:                  models.RoleStudent,
		SubscriptionPlan:      &plan,
		SubscriptionStartDate: &start,
		SubscriptionEndDate:   &endDate,
	}
}

func TestDecide(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	paidLesson := &models.Lesson{ID: 10, CourseID: 1, Order: 3, IsFree: false, MediaURL: "media/10"}
	freeLesson := &models.Lesson{ID: 11, CourseID: 1, Order: 5, IsFree: true, MediaURL: "media/11"}
	previewLesson := &models.Lesson{ID: 12, CourseID: 1, Order: 1, IsFree: false, MediaURL: "media/12"}

	tests := []struct {
		name           string
		user           *models.User
		enrolled       bool
		lesson         *models.Lesson
		firstOrder     int
		expectedAllow  bool
		expectedReason string
	}{
		{
			name:           "бесплатный урок виден анониму",
			user:           nil,
			lesson:         freeLesson,
			firstOrder:     1,
			expectedAllow:  true,
			expectedReason: ReasonFreeLesson,
		},
		{
			name:           "free lesson wins even for enrolled user",
			user:           &models.User{UID: "user123", Role: models.RoleStudent},
			enrolled:       true,
			lesson:         freeLesson,
			firstOrder:     1,
			expectedAllow:  true,
			expectedReason: ReasonFreeLesson,
		},
		{
			name:           "превью: минимальный номер урока виден анониму",
			user:           nil,
			lesson:         previewLesson,
			firstOrder:     1,
			expectedAllow:  true,
			expectedReason: ReasonPreviewLesson,
		},
		{
			name:           "аноним не видит платный урок",
			user:           nil,
			lesson:         paidLesson,
			firstOrder:     1,
			expectedAllow:  false,
			expectedReason: ReasonUnauthenticated,
		},
		{
			name:           "запись на курс открывает платный урок",
			user:           &models.User{UID: "user123", Role: models.RoleStudent},
			enrolled:       true,
			lesson:         paidLesson,
			firstOrder:     1,
			expectedAllow:  true,
			expectedReason: ReasonEnrolled,
		},
		{
			name:           "активная подписка открывает платный урок",
			user:           subscribedUser(now.AddDate(0, 1, 0)),
			lesson:         paidLesson,
			firstOrder:     1,
			expectedAllow:  true,
			expectedReason: ReasonSubscription,
		},
		{
			name:           "отменённая подписка действует до конца периода",
			user:           withCancelled(subscribedUser(now.Add(24 * time.Hour))),
			lesson:         paidLesson,
			firstOrder:     1,
			expectedAllow:  true,
			expectedReason: ReasonSubscription,
		},
		{
			name:           "истёкшая подписка не даёт доступа",
			user:           subscribedUser(now.Add(-time.Minute)),
			lesson:         paidLesson,
			firstOrder:     1,
			expectedAllow:  false,
			expectedReason: ReasonNotEntitled,
		},
		{
			name:           "subscription ending exactly now does not grant access",
			user:           subscribedUser(now),
			lesson:         paidLesson,
			firstOrder:     1,
			expectedAllow:  false,
			expectedReason: ReasonNotEntitled,
		},
		{
			name:           "авторизован, но не записан и без подписки",
			user:           &models.User{UID: "user123", Role: models.RoleStudent},
			lesson:         paidLesson,
			firstOrder:     1,
			expectedAllow:  false,
			expectedReason: ReasonNotEntitled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.user, tt.enrolled, tt.lesson, tt.firstOrder, now)

			assert.Equal(t, tt.expectedAllow, d.Allowed)
			assert.Equal(t, tt.expectedReason, d.Reason)
		})
	}
}

func withCancelled(u *models.User) *models.User {
	u.SubscriptionCancelled = true
	return u
}
