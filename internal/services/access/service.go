package access

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/course-marketplace/internal/models"
)

// Repository определяет чтения хранилища, нужные для решения о доступе.
type Repository interface {
	GetLesson(ctx context.Context, id int) (*models.Lesson, error)
	GetCourse(ctx context.Context, id int) (*models.Course, error)
	GetFirstLessonOrder(ctx context.Context, courseID int) (int, error)
	ListLessons(ctx context.Context, courseID int) ([]*models.Lesson, error)
	GetEnrollment(ctx context.Context, userUID string, courseID int) (*models.Enrollment, error)
	GetUser(ctx context.Context, userUID string) (*models.User, error)
}

// LessonView — проекция урока для вызывающего. MediaURL присутствует
// только при разрешённом доступе: при отказе поле опускается целиком,
// а не заменяется заглушкой.
type LessonView struct {
	ID       int    `json:"id"`
	CourseID int    `json:"course_id"`
	Title    string `json:"title"`
	Order    int    `json:"order"`
	IsFree   bool   `json:"is_free"`
	Allowed  bool   `json:"allowed"`
	Reason   string `json:"reason"`
	MediaURL string `json:"media_url,omitempty"`
}

// Service применяет правило Decide к урокам, подгружая контекст
// (запись на курс, подписку, номер превью) из хранилища.
type Service struct {
	repo Repository
	log  *slog.Logger
}

// NewService создает новый экземпляр Service.
func NewService(repo Repository, log *slog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
	}
}

// entitlementContext собирает входы правила, общие для всех уроков курса.
func (s *Service) entitlementContext(ctx context.Context, identity *models.Identity, courseID int) (user *models.User, enrolled bool, firstOrder int, err error) {
	const op = "access.entitlementContext"

	firstOrder, err = s.repo.GetFirstLessonOrder(ctx, courseID)
	if err != nil {
		return nil, false, 0, fmt.Errorf("%s: %w", op, err)
	}
	if identity == nil {
		return nil, false, firstOrder, nil
	}
	user, err = s.repo.GetUser(ctx, identity.UserUID)
	if err != nil {
		return nil, false, 0, fmt.Errorf("%s: %w", op, err)
	}
	enrollment, err := s.repo.GetEnrollment(ctx, identity.UserUID, courseID)
	if err != nil {
		return nil, false, 0, fmt.Errorf("%s: %w", op, err)
	}
	return user, enrollment != nil, firstOrder, nil
}

func toView(lesson *models.Lesson, d Decision) *LessonView {
	view := &LessonView{
		ID:       lesson.ID,
		CourseID: lesson.CourseID,
		Title:    lesson.Title,
		Order:    lesson.Order,
		IsFree:   lesson.IsFree,
		Allowed:  d.Allowed,
		Reason:   d.Reason,
	}
	if d.Allowed {
		view.MediaURL = lesson.MediaURL
	}
	return view
}

// LessonView возвращает проекцию одного урока для вызывающего.
func (s *Service) LessonView(ctx context.Context, identity *models.Identity, lessonID int) (*LessonView, error) {
	const op = "access.LessonView"

	lesson, err := s.repo.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user, enrolled, firstOrder, err := s.entitlementContext(ctx, identity, lesson.CourseID)
	if err != nil {
		return nil, err
	}
	return toView(lesson, Decide(user, enrolled, lesson, firstOrder, time.Now().UTC())), nil
}

// CourseLessons возвращает проекции всех уроков курса. Правило то же,
// что и для одиночного урока, входы собираются один раз на курс.
func (s *Service) CourseLessons(ctx context.Context, identity *models.Identity, courseID int) ([]*LessonView, error) {
	const op = "access.CourseLessons"

	if _, err := s.repo.GetCourse(ctx, courseID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	lessons, err := s.repo.ListLessons(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(lessons) == 0 {
		return nil, nil
	}
	user, enrolled, firstOrder, err := s.entitlementContext(ctx, identity, courseID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	views := make([]*LessonView, 0, len(lessons))
	for _, lesson := range lessons {
		views = append(views, toView(lesson, Decide(user, enrolled, lesson, firstOrder, now)))
	}
	return views, nil
}
