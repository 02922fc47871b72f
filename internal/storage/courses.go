package storage

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/course-marketplace/internal/models"
)

// GetCourse возвращает курс по его ID.
func (s *Storage) GetCourse(ctx context.Context, id int) (*models.Course, error) {
	const op = "storage.GetCourse"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, title, description, price, currency, instructor_uid, is_published, created_at
			  FROM courses
			  WHERE id = $1`
	var c models.Course
	row := s.DB.QueryRowContext(ctx, query, id)
	if err := row.Scan(&c.ID, &c.Title, &c.Description, &c.Price, &c.Currency,
		&c.InstructorUID, &c.IsPublished, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &c, nil
}

// GetLesson возвращает урок по его ID.
func (s *Storage) GetLesson(ctx context.Context, id int) (*models.Lesson, error) {
	const op = "storage.GetLesson"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, course_id, title, lesson_order, is_free, media_url
			  FROM lessons
			  WHERE id = $1`
	var l models.Lesson
	row := s.DB.QueryRowContext(ctx, query, id)
	if err := row.Scan(&l.ID, &l.CourseID, &l.Title, &l.Order, &l.IsFree, &l.MediaURL); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &l, nil
}

// GetFirstLessonOrder возвращает минимальный порядковый номер урока в курсе.
// Урок с этим номером — превью, он виден всем.
func (s *Storage) GetFirstLessonOrder(ctx context.Context, courseID int) (int, error) {
	const op = "storage.GetFirstLessonOrder"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT MIN(lesson_order) FROM lessons WHERE course_id = $1`
	var order int
	if err := s.DB.QueryRowContext(ctx, query, courseID).Scan(&order); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return order, nil
}

// ListLessons возвращает все уроки курса в порядке lesson_order.
func (s *Storage) ListLessons(ctx context.Context, courseID int) ([]*models.Lesson, error) {
	const op = "storage.ListLessons"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, course_id, title, lesson_order, is_free, media_url
			  FROM lessons
			  WHERE course_id = $1
			  ORDER BY lesson_order`
	rows, err := s.DB.QueryContext(ctx, query, courseID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Lesson
	for rows.Next() {
		var l models.Lesson
		if err := rows.Scan(&l.ID, &l.CourseID, &l.Title, &l.Order, &l.IsFree, &l.MediaURL); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &l)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// MarkCoursePublished помечает курс опубликованным и возвращает
// количество изменённых строк.
func (s *Storage) MarkCoursePublished(ctx context.Context, courseID int) (int, error) {
	const op = "storage.MarkCoursePublished"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE courses SET is_published = TRUE WHERE id = $1`
	res, err := s.DB.ExecContext(ctx, query, courseID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}
