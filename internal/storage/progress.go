package storage

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/course-marketplace/internal/models"
)

// UpsertProgress вставляет или обновляет прогресс просмотра урока.
// Уникальность по (user_uid, lesson_id), time_watched не уменьшается.
func (s *Storage) UpsertProgress(ctx context.Context, p models.Progress) (int, error) {
	const op = "storage.UpsertProgress"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO progress (user_uid, lesson_id, time_watched, is_completed)
			  VALUES ($1, $2, $3, $4)
			  ON CONFLICT (user_uid, lesson_id) DO UPDATE
			  SET time_watched = GREATEST(progress.time_watched, EXCLUDED.time_watched),
			      is_completed = progress.is_completed OR EXCLUDED.is_completed
			  RETURNING id`
	var id int
	err := s.DB.QueryRowContext(ctx, query,
		p.UserUID, p.LessonID, p.TimeWatched, p.IsCompleted).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// ListProgressByUser возвращает прогресс пользователя по всем урокам.
func (s *Storage) ListProgressByUser(ctx context.Context, userUID string) ([]*models.Progress, error) {
	const op = "storage.ListProgressByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, lesson_id, time_watched, is_completed
			  FROM progress
			  WHERE user_uid = $1
			  ORDER BY lesson_id`
	rows, err := s.DB.QueryContext(ctx, query, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Progress
	for rows.Next() {
		var p models.Progress
		if err := rows.Scan(&p.ID, &p.UserUID, &p.LessonID, &p.TimeWatched, &p.IsCompleted); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
