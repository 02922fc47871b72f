// Package lifecycle реализует периодическую чистку истёкших подписок:
// у пользователей с отменённой и закончившейся подпиской удаляется
// прогресс просмотра и очищаются поля подписки.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/course-marketplace/internal/lib/sl"
	"github.com/magabrotheeeer/course-marketplace/internal/metrics"
)

// Repository определяет методы хранилища для чистки.
type Repository interface {
	FindLapsedSubscribers(ctx context.Context, now time.Time, limit int) ([]string, error)
	RevokeLapsedSubscriber(ctx context.Context, userUID string, now time.Time) (int, bool, error)
}

// Result — итог одного прохода чистки.
type Result struct {
	RevokedCount        int `json:"revoked_count"`
	PurgedProgressCount int `json:"purged_progress_count"`
}

// Service выполняет проход чистки. Повторный или параллельный запуск
// безопасен: предикат отбора повторяется в условном UPDATE на каждого
// пользователя, проигравшая гонку транзакция ничего не меняет.
type Service struct {
	repo  Repository
	batch int
	log   *slog.Logger
}

// New создает новый экземпляр Service. batch ограничивает число
// пользователей за один проход.
func New(repo Repository, batch int, log *slog.Logger) *Service {
	if batch <= 0 {
		batch = 100
	}
	return &Service{
		repo:  repo,
		batch: batch,
		log:   log,
	}
}

// Sweep находит пользователей с отменённой и истёкшей подпиской и отзывает
// доступ каждому в отдельной транзакции. Ошибка на одном пользователе
// логируется, проход продолжается.
func (s *Service) Sweep(ctx context.Context, now time.Time) (Result, error) {
	const op = "lifecycle.Sweep"
	log := s.log.With(slog.String("op", op))

	var result Result
	uids, err := s.repo.FindLapsedSubscribers(ctx, now, s.batch)
	if err != nil {
		log.Error("failed to find lapsed subscribers", sl.Err(err))
		return result, err
	}
	if len(uids) == 0 {
		log.Info("no lapsed subscriptions found")
		return result, nil
	}
	log.Info("found lapsed subscriptions", slog.Int("count", len(uids)))

	for _, uid := range uids {
		purged, revoked, err := s.repo.RevokeLapsedSubscriber(ctx, uid, now)
		if err != nil {
			log.Error("failed to revoke subscriber", slog.String("user_uid", uid), sl.Err(err))
			continue
		}
		if !revoked {
			// другой проход успел раньше
			continue
		}
		result.RevokedCount++
		result.PurgedProgressCount += purged
		metrics.SubscriptionsRevoked.Inc()
	}
	log.Info("sweep finished", slog.Int("revoked", result.RevokedCount),
		slog.Int("purged_progress", result.PurgedProgressCount))
	return result, nil
}
