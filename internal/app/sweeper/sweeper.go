// Package sweeper собирает воркер чистки истёкших подписок.
// Проход запускается по cron-расписанию из конфига; повторный и
// параллельный запуск безопасны, вся идемпотентность в хранилище.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/magabrotheeeer/course-marketplace/internal/config"
	"github.com/magabrotheeeer/course-marketplace/internal/lib/sl"
	lifecycleservice "github.com/magabrotheeeer/course-marketplace/internal/services/lifecycle"
	"github.com/magabrotheeeer/course-marketplace/internal/storage"
)

// App инкапсулирует планировщик и подключение к базе.
type App struct {
	cron   *cron.Cron
	logger *slog.Logger
	db     *storage.Storage
}

// New собирает воркер: хранилище, сервис чистки и cron-расписание.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := storage.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err := storage.CheckDatabaseReady(db); err != nil {
		return nil, err
	}

	service := lifecycleservice.New(db, cfg.SweepBatch, logger)

	schedule := cfg.SweepSchedule
	if schedule == "" {
		schedule = "0 3 * * *"
	}

	c := cron.New()
	_, err = c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := service.Sweep(ctx, time.Now().UTC()); err != nil {
			logger.Error("sweep run failed", sl.Err(err))
		}
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cron:   c,
		logger: logger,
		db:     db,
	}, nil
}

// Run запускает планировщик и блокируется до остановки контекста.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("lifecycle sweeper starting")
	a.cron.Start()

	<-ctx.Done()
	stopCtx := a.cron.Stop()
	<-stopCtx.Done()
	_ = a.db.DB.Close()
	a.logger.Info("lifecycle sweeper stopped")
	return nil
}
