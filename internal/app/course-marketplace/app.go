package coursemarketplace

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/course-marketplace/internal/config"
	jwtlib "github.com/magabrotheeeer/course-marketplace/internal/lib/jwt"
	"github.com/magabrotheeeer/course-marketplace/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/course-marketplace/internal/metrics"
	"github.com/magabrotheeeer/course-marketplace/internal/migrations"
	"github.com/magabrotheeeer/course-marketplace/internal/paymentprovider"
	"github.com/magabrotheeeer/course-marketplace/internal/services/access"
	authservice "github.com/magabrotheeeer/course-marketplace/internal/services/auth"
	identityservice "github.com/magabrotheeeer/course-marketplace/internal/services/identity"
	lifecycleservice "github.com/magabrotheeeer/course-marketplace/internal/services/lifecycle"
	notifyservice "github.com/magabrotheeeer/course-marketplace/internal/services/notify"
	purchaseservice "github.com/magabrotheeeer/course-marketplace/internal/services/purchase"
	"github.com/magabrotheeeer/course-marketplace/internal/sessions"
	"github.com/magabrotheeeer/course-marketplace/internal/storage"
)

// App инкапсулирует HTTP-сервер и внешние подключения приложения.
type App struct {
	server   *http.Server
	logger   *slog.Logger
	db       *storage.Storage
	sessions *sessions.Store
	amqpConn *amqp.Connection
}

// New собирает приложение: хранилище, миграции, сессии, RabbitMQ,
// сервисы и маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := storage.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	sessionStore, err := sessions.InitServer(ctx, cfg.RedisConnection, cfg.SessionTTL)
	if err != nil {
		return nil, err
	}

	amqpConn, amqpChannel, err := rabbitmq.Connect(cfg.RabbitMQURL)
	if err != nil {
		return nil, err
	}

	metrics.Register()

	jwtMaker := jwtlib.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	providerClient := paymentprovider.NewClient(cfg.ShopID, cfg.SecretKey)

	svc := Services{
		Auth:      authservice.New(db, sessionStore, jwtMaker),
		Identity:  identityservice.New(sessionStore, db, jwtMaker, logger),
		Access:    access.NewService(db, logger),
		Purchase:  purchaseservice.New(db, providerClient, logger),
		Lifecycle: lifecycleservice.New(db, cfg.SweepBatch, logger),
		Notify:    notifyservice.New(amqpChannel, logger),
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, db, svc, cfg.WebhookSecret, cfg.SweepSecret)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:   srv,
		logger:   logger,
		db:       db,
		sessions: sessionStore,
		amqpConn: amqpConn,
	}, nil
}

// Run запускает HTTP-сервер и блокируется до остановки контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		_ = a.db.DB.Close()
		_ = a.amqpConn.Close()
		return err
	}
}
