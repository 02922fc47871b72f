// Package coursemarketplace собирает зависимости и маршруты основного приложения.
package coursemarketplace

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	coursepublish "github.com/magabrotheeeer/course-marketplace/internal/http/handlers/course/publish"
	"github.com/magabrotheeeer/course-marketplace/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/course-marketplace/internal/http/handlers/auth/logout"
	"github.com/magabrotheeeer/course-marketplace/internal/http/handlers/auth/register"
	lessonlist "github.com/magabrotheeeer/course-marketplace/internal/http/handlers/lesson/list"
	lessonread "github.com/magabrotheeeer/course-marketplace/internal/http/handlers/lesson/read"
	paymentlist "github.com/magabrotheeeer/course-marketplace/internal/http/handlers/payment/list"
	progressupdate "github.com/magabrotheeeer/course-marketplace/internal/http/handlers/progress/update"
	purchasebegin "github.com/magabrotheeeer/course-marketplace/internal/http/handlers/purchase/begin"
	purchasecomplete "github.com/magabrotheeeer/course-marketplace/internal/http/handlers/purchase/complete"
	purchasewebhook "github.com/magabrotheeeer/course-marketplace/internal/http/handlers/purchase/webhook"
	subscriptioncancel "github.com/magabrotheeeer/course-marketplace/internal/http/handlers/subscription/cancel"
	subscriptioncheckout "github.com/magabrotheeeer/course-marketplace/internal/http/handlers/subscription/checkout"
	subscriptionsweep "github.com/magabrotheeeer/course-marketplace/internal/http/handlers/subscription/sweep"
	"github.com/magabrotheeeer/course-marketplace/internal/http/middlewarectx"
	"github.com/magabrotheeeer/course-marketplace/internal/services/access"
	authservice "github.com/magabrotheeeer/course-marketplace/internal/services/auth"
	identityservice "github.com/magabrotheeeer/course-marketplace/internal/services/identity"
	lifecycleservice "github.com/magabrotheeeer/course-marketplace/internal/services/lifecycle"
	notifyservice "github.com/magabrotheeeer/course-marketplace/internal/services/notify"
	purchaseservice "github.com/magabrotheeeer/course-marketplace/internal/services/purchase"
	"github.com/magabrotheeeer/course-marketplace/internal/storage"
)

// Services — собранные сервисы приложения, общие для маршрутов.
type Services struct {
	Auth      *authservice.AuthService
	Identity  *identityservice.Resolver
	Access    *access.Service
	Purchase  *purchaseservice.Service
	Lifecycle *lifecycleservice.Service
	Notify    *notifyservice.Service
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, db *storage.Storage, svc Services, webhookSecret, sweepSecret string) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Post("/register", register.New(logger, svc.Auth).ServeHTTP)
		r.Post("/login", login.New(logger, svc.Auth).ServeHTTP)
		r.Post("/logout", logout.New(logger, svc.Auth).ServeHTTP)

		// Чтение уроков: identity опциональна, отказ выражается
		// отсутствием media_url, а не ошибкой
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.OptionalAuth(svc.Identity, logger))
			r.Get("/lessons/{id}", lessonread.New(logger, svc.Access).ServeHTTP)
			r.Get("/courses/{id}/lessons", lessonlist.New(logger, svc.Access).ServeHTTP)
		})

		// Группа с обязательной аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RequireAuth(svc.Identity, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Post("/purchases", purchasebegin.New(logger, svc.Purchase).ServeHTTP)
			r.Post("/purchases/complete", purchasecomplete.New(logger, svc.Purchase).ServeHTTP)
			r.Post("/subscriptions/checkout", subscriptioncheckout.New(logger, svc.Purchase).ServeHTTP)
			r.Post("/subscriptions/cancel", subscriptioncancel.New(logger, svc.Purchase).ServeHTTP)
			r.Post("/courses/{id}/publish", coursepublish.New(logger, db, svc.Notify).ServeHTTP)
			r.Post("/progress", progressupdate.New(logger, db).ServeHTTP)
			r.Get("/payments", paymentlist.New(logger, db).ServeHTTP)
		})

		// Webhook endpoint (подпись вместо аутентификации)
		r.Post("/payments/webhook", purchasewebhook.New(logger, svc.Purchase, webhookSecret).ServeHTTP)
	})

	// Служебный запуск чистки по общему секрету
	r.Post("/internal/subscriptions/sweep", subscriptionsweep.New(logger, svc.Lifecycle, sweepSecret).ServeHTTP)

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
