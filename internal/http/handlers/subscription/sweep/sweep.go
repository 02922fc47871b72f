// Package sweep реализует служебный HTTP-обработчик запуска чистки
// истёкших подписок. Маршрут внутренний, вызывается внешним планировщиком
// и защищён общим секретом в заголовке X-Sweep-Secret.
package sweep

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/course-marketplace/internal/http/response"
	"github.com/magabrotheeeer/course-marketplace/internal/lib/sl"
	"github.com/magabrotheeeer/course-marketplace/internal/services/lifecycle"
)

// SweepSecretHeader — заголовок с общим секретом планировщика.
const SweepSecretHeader = "X-Sweep-Secret"

// Service описывает интерфейс запуска чистки.
type Service interface {
	Sweep(ctx context.Context, now time.Time) (lifecycle.Result, error)
}

// Handler управляет HTTP-запросами на запуск чистки.
type Handler struct {
	log         *slog.Logger
	service     Service
	sweepSecret string
}

// New создает новый Handler с переданными логгером, сервисом и секретом.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:         log,
		service:     service,
		sweepSecret: secret,
	}
}

// ServeHTTP godoc
// @Summary Запустить чистку истёкших подписок
// @Description Отзывает доступ пользователям с отменённой и закончившейся подпиской. Идемпотентно, безопасно для повторного запуска.
// @Tags Internal
// @Produce  json
// @Success 200 {object} lifecycle.Result
// @Failure 401 "Невалидный секрет"
// @Router /internal/subscriptions/sweep [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.sweep"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	secret := r.Header.Get(SweepSecretHeader)
	if subtle.ConstantTimeCompare([]byte(secret), []byte(h.sweepSecret)) != 1 {
		log.Error("invalid or missing sweep secret")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	result, err := h.service.Sweep(r.Context(), time.Now().UTC())
	if err != nil {
		log.Error("sweep failed", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("sweep failed"))
		return
	}

	render.JSON(w, r, response.OKWithData(result))
}
