// Package webhook реализует HTTP-обработчик событий платёжного провайдера.
//
// Подпись HMAC-SHA256 проверяется над сырым телом до разбора JSON.
// Невалидная подпись — отказ без изменения состояния и без повтора с нашей
// стороны. Неизвестные события подтверждаются 200 и игнорируются.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/magabrotheeeer/course-marketplace/internal/lib/sl"
	"github.com/magabrotheeeer/course-marketplace/internal/metrics"
	"github.com/magabrotheeeer/course-marketplace/internal/services/purchase"
)

// Service описывает интерфейс обработки события с проверенной подписью.
type Service interface {
	HandleProviderEvent(ctx context.Context, event *purchase.Event) error
}

// Handler управляет HTTP-запросами вебхука провайдера.
type Handler struct {
	log           *slog.Logger
	service       Service
	webhookSecret string // Секрет для проверки подписи
}

// New создает новый Handler с переданными логгером, сервисом и секретом подписи.
func New(log *slog.Logger, service Service, secret string) *Handler {
	return &Handler{
		log:           log,
		service:       service,
		webhookSecret: secret,
	}
}

// verifySignature проверяет подпись вебхука (X-Api-Signature).
// Сравнение выполняется за постоянное время.
func (h *Handler) verifySignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(h.webhookSecret))
	mac.Write(body)
	expectedSig := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expectedSig), []byte(signature))
}

// ServeHTTP godoc
// @Summary Вебхук платёжного провайдера
// @Description Принимает события провайдера, проверяет подпись X-Api-Signature и идемпотентно применяет их к платежам.
// @Tags Purchases
// @Accept  json
// @Produce  json
// @Success 200 "Событие обработано или проигнорировано"
// @Failure 400 "Некорректное тело"
// @Failure 401 "Невалидная подпись"
// @Router /payments/webhook [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.purchase.webhook"
	log := h.log.With(slog.String("op", op))

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	signature := r.Header.Get("X-Api-Signature")
	if signature == "" || !h.verifySignature(body, signature) {
		log.Error("invalid or missing webhook signature")
		metrics.WebhooksRejected.Inc()
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var event purchase.Event
	if err := json.Unmarshal(body, &event); err != nil {
		log.Error("failed to unmarshal webhook payload", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.service.HandleProviderEvent(r.Context(), &event); err != nil {
		log.Error("failed to process webhook event", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	log.Info("webhook processed", slog.String("event", event.Event),
		slog.String("payment_id", event.Object.ID))
	w.WriteHeader(http.StatusOK)
}
