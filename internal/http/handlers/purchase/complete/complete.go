// Package complete реализует HTTP-обработчик клиентского подтверждения оплаты.
//
// Подтверждение сходится с вебхуком провайдера в один идемпотентный путь:
// повторный вызов с тем же correlation_id возвращает те же записи без ошибки.
package complete

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/course-marketplace/internal/http/middlewarectx"
	"github.com/magabrotheeeer/course-marketplace/internal/http/response"
	"github.com/magabrotheeeer/course-marketplace/internal/lib/sl"
	"github.com/magabrotheeeer/course-marketplace/internal/models"
	"github.com/magabrotheeeer/course-marketplace/internal/services/serverrors"
)

// Service описывает интерфейс бизнес-логики завершения покупки.
type Service interface {
	CompletePurchase(ctx context.Context, userUID, correlationID string) ([]*models.Enrollment, error)
}

// Handler управляет HTTP-запросами на завершение покупки.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Подтвердить оплату покупки
// @Description Переводит платежи корзины в COMPLETED и создаёт записи на курсы. Идемпотентно по correlation_id.
// @Tags Purchases
// @Accept  json
// @Produce  json
// @Param request body models.DummyComplete true "Идентификатор корреляции"
// @Success 200 {object} map[string]any "Записи на курсы"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Чужая покупка"
// @Failure 404 {object} response.ErrorResponse "Платежи не найдены"
// @Router /purchases/complete [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.purchase.complete"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyComplete
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	identity := middlewarectx.IdentityFromContext(r.Context())
	if identity == nil {
		log.Error("identity not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	enrollments, err := h.service.CompletePurchase(r.Context(), identity.UserUID, req.CorrelationID)
	switch {
	case errors.Is(err, serverrors.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("payments not found"))
		return
	case errors.Is(err, serverrors.ErrForbidden):
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.Error("forbidden"))
		return
	case err != nil:
		log.Error("failed to complete purchase", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not complete purchase"))
		return
	}

	log.Info("purchase completed", slog.String("correlation_id", req.CorrelationID),
		slog.Int("enrollments", len(enrollments)))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"enrollments": enrollments,
	}))
}
