// Package begin реализует HTTP-обработчик начала покупки курсов.
//
// Handler принимает корзину курсов с клиентским correlation_id, отклоняет
// дубли и неопубликованные курсы и создаёт платежи в статусе PENDING.
package begin

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

// Service описывает интерфейс бизнес-логики начала покупки.
type Service interface {
	BeginPurchase(ctx context.Context, userUID, correlationID string, courseIDs []int) ([]*models.Payment, error)
}

// Handler управляет HTTP-запросами на начало покупки.
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
// @Summary Начать покупку курсов
// @Description Создает по платежу PENDING на каждый курс корзины. Отклоняет дубли и неопубликованные курсы с внятной причиной.
// @Tags Purchases
// @Accept  json
// @Produce  json
// @Param request body models.DummyPurchase true "Корзина курсов"
// @Success 200 {object} map[string]any "Созданные платежи"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Курс не найден"
// @Failure 409 {object} response.ErrorResponse "Уже есть запись на курс"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Router /purchases [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.purchase.begin"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyPurchase
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

	payments, err := h.service.BeginPurchase(r.Context(), identity.UserUID, req.CorrelationID, req.CourseIDs)
	switch {
	case errors.Is(err, serverrors.ErrAlreadyEnrolled):
		log.Info("duplicate purchase rejected", slog.String("correlation_id", req.CorrelationID))
		w.WriteHeader(http.StatusConflict)
		render.JSON(w, r, response.Error("already enrolled"))
		return
	case errors.Is(err, serverrors.ErrCourseUnpublished):
		log.Info("unpublished course rejected", slog.String("correlation_id", req.CorrelationID))
		w.WriteHeader(http.StatusConflict)
		render.JSON(w, r, response.Error("course is not published"))
		return
	case errors.Is(err, serverrors.ErrNotFound):
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("course not found"))
		return
	case err != nil:
		log.Error("failed to begin purchase", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not begin purchase"))
		return
	}

	log.Info("purchase started", slog.Int("payments", len(payments)))
	render.JSON(w, r, response.OKWithData(map[string]any{
		"payments": payments,
	}))
}
