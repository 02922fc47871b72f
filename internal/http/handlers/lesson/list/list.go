// Package list реализует HTTP-обработчик листинга уроков курса.
// Правило доступа то же, что и при чтении одного урока.
package list

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/course-marketplace/internal/http/middlewarectx"
	"github.com/magabrotheeeer/course-marketplace/internal/http/response"
	"github.com/magabrotheeeer/course-marketplace/internal/lib/sl"
	"github.com/magabrotheeeer/course-marketplace/internal/models"
	"github.com/magabrotheeeer/course-marketplace/internal/services/access"
)

// Service описывает интерфейс проекции уроков курса.
type Service interface {
	CourseLessons(ctx context.Context, identity *models.Identity, courseID int) ([]*access.LessonView, error)
}

// Handler управляет HTTP-запросами на листинг уроков.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Получить уроки курса
// @Description Возвращает уроки курса в порядке следования. media_url присутствует только у доступных уроков.
// @Tags Lessons
// @Produce  json
// @Param id path int true "ID курса"
// @Success 200 {object} map[string]any
// @Failure 400 {object} response.ErrorResponse "Некорректный id"
// @Failure 404 {object} response.ErrorResponse "Курс не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка хранилища"
// @Router /courses/{id}/lessons [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.lesson.list"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		log.Error("failed to decode id from url", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode id from url"))
		return
	}

	identity := middlewarectx.IdentityFromContext(r.Context())
	views, err := h.service.CourseLessons(r.Context(), identity, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		log.Info("course not found", slog.Int("course_id", id))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("course not found"))
		return
	case err != nil:
		log.Error("failed to build course lessons", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list lessons"))
		return
	}

	render.JSON(w, r, response.OKWithData(map[string]any{
		"lessons": views,
	}))
}
