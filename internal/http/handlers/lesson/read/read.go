// Package read реализует HTTP-обработчик чтения одного урока.
//
// Метаданные урока видны всем; ссылка на медиа присутствует в ответе
// только при разрешённом доступе. Отказ — не ошибка, поле просто опущено.
package read

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

// Service описывает интерфейс проекции урока для вызывающего.
type Service interface {
	LessonView(ctx context.Context, identity *models.Identity, lessonID int) (*access.LessonView, error)
}

// Handler управляет HTTP-запросами на чтение урока.
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
// @Summary Получить урок
// @Description Возвращает метаданные урока. Поле media_url присутствует только при разрешённом доступе.
// @Tags Lessons
// @Produce  json
// @Param id path int true "ID урока"
// @Success 200 {object} access.LessonView
// @Failure 400 {object} response.ErrorResponse "Некорректный id"
// @Failure 404 {object} response.ErrorResponse "Урок не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка хранилища"
// @Router /lessons/{id} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.lesson.read"
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
	view, err := h.service.LessonView(r.Context(), identity, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		log.Info("lesson not found", slog.Int("lesson_id", id))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("lesson not found"))
		return
	case err != nil:
		log.Error("failed to build lesson view", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not read lesson"))
		return
	}

	render.JSON(w, r, response.OKWithData(view))
}
