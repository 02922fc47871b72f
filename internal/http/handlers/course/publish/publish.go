// Package publish реализует HTTP-обработчик публикации курса.
//
// Публиковать может владелец-преподаватель или админ. После публикации
// отправляется широковещательное уведомление; сбой отправки не влияет
// на результат операции.
package publish

import (
	"context"
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
)

// Repository описывает методы хранилища для публикации курса.
type Repository interface {
	GetCourse(ctx context.Context, id int) (*models.Course, error)
	MarkCoursePublished(ctx context.Context, courseID int) (int, error)
}

// Notifier отправляет широковещательные уведомления, fire-and-forget.
type Notifier interface {
	NotifyAll(title, body string, data map[string]string)
}

// Handler управляет HTTP-запросами на публикацию курса.
type Handler struct {
	log      *slog.Logger
	repo     Repository
	notifier Notifier
}

// New создает новый Handler с переданными логгером, хранилищем и нотификатором.
func New(log *slog.Logger, repo Repository, notifier Notifier) *Handler {
	return &Handler{
		log:      log,
		repo:     repo,
		notifier: notifier,
	}
}

// ServeHTTP godoc
// @Summary Опубликовать курс
// @Description Помечает курс опубликованным и рассылает уведомление. Доступно владельцу курса и админу.
// @Tags Courses
// @Produce  json
// @Param id path int true "ID курса"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.ErrorResponse "Некорректный id"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Не владелец и не админ"
// @Failure 404 {object} response.ErrorResponse "Курс не найден"
// @Router /courses/{id}/publish [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.course.publish"
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
	if identity == nil {
		log.Error("identity not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	course, err := h.repo.GetCourse(r.Context(), id)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("course not found"))
		return
	}
	if course.InstructorUID != identity.UserUID && identity.Role != models.RoleAdmin {
		log.Error("caller is not the course owner", slog.String("user_uid", identity.UserUID))
		w.WriteHeader(http.StatusForbidden)
		render.JSON(w, r, response.Error("forbidden"))
		return
	}

	if _, err := h.repo.MarkCoursePublished(r.Context(), id); err != nil {
		log.Error("failed to publish course", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not publish course"))
		return
	}

	h.notifier.NotifyAll("Новый курс", course.Title, map[string]string{
		"course_id": strconv.Itoa(course.ID),
	})

	log.Info("course published", slog.Int("course_id", id))
	render.JSON(w, r, response.OKWithData(nil))
}
