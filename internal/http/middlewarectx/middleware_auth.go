// Package middlewarectx содержит HTTP middleware разрешения identity.
//
// OptionalAuth разрешает учётные данные запроса (cookie-сессия, затем
// bearer-токен) и кладёт identity в контекст; аноним проходит дальше.
// RequireAuth поверх этого возвращает 401, если identity в контексте нет.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/course-marketplace/internal/http/response"
	"github.com/magabrotheeeer/course-marketplace/internal/lib/sl"
	"github.com/magabrotheeeer/course-marketplace/internal/models"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// IdentityKey — ключ для identity вызывающего в контексте
	IdentityKey Key = "identity"
)

// SessionCookie — имя cookie с идентификатором сессии первой стороны.
const SessionCookie = "session_id"

// Resolver описывает сервис разрешения учётных данных в identity.
type Resolver interface {
	Resolve(ctx context.Context, sessionID, bearerToken string) (*models.Identity, error)
}

// IdentityFromContext возвращает identity из контекста запроса или nil для анонима.
func IdentityFromContext(ctx context.Context) *models.Identity {
	identity, _ := ctx.Value(IdentityKey).(*models.Identity)
	return identity
}

func credentialsFromRequest(r *http.Request) (sessionID, bearerToken string) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		sessionID = cookie.Value
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		bearerToken = strings.TrimPrefix(authHeader, "Bearer ")
	}
	return sessionID, bearerToken
}

// OptionalAuth возвращает middleware, разрешающее identity без требования
// аутентификации: отсутствующие учётные данные пропускают запрос как
// анонимный, предъявленный битый токен тоже (отказ произойдёт на правиле
// доступа, а не на чтении метаданных).
func OptionalAuth(resolver Resolver, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.OptionalAuth"
			sessionID, bearerToken := credentialsFromRequest(r)

			identity, err := resolver.Resolve(r.Context(), sessionID, bearerToken)
			if err != nil {
				log.With(slog.String("op", op),
					slog.String("request_id", middleware.GetReqID(r.Context()))).
					Warn("failed to resolve identity", sl.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if identity != nil {
				ctx := context.WithValue(r.Context(), IdentityKey, identity)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth возвращает middleware, требующее аутентификацию. Запрос без
// валидных учётных данных завершается 401 Unauthorized.
func RequireAuth(resolver Resolver, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.RequireAuth"
			logger := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			sessionID, bearerToken := credentialsFromRequest(r)
			identity, err := resolver.Resolve(r.Context(), sessionID, bearerToken)
			if err != nil {
				logger.Error("invalid credentials", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired credentials"))
				return
			}
			if identity == nil {
				logger.Error("missing credentials")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing credentials"))
				return
			}
			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
