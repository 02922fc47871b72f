// Package identity разрешает учётные данные запроса в единую identity.
//
// Поддерживаются два канала: непрозрачная сессия первой стороны (cookie,
// проверяется по хранилищу сессий) и самодостаточный подписанный bearer-токен.
// Сессия проверяется первой; при её отсутствии или невалидности пробуется
// токен. Отсутствие обоих — не ошибка, возвращается анонимная identity.
package identity

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/course-marketplace/internal/lib/jwt"
	"github.com/magabrotheeeer/course-marketplace/internal/lib/sl"
	"github.com/magabrotheeeer/course-marketplace/internal/models"
	"github.com/magabrotheeeer/course-marketplace/internal/services/serverrors"
)

// SessionStore описывает хранилище сессий первой стороны.
type SessionStore interface {
	Get(ctx context.Context, id string) (*models.Identity, bool, error)
}

// UserRepository перечитывает пользователя из хранилища: роли в токене
// доверять нельзя, после смены роли токен остаётся на руках.
type UserRepository interface {
	GetUser(ctx context.Context, userUID string) (*models.User, error)
}

// Resolver разрешает учётные данные запроса по упорядоченной цепочке каналов.
type Resolver struct {
	sessions SessionStore
	users    UserRepository
	jwtMaker jwt.Maker
	log      *slog.Logger
}

// New создает новый Resolver.
func New(sessions SessionStore, users UserRepository, jwtMaker jwt.Maker, log *slog.Logger) *Resolver {
	return &Resolver{
		sessions: sessions,
		users:    users,
		jwtMaker: jwtMaker,
		log:      log,
	}
}

// Resolve возвращает identity вызывающего или nil для анонима.
//
// Ошибка возвращается только для предъявленного, но повреждённого или
// просроченного токена (serverrors.ErrUnauthenticated) и для сбоев
// хранилища; пустые учётные данные дают nil, nil.
func (r *Resolver) Resolve(ctx context.Context, sessionID, bearerToken string) (*models.Identity, error) {
	const op = "identity.Resolve"

	if sessionID != "" {
		identity, found, err := r.sessions.Get(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if found {
			return identity, nil
		}
		// сессия истекла или удалена, пробуем второй канал
		r.log.Debug("session not found, falling back to bearer token")
	}

	if bearerToken == "" {
		return nil, nil
	}

	claims, err := r.jwtMaker.ParseToken(bearerToken)
	if err != nil {
		r.log.Warn("rejected bearer token", sl.Err(err))
		return nil, serverrors.ErrUnauthenticated
	}

	user, err := r.users.GetUser(ctx, claims.UserUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &models.Identity{
		UserUID:  user.UID,
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
	}, nil
}
