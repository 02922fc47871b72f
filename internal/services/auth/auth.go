// Package auth содержит логику бизнес-уровня для регистрации и входа пользователей.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/course-marketplace/internal/lib/jwt"
	"github.com/magabrotheeeer/course-marketplace/internal/lib/password"
	"github.com/magabrotheeeer/course-marketplace/internal/models"
)

// UserRepository описывает контракт для работы с пользователями в базе данных.
type UserRepository interface {
	// RegisterUser сохраняет нового пользователя и возвращает его UID.
	RegisterUser(ctx context.Context, user models.User) (string, error)

	// GetUserByUsername возвращает пользователя по имени или ошибку, если не найден.
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

// SessionStore создает и удаляет сессии первой стороны.
type SessionStore interface {
	Create(ctx context.Context, identity models.Identity) (string, error)
	Destroy(ctx context.Context, id string) error
}

// AuthService отвечает за регистрацию и вход. При входе пользователь
// получает оба вида учётных данных: cookie-сессию и bearer-токен.
type AuthService struct {
	users    UserRepository
	sessions SessionStore
	jwtMaker jwt.Maker
}

// New создает новый экземпляр AuthService.
func New(users UserRepository, sessions SessionStore, jwtMaker jwt.Maker) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		jwtMaker: jwtMaker,
	}
}

// Register создает нового пользователя с хэшированием пароля и дефолтной ролью student.
func (s *AuthService) Register(ctx context.Context, email, username, rawPassword string) (string, error) {
	hashed, err := password.GetHash(rawPassword)
	if err != nil {
		return "", err
	}
	user := models.User{
		Email:        email,
		Username:     username,
		PasswordHash: hashed,
		Role:         models.RoleStudent,
	}
	return s.users.RegisterUser(ctx, user)
}

// Login проверяет пароль пользователя, создаёт сессию и выпускает JWT.
func (s *AuthService) Login(ctx context.Context, username, rawPassword string) (sessionID, token string, err error) {
	const op = "auth.Login"
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return "", "", errors.New("invalid credentials")
	}

	identity := models.Identity{
		UserUID:  user.UID,
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
	}
	sessionID, err = s.sessions.Create(ctx, identity)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}
	token, err = s.jwtMaker.GenerateToken(user.UID, user.Email, user.Role)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}
	return sessionID, token, nil
}

// Logout удаляет сессию пользователя.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Destroy(ctx, sessionID)
}
