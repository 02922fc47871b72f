// Package sessions реализует хранилище сессий первой стороны на Redis.
// Сессия — непрозрачный идентификатор в cookie, которому в Redis
// соответствует JSON с данными пользователя и TTL.
package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/course-marketplace/internal/config"
	"github.com/magabrotheeeer/course-marketplace/internal/models"
)

// Store инкапсулирует клиент Redis и время жизни сессий.
type Store struct {
	Db  *redis.Client
	ttl time.Duration
}

// InitServer подключается к Redis и возвращает хранилище сессий.
func InitServer(ctx context.Context, cfg config.RedisConnection, sessionTTL time.Duration) (*Store, error) {
	const op = "sessions.InitServer"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.AddressRedis,
		Password:     cfg.Password,
		DB:           cfg.DB,
		Username:     cfg.User,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.TimeoutRedis,
		WriteTimeout: cfg.TimeoutRedis,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Store{Db: db, ttl: sessionTTL}, nil
}

func sessionKey(id string) string {
	return "session:" + id
}

// Create сохраняет identity под новым идентификатором сессии и возвращает его.
func (s *Store) Create(ctx context.Context, identity models.Identity) (string, error) {
	const op = "sessions.Create"
	id := uuid.NewString()
	jsonData, err := json.Marshal(identity)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := s.Db.Set(ctx, sessionKey(id), jsonData, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// Get возвращает identity по идентификатору сессии.
// Отсутствующая или истёкшая сессия — не ошибка, возвращается found = false.
func (s *Store) Get(ctx context.Context, id string) (*models.Identity, bool, error) {
	const op = "sessions.Get"
	val, err := s.Db.Get(ctx, sessionKey(id)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	var identity models.Identity
	if err := json.Unmarshal([]byte(val), &identity); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return &identity, true, nil
}

// Destroy удаляет сессию по идентификатору.
func (s *Store) Destroy(ctx context.Context, id string) error {
	return s.Db.Del(ctx, sessionKey(id)).Err()
}
