package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/magabrotheeeer/course-marketplace/internal/models"
)

// RegisterUser сохраняет нового пользователя в базу данных и возвращает его UID.
func (s *Storage) RegisterUser(ctx context.Context, user models.User) (string, error) {
	const op = "storage.RegisterUser"
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var newUID string
	query := `INSERT INTO users (email, username, password_hash, role)
			  VALUES ($1, $2, $3, $4)
			  RETURNING uid;`
	if err := s.DB.QueryRowContext(ctx, query,
		user.Email, user.Username, user.PasswordHash, user.Role).Scan(&newUID); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return newUID, nil
}

const userColumns = `uid, email, username, password_hash, role, subscription_plan,
			      subscription_start_date, subscription_end_date, subscription_cancelled`

func scanUser(row interface{ Scan(dest ...any) error }) (*models.User, error) {
	u := &models.User{}
	var passwordHash, plan sql.NullString
	var startDate, endDate sql.NullTime
	if err := row.Scan(&u.UID, &u.Email, &u.Username, &passwordHash, &u.Role,
		&plan, &startDate, &endDate, &u.SubscriptionCancelled); err != nil {
		return nil, err
	}
	if passwordHash.Valid {
		u.PasswordHash = passwordHash.String
	}
	if plan.Valid {
		u.SubscriptionPlan = &plan.String
	}
	if startDate.Valid {
		u.SubscriptionStartDate = &startDate.Time
	}
	if endDate.Valid {
		u.SubscriptionEndDate = &endDate.Time
	}
	return u, nil
}

// GetUserByUsername возвращает пользователя по его username.
func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.GetUserByUsername"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// GetUser возвращает пользователя по его UID.
func (s *Storage) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	const op = "storage.GetUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE uid = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, userUID))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// ActivateSubscription записывает поля подписки пользователя. Повторное
// оформление перезаписывает план и даты и снимает флаг отмены.
func (s *Storage) ActivateSubscription(ctx context.Context, userUID, plan string, startDate, endDate time.Time) error {
	const op = "storage.ActivateSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET subscription_plan = $1,
			      subscription_start_date = $2,
			      subscription_end_date = $3,
			      subscription_cancelled = FALSE
			  WHERE uid = $4`
	if _, err := s.DB.ExecContext(ctx, query, plan, startDate, endDate, userUID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CancelSubscription помечает подписку отменённой. Срабатывает только при
// непустой дате окончания: доступ сохраняется до конца оплаченного периода.
// Возвращает количество изменённых строк.
func (s *Storage) CancelSubscription(ctx context.Context, userUID string) (int, error) {
	const op = "storage.CancelSubscription"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE users
			  SET subscription_cancelled = TRUE
			  WHERE uid = $1
			    AND subscription_end_date IS NOT NULL`
	res, err := s.DB.ExecContext(ctx, query, userUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// FindLapsedSubscribers возвращает UID пользователей с отменённой и уже
// истёкшей подпиской, ограничивая выборку размером limit.
func (s *Storage) FindLapsedSubscribers(ctx context.Context, now time.Time, limit int) ([]string, error) {
	const op = "storage.FindLapsedSubscribers"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT uid
			  FROM users
			  WHERE subscription_cancelled = TRUE
			    AND subscription_end_date < $1
			  ORDER BY subscription_end_date
			  LIMIT $2`
	rows, err := s.DB.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, uid)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// RevokeLapsedSubscriber в одной транзакции удаляет прогресс пользователя и
// очищает поля подписки. Предикат отбора повторён в WHERE: если условие уже
// не выполняется (другой проход успел раньше), транзакция откатывается и
// метод возвращает 0 удалённых строк прогресса и признак false.
func (s *Storage) RevokeLapsedSubscriber(ctx context.Context, userUID string, now time.Time) (int, bool, error) {
	const op = "storage.RevokeLapsedSubscriber"
	select {
	case <-ctx.Done():
		return 0, false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `UPDATE users
			  SET subscription_plan = NULL,
			      subscription_start_date = NULL,
			      subscription_end_date = NULL,
			      subscription_cancelled = FALSE
			  WHERE uid = $1
			    AND subscription_cancelled = TRUE
			    AND subscription_end_date < $2`, userUID, now)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	cleared, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	if cleared == 0 {
		return 0, false, nil
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM progress WHERE user_uid = $1`, userUID)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	purged, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("%s: %w", op, err)
	}
	return int(purged), true, nil
}
