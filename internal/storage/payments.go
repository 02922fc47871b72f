package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/course-marketplace/internal/models"
)

// CreatePayment вставляет новый платёж в статусе PENDING и возвращает его ID.
// Уникальность external_reference гарантирует базу: повторная вставка того же
// reference завершается ошибкой уникального ограничения.
func (s *Storage) CreatePayment(ctx context.Context, p models.Payment) (int, error) {
	const op = "storage.CreatePayment"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	metadata := p.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	rawMetadata, err := json.Marshal(metadata)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO payments (user_uid, course_id, amount, currency, status, external_reference, metadata)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)
			  RETURNING id`
	var newID int
	err = s.DB.QueryRowContext(ctx, query,
		p.UserUID, p.CourseID, p.Amount, p.Currency, models.PaymentStatusPending,
		p.ExternalReference, rawMetadata).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// CompletePaymentByReference переводит платёж PENDING -> COMPLETED по
// external_reference. Условие status = 'PENDING' в WHERE делает переход
// compare-and-set: повторный вызов с тем же reference не меняет ни одной
// строки, терминальный статус неизменен. Возвращает количество
// затронутых строк.
func (s *Storage) CompletePaymentByReference(ctx context.Context, externalReference string) (int, error) {
	const op = "storage.CompletePaymentByReference"
	return s.casPaymentStatus(ctx, op, externalReference, models.PaymentStatusCompleted)
}

// FailPaymentByReference переводит платёж PENDING -> FAILED по external_reference.
func (s *Storage) FailPaymentByReference(ctx context.Context, externalReference string) (int, error) {
	const op = "storage.FailPaymentByReference"
	return s.casPaymentStatus(ctx, op, externalReference, models.PaymentStatusFailed)
}

func (s *Storage) casPaymentStatus(ctx context.Context, op, externalReference, status string) (int, error) {
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE payments
			  SET status = $1
			  WHERE external_reference = $2
			    AND status = 'PENDING'`
	res, err := s.DB.ExecContext(ctx, query, status, externalReference)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

const paymentColumns = `id, user_uid, course_id, amount, currency, status, external_reference, metadata, created_at`

func scanPayment(row interface{ Scan(dest ...any) error }) (*models.Payment, error) {
	var p models.Payment
	var courseID sql.NullInt64
	var rawMetadata []byte
	if err := row.Scan(&p.ID, &p.UserUID, &courseID, &p.Amount, &p.Currency,
		&p.Status, &p.ExternalReference, &rawMetadata, &p.CreatedAt); err != nil {
		return nil, err
	}
	if courseID.Valid {
		id := int(courseID.Int64)
		p.CourseID = &id
	}
	if len(rawMetadata) > 0 {
		if err := json.Unmarshal(rawMetadata, &p.Metadata); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// ListPaymentsByCorrelation возвращает все платежи, external_reference которых
// начинается с correlationID — все позиции одной корзины.
func (s *Storage) ListPaymentsByCorrelation(ctx context.Context, correlationID string) ([]*models.Payment, error) {
	const op = "storage.ListPaymentsByCorrelation"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + paymentColumns + `
			  FROM payments
			  WHERE external_reference LIKE $1 || ':%'
			  ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query, correlationID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ListPaymentsByUser возвращает платежи пользователя с пагинацией.
func (s *Storage) ListPaymentsByUser(ctx context.Context, userUID string, limit, offset int) ([]*models.Payment, error) {
	const op = "storage.ListPaymentsByUser"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT ` + paymentColumns + `
			  FROM payments
			  WHERE user_uid = $1
			  ORDER BY id
			  LIMIT $2 OFFSET $3`
	rows, err := s.DB.QueryContext(ctx, query, userUID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CreateEnrollment создаёт запись на курс. Конфликт по уникальной паре
// (user_uid, course_id) не ошибка: вставка с ON CONFLICT DO NOTHING молча
// пропускается, после чего существующая запись перечитывается. Так гонка
// дублирующихся вебхуков разрешается базой, а не приложением.
func (s *Storage) CreateEnrollment(ctx context.Context, userUID string, courseID int) (*models.Enrollment, error) {
	const op = "storage.CreateEnrollment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO enrollments (user_uid, course_id)
			  VALUES ($1, $2)
			  ON CONFLICT (user_uid, course_id) DO NOTHING`
	if _, err := s.DB.ExecContext(ctx, query, userUID, courseID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.GetEnrollment(ctx, userUID, courseID)
}

// GetEnrollment возвращает запись пользователя на курс или nil, если её нет.
func (s *Storage) GetEnrollment(ctx context.Context, userUID string, courseID int) (*models.Enrollment, error) {
	const op = "storage.GetEnrollment"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, course_id, created_at
			  FROM enrollments
			  WHERE user_uid = $1 AND course_id = $2`
	var e models.Enrollment
	row := s.DB.QueryRowContext(ctx, query, userUID, courseID)
	if err := row.Scan(&e.ID, &e.UserUID, &e.CourseID, &e.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &e, nil
}
