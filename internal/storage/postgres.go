package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fleettrack/backend/internal/models"
	"github.com/google/uuid"
)

// Postgres implements every store interface over database/sql with lib/pq.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const attendanceColumns = `id, user_id, device_id, group_id, check_in_time, check_out_time,
	check_in_location, check_out_location, work_duration, total_distance,
	status, is_active, notes, created_at, updated_at`

func (p *Postgres) FindActive(ctx context.Context, userID string) (*models.AttendanceRecord, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance
		WHERE user_id = $1 AND is_active = true AND check_out_time IS NULL
		ORDER BY check_in_time DESC LIMIT 1`, userID)
	return scanAttendance(row)
}

func (p *Postgres) FindActiveBetween(ctx context.Context, userID string, from, to time.Time) (*models.AttendanceRecord, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance
		WHERE user_id = $1 AND is_active = true AND check_out_time IS NULL
		  AND check_in_time >= $2 AND check_in_time < $3
		ORDER BY check_in_time DESC LIMIT 1`, userID, from, to)
	return scanAttendance(row)
}

func (p *Postgres) Insert(ctx context.Context, rec *models.AttendanceRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO attendance (id, user_id, device_id, group_id, check_in_time, check_in_location,
			status, is_active, notes, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())`,
		rec.ID, rec.UserID, rec.DeviceID, rec.GroupID, rec.CheckInTime, rec.CheckInLocation,
		rec.Status, rec.IsActive, rec.Notes, rec.Metadata)
	if err != nil {
		return "", fmt.Errorf("failed to insert attendance: %w", err)
	}
	return rec.ID, nil
}

func (p *Postgres) Complete(ctx context.Context, id string, upd models.CheckOutUpdate) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE attendance
		SET check_out_time = $1, check_out_location = $2, work_duration = $3,
		    total_distance = $4, status = $5, is_active = false, notes = COALESCE($6, notes),
		    updated_at = NOW()
		WHERE id = $7`,
		upd.CheckOutTime, upd.CheckOutLocation, upd.WorkDuration,
		upd.TotalDistance, models.AttendanceStatusCheckedOut, upd.Notes, id)
	if err != nil {
		return fmt.Errorf("failed to complete attendance: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListByCheckIn(ctx context.Context, userID string, from, to time.Time, limit int) ([]models.AttendanceRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+attendanceColumns+`
		FROM attendance
		WHERE user_id = $1 AND check_in_time >= $2 AND check_in_time < $3
		ORDER BY check_in_time DESC LIMIT $4`, userID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.AttendanceRecord
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAttendance(row rowScanner) (*models.AttendanceRecord, error) {
	var rec models.AttendanceRecord
	var checkIn, checkOut sql.NullString // locations as raw JSONB
	err := row.Scan(&rec.ID, &rec.UserID, &rec.DeviceID, &rec.GroupID,
		&rec.CheckInTime, &rec.CheckOutTime, &checkIn, &checkOut,
		&rec.WorkDuration, &rec.TotalDistance, &rec.Status, &rec.IsActive,
		&rec.Notes, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if checkIn.Valid {
		rec.CheckInLocation = &models.Location{}
		if err := json.Unmarshal([]byte(checkIn.String), rec.CheckInLocation); err != nil {
			return nil, err
		}
	}
	if checkOut.Valid {
		rec.CheckOutLocation = &models.Location{}
		if err := json.Unmarshal([]byte(checkOut.String), rec.CheckOutLocation); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

func (p *Postgres) InsertSample(ctx context.Context, sample *models.LocationSample) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO location_points (user_id, device_id, latitude, longitude, accuracy, speed, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sample.UserID, sample.DeviceID, sample.Latitude, sample.Longitude,
		sample.Accuracy, sample.Speed, sample.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert location sample: %w", err)
	}
	return nil
}

func (p *Postgres) InsertBatch(ctx context.Context, samples []models.LocationSample) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range samples {
		s := &samples[i]
		_, err := tx.ExecContext(ctx, `
			INSERT INTO location_points (user_id, device_id, latitude, longitude, accuracy, speed, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			s.UserID, s.DeviceID, s.Latitude, s.Longitude, s.Accuracy, s.Speed, s.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to insert sample %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (p *Postgres) Query(ctx context.Context, userID string, from, to time.Time) ([]models.LocationSample, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, device_id, latitude, longitude, accuracy, speed, timestamp
		FROM location_points
		WHERE user_id = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp ASC`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []models.LocationSample
	for rows.Next() {
		var s models.LocationSample
		if err := rows.Scan(&s.ID, &s.UserID, &s.DeviceID, &s.Latitude, &s.Longitude,
			&s.Accuracy, &s.Speed, &s.Timestamp); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

func (p *Postgres) Count(ctx context.Context, userID string, from, to time.Time) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM location_points
		WHERE user_id = $1 AND timestamp >= $2 AND timestamp < $3`,
		userID, from, to).Scan(&count)
	return count, err
}

func (p *Postgres) Latest(ctx context.Context, userID string) (*models.LocationSample, error) {
	var s models.LocationSample
	err := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, device_id, latitude, longitude, accuracy, speed, timestamp
		FROM location_points
		WHERE user_id = $1
		ORDER BY timestamp DESC LIMIT 1`, userID).
		Scan(&s.ID, &s.UserID, &s.DeviceID, &s.Latitude, &s.Longitude, &s.Accuracy, &s.Speed, &s.Timestamp)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (p *Postgres) InsertViolation(ctx context.Context, v *models.SpeedViolation) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO speed_violations (id, user_id, speed, speed_limit, latitude, longitude, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.UserID, v.Speed, v.Limit, v.Latitude, v.Longitude, v.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert speed violation: %w", err)
	}
	return nil
}

func (p *Postgres) VehicleSessions(ctx context.Context, userID string, from, to time.Time) ([]models.VehicleSession, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, started_at, ended_at, total_distance, max_speed
		FROM vehicle_sessions
		WHERE user_id = $1 AND started_at >= $2 AND started_at < $3
		ORDER BY started_at`, userID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.VehicleSession
	for rows.Next() {
		var v models.VehicleSession
		if err := rows.Scan(&v.ID, &v.UserID, &v.StartedAt, &v.EndedAt, &v.TotalDistance, &v.MaxSpeed); err != nil {
			return nil, err
		}
		sessions = append(sessions, v)
	}
	return sessions, rows.Err()
}

func (p *Postgres) CountViolations(ctx context.Context, userID string, from, to time.Time) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM speed_violations
		WHERE user_id = $1 AND timestamp >= $2 AND timestamp < $3`,
		userID, from, to).Scan(&count)
	return count, err
}

func (p *Postgres) UpsertDaily(ctx context.Context, report *models.DailyReport) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO daily_reports (id, user_id, group_id, report_date, total_work_hours, total_distance,
			check_in_count, check_out_count, location_points_count, vehicle_sessions_count,
			speed_violations_count, report_data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		ON CONFLICT (user_id, report_date)
		DO UPDATE SET report_data = $12, total_work_hours = $5, total_distance = $6,
			check_in_count = $7, check_out_count = $8, location_points_count = $9,
			vehicle_sessions_count = $10, speed_violations_count = $11, updated_at = NOW()`,
		report.ID, report.UserID, report.GroupID, report.Date,
		report.Summary.TotalWorkHours, report.Summary.TotalDistance,
		report.Attendance.CheckInCount, report.Attendance.CheckOutCount,
		report.Location.PointCount, report.Vehicle.SessionCount,
		report.Vehicle.SpeedViolations, data)
	if err != nil {
		return fmt.Errorf("failed to upsert daily report: %w", err)
	}
	return nil
}

func (p *Postgres) InsertPayment(ctx context.Context, pay *models.Payment) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payments (id, user_id, plan_id, reference_id, amount, currency,
			card_bank, card_network, card_last4, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())`,
		pay.ID, pay.UserID, pay.PlanID, pay.ReferenceID, pay.Amount, pay.Currency,
		pay.CardBank, pay.CardNetwork, pay.CardLast4, pay.Status)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (p *Postgres) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	var pay models.Payment
	err := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, plan_id, reference_id, amount, currency,
			card_bank, card_network, card_last4, status, created_at, updated_at, settled_at
		FROM payments WHERE id = $1`, id).
		Scan(&pay.ID, &pay.UserID, &pay.PlanID, &pay.ReferenceID, &pay.Amount, &pay.Currency,
			&pay.CardBank, &pay.CardNetwork, &pay.CardLast4, &pay.Status,
			&pay.CreatedAt, &pay.UpdatedAt, &pay.SettledAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pay, nil
}

func (p *Postgres) UpdatePaymentStatus(ctx context.Context, id, status string, settledAt *time.Time) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE payments SET status = $1, settled_at = $2, updated_at = NOW() WHERE id = $3`,
		status, settledAt, id)
	if err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListPaymentsByStatus(ctx context.Context, status string, limit int) ([]models.Payment, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, plan_id, reference_id, amount, currency,
			card_bank, card_network, card_last4, status, created_at, updated_at, settled_at
		FROM payments WHERE status = $1
		ORDER BY created_at ASC LIMIT $2`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var pay models.Payment
		if err := rows.Scan(&pay.ID, &pay.UserID, &pay.PlanID, &pay.ReferenceID, &pay.Amount,
			&pay.Currency, &pay.CardBank, &pay.CardNetwork, &pay.CardLast4, &pay.Status,
			&pay.CreatedAt, &pay.UpdatedAt, &pay.SettledAt); err != nil {
			return nil, err
		}
		payments = append(payments, pay)
	}
	return payments, rows.Err()
}
