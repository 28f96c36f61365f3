// Package storage defines the persistence boundary for the tracking
// services. Two backends implement it: Postgres and a single-file JSON
// store used when no database is available. The backend is chosen once
// at startup; business logic never branches on it.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fleettrack/backend/internal/models"
	"github.com/spf13/viper"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("storage: not found")

// AttendanceStore persists work sessions.
type AttendanceStore interface {
	// FindActive returns the user's open session, or ErrNotFound.
	FindActive(ctx context.Context, userID string) (*models.AttendanceRecord, error)
	// FindActiveBetween returns the user's open session whose check-in
	// falls in [from, to), or ErrNotFound.
	FindActiveBetween(ctx context.Context, userID string, from, to time.Time) (*models.AttendanceRecord, error)
	// Insert stores a new record and returns its id.
	Insert(ctx context.Context, rec *models.AttendanceRecord) (string, error)
	// Complete applies the one-time check-out mutation.
	Complete(ctx context.Context, id string, upd models.CheckOutUpdate) error
	// ListByCheckIn returns records with check-in in [from, to), newest first.
	ListByCheckIn(ctx context.Context, userID string, from, to time.Time, limit int) ([]models.AttendanceRecord, error)
}

// LocationStore persists raw GPS samples (append-only).
type LocationStore interface {
	InsertSample(ctx context.Context, sample *models.LocationSample) error
	InsertBatch(ctx context.Context, samples []models.LocationSample) error
	// Query returns samples in [from, to] in ascending timestamp order.
	Query(ctx context.Context, userID string, from, to time.Time) ([]models.LocationSample, error)
	Count(ctx context.Context, userID string, from, to time.Time) (int, error)
	// Latest returns the most recent sample, or ErrNotFound.
	Latest(ctx context.Context, userID string) (*models.LocationSample, error)
}

// TelemetryStore persists vehicle sessions and speed violations.
type TelemetryStore interface {
	InsertViolation(ctx context.Context, v *models.SpeedViolation) error
	VehicleSessions(ctx context.Context, userID string, from, to time.Time) ([]models.VehicleSession, error)
	CountViolations(ctx context.Context, userID string, from, to time.Time) (int, error)
}

// ReportStore persists generated daily reports.
type ReportStore interface {
	// UpsertDaily replaces any existing report for the same user and day.
	UpsertDaily(ctx context.Context, report *models.DailyReport) error
}

// PaymentStore persists payment intents.
type PaymentStore interface {
	InsertPayment(ctx context.Context, p *models.Payment) error
	GetPayment(ctx context.Context, id string) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, id, status string, settledAt *time.Time) error
	ListPaymentsByStatus(ctx context.Context, status string, limit int) ([]models.Payment, error)
}

// Stores bundles every store behind one backend.
type Stores struct {
	Attendance AttendanceStore
	Locations  LocationStore
	Telemetry  TelemetryStore
	Reports    ReportStore
	Payments   PaymentStore
}

// Open selects the backend from config ("storage.backend": postgres or
// jsonfile) and wires every store to it.
func Open(db *sql.DB) (*Stores, error) {
	viper.SetDefault("storage.backend", "postgres")
	viper.SetDefault("storage.json_path", "./data/fleettrack.json")

	switch backend := viper.GetString("storage.backend"); backend {
	case "postgres":
		pg := NewPostgres(db)
		return &Stores{
			Attendance: pg,
			Locations:  pg,
			Telemetry:  pg,
			Reports:    pg,
			Payments:   pg,
		}, nil
	case "jsonfile":
		jf, err := OpenJSONFile(viper.GetString("storage.json_path"))
		if err != nil {
			return nil, fmt.Errorf("failed to open json store: %w", err)
		}
		return &Stores{
			Attendance: jf,
			Locations:  jf,
			Telemetry:  jf,
			Reports:    jf,
			Payments:   jf,
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
