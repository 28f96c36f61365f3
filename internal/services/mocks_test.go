package services

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/fleettrack/backend/internal/models"
)

type mockAttendanceStore struct {
	mock.Mock
}

func (m *mockAttendanceStore) FindActive(ctx context.Context, userID string) (*models.AttendanceRecord, error) {
	args := m.Called(ctx, userID)
	if rec := args.Get(0); rec != nil {
		return rec.(*models.AttendanceRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAttendanceStore) FindActiveBetween(ctx context.Context, userID string, from, to time.Time) (*models.AttendanceRecord, error) {
	args := m.Called(ctx, userID, from, to)
	if rec := args.Get(0); rec != nil {
		return rec.(*models.AttendanceRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockAttendanceStore) Insert(ctx context.Context, rec *models.AttendanceRecord) (string, error) {
	args := m.Called(ctx, rec)
	return args.String(0), args.Error(1)
}

func (m *mockAttendanceStore) Complete(ctx context.Context, id string, upd models.CheckOutUpdate) error {
	args := m.Called(ctx, id, upd)
	return args.Error(0)
}

func (m *mockAttendanceStore) ListByCheckIn(ctx context.Context, userID string, from, to time.Time, limit int) ([]models.AttendanceRecord, error) {
	args := m.Called(ctx, userID, from, to, limit)
	if recs := args.Get(0); recs != nil {
		return recs.([]models.AttendanceRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockLocationStore struct {
	mock.Mock
}

func (m *mockLocationStore) InsertSample(ctx context.Context, sample *models.LocationSample) error {
	args := m.Called(ctx, sample)
	return args.Error(0)
}

func (m *mockLocationStore) InsertBatch(ctx context.Context, samples []models.LocationSample) error {
	args := m.Called(ctx, samples)
	return args.Error(0)
}

func (m *mockLocationStore) Query(ctx context.Context, userID string, from, to time.Time) ([]models.LocationSample, error) {
	args := m.Called(ctx, userID, from, to)
	if samples := args.Get(0); samples != nil {
		return samples.([]models.LocationSample), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLocationStore) Count(ctx context.Context, userID string, from, to time.Time) (int, error) {
	args := m.Called(ctx, userID, from, to)
	return args.Int(0), args.Error(1)
}

func (m *mockLocationStore) Latest(ctx context.Context, userID string) (*models.LocationSample, error) {
	args := m.Called(ctx, userID)
	if sample := args.Get(0); sample != nil {
		return sample.(*models.LocationSample), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockTelemetryStore struct {
	mock.Mock
}

func (m *mockTelemetryStore) InsertViolation(ctx context.Context, v *models.SpeedViolation) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *mockTelemetryStore) VehicleSessions(ctx context.Context, userID string, from, to time.Time) ([]models.VehicleSession, error) {
	args := m.Called(ctx, userID, from, to)
	if sessions := args.Get(0); sessions != nil {
		return sessions.([]models.VehicleSession), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockTelemetryStore) CountViolations(ctx context.Context, userID string, from, to time.Time) (int, error) {
	args := m.Called(ctx, userID, from, to)
	return args.Int(0), args.Error(1)
}

type mockReportStore struct {
	mock.Mock
}

func (m *mockReportStore) UpsertDaily(ctx context.Context, report *models.DailyReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

type mockPaymentStore struct {
	mock.Mock
}

func (m *mockPaymentStore) InsertPayment(ctx context.Context, p *models.Payment) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockPaymentStore) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	args := m.Called(ctx, id)
	if p := args.Get(0); p != nil {
		return p.(*models.Payment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPaymentStore) UpdatePaymentStatus(ctx context.Context, id, status string, settledAt *time.Time) error {
	args := m.Called(ctx, id, status, settledAt)
	return args.Error(0)
}

func (m *mockPaymentStore) ListPaymentsByStatus(ctx context.Context, status string, limit int) ([]models.Payment, error) {
	args := m.Called(ctx, status, limit)
	if payments := args.Get(0); payments != nil {
		return payments.([]models.Payment), args.Error(1)
	}
	return nil, args.Error(1)
}
