package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/fleettrack/backend/internal/models"
)

func newTestReportService(attendance *mockAttendanceStore, locations *mockLocationStore, telemetry *mockTelemetryStore, reports *mockReportStore, now time.Time) *ReportService {
	s := NewReportService(attendance, locations, telemetry, reports, testTrackingConfig())
	s.now = func() time.Time { return now }
	return s
}

func TestReportService_GenerateDaily(t *testing.T) {
	day := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)
	dayStart := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	t.Run("aggregates all sections", func(t *testing.T) {
		attendance := new(mockAttendanceStore)
		locations := new(mockLocationStore)
		telemetry := new(mockTelemetryStore)
		reports := new(mockReportStore)
		service := newTestReportService(attendance, locations, telemetry, reports, day)

		duration := int64(8 * 3600)
		distance := 42.5
		attendance.On("ListByCheckIn", mock.Anything, "user1", dayStart, dayEnd, 100).
			Return([]models.AttendanceRecord{
				{ID: "att1", WorkDuration: &duration, TotalDistance: &distance,
					CheckOutTime: ptr(dayStart.Add(17 * time.Hour))},
			}, nil)
		locations.On("Count", mock.Anything, "user1", dayStart, dayEnd).Return(250, nil)
		telemetry.On("VehicleSessions", mock.Anything, "user1", dayStart, dayEnd).
			Return([]models.VehicleSession{{ID: "vs1", TotalDistance: 12.5}}, nil)
		telemetry.On("CountViolations", mock.Anything, "user1", dayStart, dayEnd).Return(2, nil)
		reports.On("UpsertDaily", mock.Anything, mock.AnythingOfType("*models.DailyReport")).
			Return(nil)

		report, err := service.GenerateDaily(context.Background(), "user1", day, nil)
		assert.NoError(t, err)
		assert.Equal(t, "2024-06-01", report.Date)
		assert.Equal(t, 1, report.Attendance.CheckInCount)
		assert.Equal(t, 1, report.Attendance.CheckOutCount)
		assert.Equal(t, 8.0, report.Attendance.TotalWorkHours)
		assert.Equal(t, 250, report.Location.PointCount)
		assert.Equal(t, 42.5, report.Location.TotalDistance)
		assert.Equal(t, 1, report.Vehicle.SessionCount)
		assert.Equal(t, 12.5, report.Vehicle.TotalDistance)
		assert.Equal(t, 2, report.Vehicle.SpeedViolations)
		assert.Equal(t, 55.0, report.Summary.TotalDistance)
		assert.Equal(t, 8.0, report.Summary.TotalWorkHours)
		reports.AssertExpectations(t)
	})

	t.Run("empty day produces zeroed report", func(t *testing.T) {
		attendance := new(mockAttendanceStore)
		locations := new(mockLocationStore)
		telemetry := new(mockTelemetryStore)
		reports := new(mockReportStore)
		service := newTestReportService(attendance, locations, telemetry, reports, day)

		attendance.On("ListByCheckIn", mock.Anything, "user1", dayStart, dayEnd, 100).
			Return([]models.AttendanceRecord{}, nil)
		locations.On("Count", mock.Anything, "user1", dayStart, dayEnd).Return(0, nil)
		telemetry.On("VehicleSessions", mock.Anything, "user1", dayStart, dayEnd).
			Return([]models.VehicleSession{}, nil)
		telemetry.On("CountViolations", mock.Anything, "user1", dayStart, dayEnd).Return(0, nil)
		reports.On("UpsertDaily", mock.Anything, mock.Anything).Return(nil)

		report, err := service.GenerateDaily(context.Background(), "user1", day, nil)
		assert.NoError(t, err)
		assert.Equal(t, 0, report.Attendance.CheckInCount)
		assert.Equal(t, 0.0, report.Summary.TotalDistance)
	})

	t.Run("open session counts as check-in only", func(t *testing.T) {
		attendance := new(mockAttendanceStore)
		locations := new(mockLocationStore)
		telemetry := new(mockTelemetryStore)
		reports := new(mockReportStore)
		service := newTestReportService(attendance, locations, telemetry, reports, day)

		attendance.On("ListByCheckIn", mock.Anything, "user1", dayStart, dayEnd, 100).
			Return([]models.AttendanceRecord{{ID: "att1", IsActive: true}}, nil)
		locations.On("Count", mock.Anything, "user1", dayStart, dayEnd).Return(10, nil)
		telemetry.On("VehicleSessions", mock.Anything, "user1", dayStart, dayEnd).
			Return([]models.VehicleSession{}, nil)
		telemetry.On("CountViolations", mock.Anything, "user1", dayStart, dayEnd).Return(0, nil)
		reports.On("UpsertDaily", mock.Anything, mock.Anything).Return(nil)

		report, err := service.GenerateDaily(context.Background(), "user1", day, nil)
		assert.NoError(t, err)
		assert.Equal(t, 1, report.Attendance.CheckInCount)
		assert.Equal(t, 0, report.Attendance.CheckOutCount)
	})

	t.Run("store failure propagates", func(t *testing.T) {
		attendance := new(mockAttendanceStore)
		service := newTestReportService(attendance, new(mockLocationStore),
			new(mockTelemetryStore), new(mockReportStore), day)

		attendance.On("ListByCheckIn", mock.Anything, "user1", dayStart, dayEnd, 100).
			Return(nil, assert.AnError)

		_, err := service.GenerateDaily(context.Background(), "user1", day, nil)
		assert.Error(t, err)
	})
}

func TestReportService_GetDailyReportHandler(t *testing.T) {
	day := time.Date(2024, 6, 1, 15, 0, 0, 0, time.UTC)

	t.Run("invalid date", func(t *testing.T) {
		service := newTestReportService(new(mockAttendanceStore), new(mockLocationStore),
			new(mockTelemetryStore), new(mockReportStore), day)

		r := withUserID(httptest.NewRequest("GET", "/reports/daily?date=June-1", nil), "user1")
		w := httptest.NewRecorder()
		service.GetDailyReport(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("explicit date", func(t *testing.T) {
		attendance := new(mockAttendanceStore)
		locations := new(mockLocationStore)
		telemetry := new(mockTelemetryStore)
		reports := new(mockReportStore)
		service := newTestReportService(attendance, locations, telemetry, reports, day)

		wantStart := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
		wantEnd := wantStart.AddDate(0, 0, 1)
		attendance.On("ListByCheckIn", mock.Anything, "user1", wantStart, wantEnd, 100).
			Return([]models.AttendanceRecord{}, nil)
		locations.On("Count", mock.Anything, "user1", wantStart, wantEnd).Return(0, nil)
		telemetry.On("VehicleSessions", mock.Anything, "user1", wantStart, wantEnd).
			Return([]models.VehicleSession{}, nil)
		telemetry.On("CountViolations", mock.Anything, "user1", wantStart, wantEnd).Return(0, nil)
		reports.On("UpsertDaily", mock.Anything, mock.Anything).Return(nil)

		r := withUserID(httptest.NewRequest("GET", "/reports/daily?date=2024-05-20", nil), "user1")
		w := httptest.NewRecorder()
		service.GetDailyReport(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var report models.DailyReport
		json.Unmarshal(w.Body.Bytes(), &report)
		assert.Equal(t, "2024-05-20", report.Date)
	})
}
