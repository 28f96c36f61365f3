package services

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/fleettrack/backend/internal/config"
	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/internal/storage"
)

// ReportService builds the combined per-user daily report from the
// attendance, location and vehicle stores.
type ReportService struct {
	attendance storage.AttendanceStore
	locations  storage.LocationStore
	telemetry  storage.TelemetryStore
	reports    storage.ReportStore
	cfg        *config.TrackingConfig
	now        func() time.Time
}

func NewReportService(attendance storage.AttendanceStore, locations storage.LocationStore, telemetry storage.TelemetryStore, reports storage.ReportStore, cfg *config.TrackingConfig) *ReportService {
	return &ReportService{
		attendance: attendance,
		locations:  locations,
		telemetry:  telemetry,
		reports:    reports,
		cfg:        cfg,
		now:        time.Now,
	}
}

// GenerateDaily aggregates one local calendar day for one user and
// persists the result, replacing any earlier report for the same day.
func (s *ReportService) GenerateDaily(ctx context.Context, userID string, day time.Time, groupID *string) (*models.DailyReport, error) {
	day = day.In(s.cfg.Timezone)
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.cfg.Timezone)
	dayEnd := dayStart.AddDate(0, 0, 1)

	report := &models.DailyReport{
		UserID:  userID,
		GroupID: groupID,
		Date:    dayStart.Format("2006-01-02"),
	}

	records, err := s.attendance.ListByCheckIn(ctx, userID, dayStart, dayEnd, s.cfg.HistoryMaxLimit)
	if err != nil {
		return nil, err
	}
	report.Attendance.Attendances = records
	for _, rec := range records {
		report.Attendance.CheckInCount++
		if rec.CheckOutTime != nil {
			report.Attendance.CheckOutCount++
		}
		if rec.WorkDuration != nil {
			report.Attendance.TotalWorkHours += float64(*rec.WorkDuration) / 3600
		}
		if rec.TotalDistance != nil {
			report.Location.TotalDistance += *rec.TotalDistance
		}
	}
	report.Attendance.TotalWorkHours = round2(report.Attendance.TotalWorkHours)

	count, err := s.locations.Count(ctx, userID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	report.Location.PointCount = count
	report.Location.TotalDistance = round2(report.Location.TotalDistance)

	sessions, err := s.telemetry.VehicleSessions(ctx, userID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	report.Vehicle.SessionCount = len(sessions)
	for _, sess := range sessions {
		report.Vehicle.TotalDistance += sess.TotalDistance
	}
	report.Vehicle.TotalDistance = round2(report.Vehicle.TotalDistance)

	violations, err := s.telemetry.CountViolations(ctx, userID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	report.Vehicle.SpeedViolations = violations

	report.Summary = models.ReportTotals{
		TotalDistance:  round2(report.Location.TotalDistance + report.Vehicle.TotalDistance),
		TotalWorkHours: report.Attendance.TotalWorkHours,
	}

	if err := s.reports.UpsertDaily(ctx, report); err != nil {
		return nil, err
	}

	log.Printf("[REPORTS] Daily report generated for user %s on %s (%d sessions, %.2f km)",
		userID, report.Date, report.Attendance.CheckInCount, report.Summary.TotalDistance)
	return report, nil
}

// GetDailyReport builds the day's report on demand
// @Summary Daily report
// @Description Aggregate attendance, locations and vehicle telemetry for one local day
// @Tags reports
// @Produce json
// @Security BearerAuth
// @Param date query string false "Report day (YYYY-MM-DD, default today)"
// @Param groupId query string false "Group to stamp on the report"
// @Success 200 {object} models.DailyReport
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /reports/daily [get]
func (s *ReportService) GetDailyReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorCode(w, "Unauthorized", "AUTH_REQUIRED", http.StatusUnauthorized)
		return
	}

	day := s.now().In(s.cfg.Timezone)
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := time.ParseInLocation("2006-01-02", v, s.cfg.Timezone)
		if err != nil {
			SendErrorResponse(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest, nil)
			return
		}
		day = parsed
	}

	var groupID *string
	if v := r.URL.Query().Get("groupId"); v != "" {
		groupID = &v
	}

	report, err := s.GenerateDaily(r.Context(), userID, day, groupID)
	if err != nil {
		log.Printf("[REPORTS] Failed to generate daily report for user %s: %v", userID, err)
		SendErrorCode(w, "Failed to generate report", "REPORT_ERROR", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
