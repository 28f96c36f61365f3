package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/fleettrack/backend/internal/apperror"
	"github.com/fleettrack/backend/internal/config"
	"github.com/fleettrack/backend/internal/geo"
	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/internal/storage"
)

// AttendanceService manages the per-user check-in/check-out session state
// machine and the metrics derived at check-out.
type AttendanceService struct {
	store     storage.AttendanceStore
	locations storage.LocationStore
	cfg       *config.TrackingConfig
	validator *ValidationHelper
	now       func() time.Time
}

func NewAttendanceService(store storage.AttendanceStore, locations storage.LocationStore, cfg *config.TrackingConfig) *AttendanceService {
	return &AttendanceService{
		store:     store,
		locations: locations,
		cfg:       cfg,
		validator: NewValidationHelper(),
		now:       time.Now,
	}
}

// RequestLocation uses pointers so an explicit 0 coordinate is
// distinguishable from an absent one.
type RequestLocation struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Address   *string  `json:"address,omitempty"`
}

func (rl *RequestLocation) toModel() *models.Location {
	if rl == nil || rl.Latitude == nil || rl.Longitude == nil {
		return nil
	}
	return &models.Location{
		Latitude:  *rl.Latitude,
		Longitude: *rl.Longitude,
		Accuracy:  rl.Accuracy,
		Address:   rl.Address,
	}
}

// CheckInRequest represents the check-in payload
type CheckInRequest struct {
	DeviceID *string          `json:"deviceId,omitempty"`
	GroupID  *string          `json:"groupId,omitempty"`
	Location *RequestLocation `json:"location"`
	Notes    *string          `json:"notes,omitempty"`
}

// CheckOutRequest represents the check-out payload
type CheckOutRequest struct {
	Location *RequestLocation `json:"location,omitempty"`
	Notes    *string          `json:"notes,omitempty"`
}

// CheckInUser opens a work session. At most one open session per user per
// local calendar day; the check is read-then-write, so two racing requests
// for the same user can both pass it.
func (s *AttendanceService) CheckInUser(ctx context.Context, userID string, req *CheckInRequest) (*models.AttendanceRecord, error) {
	location := req.Location.toModel()
	if location == nil {
		return nil, apperror.Validation("MISSING_LOCATION", "location is required")
	}

	now := s.now().In(s.cfg.Timezone)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cfg.Timezone)
	dayEnd := dayStart.AddDate(0, 0, 1)

	_, err := s.store.FindActiveBetween(ctx, userID, dayStart, dayEnd)
	if err == nil {
		return nil, apperror.State("ALREADY_CHECKED_IN", "work session already started")
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, apperror.Dependency("CHECK_IN_ERROR", "failed to check session state", err)
	}

	rec := &models.AttendanceRecord{
		UserID:          userID,
		DeviceID:        req.DeviceID,
		GroupID:         req.GroupID,
		CheckInTime:     now,
		CheckInLocation: location,
		Status:          models.AttendanceStatusCheckedIn,
		IsActive:        true,
		Notes:           req.Notes,
	}

	if _, err := s.store.Insert(ctx, rec); err != nil {
		return nil, apperror.Dependency("CHECK_IN_ERROR", "failed to start work session", err)
	}

	log.Printf("[ATTENDANCE] User %s checked in at %s", userID, rec.CheckInTime.Format(time.RFC3339))
	return rec, nil
}

// CheckOutUser closes the open session and computes the derived metrics.
// A location-store failure only zeroes the distance; it never blocks the
// check-out itself.
func (s *AttendanceService) CheckOutUser(ctx context.Context, userID string, req *CheckOutRequest) (*models.AttendanceRecord, error) {
	active, err := s.store.FindActive(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperror.State("NO_ACTIVE_ATTENDANCE", "no active work session found")
	}
	if err != nil {
		return nil, apperror.Dependency("CHECK_OUT_ERROR", "failed to load session state", err)
	}

	now := s.now().In(s.cfg.Timezone)
	workDuration := int64(math.Floor(now.Sub(active.CheckInTime).Seconds()))

	totalDistance := 0.0
	samples, err := s.locations.Query(ctx, userID, active.CheckInTime, now)
	if err != nil {
		log.Printf("[ATTENDANCE] Distance calculation failed for user %s, recording 0: %v", userID, err)
	} else {
		totalDistance = geo.TotalDistance(samples)
	}

	upd := models.CheckOutUpdate{
		CheckOutTime:     now,
		CheckOutLocation: req.Location.toModel(),
		WorkDuration:     workDuration,
		TotalDistance:    totalDistance,
		Notes:            req.Notes,
	}

	if err := s.store.Complete(ctx, active.ID, upd); err != nil {
		return nil, apperror.Dependency("CHECK_OUT_ERROR", "failed to end work session", err)
	}

	active.CheckOutTime = &upd.CheckOutTime
	active.CheckOutLocation = upd.CheckOutLocation
	active.WorkDuration = &upd.WorkDuration
	active.TotalDistance = &upd.TotalDistance
	active.Status = models.AttendanceStatusCheckedOut
	active.IsActive = false
	if req.Notes != nil {
		active.Notes = req.Notes
	}

	log.Printf("[ATTENDANCE] User %s checked out. Duration: %ds, Distance: %.2fkm",
		userID, workDuration, totalDistance)
	return active, nil
}

// ActiveSession returns the user's open session, or nil when none exists.
func (s *AttendanceService) ActiveSession(ctx context.Context, userID string) (*models.AttendanceRecord, error) {
	rec, err := s.store.FindActive(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Dependency("GET_STATUS_ERROR", "failed to load session state", err)
	}
	return rec, nil
}

// CheckIn starts the user's work day
// @Summary Check in
// @Description Open a work session at the given location
// @Tags attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CheckInRequest true "Check-in data"
// @Success 200 {object} object{attendanceId=string,checkInTime=string,location=models.Location}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /attendance/check-in [post]
func (s *AttendanceService) CheckIn(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorCode(w, "Unauthorized", "AUTH_REQUIRED", http.StatusUnauthorized)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req CheckInRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	rec, err := s.CheckInUser(r.Context(), userID, &req)
	if err != nil {
		SendAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"attendanceId": rec.ID,
		"checkInTime":  rec.CheckInTime.Format(time.RFC3339),
		"location":     rec.CheckInLocation,
		"message":      "Work session started",
	})
}

// CheckOut ends the user's work day
// @Summary Check out
// @Description Close the open work session and compute duration and traveled distance
// @Tags attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CheckOutRequest true "Check-out data"
// @Success 200 {object} object{attendanceId=string,checkOutTime=string,workDuration=int64,workHours=float64,totalDistance=float64}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /attendance/check-out [post]
func (s *AttendanceService) CheckOut(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorCode(w, "Unauthorized", "AUTH_REQUIRED", http.StatusUnauthorized)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req CheckOutRequest
	if err := dec.Decode(&req); err != nil && err != io.EOF {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	rec, err := s.CheckOutUser(r.Context(), userID, &req)
	if err != nil {
		SendAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"attendanceId":  rec.ID,
		"checkOutTime":  rec.CheckOutTime.Format(time.RFC3339),
		"workDuration":  *rec.WorkDuration,
		"workHours":     round2(float64(*rec.WorkDuration) / 3600),
		"totalDistance": round2(*rec.TotalDistance),
		"message":       "Work session ended",
	})
}

// GetCurrentStatus reports whether the user is checked in
// @Summary Current attendance status
// @Description Return the open session with its running duration, if any
// @Tags attendance
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{isCheckedIn=bool,attendanceId=string,currentDuration=int64}
// @Failure 401 {object} ErrorResponse
// @Router /attendance/status [get]
func (s *AttendanceService) GetCurrentStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorCode(w, "Unauthorized", "AUTH_REQUIRED", http.StatusUnauthorized)
		return
	}

	rec, err := s.ActiveSession(r.Context(), userID)
	if err != nil {
		SendAppError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if rec == nil {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"isCheckedIn": false,
			"message":     "No work session started",
		})
		return
	}

	currentDuration := int64(math.Floor(s.now().Sub(rec.CheckInTime).Seconds()))
	json.NewEncoder(w).Encode(map[string]interface{}{
		"isCheckedIn":     true,
		"attendanceId":    rec.ID,
		"checkInTime":     rec.CheckInTime.Format(time.RFC3339),
		"currentDuration": currentDuration,
		"currentHours":    round2(float64(currentDuration) / 3600),
		"location":        rec.CheckInLocation,
	})
}

// GetHistory lists the user's past sessions
// @Summary Attendance history
// @Description List sessions whose check-in falls in the requested range (default last 30 days)
// @Tags attendance
// @Produce json
// @Security BearerAuth
// @Param startDate query string false "Range start (RFC3339 or YYYY-MM-DD)"
// @Param endDate query string false "Range end (RFC3339 or YYYY-MM-DD)"
// @Param limit query int false "Maximum records (default 30)"
// @Success 200 {object} object{attendances=[]models.AttendanceRecord,count=int}
// @Failure 401 {object} ErrorResponse
// @Router /attendance/history [get]
func (s *AttendanceService) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorCode(w, "Unauthorized", "AUTH_REQUIRED", http.StatusUnauthorized)
		return
	}

	now := s.now().In(s.cfg.Timezone)
	start := now.AddDate(0, 0, -s.cfg.HistoryDays)
	end := now

	if v := r.URL.Query().Get("startDate"); v != "" {
		if t, err := parseDate(v); err == nil {
			start = t
		}
	}
	if v := r.URL.Query().Get("endDate"); v != "" {
		if t, err := parseDate(v); err == nil {
			end = t
		}
	}

	limit := 30
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= s.cfg.HistoryMaxLimit {
			limit = l
		}
	}

	records, err := s.store.ListByCheckIn(r.Context(), userID, start, end, limit)
	if err != nil {
		SendErrorCode(w, "Failed to load attendance history", "GET_HISTORY_ERROR", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"attendances": records,
		"count":       len(records),
	})
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
