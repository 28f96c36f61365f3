package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/fleettrack/backend/internal/apperror"
	"github.com/fleettrack/backend/internal/config"
	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/internal/storage"
)

func testTrackingConfig() *config.TrackingConfig {
	return &config.TrackingConfig{
		Timezone:        time.UTC,
		SpeedLimitKmh:   90,
		HistoryDays:     30,
		HistoryMaxLimit: 100,
		BatchMaxSamples: 100,
	}
}

func newTestAttendanceService(store *mockAttendanceStore, locations *mockLocationStore, now time.Time) *AttendanceService {
	s := NewAttendanceService(store, locations, testTrackingConfig())
	s.now = func() time.Time { return now }
	return s
}

func ptr[T any](v T) *T { return &v }

func checkInRequest() *CheckInRequest {
	return &CheckInRequest{
		Location: &RequestLocation{
			Latitude:  ptr(41.0082),
			Longitude: ptr(28.9784),
		},
	}
}

func TestAttendanceService_CheckInUser(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	t.Run("successful check-in", func(t *testing.T) {
		store := new(mockAttendanceStore)
		service := newTestAttendanceService(store, new(mockLocationStore), now)

		dayStart := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
		dayEnd := dayStart.AddDate(0, 0, 1)
		store.On("FindActiveBetween", mock.Anything, "user1", dayStart, dayEnd).
			Return(nil, storage.ErrNotFound)
		store.On("Insert", mock.Anything, mock.AnythingOfType("*models.AttendanceRecord")).
			Return("att1", nil)

		rec, err := service.CheckInUser(context.Background(), "user1", checkInRequest())
		assert.NoError(t, err)
		assert.Equal(t, models.AttendanceStatusCheckedIn, rec.Status)
		assert.True(t, rec.IsActive)
		assert.Equal(t, now, rec.CheckInTime)
		assert.Equal(t, 41.0082, rec.CheckInLocation.Latitude)
		store.AssertExpectations(t)
	})

	t.Run("missing location", func(t *testing.T) {
		service := newTestAttendanceService(new(mockAttendanceStore), new(mockLocationStore), now)

		_, err := service.CheckInUser(context.Background(), "user1", &CheckInRequest{})
		assert.Error(t, err)
		assert.Equal(t, "MISSING_LOCATION", apperror.CodeOf(err))
	})

	t.Run("missing longitude", func(t *testing.T) {
		service := newTestAttendanceService(new(mockAttendanceStore), new(mockLocationStore), now)

		req := &CheckInRequest{Location: &RequestLocation{Latitude: ptr(41.0)}}
		_, err := service.CheckInUser(context.Background(), "user1", req)
		assert.Error(t, err)
		assert.Equal(t, "MISSING_LOCATION", apperror.CodeOf(err))
	})

	t.Run("zero coordinates are valid", func(t *testing.T) {
		store := new(mockAttendanceStore)
		service := newTestAttendanceService(store, new(mockLocationStore), now)

		store.On("FindActiveBetween", mock.Anything, "user1", mock.Anything, mock.Anything).
			Return(nil, storage.ErrNotFound)
		store.On("Insert", mock.Anything, mock.Anything).Return("att1", nil)

		req := &CheckInRequest{Location: &RequestLocation{Latitude: ptr(0.0), Longitude: ptr(0.0)}}
		_, err := service.CheckInUser(context.Background(), "user1", req)
		assert.NoError(t, err)
	})

	t.Run("already checked in today", func(t *testing.T) {
		store := new(mockAttendanceStore)
		service := newTestAttendanceService(store, new(mockLocationStore), now)

		open := &models.AttendanceRecord{ID: "att0", UserID: "user1", IsActive: true}
		store.On("FindActiveBetween", mock.Anything, "user1", mock.Anything, mock.Anything).
			Return(open, nil)

		_, err := service.CheckInUser(context.Background(), "user1", checkInRequest())
		assert.Error(t, err)
		assert.Equal(t, "ALREADY_CHECKED_IN", apperror.CodeOf(err))
		store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})

	t.Run("yesterday's open session does not block", func(t *testing.T) {
		store := new(mockAttendanceStore)
		service := newTestAttendanceService(store, new(mockLocationStore), now)

		// Day-bounded lookup misses the stale session.
		store.On("FindActiveBetween", mock.Anything, "user1", mock.Anything, mock.Anything).
			Return(nil, storage.ErrNotFound)
		store.On("Insert", mock.Anything, mock.Anything).Return("att2", nil)

		_, err := service.CheckInUser(context.Background(), "user1", checkInRequest())
		assert.NoError(t, err)
	})

	t.Run("store failure", func(t *testing.T) {
		store := new(mockAttendanceStore)
		service := newTestAttendanceService(store, new(mockLocationStore), now)

		store.On("FindActiveBetween", mock.Anything, "user1", mock.Anything, mock.Anything).
			Return(nil, assert.AnError)

		_, err := service.CheckInUser(context.Background(), "user1", checkInRequest())
		assert.Error(t, err)
		assert.Equal(t, "CHECK_IN_ERROR", apperror.CodeOf(err))
	})
}

func TestAttendanceService_CheckOutUser(t *testing.T) {
	checkIn := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	now := checkIn.Add(8*time.Hour + 30*time.Minute)

	openSession := func() *models.AttendanceRecord {
		return &models.AttendanceRecord{
			ID:          "att1",
			UserID:      "user1",
			CheckInTime: checkIn,
			Status:      models.AttendanceStatusCheckedIn,
			IsActive:    true,
		}
	}

	t.Run("successful check-out", func(t *testing.T) {
		store := new(mockAttendanceStore)
		locations := new(mockLocationStore)
		service := newTestAttendanceService(store, locations, now)

		store.On("FindActive", mock.Anything, "user1").Return(openSession(), nil)
		locations.On("Query", mock.Anything, "user1", checkIn, now).Return([]models.LocationSample{
			{Latitude: 41.0082, Longitude: 28.9784, Timestamp: checkIn},
			{Latitude: 41.0100, Longitude: 28.9800, Timestamp: checkIn.Add(time.Hour)},
		}, nil)
		store.On("Complete", mock.Anything, "att1", mock.AnythingOfType("models.CheckOutUpdate")).
			Return(nil)

		rec, err := service.CheckOutUser(context.Background(), "user1", &CheckOutRequest{})
		assert.NoError(t, err)
		assert.Equal(t, models.AttendanceStatusCheckedOut, rec.Status)
		assert.False(t, rec.IsActive)
		assert.Equal(t, int64(8*3600+30*60), *rec.WorkDuration)
		assert.Greater(t, *rec.TotalDistance, 0.0)
		store.AssertExpectations(t)
	})

	t.Run("no active session", func(t *testing.T) {
		store := new(mockAttendanceStore)
		service := newTestAttendanceService(store, new(mockLocationStore), now)

		store.On("FindActive", mock.Anything, "user1").Return(nil, storage.ErrNotFound)

		_, err := service.CheckOutUser(context.Background(), "user1", &CheckOutRequest{})
		assert.Error(t, err)
		assert.Equal(t, "NO_ACTIVE_ATTENDANCE", apperror.CodeOf(err))
	})

	t.Run("distance lookup failure records zero", func(t *testing.T) {
		store := new(mockAttendanceStore)
		locations := new(mockLocationStore)
		service := newTestAttendanceService(store, locations, now)

		store.On("FindActive", mock.Anything, "user1").Return(openSession(), nil)
		locations.On("Query", mock.Anything, "user1", checkIn, now).
			Return(nil, assert.AnError)
		store.On("Complete", mock.Anything, "att1", mock.AnythingOfType("models.CheckOutUpdate")).
			Return(nil)

		rec, err := service.CheckOutUser(context.Background(), "user1", &CheckOutRequest{})
		assert.NoError(t, err)
		assert.Equal(t, 0.0, *rec.TotalDistance)
	})

	t.Run("no samples means zero distance", func(t *testing.T) {
		store := new(mockAttendanceStore)
		locations := new(mockLocationStore)
		service := newTestAttendanceService(store, locations, now)

		store.On("FindActive", mock.Anything, "user1").Return(openSession(), nil)
		locations.On("Query", mock.Anything, "user1", checkIn, now).
			Return([]models.LocationSample{}, nil)
		store.On("Complete", mock.Anything, "att1", mock.Anything).Return(nil)

		rec, err := service.CheckOutUser(context.Background(), "user1", &CheckOutRequest{})
		assert.NoError(t, err)
		assert.Equal(t, 0.0, *rec.TotalDistance)
	})

	t.Run("check-out notes replace check-in notes", func(t *testing.T) {
		store := new(mockAttendanceStore)
		locations := new(mockLocationStore)
		service := newTestAttendanceService(store, locations, now)

		session := openSession()
		session.Notes = ptr("morning note")
		store.On("FindActive", mock.Anything, "user1").Return(session, nil)
		locations.On("Query", mock.Anything, "user1", checkIn, now).
			Return([]models.LocationSample{}, nil)
		store.On("Complete", mock.Anything, "att1", mock.Anything).Return(nil)

		rec, err := service.CheckOutUser(context.Background(), "user1",
			&CheckOutRequest{Notes: ptr("evening note")})
		assert.NoError(t, err)
		assert.Equal(t, "evening note", *rec.Notes)
	})
}

func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), "userID", userID))
}

func TestAttendanceService_CheckInHandler(t *testing.T) {
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	t.Run("unauthenticated", func(t *testing.T) {
		service := newTestAttendanceService(new(mockAttendanceStore), new(mockLocationStore), now)

		r := httptest.NewRequest("POST", "/attendance/check-in", bytes.NewBufferString("{}"))
		w := httptest.NewRecorder()
		service.CheckIn(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing location returns coded error", func(t *testing.T) {
		service := newTestAttendanceService(new(mockAttendanceStore), new(mockLocationStore), now)

		r := withUserID(httptest.NewRequest("POST", "/attendance/check-in",
			bytes.NewBufferString(`{"notes":"hi"}`)), "user1")
		w := httptest.NewRecorder()
		service.CheckIn(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp ErrorResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, "MISSING_LOCATION", resp.Code)
	})

	t.Run("successful check-in", func(t *testing.T) {
		store := new(mockAttendanceStore)
		service := newTestAttendanceService(store, new(mockLocationStore), now)

		store.On("FindActiveBetween", mock.Anything, "user1", mock.Anything, mock.Anything).
			Return(nil, storage.ErrNotFound)
		store.On("Insert", mock.Anything, mock.Anything).Return("att1", nil)

		body := `{"location":{"latitude":41.0082,"longitude":28.9784}}`
		r := withUserID(httptest.NewRequest("POST", "/attendance/check-in",
			bytes.NewBufferString(body)), "user1")
		w := httptest.NewRecorder()
		service.CheckIn(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]any
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.NotNil(t, resp["location"])
		assert.Equal(t, now.Format(time.RFC3339), resp["checkInTime"])
	})

	t.Run("double check-in", func(t *testing.T) {
		store := new(mockAttendanceStore)
		service := newTestAttendanceService(store, new(mockLocationStore), now)

		store.On("FindActiveBetween", mock.Anything, "user1", mock.Anything, mock.Anything).
			Return(&models.AttendanceRecord{ID: "att0"}, nil)

		body := `{"location":{"latitude":41.0082,"longitude":28.9784}}`
		r := withUserID(httptest.NewRequest("POST", "/attendance/check-in",
			bytes.NewBufferString(body)), "user1")
		w := httptest.NewRecorder()
		service.CheckIn(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp ErrorResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, "ALREADY_CHECKED_IN", resp.Code)
	})
}

func TestAttendanceService_CheckOutHandler(t *testing.T) {
	checkIn := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	now := checkIn.Add(8 * time.Hour)

	t.Run("empty body is allowed", func(t *testing.T) {
		store := new(mockAttendanceStore)
		locations := new(mockLocationStore)
		service := newTestAttendanceService(store, locations, now)

		store.On("FindActive", mock.Anything, "user1").Return(&models.AttendanceRecord{
			ID: "att1", UserID: "user1", CheckInTime: checkIn, IsActive: true,
			Status: models.AttendanceStatusCheckedIn,
		}, nil)
		locations.On("Query", mock.Anything, "user1", checkIn, now).
			Return([]models.LocationSample{}, nil)
		store.On("Complete", mock.Anything, "att1", mock.Anything).Return(nil)

		r := withUserID(httptest.NewRequest("POST", "/attendance/check-out",
			bytes.NewBufferString("")), "user1")
		w := httptest.NewRecorder()
		service.CheckOut(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]any
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, float64(8*3600), resp["workDuration"])
		assert.Equal(t, 8.0, resp["workHours"])
	})

	t.Run("not checked in", func(t *testing.T) {
		store := new(mockAttendanceStore)
		service := newTestAttendanceService(store, new(mockLocationStore), now)

		store.On("FindActive", mock.Anything, "user1").Return(nil, storage.ErrNotFound)

		r := withUserID(httptest.NewRequest("POST", "/attendance/check-out",
			bytes.NewBufferString("{}")), "user1")
		w := httptest.NewRecorder()
		service.CheckOut(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp ErrorResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, "NO_ACTIVE_ATTENDANCE", resp.Code)
	})
}

func TestAttendanceService_GetCurrentStatus(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("not checked in", func(t *testing.T) {
		store := new(mockAttendanceStore)
		service := newTestAttendanceService(store, new(mockLocationStore), now)

		store.On("FindActive", mock.Anything, "user1").Return(nil, storage.ErrNotFound)

		r := withUserID(httptest.NewRequest("GET", "/attendance/status", nil), "user1")
		w := httptest.NewRecorder()
		service.GetCurrentStatus(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]any
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, false, resp["isCheckedIn"])
	})

	t.Run("checked in with running duration", func(t *testing.T) {
		store := new(mockAttendanceStore)
		service := newTestAttendanceService(store, new(mockLocationStore), now)

		store.On("FindActive", mock.Anything, "user1").Return(&models.AttendanceRecord{
			ID:          "att1",
			UserID:      "user1",
			CheckInTime: now.Add(-2 * time.Hour),
			IsActive:    true,
			Status:      models.AttendanceStatusCheckedIn,
		}, nil)

		r := withUserID(httptest.NewRequest("GET", "/attendance/status", nil), "user1")
		w := httptest.NewRecorder()
		service.GetCurrentStatus(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]any
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, true, resp["isCheckedIn"])
		assert.Equal(t, float64(7200), resp["currentDuration"])
		assert.Equal(t, 2.0, resp["currentHours"])
	})

	t.Run("status is idempotent", func(t *testing.T) {
		store := new(mockAttendanceStore)
		service := newTestAttendanceService(store, new(mockLocationStore), now)

		store.On("FindActive", mock.Anything, "user1").Return(nil, storage.ErrNotFound)

		for i := 0; i < 3; i++ {
			r := withUserID(httptest.NewRequest("GET", "/attendance/status", nil), "user1")
			w := httptest.NewRecorder()
			service.GetCurrentStatus(w, r)
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})
}

func TestAttendanceService_GetHistory(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	t.Run("default range", func(t *testing.T) {
		store := new(mockAttendanceStore)
		service := newTestAttendanceService(store, new(mockLocationStore), now)

		store.On("ListByCheckIn", mock.Anything, "user1", mock.Anything, mock.Anything, 30).
			Return([]models.AttendanceRecord{{ID: "att1"}, {ID: "att2"}}, nil)

		r := withUserID(httptest.NewRequest("GET", "/attendance/history", nil), "user1")
		w := httptest.NewRecorder()
		service.GetHistory(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]any
		json.Unmarshal(w.Body.Bytes(), &resp)
		assert.Equal(t, float64(2), resp["count"])
	})

	t.Run("explicit range and limit", func(t *testing.T) {
		store := new(mockAttendanceStore)
		service := newTestAttendanceService(store, new(mockLocationStore), now)

		start, _ := time.Parse("2006-01-02", "2024-06-01")
		end, _ := time.Parse("2006-01-02", "2024-06-10")
		store.On("ListByCheckIn", mock.Anything, "user1", start, end, 5).
			Return([]models.AttendanceRecord{}, nil)

		r := withUserID(httptest.NewRequest("GET",
			"/attendance/history?startDate=2024-06-01&endDate=2024-06-10&limit=5", nil), "user1")
		w := httptest.NewRecorder()
		service.GetHistory(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		store.AssertExpectations(t)
	})
}
