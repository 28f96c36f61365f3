package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fleettrack/backend/internal/config"
	"github.com/fleettrack/backend/internal/models"
	"github.com/fleettrack/backend/internal/storage"
	"github.com/fleettrack/backend/internal/ws"
)

const latestPositionTTL = 10 * time.Minute

// LocationService ingests GPS samples, detects speed violations and keeps
// the latest known position per user hot in Redis.
type LocationService struct {
	store     storage.LocationStore
	telemetry storage.TelemetryStore
	cache     *redis.Client
	hub       *ws.Hub
	cfg       *config.TrackingConfig
	now       func() time.Time
}

func NewLocationService(store storage.LocationStore, telemetry storage.TelemetryStore, cache *redis.Client, hub *ws.Hub, cfg *config.TrackingConfig) *LocationService {
	return &LocationService{
		store:     store,
		telemetry: telemetry,
		cache:     cache,
		hub:       hub,
		cfg:       cfg,
		now:       time.Now,
	}
}

// LocationRequest represents a single GPS sample payload
type LocationRequest struct {
	DeviceID  *string  `json:"deviceId,omitempty"`
	GroupID   *string  `json:"groupId,omitempty"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Timestamp *string  `json:"timestamp,omitempty"`
}

// BatchLocationRequest represents an offline-sync batch payload
type BatchLocationRequest struct {
	Locations []LocationRequest `json:"locations"`
}

func (s *LocationService) sampleFromRequest(userID string, req *LocationRequest) (*models.LocationSample, error) {
	if req.Latitude == nil || req.Longitude == nil {
		return nil, fmt.Errorf("latitude and longitude are required")
	}
	if *req.Latitude < -90 || *req.Latitude > 90 || *req.Longitude < -180 || *req.Longitude > 180 {
		return nil, fmt.Errorf("coordinates out of range")
	}

	ts := s.now()
	if req.Timestamp != nil {
		parsed, err := time.Parse(time.RFC3339, *req.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp: %v", err)
		}
		ts = parsed
	}

	return &models.LocationSample{
		UserID:    userID,
		DeviceID:  req.DeviceID,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Accuracy:  req.Accuracy,
		Speed:     req.Speed,
		Timestamp: ts,
	}, nil
}

// Ingest stores one sample and runs the post-ingest side effects.
func (s *LocationService) Ingest(ctx context.Context, userID string, req *LocationRequest) (*models.LocationSample, error) {
	sample, err := s.sampleFromRequest(userID, req)
	if err != nil {
		return nil, err
	}

	if err := s.store.InsertSample(ctx, sample); err != nil {
		return nil, err
	}

	s.afterIngest(ctx, sample, req.GroupID)
	return sample, nil
}

// IngestBatch stores a batch of offline-synced samples in one write.
func (s *LocationService) IngestBatch(ctx context.Context, userID string, reqs []LocationRequest) ([]models.LocationSample, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("locations array is empty")
	}
	if len(reqs) > s.cfg.BatchMaxSamples {
		return nil, fmt.Errorf("batch exceeds %d samples", s.cfg.BatchMaxSamples)
	}

	samples := make([]models.LocationSample, 0, len(reqs))
	for i := range reqs {
		sample, err := s.sampleFromRequest(userID, &reqs[i])
		if err != nil {
			return nil, fmt.Errorf("locations[%d]: %v", i, err)
		}
		samples = append(samples, *sample)
	}

	if err := s.store.InsertBatch(ctx, samples); err != nil {
		return nil, err
	}

	// Side effects only for the newest sample in the batch.
	latest := &samples[0]
	for i := range samples {
		if samples[i].Timestamp.After(latest.Timestamp) {
			latest = &samples[i]
		}
	}
	s.afterIngest(ctx, latest, nil)

	return samples, nil
}

// afterIngest caches the latest position, checks the speed limit and
// pushes the update to live subscribers. None of these can fail the
// ingest itself.
func (s *LocationService) afterIngest(ctx context.Context, sample *models.LocationSample, groupID *string) {
	s.cacheLatest(ctx, sample)

	if sample.Speed != nil && s.cfg.SpeedLimitKmh > 0 && *sample.Speed > s.cfg.SpeedLimitKmh {
		violation := &models.SpeedViolation{
			UserID:    sample.UserID,
			Latitude:  sample.Latitude,
			Longitude: sample.Longitude,
			Speed:     *sample.Speed,
			Limit:     s.cfg.SpeedLimitKmh,
			Timestamp: sample.Timestamp,
		}
		if err := s.telemetry.InsertViolation(ctx, violation); err != nil {
			log.Printf("[LOCATION] Failed to record speed violation for user %s: %v", sample.UserID, err)
		} else {
			log.Printf("[LOCATION] Speed violation: user %s at %.1f km/h (limit %.1f)",
				sample.UserID, *sample.Speed, s.cfg.SpeedLimitKmh)
		}
	}

	if s.hub != nil {
		upd := ws.PositionUpdate{
			UserID:    sample.UserID,
			Latitude:  sample.Latitude,
			Longitude: sample.Longitude,
			Speed:     sample.Speed,
			Timestamp: sample.Timestamp,
		}
		if groupID != nil {
			upd.GroupID = *groupID
		}
		s.hub.Broadcast(upd)
	}
}

func (s *LocationService) cacheLatest(ctx context.Context, sample *models.LocationSample) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(sample)
	if err != nil {
		return
	}
	key := fmt.Sprintf("location:latest:%s", sample.UserID)
	if err := s.cache.Set(ctx, key, payload, latestPositionTTL).Err(); err != nil {
		log.Printf("[LOCATION] Failed to cache latest position for user %s: %v", sample.UserID, err)
	}
}

// Latest returns the most recent sample, preferring the Redis copy.
func (s *LocationService) Latest(ctx context.Context, userID string) (*models.LocationSample, error) {
	if s.cache != nil {
		key := fmt.Sprintf("location:latest:%s", userID)
		if raw, err := s.cache.Get(ctx, key).Result(); err == nil {
			var sample models.LocationSample
			if err := json.Unmarshal([]byte(raw), &sample); err == nil {
				return &sample, nil
			}
		}
	}
	return s.store.Latest(ctx, userID)
}

// StoreLocation accepts a single GPS sample
// @Summary Store location
// @Description Ingest one GPS sample for the authenticated user
// @Tags locations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body LocationRequest true "Location sample"
// @Success 201 {object} object{locationId=int64,timestamp=string}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /locations [post]
func (s *LocationService) StoreLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorCode(w, "Unauthorized", "AUTH_REQUIRED", http.StatusUnauthorized)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req LocationRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	sample, err := s.Ingest(r.Context(), userID, &req)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"locationId": sample.ID,
		"timestamp":  sample.Timestamp.Format(time.RFC3339),
		"message":    "Location stored",
	})
}

// StoreBatch accepts offline-synced samples
// @Summary Store location batch
// @Description Ingest up to 100 offline-collected GPS samples in one request
// @Tags locations
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body BatchLocationRequest true "Location samples"
// @Success 201 {object} object{stored=int}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /locations/batch [post]
func (s *LocationService) StoreBatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorCode(w, "Unauthorized", "AUTH_REQUIRED", http.StatusUnauthorized)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req BatchLocationRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	samples, err := s.IngestBatch(r.Context(), userID, req.Locations)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"stored":  len(samples),
		"message": "Locations stored",
	})
}

// GetHistory lists stored samples in a time range
// @Summary Location history
// @Description List GPS samples for the authenticated user, oldest first
// @Tags locations
// @Produce json
// @Security BearerAuth
// @Param startDate query string false "Range start (RFC3339 or YYYY-MM-DD)"
// @Param endDate query string false "Range end (RFC3339 or YYYY-MM-DD)"
// @Param limit query int false "Maximum samples (default 100)"
// @Success 200 {object} object{locations=[]models.LocationSample,count=int}
// @Failure 401 {object} ErrorResponse
// @Router /locations/history [get]
func (s *LocationService) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorCode(w, "Unauthorized", "AUTH_REQUIRED", http.StatusUnauthorized)
		return
	}

	now := s.now()
	start := now.AddDate(0, 0, -1)
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

	limit := s.cfg.HistoryMaxLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= s.cfg.HistoryMaxLimit {
			limit = l
		}
	}

	samples, err := s.store.Query(r.Context(), userID, start, end)
	if err != nil {
		SendErrorCode(w, "Failed to load location history", "GET_HISTORY_ERROR", http.StatusInternalServerError)
		return
	}
	if len(samples) > limit {
		samples = samples[:limit]
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"locations": samples,
		"count":     len(samples),
	})
}

// GetLatest returns the most recent sample
// @Summary Latest position
// @Description Return the most recent known position for the authenticated user
// @Tags locations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.LocationSample
// @Failure 404 {object} ErrorResponse
// @Router /locations/latest [get]
func (s *LocationService) GetLatest(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorCode(w, "Unauthorized", "AUTH_REQUIRED", http.StatusUnauthorized)
		return
	}

	sample, err := s.Latest(r.Context(), userID)
	if err != nil {
		if err == storage.ErrNotFound {
			SendErrorCode(w, "No location recorded", "NOT_FOUND", http.StatusNotFound)
			return
		}
		SendErrorCode(w, "Failed to load latest position", "GET_LATEST_ERROR", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sample)
}
