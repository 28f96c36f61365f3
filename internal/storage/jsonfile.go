package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fleettrack/backend/internal/models"
	"github.com/google/uuid"
)

// JSONFile is the fallback backend: one JSON document on disk, guarded by
// a mutex and rewritten atomically after every mutation. Intended for
// single-instance deployments without a database.
type JSONFile struct {
	mu   sync.Mutex
	path string
	doc  *jsonDocument
}

type jsonDocument struct {
	Attendance      []models.AttendanceRecord `json:"attendance"`
	Locations       []models.LocationSample   `json:"locations"`
	VehicleSessions []models.VehicleSession   `json:"vehicleSessions"`
	SpeedViolations []models.SpeedViolation   `json:"speedViolations"`
	Payments        []models.Payment          `json:"payments"`
	Reports         []models.DailyReport      `json:"reports"`
	NextSampleID    int64                     `json:"nextSampleId"`
}

// OpenJSONFile loads the document at path, creating it when absent.
func OpenJSONFile(path string) (*JSONFile, error) {
	store := &JSONFile{path: path, doc: &jsonDocument{NextSampleID: 1}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		return store, store.save()
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, store.doc); err != nil {
		return nil, fmt.Errorf("corrupt store file %s: %w", path, err)
	}
	if store.doc.NextSampleID == 0 {
		store.doc.NextSampleID = int64(len(store.doc.Locations)) + 1
	}
	return store, nil
}

// save writes via a temp file and rename so a crash never truncates data.
// Callers must hold the mutex.
func (j *JSONFile) save() error {
	data, err := json.MarshalIndent(j.doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, j.path)
}

func (j *JSONFile) FindActive(_ context.Context, userID string) (*models.AttendanceRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for i := len(j.doc.Attendance) - 1; i >= 0; i-- {
		rec := j.doc.Attendance[i]
		if rec.UserID == userID && rec.Open() {
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

func (j *JSONFile) FindActiveBetween(_ context.Context, userID string, from, to time.Time) (*models.AttendanceRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for i := len(j.doc.Attendance) - 1; i >= 0; i-- {
		rec := j.doc.Attendance[i]
		if rec.UserID == userID && rec.Open() &&
			!rec.CheckInTime.Before(from) && rec.CheckInTime.Before(to) {
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

func (j *JSONFile) Insert(_ context.Context, rec *models.AttendanceRecord) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	j.doc.Attendance = append(j.doc.Attendance, *rec)
	return rec.ID, j.save()
}

func (j *JSONFile) Complete(_ context.Context, id string, upd models.CheckOutUpdate) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for i := range j.doc.Attendance {
		rec := &j.doc.Attendance[i]
		if rec.ID != id {
			continue
		}
		checkOut := upd.CheckOutTime
		rec.CheckOutTime = &checkOut
		rec.CheckOutLocation = upd.CheckOutLocation
		rec.WorkDuration = &upd.WorkDuration
		rec.TotalDistance = &upd.TotalDistance
		rec.Status = models.AttendanceStatusCheckedOut
		rec.IsActive = false
		if upd.Notes != nil {
			rec.Notes = upd.Notes
		}
		rec.UpdatedAt = time.Now()
		return j.save()
	}
	return ErrNotFound
}

func (j *JSONFile) ListByCheckIn(_ context.Context, userID string, from, to time.Time, limit int) ([]models.AttendanceRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var records []models.AttendanceRecord
	for _, rec := range j.doc.Attendance {
		if rec.UserID == userID && !rec.CheckInTime.Before(from) && rec.CheckInTime.Before(to) {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(a, b int) bool {
		return records[a].CheckInTime.After(records[b].CheckInTime)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (j *JSONFile) InsertSample(_ context.Context, sample *models.LocationSample) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	sample.ID = j.doc.NextSampleID
	j.doc.NextSampleID++
	j.doc.Locations = append(j.doc.Locations, *sample)
	return j.save()
}

func (j *JSONFile) InsertBatch(_ context.Context, samples []models.LocationSample) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for i := range samples {
		samples[i].ID = j.doc.NextSampleID
		j.doc.NextSampleID++
		j.doc.Locations = append(j.doc.Locations, samples[i])
	}
	return j.save()
}

func (j *JSONFile) Query(_ context.Context, userID string, from, to time.Time) ([]models.LocationSample, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var samples []models.LocationSample
	for _, s := range j.doc.Locations {
		if s.UserID == userID && !s.Timestamp.Before(from) && !s.Timestamp.After(to) {
			samples = append(samples, s)
		}
	}
	sort.Slice(samples, func(a, b int) bool {
		return samples[a].Timestamp.Before(samples[b].Timestamp)
	})
	return samples, nil
}

func (j *JSONFile) Count(_ context.Context, userID string, from, to time.Time) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	count := 0
	for _, s := range j.doc.Locations {
		if s.UserID == userID && !s.Timestamp.Before(from) && s.Timestamp.Before(to) {
			count++
		}
	}
	return count, nil
}

func (j *JSONFile) Latest(_ context.Context, userID string) (*models.LocationSample, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var latest *models.LocationSample
	for i := range j.doc.Locations {
		s := &j.doc.Locations[i]
		if s.UserID != userID {
			continue
		}
		if latest == nil || s.Timestamp.After(latest.Timestamp) {
			latest = s
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	out := *latest
	return &out, nil
}

func (j *JSONFile) InsertViolation(_ context.Context, v *models.SpeedViolation) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	j.doc.SpeedViolations = append(j.doc.SpeedViolations, *v)
	return j.save()
}

func (j *JSONFile) VehicleSessions(_ context.Context, userID string, from, to time.Time) ([]models.VehicleSession, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var sessions []models.VehicleSession
	for _, v := range j.doc.VehicleSessions {
		if v.UserID == userID && !v.StartedAt.Before(from) && v.StartedAt.Before(to) {
			sessions = append(sessions, v)
		}
	}
	sort.Slice(sessions, func(a, b int) bool {
		return sessions[a].StartedAt.Before(sessions[b].StartedAt)
	})
	return sessions, nil
}

func (j *JSONFile) CountViolations(_ context.Context, userID string, from, to time.Time) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	count := 0
	for _, v := range j.doc.SpeedViolations {
		if v.UserID == userID && !v.Timestamp.Before(from) && v.Timestamp.Before(to) {
			count++
		}
	}
	return count, nil
}

func (j *JSONFile) UpsertDaily(_ context.Context, report *models.DailyReport) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	report.CreatedAt = time.Now()
	for i := range j.doc.Reports {
		if j.doc.Reports[i].UserID == report.UserID && j.doc.Reports[i].Date == report.Date {
			j.doc.Reports[i] = *report
			return j.save()
		}
	}
	j.doc.Reports = append(j.doc.Reports, *report)
	return j.save()
}

func (j *JSONFile) InsertPayment(_ context.Context, p *models.Payment) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.doc.Payments = append(j.doc.Payments, *p)
	return j.save()
}

func (j *JSONFile) GetPayment(_ context.Context, id string) (*models.Payment, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, p := range j.doc.Payments {
		if p.ID == id {
			out := p
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (j *JSONFile) UpdatePaymentStatus(_ context.Context, id, status string, settledAt *time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for i := range j.doc.Payments {
		if j.doc.Payments[i].ID == id {
			j.doc.Payments[i].Status = status
			j.doc.Payments[i].SettledAt = settledAt
			j.doc.Payments[i].UpdatedAt = time.Now()
			return j.save()
		}
	}
	return ErrNotFound
}

func (j *JSONFile) ListPaymentsByStatus(_ context.Context, status string, limit int) ([]models.Payment, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var payments []models.Payment
	for _, p := range j.doc.Payments {
		if p.Status == status {
			payments = append(payments, p)
		}
	}
	sort.Slice(payments, func(a, b int) bool {
		return payments[a].CreatedAt.Before(payments[b].CreatedAt)
	})
	if limit > 0 && len(payments) > limit {
		payments = payments[:limit]
	}
	return payments, nil
}
