package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// AttendanceStatus values
const (
	AttendanceStatusCheckedIn  = "checked_in"
	AttendanceStatusCheckedOut = "checked_out"
)

// Location represents a geographical point attached to a record (JSONB column)
type Location struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Address   *string  `json:"address,omitempty"`
}

// Value implements driver.Valuer for Location
func (l *Location) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner for Location
func (l *Location) Scan(value any) error {
	if value == nil {
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, l)
}

// AttendanceRecord represents one work session (check-in until check-out)
type AttendanceRecord struct {
	ID               string     `json:"id" db:"id"`
	UserID           string     `json:"user_id" db:"user_id"`
	DeviceID         *string    `json:"device_id,omitempty" db:"device_id"`
	GroupID          *string    `json:"group_id,omitempty" db:"group_id"`
	CheckInTime      time.Time  `json:"check_in_time" db:"check_in_time"`
	CheckOutTime     *time.Time `json:"check_out_time,omitempty" db:"check_out_time"`
	CheckInLocation  *Location  `json:"check_in_location,omitempty" db:"check_in_location"`
	CheckOutLocation *Location  `json:"check_out_location,omitempty" db:"check_out_location"`
	WorkDuration     *int64     `json:"work_duration,omitempty" db:"work_duration"`   // seconds
	TotalDistance    *float64   `json:"total_distance,omitempty" db:"total_distance"` // km
	Status           string     `json:"status" db:"status"`
	IsActive         bool       `json:"is_active" db:"is_active"`
	Notes            *string    `json:"notes,omitempty" db:"notes"`
	Metadata         Metadata   `json:"metadata,omitempty" db:"metadata"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// Open reports whether the session has not been checked out yet.
func (a *AttendanceRecord) Open() bool {
	return a.IsActive && a.CheckOutTime == nil
}

// CheckOutUpdate carries the fields written once at check-out
type CheckOutUpdate struct {
	CheckOutTime     time.Time
	CheckOutLocation *Location
	WorkDuration     int64   // seconds
	TotalDistance    float64 // km
	Notes            *string
}

// Metadata type for JSONB fields
type Metadata map[string]any

// Value implements driver.Valuer for Metadata
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for Metadata
func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, m)
}
