package models

import "time"

// LocationSample is one raw GPS point produced by a tracked device.
// Samples are append-only; the aggregators only ever read them back.
type LocationSample struct {
	ID        int64     `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	DeviceID  *string   `json:"device_id,omitempty" db:"device_id"`
	Latitude  float64   `json:"latitude" db:"latitude"`
	Longitude float64   `json:"longitude" db:"longitude"`
	Accuracy  *float64  `json:"accuracy,omitempty" db:"accuracy"`
	Speed     *float64  `json:"speed,omitempty" db:"speed"` // km/h
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}

// VehicleSession represents a driving session tracked by the mobile client
type VehicleSession struct {
	ID            string     `json:"id" db:"id"`
	UserID        string     `json:"user_id" db:"user_id"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	TotalDistance float64    `json:"total_distance" db:"total_distance"` // km
	MaxSpeed      float64    `json:"max_speed" db:"max_speed"`           // km/h
}

// SpeedViolation is recorded when a sample exceeds the configured limit
type SpeedViolation struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Speed     float64   `json:"speed" db:"speed"` // km/h
	Limit     float64   `json:"limit" db:"speed_limit"`
	Latitude  float64   `json:"latitude" db:"latitude"`
	Longitude float64   `json:"longitude" db:"longitude"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
