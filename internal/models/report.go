package models

import "time"

// AttendanceSummary aggregates the day's completed sessions
type AttendanceSummary struct {
	CheckInCount   int                `json:"checkInCount"`
	CheckOutCount  int                `json:"checkOutCount"`
	TotalWorkHours float64            `json:"totalWorkHours"`
	Attendances    []AttendanceRecord `json:"attendances"`
}

// LocationSummary aggregates raw sample activity for the day
type LocationSummary struct {
	PointCount    int     `json:"pointCount"`
	TotalDistance float64 `json:"totalDistance"` // km
}

// VehicleSummary aggregates vehicle sessions and violations for the day
type VehicleSummary struct {
	SessionCount    int     `json:"sessionCount"`
	TotalDistance   float64 `json:"totalDistance"` // km
	SpeedViolations int     `json:"speedViolations"`
}

// ReportTotals is the merged roll-up across all sections
type ReportTotals struct {
	TotalDistance  float64 `json:"totalDistance"` // km
	TotalWorkHours float64 `json:"totalWorkHours"`
}

// DailyReport is the combined per-user per-day report
type DailyReport struct {
	ID         string            `json:"id,omitempty" db:"id"`
	UserID     string            `json:"userId" db:"user_id"`
	GroupID    *string           `json:"groupId,omitempty" db:"group_id"`
	Date       string            `json:"date" db:"report_date"` // YYYY-MM-DD
	Attendance AttendanceSummary `json:"attendance"`
	Location   LocationSummary   `json:"location"`
	Vehicle    VehicleSummary    `json:"vehicle"`
	Summary    ReportTotals      `json:"summary"`
	CreatedAt  time.Time         `json:"createdAt,omitempty" db:"created_at"`
}
