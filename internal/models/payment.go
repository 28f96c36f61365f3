package models

import "time"

// Payment status values
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusSettled   = "SETTLED"
)

// Payment represents a subscription payment initiated after card validation.
// The card number itself is never stored, only the resolved BIN details and
// the last four digits.
type Payment struct {
	ID          string     `json:"payment_id" db:"id"`
	UserID      string     `json:"user_id" db:"user_id"`
	PlanID      string     `json:"plan_id" db:"plan_id"`
	ReferenceID string     `json:"reference_id" db:"reference_id"`
	Amount      float64    `json:"amount" db:"amount"`
	Currency    string     `json:"currency" db:"currency"`
	CardBank    string     `json:"card_bank" db:"card_bank"`
	CardNetwork string     `json:"card_network" db:"card_network"`
	CardLast4   string     `json:"card_last4" db:"card_last4"`
	Status      string     `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	SettledAt   *time.Time `json:"settled_at,omitempty" db:"settled_at"`
}
