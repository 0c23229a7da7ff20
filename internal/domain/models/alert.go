package models

import "time"

// Comparison is the direction of an alert threshold check.
type Comparison string

const (
	CompareAbove Comparison = "above"
	CompareBelow Comparison = "below"
)

// AlertRule is a user-defined price threshold. A rule fires once: the
// registry deactivates it on trigger and re-arming is an explicit user
// action upstream.
type AlertRule struct {
	ID          string
	Ticker      string
	Comparison  Comparison
	Threshold   float64
	Active      bool
	CreatedAt   time.Time
	TriggeredAt *time.Time
}
