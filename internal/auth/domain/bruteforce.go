package domain

import "time"

// AttemptCounter is the JSON payload stored under a failed-login key.
type AttemptCounter struct {
	Count         int       `json:"count"`
	LastAttemptAt time.Time `json:"last_attempt_at"`
}

// IPBlock is the JSON payload stored under an ip block key.
type IPBlock struct {
	BlockedUntil time.Time `json:"blocked_until"`
}

// AttemptResult describes the state after recording a failed login.
type AttemptResult struct {
	Attempts          int           `json:"attempts"`
	RemainingAttempts int           `json:"remaining_attempts"`
	Blocked           bool          `json:"blocked"`
	BlockedFor        time.Duration `json:"-"`
	BlockedUntil      *time.Time    `json:"blocked_until,omitempty"`
}
