package domain

import "time"

// Session is one issued access token. Rows are never hard-deleted by the
// service; revocation flips IsActive and records when and why.
type Session struct {
	ID            string // ULID
	JTI           string
	UserID        string
	UserAgent     string
	IP            string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	IsActive      bool
	RevokedAt     *time.Time
	RevokedReason *string
}

// IsUsable reports whether the session can still authenticate requests.
func (s Session) IsUsable(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}
