package domain

import "time"

// User is the minimal account record the auth service needs: enough to
// check credentials and decide which claims go into a token.
type User struct {
	ID           string
	Email        string // stored lowercased
	PasswordHash string // argon2id PHC string
	IsActive     bool
	IsStaff      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
