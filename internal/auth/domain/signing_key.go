package domain

import "time"

// SigningKey is the admin view of a JWT signing key. Only public material
// ever leaves the KeyManager.
type SigningKey struct {
	Kid       string
	Algorithm string
	Active    bool
	CreatedAt time.Time
	RetireAt  *time.Time // nil while active
}

// IsPublished reports whether the key still appears in the JWKS at now.
func (k SigningKey) IsPublished(now time.Time) bool {
	return k.Active || (k.RetireAt != nil && now.Before(*k.RetireAt))
}
