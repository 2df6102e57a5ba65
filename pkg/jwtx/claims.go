package jwtx

import (
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token lifetimes. The refresh lifetime doubles as the minimum
// retention of a retired signing key.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	DefaultServiceTokenTTL = 5 * time.Minute
)

// ServiceScope marks service-to-service tokens.
const ServiceScope = "service"

// reservedClaims are owned by the issuer and can't be set through Extra.
var reservedClaims = []string{"iss", "sub", "aud", "exp", "nbf", "iat", "jti", "scope", "svc"}

// Claims are the token claims shared by every service. Extra carries any
// caller supplied claim and is flattened into the top-level payload.
type Claims struct {
	jwt.RegisteredClaims

	// Scope is a space delimited list ("service", "admin sessions:read").
	Scope string

	// Service names the calling service on service tokens.
	Service string

	Extra map[string]any
}

type wireClaims struct {
	jwt.RegisteredClaims
	Scope   string `json:"scope,omitempty"`
	Service string `json:"svc,omitempty"`
}

func (c Claims) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(wireClaims{RegisteredClaims: c.RegisteredClaims, Scope: c.Scope, Service: c.Service})
	if err != nil {
		return nil, err
	}
	if len(c.Extra) == 0 {
		return base, nil
	}

	merged := make(map[string]json.RawMessage, len(c.Extra)+8)
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range c.Extra {
		if slices.Contains(reservedClaims, k) {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

func (c *Claims) UnmarshalJSON(data []byte) error {
	var w wireClaims
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range reservedClaims {
		delete(all, k)
	}

	c.RegisteredClaims = w.RegisteredClaims
	c.Scope = w.Scope
	c.Service = w.Service
	c.Extra = nil
	if len(all) > 0 {
		c.Extra = all
	}
	return nil
}

// Scopes splits the space delimited scope claim.
func (c Claims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// HasScope reports whether s is one of the granted scopes.
func (c Claims) HasScope(s string) bool {
	return slices.Contains(c.Scopes(), s)
}

// IsService reports whether the claims belong to a service token.
func (c Claims) IsService() bool {
	return c.Scope == ServiceScope
}

// StringClaim returns the named extra claim when it holds a string.
func (c Claims) StringClaim(name string) string {
	v, _ := c.Extra[name].(string)
	return v
}

// BoolClaim returns the named extra claim when it holds a bool.
func (c Claims) BoolClaim(name string) bool {
	v, _ := c.Extra[name].(bool)
	return v
}
