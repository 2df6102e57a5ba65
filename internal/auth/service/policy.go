package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aussiebroadwan/shopauth/internal/auth/metrics"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
)

// FailurePolicy decides what a component answers when its backing store is
// unavailable. The zero value is FailClosed.
type FailurePolicy int

const (
	// FailClosed answers with the restrictive value: sessions read as
	// inactive, ips read as blocked.
	FailClosed FailurePolicy = iota

	// FailOpen answers with the permissive value: ips read as not blocked,
	// attempts go uncounted.
	FailOpen
)

func (p FailurePolicy) String() string {
	if p == FailOpen {
		return "fail_open"
	}
	return "fail_closed"
}

// ParseFailurePolicy accepts "open"/"fail_open" and "closed"/"fail_closed".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "fail_open", "fail-open":
		return FailOpen, nil
	case "closed", "fail_closed", "fail-closed":
		return FailClosed, nil
	}
	return FailClosed, fmt.Errorf("service: unknown failure policy %q", s)
}

// storeFailure logs and counts an absorbed store error. Callers return the
// default their policy dictates.
func storeFailure(ctx context.Context, logger *slog.Logger, m *metrics.Metrics, component string, p FailurePolicy, op string, err error) {
	slogx.FromContextOr(ctx, logger).Error("store failure absorbed",
		"component", component,
		"operation", op,
		"policy", p.String(),
		"error", err,
	)
	m.StoreFailure(component, p.String())
}
