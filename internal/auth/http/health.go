package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/authsdk"
	"github.com/aussiebroadwan/shopauth/pkg/httpx"
)

// Pinger is implemented by the store and the cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Signer is the part of the KeyManager the probes look at.
type Signer interface {
	IsReady() bool
	ActiveKID() string
}

const readyzTimeout = 2 * time.Second

// Health serves the liveness and readiness probes. Cache may be nil.
type Health struct {
	Started time.Time
	Version string
	Store   Pinger
	Cache   Pinger
	Keys    Signer
}

func (h *Health) report(status string) authsdk.HealthResponse {
	return authsdk.HealthResponse{
		Status:    status,
		Uptime:    time.Since(h.Started).Round(time.Second).String(),
		Version:   h.Version,
		ActiveKID: h.Keys.ActiveKID(),
	}
}

// Livez godoc
//
//	@Summary		Liveness probe
//	@Description	Always 200 while the process serves requests. Reports uptime, build version and the kid currently signing tokens.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse
//	@Router			/livez [get]
func (h *Health) Livez(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.report("ok"))
}

// Readyz godoc
//
//	@Summary		Readiness probe
//	@Description	Pings the store and the cache and checks that a signing key is loaded.
//	@Description	A store or signer failure answers 503. A cache failure only degrades the status.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse
//	@Failure		503	{object}	authsdk.HealthResponse
//	@Router			/readyz [get]
func (h *Health) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyzTimeout)
	defer cancel()

	checks := &authsdk.HealthChecks{
		Database: probe(ctx, h.Store),
		Cache:    "ok",
		Signer:   "ok",
	}
	if h.Cache != nil {
		checks.Cache = probe(ctx, h.Cache)
	}
	if !h.Keys.IsReady() {
		checks.Signer = "error: no keys loaded"
	}

	status, code := "ok", http.StatusOK
	switch {
	case checks.Database != "ok" || checks.Signer != "ok":
		status, code = "degraded", http.StatusServiceUnavailable
	case checks.Cache != "ok":
		status = "degraded"
	}

	resp := h.report(status)
	resp.Checks = checks
	httpx.WriteJSON(w, code, resp)
}

func probe(ctx context.Context, p Pinger) string {
	if err := p.Ping(ctx); err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}
