package http

import (
	"net/http"

	"github.com/aussiebroadwan/shopauth/internal/auth/metrics"
	"github.com/aussiebroadwan/shopauth/pkg/authsdk"
	"github.com/aussiebroadwan/shopauth/pkg/httpx"
	"github.com/aussiebroadwan/shopauth/pkg/jwtx"
)

// JWKSHandler exposes the JSON Web Key Set for public key discovery.
// Reading the set also purges retired keys whose retention has elapsed.
//
//	@Summary		Get JWKS
//	@Description	Returns the JSON Web Key Set used to verify JWTs: the active key and retired keys still within retention.
//	@Tags			well-known
//	@Produce		json
//	@Success		200	{object}	authsdk.JWKSResponse	"The JSON Web Key Set"
//	@Router			/.well-known/jwks.json [get].
func JWKSHandler(keys *jwtx.KeyManager, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		set := keys.JWKS()
		m.JWKSKeys(len(set.Keys))
		httpx.WriteJSON(w, http.StatusOK, authsdk.JWKSResponse(set))
	}
}
