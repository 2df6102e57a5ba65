package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/shopauth/internal/auth/domain"
	"github.com/aussiebroadwan/shopauth/internal/auth/service"
	"github.com/aussiebroadwan/shopauth/pkg/authsdk"
	"github.com/aussiebroadwan/shopauth/pkg/httpx"
	"github.com/aussiebroadwan/shopauth/pkg/slogx"
)

// KeyRotationHandler handles signing key administration. Both endpoints
// require the admin scope.
type KeyRotationHandler struct {
	KeyRotationService *service.KeyRotationService
}

// HandleRotate handles POST /v1/keys/rotate
//
//	@Summary		Rotate signing keys
//	@Description	Generates a new active signing key. The previous key stays in the JWKS until retained_until so tokens it signed keep verifying.
//	@Tags			Keys
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.RotateKeyRequest	false	"Rotation options"
//	@Success		200		{object}	authsdk.RotateKeyResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Bad Request"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Unauthorized"
//	@Failure		403		{object}	authsdk.ErrorResponse	"Forbidden - requires admin scope"
//	@Failure		500		{object}	authsdk.ErrorResponse	"Internal Server Error"
//	@Security		BearerAuth
//	@Router			/v1/keys/rotate [post]
func (h *KeyRotationHandler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RotateKeyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.RetentionSeconds < 0 {
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "retention_seconds must not be negative").WriteError(w)
		return
	}

	res, err := h.KeyRotationService.RotateKey(r.Context(), time.Duration(req.RetentionSeconds)*time.Second)
	if err != nil {
		slogx.FromContext(r.Context()).Error("key rotation failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.RotateKeyResponse{
		KID:           res.KID,
		PreviousKID:   res.PreviousKID,
		RetainedUntil: res.RetainedUntil,
	})
}

// HandleListKeys handles GET /v1/keys
//
//	@Summary		List signing keys
//	@Description	Lists the active key and every retired key still published in the JWKS.
//	@Tags			Keys
//	@Produce		json
//	@Success		200	{array}		authsdk.SigningKeyInfo
//	@Failure		401	{object}	authsdk.ErrorResponse	"Unauthorized"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Forbidden - requires admin scope"
//	@Security		BearerAuth
//	@Router			/v1/keys [get]
func (h *KeyRotationHandler) HandleListKeys(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, domainKeysToSDK(h.KeyRotationService.ListKeys()))
}

func domainKeysToSDK(keys []domain.SigningKey) []authsdk.SigningKeyInfo {
	sdkKeys := make([]authsdk.SigningKeyInfo, len(keys))
	for i, key := range keys {
		sdkKeys[i] = authsdk.SigningKeyInfo{
			Kid:       key.Kid,
			Algorithm: key.Algorithm,
			Active:    key.Active,
			CreatedAt: key.CreatedAt,
			RetireAt:  key.RetireAt,
		}
	}
	return sdkKeys
}
