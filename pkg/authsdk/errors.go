package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/shopauth/pkg/httpx"
)

// Error codes returned in the "error" field.
const (
	ErrorCodeInvalidRequest     = "invalid_request"
	ErrorCodeInvalidCredentials = "invalid_credentials"
	ErrorCodeTooManyAttempts    = "too_many_attempts"
	ErrorCodeUserInactive       = "user_inactive"
	ErrorCodeInvalidToken       = "invalid_token"
	ErrorCodeInsufficientScope  = "insufficient_scope"
	ErrorCodeNotFound           = "not_found"
	ErrorCodeRateLimited        = "rate_limit_exceeded"
	ErrorCodeServerError        = "server_error"
	ErrorCodeNotReady           = "not_ready"
)

// APIError is an error response from the auth service. The server writes it
// with WriteError and the SDK parses responses back into it.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`

	// Set only on login failures.
	RemainingAttempts *int
	BlockedFor        *time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// IsBlocked reports whether the error is a brute-force block.
func (e *APIError) IsBlocked() bool {
	return e.Code == ErrorCodeTooManyAttempts
}

// WriteError writes e as JSON. A block also sets Retry-After.
func (e *APIError) WriteError(w http.ResponseWriter) {
	body := ErrorResponse{
		Error:             e.Code,
		ErrorDescription:  e.Description,
		RemainingAttempts: e.RemainingAttempts,
	}
	if e.BlockedFor != nil {
		secs := int((*e.BlockedFor + time.Second - 1) / time.Second)
		body.BlockedFor = &secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	httpx.WriteJSON(w, e.StatusCode, body)
}

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	ErrUserInactive = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeUserInactive,
		Description: "the account is disabled",
	}

	ErrNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeNotFound,
		Description: "resource not found",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}
)

// NewAPIError creates an APIError with the given status, code and description.
func NewAPIError(statusCode int, code, description string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Description: description}
}

// InvalidCredentials builds the 401 written after a failed login.
func InvalidCredentials(remaining int) *APIError {
	return &APIError{
		StatusCode:        http.StatusUnauthorized,
		Code:              ErrorCodeInvalidCredentials,
		Description:       "invalid email or password",
		RemainingAttempts: &remaining,
	}
}

// TooManyAttempts builds the 429 written while an ip is blocked.
func TooManyAttempts(blockedFor time.Duration) *APIError {
	return &APIError{
		StatusCode:  http.StatusTooManyRequests,
		Code:        ErrorCodeTooManyAttempts,
		Description: "too many failed login attempts",
		BlockedFor:  &blockedFor,
	}
}

// parseErrorResponse turns a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		apiErr := &APIError{
			StatusCode:        resp.StatusCode,
			Code:              errResp.Error,
			Description:       errResp.ErrorDescription,
			RemainingAttempts: errResp.RemainingAttempts,
		}
		if errResp.BlockedFor != nil {
			d := time.Duration(*errResp.BlockedFor) * time.Second
			apiErr.BlockedFor = &d
		}
		return apiErr
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
