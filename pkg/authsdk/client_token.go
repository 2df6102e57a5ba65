package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// IntrospectToken asks the service whether token is active. The call is
// authenticated with serviceToken, which must be a service token.
func (c *SDKClient) IntrospectToken(
	ctx context.Context,
	serviceToken, token string,
) (*IntrospectionResponse, error) {
	body, err := json.Marshal(IntrospectRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/introspect", bytes.NewReader(body), map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + serviceToken,
	})
	if err != nil {
		return nil, err
	}

	var out IntrospectionResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}

	return &out, nil
}
