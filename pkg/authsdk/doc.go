/*
Package authsdk is the Go client for the shopauth service.

# SDKClient vs Session

SDKClient covers the unauthenticated endpoints and logging in. A Session
wraps an access token and covers everything that needs a bearer token.

	client := authsdk.NewSDKClient("https://auth.example.com")

	health, err := client.GetReadiness(ctx)
	jwks, err := client.GetJWKS(ctx)

	session, err := client.Login(ctx, "alice@example.com", password)
	var apiErr *authsdk.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.IsBlocked():
			// wait *apiErr.BlockedFor
		case apiErr.RemainingAttempts != nil:
			// *apiErr.RemainingAttempts tries left before the ip is blocked
		}
	}

Access tokens are short-lived and session-backed. There is no refresh:
once a Session reports ErrSessionExpired, log in again.

	sessions, err := session.ListSessions(ctx)
	revoked, err := session.LogoutAll(ctx)
	err = session.Logout(ctx)

# Administration

Sessions whose user is staff carry the "admin" scope and can rotate keys and
mint service tokens:

	res, err := admin.RotateKey(ctx, 0)
	svc, err := admin.IssueServiceToken(ctx, "orders")

# Services

A service token authenticates service-to-service calls such as
introspection:

	info, err := client.IntrospectToken(ctx, svc.AccessToken, userToken)
	if err == nil && info.Active {
		// token is valid and its session has not been revoked
	}

Services that only need signature checks should verify tokens locally
against the JWKS with jwtx.RemoteVerifier instead.
*/
package authsdk
