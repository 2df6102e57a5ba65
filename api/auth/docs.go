// Package auth holds the Swagger document served at /swagger/.
// Regenerate it with: swag init -g internal/auth/http/router.go -o api/auth
package auth

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "AussieBroadWAN Team",
            "url": "https://github.com/aussiebroadwan/shopauth"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/.well-known/jwks.json": {
            "get": {
                "produces": ["application/json"],
                "tags": ["well-known"],
                "summary": "Get JWKS",
                "responses": {
                    "200": {"description": "The JSON Web Key Set", "schema": {"$ref": "#/definitions/authsdk.JWKSResponse"}}
                }
            }
        },
        "/v1/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Log in",
                "parameters": [
                    {"description": "Credentials", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/authsdk.LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.LoginResponse"}},
                    "400": {"description": "Malformed request", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "401": {"description": "Invalid credentials, with remaining_attempts", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "403": {"description": "Account disabled", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "429": {
                        "description": "Ip blocked, with blocked_for",
                        "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"},
                        "headers": {"Retry-After": {"type": "integer", "description": "Seconds until the block lifts"}}
                    }
                }
            }
        },
        "/v1/auth/logout": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["Auth"],
                "summary": "Log out",
                "responses": {
                    "204": {"description": "Session revoked"},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/v1/auth/logout-all": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Log out everywhere else",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.RevokedResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/v1/auth/password": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Auth"],
                "summary": "Change password",
                "parameters": [
                    {"description": "Current and new password", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/authsdk.ChangePasswordRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.RevokedResponse"}},
                    "400": {"description": "New password too weak", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "401": {"description": "Current password wrong", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/v1/sessions": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Sessions"],
                "summary": "List sessions",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.ListSessionsResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/v1/sessions/{id}": {
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["Sessions"],
                "summary": "Revoke a session",
                "parameters": [
                    {"type": "string", "description": "Session id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "Session revoked"},
                    "404": {"description": "No active session with that id", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/v1/introspect": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Tokens"],
                "summary": "Token introspection",
                "parameters": [
                    {"description": "Token to introspect", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/authsdk.IntrospectRequest"}}
                ],
                "responses": {
                    "200": {"description": "Token introspection result", "schema": {"$ref": "#/definitions/authsdk.IntrospectionResponse"}},
                    "401": {"description": "Missing or non-service bearer token", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/v1/service-tokens": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Tokens"],
                "summary": "Mint a service token",
                "parameters": [
                    {"description": "Service name", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/authsdk.ServiceTokenRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/authsdk.ServiceTokenResponse"}},
                    "403": {"description": "Forbidden - requires admin scope", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/v1/keys": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Keys"],
                "summary": "List signing keys",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/authsdk.SigningKeyInfo"}}},
                    "403": {"description": "Forbidden - requires admin scope", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/v1/keys/rotate": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Keys"],
                "summary": "Rotate signing keys",
                "parameters": [
                    {"description": "Rotation options", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/authsdk.RotateKeyRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.RotateKeyResponse"}},
                    "403": {"description": "Forbidden - requires admin scope", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/livez": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.HealthResponse"}}
                }
            }
        },
        "/readyz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Readiness probe",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.HealthResponse"}},
                    "503": {"description": "service not ready", "schema": {"$ref": "#/definitions/authsdk.HealthResponse"}}
                }
            }
        }
    },
    "definitions": {
        "authsdk.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "invalid_credentials"},
                "error_description": {"type": "string"},
                "remaining_attempts": {"type": "integer", "example": 3},
                "blocked_for": {"type": "integer", "example": 300}
            }
        },
        "authsdk.HealthChecks": {
            "type": "object",
            "properties": {
                "database": {"type": "string", "example": "ok"},
                "cache": {"type": "string", "example": "ok"},
                "signer": {"type": "string", "example": "ok"}
            }
        },
        "authsdk.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "ok"},
                "uptime": {"type": "string"},
                "version": {"type": "string"},
                "active_kid": {"type": "string", "example": "3f9c2a7d0b1e4c5a8d6f7e9b0a1c2d3e"},
                "checks": {"$ref": "#/definitions/authsdk.HealthChecks"}
            }
        },
        "authsdk.JWKSResponse": {
            "type": "object",
            "properties": {
                "keys": {"type": "array", "items": {"$ref": "#/definitions/jwtx.JWK"}}
            }
        },
        "jwtx.JWK": {
            "type": "object",
            "properties": {
                "kty": {"type": "string", "example": "RSA"},
                "kid": {"type": "string"},
                "use": {"type": "string", "example": "sig"},
                "alg": {"type": "string", "example": "RS256"},
                "n": {"type": "string"},
                "e": {"type": "string"}
            }
        },
        "authsdk.LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "authsdk.LoginResponse": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"},
                "token_type": {"type": "string", "example": "Bearer"},
                "expires_in": {"type": "integer", "example": 900},
                "expires_at": {"type": "string", "format": "date-time"},
                "session_id": {"type": "string"},
                "scope": {"type": "string", "example": "user"},
                "user_id": {"type": "string"}
            }
        },
        "authsdk.SessionInfo": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user_agent": {"type": "string"},
                "ip": {"type": "string"},
                "created_at": {"type": "string", "format": "date-time"},
                "expires_at": {"type": "string", "format": "date-time"},
                "current": {"type": "boolean"}
            }
        },
        "authsdk.ListSessionsResponse": {
            "type": "object",
            "properties": {
                "sessions": {"type": "array", "items": {"$ref": "#/definitions/authsdk.SessionInfo"}}
            }
        },
        "authsdk.RevokedResponse": {
            "type": "object",
            "properties": {
                "revoked": {"type": "integer", "example": 2}
            }
        },
        "authsdk.ChangePasswordRequest": {
            "type": "object",
            "properties": {
                "current_password": {"type": "string"},
                "new_password": {"type": "string"}
            }
        },
        "authsdk.ServiceTokenRequest": {
            "type": "object",
            "properties": {
                "service": {"type": "string", "example": "orders"}
            }
        },
        "authsdk.ServiceTokenResponse": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"},
                "token_type": {"type": "string", "example": "Bearer"},
                "expires_in": {"type": "integer", "example": 300}
            }
        },
        "authsdk.IntrospectRequest": {
            "type": "object",
            "properties": {
                "token": {"type": "string"}
            }
        },
        "authsdk.IntrospectionResponse": {
            "type": "object",
            "properties": {
                "active": {"type": "boolean"},
                "sub": {"type": "string"},
                "scope": {"type": "string"},
                "svc": {"type": "string"},
                "email": {"type": "string"},
                "jti": {"type": "string"},
                "iat": {"type": "integer"},
                "exp": {"type": "integer"}
            }
        },
        "authsdk.RotateKeyRequest": {
            "type": "object",
            "properties": {
                "retention_seconds": {"type": "integer", "example": 604800}
            }
        },
        "authsdk.RotateKeyResponse": {
            "type": "object",
            "properties": {
                "kid": {"type": "string"},
                "previous_kid": {"type": "string"},
                "retained_until": {"type": "string", "format": "date-time"}
            }
        },
        "authsdk.SigningKeyInfo": {
            "type": "object",
            "properties": {
                "kid": {"type": "string"},
                "algorithm": {"type": "string", "example": "RS256"},
                "active": {"type": "boolean"},
                "created_at": {"type": "string", "format": "date-time"},
                "retire_at": {"type": "string", "format": "date-time"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "JWT access token. Format: \"Bearer {token}\".",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "shopauth API",
	Description:      "Authentication and session security for the shop platform.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
