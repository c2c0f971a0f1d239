// Package session implements the Session/Token Manager (component H):
// API key, JWT, and session credential issuance and verification, session
// lifecycle, brute-force lockout, and the audit log.
package session

import (
	"time"

	"github.com/rhema-dev/rhema/internal/rhema"
)

// CredentialKind identifies which of the three accepted shapes a raw
// Authorization header value parsed as.
type CredentialKind string

const (
	CredentialAPIKey  CredentialKind = "api_key"
	CredentialBearer  CredentialKind = "bearer"
	CredentialSession CredentialKind = "session"
)

// AuthResult is returned by Authenticate on success.
type AuthResult struct {
	Token       *rhema.AuthToken
	Session     *rhema.Session
	Subject     string
	Permissions []string
}

// AuthError enumerates why Authenticate/ValidateSession failed, so callers
// can map to the right apierrors code without string matching.
type AuthError string

const (
	ErrMissingCredential AuthError = "missing_credential"
	ErrInvalidFormat     AuthError = "invalid_format"
	ErrUnauthorized      AuthError = "unauthorized"
	ErrLockedOut         AuthError = "locked_out"
)

func (e AuthError) Error() string { return string(e) }

// CreateAPIKeyRequest parameterizes create_api_key.
type CreateAPIKeyRequest struct {
	User        string
	Permissions []string
	TTL         time.Duration // zero means no expiry
	MaxUsage    int64         // zero means unlimited
}

// CreateJWTRequest parameterizes create_jwt.
type CreateJWTRequest struct {
	User        string
	Permissions []string
	TTLHours    float64
}
