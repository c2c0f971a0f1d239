package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rhema-dev/rhema/internal/rhema"
)

// Config configures the Session/Token Manager.
type Config struct {
	JWTSecret                   string
	MaxFailedAttempts           int
	LockoutDuration             time.Duration
	InvalidateSessionOnIPChange bool
	SessionTTL                  time.Duration
}

// Manager implements the Session/Token Manager (component H).
type Manager struct {
	mu       sync.RWMutex
	tokens   map[string]*rhema.AuthToken // keyed by token ID (api keys keyed by raw key)
	sessions map[string]*rhema.Session   // keyed by session ID

	cfg     Config
	lockout *lockoutTracker
	audit   AuditLogger
	logger  *slog.Logger
}

// NewManager constructs a Manager. audit may be NoopAuditLogger{} when
// audit_logging.enabled is false.
func NewManager(cfg Config, audit AuditLogger, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 15 * time.Minute
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	return &Manager{
		tokens:   make(map[string]*rhema.AuthToken),
		sessions: make(map[string]*rhema.Session),
		cfg:      cfg,
		lockout:  newLockoutTracker(cfg.MaxFailedAttempts, cfg.LockoutDuration),
		audit:    audit,
		logger:   logger.With("component", "session_manager"),
	}
}

// CreateAPIKey issues a new bare API key credential.
func (m *Manager) CreateAPIKey(req CreateAPIKeyRequest) (*rhema.AuthToken, string, error) {
	raw, err := generateAPIKey()
	if err != nil {
		return nil, "", fmt.Errorf("generate api key: %w", err)
	}

	token := &rhema.AuthToken{
		ID:          uuid.New().String(),
		Kind:        rhema.TokenAPIKey,
		Subject:     req.User,
		Permissions: req.Permissions,
		CreatedAt:   time.Now(),
		MaxUsage:    req.MaxUsage,
	}
	if req.TTL > 0 {
		exp := time.Now().Add(req.TTL)
		token.ExpiresAt = &exp
	}

	m.mu.Lock()
	m.tokens[raw] = token
	m.mu.Unlock()

	return token, raw, nil
}

// RegisterStaticAPIKey installs a preconfigured raw key (e.g. auth.api_key
// from the on-disk config) as a non-expiring, unlimited-usage credential.
// Unlike CreateAPIKey, the caller supplies the raw value instead of one
// being generated, since an operator-supplied key must stay stable across
// restarts.
func (m *Manager) RegisterStaticAPIKey(raw string, permissions []string) *rhema.AuthToken {
	token := &rhema.AuthToken{
		ID:          uuid.New().String(),
		Kind:        rhema.TokenAPIKey,
		Subject:     "static-config",
		Permissions: permissions,
		CreatedAt:   time.Now(),
	}
	m.mu.Lock()
	m.tokens[raw] = token
	m.mu.Unlock()
	return token
}

// CreateJWT issues a signed access token.
func (m *Manager) CreateJWT(req CreateJWTRequest) (string, error) {
	ttl := time.Duration(req.TTLHours * float64(time.Hour))
	signed, _, err := signJWT([]byte(m.cfg.JWTSecret), req.User, req.Permissions, ttl, false)
	return signed, err
}

// CreateRefreshToken issues a long-lived refresh token for the user.
func (m *Manager) CreateRefreshToken(user string, permissions []string) (string, error) {
	signed, _, err := signJWT([]byte(m.cfg.JWTSecret), user, permissions, 30*24*time.Hour, true)
	return signed, err
}

// Refresh exchanges a valid refresh token for a new access token.
func (m *Manager) Refresh(refreshToken string) (string, error) {
	claims, err := verifyJWT([]byte(m.cfg.JWTSecret), refreshToken)
	if err != nil {
		return "", err
	}
	if !claims.Refresh {
		return "", ErrInvalidFormat
	}
	return m.CreateJWT(CreateJWTRequest{User: claims.Subject, Permissions: claims.Permissions, TTLHours: 1})
}

// Revoke marks an API key or session as no longer valid.
func (m *Manager) Revoke(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tokens[id]; ok {
		t.Revoked = true
	}
	for _, t := range m.tokens {
		if t.ID == id {
			t.Revoked = true
		}
	}
	if s, ok := m.sessions[id]; ok {
		s.State = rhema.SessionRevoked
	}
}

// Authenticate validates one of the three credential shapes: bare API key,
// "Bearer <jwt>", or a session cookie value. It enforces brute-force
// lockout before any cryptographic work and audits every outcome.
func (m *Manager) Authenticate(ctx context.Context, credential string, client rhema.ClientInfo) (*AuthResult, error) {
	now := time.Now()

	if m.lockout.lockedOut(client.ClientID, now) {
		m.auditEvent(ctx, "", client, "authenticate", "locked_out", "")
		return nil, ErrLockedOut
	}

	if credential == "" {
		m.auditEvent(ctx, "", client, "authenticate", "missing_credential", "")
		return nil, ErrMissingCredential
	}

	result, err := m.authenticateCredential(credential, client, now)
	if err != nil {
		m.lockout.recordFailure(client.ClientID, now)
		m.auditEvent(ctx, "", client, "authenticate", string(err.(AuthError)), "")
		return nil, err
	}

	m.lockout.recordSuccess(client.ClientID)
	m.auditEvent(ctx, result.Subject, client, "authenticate", "success", "")
	return result, nil
}

func (m *Manager) authenticateCredential(credential string, client rhema.ClientInfo, now time.Time) (*AuthResult, error) {
	kind, value := classifyCredential(credential)
	switch kind {
	case CredentialBearer:
		if !isWellFormedJWT(value) {
			return nil, ErrInvalidFormat
		}
		claims, err := verifyJWT([]byte(m.cfg.JWTSecret), value)
		if err != nil {
			return nil, err.(AuthError)
		}
		if claims.Refresh {
			return nil, ErrInvalidFormat
		}
		return &AuthResult{Subject: claims.Subject, Permissions: claims.Permissions}, nil

	case CredentialAPIKey:
		if len(value) < 16 || len(value) > 256 {
			return nil, ErrInvalidFormat
		}
		m.mu.RLock()
		_, isSession := m.sessions[value]
		m.mu.RUnlock()
		if isSession {
			s, err := m.ValidateSession(context.Background(), value, client)
			if err != nil {
				return nil, err.(AuthError)
			}
			return &AuthResult{Session: s, Subject: s.User, Permissions: s.Permissions}, nil
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		token, ok := m.tokens[value]
		if !ok {
			return nil, ErrUnauthorized
		}
		if token.Revoked {
			return nil, ErrUnauthorized
		}
		if token.ExpiresAt != nil && !now.Before(*token.ExpiresAt) {
			return nil, ErrUnauthorized
		}
		if token.MaxUsage > 0 && token.UsageCount >= token.MaxUsage {
			return nil, ErrUnauthorized
		}
		token.UsageCount++
		token.LastUsed = &now
		return &AuthResult{Token: token, Subject: token.Subject, Permissions: token.Permissions}, nil

	default:
		return nil, ErrInvalidFormat
	}
}

// classifyCredential parses an Authorization header value into its kind
// and the raw credential material, accepting "Bearer <jwt>", "ApiKey <key>",
// and a bare key with no scheme prefix.
func classifyCredential(credential string) (CredentialKind, string) {
	parts := strings.SplitN(strings.TrimSpace(credential), " ", 2)
	if len(parts) == 2 {
		switch parts[0] {
		case "Bearer":
			return CredentialBearer, parts[1]
		case "ApiKey":
			return CredentialAPIKey, parts[1]
		}
	}
	return CredentialAPIKey, credential
}

// CreateSession starts a new Active session for user.
func (m *Manager) CreateSession(user string, permissions []string, client rhema.ClientInfo) *rhema.Session {
	now := time.Now()
	s := &rhema.Session{
		ID:           uuid.New().String(),
		User:         user,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(m.cfg.SessionTTL),
		ClientInfo:   client,
		Permissions:  permissions,
		State:        rhema.SessionActive,
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// ValidateSession checks a session's expiry and optional IP-change policy,
// updating last-activity only after the policy check succeeds. Per the
// resolved Open Question, the IP-change check runs strictly before the
// activity-time update, closing the refresh-then-invalidate race: a client
// that changes IP cannot extend a session's life by presenting it first.
func (m *Manager) ValidateSession(ctx context.Context, id string, client rhema.ClientInfo) (*rhema.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrUnauthorized
	}

	now := time.Now()
	if s.State != rhema.SessionActive {
		return nil, ErrUnauthorized
	}
	if now.After(s.ExpiresAt) {
		s.State = rhema.SessionExpired
		return nil, ErrUnauthorized
	}

	if m.cfg.InvalidateSessionOnIPChange && s.ClientInfo.IPAddress != "" && client.IPAddress != s.ClientInfo.IPAddress {
		s.State = rhema.SessionInvalidatedByPolicy
		m.auditEvent(ctx, s.User, client, "validate_session", "invalidated_by_policy", id)
		return nil, ErrUnauthorized
	}

	s.LastActivity = now
	return s, nil
}

// CleanupExpired removes sessions and revoked/expired API keys past their
// expiry, returning the number of entries removed.
func (m *Manager) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, s := range m.sessions {
		if now.After(s.ExpiresAt) || s.State == rhema.SessionRevoked || s.State == rhema.SessionExpired {
			delete(m.sessions, id)
			removed++
		}
	}
	for key, t := range m.tokens {
		if t.Revoked || (t.ExpiresAt != nil && now.After(*t.ExpiresAt)) {
			delete(m.tokens, key)
			removed++
		}
	}
	return removed
}

// FailedAttempts exposes the current failure count for a client, primarily
// for tests asserting the brute-force seed scenario.
func (m *Manager) FailedAttempts(clientID string) int {
	return m.lockout.failedAttempts(clientID)
}

func (m *Manager) auditEvent(ctx context.Context, subject string, client rhema.ClientInfo, action, result, detail string) {
	if m.audit == nil {
		return
	}
	if err := m.audit.Record(ctx, AuditEvent{
		Timestamp: time.Now(),
		Subject:   subject,
		ClientID:  client.ClientID,
		IPAddress: client.IPAddress,
		Action:    action,
		Result:    result,
		Detail:    detail,
	}); err != nil {
		m.logger.Warn("audit record failed", "error", err)
	}
}

func generateAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "rhema_" + hex.EncodeToString(b), nil
}
