package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhema-dev/rhema/internal/rhema"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	audit, err := NewSQLiteAuditLogger(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = audit.Close() })

	return NewManager(Config{
		JWTSecret:         "test-secret",
		MaxFailedAttempts: 3,
		LockoutDuration:   time.Minute,
		SessionTTL:        time.Hour,
	}, audit, nil)
}

func TestManager_CreateAndAuthenticateAPIKey(t *testing.T) {
	m := newTestManager(t)

	_, raw, err := m.CreateAPIKey(CreateAPIKeyRequest{User: "alice", Permissions: []string{"read"}})
	require.NoError(t, err)

	result, err := m.Authenticate(context.Background(), raw, rhema.ClientInfo{ClientID: "c1", IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "alice", result.Subject)
	assert.Equal(t, []string{"read"}, result.Permissions)
}

func TestManager_AuthenticateAPIKey_Expired(t *testing.T) {
	m := newTestManager(t)

	_, raw, err := m.CreateAPIKey(CreateAPIKeyRequest{User: "bob", TTL: -time.Minute})
	require.NoError(t, err)

	_, err = m.Authenticate(context.Background(), raw, rhema.ClientInfo{ClientID: "c2"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestManager_AuthenticateAPIKey_MaxUsageExceeded(t *testing.T) {
	m := newTestManager(t)

	_, raw, err := m.CreateAPIKey(CreateAPIKeyRequest{User: "carol", MaxUsage: 1})
	require.NoError(t, err)

	client := rhema.ClientInfo{ClientID: "c3"}
	_, err = m.Authenticate(context.Background(), raw, client)
	require.NoError(t, err)

	_, err = m.Authenticate(context.Background(), raw, client)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestManager_CreateAndAuthenticateJWT(t *testing.T) {
	m := newTestManager(t)

	token, err := m.CreateJWT(CreateJWTRequest{User: "dave", Permissions: []string{"write"}, TTLHours: 1})
	require.NoError(t, err)

	result, err := m.Authenticate(context.Background(), "Bearer "+token, rhema.ClientInfo{ClientID: "c4"})
	require.NoError(t, err)
	assert.Equal(t, "dave", result.Subject)
}

func TestManager_AuthenticateJWT_Malformed(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Authenticate(context.Background(), "Bearer not-a-jwt", rhema.ClientInfo{ClientID: "c5"})
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestManager_RefreshToken(t *testing.T) {
	m := newTestManager(t)

	refresh, err := m.CreateRefreshToken("erin", []string{"read"})
	require.NoError(t, err)

	access, err := m.Refresh(refresh)
	require.NoError(t, err)

	result, err := m.Authenticate(context.Background(), "Bearer "+access, rhema.ClientInfo{ClientID: "c6"})
	require.NoError(t, err)
	assert.Equal(t, "erin", result.Subject)
}

func TestManager_RefreshToken_RejectsAccessToken(t *testing.T) {
	m := newTestManager(t)

	access, err := m.CreateJWT(CreateJWTRequest{User: "frank", TTLHours: 1})
	require.NoError(t, err)

	_, err = m.Refresh(access)
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

// TestManager_BruteForceLockout exercises the literal seed scenario: with
// max_failed_attempts=3, four consecutive authentications with a wrong API
// key from the same client yield three Unauthorized and then a locked-out
// response, and a correct credential immediately afterwards is also locked
// out.
func TestManager_BruteForceLockout(t *testing.T) {
	m := newTestManager(t)

	_, raw, err := m.CreateAPIKey(CreateAPIKeyRequest{User: "grace"})
	require.NoError(t, err)

	client := rhema.ClientInfo{ClientID: "attacker", IPAddress: "198.51.100.7"}

	for i := 0; i < 3; i++ {
		_, err := m.Authenticate(context.Background(), "wrong-key-of-sufficient-length", client)
		assert.ErrorIs(t, err, ErrUnauthorized)
	}

	_, err = m.Authenticate(context.Background(), "wrong-key-of-sufficient-length", client)
	assert.ErrorIs(t, err, ErrLockedOut)

	_, err = m.Authenticate(context.Background(), raw, client)
	assert.ErrorIs(t, err, ErrLockedOut)
}

func TestManager_RevokeAPIKey(t *testing.T) {
	m := newTestManager(t)

	token, raw, err := m.CreateAPIKey(CreateAPIKeyRequest{User: "heidi"})
	require.NoError(t, err)

	m.Revoke(token.ID)

	_, err = m.Authenticate(context.Background(), raw, rhema.ClientInfo{ClientID: "c7"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestManager_ValidateSession_IPChangeInvalidatesBeforeActivityUpdate(t *testing.T) {
	m := NewManager(Config{
		JWTSecret:                   "secret",
		InvalidateSessionOnIPChange: true,
		SessionTTL:                  time.Hour,
	}, NoopAuditLogger{}, nil)

	s := m.CreateSession("ivan", []string{"read"}, rhema.ClientInfo{ClientID: "c8", IPAddress: "10.0.0.1"})
	originalActivity := s.LastActivity

	_, err := m.ValidateSession(context.Background(), s.ID, rhema.ClientInfo{ClientID: "c8", IPAddress: "10.0.0.2"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	m.mu.RLock()
	stored := m.sessions[s.ID]
	m.mu.RUnlock()
	assert.Equal(t, rhema.SessionInvalidatedByPolicy, stored.State)
	assert.Equal(t, originalActivity, stored.LastActivity, "last_activity must not advance when the IP-change policy rejects the request")
}

func TestManager_ValidateSession_SameIPUpdatesActivity(t *testing.T) {
	m := NewManager(Config{
		JWTSecret:                   "secret",
		InvalidateSessionOnIPChange: true,
		SessionTTL:                  time.Hour,
	}, NoopAuditLogger{}, nil)

	s := m.CreateSession("judy", []string{"read"}, rhema.ClientInfo{ClientID: "c9", IPAddress: "10.0.0.1"})

	time.Sleep(time.Millisecond)
	validated, err := m.ValidateSession(context.Background(), s.ID, rhema.ClientInfo{ClientID: "c9", IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.True(t, validated.LastActivity.After(s.CreatedAt))
}

func TestManager_ValidateSession_Expired(t *testing.T) {
	m := NewManager(Config{JWTSecret: "secret", SessionTTL: time.Millisecond}, NoopAuditLogger{}, nil)

	s := m.CreateSession("kevin", nil, rhema.ClientInfo{ClientID: "c10"})
	time.Sleep(5 * time.Millisecond)

	_, err := m.ValidateSession(context.Background(), s.ID, rhema.ClientInfo{ClientID: "c10"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestManager_CleanupExpired(t *testing.T) {
	m := newTestManager(t)

	_, _, err := m.CreateAPIKey(CreateAPIKeyRequest{User: "laura", TTL: -time.Minute})
	require.NoError(t, err)

	s := m.CreateSession("mallory", nil, rhema.ClientInfo{ClientID: "c11"})
	m.Revoke(s.ID)

	removed := m.CleanupExpired()
	assert.Equal(t, 2, removed)
}
