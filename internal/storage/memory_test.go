package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosthub/wifi-portal/internal/models"
)

func seedAttachment(t *testing.T, store *MemoryStore) (*models.User, *models.WifiGateway) {
	t.Helper()
	ctx := context.Background()

	user := &models.User{
		Email:    "tenant@example.com",
		Username: "tenant",
		Roles:    []string{"tenant"},
		IsActive: true,
	}
	require.NoError(t, store.CreateUser(ctx, user))

	gw := &models.WifiGateway{
		GwID:   "gw-lobby",
		Name:   "Lobby AP",
		MgmtIP: "10.0.0.2",
	}
	require.NoError(t, store.CreateGateway(ctx, gw))

	return user, gw
}

func TestCreateSessionSupersedesActive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	user, gw := seedAttachment(t, store)

	first := &models.WifiSession{
		Token:     "token-1",
		UserID:    user.ID,
		GatewayID: gw.ID,
		IP:        "192.168.1.50",
	}
	require.NoError(t, store.CreateSession(ctx, first))

	second := &models.WifiSession{
		Token:     "token-2",
		UserID:    user.ID,
		GatewayID: gw.ID,
		IP:        "192.168.1.50",
	}
	require.NoError(t, store.CreateSession(ctx, second))

	old, err := store.GetSession(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, old.Status)
	assert.NotNil(t, old.TerminatedAt)

	// The old token no longer resolves.
	_, err = store.FindActiveSessionByToken(ctx, "token-1", "192.168.1.50")
	assert.ErrorIs(t, err, ErrNotFound)

	found, err := store.FindActiveSessionByToken(ctx, "token-2", "192.168.1.50")
	require.NoError(t, err)
	assert.Equal(t, second.ID, found.ID)
}

func TestCreateSessionDifferentIPDoesNotSupersede(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	user, gw := seedAttachment(t, store)

	first := &models.WifiSession{Token: "t1", UserID: user.ID, GatewayID: gw.ID, IP: "192.168.1.50"}
	require.NoError(t, store.CreateSession(ctx, first))

	second := &models.WifiSession{Token: "t2", UserID: user.ID, GatewayID: gw.ID, IP: "192.168.1.51"}
	require.NoError(t, store.CreateSession(ctx, second))

	got, err := store.GetSession(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionActive, got.Status)
}

func TestTouchSessionAccumulatesCounters(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	user, gw := seedAttachment(t, store)

	session := &models.WifiSession{Token: "t1", UserID: user.ID, GatewayID: gw.ID, IP: "192.168.1.50"}
	require.NoError(t, store.CreateSession(ctx, session))

	now := time.Now()
	require.NoError(t, store.TouchSession(ctx, session.ID, 1000, 500, 60, now))
	require.NoError(t, store.TouchSession(ctx, session.ID, 200, 100, 120, now.Add(time.Minute)))

	got, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), got.BytesIn)
	assert.Equal(t, int64(600), got.BytesOut)
	assert.Equal(t, int64(120), got.Uptime)
}

func TestTouchSessionRejectsRegression(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	user, gw := seedAttachment(t, store)

	session := &models.WifiSession{Token: "t1", UserID: user.ID, GatewayID: gw.ID, IP: "192.168.1.50"}
	require.NoError(t, store.CreateSession(ctx, session))
	require.NoError(t, store.TouchSession(ctx, session.ID, 1000, 500, 60, time.Now()))

	err := store.TouchSession(ctx, session.ID, -10, 0, 90, time.Now())
	assert.ErrorIs(t, err, ErrCounterRegression)

	// Nothing was written.
	got, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.BytesIn)
	assert.Equal(t, int64(500), got.BytesOut)
}

func TestTouchSessionTerminated(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	user, gw := seedAttachment(t, store)

	session := &models.WifiSession{Token: "t1", UserID: user.ID, GatewayID: gw.ID, IP: "192.168.1.50"}
	require.NoError(t, store.CreateSession(ctx, session))
	require.NoError(t, store.TerminateSession(ctx, session.ID, models.SessionLoggedOut))

	err := store.TouchSession(ctx, session.ID, 10, 10, 60, time.Now())
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestTerminateSessionIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	user, gw := seedAttachment(t, store)

	session := &models.WifiSession{Token: "t1", UserID: user.ID, GatewayID: gw.ID, IP: "192.168.1.50"}
	require.NoError(t, store.CreateSession(ctx, session))

	require.NoError(t, store.TerminateSession(ctx, session.ID, models.SessionLoggedOut))
	// A second terminate must not flip the status.
	require.NoError(t, store.TerminateSession(ctx, session.ID, models.SessionExpired))

	got, err := store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionLoggedOut, got.Status)
}

func TestTerminateSessionRejectsNonTerminalStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	user, gw := seedAttachment(t, store)

	session := &models.WifiSession{Token: "t1", UserID: user.ID, GatewayID: gw.ID, IP: "192.168.1.50"}
	require.NoError(t, store.CreateSession(ctx, session))

	err := store.TerminateSession(ctx, session.ID, models.SessionActive)
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestFindActiveSessionByTokenChecksIP(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	user, gw := seedAttachment(t, store)

	session := &models.WifiSession{Token: "t1", UserID: user.ID, GatewayID: gw.ID, IP: "192.168.1.50"}
	require.NoError(t, store.CreateSession(ctx, session))

	// The right token from the wrong address does not resolve.
	_, err := store.FindActiveSessionByToken(ctx, "t1", "192.168.1.99")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSumUserUsage(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	user, gw := seedAttachment(t, store)

	recent := &models.WifiSession{
		Token: "t1", UserID: user.ID, GatewayID: gw.ID, IP: "192.168.1.50",
		BytesIn: 1000, BytesOut: 500, LastSeenAt: time.Now(),
	}
	require.NoError(t, store.CreateSession(ctx, recent))
	require.NoError(t, store.TerminateSession(ctx, recent.ID, models.SessionExpired))

	old := &models.WifiSession{
		Token: "t2", UserID: user.ID, GatewayID: gw.ID, IP: "192.168.1.50",
		BytesIn: 9000, BytesOut: 9000, LastSeenAt: time.Now().Add(-48 * time.Hour),
	}
	require.NoError(t, store.CreateSession(ctx, old))
	require.NoError(t, store.TerminateSession(ctx, old.ID, models.SessionExpired))

	lifetime, err := store.SumUserUsage(ctx, user.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(19500), lifetime)

	windowed, err := store.SumUserUsage(ctx, user.ID, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1500), windowed)

	none, err := store.SumUserUsage(ctx, uuid.New(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), none)
}

func TestResolvePolicyForRoles(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.CreatePolicy(ctx, &models.WifiPolicy{Role: "default", Priority: 0}))
	require.NoError(t, store.CreatePolicy(ctx, &models.WifiPolicy{Role: "tenant", Priority: 10}))
	require.NoError(t, store.CreatePolicy(ctx, &models.WifiPolicy{Role: "premium", Priority: 20}))

	policy, err := store.ResolvePolicyForRoles(ctx, []string{"tenant", "premium"})
	require.NoError(t, err)
	assert.Equal(t, "premium", policy.Role)

	policy, err = store.ResolvePolicyForRoles(ctx, []string{"tenant"})
	require.NoError(t, err)
	assert.Equal(t, "tenant", policy.Role)

	_, err = store.ResolvePolicyForRoles(ctx, []string{"visitor"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreatePolicyValidatesQuota(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	err := store.CreatePolicy(ctx, &models.WifiPolicy{
		Role:  "bad",
		Quota: models.Quota{Windows: map[string]models.WindowLimit{"hourly": {LimitBytes: 1}}},
	})
	assert.ErrorIs(t, err, ErrInvalidData)

	err = store.CreatePolicy(ctx, &models.WifiPolicy{
		Role:  "bad2",
		Quota: models.Quota{HardCapBytes: -1},
	})
	assert.ErrorIs(t, err, ErrInvalidData)

	// A zero window limit is a mistyped quota, not an unlimited window.
	err = store.CreatePolicy(ctx, &models.WifiPolicy{
		Role:  "bad3",
		Quota: models.Quota{Windows: map[string]models.WindowLimit{models.WindowDaily: {LimitBytes: 0}}},
	})
	assert.ErrorIs(t, err, ErrInvalidData)
}

func TestPurgeSessionsKeepsActive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	user, gw := seedAttachment(t, store)

	stale := &models.WifiSession{
		Token: "t1", UserID: user.ID, GatewayID: gw.ID, IP: "192.168.1.50",
		LastSeenAt: time.Now().Add(-100 * 24 * time.Hour),
	}
	require.NoError(t, store.CreateSession(ctx, stale))

	// Still active, must survive the purge regardless of age.
	purged, err := store.PurgeSessions(ctx, time.Now().AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(0), purged)

	require.NoError(t, store.TerminateSession(ctx, stale.ID, models.SessionExpired))
	purged, err = store.PurgeSessions(ctx, time.Now().AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = store.GetSession(ctx, stale.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
