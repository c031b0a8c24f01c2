package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kosthub/wifi-portal/internal/config"
	"github.com/kosthub/wifi-portal/internal/models"
	"github.com/kosthub/wifi-portal/internal/quota"
	"github.com/kosthub/wifi-portal/internal/storage"
	"github.com/kosthub/wifi-portal/pkg/crypto"
)

const (
	testGwID     = "gw-lobby"
	testGwIP     = "10.0.0.2"
	testClientIP = "192.168.1.50"
)

type testEnv struct {
	server *PortalServer
	store  *storage.MemoryStore
	cfg    *config.Config
	user   *models.User
	gw     *models.WifiGateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()

	cfg := &config.Config{
		Server: config.ServerConfig{Name: "test-portal", Version: "test"},
		JWT: config.JWTConfig{
			Secret:          "test-secret",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: time.Hour,
		},
		WiFiDog: config.WiFiDogConfig{
			EnforceSourceIP:   true,
			EnforceGatewayMAC: true,
			PolicyCacheTTL:    time.Minute,
		},
	}

	hash, err := crypto.HashPassword("secret-pw")
	require.NoError(t, err)
	user := &models.User{
		Email:        "tenant@example.com",
		Username:     "tenant",
		PasswordHash: hash,
		Roles:        []string{"tenant"},
		IsActive:     true,
	}
	require.NoError(t, store.CreateUser(ctx, user))

	gw := &models.WifiGateway{
		GwID:       testGwID,
		Name:       "Lobby AP",
		MgmtIP:     testGwIP,
		MACAddress: "AA:BB:CC:00:11:22",
	}
	require.NoError(t, store.CreateGateway(ctx, gw))

	require.NoError(t, store.CreatePolicy(ctx, &models.WifiPolicy{
		Role:     models.DefaultPolicyRole,
		Priority: 0,
		Quota: models.Quota{
			Windows: map[string]models.WindowLimit{
				models.WindowDaily: {LimitBytes: 1024 * 1024 * 1024},
			},
		},
	}))

	evaluator := quota.NewEvaluator(store, nil, cfg.WiFiDog.PolicyCacheTTL, time.UTC)
	server := NewPortalServer(cfg, store, nil, nil, evaluator)

	return &testEnv{server: server, store: store, cfg: cfg, user: user, gw: gw}
}

// do runs a request against the router with a controlled source address.
func (e *testEnv) do(method, target, remoteIP string, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.RemoteAddr = remoteIP + ":34567"

	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) activeSession(t *testing.T, token string) *models.WifiSession {
	t.Helper()
	session := &models.WifiSession{
		Token:     token,
		UserID:    e.user.ID,
		GatewayID: e.gw.ID,
		IP:        testClientIP,
	}
	require.NoError(t, e.store.CreateSession(context.Background(), session))
	return session
}

// ========== Auth endpoint ==========

func TestAuthAllowsValidToken(t *testing.T) {
	e := newTestEnv(t)
	e.activeSession(t, "good-token")

	rec := e.do(http.MethodGet,
		"/wifidog/auth?gw_id="+testGwID+"&token=good-token&ip="+testClientIP,
		testGwIP, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Auth: 1", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestAuthDeniesUnknownToken(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodGet,
		"/wifidog/auth?gw_id="+testGwID+"&token=bogus&ip="+testClientIP,
		testGwIP, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Auth: 0", rec.Body.String())
}

func TestAuthDeniesTokenFromWrongIP(t *testing.T) {
	e := newTestEnv(t)
	e.activeSession(t, "good-token")

	rec := e.do(http.MethodGet,
		"/wifidog/auth?gw_id="+testGwID+"&token=good-token&ip=192.168.1.99",
		testGwIP, nil)

	assert.Equal(t, "Auth: 0", rec.Body.String())
}

func TestAuthDeniesWithoutToken(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodGet, "/wifidog/auth?gw_id="+testGwID, testGwIP, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Auth: 0", rec.Body.String())
}

func TestAuthDeniesQuotaExhaustedAndExpiresSession(t *testing.T) {
	e := newTestEnv(t)
	session := e.activeSession(t, "good-token")

	// Blow the daily window.
	require.NoError(t, e.store.TouchSession(context.Background(), session.ID,
		2*1024*1024*1024, 0, 60, time.Now()))

	rec := e.do(http.MethodGet,
		"/wifidog/auth?gw_id="+testGwID+"&token=good-token&ip="+testClientIP,
		testGwIP, nil)

	assert.Equal(t, "Auth: 0", rec.Body.String())

	got, err := e.store.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, got.Status)
}

// ========== Trust filter ==========

func TestAuthTrustDenialsUseWireFormat(t *testing.T) {
	e := newTestEnv(t)
	e.activeSession(t, "good-token")

	tests := []struct {
		name     string
		target   string
		remoteIP string
	}{
		{"missing gw_id", "/wifidog/auth?token=good-token&ip=" + testClientIP, testGwIP},
		{"unknown gateway", "/wifidog/auth?gw_id=nope&token=good-token&ip=" + testClientIP, testGwIP},
		{"wrong source ip", "/wifidog/auth?gw_id=" + testGwID + "&token=good-token&ip=" + testClientIP, "10.9.9.9"},
		{"wrong gw_mac", "/wifidog/auth?gw_id=" + testGwID + "&gw_mac=ff:ff:ff:ff:ff:ff&token=good-token&ip=" + testClientIP, testGwIP},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(http.MethodGet, tc.target, tc.remoteIP, nil)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "Auth: 0", rec.Body.String())
		})
	}
}

func TestGatewayMACComparedCaseInsensitive(t *testing.T) {
	e := newTestEnv(t)
	e.activeSession(t, "good-token")

	rec := e.do(http.MethodGet,
		"/wifidog/auth?gw_id="+testGwID+"&gw_mac=aa:bb:cc:00:11:22&token=good-token&ip="+testClientIP,
		testGwIP, nil)

	assert.Equal(t, "Auth: 1", rec.Body.String())
}

func TestLoginPageTrustDenialIsJSON403(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodGet, "/wifidog/login?gw_id=nope", testClientIP, nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unknown_gateway", body["error"])
}

func TestTrustDenialRecordsEvent(t *testing.T) {
	e := newTestEnv(t)

	e.do(http.MethodGet, "/wifidog/auth?gw_id=nope&token=x", testGwIP, nil)

	events, total, err := e.store.ListEventLogs(context.Background(), storage.EventLogFilters{}, 10, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	assert.Equal(t, models.EventTrustDenied, events[0].Type)
}

// ========== Ping endpoint ==========

func TestPingHeartbeatWithoutToken(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodGet, "/wifidog/ping?gw_id="+testGwID, testGwIP, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["resp"])

	// The heartbeat refreshed the gateway's last seen timestamp.
	gw, err := e.store.GetGateway(context.Background(), e.gw.ID)
	require.NoError(t, err)
	assert.NotNil(t, gw.LastSeenAt)
}

func TestPingUpdatesSessionCounters(t *testing.T) {
	e := newTestEnv(t)
	session := e.activeSession(t, "good-token")

	rec := e.do(http.MethodGet,
		"/wifidog/ping?gw_id="+testGwID+"&token=good-token&ip="+testClientIP+
			"&incoming=1000&outgoing=500&uptime=300",
		testGwIP, nil)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["resp"])

	got, err := e.store.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), got.BytesIn)
	assert.Equal(t, int64(500), got.BytesOut)
	assert.Equal(t, int64(300), got.Uptime)
}

func TestPingCountersAreCumulative(t *testing.T) {
	e := newTestEnv(t)
	session := e.activeSession(t, "good-token")

	base := "/wifidog/ping?gw_id=" + testGwID + "&token=good-token&ip=" + testClientIP
	e.do(http.MethodGet, base+"&incoming=1000&outgoing=500&uptime=60", testGwIP, nil)
	e.do(http.MethodGet, base+"&incoming=1500&outgoing=700&uptime=120", testGwIP, nil)

	got, err := e.store.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), got.BytesIn)
	assert.Equal(t, int64(700), got.BytesOut)
}

func TestPingCounterRegressionRebasesSession(t *testing.T) {
	e := newTestEnv(t)
	session := e.activeSession(t, "good-token")

	base := "/wifidog/ping?gw_id=" + testGwID + "&token=good-token&ip=" + testClientIP
	e.do(http.MethodGet, base+"&incoming=5000&outgoing=2000&uptime=600", testGwIP, nil)

	// The gateway rebooted and its counters restarted near zero.
	rec := e.do(http.MethodGet, base+"&incoming=100&outgoing=50&uptime=10", testGwIP, nil)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["resp"])

	// The old row is expired with its usage preserved.
	old, err := e.store.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, old.Status)
	assert.Equal(t, int64(5000), old.BytesIn)

	// A fresh row carries the same token, baselined at the new counters.
	fresh, err := e.store.FindActiveSessionByToken(context.Background(), "good-token", testClientIP)
	require.NoError(t, err)
	assert.NotEqual(t, session.ID, fresh.ID)
	assert.Equal(t, int64(100), fresh.BytesIn)
	assert.Equal(t, int64(50), fresh.BytesOut)

	// Prior usage still counts toward the quota.
	total, err := e.store.SumUserUsage(context.Background(), e.user.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(7150), total)

	events, _, err := e.store.ListEventLogs(context.Background(), storage.EventLogFilters{}, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, models.EventCounterReset, events[0].Type)
}

func TestPingDeniesUnknownToken(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodGet,
		"/wifidog/ping?gw_id="+testGwID+"&token=bogus&ip="+testClientIP,
		testGwIP, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "denied", body["resp"])
	assert.Equal(t, "unknown_token", body["reason"])
}

func TestPingQuotaExceededDenies(t *testing.T) {
	e := newTestEnv(t)
	e.activeSession(t, "good-token")

	// 2 GiB each way blows the 1 GiB daily window.
	rec := e.do(http.MethodGet,
		"/wifidog/ping?gw_id="+testGwID+"&token=good-token&ip="+testClientIP+
			"&incoming=2147483648&outgoing=2147483648&uptime=60",
		testGwIP, nil)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "denied", body["resp"])
	assert.Equal(t, models.WindowDaily, body["reason"])

	_, err := e.store.FindActiveSessionByToken(context.Background(), "good-token", testClientIP)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPingUnknownGatewayToleratedWhenConfigured(t *testing.T) {
	e := newTestEnv(t)
	e.cfg.WiFiDog.AllowUnknownPing = true

	rec := e.do(http.MethodGet, "/wifidog/ping?gw_id=brand-new", testGwIP, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["resp"])
}

func TestPingUnknownGatewayDeniedByDefault(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodGet, "/wifidog/ping?gw_id=brand-new", testGwIP, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "denied", body["resp"])
	assert.Equal(t, "unknown_gateway", body["reason"])
}

func TestPingWithoutGatewayIDToleratedWhenConfigured(t *testing.T) {
	e := newTestEnv(t)
	e.cfg.WiFiDog.AllowUnknownPing = true

	rec := e.do(http.MethodGet, "/wifidog/ping", testGwIP, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["resp"])
}

func TestPingWithoutGatewayIDDeniedByDefault(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodGet, "/wifidog/ping", testGwIP, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "denied", body["resp"])
	assert.Equal(t, "missing_gw_id", body["reason"])
}

// ========== Login flow ==========

func loginForm(email, password string) url.Values {
	return url.Values{
		"email":      {email},
		"password":   {password},
		"gw_id":      {testGwID},
		"gw_address": {"192.168.1.1"},
		"gw_port":    {"2060"},
		"ip":         {testClientIP},
		"mac":        {"DE:AD:BE:EF:00:01"},
	}
}

func TestLoginCreatesSessionAndRedirectsToGateway(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodPost, "/wifidog/login", testClientIP,
		loginForm("tenant@example.com", "secret-pw"))

	require.Equal(t, http.StatusFound, rec.Code)
	location := rec.Header().Get("Location")
	assert.True(t, strings.HasPrefix(location, "http://192.168.1.1:2060/wifidog/auth?token="),
		"redirect goes to the gateway auth target, got %s", location)

	token := strings.TrimPrefix(location, "http://192.168.1.1:2060/wifidog/auth?token=")
	session, err := e.store.FindActiveSessionByToken(context.Background(), token, testClientIP)
	require.NoError(t, err)
	assert.Equal(t, e.user.ID, session.UserID)
	assert.Equal(t, "de:ad:be:ef:00:01", session.MAC)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodPost, "/wifidog/login", testClientIP,
		loginForm("tenant@example.com", "wrong"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid email or password")

	events, _, err := e.store.ListEventLogs(context.Background(), storage.EventLogFilters{}, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, models.EventLoginFailed, events[0].Type)
}

func TestLoginRejectsDisabledAccount(t *testing.T) {
	e := newTestEnv(t)
	e.user.IsActive = false
	require.NoError(t, e.store.UpdateUser(context.Background(), e.user))

	rec := e.do(http.MethodPost, "/wifidog/login", testClientIP,
		loginForm("tenant@example.com", "secret-pw"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Account is disabled")
}

func TestLoginSupersedesPreviousSession(t *testing.T) {
	e := newTestEnv(t)
	old := e.activeSession(t, "old-token")

	rec := e.do(http.MethodPost, "/wifidog/login", testClientIP,
		loginForm("tenant@example.com", "secret-pw"))
	require.Equal(t, http.StatusFound, rec.Code)

	got, err := e.store.GetSession(context.Background(), old.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, got.Status)
}

// ========== Logout ==========

func TestLogoutTerminatesSession(t *testing.T) {
	e := newTestEnv(t)
	session := e.activeSession(t, "good-token")

	rec := e.do(http.MethodGet,
		"/wifidog/logout?token=good-token&ip="+testClientIP, testClientIP, nil)

	assert.Equal(t, http.StatusFound, rec.Code)

	got, err := e.store.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionLoggedOut, got.Status)
}

// ========== Portal page and session gate ==========

func TestPortalRedirectsWithoutSession(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodGet, "/wifidog/portal?gw_id="+testGwID, testClientIP, nil)

	require.Equal(t, http.StatusFound, rec.Code)
	location := rec.Header().Get("Location")
	assert.True(t, strings.HasPrefix(location, "/wifidog/login"))
	assert.Contains(t, location, "gw_id="+testGwID, "gateway parameters survive the redirect")
}

func TestPortalTokenFromWrongIPRedirects(t *testing.T) {
	e := newTestEnv(t)
	e.activeSession(t, "good-token")

	rec := e.do(http.MethodGet,
		"/wifidog/portal?gw_id="+testGwID+"&token=good-token", "192.168.1.99", nil)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/wifidog/login"))
}

func TestPortalStaleTokenRedirectsDespiteCookie(t *testing.T) {
	e := newTestEnv(t)
	e.activeSession(t, "good-token")

	access, _, err := e.server.auth.GenerateTokenPair(e.user)
	require.NoError(t, err)

	// A presented token is authoritative; the cookie fallback must not
	// rescue a token that resolves to nothing.
	req := httptest.NewRequest(http.MethodGet,
		"/wifidog/portal?gw_id="+testGwID+"&token=stale-token", nil)
	req.RemoteAddr = testClientIP + ":34567"
	req.AddCookie(&http.Cookie{Name: portalCookieName, Value: access})

	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/wifidog/login"))
}

func TestPortalRendersUsageForTokenHolder(t *testing.T) {
	e := newTestEnv(t)
	session := e.activeSession(t, "good-token")
	require.NoError(t, e.store.TouchSession(context.Background(), session.ID, 1000, 500, 60, time.Now()))

	rec := e.do(http.MethodGet,
		"/wifidog/portal?gw_id="+testGwID+"&token=good-token", testClientIP, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "tenant@example.com")
	assert.Contains(t, body, "1500")
	assert.Contains(t, body, "daily")
}
