package wifidog

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAuthExactBodies(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteAuth(rec, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Auth: 1", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	WriteAuth(rec, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Auth: 0", rec.Body.String())
}

func TestWritePingAck(t *testing.T) {
	rec := httptest.NewRecorder()
	WritePingAck(rec, true, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"resp":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	WritePingAck(rec, false, "quota")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"resp":"denied","reason":"quota"}`, rec.Body.String())
}

func TestParseAuthRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet,
		"/wifidog/auth?gw_id=gw1&gw_mac=AA:BB:CC:DD:EE:FF&token=tok&ip=192.168.1.5&mac=11:22:33:44:55:66", nil)

	req := ParseAuthRequest(r)
	assert.Equal(t, "gw1", req.GwID)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", req.GwMAC)
	assert.Equal(t, "tok", req.Token)
	assert.Equal(t, "192.168.1.5", req.IP)
	assert.Equal(t, "11:22:33:44:55:66", req.MAC)
}

func TestParsePingRequestFromQuery(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet,
		"/wifidog/ping?gw_id=gw1&token=tok&ip=192.168.1.5&incoming=1234&outgoing=567&uptime=89", nil)

	req := ParsePingRequest(r)
	assert.Equal(t, int64(1234), req.Incoming)
	assert.Equal(t, int64(567), req.Outgoing)
	assert.Equal(t, int64(89), req.Uptime)
}

func TestParsePingRequestFromForm(t *testing.T) {
	form := url.Values{
		"gw_id":    {"gw1"},
		"token":    {"tok"},
		"incoming": {"100"},
		"outgoing": {"200"},
	}
	r := httptest.NewRequest(http.MethodPost, "/wifidog/ping", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	req := ParsePingRequest(r)
	assert.Equal(t, "gw1", req.GwID)
	assert.Equal(t, int64(100), req.Incoming)
	assert.Equal(t, int64(200), req.Outgoing)
}

func TestParsePingRequestLooseCounters(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{"", 0},
		{"garbage", 0},
		{" 42 ", 42},
		{"-5", -5},
	}

	for _, tc := range tests {
		r := httptest.NewRequest(http.MethodGet, "/wifidog/ping?incoming="+url.QueryEscape(tc.raw), nil)
		req := ParsePingRequest(r)
		require.Equal(t, tc.want, req.Incoming, "raw=%q", tc.raw)
	}
}

func TestNormalizeMAC(t *testing.T) {
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", NormalizeMAC(" AA:BB:CC:DD:EE:FF "))
	assert.Equal(t, "", NormalizeMAC(""))
}
