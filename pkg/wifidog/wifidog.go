// Package wifidog implements the wire contract of the WiFiDog captive
// portal firmware. The response formats here are bit-exact requirements:
// the firmware does not parse HTTP error pages, so protocol endpoints
// answer 200 with the literal bodies below even on denial.
package wifidog

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// Auth response bodies. Exactly these bytes, nothing else.
const (
	AuthAllow = "Auth: 1"
	AuthDeny  = "Auth: 0"
)

// Request parameter names used by the firmware.
const (
	ParamGwID      = "gw_id"
	ParamGwMAC     = "gw_mac"
	ParamGwAddress = "gw_address"
	ParamGwPort    = "gw_port"
	ParamToken     = "token"
	ParamIP        = "ip"
	ParamMAC       = "mac"
	ParamSSID      = "ssid"
	ParamIncoming  = "incoming"
	ParamOutgoing  = "outgoing"
	ParamUptime    = "uptime"
)

// AuthRequest carries the parameters of a /wifidog/auth callback.
type AuthRequest struct {
	GwID  string
	GwMAC string
	Token string
	IP    string
	MAC   string
}

// ParseAuthRequest reads an auth callback from query parameters.
func ParseAuthRequest(r *http.Request) AuthRequest {
	q := r.URL.Query()
	return AuthRequest{
		GwID:  q.Get(ParamGwID),
		GwMAC: q.Get(ParamGwMAC),
		Token: q.Get(ParamToken),
		IP:    q.Get(ParamIP),
		MAC:   q.Get(ParamMAC),
	}
}

// PingRequest carries a gateway heartbeat with cumulative client counters.
type PingRequest struct {
	GwID     string
	GwMAC    string
	Token    string
	IP       string
	MAC      string
	Incoming int64
	Outgoing int64
	Uptime   int64
}

// ParsePingRequest reads a heartbeat from query or form values. The
// counters are cumulative since the client attached; missing or malformed
// numbers parse as zero, matching the firmware's loose formatting.
func ParsePingRequest(r *http.Request) PingRequest {
	get := func(key string) string {
		if v := r.URL.Query().Get(key); v != "" {
			return v
		}
		return r.PostFormValue(key)
	}

	return PingRequest{
		GwID:     get(ParamGwID),
		GwMAC:    get(ParamGwMAC),
		Token:    get(ParamToken),
		IP:       get(ParamIP),
		MAC:      get(ParamMAC),
		Incoming: parseCounter(get(ParamIncoming)),
		Outgoing: parseCounter(get(ParamOutgoing)),
		Uptime:   parseCounter(get(ParamUptime)),
	}
}

func parseCounter(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// WriteAuth writes the literal auth verdict. Always HTTP 200.
func WriteAuth(w http.ResponseWriter, allow bool) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if allow {
		w.Write([]byte(AuthAllow))
	} else {
		w.Write([]byte(AuthDeny))
	}
}

// WritePingAck writes the minimal JSON acknowledgement for a heartbeat.
// Always HTTP 200 so the firmware does not hang retrying.
func WritePingAck(w http.ResponseWriter, allowed bool, reason string) {
	resp := map[string]string{"resp": "ok"}
	if !allowed {
		resp["resp"] = "denied"
		if reason != "" {
			resp["reason"] = reason
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

// NormalizeMAC lowercases a MAC address for case-insensitive comparison.
func NormalizeMAC(mac string) string {
	return strings.ToLower(strings.TrimSpace(mac))
}
