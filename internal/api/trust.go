package api

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/kosthub/wifi-portal/internal/cache"
	"github.com/kosthub/wifi-portal/internal/models"
	"github.com/kosthub/wifi-portal/internal/storage"
	"github.com/kosthub/wifi-portal/pkg/wifidog"
)

// denyMode selects the wire encoding of a trust denial. The firmware
// parses each endpoint differently, so a denial must answer in that
// endpoint's own format.
type denyMode int

const (
	// denyBrowser answers JSON 403, for endpoints a browser talks to.
	denyBrowser denyMode = iota
	// denyAuthWire answers the literal deny body, HTTP 200.
	denyAuthWire
	// denyPingAck answers the heartbeat acknowledgement, HTTP 200.
	denyPingAck
)

// Trust denial reasons.
const (
	denyMissingGwID    = "missing_gw_id"
	denyUnknownGateway = "unknown_gateway"
	denyIPMismatch     = "ip_mismatch"
	denyMACMismatch    = "mac_mismatch"
)

// gatewayTrust builds the trust filter middleware for one deny mode. It
// resolves the calling gateway from gw_id and rejects callbacks that fail
// the configured identity checks. On success the gateway is stored in the
// request context; ping may pass without one when allow_unknown_ping is
// set.
func (s *PortalServer) gatewayTrust(mode denyMode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gwID := requestValue(r, wifidog.ParamGwID)
			if gwID == "" {
				if mode == denyPingAck && s.config.WiFiDog.AllowUnknownPing {
					next.ServeHTTP(w, r)
					return
				}
				s.denyTrust(w, r, mode, denyMissingGwID, nil)
				return
			}

			gw, err := s.lookupGateway(r.Context(), gwID)
			if err != nil {
				if mode == denyPingAck && s.config.WiFiDog.AllowUnknownPing && errors.Is(err, storage.ErrNotFound) {
					next.ServeHTTP(w, r)
					return
				}
				s.denyTrust(w, r, mode, denyUnknownGateway, nil)
				return
			}

			// Source IP and MAC checks only make sense for callbacks the
			// gateway itself originates. Login and portal requests come
			// from the client's browser.
			if mode != denyBrowser {
				if s.config.WiFiDog.EnforceSourceIP && gw.MgmtIP != "" {
					if clientIP(r) != gw.MgmtIP {
						s.denyTrust(w, r, mode, denyIPMismatch, gw)
						return
					}
				}

				if s.config.WiFiDog.EnforceGatewayMAC && gw.MACAddress != "" {
					gwMAC := requestValue(r, wifidog.ParamGwMAC)
					if gwMAC != "" && wifidog.NormalizeMAC(gwMAC) != wifidog.NormalizeMAC(gw.MACAddress) {
						s.denyTrust(w, r, mode, denyMACMismatch, gw)
						return
					}
				}
			}

			ctx := context.WithValue(r.Context(), ctxKeyGateway, gw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// lookupGateway resolves a gateway by gw_id, cache first.
func (s *PortalServer) lookupGateway(ctx context.Context, gwID string) (*models.WifiGateway, error) {
	key := cache.GatewayKey(gwID)

	var cached models.WifiGateway
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	gw, err := s.store.GetGatewayByGwID(ctx, gwID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, gw, s.config.WiFiDog.PolicyCacheTTL); err != nil {
		log.Warn().Err(err).Str("gw_id", gwID).Msg("Gateway cache write failed")
	}

	return gw, nil
}

// denyTrust writes the denial in the endpoint's wire format and records
// the event.
func (s *PortalServer) denyTrust(w http.ResponseWriter, r *http.Request, mode denyMode, reason string, gw *models.WifiGateway) {
	log.Warn().
		Str("path", r.URL.Path).
		Str("remote_ip", clientIP(r)).
		Str("reason", reason).
		Msg("Gateway trust check failed")

	event := &models.EventLog{
		Type:        models.EventTrustDenied,
		Level:       models.EventWarning,
		Description: "gateway trust check failed: " + reason,
		Details: models.Variables{
			"path":      r.URL.Path,
			"remote_ip": clientIP(r),
			"reason":    reason,
		},
	}
	if gw != nil {
		event.GatewayID = &gw.ID
	}
	if err := s.store.CreateEventLog(r.Context(), event); err != nil {
		log.Error().Err(err).Msg("Failed to record trust denial")
	}

	switch mode {
	case denyAuthWire:
		wifidog.WriteAuth(w, false)
	case denyPingAck:
		wifidog.WritePingAck(w, false, reason)
	default:
		s.respondError(w, http.StatusForbidden, reason)
	}
}

// requestValue reads a parameter from the query string or the form body.
func requestValue(r *http.Request, key string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return r.PostFormValue(key)
}

// clientIP returns the request's source IP without the port. RealIP
// middleware has already folded proxy headers into RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
