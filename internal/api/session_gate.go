package api

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/kosthub/wifi-portal/pkg/wifidog"
)

// sessionGate resolves the client's active session for portal pages. A
// presented wifidog token parameter is authoritative: it must match an
// active session on the client's IP or the request is sent back to login.
// Without a token the gate falls back to the portal cookie set at login,
// resolving the user's active session by client IP. Redirects preserve
// the gateway parameters.
func (s *PortalServer) sessionGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if token := requestValue(r, wifidog.ParamToken); token != "" {
			session, err := s.store.FindActiveSessionByToken(r.Context(), token, ip)
			if err != nil {
				log.Debug().Str("ip", ip).Msg("Portal token did not match an active session")
				redirectToLogin(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeySession, session)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if cookie, err := r.Cookie(portalCookieName); err == nil {
			if claims, err := s.auth.ValidateToken(cookie.Value); err == nil {
				session, err := s.store.FindActiveSessionForUser(r.Context(), claims.UserID, ip)
				if err == nil {
					ctx := context.WithValue(r.Context(), ctxKeySession, session)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}
		}

		redirectToLogin(w, r)
	})
}

func redirectToLogin(w http.ResponseWriter, r *http.Request) {
	redirect := "/wifidog/login"
	if r.URL.RawQuery != "" {
		redirect += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}
