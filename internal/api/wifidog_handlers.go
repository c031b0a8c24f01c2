package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/kosthub/wifi-portal/internal/models"
	"github.com/kosthub/wifi-portal/internal/quota"
	"github.com/kosthub/wifi-portal/internal/storage"
	"github.com/kosthub/wifi-portal/pkg/crypto"
	"github.com/kosthub/wifi-portal/pkg/wifidog"
)

// portalCookieName carries the JWT that lets a returning browser reach
// the portal page without re-entering the wifidog token.
const portalCookieName = "portal_session"

// loginPageData feeds the login template. The gateway parameters are
// echoed back as hidden form fields so the POST can rebuild the firmware
// redirect.
type loginPageData struct {
	GwID      string
	GwAddress string
	GwPort    string
	IP        string
	MAC       string
	SSID      string
	URL       string
	Error     string
}

func loginDataFromRequest(r *http.Request) loginPageData {
	return loginPageData{
		GwID:      requestValue(r, wifidog.ParamGwID),
		GwAddress: requestValue(r, wifidog.ParamGwAddress),
		GwPort:    requestValue(r, wifidog.ParamGwPort),
		IP:        requestValue(r, wifidog.ParamIP),
		MAC:       requestValue(r, wifidog.ParamMAC),
		SSID:      requestValue(r, wifidog.ParamSSID),
		URL:       requestValue(r, "url"),
	}
}

// HandleWifidogLoginPage serves the captive login form. The firmware
// redirects unauthenticated clients here with the gateway parameters in
// the query string.
func (s *PortalServer) HandleWifidogLoginPage(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, "login.html", loginDataFromRequest(r))
}

// HandleWifidogLogin authenticates the captive login form and provisions
// a session. On success the browser is redirected back to the gateway's
// local auth target with the fresh token.
func (s *PortalServer) HandleWifidogLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gw := gatewayFromContext(ctx)
	data := loginDataFromRequest(r)

	email := r.PostFormValue("email")
	password := r.PostFormValue("password")
	if email == "" || password == "" {
		data.Error = "Email and password are required"
		s.renderPage(w, "login.html", data)
		return
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil || !s.auth.VerifyPassword(password, user.PasswordHash) {
		s.recordLoginFailure(ctx, gw, email, "invalid credentials")
		data.Error = "Invalid email or password"
		s.renderPage(w, "login.html", data)
		return
	}

	if !user.IsActive {
		s.recordLoginFailure(ctx, gw, email, "account disabled")
		data.Error = "Account is disabled"
		s.renderPage(w, "login.html", data)
		return
	}

	result, err := s.quota.Evaluate(ctx, user.ID)
	if err != nil {
		log.Error().Err(err).Str("email", email).Msg("Quota evaluation failed at login")
		data.Error = "Service unavailable, try again later"
		s.renderPage(w, "login.html", data)
		return
	}
	if !result.Allowed {
		s.recordEvent(ctx, &models.EventLog{
			Type:        models.EventQuotaExceeded,
			Level:       models.EventWarning,
			UserID:      &user.ID,
			Description: "login refused, quota exhausted: " + result.Reason,
			Details:     models.Variables{"reason": result.Reason},
		})
		data.Error = "Your bandwidth quota is exhausted"
		s.renderPage(w, "login.html", data)
		return
	}

	token, err := crypto.GenerateToken()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	clientAddr := data.IP
	if clientAddr == "" {
		clientAddr = clientIP(r)
	}

	session := &models.WifiSession{
		Token:      token,
		UserID:     user.ID,
		GatewayID:  gw.ID,
		IP:         clientAddr,
		MAC:        wifidog.NormalizeMAC(data.MAC),
		Status:     models.SessionActive,
		LastSeenAt: time.Now().UTC(),
	}
	if data.URL != "" || data.SSID != "" {
		session.Meta = models.Variables{}
		if data.URL != "" {
			session.Meta["url"] = data.URL
		}
		if data.SSID != "" {
			session.Meta["ssid"] = data.SSID
		}
	}

	if err := s.store.CreateSession(ctx, session); err != nil {
		log.Error().Err(err).Str("email", email).Msg("Failed to create session")
		s.respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	now := time.Now().UTC()
	user.LastLoginAt = &now
	if err := s.store.UpdateUser(ctx, user); err != nil {
		log.Warn().Err(err).Str("email", email).Msg("Failed to update last login")
	}

	s.recordEvent(ctx, &models.EventLog{
		Type:        models.EventLogin,
		Level:       models.EventInfo,
		UserID:      &user.ID,
		GatewayID:   &gw.ID,
		SessionID:   &session.ID,
		Description: "captive portal login",
		Details:     models.Variables{"ip": clientAddr, "mac": session.MAC},
	})
	s.events.PublishSessionCreated(session)

	accessToken, _, err := s.auth.GenerateTokenPair(user)
	if err == nil {
		http.SetCookie(w, &http.Cookie{
			Name:     portalCookieName,
			Value:    accessToken,
			Path:     "/wifidog",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}

	// Send the browser to the gateway so the firmware learns the token
	// and opens the firewall for this client.
	target := fmt.Sprintf("http://%s:%s/wifidog/auth?token=%s",
		data.GwAddress, data.GwPort, url.QueryEscape(token))
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleWifidogAuth answers the firmware's token validation callback.
// The body is the literal allow or deny verdict, always HTTP 200.
func (s *PortalServer) HandleWifidogAuth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	gw := gatewayFromContext(ctx)
	req := wifidog.ParseAuthRequest(r)

	if req.Token == "" {
		wifidog.WriteAuth(w, false)
		return
	}

	session, err := s.store.FindActiveSessionByToken(ctx, req.Token, req.IP)
	if err != nil {
		log.Debug().Str("gw_id", gw.GwID).Str("ip", req.IP).Msg("Auth callback for unknown token")
		wifidog.WriteAuth(w, false)
		return
	}

	// A token minted for one gateway is not valid on another.
	if session.GatewayID != gw.ID {
		log.Warn().
			Str("gw_id", gw.GwID).
			Str("session_id", session.ID.String()).
			Msg("Auth callback from wrong gateway for token")
		wifidog.WriteAuth(w, false)
		return
	}

	result, err := s.quota.Evaluate(ctx, session.UserID)
	if err != nil {
		// Fail closed. A user without a resolvable policy gets no access.
		if errors.Is(err, quota.ErrPolicyNotFound) {
			log.Warn().Str("user_id", session.UserID.String()).Msg("No applicable policy, denying")
		} else {
			log.Error().Err(err).Msg("Quota evaluation failed")
		}
		wifidog.WriteAuth(w, false)
		return
	}

	if !result.Allowed {
		s.expireForQuota(ctx, session, result.Reason)
		wifidog.WriteAuth(w, false)
		return
	}

	wifidog.WriteAuth(w, true)
}

// HandleWifidogPing handles the gateway heartbeat. Without a token it is
// pure keepalive; with one it also carries the client's cumulative byte
// counters, which are folded into the session before re-checking quota.
func (s *PortalServer) HandleWifidogPing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req := wifidog.ParsePingRequest(r)

	if gw := gatewayFromContext(ctx); gw != nil {
		if err := s.store.TouchGateway(ctx, gw.ID, time.Now().UTC()); err != nil {
			log.Warn().Err(err).Str("gw_id", gw.GwID).Msg("Failed to update gateway last seen")
		}
	}

	if req.Token == "" {
		wifidog.WritePingAck(w, true, "")
		return
	}

	session, err := s.store.FindActiveSessionByToken(ctx, req.Token, req.IP)
	if err != nil {
		wifidog.WritePingAck(w, false, "unknown_token")
		return
	}

	inDelta := req.Incoming - session.BytesIn
	outDelta := req.Outgoing - session.BytesOut

	err = s.store.TouchSession(ctx, session.ID, inDelta, outDelta, req.Uptime, time.Now().UTC())
	switch {
	case errors.Is(err, storage.ErrCounterRegression):
		// The gateway counters went backwards, meaning it rebooted and
		// restarted accounting from zero. Start a fresh session row with
		// the same token, baselined at the reported values, so usage
		// already billed is never lost or double counted.
		session, err = s.rebaseSession(ctx, session, req)
		if err != nil {
			log.Error().Err(err).Msg("Failed to rebase session after counter regression")
			wifidog.WritePingAck(w, false, "internal_error")
			return
		}
	case errors.Is(err, storage.ErrSessionNotActive):
		wifidog.WritePingAck(w, false, "session_terminated")
		return
	case err != nil:
		log.Error().Err(err).Msg("Failed to update session counters")
		wifidog.WritePingAck(w, false, "internal_error")
		return
	}

	result, err := s.quota.Evaluate(ctx, session.UserID)
	if err != nil {
		log.Error().Err(err).Msg("Quota evaluation failed")
		wifidog.WritePingAck(w, false, "internal_error")
		return
	}

	if !result.Allowed {
		s.expireForQuota(ctx, session, result.Reason)
		wifidog.WritePingAck(w, false, result.Reason)
		return
	}

	wifidog.WritePingAck(w, true, "")
}

// HandleWifidogLogout terminates the client's session on request.
func (s *PortalServer) HandleWifidogLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := requestValue(r, wifidog.ParamToken)
	if token != "" {
		ip := requestValue(r, wifidog.ParamIP)
		if ip == "" {
			ip = clientIP(r)
		}
		session, err := s.store.FindActiveSessionByToken(ctx, token, ip)
		if err == nil {
			if mac := requestValue(r, wifidog.ParamMAC); mac != "" && wifidog.NormalizeMAC(mac) != session.MAC {
				err = storage.ErrNotFound
			}
		}
		if err == nil {
			if err := s.store.TerminateSession(ctx, session.ID, models.SessionLoggedOut); err != nil {
				log.Error().Err(err).Str("session_id", session.ID.String()).Msg("Failed to terminate session")
			} else {
				session.Status = models.SessionLoggedOut
				s.recordEvent(ctx, &models.EventLog{
					Type:        models.EventLogout,
					Level:       models.EventInfo,
					UserID:      &session.UserID,
					GatewayID:   &session.GatewayID,
					SessionID:   &session.ID,
					Description: "user logged out",
				})
				s.events.PublishSessionTerminated(session)
			}
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     portalCookieName,
		Value:    "",
		Path:     "/wifidog",
		MaxAge:   -1,
		HttpOnly: true,
	})

	if s.config.WiFiDog.RedirectURL != "" {
		http.Redirect(w, r, s.config.WiFiDog.RedirectURL, http.StatusFound)
		return
	}

	redirect := "/wifidog/login"
	if r.URL.RawQuery != "" {
		redirect += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

// portalPageData feeds the portal status template.
type portalPageData struct {
	Email      string
	Session    *models.WifiSession
	Result     *quota.Result
	LogoutURL  string
	TotalBytes int64
}

// HandleWifidogPortal renders the post-login status page with the
// session counters and the full quota window breakdown.
func (s *PortalServer) HandleWifidogPortal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := sessionFromContext(ctx)

	user, err := s.store.GetUser(ctx, session.UserID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to load account")
		return
	}

	result, err := s.quota.Evaluate(ctx, session.UserID)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to evaluate quota")
		return
	}

	s.renderPage(w, "portal.html", portalPageData{
		Email:      user.Email,
		Session:    session,
		Result:     result,
		LogoutURL:  "/wifidog/logout?token=" + url.QueryEscape(session.Token),
		TotalBytes: session.TotalBytes(),
	})
}

// rebaseSession replaces a session whose gateway restarted accounting.
// The replacement keeps the token and starts from the reported counters.
func (s *PortalServer) rebaseSession(ctx context.Context, old *models.WifiSession, req wifidog.PingRequest) (*models.WifiSession, error) {
	fresh := &models.WifiSession{
		Token:      old.Token,
		UserID:     old.UserID,
		GatewayID:  old.GatewayID,
		IP:         old.IP,
		MAC:        old.MAC,
		Status:     models.SessionActive,
		BytesIn:    req.Incoming,
		BytesOut:   req.Outgoing,
		Uptime:     req.Uptime,
		LastSeenAt: time.Now().UTC(),
		Meta:       old.Meta,
	}

	if err := s.store.CreateSession(ctx, fresh); err != nil {
		return nil, err
	}

	s.recordEvent(ctx, &models.EventLog{
		Type:        models.EventCounterReset,
		Level:       models.EventWarning,
		UserID:      &old.UserID,
		GatewayID:   &old.GatewayID,
		SessionID:   &fresh.ID,
		Description: "gateway counters regressed, session rebased",
		Details: models.Variables{
			"previous_session_id": old.ID.String(),
			"bytes_in":            req.Incoming,
			"bytes_out":           req.Outgoing,
		},
	})

	return fresh, nil
}

// expireForQuota terminates a session that ran out of quota and records
// the denial.
func (s *PortalServer) expireForQuota(ctx context.Context, session *models.WifiSession, reason string) {
	if err := s.store.TerminateSession(ctx, session.ID, models.SessionExpired); err != nil {
		log.Error().Err(err).Str("session_id", session.ID.String()).Msg("Failed to expire session")
		return
	}
	session.Status = models.SessionExpired

	s.recordEvent(ctx, &models.EventLog{
		Type:        models.EventQuotaExceeded,
		Level:       models.EventWarning,
		UserID:      &session.UserID,
		GatewayID:   &session.GatewayID,
		SessionID:   &session.ID,
		Description: "session expired, quota exhausted: " + reason,
		Details:     models.Variables{"reason": reason},
	})
	s.events.PublishQuotaExceeded(session, reason)
	s.events.PublishSessionTerminated(session)
}

// recordLoginFailure writes a failed-login audit event.
func (s *PortalServer) recordLoginFailure(ctx context.Context, gw *models.WifiGateway, email, reason string) {
	event := &models.EventLog{
		Type:        models.EventLoginFailed,
		Level:       models.EventWarning,
		Description: "captive portal login failed: " + reason,
		Details:     models.Variables{"email": email},
	}
	if gw != nil {
		event.GatewayID = &gw.ID
	}
	s.recordEvent(ctx, event)
}

// recordEvent persists an audit event, logging instead of failing the
// request when the write does not go through.
func (s *PortalServer) recordEvent(ctx context.Context, event *models.EventLog) {
	if err := s.store.CreateEventLog(ctx, event); err != nil {
		log.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to record event")
	}
}
