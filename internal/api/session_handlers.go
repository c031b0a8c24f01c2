package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kosthub/wifi-portal/internal/models"
	"github.com/kosthub/wifi-portal/internal/storage"
)

// HandleListSessions lists sessions with optional user_id, gateway_id and
// status filters.
func (s *PortalServer) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	var filters storage.SessionFilters
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid user_id filter")
			return
		}
		filters.UserID = &id
	}
	if raw := r.URL.Query().Get("gateway_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid gateway_id filter")
			return
		}
		filters.GatewayID = &id
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.SessionStatus(raw)
		switch status {
		case models.SessionActive, models.SessionExpired, models.SessionLoggedOut:
			filters.Status = &status
		default:
			s.respondError(w, http.StatusBadRequest, "invalid status filter")
			return
		}
	}

	sessions, total, err := s.store.ListSessions(r.Context(), filters, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    total,
	})
}

// HandleGetSession gets a session
func (s *PortalServer) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid session ID")
		return
	}

	session, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "session not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, session)
}

// HandleTerminateSession force-terminates a session. The gateway learns
// about it on its next auth or ping callback.
func (s *PortalServer) HandleTerminateSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid session ID")
		return
	}

	session, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "session not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.store.TerminateSession(r.Context(), id, models.SessionExpired); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	session.Status = models.SessionExpired

	s.recordEvent(r.Context(), &models.EventLog{
		Type:        models.EventLogout,
		Level:       models.EventInfo,
		UserID:      &session.UserID,
		GatewayID:   &session.GatewayID,
		SessionID:   &session.ID,
		Description: "session terminated by administrator",
	})
	s.events.PublishSessionTerminated(session)

	s.respondJSON(w, http.StatusOK, session)
}

// HandlePurgeSessions deletes terminated sessions older than the given
// retention period (days, default 90). Active sessions are never purged.
func (s *PortalServer) HandlePurgeSessions(w http.ResponseWriter, r *http.Request) {
	days := 90
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := parsePositiveInt(raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid days parameter")
			return
		}
		days = parsed
	}

	olderThan := time.Now().UTC().AddDate(0, 0, -days)
	purged, err := s.store.PurgeSessions(r.Context(), olderThan)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"purged":     purged,
		"older_than": olderThan,
	})
}
