package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kosthub/wifi-portal/internal/models"
	"github.com/kosthub/wifi-portal/internal/storage"
)

// HandleListEvents lists audit events with optional filters.
func (s *PortalServer) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	var filters storage.EventLogFilters
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
	if raw := r.URL.Query().Get("type"); raw != "" {
		t := models.EventType(raw)
		filters.Type = &t
	}
	if raw := r.URL.Query().Get("level"); raw != "" {
		l := models.EventLevel(raw)
		filters.Level = &l
	}
	if raw := r.URL.Query().Get("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid start timestamp")
			return
		}
		filters.StartTime = &t
	}
	if raw := r.URL.Query().Get("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid end timestamp")
			return
		}
		filters.EndTime = &t
	}

	events, total, err := s.store.ListEventLogs(r.Context(), filters, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
	})
}

// parsePositiveInt parses a strictly positive integer parameter.
func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return n, nil
}
