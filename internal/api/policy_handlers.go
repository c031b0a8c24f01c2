package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/kosthub/wifi-portal/internal/cache"
	"github.com/kosthub/wifi-portal/internal/models"
	"github.com/kosthub/wifi-portal/internal/storage"
)

// HandleListPolicies lists policies
func (s *PortalServer) HandleListPolicies(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	policies, total, err := s.store.ListPolicies(r.Context(), limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"policies": policies,
		"total":    total,
	})
}

// HandleCreatePolicy creates a policy
func (s *PortalServer) HandleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role     string       `json:"role" validate:"required,min=2,max=64"`
		Priority int          `json:"priority" validate:"min=0"`
		Quota    models.Quota `json:"quota"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	policy := &models.WifiPolicy{
		Role:     req.Role,
		Priority: req.Priority,
		Quota:    req.Quota,
	}

	if err := s.store.CreatePolicy(r.Context(), policy); err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidData):
			s.respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, storage.ErrDuplicateKey):
			s.respondError(w, http.StatusConflict, "policy for role already exists")
		default:
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s.invalidatePolicyCache(r)
	s.respondJSON(w, http.StatusCreated, policy)
}

// HandleGetPolicy gets a policy
func (s *PortalServer) HandleGetPolicy(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid policy ID")
		return
	}

	policy, err := s.store.GetPolicy(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "policy not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, policy)
}

// HandleUpdatePolicy updates a policy
func (s *PortalServer) HandleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid policy ID")
		return
	}

	policy, err := s.store.GetPolicy(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "policy not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var req struct {
		Priority *int          `json:"priority"`
		Quota    *models.Quota `json:"quota"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Priority != nil {
		policy.Priority = *req.Priority
	}
	if req.Quota != nil {
		policy.Quota = *req.Quota
	}

	if err := s.store.UpdatePolicy(r.Context(), policy); err != nil {
		if errors.Is(err, storage.ErrInvalidData) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.invalidatePolicyCache(r)
	s.respondJSON(w, http.StatusOK, policy)
}

// HandleDeletePolicy deletes a policy
func (s *PortalServer) HandleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid policy ID")
		return
	}

	if err := s.store.DeletePolicy(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "policy not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.invalidatePolicyCache(r)
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// invalidatePolicyCache drops every cached per-user policy resolution.
// Role membership is not indexed per key, so a policy write clears the
// whole namespace.
func (s *PortalServer) invalidatePolicyCache(r *http.Request) {
	if err := s.cache.DeletePattern(r.Context(), cache.PolicyPattern); err != nil {
		log.Warn().Err(err).Msg("Failed to invalidate policy cache")
	}
}
