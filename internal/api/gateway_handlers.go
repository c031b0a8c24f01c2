package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kosthub/wifi-portal/internal/cache"
	"github.com/kosthub/wifi-portal/internal/models"
	"github.com/kosthub/wifi-portal/internal/storage"
)

// HandleListGateways lists gateways
func (s *PortalServer) HandleListGateways(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)

	gateways, total, err := s.store.ListGateways(r.Context(), limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"gateways": gateways,
		"total":    total,
	})
}

// HandleCreateGateway registers a gateway
func (s *PortalServer) HandleCreateGateway(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GwID       string           `json:"gw_id" validate:"required,min=4,max=64"`
		Name       string           `json:"name" validate:"required"`
		MgmtIP     string           `json:"mgmt_ip" validate:"ip"`
		MACAddress string           `json:"mac_address" validate:"mac"`
		Meta       models.Variables `json:"meta"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	gw := &models.WifiGateway{
		GwID:       req.GwID,
		Name:       req.Name,
		MgmtIP:     req.MgmtIP,
		MACAddress: req.MACAddress,
		Meta:       req.Meta,
	}

	if err := s.store.CreateGateway(r.Context(), gw); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			s.respondError(w, http.StatusConflict, "gateway ID already registered")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusCreated, gw)
}

// HandleGetGateway gets a gateway
func (s *PortalServer) HandleGetGateway(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid gateway ID")
		return
	}

	gw, err := s.store.GetGateway(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "gateway not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, gw)
}

// HandleUpdateGateway updates a gateway
func (s *PortalServer) HandleUpdateGateway(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid gateway ID")
		return
	}

	gw, err := s.store.GetGateway(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "gateway not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var req struct {
		Name       *string           `json:"name"`
		MgmtIP     *string           `json:"mgmt_ip"`
		MACAddress *string           `json:"mac_address"`
		Meta       *models.Variables `json:"meta"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != nil {
		gw.Name = *req.Name
	}
	if req.MgmtIP != nil {
		gw.MgmtIP = *req.MgmtIP
	}
	if req.MACAddress != nil {
		gw.MACAddress = *req.MACAddress
	}
	if req.Meta != nil {
		gw.Meta = *req.Meta
	}

	if err := s.store.UpdateGateway(r.Context(), gw); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Trust decisions read through the cache; drop the stale entry.
	s.cache.Delete(r.Context(), cache.GatewayKey(gw.GwID))

	s.respondJSON(w, http.StatusOK, gw)
}

// HandleDeleteGateway deletes a gateway
func (s *PortalServer) HandleDeleteGateway(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid gateway ID")
		return
	}

	gw, err := s.store.GetGateway(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "gateway not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.store.DeleteGateway(r.Context(), id); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.cache.Delete(r.Context(), cache.GatewayKey(gw.GwID))

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
