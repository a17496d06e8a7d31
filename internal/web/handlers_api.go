package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"smarthq-bridge/internal/smarthq"
	"smarthq-bridge/internal/store"
)

// writeJSON writes v as a JSON response with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write json response", "err", err)
	}
}

// writeCloudError maps upstream failures to a response. Missing
// credentials are the caller's problem; everything else is the cloud's.
func (s *Server) writeCloudError(w http.ResponseWriter, err error) {
	if errors.Is(err, smarthq.ErrNotAuthenticated) {
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated, complete login first"})
		return
	}
	s.writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream request failed"})
}

func (s *Server) handleAPIHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"authorized": s.session.Authorized(),
		"version":    s.version,
	})
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) handleAPIListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.cloud.ListDevices(r.Context())
	if err != nil {
		s.logger.Error("list devices", "err", err)
		s.writeCloudError(w, err)
		return
	}
	if devices == nil {
		devices = []smarthq.Device{}
	}
	s.writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleAPIDeviceServices(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	services, err := s.cloud.DeviceServices(r.Context(), id)
	if err != nil {
		s.logger.Error("list device services", "device_id", id, "err", err)
		s.writeCloudError(w, err)
		return
	}
	if services == nil {
		services = []smarthq.ServiceDescriptor{}
	}
	s.writeJSON(w, http.StatusOK, services)
}

func (s *Server) handleAPIListAccessories(w http.ResponseWriter, r *http.Request) {
	accs, err := s.store.ListAccessories()
	if err != nil {
		s.logger.Error("list accessories", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if accs == nil {
		accs = []*store.Accessory{}
	}
	s.writeJSON(w, http.StatusOK, accs)
}

func (s *Server) handleAPIGetAccessory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	acc, err := s.store.GetAccessory(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "accessory not found"})
			return
		}
		s.logger.Error("get accessory", "device_id", id, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	s.writeJSON(w, http.StatusOK, acc)
}

func (s *Server) handleAPIDiscoveryStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.store.GetDiscoveryStatus()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Discovery has not run yet.
			s.writeJSON(w, http.StatusOK, &store.DiscoveryStatus{})
			return
		}
		s.logger.Error("get discovery status", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}
