package api

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// handleDiscoveryScan 广播扫描局域网内的电视
func (s *RESTServer) handleDiscoveryScan(w http.ResponseWriter, r *http.Request) {
	timeout := 3 * time.Second
	if s.config.Discovery.Timeout > 0 {
		timeout = s.config.Discovery.Timeout
	}

	devices, err := s.scanner.Scan(r.Context(), timeout)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleListDevices 列出已存储的配对设备
func (s *RESTServer) handleListDevices(w http.ResponseWriter, r *http.Request) {
	creds, err := s.store.ListCredentials(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]any{
		"devices": creds,
		"count":   len(creds),
	})
}

// handleDeleteDevice 删除设备及其配对凭证
func (s *RESTServer) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if net.ParseIP(address) == nil {
		s.respondError(w, http.StatusBadRequest, "invalid device address")
		return
	}

	// 若正连着这台设备,先断开
	if st := s.control.Status(); st.Connected && st.Address == address {
		s.control.Disconnect()
	}

	if err := s.store.DeleteCredential(r.Context(), address); err != nil {
		s.respondSessionError(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
