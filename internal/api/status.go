package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-upnp/internal/upnp/device"
	"github.com/nerrad567/gray-logic-upnp/internal/upnp/directory"
)

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	var devices, configID int
	if !s.onLoop(w, r, func() {
		devices = len(s.registry.Adapters())
		configID = s.registry.ConfigID()
	}) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"version":    s.version,
		"devices":    devices,
		"config_id":  configID,
		"ws_clients": s.hub.ClientCount(),
	})
}

// handleListDevices returns every published device.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var infos []device.Info
	if !s.onLoop(w, r, func() {
		adapters := s.registry.Adapters()
		infos = make([]device.Info, 0, len(adapters))
		for _, a := range adapters {
			infos = append(infos, a.Info())
		}
	}) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": infos,
		"count":   len(infos),
	})
}

// handleGetDevice returns one published device by UUID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uuid")

	var (
		info  device.Info
		found bool
	)
	if !s.onLoop(w, r, func() {
		var a *device.Adapter
		if a, found = s.registry.Get(id); found {
			info = a.Info()
		}
	}) {
		return
	}
	if !found {
		writeNotFound(w, r, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleListDirectory returns the remote devices found on the network.
func (s *Server) handleListDirectory(w http.ResponseWriter, r *http.Request) {
	devices := []directory.Device{}
	if s.directory != nil {
		if !s.onLoop(w, r, func() {
			devices = s.directory.Devices()
		}) {
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}
