package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dcnick3/xoss-sync/pkg/api/middleware"
	"github.com/dcnick3/xoss-sync/pkg/xoss/ctlmsg"
	"github.com/dcnick3/xoss-sync/pkg/xoss/device"
	"github.com/gorilla/mux"
)

// requireNonViewer rejects a mutating request (write-file, delete-file,
// set-time) from a JWT-authenticated "viewer" role. Requests with no
// role claim at all (API-key auth) are unrestricted.
func requireNonViewer(w http.ResponseWriter, r *http.Request) bool {
	if role, ok := middleware.RoleFromContext(r.Context()); ok && role == "viewer" {
		respondError(w, http.StatusForbidden, "viewer role may not perform this operation")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	info := s.dev.Info()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"firmware":     info.Firmware,
		"manufacturer": info.Manufacturer,
		"model":        info.Model,
		"hardware":     info.Hardware,
		"serial":       info.Serial,
		"battery":      s.dev.Battery(),
	})
}

func (s *Server) handleCapacity(w http.ResponseWriter, r *http.Request) {
	cap, err := s.dev.MemoryCapacity(r.Context())
	if err != nil {
		respondDeviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cap)
}

func (s *Server) handleMGA(w http.ResponseWriter, r *http.Request) {
	status, err := s.dev.MGAStatus(r.Context())
	if err != nil {
		respondDeviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

type setTimeRequest struct {
	// Unix is the unix-seconds timestamp to set. If zero, the server's
	// current time is used.
	Unix int64 `json:"unix"`
}

func (s *Server) handleSetTime(w http.ResponseWriter, r *http.Request) {
	if !requireNonViewer(w, r) {
		return
	}

	var req setTimeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}

	when := time.Now()
	if req.Unix != 0 {
		when = time.Unix(req.Unix, 0)
	}

	if err := s.dev.SetTime(r.Context(), when); err != nil {
		respondDeviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	data, err := s.dev.ReadFile(r.Context(), name)
	if err != nil {
		respondDeviceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	if !requireNonViewer(w, r) {
		return
	}

	name := mux.Vars(r)["name"]

	data, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not read request body")
		return
	}

	if err := s.dev.WriteFile(r.Context(), name, data); err != nil {
		respondDeviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "bytes": len(data)})
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	if !requireNonViewer(w, r) {
		return
	}

	name := mux.Vars(r)["name"]

	if err := s.dev.DeleteFile(r.Context(), name); err != nil {
		respondDeviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondDeviceError maps a device operation error onto the appropriate
// HTTP status: a device-reported "no such file" becomes 404, a dead
// session becomes 409 (the caller must reconnect), any other
// device-reported error becomes 422, and everything else is a 502 since
// the fault lies between the host and the device, not the request
// itself.
func respondDeviceError(w http.ResponseWriter, err error) {
	var devErr *device.DeviceError
	switch {
	case errors.Is(err, device.ErrDead):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &devErr) && devErr.Kind == ctlmsg.ErrorNoFile:
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &devErr):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		respondError(w, http.StatusBadGateway, err.Error())
	}
}
