package server

import (
	"net/http"

	"github.com/teranos/savesync/errors"
	"github.com/teranos/savesync/logger"
	"github.com/teranos/savesync/version"
)

// HandleState returns the blob stored under the local key (GET /api/state)
func (s *Server) HandleState(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	blob, found, err := s.load(r.Context())
	if err != nil {
		s.logger.Errorw("Failed to read local save", logger.FieldError, err)
		writeError(w, err, "Failed to read local save")
		return
	}

	writeJSON(w, http.StatusOK, StateResponse{Key: s.cfg.Key, Blob: blob, Found: found})
}

// HandleSave stores a blob and announces it, like a websocket save (POST /api/save)
func (s *Server) HandleSave(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	req, err := readSave(w, r)
	if err != nil {
		s.logger.Debugw("Rejected save", logger.FieldError, err)
		writeError(w, err, "")
		return
	}

	if err := s.httpLimiter.Wait(r.Context()); err != nil {
		writeError(w, errors.Mark(errors.Wrap(err, "cancelled while waiting for a save slot"), errors.ErrServiceUnavailable),
			"Request cancelled while waiting for save slot")
		return
	}

	if err := s.save(r.Context(), req.Blob); err != nil {
		s.logger.Errorw("Failed to handle save", logger.FieldError, err)
		writeError(w, err, "Failed to store save")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// HandleStatus reports the sync controller and session state (GET /api/status)
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	s.logger.Debugw("Status requested", "user_agent", r.UserAgent())

	resp := StatusResponse{
		Phase:   "Unavailable",
		Clients: s.clientCount(),
		Version: version.Get().Short(),
	}
	if s.status != nil {
		st := s.status.State()
		resp.Phase = st.Phase.String()
		resp.Handle = string(st.Handle)
		resp.Session = st.Session
		resp.Pending = st.Pending
	}
	if s.session != nil {
		resp.SignedIn = s.session.Active()
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleHealth reports liveness and the build
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  s.State().String(),
		"version": version.Get().Short(),
	})
}
