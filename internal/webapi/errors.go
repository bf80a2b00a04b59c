package webapi

import (
	"errors"
	"net/http"

	"stylenow-studio/internal/gemini"
	"stylenow-studio/internal/media"
	"stylenow-studio/internal/studio"
	"stylenow-studio/internal/workflow"
)

var errSessionNotFound = errors.New("session not found")

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errSessionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, studio.ErrInvalidInput),
		errors.Is(err, studio.ErrInvalidSettings),
		errors.Is(err, media.ErrEmptyImage),
		errors.Is(err, media.ErrInvalidData):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, workflow.ErrNotPermitted):
		return http.StatusForbidden, "not_permitted"
	case errors.Is(err, workflow.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, workflow.ErrStale):
		return http.StatusConflict, "stale"
	case errors.Is(err, workflow.ErrClosed):
		return http.StatusGone, "session_closed"
	case errors.Is(err, gemini.ErrGenerationFailed):
		return http.StatusBadGateway, "generation_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	s.writeErrorStatus(w, r, status, code, err)
}

func (s *Server) writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, code string, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, apiError{Error: err.Error(), Code: code})
}
