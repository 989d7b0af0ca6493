package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/maximcoj/teleblog/core/logger"
)

type envelope map[string]any

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any, headers http.Header) error {
	js, err := json.Marshal(data)
	if err != nil {
		return err
	}
	for key, values := range headers {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(js)
	return nil
}

func (s *Server) logError(r *http.Request, err error) {
	logger.LogEvent(r.Context(), logger.Web, slog.LevelError, "http.error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		logger.Err(err),
	)
}

func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	if err := s.writeJSON(w, status, envelope{"error": message}, nil); err != nil {
		s.logError(r, err)
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (s *Server) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	s.logError(r, err)
	s.errorResponse(w, r, http.StatusInternalServerError, "server error")
}

func (s *Server) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	s.errorResponse(w, r, http.StatusNotFound, "the requested resource could not be found")
}

func (s *Server) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	s.errorResponse(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func (s *Server) blogNotFoundResponse(w http.ResponseWriter, r *http.Request) {
	s.errorResponse(w, r, http.StatusNotFound, "blog not found")
}

func (s *Server) postNotFoundResponse(w http.ResponseWriter, r *http.Request) {
	s.errorResponse(w, r, http.StatusNotFound, "post not found")
}
