package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"ovpn-issuer/internal/credstore"
	"ovpn-issuer/internal/pki"
	"ovpn-issuer/internal/registry"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeInternalError logs err and answers with a fixed message. Internal errors carry
// filesystem paths that API clients must not see.
func (s *Server) writeInternalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	s.log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg(message)
	writeError(w, http.StatusInternalServerError, message)
}

func (s *Server) writeRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	var pkiErr *pki.Error
	switch {
	case errors.Is(err, credstore.ErrInvalidIdentity):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &pkiErr):
		s.log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("pki tool failed")
		writeError(w, http.StatusBadGateway, fmt.Sprintf("pki tool failed: %s failed", pkiErr.Step))
	case errors.Is(err, pki.ErrPKI):
		s.log.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("pki tool failed")
		writeError(w, http.StatusBadGateway, "pki tool failed")
	case errors.Is(err, registry.ErrProfileParams):
		s.writeInternalError(w, r, err, "server endpoint is not configured")
	case errors.Is(err, credstore.ErrMissingArtifact):
		s.writeInternalError(w, r, err, "issued credentials are incomplete")
	default:
		s.writeInternalError(w, r, err, "internal server error")
	}
}

// requestLogger logs one line per request with the chi request id.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			event := log.Info()
			if status >= http.StatusInternalServerError {
				event = log.Error()
			}
			event.
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote", r.RemoteAddr).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(started)).
				Msg("http request")
		})
	}
}
