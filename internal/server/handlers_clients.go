package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ovpn-issuer/internal/version"
)

type issueRequest struct {
	Name  string `json:"name"`
	Force bool   `json:"force"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.Current().Version})
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	names, err := s.registry.List()
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": names, "count": len(names)})
}

func (s *Server) handleIssueClient(w http.ResponseWriter, r *http.Request) {
	var payload issueRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	issue := s.registry.Issue
	if payload.Force {
		issue = s.registry.Reissue
	}
	// easy-rsa must not be killed mid-signing when the client goes away.
	p, err := issue(context.WithoutCancel(r.Context()), payload.Name)
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	s.log.Info().Str("client", p.Identity).Str("path", p.Path).Msg("profile written")
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleInspectClient(w http.ResponseWriter, r *http.Request) {
	inspection, err := s.registry.Inspect(chi.URLParam(r, "name"))
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inspection)
}

func (s *Server) handleFetchProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.registry.Fetch(chi.URLParam(r, "name"))
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/x-openvpn-profile")
	w.Header().Set("Content-Disposition", `attachment; filename="`+p.Identity+`.ovpn"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(p.Content)
}

func (s *Server) handleRevokeClient(w http.ResponseWriter, r *http.Request) {
	revoked, err := s.registry.Revoke(context.WithoutCancel(r.Context()), chi.URLParam(r, "name"))
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": revoked})
}
