package server

import (
	"net/http"
	"strconv"
	"strings"

	"ovpn-issuer/internal/audit"
	"ovpn-issuer/internal/status"
)

type statusEntry struct {
	status.Record
	ReceivedMiB float64 `json:"receivedMiB"`
	SentMiB     float64 `json:"sentMiB"`
}

type summaryResponse struct {
	Issued        int   `json:"issued"`
	Connected     int   `json:"connected"`
	BytesReceived int64 `json:"bytesReceived"`
	BytesSent     int64 `json:"bytesSent"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	records, err := status.ReadFile(s.statusLog)
	if err != nil {
		s.writeInternalError(w, r, err, "status log is unreadable")
		return
	}
	records, err = status.FilterNetworks(records, networkParams(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries := make([]statusEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, statusEntry{Record: record, ReceivedMiB: record.ReceivedMiB(), SentMiB: record.SentMiB()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": entries, "count": len(entries)})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	issued, err := s.registry.Count()
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	records, err := status.ReadFile(s.statusLog)
	if err != nil {
		s.writeInternalError(w, r, err, "status log is unreadable")
		return
	}
	summary := status.Summarize(records)
	writeJSON(w, http.StatusOK, summaryResponse{
		Issued:        issued,
		Connected:     summary.Clients,
		BytesReceived: summary.BytesReceived,
		BytesSent:     summary.BytesSent,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	events := []audit.Event{}
	if s.events != nil {
		var err error
		events, err = s.events.List(r.Context(), limit)
		if err != nil {
			s.writeInternalError(w, r, err, "event log is unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// networkParams accepts repeated ?network= values as well as comma-separated lists.
func networkParams(r *http.Request) []string {
	var networks []string
	for _, value := range r.URL.Query()["network"] {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				networks = append(networks, part)
			}
		}
	}
	return networks
}
