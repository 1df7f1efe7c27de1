package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/pushchain/push-wallet-network/walletClient/store"
)

const defaultHistoryWindow = time.Hour

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleReady handles GET /ready. The service is ready when the snapshot store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.snapshots != nil {
		if err := s.snapshots.Ping(r.Context()); err != nil {
			s.logger.Warn().Err(err).Msg("readiness check failed")
			s.writeError(w, http.StatusServiceUnavailable, "snapshot store unavailable")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleNetworks handles GET /api/v1/networks
func (s *Server) handleNetworks(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, QueryResponse{
		Data:        s.client.AllStats(),
		LastFetched: s.now(),
	})
}

// handleNetwork handles GET /api/v1/networks/{network}
func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	network := mux.Vars(r)["network"]

	stats, ok := s.client.NetworkStats(network)
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("network %s is not configured", network))
		return
	}

	s.writeJSON(w, http.StatusOK, QueryResponse{
		Data:        stats,
		LastFetched: s.now(),
	})
}

// handleNetworkSnapshot handles GET /api/v1/networks/{network}/snapshot
func (s *Server) handleNetworkSnapshot(w http.ResponseWriter, r *http.Request) {
	network, ok := s.persistedNetwork(w, r)
	if !ok {
		return
	}

	rows, err := s.snapshots.LatestSnapshots(network)
	if err != nil {
		s.logger.Error().Err(err).Str("network", network).Msg("failed to read latest snapshot")
		s.writeError(w, http.StatusInternalServerError, "failed to read latest snapshot")
		return
	}
	if len(rows) == 0 {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("no snapshot recorded for network %s", network))
		return
	}

	s.writeJSON(w, http.StatusOK, QueryResponse{
		Data:        toSnapshotRows(rows),
		LastFetched: rows[0].TakenAt,
	})
}

// handleNetworkHistory handles GET /api/v1/networks/{network}/history?since=<RFC3339|duration>&limit=<n>
func (s *Server) handleNetworkHistory(w http.ResponseWriter, r *http.Request) {
	network, ok := s.persistedNetwork(w, r)
	if !ok {
		return
	}

	since, err := parseSince(r.URL.Query().Get("since"), s.now())
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
	}

	rows, err := s.snapshots.History(network, since, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("network", network).Msg("failed to read snapshot history")
		s.writeError(w, http.StatusInternalServerError, "failed to read snapshot history")
		return
	}

	s.writeJSON(w, http.StatusOK, QueryResponse{
		Data:        toSnapshotRows(rows),
		LastFetched: s.now(),
	})
}

// persistedNetwork resolves the network path variable for the snapshot routes and writes
// the error response when it cannot be served
func (s *Server) persistedNetwork(w http.ResponseWriter, r *http.Request) (string, bool) {
	network := mux.Vars(r)["network"]
	if s.snapshots == nil {
		s.writeError(w, http.StatusServiceUnavailable, "stats persistence is disabled")
		return "", false
	}
	if _, ok := s.client.NetworkStats(network); !ok {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("network %s is not configured", network))
		return "", false
	}
	return network, true
}

// parseSince accepts an RFC3339 timestamp or a duration relative to now; empty means the last hour
func parseSince(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return now.Add(-defaultHistoryWindow), nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("since must be an RFC3339 timestamp or a positive duration")
	}
	return now.Add(-d), nil
}

func toSnapshotRows(rows []store.EndpointSnapshot) []SnapshotRow {
	out := make([]SnapshotRow, len(rows))
	for i, row := range rows {
		out[i] = SnapshotRow{
			TakenAt:             row.TakenAt,
			Host:                row.Host,
			Position:            row.Position,
			IsCurrent:           row.IsCurrent,
			State:               row.State,
			HealthScore:         row.HealthScore,
			RequestCount:        row.RequestCount,
			FailureCount:        row.FailureCount,
			ConsecutiveFailures: row.ConsecutiveFailures,
			AverageLatencyMs:    row.AverageLatencyMs,
			LastError:           row.LastError,
		}
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}
