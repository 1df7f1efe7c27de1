package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/push-wallet-network/walletClient/db"
	"github.com/pushchain/push-wallet-network/walletClient/rpcpool"
	"github.com/pushchain/push-wallet-network/walletClient/store"
)

type fakeClient struct {
	stats map[string]rpcpool.GroupStats
}

func (f *fakeClient) NetworkNames() []string {
	names := make([]string, 0, len(f.stats))
	for name := range f.stats {
		names = append(names, name)
	}
	return names
}

func (f *fakeClient) NetworkStats(network string) (rpcpool.GroupStats, bool) {
	s, ok := f.stats[network]
	return s, ok
}

func (f *fakeClient) AllStats() []rpcpool.GroupStats {
	out := make([]rpcpool.GroupStats, 0, len(f.stats))
	for _, s := range f.stats {
		out = append(out, s)
	}
	return out
}

type brokenReader struct{}

func (brokenReader) LatestSnapshots(string) ([]store.EndpointSnapshot, error) {
	return nil, errors.New("database is locked")
}

func (brokenReader) History(string, time.Time, int) ([]store.EndpointSnapshot, error) {
	return nil, errors.New("database is locked")
}

func (brokenReader) Ping(context.Context) error {
	return errors.New("database is locked")
}

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func ethereumStats() rpcpool.GroupStats {
	return rpcpool.GroupStats{
		Network:        "ethereum",
		TotalEndpoints: 2,
		Cursor:         1,
		CurrentHost:    "b.example",
		Endpoints: []rpcpool.EndpointInfo{
			{Host: "a.example", Position: 0, State: "degraded"},
			{Host: "b.example", Position: 1, State: "healthy"},
		},
	}
}

func newTestServer(t *testing.T, snapshots SnapshotReader) *Server {
	t.Helper()
	client := &fakeClient{stats: map[string]rpcpool.GroupStats{"ethereum": ethereumStats()}}
	s := NewServer(client, snapshots, zerolog.New(zerolog.NewTestWriter(t)), 0)
	s.now = func() time.Time { return testNow }
	return s
}

func seededDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, database.SaveSnapshots(db.SnapshotsFromStats(ethereumStats(), testNow.Add(-2*time.Hour))))
	require.NoError(t, database.SaveSnapshots(db.SnapshotsFromStats(ethereumStats(), testNow.Add(-30*time.Minute))))
	return database
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_Routes(t *testing.T) {
	s := newTestServer(t, seededDB(t))

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{name: "health", method: http.MethodGet, path: "/health", expectedStatus: http.StatusOK},
		{name: "ready", method: http.MethodGet, path: "/ready", expectedStatus: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", expectedStatus: http.StatusOK},
		{name: "networks", method: http.MethodGet, path: "/api/v1/networks", expectedStatus: http.StatusOK},
		{name: "known network", method: http.MethodGet, path: "/api/v1/networks/ethereum", expectedStatus: http.StatusOK},
		{name: "unknown network", method: http.MethodGet, path: "/api/v1/networks/dogecoin", expectedStatus: http.StatusNotFound},
		{name: "snapshot", method: http.MethodGet, path: "/api/v1/networks/ethereum/snapshot", expectedStatus: http.StatusOK},
		{name: "history", method: http.MethodGet, path: "/api/v1/networks/ethereum/history", expectedStatus: http.StatusOK},
		{name: "history of unknown network", method: http.MethodGet, path: "/api/v1/networks/dogecoin/history", expectedStatus: http.StatusNotFound},
		{name: "bad since", method: http.MethodGet, path: "/api/v1/networks/ethereum/history?since=yesterday", expectedStatus: http.StatusBadRequest},
		{name: "bad limit", method: http.MethodGet, path: "/api/v1/networks/ethereum/history?limit=-1", expectedStatus: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodPost, path: "/api/v1/networks", expectedStatus: http.StatusMethodNotAllowed},
		{name: "non-existent", method: http.MethodGet, path: "/api/v1/non-existent", expectedStatus: http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(s, tc.method, tc.path)
			assert.Equal(t, tc.expectedStatus, w.Code)
		})
	}
}

func TestHandleHealth(t *testing.T) {
	w := serve(newTestServer(t, nil), http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestHandleReady(t *testing.T) {
	tests := []struct {
		name           string
		snapshots      SnapshotReader
		expectedStatus int
	}{
		{name: "persistence disabled", snapshots: nil, expectedStatus: http.StatusOK},
		{name: "store answers", snapshots: seededDB(t), expectedStatus: http.StatusOK},
		{name: "store down", snapshots: brokenReader{}, expectedStatus: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(newTestServer(t, tt.snapshots), http.MethodGet, "/ready")
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestHandleNetwork(t *testing.T) {
	w := serve(newTestServer(t, nil), http.MethodGet, "/api/v1/networks/ethereum")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body struct {
		Data        rpcpool.GroupStats `json:"data"`
		LastFetched time.Time          `json:"last_fetched"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 1, body.Data.Cursor)
	assert.Equal(t, "b.example", body.Data.CurrentHost)
	assert.Len(t, body.Data.Endpoints, 2)
	assert.True(t, body.LastFetched.Equal(testNow))
}

func TestHandleNetworkHistory(t *testing.T) {
	s := newTestServer(t, seededDB(t))

	decode := func(t *testing.T, w *httptest.ResponseRecorder) []SnapshotRow {
		t.Helper()
		require.Equal(t, http.StatusOK, w.Code)
		var body struct {
			Data []SnapshotRow `json:"data"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		return body.Data
	}

	t.Run("default window is the last hour", func(t *testing.T) {
		rows := decode(t, serve(s, http.MethodGet, "/api/v1/networks/ethereum/history"))
		assert.Len(t, rows, 2)
	})

	t.Run("duration window", func(t *testing.T) {
		rows := decode(t, serve(s, http.MethodGet, "/api/v1/networks/ethereum/history?since=3h"))
		assert.Len(t, rows, 4)
	})

	t.Run("timestamp and limit", func(t *testing.T) {
		since := testNow.Add(-3 * time.Hour).Format(time.RFC3339)
		rows := decode(t, serve(s, http.MethodGet, "/api/v1/networks/ethereum/history?since="+since+"&limit=1"))
		require.Len(t, rows, 1)
		assert.True(t, rows[0].TakenAt.Equal(testNow.Add(-30*time.Minute)))
	})
}

func TestHandleNetworkSnapshot(t *testing.T) {
	w := serve(newTestServer(t, seededDB(t)), http.MethodGet, "/api/v1/networks/ethereum/snapshot")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data        []SnapshotRow `json:"data"`
		LastFetched time.Time     `json:"last_fetched"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Len(t, body.Data, 2)
	assert.False(t, body.Data[0].IsCurrent)
	assert.True(t, body.Data[1].IsCurrent)
	assert.True(t, body.LastFetched.Equal(testNow.Add(-30*time.Minute)))

	empty, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	defer empty.Close()
	w = serve(newTestServer(t, empty), http.MethodGet, "/api/v1/networks/ethereum/snapshot")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSnapshotRoutes_Unavailable(t *testing.T) {
	tests := []struct {
		name           string
		snapshots      SnapshotReader
		expectedStatus int
	}{
		{name: "persistence disabled", snapshots: nil, expectedStatus: http.StatusServiceUnavailable},
		{name: "store failure", snapshots: brokenReader{}, expectedStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.snapshots)
			for _, path := range []string{"/api/v1/networks/ethereum/snapshot", "/api/v1/networks/ethereum/history"} {
				w := serve(s, http.MethodGet, path)
				assert.Equal(t, tt.expectedStatus, w.Code, path)

				var body ErrorResponse
				require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
				assert.NotEmpty(t, body.Error)
			}
		})
	}
}

func TestParseSince(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Time
		wantErr bool
	}{
		{raw: "", want: testNow.Add(-time.Hour)},
		{raw: "15m", want: testNow.Add(-15 * time.Minute)},
		{raw: "2026-02-28T10:00:00Z", want: time.Date(2026, 2, 28, 10, 0, 0, 0, time.UTC)},
		{raw: "-5m", wantErr: true},
		{raw: "yesterday", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseSince(tt.raw, testNow)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want))
		})
	}
}

func TestServer_StartStop(t *testing.T) {
	s := newTestServer(t, nil)
	s.server.Addr = "127.0.0.1:0"

	require.NoError(t, s.Start())
	assert.NoError(t, s.Stop())
}
