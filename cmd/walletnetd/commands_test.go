package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("NOWNODES_API_KEY", "")
	t.Setenv("INFURA_PROJECT_ID", "")

	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "walletnet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func restConfig(urls ...string) string {
	body := `log_level: 3
log_format: json
rpc_pool_config:
  request_timeout_seconds: 5
  health_check_interval_seconds: -1
networks:
  indexer:
    kind: rest
    health_path: /status
    providers:
`
	for _, u := range urls {
		body += fmt.Sprintf("      - type: public\n        url: %s\n", u)
	}
	return body
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "walletnetd")
	assert.Contains(t, out, "Version:    dev")
}

func TestInitCmd(t *testing.T) {
	home := t.TempDir()
	out, err := runCmd(t, "init", "--home", home)
	require.NoError(t, err)
	assert.Contains(t, out, home)
	assert.FileExists(t, filepath.Join(home, "config", "walletnet_config.json"))

	// the saved config is picked up from the home directory
	out, err = runCmd(t, "networks", "--home", home, "-o", "json")
	require.NoError(t, err)

	var networks []NetworkOutput
	require.NoError(t, json.Unmarshal([]byte(out), &networks))
	assert.NotEmpty(t, networks)
}

func TestNetworksCmd(t *testing.T) {
	path := writeConfig(t, `log_level: 3
log_format: json
networks:
  ethereum:
    kind: evm
    providers:
      - type: public
        url: https://eth.example.org
      - type: nownodes
        subdomain: eth
`)

	out, err := runCmd(t, "networks", "--config", path, "-o", "json")
	require.NoError(t, err)

	var networks []NetworkOutput
	require.NoError(t, json.Unmarshal([]byte(out), &networks))
	require.Len(t, networks, 1)
	assert.Equal(t, "evm", networks[0].Kind)
	require.Len(t, networks[0].Providers, 1)
	assert.Equal(t, "eth.example.org", networks[0].Providers[0].Host)
	require.Len(t, networks[0].Skipped, 1)
	assert.Contains(t, networks[0].Skipped[0], "nownodes API key")

	out, err = runCmd(t, "networks", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "name: ethereum")

	_, err = runCmd(t, "networks", "--config", path, "-o", "xml")
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestProbeCmd(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer up.Close()

	t.Run("fails over", func(t *testing.T) {
		out, err := runCmd(t, "probe", "--config", writeConfig(t, restConfig(down.URL, up.URL)), "-o", "json")
		require.NoError(t, err)

		var results []ProbeOutput
		require.NoError(t, json.Unmarshal([]byte(out), &results))
		require.Len(t, results, 1)
		assert.True(t, results[0].OK)
		assert.Equal(t, up.Listener.Addr().String(), results[0].CurrentHost)
	})

	t.Run("unknown network", func(t *testing.T) {
		out, err := runCmd(t, "probe", "dogecoin", "--config", writeConfig(t, restConfig(up.URL)), "-o", "json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "1 of 1 networks failed")

		var results []ProbeOutput
		require.NoError(t, json.Unmarshal([]byte(out), &results))
		assert.False(t, results[0].OK)
		assert.Contains(t, results[0].Error, "not configured")
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := runCmd(t, "probe", "--config", writeConfig(t, "log_level: 3\nlog_format: xml\n"))
		assert.ErrorContains(t, err, "invalid config")
	})
}

func TestStatusCmd(t *testing.T) {
	daemon := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/networks", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":[{"network":"solana","cursor":0,"current_host":"s.example"},{"network":"ethereum","cursor":1,"current_host":"b.example"}],"last_fetched":"2026-03-01T10:00:00Z"}`))
	}))
	defer daemon.Close()

	out, err := runCmd(t, "status", "--server", daemon.URL, "-o", "json")
	require.NoError(t, err)

	var status StatsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	require.Len(t, status.Networks, 2)
	assert.Equal(t, "ethereum", status.Networks[0].Network)
	assert.Equal(t, 1, status.Networks[0].Cursor)

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	}))
	defer broken.Close()

	_, err = runCmd(t, "status", "--server", broken.URL)
	assert.ErrorContains(t, err, "server error: boom")
}
