package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/0xcha05/prime/internal/daemonlink"
	"github.com/0xcha05/prime/internal/registry"
)

func newTestServer(t *testing.T, token string) (*Server, *registry.Registry) {
	t.Helper()
	reg := registry.New("")
	mux := daemonlink.New(nil)
	return New(nil, reg, mux, token), reg
}

func TestHealthNeverRequiresAuth(t *testing.T) {
	s, _ := newTestServer(t, "secret")
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	s.handleHealth(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "healthy", body["status"])
}

func TestAuthRejectsMissingAndWrongToken(t *testing.T) {
	s, _ := newTestServer(t, "secret")
	handler := s.auth(s.handleList)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/daemon/list", nil)
	handler(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/api/daemon/list", nil)
	r.Header.Set("Authorization", "Bearer wrong")
	handler(w, r)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthAcceptsCorrectToken(t *testing.T) {
	s, _ := newTestServer(t, "secret")
	handler := s.auth(s.handleList)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/daemon/list", nil)
	r.Header.Set("Authorization", "Bearer secret")
	handler(w, r)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuthSkippedWhenTokenEmpty(t *testing.T) {
	s, _ := newTestServer(t, "")
	handler := s.auth(s.handleList)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/daemon/list", nil)
	handler(w, r)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleListReturnsConnectedDaemons(t *testing.T) {
	s, reg := newTestServer(t, "")
	reg.Register("", "macbook", "macbook.local", nil, false)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/daemon/list", nil)
	s.handleList(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "macbook")
}

func TestHandleShowReturns404ForUnknownDaemon(t *testing.T) {
	s, _ := newTestServer(t, "")
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/daemon/daemon-9999", nil)
	s.handleDaemonSubroute(w, r)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleByNameFindsRegisteredDaemon(t *testing.T) {
	s, reg := newTestServer(t, "")
	res := reg.Register("", "office-desktop", "host", nil, false)
	require.True(t, res.Success)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/daemon/by-name/office-desktop", nil)
	s.handleByName(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), res.Handle.DaemonID)
}

func TestHandleConnectionInfoCountsPrivileged(t *testing.T) {
	s, reg := newTestServer(t, "")
	reg.Register("", "a", "host", nil, true)
	reg.Register("", "b", "host", nil, false)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/daemon/connection-info", nil)
	s.handleConnectionInfo(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, float64(2), body["connected_count"])
	require.Equal(t, float64(1), body["privileged_count"])
}

func TestHandleExecuteRejectsEmptyCommand(t *testing.T) {
	s, _ := newTestServer(t, "")
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/daemon/daemon-0001/execute", strings.NewReader(`{"command":""}`))
	s.handleExecute(w, r, "daemon-0001")
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleExecuteReturns404WhenDaemonNotConnected(t *testing.T) {
	s, _ := newTestServer(t, "")
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/daemon/daemon-0001/execute", strings.NewReader(`{"command":"echo hi"}`))
	s.handleExecute(w, r, "daemon-0001")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlePingReturns404WhenDaemonNotConnected(t *testing.T) {
	s, _ := newTestServer(t, "")
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/daemon/daemon-0001/ping", nil)
	s.handlePing(w, r, "daemon-0001")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsRouteServesPrometheusExposition(t *testing.T) {
	s, _ := newTestServer(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, "127.0.0.1:0") }()

	for i := 0; i < 100 && s.Addr() == ""; i++ {
		<-time.After(5 * time.Millisecond)
	}
	require.NotEmpty(t, s.Addr())

	// Exercise a counted route before scraping so the counter has a sample.
	_, _ = http.Get("http://" + s.Addr() + "/health")

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "prime_httpapi_requests_total")

	cancel()
	<-done
}

func TestStartAndAddrBindsWildcardPort(t *testing.T) {
	s, _ := newTestServer(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx, "127.0.0.1:0") }()

	// Poll briefly for the listener to come up.
	for i := 0; i < 100 && s.Addr() == ""; i++ {
		<-time.After(5 * time.Millisecond)
	}
	require.NotEmpty(t, s.Addr())

	cancel()
	<-done
}
