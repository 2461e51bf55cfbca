package api

import (
	"NetSpectraIDS/internal/config"
	"NetSpectraIDS/internal/engine/capture"
	"NetSpectraIDS/internal/metrics"
	"NetSpectraIDS/internal/model"
	"NetSpectraIDS/internal/session"
	"NetSpectraIDS/internal/storage"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu       sync.Mutex
	status   session.Status
	startErr error
	started  []StartRequest
	stops    int
}

func (f *fakeController) Status() session.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeController) ListInterfaces() ([]model.Interface, error) {
	return []model.Interface{{Name: "eth0", Description: "wired", Addresses: []string{"192.168.1.5"}}}, nil
}

func (f *fakeController) StartBounded(iface string, maxPackets uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, StartRequest{Interface: iface, MaxPackets: maxPackets})
	f.status = session.Status{SessionID: "s1", Phase: "capturing", Interface: iface, MaxPackets: maxPackets}
	return nil
}

func (f *fakeController) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.status.Phase = "idle"
}

type fakeHealth struct {
	health model.ServerHealth
}

func (f fakeHealth) Health(context.Context) model.ServerHealth { return f.health }

type fakeQuerier struct {
	got storage.HistoryFilter
	err error
}

func (f *fakeQuerier) LabelSummaries(_ context.Context, filter storage.HistoryFilter) ([]storage.LabelSummary, error) {
	f.got = filter
	if f.err != nil {
		return nil, f.err
	}
	return []storage.LabelSummary{{SessionID: "s1", Label: "attack", Count: 3, AvgConfidence: 0.9}}, nil
}

func (f *fakeQuerier) Close() error { return nil }

func newTestServer(ctrl Controller, health HealthChecker, q storage.Querier) (*Server, *metrics.Metrics) {
	m := metrics.New()
	return NewServer(config.Default().API, ctrl, health, q, NewStatsHub(), m), m
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusAndInterfaces(t *testing.T) {
	ctrl := &fakeController{status: session.Status{Phase: "idle", Statistics: model.SessionStatistics{TotalCaptured: 7}}}
	s, _ := newTestServer(ctrl, fakeHealth{}, nil)

	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status session.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "idle", status.Phase)
	assert.Equal(t, uint64(7), status.Statistics.TotalCaptured)

	rec = do(t, s.Handler(), http.MethodGet, "/api/v1/interfaces", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"eth0"`)
}

func TestSessionStartStop(t *testing.T) {
	ctrl := &fakeController{status: session.Status{Phase: "idle"}}
	s, _ := newTestServer(ctrl, fakeHealth{}, nil)

	rec := do(t, s.Handler(), http.MethodPost, "/api/v1/session/start", `{"interface":"eth0","max_packets":5}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []StartRequest{{Interface: "eth0", MaxPackets: 5}}, ctrl.started)
	assert.Contains(t, rec.Body.String(), `"phase":"capturing"`)

	rec = do(t, s.Handler(), http.MethodPost, "/api/v1/session/stop", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, ctrl.stops)

	rec = do(t, s.Handler(), http.MethodGet, "/api/v1/session/stop", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSessionStartErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		startErr error
		want     int
	}{
		{name: "bad json", body: `{`, want: http.StatusBadRequest},
		{name: "missing interface", body: `{"max_packets": 3}`, want: http.StatusBadRequest},
		{name: "already capturing", body: `{"interface":"eth0"}`, startErr: capture.ErrAlreadyCapturing, want: http.StatusConflict},
		{name: "unknown interface", body: `{"interface":"eth9"}`, startErr: fmt.Errorf("failed to open capture on eth9: %w", capture.ErrInterfaceNotFound), want: http.StatusBadRequest},
		{name: "open failure", body: `{"interface":"eth0"}`, startErr: errors.New("permission denied"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(&fakeController{startErr: tt.startErr}, fakeHealth{}, nil)
			rec := do(t, s.Handler(), http.MethodPost, "/api/v1/session/start", tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestClassifierHealth(t *testing.T) {
	s, _ := newTestServer(&fakeController{}, fakeHealth{health: model.ServerHealth{Status: "healthy", TotalFeatures: 41}}, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/classifier/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy":true`)
	assert.Contains(t, rec.Body.String(), `"total_features":41`)

	s, _ = newTestServer(&fakeController{}, fakeHealth{health: model.HealthError("connection refused")}, nil)
	rec = do(t, s.Handler(), http.MethodGet, "/api/v1/classifier/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy":false`)
}

func TestHistory(t *testing.T) {
	s, _ := newTestServer(&fakeController{}, fakeHealth{}, nil)
	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/history", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	q := &fakeQuerier{}
	s, _ = newTestServer(&fakeController{}, fakeHealth{}, q)
	rec = do(t, s.Handler(), http.MethodGet, "/api/v1/history?session_id=s1&since=2024-01-02T03:04:05Z", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s1", q.got.SessionID)
	assert.True(t, q.got.Since.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	assert.True(t, q.got.Until.IsZero())
	assert.Contains(t, rec.Body.String(), `"label":"attack"`)

	rec = do(t, s.Handler(), http.MethodGet, "/api/v1/history?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	q.err = errors.New("clickhouse down")
	rec = do(t, s.Handler(), http.MethodGet, "/api/v1/history", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, m := newTestServer(&fakeController{}, fakeHealth{}, nil)
	m.IncDropped()

	rec := do(t, s.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "netspectra_ids_packets_dropped_total 1")
}
