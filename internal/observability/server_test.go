// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Welwitschi Contributors

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/welwitschi/welwitschi/pkg/errutil"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestServer_Metrics(t *testing.T) {
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_account_operations_total",
		Help: "test counter",
	}, []string{"operation", "result"})
	server := NewServer("127.0.0.1:0", nil, ops)

	ops.WithLabelValues("login", "success").Inc()
	ops.WithLabelValues("login", "success").Inc()

	code, body := get(t, server.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "go_")
	assert.Contains(t, body, "process_")
	assert.Contains(t, body, `test_account_operations_total{operation="login",result="success"} 2`)
}

func TestServer_DuplicateCollectorPanics(t *testing.T) {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "dup_total", Help: "dup"})
	assert.Panics(t, func() { NewServer("127.0.0.1:0", nil, c, c) })
}

func TestServer_Liveness(t *testing.T) {
	server := NewServer("127.0.0.1:0", func(context.Context) error { return errors.New("down") })
	code, body := get(t, server.Handler(), "/healthz/liveness")
	assert.Equal(t, http.StatusOK, code, "liveness ignores readiness")
	assert.Equal(t, "ok\n", body)
}

func TestServer_Readiness(t *testing.T) {
	tests := []struct {
		name     string
		checker  ReadinessChecker
		wantCode int
		wantBody string
	}{
		{"nil checker", nil, http.StatusOK, "ok\n"},
		{"database answers", PingReadiness(stubPinger{}), http.StatusOK, "ok\n"},
		{"database down", PingReadiness(stubPinger{err: errors.New("connection refused")}), http.StatusServiceUnavailable, "not ready\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := get(t, NewServer("127.0.0.1:0", tt.checker).Handler(), "/healthz/readiness")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestPingReadiness_ErrorCode(t *testing.T) {
	err := PingReadiness(stubPinger{err: errors.New("refused")})(context.Background())
	errutil.AssertErrorCode(t, err, "NOT_READY")
}

func TestServer_StartServesAndStops(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	errCh, err := server.Start()
	require.NoError(t, err)
	require.NotEmpty(t, server.Addr())

	resp, err := http.Get("http://" + server.Addr() + "/healthz/liveness")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))

	select {
	case err, ok := <-errCh:
		if ok {
			assert.NoError(t, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("error channel not closed after shutdown")
	}
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	_, err := server.Start()
	require.NoError(t, err)
	defer func() { _ = server.Stop(context.Background()) }()

	_, err = server.Start()
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_RUNNING")
}

func TestServer_StopWithoutStart(t *testing.T) {
	assert.NoError(t, NewServer("127.0.0.1:0", nil).Stop(context.Background()))
}

func TestServer_ErrorChannelReportsServeErrors(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	errCh, err := server.Start()
	require.NoError(t, err)
	defer func() { _ = server.Stop(context.Background()) }()

	require.NoError(t, server.listener.Close())

	select {
	case serveErr := <-errCh:
		assert.Error(t, serveErr)
	case <-time.After(2 * time.Second):
		t.Fatal("serve error not reported")
	}
}
