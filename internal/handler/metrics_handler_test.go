package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook/internal/middleware"
	"github.com/noah-isme/sma-gradebook/internal/models"
	"github.com/noah-isme/sma-gradebook/internal/service"
)

func TestMetricsHandlerReady(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	r := newTestRouter()
	r.GET("/ready", NewMetricsHandler(nil, map[string]Pinger{"postgres": ok}).Ready)
	w, _ := perform(r, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	r = newTestRouter()
	r.GET("/ready", NewMetricsHandler(nil, map[string]Pinger{"postgres": ok, "redis": down}).Ready)
	w, _ = perform(r, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "connection refused", body.Checks["redis"])
	assert.Equal(t, "ok", body.Checks["postgres"])
}

func TestMetricsHandlerSnapshotAndPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.ObserveFetch("grades", 5*time.Millisecond, true)
	metrics.AddOrphans("grade", 2)

	h := NewMetricsHandler(metrics, nil)
	r := newTestRouter()
	r.Use(middleware.Metrics(metrics, "/metrics"))
	r.GET("/metrics", h.Prometheus)
	r.GET("/metrics/snapshot", h.Snapshot)
	r.GET("/health", h.Health)

	w, _ := perform(r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env := perform(r, http.MethodGet, "/metrics/snapshot", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snapshot models.SystemMetrics
	require.NoError(t, json.Unmarshal(env.Data, &snapshot))
	assert.Equal(t, uint64(1), snapshot.DegradedFetches)
	assert.Equal(t, uint64(2), snapshot.OrphanRecords)
	assert.Equal(t, uint64(1), snapshot.RequestsTotal)

	rec := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "gradebook_fetch_failures_total"), body)
	assert.True(t, strings.Contains(body, `http_requests_total{method="GET",path="/health",status="200"} 1`), body)
	assert.False(t, strings.Contains(body, `path="/metrics"`))
}

func TestMetricsHandlerWithoutService(t *testing.T) {
	h := NewMetricsHandler(nil, nil)
	r := newTestRouter()
	r.GET("/metrics", h.Prometheus)
	r.GET("/metrics/snapshot", h.Snapshot)

	w, _ := perform(r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	w, _ = perform(r, http.MethodGet, "/metrics/snapshot", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
