package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shubham-shewale/price-broadcast/cmd/gateway/internal/api"
	"github.com/shubham-shewale/price-broadcast/cmd/gateway/internal/hub"
	"github.com/shubham-shewale/price-broadcast/cmd/gateway/internal/testutils"
	"github.com/shubham-shewale/price-broadcast/pkg/models"
)

type stubBroadcaster struct {
	snapshots []models.PriceSnapshot
	err       error
}

func (s *stubBroadcaster) Attach(ctx context.Context, client hub.ClientInterface) {}

func (s *stubBroadcaster) Snapshot(ctx context.Context) ([]models.PriceSnapshot, error) {
	return s.snapshots, s.err
}

func TestHealth_ReportsConnections(t *testing.T) {
	h := hub.NewHub(zap.NewNop())
	h.Register(testutils.NewMockClient("c1"), nil)
	router := api.NewRouter(&stubBroadcaster{}, h, zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, float64(1), body["connections"])
}

func TestPrices_ListAndGet(t *testing.T) {
	ts := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)
	stub := &stubBroadcaster{snapshots: []models.PriceSnapshot{
		{Symbol: "AAPL", CurrentPrice: 150.0, ChangePercent: 1.2, LastUpdated: ts},
	}}
	router := api.NewRouter(stub, hub.NewHub(zap.NewNop()), zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/prices", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.PriceSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/prices/aapl", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var one models.PriceSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	require.Equal(t, 150.0, one.CurrentPrice)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/prices/TSLA", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrices_SnapshotError(t *testing.T) {
	router := api.NewRouter(&stubBroadcaster{err: errors.New("redis down")}, hub.NewHub(zap.NewNop()), zap.NewNop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/prices", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
