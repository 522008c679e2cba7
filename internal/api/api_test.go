package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sarraf_go/internal/domain"
	"sarraf_go/internal/infra"
	"sarraf_go/internal/infra/storage"
	"sarraf_go/internal/infra/ws"
	"sarraf_go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshots struct {
	calculated []domain.PriceRecord
	calcTime   time.Time
	source     []domain.PriceRecord
	history    []storage.HistorySample
	failAll    bool
}

func (f *fakeSnapshots) ReadCalculated() ([]domain.PriceRecord, time.Time, error) {
	if f.failAll {
		return nil, time.Time{}, errors.New("db locked")
	}
	if f.calculated == nil {
		return nil, time.Time{}, domain.ErrSnapshotNotFound
	}
	return f.calculated, f.calcTime, nil
}

func (f *fakeSnapshots) ReadSource() ([]domain.PriceRecord, error) {
	if f.failAll {
		return nil, errors.New("db locked")
	}
	if f.source == nil {
		return nil, domain.ErrSnapshotNotFound
	}
	return f.source, nil
}

func (f *fakeSnapshots) ReadHistory(code string, since time.Time, limit int) ([]storage.HistorySample, error) {
	if f.failAll {
		return nil, errors.New("db locked")
	}
	var out []storage.HistorySample
	for _, s := range f.history {
		if s.Code == code && !s.Timestamp.Before(since) {
			out = append(out, s)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func newTestRouter(rawStore, store *service.PriceStore, snapshots SnapshotStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(rawStore, store, snapshots, &infra.Metrics{})
	SetupRoutes(r, h, ws.NewHub(nil, &infra.Metrics{}))
	return r
}

func doGet(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func calculated(code string, satis float64, custom bool) domain.PriceRecord {
	return domain.PriceRecord{
		Code:            code,
		Name:            code,
		CalculatedSatis: decimal.NewFromFloat(satis),
		IsCustom:        custom,
		IsVisible:       true,
	}
}

func raw(code string, alis, satis float64) domain.PriceRecord {
	return domain.PriceRecord{
		Code:     code,
		Name:     code,
		RawAlis:  decimal.NewFromFloat(alis),
		RawSatis: decimal.NewFromFloat(satis),
	}
}

func TestGetCurrent(t *testing.T) {
	rawStore := service.NewPriceStore()
	rawStore.Set([]domain.PriceRecord{raw("USDTRY", 32.10, 32.40)})

	w := doGet(newTestRouter(rawStore, service.NewPriceStore(), &fakeSnapshots{}), "/api/prices/current")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success bool                 `json:"success"`
		Data    []domain.PriceRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "USDTRY", body.Data[0].Code)
}

func TestGetCached_SnapshotAvailable(t *testing.T) {
	metaTime := time.Now().Truncate(time.Second)
	snapshots := &fakeSnapshots{
		calculated: []domain.PriceRecord{calculated("GRAM24", 2010, false)},
		calcTime:   metaTime,
	}

	w := doGet(newTestRouter(service.NewPriceStore(), service.NewPriceStore(), snapshots), "/api/prices/cached")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Prices []domain.PriceRecord `json:"prices"`
			Meta   domain.PriceMeta     `json:"meta"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.Len(t, body.Data.Prices, 1)
	assert.Equal(t, "GRAM24", body.Data.Prices[0].Code)
	assert.True(t, body.Data.Meta.Time.Equal(metaTime))
}

func TestGetCached_FallsBackToMemoryCustoms(t *testing.T) {
	store := service.NewPriceStore()
	store.Set([]domain.PriceRecord{
		calculated("GRAM24", 2010, false),
		calculated("GRAM22", 1840, true),
	})

	w := doGet(newTestRouter(service.NewPriceStore(), store, &fakeSnapshots{}), "/api/prices/cached")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Prices []domain.PriceRecord `json:"prices"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data.Prices, 1)
	assert.Equal(t, "GRAM22", body.Data.Prices[0].Code)
}

func TestGetCached_StorageError(t *testing.T) {
	w := doGet(newTestRouter(service.NewPriceStore(), service.NewPriceStore(), &fakeSnapshots{failAll: true}), "/api/prices/cached")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetSources_MemoryTakesPrecedence(t *testing.T) {
	rawStore := service.NewPriceStore()
	rawStore.Set([]domain.PriceRecord{raw("USDTRY", 32.50, 32.80)})

	snapshots := &fakeSnapshots{
		source: []domain.PriceRecord{
			raw("USDTRY", 32.10, 32.40),
			raw("GRAM24", 2000, 2010),
		},
	}

	w := doGet(newTestRouter(rawStore, service.NewPriceStore(), snapshots), "/api/prices/sources")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Success       bool                 `json:"success"`
		Data          []domain.PriceRecord `json:"data"`
		Count         int                  `json:"count"`
		MemoryCount   int                  `json:"memoryCount"`
		SnapshotCount int                  `json:"snapshotCount"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, 1, body.MemoryCount)
	assert.Equal(t, 2, body.SnapshotCount)

	byCode := make(map[string]domain.PriceRecord)
	for _, r := range body.Data {
		byCode[r.Code] = r
	}
	assert.True(t, byCode["USDTRY"].RawAlis.Equal(decimal.NewFromFloat(32.50)), "memory must win per code")
	assert.True(t, byCode["GRAM24"].RawAlis.Equal(decimal.NewFromFloat(2000)), "snapshot fills the gaps")
}

func TestGetSources_SnapshotOnly(t *testing.T) {
	snapshots := &fakeSnapshots{
		source: []domain.PriceRecord{raw("GRAM24", 2000, 2010)},
	}

	w := doGet(newTestRouter(service.NewPriceStore(), service.NewPriceStore(), snapshots), "/api/prices/sources")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data        []domain.PriceRecord `json:"data"`
		MemoryCount int                  `json:"memoryCount"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 0, body.MemoryCount)
	require.Len(t, body.Data, 1)
}

func TestGetHistory(t *testing.T) {
	now := time.Now()
	snapshots := &fakeSnapshots{
		history: []storage.HistorySample{
			{Code: "USDTRY", Alis: decimal.NewFromFloat(32.20), Timestamp: now.Add(-30 * time.Minute)},
			{Code: "USDTRY", Alis: decimal.NewFromFloat(32.10), Timestamp: now.Add(-2 * time.Hour)},
			{Code: "USDTRY", Alis: decimal.NewFromFloat(31.00), Timestamp: now.Add(-48 * time.Hour)},
			{Code: "GRAM24", Alis: decimal.NewFromInt(2000), Timestamp: now},
		},
	}
	router := newTestRouter(service.NewPriceStore(), service.NewPriceStore(), snapshots)

	w := doGet(router, "/api/prices/history/USDTRY")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool                    `json:"success"`
		Data    []storage.HistorySample `json:"data"`
		Count   int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count, "default window is 24 hours, one code only")

	// Widening the window picks up the older sample.
	w = doGet(router, "/api/prices/history/USDTRY?hours=72")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Count)

	// Oversized windows clamp to the 168-hour maximum, not the default.
	w = doGet(router, "/api/prices/history/USDTRY?hours=9000")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Count)

	// Nonsense values clamp to the one-hour minimum.
	w = doGet(router, "/api/prices/history/USDTRY?hours=-5")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestHealth(t *testing.T) {
	store := service.NewPriceStore()
	store.Set([]domain.PriceRecord{calculated("GRAM24", 2010, false)})
	snapshots := &fakeSnapshots{
		calculated: []domain.PriceRecord{calculated("GRAM24", 2010, false)},
	}

	w := doGet(newTestRouter(service.NewPriceStore(), store, snapshots), "/api/healthz")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Status             string `json:"status"`
		MemoryCount        int    `json:"memoryCount"`
		CalculatedSnapshot bool   `json:"calculatedSnapshot"`
		SourceSnapshot     bool   `json:"sourceSnapshot"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.MemoryCount)
	assert.True(t, body.CalculatedSnapshot)
	assert.False(t, body.SourceSnapshot)
}

func TestGetMetrics(t *testing.T) {
	w := doGet(newTestRouter(service.NewPriceStore(), service.NewPriceStore(), &fakeSnapshots{}), "/api/metrics")

	require.Equal(t, http.StatusOK, w.Code)
	var snap infra.MetricsSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.False(t, snap.Timestamp.IsZero())
}
