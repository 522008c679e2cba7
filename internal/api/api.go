package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"sarraf_go/internal/domain"
	"sarraf_go/internal/infra"
	"sarraf_go/internal/infra/storage"
	"sarraf_go/internal/infra/ws"
	"sarraf_go/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	defaultHistoryHours = 24
	maxHistoryHours     = 168
	maxHistoryPoints    = 1000
)

// SnapshotStore is the persistence surface the handlers read from
type SnapshotStore interface {
	service.SnapshotReader
	ReadHistory(code string, since time.Time, limit int) ([]storage.HistorySample, error)
}

// Handler serves the price distribution HTTP surface.
type Handler struct {
	rawStore  *service.PriceStore
	store     *service.PriceStore
	snapshots SnapshotStore
	metrics   *infra.Metrics
}

// NewHandler creates a new handler
func NewHandler(rawStore, store *service.PriceStore, snapshots SnapshotStore, metrics *infra.Metrics) *Handler {
	return &Handler{
		rawStore:  rawStore,
		store:     store,
		snapshots: snapshots,
		metrics:   metrics,
	}
}

// SetupRoutes registers all routes on the engine
func SetupRoutes(r *gin.Engine, h *Handler, hub *ws.Hub) {
	api := r.Group("/api")
	{
		prices := api.Group("/prices")
		{
			prices.GET("/current", h.GetCurrent)
			prices.GET("/sources", h.GetSources)
			prices.GET("/cached", h.GetCached)
			prices.GET("/history/:code", h.GetHistory)
		}
		api.GET("/healthz", h.Health)
		api.GET("/metrics", h.GetMetrics)
	}

	r.GET("/ws", func(c *gin.Context) {
		hub.HandleWS(c.Writer, c.Request)
	})
}

// GetCurrent returns the raw (pre-margin) instrument list, the
// source-of-truth debug view.
func (h *Handler) GetCurrent(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    h.rawStore.Get(),
	})
}

// GetSources merges the in-memory raw prices with the durable source
// snapshot, memory values taking precedence per code.
func (h *Handler) GetSources(c *gin.Context) {
	memory := domain.FilterNonCustom(h.rawStore.Get())

	snapshot, err := h.snapshots.ReadSource()
	if err != nil && !errors.Is(err, domain.ErrSnapshotNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "source snapshot unavailable",
		})
		return
	}

	merged := make([]domain.PriceRecord, 0, len(memory)+len(snapshot))
	seen := make(map[string]bool, len(memory))
	for _, r := range memory {
		merged = append(merged, r.SourceView())
		seen[r.Code] = true
	}
	for _, r := range snapshot {
		if !seen[r.Code] {
			merged = append(merged, r.SourceView())
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"data":          merged,
		"lastUpdate":    time.Now(),
		"count":         len(merged),
		"memoryCount":   len(memory),
		"snapshotCount": len(snapshot),
	})
}

// GetCached serves the bootstrap pull: the calculated snapshot, or the
// in-memory custom-price subset if no snapshot exists yet.
func (h *Handler) GetCached(c *gin.Context) {
	records, metaTime, err := h.snapshots.ReadCalculated()
	if err != nil && !errors.Is(err, domain.ErrSnapshotNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "calculated snapshot unavailable",
		})
		return
	}

	if len(records) > 0 {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data": gin.H{
				"prices": records,
				"meta":   domain.PriceMeta{Time: metaTime},
			},
			"updatedAt": metaTime,
		})
		return
	}

	custom := make([]domain.PriceRecord, 0)
	for _, r := range h.store.Get() {
		if r.IsCustom {
			custom = append(custom, r)
		}
	}
	now := time.Now()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"prices": custom,
			"meta":   domain.PriceMeta{Time: now},
		},
		"updatedAt": now,
	})
}

// GetHistory returns time-ordered samples for one code within the
// trailing N hours (default 24), capped at 1000 points.
func (h *Handler) GetHistory(c *gin.Context) {
	code := c.Param("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "code is required",
		})
		return
	}

	hours := defaultHistoryHours
	if raw := c.Query("hours"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			hours = parsed
		}
	}
	if hours < 1 {
		hours = 1
	}
	if hours > maxHistoryHours {
		hours = maxHistoryHours
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	samples, err := h.snapshots.ReadHistory(code, since, maxHistoryPoints)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "history unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    samples,
		"count":   len(samples),
	})
}

// Health reports liveness and which cache tiers currently hold data
func (h *Handler) Health(c *gin.Context) {
	calculated, _, calcErr := h.snapshots.ReadCalculated()
	source, srcErr := h.snapshots.ReadSource()

	c.JSON(http.StatusOK, gin.H{
		"status":             "ok",
		"memoryCount":        h.store.Len(),
		"calculatedSnapshot": calcErr == nil && len(calculated) > 0,
		"sourceSnapshot":     srcErr == nil && len(source) > 0,
	})
}

// GetMetrics returns the operational counters
func (h *Handler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.Snapshot())
}
