package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/visitor-attendance-api/internal/service"
)

const readinessTimeout = 2 * time.Second

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Dependency names a readiness check. Optional dependencies degrade the
// service instead of taking it out of rotation.
type Dependency struct {
	Name     string
	Check    ReadinessCheck
	Optional bool
}

type checkResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Optional  bool   `json:"optional,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
	deps    []Dependency
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService, deps []Dependency) *MetricsHandler {
	return &MetricsHandler{metrics: metrics, deps: deps}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health answers liveness checks.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready checks every dependency concurrently. A failing required dependency
// answers 503; a failing optional one reports "degraded" with 200.
func (h *MetricsHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		results = make(map[string]checkResult, len(h.deps))
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, dep := range h.deps {
		g.Go(func() error {
			started := time.Now()
			err := dep.Check(gctx)
			res := checkResult{Status: "ok", Optional: dep.Optional, LatencyMS: time.Since(started).Milliseconds()}
			if err != nil {
				res.Status = "failed"
				res.Error = err.Error()
			}
			mu.Lock()
			results[dep.Name] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	state, code := "ready", http.StatusOK
	for _, res := range results {
		if res.Status == "ok" {
			continue
		}
		if !res.Optional {
			state, code = "unavailable", http.StatusServiceUnavailable
			break
		}
		state = "degraded"
	}
	c.JSON(code, gin.H{"status": state, "checks": results})
}
