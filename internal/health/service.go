package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"seedscraper/internal/logger"
	"seedscraper/internal/platform/postgres"
	"seedscraper/internal/platform/redis"
)

// Handler reports liveness of the engine and its two backing stores.
type Handler struct {
	log       *logger.Logger
	redis     *redis.Service
	postgres  *postgres.Service
	startTime time.Time

	// isReady is flipped from a startup goroutine while handlers read it.
	isReady atomic.Bool
}

func NewHandler(redisSvc *redis.Service, pgSvc *postgres.Service) *Handler {
	return &Handler{
		log:       logger.New("HealthCheck"),
		redis:     redisSvc,
		postgres:  pgSvc,
		startTime: time.Now(),
	}
}

// SetReady marks the engine ready for traffic once startup finishes.
func (h *Handler) SetReady() {
	h.isReady.Store(true)
	h.log.LogInfof("ready for traffic after %v", time.Since(h.startTime))
}

// Ready reports whether startup has finished.
func (h *Handler) Ready() bool { return h.isReady.Load() }

type ComponentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type OverallHealth struct {
	OverallStatus string                     `json:"overall_status"`
	Timestamp     string                     `json:"timestamp"`
	Ready         bool                       `json:"ready"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Components    map[string]ComponentStatus `json:"components"`
}

func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 8*time.Second)
	defer cancel()

	statuses := make(map[string]ComponentStatus)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allOk := true

	check := func(name string, fn func(context.Context) error) {
		defer wg.Done()
		status := ComponentStatus{Status: "ok"}
		if err := fn(ctx); err != nil {
			status = ComponentStatus{Status: "error", Error: err.Error()}
			h.log.LogErrorf("health check failed for %s: %v", name, err)
		}
		mu.Lock()
		if status.Status != "ok" {
			allOk = false
		}
		statuses[name] = status
		mu.Unlock()
	}

	wg.Add(2)
	go check("redis", h.redis.HealthCheck)
	go check("postgres", h.postgres.HealthCheck)
	wg.Wait()

	ready := h.isReady.Load()
	resp := OverallHealth{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Ready:         ready,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Components:    statuses,
	}

	switch {
	case allOk && ready:
		resp.OverallStatus = "ok"
		return c.Status(http.StatusOK).JSON(resp)
	case !ready:
		resp.OverallStatus = "starting"
		return c.Status(http.StatusServiceUnavailable).JSON(resp)
	default:
		resp.OverallStatus = "error"
		h.log.LogWarnf("health check failing: %+v", statuses)
		return c.Status(http.StatusServiceUnavailable).JSON(resp)
	}
}

// Limiter keeps aggressive orchestration probes from drowning the service.
func Limiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        300,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(http.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		},
	})
}
