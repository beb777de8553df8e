package handlers

import (
	"context"

	"pontos/internal/utils"

	"github.com/gofiber/fiber/v2"
)

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type CacheStats interface {
	Stats() (hits, misses int64)
}

type HealthHandler struct {
	version string
	checks  map[string]HealthChecker
	cache   CacheStats
}

// NewHealthHandler reports the status of each named dependency. cache may be
// nil.
func NewHealthHandler(version string, checks map[string]HealthChecker, cache CacheStats) *HealthHandler {
	return &HealthHandler{version: version, checks: checks, cache: cache}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	status := "ok"
	services := fiber.Map{}
	for name, check := range h.checks {
		if err := check.HealthCheck(c.UserContext()); err != nil {
			status = "degraded"
			services[name] = err.Error()
			continue
		}
		services[name] = "connected"
	}

	code := fiber.StatusOK
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return utils.Respond(c, code, fiber.Map{
		"status":   status,
		"version":  h.version,
		"services": services,
	})
}

func (h *HealthHandler) CacheStats(c *fiber.Ctx) error {
	if h.cache == nil {
		return utils.Success(c, fiber.Map{"cache_stats": nil})
	}
	hits, misses := h.cache.Stats()
	return utils.Success(c, fiber.Map{
		"cache_stats": fiber.Map{"hits": hits, "misses": misses},
	})
}
