package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler exposes liveness and readiness probes.
type HealthHandler struct {
	checks map[string]func(context.Context) error
}

// NewHealthHandler constructs the handler with named dependency checks.
func NewHealthHandler(checks map[string]func(context.Context) error) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Live GET /health/live.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Ready GET /health/ready.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	results := fiber.Map{}
	healthy := true
	for name, check := range h.checks {
		if err := check(c.UserContext()); err != nil {
			results[name] = err.Error()
			healthy = false
		} else {
			results[name] = "ok"
		}
	}
	if !healthy {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "checks": results})
	}
	return c.JSON(fiber.Map{"status": "ok", "checks": results})
}
