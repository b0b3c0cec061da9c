package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/slotclaim/slotclaim/internal/claim"
)

// StatusProvider exposes the loop's current state.
type StatusProvider interface {
	Snapshot() claim.Snapshot
}

// HealthChecker is a dependency probed by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewApp returns a fiber app with the ops routes registered.
func NewApp(status StatusProvider, deps map[string]HealthChecker) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
	})
	RegisterRoutes(app, status, deps)
	return app
}

func RegisterRoutes(app *fiber.App, status StatusProvider, deps map[string]HealthChecker) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Get("/health", func(c *fiber.Ctx) error {
		snap := status.Snapshot()
		checks := map[string]string{"loop": snap.State}
		code := fiber.StatusOK
		result := "ok"

		if snap.State == claim.StateFatal.String() {
			code = fiber.StatusServiceUnavailable
			result = "failed"
		}

		healthCtx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		for name, dep := range deps {
			if err := dep.HealthCheck(healthCtx); err != nil {
				checks[name] = err.Error()
				if code == fiber.StatusOK {
					result = "degraded"
				}
				code = fiber.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		return c.Status(code).JSON(fiber.Map{
			"status": result,
			"checks": checks,
		})
	})

	app.Get("/status", func(c *fiber.Ctx) error {
		return c.JSON(status.Snapshot())
	})
}
