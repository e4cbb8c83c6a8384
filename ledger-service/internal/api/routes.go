package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Middleware groups the per-route handlers. Nil entries are skipped.
type Middleware struct {
	Auth        fiber.Handler
	RateLimit   fiber.Handler
	Idempotency fiber.Handler
}

// HealthCheck reports one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

func RegisterRoutes(app *fiber.App, h *LedgerHandler, mw Middleware,
	checks map[string]HealthCheck,
	feed ...fiber.Handler,
) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/health", Health(checks))
	if len(feed) > 0 {
		app.Get("/ws/events", feed...)
	}

	public := chain(mw.RateLimit)
	authed := chain(mw.Auth, mw.RateLimit)
	mutating := chain(mw.Auth, mw.RateLimit, mw.Idempotency)

	v1 := app.Group("/api/v1")
	v1.Get("/products", with(public, h.ListProducts)...)
	v1.Get("/products/count", with(public, h.CountProducts)...)
	v1.Get("/products/:id", with(public, h.GetProduct)...)
	v1.Post("/products", with(mutating, h.CreateProduct)...)
	v1.Post("/products/:id/buy", with(mutating, h.BuyProduct)...)
	v1.Post("/products/:id/unlist", with(mutating, h.UnlistProduct)...)

	v1.Get("/me/listings", with(authed, h.MyListings)...)
	v1.Get("/me/purchases", with(authed, h.MyPurchases)...)
	v1.Post("/me/withdraw", with(mutating, h.Withdraw)...)

	v1.Get("/accounts/:account/pending", with(public, h.PendingBalance)...)
	v1.Get("/accounts/:account/rewards", with(public, h.RewardBalance)...)
	v1.Get("/rewards/controller", with(public, h.RewardController)...)
}

// Health runs every check with a shared deadline.
func Health(checks map[string]HealthCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		results := make(map[string]string, len(checks))
		status := "ok"
		code := fiber.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = "degraded"
				code = fiber.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		return c.Status(code).JSON(fiber.Map{
			"status": status,
			"checks": results,
		})
	}
}

func chain(hs ...fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(hs))
	for _, h := range hs {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

func with(mw []fiber.Handler, h fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(mw)+1)
	return append(append(out, mw...), h)
}
