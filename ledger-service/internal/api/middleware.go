package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace/internal/ledger"
	"github.com/Checker-Finance/marketplace/internal/metrics"
	"github.com/Checker-Finance/marketplace/internal/rate"
	"github.com/Checker-Finance/marketplace/internal/store"
)

const (
	callerKey         = "caller"
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"
	maxIdempotencyKey = 128
)

// KeySource yields the HMAC key bearer tokens are signed with.
type KeySource interface {
	Key(ctx context.Context) ([]byte, error)
}

// IdempotencyStore remembers responses to mutating requests by key.
type IdempotencyStore interface {
	Begin(ctx context.Context, account, key string) (*store.CachedResponse, error)
	Complete(ctx context.Context, account, key string, resp store.CachedResponse) error
	Abort(ctx context.Context, account, key string) error
}

func callerFrom(c *fiber.Ctx) ledger.Account {
	if a, ok := c.Locals(callerKey).(ledger.Account); ok {
		return a
	}
	return ""
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{Error: msg, Kind: "unauthorized"})
}

// Auth verifies the bearer token and stores its subject as the caller.
// Subjects in the ledger's reserved namespace are refused.
func Auth(keys KeySource, logger *zap.Logger) fiber.Handler {
	methods := jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})
	return func(c *fiber.Ctx) error {
		raw, ok := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			return unauthorized(c, "missing bearer token")
		}

		key, err := keys.Key(c.UserContext())
		if err != nil {
			logger.Error("api.auth.key_unavailable", zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "signing key unavailable", Kind: "internal"})
		}

		var claims jwt.RegisteredClaims
		_, err = jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (interface{}, error) {
			return key, nil
		}, methods)
		if err != nil {
			return unauthorized(c, "invalid token")
		}

		caller, err := ledger.ParseAccount(claims.Subject)
		if err != nil {
			return unauthorized(c, "invalid token subject")
		}
		c.Locals(callerKey, caller)
		return c.Next()
	}
}

// RateLimit applies a token bucket per caller, or per client IP on
// unauthenticated routes.
func RateLimit(mgr *rate.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := "ip:" + c.IP()
		if caller := callerFrom(c); !caller.IsZero() {
			key = "acct:" + caller.String()
		}
		if !mgr.Allow(key) {
			return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{Error: "rate limit exceeded", Kind: "rate_limited"})
		}
		return c.Next()
	}
}

// Idempotency replays the stored response when a mutating request is retried
// with the same Idempotency-Key. Server errors release the key so the client
// can retry; every other outcome is remembered. Requests without the header
// pass through.
func Idempotency(st IdempotencyStore, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get(idempotencyHeader)
		if key == "" {
			return c.Next()
		}
		if len(key) > maxIdempotencyKey {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "idempotency key too long", Kind: "invalid_input"})
		}
		account := callerFrom(c).String()
		ctx := c.UserContext()

		cached, err := st.Begin(ctx, account, key)
		switch {
		case errors.Is(err, store.ErrInFlight):
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: err.Error(), Kind: "in_flight"})
		case err != nil:
			logger.Error("api.idempotency.unavailable", zap.String("account", account), zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "idempotency store unavailable", Kind: "internal"})
		case cached != nil:
			c.Set(replayedHeader, "true")
			c.Set(fiber.HeaderContentType, cached.ContentType)
			return c.Status(cached.Status).Send(cached.Body)
		}

		if err := c.Next(); err != nil {
			_ = st.Abort(context.WithoutCancel(ctx), account, key)
			return err
		}

		resp := c.Response()
		if resp.StatusCode() >= fiber.StatusInternalServerError {
			if err := st.Abort(context.WithoutCancel(ctx), account, key); err != nil {
				logger.Warn("api.idempotency.abort_failed", zap.String("account", account), zap.Error(err))
			}
			return nil
		}
		if err := st.Complete(context.WithoutCancel(ctx), account, key, store.CachedResponse{
			Status:      resp.StatusCode(),
			ContentType: string(resp.Header.ContentType()),
			Body:        append([]byte(nil), resp.Body()...),
		}); err != nil {
			logger.Warn("api.idempotency.complete_failed", zap.String("account", account), zap.Error(err))
		}
		return nil
	}
}

// RequestLogger writes one zap line per request and counts it.
func RequestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		route := c.Route().Path
		metrics.IncHTTPRequest(c.Method(), route, status)

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("caller", callerFrom(c).String()),
		}
		if id, ok := c.Locals("requestid").(string); ok {
			fields = append(fields, zap.String("request_id", id))
		}
		if status >= fiber.StatusInternalServerError {
			logger.Warn("http.request", fields...)
		} else {
			logger.Info("http.request", fields...)
		}
		return err
	}
}
