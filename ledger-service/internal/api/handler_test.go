package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace/internal/ledger"
	"github.com/Checker-Finance/marketplace/internal/rate"
	"github.com/Checker-Finance/marketplace/internal/secrets"
	"github.com/Checker-Finance/marketplace/internal/store"
)

const testPrice = "10000000000000000"

var testKey = []byte("test-signing-key")

// --- Test Helpers ---

type testServer struct {
	app    *fiber.App
	ledger *ledger.Service
	redis  *miniredis.Miniredis
}

type serverOption func(*ledger.Options, *rate.Config)

func withPayout(p ledger.Payout) serverOption {
	return func(o *ledger.Options, _ *rate.Config) { o.Payout = p }
}

func withRate(cfg rate.Config) serverOption {
	return func(_ *ledger.Options, r *rate.Config) { *r = cfg }
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	lo := ledger.Options{}
	rc := rate.Config{RequestsPerSecond: 1000, Burst: 1000}
	for _, o := range opts {
		o(&lo, &rc)
	}
	svc, err := ledger.New(context.Background(), lo)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	app := fiber.New()
	app.Use(RequestLogger(zap.NewNop()))
	RegisterRoutes(app, NewLedgerHandler(zap.NewNop(), svc), Middleware{
		Auth:        Auth(secrets.StaticSigningKeys(testKey), zap.NewNop()),
		RateLimit:   RateLimit(rate.NewManager(rc)),
		Idempotency: Idempotency(store.NewIdempotency(rdb, time.Hour), zap.NewNop()),
	}, map[string]HealthCheck{
		"ledger": func(context.Context) error { return nil },
	})

	return &testServer{app: app, ledger: svc, redis: mr}
}

func token(t *testing.T, subject string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(testKey)
	require.NoError(t, err)
	return signed
}

type call struct {
	method  string
	path    string
	as      string
	body    string
	headers map[string]string
}

func (s *testServer) do(t *testing.T, c call) (*http.Response, []byte) {
	t.Helper()
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req, err := http.NewRequest(c.method, c.path, body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.as != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, c.as))
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func (s *testServer) createProduct(t *testing.T, seller string) ProductResponse {
	t.Helper()
	resp, raw := s.do(t, call{
		method: http.MethodPost,
		path:   "/api/v1/products",
		as:     seller,
		body:   fmt.Sprintf(`{"title":"Pixel 9","description":"boxed","imageUri":"ipfs://pixel","category":"smartphones","price":%q}`, testPrice),
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(raw))
	return decode[ProductResponse](t, raw)
}

// --- Marketplace flow ---

func TestCreateProduct_Success(t *testing.T) {
	s := newTestServer(t)

	p := s.createProduct(t, "0xAlice")

	assert.Equal(t, uint64(0), p.ID)
	assert.Equal(t, "Pixel 9", p.Title)
	assert.Equal(t, "Smartphones", p.Category)
	assert.Equal(t, testPrice, p.Price)
	assert.Equal(t, "0xalice", p.Seller)
	assert.Empty(t, p.Buyer)
	assert.True(t, p.Active)
	assert.False(t, p.Sold)
	assert.Equal(t, "Active", p.Status)

	resp, raw := s.do(t, call{method: http.MethodGet, path: "/api/v1/products/count"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"count":1}`, string(raw))
}

func TestCreateProduct_CategoryByIndex(t *testing.T) {
	s := newTestServer(t)

	for _, tc := range []struct{ category, want string }{
		{`"0"`, "Smartphones"},
		{`3`, "Accessories"},
		{`"other"`, "Other"},
	} {
		resp, raw := s.do(t, call{
			method: http.MethodPost,
			path:   "/api/v1/products",
			as:     "0xalice",
			body:   fmt.Sprintf(`{"title":"E-Book","imageUri":"ipfs://book","category":%s,"price":"10"}`, tc.category),
		})
		require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(raw))
		assert.Equal(t, tc.want, decode[ProductResponse](t, raw).Category, tc.category)
	}
}

func TestBuyProduct_SettlesEscrowAndReward(t *testing.T) {
	s := newTestServer(t)
	s.createProduct(t, "0xalice")

	resp, raw := s.do(t, call{
		method: http.MethodPost,
		path:   "/api/v1/products/0/buy",
		as:     "0xbob",
		body:   fmt.Sprintf(`{"payment":%q}`, testPrice),
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	p := decode[ProductResponse](t, raw)
	assert.True(t, p.Sold)
	assert.False(t, p.Active)
	assert.Equal(t, "0xbob", p.Buyer)
	assert.Equal(t, "Sold", p.Status)

	_, raw = s.do(t, call{method: http.MethodGet, path: "/api/v1/accounts/0xalice/pending"})
	assert.Equal(t, BalanceResponse{Account: "0xalice", Amount: testPrice}, decode[BalanceResponse](t, raw))

	_, raw = s.do(t, call{method: http.MethodGet, path: "/api/v1/accounts/0xbob/rewards"})
	assert.Equal(t, BalanceResponse{Account: "0xbob", Amount: "1"}, decode[BalanceResponse](t, raw))

	_, raw = s.do(t, call{method: http.MethodGet, path: "/api/v1/me/purchases", as: "0xbob"})
	assert.Equal(t, []uint64{0}, decode[IDsResponse](t, raw).IDs)

	_, raw = s.do(t, call{method: http.MethodGet, path: "/api/v1/me/listings", as: "0xbob"})
	assert.Equal(t, []uint64{}, decode[IDsResponse](t, raw).IDs)

	_, raw = s.do(t, call{method: http.MethodGet, path: "/api/v1/me/listings", as: "0xalice"})
	assert.Equal(t, []uint64{0}, decode[IDsResponse](t, raw).IDs)
}

func TestWithdraw_PaysOutPendingBalance(t *testing.T) {
	var paid []ledger.Transfer
	s := newTestServer(t, withPayout(ledger.PayoutFunc(func(_ context.Context, tr ledger.Transfer) error {
		paid = append(paid, tr)
		return nil
	})))
	s.createProduct(t, "0xalice")
	_, err := s.ledger.Buy(context.Background(), "0xbob", 0, mustAmount(t, testPrice))
	require.NoError(t, err)

	resp, raw := s.do(t, call{method: http.MethodPost, path: "/api/v1/me/withdraw", as: "0xalice"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))
	w := decode[WithdrawResponse](t, raw)
	assert.Equal(t, "0xalice", w.Account)
	assert.Equal(t, testPrice, w.Amount)
	assert.NotEmpty(t, w.Reference)
	assert.Equal(t, "paid", w.Status)

	require.Len(t, paid, 1)
	assert.Equal(t, w.Reference, paid[0].Reference)

	resp, raw = s.do(t, call{method: http.MethodPost, path: "/api/v1/me/withdraw", as: "0xalice"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, "nothing_to_withdraw", decode[ErrorResponse](t, raw).Kind)
}

func TestWithdraw_PayoutFailureRestoresBalance(t *testing.T) {
	s := newTestServer(t, withPayout(ledger.PayoutFunc(func(context.Context, ledger.Transfer) error {
		return fmt.Errorf("%w: beneficiary closed", ledger.ErrPayoutRejected)
	})))
	s.createProduct(t, "0xalice")
	_, err := s.ledger.Buy(context.Background(), "0xbob", 0, mustAmount(t, testPrice))
	require.NoError(t, err)

	resp, raw := s.do(t, call{method: http.MethodPost, path: "/api/v1/me/withdraw", as: "0xalice"})
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "payout_failed", decode[ErrorResponse](t, raw).Kind)
	assert.Equal(t, testPrice, s.ledger.PendingBalance("0xalice").String())
}

func TestWithdraw_UnknownPayoutOutcomeIsAccepted(t *testing.T) {
	s := newTestServer(t, withPayout(ledger.PayoutFunc(func(context.Context, ledger.Transfer) error {
		return errors.New("rail offline")
	})))
	s.createProduct(t, "0xalice")
	_, err := s.ledger.Buy(context.Background(), "0xbob", 0, mustAmount(t, testPrice))
	require.NoError(t, err)

	resp, raw := s.do(t, call{method: http.MethodPost, path: "/api/v1/me/withdraw", as: "0xalice"})
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode, string(raw))
	w := decode[WithdrawResponse](t, raw)
	assert.Equal(t, "pending", w.Status)
	assert.Equal(t, testPrice, w.Amount)
	assert.NotEmpty(t, w.Reference)
	assert.Equal(t, "0", s.ledger.PendingBalance("0xalice").String())

	resp, _ = s.do(t, call{method: http.MethodPost, path: "/api/v1/me/withdraw", as: "0xalice"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestListProducts(t *testing.T) {
	s := newTestServer(t)
	s.createProduct(t, "0xalice")
	s.createProduct(t, "0xcarol")

	resp, raw := s.do(t, call{method: http.MethodPost, path: "/api/v1/products/0/unlist", as: "0xalice"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(raw))

	_, raw = s.do(t, call{method: http.MethodGet, path: "/api/v1/products"})
	list := decode[ProductsResponse](t, raw)
	require.Equal(t, uint64(2), list.Count)
	assert.Equal(t, "Unlisted", list.Products[0].Status)
	assert.Equal(t, "Active", list.Products[1].Status)
	assert.Equal(t, "0xcarol", list.Products[1].Seller)
}

func TestRewardController(t *testing.T) {
	s := newTestServer(t)
	_, raw := s.do(t, call{method: http.MethodGet, path: "/api/v1/rewards/controller"})
	assert.JSONEq(t, `{"controller":"ledger:registry"}`, string(raw))
}

// --- Error mapping ---

func TestErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	s.createProduct(t, "0xalice")
	s.createProduct(t, "0xalice")
	_, err := s.ledger.Unlist(context.Background(), "0xalice", 1)
	require.NoError(t, err)

	buy := func(id, as, payment string) call {
		return call{method: http.MethodPost, path: "/api/v1/products/" + id + "/buy", as: as, body: fmt.Sprintf(`{"payment":%q}`, payment)}
	}

	tests := []struct {
		name   string
		call   call
		status int
		kind   string
	}{
		{"self purchase", buy("0", "0xalice", testPrice), fiber.StatusForbidden, "self_purchase"},
		{"wrong payment", buy("0", "0xbob", "1"), fiber.StatusBadRequest, "wrong_payment"},
		{"fractional payment", buy("0", "0xbob", "1.5"), fiber.StatusBadRequest, "invalid_input"},
		{"missing payment", call{method: http.MethodPost, path: "/api/v1/products/0/buy", as: "0xbob", body: `{}`}, fiber.StatusBadRequest, "invalid_input"},
		{"unknown product", buy("7", "0xbob", testPrice), fiber.StatusNotFound, "not_found"},
		{"non-numeric id", buy("abc", "0xbob", testPrice), fiber.StatusBadRequest, "invalid_input"},
		{"unlisted product", buy("1", "0xbob", testPrice), fiber.StatusConflict, "not_available"},
		{"unlist by stranger", call{method: http.MethodPost, path: "/api/v1/products/0/unlist", as: "0xbob"}, fiber.StatusForbidden, "not_seller"},
		{"unlist twice", call{method: http.MethodPost, path: "/api/v1/products/1/unlist", as: "0xalice"}, fiber.StatusConflict, "already_final"},
		{"get unknown", call{method: http.MethodGet, path: "/api/v1/products/99"}, fiber.StatusNotFound, "not_found"},
		{"bad category", call{method: http.MethodPost, path: "/api/v1/products", as: "0xalice", body: `{"title":"x","category":"Cars","price":"5"}`}, fiber.StatusBadRequest, "invalid_input"},
		{"category index out of range", call{method: http.MethodPost, path: "/api/v1/products", as: "0xalice", body: `{"title":"x","category":"5","price":"5"}`}, fiber.StatusBadRequest, "invalid_input"},
		{"numeric category out of range", call{method: http.MethodPost, path: "/api/v1/products", as: "0xalice", body: `{"title":"x","category":5,"price":"5"}`}, fiber.StatusBadRequest, "invalid_input"},
		{"zero price", call{method: http.MethodPost, path: "/api/v1/products", as: "0xalice", body: `{"title":"x","category":"Other","price":"0"}`}, fiber.StatusBadRequest, "invalid_input"},
		{"empty title", call{method: http.MethodPost, path: "/api/v1/products", as: "0xalice", body: `{"title":" ","category":"Other","price":"5"}`}, fiber.StatusBadRequest, "invalid_input"},
		{"reserved account query", call{method: http.MethodGet, path: "/api/v1/accounts/ledger:registry/pending"}, fiber.StatusUnauthorized, "unauthorized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, raw := s.do(t, tt.call)
			assert.Equal(t, tt.status, resp.StatusCode, string(raw))
			assert.Equal(t, tt.kind, decode[ErrorResponse](t, raw).Kind)
		})
	}

	assert.Equal(t, uint64(2), s.ledger.Count())
	assert.True(t, s.ledger.PendingBalance("0xalice").IsZero())
}

func TestCreateProduct_InvalidJSON(t *testing.T) {
	s := newTestServer(t)
	resp, _ := s.do(t, call{method: http.MethodPost, path: "/api/v1/products", as: "0xalice", body: "{invalid"})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, fiber.StatusNotFound, statusFor(fmt.Errorf("lookup: %w", ledger.ErrNotFound)))
	assert.Equal(t, fiber.StatusConflict, statusFor(ledger.ErrNothingToWithdraw))
	assert.Equal(t, fiber.StatusBadGateway, statusFor(ledger.ErrPayoutFailed))
	assert.Equal(t, fiber.StatusInternalServerError, statusFor(errors.New("disk on fire")))
}

func TestHealth(t *testing.T) {
	app := fiber.New()
	app.Get("/health", Health(map[string]HealthCheck{
		"store": func(context.Context) error { return nil },
		"nats":  func(context.Context) error { return errors.New("disconnected") },
	}))

	resp, err := app.Test(httptestRequest(http.MethodGet, "/health"), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"status":"degraded","checks":{"store":"ok","nats":"disconnected"}}`, string(raw))
}

func httptestRequest(method, path string) *http.Request {
	req, _ := http.NewRequest(method, path, nil)
	return req
}

func mustAmount(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := ledger.ParseAmount(s)
	require.NoError(t, err)
	return d
}
