package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace/internal/httpclient"
	"github.com/Checker-Finance/marketplace/internal/ledger"
	"github.com/Checker-Finance/marketplace/internal/rate"
)

const rateKey = "payout"

type transferRequest struct {
	Account   string          `json:"account"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

type transferResponse struct {
	Status string `json:"status"`
	TxID   string `json:"tx_id"`
}

// Gateway sends withdrawn balances to an external payout rail over HTTP. The
// withdrawal reference is sent as the Idempotency-Key, so retried transfers
// are not paid twice.
type Gateway struct {
	url    string
	exec   *httpclient.Executor
	logger *zap.Logger
}

type Config struct {
	URL      string
	RetryMax int
	Timeout  time.Duration
	Rate     rate.Config
}

func NewGateway(cfg Config, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	var mgr *rate.Manager
	if cfg.Rate.RequestsPerSecond > 0 {
		mgr = rate.NewManager(cfg.Rate)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	exec := httpclient.New(logger, mgr, &http.Client{Timeout: timeout}, cfg.RetryMax, "payout", nil)
	return &Gateway{url: cfg.URL, exec: exec, logger: logger}
}

// refused reports whether a 4xx answer means the rail will never pay this
// request. Timeouts, key conflicts and throttling say nothing about whether an
// earlier attempt under the same key settled.
func refused(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return status >= 400 && status < 500
}

// Transfer implements ledger.Payout. Only a refusal by the rail is reported as
// ledger.ErrPayoutRejected; transport failures, 5xx after retries and
// undecodable answers leave the outcome unknown.
func (g *Gateway) Transfer(ctx context.Context, t ledger.Transfer) error {
	body, err := json.Marshal(transferRequest{
		Account:   t.To.String(),
		Amount:    t.Amount,
		Reference: t.Reference,
	})
	if err != nil {
		return fmt.Errorf("encode transfer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", t.Reference)

	var out transferResponse
	if err := g.exec.DoJSON(ctx, req, rateKey, &out); err != nil {
		var se *httpclient.StatusError
		if errors.As(err, &se) && refused(se.Status) {
			return fmt.Errorf("transfer %s: %w: %w", t.Reference, ledger.ErrPayoutRejected, err)
		}
		return fmt.Errorf("transfer %s: %w", t.Reference, err)
	}
	switch out.Status {
	case "", "accepted", "settled":
	case "rejected", "declined", "failed":
		return fmt.Errorf("transfer %s: %w: rail reported status %q", t.Reference, ledger.ErrPayoutRejected, out.Status)
	default:
		return fmt.Errorf("transfer %s: rail reported status %q", t.Reference, out.Status)
	}

	g.logger.Info("payout.transfer_sent",
		zap.String("account", t.To.String()),
		zap.String("amount", t.Amount.String()),
		zap.String("reference", t.Reference),
		zap.String("tx_id", out.TxID),
	)
	return nil
}
