package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace/internal/ledger"
)

// Ledger is the subset of ledger.Service the HTTP layer needs.
type Ledger interface {
	Create(ctx context.Context, caller ledger.Account, l ledger.Listing) (ledger.Product, error)
	Buy(ctx context.Context, caller ledger.Account, id uint64, payment decimal.Decimal) (ledger.Product, error)
	Unlist(ctx context.Context, caller ledger.Account, id uint64) (ledger.Product, error)
	Withdraw(ctx context.Context, caller ledger.Account) (ledger.Withdrawal, error)

	Get(id uint64) (ledger.Product, error)
	Count() uint64
	Products() []ledger.Product
	Listings(caller ledger.Account) []uint64
	Purchases(caller ledger.Account) []uint64
	PendingBalance(account ledger.Account) decimal.Decimal
	RewardBalanceOf(account ledger.Account) decimal.Decimal
	RewardController() ledger.Account
}

// LedgerHandler serves the marketplace routes.
type LedgerHandler struct {
	logger *zap.Logger
	ledger Ledger
}

func NewLedgerHandler(logger *zap.Logger, l Ledger) *LedgerHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerHandler{logger: logger, ledger: l}
}

// CreateProduct lists a new product for the caller.
func (h *LedgerHandler) CreateProduct(c *fiber.Ctx) error {
	var req CreateProductRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error(), Kind: "invalid_input"})
	}
	listing, err := req.Listing()
	if err != nil {
		return writeError(c, h.logger, "create", err)
	}

	p, err := h.ledger.Create(c.UserContext(), callerFrom(c), listing)
	if err != nil {
		return writeError(c, h.logger, "create", err)
	}
	return c.Status(fiber.StatusCreated).JSON(toProductResponse(p))
}

// BuyProduct purchases :id with the payment in the body.
func (h *LedgerHandler) BuyProduct(c *fiber.Ctx) error {
	id, err := parseProductID(c.Params("id"))
	if err != nil {
		return writeError(c, h.logger, "buy", err)
	}
	var req BuyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error(), Kind: "invalid_input"})
	}
	payment, err := req.Amount()
	if err != nil {
		return writeError(c, h.logger, "buy", err)
	}

	p, err := h.ledger.Buy(c.UserContext(), callerFrom(c), id, payment)
	if err != nil {
		return writeError(c, h.logger, "buy", err)
	}
	return c.JSON(toProductResponse(p))
}

func (h *LedgerHandler) UnlistProduct(c *fiber.Ctx) error {
	id, err := parseProductID(c.Params("id"))
	if err != nil {
		return writeError(c, h.logger, "unlist", err)
	}
	p, err := h.ledger.Unlist(c.UserContext(), callerFrom(c), id)
	if err != nil {
		return writeError(c, h.logger, "unlist", err)
	}
	return c.JSON(toProductResponse(p))
}

// Withdraw pays out the caller's whole pending balance. A transfer whose
// outcome is unknown answers 202 with the withdrawal's reference.
func (h *LedgerHandler) Withdraw(c *fiber.Ctx) error {
	w, err := h.ledger.Withdraw(c.UserContext(), callerFrom(c))
	status := "paid"
	if errors.Is(err, ledger.ErrPayoutPending) {
		h.logger.Warn("api.withdraw_pending", zap.String("reference", w.Reference), zap.Error(err))
		c.Status(fiber.StatusAccepted)
		status, err = "pending", nil
	}
	if err != nil {
		return writeError(c, h.logger, "withdraw", err)
	}
	return c.JSON(WithdrawResponse{
		Account:   w.Account.String(),
		Amount:    w.Amount.String(),
		Reference: w.Reference,
		Seq:       w.Seq,
		Status:    status,
	})
}

func (h *LedgerHandler) GetProduct(c *fiber.Ctx) error {
	id, err := parseProductID(c.Params("id"))
	if err != nil {
		return writeError(c, h.logger, "get", err)
	}
	p, err := h.ledger.Get(id)
	if err != nil {
		return writeError(c, h.logger, "get", err)
	}
	return c.JSON(toProductResponse(p))
}

func (h *LedgerHandler) ListProducts(c *fiber.Ctx) error {
	products := h.ledger.Products()
	out := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	return c.JSON(ProductsResponse{Count: uint64(len(out)), Products: out})
}

func (h *LedgerHandler) CountProducts(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"count": h.ledger.Count()})
}

func (h *LedgerHandler) MyListings(c *fiber.Ctx) error {
	caller := callerFrom(c)
	return c.JSON(IDsResponse{Account: caller.String(), IDs: nonNil(h.ledger.Listings(caller))})
}

func (h *LedgerHandler) MyPurchases(c *fiber.Ctx) error {
	caller := callerFrom(c)
	return c.JSON(IDsResponse{Account: caller.String(), IDs: nonNil(h.ledger.Purchases(caller))})
}

func (h *LedgerHandler) PendingBalance(c *fiber.Ctx) error {
	account, err := ledger.ParseAccount(c.Params("account"))
	if err != nil {
		return writeError(c, h.logger, "pending", err)
	}
	return c.JSON(BalanceResponse{Account: account.String(), Amount: h.ledger.PendingBalance(account).String()})
}

func (h *LedgerHandler) RewardBalance(c *fiber.Ctx) error {
	account, err := ledger.ParseAccount(c.Params("account"))
	if err != nil {
		return writeError(c, h.logger, "rewards", err)
	}
	return c.JSON(BalanceResponse{Account: account.String(), Amount: h.ledger.RewardBalanceOf(account).String()})
}

func (h *LedgerHandler) RewardController(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"controller": h.ledger.RewardController().String()})
}

// nonNil keeps empty id lists rendering as [] rather than null.
func nonNil(ids []uint64) []uint64 {
	if ids == nil {
		return []uint64{}
	}
	return ids
}
