package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Checker-Finance/marketplace/internal/metrics"
	"github.com/Checker-Finance/marketplace/pkg/model"
)

// OperatorIdentity is the placeholder reward controller used when Options
// leaves Operator empty.
const OperatorIdentity Account = reservedPrefix + "operator"

// DefaultRewardPerPurchase is minted to the buyer on every successful buy.
var DefaultRewardPerPurchase = decimal.NewFromInt(1)

var errNotInitialized = errors.New("ledger: service not initialized")

// EventSink receives committed events. Publish is called after the ledger
// lock is released.
type EventSink interface {
	Publish(ev model.Event)
}

type discardSink struct{}

func (discardSink) Publish(model.Event) {}

type Options struct {
	// Operator creates the reward issuer and hands its control to the registry.
	Operator Account
	// RewardPerPurchase is the flat reward minted per buy. Zero selects
	// DefaultRewardPerPurchase.
	RewardPerPurchase decimal.Decimal
	// MaxProducts bounds the registry; zero means unbounded.
	MaxProducts int
	Journal     Journal
	Payout      Payout
	Events      EventSink
	Logger      *zap.Logger
	Clock       func() time.Time
}

// Withdrawal is the result of a completed withdraw.
type Withdrawal struct {
	Account   Account
	Amount    decimal.Decimal
	Reference string
	Seq       uint64
}

// Service coordinates the registry, escrow and reward issuer. One RWMutex spans
// all three: mutations hold the write lock from the first check until the
// in-memory apply, reads hold the read lock and return copies.
type Service struct {
	mu       sync.RWMutex
	registry *Registry
	escrow   *Escrow
	rewards  *RewardIssuer
	held     decimal.Decimal
	seq      uint64
	ready    bool

	// withdrawals journaled but neither paid nor reverted, by reference
	unsettled map[string]*unsettled

	reward  decimal.Decimal
	journal Journal
	payout  Payout
	events  EventSink
	log     *zap.Logger
	now     func() time.Time
}

// New wires the three components, transfers reward control to the registry and
// replays the journal. The returned Service accepts mutations only if every
// step succeeded.
func New(ctx context.Context, opts Options) (*Service, error) {
	s := &Service{
		reward:  opts.RewardPerPurchase,
		journal: opts.Journal,
		payout:  opts.Payout,
		events:  opts.Events,
		log:     opts.Logger,
		now:     opts.Clock,
		held:    decimal.Zero,

		unsettled: make(map[string]*unsettled),
	}
	if s.reward.IsZero() {
		s.reward = DefaultRewardPerPurchase
	}
	if err := validAmount(s.reward); err != nil {
		return nil, fmt.Errorf("reward per purchase: %w", err)
	}
	if opts.MaxProducts < 0 {
		return nil, fmt.Errorf("%w: max products %d", ErrInvalidInput, opts.MaxProducts)
	}
	if s.journal == nil {
		s.journal = NewMemoryJournal()
	}
	if s.payout == nil {
		s.payout = settleInternally
	}
	if s.events == nil {
		s.events = discardSink{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}

	operator := opts.Operator
	if operator.IsZero() {
		operator = OperatorIdentity
	}
	s.rewards = NewRewardIssuer(operator)
	s.escrow = NewEscrow(RegistryIdentity)
	s.registry = NewRegistry(RegistryIdentity, s.escrow, s.rewards, opts.MaxProducts)
	if err := s.rewards.TransferControl(operator, RegistryIdentity); err != nil {
		return nil, fmt.Errorf("transfer reward control: %w", err)
	}

	if err := s.restore(ctx); err != nil {
		return nil, err
	}
	s.ready = true

	s.log.Info("ledger.initialized",
		zap.String("reward_controller", s.rewards.Controller().String()),
		zap.Uint64("seq", s.seq),
		zap.Uint64("products", s.registry.Count()),
		zap.String("reward_per_purchase", s.reward.String()),
	)
	s.publish(model.ControlTransferred{From: operator.String(), To: RegistryIdentity.String(), At: s.now().UTC()})
	return s, nil
}

func (s *Service) restore(ctx context.Context) error {
	entries, err := s.journal.Load(ctx)
	if err != nil {
		return fmt.Errorf("load journal: %w", err)
	}
	for _, e := range entries {
		if e.Seq != s.seq+1 {
			return fmt.Errorf("replay journal: seq %d follows %d", e.Seq, s.seq)
		}
		if err := s.check(e); err != nil {
			return fmt.Errorf("replay journal entry %d (%s): %w", e.Seq, e.Kind, err)
		}
		s.apply(e)
		s.seq = e.Seq
	}
	if len(entries) > 0 {
		s.log.Info("ledger.journal.replayed", zap.Int("entries", len(entries)), zap.Uint64("seq", s.seq))
	}
	for ref, u := range s.unsettled {
		s.log.Warn("ledger.withdraw.unsettled_on_restore",
			zap.String("account", u.w.Account.String()),
			zap.String("amount", u.w.Amount.String()),
			zap.String("reference", ref),
		)
	}
	return nil
}

// Create lists a new product with caller as seller and returns it.
func (s *Service) Create(ctx context.Context, caller Account, l Listing) (p Product, err error) {
	defer s.observe("create", time.Now(), &err)
	if err := external(caller); err != nil {
		return Product{}, err
	}

	if err := s.lock(); err != nil {
		return Product{}, err
	}
	ev, err := s.commit(ctx, Entry{
		Kind:        EntryProductCreated,
		ProductID:   s.registry.NextID(),
		Account:     caller,
		Amount:      l.Price,
		Title:       l.Title,
		Description: l.Description,
		ImageURI:    l.ImageURI,
		Category:    l.Category,
	})
	if err == nil {
		p, _ = s.registry.Get(ev.(model.ProductListed).ProductID)
	}
	s.mu.Unlock()
	if err != nil {
		return Product{}, err
	}

	s.publish(ev)
	return p, nil
}

// Buy purchases product id for exactly its price. The seller's escrow is
// credited and the buyer receives the flat reward in the same critical section.
func (s *Service) Buy(ctx context.Context, caller Account, id uint64, payment decimal.Decimal) (p Product, err error) {
	defer s.observe("buy", time.Now(), &err)
	if err := external(caller); err != nil {
		return Product{}, err
	}

	if err := s.lock(); err != nil {
		return Product{}, err
	}
	ev, err := s.commit(ctx, Entry{
		Kind:      EntryProductSold,
		ProductID: id,
		Account:   caller,
		Amount:    payment,
		Reward:    s.reward,
	})
	if err == nil {
		p, _ = s.registry.Get(id)
	}
	s.mu.Unlock()
	if err != nil {
		return Product{}, err
	}

	s.publish(ev)
	return p, nil
}

// Unlist withdraws an active product from sale. Only its seller may do so.
func (s *Service) Unlist(ctx context.Context, caller Account, id uint64) (p Product, err error) {
	defer s.observe("unlist", time.Now(), &err)
	if err := external(caller); err != nil {
		return Product{}, err
	}

	if err := s.lock(); err != nil {
		return Product{}, err
	}
	ev, err := s.commit(ctx, Entry{Kind: EntryProductUnlisted, ProductID: id, Account: caller})
	if err == nil {
		p, _ = s.registry.Get(id)
	}
	s.mu.Unlock()
	if err != nil {
		return Product{}, err
	}

	s.publish(ev)
	return p, nil
}

// Withdraw pays out caller's whole pending balance. The balance is zeroed and
// journaled under the lock; the transfer runs after the lock is released.
//
// A rejected transfer re-credits the balance and returns ErrPayoutFailed. When
// the outcome is unknown the withdrawal is returned together with an
// ErrPayoutPending error and stays unsettled until Reconcile resolves it.
func (s *Service) Withdraw(ctx context.Context, caller Account) (w Withdrawal, err error) {
	defer s.observe("withdraw", time.Now(), &err)
	if err := external(caller); err != nil {
		return Withdrawal{}, err
	}

	if err := s.lock(); err != nil {
		return Withdrawal{}, err
	}
	ev, err := s.commit(ctx, Entry{
		Kind:      EntryFundsWithdrawn,
		Account:   caller,
		Amount:    s.escrow.Pending(caller),
		Reference: uuid.NewString(),
	})
	if err == nil {
		s.unsettled[ev.(model.FundsWithdrawn).Reference].driving = true
	}
	s.mu.Unlock()
	if err != nil {
		return Withdrawal{}, err
	}
	s.publish(ev)

	fw := ev.(model.FundsWithdrawn)
	return s.drive(ctx, Withdrawal{Account: caller, Amount: fw.Amount, Reference: fw.Reference, Seq: fw.Seq})
}

// lock takes the write lock for a mutation. It refuses to if New did not
// complete.
func (s *Service) lock() error {
	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return errNotInitialized
	}
	return nil
}

// commit checks e, journals it and applies it. Callers hold the write lock.
func (s *Service) commit(ctx context.Context, e Entry) (model.Event, error) {
	if err := s.check(e); err != nil {
		return nil, err
	}
	e.Seq = s.seq + 1
	e.RecordedAt = s.now().UTC()
	if err := s.journal.Append(ctx, e); err != nil {
		metrics.IncError("journal", "append")
		return nil, fmt.Errorf("append journal entry: %w", err)
	}
	s.seq = e.Seq
	return s.apply(e), nil
}

// check validates e against current state without mutating anything.
func (s *Service) check(e Entry) error {
	switch e.Kind {
	case EntryProductCreated:
		if e.ProductID != s.registry.NextID() {
			return fmt.Errorf("product id %d, next id is %d", e.ProductID, s.registry.NextID())
		}
		return s.registry.checkCreate(e.Account, listingOf(e))
	case EntryProductSold:
		_, err := s.registry.checkBuy(e.Account, e.ProductID, e.Amount, e.Reward)
		return err
	case EntryProductUnlisted:
		_, err := s.registry.checkUnlist(e.Account, e.ProductID)
		return err
	case EntryFundsWithdrawn:
		pending := s.escrow.Pending(e.Account)
		if pending.IsZero() {
			return ErrNothingToWithdraw
		}
		if !pending.Equal(e.Amount) {
			return fmt.Errorf("withdraw amount %s, pending is %s", e.Amount, pending)
		}
		if e.Reference == "" {
			return fmt.Errorf("%w: withdrawal without reference", ErrInvalidInput)
		}
		if _, dup := s.unsettled[e.Reference]; dup {
			return fmt.Errorf("%w: reference %q already unsettled", ErrInvalidInput, e.Reference)
		}
		return nil
	case EntryWithdrawPaid, EntryWithdrawReverted:
		return s.checkSettle(e)
	default:
		return fmt.Errorf("unknown entry kind %q", e.Kind)
	}
}

// apply mutates state for an entry that passed check and returns its event.
func (s *Service) apply(e Entry) model.Event {
	switch e.Kind {
	case EntryProductCreated:
		p := s.registry.applyCreate(e.Account, listingOf(e))
		return model.ProductListed{
			Seq:       e.Seq,
			ProductID: p.ID,
			Seller:    p.Seller.String(),
			Title:     p.Title,
			Category:  p.Category.String(),
			Price:     p.Price,
			At:        e.RecordedAt,
		}
	case EntryProductSold:
		p := s.registry.applyBuy(e.Account, e.ProductID, e.Amount, e.Reward)
		s.held = s.held.Add(e.Amount)
		return model.ProductSold{
			Seq:       e.Seq,
			ProductID: p.ID,
			Seller:    p.Seller.String(),
			Buyer:     p.Buyer.String(),
			Price:     e.Amount,
			Reward:    e.Reward,
			At:        e.RecordedAt,
		}
	case EntryProductUnlisted:
		p := s.registry.applyUnlist(e.ProductID)
		return model.ProductUnlisted{Seq: e.Seq, ProductID: p.ID, Seller: p.Seller.String(), At: e.RecordedAt}
	case EntryFundsWithdrawn:
		amount := s.escrow.take(e.Account)
		s.held = s.held.Sub(amount)
		s.unsettled[e.Reference] = &unsettled{w: Withdrawal{Account: e.Account, Amount: amount, Reference: e.Reference, Seq: e.Seq}}
		return model.FundsWithdrawn{
			Seq:       e.Seq,
			Owner:     e.Account.String(),
			Amount:    amount,
			Reference: e.Reference,
			At:        e.RecordedAt,
		}
	case EntryWithdrawPaid:
		delete(s.unsettled, e.Reference)
		return model.WithdrawalPaid{
			Seq:       e.Seq,
			Owner:     e.Account.String(),
			Amount:    e.Amount,
			Reference: e.Reference,
			At:        e.RecordedAt,
		}
	default: // EntryWithdrawReverted
		delete(s.unsettled, e.Reference)
		s.escrow.credit(e.Account, e.Amount)
		s.held = s.held.Add(e.Amount)
		return model.WithdrawalReverted{
			Seq:       e.Seq,
			Owner:     e.Account.String(),
			Amount:    e.Amount,
			Reference: e.Reference,
			Reason:    e.Note,
			At:        e.RecordedAt,
		}
	}
}

func listingOf(e Entry) Listing {
	return Listing{
		Title:       e.Title,
		Description: e.Description,
		ImageURI:    e.ImageURI,
		Category:    e.Category,
		Price:       e.Amount,
	}
}

func external(caller Account) error {
	if caller.Reserved() {
		return fmt.Errorf("%w: account %q is reserved", ErrUnauthorized, caller)
	}
	return nil
}

func (s *Service) publish(ev model.Event) {
	if ev != nil {
		s.events.Publish(ev)
	}
}

func (s *Service) observe(op string, start time.Time, err *error) {
	metrics.ObserveDuration(metrics.LedgerOpDuration, start, op)
	metrics.IncLedgerOp(op, Kind(*err))
}

// Get returns a copy of product id.
func (s *Service) Get(id uint64) (Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Get(id)
}

func (s *Service) Count() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Count()
}

// Products returns every product in id order.
func (s *Service) Products() []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.All()
}

// Listings returns the ids caller has listed, in creation order.
func (s *Service) Listings(caller Account) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Listings(caller)
}

// Purchases returns the ids caller has bought, in purchase order.
func (s *Service) Purchases(caller Account) []uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.Purchases(caller)
}

func (s *Service) PendingBalance(account Account) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.escrow.Pending(account)
}

func (s *Service) RewardBalanceOf(account Account) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rewards.BalanceOf(account)
}

// RewardController is the identity currently allowed to mint rewards.
func (s *Service) RewardController() Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rewards.Controller()
}

// Seq is the sequence number of the last committed entry.
func (s *Service) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}
