// Package ledger provides the balance service every game module builds on:
// credit, debit, transfer, and periodic bonus claims, with per-account
// locking, snapshot persistence, and an append-only audit trail.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/guildpay/ledger-engine/internal/audit"
	"github.com/guildpay/ledger-engine/internal/locks"
	"github.com/guildpay/ledger-engine/internal/metrics"
	"github.com/guildpay/ledger-engine/internal/model"
	"github.com/guildpay/ledger-engine/internal/store"
)

var (
	// ErrInvalidAmount is returned for negative credits, non-positive
	// debits or transfers, and non-positive bonus amounts.
	ErrInvalidAmount = errors.New("ledger: invalid amount")

	// ErrInsufficientFunds is returned when a debit or transfer exceeds
	// the source balance. State is left unchanged.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrSameAccount is returned for self-transfers.
	ErrSameAccount = errors.New("ledger: cannot transfer to the same account")

	// ErrAlreadyClaimed is returned when a bonus of the same kind was
	// already claimed on the current calendar day.
	ErrAlreadyClaimed = errors.New("ledger: bonus already claimed today")
)

// TxnOpts adjusts how a credit or debit is recorded.
type TxnOpts struct {
	Metadata map[string]string

	// SkipAudit suppresses the audit entry. Used when a higher-level
	// operation logs the net effect itself, to avoid double-logging.
	SkipAudit bool
}

// Service owns the in-memory account mapping, the lock registry, the
// snapshot store, and the audit log. It is constructed once per process;
// callers never mutate accounts directly.
type Service struct {
	accounts *accountMap
	locks    *locks.Registry
	snap     *persister
	log      audit.Log
	hub      *Hub // optional, nil disables broadcasting

	starting decimal.Decimal
	now      func() time.Time
}

// NewService loads the snapshot and constructs the service. A failed load
// is logged and degrades to an empty mapping rather than failing startup.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(ctx context.Context, st store.Store, log audit.Log, hub *Hub, startingBalance decimal.Decimal) *Service {
	loaded, err := st.Load(ctx)
	if err != nil {
		slog.Warn("snapshot load failed, starting empty", "err", err)
		loaded = make(map[string]*model.Account)
	}

	s := &Service{
		accounts: newAccountMap(loaded),
		locks:    locks.NewRegistry(),
		snap:     newPersister(st, loaded),
		log:      log,
		hub:      hub,
		starting: startingBalance,
		now:      time.Now,
	}
	metrics.Accounts.Set(float64(len(loaded)))
	return s
}

// SetNow substitutes the clock. Call before serving; tests use fixed clocks.
func (s *Service) SetNow(now func() time.Time) { s.now = now }

// Now returns the current time from the service clock.
func (s *Service) Now() time.Time { return s.now() }

// Balance returns the account's balance, lazily creating the account with
// the starting balance if absent. It never fails.
func (s *Service) Balance(ctx context.Context, accountID string) decimal.Decimal {
	lock := s.locks.For(accountID)
	lock.Lock()
	defer lock.Unlock()

	acct, created := s.accounts.getOrCreate(accountID, s.starting)
	if created {
		s.persist(ctx, acct)
	}
	return acct.Balance
}

// Account returns a deep copy of the account, lazily creating it.
func (s *Service) Account(ctx context.Context, accountID string) *model.Account {
	lock := s.locks.For(accountID)
	lock.Lock()
	defer lock.Unlock()

	acct, created := s.accounts.getOrCreate(accountID, s.starting)
	if created {
		s.persist(ctx, acct)
	}
	return acct.Clone()
}

// Update runs fn with exclusive access to the account and persists the
// result. If fn returns an error it must leave the account unchanged; the
// snapshot is not written in that case. Higher-level engines (positions,
// distributions) build their operations on this.
func (s *Service) Update(ctx context.Context, accountID string, fn func(acct *model.Account) error) error {
	lock := s.locks.For(accountID)
	lock.Lock()
	defer lock.Unlock()

	acct, _ := s.accounts.getOrCreate(accountID, s.starting)
	if err := fn(acct); err != nil {
		return err
	}
	s.persist(ctx, acct)
	return nil
}

// Credit increases the balance by amount (zero is a legal no-op credit)
// and returns the new balance.
func (s *Service) Credit(ctx context.Context, accountID string, amount decimal.Decimal, kind string, category model.Category, opts *TxnOpts) (decimal.Decimal, error) {
	if amount.IsNegative() {
		metrics.RejectionsTotal.WithLabelValues("credit", "invalid_amount").Inc()
		return decimal.Zero, fmt.Errorf("%w: credit amount %s", ErrInvalidAmount, amount)
	}

	lock := s.locks.For(accountID)
	lock.Lock()
	defer lock.Unlock()

	acct, _ := s.accounts.getOrCreate(accountID, s.starting)
	before := acct.Balance
	acct.Balance = acct.Balance.Add(amount)
	s.persist(ctx, acct)

	if opts == nil || !opts.SkipAudit {
		s.Record(ctx, &model.LedgerEntry{
			AccountID:     accountID,
			Timestamp:     s.now(),
			Kind:          kind,
			Amount:        amount,
			BalanceBefore: before,
			BalanceAfter:  acct.Balance,
			Category:      category,
			Metadata:      optMetadata(opts),
		})
	}
	metrics.LedgerOpsTotal.WithLabelValues("credit").Inc()
	return acct.Balance, nil
}

// Debit decreases the balance by amount. It fails with
// ErrInsufficientFunds when amount exceeds the balance, returning the
// unchanged balance; it never drives a balance negative.
func (s *Service) Debit(ctx context.Context, accountID string, amount decimal.Decimal, kind string, category model.Category, opts *TxnOpts) (decimal.Decimal, error) {
	if amount.IsNegative() {
		metrics.RejectionsTotal.WithLabelValues("debit", "invalid_amount").Inc()
		return decimal.Zero, fmt.Errorf("%w: debit amount %s", ErrInvalidAmount, amount)
	}

	lock := s.locks.For(accountID)
	lock.Lock()
	defer lock.Unlock()

	acct, _ := s.accounts.getOrCreate(accountID, s.starting)
	if amount.GreaterThan(acct.Balance) {
		metrics.RejectionsTotal.WithLabelValues("debit", "insufficient_funds").Inc()
		return acct.Balance, ErrInsufficientFunds
	}

	before := acct.Balance
	acct.Balance = acct.Balance.Sub(amount)
	s.persist(ctx, acct)

	if opts == nil || !opts.SkipAudit {
		s.Record(ctx, &model.LedgerEntry{
			AccountID:     accountID,
			Timestamp:     s.now(),
			Kind:          kind,
			Amount:        amount.Neg(),
			BalanceBefore: before,
			BalanceAfter:  acct.Balance,
			Category:      category,
			Metadata:      optMetadata(opts),
		})
	}
	metrics.LedgerOpsTotal.WithLabelValues("debit").Inc()
	return acct.Balance, nil
}

// Transfer atomically moves amount from one account to another. Both
// account locks are taken in lexicographic order so two transfers
// targeting each other's accounts cannot deadlock. On success two linked
// audit entries are written, one per side.
func (s *Service) Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		metrics.RejectionsTotal.WithLabelValues("transfer", "invalid_amount").Inc()
		return fmt.Errorf("%w: transfer amount %s", ErrInvalidAmount, amount)
	}
	if fromID == toID {
		metrics.RejectionsTotal.WithLabelValues("transfer", "same_account").Inc()
		return ErrSameAccount
	}

	unlock := s.locks.LockPair(fromID, toID)
	defer unlock()

	from, _ := s.accounts.getOrCreate(fromID, s.starting)
	to, _ := s.accounts.getOrCreate(toID, s.starting)

	if amount.GreaterThan(from.Balance) {
		metrics.RejectionsTotal.WithLabelValues("transfer", "insufficient_funds").Inc()
		return ErrInsufficientFunds
	}

	fromBefore, toBefore := from.Balance, to.Balance
	from.Balance = from.Balance.Sub(amount)
	to.Balance = to.Balance.Add(amount)
	s.persist(ctx, from, to)

	// Pre-generate ids so the two entries can reference each other.
	outID, inID := uuid.New().String(), uuid.New().String()
	ts := s.now()
	s.record(ctx, outID, &model.LedgerEntry{
		AccountID:     fromID,
		Timestamp:     ts,
		Kind:          "transfer-out",
		Amount:        amount.Neg(),
		BalanceBefore: fromBefore,
		BalanceAfter:  from.Balance,
		Category:      model.CategoryCurrency,
		Metadata:      map[string]string{"peer_account": toID, "peer_entry": inID},
	})
	s.record(ctx, inID, &model.LedgerEntry{
		AccountID:     toID,
		Timestamp:     ts,
		Kind:          "transfer-in",
		Amount:        amount,
		BalanceBefore: toBefore,
		BalanceAfter:  to.Balance,
		Category:      model.CategoryCurrency,
		Metadata:      map[string]string{"peer_account": fromID, "peer_entry": outID},
	})

	metrics.LedgerOpsTotal.WithLabelValues("transfer").Inc()
	return nil
}

// ClaimBonus credits a periodic bonus of the given kind unless one was
// already claimed on the current calendar day. The check is a plain date
// comparison, not a rolling 24 h window.
func (s *Service) ClaimBonus(ctx context.Context, accountID, kind string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		metrics.RejectionsTotal.WithLabelValues("claim", "invalid_amount").Inc()
		return decimal.Zero, fmt.Errorf("%w: bonus amount %s", ErrInvalidAmount, amount)
	}

	lock := s.locks.For(accountID)
	lock.Lock()
	defer lock.Unlock()

	acct, _ := s.accounts.getOrCreate(accountID, s.starting)
	now := s.now()
	if last, ok := acct.LastClaims[kind]; ok && sameDay(last, now) {
		metrics.RejectionsTotal.WithLabelValues("claim", "already_claimed").Inc()
		return acct.Balance, ErrAlreadyClaimed
	}

	before := acct.Balance
	acct.Balance = acct.Balance.Add(amount)
	acct.LastClaims[kind] = now
	s.persist(ctx, acct)

	s.Record(ctx, &model.LedgerEntry{
		AccountID:     accountID,
		Timestamp:     now,
		Kind:          "bonus-" + kind,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  acct.Balance,
		Category:      model.CategoryCurrency,
	})
	metrics.LedgerOpsTotal.WithLabelValues("claim").Inc()
	return acct.Balance, nil
}

// AccountCount returns the number of known accounts.
func (s *Service) AccountCount() int { return s.accounts.len() }

// Snapshot returns deep copies of every account, taking each account's
// lock in turn. Callers must not hold any account lock.
func (s *Service) Snapshot(ctx context.Context) map[string]*model.Account {
	ids := s.accounts.ids()
	out := make(map[string]*model.Account, len(ids))
	for _, id := range ids {
		lock := s.locks.For(id)
		lock.Lock()
		if acct := s.accounts.get(id); acct != nil {
			out[id] = acct.Clone()
		}
		lock.Unlock()
	}
	return out
}

// Record stamps and appends an audit entry. Append failures are logged and
// swallowed: the balance change has already been committed, so audit
// logging sits outside the mutation's atomicity boundary.
func (s *Service) Record(ctx context.Context, e *model.LedgerEntry) {
	s.record(ctx, uuid.New().String(), e)
}

func (s *Service) record(ctx context.Context, id string, e *model.LedgerEntry) {
	e.ID = id
	e.SchemaVersion = model.LedgerSchemaVersion
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if !e.Category.Valid() {
		e.Category = model.CategoryCurrency
	}

	if err := s.log.Append(ctx, e); err != nil {
		metrics.AuditAppendFailures.Inc()
		slog.Error("audit append failed", "account", e.AccountID, "kind", e.Kind, "err", err)
	}
	if s.hub != nil {
		s.hub.BroadcastEntry(e)
	}
}

// AuditByAccount exposes the read side of the audit log.
func (s *Service) AuditByAccount(ctx context.Context, accountID string, f audit.Filter) ([]model.LedgerEntry, error) {
	return s.log.ByAccount(ctx, accountID, f)
}

// AuditByTimeRange exposes the read side of the audit log.
func (s *Service) AuditByTimeRange(ctx context.Context, from, to time.Time, f audit.Filter) ([]model.LedgerEntry, error) {
	return s.log.ByTimeRange(ctx, from, to, f)
}

// persist hands clones of the mutated accounts to the snapshot writer.
// Failures are logged and the process continues with in-memory state.
func (s *Service) persist(ctx context.Context, changed ...*model.Account) {
	if err := s.snap.update(ctx, changed...); err != nil {
		metrics.SnapshotSaveFailures.Inc()
		slog.Warn("snapshot save failed, continuing in memory", "err", err)
	}
	metrics.Accounts.Set(float64(s.accounts.len()))
}

func optMetadata(opts *TxnOpts) map[string]string {
	if opts == nil {
		return nil
	}
	return opts.Metadata
}

// sameDay reports whether two instants fall on the same UTC calendar day.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
