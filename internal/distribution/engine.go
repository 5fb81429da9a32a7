// Package distribution pays periodic per-share cash distributions to
// eligible holders of an instrument as of a cutoff date. Processing is
// idempotent on (symbol, cutoff, amount-per-share): reprocessing the same
// event pays nobody twice.
package distribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/guildpay/ledger-engine/internal/ledger"
	"github.com/guildpay/ledger-engine/internal/metrics"
	"github.com/guildpay/ledger-engine/internal/model"
	"github.com/guildpay/ledger-engine/internal/symbol"
)

// ErrInvalidAmount is returned for non-positive per-share amounts.
var ErrInvalidAmount = errors.New("distribution: amount per share must be positive")

// Engine computes and pays distribution events.
type Engine struct {
	ledger *ledger.Service
	events EventStore
}

// NewEngine creates a distribution engine.
func NewEngine(svc *ledger.Service, events EventStore) *Engine {
	return &Engine{ledger: svc, events: events}
}

// Process pays shares × amountPerShare to every account holding the
// instrument with a position opened on or before the cutoff date.
//
// Holders are credited independently: one failed credit is logged and the
// rest still get paid. The event is recorded, and the idempotency key
// marked processed, even on partial success, so already-paid holders are
// never paid again; unpaid holders from a partial run are not retried
// automatically.
func (e *Engine) Process(ctx context.Context, rawSymbol string, amountPerShare decimal.Decimal, cutoff time.Time) (*model.DistributionEvent, error) {
	sym, err := symbol.Normalize(rawSymbol)
	if err != nil {
		return nil, err
	}
	if !amountPerShare.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, amountPerShare)
	}

	key := model.DistributionKey(sym, cutoff, amountPerShare)
	if existing, ok, err := e.events.Get(ctx, key); err != nil {
		return nil, fmt.Errorf("check distribution key: %w", err)
	} else if ok {
		slog.Info("distribution already processed", "key", key)
		return existing, nil
	}

	// Eligibility is decided from one consistent snapshot scan.
	accounts := e.ledger.Snapshot(ctx)
	holders := make(map[string]model.DistributionPayout)
	for id, acct := range accounts {
		pos := acct.Portfolio[sym]
		if pos == nil || pos.OpenedAt.After(cutoff) {
			continue
		}
		holders[id] = model.DistributionPayout{
			Shares: pos.Shares,
			Payout: pos.Shares.Mul(amountPerShare),
		}
	}

	ids := make([]string, 0, len(holders))
	for id := range holders {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	event := &model.DistributionEvent{
		ID:             uuid.New().String(),
		Symbol:         sym,
		CutoffDate:     cutoff,
		AmountPerShare: amountPerShare,
		Holders:        holders,
		ProcessedAt:    e.ledger.Now(),
	}

	for _, id := range ids {
		payout := holders[id]
		_, err := e.ledger.Credit(ctx, id, payout.Payout, "distribution", model.CategoryInvestment, &ledger.TxnOpts{
			Metadata: map[string]string{
				"symbol":           sym,
				"amount_per_share": amountPerShare.String(),
				"cutoff":           cutoff.UTC().Format("2006-01-02"),
				"event_id":         event.ID,
			},
		})
		if err != nil {
			// Best-effort per holder: log and keep going.
			slog.Error("distribution credit failed",
				"account", id, "symbol", sym, "payout", payout.Payout.String(), "err", err)
			continue
		}
		event.TotalPaid = event.TotalPaid.Add(payout.Payout)
		event.HoldersPaid++
		metrics.DistributionPayoutsTotal.Inc()
	}

	if err := e.events.Record(ctx, key, event); err != nil {
		// The credits have been applied; losing the processed mark risks
		// double payment on a retry, so make the failure loud.
		slog.Error("failed to record distribution event", "key", key, "err", err)
	}

	slog.Info("distribution processed",
		"symbol", sym,
		"amount_per_share", amountPerShare.String(),
		"holders", len(holders),
		"paid", event.HoldersPaid,
		"total", event.TotalPaid.String(),
	)
	metrics.LedgerOpsTotal.WithLabelValues("distribution").Inc()
	return event, nil
}

// List returns all processed distribution events, newest first.
func (e *Engine) List(ctx context.Context) ([]model.DistributionEvent, error) {
	return e.events.List(ctx)
}
