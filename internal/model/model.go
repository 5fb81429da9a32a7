// Package model defines the core domain types shared across the ledger engine.
// All monetary values use shopspring/decimal, never float64 for money.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Category classifies a balance-affecting operation. The set is closed;
// anything else found in stored data is normalized to CategoryCurrency.
type Category string

const (
	CategoryCurrency   Category = "currency"
	CategoryWager      Category = "wager"
	CategoryInvestment Category = "investment"
	CategoryFee        Category = "fee"
)

// Valid reports whether c is one of the closed category set.
func (c Category) Valid() bool {
	switch c {
	case CategoryCurrency, CategoryWager, CategoryInvestment, CategoryFee:
		return true
	}
	return false
}

// LedgerSchemaVersion is written into every new audit entry. Readers must
// accept entries written under older versions: absent fields decode to
// neutral values (zero realized P&L, currency category).
const LedgerSchemaVersion = 2

// Position is a leveraged holding in one instrument for one account.
// All shares within a position share the same leverage; adding shares at a
// different leverage is rejected upstream, never averaged.
type Position struct {
	Shares    decimal.Decimal `json:"shares"`
	CostBasis decimal.Decimal `json:"cost_basis"` // per-share weighted average price paid
	Leverage  decimal.Decimal `json:"leverage"`   // fixed for the life of the position
	OpenedAt  time.Time       `json:"opened_at"`
}

// Clone returns a copy of the position.
func (p *Position) Clone() *Position {
	cp := *p
	return &cp
}

// Account is the unit of ownership for balance and portfolio. Accounts are
// created lazily on first access and never deleted.
type Account struct {
	ID         string               `json:"id"`
	Balance    decimal.Decimal      `json:"balance"`
	LastClaims map[string]time.Time `json:"last_claims,omitempty"` // bonus kind → last claim
	Portfolio  map[string]*Position `json:"portfolio,omitempty"`   // symbol → position
}

// NewAccount creates an account with the given starting balance.
func NewAccount(id string, startingBalance decimal.Decimal) *Account {
	return &Account{
		ID:         id,
		Balance:    startingBalance,
		LastClaims: make(map[string]time.Time),
		Portfolio:  make(map[string]*Position),
	}
}

// Clone returns a deep copy, so callers can hand out account state without
// exposing the live maps.
func (a *Account) Clone() *Account {
	cp := &Account{
		ID:         a.ID,
		Balance:    a.Balance,
		LastClaims: make(map[string]time.Time, len(a.LastClaims)),
		Portfolio:  make(map[string]*Position, len(a.Portfolio)),
	}
	for kind, ts := range a.LastClaims {
		cp.LastClaims[kind] = ts
	}
	for symbol, pos := range a.Portfolio {
		cp.Portfolio[symbol] = pos.Clone()
	}
	return cp
}

// LedgerEntry is an immutable record of one balance-affecting operation.
// Once created, these are never modified or deleted.
type LedgerEntry struct {
	SchemaVersion int               `json:"schema_version"`
	ID            string            `json:"id"`
	AccountID     string            `json:"account_id"`
	Timestamp     time.Time         `json:"timestamp"`
	Kind          string            `json:"kind"`   // free-form label, e.g. "credit", "stock-buy"
	Amount        decimal.Decimal   `json:"amount"` // signed: + credit, − debit
	BalanceBefore decimal.Decimal   `json:"balance_before"`
	BalanceAfter  decimal.Decimal   `json:"balance_after"`
	RealizedPnL   decimal.Decimal   `json:"realized_pnl"` // zero unless the op crystallizes gain/loss
	Category      Category          `json:"category"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Normalize fills in neutral defaults for fields an older schema did not
// carry. Decoders call this on every entry read back from storage.
func (e *LedgerEntry) Normalize() {
	if e.SchemaVersion == 0 {
		e.SchemaVersion = 1
	}
	if !e.Category.Valid() {
		e.Category = CategoryCurrency
	}
}

// DistributionPayout is one holder's share of a distribution event.
type DistributionPayout struct {
	Shares decimal.Decimal `json:"shares"`
	Payout decimal.Decimal `json:"payout"`
}

// DistributionEvent is one processed per-instrument cash distribution.
type DistributionEvent struct {
	ID             string                        `json:"id"`
	Symbol         string                        `json:"symbol"`
	CutoffDate     time.Time                     `json:"cutoff_date"`
	AmountPerShare decimal.Decimal               `json:"amount_per_share"`
	Holders        map[string]DistributionPayout `json:"holders"` // accountID → shares, payout
	TotalPaid      decimal.Decimal               `json:"total_paid"`
	HoldersPaid    int                           `json:"holders_paid"`
	ProcessedAt    time.Time                     `json:"processed_at"`
}

// DistributionKey is the idempotency key for a distribution event.
// Reprocessing the same (symbol, cutoff, amount) triple is a no-op.
func DistributionKey(symbol string, cutoff time.Time, amountPerShare decimal.Decimal) string {
	return fmt.Sprintf("%s|%s|%s", symbol, cutoff.UTC().Format("2006-01-02"), amountPerShare.String())
}
