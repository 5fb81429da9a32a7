// Package position implements leveraged buying and selling of tradable
// instruments against an account's portfolio, plus the advisory
// liquidation pass that force-closes ruinous positions.
package position

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/guildpay/ledger-engine/internal/ledger"
	"github.com/guildpay/ledger-engine/internal/metrics"
	"github.com/guildpay/ledger-engine/internal/model"
	"github.com/guildpay/ledger-engine/internal/pricefeed"
	"github.com/guildpay/ledger-engine/internal/symbol"
)

var (
	// ErrInvalidShares is returned for non-positive share counts.
	ErrInvalidShares = errors.New("position: shares must be positive")

	// ErrInvalidPrice is returned for non-positive prices.
	ErrInvalidPrice = errors.New("position: price must be positive")

	// ErrInvalidLeverage is returned for leverage below 1.
	ErrInvalidLeverage = errors.New("position: leverage must be at least 1")

	// ErrNotOwned is returned when selling an instrument the account does
	// not hold.
	ErrNotOwned = errors.New("position: instrument not held")

	// ErrInsufficientShares is returned when selling more shares than held.
	ErrInsufficientShares = errors.New("position: insufficient shares")

	// ErrLeverageMismatch is returned when buying an instrument already
	// held at a different leverage. Leverage is never mixed or averaged
	// within one position; balance and the existing position are left
	// unchanged.
	ErrLeverageMismatch = errors.New("position: leverage differs from existing position")
)

// Engine executes leveraged trades on top of the ledger service.
type Engine struct {
	ledger *ledger.Service
	prices pricefeed.Source
}

// NewEngine creates a position engine using the given price source.
func NewEngine(svc *ledger.Service, prices pricefeed.Source) *Engine {
	return &Engine{ledger: svc, prices: prices}
}

// BuyResult reports a completed purchase.
type BuyResult struct {
	Symbol   string          `json:"symbol"`
	Shares   decimal.Decimal `json:"shares"`
	Price    decimal.Decimal `json:"price"`
	Leverage decimal.Decimal `json:"leverage"`
	Margin   decimal.Decimal `json:"margin"` // cash committed: shares × price / leverage
	Balance  decimal.Decimal `json:"balance"`
}

// Buy opens or extends a leveraged position. The account commits
// shares × price / leverage of cash as margin. Extending a position at the
// same leverage recomputes the cost basis as the share-count-weighted
// average; a different leverage is rejected outright.
func (e *Engine) Buy(ctx context.Context, accountID, rawSymbol string, shares, price, leverage decimal.Decimal) (*BuyResult, error) {
	sym, err := symbol.Normalize(rawSymbol)
	if err != nil {
		return nil, err
	}
	if !shares.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidShares, shares)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}
	if leverage.LessThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidLeverage, leverage)
	}

	margin := shares.Mul(price).Div(leverage)
	var before, after decimal.Decimal

	err = e.ledger.Update(ctx, accountID, func(acct *model.Account) error {
		existing := acct.Portfolio[sym]
		if margin.GreaterThan(acct.Balance) {
			metrics.RejectionsTotal.WithLabelValues("buy", "insufficient_funds").Inc()
			return fmt.Errorf("%w: need %s, have %s",
				ledger.ErrInsufficientFunds, margin, acct.Balance)
		}
		if existing != nil && !existing.Leverage.Equal(leverage) {
			metrics.RejectionsTotal.WithLabelValues("buy", "leverage_mismatch").Inc()
			return fmt.Errorf("%w: held at %s, requested %s",
				ErrLeverageMismatch, existing.Leverage, leverage)
		}

		before = acct.Balance
		acct.Balance = acct.Balance.Sub(margin)
		after = acct.Balance

		if existing != nil {
			// Weighted-average cost basis across old and new shares.
			total := existing.Shares.Add(shares)
			existing.CostBasis = existing.CostBasis.Mul(existing.Shares).
				Add(price.Mul(shares)).
				Div(total)
			existing.Shares = total
		} else {
			acct.Portfolio[sym] = &model.Position{
				Shares:    shares,
				CostBasis: price,
				Leverage:  leverage,
				OpenedAt:  e.ledger.Now(),
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// A purchase is not a profit/loss event: one entry, zero realized P&L.
	e.ledger.Record(ctx, &model.LedgerEntry{
		AccountID:     accountID,
		Kind:          "stock-buy",
		Amount:        margin.Neg(),
		BalanceBefore: before,
		BalanceAfter:  after,
		Category:      model.CategoryInvestment,
		Metadata: map[string]string{
			"symbol":   sym,
			"shares":   shares.String(),
			"price":    price.String(),
			"leverage": leverage.String(),
		},
	})
	metrics.LedgerOpsTotal.WithLabelValues("buy").Inc()

	return &BuyResult{
		Symbol:   sym,
		Shares:   shares,
		Price:    price,
		Leverage: leverage,
		Margin:   margin,
		Balance:  after,
	}, nil
}

// SellResult reports a completed sale.
type SellResult struct {
	Symbol          string          `json:"symbol"`
	Shares          decimal.Decimal `json:"shares"`
	Price           decimal.Decimal `json:"price"`
	Proceeds        decimal.Decimal `json:"proceeds"`
	RealizedPnL     decimal.Decimal `json:"realized_pnl"`
	SharesRemaining decimal.Decimal `json:"shares_remaining"`
	Balance         decimal.Decimal `json:"balance"`
}

// Sell closes part or all of a position at the given current price.
// Proceeds are the original per-share margin plus the leveraged gain or
// loss; a loss beyond the margin makes the proceeds negative and is
// applied as-is; a realized loss is accepted, not rejected. Conservation
// always holds: balanceAfter = balanceBefore + proceeds.
func (e *Engine) Sell(ctx context.Context, accountID, rawSymbol string, shares, price decimal.Decimal) (*SellResult, error) {
	sym, err := symbol.Normalize(rawSymbol)
	if err != nil {
		return nil, err
	}
	if !shares.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidShares, shares)
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPrice, price)
	}

	var (
		before, after decimal.Decimal
		proceeds      decimal.Decimal
		realized      decimal.Decimal
		remaining     decimal.Decimal
	)

	err = e.ledger.Update(ctx, accountID, func(acct *model.Account) error {
		pos := acct.Portfolio[sym]
		if pos == nil {
			metrics.RejectionsTotal.WithLabelValues("sell", "not_owned").Inc()
			return fmt.Errorf("%w: %s", ErrNotOwned, sym)
		}
		if shares.GreaterThan(pos.Shares) {
			metrics.RejectionsTotal.WithLabelValues("sell", "insufficient_shares").Inc()
			return fmt.Errorf("%w: have %s, selling %s",
				ErrInsufficientShares, pos.Shares, shares)
		}

		realized = price.Sub(pos.CostBasis).Mul(shares)
		proceeds = pos.CostBasis.Div(pos.Leverage).Mul(shares).Add(realized)

		before = acct.Balance
		acct.Balance = acct.Balance.Add(proceeds)
		after = acct.Balance

		pos.Shares = pos.Shares.Sub(shares)
		if pos.Shares.IsZero() {
			delete(acct.Portfolio, sym)
		}
		remaining = pos.Shares
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.ledger.Record(ctx, &model.LedgerEntry{
		AccountID:     accountID,
		Kind:          "stock-sell",
		Amount:        proceeds,
		BalanceBefore: before,
		BalanceAfter:  after,
		RealizedPnL:   realized,
		Category:      model.CategoryInvestment,
		Metadata: map[string]string{
			"symbol": sym,
			"shares": shares.String(),
			"price":  price.String(),
		},
	})
	metrics.LedgerOpsTotal.WithLabelValues("sell").Inc()

	return &SellResult{
		Symbol:          sym,
		Shares:          shares,
		Price:           price,
		Proceeds:        proceeds,
		RealizedPnL:     realized,
		SharesRemaining: remaining,
		Balance:         after,
	}, nil
}

// Portfolio returns a copy of the account's positions.
func (e *Engine) Portfolio(ctx context.Context, accountID string) map[string]*model.Position {
	return e.ledger.Account(ctx, accountID).Portfolio
}
