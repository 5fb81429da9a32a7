package position

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/guildpay/ledger-engine/internal/metrics"
	"github.com/guildpay/ledger-engine/internal/model"
)

// liquidationProceeds is the would-be sale value of the whole position:
// the committed margin plus the leveraged gain or loss at the current
// price. At or below zero the margin is wiped out.
func liquidationProceeds(pos *model.Position, price decimal.Decimal) (proceeds, realized decimal.Decimal) {
	realized = price.Sub(pos.CostBasis).Mul(pos.Shares)
	proceeds = pos.CostBasis.Div(pos.Leverage).Mul(pos.Shares).Add(realized)
	return proceeds, realized
}

// CheckAndLiquidate force-closes every position whose sale proceeds at the
// supplied prices would be zero or negative: the position is removed at
// zero credit, a margin call wiping out a fully leveraged loss. Positions
// without a supplied price are skipped, never liquidated. Returns the
// liquidated symbols.
//
// The pass is advisory: it runs before computations that need an accurate
// net worth, not on a timer.
func (e *Engine) CheckAndLiquidate(ctx context.Context, accountID string, prices map[string]decimal.Decimal) ([]string, error) {
	var (
		liquidated []string
		entries    []*model.LedgerEntry
	)

	err := e.ledger.Update(ctx, accountID, func(acct *model.Account) error {
		liquidated = liquidated[:0]
		entries = entries[:0]

		// Deterministic order keeps audit output stable.
		symbols := make([]string, 0, len(acct.Portfolio))
		for sym := range acct.Portfolio {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)

		for _, sym := range symbols {
			price, ok := prices[sym]
			if !ok {
				continue
			}
			pos := acct.Portfolio[sym]
			proceeds, realized := liquidationProceeds(pos, price)
			if proceeds.IsPositive() {
				continue
			}

			delete(acct.Portfolio, sym)
			liquidated = append(liquidated, sym)
			entries = append(entries, &model.LedgerEntry{
				AccountID:     accountID,
				Kind:          "liquidation",
				Amount:        decimal.Zero, // forced close pays nothing out
				BalanceBefore: acct.Balance,
				BalanceAfter:  acct.Balance,
				RealizedPnL:   realized,
				Category:      model.CategoryInvestment,
				Metadata: map[string]string{
					"symbol": sym,
					"shares": pos.Shares.String(),
					"price":  price.String(),
				},
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		e.ledger.Record(ctx, entry)
		metrics.LiquidationsTotal.Inc()
		slog.Info("position liquidated",
			"account", accountID,
			"symbol", entry.Metadata["symbol"],
			"realized_pnl", entry.RealizedPnL.String(),
		)
	}
	return liquidated, nil
}

// SymbolValue is the per-instrument detail in a portfolio valuation.
type SymbolValue struct {
	Shares        decimal.Decimal `json:"shares"`
	CostBasis     decimal.Decimal `json:"cost_basis"`
	Leverage      decimal.Decimal `json:"leverage"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	Value         decimal.Decimal `json:"value"` // sale proceeds at the current price
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Valuation is a full portfolio report.
type Valuation struct {
	AccountID   string                 `json:"account_id"`
	CashBalance decimal.Decimal        `json:"cash_balance"`
	TotalValue  decimal.Decimal        `json:"total_value"` // cash + position values
	TotalPnL    decimal.Decimal        `json:"total_pnl"`
	Symbols     map[string]SymbolValue `json:"symbols"`
	Liquidated  []string               `json:"liquidated,omitempty"` // closed by this valuation's pass
	Unpriced    []string               `json:"unpriced,omitempty"`   // held but no current price
}

// PortfolioValue prices the account's holdings via the engine's price
// source and reports total value and unrealized P&L. The liquidation pass
// runs first so the report never counts positions that are already
// wiped out.
func (e *Engine) PortfolioValue(ctx context.Context, accountID string) (*Valuation, error) {
	held := e.Portfolio(ctx, accountID)
	symbols := make([]string, 0, len(held))
	for sym := range held {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	prices, err := e.prices.Prices(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}

	liquidated, err := e.CheckAndLiquidate(ctx, accountID, prices)
	if err != nil {
		return nil, err
	}

	acct := e.ledger.Account(ctx, accountID)
	report := &Valuation{
		AccountID:   accountID,
		CashBalance: acct.Balance,
		TotalValue:  acct.Balance,
		Symbols:     make(map[string]SymbolValue, len(acct.Portfolio)),
		Liquidated:  liquidated,
	}

	for sym, pos := range acct.Portfolio {
		price, ok := prices[sym]
		if !ok {
			report.Unpriced = append(report.Unpriced, sym)
			continue
		}
		value, unrealized := liquidationProceeds(pos, price)
		report.Symbols[sym] = SymbolValue{
			Shares:        pos.Shares,
			CostBasis:     pos.CostBasis,
			Leverage:      pos.Leverage,
			CurrentPrice:  price,
			Value:         value,
			UnrealizedPnL: unrealized,
		}
		report.TotalValue = report.TotalValue.Add(value)
		report.TotalPnL = report.TotalPnL.Add(unrealized)
	}
	sort.Strings(report.Unpriced)
	return report, nil
}
