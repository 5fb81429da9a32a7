package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/guildpay/ledger-engine/internal/model"
)

// PostgresLog implements Log on a ledger_entries table. Monetary columns
// are NUMERIC for exact decimal precision.
type PostgresLog struct {
	pool *pgxpool.Pool
}

// NewPostgresLog creates a PostgreSQL-backed audit log.
func NewPostgresLog(pool *pgxpool.Pool) *PostgresLog {
	return &PostgresLog{pool: pool}
}

// EnsureSchema creates the ledger_entries table if it does not exist.
func (l *PostgresLog) EnsureSchema(ctx context.Context) error {
	_, err := l.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id             TEXT PRIMARY KEY,
			account_id     TEXT NOT NULL,
			ts             TIMESTAMPTZ NOT NULL,
			kind           TEXT NOT NULL,
			amount         NUMERIC NOT NULL,
			balance_before NUMERIC NOT NULL,
			balance_after  NUMERIC NOT NULL,
			realized_pnl   NUMERIC NOT NULL DEFAULT 0,
			category       TEXT NOT NULL DEFAULT 'currency',
			metadata       JSONB,
			schema_version INT NOT NULL DEFAULT 1
		);
		CREATE INDEX IF NOT EXISTS ledger_entries_account_ts
			ON ledger_entries (account_id, ts)`)
	return err
}

func (l *PostgresLog) Append(ctx context.Context, e *model.LedgerEntry) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encode audit metadata: %w", err)
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO ledger_entries
			(id, account_id, ts, kind, amount, balance_before, balance_after,
			 realized_pnl, category, metadata, schema_version)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC,
			 $8::NUMERIC, $9, $10, $11)`,
		e.ID, e.AccountID, e.Timestamp, e.Kind,
		e.Amount.String(), e.BalanceBefore.String(), e.BalanceAfter.String(),
		e.RealizedPnL.String(), string(e.Category), metadata, e.SchemaVersion)
	return err
}

func (l *PostgresLog) ByAccount(ctx context.Context, accountID string, f Filter) ([]model.LedgerEntry, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, account_id, ts, kind,
		        amount::TEXT, balance_before::TEXT, balance_after::TEXT,
		        realized_pnl::TEXT, category, metadata, schema_version
		 FROM ledger_entries WHERE account_id = $1 ORDER BY ts`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows, f)
}

func (l *PostgresLog) ByTimeRange(ctx context.Context, from, to time.Time, f Filter) ([]model.LedgerEntry, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT id, account_id, ts, kind,
		        amount::TEXT, balance_before::TEXT, balance_after::TEXT,
		        realized_pnl::TEXT, category, metadata, schema_version
		 FROM ledger_entries WHERE ts >= $1 AND ts < $2 ORDER BY ts`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows, f)
}

func scanEntries(rows pgx.Rows, f Filter) ([]model.LedgerEntry, error) {
	var entries []model.LedgerEntry
	for rows.Next() {
		var (
			e                            model.LedgerEntry
			amountS, beforeS, afterS     string
			pnlS, category               string
			metadata                     []byte
		)
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Timestamp, &e.Kind,
			&amountS, &beforeS, &afterS, &pnlS, &category, &metadata,
			&e.SchemaVersion); err != nil {
			return nil, err
		}

		e.Amount, _ = decimal.NewFromString(amountS)
		e.BalanceBefore, _ = decimal.NewFromString(beforeS)
		e.BalanceAfter, _ = decimal.NewFromString(afterS)
		e.RealizedPnL, _ = decimal.NewFromString(pnlS)
		e.Category = model.Category(category)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		e.Normalize()

		if f.matches(&e) {
			entries = append(entries, e)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return applyLimit(entries, f.Limit), nil
}
