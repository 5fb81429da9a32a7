package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/guildpay/ledger-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL. Balances are stored as
// NUMERIC for exact decimal precision; claims and portfolio as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the accounts table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS accounts (
			id          TEXT PRIMARY KEY,
			balance     NUMERIC NOT NULL,
			last_claims JSONB NOT NULL DEFAULT '{}',
			portfolio   JSONB NOT NULL DEFAULT '{}',
			updated_at  TIMESTAMPTZ NOT NULL
		)`)
	return err
}

func (s *PostgresStore) Load(ctx context.Context) (map[string]*model.Account, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, balance::TEXT, last_claims, portfolio FROM accounts`)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}
	defer rows.Close()

	accounts := make(map[string]*model.Account)
	for rows.Next() {
		var (
			id            string
			balanceS      string
			claimsJSON    []byte
			portfolioJSON []byte
		)
		if err := rows.Scan(&id, &balanceS, &claimsJSON, &portfolioJSON); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}

		acct := model.NewAccount(id, decimal.Zero)
		acct.Balance, _ = decimal.NewFromString(balanceS)
		if len(claimsJSON) > 0 {
			if err := json.Unmarshal(claimsJSON, &acct.LastClaims); err != nil {
				return nil, fmt.Errorf("decode claims for %s: %w", id, err)
			}
		}
		if len(portfolioJSON) > 0 {
			if err := json.Unmarshal(portfolioJSON, &acct.Portfolio); err != nil {
				return nil, fmt.Errorf("decode portfolio for %s: %w", id, err)
			}
		}
		if acct.LastClaims == nil {
			acct.LastClaims = make(map[string]time.Time)
		}
		if acct.Portfolio == nil {
			acct.Portfolio = make(map[string]*model.Position)
		}
		accounts[id] = acct
	}
	return accounts, rows.Err()
}

// Save upserts every account in one transaction, so a snapshot is either
// fully applied or not at all.
func (s *PostgresStore) Save(ctx context.Context, accounts map[string]*model.Account) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for id, acct := range accounts {
		claimsJSON, err := json.Marshal(acct.LastClaims)
		if err != nil {
			return fmt.Errorf("encode claims for %s: %w", id, err)
		}
		portfolioJSON, err := json.Marshal(acct.Portfolio)
		if err != nil {
			return fmt.Errorf("encode portfolio for %s: %w", id, err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO accounts (id, balance, last_claims, portfolio, updated_at)
			 VALUES ($1, $2::NUMERIC, $3, $4, $5)
			 ON CONFLICT (id) DO UPDATE SET
				balance = EXCLUDED.balance,
				last_claims = EXCLUDED.last_claims,
				portfolio = EXCLUDED.portfolio,
				updated_at = EXCLUDED.updated_at`,
			id, acct.Balance.String(), claimsJSON, portfolioJSON, now)
		if err != nil {
			return fmt.Errorf("upsert account %s: %w", id, err)
		}
	}

	return tx.Commit(ctx)
}
