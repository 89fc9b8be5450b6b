package postgres

import (
	"context"
	"fmt"

	"metacoin-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// AccountRepo stores per-account balances.
type AccountRepo struct {
	pool Pool
}

// NewAccountRepo creates a new AccountRepo.
func NewAccountRepo(pool Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

// Upsert writes an account's balance within a transaction.
func (r *AccountRepo) Upsert(ctx context.Context, tx pgx.Tx, ab domain.AccountBalance) error {
	query := `INSERT INTO account_balances (account, balance, updated_at)
		VALUES ($1, $2::numeric, NOW())
		ON CONFLICT (account) DO UPDATE SET balance = EXCLUDED.balance, updated_at = NOW()`

	_, err := tx.Exec(ctx, query, ab.Account.BytesBE(), numericArg(uint64(ab.Balance)))
	if err != nil {
		return fmt.Errorf("upsert balance: %w", err)
	}
	return nil
}

// ListNonZero returns every positive balance ordered by account.
func (r *AccountRepo) ListNonZero(ctx context.Context) ([]domain.AccountBalance, error) {
	query := `SELECT account, balance::text FROM account_balances WHERE balance > 0 ORDER BY account`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	var out []domain.AccountBalance
	for rows.Next() {
		var raw []byte
		var balance string
		if err := rows.Scan(&raw, &balance); err != nil {
			return nil, fmt.Errorf("scan balance row: %w", err)
		}
		ab, err := decodeBalance(raw, balance)
		if err != nil {
			return nil, err
		}
		out = append(out, ab)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance rows: %w", err)
	}
	return out, nil
}

func decodeBalance(raw []byte, balance string) (domain.AccountBalance, error) {
	acc, err := decodeAccount(raw)
	if err != nil {
		return domain.AccountBalance{}, err
	}
	v, err := parseNumeric(balance)
	if err != nil {
		return domain.AccountBalance{}, fmt.Errorf("parse balance of %s: %w", domain.FormatAccountID(acc), err)
	}
	return domain.AccountBalance{Account: acc, Balance: domain.Balance(v)}, nil
}

func decodeAccount(raw []byte) (domain.AccountID, error) {
	acc, err := util.Uint160DecodeBytesBE(raw)
	if err != nil {
		return domain.AccountID{}, fmt.Errorf("decode account: %w", err)
	}
	return acc, nil
}
