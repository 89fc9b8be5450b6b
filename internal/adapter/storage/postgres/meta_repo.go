package postgres

import (
	"context"
	"errors"
	"fmt"

	"metacoin-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// ErrSeqConflict means another writer advanced the ledger sequence first.
var ErrSeqConflict = errors.New("ledger sequence conflict")

// LedgerMeta is the single ledger_meta row.
type LedgerMeta struct {
	TotalSupply domain.Balance
	Seq         uint64
}

// MetaRepo stores the ledger's supply and sequence number.
type MetaRepo struct {
	pool Pool
}

// NewMetaRepo creates a new MetaRepo.
func NewMetaRepo(pool Pool) *MetaRepo {
	return &MetaRepo{pool: pool}
}

// Get returns the meta row, or nil if the ledger was never initialized.
func (r *MetaRepo) Get(ctx context.Context) (*LedgerMeta, error) {
	query := `SELECT total_supply::text, seq FROM ledger_meta WHERE id = 1`

	var supply string
	var seq int64
	err := r.pool.QueryRow(ctx, query).Scan(&supply, &seq)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get ledger meta: %w", err)
	}

	total, err := parseNumeric(supply)
	if err != nil {
		return nil, fmt.Errorf("parse total supply: %w", err)
	}
	return &LedgerMeta{TotalSupply: domain.Balance(total), Seq: uint64(seq)}, nil
}

// Init inserts the meta row within a transaction.
func (r *MetaRepo) Init(ctx context.Context, tx pgx.Tx, meta LedgerMeta) error {
	query := `INSERT INTO ledger_meta (id, total_supply, seq) VALUES (1, $1::numeric, $2)`

	_, err := tx.Exec(ctx, query, numericArg(uint64(meta.TotalSupply)), int64(meta.Seq))
	if err != nil {
		return fmt.Errorf("insert ledger meta: %w", err)
	}
	return nil
}

// Advance moves the sequence from prev to next within a transaction. It fails
// with ErrSeqConflict if the stored sequence is not prev.
func (r *MetaRepo) Advance(ctx context.Context, tx pgx.Tx, prev, next uint64) error {
	query := `UPDATE ledger_meta SET seq = $1, updated_at = NOW() WHERE id = 1 AND seq = $2`

	tag, err := tx.Exec(ctx, query, int64(next), int64(prev))
	if err != nil {
		return fmt.Errorf("advance ledger seq: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected seq %d", ErrSeqConflict, prev)
	}
	return nil
}
