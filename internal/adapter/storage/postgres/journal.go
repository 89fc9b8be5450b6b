package postgres

import (
	"context"
	"fmt"

	"metacoin-ledger/internal/core/domain"
	"metacoin-ledger/internal/core/ports"
)

// Journal implements ports.Journal on PostgreSQL. Every write runs in one
// database transaction.
type Journal struct {
	transactor *Transactor
	meta       *MetaRepo
	accounts   *AccountRepo
	events     *EventRepo
}

// NewJournal creates a Journal over pool.
func NewJournal(pool Pool) *Journal {
	return &Journal{
		transactor: NewTransactor(pool),
		meta:       NewMetaRepo(pool),
		accounts:   NewAccountRepo(pool),
		events:     NewEventRepo(pool),
	}
}

// Load reads the stored ledger state, or nil if it was never initialized.
func (j *Journal) Load(ctx context.Context) (*domain.Snapshot, error) {
	meta, err := j.meta.Get(ctx)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, nil
	}

	balances, err := j.accounts.ListNonZero(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.Snapshot{
		TotalSupply: meta.TotalSupply,
		Seq:         meta.Seq,
		Balances:    balances,
	}, nil
}

// Init stores the genesis state.
func (j *Journal) Init(ctx context.Context, snap *domain.Snapshot) error {
	dbTx, err := j.transactor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := j.meta.Init(ctx, dbTx, LedgerMeta{TotalSupply: snap.TotalSupply, Seq: snap.Seq}); err != nil {
		return err
	}
	for _, ab := range snap.Balances {
		if err := j.accounts.Upsert(ctx, dbTx, ab); err != nil {
			return err
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Record stores a posting's balances, its transfer event and the new sequence.
func (j *Journal) Record(ctx context.Context, posting *domain.Posting, receipt *domain.Receipt) error {
	dbTx, err := j.transactor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := j.meta.Advance(ctx, dbTx, posting.Seq-1, posting.Seq); err != nil {
		return err
	}
	for _, ab := range posting.Balances {
		if err := j.accounts.Upsert(ctx, dbTx, ab); err != nil {
			return err
		}
	}
	if err := j.events.Insert(ctx, dbTx, domain.NewTransferRecord(receipt)); err != nil {
		return err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ListTransfers serves transfer history from the events table.
func (j *Journal) ListTransfers(ctx context.Context, params ports.TransferListParams) ([]domain.TransferRecord, int64, error) {
	return j.events.ListTransfers(ctx, params)
}
