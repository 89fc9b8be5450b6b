package postgres

import (
	"context"
	"fmt"
	"time"

	"metacoin-ledger/internal/core/domain"
	"metacoin-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

// EventRepo stores emitted Transfer events. It implements ports.TransferStore.
type EventRepo struct {
	pool Pool
}

// NewEventRepo creates a new EventRepo.
func NewEventRepo(pool Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Insert stores a transfer record within a transaction.
func (r *EventRepo) Insert(ctx context.Context, tx pgx.Tx, rec domain.TransferRecord) error {
	query := `INSERT INTO transfer_events (seq, tx_hash, from_account, to_account, value, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)`

	_, err := tx.Exec(ctx, query,
		int64(rec.Seq), rec.TxHash, rec.From.BytesBE(), rec.To.BytesBE(),
		numericArg(uint64(rec.Value)), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transfer event: %w", err)
	}
	return nil
}

// ListTransfers returns transfers touching params.Account, newest first.
func (r *EventRepo) ListTransfers(ctx context.Context, params ports.TransferListParams) ([]domain.TransferRecord, int64, error) {
	var where string
	switch params.Direction {
	case ports.DirectionIncoming:
		where = "WHERE to_account = $1"
	case ports.DirectionOutgoing:
		where = "WHERE from_account = $1"
	default:
		where = "WHERE (from_account = $1 OR to_account = $1)"
	}
	account := params.Account.BytesBE()

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM transfer_events %s", where)
	if err := r.pool.QueryRow(ctx, countQuery, account).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transfers: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT seq, tx_hash, from_account, to_account, value::text, created_at
		FROM transfer_events %s ORDER BY seq DESC LIMIT $2 OFFSET $3`, where)

	rows, err := r.pool.Query(ctx, dataQuery, account, params.PageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list transfers: %w", err)
	}
	defer rows.Close()

	var out []domain.TransferRecord
	for rows.Next() {
		var (
			seq       int64
			txHash    string
			from, to  []byte
			value     string
			createdAt time.Time
		)
		if err := rows.Scan(&seq, &txHash, &from, &to, &value, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("scan transfer row: %w", err)
		}
		rec, err := decodeTransfer(seq, txHash, from, to, value, createdAt)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transfer rows: %w", err)
	}
	return out, total, nil
}

func decodeTransfer(seq int64, txHash string, from, to []byte, value string, createdAt time.Time) (domain.TransferRecord, error) {
	fromID, err := decodeAccount(from)
	if err != nil {
		return domain.TransferRecord{}, err
	}
	toID, err := decodeAccount(to)
	if err != nil {
		return domain.TransferRecord{}, err
	}
	v, err := parseNumeric(value)
	if err != nil {
		return domain.TransferRecord{}, fmt.Errorf("parse value of transfer %d: %w", seq, err)
	}
	return domain.TransferRecord{
		Seq:       uint64(seq),
		TxHash:    txHash,
		From:      fromID,
		To:        toID,
		Value:     domain.Balance(v),
		CreatedAt: createdAt.UTC(),
	}, nil
}
