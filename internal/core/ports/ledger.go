package ports

import (
	"context"

	"metacoin-ledger/internal/core/domain"
)

// Converter maps a primary-unit balance to the secondary unit.
type Converter interface {
	ConvertToSecondaryUnit(balance domain.Balance) (domain.Balance, error)
}

// Journal durably records ledger state. Record must be all-or-nothing: either
// the balances, the transfer record and the new sequence are all stored, or
// none of them are.
type Journal interface {
	// Load returns the stored snapshot, or nil if nothing has been stored yet.
	Load(ctx context.Context) (*domain.Snapshot, error)
	// Init stores the genesis snapshot.
	Init(ctx context.Context, snap *domain.Snapshot) error
	// Record stores an applied posting together with its receipt.
	Record(ctx context.Context, posting *domain.Posting, receipt *domain.Receipt) error
}

// TransferStore serves persisted transfer history.
type TransferStore interface {
	ListTransfers(ctx context.Context, params TransferListParams) ([]domain.TransferRecord, int64, error)
}

// TransferDirection filters history by the account's side of the transfer.
type TransferDirection string

const (
	DirectionAny      TransferDirection = ""
	DirectionIncoming TransferDirection = "in"
	DirectionOutgoing TransferDirection = "out"
)

// TransferListParams holds filter + pagination for listing transfers.
type TransferListParams struct {
	Account   domain.AccountID
	Direction TransferDirection
	Page      int
	PageSize  int
}
