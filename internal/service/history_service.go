package service

import (
	"context"
	"math"

	"metacoin-ledger/internal/core/domain"
	"metacoin-ledger/internal/core/ports"
	"metacoin-ledger/pkg/apperror"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// historyService implements ports.HistoryService.
type historyService struct {
	store ports.TransferStore
}

// NewHistoryService creates a new history service.
func NewHistoryService(store ports.TransferStore) ports.HistoryService {
	return &historyService{store: store}
}

// ListTransfers returns a page of transfers touching params.Account, newest first.
func (s *historyService) ListTransfers(ctx context.Context, params ports.TransferListParams) ([]domain.TransferRecord, int64, error) {
	switch params.Direction {
	case ports.DirectionAny, ports.DirectionIncoming, ports.DirectionOutgoing:
	default:
		return nil, 0, apperror.Validation("invalid direction: must be in, out, or empty")
	}
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultPageSize
	}
	if params.PageSize > maxPageSize {
		params.PageSize = maxPageSize
	}
	// The store computes (Page-1)*PageSize as its offset.
	if params.Page > math.MaxInt/params.PageSize {
		return nil, 0, apperror.Validation("page is out of range")
	}

	records, total, err := s.store.ListTransfers(ctx, params)
	if err != nil {
		return nil, 0, apperror.InternalError(err)
	}
	return records, total, nil
}
