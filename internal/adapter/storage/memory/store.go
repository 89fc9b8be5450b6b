// Package memory keeps the journal and transfer history in process memory.
// Nothing survives a restart.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"metacoin-ledger/internal/core/domain"
	"metacoin-ledger/internal/core/ports"
)

// ErrNotInitialized means Record was called before Init.
var ErrNotInitialized = errors.New("journal not initialized")

// Store implements ports.Journal and ports.TransferStore.
type Store struct {
	mu       sync.RWMutex
	snapshot *domain.Snapshot
	balances map[domain.AccountID]domain.Balance
	events   []domain.TransferRecord // ascending by seq
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{balances: make(map[domain.AccountID]domain.Balance)}
}

// Load returns a copy of the stored state, or nil before Init.
func (s *Store) Load(_ context.Context) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.snapshot == nil {
		return nil, nil
	}
	snap := &domain.Snapshot{
		TotalSupply: s.snapshot.TotalSupply,
		Seq:         s.snapshot.Seq,
		Balances:    make([]domain.AccountBalance, 0, len(s.balances)),
	}
	for acc, bal := range s.balances {
		if bal > 0 {
			snap.Balances = append(snap.Balances, domain.AccountBalance{Account: acc, Balance: bal})
		}
	}
	sort.Slice(snap.Balances, func(i, j int) bool {
		return snap.Balances[i].Account.Less(snap.Balances[j].Account)
	})
	return snap, nil
}

// Init stores the genesis state.
func (s *Store) Init(_ context.Context, snap *domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot != nil {
		return fmt.Errorf("journal already initialized at seq %d", s.snapshot.Seq)
	}
	s.snapshot = &domain.Snapshot{TotalSupply: snap.TotalSupply, Seq: snap.Seq}
	for _, ab := range snap.Balances {
		s.balances[ab.Account] = ab.Balance
	}
	return nil
}

// Record applies a posting. The posting must follow the stored sequence.
func (s *Store) Record(_ context.Context, posting *domain.Posting, receipt *domain.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshot == nil {
		return ErrNotInitialized
	}
	if posting.Seq != s.snapshot.Seq+1 {
		return fmt.Errorf("posting seq %d does not follow stored seq %d", posting.Seq, s.snapshot.Seq)
	}

	for _, ab := range posting.Balances {
		s.balances[ab.Account] = ab.Balance
	}
	s.snapshot.Seq = posting.Seq
	s.events = append(s.events, domain.NewTransferRecord(receipt))
	return nil
}

// ListTransfers returns transfers touching params.Account, newest first.
func (s *Store) ListTransfers(_ context.Context, params ports.TransferListParams) ([]domain.TransferRecord, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.TransferRecord
	for i := len(s.events) - 1; i >= 0; i-- {
		if touches(s.events[i], params) {
			matched = append(matched, s.events[i])
		}
	}

	total := int64(len(matched))
	start := (params.Page - 1) * params.PageSize
	if start < 0 || start >= len(matched) {
		return []domain.TransferRecord{}, total, nil
	}
	end := start + params.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func touches(rec domain.TransferRecord, params ports.TransferListParams) bool {
	switch params.Direction {
	case ports.DirectionIncoming:
		return rec.To == params.Account
	case ports.DirectionOutgoing:
		return rec.From == params.Account
	default:
		return rec.From == params.Account || rec.To == params.Account
	}
}
