// Package ledger holds the authoritative MetaCoin balances.
//
// A Ledger is not safe for concurrent use. Callers serialize every Transfer
// (and every Stage/Commit pair) against one instance; reads may run between
// mutating calls because a transfer is never observable half-applied.
package ledger

import (
	"bytes"
	"fmt"
	"math/bits"
	"sort"

	"metacoin-ledger/internal/core/convert"
	"metacoin-ledger/internal/core/domain"
	"metacoin-ledger/internal/core/ports"
)

// Ledger maps accounts to balances. Absent accounts hold zero.
type Ledger struct {
	balances    map[domain.AccountID]domain.Balance
	totalSupply domain.Balance
	converter   ports.Converter
	seq         uint64
}

type options struct {
	converter         ports.Converter
	reserve           *domain.AccountID
	genesisAllocation domain.Balance
}

// Option configures a Ledger.
type Option func(*options)

// WithConverter replaces the default fixed-ratio conversion library.
func WithConverter(c ports.Converter) Option {
	return func(o *options) {
		o.converter = c
	}
}

// WithReserve allocates only genesisAllocation to the genesis account and
// parks the rest of the supply in reserve.
func WithReserve(reserve domain.AccountID, genesisAllocation domain.Balance) Option {
	return func(o *options) {
		o.reserve = &reserve
		o.genesisAllocation = genesisAllocation
	}
}

func buildOptions(opts []Option) options {
	o := options{converter: convert.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New creates a ledger whose whole supply belongs to genesis, unless
// WithReserve splits it.
func New(genesis domain.AccountID, totalSupply domain.Balance, opts ...Option) (*Ledger, error) {
	o := buildOptions(opts)
	l := &Ledger{
		balances:    make(map[domain.AccountID]domain.Balance),
		totalSupply: totalSupply,
		converter:   o.converter,
	}

	if o.reserve == nil {
		l.set(genesis, totalSupply)
		return l, nil
	}
	if o.genesisAllocation > totalSupply {
		return nil, ErrInvalidGenesis
	}
	l.set(*o.reserve, totalSupply-o.genesisAllocation)
	l.set(genesis, l.GetBalance(genesis)+o.genesisAllocation)
	return l, nil
}

// Restore rebuilds a ledger from a snapshot. The snapshot must conserve supply.
func Restore(snap domain.Snapshot, opts ...Option) (*Ledger, error) {
	o := buildOptions(opts)
	l := &Ledger{
		balances:    make(map[domain.AccountID]domain.Balance, len(snap.Balances)),
		totalSupply: snap.TotalSupply,
		converter:   o.converter,
		seq:         snap.Seq,
	}

	var sum domain.Balance
	for _, ab := range snap.Balances {
		if _, dup := l.balances[ab.Account]; dup {
			return nil, fmt.Errorf("duplicate account %s in snapshot", domain.FormatAccountID(ab.Account))
		}
		next, ok := add(sum, ab.Balance)
		if !ok {
			return nil, ErrArithmeticOverflow
		}
		sum = next
		l.set(ab.Account, ab.Balance)
	}
	if sum != snap.TotalSupply {
		return nil, fmt.Errorf("%w: sum %d, supply %d", ErrConservation, sum, snap.TotalSupply)
	}
	return l, nil
}

// GetBalance returns the balance of account, zero if it was never credited.
func (l *Ledger) GetBalance(account domain.AccountID) domain.Balance {
	return l.balances[account]
}

// GetBalanceInSecondaryUnit converts the account's balance through the
// linked conversion library.
func (l *Ledger) GetBalanceInSecondaryUnit(account domain.AccountID) (domain.Balance, error) {
	v, err := l.converter.ConvertToSecondaryUnit(l.GetBalance(account))
	if err != nil {
		return 0, revert(err)
	}
	return v, nil
}

// GetTotalSupply returns the supply fixed at creation.
func (l *Ledger) GetTotalSupply() domain.Balance {
	return l.totalSupply
}

// Seq returns the number of transfers applied so far.
func (l *Ledger) Seq() uint64 {
	return l.seq
}

// Transfer moves amount from sender to recipient and returns the emitted
// event. On failure nothing changes and no event exists.
func (l *Ledger) Transfer(sender, recipient domain.AccountID, amount domain.Balance) (domain.TransferEvent, error) {
	p, err := l.Stage(sender, recipient, amount)
	if err != nil {
		return domain.TransferEvent{}, err
	}
	if err := l.Commit(p); err != nil {
		return domain.TransferEvent{}, err
	}
	return p.Event, nil
}

// Stage validates a transfer and computes its outcome without applying it.
func (l *Ledger) Stage(sender, recipient domain.AccountID, amount domain.Balance) (*domain.Posting, error) {
	senderBalance := l.GetBalance(sender)
	if senderBalance < amount {
		return nil, revert(ErrInsufficientFunds)
	}

	p := &domain.Posting{
		Seq:   l.seq + 1,
		Event: domain.TransferEvent{From: sender, To: recipient, Value: amount},
	}

	if sender == recipient {
		p.Balances = []domain.AccountBalance{{Account: sender, Balance: senderBalance}}
		return p, nil
	}

	recipientBalance, ok := add(l.GetBalance(recipient), amount)
	if !ok {
		return nil, revert(ErrArithmeticOverflow)
	}
	p.Balances = []domain.AccountBalance{
		{Account: sender, Balance: senderBalance - amount},
		{Account: recipient, Balance: recipientBalance},
	}
	return p, nil
}

// Commit applies a posting produced by Stage on the current state.
func (l *Ledger) Commit(p *domain.Posting) error {
	if p == nil || p.Seq != l.seq+1 {
		return ErrStalePosting
	}

	var before, after domain.Balance
	for _, ab := range p.Balances {
		before += l.GetBalance(ab.Account)
		after += ab.Balance
	}
	if before != after {
		return ErrConservation
	}

	for _, ab := range p.Balances {
		l.set(ab.Account, ab.Balance)
	}
	l.seq = p.Seq
	return nil
}

// Snapshot exports every non-zero balance, ordered by account.
func (l *Ledger) Snapshot() domain.Snapshot {
	out := make([]domain.AccountBalance, 0, len(l.balances))
	for acc, bal := range l.balances {
		out = append(out, domain.AccountBalance{Account: acc, Balance: bal})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Account[:], out[j].Account[:]) < 0
	})
	return domain.Snapshot{
		TotalSupply: l.totalSupply,
		Seq:         l.seq,
		Balances:    out,
	}
}

func (l *Ledger) set(account domain.AccountID, balance domain.Balance) {
	if balance == 0 {
		delete(l.balances, account)
		return
	}
	l.balances[account] = balance
}

func add(a, b domain.Balance) (domain.Balance, bool) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	return domain.Balance(sum), carry == 0
}
