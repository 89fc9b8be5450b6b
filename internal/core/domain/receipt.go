package domain

import (
	"encoding/binary"
	"encoding/hex"
	"time"
)

// ReceiptStatus represents the outcome of an executed call.
type ReceiptStatus string

const (
	ReceiptStatusSuccess ReceiptStatus = "SUCCESS"
)

// Receipt is what the caller of a transfer observes once it has been applied.
type Receipt struct {
	TxHash    string        `json:"tx_hash"`
	Seq       uint64        `json:"seq"`
	Status    ReceiptStatus `json:"status"`
	Logs      []EventLog    `json:"logs"`
	CreatedAt time.Time     `json:"created_at"`
}

// Event returns the transfer event carried by the receipt.
func (r *Receipt) Event() (TransferEvent, bool) {
	for _, l := range r.Logs {
		if l.Event == TransferEventName {
			return l.Args, true
		}
	}
	return TransferEvent{}, false
}

// NewReceipt builds the receipt of an applied posting.
func NewReceipt(p *Posting, at time.Time) *Receipt {
	return &Receipt{
		TxHash:    TxHash(p.Seq, p.Event),
		Seq:       p.Seq,
		Status:    ReceiptStatusSuccess,
		Logs:      []EventLog{NewTransferLog(p.Event)},
		CreatedAt: at,
	}
}

// TxHash is Keccak-256 over from || to || value || seq (big-endian).
func TxHash(seq uint64, ev TransferEvent) string {
	var num [16]byte
	binary.BigEndian.PutUint64(num[:8], uint64(ev.Value))
	binary.BigEndian.PutUint64(num[8:], seq)
	return "0x" + hex.EncodeToString(keccak256(ev.From.BytesBE(), ev.To.BytesBE(), num[:]))
}

// TransferRecord is a persisted transfer as returned by history queries.
type TransferRecord struct {
	Seq       uint64    `json:"seq"`
	TxHash    string    `json:"tx_hash"`
	From      AccountID `json:"from"`
	To        AccountID `json:"to"`
	Value     Balance   `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// NewTransferRecord flattens a receipt for storage.
func NewTransferRecord(r *Receipt) TransferRecord {
	ev, _ := r.Event()
	return TransferRecord{
		Seq:       r.Seq,
		TxHash:    r.TxHash,
		From:      ev.From,
		To:        ev.To,
		Value:     ev.Value,
		CreatedAt: r.CreatedAt,
	}
}
