package domain

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// TransferEventName is the event name observed by callers of sendCoin.
const TransferEventName = "Transfer"

// TransferEventSignature is the canonical signature the event topic is derived from.
const TransferEventSignature = "Transfer(address,address,uint256)"

// TransferTopic is Keccak-256 of TransferEventSignature, hex encoded with 0x prefix.
var TransferTopic = "0x" + hex.EncodeToString(keccak256([]byte(TransferEventSignature)))

// TransferEvent records one completed transfer. It is never mutated.
type TransferEvent struct {
	From  AccountID `json:"from"`
	To    AccountID `json:"to"`
	Value Balance   `json:"value"`
}

// EventLog is a single log entry attached to a receipt.
type EventLog struct {
	Event string        `json:"event"`
	Topic string        `json:"topic"`
	Args  TransferEvent `json:"args"`
}

// NewTransferLog wraps a transfer event into a receipt log entry.
func NewTransferLog(ev TransferEvent) EventLog {
	return EventLog{
		Event: TransferEventName,
		Topic: TransferTopic,
		Args:  ev,
	}
}

func keccak256(parts ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}
