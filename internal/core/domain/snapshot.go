package domain

// Posting is a staged transfer: the event it will emit, the sequence number
// the ledger reaches once it is committed, and the resulting balances of the
// accounts it touches (one entry for a self-transfer, two otherwise).
type Posting struct {
	Seq      uint64           `json:"seq"`
	Event    TransferEvent    `json:"event"`
	Balances []AccountBalance `json:"balances"`
}

// Snapshot is the full persisted state of a ledger. Zero balances are omitted.
type Snapshot struct {
	TotalSupply Balance          `json:"total_supply"`
	Seq         uint64           `json:"seq"`
	Balances    []AccountBalance `json:"balances"`
}
