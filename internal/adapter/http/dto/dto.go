package dto

import (
	"time"

	"metacoin-ledger/internal/core/domain"
	"metacoin-ledger/internal/core/ports"
)

// SecondaryUnit labels balances returned by the conversion library.
const SecondaryUnit = "ETH"

// SendCoinRequest is the request body for a transfer. The sender is the
// authenticated caller; it is never taken from the body.
type SendCoinRequest struct {
	Recipient string  `json:"recipient" binding:"required,account"`
	Amount    *uint64 `json:"amount" binding:"required"`
}

// TransferListQuery holds the query parameters of the history endpoint.
type TransferListQuery struct {
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Direction string `form:"direction" binding:"omitempty,oneof=in out"`
}

// ContractInfoResponse describes the deployed ledger.
type ContractInfoResponse struct {
	Symbol          string `json:"symbol"`
	Decimals        int    `json:"decimals"`
	TotalSupply     uint64 `json:"total_supply"`
	GenesisAccount  string `json:"genesis_account"`
	ReserveAccount  string `json:"reserve_account"`
	ConversionRatio uint64 `json:"conversion_ratio"`
	Seq             uint64 `json:"seq"`
}

// BalanceResponse is the response for balance queries.
type BalanceResponse struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
	Unit    string `json:"unit"`
}

// TotalSupplyResponse is the response for the total supply query.
type TotalSupplyResponse struct {
	TotalSupply uint64 `json:"total_supply"`
	Symbol      string `json:"symbol"`
}

// TransferEventResponse is a Transfer event with accounts rendered as addresses.
type TransferEventResponse struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Value uint64 `json:"value"`
}

// EventLogResponse is one receipt log entry.
type EventLogResponse struct {
	Event string                `json:"event"`
	Topic string                `json:"topic"`
	Args  TransferEventResponse `json:"args"`
}

// ReceiptResponse is the response body for a successful sendCoin.
type ReceiptResponse struct {
	TxHash    string             `json:"tx_hash"`
	Seq       uint64             `json:"seq"`
	Status    string             `json:"status"`
	Logs      []EventLogResponse `json:"logs"`
	CreatedAt string             `json:"created_at"`
}

// TransferRecordResponse is one entry of transfer history.
type TransferRecordResponse struct {
	Seq       uint64 `json:"seq"`
	TxHash    string `json:"tx_hash"`
	From      string `json:"from"`
	To        string `json:"to"`
	Value     uint64 `json:"value"`
	CreatedAt string `json:"created_at"`
}

// NewContractInfoResponse converts ports.ContractInfo to its DTO.
func NewContractInfoResponse(info ports.ContractInfo) ContractInfoResponse {
	return ContractInfoResponse{
		Symbol:          info.Symbol,
		Decimals:        info.Decimals,
		TotalSupply:     uint64(info.TotalSupply),
		GenesisAccount:  domain.FormatAccountID(info.GenesisAccount),
		ReserveAccount:  domain.FormatAccountID(info.ReserveAccount),
		ConversionRatio: info.ConversionRatio,
		Seq:             info.Seq,
	}
}

// NewTransferEventResponse converts a domain event to its DTO.
func NewTransferEventResponse(ev domain.TransferEvent) TransferEventResponse {
	return TransferEventResponse{
		From:  domain.FormatAccountID(ev.From),
		To:    domain.FormatAccountID(ev.To),
		Value: uint64(ev.Value),
	}
}

// NewReceiptResponse converts domain.Receipt to its DTO.
func NewReceiptResponse(r *domain.Receipt) ReceiptResponse {
	logs := make([]EventLogResponse, 0, len(r.Logs))
	for _, l := range r.Logs {
		logs = append(logs, EventLogResponse{
			Event: l.Event,
			Topic: l.Topic,
			Args:  NewTransferEventResponse(l.Args),
		})
	}
	return ReceiptResponse{
		TxHash:    r.TxHash,
		Seq:       r.Seq,
		Status:    string(r.Status),
		Logs:      logs,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// NewTransferRecordResponses converts history records to DTOs.
func NewTransferRecordResponses(records []domain.TransferRecord) []TransferRecordResponse {
	items := make([]TransferRecordResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, TransferRecordResponse{
			Seq:       rec.Seq,
			TxHash:    rec.TxHash,
			From:      domain.FormatAccountID(rec.From),
			To:        domain.FormatAccountID(rec.To),
			Value:     uint64(rec.Value),
			CreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return items
}
