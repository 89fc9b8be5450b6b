package ports

import (
	"context"
	"time"

	"metacoin-ledger/internal/core/domain"
)

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// TokenService issues and validates caller identity tokens.
type TokenService interface {
	Generate(account domain.AccountID) (string, time.Time, error)
	Validate(tokenString string) (*CallerClaims, error)
}

// CallerClaims holds the parsed caller identity.
type CallerClaims struct {
	Account domain.AccountID
}

// ReceiptCache is the Redis-layer idempotency check for sendCoin.
type ReceiptCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached receipt JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// EventPublisher fans a committed receipt out to external observers.
type EventPublisher interface {
	Publish(ctx context.Context, receipt *domain.Receipt) error
}

// --- Service Ports (Business Logic) ---

// ContractService is the call/observe surface of the ledger.
type ContractService interface {
	Info(ctx context.Context) ContractInfo
	GetBalance(ctx context.Context, account domain.AccountID) domain.Balance
	GetBalanceInSecondaryUnit(ctx context.Context, account domain.AccountID) (domain.Balance, error)
	TotalSupply(ctx context.Context) domain.Balance
	SendCoin(ctx context.Context, req SendCoinRequest) (*domain.Receipt, error)
}

// SendCoinRequest holds validated input for a transfer. Sender is the acting
// account established by the caller's credentials.
type SendCoinRequest struct {
	Sender         domain.AccountID
	Recipient      domain.AccountID
	Amount         domain.Balance
	IdempotencyKey string
}

// ContractInfo describes the deployed ledger instance.
type ContractInfo struct {
	Symbol          string
	Decimals        int
	TotalSupply     domain.Balance
	GenesisAccount  domain.AccountID
	ReserveAccount  domain.AccountID
	ConversionRatio uint64
	Seq             uint64
}

// HistoryService serves transfer history.
type HistoryService interface {
	ListTransfers(ctx context.Context, params TransferListParams) ([]domain.TransferRecord, int64, error)
}

// WebhookService defines async event delivery to an external observer.
type WebhookService interface {
	EnqueueWebhook(ctx context.Context, receipt *domain.Receipt) error
}
