package service

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"metacoin-ledger/internal/core/convert"
	"metacoin-ledger/internal/core/domain"
	"metacoin-ledger/internal/core/ledger"
	"metacoin-ledger/internal/core/ports"
	"metacoin-ledger/pkg/apperror"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/sha3"
)

const defaultReceiptTTL = 24 * time.Hour

// LedgerSettings describes the token a ContractService serves.
type LedgerSettings struct {
	Symbol            string
	Decimals          int
	TotalSupply       domain.Balance
	Genesis           domain.AccountID
	GenesisAllocation domain.Balance // zero allocates the whole supply to Genesis
	Reserve           domain.AccountID
	ConversionRatio   uint64
	ReceiptTTL        time.Duration
}

// ContractServiceImpl implements ports.ContractService. It is the single
// writer of its ledger: SendCoin calls are serialized, reads share a lock.
type ContractServiceImpl struct {
	mu        sync.RWMutex
	ledger    *ledger.Ledger
	settings  LedgerSettings
	journal   ports.Journal
	cache     ports.ReceiptCache
	publisher ports.EventPublisher
	webhooks  ports.WebhookService
	now       func() time.Time
	log       zerolog.Logger
}

// NewContractService creates a ContractServiceImpl. cache, publisher and
// webhooks are optional.
func NewContractService(
	l *ledger.Ledger,
	settings LedgerSettings,
	journal ports.Journal,
	cache ports.ReceiptCache,
	publisher ports.EventPublisher,
	webhooks ports.WebhookService,
	log zerolog.Logger,
) *ContractServiceImpl {
	if settings.ReceiptTTL <= 0 {
		settings.ReceiptTTL = defaultReceiptTTL
	}
	return &ContractServiceImpl{
		ledger:    l,
		settings:  settings,
		journal:   journal,
		cache:     cache,
		publisher: publisher,
		webhooks:  webhooks,
		now:       time.Now,
		log:       log,
	}
}

// Bootstrap restores the ledger from the journal, or creates the genesis
// state and stores it when the journal is empty.
func Bootstrap(ctx context.Context, settings LedgerSettings, journal ports.Journal, log zerolog.Logger) (*ledger.Ledger, error) {
	converter, err := convert.NewFixedRatio(settings.ConversionRatio)
	if err != nil {
		return nil, err
	}

	snap, err := journal.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	if snap != nil {
		if snap.TotalSupply != settings.TotalSupply {
			return nil, fmt.Errorf("stored total supply %d differs from configured %d", snap.TotalSupply, settings.TotalSupply)
		}
		l, err := ledger.Restore(*snap, ledger.WithConverter(converter))
		if err != nil {
			return nil, fmt.Errorf("restore snapshot: %w", err)
		}
		warnUnfundedAccount(log, l, "genesis", settings.Genesis)
		if settings.GenesisAllocation > 0 {
			warnUnfundedAccount(log, l, "reserve", settings.Reserve)
		}
		log.Info().
			Uint64("seq", l.Seq()).
			Int("accounts", len(snap.Balances)).
			Msg("ledger restored from journal")
		return l, nil
	}

	opts := []ledger.Option{ledger.WithConverter(converter)}
	if settings.GenesisAllocation > 0 {
		opts = append(opts, ledger.WithReserve(settings.Reserve, settings.GenesisAllocation))
	}
	l, err := ledger.New(settings.Genesis, settings.TotalSupply, opts...)
	if err != nil {
		return nil, err
	}

	genesis := l.Snapshot()
	if err := journal.Init(ctx, &genesis); err != nil {
		return nil, fmt.Errorf("store genesis snapshot: %w", err)
	}

	log.Info().
		Str("genesis", domain.FormatAccountID(settings.Genesis)).
		Uint64("total_supply", uint64(settings.TotalSupply)).
		Uint64("genesis_balance", uint64(l.GetBalance(settings.Genesis))).
		Msg("ledger created")
	return l, nil
}

// warnUnfundedAccount flags a configured account that holds nothing in a
// restored ledger, usually a sign the configuration changed after genesis.
func warnUnfundedAccount(log zerolog.Logger, l *ledger.Ledger, role string, account domain.AccountID) {
	if l.GetBalance(account) > 0 {
		return
	}
	log.Warn().
		Str("role", role).
		Str("account", domain.FormatAccountID(account)).
		Msg("configured account holds no balance in the restored ledger")
}

// Info describes the deployed ledger.
func (s *ContractServiceImpl) Info(_ context.Context) ports.ContractInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := ports.ContractInfo{
		Symbol:          s.settings.Symbol,
		Decimals:        s.settings.Decimals,
		TotalSupply:     s.ledger.GetTotalSupply(),
		GenesisAccount:  s.settings.Genesis,
		ConversionRatio: s.settings.ConversionRatio,
		Seq:             s.ledger.Seq(),
	}
	if s.settings.GenesisAllocation > 0 {
		info.ReserveAccount = s.settings.Reserve
	}
	return info
}

// GetBalance returns the primary-unit balance of account.
func (s *ContractServiceImpl) GetBalance(_ context.Context, account domain.AccountID) domain.Balance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.GetBalance(account)
}

// GetBalanceInSecondaryUnit returns the balance converted by the linked library.
func (s *ContractServiceImpl) GetBalanceInSecondaryUnit(_ context.Context, account domain.AccountID) (domain.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err := s.ledger.GetBalanceInSecondaryUnit(account)
	if err != nil {
		return 0, mapLedgerError(err)
	}
	return v, nil
}

// TotalSupply returns the fixed supply.
func (s *ContractServiceImpl) TotalSupply(_ context.Context) domain.Balance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger.GetTotalSupply()
}

// SendCoin executes a transfer from req.Sender. The journal is written
// before the in-memory ledger commits, so a journal failure leaves both
// untouched.
func (s *ContractServiceImpl) SendCoin(ctx context.Context, req ports.SendCoinRequest) (*domain.Receipt, error) {
	receipt, replayed, err := s.execute(ctx, req)
	if err != nil {
		return nil, err
	}
	if replayed {
		return receipt, nil
	}

	s.log.Info().
		Str("tx_hash", receipt.TxHash).
		Uint64("seq", receipt.Seq).
		Str("from", domain.FormatAccountID(req.Sender)).
		Str("to", domain.FormatAccountID(req.Recipient)).
		Uint64("value", uint64(req.Amount)).
		Msg("transfer committed")

	s.notify(ctx, receipt)
	return receipt, nil
}

func (s *ContractServiceImpl) execute(ctx context.Context, req ports.SendCoinRequest) (*domain.Receipt, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cacheKey := ""
	fingerprint := ""
	if req.IdempotencyKey != "" {
		cacheKey = receiptCacheKey(req.Sender, req.IdempotencyKey)
		fingerprint = requestFingerprint(req)
		r, err := s.cachedReceipt(ctx, cacheKey, fingerprint)
		if err != nil {
			return nil, false, err
		}
		if r != nil {
			return r, true, nil
		}
	}

	posting, err := s.ledger.Stage(req.Sender, req.Recipient, req.Amount)
	if err != nil {
		s.log.Warn().
			Err(err).
			Str("from", domain.FormatAccountID(req.Sender)).
			Uint64("value", uint64(req.Amount)).
			Msg("transfer reverted")
		return nil, false, mapLedgerError(err)
	}

	receipt := domain.NewReceipt(posting, s.now().UTC())
	if err := s.journal.Record(ctx, posting, receipt); err != nil {
		return nil, false, apperror.ErrJournalFailure(fmt.Errorf("record posting %d: %w", posting.Seq, err))
	}
	if err := s.ledger.Commit(posting); err != nil {
		// The journal already holds the posting; memory and storage disagree.
		s.log.Error().Err(err).Uint64("seq", posting.Seq).Msg("commit after journal record failed")
		return nil, false, apperror.InternalError(fmt.Errorf("commit posting %d: %w", posting.Seq, err))
	}

	if cacheKey != "" {
		s.cacheReceipt(ctx, cacheKey, fingerprint, receipt)
	}
	return receipt, false, nil
}

// cachedSendCoin is what the receipt cache holds per Idempotency-Key.
type cachedSendCoin struct {
	Fingerprint string          `json:"fingerprint"`
	Receipt     *domain.Receipt `json:"receipt"`
}

// cachedReceipt returns the receipt stored under key. A stored entry whose
// fingerprint differs from the current request is a conflict.
func (s *ContractServiceImpl) cachedReceipt(ctx context.Context, key, fingerprint string) (*domain.Receipt, error) {
	if s.cache == nil {
		return nil, nil
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("receipt cache lookup failed, executing call")
		return nil, nil
	}
	if data == nil {
		return nil, nil
	}
	var entry cachedSendCoin
	if err := json.Unmarshal(data, &entry); err != nil || entry.Receipt == nil {
		s.log.Warn().Err(err).Str("key", key).Msg("discarding undecodable cached receipt")
		return nil, nil
	}
	if entry.Fingerprint != fingerprint {
		return nil, apperror.ErrIdempotencyConflict()
	}
	return entry.Receipt, nil
}

func (s *ContractServiceImpl) cacheReceipt(ctx context.Context, key, fingerprint string, r *domain.Receipt) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(cachedSendCoin{Fingerprint: fingerprint, Receipt: r})
	if err != nil {
		s.log.Warn().Err(err).Str("tx_hash", r.TxHash).Msg("failed to encode receipt for cache")
		return
	}
	if err := s.cache.Set(ctx, key, data, s.settings.ReceiptTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to cache receipt in redis")
	}
}

// notify fans the receipt out to observers. Failures never fail the call.
func (s *ContractServiceImpl) notify(ctx context.Context, r *domain.Receipt) {
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, r); err != nil {
			s.log.Warn().Err(err).Str("tx_hash", r.TxHash).Msg("failed to publish transfer event")
		}
	}
	if s.webhooks != nil {
		if err := s.webhooks.EnqueueWebhook(ctx, r); err != nil {
			s.log.Warn().Err(err).Str("tx_hash", r.TxHash).Msg("failed to enqueue webhook")
		}
	}
}

func receiptCacheKey(sender domain.AccountID, key string) string {
	return "sendcoin:" + sender.StringLE() + ":" + key
}

// requestFingerprint identifies the call an Idempotency-Key was first used for.
func requestFingerprint(req ports.SendCoinRequest) string {
	var amount [8]byte
	binary.BigEndian.PutUint64(amount[:], uint64(req.Amount))
	h := sha3.New256()
	h.Write(req.Recipient.BytesBE())
	h.Write(amount[:])
	return hex.EncodeToString(h.Sum(nil))
}

// mapLedgerError converts core failures into API errors.
func mapLedgerError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return apperror.ErrInsufficientFunds(err)
	case errors.Is(err, ledger.ErrArithmeticOverflow):
		return apperror.ErrArithmeticOverflow(err)
	default:
		return apperror.InternalError(err)
	}
}
