package service

import (
	"fmt"

	"metacoin-ledger/config"
	"metacoin-ledger/internal/core/domain"
)

// reserveLabel derives the default reserve account, the contract's own address.
const reserveLabel = "MetaCoin"

// NewLedgerSettings resolves the configured accounts into LedgerSettings.
func NewLedgerSettings(cfg config.LedgerConfig) (LedgerSettings, error) {
	genesis, err := domain.ParseAccountID(cfg.GenesisAccount)
	if err != nil {
		return LedgerSettings{}, fmt.Errorf("ledger.genesis_account: %w", err)
	}

	reserve := domain.DeriveAccountID(reserveLabel)
	if cfg.ReserveAccount != "" {
		reserve, err = domain.ParseAccountID(cfg.ReserveAccount)
		if err != nil {
			return LedgerSettings{}, fmt.Errorf("ledger.reserve_account: %w", err)
		}
	}

	return LedgerSettings{
		Symbol:            cfg.Symbol,
		Decimals:          cfg.Decimals,
		TotalSupply:       domain.Balance(cfg.TotalSupply),
		Genesis:           genesis,
		GenesisAllocation: domain.Balance(cfg.GenesisAllocation),
		Reserve:           reserve,
		ConversionRatio:   cfg.ConversionRatio,
		ReceiptTTL:        cfg.ReceiptTTL,
	}, nil
}
