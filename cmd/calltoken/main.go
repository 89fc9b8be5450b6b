// Command calltoken prints a caller token for an account so that test
// harnesses can invoke sendCoin as that account.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"metacoin-ledger/config"
	"metacoin-ledger/internal/core/domain"
	"metacoin-ledger/internal/service"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	account := flag.String("account", "", "account address (N...) or 0x script hash; defaults to the genesis account")
	ttl := flag.Duration("ttl", 0, "token lifetime; defaults to jwt.expiry")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail("failed to load config: %v", err)
	}
	if cfg.JWT.Secret == "" {
		fail("jwt.secret is required")
	}

	raw := *account
	if raw == "" {
		raw = cfg.Ledger.GenesisAccount
	}
	id, err := domain.ParseAccountID(raw)
	if err != nil {
		fail("invalid account %q: %v", raw, err)
	}

	expiry := cfg.JWT.Expiry
	if *ttl > 0 {
		expiry = *ttl
	}

	token, expiresAt, err := service.NewJWTTokenService(cfg.JWT.Secret, expiry, cfg.JWT.Issuer).Generate(id)
	if err != nil {
		fail("failed to sign token: %v", err)
	}

	fmt.Fprintf(os.Stderr, "account %s, expires %s\n", domain.FormatAccountID(id), expiresAt.UTC().Format(time.RFC3339))
	fmt.Println(token)
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
