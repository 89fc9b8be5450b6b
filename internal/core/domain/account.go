package domain

import (
	"fmt"
	"strings"

	"github.com/nspcc-dev/neo-go/pkg/crypto/hash"
	"github.com/nspcc-dev/neo-go/pkg/encoding/address"
	"github.com/nspcc-dev/neo-go/pkg/util"
)

// AccountID identifies a ledger participant. It is an opaque 20-byte script
// hash; the ledger only ever compares and hashes it.
type AccountID = util.Uint160

// Balance is a holding in the primary unit.
type Balance uint64

// AccountBalance pairs an account with its balance.
type AccountBalance struct {
	Account AccountID `json:"account"`
	Balance Balance   `json:"balance"`
}

// ParseAccountID accepts either a base58check address ("N...") or a
// 0x-prefixed little-endian hex script hash.
func ParseAccountID(s string) (AccountID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AccountID{}, fmt.Errorf("empty account")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		id, err := util.Uint160DecodeStringLE(s[2:])
		if err != nil {
			return AccountID{}, fmt.Errorf("decoding script hash: %w", err)
		}
		return id, nil
	}
	id, err := address.StringToUint160(s)
	if err != nil {
		return AccountID{}, fmt.Errorf("decoding address: %w", err)
	}
	return id, nil
}

// FormatAccountID renders an account as a base58check address.
func FormatAccountID(id AccountID) string {
	return address.Uint160ToString(id)
}

// DeriveAccountID derives a deterministic account from a label. Used for the
// contract's own reserve account.
func DeriveAccountID(label string) AccountID {
	return hash.Hash160([]byte(label))
}
