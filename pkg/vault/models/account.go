package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Chain identifies the network family an account lives on.
type Chain string

const (
	ChainXRPL     Chain = "xrpl"
	ChainEVM      Chain = "evm"
	ChainBTC      Chain = "btc"
	ChainSOL      Chain = "sol"
	ChainXLM      Chain = "xlm"
	ChainHBAR     Chain = "hbar"
	ChainADA      Chain = "ada"
	ChainCanopy   Chain = "canopy"
	ChainOther    Chain = "other"
	ChainExchange Chain = "exchange"
)

// Chains lists every accepted chain in display order.
var Chains = []Chain{ChainXRPL, ChainEVM, ChainBTC, ChainSOL, ChainXLM, ChainHBAR, ChainADA, ChainCanopy, ChainOther, ChainExchange}

func (c Chain) Valid() bool {
	for _, k := range Chains {
		if c == k {
			return true
		}
	}
	return false
}

// HexAddressed reports whether addresses on this chain are case-insensitive hex.
// Every other chain keeps its encoding verbatim (base58, r-addresses, bech32...).
func (c Chain) HexAddressed() bool {
	return c == ChainEVM || c == ChainCanopy
}

// AccountType classifies who holds the account.
type AccountType string

const (
	TypeWallet   AccountType = "wallet"
	TypeExchange AccountType = "exchange"
	TypeMerchant AccountType = "merchant"
	TypeCustom   AccountType = "custom"
	TypeManual   AccountType = "manual"

	legacyTypeOnchainWallet = "onchain_wallet"
)

func (t AccountType) Valid() bool {
	switch t {
	case TypeWallet, TypeExchange, TypeMerchant, TypeCustom, TypeManual:
		return true
	}
	return false
}

// ParseAccountType accepts current names and the legacy onchain_wallet alias.
func ParseAccountType(s string) (AccountType, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == legacyTypeOnchainWallet {
		return TypeWallet, true
	}
	t := AccountType(s)
	return t, t.Valid()
}

func (t *AccountType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if parsed, ok := ParseAccountType(s); ok {
		*t = parsed
		return nil
	}
	*t = AccountType(s)
	return nil
}

// Status is the account lifecycle state.
type Status string

const (
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
	StatusDeleted Status = "deleted"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusPaused || s == StatusDeleted
}

// Account is one row of the account registry.
type Account struct {
	AccountID           string      `json:"account_id"`
	Type                AccountType `json:"type"`
	Chain               Chain       `json:"chain"`
	Label               string      `json:"label"`
	AddressOrIdentifier string      `json:"address_or_identifier"`
	Network             string      `json:"network,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	Status              Status      `json:"status"`
}

// Validate checks a persisted row. It does not apply registration rules.
func (a Account) Validate() error {
	switch {
	case a.AccountID == "":
		return fmt.Errorf("missing account_id")
	case !a.Type.Valid():
		return fmt.Errorf("account %s: invalid type %q", a.AccountID, a.Type)
	case !a.Chain.Valid():
		return fmt.Errorf("account %s: invalid chain %q", a.AccountID, a.Chain)
	case !a.Status.Valid():
		return fmt.Errorf("account %s: invalid status %q", a.AccountID, a.Status)
	case strings.TrimSpace(a.AddressOrIdentifier) == "":
		return fmt.Errorf("account %s: missing address_or_identifier", a.AccountID)
	}
	return nil
}

func (a Account) Active() bool { return a.Status == StatusActive }
