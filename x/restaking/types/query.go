package types

import (
	"cosmossdk.io/math"
)

// VaultSummary is the vault ledger with its derived figures
type VaultSummary struct {
	Vault          VaultState     `json:"vault"`
	GrossAssets    math.Int       `json:"gross_assets"`
	Equity         math.Int       `json:"equity"`
	UnreservedFree math.Int       `json:"unreserved_free"`
	ShareSupply    math.Int       `json:"share_supply"`
	AdjustedRatio  math.LegacyDec `json:"adjusted_ratio"`
	BackingRatio   math.LegacyDec `json:"backing_ratio"`
	Adapters       []string       `json:"adapters"`
	Params         Params         `json:"params"`
}

// RatioInfo reports every ratio view the vault exposes
type RatioInfo struct {
	Adjusted math.LegacyDec  `json:"adjusted"`
	Backing  math.LegacyDec  `json:"backing"`
	Inverse  math.LegacyDec  `json:"inverse"`
	Raw      string          `json:"raw,omitempty"`
	RawError string          `json:"raw_error,omitempty"`
	History  []RatioSnapshot `json:"history"`
}

// UserBalance is a holder's claim token balance valued at the adjusted ratio
type UserBalance struct {
	Address string   `json:"address"`
	Shares  math.Int `json:"shares"`
	Value   math.Int `json:"value"`
	Assets  math.Int `json:"assets"` // base asset held outside the vault
}
