package types

import (
	"fmt"
	"time"

	"cosmossdk.io/math"
)

const (
	// ModuleName defines the module name
	ModuleName = "ratiofeed"

	// StoreKey defines the primary module store key
	StoreKey = ModuleName
)

// Params configures the feed thresholds
type Params struct {
	MaxAge       time.Duration  `json:"max_age"`       // ratio older than this is stale
	MaxDeviation math.LegacyDec `json:"max_deviation"` // relative change between consecutive updates (0.05 = 5%)
}

// DefaultParams returns default feed parameters
func DefaultParams() Params {
	return Params{
		MaxAge:       24 * time.Hour,
		MaxDeviation: math.LegacyNewDecWithPrec(5, 2), // 5%
	}
}

// Validate validates the params
func (p Params) Validate() error {
	if p.MaxAge <= 0 {
		return fmt.Errorf("max age must be positive: %s", p.MaxAge)
	}
	if p.MaxDeviation.IsNil() || !p.MaxDeviation.IsPositive() {
		return fmt.Errorf("max deviation must be positive")
	}
	return nil
}

// RatioEntry is the latest pushed ratio for a token id
type RatioEntry struct {
	TokenID   string         `json:"token_id"`
	Ratio     math.LegacyDec `json:"ratio"`
	Previous  math.LegacyDec `json:"previous"`
	UpdatedAt int64          `json:"updated_at"` // unix seconds
	Height    int64          `json:"height"`
	Deviated  bool           `json:"deviated"`
}

// Age returns how old the entry is at now
func (e RatioEntry) Age(now time.Time) time.Duration {
	return now.Sub(time.Unix(e.UpdatedAt, 0))
}

// RelativeChange returns |new-old|/old, or zero when old is unset
func RelativeChange(old, updated math.LegacyDec) math.LegacyDec {
	if old.IsNil() || !old.IsPositive() {
		return math.LegacyZeroDec()
	}
	return updated.Sub(old).Abs().Quo(old)
}

// GenesisState is the feed genesis
type GenesisState struct {
	Params  Params       `json:"params"`
	Entries []RatioEntry `json:"entries"`
}

// DefaultGenesis returns the default feed genesis
func DefaultGenesis() *GenesisState {
	return &GenesisState{
		Params:  DefaultParams(),
		Entries: []RatioEntry{},
	}
}

// Validate validates the genesis state
func (gs GenesisState) Validate() error {
	if err := gs.Params.Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, e := range gs.Entries {
		if e.TokenID == "" || seen[e.TokenID] {
			return fmt.Errorf("invalid or duplicate token id %q", e.TokenID)
		}
		if e.Ratio.IsNil() || !e.Ratio.IsPositive() {
			return fmt.Errorf("non-positive ratio for %s", e.TokenID)
		}
		seen[e.TokenID] = true
	}
	return nil
}
