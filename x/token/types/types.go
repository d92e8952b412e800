package types

import (
	"fmt"

	"cosmossdk.io/math"
)

const (
	// ModuleName defines the module name
	ModuleName = "token"

	// StoreKey defines the primary module store key
	StoreKey = ModuleName
)

// Balance is a single account holding of one denom
type Balance struct {
	Denom   string   `json:"denom"`
	Address string   `json:"address"`
	Amount  math.Int `json:"amount"`
}

// DenomInfo records the supply of a denom and who may mint/burn it
type DenomInfo struct {
	Denom  string   `json:"denom"`
	Minter string   `json:"minter"`
	Supply math.Int `json:"supply"`
}

// GenesisState is the token ledger genesis
type GenesisState struct {
	Denoms   []DenomInfo `json:"denoms"`
	Balances []Balance   `json:"balances"`
}

// DefaultGenesis returns an empty ledger
func DefaultGenesis() *GenesisState {
	return &GenesisState{
		Denoms:   []DenomInfo{},
		Balances: []Balance{},
	}
}

// Validate checks that balances sum to the declared supply of each denom
func (gs GenesisState) Validate() error {
	supply := make(map[string]math.Int)
	for _, d := range gs.Denoms {
		if d.Denom == "" {
			return fmt.Errorf("empty denom")
		}
		if _, dup := supply[d.Denom]; dup {
			return fmt.Errorf("duplicate denom %s", d.Denom)
		}
		if d.Supply.IsNil() || d.Supply.IsNegative() {
			return fmt.Errorf("invalid supply for %s", d.Denom)
		}
		supply[d.Denom] = math.ZeroInt()
	}
	for _, b := range gs.Balances {
		total, ok := supply[b.Denom]
		if !ok {
			return fmt.Errorf("balance of unknown denom %s", b.Denom)
		}
		if b.Amount.IsNil() || b.Amount.IsNegative() {
			return fmt.Errorf("invalid balance for %s/%s", b.Address, b.Denom)
		}
		supply[b.Denom] = total.Add(b.Amount)
	}
	for _, d := range gs.Denoms {
		if !supply[d.Denom].Equal(d.Supply) {
			return fmt.Errorf("supply mismatch for %s: declared %s, balances %s", d.Denom, d.Supply, supply[d.Denom])
		}
	}
	return nil
}
