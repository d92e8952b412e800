package types

import (
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Adapter wraps one external restaking protocol. Implementations must be
// deterministic and keep their own state in the same multistore as the vault
// so a failed operation rolls both back together.
type Adapter interface {
	// Delegate stakes amount with target and returns the amount actually accepted
	Delegate(ctx sdk.Context, target string, amount math.Int, data []byte) (math.Int, error)
	// Undelegate starts the protocol withdrawal of amount from target
	Undelegate(ctx sdk.Context, target string, amount math.Int, data []byte) (ClaimTicket, error)
	// Claim pulls every matured undelegation back to the vault and returns the amount moved
	Claim(ctx sdk.Context, data []byte) (math.Int, error)
	// PendingClaimable is the matured amount for target that Claim would pay out now
	PendingClaimable(ctx sdk.Context, target string) (math.Int, error)
	// PendingUndelegation is the amount for target still waiting for maturity
	PendingUndelegation(ctx sdk.Context, target string) (math.Int, error)
	// DelegatedBalance is the current value delegated to target, after slashing
	DelegatedBalance(ctx sdk.Context, target string) (math.Int, error)
}

// RatioFeed supplies the externally computed exchange ratio
type RatioFeed interface {
	GetRatio(ctx sdk.Context, tokenID string) (math.LegacyDec, error)
}

// BankKeeper moves the base asset and mints/burns the claim token
type BankKeeper interface {
	Send(ctx sdk.Context, denom, from, to string, amount math.Int) error
	Mint(ctx sdk.Context, minter, denom, to string, amount math.Int) error
	Burn(ctx sdk.Context, minter, denom, from string, amount math.Int) error
	Balance(ctx sdk.Context, denom, addr string) math.Int
	Supply(ctx sdk.Context, denom string) math.Int
}
