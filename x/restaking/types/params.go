package types

import (
	"fmt"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Default denoms
const (
	DefaultAssetDenom = "uasset"
	DefaultShareDenom = "ulrt"
	DefaultRatioToken = "ulrt"
)

// Params holds the vault configuration
type Params struct {
	Operator   string `json:"operator"`
	AssetDenom string `json:"asset_denom"`
	ShareDenom string `json:"share_denom"`
	// RatioTokenID is the id under which the feed publishes the claim token ratio
	RatioTokenID string `json:"ratio_token_id"`

	// TargetFlashCapacity is the fraction of gross assets kept undelegated
	TargetFlashCapacity math.LegacyDec `json:"target_flash_capacity"`
	// MaxTargetPercent caps the fraction of gross assets delegated to one target
	MaxTargetPercent math.LegacyDec `json:"max_target_percent"`
	// FlashWithdrawFee is charged on instant withdrawals and stays in the vault
	FlashWithdrawFee math.LegacyDec `json:"flash_withdraw_fee"`
	// MaxRatioDivergence bounds |feed - vault| / vault on deposit and withdraw, zero disables it
	MaxRatioDivergence math.LegacyDec `json:"max_ratio_divergence"`

	// DustTolerance is the largest epoch shortfall covered from free balance on claim
	DustTolerance math.Int `json:"dust_tolerance"`
	MinDeposit    math.Int `json:"min_deposit"`

	MaxSnapshots uint64 `json:"max_snapshots"`
}

// DefaultParams returns default vault parameters
func DefaultParams() Params {
	return Params{
		AssetDenom:          DefaultAssetDenom,
		ShareDenom:          DefaultShareDenom,
		RatioTokenID:        DefaultRatioToken,
		TargetFlashCapacity: math.LegacyZeroDec(),
		MaxTargetPercent:    math.LegacyOneDec(),
		FlashWithdrawFee:    math.LegacyNewDecWithPrec(5, 3), // 0.5%
		MaxRatioDivergence:  math.LegacyZeroDec(),
		DustTolerance:       math.NewInt(1000),
		MinDeposit:          math.OneInt(),
		MaxSnapshots:        1000,
	}
}

// Validate validates the params
func (p Params) Validate() error {
	if p.Operator != "" {
		if _, err := sdk.AccAddressFromBech32(p.Operator); err != nil {
			return fmt.Errorf("invalid operator address: %w", err)
		}
	}
	if p.AssetDenom == "" || p.ShareDenom == "" || p.AssetDenom == p.ShareDenom {
		return fmt.Errorf("asset and share denoms must be set and distinct")
	}
	if p.RatioTokenID == "" {
		return fmt.Errorf("ratio token id must be set")
	}
	if err := validateFraction("target flash capacity", p.TargetFlashCapacity, true); err != nil {
		return err
	}
	if err := validateFraction("max target percent", p.MaxTargetPercent, false); err != nil {
		return err
	}
	if err := validateFraction("flash withdraw fee", p.FlashWithdrawFee, true); err != nil {
		return err
	}
	if p.MaxRatioDivergence.IsNil() || p.MaxRatioDivergence.IsNegative() {
		return fmt.Errorf("max ratio divergence must be non-negative")
	}
	if p.DustTolerance.IsNil() || p.DustTolerance.IsNegative() {
		return fmt.Errorf("dust tolerance must be non-negative")
	}
	if p.MinDeposit.IsNil() || !p.MinDeposit.IsPositive() {
		return fmt.Errorf("min deposit must be positive")
	}
	return nil
}

func validateFraction(name string, v math.LegacyDec, allowZero bool) error {
	if v.IsNil() || v.IsNegative() || v.GT(math.LegacyOneDec()) {
		return fmt.Errorf("%s must be within [0, 1]: %v", name, v)
	}
	if !allowZero && v.IsZero() {
		return fmt.Errorf("%s must be positive", name)
	}
	return nil
}
