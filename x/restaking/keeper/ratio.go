package keeper

import (
	"context"

	"cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/lrt-vault/x/restaking/types"
)

// ShareSupply returns the claim token supply, which already excludes shares burned by queued withdrawals
func (k *Keeper) ShareSupply(ctx sdk.Context) math.Int {
	return k.bank.Supply(ctx, k.GetParams(ctx).ShareDenom)
}

// RawRatio returns the ratio published by the feed
func (k *Keeper) RawRatio(ctx sdk.Context) (math.LegacyDec, error) {
	return k.ratioFeed.GetRatio(ctx, k.GetParams(ctx).RatioTokenID)
}

// bootstrapRatio prices shares while none are outstanding
func (k *Keeper) bootstrapRatio(ctx sdk.Context) math.LegacyDec {
	raw, err := k.RawRatio(ctx)
	if err != nil || !raw.IsPositive() {
		return math.LegacyOneDec()
	}
	return raw
}

// AdjustedRatio is assets per share computed from vault equity, i.e. net of
// every outstanding withdrawal obligation. It is the ratio used for new
// deposits and withdrawals.
func (k *Keeper) AdjustedRatio(ctx sdk.Context) math.LegacyDec {
	supply := k.ShareSupply(ctx)
	if supply.IsZero() {
		return k.bootstrapRatio(ctx)
	}
	v := k.GetVaultState(ctx)
	return math.LegacyNewDecFromInt(v.Equity()).QuoInt(supply)
}

// BackingRatio is the assets backing each share not yet paid out: gross assets
// less the fulfilled reserve, over outstanding shares plus shares queued in
// unfulfilled epochs.
func (k *Keeper) BackingRatio(ctx sdk.Context) math.LegacyDec {
	v := k.GetVaultState(ctx)
	shares := k.ShareSupply(ctx)
	for id := v.OldestUnfulfilledEpoch; id <= v.CurrentEpoch; id++ {
		if e, found := k.GetEpoch(ctx, id); found && !e.IsFulfilled() {
			shares = shares.Add(e.RequestedShares)
		}
	}
	if shares.IsZero() {
		return k.bootstrapRatio(ctx)
	}
	backing := v.GrossAssets().Sub(v.RedeemReserved)
	return math.LegacyNewDecFromInt(backing).QuoInt(shares)
}

// InverseRatio is BackingRatio expressed as shares per asset
func (k *Keeper) InverseRatio(ctx sdk.Context) math.LegacyDec {
	r := k.BackingRatio(ctx)
	if !r.IsPositive() {
		return math.LegacyZeroDec()
	}
	return math.LegacyOneDec().Quo(r)
}

// FlashCapacity is what flash withdrawals can pay out right now
func (k *Keeper) FlashCapacity(ctx sdk.Context) math.Int {
	return k.GetVaultState(ctx).UnreservedFree()
}

// checkRatio requires a fresh feed ratio close enough to the adjusted ratio.
// It returns the feed ratio.
func (k *Keeper) checkRatio(ctx sdk.Context) (math.LegacyDec, error) {
	raw, err := k.RawRatio(ctx)
	if err != nil {
		return math.LegacyDec{}, err
	}
	params := k.GetParams(ctx)
	if !params.MaxRatioDivergence.IsPositive() || k.ShareSupply(ctx).IsZero() {
		return raw, nil
	}
	adjusted := k.AdjustedRatio(ctx)
	if !adjusted.IsPositive() {
		return raw, nil
	}
	divergence := raw.Sub(adjusted).Abs().Quo(adjusted)
	if divergence.GT(params.MaxRatioDivergence) {
		return math.LegacyDec{}, errors.Wrapf(types.ErrRatioDivergence,
			"feed %s, vault %s, divergence %s > %s", raw, adjusted, divergence, params.MaxRatioDivergence)
	}
	return raw, nil
}

// SyncDelegations reconciles every position with the balance its adapter
// reports. Losses and gains land in equity, so they are borne by the shares
// outstanding now while queued withdrawals keep their frozen value.
func (k *Keeper) SyncDelegations(ctx context.Context, operator string) (math.Int, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	if err := k.requireOperator(sdkCtx, operator); err != nil {
		return math.Int{}, err
	}
	return k.syncDelegations(sdkCtx)
}

func (k *Keeper) syncDelegations(ctx sdk.Context) (math.Int, error) {
	v := k.GetVaultState(ctx)
	net := math.ZeroInt()

	for _, pos := range k.GetAllPositions(ctx) {
		adapter, err := k.Adapter(pos.Adapter)
		if err != nil {
			return math.Int{}, err
		}
		balance, err := adapter.DelegatedBalance(ctx, pos.Target)
		if err != nil {
			return math.Int{}, errors.Wrapf(types.ErrAdapterFailed, "%s/%s balance: %s", pos.Adapter, pos.Target, err)
		}
		if balance.IsNegative() {
			return math.Int{}, errors.Wrapf(types.ErrAdapterInconsistent, "%s/%s negative balance %s", pos.Adapter, pos.Target, balance)
		}
		delta := balance.Sub(pos.Amount)
		if delta.IsZero() {
			continue
		}

		if delta.IsNegative() {
			v.CumulativeLoss = v.CumulativeLoss.Add(delta.Neg())
			k.logger.Info("delegation loss recorded",
				"adapter", pos.Adapter,
				"target", pos.Target,
				"loss", delta.Neg().String(),
			)
		} else {
			v.CumulativeGain = v.CumulativeGain.Add(delta)
		}
		v.TotalDelegated = v.TotalDelegated.Add(delta)
		net = net.Add(delta)

		pos.Amount = balance
		k.SetPosition(ctx, pos)
	}

	if net.IsZero() {
		return net, nil
	}
	k.SetVaultState(ctx, v)

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			types.EventTypeSyncDelegations,
			append([]sdk.Attribute{sdk.NewAttribute(types.AttributeKeyDelta, net.String())}, vaultAttributes(v)...)...,
		),
	)
	return net, nil
}

// Hooks wires the vault to ratio feed updates
type Hooks struct {
	k *Keeper
}

// Hooks returns the ratio feed hooks of the vault
func (k *Keeper) Hooks() Hooks {
	return Hooks{k}
}

// AfterRatioUpdated resyncs delegations when the claim token ratio moves
func (h Hooks) AfterRatioUpdated(ctx sdk.Context, tokenID string) error {
	if tokenID != h.k.GetParams(ctx).RatioTokenID {
		return nil
	}
	_, err := h.k.syncDelegations(ctx)
	return err
}

func vaultAttributes(v types.VaultState) []sdk.Attribute {
	return []sdk.Attribute{
		sdk.NewAttribute(types.AttributeKeyFreeBalance, v.FreeBalance.String()),
		sdk.NewAttribute(types.AttributeKeyTotalDelegated, v.TotalDelegated.String()),
		sdk.NewAttribute(types.AttributeKeyInFlight, v.InFlight.String()),
	}
}
