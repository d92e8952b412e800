package keeper

import (
	"context"
	"strconv"

	"cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/lrt-vault/x/restaking/types"
)

// ClaimResult summarises a claim
type ClaimResult struct {
	Claimed    math.Int
	WrittenOff math.Int
	Fulfilled  []uint64
}

// Claim pulls every matured undelegation of adapter back into free balance and
// attributes it to epochID first, then to older closed epochs. Calling it when
// nothing has matured is a no-op.
func (k *Keeper) Claim(ctx context.Context, operator string, epochID uint64, adapterName string, data []byte) (ClaimResult, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	result := ClaimResult{Claimed: math.ZeroInt(), WrittenOff: math.ZeroInt()}

	if err := k.requireOperator(sdkCtx, operator); err != nil {
		return result, err
	}
	adapter, err := k.Adapter(adapterName)
	if err != nil {
		return result, err
	}
	epoch, found := k.GetEpoch(sdkCtx, epochID)
	if !found {
		return result, errors.Wrapf(types.ErrEpochNotFound, "%d", epochID)
	}
	if epoch.Status == types.EpochStatusOpen {
		return result, errors.Wrapf(types.ErrEpochNotClosed, "%d", epochID)
	}

	tickets := k.GetAdapterTickets(sdkCtx, adapterName)
	var targets []string
	remaining := make(map[string]math.Int)
	for _, t := range tickets {
		if _, ok := remaining[t.Target]; !ok {
			targets = append(targets, t.Target)
			remaining[t.Target] = math.ZeroInt()
		}
		remaining[t.Target] = remaining[t.Target].Add(t.Remaining)
	}

	claimable := make(map[string]math.Int)
	writeOff := make(map[string]math.Int)
	for _, target := range targets {
		ready, err := adapter.PendingClaimable(sdkCtx, target)
		if err != nil {
			return result, errors.Wrapf(types.ErrAdapterFailed, "%s claimable %s: %s", adapterName, target, err)
		}
		waiting, err := adapter.PendingUndelegation(sdkCtx, target)
		if err != nil {
			return result, errors.Wrapf(types.ErrAdapterFailed, "%s pending %s: %s", adapterName, target, err)
		}
		if ready.IsNegative() || waiting.IsNegative() || ready.GT(remaining[target]) {
			return result, errors.Wrapf(types.ErrAdapterInconsistent,
				"%s/%s claimable %s, pending %s, in flight %s", adapterName, target, ready, waiting, remaining[target])
		}
		claimable[target] = ready
		result.Claimed = result.Claimed.Add(ready)

		lost := remaining[target].Sub(ready).Sub(waiting)
		if lost.IsPositive() {
			writeOff[target] = lost
			result.WrittenOff = result.WrittenOff.Add(lost)
		}
	}

	if result.Claimed.IsZero() && result.WrittenOff.IsZero() {
		return result, nil
	}

	// settle tickets oldest first per target
	for _, t := range tickets {
		take := math.MinInt(t.Remaining, claimable[t.Target])
		claimable[t.Target] = claimable[t.Target].Sub(take)
		t.Remaining = t.Remaining.Sub(take)
		if lost, ok := writeOff[t.Target]; ok && t.Remaining.IsPositive() {
			cut := math.MinInt(t.Remaining, lost)
			writeOff[t.Target] = lost.Sub(cut)
			t.Remaining = t.Remaining.Sub(cut)
		}
		k.SetTicket(sdkCtx, t)
	}

	v := k.GetVaultState(sdkCtx)
	v.InFlight = v.InFlight.Sub(result.Claimed).Sub(result.WrittenOff)
	v.FreeBalance = v.FreeBalance.Add(result.Claimed)
	v.CumulativeLoss = v.CumulativeLoss.Add(result.WrittenOff)
	k.SetVaultState(sdkCtx, v)

	if result.WrittenOff.IsPositive() {
		k.logger.Error("in-flight funds written off",
			"adapter", adapterName,
			"amount", result.WrittenOff.String(),
		)
	}

	k.attributeClaim(sdkCtx, epochID, result.Claimed)
	result.Fulfilled = k.settle(sdkCtx)

	if result.Claimed.IsPositive() {
		paid, err := adapter.Claim(sdkCtx, data)
		if err != nil {
			return result, errors.Wrapf(types.ErrAdapterFailed, "%s claim: %s", adapterName, err)
		}
		if paid.IsNil() || !paid.Equal(result.Claimed) {
			return result, errors.Wrapf(types.ErrAdapterInconsistent, "%s paid %v, expected %s", adapterName, paid, result.Claimed)
		}
	}

	v = k.GetVaultState(sdkCtx)
	sdkCtx.EventManager().EmitEvent(
		sdk.NewEvent(
			types.EventTypeClaim,
			append([]sdk.Attribute{
				sdk.NewAttribute(types.AttributeKeyAdapter, adapterName),
				sdk.NewAttribute(types.AttributeKeyEpoch, strconv.FormatUint(epochID, 10)),
				sdk.NewAttribute(types.AttributeKeyAmount, result.Claimed.String()),
				sdk.NewAttribute(types.AttributeKeyWrittenOff, result.WrittenOff.String()),
			}, vaultAttributes(v)...)...,
		),
	)

	return result, nil
}

// attributeClaim credits claimed funds to the named epoch, then to the other
// closed epochs oldest first, each capped at its deficit. Leftovers stay unreserved.
func (k *Keeper) attributeClaim(ctx sdk.Context, epochID uint64, amount math.Int) {
	if !amount.IsPositive() {
		return
	}
	v := k.GetVaultState(ctx)

	order := []uint64{epochID}
	for id := v.OldestUnfulfilledEpoch; id < v.CurrentEpoch; id++ {
		if id != epochID {
			order = append(order, id)
		}
	}

	for _, id := range order {
		if !amount.IsPositive() {
			break
		}
		e, found := k.GetEpoch(ctx, id)
		if !found || e.Status != types.EpochStatusClosed {
			continue
		}
		take := math.MinInt(amount, e.Deficit())
		if take.IsZero() {
			continue
		}
		e.ClaimedAssets = e.ClaimedAssets.Add(take)
		k.SetEpoch(ctx, e)
		v.PartiallyClaimed = v.PartiallyClaimed.Add(take)
		amount = amount.Sub(take)
	}
	k.SetVaultState(ctx, v)
}

// settle fulfils closed epochs. Oldest first, a deficit not backed by
// in-flight funds is covered from unreserved free balance until an epoch still
// waits for a claim. Then any closed epoch whose deficit is within dust
// tolerance is fulfilled wherever it sits in the queue.
func (k *Keeper) settle(ctx sdk.Context) []uint64 {
	params := k.GetParams(ctx)
	v := k.GetVaultState(ctx)
	var fulfilled []uint64

	for id := v.OldestUnfulfilledEpoch; id < v.CurrentEpoch; id++ {
		e := k.mustGetEpoch(ctx, id)
		if e.Status != types.EpochStatusClosed {
			continue
		}
		deficit := e.Deficit()
		shortfall := deficit.Sub(v.InFlight)
		if deficit.LTE(params.DustTolerance) {
			shortfall = deficit
		}
		if shortfall.IsPositive() {
			if v.UnreservedFree().LT(shortfall) {
				break
			}
			e.ClaimedAssets = e.ClaimedAssets.Add(shortfall)
			v.PartiallyClaimed = v.PartiallyClaimed.Add(shortfall)
		}
		if !e.Deficit().IsZero() {
			k.SetEpoch(ctx, e)
			break
		}
		k.fulfil(ctx, e, &v)
		fulfilled = append(fulfilled, e.ID)
	}

	for id := v.OldestUnfulfilledEpoch; id < v.CurrentEpoch; id++ {
		e := k.mustGetEpoch(ctx, id)
		if e.Status != types.EpochStatusClosed {
			continue
		}
		deficit := e.Deficit()
		if deficit.GT(params.DustTolerance) {
			continue
		}
		if deficit.IsPositive() {
			if v.UnreservedFree().LT(deficit) {
				continue
			}
			e.ClaimedAssets = e.ClaimedAssets.Add(deficit)
			v.PartiallyClaimed = v.PartiallyClaimed.Add(deficit)
		}
		k.fulfil(ctx, e, &v)
		fulfilled = append(fulfilled, e.ID)
	}

	for v.OldestUnfulfilledEpoch < v.CurrentEpoch && k.mustGetEpoch(ctx, v.OldestUnfulfilledEpoch).IsFulfilled() {
		v.OldestUnfulfilledEpoch++
	}
	k.SetVaultState(ctx, v)
	return fulfilled
}

// fulfil moves a fully claimed epoch into the redeem reserve
func (k *Keeper) fulfil(ctx sdk.Context, e types.WithdrawalEpoch, v *types.VaultState) {
	e.Status = types.EpochStatusFulfilled
	e.FulfilledAt = ctx.BlockTime().Unix()
	e.FulfilledHeight = ctx.BlockHeight()
	k.SetEpoch(ctx, e)

	v.PartiallyClaimed = v.PartiallyClaimed.Sub(e.ClaimedAssets)
	v.RedeemReserved = v.RedeemReserved.Add(e.ReservedAssets)

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			types.EventTypeEpochFulfilled,
			sdk.NewAttribute(types.AttributeKeyEpoch, strconv.FormatUint(e.ID, 10)),
			sdk.NewAttribute(types.AttributeKeyOwedAssets, e.ReservedAssets.String()),
		),
	)
	k.logger.Info("withdrawal epoch fulfilled", "epoch", e.ID, "reserved", e.ReservedAssets.String())
}

// SettleEpochs closes the current epoch when in-flight and unreserved free
// balance cover it, then fulfils whatever free balance can pay for. It serves
// vaults holding enough liquidity that no undelegation is needed.
func (k *Keeper) SettleEpochs(ctx context.Context, operator string) ([]uint64, []uint64, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	if err := k.requireOperator(sdkCtx, operator); err != nil {
		return nil, nil, err
	}

	v := k.GetVaultState(sdkCtx)
	var closed []uint64
	if id := k.maybeCloseEpoch(sdkCtx, v.InFlight.Add(v.UnreservedFree())); id != 0 {
		closed = append(closed, id)
	}
	return closed, k.settle(sdkCtx), nil
}
