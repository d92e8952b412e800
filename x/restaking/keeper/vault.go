package keeper

import (
	"context"
	"strconv"

	"cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/lrt-vault/x/restaking/types"
)

// Deposit pulls amount of the base asset from sender and mints shares to receiver
// at the adjusted ratio. It returns the minted shares and the ratio applied.
func (k *Keeper) Deposit(ctx context.Context, sender, receiver string, amount math.Int) (math.Int, math.LegacyDec, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	params := k.GetParams(sdkCtx)

	if amount.IsNil() || !amount.IsPositive() {
		return math.Int{}, math.LegacyDec{}, types.ErrZeroAmount
	}
	if amount.LT(params.MinDeposit) {
		return math.Int{}, math.LegacyDec{}, errors.Wrapf(types.ErrBelowMinDeposit, "%s < %s", amount, params.MinDeposit)
	}

	raw, err := k.checkRatio(sdkCtx)
	if err != nil {
		return math.Int{}, math.LegacyDec{}, err
	}

	v := k.GetVaultState(sdkCtx)
	supply := k.ShareSupply(sdkCtx)
	equity := v.Equity()
	if equity.IsNegative() || (supply.IsPositive() && !equity.IsPositive()) {
		return math.Int{}, math.LegacyDec{}, errors.Wrapf(types.ErrVaultInsolvent, "equity %s, supply %s", equity, supply)
	}

	bootstrap := raw
	if !bootstrap.IsPositive() {
		bootstrap = math.LegacyOneDec()
	}
	if supply.IsZero() && equity.IsPositive() {
		// equity left after every holder exited stays with the vault under
		// locked shares so the next depositor pays the bootstrap ratio for it
		locked := math.LegacyNewDecFromInt(equity).Quo(bootstrap).TruncateInt()
		if locked.IsPositive() {
			if err := k.bank.Mint(sdkCtx, k.address, params.ShareDenom, k.address, locked); err != nil {
				return math.Int{}, math.LegacyDec{}, err
			}
			k.logger.Info("residual equity locked", "equity", equity.String(), "shares", locked.String())
			supply = locked
		}
	}

	var shares math.Int
	var ratio math.LegacyDec
	if supply.IsZero() {
		ratio = bootstrap
		shares = math.LegacyNewDecFromInt(amount).Quo(ratio).TruncateInt()
	} else {
		ratio = math.LegacyNewDecFromInt(equity).QuoInt(supply)
		shares = amount.Mul(supply).Quo(equity)
	}
	if !shares.IsPositive() {
		return math.Int{}, math.LegacyDec{}, errors.Wrapf(types.ErrZeroShares, "%s at ratio %s", amount, ratio)
	}

	v.FreeBalance = v.FreeBalance.Add(amount)
	v.TotalDeposited = v.TotalDeposited.Add(amount)
	v.CumulativeIn = v.CumulativeIn.Add(amount)
	k.SetVaultState(sdkCtx, v)

	if err := k.bank.Send(sdkCtx, params.AssetDenom, sender, k.address, amount); err != nil {
		return math.Int{}, math.LegacyDec{}, err
	}
	if err := k.bank.Mint(sdkCtx, k.address, params.ShareDenom, receiver, shares); err != nil {
		return math.Int{}, math.LegacyDec{}, err
	}

	sdkCtx.EventManager().EmitEvent(
		sdk.NewEvent(
			types.EventTypeDeposit,
			append([]sdk.Attribute{
				sdk.NewAttribute(types.AttributeKeySender, sender),
				sdk.NewAttribute(types.AttributeKeyReceiver, receiver),
				sdk.NewAttribute(types.AttributeKeyAmount, amount.String()),
				sdk.NewAttribute(types.AttributeKeyShares, shares.String()),
				sdk.NewAttribute(types.AttributeKeyRatio, ratio.String()),
			}, vaultAttributes(v)...)...,
		),
	)

	return shares, ratio, nil
}

// Withdraw burns shares from sender and queues a withdrawal for receiver in the
// current epoch. The owed amount is frozen at the ratio in effect now.
func (k *Keeper) Withdraw(ctx context.Context, sender, receiver string, shares math.Int) (types.PendingWithdrawal, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	params := k.GetParams(sdkCtx)

	if shares.IsNil() || !shares.IsPositive() {
		return types.PendingWithdrawal{}, types.ErrZeroAmount
	}
	if balance := k.bank.Balance(sdkCtx, params.ShareDenom, sender); balance.LT(shares) {
		return types.PendingWithdrawal{}, errors.Wrapf(types.ErrInsufficientShares, "have %s, want %s", balance, shares)
	}
	if _, err := k.checkRatio(sdkCtx); err != nil {
		return types.PendingWithdrawal{}, err
	}

	v := k.GetVaultState(sdkCtx)
	supply := k.ShareSupply(sdkCtx)
	equity := v.Equity()
	if !equity.IsPositive() {
		return types.PendingWithdrawal{}, errors.Wrapf(types.ErrVaultInsolvent, "equity %s", equity)
	}

	owed := shares.Mul(equity).Quo(supply)
	if !owed.IsPositive() {
		return types.PendingWithdrawal{}, errors.Wrapf(types.ErrZeroAmount, "%s shares are worth nothing", shares)
	}
	principal := v.TotalDeposited.Sub(v.PendingPrincipal).Mul(shares).Quo(supply)

	epoch := k.mustGetEpoch(sdkCtx, v.CurrentEpoch)
	w := types.PendingWithdrawal{
		ID:          v.NextWithdrawalID,
		Epoch:       epoch.ID,
		Requester:   sender,
		Beneficiary: receiver,
		Shares:      shares,
		OwedAssets:  owed,
		Principal:   principal,
		RequestedAt: sdkCtx.BlockTime().Unix(),
		Height:      sdkCtx.BlockHeight(),
	}
	k.SetWithdrawal(sdkCtx, w)

	epoch.RequestedShares = epoch.RequestedShares.Add(shares)
	epoch.RequestedAssets = epoch.RequestedAssets.Add(owed)
	epoch.Requests++
	k.SetEpoch(sdkCtx, epoch)

	v.NextWithdrawalID++
	v.PendingObligations = v.PendingObligations.Add(owed)
	v.PendingPrincipal = v.PendingPrincipal.Add(principal)
	k.SetVaultState(sdkCtx, v)

	if err := k.bank.Burn(sdkCtx, k.address, params.ShareDenom, sender, shares); err != nil {
		return types.PendingWithdrawal{}, err
	}

	sdkCtx.EventManager().EmitEvent(
		sdk.NewEvent(
			types.EventTypeWithdraw,
			sdk.NewAttribute(types.AttributeKeySender, sender),
			sdk.NewAttribute(types.AttributeKeyBeneficiary, receiver),
			sdk.NewAttribute(types.AttributeKeyWithdrawalID, strconv.FormatUint(w.ID, 10)),
			sdk.NewAttribute(types.AttributeKeyEpoch, strconv.FormatUint(w.Epoch, 10)),
			sdk.NewAttribute(types.AttributeKeyShares, shares.String()),
			sdk.NewAttribute(types.AttributeKeyOwedAssets, owed.String()),
		),
	)

	return w, nil
}

// FlashWithdraw burns shares and pays receiver immediately from unreserved free
// balance, less the flash fee. The fee stays in the vault.
func (k *Keeper) FlashWithdraw(ctx context.Context, sender, receiver string, shares math.Int) (math.Int, math.Int, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	params := k.GetParams(sdkCtx)

	if shares.IsNil() || !shares.IsPositive() {
		return math.Int{}, math.Int{}, types.ErrZeroAmount
	}
	if balance := k.bank.Balance(sdkCtx, params.ShareDenom, sender); balance.LT(shares) {
		return math.Int{}, math.Int{}, errors.Wrapf(types.ErrInsufficientShares, "have %s, want %s", balance, shares)
	}
	if _, err := k.checkRatio(sdkCtx); err != nil {
		return math.Int{}, math.Int{}, err
	}

	v := k.GetVaultState(sdkCtx)
	supply := k.ShareSupply(sdkCtx)
	equity := v.Equity()
	if !equity.IsPositive() {
		return math.Int{}, math.Int{}, errors.Wrapf(types.ErrVaultInsolvent, "equity %s", equity)
	}

	gross := shares.Mul(equity).Quo(supply)
	fee := math.LegacyNewDecFromInt(gross).Mul(params.FlashWithdrawFee).TruncateInt()
	net := gross.Sub(fee)
	if !net.IsPositive() {
		return math.Int{}, math.Int{}, errors.Wrapf(types.ErrZeroAmount, "%s shares are worth nothing", shares)
	}
	if available := v.UnreservedFree(); net.GT(available) {
		return math.Int{}, math.Int{}, errors.Wrapf(types.ErrInsufficientFlashCapacity, "need %s, available %s", net, available)
	}
	principal := v.TotalDeposited.Sub(v.PendingPrincipal).Mul(shares).Quo(supply)

	v.FreeBalance = v.FreeBalance.Sub(net)
	v.TotalDeposited = v.TotalDeposited.Sub(principal)
	v.CumulativeOut = v.CumulativeOut.Add(net)
	k.SetVaultState(sdkCtx, v)

	if err := k.bank.Burn(sdkCtx, k.address, params.ShareDenom, sender, shares); err != nil {
		return math.Int{}, math.Int{}, err
	}
	if err := k.bank.Send(sdkCtx, params.AssetDenom, k.address, receiver, net); err != nil {
		return math.Int{}, math.Int{}, err
	}

	sdkCtx.EventManager().EmitEvent(
		sdk.NewEvent(
			types.EventTypeFlashWithdraw,
			append([]sdk.Attribute{
				sdk.NewAttribute(types.AttributeKeySender, sender),
				sdk.NewAttribute(types.AttributeKeyReceiver, receiver),
				sdk.NewAttribute(types.AttributeKeyShares, shares.String()),
				sdk.NewAttribute(types.AttributeKeyAmount, net.String()),
				sdk.NewAttribute(types.AttributeKeyFee, fee.String()),
			}, vaultAttributes(v)...)...,
		),
	)

	return net, fee, nil
}

// Redeem pays beneficiary every pending withdrawal whose epoch is fulfilled.
// Anyone may call it on the beneficiary's behalf.
func (k *Keeper) Redeem(ctx context.Context, caller, beneficiary string) (math.Int, []uint64, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	params := k.GetParams(sdkCtx)

	pending := k.GetBeneficiaryWithdrawals(sdkCtx, beneficiary)
	if len(pending) == 0 {
		return math.Int{}, nil, errors.Wrapf(types.ErrNoPendingWithdrawal, "%s", beneficiary)
	}

	ready, owed, principal := k.fulfilledWithdrawals(sdkCtx, pending)
	if len(ready) == 0 {
		return math.Int{}, nil, errors.Wrapf(types.ErrEpochNotClaimable, "oldest request waits on epoch %d", pending[0].Epoch)
	}

	v := k.GetVaultState(sdkCtx)
	if v.FreeBalance.LT(owed) || v.RedeemReserved.LT(owed) {
		return math.Int{}, nil, errors.Wrapf(types.ErrInsufficientFreeBalance,
			"owed %s, free %s, reserved %s", owed, v.FreeBalance, v.RedeemReserved)
	}

	ids := make([]uint64, 0, len(ready))
	for _, w := range ready {
		k.DeleteWithdrawal(sdkCtx, w)
		ids = append(ids, w.ID)
	}

	v.FreeBalance = v.FreeBalance.Sub(owed)
	v.RedeemReserved = v.RedeemReserved.Sub(owed)
	v.PendingObligations = v.PendingObligations.Sub(owed)
	v.TotalDeposited = v.TotalDeposited.Sub(principal)
	v.PendingPrincipal = v.PendingPrincipal.Sub(principal)
	v.CumulativeOut = v.CumulativeOut.Add(owed)
	k.SetVaultState(sdkCtx, v)

	if err := k.bank.Send(sdkCtx, params.AssetDenom, k.address, beneficiary, owed); err != nil {
		return math.Int{}, nil, err
	}

	sdkCtx.EventManager().EmitEvent(
		sdk.NewEvent(
			types.EventTypeRedeem,
			append([]sdk.Attribute{
				sdk.NewAttribute(types.AttributeKeySender, caller),
				sdk.NewAttribute(types.AttributeKeyBeneficiary, beneficiary),
				sdk.NewAttribute(types.AttributeKeyAmount, owed.String()),
			}, vaultAttributes(v)...)...,
		),
	)

	k.logger.Info("withdrawals redeemed",
		"beneficiary", beneficiary,
		"amount", owed.String(),
		"count", len(ids),
	)

	return owed, ids, nil
}

// IsAbleToRedeem reports whether Redeem would succeed for beneficiary now
func (k *Keeper) IsAbleToRedeem(ctx sdk.Context, beneficiary string) types.RedeemStatus {
	status := types.RedeemStatus{Redeemable: math.ZeroInt(), Pending: math.ZeroInt()}

	pending := k.GetBeneficiaryWithdrawals(ctx, beneficiary)
	status.Withdrawals = len(pending)
	if len(pending) == 0 {
		status.Reason = types.RedeemReasonNoPending
		return status
	}

	ready, owed, _ := k.fulfilledWithdrawals(ctx, pending)
	status.Redeemable = owed
	for _, w := range pending {
		status.Pending = status.Pending.Add(w.OwedAssets)
	}
	status.Pending = status.Pending.Sub(owed)

	if len(ready) == 0 {
		status.Reason = types.RedeemReasonEpochNotFulfilled
		return status
	}
	v := k.GetVaultState(ctx)
	if v.FreeBalance.LT(owed) || v.RedeemReserved.LT(owed) {
		status.Reason = types.RedeemReasonReserveInsufficient
		return status
	}
	status.Able = true
	return status
}

// fulfilledWithdrawals filters pending to those whose epoch is fulfilled and sums their owed assets and principal
func (k *Keeper) fulfilledWithdrawals(ctx sdk.Context, pending []types.PendingWithdrawal) ([]types.PendingWithdrawal, math.Int, math.Int) {
	owed := math.ZeroInt()
	principal := math.ZeroInt()
	var ready []types.PendingWithdrawal
	fulfilled := make(map[uint64]bool)

	for _, w := range pending {
		ok, seen := fulfilled[w.Epoch]
		if !seen {
			e, found := k.GetEpoch(ctx, w.Epoch)
			ok = found && e.IsFulfilled()
			fulfilled[w.Epoch] = ok
		}
		if !ok {
			continue
		}
		ready = append(ready, w)
		owed = owed.Add(w.OwedAssets)
		principal = principal.Add(w.Principal)
	}
	return ready, owed, principal
}
