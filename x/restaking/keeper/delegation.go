package keeper

import (
	"context"
	"strconv"

	"cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/lrt-vault/x/restaking/types"
)

// Delegate moves amount of unreserved free balance into target through adapter.
// The adapter may accept less than asked; the remainder stays free.
func (k *Keeper) Delegate(ctx context.Context, operator, adapterName, target string, amount math.Int, data []byte) (math.Int, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	if err := k.requireOperator(sdkCtx, operator); err != nil {
		return math.Int{}, err
	}
	return k.delegate(sdkCtx, adapterName, target, amount, data)
}

func (k *Keeper) delegate(ctx sdk.Context, adapterName, target string, amount math.Int, data []byte) (math.Int, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return math.Int{}, types.ErrZeroAmount
	}
	if target == "" {
		return math.Int{}, types.ErrInvalidTarget
	}
	adapter, err := k.Adapter(adapterName)
	if err != nil {
		return math.Int{}, err
	}

	params := k.GetParams(ctx)
	v := k.GetVaultState(ctx)
	available := v.UnreservedFree()
	if amount.GT(available) {
		return math.Int{}, errors.Wrapf(types.ErrInsufficientFreeBalance, "delegate %s, unreserved %s", amount, available)
	}

	gross := v.GrossAssets()
	floor := math.LegacyNewDecFromInt(gross).Mul(params.TargetFlashCapacity).Ceil().TruncateInt()
	if available.Sub(amount).LT(floor) {
		return math.Int{}, errors.Wrapf(types.ErrFlashCapacityBreach,
			"unreserved %s after delegation, floor %s", available.Sub(amount), floor)
	}

	pos := k.GetPosition(ctx, adapterName, target)
	share := math.LegacyNewDecFromInt(pos.Amount.Add(amount)).QuoInt(gross)
	if share.GT(params.MaxTargetPercent) {
		return math.Int{}, errors.Wrapf(types.ErrExceedsTargetCap,
			"%s/%s would hold %s of assets, cap %s", adapterName, target, share, params.MaxTargetPercent)
	}

	v.FreeBalance = v.FreeBalance.Sub(amount)
	k.SetVaultState(ctx, v)

	actual, err := adapter.Delegate(ctx, target, amount, data)
	if err != nil {
		return math.Int{}, errors.Wrapf(types.ErrAdapterFailed, "%s delegate: %s", adapterName, err)
	}
	if actual.IsNil() || actual.IsNegative() || actual.GT(amount) {
		return math.Int{}, errors.Wrapf(types.ErrAdapterInconsistent, "%s accepted %v of %s", adapterName, actual, amount)
	}

	v.FreeBalance = v.FreeBalance.Add(amount.Sub(actual))
	v.TotalDelegated = v.TotalDelegated.Add(actual)
	k.SetVaultState(ctx, v)
	pos.Amount = pos.Amount.Add(actual)
	k.SetPosition(ctx, pos)

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			types.EventTypeDelegate,
			append([]sdk.Attribute{
				sdk.NewAttribute(types.AttributeKeyAdapter, adapterName),
				sdk.NewAttribute(types.AttributeKeyTarget, target),
				sdk.NewAttribute(types.AttributeKeyAmount, amount.String()),
				sdk.NewAttribute(types.AttributeKeyActualAmount, actual.String()),
			}, vaultAttributes(v)...)...,
		),
	)

	return actual, nil
}

// Undelegate starts withdrawing amount from target and closes the current
// withdrawal epoch once in-flight funds cover it. It returns the ticket id and
// the epoch closed, zero when none was.
func (k *Keeper) Undelegate(ctx context.Context, operator, adapterName, target string, amount math.Int, data []byte) (uint64, uint64, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	if err := k.requireOperator(sdkCtx, operator); err != nil {
		return 0, 0, err
	}
	return k.undelegate(sdkCtx, adapterName, target, amount, data)
}

func (k *Keeper) undelegate(ctx sdk.Context, adapterName, target string, amount math.Int, data []byte) (uint64, uint64, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return 0, 0, types.ErrZeroAmount
	}
	if target == "" {
		return 0, 0, types.ErrInvalidTarget
	}
	adapter, err := k.Adapter(adapterName)
	if err != nil {
		return 0, 0, err
	}

	pos := k.GetPosition(ctx, adapterName, target)
	if amount.GT(pos.Amount) {
		return 0, 0, errors.Wrapf(types.ErrInsufficientDelegatedAmount,
			"%s/%s holds %s, requested %s", adapterName, target, pos.Amount, amount)
	}

	v := k.GetVaultState(ctx)
	pos.Amount = pos.Amount.Sub(amount)
	k.SetPosition(ctx, pos)
	v.TotalDelegated = v.TotalDelegated.Sub(amount)
	v.InFlight = v.InFlight.Add(amount)

	ticket := types.UndelegationTicket{
		ID:        v.NextTicketID,
		Adapter:   adapterName,
		Target:    target,
		Amount:    amount,
		Remaining: amount,
		Epoch:     v.CurrentEpoch,
		CreatedAt: ctx.BlockTime().Unix(),
		Height:    ctx.BlockHeight(),
	}
	v.NextTicketID++
	k.SetVaultState(ctx, v)

	closed := k.maybeCloseEpoch(ctx, v.InFlight)

	ext, err := adapter.Undelegate(ctx, target, amount, data)
	if err != nil {
		return 0, 0, errors.Wrapf(types.ErrAdapterFailed, "%s undelegate: %s", adapterName, err)
	}
	if ext.Amount.IsNil() || !ext.Amount.Equal(amount) {
		return 0, 0, errors.Wrapf(types.ErrAdapterInconsistent, "%s ticket for %v, requested %s", adapterName, ext.Amount, amount)
	}
	ticket.ExternalID = ext.ID
	ticket.MaturesAt = ext.MaturesAt
	k.SetTicket(ctx, ticket)

	v = k.GetVaultState(ctx)
	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			types.EventTypeUndelegate,
			append([]sdk.Attribute{
				sdk.NewAttribute(types.AttributeKeyAdapter, adapterName),
				sdk.NewAttribute(types.AttributeKeyTarget, target),
				sdk.NewAttribute(types.AttributeKeyAmount, amount.String()),
				sdk.NewAttribute(types.AttributeKeyTicketID, strconv.FormatUint(ticket.ID, 10)),
			}, vaultAttributes(v)...)...,
		),
	)

	return ticket.ID, closed, nil
}

// BatchDelegate applies every entry in order. Any failure fails the whole batch;
// the caller discards the branched store.
func (k *Keeper) BatchDelegate(ctx context.Context, msg *types.MsgBatchDelegate) ([]math.Int, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	if err := k.requireOperator(sdkCtx, msg.Operator); err != nil {
		return nil, err
	}
	if err := validateBatch(len(msg.Adapters), len(msg.Targets), len(msg.Amounts), msg.Data); err != nil {
		return nil, err
	}

	actuals := make([]math.Int, 0, len(msg.Adapters))
	for i := range msg.Adapters {
		amount, err := types.ParseAmount(msg.Amounts[i])
		if err != nil {
			return nil, errors.Wrapf(err, "entry %d", i)
		}
		actual, err := k.delegate(sdkCtx, msg.Adapters[i], msg.Targets[i], amount, msg.Entry(i))
		if err != nil {
			return nil, errors.Wrapf(err, "entry %d", i)
		}
		actuals = append(actuals, actual)
	}
	return actuals, nil
}

// BatchUndelegate applies every entry in order. Any failure fails the whole batch.
// It returns the ticket ids and the epochs closed along the way.
func (k *Keeper) BatchUndelegate(ctx context.Context, msg *types.MsgBatchUndelegate) ([]uint64, []uint64, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	if err := k.requireOperator(sdkCtx, msg.Operator); err != nil {
		return nil, nil, err
	}
	if err := validateBatch(len(msg.Adapters), len(msg.Targets), len(msg.Amounts), msg.Data); err != nil {
		return nil, nil, err
	}

	var tickets, closed []uint64
	for i := range msg.Adapters {
		amount, err := types.ParseAmount(msg.Amounts[i])
		if err != nil {
			return nil, nil, errors.Wrapf(err, "entry %d", i)
		}
		ticketID, epochID, err := k.undelegate(sdkCtx, msg.Adapters[i], msg.Targets[i], amount, msg.Entry(i))
		if err != nil {
			return nil, nil, errors.Wrapf(err, "entry %d", i)
		}
		tickets = append(tickets, ticketID)
		if epochID != 0 {
			closed = append(closed, epochID)
		}
	}
	return tickets, closed, nil
}

func validateBatch(adapters, targets, amounts int, data [][]byte) error {
	if adapters == 0 || targets != adapters || amounts != adapters || (data != nil && len(data) != adapters) {
		return errors.Wrapf(types.ErrInvalidBatch, "adapters %d, targets %d, amounts %d, data %d",
			adapters, targets, amounts, len(data))
	}
	return nil
}

// maybeCloseEpoch closes the current epoch when coverage, net of what older
// closed epochs still wait for, reaches its requested assets. Returns the id
// of the closed epoch or zero.
func (k *Keeper) maybeCloseEpoch(ctx sdk.Context, coverage math.Int) uint64 {
	v := k.GetVaultState(ctx)
	current := k.mustGetEpoch(ctx, v.CurrentEpoch)
	if current.Requests == 0 {
		return 0
	}
	for id := v.OldestUnfulfilledEpoch; id < v.CurrentEpoch; id++ {
		if e, found := k.GetEpoch(ctx, id); found && !e.IsFulfilled() {
			coverage = coverage.Sub(e.Deficit())
		}
	}
	if coverage.LT(current.RequestedAssets) {
		return 0
	}
	k.closeEpoch(ctx, current)
	return current.ID
}

// closeEpoch fixes the reserve of the current epoch at its frozen owed total and opens the next one
func (k *Keeper) closeEpoch(ctx sdk.Context, e types.WithdrawalEpoch) {
	e.Status = types.EpochStatusClosed
	e.ReservedAssets = e.RequestedAssets
	e.ClosingRatio = k.AdjustedRatio(ctx)
	e.ClosedAt = ctx.BlockTime().Unix()
	e.ClosedHeight = ctx.BlockHeight()
	k.SetEpoch(ctx, e)

	v := k.GetVaultState(ctx)
	v.CurrentEpoch = e.ID + 1
	k.SetVaultState(ctx, v)
	k.SetEpoch(ctx, types.NewWithdrawalEpoch(v.CurrentEpoch))

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			types.EventTypeEpochClosed,
			sdk.NewAttribute(types.AttributeKeyEpoch, strconv.FormatUint(e.ID, 10)),
			sdk.NewAttribute(types.AttributeKeyShares, e.RequestedShares.String()),
			sdk.NewAttribute(types.AttributeKeyOwedAssets, e.ReservedAssets.String()),
			sdk.NewAttribute(types.AttributeKeyRatio, e.ClosingRatio.String()),
		),
	)

	k.logger.Info("withdrawal epoch closed",
		"epoch", e.ID,
		"reserved", e.ReservedAssets.String(),
		"requests", e.Requests,
	)
}
