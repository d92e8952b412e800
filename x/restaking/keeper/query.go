package keeper

import (
	"context"

	"cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/lrt-vault/x/restaking/types"
)

// QueryServer defines the restaking QueryServer
type QueryServer struct {
	keeper *Keeper
}

// NewQueryServerImpl creates a new QueryServer instance
func NewQueryServerImpl(keeper *Keeper) *QueryServer {
	return &QueryServer{keeper: keeper}
}

// Vault returns the ledger and derived figures
func (q *QueryServer) Vault(ctx context.Context) (*types.VaultSummary, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	v := q.keeper.GetVaultState(sdkCtx)
	return &types.VaultSummary{
		Vault:          v,
		GrossAssets:    v.GrossAssets(),
		Equity:         v.Equity(),
		UnreservedFree: v.UnreservedFree(),
		ShareSupply:    q.keeper.ShareSupply(sdkCtx),
		AdjustedRatio:  q.keeper.AdjustedRatio(sdkCtx),
		BackingRatio:   q.keeper.BackingRatio(sdkCtx),
		Adapters:       q.keeper.AdapterNames(),
		Params:         q.keeper.GetParams(sdkCtx),
	}, nil
}

// Ratio returns the ratio views and the last limit snapshots
func (q *QueryServer) Ratio(ctx context.Context, limit int) (*types.RatioInfo, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	info := &types.RatioInfo{
		Adjusted: q.keeper.AdjustedRatio(sdkCtx),
		Backing:  q.keeper.BackingRatio(sdkCtx),
		Inverse:  q.keeper.InverseRatio(sdkCtx),
		History:  q.keeper.GetSnapshots(sdkCtx, limit),
	}
	if raw, err := q.keeper.RawRatio(sdkCtx); err != nil {
		info.RawError = err.Error()
	} else {
		info.Raw = raw.String()
	}
	return info, nil
}

// Positions returns every delegation position
func (q *QueryServer) Positions(ctx context.Context) ([]types.DelegationPosition, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	return q.keeper.GetAllPositions(sdkCtx), nil
}

// Tickets returns the open undelegation tickets
func (q *QueryServer) Tickets(ctx context.Context) ([]types.UndelegationTicket, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	return q.keeper.GetAllTickets(sdkCtx), nil
}

// Epochs returns epochs oldest first with pagination
func (q *QueryServer) Epochs(ctx context.Context, offset, limit uint64) ([]types.WithdrawalEpoch, uint64, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	all := q.keeper.GetAllEpochs(sdkCtx)
	total := uint64(len(all))

	if offset >= total {
		return []types.WithdrawalEpoch{}, total, nil
	}
	end := offset + limit
	if end > total || limit == 0 {
		end = total
	}
	return all[offset:end], total, nil
}

// Epoch returns one epoch
func (q *QueryServer) Epoch(ctx context.Context, id uint64) (*types.WithdrawalEpoch, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	e, found := q.keeper.GetEpoch(sdkCtx, id)
	if !found {
		return nil, errors.Wrapf(types.ErrEpochNotFound, "%d", id)
	}
	return &e, nil
}

// UserWithdrawals returns the pending withdrawals owed to beneficiary
func (q *QueryServer) UserWithdrawals(ctx context.Context, beneficiary string) ([]types.PendingWithdrawal, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	return q.keeper.GetBeneficiaryWithdrawals(sdkCtx, beneficiary), nil
}

// Redeemable answers IsAbleToRedeem
func (q *QueryServer) Redeemable(ctx context.Context, beneficiary string) (*types.RedeemStatus, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	status := q.keeper.IsAbleToRedeem(sdkCtx, beneficiary)
	return &status, nil
}

// UserBalance returns a holder's shares and their value at the adjusted ratio
func (q *QueryServer) UserBalance(ctx context.Context, address string) (*types.UserBalance, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	params := q.keeper.GetParams(sdkCtx)
	shares := q.keeper.bank.Balance(sdkCtx, params.ShareDenom, address)

	value := math.ZeroInt()
	if supply := q.keeper.ShareSupply(sdkCtx); supply.IsPositive() {
		if equity := q.keeper.GetVaultState(sdkCtx).Equity(); equity.IsPositive() {
			value = shares.Mul(equity).Quo(supply)
		}
	}
	return &types.UserBalance{
		Address: address,
		Shares:  shares,
		Value:   value,
		Assets:  q.keeper.bank.Balance(sdkCtx, params.AssetDenom, address),
	}, nil
}

// Params returns the vault params
func (q *QueryServer) Params(ctx context.Context) (*types.Params, error) {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	params := q.keeper.GetParams(sdkCtx)
	return &params, nil
}
