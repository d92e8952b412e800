package keeper

import (
	"context"

	"cosmossdk.io/math"

	"github.com/openalpha/lrt-vault/x/restaking/types"
)

// MsgServer defines the restaking MsgServer
type MsgServer struct {
	keeper *Keeper
}

// NewMsgServerImpl creates a new MsgServer instance
func NewMsgServerImpl(keeper *Keeper) *MsgServer {
	return &MsgServer{keeper: keeper}
}

// Deposit handles MsgDeposit
func (m *MsgServer) Deposit(ctx context.Context, msg *types.MsgDeposit) (*types.MsgDepositResponse, error) {
	amount, err := types.ParseAmount(msg.Amount)
	if err != nil {
		return nil, err
	}
	shares, ratio, err := m.keeper.Deposit(ctx, msg.Sender, msg.Receiver, amount)
	if err != nil {
		return nil, err
	}
	return &types.MsgDepositResponse{Shares: shares.String(), Ratio: ratio.String()}, nil
}

// Withdraw handles MsgWithdraw
func (m *MsgServer) Withdraw(ctx context.Context, msg *types.MsgWithdraw) (*types.MsgWithdrawResponse, error) {
	shares, err := types.ParseAmount(msg.Shares)
	if err != nil {
		return nil, err
	}
	w, err := m.keeper.Withdraw(ctx, msg.Sender, msg.Receiver, shares)
	if err != nil {
		return nil, err
	}
	return &types.MsgWithdrawResponse{
		WithdrawalID: w.ID,
		Epoch:        w.Epoch,
		OwedAssets:   w.OwedAssets.String(),
	}, nil
}

// FlashWithdraw handles MsgFlashWithdraw
func (m *MsgServer) FlashWithdraw(ctx context.Context, msg *types.MsgFlashWithdraw) (*types.MsgFlashWithdrawResponse, error) {
	shares, err := types.ParseAmount(msg.Shares)
	if err != nil {
		return nil, err
	}
	net, fee, err := m.keeper.FlashWithdraw(ctx, msg.Sender, msg.Receiver, shares)
	if err != nil {
		return nil, err
	}
	return &types.MsgFlashWithdrawResponse{Amount: net.String(), Fee: fee.String()}, nil
}

// Redeem handles MsgRedeem
func (m *MsgServer) Redeem(ctx context.Context, msg *types.MsgRedeem) (*types.MsgRedeemResponse, error) {
	amount, ids, err := m.keeper.Redeem(ctx, msg.Caller, msg.Beneficiary)
	if err != nil {
		return nil, err
	}
	return &types.MsgRedeemResponse{Amount: amount.String(), Withdrawals: ids}, nil
}

// Delegate handles MsgDelegate
func (m *MsgServer) Delegate(ctx context.Context, msg *types.MsgDelegate) (*types.MsgDelegateResponse, error) {
	amount, err := types.ParseAmount(msg.Amount)
	if err != nil {
		return nil, err
	}
	actual, err := m.keeper.Delegate(ctx, msg.Operator, msg.Adapter, msg.Target, amount, msg.Data)
	if err != nil {
		return nil, err
	}
	return &types.MsgDelegateResponse{Actual: []string{actual.String()}}, nil
}

// Undelegate handles MsgUndelegate
func (m *MsgServer) Undelegate(ctx context.Context, msg *types.MsgUndelegate) (*types.MsgUndelegateResponse, error) {
	amount, err := types.ParseAmount(msg.Amount)
	if err != nil {
		return nil, err
	}
	ticketID, closed, err := m.keeper.Undelegate(ctx, msg.Operator, msg.Adapter, msg.Target, amount, msg.Data)
	if err != nil {
		return nil, err
	}
	resp := &types.MsgUndelegateResponse{TicketIDs: []uint64{ticketID}}
	if closed != 0 {
		resp.ClosedEpochs = []uint64{closed}
	}
	return resp, nil
}

// BatchDelegate handles MsgBatchDelegate
func (m *MsgServer) BatchDelegate(ctx context.Context, msg *types.MsgBatchDelegate) (*types.MsgDelegateResponse, error) {
	actuals, err := m.keeper.BatchDelegate(ctx, msg)
	if err != nil {
		return nil, err
	}
	return &types.MsgDelegateResponse{Actual: intStrings(actuals)}, nil
}

// BatchUndelegate handles MsgBatchUndelegate
func (m *MsgServer) BatchUndelegate(ctx context.Context, msg *types.MsgBatchUndelegate) (*types.MsgUndelegateResponse, error) {
	tickets, closed, err := m.keeper.BatchUndelegate(ctx, msg)
	if err != nil {
		return nil, err
	}
	return &types.MsgUndelegateResponse{TicketIDs: tickets, ClosedEpochs: closed}, nil
}

// Claim handles MsgClaim
func (m *MsgServer) Claim(ctx context.Context, msg *types.MsgClaim) (*types.MsgClaimResponse, error) {
	res, err := m.keeper.Claim(ctx, msg.Operator, msg.Epoch, msg.Adapter, msg.Data)
	if err != nil {
		return nil, err
	}
	return &types.MsgClaimResponse{
		Claimed:        res.Claimed.String(),
		WrittenOff:     res.WrittenOff.String(),
		FulfilledEpoch: res.Fulfilled,
	}, nil
}

// SyncDelegations handles MsgSyncDelegations
func (m *MsgServer) SyncDelegations(ctx context.Context, msg *types.MsgSyncDelegations) (*types.MsgSyncDelegationsResponse, error) {
	delta, err := m.keeper.SyncDelegations(ctx, msg.Operator)
	if err != nil {
		return nil, err
	}
	return &types.MsgSyncDelegationsResponse{Delta: delta.String()}, nil
}

// SettleEpochs handles MsgSettleEpochs
func (m *MsgServer) SettleEpochs(ctx context.Context, msg *types.MsgSettleEpochs) (*types.MsgSettleEpochsResponse, error) {
	closed, fulfilled, err := m.keeper.SettleEpochs(ctx, msg.Operator)
	if err != nil {
		return nil, err
	}
	return &types.MsgSettleEpochsResponse{ClosedEpochs: closed, FulfilledEpochs: fulfilled}, nil
}

// UpdateParams handles MsgUpdateParams
func (m *MsgServer) UpdateParams(ctx context.Context, msg *types.MsgUpdateParams) (*types.MsgUpdateParamsResponse, error) {
	if err := m.keeper.UpdateParams(ctx, msg.Authority, msg.Params); err != nil {
		return nil, err
	}
	return &types.MsgUpdateParamsResponse{}, nil
}

func intStrings(xs []math.Int) []string {
	out := make([]string, len(xs))
	for i, x := range xs {
		out[i] = x.String()
	}
	return out
}
