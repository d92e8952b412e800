package keeper

import (
	"cosmossdk.io/errors"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/lrt-vault/x/restaking/types"
)

// InitGenesis loads a validated ledger snapshot
func (k *Keeper) InitGenesis(ctx sdk.Context, gs *types.GenesisState) error {
	if err := gs.Validate(); err != nil {
		return errors.Wrap(types.ErrInvalidGenesis, err.Error())
	}

	k.SetParams(ctx, gs.Params)
	k.SetVaultState(ctx, gs.Vault)
	for _, p := range gs.Positions {
		k.SetPosition(ctx, p)
	}
	for _, t := range gs.Tickets {
		k.SetTicket(ctx, t)
	}
	for _, e := range gs.Epochs {
		k.SetEpoch(ctx, e)
	}
	for _, w := range gs.Withdrawals {
		k.SetWithdrawal(ctx, w)
	}
	return nil
}

// ExportGenesis dumps the ledger
func (k *Keeper) ExportGenesis(ctx sdk.Context) *types.GenesisState {
	gs := &types.GenesisState{
		Params:      k.GetParams(ctx),
		Vault:       k.GetVaultState(ctx),
		Positions:   k.GetAllPositions(ctx),
		Tickets:     k.GetAllTickets(ctx),
		Epochs:      k.GetAllEpochs(ctx),
		Withdrawals: k.GetAllWithdrawals(ctx),
	}
	if gs.Positions == nil {
		gs.Positions = []types.DelegationPosition{}
	}
	if gs.Tickets == nil {
		gs.Tickets = []types.UndelegationTicket{}
	}
	if gs.Withdrawals == nil {
		gs.Withdrawals = []types.PendingWithdrawal{}
	}
	return gs
}
