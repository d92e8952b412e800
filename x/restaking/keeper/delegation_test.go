package keeper_test

import (
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/lrt-vault/x/restaking/types"
)

func TestDelegateValidation(t *testing.T) {
	f := setup(t)
	f.deposit(t, alice, units(10))

	tests := []struct {
		name    string
		signer  string
		adapter string
		target  string
		amount  math.Int
		err     error
	}{
		{"not operator", alice, "sim", "op1", units(1), types.ErrUnauthorized},
		{"zero amount", operator, "sim", "op1", math.ZeroInt(), types.ErrZeroAmount},
		{"empty target", operator, "sim", "", units(1), types.ErrInvalidTarget},
		{"unknown adapter", operator, "nope", "op1", units(1), types.ErrAdapterNotRegistered},
		{"more than free", operator, "sim", "op1", units(11), types.ErrInsufficientFreeBalance},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.k.Delegate(f.ctx, tc.signer, tc.adapter, tc.target, tc.amount, nil)
			require.ErrorIs(t, err, tc.err)
		})
	}
	require.Equal(t, units(10), f.k.GetVaultState(f.ctx).FreeBalance)
}

func TestDelegateTargetCap(t *testing.T) {
	f := setup(t)
	f.deposit(t, alice, units(10))
	f.updateParams(t, func(p *types.Params) { p.MaxTargetPercent = math.LegacyNewDecWithPrec(5, 1) })

	_, err := f.k.Delegate(f.ctx, operator, "sim", "op1", units(6), nil)
	require.ErrorIs(t, err, types.ErrExceedsTargetCap)

	f.delegate(t, "op1", units(5))
	_, err = f.k.Delegate(f.ctx, operator, "sim", "op1", math.OneInt(), nil)
	require.ErrorIs(t, err, types.ErrExceedsTargetCap)
	f.delegate(t, "op2", units(5))
	f.checkInvariants(t)

	v := f.k.GetVaultState(f.ctx)
	require.Equal(t, units(10), v.TotalDelegated)
	require.True(t, v.FreeBalance.IsZero())
	require.Len(t, f.k.GetAllPositions(f.ctx), 2)
}

func TestDelegateKeepsFlashCapacity(t *testing.T) {
	f := setup(t)
	f.deposit(t, alice, units(10))
	f.updateParams(t, func(p *types.Params) { p.TargetFlashCapacity = math.LegacyNewDecWithPrec(2, 1) })

	_, err := f.k.Delegate(f.ctx, operator, "sim", "op1", units(9), nil)
	require.ErrorIs(t, err, types.ErrFlashCapacityBreach)
	f.delegate(t, "op1", units(8))
	require.Equal(t, units(2), f.k.FlashCapacity(f.ctx))
}

func TestDelegateDustStaysFree(t *testing.T) {
	f := setup(t)
	f.deposit(t, alice, units(1))

	actual, err := f.k.Delegate(f.ctx, operator, "dusty", "op1", math.NewInt(10_500), nil)
	require.NoError(t, err)
	require.Equal(t, math.NewInt(10_000), actual)

	v := f.k.GetVaultState(f.ctx)
	require.Equal(t, math.NewInt(10_000), v.TotalDelegated)
	require.Equal(t, units(1).SubRaw(10_000), v.FreeBalance)
	require.Equal(t, math.NewInt(10_000), f.k.GetPosition(f.ctx, "dusty", "op1").Amount)
	f.checkInvariants(t)
}

func TestUndelegateCappedAtPosition(t *testing.T) {
	f := setup(t)
	f.deposit(t, alice, units(10))
	f.delegate(t, "op1", units(4))

	_, _, err := f.k.Undelegate(f.ctx, operator, "sim", "op1", units(5), nil)
	require.ErrorIs(t, err, types.ErrInsufficientDelegatedAmount)
	_, _, err = f.k.Undelegate(f.ctx, operator, "sim", "op2", math.OneInt(), nil)
	require.ErrorIs(t, err, types.ErrInsufficientDelegatedAmount)
	_, _, err = f.k.Undelegate(f.ctx, alice, "sim", "op1", math.OneInt(), nil)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	// no requests queued: nothing to close
	_, closed, err := f.k.Undelegate(f.ctx, operator, "sim", "op1", units(4), nil)
	require.NoError(t, err)
	require.Zero(t, closed)

	v := f.k.GetVaultState(f.ctx)
	require.True(t, v.TotalDelegated.IsZero())
	require.Equal(t, units(4), v.InFlight)
	require.Empty(t, f.k.GetAllPositions(f.ctx))

	tickets := f.k.GetAllTickets(f.ctx)
	require.Len(t, tickets, 1)
	require.NotEmpty(t, tickets[0].ExternalID)
	require.Equal(t, uint64(1), tickets[0].MaturesAt)
	f.checkInvariants(t)
}

func TestUndelegateClosesEpochOnlyWhenCovered(t *testing.T) {
	f := setup(t)
	f.deposit(t, alice, units(10))
	f.delegate(t, "op1", units(10))
	f.withdraw(t, alice, units(6))

	_, closed, err := f.k.Undelegate(f.ctx, operator, "sim", "op1", units(4), nil)
	require.NoError(t, err)
	require.Zero(t, closed)
	e, _ := f.k.GetEpoch(f.ctx, 1)
	require.Equal(t, types.EpochStatusOpen, e.Status)

	_, closed, err = f.k.Undelegate(f.ctx, operator, "sim", "op1", units(2), nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), closed)

	e, _ = f.k.GetEpoch(f.ctx, 1)
	require.Equal(t, types.EpochStatusClosed, e.Status)
	require.Equal(t, units(6), e.ReservedAssets)
	require.True(t, e.ClosingRatio.Equal(math.LegacyOneDec()))

	// later requests land in the next epoch
	w := f.withdraw(t, alice, units(1))
	require.Equal(t, uint64(2), w.Epoch)
	f.checkInvariants(t)
}

func TestBatchDelegateIsAtomic(t *testing.T) {
	f := setup(t)
	f.deposit(t, alice, units(10))

	bad := &types.MsgBatchDelegate{
		Operator: operator,
		Adapters: []string{"sim", "sim"},
		Targets:  []string{"op1", "op2"},
		Amounts:  []string{"6000000", "5000000"},
	}
	cacheCtx, write := f.ctx.CacheContext()
	_, err := f.k.BatchDelegate(cacheCtx, bad)
	require.ErrorIs(t, err, types.ErrInsufficientFreeBalance)

	// the branch is dropped, so the first entry left no trace
	v := f.k.GetVaultState(f.ctx)
	require.Equal(t, units(10), v.FreeBalance)
	require.True(t, v.TotalDelegated.IsZero())
	stake, _ := f.sim.DelegatedBalance(f.ctx, "op1")
	require.True(t, stake.IsZero())
	require.Equal(t, units(10), f.assets(f.k.GetAddress()))

	_, err = f.k.BatchDelegate(f.ctx, &types.MsgBatchDelegate{
		Operator: operator,
		Adapters: []string{"sim"},
		Targets:  []string{"op1", "op2"},
		Amounts:  []string{"1"},
	})
	require.ErrorIs(t, err, types.ErrInvalidBatch)

	good := &types.MsgBatchDelegate{
		Operator: operator,
		Adapters: []string{"sim", "dusty"},
		Targets:  []string{"op1", "op2"},
		Amounts:  []string{"6000000", "3000500"},
		Data:     [][]byte{nil, []byte("memo")},
	}
	cacheCtx, write = f.ctx.CacheContext()
	actuals, err := f.k.BatchDelegate(cacheCtx, good)
	require.NoError(t, err)
	write()
	require.Len(t, actuals, 2)
	require.Equal(t, "6000000", actuals[0].String())
	require.Equal(t, "3000000", actuals[1].String())
	require.Equal(t, units(9), f.k.GetVaultState(f.ctx).TotalDelegated)
	f.checkInvariants(t)
}

func TestBatchUndelegate(t *testing.T) {
	f := setup(t)
	f.deposit(t, alice, units(10))
	f.delegate(t, "op1", units(5))
	f.delegate(t, "op2", units(5))
	f.withdraw(t, alice, units(7))

	resp, err := f.msgs.BatchUndelegate(f.ctx, &types.MsgBatchUndelegate{
		Operator: operator,
		Adapters: []string{"sim", "sim"},
		Targets:  []string{"op1", "op2"},
		Amounts:  []string{"5000000", "2000000"},
	})
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 2}, resp.TicketIDs)
	require.Equal(t, []uint64{1}, resp.ClosedEpochs)

	cacheCtx, _ := f.ctx.CacheContext()
	_, _, err = f.k.BatchUndelegate(cacheCtx, &types.MsgBatchUndelegate{
		Operator: operator,
		Adapters: []string{"sim", "sim"},
		Targets:  []string{"op2", "op2"},
		Amounts:  []string{"2000000", "2000000"},
	})
	require.ErrorIs(t, err, types.ErrInsufficientDelegatedAmount)
	require.Equal(t, units(3), f.k.GetPosition(f.ctx, "sim", "op2").Amount)
	f.checkInvariants(t)
}
