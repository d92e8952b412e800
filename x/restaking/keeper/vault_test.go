package keeper_test

import (
	"testing"

	"cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/lrt-vault/x/restaking/keeper"
	"github.com/openalpha/lrt-vault/x/restaking/types"
)

// deposit 10, delegate 10, withdraw everything, undelegate 10, claim after
// maturity and redeem 10 with the ratio pinned at 1
func TestDepositDelegateWithdrawClaimRedeem(t *testing.T) {
	f := setup(t)
	one := math.LegacyOneDec()

	shares := f.deposit(t, alice, units(10))
	require.Equal(t, units(10), shares)
	require.True(t, f.k.AdjustedRatio(f.ctx).Equal(one))
	f.checkInvariants(t)

	f.delegate(t, "op1", units(10))
	require.True(t, f.k.AdjustedRatio(f.ctx).Equal(one))
	f.checkInvariants(t)

	w := f.withdraw(t, alice, shares)
	require.Equal(t, units(10), w.OwedAssets)
	require.Equal(t, uint64(1), w.Epoch)
	require.True(t, f.k.AdjustedRatio(f.ctx).Equal(one))
	f.checkInvariants(t)

	_, _, err := f.k.Redeem(f.ctx, bob, alice)
	require.ErrorIs(t, err, types.ErrEpochNotClaimable)

	ticket, closed, err := f.k.Undelegate(f.ctx, operator, "sim", "op1", units(10), nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), ticket)
	require.Equal(t, uint64(1), closed)
	require.Equal(t, uint64(2), f.k.GetVaultState(f.ctx).CurrentEpoch)
	f.checkInvariants(t)

	// nothing matured yet
	res, err := f.k.Claim(f.ctx, operator, 1, "sim", nil)
	require.NoError(t, err)
	require.True(t, res.Claimed.IsZero())
	require.Empty(t, res.Fulfilled)
	require.Equal(t, types.RedeemReasonEpochNotFulfilled, f.k.IsAbleToRedeem(f.ctx, alice).Reason)

	f.sim.AdvanceEpoch(f.ctx)
	res, err = f.k.Claim(f.ctx, operator, 1, "sim", nil)
	require.NoError(t, err)
	require.Equal(t, units(10), res.Claimed)
	require.Equal(t, []uint64{1}, res.Fulfilled)
	f.checkInvariants(t)

	status := f.k.IsAbleToRedeem(f.ctx, alice)
	require.True(t, status.Able)
	require.Equal(t, units(10), status.Redeemable)

	// relayed by bob on alice's behalf
	amount, ids, err := f.k.Redeem(f.ctx, bob, alice)
	require.NoError(t, err)
	require.Equal(t, units(10), amount)
	require.Equal(t, []uint64{w.ID}, ids)
	require.Equal(t, units(100), f.assets(alice))
	require.True(t, f.k.AdjustedRatio(f.ctx).Equal(one))
	f.checkInvariants(t)

	v := f.k.GetVaultState(f.ctx)
	require.True(t, v.FreeBalance.IsZero())
	require.True(t, v.TotalDeposited.IsZero())
	require.True(t, v.PendingObligations.IsZero())
	require.True(t, v.RedeemReserved.IsZero())

	// claiming a fulfilled epoch again is a no-op
	res, err = f.k.Claim(f.ctx, operator, 1, "sim", nil)
	require.NoError(t, err)
	require.True(t, res.Claimed.IsZero())

	_, _, err = f.k.Redeem(f.ctx, bob, alice)
	require.ErrorIs(t, err, types.ErrNoPendingWithdrawal)
}

// two depositors, one early withdrawal settled, a second queued, then a 10%
// slash on the remaining delegation
func TestSlashIsBorneByOutstandingShares(t *testing.T) {
	f := setup(t)

	f.deposit(t, alice, units(5))
	f.deposit(t, bob, units(5))
	f.delegate(t, "op1", units(10))

	wa := f.withdraw(t, alice, units(2))
	require.Equal(t, units(2), wa.OwedAssets)
	_, closed, err := f.k.Undelegate(f.ctx, operator, "sim", "op1", units(2), nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), closed)
	f.sim.AdvanceEpoch(f.ctx)
	res, err := f.k.Claim(f.ctx, operator, 1, "sim", nil)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, res.Fulfilled)

	wb := f.withdraw(t, bob, units(2))
	require.Equal(t, units(2), wb.OwedAssets)
	require.Equal(t, uint64(2), wb.Epoch)
	f.checkInvariants(t)

	slashed, err := f.sim.Slash(f.ctx, "op1", math.LegacyNewDecWithPrec(1, 1))
	require.NoError(t, err)
	require.Equal(t, math.NewInt(800_000), slashed)

	// a ratio push resyncs the ledger
	require.NoError(t, f.k.Hooks().AfterRatioUpdated(f.ctx, types.DefaultRatioToken))
	v := f.k.GetVaultState(f.ctx)
	require.Equal(t, math.NewInt(7_200_000), v.TotalDelegated)
	require.Equal(t, math.NewInt(800_000), v.CumulativeLoss)
	f.checkInvariants(t)

	// 7.2 backing 8 claimed shares
	require.InDelta(t, 1.1111, f.k.InverseRatio(f.ctx).MustFloat64(), 1e-4)
	require.InDelta(t, 0.9, f.k.BackingRatio(f.ctx).MustFloat64(), 1e-9)
	// 5.2 of equity across 6 outstanding shares
	adjusted := f.k.AdjustedRatio(f.ctx)
	require.True(t, adjusted.LT(math.LegacyOneDec()))
	require.InDelta(t, 5.2/6, adjusted.MustFloat64(), 1e-9)

	// queued withdrawals keep their frozen value
	got, _ := f.k.GetWithdrawal(f.ctx, wb.ID)
	require.Equal(t, units(2), got.OwedAssets)

	_, closed, err = f.k.Undelegate(f.ctx, operator, "sim", "op1", units(2), nil)
	require.NoError(t, err)
	require.Equal(t, uint64(2), closed)
	f.sim.AdvanceEpoch(f.ctx)
	res, err = f.k.Claim(f.ctx, operator, 2, "sim", nil)
	require.NoError(t, err)
	require.Equal(t, []uint64{2}, res.Fulfilled)

	paidA, _, err := f.k.Redeem(f.ctx, alice, alice)
	require.NoError(t, err)
	paidB, _, err := f.k.Redeem(f.ctx, bob, bob)
	require.NoError(t, err)
	require.Equal(t, units(2), paidA)
	require.Equal(t, units(2), paidB)
	f.checkInvariants(t)

	// the remaining 3 shares each are worth less than what was paid in
	for _, who := range []string{alice, bob} {
		bal, err := f.query.UserBalance(f.ctx, who)
		require.NoError(t, err)
		require.Equal(t, units(3), bal.Shares)
		require.Equal(t, math.NewInt(2_600_000), bal.Value)
	}
}

func TestNewDepositsPriceInTheLoss(t *testing.T) {
	f := setup(t)
	f.deposit(t, alice, units(10))
	f.delegate(t, "op1", units(10))

	_, err := f.sim.Slash(f.ctx, "op1", math.LegacyNewDecWithPrec(2, 1))
	require.NoError(t, err)
	delta, err := f.k.SyncDelegations(f.ctx, operator)
	require.NoError(t, err)
	require.Equal(t, units(-2), delta)

	// 8 of equity, 10 shares: a deposit of 8 mints 10
	shares := f.deposit(t, bob, units(8))
	require.Equal(t, units(10), shares)
	f.checkInvariants(t)

	_, err = f.k.SyncDelegations(f.ctx, alice)
	require.ErrorIs(t, err, types.ErrUnauthorized)
}

func TestConservationAndMonotonicRatio(t *testing.T) {
	f := setup(t)
	last := f.k.AdjustedRatio(f.ctx)

	step := func(name string, op func()) {
		op()
		f.checkInvariants(t)
		ratio := f.k.AdjustedRatio(f.ctx)
		require.Falsef(t, ratio.LT(last), "%s lowered the ratio from %s to %s", name, last, ratio)
		last = ratio

		v := f.k.GetVaultState(f.ctx)
		held := v.FreeBalance.Add(v.TotalDelegated).Add(v.InFlight)
		require.Equal(t, v.CumulativeIn.Sub(v.CumulativeOut), held, name)
	}

	step("deposit alice", func() { f.deposit(t, alice, units(20)) })
	step("deposit bob", func() { f.deposit(t, bob, math.NewInt(7_777_777)) })
	step("delegate", func() { f.delegate(t, "op1", units(15)) })
	step("flash withdraw", func() {
		_, _, err := f.k.FlashWithdraw(f.ctx, bob, bob, units(3))
		require.NoError(t, err)
	})
	step("withdraw", func() { f.withdraw(t, alice, math.NewInt(4_321_000)) })
	step("deposit again", func() { f.deposit(t, bob, math.NewInt(1_234_567)) })
	step("undelegate", func() {
		_, _, err := f.k.Undelegate(f.ctx, operator, "sim", "op1", units(5), nil)
		require.NoError(t, err)
	})
	step("claim", func() {
		f.sim.AdvanceEpoch(f.ctx)
		_, err := f.k.Claim(f.ctx, operator, 1, "sim", nil)
		require.NoError(t, err)
	})
	step("redeem", func() {
		_, _, err := f.k.Redeem(f.ctx, alice, alice)
		require.NoError(t, err)
	})
}

func TestRoundTripNeutrality(t *testing.T) {
	f := setup(t)
	f.deposit(t, alice, units(10))
	// the flash fee lifts the ratio above one
	_, _, err := f.k.FlashWithdraw(f.ctx, alice, alice, units(4))
	require.NoError(t, err)
	require.True(t, f.k.AdjustedRatio(f.ctx).GT(math.LegacyOneDec()))

	amount := math.NewInt(3_333_333)
	shares := f.deposit(t, bob, amount)
	w := f.withdraw(t, bob, shares)
	require.InDelta(t, amount.Int64(), w.OwedAssets.Int64(), 2)
	require.True(t, w.OwedAssets.LTE(amount))
}

func TestDepositValidation(t *testing.T) {
	f := setup(t)

	_, _, err := f.k.Deposit(f.ctx, alice, alice, math.ZeroInt())
	require.ErrorIs(t, err, types.ErrZeroAmount)

	f.updateParams(t, func(p *types.Params) { p.MinDeposit = math.NewInt(100) })
	_, _, err = f.k.Deposit(f.ctx, alice, alice, math.NewInt(99))
	require.ErrorIs(t, err, types.ErrBelowMinDeposit)

	f.feed.err = types.ErrRatioStale
	_, _, err = f.k.Deposit(f.ctx, alice, alice, units(1))
	require.ErrorIs(t, err, types.ErrRatioStale)
	f.feed.err = nil

	f.feed.ratio = math.LegacyNewDec(2)
	shares := f.deposit(t, alice, units(1))
	require.Equal(t, math.NewInt(500_000), shares)

	f.updateParams(t, func(p *types.Params) { p.MaxRatioDivergence = math.LegacyNewDecWithPrec(1, 2) })
	f.feed.ratio = math.LegacyNewDecWithPrec(21, 1)
	_, _, err = f.k.Deposit(f.ctx, alice, alice, units(1))
	require.ErrorIs(t, err, types.ErrRatioDivergence)

	f.feed.ratio = math.LegacyNewDecWithPrec(201, 2)
	_, _, err = f.k.Deposit(f.ctx, alice, alice, units(1))
	require.NoError(t, err)
	f.checkInvariants(t)
}

func TestWithdrawValidation(t *testing.T) {
	f := setup(t)
	f.deposit(t, alice, units(5))

	_, err := f.k.Withdraw(f.ctx, alice, alice, math.ZeroInt())
	require.ErrorIs(t, err, types.ErrZeroAmount)
	_, err = f.k.Withdraw(f.ctx, alice, alice, units(6))
	require.ErrorIs(t, err, types.ErrInsufficientShares)
	_, err = f.k.Withdraw(f.ctx, bob, bob, math.OneInt())
	require.ErrorIs(t, err, types.ErrInsufficientShares)

	f.feed.err = types.ErrRatioDeviation
	_, err = f.k.Withdraw(f.ctx, alice, alice, units(1))
	require.ErrorIs(t, err, types.ErrRatioDeviation)
}

func TestFlashWithdraw(t *testing.T) {
	f := setup(t)
	f.deposit(t, alice, units(10))

	net, fee, err := f.k.FlashWithdraw(f.ctx, alice, alice, units(1))
	require.NoError(t, err)
	require.Equal(t, math.NewInt(5_000), fee)
	require.Equal(t, math.NewInt(995_000), net)
	require.Equal(t, units(90).Add(net), f.assets(alice))
	require.Equal(t, math.NewInt(9_005_000), f.k.GetVaultState(f.ctx).FreeBalance)
	f.checkInvariants(t)

	f.delegate(t, "op1", units(9))
	require.Equal(t, math.NewInt(5_000), f.k.FlashCapacity(f.ctx))
	_, _, err = f.k.FlashWithdraw(f.ctx, alice, alice, units(1))
	require.ErrorIs(t, err, types.ErrInsufficientFlashCapacity)
}

func TestDepositAfterFullExitLocksResidualEquity(t *testing.T) {
	f := setup(t)
	shares := f.deposit(t, alice, units(10))

	_, fee, err := f.k.FlashWithdraw(f.ctx, alice, alice, shares)
	require.NoError(t, err)
	require.Equal(t, math.NewInt(50_000), fee)
	require.True(t, f.k.ShareSupply(f.ctx).IsZero())
	require.Equal(t, math.NewInt(50_000), f.k.GetVaultState(f.ctx).Equity())

	minted, ratio, err := f.k.Deposit(f.ctx, bob, bob, units(10))
	require.NoError(t, err)
	require.True(t, ratio.Equal(math.LegacyOneDec()))
	require.Equal(t, units(10), minted)

	// the fee sits under shares held by the vault, not in bob's balance
	vaultShares := f.bank.Balance(f.ctx, types.DefaultShareDenom, keeper.ModuleAddress())
	require.Equal(t, math.NewInt(50_000), vaultShares)
	require.True(t, f.k.AdjustedRatio(f.ctx).Equal(math.LegacyOneDec()))

	balance, err := f.query.UserBalance(f.ctx, bob)
	require.NoError(t, err)
	require.Equal(t, units(10), balance.Value)
	f.checkInvariants(t)
}

func TestIsAbleToRedeemReasons(t *testing.T) {
	f := setup(t)
	require.Equal(t, types.RedeemReasonNoPending, f.k.IsAbleToRedeem(f.ctx, alice).Reason)

	f.deposit(t, alice, units(4))
	f.withdraw(t, alice, units(1))
	status := f.k.IsAbleToRedeem(f.ctx, alice)
	require.False(t, status.Able)
	require.Equal(t, types.RedeemReasonEpochNotFulfilled, status.Reason)
	require.Equal(t, units(1), status.Pending)

	closed, fulfilled, err := f.k.SettleEpochs(f.ctx, operator)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, closed)
	require.Equal(t, []uint64{1}, fulfilled)
	require.True(t, f.k.IsAbleToRedeem(f.ctx, alice).Able)

	v := f.k.GetVaultState(f.ctx)
	v.RedeemReserved = math.ZeroInt()
	f.k.SetVaultState(f.ctx, v)
	require.Equal(t, types.RedeemReasonReserveInsufficient, f.k.IsAbleToRedeem(f.ctx, alice).Reason)
	_, _, err = f.k.Redeem(f.ctx, alice, alice)
	require.ErrorIs(t, err, types.ErrInsufficientFreeBalance)
}
