package keeper

import (
	"fmt"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/lrt-vault/x/restaking/types"
)

// InvariantRoute pairs a route name with its check
type InvariantRoute struct {
	Route     string
	Invariant sdk.Invariant
}

// InvariantRoutes returns every ledger invariant
func (k *Keeper) InvariantRoutes() []InvariantRoute {
	return []InvariantRoute{
		{"delegated-sum", DelegatedSumInvariant(k)},
		{"in-flight-sum", InFlightSumInvariant(k)},
		{"vault-balance", VaultBalanceInvariant(k)},
		{"earmarks", EarmarkInvariant(k)},
		{"epoch-reserves", EpochReserveInvariant(k)},
		{"conservation", ConservationInvariant(k)},
	}
}

// AllInvariants runs every invariant and reports the first broken one
func AllInvariants(k *Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		for _, r := range k.InvariantRoutes() {
			if msg, broken := r.Invariant(ctx); broken {
				return msg, true
			}
		}
		return "", false
	}
}

// DelegatedSumInvariant checks TotalDelegated against the positions
func DelegatedSumInvariant(k *Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		sum := math.ZeroInt()
		for _, p := range k.GetAllPositions(ctx) {
			if p.Amount.IsNegative() {
				return sdk.FormatInvariant(types.ModuleName, "delegated-sum",
					fmt.Sprintf("position %s/%s is negative: %s", p.Adapter, p.Target, p.Amount)), true
			}
			sum = sum.Add(p.Amount)
		}
		v := k.GetVaultState(ctx)
		broken := !sum.Equal(v.TotalDelegated)
		return sdk.FormatInvariant(types.ModuleName, "delegated-sum",
			fmt.Sprintf("total delegated %s, sum of positions %s", v.TotalDelegated, sum)), broken
	}
}

// InFlightSumInvariant checks InFlight against the open tickets
func InFlightSumInvariant(k *Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		sum := math.ZeroInt()
		for _, t := range k.GetAllTickets(ctx) {
			sum = sum.Add(t.Remaining)
		}
		v := k.GetVaultState(ctx)
		broken := !sum.Equal(v.InFlight)
		return sdk.FormatInvariant(types.ModuleName, "in-flight-sum",
			fmt.Sprintf("in flight %s, sum of tickets %s", v.InFlight, sum)), broken
	}
}

// VaultBalanceInvariant checks the vault account holds exactly FreeBalance
func VaultBalanceInvariant(k *Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		v := k.GetVaultState(ctx)
		balance := k.bank.Balance(ctx, k.GetParams(ctx).AssetDenom, k.address)
		broken := !balance.Equal(v.FreeBalance)
		return sdk.FormatInvariant(types.ModuleName, "vault-balance",
			fmt.Sprintf("account holds %s, ledger says %s", balance, v.FreeBalance)), broken
	}
}

// EarmarkInvariant checks reserved and partially claimed funds fit in free balance
// and that pending obligations match the queued withdrawals
func EarmarkInvariant(k *Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		v := k.GetVaultState(ctx)
		earmarked := v.RedeemReserved.Add(v.PartiallyClaimed)
		if v.RedeemReserved.IsNegative() || v.PartiallyClaimed.IsNegative() || earmarked.GT(v.FreeBalance) {
			return sdk.FormatInvariant(types.ModuleName, "earmarks",
				fmt.Sprintf("reserved %s + claimed %s vs free %s", v.RedeemReserved, v.PartiallyClaimed, v.FreeBalance)), true
		}
		owed := math.ZeroInt()
		for _, w := range k.GetAllWithdrawals(ctx) {
			owed = owed.Add(w.OwedAssets)
		}
		broken := !owed.Equal(v.PendingObligations)
		return sdk.FormatInvariant(types.ModuleName, "earmarks",
			fmt.Sprintf("pending obligations %s, sum of withdrawals %s", v.PendingObligations, owed)), broken
	}
}

// EpochReserveInvariant checks every epoch reserves at least what its withdrawals are owed
func EpochReserveInvariant(k *Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		owedByEpoch := make(map[uint64]math.Int)
		for _, w := range k.GetAllWithdrawals(ctx) {
			if sum, ok := owedByEpoch[w.Epoch]; ok {
				owedByEpoch[w.Epoch] = sum.Add(w.OwedAssets)
			} else {
				owedByEpoch[w.Epoch] = w.OwedAssets
			}
		}

		fulfilledOwed := math.ZeroInt()
		for id, owed := range owedByEpoch {
			e, found := k.GetEpoch(ctx, id)
			if !found {
				return sdk.FormatInvariant(types.ModuleName, "epoch-reserves",
					fmt.Sprintf("withdrawals reference missing epoch %d", id)), true
			}
			switch e.Status {
			case types.EpochStatusOpen:
				if !e.RequestedAssets.Equal(owed) {
					return sdk.FormatInvariant(types.ModuleName, "epoch-reserves",
						fmt.Sprintf("open epoch %d requests %s, owed %s", id, e.RequestedAssets, owed)), true
				}
			case types.EpochStatusClosed:
				if e.ReservedAssets.LT(owed) {
					return sdk.FormatInvariant(types.ModuleName, "epoch-reserves",
						fmt.Sprintf("closed epoch %d reserves %s, owed %s", id, e.ReservedAssets, owed)), true
				}
			default:
				fulfilledOwed = fulfilledOwed.Add(owed)
			}
		}

		v := k.GetVaultState(ctx)
		broken := v.RedeemReserved.LT(fulfilledOwed)
		return sdk.FormatInvariant(types.ModuleName, "epoch-reserves",
			fmt.Sprintf("redeem reserve %s, owed on fulfilled epochs %s", v.RedeemReserved, fulfilledOwed)), broken
	}
}

// ConservationInvariant checks assets held match the cumulative flows
func ConservationInvariant(k *Keeper) sdk.Invariant {
	return func(ctx sdk.Context) (string, bool) {
		v := k.GetVaultState(ctx)
		expected := v.CumulativeIn.Sub(v.CumulativeOut).Sub(v.CumulativeLoss).Add(v.CumulativeGain)
		broken := !v.GrossAssets().Equal(expected)
		return sdk.FormatInvariant(types.ModuleName, "conservation",
			fmt.Sprintf("gross assets %s, net flows %s", v.GrossAssets(), expected)), broken
	}
}
