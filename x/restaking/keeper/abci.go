package keeper

import (
	"encoding/json"
	"strconv"
	"time"

	"cosmossdk.io/errors"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/lrt-vault/x/restaking/types"
)

// EndBlocker runs after every committed operation: it records a ratio snapshot
// and checks the ledger invariants. A broken invariant fails the operation.
func (k *Keeper) EndBlocker(ctx sdk.Context) error {
	start := time.Now()

	snap := k.recordSnapshot(ctx)

	if msg, broken := AllInvariants(k)(ctx); broken {
		k.logger.Error("invariant broken", "height", ctx.BlockHeight(), "detail", msg)
		return errors.Wrap(types.ErrInvariantBroken, msg)
	}

	k.logger.Debug("restaking EndBlocker completed",
		"height", ctx.BlockHeight(),
		"adjusted_ratio", snap.AdjustedRatio.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (k *Keeper) recordSnapshot(ctx sdk.Context) types.RatioSnapshot {
	v := k.GetVaultState(ctx)
	snap := types.RatioSnapshot{
		Seq:           v.NextSnapshotSeq,
		Height:        ctx.BlockHeight(),
		Timestamp:     ctx.BlockTime().Unix(),
		AdjustedRatio: k.AdjustedRatio(ctx),
		BackingRatio:  k.BackingRatio(ctx),
		Equity:        v.Equity(),
		Supply:        k.ShareSupply(ctx),
	}
	bz, _ := json.Marshal(snap)
	store := k.GetStore(ctx)
	store.Set(types.RatioSnapshotKey(snap.Seq), bz)

	v.NextSnapshotSeq++
	k.SetVaultState(ctx, v)

	if keep := k.GetParams(ctx).MaxSnapshots; keep > 0 && snap.Seq > keep {
		store.Delete(types.RatioSnapshotKey(snap.Seq - keep))
	}

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			types.EventTypeRatioSnapshot,
			sdk.NewAttribute("seq", strconv.FormatUint(snap.Seq, 10)),
			sdk.NewAttribute(types.AttributeKeyRatio, snap.AdjustedRatio.String()),
		),
	)
	return snap
}

// GetSnapshots returns the retained ratio history oldest first, at most limit entries from the newest end
func (k *Keeper) GetSnapshots(ctx sdk.Context, limit int) []types.RatioSnapshot {
	iterator := storetypes.KVStoreReversePrefixIterator(k.GetStore(ctx), types.RatioSnapshotKeyPrefix)
	defer iterator.Close()

	var snaps []types.RatioSnapshot
	for ; iterator.Valid(); iterator.Next() {
		if limit > 0 && len(snaps) >= limit {
			break
		}
		var s types.RatioSnapshot
		if err := json.Unmarshal(iterator.Value(), &s); err != nil {
			continue
		}
		snaps = append(snaps, s)
	}
	for i, j := 0, len(snaps)-1; i < j; i, j = i+1, j-1 {
		snaps[i], snaps[j] = snaps[j], snaps[i]
	}
	return snaps
}
