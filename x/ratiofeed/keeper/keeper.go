package keeper

import (
	"encoding/json"
	"strconv"

	"cosmossdk.io/errors"
	"cosmossdk.io/log"
	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/lrt-vault/x/ratiofeed/types"
)

// Store key prefixes
var (
	ParamsKey           = []byte{0x01}
	RatioEntryKeyPrefix = []byte{0x02}
)

// RatioHooks is notified after a batch of ratios is accepted
type RatioHooks interface {
	AfterRatioUpdated(ctx sdk.Context, tokenID string) error
}

// Keeper stores pushed exchange ratios and enforces staleness and deviation limits
type Keeper struct {
	storeKey  storetypes.StoreKey
	logger    log.Logger
	authority string
	hooks     RatioHooks
}

// NewKeeper creates a new ratio feed keeper
func NewKeeper(storeKey storetypes.StoreKey, authority string, logger log.Logger) *Keeper {
	return &Keeper{
		storeKey:  storeKey,
		authority: authority,
		logger:    logger.With("module", "x/ratiofeed"),
	}
}

// SetHooks installs the update hooks. Panics if called twice.
func (k *Keeper) SetHooks(h RatioHooks) {
	if k.hooks != nil {
		panic("ratiofeed hooks already set")
	}
	k.hooks = h
}

// GetAuthority returns the address allowed to push ratios
func (k *Keeper) GetAuthority() string {
	return k.authority
}

// GetStore returns the KVStore
func (k *Keeper) GetStore(ctx sdk.Context) storetypes.KVStore {
	return ctx.KVStore(k.storeKey)
}

// ============ Params ============

// SetParams saves feed params
func (k *Keeper) SetParams(ctx sdk.Context, params types.Params) error {
	if err := params.Validate(); err != nil {
		return errors.Wrap(types.ErrInvalidParams, err.Error())
	}
	bz, _ := json.Marshal(params)
	k.GetStore(ctx).Set(ParamsKey, bz)
	return nil
}

// GetParams returns feed params, defaults when unset
func (k *Keeper) GetParams(ctx sdk.Context) types.Params {
	bz := k.GetStore(ctx).Get(ParamsKey)
	if bz == nil {
		return types.DefaultParams()
	}
	var params types.Params
	if err := json.Unmarshal(bz, &params); err != nil {
		return types.DefaultParams()
	}
	return params
}

// UpdateParams replaces the params, authority only
func (k *Keeper) UpdateParams(ctx sdk.Context, signer string, params types.Params) error {
	if signer != k.authority {
		return errors.Wrapf(types.ErrUnauthorized, "expected %s, got %s", k.authority, signer)
	}
	return k.SetParams(ctx, params)
}

// ============ Entries ============

func entryKey(tokenID string) []byte {
	return append(append([]byte{}, RatioEntryKeyPrefix...), []byte(tokenID)...)
}

// GetEntry returns the stored entry for tokenID
func (k *Keeper) GetEntry(ctx sdk.Context, tokenID string) (types.RatioEntry, bool) {
	bz := k.GetStore(ctx).Get(entryKey(tokenID))
	if bz == nil {
		return types.RatioEntry{}, false
	}
	var entry types.RatioEntry
	if err := json.Unmarshal(bz, &entry); err != nil {
		return types.RatioEntry{}, false
	}
	return entry, true
}

func (k *Keeper) setEntry(ctx sdk.Context, entry types.RatioEntry) {
	bz, _ := json.Marshal(entry)
	k.GetStore(ctx).Set(entryKey(entry.TokenID), bz)
}

// GetAllEntries returns every stored entry
func (k *Keeper) GetAllEntries(ctx sdk.Context) []types.RatioEntry {
	iterator := storetypes.KVStorePrefixIterator(k.GetStore(ctx), RatioEntryKeyPrefix)
	defer iterator.Close()

	var entries []types.RatioEntry
	for ; iterator.Valid(); iterator.Next() {
		var entry types.RatioEntry
		if err := json.Unmarshal(iterator.Value(), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

// GetRatio returns the current ratio for tokenID. It fails when the last update
// is older than MaxAge or when the last update moved the ratio by more than
// MaxDeviation relative to the one before it.
func (k *Keeper) GetRatio(ctx sdk.Context, tokenID string) (math.LegacyDec, error) {
	entry, found := k.GetEntry(ctx, tokenID)
	if !found {
		return math.LegacyDec{}, errors.Wrapf(types.ErrRatioNotFound, "%s", tokenID)
	}

	params := k.GetParams(ctx)
	if age := entry.Age(ctx.BlockTime()); age > params.MaxAge {
		return math.LegacyDec{}, errors.Wrapf(types.ErrRatioStale, "%s last updated %s ago (max %s)", tokenID, age, params.MaxAge)
	}
	if entry.Deviated {
		return math.LegacyDec{}, errors.Wrapf(types.ErrRatioDeviation, "%s moved from %s to %s", tokenID, entry.Previous, entry.Ratio)
	}
	return entry.Ratio, nil
}

// UpdateRatioBatch pushes a batch of ratios. All entries are validated before any is written.
func (k *Keeper) UpdateRatioBatch(ctx sdk.Context, signer string, tokenIDs []string, ratios []math.LegacyDec) error {
	if signer != k.authority {
		return errors.Wrapf(types.ErrUnauthorized, "expected %s, got %s", k.authority, signer)
	}
	if len(tokenIDs) != len(ratios) || len(tokenIDs) == 0 {
		return errors.Wrapf(types.ErrInvalidBatch, "%d ids, %d ratios", len(tokenIDs), len(ratios))
	}
	for i, r := range ratios {
		if tokenIDs[i] == "" {
			return errors.Wrapf(types.ErrInvalidRatio, "empty token id at %d", i)
		}
		if r.IsNil() || !r.IsPositive() {
			return errors.Wrapf(types.ErrInvalidRatio, "%s: %s", tokenIDs[i], r)
		}
	}

	params := k.GetParams(ctx)
	for i, tokenID := range tokenIDs {
		entry := types.RatioEntry{
			TokenID:   tokenID,
			Ratio:     ratios[i],
			Previous:  ratios[i],
			UpdatedAt: ctx.BlockTime().Unix(),
			Height:    ctx.BlockHeight(),
		}
		if prev, found := k.GetEntry(ctx, tokenID); found {
			// a flagged entry is measured against the last accepted ratio
			accepted := prev.Ratio
			if prev.Deviated {
				accepted = prev.Previous
			}
			entry.Previous = accepted
			change := types.RelativeChange(accepted, ratios[i])
			entry.Deviated = change.GT(params.MaxDeviation)
			if entry.Deviated {
				k.logger.Error("ratio deviation exceeds threshold",
					"token_id", tokenID,
					"previous", accepted.String(),
					"ratio", ratios[i].String(),
					"change", change.String(),
				)
			}
		}
		k.setEntry(ctx, entry)

		ctx.EventManager().EmitEvent(
			sdk.NewEvent(
				"ratio_updated",
				sdk.NewAttribute("token_id", tokenID),
				sdk.NewAttribute("ratio", entry.Ratio.String()),
				sdk.NewAttribute("previous", entry.Previous.String()),
				sdk.NewAttribute("deviated", strconv.FormatBool(entry.Deviated)),
			),
		)
	}

	if k.hooks != nil {
		for _, tokenID := range tokenIDs {
			if err := k.hooks.AfterRatioUpdated(ctx, tokenID); err != nil {
				return err
			}
		}
	}
	return nil
}

// ConfirmRatio clears the deviation flag after the authority has verified a large move
func (k *Keeper) ConfirmRatio(ctx sdk.Context, signer, tokenID string) error {
	if signer != k.authority {
		return errors.Wrapf(types.ErrUnauthorized, "expected %s, got %s", k.authority, signer)
	}
	entry, found := k.GetEntry(ctx, tokenID)
	if !found {
		return errors.Wrapf(types.ErrRatioNotFound, "%s", tokenID)
	}
	entry.Deviated = false
	entry.Previous = entry.Ratio
	k.setEntry(ctx, entry)

	k.logger.Info("ratio deviation confirmed", "token_id", tokenID, "ratio", entry.Ratio.String())
	return nil
}

// ============ Genesis ============

// InitGenesis loads params and entries
func (k *Keeper) InitGenesis(ctx sdk.Context, gs *types.GenesisState) error {
	if err := gs.Validate(); err != nil {
		return err
	}
	if err := k.SetParams(ctx, gs.Params); err != nil {
		return err
	}
	for _, e := range gs.Entries {
		if e.Previous.IsNil() {
			e.Previous = e.Ratio
		}
		k.setEntry(ctx, e)
	}
	return nil
}

// ExportGenesis dumps params and entries
func (k *Keeper) ExportGenesis(ctx sdk.Context) *types.GenesisState {
	gs := types.DefaultGenesis()
	gs.Params = k.GetParams(ctx)
	gs.Entries = append(gs.Entries, k.GetAllEntries(ctx)...)
	return gs
}
