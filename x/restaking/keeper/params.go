package keeper

import (
	"context"

	"cosmossdk.io/errors"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/lrt-vault/x/restaking/types"
)

// UpdateParams replaces the vault params. Only the authority may call it and
// the denoms cannot change once shares exist.
func (k *Keeper) UpdateParams(ctx context.Context, authority string, params types.Params) error {
	sdkCtx := sdk.UnwrapSDKContext(ctx)
	if err := k.requireAuthority(authority); err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return errors.Wrap(types.ErrInvalidParams, err.Error())
	}

	old := k.GetParams(sdkCtx)
	if (old.AssetDenom != params.AssetDenom || old.ShareDenom != params.ShareDenom) &&
		!k.GetVaultState(sdkCtx).GrossAssets().IsZero() {
		return errors.Wrap(types.ErrInvalidParams, "denoms are fixed once the vault holds assets")
	}
	k.SetParams(sdkCtx, params)

	sdkCtx.EventManager().EmitEvent(
		sdk.NewEvent(
			types.EventTypeParamsUpdated,
			sdk.NewAttribute(types.AttributeKeyOperator, params.Operator),
			sdk.NewAttribute("max_target_percent", params.MaxTargetPercent.String()),
			sdk.NewAttribute("target_flash_capacity", params.TargetFlashCapacity.String()),
		),
	)
	k.logger.Info("params updated", "operator", params.Operator)
	return nil
}
