package app

import (
	"cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	ratiofeedkeeper "github.com/openalpha/lrt-vault/x/ratiofeed/keeper"
	ratiofeedtypes "github.com/openalpha/lrt-vault/x/ratiofeed/types"
	restakingtypes "github.com/openalpha/lrt-vault/x/restaking/types"
)

// ratioFeedAdapter bridges the ratio feed keeper to the restaking module and
// translates feed failures into restaking errors
type ratioFeedAdapter struct {
	keeper *ratiofeedkeeper.Keeper
}

var _ restakingtypes.RatioFeed = ratioFeedAdapter{}

func newRatioFeedAdapter(keeper *ratiofeedkeeper.Keeper) restakingtypes.RatioFeed {
	return ratioFeedAdapter{keeper: keeper}
}

func (a ratioFeedAdapter) GetRatio(ctx sdk.Context, tokenID string) (math.LegacyDec, error) {
	if a.keeper == nil {
		return math.LegacyDec{}, errors.Wrap(restakingtypes.ErrRatioStale, "ratio feed not set")
	}

	ratio, err := a.keeper.GetRatio(ctx, tokenID)
	switch {
	case err == nil:
		return ratio, nil
	case errors.IsOf(err, ratiofeedtypes.ErrRatioNotFound, ratiofeedtypes.ErrRatioStale):
		return math.LegacyDec{}, errors.Wrap(restakingtypes.ErrRatioStale, err.Error())
	case errors.IsOf(err, ratiofeedtypes.ErrRatioDeviation):
		return math.LegacyDec{}, errors.Wrap(restakingtypes.ErrRatioDeviation, err.Error())
	default:
		return math.LegacyDec{}, err
	}
}
