package keeper

import (
	"testing"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"cosmossdk.io/store"
	"cosmossdk.io/store/metrics"
	storetypes "cosmossdk.io/store/types"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	dbm "github.com/cosmos/cosmos-db"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/lrt-vault/x/token/types"
)

func setupKeeper(t *testing.T) (*Keeper, sdk.Context) {
	t.Helper()

	storeKey := storetypes.NewKVStoreKey(types.StoreKey)
	db := dbm.NewMemDB()
	stateStore := store.NewCommitMultiStore(db, log.NewNopLogger(), metrics.NewNoOpMetrics())
	stateStore.MountStoreWithDB(storeKey, storetypes.StoreTypeIAVL, db)
	require.NoError(t, stateStore.LoadLatestVersion())

	ctx := sdk.NewContext(stateStore, cmtproto.Header{}, false, log.NewNopLogger())
	return NewKeeper(storeKey, log.NewNopLogger()), ctx
}

func TestMintBurnOnlyByMinter(t *testing.T) {
	k, ctx := setupKeeper(t)
	require.NoError(t, k.RegisterDenom(ctx, "lrt", "vault"))
	require.ErrorIs(t, k.RegisterDenom(ctx, "lrt", "vault"), types.ErrDenomExists)

	require.ErrorIs(t, k.Mint(ctx, "mallory", "lrt", "alice", math.NewInt(5)), types.ErrUnauthorizedMint)
	require.NoError(t, k.Mint(ctx, "vault", "lrt", "alice", math.NewInt(5)))
	require.Equal(t, math.NewInt(5), k.Balance(ctx, "lrt", "alice"))
	require.Equal(t, math.NewInt(5), k.Supply(ctx, "lrt"))

	require.ErrorIs(t, k.Burn(ctx, "mallory", "lrt", "alice", math.NewInt(1)), types.ErrUnauthorizedMint)
	require.ErrorIs(t, k.Burn(ctx, "vault", "lrt", "alice", math.NewInt(6)), types.ErrInsufficientFunds)
	require.NoError(t, k.Burn(ctx, "vault", "lrt", "alice", math.NewInt(5)))
	require.True(t, k.Balance(ctx, "lrt", "alice").IsZero())
	require.True(t, k.Supply(ctx, "lrt").IsZero())
}

func TestSend(t *testing.T) {
	k, ctx := setupKeeper(t)
	require.NoError(t, k.RegisterDenom(ctx, "asset", "faucet"))
	require.NoError(t, k.Mint(ctx, "faucet", "asset", "alice", math.NewInt(100)))

	require.ErrorIs(t, k.Send(ctx, "asset", "alice", "bob", math.NewInt(101)), types.ErrInsufficientFunds)
	require.ErrorIs(t, k.Send(ctx, "nope", "alice", "bob", math.NewInt(1)), types.ErrUnknownDenom)
	require.NoError(t, k.Send(ctx, "asset", "alice", "bob", math.NewInt(40)))
	require.Equal(t, math.NewInt(60), k.Balance(ctx, "asset", "alice"))
	require.Equal(t, math.NewInt(40), k.Balance(ctx, "asset", "bob"))
	require.Equal(t, math.NewInt(100), k.Supply(ctx, "asset"))
}

func TestGenesisRoundTrip(t *testing.T) {
	k, ctx := setupKeeper(t)
	require.NoError(t, k.RegisterDenom(ctx, "asset", "faucet"))
	require.NoError(t, k.Mint(ctx, "faucet", "asset", "alice", math.NewInt(7)))
	require.NoError(t, k.Mint(ctx, "faucet", "asset", "bob", math.NewInt(3)))

	exported := k.ExportGenesis(ctx)
	require.NoError(t, exported.Validate())

	k2, ctx2 := setupKeeper(t)
	require.NoError(t, k2.InitGenesis(ctx2, exported))
	require.Equal(t, math.NewInt(7), k2.Balance(ctx2, "asset", "alice"))
	require.Equal(t, math.NewInt(10), k2.Supply(ctx2, "asset"))

	exported.Denoms[0].Supply = math.NewInt(11)
	require.Error(t, exported.Validate())
}
