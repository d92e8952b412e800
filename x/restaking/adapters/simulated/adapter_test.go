package simulated

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

	tokenkeeper "github.com/openalpha/lrt-vault/x/token/keeper"
	tokentypes "github.com/openalpha/lrt-vault/x/token/types"
)

const (
	testDenom = "uasset"
	testVault = "vault"
)

func setupAdapter(t *testing.T, granularity int64, unbonding uint64) (*Adapter, *tokenkeeper.Keeper, sdk.Context) {
	t.Helper()

	adapterKey := storetypes.NewKVStoreKey("simulated")
	tokenKey := storetypes.NewKVStoreKey(tokentypes.StoreKey)
	db := dbm.NewMemDB()
	cms := store.NewCommitMultiStore(db, log.NewNopLogger(), metrics.NewNoOpMetrics())
	cms.MountStoreWithDB(adapterKey, storetypes.StoreTypeIAVL, db)
	cms.MountStoreWithDB(tokenKey, storetypes.StoreTypeIAVL, db)
	require.NoError(t, cms.LoadLatestVersion())
	ctx := sdk.NewContext(cms, cmtproto.Header{}, false, log.NewNopLogger())

	bank := tokenkeeper.NewKeeper(tokenKey, log.NewNopLogger())
	require.NoError(t, bank.RegisterDenom(ctx, testDenom, "faucet"))
	require.NoError(t, bank.Mint(ctx, "faucet", testDenom, testVault, math.NewInt(1_000_000)))

	a := NewAdapter(adapterKey, bank, Config{
		Name:            "sim",
		Denom:           testDenom,
		Granularity:     math.NewInt(granularity),
		UnbondingEpochs: unbonding,
		Vault:           testVault,
	}, log.NewNopLogger())
	return a, bank, ctx
}

func TestDelegateRoundsToGranularity(t *testing.T) {
	a, bank, ctx := setupAdapter(t, 1000, 2)

	actual, err := a.Delegate(ctx, "op1", math.NewInt(10_500), nil)
	require.NoError(t, err)
	require.Equal(t, math.NewInt(10_000), actual)
	require.Equal(t, math.NewInt(10_000), bank.Balance(ctx, testDenom, a.Custody()))
	require.Equal(t, math.NewInt(990_000), bank.Balance(ctx, testDenom, testVault))

	actual, err = a.Delegate(ctx, "op1", math.NewInt(999), nil)
	require.NoError(t, err)
	require.True(t, actual.IsZero())

	_, err = a.Delegate(ctx, "", math.NewInt(1000), nil)
	require.ErrorIs(t, err, ErrUnknownTarget)
}

func TestUnbondingMaturesAfterEpochs(t *testing.T) {
	a, bank, ctx := setupAdapter(t, 1, 2)

	_, err := a.Delegate(ctx, "op1", math.NewInt(500), nil)
	require.NoError(t, err)

	_, err = a.Undelegate(ctx, "op1", math.NewInt(501), nil)
	require.ErrorIs(t, err, ErrInsufficientStake)

	ticket, err := a.Undelegate(ctx, "op1", math.NewInt(200), nil)
	require.NoError(t, err)
	require.NotEmpty(t, ticket.ID)
	require.Equal(t, uint64(2), ticket.MaturesAt)

	bal, _ := a.DelegatedBalance(ctx, "op1")
	require.Equal(t, math.NewInt(300), bal)

	waiting, _ := a.PendingUndelegation(ctx, "op1")
	require.Equal(t, math.NewInt(200), waiting)

	a.AdvanceEpoch(ctx)
	paid, err := a.Claim(ctx, nil)
	require.NoError(t, err)
	require.True(t, paid.IsZero())

	a.AdvanceEpoch(ctx)
	ready, _ := a.PendingClaimable(ctx, "op1")
	require.Equal(t, math.NewInt(200), ready)

	paid, err = a.Claim(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, math.NewInt(200), paid)
	require.Equal(t, math.NewInt(999_700), bank.Balance(ctx, testDenom, testVault))
	require.Empty(t, a.Unbondings(ctx))
}

func TestTicketIDsAreUnique(t *testing.T) {
	a, _, ctx := setupAdapter(t, 1, 1)
	_, err := a.Delegate(ctx, "op1", math.NewInt(10), nil)
	require.NoError(t, err)

	first, err := a.Undelegate(ctx, "op1", math.NewInt(5), nil)
	require.NoError(t, err)
	second, err := a.Undelegate(ctx, "op1", math.NewInt(5), nil)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
}

func TestSlashCutsStakeAndUnbonding(t *testing.T) {
	a, bank, ctx := setupAdapter(t, 1, 1)
	_, err := a.Delegate(ctx, "op1", math.NewInt(1000), nil)
	require.NoError(t, err)
	_, err = a.Undelegate(ctx, "op1", math.NewInt(200), nil)
	require.NoError(t, err)

	_, err = a.Slash(ctx, "op1", math.LegacyNewDec(2))
	require.ErrorIs(t, err, ErrInvalidFraction)

	slashed, err := a.Slash(ctx, "op1", math.LegacyNewDecWithPrec(1, 1))
	require.NoError(t, err)
	require.Equal(t, math.NewInt(100), slashed)

	bal, _ := a.DelegatedBalance(ctx, "op1")
	require.Equal(t, math.NewInt(720), bal)
	waiting, _ := a.PendingUndelegation(ctx, "op1")
	require.Equal(t, math.NewInt(180), waiting)
	require.Equal(t, math.NewInt(100), bank.Balance(ctx, testDenom, a.Sink()))
	require.Equal(t, math.NewInt(900), bank.Balance(ctx, testDenom, a.Custody()))
}

func TestGenesisRoundTrip(t *testing.T) {
	a, _, ctx := setupAdapter(t, 1, 3)
	_, err := a.Delegate(ctx, "op1", math.NewInt(700), nil)
	require.NoError(t, err)
	_, err = a.Delegate(ctx, "op2", math.NewInt(300), nil)
	require.NoError(t, err)
	_, err = a.Undelegate(ctx, "op1", math.NewInt(200), nil)
	require.NoError(t, err)
	a.AdvanceEpoch(ctx)

	exported := a.ExportGenesis(ctx)
	require.Equal(t, uint64(1), exported.Epoch)
	require.Equal(t, uint64(2), exported.NextSeq)
	require.Len(t, exported.Stakes, 2)
	require.Len(t, exported.Unbondings, 1)

	b, _, fresh := setupAdapter(t, 1, 3)
	require.NoError(t, b.InitGenesis(fresh, exported))
	require.Equal(t, exported, b.ExportGenesis(fresh))

	// sequence continues where the export left off
	ticket, err := b.Undelegate(fresh, "op2", math.NewInt(100), nil)
	require.NoError(t, err)
	require.NotEqual(t, exported.Unbondings[0].ID, ticket.ID)

	exported.Unbondings[0].Seq = 9
	require.Error(t, b.InitGenesis(fresh, exported))
}
