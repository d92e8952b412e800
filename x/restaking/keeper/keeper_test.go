package keeper_test

import (
	"encoding/json"
	"testing"
	"time"

	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"cosmossdk.io/store"
	"cosmossdk.io/store/metrics"
	storetypes "cosmossdk.io/store/types"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	dbm "github.com/cosmos/cosmos-db"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/lrt-vault/x/restaking/adapters/simulated"
	"github.com/openalpha/lrt-vault/x/restaking/keeper"
	"github.com/openalpha/lrt-vault/x/restaking/types"
	tokenkeeper "github.com/openalpha/lrt-vault/x/token/keeper"
	tokentypes "github.com/openalpha/lrt-vault/x/token/types"
)

const unit = 1_000_000

var (
	alice     = testAddr("alice")
	bob       = testAddr("bob")
	operator  = testAddr("operator")
	authority = testAddr("authority")
	faucet    = testAddr("faucet")

	genesisTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
)

func testAddr(name string) string {
	bz := make([]byte, 20)
	copy(bz, name)
	return sdk.AccAddress(bz).String()
}

func units(n int64) math.Int {
	return math.NewInt(n * unit)
}

type mockFeed struct {
	ratio math.LegacyDec
	err   error
}

func (m *mockFeed) GetRatio(_ sdk.Context, _ string) (math.LegacyDec, error) {
	if m.err != nil {
		return math.LegacyDec{}, m.err
	}
	return m.ratio, nil
}

type fixture struct {
	ctx   sdk.Context
	k     *keeper.Keeper
	msgs  *keeper.MsgServer
	query *keeper.QueryServer
	bank  *tokenkeeper.Keeper
	feed  *mockFeed
	sim   *simulated.Adapter
	dusty *simulated.Adapter
}

func setup(t *testing.T) *fixture {
	t.Helper()

	keys := storetypes.NewKVStoreKeys(types.StoreKey, tokentypes.StoreKey, "sim", "dusty")
	db := dbm.NewMemDB()
	cms := store.NewCommitMultiStore(db, log.NewNopLogger(), metrics.NewNoOpMetrics())
	for _, key := range keys {
		cms.MountStoreWithDB(key, storetypes.StoreTypeIAVL, db)
	}
	require.NoError(t, cms.LoadLatestVersion())
	ctx := sdk.NewContext(cms, cmtproto.Header{Time: genesisTime, Height: 1}, false, log.NewNopLogger())

	bank := tokenkeeper.NewKeeper(keys[tokentypes.StoreKey], log.NewNopLogger())
	feed := &mockFeed{ratio: math.LegacyOneDec()}
	k := keeper.NewKeeper(keys[types.StoreKey], bank, feed, authority, log.NewNopLogger())

	vault := keeper.ModuleAddress()
	sim := simulated.NewAdapter(keys["sim"], bank, simulated.Config{
		Name: "sim", Denom: types.DefaultAssetDenom, UnbondingEpochs: 1, Vault: vault,
	}, log.NewNopLogger())
	dusty := simulated.NewAdapter(keys["dusty"], bank, simulated.Config{
		Name: "dusty", Denom: types.DefaultAssetDenom, Granularity: math.NewInt(1000), UnbondingEpochs: 1, Vault: vault,
	}, log.NewNopLogger())
	k.RegisterAdapter("sim", sim)
	k.RegisterAdapter("dusty", dusty)

	gs := types.DefaultGenesis()
	gs.Params.Operator = operator
	require.NoError(t, k.InitGenesis(ctx, gs))

	require.NoError(t, bank.RegisterDenom(ctx, types.DefaultAssetDenom, faucet))
	require.NoError(t, bank.RegisterDenom(ctx, types.DefaultShareDenom, vault))
	for _, who := range []string{alice, bob} {
		require.NoError(t, bank.Mint(ctx, faucet, types.DefaultAssetDenom, who, units(100)))
	}

	return &fixture{
		ctx:   ctx,
		k:     k,
		msgs:  keeper.NewMsgServerImpl(k),
		query: keeper.NewQueryServerImpl(k),
		bank:  bank,
		feed:  feed,
		sim:   sim,
		dusty: dusty,
	}
}

func (f *fixture) deposit(t *testing.T, who string, amount math.Int) math.Int {
	t.Helper()
	shares, _, err := f.k.Deposit(f.ctx, who, who, amount)
	require.NoError(t, err)
	return shares
}

func (f *fixture) delegate(t *testing.T, target string, amount math.Int) {
	t.Helper()
	actual, err := f.k.Delegate(f.ctx, operator, "sim", target, amount, nil)
	require.NoError(t, err)
	require.Equal(t, amount, actual)
}

func (f *fixture) withdraw(t *testing.T, who string, shares math.Int) types.PendingWithdrawal {
	t.Helper()
	w, err := f.k.Withdraw(f.ctx, who, who, shares)
	require.NoError(t, err)
	return w
}

func (f *fixture) updateParams(t *testing.T, fn func(*types.Params)) {
	t.Helper()
	params := f.k.GetParams(f.ctx)
	fn(&params)
	require.NoError(t, f.k.UpdateParams(f.ctx, authority, params))
}

// checkInvariants runs the end-of-operation hook
func (f *fixture) checkInvariants(t *testing.T) {
	t.Helper()
	require.NoError(t, f.k.EndBlocker(f.ctx))
}

func (f *fixture) assets(who string) math.Int {
	return f.bank.Balance(f.ctx, types.DefaultAssetDenom, who)
}

func TestPositionLifecycle(t *testing.T) {
	f := setup(t)

	pos := f.k.GetPosition(f.ctx, "sim", "op1")
	require.True(t, pos.Amount.IsZero())

	pos.Amount = math.NewInt(5)
	f.k.SetPosition(f.ctx, pos)
	require.Len(t, f.k.GetAllPositions(f.ctx), 1)

	pos.Amount = math.ZeroInt()
	f.k.SetPosition(f.ctx, pos)
	require.Empty(t, f.k.GetAllPositions(f.ctx))
}

func TestBeneficiaryIndex(t *testing.T) {
	f := setup(t)
	f.deposit(t, alice, units(10))

	_, err := f.k.Withdraw(f.ctx, alice, bob, units(2))
	require.NoError(t, err)
	_, err = f.k.Withdraw(f.ctx, alice, alice, units(1))
	require.NoError(t, err)
	_, err = f.k.Withdraw(f.ctx, alice, bob, units(3))
	require.NoError(t, err)

	owedToBob := f.k.GetBeneficiaryWithdrawals(f.ctx, bob)
	require.Len(t, owedToBob, 2)
	require.Equal(t, uint64(1), owedToBob[0].ID)
	require.Equal(t, uint64(3), owedToBob[1].ID)
	require.Equal(t, alice, owedToBob[0].Requester)
	require.Len(t, f.k.GetBeneficiaryWithdrawals(f.ctx, alice), 1)
	f.checkInvariants(t)
}

func TestRegisterAdapterTwicePanics(t *testing.T) {
	f := setup(t)
	require.Equal(t, []string{"dusty", "sim"}, f.k.AdapterNames())
	require.Panics(t, func() { f.k.RegisterAdapter("sim", f.sim) })
}

func TestUpdateParams(t *testing.T) {
	f := setup(t)
	params := f.k.GetParams(f.ctx)

	require.ErrorIs(t, f.k.UpdateParams(f.ctx, operator, params), types.ErrUnauthorized)

	bad := params
	bad.MaxTargetPercent = math.LegacyZeroDec()
	require.ErrorIs(t, f.k.UpdateParams(f.ctx, authority, bad), types.ErrInvalidParams)

	params.FlashWithdrawFee = math.LegacyNewDecWithPrec(1, 2)
	require.NoError(t, f.k.UpdateParams(f.ctx, authority, params))
	require.Equal(t, params.FlashWithdrawFee, f.k.GetParams(f.ctx).FlashWithdrawFee)

	f.deposit(t, alice, units(1))
	renamed := params
	renamed.ShareDenom = "uother"
	require.ErrorIs(t, f.k.UpdateParams(f.ctx, authority, renamed), types.ErrInvalidParams)
}

func TestEndBlockerSnapshotsAndInvariants(t *testing.T) {
	f := setup(t)
	f.updateParams(t, func(p *types.Params) { p.MaxSnapshots = 2 })
	f.deposit(t, alice, units(10))

	for i := 0; i < 3; i++ {
		f.checkInvariants(t)
	}
	snaps := f.k.GetSnapshots(f.ctx, 0)
	require.Len(t, snaps, 2)
	require.Equal(t, uint64(2), snaps[0].Seq)
	require.Equal(t, uint64(3), snaps[1].Seq)
	require.Equal(t, units(10), snaps[1].Supply)
	require.True(t, snaps[1].AdjustedRatio.Equal(math.LegacyOneDec()))

	v := f.k.GetVaultState(f.ctx)
	v.FreeBalance = v.FreeBalance.AddRaw(1)
	f.k.SetVaultState(f.ctx, v)
	require.ErrorIs(t, f.k.EndBlocker(f.ctx), types.ErrInvariantBroken)
}

func TestGenesisRoundTrip(t *testing.T) {
	f := setup(t)
	f.deposit(t, alice, units(10))
	f.delegate(t, "op1", units(6))
	f.withdraw(t, alice, units(3))
	_, _, err := f.k.Undelegate(f.ctx, operator, "sim", "op1", units(3), nil)
	require.NoError(t, err)

	exported := f.k.ExportGenesis(f.ctx)
	require.NoError(t, exported.Validate())
	require.Len(t, exported.Epochs, 2)
	require.Len(t, exported.Tickets, 1)

	g := setup(t)
	require.NoError(t, g.k.InitGenesis(g.ctx, exported))
	reexported := g.k.ExportGenesis(g.ctx)

	want, err := json.Marshal(exported)
	require.NoError(t, err)
	got, err := json.Marshal(reexported)
	require.NoError(t, err)
	require.JSONEq(t, string(want), string(got))

	broken := *exported
	broken.Vault.InFlight = broken.Vault.InFlight.AddRaw(1)
	require.ErrorIs(t, g.k.InitGenesis(g.ctx, &broken), types.ErrInvalidGenesis)
}
