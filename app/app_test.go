package app_test

import (
	"bytes"
	"strconv"
	"testing"
	"time"

	"cosmossdk.io/log"
	dbm "github.com/cosmos/cosmos-db"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/openalpha/lrt-vault/app"
	ratiofeedtypes "github.com/openalpha/lrt-vault/x/ratiofeed/types"
	"github.com/openalpha/lrt-vault/x/restaking/adapters/simulated"
	restakingtypes "github.com/openalpha/lrt-vault/x/restaking/types"
	tokentypes "github.com/openalpha/lrt-vault/x/token/types"
)

var (
	authority = testAddr(1)
	operator  = testAddr(2)
	alice     = testAddr(3)

	genesisTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
)

func testAddr(b byte) string {
	return sdk.AccAddress(bytes.Repeat([]byte{b}, 20)).String()
}

type testNode struct {
	*app.App
	cfg app.Config
	now time.Time
}

func testConfig(t *testing.T) app.Config {
	cfg := app.DefaultConfig(t.TempDir())
	cfg.Authority = authority
	cfg.Operator = operator
	cfg.Adapters = []app.AdapterConfig{{Name: "sim", Granularity: 1, UnbondingEpochs: 1}}
	return cfg
}

func newNode(t *testing.T, cfg app.Config) *testNode {
	t.Helper()
	n := &testNode{cfg: cfg, now: genesisTime}
	a, err := app.NewApp(log.NewNopLogger(), dbm.NewMemDB(), cfg,
		app.WithClock(func() time.Time { return n.now }),
		app.WithMetrics(nil),
	)
	require.NoError(t, err)
	n.App = a
	return n
}

func setupNode(t *testing.T) *testNode {
	t.Helper()
	cfg := testConfig(t)
	n := newNode(t, cfg)
	gen, err := app.DefaultGenesis(cfg, genesisTime)
	require.NoError(t, err)
	require.NoError(t, n.InitChain(gen))
	require.Equal(t, int64(1), n.Height())
	return n
}

func (n *testNode) deliver(t *testing.T, msg sdk.Msg) *app.Result {
	t.Helper()
	res, err := n.Deliver(msg)
	require.NoError(t, err)
	return res
}

func (n *testNode) balance(t *testing.T, denom, addr string) string {
	t.Helper()
	var out string
	require.NoError(t, n.Query(func(ctx sdk.Context) error {
		out = n.TokenKeeper.Balance(ctx, denom, addr).String()
		return nil
	}))
	return out
}

func (n *testNode) vault(t *testing.T) restakingtypes.VaultState {
	t.Helper()
	var v restakingtypes.VaultState
	require.NoError(t, n.Query(func(ctx sdk.Context) error {
		v = n.RestakingKeeper.GetVaultState(ctx)
		return nil
	}))
	return v
}

func ledgerSummary(v restakingtypes.VaultState) []string {
	return []string{
		v.FreeBalance.String(),
		v.TotalDelegated.String(),
		v.InFlight.String(),
		v.PendingObligations.String(),
		v.RedeemReserved.String(),
		v.PartiallyClaimed.String(),
		strconv.FormatUint(v.CurrentEpoch, 10),
		strconv.FormatUint(v.NextWithdrawalID, 10),
		strconv.FormatUint(v.NextTicketID, 10),
	}
}

func (n *testNode) fund(t *testing.T, to, amount string) {
	t.Helper()
	n.deliver(t, &tokentypes.MsgMint{Minter: authority, Denom: restakingtypes.DefaultAssetDenom, To: to, Amount: amount})
}

func TestWithdrawalLifecycle(t *testing.T) {
	n := setupNode(t)
	n.fund(t, alice, "100000000")

	res := n.deliver(t, &restakingtypes.MsgDeposit{Sender: alice, Receiver: alice, Amount: "100000000"})
	require.Equal(t, "100000000", res.Response.(*restakingtypes.MsgDepositResponse).Shares)

	n.deliver(t, &restakingtypes.MsgDelegate{Operator: operator, Adapter: "sim", Target: "validator-1", Amount: "60000000"})

	res = n.deliver(t, &restakingtypes.MsgWithdraw{Sender: alice, Receiver: alice, Shares: "50000000"})
	w := res.Response.(*restakingtypes.MsgWithdrawResponse)
	require.Equal(t, uint64(1), w.Epoch)
	require.Equal(t, "50000000", w.OwedAssets)

	res = n.deliver(t, &restakingtypes.MsgUndelegate{Operator: operator, Adapter: "sim", Target: "validator-1", Amount: "50000000"})
	require.Equal(t, []uint64{1}, res.Response.(*restakingtypes.MsgUndelegateResponse).ClosedEpochs)

	// nothing matured yet
	res = n.deliver(t, &restakingtypes.MsgClaim{Operator: operator, Epoch: 1, Adapter: "sim"})
	require.Equal(t, "0", res.Response.(*restakingtypes.MsgClaimResponse).Claimed)

	n.deliver(t, &simulated.MsgAdvanceEpoch{Authority: authority, Adapter: "sim"})

	res = n.deliver(t, &restakingtypes.MsgClaim{Operator: operator, Epoch: 1, Adapter: "sim"})
	claim := res.Response.(*restakingtypes.MsgClaimResponse)
	require.Equal(t, "50000000", claim.Claimed)
	require.Equal(t, []uint64{1}, claim.FulfilledEpoch)

	res = n.deliver(t, &restakingtypes.MsgRedeem{Caller: alice, Beneficiary: alice})
	require.Equal(t, "50000000", res.Response.(*restakingtypes.MsgRedeemResponse).Amount)

	require.Equal(t, "50000000", n.balance(t, restakingtypes.DefaultAssetDenom, alice))
	require.Equal(t, int64(10), n.Height())

	v := n.vault(t)
	require.Equal(t, "40000000", v.FreeBalance.String())
	require.Equal(t, "10000000", v.TotalDelegated.String())
	require.True(t, v.PendingObligations.IsZero())
}

func TestFailedOperationIsNotCommitted(t *testing.T) {
	n := setupNode(t)
	n.fund(t, alice, "10000000")
	n.deliver(t, &restakingtypes.MsgDeposit{Sender: alice, Receiver: alice, Amount: "10000000"})

	height := n.Height()
	events := n.Journal().Len()

	_, err := n.Deliver(&restakingtypes.MsgWithdraw{Sender: alice, Receiver: alice, Shares: "20000000"})
	require.Error(t, err)

	_, err = n.Deliver(&restakingtypes.MsgDelegate{Operator: alice, Adapter: "sim", Target: "validator-1", Amount: "1000000"})
	require.ErrorIs(t, err, restakingtypes.ErrUnauthorized)

	_, err = n.Deliver(&simulated.MsgAdvanceEpoch{Authority: operator, Adapter: "sim"})
	require.ErrorIs(t, err, restakingtypes.ErrUnauthorized)

	require.Equal(t, height, n.Height())
	require.Equal(t, events, n.Journal().Len())
	require.Equal(t, "10000000", n.balance(t, restakingtypes.DefaultShareDenom, alice))
}

func TestDeliverRejectsInvalidMessages(t *testing.T) {
	n := setupNode(t)

	_, err := n.Deliver(&restakingtypes.MsgDeposit{Sender: "nope", Receiver: alice, Amount: "1"})
	require.Error(t, err)

	_, err = n.Deliver(&restakingtypes.MsgDeposit{Sender: alice, Receiver: alice, Amount: "-5"})
	require.Error(t, err)

	require.Equal(t, int64(1), n.Height())
}

func TestRatioDeviationBlocksDepositsUntilConfirmed(t *testing.T) {
	n := setupNode(t)
	n.fund(t, alice, "200000000")
	n.deliver(t, &restakingtypes.MsgDeposit{Sender: alice, Receiver: alice, Amount: "100000000"})
	n.deliver(t, &restakingtypes.MsgDelegate{Operator: operator, Adapter: "sim", Target: "validator-1", Amount: "50000000"})

	res := n.deliver(t, &simulated.MsgSlash{Authority: authority, Adapter: "sim", Target: "validator-1", Fraction: "0.2"})
	require.Equal(t, "10000000", res.Response.(*app.SlashResponse).Slashed)

	// the oracle push resyncs delegations through the ratio hook
	n.now = n.now.Add(time.Hour)
	res = n.deliver(t, &ratiofeedtypes.MsgUpdateRatios{Signer: authority, TokenIDs: []string{"ulrt"}, Ratios: []string{"0.9"}})
	entries := res.Response.([]ratiofeedtypes.RatioEntry)
	require.Len(t, entries, 1)
	require.True(t, entries[0].Deviated)
	require.Equal(t, "40000000", n.vault(t).TotalDelegated.String())

	_, err := n.Deliver(&restakingtypes.MsgDeposit{Sender: alice, Receiver: alice, Amount: "9000000"})
	require.ErrorIs(t, err, restakingtypes.ErrRatioDeviation)

	n.deliver(t, &ratiofeedtypes.MsgConfirmRatio{Signer: authority, TokenID: "ulrt"})

	res = n.deliver(t, &restakingtypes.MsgDeposit{Sender: alice, Receiver: alice, Amount: "9000000"})
	dep := res.Response.(*restakingtypes.MsgDepositResponse)
	require.Equal(t, "10000000", dep.Shares)
	require.Equal(t, "0.900000000000000000", dep.Ratio)
}

func TestStaleRatioBlocksDeposits(t *testing.T) {
	n := setupNode(t)
	n.fund(t, alice, "10000000")

	n.now = genesisTime.Add(25 * time.Hour)
	_, err := n.Deliver(&restakingtypes.MsgDeposit{Sender: alice, Receiver: alice, Amount: "10000000"})
	require.ErrorIs(t, err, restakingtypes.ErrRatioStale)

	n.deliver(t, &ratiofeedtypes.MsgUpdateRatios{Signer: authority, TokenIDs: []string{"ulrt"}, Ratios: []string{"1"}})
	n.deliver(t, &restakingtypes.MsgDeposit{Sender: alice, Receiver: alice, Amount: "10000000"})
}

func TestEventsReachJournalAndSubscribers(t *testing.T) {
	n := setupNode(t)

	var seen []app.Event
	n.Subscribe(func(events []app.Event) { seen = append(seen, events...) })

	n.fund(t, alice, "5000000")
	res := n.deliver(t, &restakingtypes.MsgDeposit{Sender: alice, Receiver: alice, Amount: "5000000"})

	types := make([]string, 0, len(res.Events))
	for _, e := range res.Events {
		require.Equal(t, res.Height, e.Height)
		types = append(types, e.Type)
	}
	require.Contains(t, types, restakingtypes.EventTypeDeposit)
	require.Contains(t, types, restakingtypes.EventTypeRatioSnapshot)

	last := res.Events[len(res.Events)-1]
	require.Equal(t, last.Seq, n.Journal().LastSeq())
	require.Equal(t, seen[len(seen)-1].Seq, last.Seq)

	since := n.Journal().Since(res.Events[0].Seq, 0)
	require.Len(t, since, len(res.Events))
}

func TestGenesisExportImport(t *testing.T) {
	n := setupNode(t)
	n.fund(t, alice, "100000000")
	n.deliver(t, &restakingtypes.MsgDeposit{Sender: alice, Receiver: alice, Amount: "100000000"})
	n.deliver(t, &restakingtypes.MsgDelegate{Operator: operator, Adapter: "sim", Target: "validator-1", Amount: "60000000"})
	n.deliver(t, &restakingtypes.MsgWithdraw{Sender: alice, Receiver: alice, Shares: "30000000"})
	n.deliver(t, &restakingtypes.MsgUndelegate{Operator: operator, Adapter: "sim", Target: "validator-1", Amount: "30000000"})

	err := n.InitChain(&app.AppGenesis{})
	require.Error(t, err)

	gen, err := n.ExportGenesis()
	require.NoError(t, err)
	require.NoError(t, gen.Validate())

	path := app.GenesisPath(n.cfg.Home)
	require.NoError(t, gen.Save(path))
	loaded, err := app.LoadGenesis(path)
	require.NoError(t, err)

	m := newNode(t, n.cfg)
	require.NoError(t, m.InitChain(loaded))

	require.Equal(t, ledgerSummary(n.vault(t)), ledgerSummary(m.vault(t)))
	require.Equal(t,
		n.balance(t, restakingtypes.DefaultShareDenom, alice),
		m.balance(t, restakingtypes.DefaultShareDenom, alice),
	)

	// the imported protocol keeps the pending undelegation
	m.deliver(t, &simulated.MsgAdvanceEpoch{Authority: authority, Adapter: "sim"})
	res := m.deliver(t, &restakingtypes.MsgClaim{Operator: operator, Epoch: 1, Adapter: "sim"})
	require.Equal(t, "30000000", res.Response.(*restakingtypes.MsgClaimResponse).Claimed)
}

func TestConfigRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	cfg.API.Port = 9191
	cfg.Adapters = append(cfg.Adapters, app.AdapterConfig{Name: "coarse", Granularity: 1000, UnbondingEpochs: 3})
	require.NoError(t, app.WriteConfig(cfg))

	loaded, err := app.LoadConfig(viper.New(), cfg.Home)
	require.NoError(t, err)
	require.Equal(t, cfg.Authority, loaded.Authority)
	require.Equal(t, 9191, loaded.API.Port)
	require.Equal(t, cfg.Adapters, loaded.Adapters)
	require.Equal(t, 30*time.Second, loaded.API.ReadTimeout)

	t.Setenv("LRTVAULT_API_PORT", "7070")
	loaded, err = app.LoadConfig(viper.New(), cfg.Home)
	require.NoError(t, err)
	require.Equal(t, 7070, loaded.API.Port)
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Operator = "cosmos1invalid"
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Adapters = []app.AdapterConfig{{Name: "a", Granularity: 1}, {Name: "a", Granularity: 1}}
	require.Error(t, bad.Validate())

	bad = cfg
	bad.Adapters = []app.AdapterConfig{{Name: "a", Granularity: 0}}
	require.Error(t, bad.Validate())
}
