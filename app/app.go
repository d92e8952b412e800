package app

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"cosmossdk.io/errors"
	"cosmossdk.io/log"
	"cosmossdk.io/math"
	"cosmossdk.io/store"
	storemetrics "cosmossdk.io/store/metrics"
	pruningtypes "cosmossdk.io/store/pruning/types"
	storetypes "cosmossdk.io/store/types"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	dbm "github.com/cosmos/cosmos-db"
	sdk "github.com/cosmos/cosmos-sdk/types"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"

	"github.com/openalpha/lrt-vault/metrics"
	"github.com/openalpha/lrt-vault/x/ratiofeed"
	ratiofeedkeeper "github.com/openalpha/lrt-vault/x/ratiofeed/keeper"
	ratiofeedtypes "github.com/openalpha/lrt-vault/x/ratiofeed/types"
	"github.com/openalpha/lrt-vault/x/restaking"
	"github.com/openalpha/lrt-vault/x/restaking/adapters/simulated"
	restakingkeeper "github.com/openalpha/lrt-vault/x/restaking/keeper"
	restakingtypes "github.com/openalpha/lrt-vault/x/restaking/types"
	"github.com/openalpha/lrt-vault/x/token"
	tokenkeeper "github.com/openalpha/lrt-vault/x/token/keeper"
	tokentypes "github.com/openalpha/lrt-vault/x/token/types"
)

const (
	// Name is the application name
	Name = "lrtvault"

	// slowCommitThreshold triggers a warning when one operation takes longer
	slowCommitThreshold = 100 * time.Millisecond
)

// Result is the outcome of one committed operation
type Result struct {
	Height   int64       `json:"height"`
	Response interface{} `json:"response"`
	Events   []Event     `json:"events"`
}

// Option customizes an App
type Option func(*App)

// WithClock overrides the time source used for operation timestamps
func WithClock(clock func() time.Time) Option {
	return func(app *App) { app.clock = clock }
}

// WithMetrics reports operations to c. Nil disables reporting.
func WithMetrics(c *metrics.Collector) Option {
	return func(app *App) { app.metrics = c }
}

// App is a single-node vault ledger. Every operation runs on a cached branch
// of the multistore and becomes one committed store version on success.
type App struct {
	mu      sync.RWMutex
	logger  log.Logger
	cfg     Config
	db      dbm.DB
	cms     storetypes.CommitMultiStore
	keys    map[string]*storetypes.KVStoreKey
	clock   func() time.Time
	metrics *metrics.Collector

	TokenKeeper     *tokenkeeper.Keeper
	RatioFeedKeeper *ratiofeedkeeper.Keeper
	RestakingKeeper *restakingkeeper.Keeper

	adapters     map[string]*simulated.Adapter
	adapterNames []string

	msgServer   *restakingkeeper.MsgServer
	queryServer *restakingkeeper.QueryServer

	tokenModule     token.AppModule
	ratioFeedModule ratiofeed.AppModule
	restakingModule restaking.AppModule

	journal   *Journal
	listeners []func([]Event)
}

// NewApp wires the keepers on db and loads the latest committed version
func NewApp(logger log.Logger, db dbm.DB, cfg Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Authority == "" || cfg.Operator == "" {
		return nil, fmt.Errorf("authority and operator must be configured")
	}

	app := &App{
		logger:   logger,
		cfg:      cfg,
		db:       db,
		clock:    func() time.Time { return time.Now().UTC() },
		metrics:  metrics.GetCollector(),
		adapters: make(map[string]*simulated.Adapter),
		journal:  NewJournal(cfg.JournalCap),
	}
	for _, opt := range opts {
		opt(app)
	}

	// Store keys
	names := []string{tokentypes.StoreKey, ratiofeedtypes.StoreKey, restakingtypes.StoreKey}
	for _, a := range cfg.Adapters {
		names = append(names, adapterStoreKey(a.Name))
	}
	app.keys = storetypes.NewKVStoreKeys(names...)

	app.cms = store.NewCommitMultiStore(db, logger, storemetrics.NewNoOpMetrics())
	app.cms.SetPruning(pruningtypes.NewPruningOptions(pruningtypes.PruningDefault))
	for _, key := range app.keys {
		app.cms.MountStoreWithDB(key, storetypes.StoreTypeIAVL, nil)
	}
	if err := app.cms.LoadLatestVersion(); err != nil {
		return nil, fmt.Errorf("failed to load latest version: %w", err)
	}

	oracle := cfg.Oracle
	if oracle == "" {
		oracle = cfg.Authority
	}

	// Keepers
	app.TokenKeeper = tokenkeeper.NewKeeper(app.keys[tokentypes.StoreKey], logger)
	app.RatioFeedKeeper = ratiofeedkeeper.NewKeeper(app.keys[ratiofeedtypes.StoreKey], oracle, logger)
	app.RestakingKeeper = restakingkeeper.NewKeeper(
		app.keys[restakingtypes.StoreKey],
		app.TokenKeeper,
		newRatioFeedAdapter(app.RatioFeedKeeper),
		cfg.Authority,
		logger,
	)
	app.RatioFeedKeeper.SetHooks(app.RestakingKeeper.Hooks())

	vault := restakingkeeper.ModuleAddress()
	for _, a := range cfg.Adapters {
		adapter := simulated.NewAdapter(app.keys[adapterStoreKey(a.Name)], app.TokenKeeper, simulated.Config{
			Name:            a.Name,
			Denom:           restakingtypes.DefaultAssetDenom,
			Granularity:     a.granularity(),
			UnbondingEpochs: a.UnbondingEpochs,
			Vault:           vault,
		}, logger)
		app.RestakingKeeper.RegisterAdapter(a.Name, adapter)
		app.adapters[a.Name] = adapter
		app.adapterNames = append(app.adapterNames, a.Name)
	}
	sort.Strings(app.adapterNames)

	app.msgServer = restakingkeeper.NewMsgServerImpl(app.RestakingKeeper)
	app.queryServer = restakingkeeper.NewQueryServerImpl(app.RestakingKeeper)

	app.tokenModule = token.NewAppModule(app.TokenKeeper)
	app.ratioFeedModule = ratiofeed.NewAppModule(app.RatioFeedKeeper)
	app.restakingModule = restaking.NewAppModule(app.RestakingKeeper)

	logger.Info("application loaded",
		"height", app.cms.LastCommitID().Version,
		"adapters", len(app.adapterNames),
	)
	return app, nil
}

func adapterStoreKey(name string) string {
	return "adapter_" + name
}

// Logger returns the application logger
func (app *App) Logger() log.Logger { return app.logger }

// Config returns the configuration the app was built with
func (app *App) Config() Config { return app.cfg }

// Journal returns the committed event journal
func (app *App) Journal() *Journal { return app.journal }

// QueryServer returns the restaking query server. Call it inside Query.
func (app *App) QueryServer() *restakingkeeper.QueryServer { return app.queryServer }

// AdapterNames returns the mounted adapters in order
func (app *App) AdapterNames() []string { return app.adapterNames }

// Adapter returns a mounted simulated protocol
func (app *App) Adapter(name string) (*simulated.Adapter, error) {
	a, ok := app.adapters[name]
	if !ok {
		return nil, errors.Wrapf(restakingtypes.ErrAdapterNotRegistered, "%s", name)
	}
	return a, nil
}

// Height returns the last committed version
func (app *App) Height() int64 {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return app.cms.LastCommitID().Version
}

// Subscribe registers fn to receive the events of every committed operation.
// fn runs while the app is locked and must not block.
func (app *App) Subscribe(fn func([]Event)) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.listeners = append(app.listeners, fn)
}

// Close releases the database
func (app *App) Close() error {
	return app.db.Close()
}

func (app *App) newContext(ms storetypes.MultiStore, height int64) sdk.Context {
	header := cmtproto.Header{
		ChainID: app.cfg.ChainID,
		Height:  height,
		Time:    app.clock(),
	}
	return sdk.NewContext(ms, header, false, app.logger)
}

// Query runs fn against a read-only branch of the latest committed state
func (app *App) Query(fn func(ctx sdk.Context) error) error {
	app.mu.RLock()
	defer app.mu.RUnlock()

	ctx := app.newContext(app.cms.CacheMultiStore(), app.cms.LastCommitID().Version)
	return fn(ctx)
}

// Execute runs fn and the end blocker on a branch of the latest state and
// commits the branch as one new version. On any error nothing is written.
func (app *App) Execute(name string, fn func(ctx sdk.Context) (interface{}, error)) (*Result, error) {
	app.mu.Lock()
	defer app.mu.Unlock()

	timer := metrics.NewTimer()
	res, err := app.execute(fn)
	if app.metrics != nil {
		app.metrics.RecordOperation(name, err == nil, timer.ElapsedMs())
	}
	if err != nil {
		app.logger.Debug("operation failed", "op", name, "error", err)
		return nil, err
	}
	return res, nil
}

func (app *App) execute(fn func(ctx sdk.Context) (interface{}, error)) (res *Result, err error) {
	start := time.Now()
	height := app.cms.LastCommitID().Version + 1
	cache := app.cms.CacheMultiStore()
	ctx := app.newContext(cache, height)

	defer func() {
		if r := recover(); r != nil {
			app.logger.Error("operation panicked", "height", height, "panic", r)
			res, err = nil, errors.Wrapf(sdkerrors.ErrPanic, "%v", r)
		}
	}()

	resp, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	if err := app.restakingModule.EndBlock(ctx); err != nil {
		return nil, err
	}

	cache.Write()
	commitStart := time.Now()
	commitID := app.cms.Commit()
	commitDuration := time.Since(commitStart)

	events := app.journal.Append(convertEvents(ctx, commitID.Version)...)
	for _, fn := range app.listeners {
		fn(events)
	}
	if app.metrics != nil {
		app.metrics.RecordCommit(commitID.Version, float64(commitDuration.Microseconds())/1000.0)
		for _, e := range events {
			app.metrics.RecordEvent(e.Type)
		}
		app.recordVault(app.newContext(app.cms.CacheMultiStore(), commitID.Version))
	}

	if total := time.Since(start); total > slowCommitThreshold {
		app.logger.Warn("operation exceeded latency threshold",
			"height", commitID.Version,
			"duration_ms", total.Milliseconds(),
			"commit_ms", commitDuration.Milliseconds(),
			"threshold_ms", slowCommitThreshold.Milliseconds(),
		)
	}

	return &Result{Height: commitID.Version, Response: resp, Events: events}, nil
}

func convertEvents(ctx sdk.Context, height int64) []Event {
	sdkEvents := ctx.EventManager().Events()
	out := make([]Event, 0, len(sdkEvents))
	for _, e := range sdkEvents {
		attrs := make(map[string]string, len(e.Attributes))
		for _, a := range e.Attributes {
			attrs[a.Key] = a.Value
		}
		out = append(out, Event{
			Height:     height,
			Time:       ctx.BlockTime(),
			Type:       e.Type,
			Attributes: attrs,
		})
	}
	return out
}

func (app *App) recordVault(ctx sdk.Context) {
	k := app.RestakingKeeper
	v := k.GetVaultState(ctx)
	app.metrics.RecordVault(metrics.VaultSnapshot{
		Free:           intFloat(v.FreeBalance),
		Delegated:      intFloat(v.TotalDelegated),
		InFlight:       intFloat(v.InFlight),
		Obligations:    intFloat(v.PendingObligations),
		RedeemReserved: intFloat(v.RedeemReserved),
		ShareSupply:    intFloat(k.ShareSupply(ctx)),
		CumulativeLoss: intFloat(v.CumulativeLoss),
		AdjustedRatio:  decFloat(k.AdjustedRatio(ctx)),
		BackingRatio:   decFloat(k.BackingRatio(ctx)),
		CurrentEpoch:   v.CurrentEpoch,
	})
}

func intFloat(i math.Int) float64 {
	if i.IsNil() {
		return 0
	}
	return decFloat(math.LegacyNewDecFromInt(i))
}

func decFloat(d math.LegacyDec) float64 {
	if d.IsNil() {
		return 0
	}
	f, err := d.Float64()
	if err != nil {
		return 0
	}
	return f
}

// MsgName returns the short type name of msg, e.g. MsgDeposit
func MsgName(msg sdk.Msg) string {
	t := reflect.TypeOf(msg)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Deliver validates msg and executes it as one committed operation
func (app *App) Deliver(msg sdk.Msg) (*Result, error) {
	if v, ok := msg.(interface{ ValidateBasic() error }); ok {
		if err := v.ValidateBasic(); err != nil {
			return nil, err
		}
	}
	handler, err := app.route(msg)
	if err != nil {
		return nil, err
	}
	return app.Execute(MsgName(msg), handler)
}

type handlerFn func(ctx sdk.Context) (interface{}, error)

func (app *App) route(msg sdk.Msg) (handlerFn, error) {
	switch msg := msg.(type) {
	// restaking
	case *restakingtypes.MsgDeposit:
		return func(ctx sdk.Context) (interface{}, error) { return app.msgServer.Deposit(ctx, msg) }, nil
	case *restakingtypes.MsgWithdraw:
		return func(ctx sdk.Context) (interface{}, error) { return app.msgServer.Withdraw(ctx, msg) }, nil
	case *restakingtypes.MsgFlashWithdraw:
		return func(ctx sdk.Context) (interface{}, error) { return app.msgServer.FlashWithdraw(ctx, msg) }, nil
	case *restakingtypes.MsgRedeem:
		return func(ctx sdk.Context) (interface{}, error) { return app.msgServer.Redeem(ctx, msg) }, nil
	case *restakingtypes.MsgDelegate:
		return func(ctx sdk.Context) (interface{}, error) { return app.msgServer.Delegate(ctx, msg) }, nil
	case *restakingtypes.MsgUndelegate:
		return func(ctx sdk.Context) (interface{}, error) { return app.msgServer.Undelegate(ctx, msg) }, nil
	case *restakingtypes.MsgBatchDelegate:
		return func(ctx sdk.Context) (interface{}, error) { return app.msgServer.BatchDelegate(ctx, msg) }, nil
	case *restakingtypes.MsgBatchUndelegate:
		return func(ctx sdk.Context) (interface{}, error) { return app.msgServer.BatchUndelegate(ctx, msg) }, nil
	case *restakingtypes.MsgClaim:
		return func(ctx sdk.Context) (interface{}, error) { return app.msgServer.Claim(ctx, msg) }, nil
	case *restakingtypes.MsgSyncDelegations:
		return func(ctx sdk.Context) (interface{}, error) { return app.msgServer.SyncDelegations(ctx, msg) }, nil
	case *restakingtypes.MsgSettleEpochs:
		return func(ctx sdk.Context) (interface{}, error) { return app.msgServer.SettleEpochs(ctx, msg) }, nil
	case *restakingtypes.MsgUpdateParams:
		return func(ctx sdk.Context) (interface{}, error) { return app.msgServer.UpdateParams(ctx, msg) }, nil

	// ratio feed
	case *ratiofeedtypes.MsgUpdateRatios:
		return func(ctx sdk.Context) (interface{}, error) { return app.updateRatios(ctx, msg) }, nil
	case *ratiofeedtypes.MsgConfirmRatio:
		return func(ctx sdk.Context) (interface{}, error) {
			if err := app.RatioFeedKeeper.ConfirmRatio(ctx, msg.Signer, msg.TokenID); err != nil {
				return nil, err
			}
			entry, _ := app.RatioFeedKeeper.GetEntry(ctx, msg.TokenID)
			return &entry, nil
		}, nil
	case *ratiofeedtypes.MsgUpdateParams:
		return func(ctx sdk.Context) (interface{}, error) {
			if err := app.RatioFeedKeeper.UpdateParams(ctx, msg.Signer, msg.Params); err != nil {
				return nil, err
			}
			params := app.RatioFeedKeeper.GetParams(ctx)
			return &params, nil
		}, nil

	// token ledger
	case *tokentypes.MsgMint:
		return func(ctx sdk.Context) (interface{}, error) {
			amount, err := msg.GetAmount()
			if err != nil {
				return nil, err
			}
			if err := app.TokenKeeper.Mint(ctx, msg.Minter, msg.Denom, msg.To, amount); err != nil {
				return nil, err
			}
			return app.balance(ctx, msg.Denom, msg.To), nil
		}, nil
	case *tokentypes.MsgSend:
		return func(ctx sdk.Context) (interface{}, error) {
			amount, err := msg.GetAmount()
			if err != nil {
				return nil, err
			}
			if err := app.TokenKeeper.Send(ctx, msg.Denom, msg.From, msg.To, amount); err != nil {
				return nil, err
			}
			return app.balance(ctx, msg.Denom, msg.From), nil
		}, nil

	// simulated protocols
	case *simulated.MsgAdvanceEpoch:
		return func(ctx sdk.Context) (interface{}, error) { return app.advanceEpoch(ctx, msg) }, nil
	case *simulated.MsgSlash:
		return func(ctx sdk.Context) (interface{}, error) { return app.slash(ctx, msg) }, nil
	}
	return nil, errors.Wrapf(sdkerrors.ErrUnknownRequest, "unrecognized message type: %T", msg)
}

// BalanceResponse reports an account balance after a token operation
type BalanceResponse struct {
	Denom   string `json:"denom"`
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func (app *App) balance(ctx sdk.Context, denom, addr string) *BalanceResponse {
	return &BalanceResponse{
		Denom:   denom,
		Address: addr,
		Balance: app.TokenKeeper.Balance(ctx, denom, addr).String(),
	}
}

func (app *App) updateRatios(ctx sdk.Context, msg *ratiofeedtypes.MsgUpdateRatios) ([]ratiofeedtypes.RatioEntry, error) {
	ratios, err := msg.ParseRatios()
	if err != nil {
		return nil, err
	}
	if err := app.RatioFeedKeeper.UpdateRatioBatch(ctx, msg.Signer, msg.TokenIDs, ratios); err != nil {
		return nil, err
	}
	entries := make([]ratiofeedtypes.RatioEntry, 0, len(msg.TokenIDs))
	for _, id := range msg.TokenIDs {
		if e, found := app.RatioFeedKeeper.GetEntry(ctx, id); found {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// AdvanceEpochResponse reports the new protocol epoch
type AdvanceEpochResponse struct {
	Adapter string `json:"adapter"`
	Epoch   uint64 `json:"epoch"`
}

// SlashResponse reports the amount burned by a slash
type SlashResponse struct {
	Adapter string `json:"adapter"`
	Target  string `json:"target"`
	Slashed string `json:"slashed"`
}

func (app *App) requireAuthority(signer string) error {
	if signer != app.cfg.Authority {
		return errors.Wrapf(restakingtypes.ErrUnauthorized, "expected %s, got %s", app.cfg.Authority, signer)
	}
	return nil
}

func (app *App) advanceEpoch(ctx sdk.Context, msg *simulated.MsgAdvanceEpoch) (*AdvanceEpochResponse, error) {
	if err := app.requireAuthority(msg.Authority); err != nil {
		return nil, err
	}
	adapter, err := app.Adapter(msg.Adapter)
	if err != nil {
		return nil, err
	}
	return &AdvanceEpochResponse{Adapter: msg.Adapter, Epoch: adapter.AdvanceEpoch(ctx)}, nil
}

func (app *App) slash(ctx sdk.Context, msg *simulated.MsgSlash) (*SlashResponse, error) {
	if err := app.requireAuthority(msg.Authority); err != nil {
		return nil, err
	}
	adapter, err := app.Adapter(msg.Adapter)
	if err != nil {
		return nil, err
	}
	fraction, err := math.LegacyNewDecFromStr(msg.Fraction)
	if err != nil {
		return nil, errors.Wrapf(simulated.ErrInvalidFraction, "%q: %s", msg.Fraction, err)
	}
	slashed, err := adapter.Slash(ctx, msg.Target, fraction)
	if err != nil {
		return nil, err
	}
	return &SlashResponse{Adapter: msg.Adapter, Target: msg.Target, Slashed: slashed.String()}, nil
}
