package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/lrt-vault/x/ratiofeed"
	ratiofeedtypes "github.com/openalpha/lrt-vault/x/ratiofeed/types"
	"github.com/openalpha/lrt-vault/x/restaking"
	"github.com/openalpha/lrt-vault/x/restaking/adapters/simulated"
	restakingkeeper "github.com/openalpha/lrt-vault/x/restaking/keeper"
	restakingtypes "github.com/openalpha/lrt-vault/x/restaking/types"
	"github.com/openalpha/lrt-vault/x/token"
	tokentypes "github.com/openalpha/lrt-vault/x/token/types"
)

// AppGenesis is the genesis file: module states keyed by module name plus
// one entry per simulated adapter
type AppGenesis struct {
	ChainID     string                     `json:"chain_id"`
	GenesisTime time.Time                  `json:"genesis_time"`
	AppState    map[string]json.RawMessage `json:"app_state"`
}

func adapterGenesisKey(name string) string {
	return "adapter/" + name
}

// DefaultGenesis builds the genesis of a fresh vault: the base asset minted by
// the authority, the claim token minted by the vault, a ratio of one for the
// claim token and the configured operator.
func DefaultGenesis(cfg Config, genesisTime time.Time) (*AppGenesis, error) {
	if cfg.Authority == "" || cfg.Operator == "" {
		return nil, fmt.Errorf("authority and operator must be configured")
	}

	tokenGenesis := tokentypes.DefaultGenesis()
	tokenGenesis.Denoms = append(tokenGenesis.Denoms,
		tokentypes.DenomInfo{Denom: restakingtypes.DefaultAssetDenom, Minter: cfg.Authority, Supply: math.ZeroInt()},
		tokentypes.DenomInfo{Denom: restakingtypes.DefaultShareDenom, Minter: restakingkeeper.ModuleAddress(), Supply: math.ZeroInt()},
	)

	feedGenesis := ratiofeedtypes.DefaultGenesis()
	feedGenesis.Entries = append(feedGenesis.Entries, ratiofeedtypes.RatioEntry{
		TokenID:   restakingtypes.DefaultRatioToken,
		Ratio:     math.LegacyOneDec(),
		Previous:  math.LegacyOneDec(),
		UpdatedAt: genesisTime.Unix(),
	})

	restakingGenesis := restakingtypes.DefaultGenesis()
	restakingGenesis.Params.Operator = cfg.Operator

	gen := &AppGenesis{
		ChainID:     cfg.ChainID,
		GenesisTime: genesisTime.UTC(),
		AppState:    make(map[string]json.RawMessage),
	}
	for name, state := range map[string]interface{}{
		token.ModuleName:     tokenGenesis,
		ratiofeed.ModuleName: feedGenesis,
		restaking.ModuleName: restakingGenesis,
	} {
		bz, err := json.Marshal(state)
		if err != nil {
			return nil, err
		}
		gen.AppState[name] = bz
	}
	for _, a := range cfg.Adapters {
		bz, err := json.Marshal(simulated.GenesisState{
			NextSeq:    1,
			Stakes:     []simulated.Stake{},
			Unbondings: []simulated.Unbonding{},
		})
		if err != nil {
			return nil, err
		}
		gen.AppState[adapterGenesisKey(a.Name)] = bz
	}
	return gen, nil
}

// LoadGenesis reads a genesis file
func LoadGenesis(path string) (*AppGenesis, error) {
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var gen AppGenesis
	if err := json.Unmarshal(bz, &gen); err != nil {
		return nil, fmt.Errorf("failed to decode genesis %s: %w", path, err)
	}
	return &gen, nil
}

// Save writes the genesis file
func (g *AppGenesis) Save(path string) error {
	bz, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, bz, 0o644)
}

// Validate checks every module state
func (g *AppGenesis) Validate() error {
	if err := (token.AppModule{}).ValidateGenesis(g.AppState[token.ModuleName]); err != nil {
		return err
	}
	if err := (ratiofeed.AppModule{}).ValidateGenesis(g.AppState[ratiofeed.ModuleName]); err != nil {
		return err
	}
	return (restaking.AppModuleBasic{}).ValidateGenesis(g.AppState[restaking.ModuleName])
}

// InitChain loads gen into an empty store and commits it as the first version
func (app *App) InitChain(gen *AppGenesis) error {
	if h := app.Height(); h != 0 {
		return fmt.Errorf("store already initialized at height %d", h)
	}
	if gen.ChainID != "" && gen.ChainID != app.cfg.ChainID {
		return fmt.Errorf("genesis chain id %s does not match configured %s", gen.ChainID, app.cfg.ChainID)
	}
	if err := gen.Validate(); err != nil {
		return fmt.Errorf("invalid genesis: %w", err)
	}

	_, err := app.Execute("InitChain", func(ctx sdk.Context) (interface{}, error) {
		if err := app.tokenModule.InitGenesis(ctx, gen.AppState[token.ModuleName]); err != nil {
			return nil, err
		}
		if err := app.ratioFeedModule.InitGenesis(ctx, gen.AppState[ratiofeed.ModuleName]); err != nil {
			return nil, err
		}
		if err := app.restakingModule.InitGenesis(ctx, gen.AppState[restaking.ModuleName]); err != nil {
			return nil, err
		}
		for _, name := range app.adapterNames {
			bz, ok := gen.AppState[adapterGenesisKey(name)]
			if !ok {
				continue
			}
			var gs simulated.GenesisState
			if err := json.Unmarshal(bz, &gs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal adapter %s genesis: %w", name, err)
			}
			if err := app.adapters[name].InitGenesis(ctx, gs); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	app.logger.Info("genesis loaded", "chain_id", app.cfg.ChainID, "height", app.Height())
	return nil
}

// ExportGenesis dumps the latest committed state as a genesis file
func (app *App) ExportGenesis() (*AppGenesis, error) {
	gen := &AppGenesis{
		ChainID:     app.cfg.ChainID,
		GenesisTime: app.clock().UTC(),
		AppState:    make(map[string]json.RawMessage),
	}
	err := app.Query(func(ctx sdk.Context) error {
		var err error
		if gen.AppState[token.ModuleName], err = app.tokenModule.ExportGenesis(ctx); err != nil {
			return err
		}
		if gen.AppState[ratiofeed.ModuleName], err = app.ratioFeedModule.ExportGenesis(ctx); err != nil {
			return err
		}
		if gen.AppState[restaking.ModuleName], err = app.restakingModule.ExportGenesis(ctx); err != nil {
			return err
		}
		for _, name := range app.adapterNames {
			if gen.AppState[adapterGenesisKey(name)], err = json.Marshal(app.adapters[name].ExportGenesis(ctx)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return gen, nil
}
