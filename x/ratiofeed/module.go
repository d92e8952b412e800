package ratiofeed

import (
	"encoding/json"
	"fmt"

	"cosmossdk.io/core/appmodule"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/lrt-vault/x/ratiofeed/keeper"
	"github.com/openalpha/lrt-vault/x/ratiofeed/types"
)

const (
	ModuleName = types.ModuleName
)

var _ appmodule.AppModule = AppModule{}

// AppModule implements an application module for the ratio feed
type AppModule struct {
	keeper *keeper.Keeper
}

// NewAppModule creates a new AppModule object
func NewAppModule(k *keeper.Keeper) AppModule {
	return AppModule{keeper: k}
}

// Name returns the module's name
func (AppModule) Name() string {
	return ModuleName
}

// DefaultGenesis returns default genesis state as raw bytes
func (AppModule) DefaultGenesis() json.RawMessage {
	bz, err := json.Marshal(types.DefaultGenesis())
	if err != nil {
		panic(err)
	}
	return bz
}

// ValidateGenesis performs genesis state validation
func (AppModule) ValidateGenesis(bz json.RawMessage) error {
	var gs types.GenesisState
	if err := json.Unmarshal(bz, &gs); err != nil {
		return fmt.Errorf("failed to unmarshal %s genesis state: %w", ModuleName, err)
	}
	return gs.Validate()
}

// InitGenesis loads params and the latest ratios
func (am AppModule) InitGenesis(ctx sdk.Context, bz json.RawMessage) error {
	var gs types.GenesisState
	if err := json.Unmarshal(bz, &gs); err != nil {
		return fmt.Errorf("failed to unmarshal %s genesis state: %w", ModuleName, err)
	}
	return am.keeper.InitGenesis(ctx, &gs)
}

// ExportGenesis dumps params and ratios
func (am AppModule) ExportGenesis(ctx sdk.Context) (json.RawMessage, error) {
	return json.Marshal(am.keeper.ExportGenesis(ctx))
}

// IsOnePerModuleType implements the depinject.OnePerModuleType interface
func (am AppModule) IsOnePerModuleType() {}

// IsAppModule implements the appmodule.AppModule interface
func (am AppModule) IsAppModule() {}
