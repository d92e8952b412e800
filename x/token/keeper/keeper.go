package keeper

import (
	"encoding/json"

	"cosmossdk.io/errors"
	"cosmossdk.io/log"
	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/openalpha/lrt-vault/x/token/types"
)

// Store key prefixes
var (
	DenomKeyPrefix   = []byte{0x01}
	BalanceKeyPrefix = []byte{0x02}
)

// Keeper is a minimal multi-denom balance ledger. The vault uses it both for the
// base asset and for its claim token.
type Keeper struct {
	storeKey storetypes.StoreKey
	logger   log.Logger
}

// NewKeeper creates a new token keeper
func NewKeeper(storeKey storetypes.StoreKey, logger log.Logger) *Keeper {
	return &Keeper{
		storeKey: storeKey,
		logger:   logger.With("module", "x/token"),
	}
}

// GetStore returns the KVStore
func (k *Keeper) GetStore(ctx sdk.Context) storetypes.KVStore {
	return ctx.KVStore(k.storeKey)
}

func denomKey(denom string) []byte {
	return append(append([]byte{}, DenomKeyPrefix...), []byte(denom)...)
}

func balanceKey(denom, addr string) []byte {
	key := append(append([]byte{}, BalanceKeyPrefix...), []byte(denom)...)
	key = append(key, 0x00)
	return append(key, []byte(addr)...)
}

// ============ Denoms ============

// RegisterDenom creates a denom owned by minter. Only the minter can mint or burn it.
func (k *Keeper) RegisterDenom(ctx sdk.Context, denom, minter string) error {
	if denom == "" {
		return errors.Wrap(types.ErrUnknownDenom, "empty denom")
	}
	if k.GetDenom(ctx, denom) != nil {
		return errors.Wrapf(types.ErrDenomExists, "%s", denom)
	}
	k.setDenom(ctx, &types.DenomInfo{Denom: denom, Minter: minter, Supply: math.ZeroInt()})
	return nil
}

// GetDenom returns denom metadata or nil
func (k *Keeper) GetDenom(ctx sdk.Context, denom string) *types.DenomInfo {
	bz := k.GetStore(ctx).Get(denomKey(denom))
	if bz == nil {
		return nil
	}
	var info types.DenomInfo
	if err := json.Unmarshal(bz, &info); err != nil {
		return nil
	}
	return &info
}

func (k *Keeper) setDenom(ctx sdk.Context, info *types.DenomInfo) {
	bz, _ := json.Marshal(info)
	k.GetStore(ctx).Set(denomKey(info.Denom), bz)
}

// GetAllDenoms returns every registered denom
func (k *Keeper) GetAllDenoms(ctx sdk.Context) []types.DenomInfo {
	iterator := storetypes.KVStorePrefixIterator(k.GetStore(ctx), DenomKeyPrefix)
	defer iterator.Close()

	var denoms []types.DenomInfo
	for ; iterator.Valid(); iterator.Next() {
		var info types.DenomInfo
		if err := json.Unmarshal(iterator.Value(), &info); err != nil {
			continue
		}
		denoms = append(denoms, info)
	}
	return denoms
}

// Supply returns the total supply of denom
func (k *Keeper) Supply(ctx sdk.Context, denom string) math.Int {
	info := k.GetDenom(ctx, denom)
	if info == nil {
		return math.ZeroInt()
	}
	return info.Supply
}

// ============ Balances ============

// Balance returns the holding of addr in denom
func (k *Keeper) Balance(ctx sdk.Context, denom, addr string) math.Int {
	bz := k.GetStore(ctx).Get(balanceKey(denom, addr))
	if bz == nil {
		return math.ZeroInt()
	}
	var bal types.Balance
	if err := json.Unmarshal(bz, &bal); err != nil {
		return math.ZeroInt()
	}
	return bal.Amount
}

func (k *Keeper) setBalance(ctx sdk.Context, denom, addr string, amount math.Int) {
	store := k.GetStore(ctx)
	if amount.IsZero() {
		store.Delete(balanceKey(denom, addr))
		return
	}
	bz, _ := json.Marshal(types.Balance{Denom: denom, Address: addr, Amount: amount})
	store.Set(balanceKey(denom, addr), bz)
}

// GetAllBalances returns every non-zero balance
func (k *Keeper) GetAllBalances(ctx sdk.Context) []types.Balance {
	iterator := storetypes.KVStorePrefixIterator(k.GetStore(ctx), BalanceKeyPrefix)
	defer iterator.Close()

	var balances []types.Balance
	for ; iterator.Valid(); iterator.Next() {
		var bal types.Balance
		if err := json.Unmarshal(iterator.Value(), &bal); err != nil {
			continue
		}
		balances = append(balances, bal)
	}
	return balances
}

// Send moves amount of denom from one account to another
func (k *Keeper) Send(ctx sdk.Context, denom, from, to string, amount math.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return errors.Wrapf(types.ErrInvalidAmount, "%s", amount)
	}
	if k.GetDenom(ctx, denom) == nil {
		return errors.Wrapf(types.ErrUnknownDenom, "%s", denom)
	}
	if amount.IsZero() || from == to {
		return nil
	}

	fromBal := k.Balance(ctx, denom, from)
	if fromBal.LT(amount) {
		return errors.Wrapf(types.ErrInsufficientFunds, "%s has %s%s, needs %s", from, fromBal, denom, amount)
	}
	k.setBalance(ctx, denom, from, fromBal.Sub(amount))
	k.setBalance(ctx, denom, to, k.Balance(ctx, denom, to).Add(amount))

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"token_transfer",
			sdk.NewAttribute("denom", denom),
			sdk.NewAttribute("from", from),
			sdk.NewAttribute("to", to),
			sdk.NewAttribute("amount", amount.String()),
		),
	)
	return nil
}

// Mint creates amount of denom for to. Caller must be the denom minter.
func (k *Keeper) Mint(ctx sdk.Context, minter, denom, to string, amount math.Int) error {
	info, err := k.authorize(ctx, minter, denom, amount)
	if err != nil {
		return err
	}
	info.Supply = info.Supply.Add(amount)
	k.setDenom(ctx, info)
	k.setBalance(ctx, denom, to, k.Balance(ctx, denom, to).Add(amount))

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"token_mint",
			sdk.NewAttribute("denom", denom),
			sdk.NewAttribute("to", to),
			sdk.NewAttribute("amount", amount.String()),
		),
	)
	return nil
}

// Burn destroys amount of denom held by from. Caller must be the denom minter.
func (k *Keeper) Burn(ctx sdk.Context, minter, denom, from string, amount math.Int) error {
	info, err := k.authorize(ctx, minter, denom, amount)
	if err != nil {
		return err
	}
	bal := k.Balance(ctx, denom, from)
	if bal.LT(amount) {
		return errors.Wrapf(types.ErrInsufficientFunds, "%s has %s%s, burning %s", from, bal, denom, amount)
	}
	info.Supply = info.Supply.Sub(amount)
	k.setDenom(ctx, info)
	k.setBalance(ctx, denom, from, bal.Sub(amount))

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"token_burn",
			sdk.NewAttribute("denom", denom),
			sdk.NewAttribute("from", from),
			sdk.NewAttribute("amount", amount.String()),
		),
	)
	return nil
}

func (k *Keeper) authorize(ctx sdk.Context, minter, denom string, amount math.Int) (*types.DenomInfo, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return nil, errors.Wrapf(types.ErrInvalidAmount, "%s", amount)
	}
	info := k.GetDenom(ctx, denom)
	if info == nil {
		return nil, errors.Wrapf(types.ErrUnknownDenom, "%s", denom)
	}
	if info.Minter != minter {
		return nil, errors.Wrapf(types.ErrUnauthorizedMint, "%s cannot mint %s", minter, denom)
	}
	return info, nil
}

// ============ Genesis ============

// InitGenesis loads denoms and balances
func (k *Keeper) InitGenesis(ctx sdk.Context, gs *types.GenesisState) error {
	if err := gs.Validate(); err != nil {
		return err
	}
	for i := range gs.Denoms {
		k.setDenom(ctx, &gs.Denoms[i])
	}
	for _, b := range gs.Balances {
		k.setBalance(ctx, b.Denom, b.Address, b.Amount)
	}
	k.logger.Info("token genesis loaded", "denoms", len(gs.Denoms), "balances", len(gs.Balances))
	return nil
}

// ExportGenesis dumps the ledger
func (k *Keeper) ExportGenesis(ctx sdk.Context) *types.GenesisState {
	gs := types.DefaultGenesis()
	gs.Denoms = append(gs.Denoms, k.GetAllDenoms(ctx)...)
	gs.Balances = append(gs.Balances, k.GetAllBalances(ctx)...)
	return gs
}
