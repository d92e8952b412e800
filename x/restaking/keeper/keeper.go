package keeper

import (
	"encoding/json"
	"fmt"
	"sort"

	"cosmossdk.io/errors"
	"cosmossdk.io/log"
	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"

	"github.com/openalpha/lrt-vault/x/restaking/types"
)

// Keeper manages the vault ledger, the delegation ledger and the withdrawal queue
type Keeper struct {
	storeKey  storetypes.StoreKey
	bank      types.BankKeeper
	ratioFeed types.RatioFeed
	adapters  map[string]types.Adapter
	logger    log.Logger
	authority string
	address   string
}

// NewKeeper creates a new restaking keeper
func NewKeeper(
	storeKey storetypes.StoreKey,
	bank types.BankKeeper,
	ratioFeed types.RatioFeed,
	authority string,
	logger log.Logger,
) *Keeper {
	return &Keeper{
		storeKey:  storeKey,
		bank:      bank,
		ratioFeed: ratioFeed,
		adapters:  make(map[string]types.Adapter),
		authority: authority,
		address:   ModuleAddress(),
		logger:    logger.With("module", "x/restaking"),
	}
}

// ModuleAddress is the account holding the vault's free balance
func ModuleAddress() string {
	return authtypes.NewModuleAddress(types.ModuleName).String()
}

// RegisterAdapter wires an external protocol adapter under name. Adapters are
// fixed at wiring time.
func (k *Keeper) RegisterAdapter(name string, adapter types.Adapter) {
	if _, exists := k.adapters[name]; exists {
		panic(fmt.Sprintf("adapter %s already registered", name))
	}
	k.adapters[name] = adapter
}

// Adapter returns a registered adapter
func (k *Keeper) Adapter(name string) (types.Adapter, error) {
	a, ok := k.adapters[name]
	if !ok {
		return nil, errors.Wrapf(types.ErrAdapterNotRegistered, "%s", name)
	}
	return a, nil
}

// AdapterNames returns registered adapter names in sorted order
func (k *Keeper) AdapterNames() []string {
	names := make([]string, 0, len(k.adapters))
	for name := range k.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Logger returns the module logger
func (k *Keeper) Logger() log.Logger {
	return k.logger
}

// GetAuthority returns the governance authority address
func (k *Keeper) GetAuthority() string {
	return k.authority
}

// GetAddress returns the vault account address
func (k *Keeper) GetAddress() string {
	return k.address
}

// GetStore returns the KVStore
func (k *Keeper) GetStore(ctx sdk.Context) storetypes.KVStore {
	return ctx.KVStore(k.storeKey)
}

// ============ Params ============

// SetParams saves params
func (k *Keeper) SetParams(ctx sdk.Context, params types.Params) {
	bz, _ := json.Marshal(params)
	k.GetStore(ctx).Set(types.ParamsKey, bz)
}

// GetParams returns params, defaults when unset
func (k *Keeper) GetParams(ctx sdk.Context) types.Params {
	bz := k.GetStore(ctx).Get(types.ParamsKey)
	if bz == nil {
		return types.DefaultParams()
	}
	var params types.Params
	if err := json.Unmarshal(bz, &params); err != nil {
		return types.DefaultParams()
	}
	return params
}

// ============ Vault state ============

// SetVaultState saves the vault singleton
func (k *Keeper) SetVaultState(ctx sdk.Context, v types.VaultState) {
	bz, _ := json.Marshal(v)
	k.GetStore(ctx).Set(types.VaultStateKey, bz)
}

// GetVaultState returns the vault singleton
func (k *Keeper) GetVaultState(ctx sdk.Context) types.VaultState {
	bz := k.GetStore(ctx).Get(types.VaultStateKey)
	if bz == nil {
		return types.NewVaultState()
	}
	var v types.VaultState
	if err := json.Unmarshal(bz, &v); err != nil {
		panic(fmt.Sprintf("corrupt vault state: %v", err))
	}
	return v
}

// ============ Delegation positions ============

// GetPosition returns the position for (adapter, target), zero when absent
func (k *Keeper) GetPosition(ctx sdk.Context, adapter, target string) types.DelegationPosition {
	bz := k.GetStore(ctx).Get(types.PositionKey(adapter, target))
	if bz == nil {
		return types.DelegationPosition{Adapter: adapter, Target: target, Amount: math.ZeroInt()}
	}
	var pos types.DelegationPosition
	if err := json.Unmarshal(bz, &pos); err != nil {
		panic(fmt.Sprintf("corrupt position %s/%s: %v", adapter, target, err))
	}
	return pos
}

// SetPosition saves a position, deleting it when it reaches zero
func (k *Keeper) SetPosition(ctx sdk.Context, pos types.DelegationPosition) {
	store := k.GetStore(ctx)
	key := types.PositionKey(pos.Adapter, pos.Target)
	if pos.Amount.IsZero() {
		store.Delete(key)
		return
	}
	bz, _ := json.Marshal(pos)
	store.Set(key, bz)
}

// GetAllPositions returns every non-zero position
func (k *Keeper) GetAllPositions(ctx sdk.Context) []types.DelegationPosition {
	iterator := storetypes.KVStorePrefixIterator(k.GetStore(ctx), types.PositionKeyPrefix)
	defer iterator.Close()

	var positions []types.DelegationPosition
	for ; iterator.Valid(); iterator.Next() {
		var pos types.DelegationPosition
		if err := json.Unmarshal(iterator.Value(), &pos); err != nil {
			continue
		}
		positions = append(positions, pos)
	}
	return positions
}

// ============ Undelegation tickets ============

// SetTicket saves a ticket, deleting it once nothing remains in flight
func (k *Keeper) SetTicket(ctx sdk.Context, t types.UndelegationTicket) {
	store := k.GetStore(ctx)
	if t.Remaining.IsZero() {
		store.Delete(types.TicketKey(t.ID))
		return
	}
	bz, _ := json.Marshal(t)
	store.Set(types.TicketKey(t.ID), bz)
}

// GetAllTickets returns open tickets in creation order
func (k *Keeper) GetAllTickets(ctx sdk.Context) []types.UndelegationTicket {
	iterator := storetypes.KVStorePrefixIterator(k.GetStore(ctx), types.TicketKeyPrefix)
	defer iterator.Close()

	var tickets []types.UndelegationTicket
	for ; iterator.Valid(); iterator.Next() {
		var t types.UndelegationTicket
		if err := json.Unmarshal(iterator.Value(), &t); err != nil {
			continue
		}
		tickets = append(tickets, t)
	}
	return tickets
}

// GetAdapterTickets returns the open tickets of one adapter in creation order
func (k *Keeper) GetAdapterTickets(ctx sdk.Context, adapter string) []types.UndelegationTicket {
	var out []types.UndelegationTicket
	for _, t := range k.GetAllTickets(ctx) {
		if t.Adapter == adapter {
			out = append(out, t)
		}
	}
	return out
}

// ============ Epochs ============

// GetEpoch returns an epoch
func (k *Keeper) GetEpoch(ctx sdk.Context, id uint64) (types.WithdrawalEpoch, bool) {
	bz := k.GetStore(ctx).Get(types.EpochKey(id))
	if bz == nil {
		return types.WithdrawalEpoch{}, false
	}
	var e types.WithdrawalEpoch
	if err := json.Unmarshal(bz, &e); err != nil {
		panic(fmt.Sprintf("corrupt epoch %d: %v", id, err))
	}
	return e, true
}

// mustGetEpoch returns an epoch that the ledger says exists
func (k *Keeper) mustGetEpoch(ctx sdk.Context, id uint64) types.WithdrawalEpoch {
	e, found := k.GetEpoch(ctx, id)
	if !found {
		return types.NewWithdrawalEpoch(id)
	}
	return e
}

// SetEpoch saves an epoch
func (k *Keeper) SetEpoch(ctx sdk.Context, e types.WithdrawalEpoch) {
	bz, _ := json.Marshal(e)
	k.GetStore(ctx).Set(types.EpochKey(e.ID), bz)
}

// GetAllEpochs returns every epoch oldest first
func (k *Keeper) GetAllEpochs(ctx sdk.Context) []types.WithdrawalEpoch {
	iterator := storetypes.KVStorePrefixIterator(k.GetStore(ctx), types.EpochKeyPrefix)
	defer iterator.Close()

	var epochs []types.WithdrawalEpoch
	for ; iterator.Valid(); iterator.Next() {
		var e types.WithdrawalEpoch
		if err := json.Unmarshal(iterator.Value(), &e); err != nil {
			continue
		}
		epochs = append(epochs, e)
	}
	return epochs
}

// ============ Pending withdrawals ============

// GetWithdrawal returns a pending withdrawal
func (k *Keeper) GetWithdrawal(ctx sdk.Context, id uint64) (types.PendingWithdrawal, bool) {
	bz := k.GetStore(ctx).Get(types.WithdrawalKey(id))
	if bz == nil {
		return types.PendingWithdrawal{}, false
	}
	var w types.PendingWithdrawal
	if err := json.Unmarshal(bz, &w); err != nil {
		panic(fmt.Sprintf("corrupt withdrawal %d: %v", id, err))
	}
	return w, true
}

// SetWithdrawal saves a withdrawal and its beneficiary index
func (k *Keeper) SetWithdrawal(ctx sdk.Context, w types.PendingWithdrawal) {
	store := k.GetStore(ctx)
	bz, _ := json.Marshal(w)
	store.Set(types.WithdrawalKey(w.ID), bz)
	store.Set(types.BeneficiaryIndexKey(w.Beneficiary, w.ID), []byte{0x01})
}

// DeleteWithdrawal removes a withdrawal and its index entry
func (k *Keeper) DeleteWithdrawal(ctx sdk.Context, w types.PendingWithdrawal) {
	store := k.GetStore(ctx)
	store.Delete(types.WithdrawalKey(w.ID))
	store.Delete(types.BeneficiaryIndexKey(w.Beneficiary, w.ID))
}

// GetBeneficiaryWithdrawals returns the pending withdrawals owed to beneficiary, oldest first
func (k *Keeper) GetBeneficiaryWithdrawals(ctx sdk.Context, beneficiary string) []types.PendingWithdrawal {
	prefix := types.BeneficiaryIndexPrefix(beneficiary)
	iterator := storetypes.KVStorePrefixIterator(k.GetStore(ctx), prefix)
	defer iterator.Close()

	var out []types.PendingWithdrawal
	for ; iterator.Valid(); iterator.Next() {
		id := types.BytesUint64(iterator.Key()[len(prefix):])
		if w, found := k.GetWithdrawal(ctx, id); found {
			out = append(out, w)
		}
	}
	return out
}

// GetAllWithdrawals returns every pending withdrawal oldest first
func (k *Keeper) GetAllWithdrawals(ctx sdk.Context) []types.PendingWithdrawal {
	iterator := storetypes.KVStorePrefixIterator(k.GetStore(ctx), types.WithdrawalKeyPrefix)
	defer iterator.Close()

	var out []types.PendingWithdrawal
	for ; iterator.Valid(); iterator.Next() {
		var w types.PendingWithdrawal
		if err := json.Unmarshal(iterator.Value(), &w); err != nil {
			continue
		}
		out = append(out, w)
	}
	return out
}

// ============ Role checks ============

func (k *Keeper) requireOperator(ctx sdk.Context, signer string) error {
	params := k.GetParams(ctx)
	if params.Operator == "" || signer != params.Operator {
		return errors.Wrapf(types.ErrUnauthorized, "%s is not the operator", signer)
	}
	return nil
}

func (k *Keeper) requireAuthority(signer string) error {
	if signer != k.authority {
		return errors.Wrapf(types.ErrUnauthorized, "expected authority %s, got %s", k.authority, signer)
	}
	return nil
}
