// Package simulated implements a restaking protocol adapter that keeps the
// protocol itself in the vault's multistore. Stake is held in a custody
// account, undelegations unbond for a fixed number of protocol epochs and
// slashing burns a fraction of both stake and unbonding funds.
package simulated

import (
	"encoding/json"
	"fmt"

	"cosmossdk.io/errors"
	"cosmossdk.io/log"
	"cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"github.com/google/uuid"

	restakingtypes "github.com/openalpha/lrt-vault/x/restaking/types"
)

var _ restakingtypes.Adapter = (*Adapter)(nil)

// Store key prefixes
var (
	EpochKey           = []byte{0x01}
	StakeKeyPrefix     = []byte{0x02}
	UnbondingKeyPrefix = []byte{0x03}
	SequenceKey        = []byte{0x04}
)

// Adapter errors
var (
	ErrUnknownTarget     = errors.Register("simulated", 1, "unknown target")
	ErrInsufficientStake = errors.Register("simulated", 2, "insufficient stake")
	ErrInvalidFraction   = errors.Register("simulated", 3, "invalid slash fraction")
)

// Config describes one simulated protocol
type Config struct {
	Name  string
	Denom string
	// Granularity is the unit stake is accepted in; the remainder is left with the vault
	Granularity math.Int
	// UnbondingEpochs is how many protocol epochs an undelegation waits
	UnbondingEpochs uint64
	// Vault is the account delegating and receiving claims
	Vault string
}

// Unbonding is one queued undelegation
type Unbonding struct {
	ID        string   `json:"id"`
	Seq       uint64   `json:"seq"`
	Target    string   `json:"target"`
	Amount    math.Int `json:"amount"`
	MaturesAt uint64   `json:"matures_at"`
}

// Adapter is a store-backed restaking protocol
type Adapter struct {
	storeKey storetypes.StoreKey
	bank     restakingtypes.BankKeeper
	cfg      Config
	custody  string
	sink     string
	logger   log.Logger
}

// NewAdapter creates a simulated protocol on storeKey
func NewAdapter(storeKey storetypes.StoreKey, bank restakingtypes.BankKeeper, cfg Config, logger log.Logger) *Adapter {
	if cfg.Granularity.IsNil() || !cfg.Granularity.IsPositive() {
		cfg.Granularity = math.OneInt()
	}
	return &Adapter{
		storeKey: storeKey,
		bank:     bank,
		cfg:      cfg,
		custody:  authtypes.NewModuleAddress("adapter/" + cfg.Name).String(),
		sink:     authtypes.NewModuleAddress("adapter/" + cfg.Name + "/slashed").String(),
		logger:   logger.With("module", "adapter/"+cfg.Name),
	}
}

// Name returns the adapter name
func (a *Adapter) Name() string { return a.cfg.Name }

// Custody is the account holding staked and unbonding funds
func (a *Adapter) Custody() string { return a.custody }

// Sink receives slashed funds
func (a *Adapter) Sink() string { return a.sink }

func (a *Adapter) store(ctx sdk.Context) storetypes.KVStore {
	return ctx.KVStore(a.storeKey)
}

func stakeKey(target string) []byte {
	return append(append([]byte{}, StakeKeyPrefix...), []byte(target)...)
}

func unbondingKey(seq uint64) []byte {
	return append(append([]byte{}, UnbondingKeyPrefix...), restakingtypes.Uint64Bytes(seq)...)
}

// CurrentEpoch returns the protocol epoch
func (a *Adapter) CurrentEpoch(ctx sdk.Context) uint64 {
	bz := a.store(ctx).Get(EpochKey)
	if bz == nil {
		return 0
	}
	return restakingtypes.BytesUint64(bz)
}

// AdvanceEpoch moves the protocol to its next epoch, maturing unbondings
func (a *Adapter) AdvanceEpoch(ctx sdk.Context) uint64 {
	next := a.CurrentEpoch(ctx) + 1
	a.store(ctx).Set(EpochKey, restakingtypes.Uint64Bytes(next))
	a.logger.Debug("protocol epoch advanced", "epoch", next)
	return next
}

func (a *Adapter) nextSeq(ctx sdk.Context) uint64 {
	seq := uint64(1)
	if bz := a.store(ctx).Get(SequenceKey); bz != nil {
		seq = restakingtypes.BytesUint64(bz)
	}
	a.store(ctx).Set(SequenceKey, restakingtypes.Uint64Bytes(seq+1))
	return seq
}

func (a *Adapter) getStake(ctx sdk.Context, target string) math.Int {
	bz := a.store(ctx).Get(stakeKey(target))
	if bz == nil {
		return math.ZeroInt()
	}
	var amt math.Int
	if err := amt.Unmarshal(bz); err != nil {
		panic(fmt.Sprintf("corrupt stake for %s: %v", target, err))
	}
	return amt
}

func (a *Adapter) setStake(ctx sdk.Context, target string, amt math.Int) {
	if amt.IsZero() {
		a.store(ctx).Delete(stakeKey(target))
		return
	}
	bz, _ := amt.Marshal()
	a.store(ctx).Set(stakeKey(target), bz)
}

// Unbondings returns queued undelegations in creation order
func (a *Adapter) Unbondings(ctx sdk.Context) []Unbonding {
	iterator := storetypes.KVStorePrefixIterator(a.store(ctx), UnbondingKeyPrefix)
	defer iterator.Close()

	var out []Unbonding
	for ; iterator.Valid(); iterator.Next() {
		var u Unbonding
		if err := json.Unmarshal(iterator.Value(), &u); err != nil {
			continue
		}
		out = append(out, u)
	}
	return out
}

func (a *Adapter) setUnbonding(ctx sdk.Context, u Unbonding) {
	if u.Amount.IsZero() {
		a.store(ctx).Delete(unbondingKey(u.Seq))
		return
	}
	bz, _ := json.Marshal(u)
	a.store(ctx).Set(unbondingKey(u.Seq), bz)
}

// Delegate stakes amount rounded down to the granularity and pulls it from the vault
func (a *Adapter) Delegate(ctx sdk.Context, target string, amount math.Int, _ []byte) (math.Int, error) {
	if target == "" {
		return math.Int{}, ErrUnknownTarget
	}
	actual := amount.Sub(amount.Mod(a.cfg.Granularity))
	if actual.IsZero() {
		return actual, nil
	}
	if err := a.bank.Send(ctx, a.cfg.Denom, a.cfg.Vault, a.custody, actual); err != nil {
		return math.Int{}, err
	}
	a.setStake(ctx, target, a.getStake(ctx, target).Add(actual))
	return actual, nil
}

// Undelegate queues amount of target's stake for unbonding
func (a *Adapter) Undelegate(ctx sdk.Context, target string, amount math.Int, _ []byte) (restakingtypes.ClaimTicket, error) {
	stake := a.getStake(ctx, target)
	if stake.LT(amount) {
		return restakingtypes.ClaimTicket{}, errors.Wrapf(ErrInsufficientStake, "%s has %s, undelegating %s", target, stake, amount)
	}
	a.setStake(ctx, target, stake.Sub(amount))

	seq := a.nextSeq(ctx)
	u := Unbonding{
		ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/%d", a.cfg.Name, seq))).String(),
		Seq:       seq,
		Target:    target,
		Amount:    amount,
		MaturesAt: a.CurrentEpoch(ctx) + a.cfg.UnbondingEpochs,
	}
	a.setUnbonding(ctx, u)

	return restakingtypes.ClaimTicket{ID: u.ID, Target: target, Amount: amount, MaturesAt: u.MaturesAt}, nil
}

// Claim pays every matured unbonding back to the vault
func (a *Adapter) Claim(ctx sdk.Context, _ []byte) (math.Int, error) {
	epoch := a.CurrentEpoch(ctx)
	total := math.ZeroInt()
	for _, u := range a.Unbondings(ctx) {
		if u.MaturesAt > epoch {
			continue
		}
		total = total.Add(u.Amount)
		a.store(ctx).Delete(unbondingKey(u.Seq))
	}
	if total.IsZero() {
		return total, nil
	}
	if err := a.bank.Send(ctx, a.cfg.Denom, a.custody, a.cfg.Vault, total); err != nil {
		return math.Int{}, err
	}
	return total, nil
}

// PendingClaimable sums target's matured unbondings
func (a *Adapter) PendingClaimable(ctx sdk.Context, target string) (math.Int, error) {
	matured, _ := a.unbondingTotals(ctx, target)
	return matured, nil
}

// PendingUndelegation sums target's unbondings still waiting
func (a *Adapter) PendingUndelegation(ctx sdk.Context, target string) (math.Int, error) {
	_, waiting := a.unbondingTotals(ctx, target)
	return waiting, nil
}

func (a *Adapter) unbondingTotals(ctx sdk.Context, target string) (math.Int, math.Int) {
	epoch := a.CurrentEpoch(ctx)
	matured, waiting := math.ZeroInt(), math.ZeroInt()
	for _, u := range a.Unbondings(ctx) {
		if u.Target != target {
			continue
		}
		if u.MaturesAt <= epoch {
			matured = matured.Add(u.Amount)
		} else {
			waiting = waiting.Add(u.Amount)
		}
	}
	return matured, waiting
}

// DelegatedBalance returns target's stake after slashing
func (a *Adapter) DelegatedBalance(ctx sdk.Context, target string) (math.Int, error) {
	return a.getStake(ctx, target), nil
}

// Slash burns fraction of target's stake and of its unbonding funds into the
// sink account. It returns the total slashed.
func (a *Adapter) Slash(ctx sdk.Context, target string, fraction math.LegacyDec) (math.Int, error) {
	if fraction.IsNil() || !fraction.IsPositive() || fraction.GT(math.LegacyOneDec()) {
		return math.Int{}, errors.Wrapf(ErrInvalidFraction, "%v", fraction)
	}

	stake := a.getStake(ctx, target)
	total := math.LegacyNewDecFromInt(stake).Mul(fraction).TruncateInt()
	a.setStake(ctx, target, stake.Sub(total))

	for _, u := range a.Unbondings(ctx) {
		if u.Target != target {
			continue
		}
		cut := math.LegacyNewDecFromInt(u.Amount).Mul(fraction).TruncateInt()
		u.Amount = u.Amount.Sub(cut)
		a.setUnbonding(ctx, u)
		total = total.Add(cut)
	}

	if total.IsPositive() {
		if err := a.bank.Send(ctx, a.cfg.Denom, a.custody, a.sink, total); err != nil {
			return math.Int{}, err
		}
	}
	a.logger.Info("target slashed", "target", target, "fraction", fraction.String(), "amount", total.String())

	ctx.EventManager().EmitEvent(
		sdk.NewEvent(
			"adapter_slash",
			sdk.NewAttribute("adapter", a.cfg.Name),
			sdk.NewAttribute("target", target),
			sdk.NewAttribute("amount", total.String()),
		),
	)
	return total, nil
}

// Stake is the amount held for one target
type Stake struct {
	Target string   `json:"target"`
	Amount math.Int `json:"amount"`
}

// GenesisState is the protocol state of one simulated adapter
type GenesisState struct {
	Epoch      uint64      `json:"epoch"`
	NextSeq    uint64      `json:"next_seq"`
	Stakes     []Stake     `json:"stakes"`
	Unbondings []Unbonding `json:"unbondings"`
}

// ExportGenesis dumps the protocol state
func (a *Adapter) ExportGenesis(ctx sdk.Context) GenesisState {
	gs := GenesisState{
		Epoch:      a.CurrentEpoch(ctx),
		NextSeq:    1,
		Stakes:     []Stake{},
		Unbondings: []Unbonding{},
	}
	if bz := a.store(ctx).Get(SequenceKey); bz != nil {
		gs.NextSeq = restakingtypes.BytesUint64(bz)
	}

	iterator := storetypes.KVStorePrefixIterator(a.store(ctx), StakeKeyPrefix)
	defer iterator.Close()
	for ; iterator.Valid(); iterator.Next() {
		target := string(iterator.Key()[len(StakeKeyPrefix):])
		gs.Stakes = append(gs.Stakes, Stake{Target: target, Amount: a.getStake(ctx, target)})
	}
	gs.Unbondings = append(gs.Unbondings, a.Unbondings(ctx)...)
	return gs
}

// InitGenesis loads the protocol state
func (a *Adapter) InitGenesis(ctx sdk.Context, gs GenesisState) error {
	for _, s := range gs.Stakes {
		if s.Target == "" || s.Amount.IsNil() || s.Amount.IsNegative() {
			return errors.Wrapf(ErrUnknownTarget, "invalid stake %q", s.Target)
		}
		a.setStake(ctx, s.Target, s.Amount)
	}
	for _, u := range gs.Unbondings {
		if u.Seq == 0 || u.Seq >= gs.NextSeq {
			return fmt.Errorf("unbonding seq %d out of range", u.Seq)
		}
		a.setUnbonding(ctx, u)
	}
	a.store(ctx).Set(EpochKey, restakingtypes.Uint64Bytes(gs.Epoch))
	if gs.NextSeq > 0 {
		a.store(ctx).Set(SequenceKey, restakingtypes.Uint64Bytes(gs.NextSeq))
	}
	return nil
}

// MsgAdvanceEpoch moves a simulated protocol to its next epoch
type MsgAdvanceEpoch struct {
	Authority string `json:"authority"`
	Adapter   string `json:"adapter"`
}

func (*MsgAdvanceEpoch) ProtoMessage()  {}
func (msg *MsgAdvanceEpoch) Reset()     { *msg = MsgAdvanceEpoch{} }
func (msg MsgAdvanceEpoch) String() string {
	return fmt.Sprintf("MsgAdvanceEpoch{Adapter: %s}", msg.Adapter)
}

// MsgSlash slashes a target of a simulated protocol
type MsgSlash struct {
	Authority string `json:"authority"`
	Adapter   string `json:"adapter"`
	Target    string `json:"target"`
	Fraction  string `json:"fraction"`
}

func (*MsgSlash) ProtoMessage()  {}
func (msg *MsgSlash) Reset()     { *msg = MsgSlash{} }
func (msg MsgSlash) String() string {
	return fmt.Sprintf("MsgSlash{Adapter: %s, Target: %s, Fraction: %s}", msg.Adapter, msg.Target, msg.Fraction)
}
