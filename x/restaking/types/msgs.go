package types

import (
	"fmt"

	"cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Message types
const (
	TypeMsgDeposit         = "deposit"
	TypeMsgWithdraw        = "withdraw"
	TypeMsgFlashWithdraw   = "flash_withdraw"
	TypeMsgRedeem          = "redeem"
	TypeMsgDelegate        = "delegate"
	TypeMsgUndelegate      = "undelegate"
	TypeMsgBatchDelegate   = "batch_delegate"
	TypeMsgBatchUndelegate = "batch_undelegate"
	TypeMsgClaim           = "claim"
	TypeMsgSyncDelegations = "sync_delegations"
	TypeMsgSettleEpochs    = "settle_epochs"
	TypeMsgUpdateParams    = "update_params"
)

var (
	_ sdk.Msg = &MsgDeposit{}
	_ sdk.Msg = &MsgWithdraw{}
	_ sdk.Msg = &MsgFlashWithdraw{}
	_ sdk.Msg = &MsgRedeem{}
	_ sdk.Msg = &MsgDelegate{}
	_ sdk.Msg = &MsgUndelegate{}
	_ sdk.Msg = &MsgBatchDelegate{}
	_ sdk.Msg = &MsgBatchUndelegate{}
	_ sdk.Msg = &MsgClaim{}
	_ sdk.Msg = &MsgSyncDelegations{}
	_ sdk.Msg = &MsgSettleEpochs{}
	_ sdk.Msg = &MsgUpdateParams{}
)

// ParseAmount parses a base-unit integer amount and requires it to be positive
func ParseAmount(s string) (math.Int, error) {
	amount, ok := math.NewIntFromString(s)
	if !ok {
		return math.Int{}, errors.Wrapf(ErrZeroAmount, "invalid amount %q", s)
	}
	if !amount.IsPositive() {
		return math.Int{}, errors.Wrapf(ErrZeroAmount, "%s", s)
	}
	return amount, nil
}

func validateAddress(field, addr string) error {
	if _, err := sdk.AccAddressFromBech32(addr); err != nil {
		return errors.Wrapf(ErrInvalidAddress, "%s: %s", field, err)
	}
	return nil
}

func signer(addr string) []sdk.AccAddress {
	acc, _ := sdk.AccAddressFromBech32(addr)
	return []sdk.AccAddress{acc}
}

// ============ User messages ============

// MsgDeposit deposits base asset and mints shares to Receiver
type MsgDeposit struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Amount   string `json:"amount"`
}

func (msg MsgDeposit) Route() string { return ModuleName }
func (msg MsgDeposit) Type() string  { return TypeMsgDeposit }

// ValidateBasic implements sdk.Msg
func (msg MsgDeposit) ValidateBasic() error {
	if err := validateAddress("sender", msg.Sender); err != nil {
		return err
	}
	if err := validateAddress("receiver", msg.Receiver); err != nil {
		return err
	}
	_, err := ParseAmount(msg.Amount)
	return err
}

func (msg MsgDeposit) GetSigners() []sdk.AccAddress { return signer(msg.Sender) }
func (*MsgDeposit) ProtoMessage()                   {}
func (msg *MsgDeposit) Reset()                      { *msg = MsgDeposit{} }
func (msg MsgDeposit) String() string {
	return fmt.Sprintf("MsgDeposit{Sender: %s, Receiver: %s, Amount: %s}", msg.Sender, msg.Receiver, msg.Amount)
}

// MsgDepositResponse defines the Deposit response
type MsgDepositResponse struct {
	Shares string `json:"shares"`
	Ratio  string `json:"ratio"`
}

// MsgWithdraw burns shares and queues a withdrawal for Receiver
type MsgWithdraw struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Shares   string `json:"shares"`
}

func (msg MsgWithdraw) Route() string { return ModuleName }
func (msg MsgWithdraw) Type() string  { return TypeMsgWithdraw }

// ValidateBasic implements sdk.Msg
func (msg MsgWithdraw) ValidateBasic() error {
	if err := validateAddress("sender", msg.Sender); err != nil {
		return err
	}
	if err := validateAddress("receiver", msg.Receiver); err != nil {
		return err
	}
	_, err := ParseAmount(msg.Shares)
	return err
}

func (msg MsgWithdraw) GetSigners() []sdk.AccAddress { return signer(msg.Sender) }
func (*MsgWithdraw) ProtoMessage()                   {}
func (msg *MsgWithdraw) Reset()                      { *msg = MsgWithdraw{} }
func (msg MsgWithdraw) String() string {
	return fmt.Sprintf("MsgWithdraw{Sender: %s, Receiver: %s, Shares: %s}", msg.Sender, msg.Receiver, msg.Shares)
}

// MsgWithdrawResponse defines the Withdraw response
type MsgWithdrawResponse struct {
	WithdrawalID uint64 `json:"withdrawal_id"`
	Epoch        uint64 `json:"epoch"`
	OwedAssets   string `json:"owed_assets"`
}

// MsgFlashWithdraw redeems shares instantly from unreserved free balance
type MsgFlashWithdraw struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Shares   string `json:"shares"`
}

func (msg MsgFlashWithdraw) Route() string { return ModuleName }
func (msg MsgFlashWithdraw) Type() string  { return TypeMsgFlashWithdraw }

// ValidateBasic implements sdk.Msg
func (msg MsgFlashWithdraw) ValidateBasic() error {
	return MsgWithdraw{Sender: msg.Sender, Receiver: msg.Receiver, Shares: msg.Shares}.ValidateBasic()
}

func (msg MsgFlashWithdraw) GetSigners() []sdk.AccAddress { return signer(msg.Sender) }
func (*MsgFlashWithdraw) ProtoMessage()                   {}
func (msg *MsgFlashWithdraw) Reset()                      { *msg = MsgFlashWithdraw{} }
func (msg MsgFlashWithdraw) String() string {
	return fmt.Sprintf("MsgFlashWithdraw{Sender: %s, Receiver: %s, Shares: %s}", msg.Sender, msg.Receiver, msg.Shares)
}

// MsgFlashWithdrawResponse defines the FlashWithdraw response
type MsgFlashWithdrawResponse struct {
	Amount string `json:"amount"`
	Fee    string `json:"fee"`
}

// MsgRedeem pays out every fulfilled withdrawal of Beneficiary. Anyone may relay it.
type MsgRedeem struct {
	Caller      string `json:"caller"`
	Beneficiary string `json:"beneficiary"`
}

func (msg MsgRedeem) Route() string { return ModuleName }
func (msg MsgRedeem) Type() string  { return TypeMsgRedeem }

// ValidateBasic implements sdk.Msg
func (msg MsgRedeem) ValidateBasic() error {
	if err := validateAddress("caller", msg.Caller); err != nil {
		return err
	}
	return validateAddress("beneficiary", msg.Beneficiary)
}

func (msg MsgRedeem) GetSigners() []sdk.AccAddress { return signer(msg.Caller) }
func (*MsgRedeem) ProtoMessage()                   {}
func (msg *MsgRedeem) Reset()                      { *msg = MsgRedeem{} }
func (msg MsgRedeem) String() string {
	return fmt.Sprintf("MsgRedeem{Caller: %s, Beneficiary: %s}", msg.Caller, msg.Beneficiary)
}

// MsgRedeemResponse defines the Redeem response
type MsgRedeemResponse struct {
	Amount      string   `json:"amount"`
	Withdrawals []uint64 `json:"withdrawals"`
}

// ============ Operator messages ============

// MsgDelegate delegates free balance through an adapter
type MsgDelegate struct {
	Operator string `json:"operator"`
	Adapter  string `json:"adapter"`
	Target   string `json:"target"`
	Amount   string `json:"amount"`
	Data     []byte `json:"data,omitempty"`
}

func (msg MsgDelegate) Route() string { return ModuleName }
func (msg MsgDelegate) Type() string  { return TypeMsgDelegate }

// ValidateBasic implements sdk.Msg
func (msg MsgDelegate) ValidateBasic() error {
	if err := validateAddress("operator", msg.Operator); err != nil {
		return err
	}
	if msg.Adapter == "" {
		return errors.Wrap(ErrAdapterNotRegistered, "empty adapter")
	}
	if msg.Target == "" {
		return ErrInvalidTarget
	}
	_, err := ParseAmount(msg.Amount)
	return err
}

func (msg MsgDelegate) GetSigners() []sdk.AccAddress { return signer(msg.Operator) }
func (*MsgDelegate) ProtoMessage()                   {}
func (msg *MsgDelegate) Reset()                      { *msg = MsgDelegate{} }
func (msg MsgDelegate) String() string {
	return fmt.Sprintf("MsgDelegate{Adapter: %s, Target: %s, Amount: %s}", msg.Adapter, msg.Target, msg.Amount)
}

// MsgDelegateResponse defines the Delegate response
type MsgDelegateResponse struct {
	Actual []string `json:"actual"`
}

// MsgUndelegate starts an undelegation through an adapter
type MsgUndelegate struct {
	Operator string `json:"operator"`
	Adapter  string `json:"adapter"`
	Target   string `json:"target"`
	Amount   string `json:"amount"`
	Data     []byte `json:"data,omitempty"`
}

func (msg MsgUndelegate) Route() string { return ModuleName }
func (msg MsgUndelegate) Type() string  { return TypeMsgUndelegate }

// ValidateBasic implements sdk.Msg
func (msg MsgUndelegate) ValidateBasic() error {
	return MsgDelegate(msg).ValidateBasic()
}

func (msg MsgUndelegate) GetSigners() []sdk.AccAddress { return signer(msg.Operator) }
func (*MsgUndelegate) ProtoMessage()                   {}
func (msg *MsgUndelegate) Reset()                      { *msg = MsgUndelegate{} }
func (msg MsgUndelegate) String() string {
	return fmt.Sprintf("MsgUndelegate{Adapter: %s, Target: %s, Amount: %s}", msg.Adapter, msg.Target, msg.Amount)
}

// MsgUndelegateResponse defines the Undelegate response
type MsgUndelegateResponse struct {
	TicketIDs    []uint64 `json:"ticket_ids"`
	ClosedEpochs []uint64 `json:"closed_epochs"`
}

// MsgBatchDelegate applies several delegations atomically
type MsgBatchDelegate struct {
	Operator string   `json:"operator"`
	Adapters []string `json:"adapters"`
	Targets  []string `json:"targets"`
	Amounts  []string `json:"amounts"`
	Data     [][]byte `json:"data,omitempty"`
}

func (msg MsgBatchDelegate) Route() string { return ModuleName }
func (msg MsgBatchDelegate) Type() string  { return TypeMsgBatchDelegate }

// ValidateBasic implements sdk.Msg
func (msg MsgBatchDelegate) ValidateBasic() error {
	if err := validateAddress("operator", msg.Operator); err != nil {
		return err
	}
	n := len(msg.Adapters)
	if n == 0 || len(msg.Targets) != n || len(msg.Amounts) != n || (msg.Data != nil && len(msg.Data) != n) {
		return errors.Wrapf(ErrInvalidBatch, "adapters %d, targets %d, amounts %d, data %d",
			len(msg.Adapters), len(msg.Targets), len(msg.Amounts), len(msg.Data))
	}
	for i := range msg.Adapters {
		entry := MsgDelegate{Operator: msg.Operator, Adapter: msg.Adapters[i], Target: msg.Targets[i], Amount: msg.Amounts[i]}
		if err := entry.ValidateBasic(); err != nil {
			return errors.Wrapf(err, "entry %d", i)
		}
	}
	return nil
}

// Entry returns the i-th batch entry data, nil when no data was sent
func (msg MsgBatchDelegate) Entry(i int) []byte {
	if msg.Data == nil {
		return nil
	}
	return msg.Data[i]
}

func (msg MsgBatchDelegate) GetSigners() []sdk.AccAddress { return signer(msg.Operator) }
func (*MsgBatchDelegate) ProtoMessage()                   {}
func (msg *MsgBatchDelegate) Reset()                      { *msg = MsgBatchDelegate{} }
func (msg MsgBatchDelegate) String() string {
	return fmt.Sprintf("MsgBatchDelegate{Entries: %d}", len(msg.Adapters))
}

// MsgBatchUndelegate applies several undelegations atomically
type MsgBatchUndelegate struct {
	Operator string   `json:"operator"`
	Adapters []string `json:"adapters"`
	Targets  []string `json:"targets"`
	Amounts  []string `json:"amounts"`
	Data     [][]byte `json:"data,omitempty"`
}

func (msg MsgBatchUndelegate) Route() string { return ModuleName }
func (msg MsgBatchUndelegate) Type() string  { return TypeMsgBatchUndelegate }

// ValidateBasic implements sdk.Msg
func (msg MsgBatchUndelegate) ValidateBasic() error {
	return MsgBatchDelegate(msg).ValidateBasic()
}

// Entry returns the i-th batch entry data, nil when no data was sent
func (msg MsgBatchUndelegate) Entry(i int) []byte {
	return MsgBatchDelegate(msg).Entry(i)
}

func (msg MsgBatchUndelegate) GetSigners() []sdk.AccAddress { return signer(msg.Operator) }
func (*MsgBatchUndelegate) ProtoMessage()                   {}
func (msg *MsgBatchUndelegate) Reset()                      { *msg = MsgBatchUndelegate{} }
func (msg MsgBatchUndelegate) String() string {
	return fmt.Sprintf("MsgBatchUndelegate{Entries: %d}", len(msg.Adapters))
}

// MsgClaim pulls matured undelegations of an adapter back into the vault
type MsgClaim struct {
	Operator string `json:"operator"`
	Epoch    uint64 `json:"epoch"`
	Adapter  string `json:"adapter"`
	Data     []byte `json:"data,omitempty"`
}

func (msg MsgClaim) Route() string { return ModuleName }
func (msg MsgClaim) Type() string  { return TypeMsgClaim }

// ValidateBasic implements sdk.Msg
func (msg MsgClaim) ValidateBasic() error {
	if err := validateAddress("operator", msg.Operator); err != nil {
		return err
	}
	if msg.Adapter == "" {
		return errors.Wrap(ErrAdapterNotRegistered, "empty adapter")
	}
	if msg.Epoch == 0 {
		return errors.Wrap(ErrEpochNotFound, "epoch 0")
	}
	return nil
}

func (msg MsgClaim) GetSigners() []sdk.AccAddress { return signer(msg.Operator) }
func (*MsgClaim) ProtoMessage()                   {}
func (msg *MsgClaim) Reset()                      { *msg = MsgClaim{} }
func (msg MsgClaim) String() string {
	return fmt.Sprintf("MsgClaim{Epoch: %d, Adapter: %s}", msg.Epoch, msg.Adapter)
}

// MsgClaimResponse defines the Claim response
type MsgClaimResponse struct {
	Claimed        string   `json:"claimed"`
	WrittenOff     string   `json:"written_off"`
	FulfilledEpoch []uint64 `json:"fulfilled_epochs"`
}

// MsgSyncDelegations reconciles the ledger with adapter balances after slashing or rewards
type MsgSyncDelegations struct {
	Operator string `json:"operator"`
}

func (msg MsgSyncDelegations) Route() string { return ModuleName }
func (msg MsgSyncDelegations) Type() string  { return TypeMsgSyncDelegations }

// ValidateBasic implements sdk.Msg
func (msg MsgSyncDelegations) ValidateBasic() error {
	return validateAddress("operator", msg.Operator)
}

func (msg MsgSyncDelegations) GetSigners() []sdk.AccAddress { return signer(msg.Operator) }
func (*MsgSyncDelegations) ProtoMessage()                   {}
func (msg *MsgSyncDelegations) Reset()                      { *msg = MsgSyncDelegations{} }
func (msg MsgSyncDelegations) String() string {
	return fmt.Sprintf("MsgSyncDelegations{Operator: %s}", msg.Operator)
}

// MsgSyncDelegationsResponse defines the SyncDelegations response
type MsgSyncDelegationsResponse struct {
	Delta string `json:"delta"`
}

// MsgSettleEpochs closes and fulfils epochs that unreserved free balance can cover
type MsgSettleEpochs struct {
	Operator string `json:"operator"`
}

func (msg MsgSettleEpochs) Route() string { return ModuleName }
func (msg MsgSettleEpochs) Type() string  { return TypeMsgSettleEpochs }

// ValidateBasic implements sdk.Msg
func (msg MsgSettleEpochs) ValidateBasic() error {
	return validateAddress("operator", msg.Operator)
}

func (msg MsgSettleEpochs) GetSigners() []sdk.AccAddress { return signer(msg.Operator) }
func (*MsgSettleEpochs) ProtoMessage()                   {}
func (msg *MsgSettleEpochs) Reset()                      { *msg = MsgSettleEpochs{} }
func (msg MsgSettleEpochs) String() string {
	return fmt.Sprintf("MsgSettleEpochs{Operator: %s}", msg.Operator)
}

// MsgSettleEpochsResponse defines the SettleEpochs response
type MsgSettleEpochsResponse struct {
	ClosedEpochs    []uint64 `json:"closed_epochs"`
	FulfilledEpochs []uint64 `json:"fulfilled_epochs"`
}

// ============ Authority messages ============

// MsgUpdateParams replaces the vault params
type MsgUpdateParams struct {
	Authority string `json:"authority"`
	Params    Params `json:"params"`
}

func (msg MsgUpdateParams) Route() string { return ModuleName }
func (msg MsgUpdateParams) Type() string  { return TypeMsgUpdateParams }

// ValidateBasic implements sdk.Msg
func (msg MsgUpdateParams) ValidateBasic() error {
	if err := validateAddress("authority", msg.Authority); err != nil {
		return err
	}
	if err := msg.Params.Validate(); err != nil {
		return errors.Wrap(ErrInvalidParams, err.Error())
	}
	return nil
}

func (msg MsgUpdateParams) GetSigners() []sdk.AccAddress { return signer(msg.Authority) }
func (*MsgUpdateParams) ProtoMessage()                   {}
func (msg *MsgUpdateParams) Reset()                      { *msg = MsgUpdateParams{} }
func (msg MsgUpdateParams) String() string {
	return fmt.Sprintf("MsgUpdateParams{Authority: %s}", msg.Authority)
}

// MsgUpdateParamsResponse defines the UpdateParams response
type MsgUpdateParamsResponse struct{}
