package types

import (
	"fmt"

	"cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

var (
	_ sdk.Msg = &MsgMint{}
	_ sdk.Msg = &MsgSend{}
)

// MsgMint creates tokens of a denom, minter only
type MsgMint struct {
	Minter string `json:"minter"`
	Denom  string `json:"denom"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// ValidateBasic implements sdk.Msg
func (msg MsgMint) ValidateBasic() error {
	if msg.Denom == "" {
		return errors.Wrap(ErrUnknownDenom, "empty denom")
	}
	if _, err := sdk.AccAddressFromBech32(msg.To); err != nil {
		return errors.Wrapf(ErrInvalidAmount, "invalid recipient: %s", err)
	}
	_, err := parseAmount(msg.Amount)
	return err
}

// GetAmount returns the parsed amount
func (msg MsgMint) GetAmount() (math.Int, error) { return parseAmount(msg.Amount) }

func (*MsgMint) ProtoMessage()  {}
func (msg *MsgMint) Reset()     { *msg = MsgMint{} }
func (msg MsgMint) String() string {
	return fmt.Sprintf("MsgMint{Denom: %s, To: %s, Amount: %s}", msg.Denom, msg.To, msg.Amount)
}

// MsgSend transfers tokens between accounts
type MsgSend struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

// ValidateBasic implements sdk.Msg
func (msg MsgSend) ValidateBasic() error {
	if _, err := sdk.AccAddressFromBech32(msg.From); err != nil {
		return errors.Wrapf(ErrInvalidAmount, "invalid sender: %s", err)
	}
	if _, err := sdk.AccAddressFromBech32(msg.To); err != nil {
		return errors.Wrapf(ErrInvalidAmount, "invalid recipient: %s", err)
	}
	_, err := parseAmount(msg.Amount)
	return err
}

// GetAmount returns the parsed amount
func (msg MsgSend) GetAmount() (math.Int, error) { return parseAmount(msg.Amount) }

func (*MsgSend) ProtoMessage()  {}
func (msg *MsgSend) Reset()     { *msg = MsgSend{} }
func (msg MsgSend) String() string {
	return fmt.Sprintf("MsgSend{From: %s, To: %s, Amount: %s%s}", msg.From, msg.To, msg.Amount, msg.Denom)
}

func parseAmount(s string) (math.Int, error) {
	amount, ok := math.NewIntFromString(s)
	if !ok || !amount.IsPositive() {
		return math.Int{}, errors.Wrapf(ErrInvalidAmount, "%q", s)
	}
	return amount, nil
}
