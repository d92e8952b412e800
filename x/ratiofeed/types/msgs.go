package types

import (
	"fmt"

	"cosmossdk.io/errors"
	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

var (
	_ sdk.Msg = &MsgUpdateRatios{}
	_ sdk.Msg = &MsgConfirmRatio{}
	_ sdk.Msg = &MsgUpdateParams{}
)

// MsgUpdateRatios pushes a batch of ratios
type MsgUpdateRatios struct {
	Signer   string   `json:"signer"`
	TokenIDs []string `json:"token_ids"`
	Ratios   []string `json:"ratios"`
}

// ValidateBasic implements sdk.Msg
func (msg MsgUpdateRatios) ValidateBasic() error {
	if _, err := sdk.AccAddressFromBech32(msg.Signer); err != nil {
		return errors.Wrapf(ErrUnauthorized, "invalid signer: %s", err)
	}
	if len(msg.TokenIDs) != len(msg.Ratios) || len(msg.TokenIDs) == 0 {
		return errors.Wrapf(ErrInvalidBatch, "%d ids, %d ratios", len(msg.TokenIDs), len(msg.Ratios))
	}
	_, err := msg.ParseRatios()
	return err
}

// ParseRatios decodes the ratios as 18-decimal fixed point values
func (msg MsgUpdateRatios) ParseRatios() ([]math.LegacyDec, error) {
	out := make([]math.LegacyDec, len(msg.Ratios))
	for i, s := range msg.Ratios {
		r, err := math.LegacyNewDecFromStr(s)
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidRatio, "%q: %s", s, err)
		}
		out[i] = r
	}
	return out, nil
}

func (*MsgUpdateRatios) ProtoMessage()  {}
func (msg *MsgUpdateRatios) Reset()     { *msg = MsgUpdateRatios{} }
func (msg MsgUpdateRatios) String() string {
	return fmt.Sprintf("MsgUpdateRatios{Signer: %s, TokenIDs: %v}", msg.Signer, msg.TokenIDs)
}

// MsgConfirmRatio accepts a ratio move that exceeded the deviation threshold
type MsgConfirmRatio struct {
	Signer  string `json:"signer"`
	TokenID string `json:"token_id"`
}

// ValidateBasic implements sdk.Msg
func (msg MsgConfirmRatio) ValidateBasic() error {
	if _, err := sdk.AccAddressFromBech32(msg.Signer); err != nil {
		return errors.Wrapf(ErrUnauthorized, "invalid signer: %s", err)
	}
	if msg.TokenID == "" {
		return errors.Wrap(ErrInvalidRatio, "empty token id")
	}
	return nil
}

func (*MsgConfirmRatio) ProtoMessage()  {}
func (msg *MsgConfirmRatio) Reset()     { *msg = MsgConfirmRatio{} }
func (msg MsgConfirmRatio) String() string {
	return fmt.Sprintf("MsgConfirmRatio{Signer: %s, TokenID: %s}", msg.Signer, msg.TokenID)
}

// MsgUpdateParams replaces the feed thresholds
type MsgUpdateParams struct {
	Signer string `json:"signer"`
	Params Params `json:"params"`
}

// ValidateBasic implements sdk.Msg
func (msg MsgUpdateParams) ValidateBasic() error {
	if _, err := sdk.AccAddressFromBech32(msg.Signer); err != nil {
		return errors.Wrapf(ErrUnauthorized, "invalid signer: %s", err)
	}
	if err := msg.Params.Validate(); err != nil {
		return errors.Wrap(ErrInvalidParams, err.Error())
	}
	return nil
}

func (*MsgUpdateParams) ProtoMessage()  {}
func (msg *MsgUpdateParams) Reset()     { *msg = MsgUpdateParams{} }
func (msg MsgUpdateParams) String() string {
	return fmt.Sprintf("MsgUpdateParams{Signer: %s}", msg.Signer)
}
