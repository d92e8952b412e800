package types

import (
	"cosmossdk.io/math"
)

// Epoch status values
const (
	EpochStatusOpen      = "open"
	EpochStatusClosed    = "closed"
	EpochStatusFulfilled = "fulfilled"
)

// Redeem readiness reasons
const (
	RedeemReasonNone                = ""
	RedeemReasonNoPending           = "no_pending_withdrawal"
	RedeemReasonEpochNotFulfilled   = "epoch_not_fulfilled"
	RedeemReasonReserveInsufficient = "reserve_insufficient"
)

// VaultState is the singleton ledger of the vault
type VaultState struct {
	// FreeBalance is every asset unit held by the vault account, earmarked or not
	FreeBalance math.Int `json:"free_balance"`
	// RedeemReserved is the part of FreeBalance owed to fulfilled, unredeemed withdrawals
	RedeemReserved math.Int `json:"redeem_reserved"`
	// PartiallyClaimed is the part of FreeBalance already claimed toward closed, unfulfilled epochs
	PartiallyClaimed math.Int `json:"partially_claimed"`
	TotalDelegated   math.Int `json:"total_delegated"`
	// InFlight is undelegated but not yet claimed
	InFlight           math.Int `json:"in_flight"`
	TotalDeposited     math.Int `json:"total_deposited"`
	PendingPrincipal   math.Int `json:"pending_principal"`
	PendingObligations math.Int `json:"pending_obligations"`

	CurrentEpoch           uint64 `json:"current_epoch"`
	OldestUnfulfilledEpoch uint64 `json:"oldest_unfulfilled_epoch"`
	NextWithdrawalID       uint64 `json:"next_withdrawal_id"`
	NextTicketID           uint64 `json:"next_ticket_id"`
	NextSnapshotSeq        uint64 `json:"next_snapshot_seq"`

	CumulativeIn   math.Int `json:"cumulative_in"`
	CumulativeOut  math.Int `json:"cumulative_out"`
	CumulativeLoss math.Int `json:"cumulative_loss"`
	CumulativeGain math.Int `json:"cumulative_gain"`
}

// NewVaultState returns an empty vault with epoch 1 open
func NewVaultState() VaultState {
	return VaultState{
		FreeBalance:            math.ZeroInt(),
		RedeemReserved:         math.ZeroInt(),
		PartiallyClaimed:       math.ZeroInt(),
		TotalDelegated:         math.ZeroInt(),
		InFlight:               math.ZeroInt(),
		TotalDeposited:         math.ZeroInt(),
		PendingPrincipal:       math.ZeroInt(),
		PendingObligations:     math.ZeroInt(),
		CurrentEpoch:           1,
		OldestUnfulfilledEpoch: 1,
		NextWithdrawalID:       1,
		NextTicketID:           1,
		NextSnapshotSeq:        1,
		CumulativeIn:           math.ZeroInt(),
		CumulativeOut:          math.ZeroInt(),
		CumulativeLoss:         math.ZeroInt(),
		CumulativeGain:         math.ZeroInt(),
	}
}

// GrossAssets is everything the vault owns or is owed by adapters
func (v VaultState) GrossAssets() math.Int {
	return v.FreeBalance.Add(v.InFlight).Add(v.TotalDelegated)
}

// UnreservedFree is the free balance not earmarked for any withdrawal epoch
func (v VaultState) UnreservedFree() math.Int {
	free := v.FreeBalance.Sub(v.RedeemReserved).Sub(v.PartiallyClaimed)
	if free.IsNegative() {
		return math.ZeroInt()
	}
	return free
}

// Equity is gross assets net of every outstanding withdrawal obligation
func (v VaultState) Equity() math.Int {
	return v.GrossAssets().Sub(v.PendingObligations)
}

// DelegationPosition is the amount delegated through one adapter to one target
type DelegationPosition struct {
	Adapter string   `json:"adapter"`
	Target  string   `json:"target"`
	Amount  math.Int `json:"amount"`
}

// ClaimTicket is what an adapter returns for an undelegation
type ClaimTicket struct {
	ID        string   `json:"id"`
	Target    string   `json:"target"`
	Amount    math.Int `json:"amount"`
	MaturesAt uint64   `json:"matures_at"` // adapter-specific epoch
}

// UndelegationTicket tracks funds in flight from an adapter back to the vault
type UndelegationTicket struct {
	ID         uint64   `json:"id"`
	Adapter    string   `json:"adapter"`
	Target     string   `json:"target"`
	Amount     math.Int `json:"amount"`
	Remaining  math.Int `json:"remaining"`
	ExternalID string   `json:"external_id"`
	MaturesAt  uint64   `json:"matures_at"`
	Epoch      uint64   `json:"epoch"` // current withdrawal epoch when created
	CreatedAt  int64    `json:"created_at"`
	Height     int64    `json:"height"`
}

// WithdrawalEpoch batches withdrawal requests settled together
type WithdrawalEpoch struct {
	ID              uint64         `json:"id"`
	Status          string         `json:"status"`
	RequestedShares math.Int       `json:"requested_shares"`
	RequestedAssets math.Int       `json:"requested_assets"` // sum of frozen owed assets
	ReservedAssets  math.Int       `json:"reserved_assets"`
	ClaimedAssets   math.Int       `json:"claimed_assets"`
	Requests        uint64         `json:"requests"`
	ClosingRatio    math.LegacyDec `json:"closing_ratio"`
	ClosedAt        int64          `json:"closed_at"`
	ClosedHeight    int64          `json:"closed_height"`
	FulfilledAt     int64          `json:"fulfilled_at"`
	FulfilledHeight int64          `json:"fulfilled_height"`
}

// NewWithdrawalEpoch opens a new empty epoch
func NewWithdrawalEpoch(id uint64) WithdrawalEpoch {
	return WithdrawalEpoch{
		ID:              id,
		Status:          EpochStatusOpen,
		RequestedShares: math.ZeroInt(),
		RequestedAssets: math.ZeroInt(),
		ReservedAssets:  math.ZeroInt(),
		ClaimedAssets:   math.ZeroInt(),
		ClosingRatio:    math.LegacyZeroDec(),
	}
}

// Deficit is what is still to be claimed before the epoch can be fulfilled
func (e WithdrawalEpoch) Deficit() math.Int {
	d := e.ReservedAssets.Sub(e.ClaimedAssets)
	if d.IsNegative() {
		return math.ZeroInt()
	}
	return d
}

// IsFulfilled reports whether the epoch funds are fully in the vault
func (e WithdrawalEpoch) IsFulfilled() bool {
	return e.Status == EpochStatusFulfilled
}

// PendingWithdrawal is one queued user withdrawal with its frozen value
type PendingWithdrawal struct {
	ID          uint64   `json:"id"`
	Epoch       uint64   `json:"epoch"`
	Requester   string   `json:"requester"`
	Beneficiary string   `json:"beneficiary"`
	Shares      math.Int `json:"shares"`
	OwedAssets  math.Int `json:"owed_assets"`
	Principal   math.Int `json:"principal"`
	RequestedAt int64    `json:"requested_at"`
	Height      int64    `json:"height"`
}

// RatioSnapshot records the vault ratio after a committed operation
type RatioSnapshot struct {
	Seq           uint64         `json:"seq"`
	Height        int64          `json:"height"`
	Timestamp     int64          `json:"timestamp"`
	AdjustedRatio math.LegacyDec `json:"adjusted_ratio"`
	BackingRatio  math.LegacyDec `json:"backing_ratio"`
	Equity        math.Int       `json:"equity"`
	Supply        math.Int       `json:"supply"`
}

// RedeemStatus answers whether a beneficiary can redeem now
type RedeemStatus struct {
	Able        bool     `json:"able"`
	Reason      string   `json:"reason,omitempty"`
	Redeemable  math.Int `json:"redeemable"`
	Pending     math.Int `json:"pending"`
	Withdrawals int      `json:"withdrawals"`
}
