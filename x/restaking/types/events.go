package types

// Event types
const (
	EventTypeDeposit         = "restaking_deposit"
	EventTypeWithdraw        = "restaking_withdraw"
	EventTypeFlashWithdraw   = "restaking_flash_withdraw"
	EventTypeRedeem          = "restaking_redeem"
	EventTypeDelegate        = "restaking_delegate"
	EventTypeUndelegate      = "restaking_undelegate"
	EventTypeClaim           = "restaking_claim"
	EventTypeEpochClosed     = "restaking_epoch_closed"
	EventTypeEpochFulfilled  = "restaking_epoch_fulfilled"
	EventTypeSyncDelegations = "restaking_sync_delegations"
	EventTypeParamsUpdated   = "restaking_params_updated"
	EventTypeRatioSnapshot   = "restaking_ratio_snapshot"
)

// Event attribute keys
const (
	AttributeKeySender         = "sender"
	AttributeKeyReceiver       = "receiver"
	AttributeKeyBeneficiary    = "beneficiary"
	AttributeKeyOperator       = "operator"
	AttributeKeyAmount         = "amount"
	AttributeKeyActualAmount   = "actual_amount"
	AttributeKeyShares         = "shares"
	AttributeKeyOwedAssets     = "owed_assets"
	AttributeKeyFee            = "fee"
	AttributeKeyRatio          = "ratio"
	AttributeKeyAdapter        = "adapter"
	AttributeKeyTarget         = "target"
	AttributeKeyEpoch          = "epoch"
	AttributeKeyWithdrawalID   = "withdrawal_id"
	AttributeKeyTicketID       = "ticket_id"
	AttributeKeyWrittenOff     = "written_off"
	AttributeKeyFreeBalance    = "free_balance"
	AttributeKeyTotalDelegated = "total_delegated"
	AttributeKeyInFlight       = "in_flight"
	AttributeKeyDelta          = "delta"
)
