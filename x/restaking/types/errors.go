package types

import (
	"cosmossdk.io/errors"
)

// Module error codes
var (
	// Input validation
	ErrZeroAmount           = errors.Register(ModuleName, 1, "amount must be positive")
	ErrInvalidTarget        = errors.Register(ModuleName, 2, "invalid delegation target")
	ErrAdapterNotRegistered = errors.Register(ModuleName, 3, "adapter not registered")
	ErrInvalidBatch         = errors.Register(ModuleName, 4, "batch arrays length mismatch")
	ErrZeroShares           = errors.Register(ModuleName, 5, "amount converts to zero shares")
	ErrInvalidAddress       = errors.Register(ModuleName, 6, "invalid address")
	ErrBelowMinDeposit      = errors.Register(ModuleName, 7, "deposit below minimum")

	// Capacity and authorization
	ErrExceedsTargetCap    = errors.Register(ModuleName, 10, "delegation exceeds target cap")
	ErrFlashCapacityBreach = errors.Register(ModuleName, 11, "delegation would breach target flash capacity")
	ErrUnauthorized        = errors.Register(ModuleName, 12, "unauthorized")

	// Resource insufficiency
	ErrInsufficientFreeBalance     = errors.Register(ModuleName, 20, "insufficient free balance")
	ErrInsufficientDelegatedAmount = errors.Register(ModuleName, 21, "insufficient delegated amount")
	ErrInsufficientShares          = errors.Register(ModuleName, 22, "insufficient shares")
	ErrInsufficientFlashCapacity   = errors.Register(ModuleName, 23, "insufficient flash capacity")
	ErrVaultInsolvent              = errors.Register(ModuleName, 24, "vault equity is not positive")

	// Temporal / state
	ErrEpochNotClaimable   = errors.Register(ModuleName, 30, "epoch not fulfilled")
	ErrEpochNotClosed      = errors.Register(ModuleName, 31, "epoch still open")
	ErrEpochNotFound       = errors.Register(ModuleName, 32, "epoch not found")
	ErrRatioStale          = errors.Register(ModuleName, 33, "ratio is stale")
	ErrRatioDeviation      = errors.Register(ModuleName, 34, "ratio deviation exceeds threshold")
	ErrRatioDivergence     = errors.Register(ModuleName, 35, "feed ratio diverges from vault ratio")
	ErrNoPendingWithdrawal = errors.Register(ModuleName, 36, "no pending withdrawal")

	// Collaborator failure and corruption
	ErrAdapterInconsistent = errors.Register(ModuleName, 40, "adapter returned an inconsistent result")
	ErrAdapterFailed       = errors.Register(ModuleName, 41, "adapter call failed")
	ErrInvariantBroken     = errors.Register(ModuleName, 42, "vault invariant broken")
	ErrInvalidParams       = errors.Register(ModuleName, 43, "invalid params")
	ErrInvalidGenesis      = errors.Register(ModuleName, 44, "invalid genesis")
)
