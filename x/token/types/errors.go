package types

import (
	"cosmossdk.io/errors"
)

// Token ledger errors
var (
	ErrInsufficientFunds = errors.Register(ModuleName, 1, "insufficient funds")
	ErrInvalidAmount     = errors.Register(ModuleName, 2, "invalid amount")
	ErrUnknownDenom      = errors.Register(ModuleName, 3, "unknown denom")
	ErrUnauthorizedMint  = errors.Register(ModuleName, 4, "caller is not the minter of this denom")
	ErrDenomExists       = errors.Register(ModuleName, 5, "denom already registered")
)
