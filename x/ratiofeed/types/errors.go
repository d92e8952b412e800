package types

import (
	"cosmossdk.io/errors"
)

// Ratio feed errors
var (
	ErrRatioNotFound  = errors.Register(ModuleName, 1, "ratio not found")
	ErrRatioStale     = errors.Register(ModuleName, 2, "ratio is stale")
	ErrRatioDeviation = errors.Register(ModuleName, 3, "ratio deviation exceeds threshold")
	ErrInvalidRatio   = errors.Register(ModuleName, 4, "invalid ratio")
	ErrInvalidBatch   = errors.Register(ModuleName, 5, "token ids and ratios length mismatch")
	ErrUnauthorized   = errors.Register(ModuleName, 6, "unauthorized")
	ErrInvalidParams  = errors.Register(ModuleName, 7, "invalid params")
)
