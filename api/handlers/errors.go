package handlers

import (
	"encoding/json"
	"net/http"

	"cosmossdk.io/errors"
	sdkerrors "github.com/cosmos/cosmos-sdk/types/errors"

	"github.com/openalpha/lrt-vault/api/middleware"
	ratiofeedtypes "github.com/openalpha/lrt-vault/x/ratiofeed/types"
	"github.com/openalpha/lrt-vault/x/restaking/adapters/simulated"
	restakingtypes "github.com/openalpha/lrt-vault/x/restaking/types"
	tokentypes "github.com/openalpha/lrt-vault/x/token/types"
)

// statusClasses maps registered errors to HTTP statuses. Unlisted registered
// errors are client errors.
var statusClasses = []struct {
	status int
	errs   []error
}{
	{http.StatusForbidden, []error{
		restakingtypes.ErrUnauthorized,
		ratiofeedtypes.ErrUnauthorized,
		tokentypes.ErrUnauthorizedMint,
	}},
	{http.StatusNotFound, []error{
		restakingtypes.ErrEpochNotFound,
		restakingtypes.ErrNoPendingWithdrawal,
		restakingtypes.ErrAdapterNotRegistered,
		ratiofeedtypes.ErrRatioNotFound,
		tokentypes.ErrUnknownDenom,
		simulated.ErrUnknownTarget,
	}},
	{http.StatusServiceUnavailable, []error{
		restakingtypes.ErrRatioStale,
		restakingtypes.ErrRatioDeviation,
		restakingtypes.ErrRatioDivergence,
		ratiofeedtypes.ErrRatioStale,
		ratiofeedtypes.ErrRatioDeviation,
	}},
	{http.StatusConflict, []error{
		restakingtypes.ErrExceedsTargetCap,
		restakingtypes.ErrFlashCapacityBreach,
		restakingtypes.ErrInsufficientFreeBalance,
		restakingtypes.ErrInsufficientDelegatedAmount,
		restakingtypes.ErrInsufficientShares,
		restakingtypes.ErrInsufficientFlashCapacity,
		restakingtypes.ErrVaultInsolvent,
		restakingtypes.ErrEpochNotClaimable,
		restakingtypes.ErrEpochNotClosed,
		tokentypes.ErrInsufficientFunds,
		simulated.ErrInsufficientStake,
	}},
	{http.StatusInternalServerError, []error{
		restakingtypes.ErrAdapterInconsistent,
		restakingtypes.ErrAdapterFailed,
		restakingtypes.ErrInvariantBroken,
		sdkerrors.ErrPanic,
	}},
}

// httpStatus returns the status code for err
func httpStatus(err error) int {
	for _, class := range statusClasses {
		if errors.IsOf(err, class.errs...) {
			return class.status
		}
	}
	if codespace, _, _ := errors.ABCIInfo(err, false); codespace == errors.UndefinedCodespace {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *VaultHandler) writeError(w http.ResponseWriter, err error) {
	codespace, code, log := errors.ABCIInfo(err, false)
	if h.metrics != nil {
		h.metrics.RecordAPIError(codespace, code)
	}
	middleware.WriteError(w, httpStatus(err), middleware.ErrorBody{
		Code:      code,
		Codespace: codespace,
		Message:   log,
	})
}

func (h *VaultHandler) badRequest(w http.ResponseWriter, message string) {
	h.writeError(w, errors.Wrap(sdkerrors.ErrInvalidRequest, message))
}
