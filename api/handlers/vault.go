package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/gorilla/mux"

	"github.com/openalpha/lrt-vault/api/middleware"
	"github.com/openalpha/lrt-vault/app"
	"github.com/openalpha/lrt-vault/metrics"
	ratiofeedtypes "github.com/openalpha/lrt-vault/x/ratiofeed/types"
	"github.com/openalpha/lrt-vault/x/restaking/adapters/simulated"
	restakingtypes "github.com/openalpha/lrt-vault/x/restaking/types"
	tokentypes "github.com/openalpha/lrt-vault/x/token/types"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
	maxBodyBytes      = 1 << 20
)

// VaultHandler serves the vault ledger over HTTP
type VaultHandler struct {
	app     *app.App
	metrics *metrics.Collector
}

// NewVaultHandler creates a new VaultHandler. A nil collector disables error metrics.
func NewVaultHandler(a *app.App, collector *metrics.Collector) *VaultHandler {
	return &VaultHandler{app: a, metrics: collector}
}

// RegisterRoutes registers the vault routes. Operator, oracle and admin routes
// require apiKey when it is set.
func (h *VaultHandler) RegisterRoutes(r *mux.Router, apiKey string) {
	r.HandleFunc("/health", h.Health).Methods("GET")

	// Ledger queries
	r.HandleFunc("/v1/vault", h.GetVault).Methods("GET")
	r.HandleFunc("/v1/vault/ratio", h.GetRatio).Methods("GET")
	r.HandleFunc("/v1/positions", h.GetPositions).Methods("GET")
	r.HandleFunc("/v1/tickets", h.GetTickets).Methods("GET")
	r.HandleFunc("/v1/epochs", h.GetEpochs).Methods("GET")
	r.HandleFunc("/v1/epochs/{id}", h.GetEpoch).Methods("GET")
	r.HandleFunc("/v1/params", h.GetParams).Methods("GET")
	r.HandleFunc("/v1/adapters", h.GetAdapters).Methods("GET")
	r.HandleFunc("/v1/ratios/{token}", h.GetFeedRatio).Methods("GET")
	r.HandleFunc("/v1/events", h.GetEvents).Methods("GET")

	// User queries
	r.HandleFunc("/v1/users/{address}/withdrawals", h.GetUserWithdrawals).Methods("GET")
	r.HandleFunc("/v1/users/{address}/redeemable", h.GetRedeemable).Methods("GET")
	r.HandleFunc("/v1/users/{address}/balance", h.GetUserBalance).Methods("GET")

	// User transactions
	r.HandleFunc("/v1/deposit", h.post(func() sdk.Msg { return &restakingtypes.MsgDeposit{} })).Methods("POST")
	r.HandleFunc("/v1/withdraw", h.post(func() sdk.Msg { return &restakingtypes.MsgWithdraw{} })).Methods("POST")
	r.HandleFunc("/v1/flash-withdraw", h.post(func() sdk.Msg { return &restakingtypes.MsgFlashWithdraw{} })).Methods("POST")
	r.HandleFunc("/v1/redeem", h.post(func() sdk.Msg { return &restakingtypes.MsgRedeem{} })).Methods("POST")
	r.HandleFunc("/v1/send", h.post(func() sdk.Msg { return &tokentypes.MsgSend{} })).Methods("POST")

	// Operator transactions
	operator := r.PathPrefix("/v1/operator").Subrouter()
	operator.Use(middleware.APIKeyMiddleware(apiKey))
	operator.HandleFunc("/delegate", h.post(func() sdk.Msg { return &restakingtypes.MsgDelegate{} })).Methods("POST")
	operator.HandleFunc("/undelegate", h.post(func() sdk.Msg { return &restakingtypes.MsgUndelegate{} })).Methods("POST")
	operator.HandleFunc("/batch-delegate", h.post(func() sdk.Msg { return &restakingtypes.MsgBatchDelegate{} })).Methods("POST")
	operator.HandleFunc("/batch-undelegate", h.post(func() sdk.Msg { return &restakingtypes.MsgBatchUndelegate{} })).Methods("POST")
	operator.HandleFunc("/claim", h.post(func() sdk.Msg { return &restakingtypes.MsgClaim{} })).Methods("POST")
	operator.HandleFunc("/sync", h.post(func() sdk.Msg { return &restakingtypes.MsgSyncDelegations{} })).Methods("POST")
	operator.HandleFunc("/settle", h.post(func() sdk.Msg { return &restakingtypes.MsgSettleEpochs{} })).Methods("POST")

	// Ratio oracle
	oracle := r.PathPrefix("/v1/oracle").Subrouter()
	oracle.Use(middleware.APIKeyMiddleware(apiKey))
	oracle.HandleFunc("/ratios", h.post(func() sdk.Msg { return &ratiofeedtypes.MsgUpdateRatios{} })).Methods("POST")
	oracle.HandleFunc("/confirm", h.post(func() sdk.Msg { return &ratiofeedtypes.MsgConfirmRatio{} })).Methods("POST")

	// Governance and simulated protocol control
	admin := r.PathPrefix("/v1/admin").Subrouter()
	admin.Use(middleware.APIKeyMiddleware(apiKey))
	admin.HandleFunc("/params", h.post(func() sdk.Msg { return &restakingtypes.MsgUpdateParams{} })).Methods("POST")
	admin.HandleFunc("/feed-params", h.post(func() sdk.Msg { return &ratiofeedtypes.MsgUpdateParams{} })).Methods("POST")
	admin.HandleFunc("/mint", h.post(func() sdk.Msg { return &tokentypes.MsgMint{} })).Methods("POST")
	admin.HandleFunc("/advance-epoch", h.post(func() sdk.Msg { return &simulated.MsgAdvanceEpoch{} })).Methods("POST")
	admin.HandleFunc("/slash", h.post(func() sdk.Msg { return &simulated.MsgSlash{} })).Methods("POST")
}

// post decodes the request body into a fresh message and delivers it. The
// response body is the message response; the committed height is returned in
// the X-Height header.
func (h *VaultHandler) post(newMsg func() sdk.Msg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg := newMsg()
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(msg); err != nil {
			h.badRequest(w, "invalid request body: "+err.Error())
			return
		}

		res, err := h.app.Deliver(msg)
		if err != nil {
			h.writeError(w, err)
			return
		}

		w.Header().Set("X-Height", strconv.FormatInt(res.Height, 10))
		writeJSON(w, http.StatusOK, res.Response)
	}
}

// query runs fn against the latest committed state and writes its result
func (h *VaultHandler) query(w http.ResponseWriter, fn func(ctx sdk.Context) (interface{}, error)) {
	var out interface{}
	err := h.app.Query(func(ctx sdk.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HealthResponse reports node liveness
type HealthResponse struct {
	Status  string `json:"status"`
	ChainID string `json:"chain_id"`
	Height  int64  `json:"height"`
}

// Health handles liveness probes
func (h *VaultHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		ChainID: h.app.Config().ChainID,
		Height:  h.app.Height(),
	})
}

// GetVault returns the ledger and its derived ratios
func (h *VaultHandler) GetVault(w http.ResponseWriter, r *http.Request) {
	h.query(w, func(ctx sdk.Context) (interface{}, error) {
		return h.app.QueryServer().Vault(ctx)
	})
}

// GetRatio returns every ratio view and up to limit snapshots
func (h *VaultHandler) GetRatio(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.intParam(w, r, "limit", 10)
	if !ok {
		return
	}
	h.query(w, func(ctx sdk.Context) (interface{}, error) {
		return h.app.QueryServer().Ratio(ctx, int(limit))
	})
}

func (h *VaultHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	h.query(w, func(ctx sdk.Context) (interface{}, error) {
		return h.app.QueryServer().Positions(ctx)
	})
}

func (h *VaultHandler) GetTickets(w http.ResponseWriter, r *http.Request) {
	h.query(w, func(ctx sdk.Context) (interface{}, error) {
		return h.app.QueryServer().Tickets(ctx)
	})
}

// EpochsResponse is one page of withdrawal epochs
type EpochsResponse struct {
	Epochs []restakingtypes.WithdrawalEpoch `json:"epochs"`
	Total  uint64                           `json:"total"`
}

// GetEpochs pages through withdrawal epochs
func (h *VaultHandler) GetEpochs(w http.ResponseWriter, r *http.Request) {
	offset, ok := h.intParam(w, r, "offset", 0)
	if !ok {
		return
	}
	limit, ok := h.intParam(w, r, "limit", 50)
	if !ok {
		return
	}
	h.query(w, func(ctx sdk.Context) (interface{}, error) {
		epochs, total, err := h.app.QueryServer().Epochs(ctx, offset, limit)
		if err != nil {
			return nil, err
		}
		if epochs == nil {
			epochs = []restakingtypes.WithdrawalEpoch{}
		}
		return EpochsResponse{Epochs: epochs, Total: total}, nil
	})
}

// GetEpoch returns one withdrawal epoch
func (h *VaultHandler) GetEpoch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.badRequest(w, "invalid epoch id")
		return
	}
	h.query(w, func(ctx sdk.Context) (interface{}, error) {
		return h.app.QueryServer().Epoch(ctx, id)
	})
}

func (h *VaultHandler) GetParams(w http.ResponseWriter, r *http.Request) {
	h.query(w, func(ctx sdk.Context) (interface{}, error) {
		return h.app.QueryServer().Params(ctx)
	})
}

// AdapterResponse describes a mounted simulated protocol
type AdapterResponse struct {
	Name       string                 `json:"name"`
	Epoch      uint64                 `json:"epoch"`
	Custody    string                 `json:"custody"`
	Unbondings []simulated.Unbonding `json:"unbondings"`
}

// GetAdapters lists the mounted protocols and their unbonding queues
func (h *VaultHandler) GetAdapters(w http.ResponseWriter, r *http.Request) {
	h.query(w, func(ctx sdk.Context) (interface{}, error) {
		out := make([]AdapterResponse, 0, len(h.app.AdapterNames()))
		for _, name := range h.app.AdapterNames() {
			a, err := h.app.Adapter(name)
			if err != nil {
				return nil, err
			}
			unbondings := a.Unbondings(ctx)
			if unbondings == nil {
				unbondings = []simulated.Unbonding{}
			}
			out = append(out, AdapterResponse{
				Name:       name,
				Epoch:      a.CurrentEpoch(ctx),
				Custody:    a.Custody(),
				Unbondings: unbondings,
			})
		}
		return out, nil
	})
}

// GetFeedRatio returns the raw feed entry of a token
func (h *VaultHandler) GetFeedRatio(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	h.query(w, func(ctx sdk.Context) (interface{}, error) {
		entry, found := h.app.RatioFeedKeeper.GetEntry(ctx, token)
		if !found {
			return nil, ratiofeedtypes.ErrRatioNotFound.Wrap(token)
		}
		return entry, nil
	})
}

// EventsResponse is a page of the committed event journal
type EventsResponse struct {
	Events  []app.Event `json:"events"`
	LastSeq uint64      `json:"last_seq"`
}

// GetEvents returns journal entries with seq >= from
func (h *VaultHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	from, ok := h.intParam(w, r, "from", 0)
	if !ok {
		return
	}
	limit, ok := h.intParam(w, r, "limit", defaultEventLimit)
	if !ok {
		return
	}
	if limit == 0 || limit > maxEventLimit {
		limit = maxEventLimit
	}

	journal := h.app.Journal()
	events := journal.Since(from, int(limit))
	if events == nil {
		events = []app.Event{}
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: events, LastSeq: journal.LastSeq()})
}

func (h *VaultHandler) GetUserWithdrawals(w http.ResponseWriter, r *http.Request) {
	address, ok := h.addressVar(w, r)
	if !ok {
		return
	}
	h.query(w, func(ctx sdk.Context) (interface{}, error) {
		withdrawals, err := h.app.QueryServer().UserWithdrawals(ctx, address)
		if withdrawals == nil && err == nil {
			withdrawals = []restakingtypes.PendingWithdrawal{}
		}
		return withdrawals, err
	})
}

func (h *VaultHandler) GetRedeemable(w http.ResponseWriter, r *http.Request) {
	address, ok := h.addressVar(w, r)
	if !ok {
		return
	}
	h.query(w, func(ctx sdk.Context) (interface{}, error) {
		return h.app.QueryServer().Redeemable(ctx, address)
	})
}

func (h *VaultHandler) GetUserBalance(w http.ResponseWriter, r *http.Request) {
	address, ok := h.addressVar(w, r)
	if !ok {
		return
	}
	h.query(w, func(ctx sdk.Context) (interface{}, error) {
		return h.app.QueryServer().UserBalance(ctx, address)
	})
}

func (h *VaultHandler) addressVar(w http.ResponseWriter, r *http.Request) (string, bool) {
	address := mux.Vars(r)["address"]
	if _, err := sdk.AccAddressFromBech32(address); err != nil {
		h.writeError(w, restakingtypes.ErrInvalidAddress.Wrapf("%s: %s", address, err))
		return "", false
	}
	return address, true
}

func (h *VaultHandler) intParam(w http.ResponseWriter, r *http.Request, name string, def uint64) (uint64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		h.badRequest(w, "invalid "+name+" parameter")
		return 0, false
	}
	return v, true
}
