// Package api provides the HTTP handlers for configuring the auction,
// accepting deposits, settling claims and querying auction state.
//
// The caller of every request is identified by the X-Participant-Address
// header. All amounts are base-unit integers; request bodies also accept
// wei/gwei/ether suffixes.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/dutch-auction/internal/admission"
	"github.com/atmx/dutch-auction/internal/auction"
	"github.com/atmx/dutch-auction/internal/identity"
	"github.com/atmx/dutch-auction/internal/model"
	"github.com/atmx/dutch-auction/internal/units"
)

// Handler serves the auction API.
type Handler struct {
	svc *auction.Service
}

// NewHandler creates a new API handler.
func NewHandler(svc *auction.Service) *Handler {
	return &Handler{svc: svc}
}

// Routes registers every auction endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	// Configuration (owner only, before start).
	r.Get("/auction/config", h.GetConfig)
	r.Post("/auction/config", h.Configure)
	r.Post("/auction/whitelist", h.Whitelist)
	r.Get("/auction/payout", h.GetPayout)
	r.Post("/auction/payout", h.SetPayout)

	// Auction state.
	r.Get("/auction", h.GetSnapshot)
	r.Get("/auction/price", h.GetPrice)
	r.Get("/auction/total", h.GetTotal)
	r.Get("/auction/latest-price", h.GetLatestPrice)
	r.Get("/auction/final-price", h.GetFinalPrice)

	// Participants.
	r.Get("/participants/{address}", h.GetParticipant)
	r.Get("/participants/{address}/whitelisted", h.GetWhitelisted)

	// Ledger.
	r.Post("/deposits", h.Deposit)
	r.Post("/claims", h.Claim)
	r.Post("/withdrawals", h.Withdraw)

	r.Get("/events", h.ListEvents)
}

// --- Request/Response types ---

// ConfigRequest is the JSON body for POST /auction/config.
type ConfigRequest struct {
	StartTime          time.Time    `json:"start_time"`
	P1                 units.Amount `json:"p1"`
	P2                 units.Amount `json:"p2"`
	T1                 int64        `json:"t1"` // seconds
	T2                 int64        `json:"t2"` // seconds
	MaxDepositPerTx    units.Amount `json:"max_deposit_per_tx"`
	MinDepositInterval int64        `json:"min_deposit_interval"` // seconds
}

// WhitelistRequest is the JSON body for POST /auction/whitelist.
// Either Address or Addresses (or both) may be set.
type WhitelistRequest struct {
	Address   string   `json:"address,omitempty"`
	Addresses []string `json:"addresses,omitempty"`
}

// PayoutRequest is the JSON body for POST /auction/payout.
type PayoutRequest struct {
	Address string `json:"address"`
}

// DepositRequest is the JSON body for POST /deposits.
type DepositRequest struct {
	Amount units.Amount `json:"amount"`
}

// PriceResponse is returned from GET /auction/price.
type PriceResponse struct {
	Phase model.Phase     `json:"phase"`
	Price decimal.Decimal `json:"price"`
	Cap   decimal.Decimal `json:"cap"`
}

// ValueResponse wraps a single amount.
type ValueResponse struct {
	Value decimal.Decimal `json:"value"`
}

// --- Configuration handlers ---

// GetConfig handles GET /api/v1/auction/config
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.Config(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// Configure handles POST /api/v1/auction/config
func (h *Handler) Configure(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}

	var req ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	params := model.AuctionConfig{
		StartTime:          req.StartTime,
		P1:                 req.P1.Decimal,
		P2:                 req.P2.Decimal,
		T1:                 req.T1,
		T2:                 req.T2,
		MaxDepositPerTx:    req.MaxDepositPerTx.Decimal,
		MinDepositInterval: req.MinDepositInterval,
	}
	if err := h.svc.Configure(r.Context(), caller, params); err != nil {
		writeServiceError(w, err)
		return
	}

	cfg, err := h.svc.Config(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// Whitelist handles POST /api/v1/auction/whitelist
func (h *Handler) Whitelist(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}

	var req WhitelistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	raw := req.Addresses
	if req.Address != "" {
		raw = append([]string{req.Address}, raw...)
	}
	if len(raw) == 0 {
		writeError(w, "address or addresses is required", http.StatusBadRequest)
		return
	}

	addrs := make([]common.Address, 0, len(raw))
	for _, s := range raw {
		addr, err := identity.ParseAddress(s)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		addrs = append(addrs, addr)
	}

	if err := h.svc.Whitelist(r.Context(), caller, addrs...); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"whitelisted": addrs})
}

// GetPayout handles GET /api/v1/auction/payout
func (h *Handler) GetPayout(w http.ResponseWriter, r *http.Request) {
	addr, err := h.svc.PayoutAddress(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PayoutRequest{Address: addr.Hex()})
}

// SetPayout handles POST /api/v1/auction/payout
func (h *Handler) SetPayout(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}

	var req PayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	addr, err := identity.ParseAddress(req.Address)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.svc.SetPayoutAddress(r.Context(), caller, addr); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PayoutRequest{Address: addr.Hex()})
}

// --- State handlers ---

// GetSnapshot handles GET /api/v1/auction
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetPrice handles GET /api/v1/auction/price
func (h *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PriceResponse{
		Phase: snap.Phase,
		Price: snap.CurrentPrice,
		Cap:   snap.CurrentCap,
	})
}

// GetTotal handles GET /api/v1/auction/total
func (h *Handler) GetTotal(w http.ResponseWriter, r *http.Request) {
	total, err := h.svc.TotalDeposited(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ValueResponse{Value: total})
}

// GetLatestPrice handles GET /api/v1/auction/latest-price
func (h *Handler) GetLatestPrice(w http.ResponseWriter, r *http.Request) {
	price, err := h.svc.LatestPrice(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ValueResponse{Value: price})
}

// GetFinalPrice handles GET /api/v1/auction/final-price. The first
// successful call after close latches the settlement price.
func (h *Handler) GetFinalPrice(w http.ResponseWriter, r *http.Request) {
	price, err := h.svc.FinalPrice(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ValueResponse{Value: price})
}

// GetParticipant handles GET /api/v1/participants/{address}
func (h *Handler) GetParticipant(w http.ResponseWriter, r *http.Request) {
	addr, err := identity.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, err := h.svc.Participant(r.Context(), addr)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// GetWhitelisted handles GET /api/v1/participants/{address}/whitelisted
func (h *Handler) GetWhitelisted(w http.ResponseWriter, r *http.Request) {
	addr, err := identity.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	ok, err := h.svc.IsWhitelisted(r.Context(), addr)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": addr.Hex(), "whitelisted": ok})
}

// --- Ledger handlers ---

// Deposit handles POST /api/v1/deposits
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	receipt, err := h.svc.Deposit(r.Context(), caller, req.Amount.Decimal)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// Claim handles POST /api/v1/claims
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	settlement, err := h.svc.ClaimSettlement(r.Context(), caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settlement)
}

// Withdraw handles POST /api/v1/withdrawals
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOf(w, r)
	if !ok {
		return
	}
	withdrawal, err := h.svc.WithdrawProceeds(r.Context(), caller)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawal)
}

// ListEvents handles GET /api/v1/events?participant={address}
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	var who *common.Address
	if v := r.URL.Query().Get("participant"); v != "" {
		addr, err := identity.ParseAddress(v)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		who = &addr
	}

	events, err := h.svc.Events(r.Context(), who)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// --- helpers ---

// callerOf resolves the request's caller, writing the error response on failure.
func callerOf(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, err := identity.FromRequest(r)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, identity.ErrMissingCaller) {
			status = http.StatusUnauthorized
		}
		writeError(w, err.Error(), status)
		return common.Address{}, false
	}
	return caller, true
}

// statusFor maps a domain error to an HTTP status. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auction.ErrInvalidConfiguration),
		errors.Is(err, auction.ErrInvalidParticipant),
		errors.Is(err, admission.ErrAmountOutOfRange):
		return http.StatusBadRequest

	case errors.Is(err, auction.ErrUnauthorized),
		errors.Is(err, admission.ErrNotWhitelisted):
		return http.StatusForbidden

	case errors.Is(err, admission.ErrRateLimited):
		return http.StatusTooManyRequests

	case errors.Is(err, auction.ErrNotInAccumulatingPhase),
		errors.Is(err, auction.ErrNotInClosedPhase),
		errors.Is(err, auction.ErrCapExceeded),
		errors.Is(err, auction.ErrNothingToClaim),
		errors.Is(err, auction.ErrAlreadyClaimed),
		errors.Is(err, auction.ErrNothingToWithdraw),
		errors.Is(err, auction.ErrDivisionByZero):
		return http.StatusConflict

	case errors.Is(err, auction.ErrTransferFailed):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with its mapped status. Internal errors are
// logged and not echoed to the client.
func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		writeError(w, "internal error", status)
		return
	}
	writeError(w, err.Error(), status)
}

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
