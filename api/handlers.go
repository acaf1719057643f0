/*
handlers.go - HTTP API handlers for the jewels loyalty ledger

PURPOSE:
  Exposes the ledger engine via REST. Handles HTTP request/response,
  JSON serialization, and delegates to the domain components. The web
  layer never touches the store directly - everything goes through the
  engines.

ENDPOINTS:
  Loyalty:
    GET  /api/loyalty/{user_id}               Summary + tier
    GET  /api/loyalty/{user_id}/transactions  Ledger history
    GET  /api/loyalty/options                 Redemption options
    POST /api/loyalty/redeem                  Spend jewels
    POST /api/loyalty/award                   Booking reward accrual

  Admin:
    POST /api/admin/loyalty/adjustment        Manual add/remove
    GET  /api/admin/loyalty/rules             List earn rules
    POST /api/admin/loyalty/rules             Upsert earn rule
    GET  /api/admin/loyalty/sweeps            Sweep audit trail

ERROR HANDLING:
  Errors map onto HTTP status by taxonomy:
  - 400: invalid amount / malformed transaction / bad body
  - 404: missing option, rule, or transaction
  - 409: insufficient balance, duplicate idempotency key
  - 503: storage unavailable (retry with backoff)
  - 500: everything else

SECURITY NOTE:
  No authentication middleware - auth is an external collaborator in
  this platform and fronts this service.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/villaluz/jewels-engine/jewels"
)

// =============================================================================
// HANDLER
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger     *jewels.Ledger
	Agg        *jewels.Aggregator
	Redemption *jewels.RedemptionEngine
	Adjust     *jewels.AdjustmentService
	Tiers      *jewels.TierEngine
	Awarder    *jewels.Awarder

	Catalog jewels.OptionCatalog
	Rules   jewels.RuleStore
	Sweeps  jewels.SweepRecorder // optional
}

// NewHandler wires the engine components over a store. tiers may be nil
// to use the platform default ladder.
func NewHandler(store jewels.Store, catalog jewels.OptionCatalog, rules jewels.RuleStore, sweeps jewels.SweepRecorder, tiers []jewels.Tier) *Handler {
	if tiers == nil {
		tiers = jewels.DefaultTiers
	}

	ledger := jewels.NewLedger(store)
	agg := jewels.NewAggregator(store)
	tierEngine := jewels.NewTierEngine(agg, tiers)
	redemption := jewels.NewRedemptionEngine(store, agg)
	redemption.Catalog = catalog

	return &Handler{
		Ledger:     ledger,
		Agg:        agg,
		Redemption: redemption,
		Adjust:     jewels.NewAdjustmentService(ledger, agg),
		Tiers:      tierEngine,
		Awarder:    jewels.NewAwarder(ledger, agg, rules, tierEngine),
		Catalog:    catalog,
		Rules:      rules,
		Sweeps:     sweeps,
	}
}

// =============================================================================
// LOYALTY HANDLERS
// =============================================================================

// GetSummary returns a user's balance summary and tier placement.
// A user with no transactions gets a zero summary, not a 404.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID := jewels.UserID(chi.URLParam(r, "user_id"))

	summary, err := h.Agg.Summarize(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := h.Tiers.Place(summary.TotalEarned)

	writeJSON(w, http.StatusOK, toSummaryDTO(summary, &status))
}

// GetTransactions returns a user's full ledger history, oldest first.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID := jewels.UserID(chi.URLParam(r, "user_id"))

	txs, err := h.Ledger.Transactions(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// ListOptions returns the redemption option catalog.
func (h *Handler) ListOptions(w http.ResponseWriter, r *http.Request) {
	options, err := h.Catalog.ListOptions(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]RedemptionOptionDTO, len(options))
	for i, o := range options {
		dtos[i] = toOptionDTO(o)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Redeem spends jewels, either a free amount or a catalog option.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", "bad_request")
		return
	}

	userID := jewels.UserID(req.UserID)
	opts := jewels.RedeemOptions{
		IdempotencyKey: req.IdempotencyKey,
		CreatedBy:      req.UserID,
		CreatedByType:  "user",
	}

	var (
		tx  jewels.Transaction
		err error
	)
	if req.OptionID != "" {
		tx, err = h.Redemption.RedeemOption(r.Context(), userID, jewels.OptionID(req.OptionID), opts)
	} else {
		// Free-text reasons land in the note; the ledger reason stays an
		// enumerated value unless the client named one.
		reason := jewels.ReasonRedemptionRequest
		if jewels.ValidReason(jewels.Reason(req.Reason)) {
			reason = jewels.Reason(req.Reason)
		} else {
			opts.Note = req.Reason
		}
		tx, err = h.Redemption.Redeem(r.Context(), userID, jewels.Jewels(req.JewelsToRedeem), reason, opts)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	summary, err := h.Agg.Summarize(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := h.Tiers.Place(summary.TotalEarned)

	writeJSON(w, http.StatusCreated, RedeemResponse{
		TransactionID:  string(tx.ID),
		UpdatedSummary: toSummaryDTO(summary, &status),
	})
}

// Award records a booking reward for a completed booking.
func (h *Handler) Award(w http.ResponseWriter, r *http.Request) {
	var req AwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}
	if req.UserID == "" || req.BookingRef == "" {
		writeError(w, http.StatusBadRequest, "user_id and booking_ref are required", "bad_request")
		return
	}

	userID := jewels.UserID(req.UserID)
	result, err := h.Awarder.Award(r.Context(), userID, req.BookingValue, req.BookingRef)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	summary, err := h.Agg.Summarize(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := h.Tiers.Place(summary.TotalEarned)

	resp := AwardResponse{
		TransactionID:  string(result.Reward.ID),
		JewelsEarned:   int64(result.Reward.Earned),
		UpdatedSummary: toSummaryDTO(summary, &status),
	}
	if result.Bonus != nil {
		resp.BonusTransactionID = string(result.Bonus.ID)
		resp.BonusJewels = int64(result.Bonus.Earned)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// CreateAdjustment applies a manual add/remove correction.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required", "bad_request")
		return
	}

	userID := jewels.UserID(req.UserID)
	amount := jewels.Jewels(req.Amount)

	var (
		tx  jewels.Transaction
		err error
	)
	switch req.AdjustmentType {
	case "add":
		tx, err = h.Adjust.AdjustAdd(r.Context(), userID, amount, req.Reason, req.Actor)
	case "remove":
		tx, err = h.Adjust.AdjustRemove(r.Context(), userID, amount, req.Reason, req.Actor)
	default:
		writeError(w, http.StatusBadRequest, "adjustment_type must be add or remove", "bad_request")
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}

	summary, err := h.Agg.Summarize(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := h.Tiers.Place(summary.TotalEarned)

	writeJSON(w, http.StatusOK, AdjustmentResponse{
		TransactionID:  string(tx.ID),
		UpdatedSummary: toSummaryDTO(summary, &status),
	})
}

// ListRules returns all earn rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Rules.ListRules(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]EarnRuleDTO, len(rules))
	for i, rule := range rules {
		dtos[i] = toRuleDTO(rule)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveRule inserts or updates an earn rule.
func (h *Handler) SaveRule(w http.ResponseWriter, r *http.Request) {
	var req EarnRuleDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "bad_request")
		return
	}
	if req.ID == "" || req.JewelsPerUnit == "" {
		writeError(w, http.StatusBadRequest, "id and jewels_per_unit are required", "bad_request")
		return
	}

	rule, err := ruleFromDTO(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "bad_request")
		return
	}
	if err := h.Rules.SaveRule(r.Context(), rule); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleDTO(rule))
}

// ListSweeps returns the expiry sweep audit trail, newest first.
func (h *Handler) ListSweeps(w http.ResponseWriter, r *http.Request) {
	if h.Sweeps == nil {
		writeJSON(w, http.StatusOK, []SweepRunDTO{})
		return
	}
	runs, err := h.Sweeps.ListSweeps(r.Context(), 50)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]SweepRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toSweepRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

// writeDomainError maps the engine's error taxonomy onto HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jewels.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, err.Error(), "insufficient_balance")
	case errors.Is(err, jewels.ErrDuplicateIdempotencyKey):
		writeError(w, http.StatusConflict, err.Error(), "duplicate_request")
	case errors.Is(err, jewels.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_amount")
	case errors.Is(err, jewels.ErrInvalidTransaction):
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_transaction")
	case jewels.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), "not_found")
	case errors.Is(err, jewels.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage unavailable, retry later", "storage_unavailable")
	default:
		writeError(w, http.StatusInternalServerError, err.Error(), "internal")
	}
}
