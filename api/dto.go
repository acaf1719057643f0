/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the ledger's domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

COMPATIBILITY NOTE:
  The summary payload keeps both total_jewels_balance and
  active_jewels_balance even though they are aliases - existing
  platform clients read the former.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/villaluz/jewels-engine/jewels"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// SummaryDTO is the loyalty summary payload.
type SummaryDTO struct {
	UserID              string   `json:"user_id"`
	TotalJewelsBalance  int64    `json:"total_jewels_balance"`
	ActiveJewelsBalance int64    `json:"active_jewels_balance"`
	TotalJewelsEarned   int64    `json:"total_jewels_earned"`
	TotalJewelsRedeemed int64    `json:"total_jewels_redeemed"`
	Tier                *TierDTO `json:"tier,omitempty"`
	AsOf                string   `json:"as_of"`
}

// TierDTO is a user's tier placement.
type TierDTO struct {
	Name             string  `json:"name"`
	ProgressFraction float64 `json:"progress_fraction"`
	NextTier         string  `json:"next_tier,omitempty"`
	JewelsToNext     int64   `json:"jewels_to_next"`
}

// TransactionDTO represents a ledger transaction.
type TransactionDTO struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Earned      int64  `json:"jewels_earned"`
	Redeemed    int64  `json:"jewels_redeemed"`
	Reason      string `json:"reason"`
	Note        string `json:"note,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"`
	CreatedAt   string `json:"created_at"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

// RedeemRequest is the body of POST /api/loyalty/redeem.
type RedeemRequest struct {
	UserID         string `json:"user_id"`
	JewelsToRedeem int64  `json:"jewels_to_redeem"`
	// OptionID redeems a catalog option instead of a free amount.
	OptionID       string `json:"option_id,omitempty"`
	Reason         string `json:"reason,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// RedeemResponse is returned on a successful redemption.
type RedeemResponse struct {
	TransactionID  string     `json:"transaction_id"`
	UpdatedSummary SummaryDTO `json:"updated_summary"`
}

// AwardRequest is the body of POST /api/loyalty/award.
type AwardRequest struct {
	UserID       string          `json:"user_id"`
	BookingValue decimal.Decimal `json:"booking_value"`
	BookingRef   string          `json:"booking_ref"`
}

// AwardResponse reports what a booking earned.
type AwardResponse struct {
	TransactionID      string     `json:"transaction_id"`
	JewelsEarned       int64      `json:"jewels_earned"`
	BonusTransactionID string     `json:"bonus_transaction_id,omitempty"`
	BonusJewels        int64      `json:"bonus_jewels,omitempty"`
	UpdatedSummary     SummaryDTO `json:"updated_summary"`
}

// AdjustmentRequest is the body of POST /api/admin/loyalty/adjustment.
type AdjustmentRequest struct {
	UserID         string `json:"user_id"`
	AdjustmentType string `json:"adjustment_type"` // "add" | "remove"
	Amount         int64  `json:"amount"`
	Reason         string `json:"reason"`
	Actor          string `json:"actor,omitempty"`
}

// AdjustmentResponse is returned after an adjustment.
type AdjustmentResponse struct {
	TransactionID  string     `json:"transaction_id"`
	UpdatedSummary SummaryDTO `json:"updated_summary"`
}

// RedemptionOptionDTO is a reward catalog entry.
type RedemptionOptionDTO struct {
	ID             string `json:"id"`
	JewelsRequired int64  `json:"jewels_required"`
	Description    string `json:"reward_description"`
	Active         bool   `json:"is_active"`
}

// EarnRuleDTO is an earn-rule config record.
type EarnRuleDTO struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	JewelsPerUnit string `json:"jewels_per_unit"`
	Rounding      string `json:"rounding"`
	ExpiryDays    int    `json:"expiry_days"`
	Active        bool   `json:"is_active"`
}

// SweepRunDTO is one expiry sweep audit record.
type SweepRunDTO struct {
	ID           string `json:"id"`
	StartedAt    string `json:"started_at"`
	CompletedAt  string `json:"completed_at"`
	UsersScanned int    `json:"users_scanned"`
	LotsExpired  int    `json:"lots_expired"`
	Invalidated  int    `json:"invalidated"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toSummaryDTO(s jewels.Summary, status *jewels.TierStatus) SummaryDTO {
	dto := SummaryDTO{
		UserID:              string(s.UserID),
		TotalJewelsBalance:  int64(s.TotalBalance()),
		ActiveJewelsBalance: int64(s.ActiveBalance),
		TotalJewelsEarned:   int64(s.TotalEarned),
		TotalJewelsRedeemed: int64(s.TotalRedeemed),
		AsOf:                s.AsOf.Format(time.RFC3339),
	}
	if status != nil {
		dto.Tier = toTierDTO(*status)
	}
	return dto
}

func toTierDTO(status jewels.TierStatus) *TierDTO {
	dto := &TierDTO{
		Name:             status.Current.Name,
		ProgressFraction: status.Progress,
		JewelsToNext:     int64(status.JewelsToNext),
	}
	if status.Next != nil {
		dto.NextTier = status.Next.Name
	}
	return dto
}

func toTransactionDTO(tx jewels.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:          string(tx.ID),
		UserID:      string(tx.UserID),
		Earned:      int64(tx.Earned),
		Redeemed:    int64(tx.Redeemed),
		Reason:      string(tx.Reason),
		Note:        tx.Note,
		ReferenceID: tx.ReferenceID,
		CreatedAt:   tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.ExpiresAt != nil {
		dto.ExpiresAt = tx.ExpiresAt.Format(time.RFC3339)
	}
	return dto
}

func toTransactionDTOs(txs []jewels.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func toOptionDTO(o jewels.RedemptionOption) RedemptionOptionDTO {
	return RedemptionOptionDTO{
		ID:             string(o.ID),
		JewelsRequired: int64(o.JewelsRequired),
		Description:    o.Description,
		Active:         o.Active,
	}
}

func toRuleDTO(r jewels.EarnRule) EarnRuleDTO {
	return EarnRuleDTO{
		ID:            string(r.ID),
		Name:          r.Name,
		JewelsPerUnit: r.JewelsPerUnit.String(),
		Rounding:      string(r.Rounding),
		ExpiryDays:    r.ExpiryDays,
		Active:        r.Active,
	}
}

func ruleFromDTO(dto EarnRuleDTO) (jewels.EarnRule, error) {
	rate, err := decimal.NewFromString(dto.JewelsPerUnit)
	if err != nil {
		return jewels.EarnRule{}, fmt.Errorf("jewels_per_unit: %w", err)
	}
	rounding := jewels.RoundingMode(dto.Rounding)
	switch rounding {
	case "":
		rounding = jewels.RoundFloor
	case jewels.RoundFloor, jewels.RoundNearest:
	default:
		return jewels.EarnRule{}, fmt.Errorf("rounding must be %q or %q", jewels.RoundFloor, jewels.RoundNearest)
	}
	now := time.Now().UTC()
	return jewels.EarnRule{
		ID:            jewels.RuleID(dto.ID),
		Name:          dto.Name,
		JewelsPerUnit: rate,
		Rounding:      rounding,
		ExpiryDays:    dto.ExpiryDays,
		Active:        dto.Active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func toSweepRunDTO(run jewels.SweepRun) SweepRunDTO {
	return SweepRunDTO{
		ID:           run.ID,
		StartedAt:    run.StartedAt.Format(time.RFC3339),
		CompletedAt:  run.CompletedAt.Format(time.RFC3339),
		UsersScanned: run.UsersScanned,
		LotsExpired:  run.LotsExpired,
		Invalidated:  run.Invalidated,
	}
}
