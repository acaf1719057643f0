package jewels_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/villaluz/jewels-engine/jewels"
	"github.com/villaluz/jewels-engine/jewels/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger() (*jewels.Ledger, *store.Memory) {
	mem := store.NewMemory()
	return jewels.NewLedger(mem), mem
}

func earnAt(userID string, amount int64, at time.Time, expiresAt *time.Time) jewels.Transaction {
	return jewels.Transaction{
		ID:        jewels.NewTransactionID(),
		UserID:    jewels.UserID(userID),
		Earned:    jewels.Jewels(amount),
		Reason:    jewels.ReasonBookingReward,
		ExpiresAt: expiresAt,
		CreatedAt: at,
	}
}

func redeemAt(userID string, amount int64, at time.Time) jewels.Transaction {
	return jewels.Transaction{
		ID:        jewels.NewTransactionID(),
		UserID:    jewels.UserID(userID),
		Redeemed:  jewels.Jewels(amount),
		Reason:    jewels.ReasonRedemptionRequest,
		CreatedAt: at,
	}
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestTransaction_Validate_EarnXorRedeem(t *testing.T) {
	// GIVEN: Entries violating the pure-earn XOR pure-redeem shape
	// WHEN: Validating them
	// THEN: Each is rejected with ErrInvalidTransaction

	now := time.Now().UTC()

	both := earnAt("user-1", 100, now, nil)
	both.Redeemed = 50
	err := both.Validate()
	assert.ErrorIs(t, err, jewels.ErrInvalidTransaction, "both earn and redeem should be rejected")

	neither := earnAt("user-1", 0, now, nil)
	err = neither.Validate()
	assert.ErrorIs(t, err, jewels.ErrInvalidTransaction, "zero-amount entry should be rejected")

	negative := earnAt("user-1", -10, now, nil)
	err = negative.Validate()
	assert.ErrorIs(t, err, jewels.ErrInvalidTransaction, "negative amount should be rejected")
}

func TestTransaction_Validate_ExpiryOnRedeemRejected(t *testing.T) {
	// GIVEN: A redeem entry carrying an expiry timestamp
	// WHEN: Validating it
	// THEN: Rejected - expiry only applies to earn lots

	now := time.Now().UTC()
	expiry := now.AddDate(1, 0, 0)

	tx := redeemAt("user-1", 50, now)
	tx.ExpiresAt = &expiry

	err := tx.Validate()
	assert.ErrorIs(t, err, jewels.ErrInvalidTransaction)

	var invalidErr *jewels.InvalidTransactionError
	require.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, "expires_at", invalidErr.Field)
}

func TestTransaction_Validate_UnknownReason(t *testing.T) {
	now := time.Now().UTC()

	tx := earnAt("user-1", 100, now, nil)
	tx.Reason = "weekly_raffle"

	err := tx.Validate()
	assert.ErrorIs(t, err, jewels.ErrInvalidTransaction)
}

func TestNewEarn_RejectsInvalid(t *testing.T) {
	// Constructor validation: nothing malformed is ever handed out
	_, err := jewels.NewEarn("", 100, jewels.ReasonBookingReward, jewels.EarnOptions{})
	assert.ErrorIs(t, err, jewels.ErrInvalidTransaction, "missing user should be rejected")

	_, err = jewels.NewEarn("user-1", 0, jewels.ReasonBookingReward, jewels.EarnOptions{})
	assert.ErrorIs(t, err, jewels.ErrInvalidTransaction, "zero earn should be rejected")
}

// =============================================================================
// WRITE PATH TESTS
// =============================================================================

func TestLedger_Write_RejectsBeforeStore(t *testing.T) {
	// GIVEN: A malformed entry
	// WHEN: Writing it through the ledger
	// THEN: Rejected with ErrInvalidTransaction and nothing stored

	ledger, mem := newTestLedger()
	ctx := context.Background()

	bad := earnAt("user-1", 100, time.Now().UTC(), nil)
	bad.Redeemed = 100

	err := ledger.Write(ctx, bad)
	assert.ErrorIs(t, err, jewels.ErrInvalidTransaction)

	txs, err := mem.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, txs, "rejected entry must not reach the store")
}

func TestLedger_Write_IdempotencyKeyRejectsDuplicates(t *testing.T) {
	// GIVEN: An entry written with an idempotency key
	// WHEN: Writing a second entry with the same key (a retry)
	// THEN: The retry is rejected and the ledger holds exactly one entry

	ledger, mem := newTestLedger()
	ctx := context.Background()
	now := time.Now().UTC()

	first := earnAt("user-1", 100, now, nil)
	first.IdempotencyKey = "booking-reward-bk-42"
	require.NoError(t, ledger.Write(ctx, first))

	retry := earnAt("user-1", 100, now, nil)
	retry.IdempotencyKey = "booking-reward-bk-42"
	err := ledger.Write(ctx, retry)
	assert.ErrorIs(t, err, jewels.ErrDuplicateIdempotencyKey)

	txs, err := mem.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestLedger_Transactions_OldestFirst(t *testing.T) {
	// GIVEN: Entries appended out of chronological order
	// WHEN: Reading the history
	// THEN: Entries come back ordered by CreatedAt, oldest first

	ledger, _ := newTestLedger()
	ctx := context.Background()

	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	later := earnAt("user-1", 200, base.AddDate(0, 1, 0), nil)
	earlier := earnAt("user-1", 100, base, nil)

	require.NoError(t, ledger.Write(ctx, later))
	require.NoError(t, ledger.Write(ctx, earlier))

	txs, err := ledger.Transactions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, earlier.ID, txs[0].ID)
	assert.Equal(t, later.ID, txs[1].ID)
}

func TestLedger_Get_UnknownID(t *testing.T) {
	ledger, _ := newTestLedger()

	_, err := ledger.Get(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, jewels.ErrTransactionNotFound)
	assert.True(t, jewels.IsNotFound(err))
}
