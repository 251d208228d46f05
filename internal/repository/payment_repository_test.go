package repository

import (
	"context"
	"testing"
	"time"

	"github.com/atlasbank/swift-portal/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayment(customerID int64) *model.Payment {
	return &model.Payment{
		CustomerID:   customerID,
		Amount:       decimal.RequireFromString("1500.50"),
		Currency:     "USD",
		PayeeName:    "Acme Supplies Ltd",
		PayeeAccount: "DE89370400440532013000",
		SwiftCode:    "DEUTDEFF",
		Status:       model.PaymentStatusPending,
	}
}

func TestPaymentRepository_Create(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	t.Run("create pending payment", func(t *testing.T) {
		p := newTestPayment(1)

		created, err := repo.Create(ctx, p)
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, model.PaymentStatusPending, created.Status)
		assert.True(t, created.Amount.Equal(decimal.RequireFromString("1500.50")))
		assert.NotZero(t, created.CreatedAt)
	})

	t.Run("status is forced to pending on insert", func(t *testing.T) {
		p := newTestPayment(1)
		p.Status = model.PaymentStatusCompleted

		created, err := repo.Create(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusPending, created.Status)
	})
}

func TestPaymentRepository_List(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	customerID := int64(100)
	for i := 0; i < 5; i++ {
		_, err := repo.Create(ctx, newTestPayment(customerID))
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}
	_, err := repo.Create(ctx, newTestPayment(200))
	require.NoError(t, err)

	t.Run("list by customer", func(t *testing.T) {
		filter := model.PaymentFilter{
			CustomerID: &customerID,
			Limit:      10,
		}

		payments, total, err := repo.List(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, payments, 5)
	})

	t.Run("list with pagination", func(t *testing.T) {
		filter := model.PaymentFilter{
			CustomerID: &customerID,
			Limit:      2,
			Offset:     4,
		}

		payments, total, err := repo.List(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, payments, 1)
	})

	t.Run("list newest first", func(t *testing.T) {
		filter := model.PaymentFilter{
			CustomerID: &customerID,
			Limit:      10,
			Desc:       true,
		}

		payments, _, err := repo.List(ctx, filter)
		require.NoError(t, err)
		require.Len(t, payments, 5)
		for i := 1; i < len(payments); i++ {
			assert.False(t, payments[i].CreatedAt.After(payments[i-1].CreatedAt))
		}
	})

	t.Run("list by status", func(t *testing.T) {
		filter := model.PaymentFilter{
			Statuses: []model.PaymentStatus{model.PaymentStatusPending},
			Limit:    10,
		}

		_, total, err := repo.List(ctx, filter)
		require.NoError(t, err)
		assert.Equal(t, int64(6), total)
	})
}

func TestPaymentRepository_Transitions(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	employeeID := int64(7)

	t.Run("full lifecycle", func(t *testing.T) {
		p, err := repo.Create(ctx, newTestPayment(1))
		require.NoError(t, err)

		require.NoError(t, repo.MarkVerified(ctx, p.ID, employeeID, time.Now()))
		require.NoError(t, repo.MarkSubmitted(ctx, p.ID, time.Now()))
		require.NoError(t, repo.MarkCompleted(ctx, p.ID, time.Now()))

		got, err := repo.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusCompleted, got.Status)
		require.NotNil(t, got.VerifiedBy)
		assert.Equal(t, employeeID, *got.VerifiedBy)
		assert.NotNil(t, got.VerifiedAt)
		assert.NotNil(t, got.SubmittedAt)
		assert.NotNil(t, got.CompletedAt)
	})

	t.Run("verify requires pending", func(t *testing.T) {
		p, err := repo.Create(ctx, newTestPayment(1))
		require.NoError(t, err)
		require.NoError(t, repo.MarkVerified(ctx, p.ID, employeeID, time.Now()))

		err = repo.MarkVerified(ctx, p.ID, employeeID, time.Now())
		assert.ErrorIs(t, err, ErrStatusConflict)
	})

	t.Run("submit requires verified", func(t *testing.T) {
		p, err := repo.Create(ctx, newTestPayment(1))
		require.NoError(t, err)

		err = repo.MarkSubmitted(ctx, p.ID, time.Now())
		assert.ErrorIs(t, err, ErrStatusConflict)
	})

	t.Run("complete requires submitted", func(t *testing.T) {
		p, err := repo.Create(ctx, newTestPayment(1))
		require.NoError(t, err)

		err = repo.MarkCompleted(ctx, p.ID, time.Now())
		assert.ErrorIs(t, err, ErrStatusConflict)
	})

	t.Run("missing payment", func(t *testing.T) {
		err := repo.MarkVerified(ctx, 99999, employeeID, time.Now())
		assert.ErrorIs(t, err, ErrPaymentNotFound)
	})
}

func TestPaymentRepository_MarkFailed(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	t.Run("failed from pending", func(t *testing.T) {
		p, err := repo.Create(ctx, newTestPayment(1))
		require.NoError(t, err)

		require.NoError(t, repo.MarkFailed(ctx, p.ID, "rejected by swift network"))

		got, err := repo.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PaymentStatusFailed, got.Status)
		assert.Equal(t, "rejected by swift network", got.FailReason)
	})

	t.Run("failed from submitted", func(t *testing.T) {
		p, err := repo.Create(ctx, newTestPayment(1))
		require.NoError(t, err)
		require.NoError(t, repo.MarkVerified(ctx, p.ID, 7, time.Now()))
		require.NoError(t, repo.MarkSubmitted(ctx, p.ID, time.Now()))

		require.NoError(t, repo.MarkFailed(ctx, p.ID, "acknowledgement timed out"))
	})

	t.Run("terminal states stay terminal", func(t *testing.T) {
		p, err := repo.Create(ctx, newTestPayment(1))
		require.NoError(t, err)
		require.NoError(t, repo.MarkFailed(ctx, p.ID, "first failure"))

		err = repo.MarkFailed(ctx, p.ID, "second failure")
		assert.ErrorIs(t, err, ErrStatusConflict)
	})
}

// Two employees verifying the same pending payment must produce exactly
// one winner; the loser sees the conflict from the conditional update.
// The calls run back to back because SQLite does not handle concurrent
// writers reliably in tests; the conditional WHERE gives the same
// guarantee either way.
func TestPaymentRepository_VerifyRace(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	p, err := repo.Create(ctx, newTestPayment(1))
	require.NoError(t, err)

	firstErr := repo.MarkVerified(ctx, p.ID, 1, time.Now())
	secondErr := repo.MarkVerified(ctx, p.ID, 2, time.Now())

	require.NoError(t, firstErr)
	assert.ErrorIs(t, secondErr, ErrStatusConflict)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusVerified, got.Status)
	require.NotNil(t, got.VerifiedBy)
	assert.Equal(t, int64(1), *got.VerifiedBy)
}
