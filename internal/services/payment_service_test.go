package services

import (
	"context"
	"testing"
	"time"

	"github.com/atlasbank/swift-portal/internal/model"
	"github.com/atlasbank/swift-portal/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Create(ctx context.Context, p *model.Payment) (*model.Payment, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id int64) (*model.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *MockPaymentRepository) List(ctx context.Context, f model.PaymentFilter) ([]*model.Payment, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Payment), args.Get(1).(int64), args.Error(2)
}

func (m *MockPaymentRepository) MarkVerified(ctx context.Context, paymentID, employeeID int64, at time.Time) error {
	args := m.Called(ctx, paymentID, employeeID, at)
	return args.Error(0)
}

func (m *MockPaymentRepository) MarkSubmitted(ctx context.Context, paymentID int64, at time.Time) error {
	args := m.Called(ctx, paymentID, at)
	return args.Error(0)
}

func validPaymentRequest() model.PaymentCreateRequest {
	return model.PaymentCreateRequest{
		CustomerID:   100,
		Amount:       "2500.00",
		Currency:     "usd",
		PayeeName:    "ACME Imports GmbH",
		PayeeAccount: "DE89370400440532013000",
		SwiftCode:    "DEUTDEFF",
	}
}

func TestPaymentService_Submit_Success(t *testing.T) {
	repo := new(MockPaymentRepository)
	svc := NewPaymentService(repo, nil)
	ctx := context.Background()
	req := validPaymentRequest()

	repo.On("Create", ctx, mock.MatchedBy(func(p *model.Payment) bool {
		return p.CustomerID == 100 &&
			p.Currency == "USD" &&
			p.Status == model.PaymentStatusPending &&
			p.Amount.Equal(decimal.RequireFromString("2500.00"))
	})).Return(&model.Payment{ID: 1, Status: model.PaymentStatusPending}, nil)

	created, err := svc.Submit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)
	repo.AssertExpectations(t)
}

func TestPaymentService_Submit_Validation(t *testing.T) {
	repo := new(MockPaymentRepository)
	svc := NewPaymentService(repo, nil)
	ctx := context.Background()

	cases := []struct {
		name    string
		mutate  func(*model.PaymentCreateRequest)
		wantErr error
	}{
		{"zero amount", func(r *model.PaymentCreateRequest) { r.Amount = "0" }, model.ErrAmountInvalid},
		{"negative amount", func(r *model.PaymentCreateRequest) { r.Amount = "-10.00" }, model.ErrAmountInvalid},
		{"three decimals", func(r *model.PaymentCreateRequest) { r.Amount = "10.001" }, model.ErrAmountInvalid},
		{"scientific notation", func(r *model.PaymentCreateRequest) { r.Amount = "1e3" }, model.ErrAmountInvalid},
		{"unknown currency", func(r *model.PaymentCreateRequest) { r.Currency = "XXX" }, model.ErrCurrencyInvalid},
		{"short swift code", func(r *model.PaymentCreateRequest) { r.SwiftCode = "DEUT" }, model.ErrSwiftCodeInvalid},
		{"lowercase swift code", func(r *model.PaymentCreateRequest) { r.SwiftCode = "deutdeff" }, model.ErrSwiftCodeInvalid},
		{"blank payee name", func(r *model.PaymentCreateRequest) { r.PayeeName = "   " }, model.ErrPayeeInvalid},
		{"short payee account", func(r *model.PaymentCreateRequest) { r.PayeeAccount = "ABC" }, model.ErrPayeeInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validPaymentRequest()
			tc.mutate(&req)
			_, err := svc.Submit(ctx, req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestPaymentService_ListMine_ScopesToCustomer(t *testing.T) {
	repo := new(MockPaymentRepository)
	svc := NewPaymentService(repo, nil)
	ctx := context.Background()

	repo.On("List", ctx, mock.MatchedBy(func(f model.PaymentFilter) bool {
		return f.CustomerID != nil && *f.CustomerID == 100
	})).Return([]*model.Payment{{ID: 1}}, int64(1), nil)

	items, total, err := svc.ListMine(ctx, 100, model.PaymentFilter{})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int64(1), total)
	repo.AssertExpectations(t)
}

func TestPaymentService_ListForReview_IgnoresCustomerScope(t *testing.T) {
	repo := new(MockPaymentRepository)
	svc := NewPaymentService(repo, nil)
	ctx := context.Background()
	leaked := int64(42)

	repo.On("List", ctx, mock.MatchedBy(func(f model.PaymentFilter) bool {
		return f.CustomerID == nil && len(f.Statuses) == 5
	})).Return([]*model.Payment{}, int64(0), nil)

	// Even if a caller smuggles a customer filter in, review listings
	// stay portal-wide.
	_, _, err := svc.ListForReview(ctx, model.PaymentFilter{CustomerID: &leaked})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestPaymentService_Verify_Success(t *testing.T) {
	repo := new(MockPaymentRepository)
	svc := NewPaymentService(repo, nil)
	ctx := context.Background()

	repo.On("MarkVerified", ctx, int64(9), int64(3), mock.AnythingOfType("time.Time")).Return(nil)
	repo.On("GetByID", ctx, int64(9)).Return(&model.Payment{ID: 9, Status: model.PaymentStatusVerified}, nil)

	p, err := svc.Verify(ctx, 3, 9)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusVerified, p.Status)
}

func TestPaymentService_Verify_ErrorMapping(t *testing.T) {
	ctx := context.Background()

	t.Run("missing payment", func(t *testing.T) {
		repo := new(MockPaymentRepository)
		svc := NewPaymentService(repo, nil)
		repo.On("MarkVerified", ctx, int64(9), int64(3), mock.AnythingOfType("time.Time")).
			Return(repository.ErrPaymentNotFound)

		_, err := svc.Verify(ctx, 3, 9)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("already verified", func(t *testing.T) {
		repo := new(MockPaymentRepository)
		svc := NewPaymentService(repo, nil)
		repo.On("MarkVerified", ctx, int64(9), int64(3), mock.AnythingOfType("time.Time")).
			Return(repository.ErrStatusConflict)

		_, err := svc.Verify(ctx, 3, 9)
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestPaymentService_SubmitToSwift_PartialSuccess(t *testing.T) {
	repo := new(MockPaymentRepository)
	svc := NewPaymentService(repo, nil)
	ctx := context.Background()

	repo.On("MarkSubmitted", ctx, int64(1), mock.AnythingOfType("time.Time")).Return(nil)
	repo.On("MarkSubmitted", ctx, int64(2), mock.AnythingOfType("time.Time")).Return(repository.ErrStatusConflict)
	repo.On("MarkSubmitted", ctx, int64(3), mock.AnythingOfType("time.Time")).Return(repository.ErrPaymentNotFound)
	repo.On("MarkSubmitted", ctx, int64(4), mock.AnythingOfType("time.Time")).Return(nil)

	submitted, err := svc.SubmitToSwift(ctx, 3, []int64{1, 2, 3, 4})
	require.NoError(t, err)

	// Only the two payments actually in verified count; skipped ones do
	// not inflate the number.
	assert.Equal(t, 2, submitted)
	repo.AssertExpectations(t)
}

func TestPaymentService_SubmitToSwift_Empty(t *testing.T) {
	repo := new(MockPaymentRepository)
	svc := NewPaymentService(repo, nil)

	submitted, err := svc.SubmitToSwift(context.Background(), 3, nil)
	require.NoError(t, err)
	assert.Zero(t, submitted)
	repo.AssertNotCalled(t, "MarkSubmitted", mock.Anything, mock.Anything, mock.Anything)
}
