package settler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/atlasbank/swift-portal/internal/model"
	"github.com/atlasbank/swift-portal/internal/queue"
	"github.com/atlasbank/swift-portal/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id int64) (*model.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *MockPaymentRepository) MarkCompleted(ctx context.Context, paymentID int64, at time.Time) error {
	args := m.Called(ctx, paymentID, at)
	return args.Error(0)
}

func (m *MockPaymentRepository) MarkFailed(ctx context.Context, paymentID int64, reason string) error {
	args := m.Called(ctx, paymentID, reason)
	return args.Error(0)
}

func (m *MockPaymentRepository) List(ctx context.Context, f model.PaymentFilter) ([]*model.Payment, int64, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*model.Payment), args.Get(1).(int64), args.Error(2)
}

func newTestProcessor(t *testing.T, repo *MockPaymentRepository) (*PaymentProcessor, *IdempotencyService) {
	t.Helper()

	// Unroutable endpoint: any path that reaches the gateway fails fast.
	config := DefaultGatewayConfig("http://127.0.0.1:1", "")
	config.Timeout = 100 * time.Millisecond
	config.MaxRetries = 0
	config.RetryDelay = time.Millisecond
	gateway, err := NewGateway(config)
	require.NoError(t, err)

	idempotency := NewIdempotencyService(newMockRedisAdapter(), DefaultIdempotencyConfig())
	return NewPaymentProcessor(gateway, repo, idempotency), idempotency
}

func settlementMessage(t *testing.T, paymentID int64) *queue.Message {
	t.Helper()
	data, err := json.Marshal(queue.SettlementJob{PaymentID: paymentID, SubmittedBy: 3})
	require.NoError(t, err)
	return &queue.Message{ID: "1-0", Data: data}
}

func submittedPayment(id int64) *model.Payment {
	at := time.Now().Add(-time.Minute)
	return &model.Payment{
		ID:           id,
		CustomerID:   100,
		Amount:       decimal.RequireFromString("1500.50"),
		Currency:     "USD",
		PayeeAccount: "DE89370400440532013000",
		SwiftCode:    "DEUTDEFF",
		Status:       model.PaymentStatusSubmitted,
		SubmittedAt:  &at,
	}
}

func TestPaymentProcessor_GetType(t *testing.T) {
	repo := new(MockPaymentRepository)
	p, _ := newTestProcessor(t, repo)
	assert.Equal(t, "settlement", p.GetType())
}

func TestPaymentProcessor_MalformedJobGoesToDLQ(t *testing.T) {
	repo := new(MockPaymentRepository)
	p, _ := newTestProcessor(t, repo)

	err := p.Process(context.Background(), &queue.Message{ID: "1-0", Data: []byte("{broken")})
	assert.Error(t, err)
	repo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestPaymentProcessor_UnknownPaymentIsDropped(t *testing.T) {
	repo := new(MockPaymentRepository)
	p, _ := newTestProcessor(t, repo)

	repo.On("GetByID", mock.Anything, int64(9)).Return(nil, repository.ErrPaymentNotFound)

	// Ack: no amount of retrying will make the payment appear.
	err := p.Process(context.Background(), settlementMessage(t, 9))
	assert.NoError(t, err)
}

func TestPaymentProcessor_TerminalPaymentIsDropped(t *testing.T) {
	repo := new(MockPaymentRepository)
	p, _ := newTestProcessor(t, repo)

	repo.On("GetByID", mock.Anything, int64(9)).
		Return(&model.Payment{ID: 9, Status: model.PaymentStatusCompleted}, nil)

	err := p.Process(context.Background(), settlementMessage(t, 9))
	assert.NoError(t, err)
}

func TestPaymentProcessor_NotYetSubmittedIsDropped(t *testing.T) {
	repo := new(MockPaymentRepository)
	p, _ := newTestProcessor(t, repo)

	repo.On("GetByID", mock.Anything, int64(9)).
		Return(&model.Payment{ID: 9, Status: model.PaymentStatusPending}, nil)

	// The pending sweep republishes once the payment reaches submitted.
	err := p.Process(context.Background(), settlementMessage(t, 9))
	assert.NoError(t, err)
}

func TestPaymentProcessor_AlreadySettledIsDropped(t *testing.T) {
	repo := new(MockPaymentRepository)
	p, idempotency := newTestProcessor(t, repo)
	ctx := context.Background()

	sc, err := idempotency.AcquireLock(ctx, "9")
	require.NoError(t, err)
	require.NoError(t, idempotency.MarkSuccess(ctx, sc))

	repo.On("GetByID", mock.Anything, int64(9)).Return(submittedPayment(9), nil)

	err = p.Process(ctx, settlementMessage(t, 9))
	assert.NoError(t, err)
	repo.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentProcessor_LockHeldLeavesJobPending(t *testing.T) {
	repo := new(MockPaymentRepository)
	p, idempotency := newTestProcessor(t, repo)
	ctx := context.Background()

	_, err := idempotency.AcquireLock(ctx, "9")
	require.NoError(t, err)

	repo.On("GetByID", mock.Anything, int64(9)).Return(submittedPayment(9), nil)

	// NACK so the reclaim pass retries once the other settler is done.
	err = p.Process(ctx, settlementMessage(t, 9))
	assert.Error(t, err)
}

func TestPaymentProcessor_GatewayFailureRecordsRetry(t *testing.T) {
	repo := new(MockPaymentRepository)
	p, idempotency := newTestProcessor(t, repo)
	ctx := context.Background()

	repo.On("GetByID", mock.Anything, int64(9)).Return(submittedPayment(9), nil)

	err := p.Process(ctx, settlementMessage(t, 9))
	assert.Error(t, err)

	count, err := idempotency.GetRetryCount(ctx, "9")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	repo.AssertNotCalled(t, "MarkCompleted", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything)
}

func TestPaymentProcessor_MaxRetriesFailsPayment(t *testing.T) {
	repo := new(MockPaymentRepository)
	p, idempotency := newTestProcessor(t, repo)
	ctx := context.Background()

	repo.On("GetByID", mock.Anything, int64(9)).Return(submittedPayment(9), nil)
	repo.On("MarkFailed", mock.Anything, int64(9), "swift acknowledgement failed after retries").Return(nil)

	maxRetries := DefaultIdempotencyConfig().MaxRetries
	for i := 0; i < maxRetries; i++ {
		err := p.Process(ctx, settlementMessage(t, 9))
		require.Error(t, err)
	}

	count, err := idempotency.GetRetryCount(ctx, "9")
	require.NoError(t, err)
	require.Equal(t, maxRetries, count)

	// The budget is spent; the payment is marked failed and the job acked.
	err = p.Process(ctx, settlementMessage(t, 9))
	assert.NoError(t, err)
	repo.AssertCalled(t, "MarkFailed", mock.Anything, int64(9), "swift acknowledgement failed after retries")
}
