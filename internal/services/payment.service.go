package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atlasbank/swift-portal/internal/model"
	"github.com/atlasbank/swift-portal/internal/queue"
	"github.com/atlasbank/swift-portal/internal/repository"
	"github.com/atlasbank/swift-portal/pkg/logger"
	"github.com/atlasbank/swift-portal/pkg/prom"
)

var (
	ErrNotFound     = errors.New("payment not found")
	ErrInvalidState = errors.New("payment is not in a state that allows this transition")
)

type PaymentRepository interface {
	Create(ctx context.Context, p *model.Payment) (*model.Payment, error)
	GetByID(ctx context.Context, id int64) (*model.Payment, error)
	List(ctx context.Context, f model.PaymentFilter) ([]*model.Payment, int64, error)
	MarkVerified(ctx context.Context, paymentID, employeeID int64, at time.Time) error
	MarkSubmitted(ctx context.Context, paymentID int64, at time.Time) error
}

type PaymentService struct {
	paymentRepo PaymentRepository
	queue       *queue.Queue
}

func NewPaymentService(paymentRepo PaymentRepository, settlementQueue *queue.Queue) *PaymentService {
	return &PaymentService{
		paymentRepo: paymentRepo,
		queue:       settlementQueue,
	}
}

// Submit creates a pending payment owned by the requesting customer.
func (s *PaymentService) Submit(ctx context.Context, req model.PaymentCreateRequest) (*model.Payment, error) {
	amount, err := req.Validate()
	if err != nil {
		return nil, err
	}

	p := &model.Payment{
		CustomerID:   req.CustomerID,
		Amount:       amount,
		Currency:     strings.ToUpper(req.Currency),
		PayeeName:    strings.TrimSpace(req.PayeeName),
		PayeeAccount: req.PayeeAccount,
		SwiftCode:    req.SwiftCode,
		Status:       model.PaymentStatusPending,
	}

	created, err := s.paymentRepo.Create(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	prom.IncPaymentTransition(string(model.PaymentStatusPending))
	return created, nil
}

// ListMine returns the payments owned by a customer.
func (s *PaymentService) ListMine(ctx context.Context, customerID int64, f model.PaymentFilter) ([]*model.Payment, int64, error) {
	f.CustomerID = &customerID
	return s.paymentRepo.List(ctx, f)
}

// ListForReview returns payments visible to the employee portal: every
// payment in pending or any later state.
func (s *PaymentService) ListForReview(ctx context.Context, f model.PaymentFilter) ([]*model.Payment, int64, error) {
	f.CustomerID = nil
	if len(f.Statuses) == 0 {
		f.Statuses = []model.PaymentStatus{
			model.PaymentStatusPending,
			model.PaymentStatusVerified,
			model.PaymentStatusSubmitted,
			model.PaymentStatusCompleted,
			model.PaymentStatusFailed,
		}
	}
	return s.paymentRepo.List(ctx, f)
}

// Verify moves a pending payment to verified, recording the employee.
// The transition is a conditional update, so a concurrent verify of the
// same payment leaves exactly one winner.
func (s *PaymentService) Verify(ctx context.Context, employeeID, paymentID int64) (*model.Payment, error) {
	err := s.paymentRepo.MarkVerified(ctx, paymentID, employeeID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return nil, ErrNotFound
		}
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("verify payment: %w", err)
	}

	prom.IncPaymentTransition(string(model.PaymentStatusVerified))
	return s.paymentRepo.GetByID(ctx, paymentID)
}

// SubmitToSwift transitions every verified payment in ids to submitted
// and reports how many were accepted. Payments not currently verified
// are skipped, not erred; the caller always gets the accurate count.
func (s *PaymentService) SubmitToSwift(ctx context.Context, employeeID int64, ids []int64) (int, error) {
	submitted := 0
	now := time.Now().UTC()

	for _, id := range ids {
		err := s.paymentRepo.MarkSubmitted(ctx, id, now)
		if err != nil {
			if errors.Is(err, repository.ErrPaymentNotFound) || errors.Is(err, repository.ErrStatusConflict) {
				continue
			}
			return submitted, fmt.Errorf("submit payment %d: %w", id, err)
		}

		submitted++
		prom.IncPaymentTransition(string(model.PaymentStatusSubmitted))

		if s.queue != nil {
			if _, err := s.queue.PublishJSON(ctx, queue.SettlementJob{PaymentID: id, SubmittedBy: employeeID}, nil); err != nil {
				// The payment is already submitted; the settler's pending
				// sweep will pick it up, so log and keep going.
				logger.Error("failed to enqueue settlement job", "payment_id", id, "error", err)
			}
		}
	}

	return submitted, nil
}
