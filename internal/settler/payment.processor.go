package settler

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/atlasbank/swift-portal/internal/model"
	"github.com/atlasbank/swift-portal/internal/queue"
	"github.com/atlasbank/swift-portal/internal/repository"
	"github.com/atlasbank/swift-portal/pkg/logger"
	"github.com/atlasbank/swift-portal/pkg/prom"
)

// PaymentRepository is the slice of the payments store the settler needs.
type PaymentRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Payment, error)
	MarkCompleted(ctx context.Context, paymentID int64, at time.Time) error
	MarkFailed(ctx context.Context, paymentID int64, reason string) error
	List(ctx context.Context, f model.PaymentFilter) ([]*model.Payment, int64, error)
}

// PaymentProcessor settles one submitted payment per settlement job:
// it obtains an acknowledgement from the SWIFT endpoint and records the
// terminal status with a conditional update.
type PaymentProcessor struct {
	gateway     *Gateway
	paymentRepo PaymentRepository
	idempotency *IdempotencyService
}

func NewPaymentProcessor(gateway *Gateway, paymentRepo PaymentRepository, idempotency *IdempotencyService) *PaymentProcessor {
	return &PaymentProcessor{
		gateway:     gateway,
		paymentRepo: paymentRepo,
		idempotency: idempotency,
	}
}

func (p *PaymentProcessor) GetType() string {
	return "settlement"
}

func (p *PaymentProcessor) Process(ctx context.Context, queueMessage *queue.Message) error {
	var job queue.SettlementJob
	if err := json.Unmarshal(queueMessage.Data, &job); err != nil {
		logger.Error("Failed to unmarshal settlement job", "error", err)
		return err // malformed job ends up in the DLQ
	}

	paymentID := strconv.FormatInt(job.PaymentID, 10)

	payment, err := p.paymentRepo.GetByID(ctx, job.PaymentID)
	if err != nil {
		if errors.Is(err, repository.ErrPaymentNotFound) {
			logger.Warn("Settlement job for unknown payment, dropping", "payment_id", paymentID)
			return nil // ACK, retrying cannot help
		}
		return err
	}

	switch payment.Status {
	case model.PaymentStatusSubmitted:
		// Carry on.
	case model.PaymentStatusCompleted, model.PaymentStatusFailed:
		logger.Info("Payment already in terminal state, dropping job", "payment_id", paymentID, "status", string(payment.Status))
		return nil
	default:
		// Not yet submitted. The job was published too early or the
		// submit step lost its race; the pending sweep republishes
		// once the payment lands in submitted.
		logger.Warn("Settlement job for payment not yet submitted, dropping", "payment_id", paymentID, "status", string(payment.Status))
		return nil
	}

	settleCtx, err := p.idempotency.AcquireLock(ctx, paymentID)
	if err != nil {
		if errors.Is(err, ErrAlreadySettled) {
			return nil
		}
		if errors.Is(err, ErrMaxRetriesExceeded) {
			return p.failPayment(ctx, payment, "swift acknowledgement failed after retries")
		}
		if errors.Is(err, ErrLockAcquireFailed) {
			// Another settler holds the payment; leave the job pending.
			return errors.New("settlement lock held by another settler")
		}
		logger.Error("Failed to acquire settlement lock", "payment_id", paymentID, "error", err)
		return err
	}

	defer func() {
		if settleCtx.lockAcquired {
			p.idempotency.ReleaseLock(ctx, settleCtx)
		}
	}()

	logger.Info("Settling payment",
		"payment_id", paymentID,
		"amount", payment.Amount.StringFixed(2),
		"currency", payment.Currency,
		"retry_count", settleCtx.RetryCount,
		"is_retry", settleCtx.IsRetry)

	req := &AckRequest{
		PaymentID:    payment.ID,
		Amount:       payment.Amount.StringFixed(2),
		Currency:     payment.Currency,
		PayeeAccount: payment.PayeeAccount,
		SwiftCode:    payment.SwiftCode,
	}

	res, err := p.gateway.Acknowledge(ctx, req)
	if err != nil {
		logger.Error("Failed to obtain acknowledgement", "payment_id", paymentID, "error", err)
		if markErr := p.idempotency.MarkFailure(ctx, settleCtx, err); markErr != nil {
			logger.Error("Failed to record settlement failure", "payment_id", paymentID, "error", markErr)
		}
		return err // NACK, job is retried from the queue
	}

	if res.Status == StatusAcknowledged {
		completedAt := res.AcknowledgedAt
		if completedAt.IsZero() {
			completedAt = time.Now()
		}

		if err := p.paymentRepo.MarkCompleted(ctx, payment.ID, completedAt); err != nil {
			if errors.Is(err, repository.ErrStatusConflict) {
				// Someone else already moved the payment to a terminal
				// state. The acknowledgement stands, so settle anyway.
				logger.Warn("Payment left submitted before completion could be recorded", "payment_id", paymentID)
			} else {
				logger.Error("Failed to record completion", "payment_id", paymentID, "error", err)
				if markErr := p.idempotency.MarkFailure(ctx, settleCtx, err); markErr != nil {
					logger.Error("Failed to record settlement failure", "payment_id", paymentID, "error", markErr)
				}
				return err
			}
		}

		if payment.SubmittedAt != nil {
			prom.AddSettlementDuration(completedAt.Sub(*payment.SubmittedAt).Seconds(), "completed")
		}
		prom.IncPaymentTransition(string(model.PaymentStatusCompleted))

		logger.Info("Payment settled",
			"payment_id", paymentID,
			"reference", res.Reference,
			"retry_count", settleCtx.RetryCount)

		if markErr := p.idempotency.MarkSuccess(ctx, settleCtx); markErr != nil {
			logger.Error("Failed to set settled marker", "payment_id", paymentID, "error", markErr)
			// Completion is already durable in the database.
		}

		return nil
	}

	// Rejection is terminal: the network refused the payment, retrying
	// the same instruction cannot change the answer.
	logger.Warn("Payment rejected by SWIFT network", "payment_id", paymentID, "reference", res.Reference)
	if err := p.failPayment(ctx, payment, "rejected by swift network"); err != nil {
		if markErr := p.idempotency.MarkFailure(ctx, settleCtx, err); markErr != nil {
			logger.Error("Failed to record settlement failure", "payment_id", paymentID, "error", markErr)
		}
		return err
	}
	if markErr := p.idempotency.MarkSuccess(ctx, settleCtx); markErr != nil {
		logger.Error("Failed to set settled marker", "payment_id", strconv.FormatInt(payment.ID, 10), "error", markErr)
	}
	return nil
}

func (p *PaymentProcessor) failPayment(ctx context.Context, payment *model.Payment, reason string) error {
	err := p.paymentRepo.MarkFailed(ctx, payment.ID, reason)
	if err != nil && !errors.Is(err, repository.ErrStatusConflict) {
		logger.Error("Failed to record payment failure", "payment_id", payment.ID, "error", err)
		return err
	}

	if payment.SubmittedAt != nil {
		prom.AddSettlementDuration(time.Since(*payment.SubmittedAt).Seconds(), "failed")
	}
	prom.IncPaymentTransition(string(model.PaymentStatusFailed))

	return nil
}
