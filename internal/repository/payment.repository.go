package repository

import (
	"context"
	"errors"
	"time"

	"github.com/atlasbank/swift-portal/internal/model"
	"github.com/atlasbank/swift-portal/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrPaymentNotFound is returned when a payment does not exist.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrStatusConflict is returned when a conditional status update
	// matched no row, i.e. the payment was not in the expected state.
	ErrStatusConflict = errors.New("payment not in expected status")
)

type PaymentRepository struct {
	*pg.DB
}

func NewPaymentRepository(db *pg.DB) *PaymentRepository {
	return &PaymentRepository{
		db,
	}
}

func (r *PaymentRepository) Create(ctx context.Context, p *model.Payment) (*model.Payment, error) {
	entity := toPaymentEntity(p)
	entity.Status = string(model.PaymentStatusPending)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toPaymentModel(entity), nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*model.Payment, error) {
	var entity PaymentEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return toPaymentModel(&entity), nil
}

func (r *PaymentRepository) List(ctx context.Context, f model.PaymentFilter) ([]*model.Payment, int64, error) {
	q := r.Read(ctx).WithContext(ctx).Model(&PaymentEntity{})

	if f.CustomerID != nil {
		q = q.Where("customer_id = ?", *f.CustomerID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where("status IN ?", statuses)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}

	// Count before pagination
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "created_at"
	if f.Desc {
		order += " DESC"
	} else {
		order += " ASC"
	}

	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	var entities []*PaymentEntity
	if err := q.Order(order).Limit(limit).Offset(offset).Find(&entities).Error; err != nil {
		return nil, 0, err
	}

	return toPaymentModels(entities), total, nil
}

// MarkVerified moves a payment from pending to verified and records the
// verifying employee. The update is conditional on the current status so
// two concurrent verifies cannot both succeed.
func (r *PaymentRepository) MarkVerified(ctx context.Context, paymentID, employeeID int64, at time.Time) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&PaymentEntity{}).
		Where("id = ? AND status = ?", paymentID, string(model.PaymentStatusPending)).
		Updates(map[string]interface{}{
			"status":      string(model.PaymentStatusVerified),
			"verified_by": employeeID,
			"verified_at": at,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.statusConflictReason(ctx, paymentID)
	}
	return nil
}

// MarkSubmitted moves a payment from verified to submitted.
func (r *PaymentRepository) MarkSubmitted(ctx context.Context, paymentID int64, at time.Time) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&PaymentEntity{}).
		Where("id = ? AND status = ?", paymentID, string(model.PaymentStatusVerified)).
		Updates(map[string]interface{}{
			"status":       string(model.PaymentStatusSubmitted),
			"submitted_at": at,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.statusConflictReason(ctx, paymentID)
	}
	return nil
}

// MarkCompleted moves a payment from submitted to completed.
func (r *PaymentRepository) MarkCompleted(ctx context.Context, paymentID int64, at time.Time) error {
	result := r.Write(ctx).WithContext(ctx).
		Model(&PaymentEntity{}).
		Where("id = ? AND status = ?", paymentID, string(model.PaymentStatusSubmitted)).
		Updates(map[string]interface{}{
			"status":       string(model.PaymentStatusCompleted),
			"completed_at": at,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.statusConflictReason(ctx, paymentID)
	}
	return nil
}

// MarkFailed moves a payment to failed from any non-terminal state.
func (r *PaymentRepository) MarkFailed(ctx context.Context, paymentID int64, reason string) error {
	nonTerminal := []string{
		string(model.PaymentStatusPending),
		string(model.PaymentStatusVerified),
		string(model.PaymentStatusSubmitted),
	}
	result := r.Write(ctx).WithContext(ctx).
		Model(&PaymentEntity{}).
		Where("id = ? AND status IN ?", paymentID, nonTerminal).
		Updates(map[string]interface{}{
			"status":      string(model.PaymentStatusFailed),
			"fail_reason": reason,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.statusConflictReason(ctx, paymentID)
	}
	return nil
}

// statusConflictReason distinguishes a missing payment from one in the
// wrong state after a conditional update touched no rows.
func (r *PaymentRepository) statusConflictReason(ctx context.Context, paymentID int64) error {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&PaymentEntity{}).
		Where("id = ?", paymentID).
		Count(&count).
		Error
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrPaymentNotFound
	}
	return ErrStatusConflict
}
