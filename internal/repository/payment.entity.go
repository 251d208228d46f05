package repository

import (
	"time"

	"github.com/atlasbank/swift-portal/internal/model"
	"github.com/shopspring/decimal"
)

type PaymentEntity struct {
	ID           int64           `db:"id"            gorm:"primaryKey;autoIncrement;column:id"`
	CustomerID   int64           `db:"customer_id"   gorm:"column:customer_id;not null;index"`
	Customer     *UserEntity     `db:"-"             gorm:"foreignKey:CustomerID;references:ID;constraint:OnDelete:CASCADE"`
	Amount       decimal.Decimal `db:"amount"        gorm:"column:amount;type:numeric(18,2);not null"`
	Currency     string          `db:"currency"      gorm:"column:currency;not null"`
	PayeeName    string          `db:"payee_name"    gorm:"column:payee_name;not null"`
	PayeeAccount string          `db:"payee_account" gorm:"column:payee_account;not null"`
	SwiftCode    string          `db:"swift_code"    gorm:"column:swift_code;not null"`
	Status       string          `db:"status"        gorm:"column:status;not null;index;default:pending"`
	VerifiedBy   *int64          `db:"verified_by"   gorm:"column:verified_by;index"`
	VerifiedAt   *time.Time      `db:"verified_at"   gorm:"column:verified_at"`
	SubmittedAt  *time.Time      `db:"submitted_at"  gorm:"column:submitted_at"`
	CompletedAt  *time.Time      `db:"completed_at"  gorm:"column:completed_at"`
	FailReason   string          `db:"fail_reason"   gorm:"column:fail_reason"`
	CreatedAt    time.Time       `db:"created_at"    gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `db:"updated_at"    gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentEntity) TableName() string {
	return "payments"
}

func toPaymentEntity(m *model.Payment) *PaymentEntity {
	if m == nil {
		return nil
	}
	return &PaymentEntity{
		ID:           m.ID,
		CustomerID:   m.CustomerID,
		Amount:       m.Amount,
		Currency:     m.Currency,
		PayeeName:    m.PayeeName,
		PayeeAccount: m.PayeeAccount,
		SwiftCode:    m.SwiftCode,
		Status:       string(m.Status),
		VerifiedBy:   m.VerifiedBy,
		VerifiedAt:   m.VerifiedAt,
		SubmittedAt:  m.SubmittedAt,
		CompletedAt:  m.CompletedAt,
		FailReason:   m.FailReason,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func toPaymentModel(e *PaymentEntity) *model.Payment {
	if e == nil {
		return nil
	}
	return &model.Payment{
		ID:           e.ID,
		CustomerID:   e.CustomerID,
		Amount:       e.Amount,
		Currency:     e.Currency,
		PayeeName:    e.PayeeName,
		PayeeAccount: e.PayeeAccount,
		SwiftCode:    e.SwiftCode,
		Status:       model.PaymentStatus(e.Status),
		VerifiedBy:   e.VerifiedBy,
		VerifiedAt:   e.VerifiedAt,
		SubmittedAt:  e.SubmittedAt,
		CompletedAt:  e.CompletedAt,
		FailReason:   e.FailReason,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func toPaymentModels(entities []*PaymentEntity) []*model.Payment {
	if entities == nil {
		return nil
	}
	models := make([]*model.Payment, len(entities))
	for i, e := range entities {
		models[i] = toPaymentModel(e)
	}
	return models
}
