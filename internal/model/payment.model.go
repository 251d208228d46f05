package model

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of a payment. A payment is never
// deleted, only transitioned forward.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusVerified  PaymentStatus = "verified"
	PaymentStatusSubmitted PaymentStatus = "submitted"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// transitions maps each status to the states reachable from it.
// failed is reachable from every non-terminal state, never exits.
var transitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusVerified, PaymentStatusFailed},
	PaymentStatusVerified:  {PaymentStatusSubmitted, PaymentStatusFailed},
	PaymentStatusSubmitted: {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted: {},
	PaymentStatusFailed:    {},
}

// CanTransition reports whether to is directly reachable from from.
func (from PaymentStatus) CanTransition(to PaymentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s PaymentStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

var (
	ErrAmountInvalid    = errors.New("amount must be a positive number with at most 2 decimal places")
	ErrCurrencyInvalid  = errors.New("currency is not supported")
	ErrSwiftCodeInvalid = errors.New("swift code must match ISO 9362")
	ErrPayeeInvalid     = errors.New("payee name and account are required")
)

// ISO 9362: 6 letters, 2 alphanumerics, optional 3-char branch.
var swiftCodeRe = regexp.MustCompile(`^[A-Z]{6}[A-Z0-9]{2}([A-Z0-9]{3})?$`)
var payeeAccountRe = regexp.MustCompile(`^[0-9A-Z]{7,34}$`)

var allowedCurrencies = map[string]struct{}{
	"ZAR": {}, "USD": {}, "EUR": {}, "GBP": {}, "JPY": {}, "CHF": {}, "AUD": {},
}

type Payment struct {
	ID           int64           `json:"id"`
	CustomerID   int64           `json:"customer_id"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	PayeeName    string          `json:"payee_name"`
	PayeeAccount string          `json:"payee_account"`
	SwiftCode    string          `json:"swift_code"`
	Status       PaymentStatus   `json:"status"`
	VerifiedBy   *int64          `json:"verified_by,omitempty"`
	VerifiedAt   *time.Time      `json:"verified_at,omitempty"`
	SubmittedAt  *time.Time      `json:"submitted_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	FailReason   string          `json:"fail_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// PaymentCreateRequest is the input for a customer payment submission.
type PaymentCreateRequest struct {
	CustomerID   int64
	Amount       string
	Currency     string
	PayeeName    string
	PayeeAccount string
	SwiftCode    string
}

func (p PaymentCreateRequest) Validate() (decimal.Decimal, error) {
	amount, err := ParseAmount(p.Amount)
	if err != nil {
		return decimal.Zero, err
	}
	if _, ok := allowedCurrencies[strings.ToUpper(p.Currency)]; !ok {
		return decimal.Zero, ErrCurrencyInvalid
	}
	if !swiftCodeRe.MatchString(p.SwiftCode) {
		return decimal.Zero, ErrSwiftCodeInvalid
	}
	if strings.TrimSpace(p.PayeeName) == "" || !payeeAccountRe.MatchString(p.PayeeAccount) {
		return decimal.Zero, ErrPayeeInvalid
	}
	return amount, nil
}

// ParseAmount accepts a positive decimal string with at most 2 decimal
// places. Scientific notation and signs are rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, "eE+-") {
		return decimal.Zero, ErrAmountInvalid
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrAmountInvalid
	}
	if !amount.IsPositive() || amount.Exponent() < -2 {
		return decimal.Zero, ErrAmountInvalid
	}
	return amount, nil
}

// PaymentFilter controls List queries.
type PaymentFilter struct {
	CustomerID *int64
	Statuses   []PaymentStatus // IN (...)
	From       *time.Time
	To         *time.Time
	Limit      int  // default 50
	Offset     int  // for pagination
	Desc       bool // order by created_at
}
