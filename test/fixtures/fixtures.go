package fixtures

import (
	"github.com/atlasbank/swift-portal/internal/model"
	"github.com/shopspring/decimal"
)

var (
	TestCustomer1 = model.User{
		ID:            1,
		Username:      "alice.w",
		FullName:      "Alice Wonders",
		IDNumber:      "9001015009087",
		AccountNumber: "1234567890",
		Email:         "alice.w@swift.bank.internal",
	}

	TestCustomer2 = model.User{
		ID:            2,
		Username:      "bob_m",
		FullName:      "Bob Marsh",
		IDNumber:      "8505125008089",
		AccountNumber: "2345678901",
		Email:         "bob_m@swift.bank.internal",
	}

	TestEmployee1 = model.Employee{
		ID:             1,
		EmployeeNumber: "EMP1001",
		FullName:       "Eve Verifier",
	}

	TestEmployee2 = model.Employee{
		ID:             2,
		EmployeeNumber: "EMP1002",
		FullName:       "Frank Settler",
	}
)

var (
	ValidSwiftCodes = []string{
		"DEUTDEFF",
		"DEUTDEFF500",
		"ABSAZAJJ",
		"CHASUS33",
		"BARCGB22",
	}

	InvalidSwiftCodes = []string{
		"",
		"DEUT",
		"deutdeff",
		"DEUTDEFF50",
		"12345678",
	}

	ValidAmounts = []string{
		"0.01",
		"100",
		"1500.50",
		"999999.99",
	}

	InvalidAmounts = []string{
		"",
		"0",
		"-10",
		"10.001",
		"1e3",
		"abc",
	}
)

func NewRegisterRequest(username, accountNumber string) model.RegisterRequest {
	return model.RegisterRequest{
		Username:      username,
		FullName:      "Test Customer",
		IDNumber:      "9001015009087",
		AccountNumber: accountNumber,
		Password:      "Str0ng!Pass",
	}
}

func NewPaymentCreateRequest(customerID int64, amount string) model.PaymentCreateRequest {
	return model.PaymentCreateRequest{
		CustomerID:   customerID,
		Amount:       amount,
		Currency:     "USD",
		PayeeName:    "ACME Imports GmbH",
		PayeeAccount: "DE89370400440532013000",
		SwiftCode:    "DEUTDEFF",
	}
}

func NewTestPayment(customerID int64, status model.PaymentStatus) *model.Payment {
	return &model.Payment{
		CustomerID:   customerID,
		Amount:       decimal.RequireFromString("1500.50"),
		Currency:     "USD",
		PayeeName:    "ACME Imports GmbH",
		PayeeAccount: "DE89370400440532013000",
		SwiftCode:    "DEUTDEFF",
		Status:       status,
	}
}
