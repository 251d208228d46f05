package helpers

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/atlasbank/swift-portal/internal/repository"
	"github.com/atlasbank/swift-portal/pkg/pg"
	"github.com/atlasbank/swift-portal/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func SetupTestDB(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&repository.UserEntity{},
		&repository.EmployeeEntity{},
		&repository.PaymentEntity{},
	)
	require.NoError(t, err)

	pgDB := &pg.DB{}
	pgDBValue := reflect.ValueOf(pgDB).Elem()

	readField := pgDBValue.FieldByName("read")
	writeField := pgDBValue.FieldByName("write")

	readField = reflect.NewAt(readField.Type(), readField.Addr().UnsafePointer()).Elem()
	writeField = reflect.NewAt(writeField.Type(), writeField.Addr().UnsafePointer()).Elem()

	readField.Set(reflect.ValueOf(db))
	writeField.Set(reflect.ValueOf(db))

	return pgDB
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	// Use unique connection name per test to avoid global adapter caching issues
	connName := t.Name() + "-" + mr.Addr()
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func HashPassword(t *testing.T, password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func CreateTestUser(t *testing.T, db *pg.DB, username, accountNumber, password string) *repository.UserEntity {
	ctx := context.Background()
	user := &repository.UserEntity{
		Username:      username,
		FullName:      "Test Customer",
		IDNumber:      "9001015009087",
		AccountNumber: accountNumber,
		Email:         username + "@swift.bank.internal",
		PasswordHash:  HashPassword(t, password),
	}
	err := db.Write(ctx).Create(user).Error
	require.NoError(t, err)
	return user
}

func CreateTestEmployee(t *testing.T, db *pg.DB, employeeNumber, password string) *repository.EmployeeEntity {
	ctx := context.Background()
	employee := &repository.EmployeeEntity{
		EmployeeNumber: employeeNumber,
		FullName:       "Test Employee",
		PasswordHash:   HashPassword(t, password),
	}
	err := db.Write(ctx).Create(employee).Error
	require.NoError(t, err)
	return employee
}

func CreateTestPayment(t *testing.T, db *pg.DB, customerID int64, amount, status string) *repository.PaymentEntity {
	ctx := context.Background()
	payment := &repository.PaymentEntity{
		CustomerID:   customerID,
		Amount:       decimal.RequireFromString(amount),
		Currency:     "USD",
		PayeeName:    "ACME Imports GmbH",
		PayeeAccount: "DE89370400440532013000",
		SwiftCode:    "DEUTDEFF",
		Status:       status,
	}
	err := db.Write(ctx).Create(payment).Error
	require.NoError(t, err)
	return payment
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msgAndArgs ...interface{}) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msgAndArgs...)
	}
}

func Ptr[T any](v T) *T {
	return &v
}
