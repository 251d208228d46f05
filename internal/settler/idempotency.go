package settler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atlasbank/swift-portal/pkg/logger"
	"github.com/atlasbank/swift-portal/pkg/redis"
)

var (
	ErrAlreadySettled     = errors.New("payment already settled")
	ErrLockAcquireFailed  = errors.New("failed to acquire settlement lock")
	ErrMaxRetriesExceeded = errors.New("maximum settlement retries exceeded")
)

type IdempotencyConfig struct {
	LockTTL time.Duration

	SettledTTL time.Duration

	MaxRetries int

	RetryKeyPrefix string

	LockKeyPrefix string

	SettledKeyPrefix string
}

func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		LockTTL:          30 * time.Second,
		SettledTTL:       24 * time.Hour,
		MaxRetries:       3,
		RetryKeyPrefix:   "settle:retry:",
		LockKeyPrefix:    "settle:lock:",
		SettledKeyPrefix: "settle:done:",
	}
}

// IdempotencyService guards settlement so each payment is acknowledged
// at most once even with concurrent settler instances.
type IdempotencyService struct {
	redis  redis.RedisAdapter
	config IdempotencyConfig
}

func NewIdempotencyService(redisAdapter redis.RedisAdapter, config IdempotencyConfig) *IdempotencyService {
	return &IdempotencyService{
		redis:  redisAdapter,
		config: config,
	}
}

type SettlementContext struct {
	PaymentID    string
	RetryCount   int
	IsRetry      bool
	lockAcquired bool
	service      *IdempotencyService
}

func (s *IdempotencyService) AcquireLock(ctx context.Context, paymentID string) (*SettlementContext, error) {
	// Long-term marker first: a settled payment never goes out again.
	settledKey := s.config.SettledKeyPrefix + paymentID
	exists, err := s.redis.Exist(settledKey)
	if err != nil {
		logger.Warn("Failed to check settled marker", "payment_id", paymentID, "error", err)
		// Continue even if the check fails. The conditional database
		// update still rejects a duplicate completion.
	} else if exists > 0 {
		logger.Info("Payment already settled, skipping", "payment_id", paymentID)
		return nil, ErrAlreadySettled
	}

	retryKey := s.config.RetryKeyPrefix + paymentID
	retryCountBytes, err := s.redis.Get(retryKey)
	retryCount := 0
	if err == nil && len(retryCountBytes) > 0 {
		fmt.Sscanf(string(retryCountBytes), "%d", &retryCount)
	}

	if retryCount >= s.config.MaxRetries {
		logger.Error("Max settlement retries exceeded", "payment_id", paymentID, "retry_count", retryCount)
		return nil, fmt.Errorf("%w: payment_id=%s, retries=%d", ErrMaxRetriesExceeded, paymentID, retryCount)
	}

	// Short-term lock prevents two settlers acknowledging the same payment.
	lockKey := s.config.LockKeyPrefix + paymentID
	lockValue := []byte(fmt.Sprintf("%d", time.Now().UnixNano()))

	acquired, err := s.redis.SetNX(lockKey, lockValue, s.config.LockTTL)
	if err != nil {
		logger.Error("Failed to acquire settlement lock", "payment_id", paymentID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
	}

	if !acquired {
		logger.Info("Settlement lock held by another settler", "payment_id", paymentID)
		return nil, ErrLockAcquireFailed
	}

	logger.Info("Settlement lock acquired",
		"payment_id", paymentID,
		"retry_count", retryCount,
		"lock_ttl", s.config.LockTTL)

	return &SettlementContext{
		PaymentID:    paymentID,
		RetryCount:   retryCount,
		IsRetry:      retryCount > 0,
		lockAcquired: true,
		service:      s,
	}, nil
}

func (s *IdempotencyService) MarkSuccess(ctx context.Context, sc *SettlementContext) error {
	paymentID := sc.PaymentID

	settledKey := s.config.SettledKeyPrefix + paymentID
	err := s.redis.Set(settledKey, []byte("1"), s.config.SettledTTL)
	if err != nil {
		logger.Error("Failed to set settled marker", "payment_id", paymentID, "error", err)
		return fmt.Errorf("failed to mark as settled: %w", err)
	}

	s.cleanup(ctx, sc)

	logger.Info("Payment marked as settled",
		"payment_id", paymentID,
		"retry_count", sc.RetryCount)

	return nil
}

func (s *IdempotencyService) MarkFailure(ctx context.Context, sc *SettlementContext, reason error) error {
	paymentID := sc.PaymentID

	retryKey := s.config.RetryKeyPrefix + paymentID
	newRetryCount := sc.RetryCount + 1
	retryValue := []byte(fmt.Sprintf("%d", newRetryCount))

	// The retry counter outlives the lock so attempts are tracked
	// across reclaims.
	err := s.redis.Set(retryKey, retryValue, s.config.SettledTTL)
	if err != nil {
		logger.Error("Failed to increment settlement retry counter", "payment_id", paymentID, "error", err)
	}

	lockKey := s.config.LockKeyPrefix + paymentID
	if err := s.redis.Del(lockKey); err != nil {
		logger.Warn("Failed to remove settlement lock", "payment_id", paymentID, "error", err)
	}

	logger.Warn("Settlement attempt failed, will retry",
		"payment_id", paymentID,
		"retry_count", newRetryCount,
		"max_retries", s.config.MaxRetries,
		"reason", reason)

	return nil
}

func (s *IdempotencyService) ReleaseLock(ctx context.Context, sc *SettlementContext) error {
	if sc == nil || !sc.lockAcquired {
		return nil
	}

	lockKey := s.config.LockKeyPrefix + sc.PaymentID
	if err := s.redis.Del(lockKey); err != nil {
		logger.Warn("Failed to release settlement lock", "payment_id", sc.PaymentID, "error", err)
		return err
	}

	sc.lockAcquired = false
	logger.Debug("Settlement lock released", "payment_id", sc.PaymentID)
	return nil
}

func (s *IdempotencyService) cleanup(ctx context.Context, sc *SettlementContext) {
	paymentID := sc.PaymentID

	lockKey := s.config.LockKeyPrefix + paymentID
	if err := s.redis.Del(lockKey); err != nil {
		logger.Warn("Failed to cleanup settlement lock", "payment_id", paymentID, "error", err)
	}

	retryKey := s.config.RetryKeyPrefix + paymentID
	if err := s.redis.Del(retryKey); err != nil {
		logger.Warn("Failed to cleanup settlement retry counter", "payment_id", paymentID, "error", err)
	}

	sc.lockAcquired = false
}

func (s *IdempotencyService) GetRetryCount(ctx context.Context, paymentID string) (int, error) {
	retryKey := s.config.RetryKeyPrefix + paymentID
	retryCountBytes, err := s.redis.Get(retryKey)
	if err != nil {
		if err == redis.NilError {
			return 0, nil
		}
		return 0, err
	}

	retryCount := 0
	fmt.Sscanf(string(retryCountBytes), "%d", &retryCount)
	return retryCount, nil
}

func (s *IdempotencyService) IsSettled(ctx context.Context, paymentID string) (bool, error) {
	settledKey := s.config.SettledKeyPrefix + paymentID
	exists, err := s.redis.Exist(settledKey)
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}
