package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/atlasbank/swift-portal/internal/model"
	"github.com/atlasbank/swift-portal/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound is returned when a user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateIdentity is returned when a username, email or account
	// number is already taken.
	ErrDuplicateIdentity = errors.New("identity already exists")
)

type UserRepository struct {
	*pg.DB
}

func NewUserRepository(db *pg.DB) *UserRepository {
	return &UserRepository{
		db,
	}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) (*model.User, error) {
	entity := toUserEntity(user)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateIdentity
		}
		return nil, err
	}

	return toUserModel(entity), nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var entity UserEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return toUserModel(&entity), nil
}

// GetByCredentialPair looks a user up by the username/account pair used
// on the login form.
func (r *UserRepository) GetByCredentialPair(ctx context.Context, username, accountNumber string) (*model.User, error) {
	var entity UserEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("username = ? AND account_number = ?", username, accountNumber).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return toUserModel(&entity), nil
}

// ExistsIdentity reports whether any of username, email or account
// number is already registered.
func (r *UserRepository) ExistsIdentity(ctx context.Context, username, email, accountNumber string) (bool, error) {
	var count int64
	err := r.Read(ctx).WithContext(ctx).
		Model(&UserEntity{}).
		Where("username = ? OR email = ? OR account_number = ?", username, email, accountNumber).
		Count(&count).
		Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// isUniqueViolation detects duplicate-key errors from postgres and the
// sqlite driver used in tests.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
