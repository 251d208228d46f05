package repository

import (
	"time"

	"github.com/atlasbank/swift-portal/internal/model"
)

type UserEntity struct {
	ID            int64     `db:"id"             gorm:"primaryKey;autoIncrement;column:id"`
	Username      string    `db:"username"       gorm:"column:username;not null;uniqueIndex"`
	FullName      string    `db:"full_name"      gorm:"column:full_name;not null"`
	IDNumber      string    `db:"id_number"      gorm:"column:id_number;not null"`
	AccountNumber string    `db:"account_number" gorm:"column:account_number;not null;uniqueIndex"`
	Email         string    `db:"email"          gorm:"column:email;not null;uniqueIndex"`
	PasswordHash  string    `db:"password_hash"  gorm:"column:password_hash;not null"`
	CreatedAt     time.Time `db:"created_at"     gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `db:"updated_at"     gorm:"column:updated_at;autoUpdateTime"`
}

func (UserEntity) TableName() string {
	return "users"
}

func toUserEntity(m *model.User) *UserEntity {
	if m == nil {
		return nil
	}
	return &UserEntity{
		ID:            m.ID,
		Username:      m.Username,
		FullName:      m.FullName,
		IDNumber:      m.IDNumber,
		AccountNumber: m.AccountNumber,
		Email:         m.Email,
		PasswordHash:  m.PasswordHash,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toUserModel(e *UserEntity) *model.User {
	if e == nil {
		return nil
	}
	return &model.User{
		ID:            e.ID,
		Username:      e.Username,
		FullName:      e.FullName,
		IDNumber:      e.IDNumber,
		AccountNumber: e.AccountNumber,
		Email:         e.Email,
		PasswordHash:  e.PasswordHash,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}
