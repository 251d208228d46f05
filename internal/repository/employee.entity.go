package repository

import (
	"time"

	"github.com/atlasbank/swift-portal/internal/model"
)

type EmployeeEntity struct {
	ID             int64     `db:"id"              gorm:"primaryKey;autoIncrement;column:id"`
	EmployeeNumber string    `db:"employee_number" gorm:"column:employee_number;not null;uniqueIndex"`
	FullName       string    `db:"full_name"       gorm:"column:full_name;not null"`
	PasswordHash   string    `db:"password_hash"   gorm:"column:password_hash;not null"`
	CreatedAt      time.Time `db:"created_at"      gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `db:"updated_at"      gorm:"column:updated_at;autoUpdateTime"`
}

func (EmployeeEntity) TableName() string {
	return "employees"
}

func toEmployeeModel(e *EmployeeEntity) *model.Employee {
	if e == nil {
		return nil
	}
	return &model.Employee{
		ID:             e.ID,
		EmployeeNumber: e.EmployeeNumber,
		FullName:       e.FullName,
		PasswordHash:   e.PasswordHash,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}
