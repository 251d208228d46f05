package repository

import (
	"context"
	"errors"

	"github.com/atlasbank/swift-portal/internal/model"
	"github.com/atlasbank/swift-portal/pkg/pg"
	"gorm.io/gorm"
)

// ErrEmployeeNotFound is returned when an employee does not exist.
var ErrEmployeeNotFound = errors.New("employee not found")

type EmployeeRepository struct {
	*pg.DB
}

func NewEmployeeRepository(db *pg.DB) *EmployeeRepository {
	return &EmployeeRepository{
		db,
	}
}

func (r *EmployeeRepository) GetByID(ctx context.Context, id int64) (*model.Employee, error) {
	var entity EmployeeEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEmployeeNotFound
		}
		return nil, err
	}
	return toEmployeeModel(&entity), nil
}

func (r *EmployeeRepository) GetByEmployeeNumber(ctx context.Context, employeeNumber string) (*model.Employee, error) {
	var entity EmployeeEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("employee_number = ?", employeeNumber).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEmployeeNotFound
		}
		return nil, err
	}
	return toEmployeeModel(&entity), nil
}
