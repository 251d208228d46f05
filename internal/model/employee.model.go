package model

import (
	"errors"
	"regexp"
	"time"
)

var ErrEmployeeNumberInvalid = errors.New("employee number must match EMP followed by 4-8 digits")

var employeeNumberRe = regexp.MustCompile(`^EMP[0-9]{4,8}$`)

type Employee struct {
	ID             int64     `json:"id"`
	EmployeeNumber string    `json:"employee_number"`
	FullName       string    `json:"full_name"`
	PasswordHash   string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func ValidEmployeeNumber(n string) bool {
	return employeeNumberRe.MatchString(n)
}
