package models

import (
	"strings"

	"github.com/dmitrijs2005/paykeeper/internal/payroll"
	"github.com/shopspring/decimal"
)

type EmployeeStatus string

const (
	EmployeeActive     EmployeeStatus = "active"
	EmployeeInactive   EmployeeStatus = "inactive"
	EmployeeTerminated EmployeeStatus = "terminated"
)

// Employee is the compensation profile read at calculation time.
type Employee struct {
	ID           string
	CompanyID    string
	DepartmentID string
	FirstName    string
	LastName     string

	EmploymentType payroll.EmploymentType
	// PayRate is hourly for hourly employees and annual for salaried ones.
	PayRate               decimal.Decimal
	PayFrequency          payroll.PayFrequency
	FilingStatus          payroll.FilingStatus
	Allowances            int
	RetirementRate        decimal.Decimal
	RothRate              decimal.Decimal
	AdditionalWithholding decimal.Decimal
	Status                EmployeeStatus
}

func (e *Employee) FullName() string {
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}
