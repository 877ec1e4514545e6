// Package models defines the payroll records persisted in PostgreSQL.
// Money and rate fields are decimal.Decimal; nothing here is a float.
package models
