package models

import "time"

type PayPeriodStatus string

const (
	PeriodDraft      PayPeriodStatus = "draft"
	PeriodCalculated PayPeriodStatus = "calculated"
	PeriodApproved   PayPeriodStatus = "approved"
	PeriodCommitted  PayPeriodStatus = "committed"
)

type TaxSyncStatus string

const (
	SyncPending TaxSyncStatus = "pending"
	SyncSyncing TaxSyncStatus = "syncing"
	SyncSynced  TaxSyncStatus = "synced"
	SyncFailed  TaxSyncStatus = "failed"
)

type PayPeriod struct {
	ID        string
	CompanyID string
	StartDate time.Time
	EndDate   time.Time
	PayDate   time.Time
	Status    PayPeriodStatus

	CreatedBy   string
	ApprovedBy  string
	ApprovedAt  *time.Time
	CommittedBy string
	CommittedAt *time.Time

	TaxSyncStatus    TaxSyncStatus
	TaxSyncAttempts  int
	TaxSyncLastError string
	TaxSyncedAt      *time.Time
	IdempotencyKey   string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UnsyncedPeriod is a committed period the sync worker picks up on start,
// with the delivery attempts already spent on it.
type UnsyncedPeriod struct {
	ID       string
	Attempts int
}

// Editable reports whether items may be added, changed or removed. Approved
// periods are read-only.
func (p *PayPeriod) Editable() bool {
	return p.Status == PeriodDraft || p.Status == PeriodCalculated
}

// Deletable is true until the period is committed.
func (p *PayPeriod) Deletable() bool {
	return p.Status != PeriodCommitted
}

// TaxYear is the calendar year of the pay date. YTD totals and tax rates are
// keyed by it.
func (p *PayPeriod) TaxYear() int {
	return p.PayDate.Year()
}

// SyncRetriable reports whether a manual sync may start.
func (p *PayPeriod) SyncRetriable() bool {
	return p.TaxSyncStatus == SyncPending || p.TaxSyncStatus == SyncFailed
}
