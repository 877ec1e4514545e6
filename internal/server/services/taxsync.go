package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/paykeeper/internal/common"
	"github.com/dmitrijs2005/paykeeper/internal/logging"
	"github.com/dmitrijs2005/paykeeper/internal/server/actor"
	sc "github.com/dmitrijs2005/paykeeper/internal/server/config"
	"github.com/dmitrijs2005/paykeeper/internal/server/events"
	"github.com/dmitrijs2005/paykeeper/internal/server/models"
	"github.com/dmitrijs2005/paykeeper/internal/server/remittance"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/paykeeper/internal/server/storage"
)

// Remitter delivers one payload. *remittance.Client implements it.
type Remitter interface {
	Configured() bool
	Source() string
	Send(ctx context.Context, key string, body []byte) (int, error)
}

// TaxSyncService sends committed periods to the tax authority and tracks the
// pending -> syncing -> synced | failed status on the period.
type TaxSyncService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	client      Remitter
	store       storage.ObjectStore
	queue       SyncQueue
	events      events.Sink
	log         logging.Logger
	now         func() time.Time

	companyName string
	companyEIN  string
}

func NewTaxSyncService(db *sql.DB, repomanager repomanager.RepositoryManager, client Remitter, store storage.ObjectStore,
	queue SyncQueue, config *sc.Config, sink events.Sink, log logging.Logger) *TaxSyncService {
	return &TaxSyncService{
		db:          db,
		repomanager: repomanager,
		client:      client,
		store:       store,
		queue:       queue,
		events:      sink,
		log:         log.With("module", "taxsync"),
		now:         time.Now,
		companyName: config.CompanyName,
		companyEIN:  config.CompanyEIN,
	}
}

// Sync makes one delivery attempt for a committed period. A period that is
// already synced is left alone. Errors of kind *remittance.RetryableError may
// be retried; validation and configuration errors may not.
func (s *TaxSyncService) Sync(ctx context.Context, periodID string) error {
	periods := s.repomanager.PayPeriods(s.db)

	period, err := periods.GetByID(ctx, periodID)
	if err != nil {
		return err
	}
	if period.Status != models.PeriodCommitted {
		return common.NewValidationError(common.ErrInvalidTransition,
			fmt.Sprintf("only committed periods are synced, period is %s", period.Status))
	}
	if period.TaxSyncStatus == models.SyncSynced {
		s.log.Debug(ctx, "tax sync skipped, already synced", "period_id", periodID)
		return nil
	}

	items, err := s.repomanager.PayrollItems(s.db).ListByPeriod(ctx, periodID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return common.NewValidationError(common.ErrNoPayrollItems, "")
	}

	// bookkeeping writes must land even if the caller is shutting down
	bg := context.WithoutCancel(ctx)

	// every attempt counts, including one cut short by missing configuration
	attempt, err := periods.MarkSyncing(ctx, periodID)
	if err != nil {
		return err
	}

	if !s.client.Configured() {
		cfgErr := common.NewConfigurationError(common.ErrSyncEndpointNotConfigured, "")
		s.log.Error(ctx, "tax sync endpoint not configured", "period_id", periodID)
		s.fail(bg, period, attempt, 0, cfgErr)
		return cfgErr
	}

	key, err := periods.EnsureIdempotencyKey(ctx, periodID, remittance.IdempotencyKey(periodID, *period.CommittedAt))
	if err != nil {
		s.fail(bg, period, attempt, 0, err)
		return err
	}

	body, err := s.buildBody(ctx, period, items, key)
	if err != nil {
		s.fail(bg, period, attempt, 0, err)
		return err
	}
	s.archive(ctx, periodID, key, body)

	status, err := s.client.Send(ctx, key, body)
	if err != nil {
		s.fail(bg, period, attempt, status, err)
		return err
	}

	if err := periods.MarkSynced(bg, periodID, s.now()); err != nil {
		return err
	}
	s.log.Info(ctx, "tax sync succeeded", "period_id", periodID, "attempt", attempt, "status_code", status, "idempotency_key", key)
	s.events.Emit(ctx, events.Event{
		Type:       events.TaxSyncSucceeded,
		ActorID:    actor.System(period.CompanyID).UserID,
		RecordType: "pay_period",
		RecordID:   periodID,
		Metadata:   map[string]any{"attempt": attempt, "status_code": status},
		At:         s.now(),
	})
	return nil
}

func (s *TaxSyncService) fail(ctx context.Context, period *models.PayPeriod, attempt, status int, cause error) {
	msg := remittance.Truncate(cause.Error(), remittance.MaxErrorLength)
	if err := s.repomanager.PayPeriods(s.db).MarkSyncFailed(ctx, period.ID, msg); err != nil {
		s.log.Error(ctx, "failed to record tax sync status", "period_id", period.ID, "error", err)
	}
	s.log.Warn(ctx, "tax sync failed", "period_id", period.ID, "attempt", attempt, "status_code", status,
		"retryable", remittance.IsRetryable(cause), "error", msg)
	s.events.Emit(ctx, events.Event{
		Type:       events.TaxSyncFailed,
		ActorID:    actor.System(period.CompanyID).UserID,
		RecordType: "pay_period",
		RecordID:   period.ID,
		Metadata:   map[string]any{"attempt": attempt, "status_code": status, "error": msg},
		At:         s.now(),
	})
}

func (s *TaxSyncService) buildBody(ctx context.Context, period *models.PayPeriod, items []*models.PayrollItem, key string) ([]byte, error) {
	company, err := s.repomanager.Companies(s.db).GetByID(ctx, period.CompanyID)
	if errors.Is(err, common.ErrNotFound) {
		company = &models.Company{ID: period.CompanyID, Name: s.companyName, EIN: s.companyEIN}
	} else if err != nil {
		return nil, err
	}

	employeeRepo := s.repomanager.Employees(s.db)
	employees := make(map[string]*models.Employee, len(items))
	for _, it := range items {
		if _, ok := employees[it.EmployeeID]; ok {
			continue
		}
		e, err := employeeRepo.GetByID(ctx, it.EmployeeID)
		if err != nil {
			return nil, err
		}
		employees[it.EmployeeID] = e
	}

	payload := remittance.BuildPayload(remittance.Submission{
		Key:       key,
		Source:    s.client.Source(),
		Period:    period,
		Company:   company,
		Items:     items,
		Employees: employees,
	}, s.now())
	return json.Marshal(payload)
}

// archive keeps a copy of what was sent. Failures are logged only.
func (s *TaxSyncService) archive(ctx context.Context, periodID, key string, body []byte) {
	if s.store == nil {
		return
	}
	objectKey := fmt.Sprintf("remittance/%s/%s.json", periodID, key)
	if err := s.store.Put(ctx, objectKey, body, "application/json"); err != nil {
		s.log.Warn(ctx, "remittance archive failed", "period_id", periodID, "key", objectKey, "error", err)
	}
}

func (s *TaxSyncService) checkRetriable(ctx context.Context, act actor.Actor, periodID string) error {
	if err := act.Validate(); err != nil {
		return err
	}
	period, err := s.repomanager.PayPeriods(s.db).GetByID(ctx, periodID)
	if err != nil {
		return err
	}
	if period.CompanyID != act.CompanyID {
		return common.ErrNotFound
	}
	if period.Status != models.PeriodCommitted {
		return common.NewValidationError(common.ErrInvalidTransition,
			fmt.Sprintf("only committed periods are synced, period is %s", period.Status))
	}
	if !period.SyncRetriable() {
		return common.NewValidationError(common.ErrInvalidTransition,
			fmt.Sprintf("tax sync is %s", period.TaxSyncStatus))
	}
	return nil
}

// Retry queues a manual sync for a pending or failed period.
func (s *TaxSyncService) Retry(ctx context.Context, act actor.Actor, periodID string) error {
	if err := s.checkRetriable(ctx, act, periodID); err != nil {
		return err
	}
	if s.queue == nil {
		return s.Sync(ctx, periodID)
	}
	if !s.queue.Enqueue(periodID) {
		return fmt.Errorf("tax sync queue is full: %w", common.ErrInternal)
	}
	s.log.Info(ctx, "manual tax sync queued", "period_id", periodID, "actor_id", act.UserID)
	return nil
}

// RetryNow runs a manual sync in the caller's goroutine.
func (s *TaxSyncService) RetryNow(ctx context.Context, act actor.Actor, periodID string) error {
	if err := s.checkRetriable(ctx, act, periodID); err != nil {
		return err
	}
	s.log.Info(ctx, "manual tax sync", "period_id", periodID, "actor_id", act.UserID)
	return s.Sync(ctx, periodID)
}

// Unsynced lists committed periods still waiting for delivery: pending ones,
// ones left in syncing by a crash, and failed ones with fewer than
// maxAttempts attempts.
func (s *TaxSyncService) Unsynced(ctx context.Context, maxAttempts int) ([]models.UnsyncedPeriod, error) {
	return s.repomanager.PayPeriods(s.db).ListUnsynced(ctx, maxAttempts)
}
