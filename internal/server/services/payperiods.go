package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/paykeeper/internal/common"
	"github.com/dmitrijs2005/paykeeper/internal/dbx"
	"github.com/dmitrijs2005/paykeeper/internal/logging"
	"github.com/dmitrijs2005/paykeeper/internal/payroll/paycalc"
	"github.com/dmitrijs2005/paykeeper/internal/server/actor"
	"github.com/dmitrijs2005/paykeeper/internal/server/events"
	"github.com/dmitrijs2005/paykeeper/internal/server/models"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/repomanager"
	"github.com/shopspring/decimal"
)

// SyncQueue accepts committed periods for background remittance. Enqueue
// never blocks; false means the queue was full and the period will be picked
// up by the next recovery pass or a manual retry.
type SyncQueue interface {
	Enqueue(periodID string) bool
}

// PayPeriodService drives the draft -> calculated -> approved -> committed
// lifecycle and the payroll items inside a period.
type PayPeriodService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	rates       *TaxRateService
	ytd         *YtdService
	queue       SyncQueue
	events      events.Sink
	log         logging.Logger
	now         func() time.Time
}

func NewPayPeriodService(db *sql.DB, repomanager repomanager.RepositoryManager, rates *TaxRateService, ytd *YtdService,
	queue SyncQueue, sink events.Sink, log logging.Logger) *PayPeriodService {
	return &PayPeriodService{
		db:          db,
		repomanager: repomanager,
		rates:       rates,
		ytd:         ytd,
		queue:       queue,
		events:      sink,
		log:         log.With("module", "payperiods"),
		now:         time.Now,
	}
}

// PeriodDetail is a period with its items.
type PeriodDetail struct {
	Period *models.PayPeriod
	Items  []*models.PayrollItem
}

type CreatePeriodInput struct {
	StartDate time.Time
	EndDate   time.Time
	PayDate   time.Time
	// EmployeeIDs seeds the period with empty items for these employees.
	EmployeeIDs []string
	// IncludeActive seeds an item for every active employee of the company.
	IncludeActive bool
}

// ItemInput is the per-period data entered for one employee.
type ItemInput struct {
	EmployeeID    string
	RegularHours  decimal.Decimal
	OvertimeHours decimal.Decimal
	HolidayHours  decimal.Decimal
	PTOHours      decimal.Decimal
	Tips          decimal.Decimal
	Bonus         decimal.Decimal
	Loan          decimal.Decimal
	Insurance     decimal.Decimal
}

// ItemPatch changes only the non-nil fields.
type ItemPatch struct {
	RegularHours  *decimal.Decimal
	OvertimeHours *decimal.Decimal
	HolidayHours  *decimal.Decimal
	PTOHours      *decimal.Decimal
	Tips          *decimal.Decimal
	Bonus         *decimal.Decimal
	Loan          *decimal.Decimal
	Insurance     *decimal.Decimal
}

func (p ItemPatch) apply(item *models.PayrollItem) {
	set := func(dst *decimal.Decimal, v *decimal.Decimal) {
		if v != nil {
			*dst = *v
		}
	}
	set(&item.RegularHours, p.RegularHours)
	set(&item.OvertimeHours, p.OvertimeHours)
	set(&item.HolidayHours, p.HolidayHours)
	set(&item.PTOHours, p.PTOHours)
	set(&item.Tips, p.Tips)
	set(&item.Bonus, p.Bonus)
	set(&item.Loan, p.Loan)
	set(&item.Insurance, p.Insurance)
}

func validateDates(start, end, pay time.Time) error {
	if start.IsZero() || end.IsZero() || pay.IsZero() {
		return common.NewValidationError(common.ErrInvalidDates, "start, end and pay dates are required")
	}
	if !start.Before(end) {
		return common.NewValidationError(common.ErrInvalidDates, "start date must be before end date")
	}
	if pay.Before(end) {
		return common.NewValidationError(common.ErrInvalidDates, "pay date must not be before end date")
	}
	return nil
}

func (s *PayPeriodService) Create(ctx context.Context, act actor.Actor, in CreatePeriodInput) (*PeriodDetail, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}
	if err := validateDates(in.StartDate, in.EndDate, in.PayDate); err != nil {
		return nil, err
	}

	detail := &PeriodDetail{}
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		period := &models.PayPeriod{
			CompanyID: act.CompanyID,
			StartDate: in.StartDate,
			EndDate:   in.EndDate,
			PayDate:   in.PayDate,
			CreatedBy: act.UserID,
		}
		if err := s.repomanager.PayPeriods(tx).Create(ctx, period); err != nil {
			return err
		}
		detail.Period = period

		employeeRepo := s.repomanager.Employees(tx)
		var seed []*models.Employee
		seen := make(map[string]bool)
		if in.IncludeActive {
			active, err := employeeRepo.ListActive(ctx, act.CompanyID)
			if err != nil {
				return err
			}
			for _, e := range active {
				seen[e.ID] = true
				seed = append(seed, e)
			}
		}
		for _, id := range in.EmployeeIDs {
			if seen[id] {
				continue
			}
			e, err := s.companyEmployee(ctx, tx, act, id)
			if err != nil {
				return err
			}
			seen[id] = true
			seed = append(seed, e)
		}

		itemRepo := s.repomanager.PayrollItems(tx)
		for _, e := range seed {
			item := &models.PayrollItem{
				PayPeriodID:    period.ID,
				EmployeeID:     e.ID,
				EmploymentType: e.EmploymentType,
				PayRate:        e.PayRate,
			}
			if err := itemRepo.Create(ctx, item); err != nil {
				return err
			}
			detail.Items = append(detail.Items, item)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "pay period created", "period_id", detail.Period.ID, "items", len(detail.Items), "actor_id", act.UserID)
	s.emit(ctx, act, events.PeriodCreated, "pay_period", detail.Period.ID, map[string]any{"items": len(detail.Items)})
	return detail, nil
}

func (s *PayPeriodService) Get(ctx context.Context, act actor.Actor, id string) (*PeriodDetail, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}
	period, err := s.repomanager.PayPeriods(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if period.CompanyID != act.CompanyID {
		return nil, common.ErrNotFound
	}
	items, err := s.repomanager.PayrollItems(s.db).ListByPeriod(ctx, id)
	if err != nil {
		return nil, err
	}
	return &PeriodDetail{Period: period, Items: items}, nil
}

func (s *PayPeriodService) Delete(ctx context.Context, act actor.Actor, id string) error {
	if err := act.Validate(); err != nil {
		return err
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		period, err := s.lockPeriod(ctx, tx, act, id)
		if err != nil {
			return err
		}
		if !period.Deletable() {
			return common.NewValidationError(common.ErrPeriodCommitted, "committed periods cannot be deleted")
		}
		return s.repomanager.PayPeriods(tx).Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.log.Info(ctx, "pay period deleted", "period_id", id, "actor_id", act.UserID)
	s.emit(ctx, act, events.PeriodDeleted, "pay_period", id, nil)
	return nil
}

// AddItem adds an employee to an editable period and calculates the new
// item right away.
func (s *PayPeriodService) AddItem(ctx context.Context, act actor.Actor, periodID string, in ItemInput) (*models.PayrollItem, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}

	var item *models.PayrollItem
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		period, err := s.lockEditable(ctx, tx, act, periodID)
		if err != nil {
			return err
		}
		emp, err := s.companyEmployee(ctx, tx, act, in.EmployeeID)
		if err != nil {
			return err
		}

		item = &models.PayrollItem{
			PayPeriodID:    period.ID,
			EmployeeID:     emp.ID,
			EmploymentType: emp.EmploymentType,
			PayRate:        emp.PayRate,
			RegularHours:   in.RegularHours,
			OvertimeHours:  in.OvertimeHours,
			HolidayHours:   in.HolidayHours,
			PTOHours:       in.PTOHours,
			Tips:           in.Tips,
			Bonus:          in.Bonus,
			Loan:           in.Loan,
			Insurance:      in.Insurance,
		}
		if err := s.repomanager.PayrollItems(tx).Create(ctx, item); err != nil {
			return err
		}
		return s.calculateItem(ctx, tx, period, item, emp)
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, act, events.ItemCreated, "payroll_item", item.ID, map[string]any{"pay_period_id": periodID, "employee_id": item.EmployeeID})
	return item, nil
}

// UpdateItem edits an item of an editable period and recalculates it.
func (s *PayPeriodService) UpdateItem(ctx context.Context, act actor.Actor, periodID, itemID string, patch ItemPatch) (*models.PayrollItem, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}

	var item *models.PayrollItem
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		period, err := s.lockEditable(ctx, tx, act, periodID)
		if err != nil {
			return err
		}
		itemRepo := s.repomanager.PayrollItems(tx)
		item, err = itemRepo.GetByID(ctx, periodID, itemID)
		if err != nil {
			return err
		}
		patch.apply(item)
		if err := itemRepo.UpdateInputs(ctx, item); err != nil {
			return err
		}
		emp, err := s.repomanager.Employees(tx).GetByID(ctx, item.EmployeeID)
		if err != nil {
			return err
		}
		return s.calculateItem(ctx, tx, period, item, emp)
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, act, events.ItemUpdated, "payroll_item", itemID, map[string]any{"pay_period_id": periodID})
	return item, nil
}

func (s *PayPeriodService) RemoveItem(ctx context.Context, act actor.Actor, periodID, itemID string) error {
	if err := act.Validate(); err != nil {
		return err
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.lockEditable(ctx, tx, act, periodID); err != nil {
			return err
		}
		return s.repomanager.PayrollItems(tx).Delete(ctx, periodID, itemID)
	})
	if err != nil {
		return err
	}

	s.emit(ctx, act, events.ItemDeleted, "payroll_item", itemID, map[string]any{"pay_period_id": periodID})
	return nil
}

// Calculate prices every item of the period. Any item error aborts the whole
// run and leaves the period as it was.
func (s *PayPeriodService) Calculate(ctx context.Context, act actor.Actor, periodID string) (*PeriodDetail, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}

	detail := &PeriodDetail{}
	var from models.PayPeriodStatus
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		period, err := s.lockPeriod(ctx, tx, act, periodID)
		if err != nil {
			return err
		}
		if !canCalculate(period.Status) {
			return transitionError("calculate", period.Status)
		}
		from = period.Status

		items, err := s.repomanager.PayrollItems(tx).ListByPeriod(ctx, periodID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return common.NewValidationError(common.ErrNoPayrollItems, "")
		}

		employeeRepo := s.repomanager.Employees(tx)
		var errs []error
		for _, item := range items {
			emp, err := employeeRepo.GetByID(ctx, item.EmployeeID)
			if err == nil {
				err = s.calculateItem(ctx, tx, period, item, emp)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("item %s (employee %s): %w", item.ID, item.EmployeeID, err))
			}
		}
		if err := errors.Join(errs...); err != nil {
			return err
		}

		if period.Status == models.PeriodDraft {
			if err := s.repomanager.PayPeriods(tx).Transition(ctx, periodID, models.PeriodDraft, models.PeriodCalculated); err != nil {
				return err
			}
			period.Status = models.PeriodCalculated
		}
		detail.Period = period
		detail.Items = items
		return nil
	})
	if err != nil {
		s.log.Warn(ctx, "pay period calculation failed", "period_id", periodID, "error", err)
		return nil, err
	}

	s.log.Info(ctx, "pay period calculated", "period_id", periodID, "from", string(from),
		"to", string(models.PeriodCalculated), "items", len(detail.Items), "actor_id", act.UserID)
	s.emit(ctx, act, events.PeriodCalculated, "pay_period", periodID, map[string]any{"items": len(detail.Items)})
	return detail, nil
}

func (s *PayPeriodService) Approve(ctx context.Context, act actor.Actor, periodID string) (*models.PayPeriod, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}

	var period *models.PayPeriod
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		period, err = s.lockPeriod(ctx, tx, act, periodID)
		if err != nil {
			return err
		}
		if next, ok := nextStatus[period.Status]; !ok || next != models.PeriodApproved {
			return transitionError("approve", period.Status)
		}

		at := s.now()
		if err := s.repomanager.PayPeriods(tx).Approve(ctx, periodID, act.UserID, at); err != nil {
			return err
		}
		period.Status = models.PeriodApproved
		period.ApprovedBy = act.UserID
		period.ApprovedAt = &at
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "pay period approved", "period_id", periodID, "from", string(models.PeriodCalculated),
		"to", string(models.PeriodApproved), "actor_id", act.UserID)
	s.emit(ctx, act, events.PeriodApproved, "pay_period", periodID, nil)
	return period, nil
}

// Commit finalizes an approved period. The status change and the YTD
// fold-in of every item happen in one transaction. The employee YTD rows are
// locked first; an item priced against totals that have since moved is
// repriced against the locked row before it is folded in. Tax sync is queued
// after the transaction commits and never rolls it back.
func (s *PayPeriodService) Commit(ctx context.Context, act actor.Actor, periodID string) (*models.PayPeriod, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}

	var period *models.PayPeriod
	var itemCount int
	var repriced []string
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		period, err = s.lockPeriod(ctx, tx, act, periodID)
		if err != nil {
			return err
		}
		if next, ok := nextStatus[period.Status]; !ok || next != models.PeriodCommitted {
			return transitionError("commit", period.Status)
		}

		items, err := s.repomanager.PayrollItems(tx).ListByPeriod(ctx, periodID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return common.NewValidationError(common.ErrNoPayrollItems, "")
		}

		employeeIDs := make([]string, 0, len(items))
		for _, item := range items {
			if item.CalculatedAt == nil {
				return common.NewValidationError(common.ErrInvalidTransition,
					fmt.Sprintf("item %s has not been calculated", item.ID))
			}
			employeeIDs = append(employeeIDs, item.EmployeeID)
		}
		priors, err := s.ytd.LockEmployees(ctx, tx, employeeIDs, period.TaxYear())
		if err != nil {
			return err
		}

		employeeRepo := s.repomanager.Employees(tx)
		lines := make([]FoldLine, 0, len(items))
		for _, item := range items {
			emp, err := employeeRepo.GetByID(ctx, item.EmployeeID)
			if err != nil {
				return err
			}
			// Another period for this employee was committed after the item
			// was priced; its wage base and YTD snapshot are stale.
			prior := priors[item.EmployeeID]
			if !item.YtdGross.Sub(item.GrossPay).Equal(prior.Gross) {
				s.log.Warn(ctx, "ytd changed since calculation, repricing item", "period_id", periodID,
					"item_id", item.ID, "employee_id", item.EmployeeID)
				if err := s.priceItem(ctx, tx, period, item, emp, prior); err != nil {
					return err
				}
				repriced = append(repriced, item.ID)
			}
			lines = append(lines, FoldLine{Item: item, DepartmentID: emp.DepartmentID})
		}

		at := s.now()
		if err := s.repomanager.PayPeriods(tx).Commit(ctx, periodID, act.UserID, at); err != nil {
			return err
		}
		if err := s.ytd.FoldIn(ctx, tx, period.CompanyID, period.TaxYear(), lines); err != nil {
			return err
		}

		period.Status = models.PeriodCommitted
		period.CommittedBy = act.UserID
		period.CommittedAt = &at
		period.TaxSyncStatus = models.SyncPending
		itemCount = len(items)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "pay period committed", "period_id", periodID, "from", string(models.PeriodApproved),
		"to", string(models.PeriodCommitted), "items", itemCount, "actor_id", act.UserID)
	for _, id := range repriced {
		s.emit(ctx, act, events.ItemUpdated, "payroll_item", id, map[string]any{"pay_period_id": periodID, "repriced_at_commit": true})
	}
	s.emit(ctx, act, events.PeriodCommitted, "pay_period", periodID, map[string]any{"items": itemCount, "tax_year": period.TaxYear()})

	if s.queue != nil && !s.queue.Enqueue(periodID) {
		s.log.Warn(ctx, "tax sync queue full", "period_id", periodID)
	}
	return period, nil
}

// nextStatus is the only forward edge out of each state. Calculation is
// handled separately because it may also run in place on a calculated period.
var nextStatus = map[models.PayPeriodStatus]models.PayPeriodStatus{
	models.PeriodDraft:      models.PeriodCalculated,
	models.PeriodCalculated: models.PeriodApproved,
	models.PeriodApproved:   models.PeriodCommitted,
}

func canCalculate(st models.PayPeriodStatus) bool {
	return st == models.PeriodDraft || st == models.PeriodCalculated
}

func transitionError(action string, st models.PayPeriodStatus) error {
	return common.NewValidationError(common.ErrInvalidTransition,
		fmt.Sprintf("cannot %s a %s pay period", action, st))
}

// lockPeriod loads and locks the period, hiding periods of other companies.
func (s *PayPeriodService) lockPeriod(ctx context.Context, tx dbx.DBTX, act actor.Actor, id string) (*models.PayPeriod, error) {
	period, err := s.repomanager.PayPeriods(tx).GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if period.CompanyID != act.CompanyID {
		return nil, common.ErrNotFound
	}
	return period, nil
}

func (s *PayPeriodService) lockEditable(ctx context.Context, tx dbx.DBTX, act actor.Actor, id string) (*models.PayPeriod, error) {
	period, err := s.lockPeriod(ctx, tx, act, id)
	if err != nil {
		return nil, err
	}
	switch {
	case period.Status == models.PeriodCommitted:
		return nil, common.NewValidationError(common.ErrPeriodCommitted, "committed periods are read-only")
	case !period.Editable():
		return nil, common.NewValidationError(common.ErrPeriodNotEditable,
			fmt.Sprintf("%s periods are read-only", period.Status))
	}
	return period, nil
}

func (s *PayPeriodService) companyEmployee(ctx context.Context, tx dbx.DBTX, act actor.Actor, id string) (*models.Employee, error) {
	emp, err := s.repomanager.Employees(tx).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if emp.CompanyID != act.CompanyID {
		return nil, common.ErrNotFound
	}
	return emp, nil
}

// calculateItem replaces every computed field of item. Employment type and
// pay rate are re-snapshotted from the employee.
func (s *PayPeriodService) calculateItem(ctx context.Context, tx dbx.DBTX, period *models.PayPeriod, item *models.PayrollItem, emp *models.Employee) error {
	prior, err := s.ytd.Prior(ctx, tx, emp.ID, period.TaxYear())
	if err != nil {
		return err
	}
	return s.priceItem(ctx, tx, period, item, emp, prior)
}

// priceItem is calculateItem against a given prior YTD.
func (s *PayPeriodService) priceItem(ctx context.Context, tx dbx.DBTX, period *models.PayPeriod, item *models.PayrollItem, emp *models.Employee, prior paycalc.YTD) error {
	calc, err := s.rates.Calculator(ctx, tx, period.TaxYear(), emp.FilingStatus, emp.PayFrequency)
	if err != nil {
		return err
	}

	res, err := paycalc.Calculate(paycalc.Input{
		EmploymentType: emp.EmploymentType,
		PayRate:        emp.PayRate,
		PayFrequency:   emp.PayFrequency,
		FilingStatus:   emp.FilingStatus,
		Allowances:     emp.Allowances,
		Hours: paycalc.Hours{
			Regular:  item.RegularHours,
			Overtime: item.OvertimeHours,
			Holiday:  item.HolidayHours,
			PTO:      item.PTOHours,
		},
		Tips:                  item.Tips,
		Bonus:                 item.Bonus,
		RetirementRate:        emp.RetirementRate,
		RothRate:              emp.RothRate,
		AdditionalWithholding: emp.AdditionalWithholding,
		Loan:                  item.Loan,
		Insurance:             item.Insurance,
		PriorYTD:              prior,
	}, calc)
	if err != nil {
		return err
	}

	at := s.now()
	item.EmploymentType = emp.EmploymentType
	item.PayRate = emp.PayRate
	item.AdditionalWithholding = res.AdditionalWithholding
	item.Retirement = res.Retirement
	item.Roth = res.Roth
	item.GrossPay = res.GrossPay
	item.Withholding = res.Withholding
	item.SocialSecurity = res.SocialSecurity
	item.Medicare = res.Medicare
	item.EmployerSocialSecurity = res.EmployerSocialSecurity
	item.EmployerMedicare = res.EmployerMedicare
	item.TotalDeductions = res.TotalDeductions
	item.NetPay = res.NetPay
	item.YtdGross = res.YTD.Gross
	item.YtdNet = res.YTD.Net
	item.YtdWithholding = res.YTD.Withholding
	item.YtdSocialSecurity = res.YTD.SocialSecurity
	item.YtdMedicare = res.YTD.Medicare
	item.YtdRetirement = res.YTD.Retirement
	item.CalculatedAt = &at

	return s.repomanager.PayrollItems(tx).SaveCalculation(ctx, item)
}

func (s *PayPeriodService) emit(ctx context.Context, act actor.Actor, t events.Type, recordType, recordID string, meta map[string]any) {
	s.events.Emit(ctx, events.Event{
		Type:       t,
		ActorID:    act.UserID,
		RecordType: recordType,
		RecordID:   recordID,
		Metadata:   meta,
		At:         s.now(),
	})
}
