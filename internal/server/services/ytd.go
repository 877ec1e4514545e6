package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/dmitrijs2005/paykeeper/internal/common"
	"github.com/dmitrijs2005/paykeeper/internal/dbx"
	"github.com/dmitrijs2005/paykeeper/internal/logging"
	"github.com/dmitrijs2005/paykeeper/internal/payroll/paycalc"
	"github.com/dmitrijs2005/paykeeper/internal/server/actor"
	"github.com/dmitrijs2005/paykeeper/internal/server/events"
	"github.com/dmitrijs2005/paykeeper/internal/server/models"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/repomanager"
)

// YtdService is the only writer of YTD rows.
type YtdService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	events      events.Sink
	log         logging.Logger
	now         func() time.Time
}

func NewYtdService(db *sql.DB, repomanager repomanager.RepositoryManager, sink events.Sink, log logging.Logger) *YtdService {
	return &YtdService{
		db:          db,
		repomanager: repomanager,
		events:      sink,
		log:         log.With("module", "ytd"),
		now:         time.Now,
	}
}

// Prior returns the employee's committed totals for year, or zeros when no
// row exists yet.
func (s *YtdService) Prior(ctx context.Context, db dbx.DBTX, employeeID string, year int) (paycalc.YTD, error) {
	t, err := s.repomanager.Ytd(db).Get(ctx, models.ScopeEmployee, employeeID, year)
	if errors.Is(err, common.ErrNotFound) {
		return paycalc.YTD{}, nil
	}
	if err != nil {
		return paycalc.YTD{}, err
	}
	return priorOf(t), nil
}

func priorOf(t *models.YtdTotal) paycalc.YTD {
	return paycalc.YTD{
		Gross:          t.GrossPay,
		Net:            t.NetPay,
		Withholding:    t.Withholding,
		SocialSecurity: t.SocialSecurity,
		Medicare:       t.Medicare,
		Retirement:     t.Retirement,
	}
}

// LockEmployees creates and locks the employee rows for year in id order and
// returns their totals. The locks are held until tx ends, so the totals
// cannot move while the caller checks and folds items against them.
func (s *YtdService) LockEmployees(ctx context.Context, tx dbx.DBTX, employeeIDs []string, year int) (map[string]paycalc.YTD, error) {
	ids := append([]string(nil), employeeIDs...)
	sort.Strings(ids)

	repo := s.repomanager.Ytd(tx)
	out := make(map[string]paycalc.YTD, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		if err := repo.Ensure(ctx, models.ScopeEmployee, id, year); err != nil {
			return nil, err
		}
		t, err := repo.GetForUpdate(ctx, models.ScopeEmployee, id, year)
		if err != nil {
			return nil, err
		}
		out[id] = priorOf(t)
	}
	return out, nil
}

// FoldLine is one committed item with the department it counts towards.
type FoldLine struct {
	Item         *models.PayrollItem
	DepartmentID string
}

type ytdKey struct {
	scope    models.YtdScope
	entityID string
}

// scopeOrder fixes the lock order so concurrent commits never wait on each
// other in a cycle.
var scopeOrder = map[models.YtdScope]int{
	models.ScopeEmployee:   0,
	models.ScopeDepartment: 1,
	models.ScopeCompany:    2,
}

// FoldIn adds every line into its employee, department and company rows for
// year. It must run inside the commit transaction: each row is created if
// missing, locked, updated and released at commit.
func (s *YtdService) FoldIn(ctx context.Context, tx dbx.DBTX, companyID string, year int, lines []FoldLine) error {
	grouped := make(map[ytdKey][]*models.PayrollItem)
	add := func(scope models.YtdScope, id string, item *models.PayrollItem) {
		k := ytdKey{scope, id}
		grouped[k] = append(grouped[k], item)
	}
	for _, l := range lines {
		add(models.ScopeEmployee, l.Item.EmployeeID, l.Item)
		if l.DepartmentID != "" {
			add(models.ScopeDepartment, l.DepartmentID, l.Item)
		}
		add(models.ScopeCompany, companyID, l.Item)
	}

	keys := make([]ytdKey, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].scope != keys[j].scope {
			return scopeOrder[keys[i].scope] < scopeOrder[keys[j].scope]
		}
		return keys[i].entityID < keys[j].entityID
	})

	repo := s.repomanager.Ytd(tx)
	for _, k := range keys {
		if err := repo.Ensure(ctx, k.scope, k.entityID, year); err != nil {
			return err
		}
		total, err := repo.GetForUpdate(ctx, k.scope, k.entityID, year)
		if err != nil {
			return err
		}
		for _, item := range grouped[k] {
			total.Accumulate(item)
		}
		if err := repo.Update(ctx, total); err != nil {
			return err
		}
		s.log.Debug(ctx, "ytd folded", "scope", string(k.scope), "entity_id", k.entityID, "year", year, "items", len(grouped[k]))
	}
	return nil
}

// Get returns one row. Rows outside the actor's company are reported as not
// found; a department belongs to the company when one of its active
// employees is in it.
func (s *YtdService) Get(ctx context.Context, act actor.Actor, scope models.YtdScope, entityID string, year int) (*models.YtdTotal, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}
	if !scope.Valid() {
		return nil, common.NewValidationError(common.ErrInvalidInput, "unknown ytd scope "+string(scope))
	}
	if err := s.checkOwner(ctx, act, scope, entityID); err != nil {
		return nil, err
	}
	return s.repomanager.Ytd(s.db).Get(ctx, scope, entityID, year)
}

func (s *YtdService) checkOwner(ctx context.Context, act actor.Actor, scope models.YtdScope, entityID string) error {
	employees := s.repomanager.Employees(s.db)
	switch scope {
	case models.ScopeCompany:
		if entityID != act.CompanyID {
			return common.ErrNotFound
		}
	case models.ScopeEmployee:
		e, err := employees.GetByID(ctx, entityID)
		if err != nil {
			return err
		}
		if e.CompanyID != act.CompanyID {
			return common.ErrNotFound
		}
	case models.ScopeDepartment:
		active, err := employees.ListActive(ctx, act.CompanyID)
		if err != nil {
			return err
		}
		for _, e := range active {
			if e.DepartmentID == entityID {
				return nil
			}
		}
		return common.ErrNotFound
	}
	return nil
}

// Reset zeroes one row. It is destructive and refuses to run unless the
// operator confirmed it.
func (s *YtdService) Reset(ctx context.Context, act actor.Actor, scope models.YtdScope, entityID string, year int, confirmed bool) error {
	if err := act.Validate(); err != nil {
		return err
	}
	if !confirmed {
		return common.NewValidationError(common.ErrYtdResetNotConfirmed, "")
	}
	if !scope.Valid() {
		return common.NewValidationError(common.ErrInvalidInput, "unknown ytd scope "+string(scope))
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Ytd(tx)
		if _, err := repo.GetForUpdate(ctx, scope, entityID, year); err != nil {
			return err
		}
		return repo.Reset(ctx, scope, entityID, year)
	})
	if err != nil {
		return err
	}

	s.log.Warn(ctx, "ytd reset", "scope", string(scope), "entity_id", entityID, "year", year, "actor_id", act.UserID)
	s.events.Emit(ctx, events.Event{
		Type:       events.YtdReset,
		ActorID:    act.UserID,
		RecordType: "ytd_total",
		RecordID:   entityID,
		Metadata:   map[string]any{"scope": string(scope), "year": year},
		At:         s.now(),
	})
	return nil
}
