package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/paykeeper/internal/common"
	"github.com/dmitrijs2005/paykeeper/internal/dbx"
	"github.com/dmitrijs2005/paykeeper/internal/logging"
	"github.com/dmitrijs2005/paykeeper/internal/payroll"
	"github.com/dmitrijs2005/paykeeper/internal/server/actor"
	sc "github.com/dmitrijs2005/paykeeper/internal/server/config"
	"github.com/dmitrijs2005/paykeeper/internal/server/events"
	"github.com/dmitrijs2005/paykeeper/internal/server/models"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/companies"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/employees"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/payperiods"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/payrollitems"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/taxrates"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/ytd"
	"github.com/dmitrijs2005/paykeeper/internal/server/storage"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// -------- test fakes --------

type fakeTaxRatesRepo struct {
	taxrates.Repository
	annual  map[int]*models.AnnualTaxConfig
	tables  map[string]*models.TaxTable
	changes []*models.TaxConfigChange
	getErr  error
}

func tableKey(year int, st payroll.FilingStatus, f payroll.PayFrequency) string {
	return fmt.Sprintf("%d/%s/%s", year, st, f)
}

func copyConfig(c *models.AnnualTaxConfig) *models.AnnualTaxConfig {
	cp := *c
	cp.FilingStatuses = nil
	for _, fs := range c.FilingStatuses {
		f := fs
		f.Brackets = append([]models.TaxBracket(nil), fs.Brackets...)
		cp.FilingStatuses = append(cp.FilingStatuses, f)
	}
	return &cp
}

func (f *fakeTaxRatesRepo) GetAnnualConfig(ctx context.Context, year int) (*models.AnnualTaxConfig, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	c, ok := f.annual[year]
	if !ok {
		return nil, common.ErrNotFound
	}
	return copyConfig(c), nil
}

func (f *fakeTaxRatesRepo) GetActiveAnnualConfig(ctx context.Context) (*models.AnnualTaxConfig, error) {
	for _, c := range f.annual {
		if c.Active {
			return copyConfig(c), nil
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeTaxRatesRepo) GetTaxTable(ctx context.Context, year int, st payroll.FilingStatus, freq payroll.PayFrequency) (*models.TaxTable, error) {
	t, ok := f.tables[tableKey(year, st, freq)]
	if !ok {
		return nil, common.ErrNotFound
	}
	return t, nil
}

func (f *fakeTaxRatesRepo) CreateAnnualConfig(ctx context.Context, c *models.AnnualTaxConfig) error {
	if _, ok := f.annual[c.Year]; ok {
		return common.NewValidationError(common.ErrInvalidInput, "exists")
	}
	c.ID = fmt.Sprintf("cfg-%d", c.Year)
	f.annual[c.Year] = copyConfig(c)
	return nil
}

func (f *fakeTaxRatesRepo) CreateTaxTable(ctx context.Context, t *models.TaxTable) error {
	f.tables[tableKey(t.Year, t.FilingStatus, t.PayFrequency)] = t
	return nil
}

func (f *fakeTaxRatesRepo) UpdateRates(ctx context.Context, year int, r taxrates.RateFields) error {
	c, ok := f.annual[year]
	if !ok {
		return common.ErrNotFound
	}
	c.SocialSecurityWageBase = r.SocialSecurityWageBase
	c.SocialSecurityRate = r.SocialSecurityRate
	c.MedicareRate = r.MedicareRate
	c.AdditionalMedicareRate = r.AdditionalMedicareRate
	c.AdditionalMedicareThreshold = r.AdditionalMedicareThreshold
	return nil
}

func (f *fakeTaxRatesRepo) UpdateStandardDeduction(ctx context.Context, year int, st payroll.FilingStatus, amount decimal.Decimal) error {
	c, ok := f.annual[year]
	if !ok {
		return common.ErrNotFound
	}
	fs := c.FilingStatus(st)
	if fs == nil {
		return common.ErrNotFound
	}
	fs.StandardDeduction = amount
	return nil
}

func (f *fakeTaxRatesRepo) DeactivateAll(ctx context.Context) error {
	for _, c := range f.annual {
		c.Active = false
	}
	return nil
}

func (f *fakeTaxRatesRepo) SetActive(ctx context.Context, year int, active bool) error {
	c, ok := f.annual[year]
	if !ok {
		return common.ErrNotFound
	}
	c.Active = active
	return nil
}

func (f *fakeTaxRatesRepo) InsertChange(ctx context.Context, c *models.TaxConfigChange) error {
	c.ID = fmt.Sprintf("chg-%d", len(f.changes)+1)
	f.changes = append(f.changes, c)
	return nil
}

func (f *fakeTaxRatesRepo) ListChanges(ctx context.Context, year int) ([]*models.TaxConfigChange, error) {
	var out []*models.TaxConfigChange
	for _, c := range f.changes {
		if c.Year == year {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeCompaniesRepo struct {
	companies.Repository
	byID map[string]*models.Company
}

func (f *fakeCompaniesRepo) GetByID(ctx context.Context, id string) (*models.Company, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

type fakeEmployeesRepo struct {
	employees.Repository
	byID map[string]*models.Employee
}

func (f *fakeEmployeesRepo) GetByID(ctx context.Context, id string) (*models.Employee, error) {
	e, ok := f.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeEmployeesRepo) ListActive(ctx context.Context, companyID string) ([]*models.Employee, error) {
	var out []*models.Employee
	for _, e := range f.byID {
		if e.CompanyID == companyID && e.Status == models.EmployeeActive {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakePeriodsRepo struct {
	payperiods.Repository
	byID      map[string]*models.PayPeriod
	seq       int
	createErr error
}

func (f *fakePeriodsRepo) Create(ctx context.Context, p *models.PayPeriod) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.seq++
	p.ID = fmt.Sprintf("period-%d", f.seq)
	p.Status = models.PeriodDraft
	p.TaxSyncStatus = models.SyncPending
	cp := *p
	f.byID[p.ID] = &cp
	return nil
}

func (f *fakePeriodsRepo) GetByID(ctx context.Context, id string) (*models.PayPeriod, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePeriodsRepo) GetForUpdate(ctx context.Context, id string) (*models.PayPeriod, error) {
	return f.GetByID(ctx, id)
}

func (f *fakePeriodsRepo) Delete(ctx context.Context, id string) error {
	p, ok := f.byID[id]
	if !ok {
		return common.ErrNotFound
	}
	if p.Status == models.PeriodCommitted {
		return common.ErrPeriodCommitted
	}
	delete(f.byID, id)
	return nil
}

func (f *fakePeriodsRepo) Transition(ctx context.Context, id string, from, to models.PayPeriodStatus) error {
	p, ok := f.byID[id]
	if !ok || p.Status != from {
		return common.ErrInvalidTransition
	}
	p.Status = to
	return nil
}

func (f *fakePeriodsRepo) Approve(ctx context.Context, id, actorID string, at time.Time) error {
	if err := f.Transition(ctx, id, models.PeriodCalculated, models.PeriodApproved); err != nil {
		return err
	}
	f.byID[id].ApprovedBy = actorID
	f.byID[id].ApprovedAt = &at
	return nil
}

func (f *fakePeriodsRepo) Commit(ctx context.Context, id, actorID string, at time.Time) error {
	if err := f.Transition(ctx, id, models.PeriodApproved, models.PeriodCommitted); err != nil {
		return err
	}
	p := f.byID[id]
	p.CommittedBy = actorID
	p.CommittedAt = &at
	p.TaxSyncStatus = models.SyncPending
	return nil
}

func (f *fakePeriodsRepo) EnsureIdempotencyKey(ctx context.Context, id, candidate string) (string, error) {
	p, ok := f.byID[id]
	if !ok {
		return "", common.ErrNotFound
	}
	if p.IdempotencyKey == "" {
		p.IdempotencyKey = candidate
	}
	return p.IdempotencyKey, nil
}

func (f *fakePeriodsRepo) MarkSyncing(ctx context.Context, id string) (int, error) {
	p, ok := f.byID[id]
	if !ok || p.Status != models.PeriodCommitted || p.TaxSyncStatus == models.SyncSynced {
		return 0, common.ErrInvalidTransition
	}
	p.TaxSyncStatus = models.SyncSyncing
	p.TaxSyncAttempts++
	return p.TaxSyncAttempts, nil
}

func (f *fakePeriodsRepo) MarkSynced(ctx context.Context, id string, at time.Time) error {
	p := f.byID[id]
	p.TaxSyncStatus = models.SyncSynced
	p.TaxSyncedAt = &at
	p.TaxSyncLastError = ""
	return nil
}

func (f *fakePeriodsRepo) MarkSyncFailed(ctx context.Context, id, lastError string) error {
	p := f.byID[id]
	if p.TaxSyncStatus == models.SyncSynced {
		return common.ErrInvalidTransition
	}
	p.TaxSyncStatus = models.SyncFailed
	p.TaxSyncLastError = lastError
	return nil
}

func (f *fakePeriodsRepo) ListUnsynced(ctx context.Context, maxAttempts int) ([]models.UnsyncedPeriod, error) {
	var out []models.UnsyncedPeriod
	for _, p := range f.byID {
		if p.Status != models.PeriodCommitted {
			continue
		}
		switch {
		case p.TaxSyncStatus == models.SyncPending, p.TaxSyncStatus == models.SyncSyncing,
			p.TaxSyncStatus == models.SyncFailed && p.TaxSyncAttempts < maxAttempts:
			out = append(out, models.UnsyncedPeriod{ID: p.ID, Attempts: p.TaxSyncAttempts})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeItemsRepo struct {
	payrollitems.Repository
	items []*models.PayrollItem
	seq   int
	saves int
}

func (f *fakeItemsRepo) Create(ctx context.Context, item *models.PayrollItem) error {
	for _, it := range f.items {
		if it.PayPeriodID == item.PayPeriodID && it.EmployeeID == item.EmployeeID {
			return common.NewValidationError(common.ErrDuplicateEmployee, item.EmployeeID)
		}
	}
	f.seq++
	item.ID = fmt.Sprintf("item-%d", f.seq)
	cp := *item
	f.items = append(f.items, &cp)
	return nil
}

func (f *fakeItemsRepo) find(periodID, id string) (int, bool) {
	for i, it := range f.items {
		if it.PayPeriodID == periodID && it.ID == id {
			return i, true
		}
	}
	return 0, false
}

func (f *fakeItemsRepo) GetByID(ctx context.Context, periodID, id string) (*models.PayrollItem, error) {
	i, ok := f.find(periodID, id)
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *f.items[i]
	return &cp, nil
}

func (f *fakeItemsRepo) ListByPeriod(ctx context.Context, periodID string) ([]*models.PayrollItem, error) {
	var out []*models.PayrollItem
	for _, it := range f.items {
		if it.PayPeriodID == periodID {
			cp := *it
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeItemsRepo) UpdateInputs(ctx context.Context, item *models.PayrollItem) error {
	i, ok := f.find(item.PayPeriodID, item.ID)
	if !ok {
		return common.ErrNotFound
	}
	cp := *item
	f.items[i] = &cp
	return nil
}

func (f *fakeItemsRepo) SaveCalculation(ctx context.Context, item *models.PayrollItem) error {
	f.saves++
	return f.UpdateInputs(ctx, item)
}

func (f *fakeItemsRepo) Delete(ctx context.Context, periodID, id string) error {
	i, ok := f.find(periodID, id)
	if !ok {
		return common.ErrNotFound
	}
	f.items = append(f.items[:i], f.items[i+1:]...)
	return nil
}

type fakeYtdRepo struct {
	ytd.Repository
	rows   map[string]*models.YtdTotal
	locked []string
}

func ytdRowKey(scope models.YtdScope, id string, year int) string {
	return fmt.Sprintf("%s/%s/%d", scope, id, year)
}

func (f *fakeYtdRepo) Ensure(ctx context.Context, scope models.YtdScope, id string, year int) error {
	k := ytdRowKey(scope, id, year)
	if _, ok := f.rows[k]; !ok {
		f.rows[k] = &models.YtdTotal{ID: k, Scope: scope, EntityID: id, Year: year}
	}
	return nil
}

func (f *fakeYtdRepo) Get(ctx context.Context, scope models.YtdScope, id string, year int) (*models.YtdTotal, error) {
	r, ok := f.rows[ytdRowKey(scope, id, year)]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeYtdRepo) GetForUpdate(ctx context.Context, scope models.YtdScope, id string, year int) (*models.YtdTotal, error) {
	f.locked = append(f.locked, ytdRowKey(scope, id, year))
	return f.Get(ctx, scope, id, year)
}

func (f *fakeYtdRepo) Update(ctx context.Context, t *models.YtdTotal) error {
	cp := *t
	f.rows[ytdRowKey(t.Scope, t.EntityID, t.Year)] = &cp
	return nil
}

func (f *fakeYtdRepo) Reset(ctx context.Context, scope models.YtdScope, id string, year int) error {
	k := ytdRowKey(scope, id, year)
	r, ok := f.rows[k]
	if !ok {
		return common.ErrNotFound
	}
	f.rows[k] = &models.YtdTotal{ID: r.ID, Scope: scope, EntityID: id, Year: year}
	return nil
}

type fakeRepoManager struct {
	repomanager.RepositoryManager
	rates     *fakeTaxRatesRepo
	companies *fakeCompaniesRepo
	employees *fakeEmployeesRepo
	periods   *fakePeriodsRepo
	items     *fakeItemsRepo
	ytd       *fakeYtdRepo
}

func (m *fakeRepoManager) TaxRates(dbx.DBTX) taxrates.Repository         { return m.rates }
func (m *fakeRepoManager) Companies(dbx.DBTX) companies.Repository       { return m.companies }
func (m *fakeRepoManager) Employees(dbx.DBTX) employees.Repository       { return m.employees }
func (m *fakeRepoManager) PayPeriods(dbx.DBTX) payperiods.Repository     { return m.periods }
func (m *fakeRepoManager) PayrollItems(dbx.DBTX) payrollitems.Repository { return m.items }
func (m *fakeRepoManager) Ytd(dbx.DBTX) ytd.Repository                   { return m.ytd }

type fakeQueue struct {
	mu     sync.Mutex
	ids    []string
	reject bool
}

func (q *fakeQueue) Enqueue(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reject {
		return false
	}
	q.ids = append(q.ids, id)
	return true
}

type sentRequest struct {
	key  string
	body []byte
}

type fakeRemitter struct {
	configured bool
	status     int
	err        error
	sent       []sentRequest
}

func (r *fakeRemitter) Configured() bool { return r.configured }
func (r *fakeRemitter) Source() string   { return "paykeeper" }
func (r *fakeRemitter) Send(ctx context.Context, key string, body []byte) (int, error) {
	r.sent = append(r.sent, sentRequest{key: key, body: body})
	return r.status, r.err
}

// -------- helpers --------

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// expectTx registers one transaction that commits when ok and rolls back
// otherwise.
func expectTx(mock sqlmock.Sqlmock, ok bool) {
	mock.ExpectBegin()
	if ok {
		mock.ExpectCommit()
	} else {
		mock.ExpectRollback()
	}
}

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func testAnnualConfig2025() *models.AnnualTaxConfig {
	top := decimal.NullDecimal{}
	return &models.AnnualTaxConfig{
		ID:                          "cfg-2025",
		Year:                        2025,
		SocialSecurityWageBase:      d("168600"),
		SocialSecurityRate:          d("0.062"),
		MedicareRate:                d("0.0145"),
		AdditionalMedicareRate:      d("0.009"),
		AdditionalMedicareThreshold: d("200000"),
		Active:                      true,
		FilingStatuses: []models.FilingStatusConfig{{
			FilingStatus:      payroll.Single,
			StandardDeduction: d("16100"),
			Brackets: []models.TaxBracket{
				{Position: 0, MinIncome: d("0"), MaxIncome: decimal.NewNullDecimal(d("12400")), Rate: d("0.10")},
				{Position: 1, MinIncome: d("12400"), MaxIncome: top, Rate: d("0.12")},
			},
		}},
	}
}

type env struct {
	db       *sql.DB
	mock     sqlmock.Sqlmock
	rm       *fakeRepoManager
	events   *events.Recorder
	queue    *fakeQueue
	remitter *fakeRemitter
	store    *storage.MemoryStore

	rates   *TaxRateService
	ytd     *YtdService
	periods *PayPeriodService
	sync    *TaxSyncService
	stubs   *PayStubService
}

var (
	admin    = actor.Actor{UserID: "u-admin", CompanyID: "c1", Role: actor.RoleAdmin}
	outsider = actor.Actor{UserID: "u-x", CompanyID: "c2", Role: actor.RoleAdmin}
)

func newEnv(t *testing.T) *env {
	t.Helper()
	db, mock := newSQLMockDB(t)

	rm := &fakeRepoManager{
		rates: &fakeTaxRatesRepo{
			annual: map[int]*models.AnnualTaxConfig{2025: testAnnualConfig2025()},
			tables: map[string]*models.TaxTable{},
		},
		companies: &fakeCompaniesRepo{byID: map[string]*models.Company{
			"c1": {ID: "c1", Name: "Acme Payroll", EIN: "12-3456789"},
		}},
		employees: &fakeEmployeesRepo{byID: map[string]*models.Employee{
			"e1": {
				ID: "e1", CompanyID: "c1", DepartmentID: "d1", FirstName: "Ada", LastName: "Lovelace",
				EmploymentType: payroll.Hourly, PayRate: d("9.25"), PayFrequency: payroll.Biweekly,
				FilingStatus: payroll.Single, Status: models.EmployeeActive,
			},
			"e2": {
				ID: "e2", CompanyID: "c1", DepartmentID: "d1", FirstName: "Alan", LastName: "Turing",
				EmploymentType: payroll.Salary, PayRate: d("65000"), PayFrequency: payroll.Biweekly,
				FilingStatus: payroll.Single, Status: models.EmployeeActive,
			},
			"e3": {
				ID: "e3", CompanyID: "c1", FirstName: "Grace", LastName: "Hopper",
				EmploymentType: payroll.Hourly, PayRate: d("20"), PayFrequency: payroll.Biweekly,
				FilingStatus: payroll.Single, Status: models.EmployeeTerminated,
			},
			"x1": {
				ID: "x1", CompanyID: "c2", EmploymentType: payroll.Hourly, PayRate: d("10"),
				PayFrequency: payroll.Weekly, FilingStatus: payroll.Single, Status: models.EmployeeActive,
			},
		}},
		periods: &fakePeriodsRepo{byID: map[string]*models.PayPeriod{}},
		items:   &fakeItemsRepo{},
		ytd:     &fakeYtdRepo{rows: map[string]*models.YtdTotal{}},
	}

	e := &env{
		db:       db,
		mock:     mock,
		rm:       rm,
		events:   &events.Recorder{},
		queue:    &fakeQueue{},
		remitter: &fakeRemitter{configured: true, status: 200},
		store:    storage.NewMemoryStore(),
	}
	log := logging.Nop{}
	cfg := &sc.Config{CompanyName: "Fallback Inc", CompanyEIN: "00-0000000"}

	e.rates = NewTaxRateService(db, rm, e.events, log)
	e.ytd = NewYtdService(db, rm, e.events, log)
	e.periods = NewPayPeriodService(db, rm, e.rates, e.ytd, e.queue, e.events, log)
	e.sync = NewTaxSyncService(db, rm, e.remitter, e.store, e.queue, cfg, e.events, log)
	e.stubs = NewPayStubService(db, rm, e.store, TextStubGenerator{}, log)

	clock := func() time.Time { return testNow }
	e.rates.now = clock
	e.ytd.now = clock
	e.periods.now = clock
	e.sync.now = clock
	return e
}

func (e *env) verify(t *testing.T) {
	t.Helper()
	if err := e.mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

// newPeriod creates a draft period for c1 paying on 2025-03-15.
func (e *env) newPeriod(t *testing.T) *models.PayPeriod {
	t.Helper()
	expectTx(e.mock, true)
	detail, err := e.periods.Create(context.Background(), admin, CreatePeriodInput{
		StartDate: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		PayDate:   time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create period: %v", err)
	}
	return detail.Period
}

// committedPeriod walks a period with e1 and e2 through to committed.
func (e *env) committedPeriod(t *testing.T) *models.PayPeriod {
	t.Helper()
	ctx := context.Background()
	p := e.newPeriod(t)

	expectTx(e.mock, true)
	if _, err := e.periods.AddItem(ctx, admin, p.ID, ItemInput{EmployeeID: "e1", RegularHours: d("56.48")}); err != nil {
		t.Fatalf("add e1: %v", err)
	}
	expectTx(e.mock, true)
	if _, err := e.periods.AddItem(ctx, admin, p.ID, ItemInput{EmployeeID: "e2"}); err != nil {
		t.Fatalf("add e2: %v", err)
	}
	expectTx(e.mock, true)
	if _, err := e.periods.Calculate(ctx, admin, p.ID); err != nil {
		t.Fatalf("calculate: %v", err)
	}
	expectTx(e.mock, true)
	if _, err := e.periods.Approve(ctx, admin, p.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	expectTx(e.mock, true)
	committed, err := e.periods.Commit(ctx, admin, p.ID)
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return committed
}
