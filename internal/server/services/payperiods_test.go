package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/paykeeper/internal/common"
	"github.com/dmitrijs2005/paykeeper/internal/server/actor"
	"github.com/dmitrijs2005/paykeeper/internal/server/events"
	"github.com/dmitrijs2005/paykeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertMoney(t *testing.T, want string, got interface{ String() string }) {
	t.Helper()
	assert.Equal(t, d(want).String(), got.String())
}

func TestPayPeriodService_Create_InvalidDates(t *testing.T) {
	e := newEnv(t)
	day := func(n int) time.Time { return time.Date(2025, 3, n, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name            string
		start, end, pay time.Time
	}{
		{"missing", time.Time{}, day(14), day(15)},
		{"end before start", day(14), day(1), day(15)},
		{"same day", day(1), day(1), day(15)},
		{"pay before end", day(1), day(14), day(13)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.periods.Create(context.Background(), admin, CreatePeriodInput{StartDate: tt.start, EndDate: tt.end, PayDate: tt.pay})
			assert.ErrorIs(t, err, common.ErrInvalidDates)
			assert.True(t, common.IsValidation(err))
		})
	}
	e.verify(t)
}

func TestPayPeriodService_Create_SeedsItems(t *testing.T) {
	e := newEnv(t)

	expectTx(e.mock, true)
	detail, err := e.periods.Create(context.Background(), admin, CreatePeriodInput{
		StartDate:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		PayDate:       time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		IncludeActive: true,
		EmployeeIDs:   []string{"e3", "e1"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.PeriodDraft, detail.Period.Status)
	assert.Equal(t, "c1", detail.Period.CompanyID)
	assert.Equal(t, "u-admin", detail.Period.CreatedBy)

	var ids []string
	for _, it := range detail.Items {
		ids = append(ids, it.EmployeeID)
		assert.Nil(t, it.CalculatedAt)
	}
	assert.Equal(t, []string{"e1", "e2", "e3"}, ids)
	assert.Equal(t, []events.Type{events.PeriodCreated}, e.events.Types())
	e.verify(t)
}

func TestPayPeriodService_Create_OtherCompanyEmployee(t *testing.T) {
	e := newEnv(t)

	expectTx(e.mock, false)
	_, err := e.periods.Create(context.Background(), admin, CreatePeriodInput{
		StartDate:   time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		PayDate:     time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		EmployeeIDs: []string{"x1"},
	})
	assert.ErrorIs(t, err, common.ErrNotFound)
	e.verify(t)
}

func TestPayPeriodService_Lifecycle(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	p := e.committedPeriod(t)
	assert.Equal(t, models.PeriodCommitted, p.Status)
	assert.Equal(t, models.SyncPending, p.TaxSyncStatus)
	require.NotNil(t, p.CommittedAt)
	assert.Equal(t, testNow, *p.CommittedAt)

	detail, err := e.periods.Get(ctx, admin, p.ID)
	require.NoError(t, err)
	require.Len(t, detail.Items, 2)

	hourly, salary := detail.Items[0], detail.Items[1]
	assertMoney(t, "522.44", hourly.GrossPay)
	assertMoney(t, "32.39", hourly.SocialSecurity)
	assertMoney(t, "7.58", hourly.Medicare)
	assertMoney(t, "0", hourly.Withholding)
	assertMoney(t, "482.47", hourly.NetPay)
	assertMoney(t, "522.44", hourly.YtdGross)

	assertMoney(t, "2500", salary.GrossPay)
	assertMoney(t, "216.15", salary.Withholding)
	assertMoney(t, "155", salary.SocialSecurity)
	assertMoney(t, "36.25", salary.Medicare)
	assertMoney(t, "2092.6", salary.NetPay)

	for _, it := range detail.Items {
		assert.True(t, it.NetPay.Equal(it.GrossPay.Sub(it.TotalDeductions)))
	}

	rows := e.rm.ytd.rows
	assertMoney(t, "522.44", rows["employee/e1/2025"].GrossPay)
	assertMoney(t, "2500", rows["employee/e2/2025"].GrossPay)
	assertMoney(t, "3022.44", rows["department/d1/2025"].GrossPay)
	assertMoney(t, "3022.44", rows["company/c1/2025"].GrossPay)
	assertMoney(t, "2575.07", rows["company/c1/2025"].NetPay)
	assert.Equal(t, []string{
		"employee/e1/2025", "employee/e2/2025",
		"employee/e1/2025", "employee/e2/2025", "department/d1/2025", "company/c1/2025",
	}, e.rm.ytd.locked)

	assert.Equal(t, []string{p.ID}, e.queue.ids)
	assert.Equal(t, []events.Type{
		events.PeriodCreated,
		events.ItemCreated,
		events.ItemCreated,
		events.PeriodCalculated,
		events.PeriodApproved,
		events.PeriodCommitted,
	}, e.events.Types())
}

func TestPayPeriodService_NextPeriodUsesCommittedYtd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.committedPeriod(t)

	next := e.newPeriod(t)
	expectTx(e.mock, true)
	item, err := e.periods.AddItem(ctx, admin, next.ID, ItemInput{EmployeeID: "e1", RegularHours: d("56.48")})
	require.NoError(t, err)

	assertMoney(t, "522.44", item.GrossPay)
	assertMoney(t, "1044.88", item.YtdGross)
	assertMoney(t, "64.78", item.YtdSocialSecurity)
	e.verify(t)
}

// Two periods for one employee priced before either is committed: the
// second commit must not withhold social security past the wage base.
func TestPayPeriodService_Commit_RepricesStaleYtd(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.rm.ytd.rows["employee/e1/2025"] = &models.YtdTotal{
		ID: "employee/e1/2025", Scope: models.ScopeEmployee, EntityID: "e1", Year: 2025,
		GrossPay: d("168000"), SocialSecurity: d("10416"),
	}

	first, second := e.newPeriod(t), e.newPeriod(t)
	for _, p := range []*models.PayPeriod{first, second} {
		expectTx(e.mock, true)
		item, err := e.periods.AddItem(ctx, admin, p.ID, ItemInput{EmployeeID: "e1", RegularHours: d("100")})
		require.NoError(t, err)
		assertMoney(t, "925", item.GrossPay)
		assertMoney(t, "37.2", item.SocialSecurity)
	}
	for _, p := range []*models.PayPeriod{first, second} {
		expectTx(e.mock, true)
		_, err := e.periods.Calculate(ctx, admin, p.ID)
		require.NoError(t, err)
		expectTx(e.mock, true)
		_, err = e.periods.Approve(ctx, admin, p.ID)
		require.NoError(t, err)
	}

	expectTx(e.mock, true)
	_, err := e.periods.Commit(ctx, admin, first.ID)
	require.NoError(t, err)
	expectTx(e.mock, true)
	_, err = e.periods.Commit(ctx, admin, second.ID)
	require.NoError(t, err)

	a, err := e.periods.Get(ctx, admin, first.ID)
	require.NoError(t, err)
	assertMoney(t, "37.2", a.Items[0].SocialSecurity)

	b, err := e.periods.Get(ctx, admin, second.ID)
	require.NoError(t, err)
	item := b.Items[0]
	assertMoney(t, "0", item.SocialSecurity)
	assertMoney(t, "169850", item.YtdGross)
	assertMoney(t, "10453.2", item.YtdSocialSecurity)
	assert.True(t, item.NetPay.Equal(item.GrossPay.Sub(item.TotalDeductions)))

	row := e.rm.ytd.rows["employee/e1/2025"]
	assertMoney(t, "169850", row.GrossPay)
	assertMoney(t, "10453.2", row.SocialSecurity)

	types := e.events.Types()
	assert.Equal(t, []events.Type{events.ItemUpdated, events.PeriodCommitted}, types[len(types)-2:])
	e.verify(t)
}

func TestPayPeriodService_Commit_SalaryOvertimeNotFolded(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.newPeriod(t)

	expectTx(e.mock, true)
	item, err := e.periods.AddItem(ctx, admin, p.ID, ItemInput{EmployeeID: "e2", OvertimeHours: d("2")})
	require.NoError(t, err)
	assertMoney(t, "2500", item.GrossPay)

	for _, step := range []func() error{
		func() error { _, err := e.periods.Calculate(ctx, admin, p.ID); return err },
		func() error { _, err := e.periods.Approve(ctx, admin, p.ID); return err },
		func() error { _, err := e.periods.Commit(ctx, admin, p.ID); return err },
	} {
		expectTx(e.mock, true)
		require.NoError(t, step())
	}

	row := e.rm.ytd.rows["employee/e2/2025"]
	assertMoney(t, "2500", row.GrossPay)
	assertMoney(t, "0", row.OvertimePay)
	e.verify(t)
}

func TestPayPeriodService_GuardedTransitions(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.newPeriod(t)

	expectTx(e.mock, false)
	_, err := e.periods.Approve(ctx, admin, p.ID)
	assert.ErrorIs(t, err, common.ErrInvalidTransition)

	expectTx(e.mock, false)
	_, err = e.periods.Commit(ctx, admin, p.ID)
	assert.ErrorIs(t, err, common.ErrInvalidTransition)

	expectTx(e.mock, false)
	_, err = e.periods.Calculate(ctx, admin, p.ID)
	assert.ErrorIs(t, err, common.ErrNoPayrollItems)

	expectTx(e.mock, true)
	_, err = e.periods.AddItem(ctx, admin, p.ID, ItemInput{EmployeeID: "e2"})
	require.NoError(t, err)
	expectTx(e.mock, true)
	_, err = e.periods.Calculate(ctx, admin, p.ID)
	require.NoError(t, err)

	// calculated: commit still needs approval first
	expectTx(e.mock, false)
	_, err = e.periods.Commit(ctx, admin, p.ID)
	assert.ErrorIs(t, err, common.ErrInvalidTransition)

	// recalculation in place is allowed
	expectTx(e.mock, true)
	detail, err := e.periods.Calculate(ctx, admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PeriodCalculated, detail.Period.Status)

	expectTx(e.mock, true)
	approved, err := e.periods.Approve(ctx, admin, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "u-admin", approved.ApprovedBy)

	expectTx(e.mock, false)
	_, err = e.periods.Approve(ctx, admin, p.ID)
	assert.ErrorIs(t, err, common.ErrInvalidTransition)

	expectTx(e.mock, false)
	_, err = e.periods.Calculate(ctx, admin, p.ID)
	assert.ErrorIs(t, err, common.ErrInvalidTransition)
	e.verify(t)
}

func TestPayPeriodService_ApprovedAndCommittedAreReadOnly(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.committedPeriod(t)
	itemID := e.rm.items.items[0].ID

	expectTx(e.mock, false)
	_, err := e.periods.AddItem(ctx, admin, p.ID, ItemInput{EmployeeID: "e3"})
	assert.ErrorIs(t, err, common.ErrPeriodCommitted)

	overtime := d("2")
	expectTx(e.mock, false)
	_, err = e.periods.UpdateItem(ctx, admin, p.ID, itemID, ItemPatch{OvertimeHours: &overtime})
	assert.ErrorIs(t, err, common.ErrPeriodCommitted)

	expectTx(e.mock, false)
	err = e.periods.RemoveItem(ctx, admin, p.ID, itemID)
	assert.ErrorIs(t, err, common.ErrPeriodCommitted)

	expectTx(e.mock, false)
	err = e.periods.Delete(ctx, admin, p.ID)
	assert.ErrorIs(t, err, common.ErrPeriodCommitted)
	assert.True(t, common.IsValidation(err))

	// approved but not committed
	q := e.newPeriod(t)
	expectTx(e.mock, true)
	_, err = e.periods.AddItem(ctx, admin, q.ID, ItemInput{EmployeeID: "e2"})
	require.NoError(t, err)
	expectTx(e.mock, true)
	_, err = e.periods.Calculate(ctx, admin, q.ID)
	require.NoError(t, err)
	expectTx(e.mock, true)
	_, err = e.periods.Approve(ctx, admin, q.ID)
	require.NoError(t, err)

	expectTx(e.mock, false)
	_, err = e.periods.AddItem(ctx, admin, q.ID, ItemInput{EmployeeID: "e1"})
	assert.ErrorIs(t, err, common.ErrPeriodNotEditable)

	// approved periods may still be deleted
	expectTx(e.mock, true)
	require.NoError(t, e.periods.Delete(ctx, admin, q.ID))
	e.verify(t)
}

func TestPayPeriodService_UpdateItem_Recalculates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.newPeriod(t)

	expectTx(e.mock, true)
	item, err := e.periods.AddItem(ctx, admin, p.ID, ItemInput{EmployeeID: "e1", RegularHours: d("56.48")})
	require.NoError(t, err)
	first := *item

	overtime := d("2")
	expectTx(e.mock, true)
	updated, err := e.periods.UpdateItem(ctx, admin, p.ID, item.ID, ItemPatch{OvertimeHours: &overtime})
	require.NoError(t, err)
	assertMoney(t, "550.19", updated.GrossPay)
	assertMoney(t, "56.48", updated.RegularHours)

	zero := d("0")
	expectTx(e.mock, true)
	again, err := e.periods.UpdateItem(ctx, admin, p.ID, item.ID, ItemPatch{OvertimeHours: &zero})
	require.NoError(t, err)
	assert.True(t, first.GrossPay.Equal(again.GrossPay))
	assert.True(t, first.NetPay.Equal(again.NetPay))
	assert.True(t, first.TotalDeductions.Equal(again.TotalDeductions))

	expectTx(e.mock, true)
	require.NoError(t, e.periods.RemoveItem(ctx, admin, p.ID, item.ID))
	assert.Empty(t, e.rm.items.items)
	e.verify(t)
}

func TestPayPeriodService_AddItem_Errors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.newPeriod(t)

	expectTx(e.mock, true)
	_, err := e.periods.AddItem(ctx, admin, p.ID, ItemInput{EmployeeID: "e1"})
	require.NoError(t, err)

	expectTx(e.mock, false)
	_, err = e.periods.AddItem(ctx, admin, p.ID, ItemInput{EmployeeID: "e1"})
	assert.ErrorIs(t, err, common.ErrDuplicateEmployee)

	expectTx(e.mock, false)
	_, err = e.periods.AddItem(ctx, admin, p.ID, ItemInput{EmployeeID: "x1"})
	assert.ErrorIs(t, err, common.ErrNotFound)

	expectTx(e.mock, false)
	_, err = e.periods.AddItem(ctx, admin, p.ID, ItemInput{EmployeeID: "e2", Bonus: d("-1")})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	expectTx(e.mock, false)
	_, err = e.periods.AddItem(ctx, outsider, p.ID, ItemInput{EmployeeID: "x1"})
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = e.periods.Get(ctx, outsider, p.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
	e.verify(t)
}

func TestPayPeriodService_Calculate_MissingRatesRollsBack(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	expectTx(e.mock, true)
	detail, err := e.periods.Create(ctx, admin, CreatePeriodInput{
		StartDate:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:     time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC),
		PayDate:     time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC),
		EmployeeIDs: []string{"e1", "e2"},
	})
	require.NoError(t, err)

	expectTx(e.mock, false)
	_, err = e.periods.Calculate(ctx, admin, detail.Period.ID)
	require.Error(t, err)
	assert.True(t, common.IsConfiguration(err))
	assert.ErrorIs(t, err, common.ErrTaxRateNotFound)
	assert.Contains(t, err.Error(), "employee e1")
	assert.Contains(t, err.Error(), "employee e2")

	stored, err := e.periods.Get(ctx, admin, detail.Period.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PeriodDraft, stored.Period.Status)
	e.verify(t)
}

func TestPayPeriodService_Commit_QueueFullStillCommits(t *testing.T) {
	e := newEnv(t)
	e.queue.reject = true

	p := e.committedPeriod(t)
	assert.Equal(t, models.PeriodCommitted, p.Status)
	assert.Empty(t, e.queue.ids)
	e.verify(t)
}

func TestPayPeriodService_RequiresActor(t *testing.T) {
	e := newEnv(t)
	_, err := e.periods.Get(context.Background(), actor.Actor{CompanyID: "c1"}, "period-1")
	assert.ErrorIs(t, err, common.ErrUnauthorized)
}
