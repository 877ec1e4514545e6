package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/paykeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayStubService_Render_CommittedIsCached(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.committedPeriod(t)

	b, contentType, err := e.stubs.Render(ctx, admin, p.ID, "item-1")
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", contentType)

	text := string(b)
	assert.Contains(t, text, "Acme Payroll")
	assert.Contains(t, text, "EIN 12-3456789")
	assert.Contains(t, text, "Ada Lovelace (e1)")
	assert.Contains(t, text, "2025-03-01 to 2025-03-14")
	assert.Contains(t, text, "biweekly (26 periods/year)")
	assert.Contains(t, text, "522.44")
	assert.Contains(t, text, "482.47")
	assert.Contains(t, text, "Annualized gross: 13,583.44")

	assert.Equal(t, []string{"paystubs/" + p.ID + "/item-1.txt"}, e.store.Keys())

	// the second render is served from the store
	e.rm.companies.byID["c1"].Name = "Renamed Co"
	again, _, err := e.stubs.Render(ctx, admin, p.ID, "item-1")
	require.NoError(t, err)
	assert.Equal(t, b, again)
	e.verify(t)
}

func TestPayStubService_Render_DraftNotCached(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.newPeriod(t)

	expectTx(e.mock, true)
	_, err := e.periods.AddItem(ctx, admin, p.ID, ItemInput{EmployeeID: "e2"})
	require.NoError(t, err)

	b, _, err := e.stubs.Render(ctx, admin, p.ID, "item-1")
	require.NoError(t, err)
	assert.Contains(t, string(b), "Alan Turing")
	assert.Contains(t, string(b), "2,500.00")
	assert.Empty(t, e.store.Keys())
	e.verify(t)
}

func TestPayStubService_Projection_Errors(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	expectTx(e.mock, true)
	detail, err := e.periods.Create(ctx, admin, CreatePeriodInput{
		StartDate:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		PayDate:       time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		IncludeActive: true,
	})
	require.NoError(t, err)
	id := detail.Period.ID
	itemID := detail.Items[0].ID

	_, err = e.stubs.Projection(ctx, admin, id, itemID)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = e.stubs.Projection(ctx, outsider, id, itemID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = e.stubs.Projection(ctx, admin, id, "item-99")
	assert.ErrorIs(t, err, common.ErrNotFound)
	e.verify(t)
}
