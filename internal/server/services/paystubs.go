package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dmitrijs2005/paykeeper/internal/common"
	"github.com/dmitrijs2005/paykeeper/internal/logging"
	"github.com/dmitrijs2005/paykeeper/internal/payroll"
	"github.com/dmitrijs2005/paykeeper/internal/server/actor"
	"github.com/dmitrijs2005/paykeeper/internal/server/models"
	"github.com/dmitrijs2005/paykeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/paykeeper/internal/server/storage"
	"github.com/dmitrijs2005/paykeeper/internal/timex"
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// DocumentGenerator renders a pay stub projection into opaque bytes.
type DocumentGenerator interface {
	Generate(stub *models.PayStub) ([]byte, error)
	ContentType() string
	Extension() string
}

// TextStubGenerator renders a fixed-width plain text stub.
type TextStubGenerator struct{}

func (TextStubGenerator) ContentType() string { return "text/plain; charset=utf-8" }
func (TextStubGenerator) Extension() string   { return "txt" }

func money(d decimal.Decimal) string {
	return humanize.FormatFloat("#,###.##", d.InexactFloat64())
}

func (TextStubGenerator) Generate(stub *models.PayStub) ([]byte, error) {
	periods, err := stub.Employee.PayFrequency.PeriodsPerYear()
	if err != nil {
		return nil, err
	}
	it := stub.Item

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n", stub.Company.Name)
	if stub.Company.EIN != "" {
		fmt.Fprintf(&buf, "EIN %s\n", stub.Company.EIN)
	}
	fmt.Fprintf(&buf, "\nEmployee:      %s (%s)\n", stub.Employee.FullName(), stub.Employee.ID)
	fmt.Fprintf(&buf, "Pay period:    %s to %s\n", timex.DateOf(stub.Period.StartDate), timex.DateOf(stub.Period.EndDate))
	fmt.Fprintf(&buf, "Pay date:      %s\n", timex.DateOf(stub.Period.PayDate))
	fmt.Fprintf(&buf, "Pay frequency: %s (%d periods/year)\n", stub.Employee.PayFrequency, periods)
	fmt.Fprintf(&buf, "Pay type:      %s at %s\n\n", it.EmploymentType, money(it.PayRate))

	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', tabwriter.AlignRight)
	row := func(label string, current, ytd *decimal.Decimal) {
		c, y := "", ""
		if current != nil {
			c = money(*current)
		}
		if ytd != nil {
			y = money(*ytd)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", label, c, y)
	}
	fmt.Fprintf(w, "\tCurrent\tYTD\t\n")
	if it.EmploymentType == payroll.Hourly {
		overtime := it.OvertimePay()
		row("Overtime pay", &overtime, nil)
	}
	row("Tips", &it.Tips, nil)
	row("Bonus", &it.Bonus, nil)
	row("Gross pay", &it.GrossPay, &it.YtdGross)
	row("Federal withholding", &it.Withholding, &it.YtdWithholding)
	row("Social security", &it.SocialSecurity, &it.YtdSocialSecurity)
	row("Medicare", &it.Medicare, &it.YtdMedicare)
	row("Additional withholding", &it.AdditionalWithholding, nil)
	row("Retirement", &it.Retirement, &it.YtdRetirement)
	row("Roth retirement", &it.Roth, nil)
	row("Loan", &it.Loan, nil)
	row("Insurance", &it.Insurance, nil)
	row("Total deductions", &it.TotalDeductions, nil)
	row("Net pay", &it.NetPay, &it.YtdNet)
	if err := w.Flush(); err != nil {
		return nil, err
	}

	annualized := it.GrossPay.Mul(decimal.NewFromInt(periods))
	fmt.Fprintf(&buf, "\nAnnualized gross: %s\n", money(annualized))
	return buf.Bytes(), nil
}

// PayStubService builds pay stub projections and renders them. Stubs of
// committed periods never change, so they are cached in the object store.
type PayStubService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       storage.ObjectStore
	generator   DocumentGenerator
	log         logging.Logger
}

func NewPayStubService(db *sql.DB, repomanager repomanager.RepositoryManager, store storage.ObjectStore,
	generator DocumentGenerator, log logging.Logger) *PayStubService {
	return &PayStubService{
		db:          db,
		repomanager: repomanager,
		store:       store,
		generator:   generator,
		log:         log.With("module", "paystubs"),
	}
}

// Projection gathers the read-only data a generator needs.
func (s *PayStubService) Projection(ctx context.Context, act actor.Actor, periodID, itemID string) (*models.PayStub, error) {
	if err := act.Validate(); err != nil {
		return nil, err
	}
	period, err := s.repomanager.PayPeriods(s.db).GetByID(ctx, periodID)
	if err != nil {
		return nil, err
	}
	if period.CompanyID != act.CompanyID {
		return nil, common.ErrNotFound
	}
	item, err := s.repomanager.PayrollItems(s.db).GetByID(ctx, periodID, itemID)
	if err != nil {
		return nil, err
	}
	if item.CalculatedAt == nil {
		return nil, common.NewValidationError(common.ErrInvalidInput, "payroll item has not been calculated")
	}
	emp, err := s.repomanager.Employees(s.db).GetByID(ctx, item.EmployeeID)
	if err != nil {
		return nil, err
	}
	company, err := s.repomanager.Companies(s.db).GetByID(ctx, period.CompanyID)
	if err != nil {
		return nil, err
	}
	return &models.PayStub{Company: *company, Employee: *emp, Period: *period, Item: *item}, nil
}

func (s *PayStubService) objectKey(periodID, itemID string) string {
	return fmt.Sprintf("paystubs/%s/%s.%s", periodID, itemID, s.generator.Extension())
}

// Render returns the document bytes and their content type.
func (s *PayStubService) Render(ctx context.Context, act actor.Actor, periodID, itemID string) ([]byte, string, error) {
	stub, err := s.Projection(ctx, act, periodID, itemID)
	if err != nil {
		return nil, "", err
	}
	cacheable := stub.Period.Status == models.PeriodCommitted && s.store != nil
	key := s.objectKey(periodID, itemID)

	if cacheable {
		ok, err := s.store.Exists(ctx, key)
		if err != nil {
			s.log.Warn(ctx, "pay stub cache lookup failed", "key", key, "error", err)
		}
		if ok {
			b, err := s.store.Get(ctx, key)
			if err == nil {
				return b, s.generator.ContentType(), nil
			}
			if !errors.Is(err, common.ErrNotFound) {
				s.log.Warn(ctx, "pay stub cache read failed", "key", key, "error", err)
			}
		}
	}

	b, err := s.generator.Generate(stub)
	if err != nil {
		return nil, "", err
	}
	if cacheable {
		if err := s.store.Put(ctx, key, b, s.generator.ContentType()); err != nil {
			s.log.Warn(ctx, "pay stub cache write failed", "key", key, "error", err)
		}
	}
	return b, s.generator.ContentType(), nil
}
