// Package payrollctl implements the operator command line: tax-year
// maintenance, YTD resets and manual tax sync. Every command runs as the
// operator named by -actor inside the company given by -company.
package payrollctl

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/paykeeper/internal/flagx"
	"github.com/dmitrijs2005/paykeeper/internal/server/actor"
	"github.com/dmitrijs2005/paykeeper/internal/server/models"
	"github.com/dmitrijs2005/paykeeper/internal/server/services"
	"golang.org/x/term"
)

type TaxAdmin interface {
	ImportYear(ctx context.Context, act actor.Actor, f *services.TaxYearFile) (*models.AnnualTaxConfig, error)
	CopyYear(ctx context.Context, act actor.Actor, from, to int) (*models.AnnualTaxConfig, error)
	Activate(ctx context.Context, act actor.Actor, year int) error
}

type YtdAdmin interface {
	Reset(ctx context.Context, act actor.Actor, scope models.YtdScope, entityID string, year int, confirmed bool) error
}

type SyncAdmin interface {
	RetryNow(ctx context.Context, act actor.Actor, periodID string) error
}

// isTerminal is a test seam for term.IsTerminal on stdin.
var isTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

var ErrUsage = errors.New("usage")

type App struct {
	taxes TaxAdmin
	ytd   YtdAdmin
	sync  SyncAdmin
	in    *bufio.Reader
	out   io.Writer
}

func NewApp(taxes TaxAdmin, ytd YtdAdmin, sync SyncAdmin, in io.Reader, out io.Writer) *App {
	return &App{taxes: taxes, ytd: ytd, sync: sync, in: bufio.NewReader(in), out: out}
}

const usage = `usage: payrollctl <command> -actor <user> -company <id> [flags]

commands:
  tax-import    -file <path.yaml>
  tax-copy      -from <year> -to <year>
  tax-activate  -year <year>
  ytd-reset     -scope employee|department|company -entity <id> -year <year> [-yes]
  sync-retry    -period <id>
`

type command struct {
	flags []string
	run   func(a *App, ctx context.Context, act actor.Actor, fs *flag.FlagSet, args []string) error
}

var commands = map[string]command{
	"tax-import":   {[]string{"-file"}, (*App).taxImport},
	"tax-copy":     {[]string{"-from", "-to"}, (*App).taxCopy},
	"tax-activate": {[]string{"-year"}, (*App).taxActivate},
	"ytd-reset":    {[]string{"-scope", "-entity", "-year", "-yes"}, (*App).ytdReset},
	"sync-retry":   {[]string{"-period"}, (*App).syncRetry},
}

// Run executes the command named by args[0]. Flags belonging to the server
// configuration may be mixed in; they are skipped here.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return ErrUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, args[0])
	}

	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(a.out)
	var act actor.Actor
	fs.StringVar(&act.UserID, "actor", "payrollctl", "operator user id")
	fs.StringVar(&act.CompanyID, "company", "", "company id")
	act.Role = actor.RoleAdmin

	allowed := append([]string{"-actor", "-company"}, cmd.flags...)
	return cmd.run(a, ctx, act, fs, flagx.FilterArgs(args[1:], allowed))
}

func parse(fs *flag.FlagSet, args []string, act *actor.Actor) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if err := act.Validate(); err != nil {
		return fmt.Errorf("%w: -actor and -company are required", ErrUsage)
	}
	return nil
}

func (a *App) taxImport(ctx context.Context, act actor.Actor, fs *flag.FlagSet, args []string) error {
	path := fs.String("file", "", "tax year YAML file")
	if err := parse(fs, args, &act); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("%w: -file is required", ErrUsage)
	}

	f, err := os.Open(*path)
	if err != nil {
		return err
	}
	defer f.Close()

	file, err := services.ParseTaxYearFile(f)
	if err != nil {
		return err
	}
	cfg, err := a.taxes.ImportYear(ctx, act, file)
	if err != nil {
		return err
	}
	state := "inactive"
	if cfg.Active {
		state = "active"
	}
	fmt.Fprintf(a.out, "imported tax year %d (%s, %d filing statuses, %d tax tables)\n",
		cfg.Year, state, len(cfg.FilingStatuses), len(file.TaxTables))
	return nil
}

func (a *App) taxCopy(ctx context.Context, act actor.Actor, fs *flag.FlagSet, args []string) error {
	from := fs.Int("from", 0, "source tax year")
	to := fs.Int("to", 0, "new tax year")
	if err := parse(fs, args, &act); err != nil {
		return err
	}
	if *from == 0 || *to == 0 {
		return fmt.Errorf("%w: -from and -to are required", ErrUsage)
	}

	if _, err := a.taxes.CopyYear(ctx, act, *from, *to); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "copied tax year %d to %d (inactive)\n", *from, *to)
	return nil
}

func (a *App) taxActivate(ctx context.Context, act actor.Actor, fs *flag.FlagSet, args []string) error {
	year := fs.Int("year", 0, "tax year")
	if err := parse(fs, args, &act); err != nil {
		return err
	}
	if *year == 0 {
		return fmt.Errorf("%w: -year is required", ErrUsage)
	}

	if err := a.taxes.Activate(ctx, act, *year); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "tax year %d is active\n", *year)
	return nil
}

func (a *App) ytdReset(ctx context.Context, act actor.Actor, fs *flag.FlagSet, args []string) error {
	scope := fs.String("scope", "", "employee, department or company")
	entity := fs.String("entity", "", "entity id")
	year := fs.Int("year", 0, "tax year")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := parse(fs, args, &act); err != nil {
		return err
	}
	if *scope == "" || *entity == "" || *year == 0 {
		return fmt.Errorf("%w: -scope, -entity and -year are required", ErrUsage)
	}

	confirmed := *yes
	if !confirmed {
		if !isTerminal() {
			return errors.New("ytd-reset needs -yes when stdin is not a terminal")
		}
		fmt.Fprintf(a.out, "This zeroes the %s %s totals for %d and cannot be undone.\nType %q to confirm: ",
			*scope, *entity, *year, *entity)
		line, err := a.in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		confirmed = strings.TrimSpace(line) == *entity
	}

	if err := a.ytd.Reset(ctx, act, models.YtdScope(*scope), *entity, *year, confirmed); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "reset %s %s for %d\n", *scope, *entity, *year)
	return nil
}

func (a *App) syncRetry(ctx context.Context, act actor.Actor, fs *flag.FlagSet, args []string) error {
	period := fs.String("period", "", "pay period id")
	if err := parse(fs, args, &act); err != nil {
		return err
	}
	if *period == "" {
		return fmt.Errorf("%w: -period is required", ErrUsage)
	}

	if err := a.sync.RetryNow(ctx, act, *period); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "pay period %s synced\n", *period)
	return nil
}
