// Command dbtool runs schema migrations and administrative plan changes
// against the plantleads database.
//
//	dbtool migrate
//	dbtool seed-plans
//	dbtool grant <user-id> <plan> [-days N]
//	dbtool start-trial <user-id>
//	dbtool set-plan <user-id> <plan>
//	dbtool usage <user-id>
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/DukeRupert/plantleads/internal"
	"github.com/DukeRupert/plantleads/internal/domain"
	"github.com/DukeRupert/plantleads/internal/service"
	"github.com/DukeRupert/plantleads/internal/store"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const usageText = `usage: dbtool <command> [arguments]

commands:
  migrate                           apply pending migrations
  seed-plans                        insert or update the default plan catalog
  grant <user-id> <plan> [-days N]  assign a plan for N days (default 30)
  start-trial <user-id>             start the one-time premium trial
  set-plan <user-id> <plan>         assign a plan without expiry
  usage <user-id>                   print the user's usage summary
`

var errUsage = errors.New("invalid arguments")

// app bundles the services a command needs.
type app struct {
	catalog      service.PlanCatalog
	entitlements service.EntitlementService
	out          io.Writer
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usageText)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

// checkArgs rejects unknown commands and wrong argument counts before any
// configuration or database access.
func checkArgs(command string, args []string) error {
	var ok bool
	switch command {
	case "migrate", "seed-plans":
		ok = len(args) == 0
	case "grant":
		ok = len(args) >= 2
	case "start-trial", "usage":
		ok = len(args) == 1
	case "set-plan":
		ok = len(args) == 2
	}
	if !ok {
		return errUsage
	}
	return nil
}

func run(command string, args []string) error {
	if err := checkArgs(command, args); err != nil {
		return err
	}

	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := internal.NewLogger(os.Stderr, cfg.Env, cfg.LogLevel)

	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	pg, err := store.New(db, cfg.TxMaxAttempts, logger)
	if err != nil {
		return err
	}
	ledger := service.NewQuotaLedger(cfg.Location(), time.Now)
	trials := service.NewTrialLifecycle(cfg.TrialDuration, time.Now)

	// No request log: administrative changes are not metered requests.
	a := &app{
		catalog:      service.NewPlanCatalog(pg, logger),
		entitlements: service.NewEntitlementService(pg, ledger, trials, nil, logger),
		out:          os.Stdout,
	}

	switch command {
	case "migrate":
		return internal.RunMigrations(ctx, db, logger)
	case "seed-plans":
		return a.seedPlans(ctx)
	case "grant":
		return a.grant(ctx, args)
	case "start-trial":
		return a.startTrial(ctx, args)
	case "set-plan":
		return a.setPlan(ctx, args)
	case "usage":
		return a.usage(ctx, args)
	default:
		return errUsage
	}
}

func (a *app) seedPlans(ctx context.Context) error {
	plans, err := a.catalog.SeedPlans(ctx, domain.DefaultPlans())
	if err != nil {
		return err
	}
	for _, p := range plans {
		fmt.Fprintf(a.out, "%-8s %5d req/day  %5d filters  export=%t share=%t\n",
			p.Name, p.RequestsPerDay, p.MaxFilters, p.CanExport, p.CanShare)
	}
	return nil
}

func (a *app) grant(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("grant", flag.ContinueOnError)
	days := fs.Int("days", 30, "length of the grant in days")
	if err := fs.Parse(args[2:]); err != nil {
		return errUsage
	}

	sub, err := a.entitlements.GrantPlan(ctx, userID, domain.PlanName(args[1]), *days)
	if err != nil {
		return err
	}
	return a.printSubscription(sub)
}

func (a *app) startTrial(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}

	sub, err := a.entitlements.StartTrial(ctx, userID)
	if err != nil {
		return err
	}
	return a.printSubscription(sub)
}

func (a *app) setPlan(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}

	var sub *domain.Subscription
	if name := domain.PlanName(args[1]); name == domain.PlanFree {
		sub, err = a.entitlements.DowngradeToFree(ctx, userID, service.DowngradeRequested)
	} else {
		sub, err = a.entitlements.UpgradePlan(ctx, userID, name)
	}
	if err != nil {
		return err
	}
	return a.printSubscription(sub)
}

func (a *app) usage(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}

	summary, err := a.entitlements.GetUsageSummary(ctx, userID)
	if err != nil {
		return err
	}
	return a.printJSON(summary)
}

func (a *app) printSubscription(sub *domain.Subscription) error {
	return a.printJSON(map[string]any{
		"user_id":        sub.UserID,
		"plan":           sub.Plan.Name,
		"is_trial":       sub.IsTrial,
		"trial_end_date": sub.TrialEndDate,
		"end_date":       sub.EndDate,
		"start_date":     sub.StartDate,
	})
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseUserID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}
