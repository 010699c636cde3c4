package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"golang.org/x/term"

	tynats "github.com/Strob0t/tyresync/internal/adapter/nats"
	"github.com/Strob0t/tyresync/internal/adapter/postgres"
	"github.com/Strob0t/tyresync/internal/config"
	"github.com/Strob0t/tyresync/internal/domain/installation"
	"github.com/Strob0t/tyresync/internal/domain/realtime"
	"github.com/Strob0t/tyresync/internal/port/broadcast"
	"github.com/Strob0t/tyresync/internal/resilience"
	"github.com/Strob0t/tyresync/internal/service"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "list":
		return runAdminList(args[1:])
	case "set-status":
		return runAdminSetStatus(args[1:])
	case "notify":
		return runAdminNotify(args[1:])
	case "migrate":
		return runAdminMigrate(args[1:])
	case "version":
		return runAdminVersion(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: tyresync admin <command> [options]

Commands:
  list         List all installations (table on a terminal, JSON otherwise)
  set-status   Change the status of an installation and refresh observers
  notify       Ask the running server to push a fresh snapshot
  migrate      Apply pending migrations, or roll back with --down
  version      Show binary and schema versions
  help         Show this help message

Examples:
  tyresync admin list
  tyresync admin set-status --id 2f1c... --status stored
  tyresync admin notify --reason "bulk import"
  tyresync admin migrate --down 1
`)
}

// adminDeps holds the connections an admin command needs. relay is nil when
// NATS is disabled or unreachable.
type adminDeps struct {
	cfg     *config.Config
	store   *postgres.Store
	relay   *service.MutationRelay
	cleanup func()
}

func loadAdminDeps(ctx context.Context, withRelay bool) (*adminDeps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	deps := &adminDeps{cfg: cfg, store: postgres.NewStore(pool), cleanup: pool.Close}

	if withRelay && cfg.NATS.Enabled {
		queue, err := tynats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: nats unavailable, connected browsers will not refresh: %v\n", err)
			return deps, nil
		}
		breaker := resilience.NewBreaker("admin-relay", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
		deps.relay = service.NewMutationRelay(queue, breaker, nil, nil, nil)
		deps.cleanup = func() {
			_ = queue.Drain()
			pool.Close()
		}
	}
	return deps, nil
}

// relayNotifier forwards post-commit notifications to the server over the
// relay. The server re-reads the snapshot itself, so provider is unused.
func (d *adminDeps) relayNotifier(reason string) broadcast.Notifier {
	if d.relay == nil {
		return nil
	}
	return broadcast.NotifierFunc(func(ctx context.Context, topic realtime.Topic, _ realtime.SnapshotProvider) error {
		return d.relay.Request(ctx, topic, "admin", reason)
	})
}

func runAdminList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "force JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx, false)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	items, err := deps.store.ListInstallations(ctx)
	if err != nil {
		return fmt.Errorf("list installations: %w", err)
	}

	if *asJSON || !term.IsTerminal(int(os.Stdout.Fd())) {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	if len(items) == 0 {
		fmt.Println("No installations found.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPLATE\tPOS\tBRAND\tSIZE\tTREAD_MM\tSTATUS\tVERSION")
	for i := range items {
		in := &items[i]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.1f\t%s\t%d\n",
			in.ID, in.VehiclePlate, in.Position, in.Brand, in.Size, in.TreadDepthMM, in.Status, in.Version)
	}
	return w.Flush()
}

func runAdminSetStatus(args []string) error {
	fs := flag.NewFlagSet("set-status", flag.ContinueOnError)
	id := fs.String("id", "", "installation ID (required)")
	status := fs.String("status", "", "new status: mounted, stored or disposed (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	if *status == "" {
		return fmt.Errorf("--status is required")
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx, true)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	svc := service.NewInstallationService(deps.store,
		deps.relayNotifier("set-status "+*id), realtime.Topic(deps.cfg.Realtime.Topic))
	in, err := svc.SetStatus(ctx, *id, installation.Status(*status))
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Installation %s is now %s (version %d)\n", in.ID, in.Status, in.Version)
	return nil
}

func runAdminNotify(args []string) error {
	fs := flag.NewFlagSet("notify", flag.ContinueOnError)
	topic := fs.String("topic", "", "topic to refresh (defaults to realtime.topic)")
	reason := fs.String("reason", "manual", "reason recorded in the server log")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	deps, err := loadAdminDeps(ctx, true)
	if err != nil {
		return err
	}
	defer deps.cleanup()

	if deps.relay == nil {
		return fmt.Errorf("notify requires nats")
	}
	t := realtime.Topic(*topic)
	if t == "" {
		t = realtime.Topic(deps.cfg.Realtime.Topic)
	}
	if err := deps.relay.Request(ctx, t, "admin", *reason); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Notify request for %s sent\n", t)
	return nil
}

func runAdminMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	down := fs.Int("down", 0, "roll back this many migrations instead of applying")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()

	if *down > 0 {
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *down); err != nil {
			return err
		}
	} else if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return err
	}

	v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Schema at version %d\n", v)
	return nil
}

func runAdminVersion(args []string) error {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Printf("tyresync %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	v, err := postgres.MigrationVersion(context.Background(), cfg.Postgres.DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "schema version unavailable: %v\n", err)
		return nil
	}
	fmt.Printf("schema %d\n", v)
	return nil
}
