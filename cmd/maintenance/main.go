// Command maintenance runs offline repairs against the game database.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/mallhunt/treasurehunt/internal/database"
	"github.com/mallhunt/treasurehunt/internal/migrations"
	"github.com/mallhunt/treasurehunt/internal/server"
)

type options struct {
	dbPath      string
	repairStats bool
	dryRun      bool
	seedDemo    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.dbPath, "db", "data/treasurehunt.db", "path to the SQLite database")
	flag.BoolVar(&opts.repairStats, "repair-stats", false, "recompute player progress counters from passing records")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "report what would change without writing")
	flag.BoolVar(&opts.seedDemo, "seed-demo", false, "insert demo locations and signup codes into an empty database")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout, opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer, opts options) error {
	if !opts.repairStats && !opts.seedDemo {
		return fmt.Errorf("nothing to do: pass -repair-stats or -seed-demo")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	db, err := database.Open(ctx, opts.dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(ctx, db, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	store := server.NewSQLiteStore(db)

	if opts.seedDemo {
		if err := server.SeedDemo(ctx, logger, store); err != nil {
			return fmt.Errorf("seeding: %w", err)
		}
	}

	if opts.repairStats {
		repairs, err := store.RepairStats(ctx, opts.dryRun)
		if err != nil {
			return fmt.Errorf("repairing stats: %w", err)
		}
		printRepairs(stdout, repairs, opts.dryRun)
	}
	return nil
}

func printRepairs(w io.Writer, repairs []server.StatRepair, dryRun bool) {
	verb := "repaired"
	if dryRun {
		verb = "would repair"
	}
	if len(repairs) == 0 {
		fmt.Fprintln(w, "all player counters are consistent")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLAYER\tNAME\tPROGRESS\tCOMPLETED")
	for _, r := range repairs {
		fmt.Fprintf(tw, "%s\t%s\t%d -> %d\t%t -> %t\n", r.PlayerID, r.Name, r.OldProgress, r.NewProgress, r.OldCompleted, r.NewCompleted)
	}
	tw.Flush()
	fmt.Fprintf(w, "%s %d players\n", verb, len(repairs))
}
