package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/neuralfield/internal/dnf"
	"github.com/banshee-data/neuralfield/internal/rundb"
	"github.com/banshee-data/neuralfield/internal/timeutil"
	"github.com/banshee-data/neuralfield/internal/version"
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "run":
		handleRun(args)
	case "migrate":
		handleMigrate(args)
	case "runs":
		handleRuns(args)
	case "version":
		fmt.Printf("neuralfield %s\n", version.String())
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`neuralfield - coupled dynamic neural field simulator

Usage: neuralfield <command> [options]

Commands:
  run        Run a model in learning or recall mode
  migrate    Apply or inspect run database migrations (up, down, status)
  runs       List recorded runs
  version    Show version
  help       Show this help message

Run Flags:
  -mode <learning|recall>   Model mode (default: learning)
  -config <file>            Model file (default: config/<mode>.json)
  -state-dir <dir>          Directory for persisted states and parameters (default: state)
  -db <file>                Run database; empty disables recording
  -plots <dir>              Write PNG plots to this directory
  -html                     Also write an interactive index.html into -plots
  -v                        Log diagnostics
  -trace                    Log every timestep

Examples:
  # Learn a sequence, then recall it
  neuralfield run -mode learning -db runs.db -plots plots/learning
  neuralfield run -mode recall -db runs.db -plots plots/recall -html

  # Inspect the run database
  neuralfield migrate status -db runs.db
  neuralfield runs -db runs.db -n 5`)
}

func handleRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	mode := fs.String("mode", modeLearning, "Model mode: learning or recall")
	configPath := fs.String("config", "", "Model file (default: config/<mode>.json)")
	stateDir := fs.String("state-dir", "state", "Directory for persisted states and parameters")
	dbPath := fs.String("db", "", "Run database path (empty disables recording)")
	plotDir := fs.String("plots", "", "Directory for PNG plots (empty disables plotting)")
	html := fs.Bool("html", false, "Also write an interactive HTML page into -plots")
	verbose := fs.Bool("v", false, "Log diagnostics")
	trace := fs.Bool("trace", false, "Log every timestep")
	fs.Parse(args)

	if *html && *plotDir == "" {
		fmt.Fprintln(os.Stderr, "Error: -html requires -plots")
		fs.Usage()
		os.Exit(1)
	}

	configureLogging(os.Stderr, *verbose, *trace)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := runModel(ctx, runOptions{
		Mode:       *mode,
		ConfigPath: *configPath,
		StateDir:   *stateDir,
		DBPath:     *dbPath,
		PlotDir:    *plotDir,
		HTML:       *html,
	}, timeutil.RealClock{})
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}
	log.Printf("%s run complete: steps=%d crossings=%d firings=%d",
		*mode, res.Steps, len(res.Snapshot.Crossings), len(res.Snapshot.Firings))
	if res.RunID != "" {
		log.Printf("recorded run %s", res.RunID)
	}
}

// configureLogging routes the dnf streams: ops always, diag and trace on request.
func configureLogging(w io.Writer, verbose, trace bool) {
	lw := dnf.LogWriters{Ops: w}
	if verbose {
		lw.Diag = w
	}
	if trace {
		lw.Trace = w
	}
	dnf.SetLogWriters(lw)
}

func handleMigrate(args []string) {
	action := "status"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		action, args = args[0], args[1:]
	}
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db", "runs.db", "Run database path")
	fs.Parse(args)

	if err := migrateCommand(os.Stdout, *dbPath, action); err != nil {
		log.Fatalf("migrate %s: %v", action, err)
	}
}

func migrateCommand(w io.Writer, dbPath, action string) error {
	db, err := rundb.Open(dbPath, timeutil.RealClock{})
	if err != nil {
		return err
	}
	defer db.Close()

	switch action {
	case "up":
		if err := db.MigrateUp(); err != nil {
			return err
		}
	case "down":
		if err := db.MigrateDown(); err != nil {
			return err
		}
	case "status":
	default:
		return fmt.Errorf("unknown action %q (want up, down or status)", action)
	}

	v, dirty, err := db.MigrateVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "schema version %d (dirty=%t)\n", v, dirty)
	return nil
}

func handleRuns(args []string) {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	dbPath := fs.String("db", "runs.db", "Run database path")
	limit := fs.Int("n", 20, "Number of runs to list")
	fs.Parse(args)

	if err := listRuns(os.Stdout, *dbPath, *limit); err != nil {
		log.Fatalf("runs: %v", err)
	}
}

func listRuns(w io.Writer, dbPath string, limit int) error {
	db, err := rundb.Open(dbPath, timeutil.RealClock{})
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tMODE\tSTARTED\tSTEPS\tVERSION")
	for _, r := range runs {
		steps := "running"
		if r.FinishedAt != nil {
			steps = fmt.Sprint(r.Steps)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Mode, r.StartedAt.Format(time.RFC3339), steps, r.Version)
	}
	return tw.Flush()
}
