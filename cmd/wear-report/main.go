// Command wear-report detects sensor wear time and computes activity counts
// from accelerometer recordings stored as CSV or EDF.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/banshee-data/wear.report/internal/activity"
	"github.com/banshee-data/wear.report/internal/api"
	"github.com/banshee-data/wear.report/internal/config"
	"github.com/banshee-data/wear.report/internal/db"
	"github.com/banshee-data/wear.report/internal/fsutil"
	"github.com/banshee-data/wear.report/internal/ingest"
	"github.com/banshee-data/wear.report/internal/monitoring"
	"github.com/banshee-data/wear.report/internal/questionnaire"
	"github.com/banshee-data/wear.report/internal/report"
	"github.com/banshee-data/wear.report/internal/security"
	"github.com/banshee-data/wear.report/internal/timeseries"
	"github.com/banshee-data/wear.report/internal/timeutil"
	"github.com/banshee-data/wear.report/internal/units"
	"github.com/banshee-data/wear.report/internal/version"
	"github.com/banshee-data/wear.report/internal/wear"
	"github.com/banshee-data/wear.report/internal/window"
)

const usage = `Usage: wear-report <command> [flags] [args]

Commands:
  wear <input>                Label worn and unworn windows
  counts <input>              Per-minute activity counts
  windows <input>             Variance norm of fixed windows
  migrate <action>            Manage the results database schema
  serve                       Serve the HTTP API, metrics and debug console
  questionnaire <name> k=v..  Score questionnaire responses
  version                     Print version information

Inputs ending in .edf are read as European Data Format; anything else as CSV.
Run 'wear-report <command> -h' for command flags.
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("wear-report: %v", err)
	}
}

// env carries the io and filesystem a command runs against.
type env struct {
	stdin  io.Reader
	stdout io.Writer
	fsys   fsutil.FileSystem
	clock  timeutil.Clock
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	e := &env{stdin: stdin, stdout: stdout, fsys: fsutil.OSFileSystem{}, clock: timeutil.RealClock{}}
	return e.run(args)
}

func (e *env) run(args []string) error {
	stdout := e.stdout
	if len(args) < 1 {
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("missing command")
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "wear":
		return e.wear(rest)
	case "counts":
		return e.counts(rest)
	case "windows":
		return e.windows(rest)
	case "migrate":
		return e.migrate(rest)
	case "serve":
		return e.serve(rest)
	case "questionnaire":
		return e.questionnaire(rest)
	case "version", "-version", "--version":
		fmt.Fprintln(stdout, version.String())
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stdout, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// common holds the flags shared by the analysis commands.
type common struct {
	configPath string
	rate       float64
	tz         string
	unit       string
	out        string
	dbPath     string
	quiet      bool
	start      string
	names      string

	cfg *config.AnalysisConfig
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", "", "JSON or TOML analysis config")
	fs.Float64Var(&c.rate, "rate", 0, "sampling rate in Hz (overrides config)")
	fs.StringVar(&c.tz, "tz", "", "timezone for timestamps without an offset (overrides config)")
	fs.StringVar(&c.unit, "unit", "", "acceleration unit: "+units.GetValidUnitsString())
	fs.StringVar(&c.out, "o", "", "output CSV path (default stdout)")
	fs.StringVar(&c.dbPath, "db", "", "record the run in this SQLite database")
	fs.BoolVar(&c.quiet, "q", false, "suppress diagnostic logging")
	fs.StringVar(&c.start, "start", "", "EDF input: time of the first sample")
	fs.StringVar(&c.names, "names", "", "EDF input: comma-separated signal names in file order")
}

// resolve loads the config file and applies flag overrides.
func (c *common) resolve() error {
	c.cfg = config.EmptyAnalysisConfig()
	if c.configPath != "" {
		cfg, err := config.LoadAnalysisConfig(c.configPath)
		if err != nil {
			return err
		}
		c.cfg = cfg
	}
	if c.rate != 0 {
		c.cfg.SamplingRate = &c.rate
	}
	if c.tz != "" {
		c.cfg.Timezone = &c.tz
	}
	if c.unit != "" {
		c.cfg.AccUnit = &c.unit
	}
	if c.dbPath != "" {
		c.cfg.DBPath = &c.dbPath
	}
	if c.quiet {
		monitoring.SetLogger(nil)
	}
	return c.cfg.Validate()
}

func (e *env) load(c *common, input string) (*timeseries.TimeSeries, error) {
	loc, err := units.LoadTimezone(c.cfg.GetTimezone())
	if err != nil {
		return nil, err
	}
	if fi, err := e.fsys.Stat(input); err != nil {
		return nil, fmt.Errorf("input: %w", err)
	} else if fi.IsDir() {
		return nil, fmt.Errorf("input %s is a directory", input)
	}
	opts := ingest.Options{
		SamplingRate: c.cfg.GetSamplingRate(),
		Location:     loc,
		AccUnit:      c.cfg.GetAccUnit(),
	}
	if c.start != "" {
		if opts.Start, err = ingest.ParseTime(c.start, loc); err != nil {
			return nil, fmt.Errorf("-start: %w", err)
		}
	}
	if c.names != "" {
		for _, name := range strings.Split(c.names, ",") {
			opts.Names = append(opts.Names, strings.TrimSpace(name))
		}
	}
	return ingest.Load(e.fsys, input, opts)
}

// output opens the report destination. The returned close function must be
// called once writing is done.
func (e *env) output(c *common) (*report.Writer, func() error, error) {
	loc, err := units.LoadTimezone(c.cfg.GetTimezone())
	if err != nil {
		return nil, nil, err
	}
	if c.out == "" {
		return report.NewWriter(e.stdout, loc), func() error { return nil }, nil
	}
	if err := security.ValidateOutputPath(c.out); err != nil {
		return nil, nil, err
	}
	if err := e.fsys.MkdirAll(filepath.Dir(c.out), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create output directory: %w", err)
	}
	f, err := e.fsys.Create(c.out)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	return report.NewWriter(f, loc), f.Close, nil
}

func (e *env) openDB(c *common) (*db.DB, error) {
	if c.dbPath == "" {
		return nil, nil
	}
	if err := security.ValidateOutputPath(c.dbPath); err != nil {
		return nil, err
	}
	return db.NewDB(c.dbPath)
}

func (c *common) run(ts *timeseries.TimeSeries, input string) db.Run {
	return db.Run{
		Source:       input,
		SamplingRate: ts.SamplingRate,
		Samples:      ts.Len(),
		Channels:     ts.NumChannels(),
		Timezone:     c.cfg.GetTimezone(),
	}
}

func parseInput(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return "", fmt.Errorf("%s: expected one input file, got %d", fs.Name(), fs.NArg())
	}
	return fs.Arg(0), nil
}

func (e *env) wear(args []string) error {
	var c common
	fs := flag.NewFlagSet("wear", flag.ContinueOnError)
	fs.SetOutput(e.stdout)
	c.register(fs)
	summary := fs.Bool("summary", false, "write totals and the major wear block instead of per-window labels")
	input, err := parseInput(fs, args)
	if err != nil {
		return err
	}
	if err := c.resolve(); err != nil {
		return err
	}

	ts, err := e.load(&c, input)
	if err != nil {
		return err
	}
	det, err := wear.NewDetector(ts.SamplingRate)
	if err != nil {
		return err
	}
	done := monitoring.Stage(e.clock, "wear detection")
	start := e.clock.Now()
	res, err := det.Predict(ts)
	done()
	monitoring.ObserveAnalysis(db.KindWear, ts.Len(), e.clock.Since(start), err)
	if err != nil {
		return err
	}

	if store, err := e.openDB(&c); err != nil {
		return err
	} else if store != nil {
		defer store.Close()
		r, err := store.RecordWearRun(c.run(ts, input), res)
		if err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		monitoring.Logf("recorded wear run %s", r.ID)
	}

	w, closeOut, err := e.output(&c)
	if err != nil {
		return err
	}
	if *summary {
		err = w.Summary(res)
	} else {
		err = w.Wear(res)
	}
	return errors.Join(err, closeOut())
}

func (e *env) counts(args []string) error {
	var c common
	fs := flag.NewFlagSet("counts", flag.ContinueOnError)
	fs.SetOutput(e.stdout)
	c.register(fs)
	input, err := parseInput(fs, args)
	if err != nil {
		return err
	}
	if err := c.resolve(); err != nil {
		return err
	}

	ts, err := e.load(&c, input)
	if err != nil {
		return err
	}
	engine, err := activity.NewEngine(activity.Config{SamplingRate: ts.SamplingRate})
	if err != nil {
		return err
	}
	done := monitoring.Stage(e.clock, "activity counts")
	start := e.clock.Now()
	res, err := engine.Calculate(ts)
	done()
	monitoring.ObserveAnalysis(db.KindCounts, ts.Len(), e.clock.Since(start), err)
	if err != nil {
		return err
	}

	if store, err := e.openDB(&c); err != nil {
		return err
	} else if store != nil {
		defer store.Close()
		r, err := store.RecordCountsRun(c.run(ts, input), res)
		if err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		monitoring.Logf("recorded counts run %s", r.ID)
	}

	w, closeOut, err := e.output(&c)
	if err != nil {
		return err
	}
	return errors.Join(w.Counts(res), closeOut())
}

func (e *env) windows(args []string) error {
	var c common
	fs := flag.NewFlagSet("windows", flag.ContinueOnError)
	fs.SetOutput(e.stdout)
	c.register(fs)
	windowSec := fs.Float64("window-sec", 0, "window length in seconds (overrides config)")
	windowLen := fs.String("window", "", "window length as an ISO 8601 (PT30S) or Go (30s) duration")
	overlap := fs.Float64("overlap", -1, "fraction of each window shared with the next, in [0, 1)")
	input, err := parseInput(fs, args)
	if err != nil {
		return err
	}
	if err := c.resolve(); err != nil {
		return err
	}
	if *windowSec != 0 && *windowLen != "" {
		return fmt.Errorf("-window and -window-sec are mutually exclusive")
	}
	if *windowSec != 0 {
		c.cfg.WindowSec = windowSec
	}
	if *windowLen != "" {
		d, err := units.ParseDuration(*windowLen)
		if err != nil {
			return err
		}
		secs := d.Seconds()
		c.cfg.WindowSec = &secs
	}
	if *overlap >= 0 {
		c.cfg.OverlapPercent = overlap
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	ts, err := e.load(&c, input)
	if err != nil {
		return err
	}
	seg, err := window.Segment(ts.SelectAcc(), c.cfg.WindowConfig(ts.SamplingRate))
	if err != nil {
		return err
	}
	w, closeOut, err := e.output(&c)
	if err != nil {
		return err
	}
	return errors.Join(w.VarNorm(seg, window.VarNorm(seg)), closeOut())
}

func (e *env) migrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(e.stdout)
	dbPath := fs.String("db", "", "SQLite database path (default from config)")
	configPath := fs.String("config", "", "JSON or TOML analysis config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := dbPathFor(*dbPath, *configPath)
	if err != nil {
		return err
	}
	return db.RunMigrateCommand(fs.Args(), path, e.stdin, e.stdout)
}

func dbPathFor(flagPath, configPath string) (string, error) {
	if flagPath != "" {
		return flagPath, nil
	}
	cfg := config.EmptyAnalysisConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadAnalysisConfig(configPath); err != nil {
			return "", err
		}
	}
	return cfg.GetDBPath(), nil
}

func (e *env) serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(e.stdout)
	dbPath := fs.String("db", "", "SQLite database path (default from config)")
	configPath := fs.String("config", "", "JSON or TOML analysis config")
	listen := fs.String("listen", "", "listen address (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg := config.EmptyAnalysisConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadAnalysisConfig(*configPath); err != nil {
			return err
		}
	}
	path := *dbPath
	if path == "" {
		path = cfg.GetDBPath()
	}
	addr := *listen
	if addr == "" {
		addr = cfg.GetListen()
	}

	store, err := db.NewDB(path)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer store.Close()

	mux := api.NewServer(store, cfg, questionnaire.NewDefaultRegistry()).ServeMux()
	if err := store.AttachAdminRoutes(mux); err != nil {
		return err
	}
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/debug/", http.StatusFound)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    addr,
		Handler: api.LoggingMiddleware(mux),
	}
	errc := make(chan error, 1)
	go func() {
		log.Printf("serving %s on %s", path, addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return server.Close()
	}
	return nil
}

func (e *env) questionnaire(args []string) error {
	fs := flag.NewFlagSet("questionnaire", flag.ContinueOnError)
	fs.SetOutput(e.stdout)
	list := fs.Bool("list", false, "list registered questionnaires")
	if err := fs.Parse(args); err != nil {
		return err
	}
	reg := questionnaire.NewDefaultRegistry()
	if *list {
		for _, name := range reg.Names() {
			fmt.Fprintln(e.stdout, name)
		}
		return nil
	}
	if fs.NArg() < 2 {
		return fmt.Errorf("questionnaire: usage: questionnaire <name> item=value ...")
	}

	responses := questionnaire.Responses{}
	for _, kv := range fs.Args()[1:] {
		item, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("questionnaire: response %q is not item=value", kv)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("questionnaire: item %q: %w", item, err)
		}
		responses[item] = v
	}
	scores, err := reg.Score(fs.Arg(0), responses)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(e.stdout, "%s=%s\n", k, strconv.FormatFloat(scores[k], 'g', -1, 64))
	}
	return nil
}
