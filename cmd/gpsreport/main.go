// Command gpsreport uploads GPS telemetry captures to the analysis backend,
// prints and exports results, and serves a local dashboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gpsanalyzer/telemetry.report/internal/cache"
	"github.com/gpsanalyzer/telemetry.report/internal/config"
	"github.com/gpsanalyzer/telemetry.report/internal/dashboard"
	"github.com/gpsanalyzer/telemetry.report/internal/fsutil"
	"github.com/gpsanalyzer/telemetry.report/internal/httputil"
	"github.com/gpsanalyzer/telemetry.report/internal/report"
	"github.com/gpsanalyzer/telemetry.report/internal/units"
	"github.com/gpsanalyzer/telemetry.report/internal/version"
	"github.com/gpsanalyzer/telemetry.report/internal/view"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// globalFlags are accepted before the command name.
type globalFlags struct {
	configPath  string
	baseURL     string
	perPage     int
	cachePath   string
	noCache     bool
	showVersion bool
}

func parseGlobal(args []string, stderr io.Writer) (*globalFlags, []string, error) {
	g := &globalFlags{}
	fset := flag.NewFlagSet("gpsreport", flag.ContinueOnError)
	fset.SetOutput(stderr)
	fset.Usage = func() { printUsage(stderr) }
	fset.StringVar(&g.configPath, "config", "", "Path to JSON config (default "+config.DefaultConfigPath+" if present)")
	fset.StringVar(&g.baseURL, "base-url", "", "Analysis backend URL (overrides config)")
	fset.IntVar(&g.perPage, "per-page", 0, "Telemetry rows per page (overrides config)")
	fset.StringVar(&g.cachePath, "cache", "", "Result cache database (overrides config)")
	fset.BoolVar(&g.noCache, "no-cache", false, "Disable the local result cache")
	fset.BoolVar(&g.showVersion, "version", false, "Print version and exit")
	if err := fset.Parse(args); err != nil {
		return nil, nil, err
	}
	return g, fset.Args(), nil
}

// loadConfig reads the config file and applies flag overrides. A missing
// default config file is not an error.
func loadConfig(fsys fsutil.FileSystem, g *globalFlags) (*config.ClientConfig, error) {
	cfg := &config.ClientConfig{}
	path := g.configPath
	if path == "" {
		if _, err := fsys.Stat(config.DefaultConfigPath); err == nil {
			path = config.DefaultConfigPath
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	if path != "" {
		loaded, err := config.LoadClientConfig(fsys, path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if g.baseURL != "" {
		cfg = cfg.WithBaseURL(g.baseURL)
	}
	if g.perPage > 0 {
		cfg = cfg.WithPerPage(g.perPage)
	}
	if g.cachePath != "" {
		cfg.CachePath = &g.cachePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	g, rest, err := parseGlobal(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if g.showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}
	if len(rest) < 1 {
		printUsage(stderr)
		return 2
	}
	command, cmdArgs := rest[0], rest[1:]
	if command == "help" {
		printUsage(stdout)
		return 0
	}

	fsys := fsutil.OSFileSystem{}
	cfg, err := loadConfig(fsys, g)
	if err != nil {
		fmt.Fprintf(stderr, "gpsreport: %v\n", err)
		return 1
	}

	var c *cache.Cache
	if !g.noCache {
		c, err = cache.Open(cfg.GetCachePath())
		if err != nil {
			fmt.Fprintf(stderr, "gpsreport: %v\n", err)
			return 1
		}
		defer c.Close()
	}

	session := dashboard.NewSession(ctx, dashboard.Options{
		Config:     cfg,
		HTTPClient: httputil.NewStandardClient(&http.Client{}),
		Cache:      c,
		FS:         fsys,
	})
	defer session.Wait()

	switch command {
	case "upload":
		err = handleUpload(ctx, session, cfg.GetTimezone(), cmdArgs, stdout, stderr)
	case "open":
		err = handleOpen(ctx, session, cfg.GetTimezone(), cmdArgs, stdout, stderr)
	case "export":
		err = handleExport(ctx, session, cmdArgs, stdout, stderr)
	case "history":
		err = handleHistory(ctx, session, cfg.GetTimezone(), stdout)
	case "serve":
		err = handleServe(ctx, session, c, cfg, cmdArgs, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "gpsreport: %s\n", dashboard.UserMessage(err))
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `gpsreport - GPS telemetry quality reports

Usage: gpsreport [flags] <command> [options]

Commands:
  upload FILE   Upload a JSON capture, wait for processing and print the summary
  open ID       Print the summary of a processed capture
  export ID     Write every telemetry row of a capture to CSV
  history       List processed captures
  serve         Serve the local dashboard
  help          Show this help message

Flags:
  -config FILE    JSON config file
  -base-url URL   Analysis backend URL
  -per-page N     Telemetry rows per page
  -cache FILE     Result cache database
  -no-cache       Disable the local result cache
  -version        Print version and exit
`)
}

func handleUpload(ctx context.Context, s *dashboard.Session, tz string, args []string, stdout, stderr io.Writer) error {
	fset := flag.NewFlagSet("upload", flag.ContinueOnError)
	fset.SetOutput(stderr)
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() != 1 {
		return errors.New("upload needs exactly one FILE")
	}
	v, err := s.UploadFile(ctx, fset.Arg(0))
	if err != nil {
		return err
	}
	printView(stdout, v, tz)
	return nil
}

func handleOpen(ctx context.Context, s *dashboard.Session, tz string, args []string, stdout, stderr io.Writer) error {
	fset := flag.NewFlagSet("open", flag.ContinueOnError)
	fset.SetOutput(stderr)
	device := fset.String("device", report.AllDevices, "Device (IMEI) to focus")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() != 1 {
		return errors.New("open needs exactly one analysis ID")
	}
	v, err := s.Open(ctx, fset.Arg(0))
	if err != nil {
		return err
	}
	if *device != report.AllDevices {
		if v, err = s.SetDevice(*device); err != nil {
			return err
		}
	}
	printView(stdout, v, tz)
	return nil
}

func handleExport(ctx context.Context, s *dashboard.Session, args []string, stdout, stderr io.Writer) error {
	fset := flag.NewFlagSet("export", flag.ContinueOnError)
	fset.SetOutput(stderr)
	device := fset.String("device", report.AllDevices, "Device (IMEI) to export")
	outDir := fset.String("out", ".", "Directory for the CSV file")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() != 1 {
		return errors.New("export needs exactly one analysis ID")
	}
	if _, err := s.Open(ctx, fset.Arg(0)); err != nil {
		return err
	}
	if *device != report.AllDevices {
		if _, err := s.SetDevice(*device); err != nil {
			return err
		}
	}
	path, err := s.ExportToDir(ctx, *outDir)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, path)
	return nil
}

func handleHistory(ctx context.Context, s *dashboard.Session, tz string, stdout io.Writer) error {
	items, err := s.History(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFILENAME\tPROCESSED\tSCORE\tDEVICES\tRECORDS")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%d\t%d\n", it.ID, it.Filename,
			units.FormatTimestamp(it.Summary.ProcessedAt, tz), it.Summary.AverageQualityScore,
			it.Summary.TotalDevices, it.Summary.TotalRecords)
	}
	return tw.Flush()
}

func handleServe(ctx context.Context, s *dashboard.Session, c *cache.Cache, cfg *config.ClientConfig, args []string, stderr io.Writer) error {
	fset := flag.NewFlagSet("serve", flag.ContinueOnError)
	fset.SetOutput(stderr)
	listen := fset.String("listen", cfg.GetListen(), "Listen address")
	if err := fset.Parse(args); err != nil {
		return err
	}

	h, err := dashboard.NewServer(s, c, os.Stdout).Handler()
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:    *listen,
		Handler: h,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("dashboard listening on %s", *listen)
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
		if err := server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	return nil
}

// printView renders the summary with report times shown in tz.
func printView(w io.Writer, v *view.View, tz string) {
	fmt.Fprintf(w, "%s (processed %s)\n", v.Summary.Filename, units.FormatTimestamp(v.Summary.ProcessedAt, tz))
	if v.AnalysisID != "" {
		fmt.Fprintf(w, "analysis: %s\n", v.AnalysisID)
	}
	fmt.Fprintf(w, "device: %s\n", v.SelectedDevice)
	fmt.Fprintf(w, "quality score: %s", v.KPIs.Score)
	if v.KPIs.Band != view.BandNone {
		fmt.Fprintf(w, " (%s)", v.KPIs.Band)
	}
	fmt.Fprintf(w, "\ndevices: %s  records: %s  distance: %s km\n",
		v.KPIs.Devices, v.KPIs.Records, v.KPIs.DistanceKm)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nIMEI\tSCORE\tBAND\tREPORTS")
	for i, row := range v.Scorecard {
		band := "-"
		if i < len(v.ScorecardBands) && v.ScorecardBands[i] != view.BandNone {
			band = string(v.ScorecardBands[i])
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.Device(),
			row.String(report.ColQualityScore), band, row.String(report.ColTotalReports))
	}
	tw.Flush()

	if len(v.Events) > 0 {
		fmt.Fprintln(w, "\nevents:")
		for _, e := range v.Events {
			fmt.Fprintf(w, "  %-20s %d\n", e.Event, e.Count)
		}
	}
}
