package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/config"
	"github.com/Sriram-PR/cookie-scanner/pkg/crawler"
	"github.com/Sriram-PR/cookie-scanner/pkg/orchestrate"
	"github.com/Sriram-PR/cookie-scanner/pkg/storage"
	"github.com/Sriram-PR/cookie-scanner/pkg/watch"
)

// scanRuntime bundles the long-lived pieces every scanning command needs.
type scanRuntime struct {
	store   *storage.BadgerStore
	runner  *orchestrate.Runner
	release func()
	stopGC  context.CancelFunc
}

// openRuntime opens the scan store, fails records left over by a previous
// process and wires the browser, sitemap and oracle stack into a Runner.
func openRuntime(ctx context.Context, appCfg *config.AppConfig, log *logrus.Entry) (*scanRuntime, error) {
	store, err := storage.NewBadgerStore(appCfg.StorageDir, log)
	if err != nil {
		return nil, err
	}
	if _, err := store.MarkInterrupted(ctx); err != nil {
		log.Warnf("Could not check for interrupted scans: %v", err)
	}
	gcCtx, stopGC := context.WithCancel(ctx)
	go store.RunGC(gcCtx, 10*time.Minute)

	deps, release, err := crawler.NewDefaultDeps(ctx, appCfg, log)
	if err != nil {
		stopGC()
		store.Close()
		return nil, err
	}
	scanner := crawler.NewScanner(appCfg, deps, log)
	return &scanRuntime{
		store:   store,
		runner:  orchestrate.NewRunner(scanner, store, appCfg, log),
		release: release,
		stopGC:  stopGC,
	}, nil
}

func (r *scanRuntime) Close() {
	r.stopGC()
	r.release()
	r.store.Close()
}

// handleSignals calls cancel on the first SIGINT/SIGTERM and exits on a
// second one or when shutdown takes longer than grace. The returned func
// stops signal delivery.
func handleSignals(log *logrus.Logger, cancel func(), grace time.Duration) func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC in signal handler: %v", r)
			}
		}()
		sig, ok := <-sigChan
		if !ok {
			return
		}
		log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(grace):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()
	return func() { signal.Stop(sigChan) }
}

// runScan handles the scan subcommand
func runScan(args []string) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file (optional for -url scans)")
	targetURL := fs.String("url", "", "URL to scan")
	siteKey := fs.String("site", "", "Site key from config (instead of -url)")
	depth := fs.String("depth", "", "Scan depth: lite, medium, deep, enterprise (default from config)")
	exclude := fs.String("exclude", "", "Comma-separated path regexes to skip, added to config patterns")
	outputDir := fs.String("output", "", "Report directory (overrides output_dir)")
	format := fs.String("format", "", "Report format: json or yaml (overrides output_format)")
	logLevel := fs.String("loglevel", "", "Log level (debug, info, warn, error); overrides log_level")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cookie-scanner scan [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  cookie-scanner scan -url https://example.com\n")
		fmt.Fprintf(os.Stderr, "  cookie-scanner scan -url https://shop.example.com -depth deep -format yaml\n")
		fmt.Fprintf(os.Stderr, "  cookie-scanner scan -site shop\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if (*targetURL == "") == (*siteKey == "") {
		fmt.Fprintln(os.Stderr, "Error: exactly one of -url or -site is required")
		fs.Usage()
		os.Exit(1)
	}

	explicitConfig := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicitConfig = true
		}
	})

	appCfg, err := loadConfigOrDefault(*configFile, explicitConfig || *siteKey != "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if *outputDir != "" {
		appCfg.OutputDir = *outputDir
	}
	if *format != "" {
		appCfg.OutputFormat = *format
	}

	log := setupLogger(appCfg, *logLevel, os.Stderr)
	if err := validateConfig(appCfg, log); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	req := crawler.Request{URL: *targetURL, Depth: *depth}
	if *siteKey != "" {
		site, ok := appCfg.Sites[*siteKey]
		if !ok {
			log.Fatalf("Site '%s' not found. Available sites: %v", *siteKey, orchestrate.GetAllSiteKeys(appCfg))
		}
		req.URL = site.URL
		req.ExcludePatterns = site.ExcludePathPatterns
		if req.Depth == "" {
			req.Depth = appCfg.EffectiveDepth(site)
		}
	}
	if *exclude != "" {
		req.ExcludePatterns = append(req.ExcludePatterns, splitList(*exclude)...)
	}

	exitCode := executeScan(appCfg, *siteKey, req, log, os.Stdout)
	os.Exit(exitCode)
}

// executeScan runs one scan with signal handling and prints a summary.
func executeScan(appCfg *config.AppConfig, siteKey string, req crawler.Request, log *logrus.Logger, stdout io.Writer) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopSignals := handleSignals(log, cancel, 30*time.Second)
	defer stopSignals()

	logEntry := log.WithField("component", "scan")
	rt, err := openRuntime(ctx, appCfg, logEntry)
	if err != nil {
		log.Errorf("Failed to initialize scanner: %v", err)
		return 1
	}
	defer rt.Close()

	outcome, err := rt.runner.Run(ctx, siteKey, req, func(line string) {
		logEntry.Info(line)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Warn("Scan cancelled gracefully.")
			return 0
		}
		log.Errorf("Scan failed: %v", err)
		return 1
	}

	printScanSummary(stdout, outcome)
	return 0
}

// printScanSummary writes the headline numbers of a completed scan.
func printScanSummary(w io.Writer, outcome *orchestrate.Outcome) {
	r := outcome.Result
	fmt.Fprintf(w, "Scan %s of %s\n", outcome.ScanID, r.URL)
	fmt.Fprintf(w, "  Pages scanned:       %d\n", r.PagesScannedCount)
	fmt.Fprintf(w, "  Cookies:             %d\n", len(r.UniqueCookies))
	fmt.Fprintf(w, "  Trackers:            %d\n", len(r.UniqueTrackers))
	fmt.Fprintf(w, "  Third-party domains: %d\n", len(r.ThirdPartyDomains))
	fmt.Fprintf(w, "  Consent banner:      %t\n", r.ConsentBannerDetected)
	fmt.Fprintf(w, "  Cookie policy:       %t\n", r.CookiePolicyDetected)
	if r.CMPProvider != "" {
		fmt.Fprintf(w, "  CMP:                 %s\n", r.CMPProvider)
	}
	fmt.Fprintf(w, "  GDPR risk:           %s\n", r.Compliance.GDPR.RiskLevel)
	fmt.Fprintf(w, "  CCPA risk:           %s\n", r.Compliance.CCPA.RiskLevel)
	if outcome.ReportPath != "" {
		fmt.Fprintf(w, "  Report:              %s\n", outcome.ReportPath)
	}
}

// runScanSites handles the scan-sites subcommand
func runScanSites(args []string) {
	fs := flag.NewFlagSet("scan-sites", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	sites := fs.String("sites", "", "Comma-separated site keys (default: all configured sites)")
	concurrency := fs.Int("concurrency", 0, "Maximum concurrent scans (overrides max_concurrent_scans)")
	logLevel := fs.String("loglevel", "", "Log level (debug, info, warn, error); overrides log_level")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cookie-scanner scan-sites [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  cookie-scanner scan-sites\n")
		fmt.Fprintf(os.Stderr, "  cookie-scanner scan-sites -sites shop,blog -concurrency 1\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	appCfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if *concurrency > 0 {
		appCfg.MaxConcurrentScans = *concurrency
	}
	log := setupLogger(appCfg, *logLevel, os.Stderr)
	if err := validateConfig(appCfg, log); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	siteKeys := parseSiteKeys("", *sites, false)
	if len(siteKeys) == 0 {
		siteKeys = orchestrate.GetAllSiteKeys(appCfg)
		log.Infof("All sites mode: found %d sites", len(siteKeys))
	}
	if len(siteKeys) == 0 {
		log.Fatal("No sites configured")
	}
	if err := orchestrate.ValidateSiteKeys(appCfg, siteKeys); err != nil {
		log.Fatalf("Invalid site keys: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	logEntry := log.WithField("component", "scan_sites")
	rt, err := openRuntime(ctx, appCfg, logEntry)
	if err != nil {
		cancel()
		log.Fatalf("Failed to initialize scanner: %v", err)
	}

	orch := orchestrate.NewOrchestrator(appCfg, rt.runner, siteKeys, logEntry)
	stopSignals := handleSignals(log, orch.Cancel, 60*time.Second)

	results := orch.Run()

	stopSignals()
	rt.Close()
	cancel()

	for _, r := range results {
		if !r.Success {
			os.Exit(1)
		}
	}
}

// runWatch handles the watch subcommand
func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	siteKey := fs.String("site", "", "Site key from config (single site)")
	sites := fs.String("sites", "", "Comma-separated site keys")
	allSites := fs.Bool("all-sites", false, "Watch all configured sites")
	interval := fs.String("interval", "", "Scan interval, e.g. 12h or 7d (default: watch_interval)")
	logLevel := fs.String("loglevel", "", "Log level (debug, info, warn, error); overrides log_level")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cookie-scanner watch [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  cookie-scanner watch -site shop -interval 24h\n")
		fmt.Fprintf(os.Stderr, "  cookie-scanner watch --all-sites -interval 7d\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	siteKeys := parseSiteKeys(*siteKey, *sites, *allSites)
	if !*allSites && len(siteKeys) == 0 {
		fmt.Fprintln(os.Stderr, "Error: one of -site, -sites, or --all-sites is required")
		fs.Usage()
		os.Exit(1)
	}

	appCfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	log := setupLogger(appCfg, *logLevel, os.Stderr)
	if err := validateConfig(appCfg, log); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	every := appCfg.WatchInterval
	if *interval != "" {
		if every, err = watch.ParseInterval(*interval); err != nil {
			log.Fatalf("Invalid interval: %v", err)
		}
	}
	if every <= 0 {
		log.Fatalf("Invalid interval: %v", every)
	}

	if *allSites {
		siteKeys = orchestrate.GetAllSiteKeys(appCfg)
		log.Infof("All sites mode: found %d sites", len(siteKeys))
	}
	if err := orchestrate.ValidateSiteKeys(appCfg, siteKeys); err != nil {
		log.Fatalf("Invalid site keys: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logEntry := log.WithField("component", "watch")
	rt, err := openRuntime(ctx, appCfg, logEntry)
	if err != nil {
		log.Fatalf("Failed to initialize scanner: %v", err)
	}
	defer rt.Close()

	scheduler := watch.NewScheduler(appCfg, rt.runner, siteKeys, every, logEntry)
	stopSignals := handleSignals(log, scheduler.Stop, 60*time.Second)
	defer stopSignals()

	if err := scheduler.Run(); err != nil {
		log.Errorf("Watch scheduler error: %v", err)
		return
	}
	log.Info("Watch mode stopped")
}
