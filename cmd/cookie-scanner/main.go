package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/config"
	applog "github.com/Sriram-PR/cookie-scanner/pkg/log"
	"github.com/Sriram-PR/cookie-scanner/pkg/orchestrate"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "scan":
		runScan(os.Args[2:])
	case "scan-sites":
		runScanSites(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "report":
		runReport(os.Args[2:])
	case "list":
		runList(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "list-sites":
		runListSites(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "version":
		fmt.Printf("cookie-scanner %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `cookie-scanner - Cookie and tracker consent compliance scanner

Usage:
  cookie-scanner <command> [options]

Commands:
  scan        Scan one website and write a compliance report
  scan-sites  Scan configured sites concurrently
  watch       Re-scan configured sites on a schedule
  report      Print a stored scan report
  list        List recorded scans
  validate    Validate configuration file
  list-sites  List configured site keys
  mcp-server  Start MCP server for AI tool integration
  version     Show version info

Run 'cookie-scanner <command> -h' for command-specific help.`)
}

// loadConfig loads and parses the config file. Defaults are applied by the caller.
func loadConfig(path string) (*config.AppConfig, error) {
	return config.Load(path)
}

// loadConfigOrDefault behaves like loadConfig, except that a missing file at
// the default path yields the built-in defaults.
func loadConfigOrDefault(path string, explicit bool) (*config.AppConfig, error) {
	cfg, err := loadConfig(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return &config.AppConfig{}, nil
	}
	return cfg, err
}

// setupLogger builds the process logger from config, with levelOverride
// (from -loglevel) taking precedence.
func setupLogger(appCfg *config.AppConfig, levelOverride string, out io.Writer) *logrus.Logger {
	level := appCfg.LogLevel
	if levelOverride != "" {
		level = levelOverride
	}
	log, warnings := applog.NewLogger(level, appCfg.LogFormat, out)
	for _, w := range warnings {
		log.Warn(w)
	}
	return log
}

// validateConfig applies defaults and logs warnings. A fatal error is returned.
func validateConfig(appCfg *config.AppConfig, log *logrus.Logger) error {
	warnings, err := appCfg.Validate()
	for _, w := range warnings {
		log.Warn(w)
	}
	return err
}

// parseSiteKeys turns -site/-sites/-all-sites into a key list. nil means all.
func parseSiteKeys(site, sites string, all bool) []string {
	if all {
		return nil
	}
	keys := splitList(sites)
	if site != "" {
		keys = append(keys, site)
	}
	return keys
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// runValidate handles the validate subcommand
func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")
	siteKey := fs.String("site", "", "Site key to validate (optional, validates all if empty)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cookie-scanner validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doValidate(*configFile, *siteKey, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath, siteKey string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	validateSite := func(key string) bool {
		site := appCfg.Sites[key]
		siteWarnings, err := site.Validate()
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: [%s] %v\n", key, err)
			return false
		}
		for _, w := range siteWarnings {
			fmt.Fprintf(stdout, "WARN: [%s] %s\n", key, w)
		}
		return true
	}

	if siteKey != "" {
		if _, ok := appCfg.Sites[siteKey]; !ok {
			fmt.Fprintf(stderr, "Error: site '%s' not found in config\n", siteKey)
			return 1
		}
		if !validateSite(siteKey) {
			return 1
		}
		fmt.Fprintf(stdout, "OK: Site '%s' configuration is valid\n", siteKey)
		return 0
	}

	hasError := false
	for _, key := range orchestrate.GetAllSiteKeys(appCfg) {
		if !validateSite(key) {
			hasError = true
			continue
		}
		fmt.Fprintf(stdout, "OK: [%s]\n", key)
	}
	if hasError {
		return 1
	}

	// Site warnings were already printed above
	sites := appCfg.Sites
	appCfg.Sites = nil
	warnings, err := appCfg.Validate()
	appCfg.Sites = sites
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}
	if appCfg.Oracle.APIKey() == "" {
		fmt.Fprintf(stdout, "WARN: %s is not set; scans will fail to classify\n", appCfg.Oracle.APIKeyEnv)
	}

	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

// runListSites handles the list-sites subcommand
func runListSites(args []string) {
	fs := flag.NewFlagSet("list-sites", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cookie-scanner list-sites [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	exitCode := doListSites(*configFile, os.Stdout, os.Stderr)
	os.Exit(exitCode)
}

// doListSites lists sites and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doListSites(configPath string, stdout, stderr io.Writer) int {
	appCfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	keys := make([]string, 0, len(appCfg.Sites))
	for k := range appCfg.Sites {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(stdout, "Sites in %s:\n\n", configPath)
	for _, key := range keys {
		site := appCfg.Sites[key]
		fmt.Fprintf(stdout, "  %s\n", key)
		fmt.Fprintf(stdout, "    URL: %s\n", site.URL)
		depth := site.Depth
		if depth == "" {
			depth = "(default)"
		}
		fmt.Fprintf(stdout, "    Depth: %s\n", depth)
		if len(site.ExcludePathPatterns) > 0 {
			fmt.Fprintf(stdout, "    Exclude: %s\n", strings.Join(site.ExcludePathPatterns, ", "))
		}
		fmt.Fprintln(stdout)
	}
	return 0
}
