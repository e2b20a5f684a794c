package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/report"
	"github.com/Sriram-PR/cookie-scanner/pkg/storage"
	"github.com/Sriram-PR/cookie-scanner/pkg/utils"
)

// storageDirFlag resolves the state directory from -storage or the config file.
func storageDirFlag(configPath, storageDir string) (string, error) {
	if storageDir != "" {
		return storageDir, nil
	}
	appCfg, err := loadConfigOrDefault(configPath, false)
	if err != nil {
		return "", err
	}
	if _, err := appCfg.Validate(); err != nil {
		return "", err
	}
	return appCfg.StorageDir, nil
}

// openStoreQuiet opens the store with a logger that only reports problems.
func openStoreQuiet(storageDir string, stderr io.Writer) (*storage.BadgerStore, error) {
	log := logrus.New()
	log.SetOutput(stderr)
	log.SetLevel(logrus.WarnLevel)
	return storage.NewBadgerStore(storageDir, log.WithField("component", "store"))
}

// runReport handles the report subcommand
func runReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file (for storage_dir)")
	storageDir := fs.String("storage", "", "State directory (overrides storage_dir)")
	scanID := fs.String("id", "", "Scan ID to print (required)")
	format := fs.String("format", "json", "Output format: json or yaml")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cookie-scanner report -id <scan-id> [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *scanID == "" {
		fmt.Fprintln(os.Stderr, "Error: -id is required")
		fs.Usage()
		os.Exit(1)
	}

	dir, err := storageDirFlag(*configFile, *storageDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(doReport(dir, *scanID, *format, os.Stdout, os.Stderr))
}

// doReport prints a stored report. When the scan produced none, the scan
// record's status is printed instead and the exit code is 1.
func doReport(storageDir, scanID, format string, stdout, stderr io.Writer) int {
	store, err := openStoreQuiet(storageDir, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	result, err := store.GetReport(scanID)
	if err != nil {
		if !errors.Is(err, utils.ErrNotFound) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		rec, recErr := store.GetScan(scanID)
		if recErr != nil {
			fmt.Fprintf(stderr, "Error: scan '%s' not found\n", scanID)
			return 1
		}
		fmt.Fprintf(stderr, "Scan '%s' has no report (status: %s)\n", scanID, rec.Status)
		if rec.Error != "" {
			fmt.Fprintf(stderr, "Error: %s\n", rec.Error)
		}
		return 1
	}

	data, err := report.Marshal(result, format)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	stdout.Write(data)
	return 0
}

// runList handles the list subcommand
func runList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configFile := fs.String("config", "config.yaml", "Path to config file (for storage_dir)")
	storageDir := fs.String("storage", "", "State directory (overrides storage_dir)")
	limit := fs.Int("limit", 20, "Maximum scans to show, newest first (0 for all)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cookie-scanner list [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	dir, err := storageDirFlag(*configFile, *storageDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	os.Exit(doList(dir, *limit, os.Stdout, os.Stderr))
}

// doList prints recorded scans as a table.
func doList(storageDir string, limit int, stdout, stderr io.Writer) int {
	store, err := openStoreQuiet(storageDir, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	records, err := store.ListScans(limit)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if len(records) == 0 {
		fmt.Fprintln(stdout, "No scans recorded.")
		return 0
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSTARTED\tPAGES\tGDPR\tCCPA\tURL")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			rec.ID, rec.Status, rec.StartedAt.Local().Format(time.DateTime),
			rec.Pages, orDash(string(rec.GDPRRisk)), orDash(string(rec.CCPARisk)), rec.URL)
	}
	tw.Flush()
	return 0
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
