package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/cookie-scanner/pkg/models"
	"github.com/Sriram-PR/cookie-scanner/pkg/utils"
)

// Marshal encodes a result as "json" (indented) or "yaml".
func Marshal(result *models.ScanResult, format string) ([]byte, error) {
	switch format {
	case "", "json":
		return json.MarshalIndent(result, "", "  ")
	case "yaml":
		return yaml.Marshal(result)
	}
	return nil, fmt.Errorf("%w: unknown output format %q", utils.ErrConfigValidation, format)
}

// Write stores result under dir with a sanitized host-and-time file name and
// returns the file path.
func Write(dir, format string, result *models.ScanResult, log *logrus.Entry) (string, error) {
	if format == "" {
		format = "json"
	}
	data, err := Marshal(result, format)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%w: create output dir '%s': %w", utils.ErrFilesystem, dir, err)
	}
	at := result.FinishedAt
	if at.IsZero() {
		at = result.StartedAt
	}
	path := filepath.Join(dir, utils.ReportFilename(result.URL, at, format))
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Errorf("Failed to write report file '%s': %v", path, err)
		return "", fmt.Errorf("%w: write report '%s': %w", utils.ErrFilesystem, path, err)
	}
	log.WithFields(logrus.Fields{
		"path":    path,
		"cookies": len(result.UniqueCookies),
		"pages":   result.PagesScannedCount,
	}).Info("Wrote scan report")
	return path, nil
}
