package storage

import (
	"context"
	"time"

	"github.com/Sriram-PR/cookie-scanner/pkg/models"
)

// ScanStore handles scan bookkeeping records
type ScanStore interface {
	// CreateScan stores a new record. Fails if the ID is already taken
	CreateScan(rec *models.ScanRecord) error

	// UpdateScan loads the record, applies fn and writes it back in one transaction.
	// Returns ErrNotFound (wrapped) when no record exists
	UpdateScan(id string, fn func(rec *models.ScanRecord) error) error

	// AppendLog adds progress lines to a record, keeping only the newest MaxLogLines
	AppendLog(id string, lines ...string) error

	// GetScan returns the record for id, or ErrNotFound (wrapped)
	GetScan(id string) (*models.ScanRecord, error)

	// ListScans returns up to limit records, newest first. limit <= 0 means all
	ListScans(limit int) ([]models.ScanRecord, error)
}

// ReportStore handles finished scan results
type ReportStore interface {
	// SaveReport stores the result of a completed scan
	SaveReport(id string, result *models.ScanResult) error

	// GetReport returns the stored result, or ErrNotFound (wrapped)
	GetReport(id string) (*models.ScanResult, error)
}

// StoreAdmin handles lifecycle and administrative operations
type StoreAdmin interface {
	// GetScanCount returns the number of scan records
	GetScanCount() (int, error)

	// MarkInterrupted fails every record left pending or running by a previous
	// process. Call once after opening
	MarkInterrupted(ctx context.Context) (int, error)

	// RunGC runs periodic garbage collection. Should be run in a goroutine
	RunGC(ctx context.Context, interval time.Duration)

	// Close cleanly closes the database connection
	Close() error
}

// Store combines all store interfaces for components that need full access
type Store interface {
	ScanStore
	ReportStore
	StoreAdmin
}
