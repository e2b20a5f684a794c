package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/cookie-scanner/pkg/log"
	"github.com/Sriram-PR/cookie-scanner/pkg/models"
	"github.com/Sriram-PR/cookie-scanner/pkg/utils"
)

const (
	scanKeyPrefix   = "scan:"    // Prefix for scan record keys in DB
	reportKeyPrefix = "report:"  // Prefix for stored scan results
	scansDBDir      = "scans_db" // Subdirectory name within storageDir for Badger DB files

	// MaxLogLines caps the progress lines kept per scan record.
	MaxLogLines = 500
)

// BadgerStore implements the Store interface using BadgerDB
type BadgerStore struct {
	db        *badger.DB
	log       *logrus.Entry
	scanCount atomic.Int64 // Cached record count for O(1) GetScanCount
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore opens (or creates) the scan database under storageDir
func NewBadgerStore(storageDir string, logger *logrus.Entry) (*BadgerStore, error) {
	store := &BadgerStore{log: logger.WithField("component", "store")}

	dbPath := filepath.Join(storageDir, scansDBDir)
	store.log.Infof("Opening scan database at: %s", dbPath)

	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("%w: cannot create storage directory %s: %w", utils.ErrFilesystem, dbPath, err)
	}

	badgerLogger := log.NewBadgerLogrusAdapter(logger.WithField("component", "badgerdb"))
	opts := badger.DefaultOptions(dbPath).
		WithLogger(badgerLogger).
		WithNumVersionsToKeep(1)

	var err error
	store.db, err = badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open badger database at %s: %w", utils.ErrDatabase, dbPath, err)
	}

	count, err := store.countPrefix([]byte(scanKeyPrefix))
	if err != nil {
		store.log.Warnf("Failed to count existing scan records: %v", err)
	} else {
		store.scanCount.Store(int64(count))
	}

	store.log.WithField("scans", count).Info("Scan database ready.")
	return store, nil
}

// countPrefix performs a one-time key scan (used only during initialization).
func (s *BadgerStore) countPrefix(prefix []byte) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

const maxConflictRetries = 10

// dbUpdate wraps db.Update with a retry loop for BadgerDB transaction conflicts.
// Concurrent scans append log lines to their own records, but the MVCC layer can
// still report a conflict; these resolve in microseconds, so a tight retry loop is sufficient.
func (s *BadgerStore) dbUpdate(fn func(txn *badger.Txn) error) error {
	for i := range maxConflictRetries {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debugf("BadgerDB transaction conflict (attempt %d/%d), retrying", i+1, maxConflictRetries)
	}
	return fmt.Errorf("%w: transaction conflict not resolved after %d retries", utils.ErrDatabase, maxConflictRetries)
}

func scanKey(id string) []byte   { return []byte(scanKeyPrefix + id) }
func reportKey(id string) []byte { return []byte(reportKeyPrefix + id) }

// getJSON decodes the value at key into out. Missing keys yield ErrNotFound.
func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", utils.ErrNotFound, string(key))
	}
	if err != nil {
		return fmt.Errorf("%w: failed getting key '%s': %w", utils.ErrDatabase, string(key), err)
	}
	return item.Value(func(val []byte) error {
		if err := json.Unmarshal(val, out); err != nil {
			return fmt.Errorf("%w: decoding '%s': %w", utils.ErrParsing, string(key), err)
		}
		return nil
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding '%s': %w", utils.ErrParsing, string(key), err)
	}
	return txn.SetEntry(badger.NewEntry(key, data))
}

// CreateScan implements the ScanStore interface
func (s *BadgerStore) CreateScan(rec *models.ScanRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: scan record without ID", utils.ErrDatabase)
	}
	key := scanKey(rec.ID)
	err := s.dbUpdate(func(txn *badger.Txn) error {
		if _, errGet := txn.Get(key); errGet == nil {
			return fmt.Errorf("%w: scan '%s' already exists", utils.ErrDatabase, rec.ID)
		} else if !errors.Is(errGet, badger.ErrKeyNotFound) {
			return errGet
		}
		return setJSON(txn, key, rec)
	})
	if err != nil {
		s.log.WithField("scan_id", rec.ID).Errorf("DB Update error in CreateScan: %v", err)
		return err
	}
	s.scanCount.Add(1)
	return nil
}

// UpdateScan implements the ScanStore interface
func (s *BadgerStore) UpdateScan(id string, fn func(rec *models.ScanRecord) error) error {
	key := scanKey(id)
	err := s.dbUpdate(func(txn *badger.Txn) error {
		var rec models.ScanRecord
		if err := getJSON(txn, key, &rec); err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}
		return setJSON(txn, key, &rec)
	})
	if err != nil && !errors.Is(err, utils.ErrNotFound) {
		s.log.WithField("scan_id", id).Errorf("DB Update error in UpdateScan: %v", err)
	}
	return err
}

// AppendLog implements the ScanStore interface
func (s *BadgerStore) AppendLog(id string, lines ...string) error {
	if len(lines) == 0 {
		return nil
	}
	return s.UpdateScan(id, func(rec *models.ScanRecord) error {
		rec.Log = append(rec.Log, lines...)
		if over := len(rec.Log) - MaxLogLines; over > 0 {
			rec.Log = append([]string(nil), rec.Log[over:]...)
		}
		return nil
	})
}

// GetScan implements the ScanStore interface
func (s *BadgerStore) GetScan(id string) (*models.ScanRecord, error) {
	var rec models.ScanRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, scanKey(id), &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListScans implements the ScanStore interface
func (s *BadgerStore) ListScans(limit int) ([]models.ScanRecord, error) {
	var records []models.ScanRecord
	decodeErrors := 0
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(scanKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			errValue := item.Value(func(val []byte) error {
				var rec models.ScanRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					s.log.Warnf("Skipping undecodable scan record '%s': %v", string(item.Key()), err)
					decodeErrors++
					return nil
				}
				records = append(records, rec)
				return nil
			})
			if errValue != nil {
				return errValue
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing scans: %w", utils.ErrDatabase, err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	if decodeErrors > 0 {
		s.log.Warnf("ListScans skipped %d undecodable records", decodeErrors)
	}
	return records, nil
}

// SaveReport implements the ReportStore interface
func (s *BadgerStore) SaveReport(id string, result *models.ScanResult) error {
	err := s.dbUpdate(func(txn *badger.Txn) error {
		return setJSON(txn, reportKey(id), result)
	})
	if err != nil {
		s.log.WithField("scan_id", id).Errorf("DB Update error in SaveReport: %v", err)
		return fmt.Errorf("%w: saving report '%s': %w", utils.ErrDatabase, id, err)
	}
	s.log.WithField("scan_id", id).Debug("Stored scan report")
	return nil
}

// GetReport implements the ReportStore interface
func (s *BadgerStore) GetReport(id string) (*models.ScanResult, error) {
	var result models.ScanResult
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, reportKey(id), &result)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetScanCount implements the StoreAdmin interface.
// Returns the cached record count (O(1)) maintained by atomic increments on writes.
func (s *BadgerStore) GetScanCount() (int, error) {
	return int(s.scanCount.Load()), nil
}

// MarkInterrupted implements the StoreAdmin interface
func (s *BadgerStore) MarkInterrupted(ctx context.Context) (int, error) {
	var stale []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(scanKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			errValue := it.Item().Value(func(val []byte) error {
				var rec models.ScanRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					return nil
				}
				if !rec.Status.IsTerminal() {
					stale = append(stale, rec.ID)
				}
				return nil
			})
			if errValue != nil {
				return errValue
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	marked := 0
	now := time.Now()
	for _, id := range stale {
		errUpdate := s.UpdateScan(id, func(rec *models.ScanRecord) error {
			rec.Status = models.ScanStatusFailed
			rec.FinishedAt = now
			rec.Error = "interrupted: process exited before the scan finished"
			return nil
		})
		if errUpdate != nil {
			s.log.WithField("scan_id", id).Warnf("Could not mark interrupted scan: %v", errUpdate)
			continue
		}
		marked++
	}
	if marked > 0 {
		s.log.Warnf("Marked %d interrupted scan(s) as failed", marked)
	}
	return marked, nil
}

// RunGC runs BadgerDB's garbage collection periodically
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.db == nil || s.db.IsClosed() {
				continue
			}
			var err error
			for {
				// Run GC if log is at least 50% reclaimable space
				if err = s.db.RunValueLogGC(0.5); err != nil {
					break
				}
			}
			if !errors.Is(err, badger.ErrNoRewrite) {
				s.log.Errorf("BadgerDB GC error: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close implements the StoreAdmin interface
func (s *BadgerStore) Close() error {
	if s.db != nil && !s.db.IsClosed() {
		if err := s.db.Close(); err != nil {
			s.log.Errorf("Error closing scan DB: %v", err)
			return err
		}
		s.log.Debug("Scan DB closed.")
	}
	return nil
}
