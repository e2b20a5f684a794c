package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/cookie-scanner/pkg/models"
	"github.com/Sriram-PR/cookie-scanner/pkg/utils"
)

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func record(id string, started time.Time, status models.ScanStatus) *models.ScanRecord {
	return &models.ScanRecord{ID: id, URL: "https://" + id + ".example.com", Depth: "lite", Status: status, StartedAt: started}
}

func TestNewBadgerStore(t *testing.T) {
	t.Run("fresh store has zero count", func(t *testing.T) {
		store := newTestStore(t)
		count, err := store.GetScanCount()
		require.NoError(t, err)
		assert.Equal(t, 0, count)
	})

	t.Run("reopen keeps records", func(t *testing.T) {
		dir := t.TempDir()
		store1, err := NewBadgerStore(dir, testLogger())
		require.NoError(t, err)
		require.NoError(t, store1.CreateScan(record("a", time.Now(), models.ScanStatusCompleted)))
		require.NoError(t, store1.Close())

		store2, err := NewBadgerStore(dir, testLogger())
		require.NoError(t, err)
		t.Cleanup(func() { store2.Close() })

		count, err := store2.GetScanCount()
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		rec, err := store2.GetScan("a")
		require.NoError(t, err)
		assert.Equal(t, models.ScanStatusCompleted, rec.Status)
	})
}

func TestCreateScan(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateScan(record("one", time.Now(), models.ScanStatusPending)))

	err := store.CreateScan(record("one", time.Now(), models.ScanStatusPending))
	assert.ErrorIs(t, err, utils.ErrDatabase, "duplicate IDs are rejected")

	err = store.CreateScan(&models.ScanRecord{})
	assert.Error(t, err)

	count, _ := store.GetScanCount()
	assert.Equal(t, 1, count)
}

func TestGetScan_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetScan("missing")
	assert.ErrorIs(t, err, utils.ErrNotFound)

	err = store.UpdateScan("missing", func(*models.ScanRecord) error { return nil })
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestUpdateScan(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateScan(record("s", time.Now(), models.ScanStatusPending)))

	require.NoError(t, store.UpdateScan("s", func(rec *models.ScanRecord) error {
		rec.Status = models.ScanStatusRunning
		return nil
	}))
	rec, err := store.GetScan("s")
	require.NoError(t, err)
	assert.Equal(t, models.ScanStatusRunning, rec.Status)

	boom := fmt.Errorf("boom")
	err = store.UpdateScan("s", func(rec *models.ScanRecord) error {
		rec.Status = models.ScanStatusFailed
		return boom
	})
	assert.ErrorIs(t, err, boom)
	rec, _ = store.GetScan("s")
	assert.Equal(t, models.ScanStatusRunning, rec.Status, "failed update leaves record untouched")
}

func TestAppendLog(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateScan(record("s", time.Now(), models.ScanStatusRunning)))

	require.NoError(t, store.AppendLog("s", "first", "second"))
	require.NoError(t, store.AppendLog("s"))
	rec, err := store.GetScan("s")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, rec.Log)

	t.Run("keeps newest lines", func(t *testing.T) {
		lines := make([]string, MaxLogLines+10)
		for i := range lines {
			lines[i] = fmt.Sprintf("line %d", i)
		}
		require.NoError(t, store.AppendLog("s", lines...))
		rec, err := store.GetScan("s")
		require.NoError(t, err)
		require.Len(t, rec.Log, MaxLogLines)
		assert.Equal(t, fmt.Sprintf("line %d", len(lines)-1), rec.Log[MaxLogLines-1])
	})

	t.Run("concurrent appends to different scans", func(t *testing.T) {
		for i := 0; i < 4; i++ {
			require.NoError(t, store.CreateScan(record(fmt.Sprintf("c%d", i), time.Now(), models.ScanStatusRunning)))
		}
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				for j := 0; j < 20; j++ {
					assert.NoError(t, store.AppendLog(id, "x"))
				}
			}(fmt.Sprintf("c%d", i))
		}
		wg.Wait()
		for i := 0; i < 4; i++ {
			rec, err := store.GetScan(fmt.Sprintf("c%d", i))
			require.NoError(t, err)
			assert.Len(t, rec.Log, 20)
		}
	})
}

func TestListScans(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateScan(record("old", base, models.ScanStatusCompleted)))
	require.NoError(t, store.CreateScan(record("new", base.Add(2*time.Hour), models.ScanStatusRunning)))
	require.NoError(t, store.CreateScan(record("mid", base.Add(time.Hour), models.ScanStatusFailed)))
	require.NoError(t, store.SaveReport("old", &models.ScanResult{URL: "https://old.example.com"}))

	all, err := store.ListScans(0)
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, r := range all {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"new", "mid", "old"}, ids, "newest first, reports not listed")

	limited, err := store.ListScans(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestReports(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetReport("nope")
	assert.ErrorIs(t, err, utils.ErrNotFound)

	result := &models.ScanResult{
		URL:               "https://example.com",
		PagesScannedCount: 3,
		UniqueCookies:     []models.CookieInfo{{Key: "_ga|.example.com|/", Name: "_ga", Category: models.CategoryAnalytics}},
		Compliance: models.ComplianceSummary{
			GDPR: models.ComplianceInfo{RiskLevel: models.RiskHigh, Assessment: "x"},
		},
	}
	require.NoError(t, store.SaveReport("r1", result))

	got, err := store.GetReport("r1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.PagesScannedCount)
	require.Len(t, got.UniqueCookies, 1)
	assert.Equal(t, "_ga", got.UniqueCookies[0].Name)
	assert.Equal(t, models.RiskHigh, got.Compliance.GDPR.RiskLevel)
}

func TestMarkInterrupted(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	require.NoError(t, store.CreateScan(record("pending", now, models.ScanStatusPending)))
	require.NoError(t, store.CreateScan(record("running", now, models.ScanStatusRunning)))
	require.NoError(t, store.CreateScan(record("done", now, models.ScanStatusCompleted)))

	n, err := store.MarkInterrupted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{"pending", "running"} {
		rec, err := store.GetScan(id)
		require.NoError(t, err)
		assert.Equal(t, models.ScanStatusFailed, rec.Status)
		assert.Contains(t, rec.Error, "interrupted")
		assert.False(t, rec.FinishedAt.IsZero())
	}
	rec, _ := store.GetScan("done")
	assert.Equal(t, models.ScanStatusCompleted, rec.Status)

	n, err = store.MarkInterrupted(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRunGC_StopsOnCancel(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.RunGC(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunGC did not stop after cancellation")
	}
}

func TestClose_Idempotent(t *testing.T) {
	store, err := NewBadgerStore(t.TempDir(), testLogger())
	require.NoError(t, err)
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
