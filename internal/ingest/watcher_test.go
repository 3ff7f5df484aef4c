package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonpick/anonpick/internal/classify"
	"github.com/anonpick/anonpick/internal/ledger"
	"github.com/anonpick/anonpick/internal/pipeline"
	"github.com/anonpick/anonpick/internal/store"
)

type recordingSubmitter struct {
	mu   sync.Mutex
	subs []pipeline.Submission
	svc  *pipeline.Service
}

func (r *recordingSubmitter) Submit(ctx context.Context, sub pipeline.Submission) (*pipeline.Result, error) {
	r.mu.Lock()
	r.subs = append(r.subs, sub)
	r.mu.Unlock()
	return r.svc.Submit(ctx, sub)
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

func newTestWatcher(t *testing.T) (*Watcher, *recordingSubmitter, string, string) {
	t.Helper()

	dropDir := t.TempDir()
	archiveDir := filepath.Join(t.TempDir(), "processed")

	svc := pipeline.New(store.NewMemStore(), classify.HashClassifier{}, ledger.New(), pipeline.Options{
		Logger: slog.New(slog.DiscardHandler),
	})
	sub := &recordingSubmitter{svc: svc}

	w, err := NewWatcher(dropDir, archiveDir, nil, sub, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	return w, sub, dropDir, archiveDir
}

func dropReport(t *testing.T, dir, name string, image []byte, meta Sidecar) {
	t.Helper()

	raw, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), image, 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".json"), raw, 0600))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcherSubmitsDroppedPair(t *testing.T) {
	w, sub, dropDir, archiveDir := newTestWatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	// Give the event loop a moment before dropping files.
	time.Sleep(50 * time.Millisecond)
	dropReport(t, dropDir, "report.jpg", []byte("IMG1"), Sidecar{
		Lat: 40.0, Lng: -74.0, PrivacyLevel: "anonymous",
	})

	waitFor(t, func() bool { s, _ := w.Counts(); return s == 1 })

	require.Equal(t, 1, sub.count())
	assert.Equal(t, 40.0, sub.subs[0].Lat)
	assert.Equal(t, "anonymous", sub.subs[0].PrivacyLevel)

	// The pair is archived out of the drop folder.
	waitFor(t, func() bool {
		_, err := os.Stat(filepath.Join(archiveDir, "report.jpg"))
		return err == nil
	})
	_, err := os.Stat(filepath.Join(dropDir, "report.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestWatcherScanPicksUpExistingPairs(t *testing.T) {
	w, _, dropDir, _ := newTestWatcher(t)

	// Pair dropped before the watcher starts.
	dropReport(t, dropDir, "early.png", []byte("EARLY"), Sidecar{Lat: 1, Lng: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	waitFor(t, func() bool { s, _ := w.Counts(); return s == 1 })
}

func TestWatcherIgnoresUnknownExtensions(t *testing.T) {
	w, sub, dropDir, _ := newTestWatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dropDir, "notes.txt"), []byte("hi"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dropDir, "notes.txt.json"), []byte("{}"), 0600))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, sub.count())
}

func TestWatcherImageAloneNotSubmitted(t *testing.T) {
	w, sub, dropDir, _ := newTestWatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dropDir, "half.jpg"), []byte("IMG"), 0600))

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, sub.count(), "an image without its sidecar must wait")
}

func TestWatcherDuplicateArchivedOnce(t *testing.T) {
	w, _, dropDir, _ := newTestWatcher(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	dropReport(t, dropDir, "a.jpg", []byte("SAME"), Sidecar{Lat: 1, Lng: 2})
	waitFor(t, func() bool { s, _ := w.Counts(); return s == 1 })

	// Same bytes under a new name: rejected as duplicate but archived.
	dropReport(t, dropDir, "b.jpg", []byte("SAME"), Sidecar{Lat: 1, Lng: 2})
	waitFor(t, func() bool { _, f := w.Counts(); return f == 1 })

	_, err := os.Stat(filepath.Join(dropDir, "b.jpg"))
	assert.True(t, os.IsNotExist(err), "duplicate pair should be archived, not retried")
}

func TestNewWatcherRejectsMissingDirectory(t *testing.T) {
	svc := pipeline.New(store.NewMemStore(), classify.HashClassifier{}, ledger.New(), pipeline.Options{
		Logger: slog.New(slog.DiscardHandler),
	})

	_, err := NewWatcher("/does/not/exist", t.TempDir(), nil, &recordingSubmitter{svc: svc}, slog.New(slog.DiscardHandler))
	assert.Error(t, err)
}
