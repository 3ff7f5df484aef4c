// Package ingest watches a drop folder for geotagged photo reports and
// feeds them into the submission pipeline.
//
// A report is a pair of files: the image itself plus a JSON sidecar named
// `<image>.json` carrying the coordinates and privacy level. The watcher
// submits a report once both halves are present and then moves the pair
// into the archive directory, so a report is submitted at most once.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/anonpick/anonpick/internal/pipeline"
)

// DefaultExtensions are the image extensions accepted by the watcher.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png"}

// Submitter is the pipeline surface the watcher drives.
type Submitter interface {
	Submit(ctx context.Context, sub pipeline.Submission) (*pipeline.Result, error)
}

// Sidecar is the JSON metadata accompanying each dropped image.
type Sidecar struct {
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	PrivacyLevel string  `json:"privacy_level,omitempty"`
	UserSecret   string  `json:"user_secret,omitempty"`
}

// Watcher monitors the drop folder. Construct with NewWatcher, run with
// Start, stop with Close.
type Watcher struct {
	dir        string
	archiveDir string
	extensions map[string]struct{}
	submitter  Submitter
	fsw        *fsnotify.Watcher
	log        *slog.Logger

	mu        sync.Mutex // serializes report processing
	done      chan struct{}
	closeOnce sync.Once

	submitted atomic.Int64
	failed    atomic.Int64
}

// NewWatcher creates a watcher for the given drop directory. Archived
// pairs land in archiveDir. Returns an error if dir does not exist or is
// not a directory.
func NewWatcher(dir, archiveDir string, extensions []string, submitter Submitter, log *slog.Logger) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("ingest: cannot access drop directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ingest: drop path is not a directory: %s", dir)
	}
	if err := os.MkdirAll(archiveDir, 0700); err != nil {
		return nil, fmt.Errorf("ingest: create archive directory: %w", err)
	}

	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	extSet := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		extSet[strings.ToLower(ext)] = struct{}{}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("ingest: watch %s: %w", dir, err)
	}

	return &Watcher{
		dir:        dir,
		archiveDir: archiveDir,
		extensions: extSet,
		submitter:  submitter,
		fsw:        fsw,
		log:        log,
		done:       make(chan struct{}),
	}, nil
}

// Start scans for pairs already present, then blocks processing events
// until the context is cancelled or Close is called.
func (w *Watcher) Start(ctx context.Context) {
	if err := w.scan(ctx); err != nil {
		w.log.Warn("initial ingest scan failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.maybeProcess(ctx, event.Name)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("ingest watch error", "error", err)
		}
	}
}

// Close stops the watcher. Safe to call multiple times.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	return w.fsw.Close()
}

// Counts returns the number of submitted and failed reports so far.
func (w *Watcher) Counts() (submitted, failed int64) {
	return w.submitted.Load(), w.failed.Load()
}

// scan processes pairs that were dropped while the watcher was not
// running.
func (w *Watcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.maybeProcess(ctx, filepath.Join(w.dir, entry.Name()))
	}
	return nil
}

// maybeProcess resolves an event path to an image/sidecar pair and
// submits it when both halves exist.
func (w *Watcher) maybeProcess(ctx context.Context, path string) {
	imagePath := path
	if strings.EqualFold(filepath.Ext(path), ".json") {
		imagePath = strings.TrimSuffix(path, filepath.Ext(path))
	}

	ext := strings.ToLower(filepath.Ext(imagePath))
	if _, ok := w.extensions[ext]; !ok {
		return
	}

	sidecarPath := imagePath + ".json"

	w.mu.Lock()
	defer w.mu.Unlock()

	// Both halves must be present; the other half's event will retrigger.
	if _, err := os.Stat(imagePath); err != nil {
		return
	}
	if _, err := os.Stat(sidecarPath); err != nil {
		return
	}

	if err := w.process(ctx, imagePath, sidecarPath); err != nil {
		w.failed.Add(1)
		w.log.Warn("ingest report failed", "image", filepath.Base(imagePath), "error", err)
		return
	}
	w.submitted.Add(1)
}

func (w *Watcher) process(ctx context.Context, imagePath, sidecarPath string) error {
	raw, err := os.ReadFile(sidecarPath)
	if err != nil {
		return fmt.Errorf("read sidecar: %w", err)
	}
	var meta Sidecar
	if err := json.Unmarshal(raw, &meta); err != nil {
		return fmt.Errorf("decode sidecar: %w", err)
	}

	image, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	res, err := w.submitter.Submit(ctx, pipeline.Submission{
		ImageBytes:   image,
		ImageRef:     "file://" + filepath.Base(imagePath),
		Lat:          meta.Lat,
		Lng:          meta.Lng,
		UserSecret:   meta.UserSecret,
		PrivacyLevel: meta.PrivacyLevel,
	})
	if err != nil {
		// A duplicate still archives the pair; re-dropping the same
		// image must not loop forever.
		if errors.Is(err, pipeline.ErrDuplicateSubmission) {
			w.archive(imagePath, sidecarPath)
			return err
		}
		return err
	}

	w.log.Info("ingested report",
		"image", filepath.Base(imagePath),
		"pick", res.PickID,
		"points", res.Points,
	)
	w.archive(imagePath, sidecarPath)
	return nil
}

// archive moves a processed pair out of the drop folder.
func (w *Watcher) archive(imagePath, sidecarPath string) {
	for _, path := range []string{imagePath, sidecarPath} {
		dest := filepath.Join(w.archiveDir, filepath.Base(path))
		if err := os.Rename(path, dest); err != nil {
			w.log.Warn("archive failed", "path", path, "error", err)
		}
	}
}
