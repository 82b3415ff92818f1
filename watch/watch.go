// Package watch applies environment patches from a YAML file as it changes.
package watch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/protolab/lab"
)

// Target receives parsed patches.
type Target interface {
	SetEnvironment(lab.EnvironmentPatch) lab.Environment
}

// Watcher reloads one patch file. Editors often replace files instead of
// writing them in place, so the parent directory is watched and events are
// filtered by name.
type Watcher struct {
	path     string
	target   Target
	debounce time.Duration
}

// New creates a watcher for path. Run starts it.
func New(path string, target Target, debounce time.Duration) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		target:   target,
		debounce: debounce,
	}
}

// Run applies the file once, then again after every settled change, until
// ctx is cancelled. A missing or malformed file is logged and skipped.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	slog.Info("watching environment file", "path", w.path, "debounce", w.debounce)

	w.reload()

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("environment watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) reload() {
	patch, err := ReadPatch(w.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("environment file not present", "path", w.path)
			return
		}
		slog.Warn("ignoring environment file", "path", w.path, "error", err)
		return
	}
	if patch.IsEmpty() {
		return
	}
	env := w.target.SetEnvironment(patch)
	slog.Info("environment file applied", "path", w.path, "environment", env)
}

// ReadPatch parses a patch file. Unknown keys are rejected; an empty file
// yields an empty patch.
func ReadPatch(path string) (lab.EnvironmentPatch, error) {
	var patch lab.EnvironmentPatch
	data, err := os.ReadFile(path)
	if err != nil {
		return patch, fmt.Errorf("reading patch file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&patch); err != nil && !errors.Is(err, io.EOF) {
		return lab.EnvironmentPatch{}, fmt.Errorf("parsing patch file: %w", err)
	}
	return patch, nil
}
