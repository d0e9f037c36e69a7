// Package fileadapter implements the platform-adapter capability surface
// over a shared working directory. The driven service reads input.txt,
// holds a busy marker while working, and accumulates output either inline
// (output.txt) or in a side-channel artifact (artifact.md).
//
// The adapter doubles as the progress observer for its directory: a
// filesystem watcher keeps a cached progress view current so sampling at a
// fast poll cadence does not stat the directory on every tick.
package fileadapter

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/yamakatsunamamugi/autoai/internal/adapter"
	"github.com/yamakatsunamamugi/autoai/internal/detect"
	"github.com/yamakatsunamamugi/autoai/internal/errors"
	"github.com/yamakatsunamamugi/autoai/internal/logging"
)

// Well-known file names within the working directory.
const (
	InputFile    = "input.txt"
	OptionsFile  = "options.json"
	BusyMarker   = "busy"
	OutputFile   = "output.txt"
	ArtifactFile = "artifact.md"
	ContinueFile = "continue.txt"
	RefreshFile  = ".refresh"
	ResetFile    = ".reset"
)

// Adapter drives a service through a working directory. It implements
// adapter.PlatformAdapter, adapter.Continuer, detect.Observer, and the
// retry remedies surface.
type Adapter struct {
	dir    string
	mode   detect.Mode
	logger *logging.Logger

	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	watching  bool
	busy      bool
	outputLen int
	done      chan struct{}
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the structured logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Adapter) { a.logger = l }
}

// New creates an adapter over the given working directory. The mode decides
// which file carries the observable output.
func New(dir string, mode detect.Mode, opts ...Option) *Adapter {
	a := &Adapter{
		dir:    dir,
		mode:   mode,
		logger: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// outputPath returns the file carrying the mode's observable output.
func (a *Adapter) outputPath() string {
	if a.mode == detect.ModeArtifact {
		return filepath.Join(a.dir, ArtifactFile)
	}
	return filepath.Join(a.dir, OutputFile)
}

// Start begins watching the working directory so progress samples are
// served from the cached view. Sampling still works without Start via
// direct stats; watching just makes it cheap.
func (a *Adapter) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.watching {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create directory watcher")
	}
	if err := watcher.Add(a.dir); err != nil {
		watcher.Close()
		return errors.Wrapf(err, "failed to watch %s", a.dir)
	}

	a.watcher = watcher
	a.watching = true
	a.done = make(chan struct{})
	a.refreshCacheLocked()

	go a.watchLoop(watcher, a.done)
	return nil
}

// watchLoop folds filesystem events into the cached progress view.
func (a *Adapter) watchLoop(watcher *fsnotify.Watcher, done chan struct{}) {
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			a.handleEvent(ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			a.logger.Warn("directory watcher error", "error", err.Error())
		case <-done:
			return
		}
	}
}

// handleEvent updates the cache for busy-marker and output-file changes.
func (a *Adapter) handleEvent(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)

	a.mu.Lock()
	defer a.mu.Unlock()

	switch name {
	case BusyMarker:
		switch {
		case ev.Op.Has(fsnotify.Create):
			a.busy = true
		case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
			a.busy = false
		}
	case filepath.Base(a.outputPath()):
		if ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
			// A removed output is a render glitch from the observer's
			// perspective; keep the last known length.
			return
		}
		if info, err := os.Stat(a.outputPath()); err == nil {
			a.outputLen = int(info.Size())
		}
	}
}

// refreshCacheLocked re-reads the directory state. Caller holds the mutex.
func (a *Adapter) refreshCacheLocked() {
	_, err := os.Stat(filepath.Join(a.dir, BusyMarker))
	a.busy = err == nil

	if info, err := os.Stat(a.outputPath()); err == nil {
		a.outputLen = int(info.Size())
	}
}

// Close stops the directory watcher. Safe to call without Start.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.watching {
		return nil
	}
	close(a.done)
	a.watching = false
	return a.watcher.Close()
}

// -----------------------------------------------------------------------------
// PlatformAdapter
// -----------------------------------------------------------------------------

// Prepare ensures the working directory exists and clears control markers
// left by a previous run.
func (a *Adapter) Prepare(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCancelled, "prepare aborted")
	}
	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return errors.NewAdapterError("prepare", "failed to create working directory", err)
	}
	for _, name := range []string{ContinueFile, RefreshFile, ResetFile} {
		if err := os.Remove(filepath.Join(a.dir, name)); err != nil && !os.IsNotExist(err) {
			return errors.NewAdapterError("prepare", "failed to clear control marker", err)
		}
	}
	return nil
}

// Configure writes the task options for the service to pick up.
func (a *Adapter) Configure(ctx context.Context, opts adapter.Options) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCancelled, "configure aborted")
	}
	data, err := json.MarshalIndent(opts, "", "  ")
	if err != nil {
		return errors.NewAdapterError("configure", "failed to encode options", err)
	}
	return a.writeFile(OptionsFile, data, "configure")
}

// Submit delivers the task input. The write is atomic (temp file plus
// rename) so the service never observes a half-written input.
func (a *Adapter) Submit(ctx context.Context, input string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCancelled, "submit aborted")
	}
	return a.writeFile(InputFile, []byte(input), "submit")
}

// Extract reads the mode's output file. A missing file surfaces as a
// ResourceNotFound classification so the retry manager treats it as a
// local, retryable condition.
func (a *Adapter) Extract(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(errors.ErrCancelled, "extract aborted")
	}
	data, err := os.ReadFile(a.outputPath())
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewNotFoundError("output file", filepath.Base(a.outputPath()))
		}
		return "", errors.NewAdapterError("extract", "failed to read output", err)
	}
	return string(data), nil
}

// Continue triggers the intermediate continuation step by dropping a
// marker the service watches for.
func (a *Adapter) Continue(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCancelled, "continuation aborted")
	}
	return a.writeFile(ContinueFile, []byte("continue\n"), "continue")
}

// writeFile writes atomically into the working directory.
func (a *Adapter) writeFile(name string, data []byte, phase string) error {
	path := filepath.Join(a.dir, name)
	tmp := path + ".tmp"

	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.NewAdapterError(phase, "failed to write "+name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.NewAdapterError(phase, "failed to publish "+name, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Progress Observer
// -----------------------------------------------------------------------------

// Sample reports the current progress view. Served from the watcher cache
// when watching, otherwise from direct stats.
func (a *Adapter) Sample(ctx context.Context) detect.ProgressSample {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.watching {
		a.refreshCacheLocked()
	}
	return detect.ProgressSample{
		Active:       a.busy,
		OutputLength: a.outputLen,
	}
}

// -----------------------------------------------------------------------------
// Remedies
// -----------------------------------------------------------------------------

// Refresh asks the service to re-establish the session in place.
func (a *Adapter) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCancelled, "refresh aborted")
	}
	a.logger.Info("refreshing session", "dir", a.dir)
	return a.writeFile(RefreshFile, []byte("refresh\n"), "refresh")
}

// Reset clears transient session state and asks the service to
// re-establish from scratch. The busy marker is removed so a wedged
// in-flight operation does not survive the reset.
func (a *Adapter) Reset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCancelled, "reset aborted")
	}
	a.logger.Warn("resetting session", "dir", a.dir)

	if err := os.Remove(filepath.Join(a.dir, BusyMarker)); err != nil && !os.IsNotExist(err) {
		return errors.NewAdapterError("reset", "failed to clear busy marker", err)
	}
	a.mu.Lock()
	a.busy = false
	a.mu.Unlock()

	return a.writeFile(ResetFile, []byte("reset\n"), "reset")
}
