// Package notify watches the signals directory for a kill file and cancels
// the running solve when one appears.
package notify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrKillSignal is the cancellation cause of a context stopped by a kill file.
var ErrKillSignal = errors.New("kill signal received")

const killFile = "kill"

// pollInterval is used when no fsnotify watcher could be started.
var pollInterval = 500 * time.Millisecond

// Watcher reports kill signals written to <dir>/signals/kill.
type Watcher struct {
	signalsDir string
	logger     *zap.Logger

	mu      sync.Mutex
	stopped bool
	stopCh  chan struct{}

	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

// New prepares <dir>/signals, clears any stale kill file and starts watching.
// If fsnotify is unavailable the watcher falls back to polling.
func New(dir string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	signalsDir := filepath.Join(dir, "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return nil, err
	}

	w := &Watcher{
		signalsDir: signalsDir,
		logger:     logger,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	if err := w.Clear(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("file watcher unavailable, polling for signals", zap.Error(err))
		go w.poll()
		return w, nil
	}
	if err := watcher.Add(signalsDir); err != nil {
		watcher.Close()
		logger.Warn("cannot watch signals directory, polling", zap.String("dir", signalsDir), zap.Error(err))
		go w.poll()
		return w, nil
	}
	w.watcher = watcher

	go w.watchSignals()
	return w, nil
}

// KillPath returns the file whose creation stops the solve.
func (w *Watcher) KillPath() string {
	return filepath.Join(w.signalsDir, killFile)
}

// watchSignals monitors the signals directory for the kill file.
func (w *Watcher) watchSignals() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) == killFile && event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.trigger()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Debug("signal watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			if w.ShouldStop() {
				return
			}
		}
	}
}

func (w *Watcher) trigger() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.stopCh)
	w.logger.Info("kill signal received", zap.String("path", w.KillPath()))
}

// ShouldStop returns true if a kill signal has been received.
func (w *Watcher) ShouldStop() bool {
	// Also check the file directly in case the watcher missed it.
	if _, err := os.Stat(w.KillPath()); err == nil {
		w.trigger()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

// Stopped is closed once a kill signal has been received.
func (w *Watcher) Stopped() <-chan struct{} {
	return w.stopCh
}

// Watch returns a context that is canceled with ErrKillSignal when a kill
// signal arrives. The returned cancel releases the watch.
func (w *Watcher) Watch(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(ctx)
	go func() {
		select {
		case <-w.stopCh:
			cancel(ErrKillSignal)
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancel(context.Canceled) }
}

// Clear removes the kill file so a later solve is not stopped by an old signal.
func (w *Watcher) Clear() error {
	if err := os.Remove(w.KillPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		if w.watcher != nil {
			err = w.watcher.Close()
		}
	})
	return err
}

// Kill writes the kill file under dir, stopping a solve watching it.
func Kill(dir string) error {
	signalsDir := filepath.Join(dir, "signals")
	if err := os.MkdirAll(signalsDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(signalsDir, killFile), []byte(time.Now().Format(time.RFC3339)), 0644)
}
