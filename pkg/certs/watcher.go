package certs

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads certificate pairs when files in the certificate directory
// change. This lets an external ACME client drop renewed certificates into
// the directory and have the running HTTPS listener pick them up without a
// restart.
type Watcher struct {
	manager *Manager
	watcher *fsnotify.Watcher

	// debounce interval: cert and key are written as two events close
	// together, reload once after the burst settles.
	settle time.Duration
}

// NewWatcher creates a watcher over the manager's certificate directory.
func NewWatcher(m *Manager) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if err := fw.Add(m.Dir()); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch certificate directory: %w", err)
	}

	return &Watcher{
		manager: m,
		watcher: fw,
		settle:  500 * time.Millisecond,
	}, nil
}

// Start processes filesystem events until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Watcher) run(ctx context.Context) {
	defer w.watcher.Close()

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.shouldProcess(event) {
				continue
			}
			pending[pairName(event.Name)] = struct{}{}
			if timer == nil {
				timer = time.NewTimer(w.settle)
			} else {
				timer.Reset(w.settle)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			for name := range pending {
				if err := w.manager.loadPair(name); err != nil {
					w.manager.logger.Warn("failed to reload certificate pair",
						"name", name, "error", err)
				} else {
					w.manager.logger.Info("certificate pair reloaded", "name", name)
				}
				delete(pending, name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.manager.logger.Warn("certificate watcher error", "error", err)
		}
	}
}

// shouldProcess filters events down to writes/creates of cert or key files.
func (w *Watcher) shouldProcess(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return false
	}
	ext := filepath.Ext(event.Name)
	return ext == ".crt" || ext == ".key"
}

// pairName maps a cert or key file path to the pair's base name.
func pairName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
