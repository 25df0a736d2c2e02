package handlers

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"personal/botkit/src/issue"
	"personal/botkit/src/logging"
)

const reloadDebounce = 200 * time.Millisecond

// Live is a Registry that serves the most recently loaded project and
// reloads it when files change. Lookups never block on a reload.
type Live struct {
	dir      string
	reporter issue.Reporter
	current  atomic.Pointer[Set]
	logger   zerolog.Logger
}

func NewLive(dir string, reporter issue.Reporter) (*Live, error) {
	if reporter == nil {
		reporter = issue.Nop
	}
	l := &Live{
		dir:      dir,
		reporter: reporter,
		logger:   logging.WithComponent("handlers").With().Str(logging.FieldPath, dir).Logger(),
	}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Live) LookupEvent(event string) (Handler, bool) {
	return l.current.Load().LookupEvent(event)
}

func (l *Live) LookupCommand(command string) (Handler, bool) {
	return l.current.Load().LookupCommand(command)
}

// Current returns the set being served.
func (l *Live) Current() *Set {
	return l.current.Load()
}

// Reload loads the project again and swaps it in. On failure the previous
// set stays active.
func (l *Live) Reload() error {
	set, err := LoadProject(l.dir, l.reporter)
	if err != nil {
		return err
	}
	l.current.Store(set)
	l.logger.Info().
		Int("events", len(set.Events())).
		Int("commands", len(set.Commands())).
		Msg("handlers loaded")
	return nil
}

// Watch reloads the project whenever a file below it changes, until ctx is
// cancelled. Bursts of changes are coalesced.
func (l *Live) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch handlers: %w", err)
	}
	defer watcher.Close()

	if err := addTree(watcher, l.dir); err != nil {
		return fmt.Errorf("watch handlers: %w", err)
	}

	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				// New directories need their own watch.
				_ = addTree(watcher, ev.Name)
			}
			if !relevant(ev) {
				continue
			}
			l.logger.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("handler change")
			timer.Reset(reloadDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn().Err(err).Msg("watcher error")
		case <-timer.C:
			if err := l.Reload(); err != nil {
				l.reporter.Report(issue.Issue{
					Severity:    issue.Error,
					Stage:       issue.StageStructure,
					Title:       "Reload failed",
					Description: err.Error(),
					Path:        l.dir,
				})
			}
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return false
	}
	ext := filepath.Ext(ev.Name)
	// Removing or renaming a directory arrives without an extension.
	return ext == ScriptExt || (ext == "" && !ev.Has(fsnotify.Write))
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if d.Name() == "node_modules" {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
