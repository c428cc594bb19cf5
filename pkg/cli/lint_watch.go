package cli

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/githubnext/gh-uses/pkg/console"
	"github.com/githubnext/gh-uses/pkg/constants"
	"github.com/githubnext/gh-uses/pkg/diagnostic"
	"github.com/githubnext/gh-uses/pkg/logger"
	"github.com/githubnext/gh-uses/pkg/scan"
)

var watchLog = logger.NewSlogLogger("cli:lint_watch")

// changeWatcher collects file system events below a root and reports the
// changed files once no event has arrived for the debounce interval.
type changeWatcher struct {
	root     string
	fsw      *fsnotify.Watcher
	debounce time.Duration
	log      *slog.Logger
	pending  map[string]struct{}
}

func newChangeWatcher(root string, debounce time.Duration) (*changeWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &changeWatcher{
		root:     root,
		fsw:      fsw,
		debounce: debounce,
		log:      watchLog,
		pending:  make(map[string]struct{}),
	}
	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// addRecursive watches dir and every directory below it that discovery
// would walk.
func (w *changeWatcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && slices.Contains(constants.SkippedDirs, d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// relevant reports whether a change to path can change the scan result.
func relevant(path string) bool {
	name := filepath.Base(path)
	if slices.Contains(constants.ConfigFileNames, name) {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yml" || ext == ".yaml"
}

// handle records event and reports whether it should trigger a scan.
func (w *changeWatcher) handle(event fsnotify.Event) bool {
	if event.Has(fsnotify.Create) {
		if isDir, err := statDir(event.Name); err == nil && isDir {
			if !slices.Contains(constants.SkippedDirs, filepath.Base(event.Name)) {
				if err := w.addRecursive(event.Name); err != nil {
					w.log.Warn("failed to watch new directory", "path", event.Name, "error", err)
				}
			}
			return false
		}
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	if !relevant(event.Name) {
		return false
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		rel = event.Name
	}
	w.pending[filepath.ToSlash(rel)] = struct{}{}
	return true
}

func (w *changeWatcher) drain() []string {
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	clear(w.pending)
	slices.Sort(paths)
	return paths
}

// Run delivers batches of changed files to onChange until ctx is done.
// onChange runs on the calling goroutine, so batches never overlap.
func (w *changeWatcher) Run(ctx context.Context, onChange func(paths []string)) error {
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.handle(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error("watcher error", "error", err)
		case <-fire:
			fire = nil
			if paths := w.drain(); len(paths) > 0 {
				onChange(paths)
			}
		}
	}
}

func (w *changeWatcher) Close() error {
	return w.fsw.Close()
}

// watchAndLint reports one scan, then re-scans after every batch of
// changes until ctx is canceled. The configuration is reloaded for each
// scan, so edits to it take effect without a restart.
func watchAndLint(ctx context.Context, scanner *scan.Scanner, reporter diagnostic.Reporter, lintConfig LintConfig) error {
	w, err := newChangeWatcher(scanner.Root(), constants.DefaultWatchDebounce)
	if err != nil {
		return err
	}
	defer w.Close()

	runOnce := func(s *scan.Scanner) {
		if _, err := s.RunAndReport(ctx, reporter); err != nil && ctx.Err() == nil {
			PrintCommandError(lintConfig.Stderr, err)
		}
	}

	runOnce(scanner)
	fmt.Fprintln(lintConfig.Stderr, console.FormatInfoMessage("Watching "+scanner.Root()+" for changes (press Ctrl+C to stop)"))

	return w.Run(ctx, func(paths []string) {
		watchLog.Info("change detected", "files", len(paths), "first", paths[0])
		fmt.Fprintln(lintConfig.Stderr, console.FormatInfoMessage(fmt.Sprintf("Change detected in %s, re-scanning", describeChanges(paths))))

		next, err := newLintScanner(lintConfig)
		if err != nil {
			PrintCommandError(lintConfig.Stderr, err)
			return
		}
		runOnce(next)
	})
}

func describeChanges(paths []string) string {
	if len(paths) == 1 {
		return paths[0]
	}
	return fmt.Sprintf("%s and %d more", paths[0], len(paths)-1)
}

func statDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}
