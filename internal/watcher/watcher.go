// Package watcher turns directories into PDF inboxes: files dropped into a
// watched directory are ingested once and then moved aside.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Subdirectories of each inbox root that receive handled files.
const (
	ProcessedDir = ".processed"
	FailedDir    = ".failed"
)

// IngestFunc ingests the PDF at path.
type IngestFunc func(ctx context.Context, path string) error

// Inbox watches root directories for new PDFs.
type Inbox struct {
	roots     []string
	recursive bool
	ingest    IngestFunc
	debounce  time.Duration
	watcher   *fsnotify.Watcher
	ctx       context.Context
	mu        sync.Mutex
	pending   map[string]*time.Timer
	inflight  map[string]bool
	rootPaths map[string][]string // root -> directories added to fsnotify
	done      chan struct{}
	started   bool
	stopOnce  sync.Once
	logger    *zap.Logger
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithLogger sets the logger for inbox events.
func WithLogger(l *zap.Logger) Option {
	return func(in *Inbox) { in.logger = l }
}

// WithDebounce sets how long a file must be quiet before it is ingested.
func WithDebounce(d time.Duration) Option {
	return func(in *Inbox) {
		if d > 0 {
			in.debounce = d
		}
	}
}

// NewInbox creates an inbox over roots. Missing roots are created on Start.
func NewInbox(roots []string, recursive bool, ingest IngestFunc, opts ...Option) *Inbox {
	in := &Inbox{
		roots:     append([]string(nil), roots...),
		recursive: recursive,
		ingest:    ingest,
		debounce:  defaultDebounce,
		pending:   make(map[string]*time.Timer),
		inflight:  make(map[string]bool),
		rootPaths: make(map[string][]string),
		done:      make(chan struct{}),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Start begins watching and ingests PDFs already waiting in the roots. It
// runs until ctx is cancelled or Stop is called.
func (in *Inbox) Start(ctx context.Context) error {
	in.mu.Lock()
	if in.started {
		in.mu.Unlock()
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		in.mu.Unlock()
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	in.watcher = w
	in.ctx = ctx
	in.started = true
	for i, root := range in.roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			abs = root
		}
		abs = filepath.Clean(abs)
		if err := in.addRootLocked(abs); err != nil {
			_ = w.Close()
			in.watcher = nil
			in.started = false
			in.mu.Unlock()
			return err
		}
		in.roots[i] = abs
	}
	roots := append([]string(nil), in.roots...)
	in.mu.Unlock()

	in.logger.Info("inbox watching", zap.Strings("roots", roots), zap.Bool("recursive", in.recursive))
	go in.run(ctx)
	go func() {
		for _, root := range roots {
			in.syncDirectory(root)
		}
	}()
	return nil
}

func (in *Inbox) run(ctx context.Context) {
	in.mu.Lock()
	w := in.watcher
	in.mu.Unlock()
	if w == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			in.Stop()
			return
		case <-in.done:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			in.handleEvent(ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			in.logger.Warn("inbox watch error", zap.Error(err))
		}
	}
}

func (in *Inbox) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	root, ok := in.rootOf(path)
	if !ok || hiddenPath(root, path) {
		return
	}
	in.logger.Debug("inbox event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			if in.recursive {
				in.watchNewDirectory(path)
			}
			return
		}
		if IsPDF(path) {
			in.schedule(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		in.cancel(path)
	}
}

func (in *Inbox) watchNewDirectory(dir string) {
	in.mu.Lock()
	w := in.watcher
	in.mu.Unlock()
	if w == nil {
		return
	}
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.Add(path); err != nil {
				in.logger.Debug("inbox failed to watch directory", zap.String("path", path), zap.Error(err))
			}
		}
		return nil
	})
	in.syncDirectory(dir)
}

// IsPDF reports whether path has a .pdf extension, ignoring case.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// hiddenPath reports whether any element of path below root starts with a
// dot. The processed and failed folders are hidden, so files moved there are
// never picked up again.
func hiddenPath(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, p := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasPrefix(p, ".") {
			return true
		}
	}
	return false
}

func (in *Inbox) rootOf(path string) (string, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for _, root := range in.roots {
		if root == path || inDir(root, path) {
			return root, true
		}
	}
	return "", false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (in *Inbox) schedule(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.pending[path]; ok {
		t.Stop()
	}
	in.pending[path] = time.AfterFunc(in.debounce, func() {
		in.mu.Lock()
		delete(in.pending, path)
		in.mu.Unlock()
		in.process(path)
	})
}

func (in *Inbox) cancel(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if t, ok := in.pending[path]; ok {
		t.Stop()
		delete(in.pending, path)
	}
}

// process ingests path once and moves it into the processed or failed folder.
func (in *Inbox) process(path string) {
	in.mu.Lock()
	if in.inflight[path] || !in.started {
		in.mu.Unlock()
		return
	}
	in.inflight[path] = true
	ctx := in.ctx
	in.mu.Unlock()
	defer func() {
		in.mu.Lock()
		delete(in.inflight, path)
		in.mu.Unlock()
	}()

	if _, err := os.Stat(path); err != nil {
		return
	}
	root, ok := in.rootOf(path)
	if !ok {
		return
	}

	dest := ProcessedDir
	if err := in.ingest(ctx, path); err != nil {
		if ctx.Err() != nil {
			return
		}
		in.logger.Error("inbox ingest failed", zap.String("path", path), zap.Error(err))
		dest = FailedDir
	} else {
		in.logger.Info("inbox file ingested", zap.String("path", path))
	}
	moved, err := moveInto(filepath.Join(root, dest), path)
	if err != nil {
		in.logger.Error("inbox failed to move file", zap.String("path", path), zap.Error(err))
		return
	}
	in.logger.Debug("inbox file moved", zap.String("from", path), zap.String("to", moved))
}

// moveInto renames path into dir, prefixing a timestamp when the name is taken.
func moveInto(dir, path string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	target := filepath.Join(dir, filepath.Base(path))
	if _, err := os.Stat(target); err == nil {
		target = filepath.Join(dir, time.Now().UTC().Format("20060102T150405.000000000")+"_"+filepath.Base(path))
	}
	if err := os.Rename(path, target); err != nil {
		return "", err
	}
	return target, nil
}

func (in *Inbox) syncDirectory(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || !in.recursive) {
				return filepath.SkipDir
			}
			return nil
		}
		if IsPDF(path) && !strings.HasPrefix(d.Name(), ".") {
			in.process(filepath.Clean(path))
		}
		return nil
	})
}

// AddDirectory adds an inbox root and optionally ingests the PDFs already in it.
func (in *Inbox) AddDirectory(root string, syncExisting bool) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.watcher == nil {
		return fmt.Errorf("inbox not started")
	}
	for _, r := range in.roots {
		if r == abs {
			return nil
		}
	}
	if err := in.addRootLocked(abs); err != nil {
		return err
	}
	in.roots = append(in.roots, abs)
	in.logger.Info("inbox directory added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting {
		go in.syncDirectory(abs)
	}
	return nil
}

func (in *Inbox) addRootLocked(root string) error {
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("create inbox %s: %w", root, err)
	}
	var paths []string
	if in.recursive {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if err := in.watcher.Add(path); err != nil {
				return err
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		if err := in.watcher.Add(root); err != nil {
			return err
		}
		paths = append(paths, root)
	}
	in.rootPaths[root] = paths
	return nil
}

// RemoveDirectory stops watching root. Documents already ingested from it are kept.
func (in *Inbox) RemoveDirectory(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	abs = filepath.Clean(abs)
	in.mu.Lock()
	defer in.mu.Unlock()
	idx := -1
	for i, r := range in.roots {
		if r == abs {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	if in.watcher != nil {
		for _, p := range in.rootPaths[abs] {
			_ = in.watcher.Remove(p)
		}
	}
	delete(in.rootPaths, abs)
	in.roots = append(in.roots[:idx], in.roots[idx+1:]...)
	in.logger.Info("inbox directory removed", zap.String("path", abs))
	return nil
}

// Directories returns a copy of the watched roots.
func (in *Inbox) Directories() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.roots...)
}

// Stop stops watching and drops pending debounced files.
func (in *Inbox) Stop() {
	in.mu.Lock()
	if !in.started || in.watcher == nil {
		in.mu.Unlock()
		return
	}
	for path, t := range in.pending {
		t.Stop()
		delete(in.pending, path)
	}
	_ = in.watcher.Close()
	in.watcher = nil
	in.started = false
	in.mu.Unlock()
	in.stopOnce.Do(func() { close(in.done) })
}
