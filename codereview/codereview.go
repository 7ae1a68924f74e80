// Package codereview keeps review templates, queue markers and review results
// as plain files under a single directory:
//
//	<root>/prompt.txt        single-commit template
//	<root>/prompt_multi.txt  multi-commit template
//	<root>/queue/<hash>      marker: review requested
//	<root>/results/<hash>    finished review text
//
// The queue is cooperative. A marker may be reviewed twice if two workers race,
// and a crash between review and save leaves it queued.
package codereview

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hupe1980/reviewmesh/core"
	"github.com/hupe1980/reviewmesh/logging"
)

const (
	singlePromptFile = "prompt.txt"
	multiPromptFile  = "prompt_multi.txt"
	queueDir         = "queue"
	resultsDir       = "results"
)

// Options configures a Dir.
type Options struct {
	Logger logging.Logger
	// Settle is how long a queue marker must be quiet before Watch reports it.
	Settle time.Duration
}

// Dir is a file-backed core.ReviewStore.
type Dir struct {
	root string
	opts Options
	mu   sync.Mutex
}

var _ core.ReviewStore = (*Dir)(nil)

// DefaultSettle is the quiet period Watch waits for when Options.Settle is unset.
const DefaultSettle = 100 * time.Millisecond

// New returns a Dir rooted at root. Call Init to create the layout.
func New(root string, optFns ...func(o *Options)) *Dir {
	opts := Options{
		Settle: DefaultSettle,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Settle <= 0 {
		opts.Settle = DefaultSettle
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Dir{root: root, opts: opts}
}

// Root returns the directory path.
func (d *Dir) Root() string { return d.root }

// Init creates the queue and results directories.
func (d *Dir) Init() error {
	for _, sub := range []string{queueDir, resultsDir} {
		if err := os.MkdirAll(filepath.Join(d.root, sub), 0o755); err != nil {
			return fmt.Errorf("create %s directory: %w", sub, err)
		}
	}
	return nil
}

// Prompts returns the stored single and multi-commit templates. Missing files
// yield empty strings.
func (d *Dir) Prompts() (single, multi string, err error) {
	single, err = d.readOptional(filepath.Join(d.root, singlePromptFile))
	if err != nil {
		return "", "", err
	}
	multi, err = d.readOptional(filepath.Join(d.root, multiPromptFile))
	if err != nil {
		return "", "", err
	}
	return single, multi, nil
}

// SavePrompts stores both templates. An empty template removes its file.
func (d *Dir) SavePrompts(single, multi string) error {
	for name, content := range map[string]string{singlePromptFile: single, multiPromptFile: multi} {
		path := filepath.Join(d.root, name)
		if content == "" {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			continue
		}
		if err := writeAtomic(path, []byte(content)); err != nil {
			return err
		}
	}
	return nil
}

// QueueReview writes the queue marker for hash.
func (d *Dir) QueueReview(_ context.Context, hash string) error {
	path, err := d.path(queueDir, hash)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(hash), 0o644)
}

// IsQueued reports whether a marker exists for hash.
func (d *Dir) IsQueued(_ context.Context, hash string) (bool, error) {
	path, err := d.path(queueDir, hash)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// SaveResult stores the review and clears the queue marker.
func (d *Dir) SaveResult(_ context.Context, hash, review string) error {
	resultPath, err := d.path(resultsDir, hash)
	if err != nil {
		return err
	}
	queuePath, _ := d.path(queueDir, hash)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(resultPath), 0o755); err != nil {
		return err
	}
	if err := writeAtomic(resultPath, []byte(review)); err != nil {
		return err
	}
	if err := os.Remove(queuePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear queue marker: %w", err)
	}
	return nil
}

// Result returns the stored review for hash.
func (d *Dir) Result(_ context.Context, hash string) (string, bool, error) {
	path, err := d.path(resultsDir, hash)
	if err != nil {
		return "", false, err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(b), true, nil
}

// Pending lists queued hashes, oldest marker first. Entries that are not
// commit hashes are ignored.
func (d *Dir) Pending() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(d.root, queueDir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	type marker struct {
		hash string
		mod  time.Time
	}
	markers := make([]marker, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !core.IsCommitHash(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed while listing
			continue
		}
		markers = append(markers, marker{hash: e.Name(), mod: info.ModTime()})
	}
	sort.SliceStable(markers, func(i, j int) bool {
		if markers[i].mod.Equal(markers[j].mod) {
			return markers[i].hash < markers[j].hash
		}
		return markers[i].mod.Before(markers[j].mod)
	})

	hashes := make([]string, len(markers))
	for i, m := range markers {
		hashes[i] = m.hash
	}
	return hashes, nil
}

// Watch reports hashes queued after the call. The watch is established before
// Watch returns; the channel is closed once ctx is done.
func (d *Dir) Watch(ctx context.Context) (<-chan string, error) {
	dir := filepath.Join(d.root, queueDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	out := make(chan string)
	go d.watch(ctx, watcher, out)
	return out, nil
}

func (d *Dir) watch(ctx context.Context, watcher *fsnotify.Watcher, out chan<- string) {
	defer close(out)
	defer func() { _ = watcher.Close() }()

	ticker := time.NewTicker(max(d.opts.Settle/2, time.Millisecond))
	defer ticker.Stop()

	// hash -> time of last event
	seen := map[string]time.Time{}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			hash := filepath.Base(event.Name)
			if !core.IsCommitHash(hash) {
				continue
			}
			d.opts.Logger.Debug("review queued", "hash", hash, "op", event.Op.String())
			seen[hash] = time.Now()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			d.opts.Logger.Error("queue watcher error", "error", err)

		case now := <-ticker.C:
			ready := make([]string, 0, len(seen))
			for hash, at := range seen {
				if now.Sub(at) >= d.opts.Settle {
					ready = append(ready, hash)
				}
			}
			sort.Strings(ready)
			for _, hash := range ready {
				delete(seen, hash)
				select {
				case out <- hash:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (d *Dir) path(sub, hash string) (string, error) {
	if !core.IsCommitHash(hash) {
		return "", core.NewValidationError("invalid commit hash %q", hash)
	}
	return filepath.Join(d.root, sub, hash), nil
}

func (d *Dir) readOptional(path string) (string, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
