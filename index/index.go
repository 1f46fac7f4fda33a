package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/seqindex/bktree"
)

const (
	// LiveName is the snapshot name the index loads from.
	LiveName = "idx"
	// TempName is the snapshot name builders write before promotion.
	TempName = "idx_new"
	ext      = ".idx"
)

// Stats describes the installed tree.
type Stats struct {
	Entries    int       `json:"entries"`
	Generation uint64    `json:"generation"`
	LoadedAt   time.Time `json:"loadedAt"`
}

type installed struct {
	tree       *bktree.Tree
	generation uint64
	loadedAt   time.Time
}

// Index is the shared, swappable handle on the live tree.
//
// Readers call Find against whichever tree is installed at that moment;
// installation replaces the tree pointer in a single atomic store and never
// mutates a tree that readers can see.
type Index struct {
	dir        string
	fs         afs.Service
	current    atomic.Pointer[installed]
	generation atomic.Uint64
	mux        sync.Mutex
	logf       func(format string, args ...any)
}

// Dir returns the directory holding snapshot files.
func (i *Index) Dir() string {
	return i.dir
}

// Loaded reports whether a tree has been installed.
func (i *Index) Loaded() bool {
	return i.current.Load() != nil
}

// Load installs the live snapshot, or an empty tree when none exists yet.
// It is a no-op when a tree is already installed unless force is set.
func (i *Index) Load(ctx context.Context, force bool) error {
	i.mux.Lock()
	defer i.mux.Unlock()
	if i.Loaded() && !force {
		return nil
	}
	URL := i.path(LiveName)
	ok, err := i.exists(ctx, URL)
	if err != nil {
		return err
	}
	if !ok {
		i.install(bktree.New())
		i.printf("index: no snapshot at %s, starting empty", URL)
		return nil
	}
	data, err := i.fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return fmt.Errorf("failed to read snapshot %s: %w", URL, err)
	}
	tree, err := Decode(data)
	if err != nil {
		return fmt.Errorf("failed to decode snapshot %s: %w", URL, err)
	}
	i.install(tree)
	i.printf("index: loaded %d entries from %s (generation=%d)", tree.Len(), URL, i.generation.Load())
	return nil
}

// Find returns the entries of the installed tree within maxDistance of query.
func (i *Index) Find(query string, maxDistance int) []bktree.Match {
	current := i.current.Load()
	if current == nil {
		return nil
	}
	return current.tree.Find(query, maxDistance)
}

// Stats returns a description of the installed tree.
func (i *Index) Stats() Stats {
	current := i.current.Load()
	if current == nil {
		return Stats{}
	}
	return Stats{Entries: current.tree.Len(), Generation: current.generation, LoadedAt: current.loadedAt}
}

// Generation returns the install counter; it changes on every Load.
func (i *Index) Generation() uint64 {
	if current := i.current.Load(); current != nil {
		return current.generation
	}
	return 0
}

// Save writes the installed tree under name. Promote moves it into the live slot.
func (i *Index) Save(ctx context.Context, name string) error {
	current := i.current.Load()
	tree := bktree.New()
	if current != nil {
		tree = current.tree
	}
	return i.SaveTree(ctx, tree, name)
}

// SaveTree writes tree under name without installing it.
func (i *Index) SaveTree(ctx context.Context, tree *bktree.Tree, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	data, err := Encode(tree)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	URL := i.path(name)
	ok, err := i.exists(ctx, URL)
	if err != nil {
		return err
	}
	if ok {
		if err := i.fs.Delete(ctx, URL); err != nil {
			return fmt.Errorf("failed to replace snapshot %s: %w", URL, err)
		}
	}
	if err := i.fs.Upload(ctx, URL, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", URL, err)
	}
	return nil
}

// Promote atomically renames snapshot name over the live snapshot, so a
// concurrent Load observes either the previous or the new file in full.
func (i *Index) Promote(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	source, dest := i.path(name), i.path(LiveName)
	if err := os.Rename(source, dest); err != nil {
		return fmt.Errorf("failed to promote %s: %w", source, err)
	}
	return nil
}

// Remove deletes snapshot name if present.
func (i *Index) Remove(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	URL := i.path(name)
	ok, err := i.exists(ctx, URL)
	if err != nil || !ok {
		return err
	}
	return i.fs.Delete(ctx, URL)
}

// exists reports whether URL is present. Only a not-exist error means
// absent; any other storage failure is returned.
func (i *Index) exists(ctx context.Context, URL string) (bool, error) {
	if _, err := i.fs.Object(ctx, URL); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat snapshot %s: %w", URL, err)
	}
	return true, nil
}

func (i *Index) install(tree *bktree.Tree) {
	i.current.Store(&installed{tree: tree, generation: i.generation.Add(1), loadedAt: time.Now()})
}

func (i *Index) path(name string) string {
	return filepath.Join(i.dir, name+ext)
}

func (i *Index) printf(format string, args ...any) {
	if i.logf != nil {
		i.logf(format, args...)
	}
}

func validateName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// New creates an Index over dir, creating the directory when missing.
// The index holds no tree until Load is called.
func New(dir string, opts ...Option) (*Index, error) {
	if dir == "" {
		return nil, fmt.Errorf("index: dir is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("index: mkdir: %w", err)
	}
	ret := &Index{dir: abs, fs: afs.New()}
	for _, opt := range opts {
		opt(ret)
	}
	return ret, nil
}
