package builder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/viant/seqindex/bktree"
	"github.com/viant/seqindex/fasta"
	"github.com/viant/seqindex/index"
	"github.com/viant/seqindex/job"
	"github.com/viant/seqindex/store"
)

const (
	defaultBatchSize = 500
	lockName         = "build.lock"
)

// Request describes one build.
type Request struct {
	// Job is the record created when the upload was accepted.
	Job *job.Job
	// Path is the local FASTA file to index.
	Path string
	// Remove deletes Path once the build ends.
	Remove bool
}

// Outcome summarises a finished build.
type Outcome struct {
	Status   job.Status
	Records  int
	Elapsed  time.Duration
	Snapshot *job.Job
}

// Builder rebuilds the index from a FASTA file and reports progress
// through the job record.
type Builder struct {
	index     *index.Index
	sequences store.SequenceStore
	jobs      job.Store
	batchSize int
	timeout   time.Duration
	lockPath  string
	logf      func(format string, args ...any)
	observe   func(outcome *Outcome)
}

// Build runs the pipeline for req. Failures end in a FAILED job and are
// never returned; the job record is the only failure channel.
func (b *Builder) Build(ctx context.Context, req Request) (outcome *Outcome) {
	started := time.Now()
	tracker := job.NewTracker(b.jobs, req.Job)
	records := 0
	defer func() {
		if r := recover(); r != nil {
			b.fail(ctx, tracker, fmt.Errorf("build panic: %v", r))
		}
		if req.Remove && req.Path != "" {
			_ = os.Remove(req.Path)
		}
		snapshot := tracker.Snapshot()
		outcome = &Outcome{Status: snapshot.Status, Records: records, Elapsed: time.Since(started), Snapshot: snapshot}
		b.printf("builder: run %s finished %s (%d records, %s)", snapshot.Run, snapshot.Status, records, outcome.Elapsed)
		if b.observe != nil {
			b.observe(outcome)
		}
	}()
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	var err error
	if records, err = b.run(ctx, tracker, req); err != nil {
		b.fail(ctx, tracker, err)
	}
	return outcome
}

func (b *Builder) run(ctx context.Context, tracker *job.Tracker, req Request) (int, error) {
	parsed, err := b.parse(req.Path)
	if err != nil {
		return 0, err
	}
	total := len(parsed)
	if err := tracker.Advance(ctx, job.SavingFile, job.SavingFilePercent, fmt.Sprintf("saving %d sequences", total)); err != nil {
		return 0, err
	}
	tree, err := b.insert(ctx, tracker, parsed)
	if err != nil {
		return 0, err
	}
	if err := tracker.Advance(ctx, job.FinishedInsert, job.FinishedInsertPercent, "saving index to disk"); err != nil {
		return total, err
	}

	lock := &fileLock{path: b.lockPath}
	if err := lock.acquire(ctx); err != nil {
		return total, err
	}
	defer func() { _ = lock.release() }()

	if err := b.index.SaveTree(ctx, tree, index.TempName); err != nil {
		return total, err
	}
	if err := tracker.Advance(ctx, job.FinishedSave, job.FinishedSavePercent, "saved index to disk"); err != nil {
		return total, err
	}
	if err := b.index.Promote(ctx, index.TempName); err != nil {
		return total, err
	}
	if err := tracker.Advance(ctx, job.ReloadingIndex, job.ReloadingIndexPercent, "reloading index"); err != nil {
		return total, err
	}
	if err := b.index.Load(ctx, true); err != nil {
		return total, err
	}
	return total, tracker.Advance(ctx, job.Done, job.DonePercent, fmt.Sprintf("indexed %d sequences", total))
}

func (b *Builder) parse(path string) ([]*fasta.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()
	records, err := fasta.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return records, nil
}

// insert persists records in batches and adds them, in file order, to a
// fresh tree that no reader can see yet.
func (b *Builder) insert(ctx context.Context, tracker *job.Tracker, records []*fasta.Record) (*bktree.Tree, error) {
	tree := bktree.New()
	batch := make([]*store.Sequence, 0, b.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := b.sequences.PutSequences(ctx, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}
	now := time.Now()
	for i, record := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch = append(batch, &store.Sequence{
			ID:          record.ID,
			Sequence:    record.Sequence,
			Description: record.Description,
			Length:      len(record.Sequence),
			ModifiedAt:  now,
		})
		tree.Add(bktree.Entry{Name: record.ID, Sequence: record.Sequence})
		if len(batch) >= b.batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		if err := tracker.Progress(ctx, i+1, len(records)); err != nil {
			return nil, err
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return tree, nil
}

func (b *Builder) fail(ctx context.Context, tracker *job.Tracker, cause error) {
	cleanup := context.WithoutCancel(ctx)
	if err := b.index.Remove(cleanup, index.TempName); err != nil {
		b.printf("builder: failed to remove %s: %v", index.TempName, err)
	}
	if err := tracker.Fail(cleanup, cause); err != nil {
		b.printf("builder: failed to record failure %v: %v", cause, err)
	}
	b.printf("builder: build failed: %v", cause)
}

func (b *Builder) printf(format string, args ...any) {
	if b.logf != nil {
		b.logf(format, args...)
	}
}

// New creates a Builder installing into idx.
func New(idx *index.Index, sequences store.SequenceStore, jobs job.Store, opts ...Option) *Builder {
	ret := &Builder{
		index:     idx,
		sequences: sequences,
		jobs:      jobs,
		batchSize: defaultBatchSize,
		lockPath:  filepath.Join(idx.Dir(), lockName),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.batchSize <= 0 {
		ret.batchSize = defaultBatchSize
	}
	return ret
}
