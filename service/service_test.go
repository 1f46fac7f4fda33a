package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/seqindex/builder"
	"github.com/viant/seqindex/index"
	"github.com/viant/seqindex/job"
	"github.com/viant/seqindex/store"
)

type harness struct {
	service *Service
	store   *store.DB
	index   *index.Index
	worker  *builder.Worker
	done    chan *builder.Outcome
}

func newHarness(t *testing.T, start bool) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	dir := t.TempDir()
	db, err := store.Open(ctx, "sqlite", filepath.Join(dir, "seq.sqlite"))
	require.NoError(t, err)
	idx, err := index.New(filepath.Join(dir, "index"))
	require.NoError(t, err)
	done := make(chan *builder.Outcome, 4)
	worker := builder.NewWorker(builder.New(idx, db, db, builder.WithObserver(func(o *builder.Outcome) { done <- o })))
	if start {
		worker.Start(ctx)
	}
	t.Cleanup(func() {
		cancel()
		worker.Close()
		_ = db.Close()
	})
	svc, err := NewService(WithStore(db), WithIndex(idx), WithWorker(worker), WithCacheSize(8))
	require.NoError(t, err)
	require.NoError(t, svc.Recover(ctx))
	return &harness{service: svc, store: db, index: idx, worker: worker, done: done}
}

func (h *harness) wait(t *testing.T) *builder.Outcome {
	t.Helper()
	select {
	case outcome := <-h.done:
		return outcome
	case <-time.After(10 * time.Second):
		t.Fatalf("build did not finish")
	}
	return nil
}

func TestService_UploadQuery(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)

	status, err := h.service.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, status)

	result, err := h.service.Upload(ctx, &UploadRequest{Name: "seqs.fasta", Reader: strings.NewReader(">A alpha\nACGT\n>B\nACGA\n")})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, job.Starting, result.Job.Status)
	assert.Equal(t, "seqs.fasta", result.Job.File)
	assert.Equal(t, job.Done, h.wait(t).Status)

	status, err = h.service.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, status, "terminal job reports no outstanding build")
	last, err := h.service.Job(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.Done, last.Status)

	one := 1
	results, err := h.service.Query(ctx, &QueryRequest{Sequence: "ACGT", Distance: &one})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, &QueryResult{ID: "A", Sequence: "ACGT", Description: "alpha", Length: 4, Distance: 0}, results[0])
	assert.Equal(t, "B", results[1].ID)
	assert.Equal(t, 1, results[1].Distance)

	results, err = h.service.Query(ctx, &QueryRequest{Sequence: "ACGT"})
	require.NoError(t, err)
	assert.Len(t, results, 2, "default distance covers everything")

	record, err := h.service.Sequence(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, "ACGA", record.Sequence)
	_, err = h.service.Sequence(ctx, "Z")
	assert.ErrorIs(t, err, store.ErrNotFound)

	stats, err := h.service.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Sequences)
	assert.Equal(t, 2, stats.Index.Entries)
}

func TestService_UploadWhileActive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)

	first, err := h.service.Upload(ctx, &UploadRequest{Name: "a.fasta", Reader: strings.NewReader(">A\nACGT\n")})
	require.NoError(t, err)
	require.True(t, first.Accepted)

	second, err := h.service.Upload(ctx, &UploadRequest{Name: "b.fasta", Reader: strings.NewReader(">B\nACGA\n")})
	require.NoError(t, err)
	assert.False(t, second.Accepted)
	assert.Equal(t, first.Job.Run, second.Job.Run)

	status, err := h.service.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, first.Job.Run, status.Run)
}

func TestService_Query_Invalid(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	negative := -1
	for _, req := range []*QueryRequest{nil, {}, {Sequence: "   "}, {Sequence: "ACGT", Distance: &negative}} {
		_, err := h.service.Query(ctx, req)
		assert.ErrorIs(t, err, ErrInvalidQuery)
		assert.True(t, IsClientError(err))
	}
	_, err := h.service.Upload(ctx, &UploadRequest{Name: "x"})
	assert.ErrorIs(t, err, ErrInvalidUpload)
}

func TestService_QueryEmptyIndex(t *testing.T) {
	h := newHarness(t, false)
	results, err := h.service.Query(context.Background(), &QueryRequest{Sequence: "ACGT"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestService_QueryCacheFollowsGeneration(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	_, err := h.service.Upload(ctx, &UploadRequest{Name: "a.fasta", Reader: strings.NewReader(">A\nACGT\n")})
	require.NoError(t, err)
	h.wait(t)

	zero := 0
	results, err := h.service.Query(ctx, &QueryRequest{Sequence: "ACGT", Distance: &zero})
	require.NoError(t, err)
	require.Len(t, results, 1)
	results[0].ID = "mutated"
	assert.Equal(t, 1, h.service.cache.len())

	results, err = h.service.Query(ctx, &QueryRequest{Sequence: "ACGT", Distance: &zero})
	require.NoError(t, err)
	assert.Equal(t, "A", results[0].ID)

	_, err = h.service.Upload(ctx, &UploadRequest{Name: "b.fasta", Reader: strings.NewReader(">A2\nACGT\n>A3\nACGT\n")})
	require.NoError(t, err)
	h.wait(t)
	results, err = h.service.Query(ctx, &QueryRequest{Sequence: "ACGT", Distance: &zero})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestService_RecoverFailsDanglingJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	_, started, err := h.store.StartJob(ctx, job.New("crashed", "a.fasta", time.Now()))
	require.NoError(t, err)
	require.True(t, started)

	require.NoError(t, h.service.Recover(ctx))
	last, err := h.service.Job(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.Failed, last.Status)
	assert.Equal(t, restartMessage, last.Message)

	result, err := h.service.Upload(ctx, &UploadRequest{Name: "b.fasta", Reader: strings.NewReader(">B\nACGA\n")})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
}

type readOnlyFS struct {
	afs.Service
}

func (readOnlyFS) Upload(ctx context.Context, URL string, mode os.FileMode, reader io.Reader, options ...storage.Option) error {
	return fmt.Errorf("read-only file system")
}

func TestService_UploadStagingFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	svc, err := NewService(WithStore(h.store), WithIndex(h.index), WithWorker(h.worker), WithFS(readOnlyFS{Service: afs.New()}))
	require.NoError(t, err)

	_, err = svc.Upload(ctx, &UploadRequest{Name: "a.fasta", Reader: strings.NewReader(">A\nACGT\n")})
	require.Error(t, err)
	failed, err := h.service.Job(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.Failed, failed.Status)
	assert.Contains(t, failed.Message, "failed to stage upload")

	result, err := h.service.Upload(ctx, &UploadRequest{Name: "b.fasta", Reader: strings.NewReader(">B\nACGA\n")})
	require.NoError(t, err)
	assert.True(t, result.Accepted)
}

func TestService_JobNotFound(t *testing.T) {
	h := newHarness(t, false)
	_, err := h.service.Job(context.Background())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestQueryCache(t *testing.T) {
	cache := newQueryCache(2)
	cache.put("a", []*QueryResult{{ID: "a"}})
	cache.put("b", []*QueryResult{{ID: "b"}})
	_, ok := cache.get("a")
	require.True(t, ok)
	cache.put("c", []*QueryResult{{ID: "c"}})
	_, ok = cache.get("b")
	assert.False(t, ok, "least recently used entry evicted")
	_, ok = cache.get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, cache.len())
	assert.Nil(t, newQueryCache(0))
}
