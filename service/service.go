package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/seqindex/builder"
	"github.com/viant/seqindex/index"
	"github.com/viant/seqindex/job"
	"github.com/viant/seqindex/store"
)

const restartMessage = "interrupted by restart"

// Option configures the Service.
type Option func(*Service)

// WithStore sets sequence and job persistence.
func WithStore(s store.Store) Option {
	return func(svc *Service) { svc.store = s }
}

// WithIndex sets the shared index handle.
func WithIndex(idx *index.Index) Option {
	return func(s *Service) { s.index = idx }
}

// WithWorker sets the build executor. Without one the service is read-only.
func WithWorker(worker *builder.Worker) Option {
	return func(s *Service) { s.worker = worker }
}

// WithDefaultDistance sets the query radius used when a request omits one.
func WithDefaultDistance(distance int) Option {
	return func(s *Service) { s.defaultDistance = distance }
}

// WithSpoolDir sets where uploads are staged before a build reads them.
func WithSpoolDir(dir string) Option {
	return func(s *Service) { s.spoolDir = dir }
}

// WithCacheSize sets how many query results are kept; zero disables caching.
func WithCacheSize(size int) Option {
	return func(s *Service) { s.cacheSize = size }
}

// WithFS overrides the storage service used to stage uploads.
func WithFS(fs afs.Service) Option {
	return func(s *Service) { s.fs = fs }
}

// WithLogf sets a printf-style logger.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(s *Service) { s.logf = logf }
}

// Service coordinates uploads, builds and queries.
type Service struct {
	store           store.Store
	index           *index.Index
	worker          *builder.Worker
	gate            *job.Gate
	fs              afs.Service
	cache           *queryCache
	cacheSize       int
	defaultDistance int
	spoolDir        string
	logf            func(format string, args ...any)
	now             func() time.Time
}

// NewService creates a new Service.
func NewService(opts ...Option) (*Service, error) {
	s := &Service{defaultDistance: DefaultDistance, fs: afs.New(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	switch {
	case s.store == nil:
		return nil, fmt.Errorf("service: store is required")
	case s.index == nil:
		return nil, fmt.Errorf("service: index is required")
	}
	if s.defaultDistance <= 0 {
		s.defaultDistance = DefaultDistance
	}
	if s.spoolDir == "" {
		s.spoolDir = filepath.Join(s.index.Dir(), "uploads")
	}
	if err := os.MkdirAll(s.spoolDir, 0o755); err != nil {
		return nil, fmt.Errorf("service: spool dir: %w", err)
	}
	s.gate = job.NewGate(s.store)
	s.cache = newQueryCache(s.cacheSize)
	return s, nil
}

// Recover prepares the service after a start: jobs left active by a previous
// process are failed, a stale temporary snapshot is removed and the live
// snapshot is loaded.
func (s *Service) Recover(ctx context.Context) error {
	failed, err := s.store.FailActiveJobs(ctx, restartMessage)
	if err != nil {
		return err
	}
	if failed > 0 {
		s.printf("service: failed %d job(s) %s", failed, restartMessage)
	}
	if err := s.index.Remove(ctx, index.TempName); err != nil {
		return err
	}
	return s.index.Load(ctx, false)
}

// Upload accepts a bulk file and starts a rebuild unless one is already running.
// A running build is reported through the result, not as an error.
func (s *Service) Upload(ctx context.Context, req *UploadRequest) (*UploadResult, error) {
	if req == nil || req.Reader == nil {
		return nil, ErrInvalidUpload
	}
	if s.worker == nil {
		return nil, fmt.Errorf("service: uploads require a build worker")
	}
	name := filepath.Base(strings.TrimSpace(req.Name))
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "upload.fasta"
	}
	candidate := job.New(uuid.NewString(), name, s.now())
	current, started, err := s.gate.Acquire(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if !started {
		return &UploadResult{Job: current}, nil
	}

	path := filepath.Join(s.spoolDir, candidate.Run+".fasta")
	if err := s.fs.Upload(ctx, path, file.DefaultFileOsMode, req.Reader); err != nil {
		s.abort(ctx, candidate, fmt.Errorf("failed to stage upload: %w", err))
		return nil, err
	}
	if err := s.worker.Submit(builder.Request{Job: candidate, Path: path, Remove: true}); err != nil {
		_ = os.Remove(path)
		s.abort(ctx, candidate, err)
		return nil, err
	}
	s.printf("service: accepted upload %s as run %s", name, candidate.Run)
	return &UploadResult{Job: current, Accepted: true}, nil
}

func (s *Service) abort(ctx context.Context, candidate *job.Job, cause error) {
	if err := job.NewTracker(s.store, candidate).Fail(context.WithoutCancel(ctx), cause); err != nil {
		s.printf("service: failed to abort run %s: %v", candidate.Run, err)
	}
}

// Status returns the running job, or nil when no build is active.
func (s *Service) Status(ctx context.Context) (*job.Job, error) {
	current, err := s.store.GetJob(ctx, job.Key)
	if err != nil {
		return nil, err
	}
	if !current.Active() {
		return nil, nil
	}
	return current, nil
}

// Job returns the last recorded job in any state.
func (s *Service) Job(ctx context.Context) (*job.Job, error) {
	current, err := s.store.GetJob(ctx, job.Key)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: job %s", store.ErrNotFound, job.Key)
	}
	return current, nil
}

// Query returns stored records within the requested distance of the query
// sequence, nearest first.
func (s *Service) Query(ctx context.Context, req *QueryRequest) ([]*QueryResult, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: empty request", ErrInvalidQuery)
	}
	sequence := strings.TrimSpace(req.Sequence)
	if sequence == "" {
		return nil, fmt.Errorf("%w: seq is required", ErrInvalidQuery)
	}
	distance := s.defaultDistance
	if req.Distance != nil {
		distance = *req.Distance
	}
	if distance < 0 {
		return nil, fmt.Errorf("%w: dist must not be negative", ErrInvalidQuery)
	}

	key := strconv.FormatUint(s.index.Generation(), 10) + "|" + strconv.Itoa(distance) + "|" + sequence
	if s.cache != nil {
		if cached, ok := s.cache.get(key); ok {
			return cloneResults(cached), nil
		}
	}
	matches := s.index.Find(sequence, distance)
	ids := make([]string, len(matches))
	for i, match := range matches {
		ids[i] = match.Entry.Name
	}
	records, err := s.store.GetSequences(ctx, ids)
	if err != nil {
		return nil, err
	}
	results := make([]*QueryResult, 0, len(matches))
	for _, match := range matches {
		record, ok := records[match.Entry.Name]
		if !ok {
			record = &store.Sequence{ID: match.Entry.Name, Sequence: match.Entry.Sequence, Length: len(match.Entry.Sequence)}
		}
		results = append(results, newQueryResult(record, match.Distance))
	}
	if s.cache != nil {
		s.cache.put(key, results)
	}
	return cloneResults(results), nil
}

// Sequence returns a stored record by id.
func (s *Service) Sequence(ctx context.Context, id string) (*store.Sequence, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidQuery)
	}
	return s.store.GetSequence(ctx, id)
}

// Stats reports index, store and job state.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	count, err := s.store.CountSequences(ctx)
	if err != nil {
		return nil, err
	}
	current, err := s.store.GetJob(ctx, job.Key)
	if err != nil {
		return nil, err
	}
	return &Stats{Index: s.index.Stats(), Sequences: count, Job: current}, nil
}

// IsClientError reports whether err was caused by the request rather than the service.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidQuery) || errors.Is(err, ErrInvalidUpload)
}

func (s *Service) printf(format string, args ...any) {
	if s.logf != nil {
		s.logf(format, args...)
	}
}

func cloneResults(results []*QueryResult) []*QueryResult {
	ret := make([]*QueryResult, len(results))
	for i, result := range results {
		clone := *result
		ret[i] = &clone
	}
	return ret
}
