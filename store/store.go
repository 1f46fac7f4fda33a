package store

import (
	"context"
	"time"

	"github.com/viant/seqindex/job"
)

// Sequence is a persisted sequence record.
type Sequence struct {
	ID          string    `json:"id"`
	Sequence    string    `json:"sequence"`
	Description string    `json:"description,omitempty"`
	Length      int       `json:"length"`
	ModifiedAt  time.Time `json:"modifiedAt"`
}

// SequenceStore persists sequence records by id.
type SequenceStore interface {
	// PutSequences upserts records by id.
	PutSequences(ctx context.Context, records []*Sequence) error
	// GetSequences returns the records found for ids, keyed by id.
	GetSequences(ctx context.Context, ids []string) (map[string]*Sequence, error)
	// GetSequence returns a single record or ErrNotFound.
	GetSequence(ctx context.Context, id string) (*Sequence, error)
	// CountSequences returns the number of stored records.
	CountSequences(ctx context.Context) (int, error)
}

// JobStore persists the reindex job record.
type JobStore interface {
	job.Store
	// FailActiveJobs marks every non-terminal job FAILED with message, returning how many changed.
	FailActiveJobs(ctx context.Context, message string) (int, error)
}

// Store combines sequence and job persistence.
type Store interface {
	SequenceStore
	JobStore
	Close() error
}
