package service

import (
	"io"

	"github.com/viant/seqindex/index"
	"github.com/viant/seqindex/job"
	"github.com/viant/seqindex/store"
)

// DefaultDistance is the query radius used when a request does not set one.
const DefaultDistance = 100

// UploadRequest carries a bulk FASTA file.
type UploadRequest struct {
	Name   string
	Reader io.Reader
}

// UploadResult reports the job an upload produced or ran into.
type UploadResult struct {
	Job *job.Job
	// Accepted is false when a build was already running; Job is then that build.
	Accepted bool
}

// QueryRequest defines a similarity search.
type QueryRequest struct {
	Sequence string `json:"seq"`
	Distance *int   `json:"dist,omitempty"`
}

// QueryResult is a stored record with its distance from the query.
type QueryResult struct {
	ID          string `json:"id"`
	Sequence    string `json:"sequence"`
	Description string `json:"description,omitempty"`
	Length      int    `json:"length"`
	Distance    int    `json:"distance"`
}

// Stats summarises service state.
type Stats struct {
	Index     index.Stats `json:"index"`
	Sequences int         `json:"sequences"`
	Job       *job.Job    `json:"job,omitempty"`
}

func newQueryResult(record *store.Sequence, distance int) *QueryResult {
	return &QueryResult{
		ID:          record.ID,
		Sequence:    record.Sequence,
		Description: record.Description,
		Length:      record.Length,
		Distance:    distance,
	}
}
