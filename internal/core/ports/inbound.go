package ports

import (
	"context"
	"io"

	"github.com/selfcanonical/csvmerge/internal/core/domain"
)

// Upload is one file handed in by the transport layer.
type Upload struct {
	Name string
	Body io.Reader
}

// JobCreator is the inbound contract for accepting a batch of delimited
// text files and queueing a merge job for them.
type JobCreator interface {
	CreateJob(ctx context.Context, uploads []Upload) (*domain.MergeJob, error)
}

// JobMerger is the inbound contract for running the detection and
// extraction pipeline of a queued job. It returns the job with the
// per-file reports filled in.
type JobMerger interface {
	MergeByID(ctx context.Context, jobID string) (*domain.MergeJob, error)
}

// JobReader is the inbound read model for job state.
type JobReader interface {
	GetByID(ctx context.Context, id string) (*domain.MergeJob, error)
}
