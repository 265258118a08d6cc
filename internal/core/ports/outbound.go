package ports

import (
	"context"
	"io"

	"github.com/selfcanonical/csvmerge/internal/core/domain"
)

// JobRepository persists and reads merge job state.
type JobRepository interface {
	Create(ctx context.Context, job *domain.MergeJob) error
	GetByID(ctx context.Context, id string) (*domain.MergeJob, error)
	UpdateStatus(ctx context.Context, id string, status domain.JobStatus, errMessage string) error
	SaveResults(ctx context.Context, id string, workbookPath string, reports []domain.FileReport) error
}

// ObjectStorage stores input files and produced workbooks.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes merge job events.
type MessageQueue interface {
	PublishJobQueued(ctx context.Context, jobID string) error
	SubscribeJobQueued(ctx context.Context, handler func(context.Context, string) error) error
}

// TableExtractor turns the raw bytes of one input file into rows: it
// resolves a text encoding that decodes the bytes losslessly, detects the
// field delimiter, and drops rows that are blank after trimming.
type TableExtractor interface {
	Extract(ctx context.Context, name string, data []byte) (*domain.Table, error)
}

// WorkbookBuilder serializes extracted sheets into a spreadsheet document.
type WorkbookBuilder interface {
	Build(ctx context.Context, sheets []domain.Sheet) ([]byte, error)
}
