package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/selfcanonical/csvmerge/internal/core/domain"
	"github.com/selfcanonical/csvmerge/internal/core/ports"
)

type CreateJobUseCase struct {
	repo     ports.JobRepository
	storage  ports.ObjectStorage
	queue    ports.MessageQueue
	maxFiles int
}

func NewCreateJobUseCase(
	repo ports.JobRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	maxFiles int,
) *CreateJobUseCase {
	return &CreateJobUseCase{
		repo:     repo,
		storage:  storage,
		queue:    queue,
		maxFiles: maxFiles,
	}
}

func (uc *CreateJobUseCase) CreateJob(ctx context.Context, uploads []ports.Upload) (*domain.MergeJob, error) {
	if len(uploads) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create job", errors.New("no input files"))
	}
	if uc.maxFiles > 0 && len(uploads) > uc.maxFiles {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create job",
			fmt.Errorf("%d files exceeds limit of %d", len(uploads), uc.maxFiles))
	}

	id := uuid.NewString()
	now := time.Now().UTC()

	files := make([]domain.SourceFile, 0, len(uploads))
	for i, upload := range uploads {
		key := fmt.Sprintf("jobs/%s/input/%02d_%s", id, i, sanitizeFilename(upload.Name))
		size, err := uc.saveUpload(ctx, key, upload.Body)
		if err != nil {
			return nil, fmt.Errorf("store input %s: %w", upload.Name, err)
		}
		files = append(files, domain.SourceFile{
			Name:       upload.Name,
			StorageKey: key,
			SizeBytes:  size,
		})
	}

	job := &domain.MergeJob{
		ID:        id,
		Files:     files,
		Status:    domain.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := uc.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job metadata: %w", err)
	}

	if err := uc.queue.PublishJobQueued(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("publish job event: %w", err)
	}

	return job, nil
}

func (uc *CreateJobUseCase) saveUpload(ctx context.Context, key string, body io.Reader) (int64, error) {
	counter := &countingReader{r: body}
	if err := uc.storage.Save(ctx, key, counter); err != nil {
		return 0, err
	}
	return counter.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "input.csv"
	}
	return base
}
