package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/selfcanonical/csvmerge/internal/core/domain"
	"github.com/selfcanonical/csvmerge/internal/core/ports"
)

// MergeJobUseCase runs the per-file encoding/delimiter inference pipeline
// over every input of a queued job and consolidates the survivors into
// one workbook. A failing file produces a failure report; it never aborts
// the rest of the batch.
type MergeJobUseCase struct {
	repo      ports.JobRepository
	storage   ports.ObjectStorage
	extractor ports.TableExtractor
	workbook  ports.WorkbookBuilder
}

func NewMergeJobUseCase(
	repo ports.JobRepository,
	storage ports.ObjectStorage,
	extractor ports.TableExtractor,
	workbook ports.WorkbookBuilder,
) *MergeJobUseCase {
	return &MergeJobUseCase{
		repo:      repo,
		storage:   storage,
		extractor: extractor,
		workbook:  workbook,
	}
}

func (uc *MergeJobUseCase) MergeByID(ctx context.Context, jobID string) (*domain.MergeJob, error) {
	if err := uc.markStatus(ctx, jobID, domain.StatusProcessing, ""); err != nil {
		return nil, fmt.Errorf("set status=processing: %w", err)
	}

	job, err := uc.repo.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("fetch job by id: %w", err)
	}

	sheets := make([]domain.Sheet, 0, len(job.Files))
	reports := make([]domain.FileReport, 0, len(job.Files))
	for _, file := range job.Files {
		sheet, report := uc.processFile(ctx, file)
		reports = append(reports, report)
		if sheet != nil {
			sheets = append(sheets, *sheet)
		}
	}

	if len(sheets) == 0 {
		err := fmt.Errorf("no input file could be processed")
		if saveErr := uc.repo.SaveResults(ctx, jobID, "", reports); saveErr != nil {
			return nil, fmt.Errorf("%w; save failure reports: %v", err, saveErr)
		}
		if failErr := uc.markFailed(ctx, jobID, err); failErr != nil {
			return nil, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		job.Status = domain.StatusFailed
		job.Error = err.Error()
		job.Reports = reports
		return job, err
	}

	workbookKey := fmt.Sprintf("jobs/%s/merged_output.xlsx", jobID)
	if err := uc.writeWorkbook(ctx, workbookKey, sheets); err != nil {
		// Keep what is known about each file even when the workbook
		// itself could not be produced.
		if saveErr := uc.repo.SaveResults(ctx, jobID, "", reports); saveErr != nil {
			return nil, fmt.Errorf("%w; save file reports: %v", err, saveErr)
		}
		if failErr := uc.markFailed(ctx, jobID, err); failErr != nil {
			return nil, fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return nil, err
	}

	if err := uc.repo.SaveResults(ctx, jobID, workbookKey, reports); err != nil {
		return nil, fmt.Errorf("save job results: %w", err)
	}
	if err := uc.markStatus(ctx, jobID, domain.StatusReady, ""); err != nil {
		return nil, fmt.Errorf("set status=ready: %w", err)
	}

	job.Status = domain.StatusReady
	job.Reports = reports
	job.WorkbookPath = workbookKey
	return job, nil
}

// processFile runs resolve → detect → parse → filter for one input and
// reduces the outcome to a report, plus a sheet when there is one to
// write. A file whose rows were all filtered still gets its sheet; the
// report marks it empty so the caller can tell it from a one-row file.
func (uc *MergeJobUseCase) processFile(ctx context.Context, file domain.SourceFile) (*domain.Sheet, domain.FileReport) {
	report := domain.FileReport{Filename: file.Name}

	data, err := uc.readStored(ctx, file.StorageKey)
	if err != nil {
		report.Status = domain.FileStatusFailed
		report.Error = err.Error()
		return nil, report
	}

	table, err := uc.extractor.Extract(ctx, file.Name, data)
	if err != nil {
		report.Status = domain.FileStatusFailed
		report.Error = err.Error()
		return nil, report
	}

	report.SheetName = domain.SheetTitle(file.Name)
	report.Encoding = table.Encoding
	report.Delimiter = string(table.Delimiter)
	report.RowsKept = len(table.Rows)
	report.Status = domain.FileStatusOK
	if len(table.Rows) == 0 {
		report.Status = domain.FileStatusEmpty
		report.Error = domain.ErrEmptyResult.Error()
	}

	return &domain.Sheet{
		Name:       report.SheetName,
		SourceName: file.Name,
		Encoding:   table.Encoding,
		Delimiter:  table.Delimiter,
		Rows:       table.Rows,
	}, report
}

func (uc *MergeJobUseCase) readStored(ctx context.Context, key string) ([]byte, error) {
	reader, err := uc.storage.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open stored input: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read stored input: %w", err)
	}
	return data, nil
}

func (uc *MergeJobUseCase) writeWorkbook(ctx context.Context, key string, sheets []domain.Sheet) error {
	data, err := uc.workbook.Build(ctx, sheets)
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}
	if err := uc.storage.Save(ctx, key, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("store workbook: %w", err)
	}
	return nil
}

func (uc *MergeJobUseCase) markStatus(ctx context.Context, jobID string, status domain.JobStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, jobID, status, errMessage)
}

func (uc *MergeJobUseCase) markFailed(ctx context.Context, jobID string, mergeErr error) error {
	if mergeErr == nil {
		return nil
	}
	return uc.markStatus(ctx, jobID, domain.StatusFailed, mergeErr.Error())
}
