package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/selfcanonical/csvmerge/internal/config"
	"github.com/selfcanonical/csvmerge/internal/core/domain"
	"github.com/selfcanonical/csvmerge/internal/core/ports"
)

type creatorFake struct {
	lastUploads []ports.Upload
	err         error
}

func (f *creatorFake) CreateJob(_ context.Context, uploads []ports.Upload) (*domain.MergeJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastUploads = uploads

	now := time.Now().UTC()
	files := make([]domain.SourceFile, 0, len(uploads))
	for _, u := range uploads {
		raw, err := io.ReadAll(u.Body)
		if err != nil {
			return nil, err
		}
		files = append(files, domain.SourceFile{
			Name:       u.Name,
			StorageKey: "jobs/job-1/input/" + u.Name,
			SizeBytes:  int64(len(raw)),
		})
	}
	return &domain.MergeJob{
		ID:        "job-1",
		Files:     files,
		Status:    domain.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

type readerFake struct {
	job *domain.MergeJob
	err error
}

func (f readerFake) GetByID(_ context.Context, _ string) (*domain.MergeJob, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.job, nil
}

type objectStorageFake struct {
	objects map[string][]byte
}

func (f objectStorageFake) Save(_ context.Context, _ string, _ io.Reader) error {
	return nil
}

func (f objectStorageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrJobNotFound, "open object", io.EOF)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func newTestHandler(cfg config.Config) http.Handler {
	return newTestHandlerWith(cfg, &creatorFake{}, readerFake{job: &domain.MergeJob{ID: "job-1", Status: domain.StatusQueued}}, objectStorageFake{})
}

func newTestHandlerWith(cfg config.Config, creator ports.JobCreator, reader ports.JobReader, storage ports.ObjectStorage) http.Handler {
	return NewRouter(cfg, creator, reader, storage).Handler()
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, content := range files {
		part, err := writer.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile() error = %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newTestHandler(config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}

func TestCreateMergeJobSuccess(t *testing.T) {
	creator := &creatorFake{}
	handler := newTestHandlerWith(config.Config{}, creator, readerFake{}, objectStorageFake{})

	body, contentType := multipartBody(t, map[string]string{
		"orders.csv": "a,b\n1,2\n",
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/merge-jobs", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}

	var jobResp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&jobResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if jobResp["id"] != "job-1" {
		t.Fatalf("unexpected response: %+v", jobResp)
	}
	if jobResp["status"] != "queued" {
		t.Fatalf("expected queued status, got %+v", jobResp["status"])
	}
	if len(creator.lastUploads) != 1 || creator.lastUploads[0].Name != "orders.csv" {
		t.Fatalf("unexpected uploads passed through: %+v", creator.lastUploads)
	}
}

func TestCreateMergeJobMissingMultipartField(t *testing.T) {
	handler := newTestHandler(config.Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/merge-jobs", strings.NewReader("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestCreateMergeJobRejectsOversizedUpload(t *testing.T) {
	handler := newTestHandler(config.Config{MaxUploadBytes: 64})

	body, contentType := multipartBody(t, map[string]string{
		"big.csv": strings.Repeat("a,b,c\n", 100),
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/merge-jobs", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized upload, got %d", res.Code)
	}
}

func TestCreateMergeJobMapsInvalidInput(t *testing.T) {
	creator := &creatorFake{err: domain.WrapError(domain.ErrInvalidInput, "create job", io.EOF)}
	handler := newTestHandlerWith(config.Config{}, creator, readerFake{}, objectStorageFake{})

	body, contentType := multipartBody(t, map[string]string{"orders.csv": "a,b\n"})
	req := httptest.NewRequest(http.MethodPost, "/v1/merge-jobs", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestGetMergeJobReturnsReports(t *testing.T) {
	reader := readerFake{job: &domain.MergeJob{
		ID:     "job-2",
		Status: domain.StatusReady,
		Reports: []domain.FileReport{
			{Filename: "orders.csv", SheetName: "orders", Encoding: "utf-8", Delimiter: ",", RowsKept: 3, Status: domain.FileStatusOK},
		},
		WorkbookPath: "jobs/job-2/merged_output.xlsx",
	}}
	handler := newTestHandlerWith(config.Config{}, &creatorFake{}, reader, objectStorageFake{})

	req := httptest.NewRequest(http.MethodGet, "/v1/merge-jobs/job-2", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}

	var jobResp domain.MergeJob
	if err := json.NewDecoder(res.Body).Decode(&jobResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if jobResp.Status != domain.StatusReady {
		t.Fatalf("expected ready, got %s", jobResp.Status)
	}
	if len(jobResp.Reports) != 1 || jobResp.Reports[0].SheetName != "orders" {
		t.Fatalf("unexpected reports: %+v", jobResp.Reports)
	}
}

func TestGetMergeJobNotFound(t *testing.T) {
	reader := readerFake{err: domain.WrapError(domain.ErrJobNotFound, "get job", io.EOF)}
	handler := newTestHandlerWith(config.Config{}, &creatorFake{}, reader, objectStorageFake{})

	req := httptest.NewRequest(http.MethodGet, "/v1/merge-jobs/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestDownloadWorkbookStreamsAttachment(t *testing.T) {
	workbook := []byte("xlsx-bytes")
	reader := readerFake{job: &domain.MergeJob{
		ID:           "job-3",
		Status:       domain.StatusReady,
		WorkbookPath: "jobs/job-3/merged_output.xlsx",
	}}
	storage := objectStorageFake{objects: map[string][]byte{
		"jobs/job-3/merged_output.xlsx": workbook,
	}}
	handler := newTestHandlerWith(config.Config{}, &creatorFake{}, reader, storage)

	req := httptest.NewRequest(http.MethodGet, "/v1/merge-jobs/job-3/download", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if got := res.Header().Get("Content-Disposition"); !strings.Contains(got, "merged_output.xlsx") {
		t.Fatalf("unexpected Content-Disposition: %q", got)
	}
	if !bytes.Equal(res.Body.Bytes(), workbook) {
		t.Fatalf("workbook bytes mismatch")
	}
}

func TestDownloadWorkbookNotReady(t *testing.T) {
	reader := readerFake{job: &domain.MergeJob{ID: "job-4", Status: domain.StatusProcessing}}
	handler := newTestHandlerWith(config.Config{}, &creatorFake{}, reader, objectStorageFake{})

	req := httptest.NewRequest(http.MethodGet, "/v1/merge-jobs/job-4/download", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409 while workbook pending, got %d", res.Code)
	}
}
