package domain

import "time"

type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusReady      JobStatus = "ready"
	StatusFailed     JobStatus = "failed"
)

// SourceFile is one uploaded delimited-text input of a merge job.
type SourceFile struct {
	Name       string `json:"name"`
	StorageKey string `json:"storage_key"`
	SizeBytes  int64  `json:"size_bytes"`
}

type FileStatus string

const (
	FileStatusOK     FileStatus = "ok"
	FileStatusEmpty  FileStatus = "empty"
	FileStatusFailed FileStatus = "failed"
)

// FileReport is the per-file outcome of a merge run. A failed file never
// fails the job; the report is how the failure reaches the caller.
type FileReport struct {
	Filename  string     `json:"filename"`
	SheetName string     `json:"sheet_name,omitempty"`
	Encoding  string     `json:"encoding,omitempty"`
	Delimiter string     `json:"delimiter,omitempty"`
	RowsKept  int        `json:"rows_kept"`
	Status    FileStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
}

type MergeJob struct {
	ID           string       `json:"id"`
	Files        []SourceFile `json:"files"`
	Status       JobStatus    `json:"status"`
	Error        string       `json:"error,omitempty"`
	Reports      []FileReport `json:"reports,omitempty"`
	WorkbookPath string       `json:"workbook_path,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Table is the extracted content of one input file: the resolved encoding
// and detected delimiter are carried along for display in the workbook.
type Table struct {
	Encoding  string
	Delimiter rune
	Rows      [][]string
}

// Sheet is one workbook page holding the surviving rows of one input file.
type Sheet struct {
	Name       string
	SourceName string
	Encoding   string
	Delimiter  rune
	Rows       [][]string
}
