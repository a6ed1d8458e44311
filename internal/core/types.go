package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Stage is a state of the fetch pipeline.
type Stage string

const (
	StageIdle               Stage = "idle"
	StageDownloading        Stage = "downloading"
	StageEncodingNormalized Stage = "encoding_normalized"
	StageFiltered           Stage = "filtered"
	StageEnriched           Stage = "enriched"
	StageStored             Stage = "stored"
	StageDone               Stage = "done"
	StageFailed             Stage = "failed"
)

// Source columns used by the pipeline.
const (
	ColumnCorporation  = "법인여부"
	ColumnBusinessNum  = "사업자등록번호"
	ColumnTelSalesNum  = "통신판매번호"
	ColumnCompanyName  = "상호"
	ColumnDistrictCode = "행정구역코드"
	CorporationLiteral = "법인"
	documentNamePrefix = "통신판매사업자"
	rawFilePrefix      = "company"
	filteredFilePrefix = "filtered_"
	enrichedFilePrefix = "filtered_with_crno_"
	csvExtension       = ".csv"
)

// ErrInvalidRequest is the cause of every Request validation failure.
var ErrInvalidRequest = errors.New("invalid request")

// Request selects the city/district document to fetch.
type Request struct {
	City     string `json:"city"`
	District string `json:"district"`
}

// Validate requires both fields non-blank and safe to embed in a file name.
func (r Request) Validate() error {
	for _, f := range []struct{ name, value string }{
		{"city", r.City},
		{"district", r.District},
	} {
		v := strings.TrimSpace(f.value)
		switch {
		case v == "":
			return fmt.Errorf("%w: %s is required", ErrInvalidRequest, f.name)
		case strings.ContainsAny(v, `/\`) || strings.Contains(v, ".."):
			return fmt.Errorf("%w: %s must not contain path separators", ErrInvalidRequest, f.name)
		case strings.ContainsRune(v, 0):
			return fmt.Errorf("%w: %s contains a NUL byte", ErrInvalidRequest, f.name)
		}
	}
	return nil
}

// Normalized returns r with surrounding whitespace trimmed.
func (r Request) Normalized() Request {
	return Request{City: strings.TrimSpace(r.City), District: strings.TrimSpace(r.District)}
}

// FetchStats counts what each stage of a run processed.
type FetchStats struct {
	DownloadedBytes int64  `json:"downloadedBytes"`
	Checksum        string `json:"checksum"`
	RowsScanned     int    `json:"rowsScanned"`
	RowsRetained    int    `json:"rowsRetained"`
	RowsSkipped     int    `json:"rowsSkipped"`
	RowsEnriched    int    `json:"rowsEnriched"`
	CrnoMatched     int    `json:"crnoMatched"`
	RecordsStored   int64  `json:"recordsStored"`
}

// FetchResult is the outcome of a successful run.
type FetchResult struct {
	StatusCode int        `json:"statusCode"`
	Message    string     `json:"message"`
	OutputPath string     `json:"outputPath"`
	RunID      string     `json:"runId"`
	Stats      FetchStats `json:"stats"`
	ArchiveKey string     `json:"archiveKey,omitempty"`
}

// CompanyRecord is the persisted projection of one enriched row.
type CompanyRecord struct {
	TelSalesNum        string
	CompanyName        string
	BusRegistrationNum string
	CorRegistrationNum string
	AdDistrictCode     string
}

// Artifact identifies the enriched file of one run.
type Artifact struct {
	City     string
	District string
	RunID    string
}

// CrnoLookup resolves corporate registration numbers for business numbers.
type CrnoLookup interface {
	FetchAll(ctx context.Context, pending map[string]struct{}) (map[string]string, error)
}

// CompanyStore persists enriched company records.
type CompanyStore interface {
	SaveCompanies(ctx context.Context, records []CompanyRecord) (int64, error)
}

// ArtifactArchiver copies the enriched file to durable storage and returns
// the key it was stored under.
type ArtifactArchiver interface {
	Archive(ctx context.Context, artifact Artifact, path string) (string, error)
}

// PipelineError wraps the typed error of the stage a run failed in.
type PipelineError struct {
	Stage Stage
	RunID string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("fetch %s failed at %s: %v", e.RunID, e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
