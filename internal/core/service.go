package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/corpfetch/internal/charset"
	"github.com/JonMunkholm/corpfetch/internal/csvstream"
	"github.com/JonMunkholm/corpfetch/internal/errs"
	"github.com/JonMunkholm/corpfetch/internal/logging"
	"github.com/google/uuid"
)

// Config holds the pipeline settings.
type Config struct {
	// StagingDir is the parent of the per-run directories.
	StagingDir string

	// SourceCharset is the encoding the document server publishes in.
	SourceCharset charset.Charset

	Download DownloadConfig

	// Timeout bounds a whole run, including storage (0 = no limit).
	Timeout time.Duration

	// MaxConcurrent and MaxWaitTime configure the FetchLimiter.
	MaxConcurrent int
	MaxWaitTime   time.Duration
}

// Deps are the collaborators of a Service. Registry is required; Store and
// Archiver are skipped when nil.
type Deps struct {
	Registry   CrnoLookup
	Store      CompanyStore
	Archiver   ArtifactArchiver
	HTTPClient *http.Client
}

// Service runs the download → normalize → filter → enrich pipeline.
type Service struct {
	cfg      Config
	download *downloader
	registry CrnoLookup
	store    CompanyStore
	archiver ArtifactArchiver
	limiter  *FetchLimiter
}

// NewService validates cfg and wires the collaborators.
func NewService(cfg Config, deps Deps) (*Service, error) {
	if cfg.StagingDir == "" {
		return nil, errors.New("core: staging directory is required")
	}
	if cfg.Download.BaseURL == "" {
		return nil, errors.New("core: download base URL is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("core: registry client is required")
	}
	if cfg.SourceCharset.IsZero() {
		cfg.SourceCharset = charset.EUCKR
	}

	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Service{
		cfg:      cfg,
		download: &downloader{cfg: cfg.Download, http: httpClient},
		registry: deps.Registry,
		store:    deps.Store,
		archiver: deps.Archiver,
		limiter:  NewFetchLimiter(cfg.MaxConcurrent, cfg.MaxWaitTime),
	}, nil
}

// run is the per-invocation state threaded through every stage.
type run struct {
	id       string
	req      Request
	dir      string
	stage    Stage
	stats    FetchStats
	logger   *slog.Logger
	started  time.Time
	rawPath  string
	filtered string
	enriched string
}

func (s *Service) newRun(ctx context.Context, req Request) *run {
	id := uuid.New().String()
	base := rawFilePrefix + "_" + req.City + "_" + req.District + csvExtension
	dir := filepath.Join(s.cfg.StagingDir, id)

	return &run{
		id:       id,
		req:      req,
		dir:      dir,
		stage:    StageIdle,
		logger:   logging.WithFields(ctx, "run_id", id, "city", req.City, "district", req.District),
		started:  time.Now(),
		rawPath:  filepath.Join(dir, base),
		filtered: filepath.Join(dir, filteredFilePrefix+base),
		enriched: filepath.Join(dir, enrichedFilePrefix+base),
	}
}

func (r *run) enter(stage Stage) {
	r.stage = stage
	r.logger.Info("fetch stage", "stage", stage)
}

// fail moves the run to StageFailed and wraps err with the stage that was
// running when it failed.
func (r *run) fail(err error) error {
	failed := r.stage
	r.stage = StageFailed
	r.logger.Error("fetch failed",
		"stage", StageFailed,
		"failed_stage", failed,
		"error", err,
		"elapsed", time.Since(r.started),
	)
	return &PipelineError{Stage: failed, RunID: r.id, Err: err}
}

// SaveCompanies downloads the document for req, keeps corporate rows, adds
// their corporate registration numbers and hands the result to the store and
// archiver. On failure the run directory is removed and the returned error is
// a *PipelineError wrapping the stage's typed error. Over capacity it returns
// ErrTooManyFetches without starting a run.
func (s *Service) SaveCompanies(ctx context.Context, req Request) (*FetchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req = req.Normalized()

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	r := s.newRun(ctx, req)
	ctx = logging.WithLogger(ctx, r.logger)

	result, err := s.execute(ctx, r)
	if err != nil {
		if rmErr := os.RemoveAll(r.dir); rmErr != nil {
			r.logger.Warn("failed to remove run directory", "dir", r.dir, "error", rmErr)
		}
		return nil, r.fail(err)
	}

	r.enter(StageDone)
	r.logger.Info("fetch complete",
		"output", result.OutputPath,
		"rows_retained", result.Stats.RowsRetained,
		"crno_matched", result.Stats.CrnoMatched,
		"elapsed", time.Since(r.started),
	)
	return result, nil
}

func (s *Service) execute(ctx context.Context, r *run) (*FetchResult, error) {
	if err := s.downloadAndNormalize(ctx, r); err != nil {
		return nil, err
	}

	r.enter(StageFiltered)
	fstats, err := csvstream.Filter(ctx, r.rawPath, r.filtered, ColumnCorporation, csvstream.Equals(CorporationLiteral))
	if err != nil {
		return nil, err
	}
	r.stats.RowsScanned = fstats.Scanned
	r.stats.RowsRetained = fstats.Retained
	r.stats.RowsSkipped = fstats.Skipped

	r.enter(StageEnriched)
	if err := s.enrich(ctx, r); err != nil {
		return nil, err
	}

	archiveKey, err := s.persist(ctx, r)
	if err != nil {
		return nil, err
	}

	return &FetchResult{
		StatusCode: http.StatusOK,
		Message:    "file saved: " + r.enriched,
		OutputPath: r.enriched,
		RunID:      r.id,
		Stats:      r.stats,
		ArchiveKey: archiveKey,
	}, nil
}

// downloadAndNormalize streams the document body through the charset
// converter into the raw staging file. The run directory is only created
// once the server has answered 200.
func (s *Service) downloadAndNormalize(ctx context.Context, r *run) error {
	r.enter(StageDownloading)

	dlCtx := ctx
	if s.cfg.Download.Timeout > 0 {
		var cancel context.CancelFunc
		dlCtx, cancel = context.WithTimeout(ctx, s.cfg.Download.Timeout)
		defer cancel()
	}

	body, err := s.download.open(dlCtx, r.req)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}
	f, err := os.Create(r.rawPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", r.rawPath, err)
	}
	defer f.Close()

	r.enter(StageEncodingNormalized)
	src := newBodyReader(body, s.cfg.Download.MaxBytes)
	_, err = charset.ConvertStream(f, src, s.cfg.SourceCharset, charset.UTF8)
	r.stats.DownloadedBytes = src.BytesRead
	r.stats.Checksum = src.Checksum()

	if src.err != nil {
		// The body failed mid-stream; that is a download failure.
		r.stage = StageDownloading
		if errs.IsTimeout(src.err) {
			return &errs.TimeoutError{Stage: "download", Err: src.err}
		}
		return fmt.Errorf("read document: %w", src.err)
	}
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", r.rawPath, err)
	}

	r.logger.Info("document saved",
		"path", r.rawPath,
		"bytes", r.stats.DownloadedBytes,
		"checksum", r.stats.Checksum,
	)
	return nil
}

func (s *Service) enrich(ctx context.Context, r *run) error {
	keys, err := csvstream.CollectKeys(ctx, r.filtered, ColumnBusinessNum)
	if err != nil {
		return err
	}

	lookup, err := s.registry.FetchAll(ctx, keys)
	if err != nil {
		return err
	}

	estats, err := csvstream.Enrich(ctx, r.filtered, r.enriched, ColumnBusinessNum, csvstream.Lookup(lookup))
	if err != nil {
		return err
	}
	r.stats.RowsEnriched = estats.Rows
	r.stats.CrnoMatched = estats.Matched
	r.stats.RowsSkipped += estats.Skipped
	return nil
}

// persist archives the enriched file and stores the projection. Both steps
// are skipped when their collaborator is not configured. The store commit
// runs last so a failed archive leaves no rows behind.
func (s *Service) persist(ctx context.Context, r *run) (string, error) {
	if s.store == nil && s.archiver == nil {
		return "", nil
	}
	r.enter(StageStored)

	var records []CompanyRecord
	if s.store != nil {
		var err error
		if records, err = ProjectCompanies(ctx, r.enriched); err != nil {
			return "", err
		}
	}

	var key string
	if s.archiver != nil {
		var err error
		key, err = s.archiver.Archive(ctx, Artifact{City: r.req.City, District: r.req.District, RunID: r.id}, r.enriched)
		if err != nil {
			return "", fmt.Errorf("archive %s: %w", r.enriched, err)
		}
	}

	if s.store != nil {
		n, err := s.store.SaveCompanies(ctx, records)
		if err != nil {
			return "", fmt.Errorf("store companies: %w", err)
		}
		r.stats.RecordsStored = n
	}
	return key, nil
}

// FetchLimiterStatus returns the current slot usage.
func (s *Service) FetchLimiterStatus() FetchLimiterStatus {
	return s.limiter.Status()
}

// WaitForFetches blocks until in-flight runs finish or ctx is done.
func (s *Service) WaitForFetches(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
