package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/invoice-parser/internal/scanning"
)

var (
	// ErrHistoryDisabled is returned by history operations when no database is configured
	ErrHistoryDisabled = errors.New("run history is not configured")
	// ErrRunNotComplete is returned when artifacts are requested for a run that has not finished
	ErrRunNotComplete = errors.New("run has no artifacts")
	// ErrNoDiagnostic is returned when a run kept no raw reply
	ErrNoDiagnostic = errors.New("run has no diagnostic capture")
)

// Normalizer turns a source document into page images
type Normalizer interface {
	Normalize(ctx context.Context, doc scanning.SourceDocument) ([]scanning.PageImage, error)
}

// IDGenerator generates unique IDs for runs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// PassError names the extraction pass whose backend call failed
type PassError struct {
	Pass string
	Err  error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("%s pass: %v", e.Pass, e.Err)
}

func (e *PassError) Unwrap() error {
	return e.Err
}

// passStatus maps each prompt of the catalog to the state entered when it is issued
var passStatus = map[string]Status{
	scanning.InvoiceJSONPrompt.Name:  StatusExtractingJSON,
	scanning.SummaryPrompt.Name:      StatusExtractingSummary,
	scanning.LineItemsCSVPrompt.Name: StatusExtractingCSV,
}

// Service runs the extraction pipeline and manages the run history
type Service struct {
	normalizer  Normalizer
	backend     scanning.Backend
	db          DB
	storage     Storage
	idGenerator IDGenerator
	timeSource  TimeSource
	logger      *slog.Logger

	concurrent  bool
	attempts    int
	backoff     time.Duration
	passTimeout time.Duration
}

// Option configures a Service
type Option func(*Service)

// WithConcurrentPasses issues the three passes concurrently
func WithConcurrentPasses() Option {
	return func(s *Service) {
		s.concurrent = true
	}
}

// WithRetry retries a pass whose backend is unavailable, doubling the wait each time.
// attempts counts the first call; values below 1 mean a single attempt.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if attempts < 1 {
			attempts = 1
		}
		s.attempts = attempts
		s.backoff = backoff
	}
}

// WithPassTimeout bounds every backend call
func WithPassTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.passTimeout = d
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a new Service with default ID generator and time source.
// db and storage may be nil: runs are then not recorded and raw responses are not captured.
func NewService(normalizer Normalizer, backend scanning.Backend, db DB, storage Storage, opts ...Option) *Service {
	return NewServiceWithDeps(normalizer, backend, db, storage, &defaultIDGenerator{}, &defaultTimeSource{}, opts...)
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(normalizer Normalizer, backend scanning.Backend, db DB, storage Storage, idGen IDGenerator, timeSrc TimeSource, opts ...Option) *Service {
	s := &Service{
		normalizer:  normalizer,
		backend:     backend,
		db:          db,
		storage:     storage,
		idGenerator: idGen,
		timeSource:  timeSrc,
		logger:      slog.Default(),
		attempts:    1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Extract normalizes a document and runs the JSON, summary and CSV passes over its pages.
// An unparseable JSON reply yields an empty record and Degraded; conversion and
// backend failures abort the run.
func (s *Service) Extract(ctx context.Context, doc scanning.SourceDocument) (*Result, error) {
	now := s.timeSource.Now()
	run := &Run{
		ID:        s.idGenerator.Generate(),
		Filename:  doc.Name,
		Kind:      doc.Kind,
		CreatedAt: now,
		UpdatedAt: now,
	}
	logger := s.logger.With("run_id", run.ID, "filename", doc.Name)

	s.transition(logger, run, StatusNormalizing)
	pages, err := s.normalizer.Normalize(ctx, doc)
	if err != nil {
		logger.Error("Failed to normalize document", "kind", doc.Kind, "size", len(doc.Data), "error", err)
		s.fail(logger, run, "", err)
		return nil, fmt.Errorf("normalizing %s: %w", doc.Name, err)
	}
	run.Pages = len(pages)
	logger.Info("Document normalized", "pages", len(pages))

	prompts := scanning.Catalog()
	replies := make([]string, len(prompts))
	if s.concurrent {
		err = s.runConcurrent(ctx, logger, run, pages, prompts, replies)
	} else {
		err = s.runSequential(ctx, logger, run, pages, prompts, replies)
	}
	if err != nil {
		var passErr *PassError
		failedPass := ""
		if errors.As(err, &passErr) {
			failedPass = passErr.Pass
		}
		logger.Error("Extraction failed", "pass", failedPass, "error", err)
		s.fail(logger, run, failedPass, err)
		return nil, err
	}

	parser := scanning.NewResponseParser(s.diagnosticSink(run.ID), logger)
	fields, ok := parser.Parse(replies[0])
	record := NewRecord(fields)

	result := &Result{
		RunID:    run.ID,
		Record:   record,
		Summary:  replies[1],
		CSV:      replies[2],
		Pages:    len(pages),
		Degraded: !ok,
		Warnings: append(CheckTemplate(record), CheckCSVHeader(replies[2])...),
	}
	if len(result.Warnings) > 0 {
		logger.Warn("Replies do not match the requested shape", "warnings", result.Warnings)
	}

	run.Result = result
	s.transition(logger, run, StatusDone)
	tmpl := record.Template()
	logger.Info("Extraction complete",
		"degraded", result.Degraded,
		"invoice_number", tmpl.InvoiceNumber,
		"items", len(tmpl.Items),
		"extra_fields", len(record.Extensions()),
	)
	return result, nil
}

func (s *Service) runSequential(ctx context.Context, logger *slog.Logger, run *Run, pages []scanning.PageImage, prompts []scanning.Prompt, replies []string) error {
	for i, prompt := range prompts {
		s.transition(logger, run, passStatus[prompt.Name])
		reply, err := s.generate(ctx, logger, pages, prompt)
		if err != nil {
			return &PassError{Pass: prompt.Name, Err: err}
		}
		replies[i] = reply
	}
	return nil
}

// runConcurrent enters each pass state in catalog order as the pass is issued;
// replies land in their own slots so completion order does not matter.
func (s *Service) runConcurrent(ctx context.Context, logger *slog.Logger, run *Run, pages []scanning.PageImage, prompts []scanning.Prompt, replies []string) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, prompt := range prompts {
		s.transition(logger, run, passStatus[prompt.Name])
		g.Go(func() error {
			reply, err := s.generate(gctx, logger, pages, prompt)
			if err != nil {
				return &PassError{Pass: prompt.Name, Err: err}
			}
			replies[i] = reply
			return nil
		})
	}
	return g.Wait()
}

// generate calls the backend, retrying only when the backend reports itself unavailable
func (s *Service) generate(ctx context.Context, logger *slog.Logger, pages []scanning.PageImage, prompt scanning.Prompt) (string, error) {
	wait := s.backoff
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		reply, err := s.call(ctx, pages, prompt)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		var unavailable *scanning.BackendUnavailableError
		if !errors.As(err, &unavailable) || attempt == s.attempts {
			break
		}
		logger.Warn("Backend call failed, retrying", "pass", prompt.Name, "attempt", attempt, "wait", wait, "error", err)

		select {
		case <-ctx.Done():
			return "", lastErr
		case <-time.After(wait):
		}
		wait *= 2
	}
	return "", lastErr
}

func (s *Service) call(ctx context.Context, pages []scanning.PageImage, prompt scanning.Prompt) (string, error) {
	if s.passTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.passTimeout)
		defer cancel()
	}
	return s.backend.Generate(ctx, pages, prompt)
}

// transition records a state change; history write failures never fail the run
func (s *Service) transition(logger *slog.Logger, run *Run, status Status) {
	run.Status = status
	logger.Debug("Run state changed", "status", status)
	if s.db == nil {
		return
	}
	run.UpdatedAt = s.timeSource.Now()
	if err := s.db.SaveRun(run); err != nil {
		logger.Warn("Failed to record run", "status", status, "error", err)
	}
}

func (s *Service) fail(logger *slog.Logger, run *Run, pass string, err error) {
	run.FailedPass = pass
	run.Error = err.Error()
	s.transition(logger, run, StatusFailed)
}

// DiagnosticFilename is the name under which the raw reply of a degraded run is captured
func DiagnosticFilename(runID string) string {
	return fmt.Sprintf("invalid_json_response_%s.txt", runID)
}

func (s *Service) diagnosticSink(runID string) scanning.DiagnosticSink {
	if s.storage == nil {
		return nil
	}
	return scanning.DiagnosticSinkFunc(func(raw string) error {
		_, err := s.storage.Save(DiagnosticFilename(runID), []byte(raw))
		return err
	})
}

// GetRun retrieves a run by ID
func (s *Service) GetRun(id string) (*Run, error) {
	if s.db == nil {
		return nil, ErrHistoryDisabled
	}
	run, err := s.db.GetRun(id)
	if err != nil {
		return nil, fmt.Errorf("getting run: %w", err)
	}
	return run, nil
}

// ListRuns returns all runs, newest first
func (s *Service) ListRuns() ([]*Run, error) {
	if s.db == nil {
		return nil, ErrHistoryDisabled
	}
	runs, err := s.db.ListRuns()
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes a run and its diagnostic capture
func (s *Service) DeleteRun(id string) error {
	if s.db == nil {
		return ErrHistoryDisabled
	}
	run, err := s.db.GetRun(id)
	if err != nil {
		return fmt.Errorf("getting run for deletion: %w", err)
	}

	if s.storage != nil && run.Result != nil && run.Result.Degraded {
		if err := s.storage.Delete(DiagnosticFilename(id)); err != nil {
			s.logger.Warn("Failed to delete diagnostic capture", "run_id", id, "error", err)
		}
	}

	if err := s.db.DeleteRun(id); err != nil {
		return fmt.Errorf("deleting run from database: %w", err)
	}
	return nil
}

// Diagnostic returns the raw JSON reply captured for a degraded run
func (s *Service) Diagnostic(id string) ([]byte, error) {
	run, err := s.GetRun(id)
	if err != nil {
		return nil, err
	}
	if s.storage == nil || run.Result == nil || !run.Result.Degraded {
		return nil, fmt.Errorf("%w: %s", ErrNoDiagnostic, id)
	}

	data, err := s.storage.Get(DiagnosticFilename(id))
	if err != nil {
		s.logger.Warn("Diagnostic capture missing", "run_id", id, "error", err)
		return nil, fmt.Errorf("%w: %s", ErrNoDiagnostic, id)
	}
	return data, nil
}

// Archive packages the artifacts of a finished run and names the archive after its source
func (s *Service) Archive(id string) ([]byte, string, error) {
	run, err := s.GetRun(id)
	if err != nil {
		return nil, "", err
	}
	if run.Status != StatusDone || run.Result == nil {
		return nil, "", fmt.Errorf("%w: %s is %s", ErrRunNotComplete, id, run.Status)
	}

	data, err := BuildArchive(run.Result, s.logger)
	if err != nil {
		return nil, "", fmt.Errorf("building archive: %w", err)
	}
	return data, ArchiveFilename(run.Filename), nil
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// ArchiveFilename derives "<name>_invoice_outputs.zip" from a source filename,
// cleaning up the long names phones and scanners produce.
func ArchiveFilename(source string) string {
	base := filepath.Base(source)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, " ")
	base = strings.TrimSpace(base)

	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" || base == "." {
		return ArchiveName
	}
	return base + "_" + ArchiveName
}
