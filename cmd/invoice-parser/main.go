package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/invoice-parser/internal/invoice"
	"github.com/zombor/invoice-parser/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type backendConfig struct {
	kind          string
	geminiKeys    string
	geminiModel   string
	vertexProject string
	vertexRegion  string
	vertexModel   string
	ollamaURL     string
	ollamaModel   string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("invoice-parser")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "invoice-parser.db", "Run history database path (empty disables history)")
		diagnosticsDir = fs.StringLong("diagnostics", "./diagnostics", "Directory for raw replies that could not be parsed")
		outDir         = fs.StringLong("out", ".", "Output directory for archives when files are given as arguments")
		backendKind    = fs.StringLong("backend", "gemini", "Backend: 'gemini', 'vertex' or 'ollama'")
		geminiKeys     = fs.StringLong("gemini-keys", "", "Comma-separated Gemini API keys (or set GEMINI_API_KEYS env var)")
		geminiModel    = fs.StringLong("gemini-model", scanning.DefaultGeminiModel, "Gemini model name")
		vertexProject  = fs.StringLong("vertex-project", "", "Google Cloud project for Vertex AI")
		vertexRegion   = fs.StringLong("vertex-region", "us-central1", "Vertex AI region")
		vertexModel    = fs.StringLong("vertex-model", scanning.DefaultGeminiModel, "Vertex AI model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		dpi            = fs.Float64Long("dpi", scanning.DefaultDPI, "PDF rendering resolution")
		maxPages       = fs.IntLong("max-pages", 0, "Reject PDFs with more pages (0 means no limit)")
		concurrent     = fs.BoolLong("concurrent", "Issue the three extraction passes concurrently")
		retries        = fs.IntLong("retries", 1, "Backend attempts per pass")
		retryBackoff   = fs.DurationLong("retry-backoff", 2*time.Second, "Wait before the first retry, doubled each time")
		passTimeout    = fs.DurationLong("pass-timeout", 0, "Deadline for each backend call (0 means none)")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		debug          = fs.BoolLong("debug", "Enable debug logging")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_PARSER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := newBackend(ctx, backendConfig{
		kind:          *backendKind,
		geminiKeys:    *geminiKeys,
		geminiModel:   *geminiModel,
		vertexProject: *vertexProject,
		vertexRegion:  *vertexRegion,
		vertexModel:   *vertexModel,
		ollamaURL:     *ollamaURL,
		ollamaModel:   *ollamaModel,
	})
	if err != nil {
		slog.Error("Failed to initialize backend", "backend", *backendKind, "error", err)
		os.Exit(1)
	}
	defer backend.Close()

	// Initialize database
	var db invoice.DB
	if *dbPath != "" {
		slog.Info("Initializing database...", "path", *dbPath)
		boltDB, err := invoice.NewBoltDB(*dbPath)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer boltDB.Close()
		db = boltDB
	}

	// Initialize diagnostics storage
	store, err := invoice.NewLocalStorage(*diagnosticsDir)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	opts := []invoice.Option{invoice.WithRetry(*retries, *retryBackoff)}
	if *concurrent {
		opts = append(opts, invoice.WithConcurrentPasses())
	}
	if *passTimeout > 0 {
		opts = append(opts, invoice.WithPassTimeout(*passTimeout))
	}

	normalizer := scanning.NewNormalizer(scanning.WithDPI(*dpi), scanning.WithMaxPages(*maxPages))
	service := invoice.NewService(normalizer, backend, db, store, opts...)

	if files := fs.GetArgs(); len(files) > 0 {
		if err := extractFiles(ctx, service, files, *outDir); err != nil {
			slog.Error("Extraction failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// Initialize server
	basicAuth := invoice.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := invoice.NewServer(service, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	<-ctx.Done()
	slog.Info("Shutting down...")
}

func newBackend(ctx context.Context, cfg backendConfig) (scanning.Backend, error) {
	switch cfg.kind {
	case "gemini":
		keys := cfg.geminiKeys
		if keys == "" {
			keys = os.Getenv("GEMINI_API_KEYS")
		}
		if keys == "" {
			keys = os.Getenv("GEMINI_API_KEY")
		}
		pool, err := scanning.ParseCredentialPool(keys)
		if err != nil {
			return nil, fmt.Errorf("set --gemini-keys or GEMINI_API_KEYS: %w", err)
		}
		slog.Info("Initializing Gemini backend...", "model", cfg.geminiModel, "keys", pool.Len())
		return scanning.NewGemini(ctx, pool, scanning.WithGeminiModel(cfg.geminiModel))
	case "vertex":
		if cfg.vertexProject == "" {
			return nil, errors.New("--vertex-project is required")
		}
		slog.Info("Initializing Vertex AI backend...", "project", cfg.vertexProject, "region", cfg.vertexRegion, "model", cfg.vertexModel)
		return scanning.NewVertex(ctx, cfg.vertexProject, cfg.vertexRegion, cfg.vertexModel)
	case "ollama":
		slog.Info("Initializing Ollama backend...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		return scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel)
	default:
		return nil, fmt.Errorf("invalid backend %q, valid: gemini, vertex or ollama", cfg.kind)
	}
}

// extractFiles runs each file through the pipeline and writes its archive into outDir
func extractFiles(ctx context.Context, service *invoice.Service, files []string, outDir string) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	var failed []error
	for _, path := range files {
		logger := slog.With("file", path)

		data, err := os.ReadFile(path)
		if err != nil {
			failed = append(failed, fmt.Errorf("reading %s: %w", path, err))
			continue
		}

		doc, err := scanning.NewSourceDocument(filepath.Base(path), data, "")
		if err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", path, err))
			continue
		}

		result, err := service.Extract(ctx, doc)
		if err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", path, err))
			continue
		}

		archive, err := invoice.BuildArchive(result, logger)
		if err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", path, err))
			continue
		}

		target := filepath.Join(outDir, invoice.ArchiveFilename(path))
		if err := os.WriteFile(target, archive, 0644); err != nil {
			failed = append(failed, fmt.Errorf("writing %s: %w", target, err))
			continue
		}
		tmpl := result.Record.Template()
		logger.Info("Archive written",
			"archive", target,
			"pages", result.Pages,
			"degraded", result.Degraded,
			"invoice_number", tmpl.InvoiceNumber,
			"total", tmpl.Summary.InvoiceTotal,
		)
	}
	return errors.Join(failed...)
}
