package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/varshakam/omr-eval/internal/audit"
	"github.com/varshakam/omr-eval/internal/config"
	"github.com/varshakam/omr-eval/internal/httpapi"
	"github.com/varshakam/omr-eval/internal/layout"
	"github.com/varshakam/omr-eval/internal/metrics"
	"github.com/varshakam/omr-eval/internal/ocr"
	"github.com/varshakam/omr-eval/internal/omr"
	"github.com/varshakam/omr-eval/internal/queue"
	"github.com/varshakam/omr-eval/internal/server"
	"github.com/varshakam/omr-eval/internal/storage"
)

// core holds the collaborators every command needs.
type core struct {
	grader     *omr.Grader
	metrics    *metrics.Metrics
	ocrVersion string
}

func newCore(cfg *config.Config, logger *zap.Logger) (*core, error) {
	reg, err := layout.Load(cfg.Layouts.File)
	if err != nil {
		return nil, fmt.Errorf("failed to load layouts: %w", err)
	}
	if _, err := reg.Exam(cfg.Server.DefaultVersion); err != nil {
		return nil, fmt.Errorf("default version: %w", err)
	}

	m := metrics.New()
	opts := []omr.Option{omr.WithLogger(logger), omr.WithMetrics(m)}

	c := &core{metrics: m}
	if cfg.OCR.Enabled {
		reader, err := ocr.NewReader(reg, ocr.Options{
			Language:       cfg.OCR.Language,
			TessdataPrefix: cfg.OCR.TessdataPrefix,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, omr.WithVersionReader(reader))
		c.ocrVersion = ocr.GetInfo().Version
		logger.Info("version identification enabled", zap.String("tesseract", c.ocrVersion))
	}

	c.grader = omr.NewGrader(reg, opts...)
	logger.Info("layouts loaded", zap.Strings("versions", reg.Versions()))
	return c, nil
}

func newRecorder(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.Provider, *audit.Recorder, error) {
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}
	return store, audit.NewRecorder(store, logger.Named("audit")), nil
}

func runMCP(cfg *config.Config, logger *zap.Logger) error {
	c, err := newCore(cfg, logger)
	if err != nil {
		return err
	}
	srv := server.New(c.grader,
		server.WithLogger(logger.Named("mcp")),
		server.WithDefaultVersion(cfg.Server.DefaultVersion),
		server.WithServerVersion(Version))
	return srv.Run()
}

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	c, err := newCore(cfg, logger)
	if err != nil {
		return err
	}
	store, recorder, err := newRecorder(ctx, cfg, logger)
	if err != nil {
		return err
	}

	gin.SetMode(cfg.Server.Mode)

	deps := httpapi.Deps{
		Grader:     c.grader,
		Recorder:   recorder,
		Store:      store,
		Metrics:    c.metrics,
		Logger:     logger.Named("http"),
		OCRVersion: c.ocrVersion,
	}

	if cfg.Queue.Enabled {
		client, err := queue.NewClient(cfg.Queue, c.metrics)
		if err != nil {
			return err
		}
		defer client.Close()
		deps.Jobs = client

		processor := queue.NewProcessor(c.grader, recorder, c.metrics, logger.Named("worker"))
		worker, err := queue.NewWorker(cfg.Queue, processor, logger.Named("worker"))
		if err != nil {
			return err
		}
		if err := worker.Start(); err != nil {
			return err
		}
		defer worker.Shutdown()
	}

	srv, err := httpapi.New(cfg.Server, deps)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}

func runWorker(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if !cfg.Queue.Enabled {
		return fmt.Errorf("queue is disabled; set queue.enabled or OMR_QUEUE_ENABLED=true")
	}
	c, err := newCore(cfg, logger)
	if err != nil {
		return err
	}
	_, recorder, err := newRecorder(ctx, cfg, logger)
	if err != nil {
		return err
	}

	processor := queue.NewProcessor(c.grader, recorder, c.metrics, logger.Named("worker"))
	worker, err := queue.NewWorker(cfg.Queue, processor, logger.Named("worker"))
	if err != nil {
		return err
	}
	if err := worker.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down worker")
	worker.Shutdown()
	return nil
}

// runGrade grades a single file and writes the exam result to stdout.
func runGrade(cfg *config.Config, logger *zap.Logger, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: omr-eval grade <file> [version]")
	}
	version := cfg.Server.DefaultVersion
	if len(args) > 1 {
		version = args[1]
	}
	if version == httpapi.AutoVersion {
		version = ""
	}

	c, err := newCore(cfg, logger)
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	grading, err := c.grader.GradeReader(f, version)
	if err != nil {
		return err
	}
	logger.Debug("graded sheet",
		zap.String("file", filepath.Base(args[0])),
		zap.Int("total", grading.Result.Total))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(grading.Result)
}
