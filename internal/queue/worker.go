package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/varshakam/omr-eval/internal/audit"
	"github.com/varshakam/omr-eval/internal/config"
	"github.com/varshakam/omr-eval/internal/omr"
	"github.com/varshakam/omr-eval/internal/omrerr"
)

// JobResult is written as the asynq task result of a graded sheet.
type JobResult struct {
	SubmissionID   string          `json:"submission_id"`
	Result         *omr.ExamResult `json:"result"`
	ProcessedImage string          `json:"processed_image,omitempty"`
	Warning        string          `json:"warning,omitempty"`
}

// Processor handles TypeGrade tasks.
type Processor struct {
	grader   *omr.Grader
	recorder *audit.Recorder
	observer JobObserver
	logger   *zap.Logger
}

// NewProcessor builds a Processor. recorder and observer may be nil.
func NewProcessor(grader *omr.Grader, recorder *audit.Recorder, observer JobObserver, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{grader: grader, recorder: recorder, observer: observer, logger: logger}
}

// ProcessGrade grades the uploaded sheet, records the audit trail and
// stores a JobResult. Decode, image and configuration errors skip retry.
func (p *Processor) ProcessGrade(ctx context.Context, t *asynq.Task) error {
	start := time.Now()

	payload, err := ParseGradePayload(t)
	if err != nil {
		p.observe(StageFailed)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	log := p.logger.With(
		zap.String("submission_id", payload.SubmissionID),
		zap.String("filename", payload.Filename))

	result, err := p.run(ctx, payload, log)
	if err != nil {
		p.observe(StageFailed)
		log.Warn("grade job failed", zap.Error(err))
		if isFinal(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	data, err := json.Marshal(result)
	if err != nil {
		p.observe(StageFailed)
		return fmt.Errorf("failed to marshal job result: %w", err)
	}
	if w := t.ResultWriter(); w != nil {
		if _, err := w.Write(data); err != nil {
			p.observe(StageFailed)
			return fmt.Errorf("failed to write job result: %w", err)
		}
	}

	p.observe(StageCompleted)
	log.Info("grade job completed",
		zap.Int("total", result.Result.Total),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// run grades one payload and records its audit trail. A failed audit
// leaves the grade standing and is reported in JobResult.Warning.
func (p *Processor) run(ctx context.Context, payload GradePayload, log *zap.Logger) (*JobResult, error) {
	grading, err := p.grader.GradeReader(bytes.NewReader(payload.Image), payload.Version)
	if err != nil {
		return nil, err
	}

	result := &JobResult{SubmissionID: payload.SubmissionID, Result: grading.Result}
	if p.recorder == nil {
		return result, nil
	}
	record, err := p.recorder.Record(ctx, audit.Submission{
		ID:       payload.SubmissionID,
		Filename: payload.Filename,
		Grading:  grading,
	})
	if err != nil {
		log.Error("failed to record submission", zap.Error(err))
		result.Warning = err.Error()
		return result, nil
	}
	result.ProcessedImage = record.ProcessedImage
	return result, nil
}

func (p *Processor) observe(stage string) {
	if p.observer != nil {
		p.observer.ObserveJob(stage)
	}
}

func isFinal(err error) bool {
	return errors.Is(err, omrerr.ErrDecode) ||
		errors.Is(err, omrerr.ErrInvalidImage) ||
		errors.Is(err, omrerr.ErrConfiguration)
}

// Worker runs Processor on an asynq server.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *zap.Logger
}

// NewWorker creates a server consuming cfg.Name with cfg.Concurrency
// handlers.
func NewWorker(cfg config.QueueConfig, processor *Processor, logger *zap.Logger) (*Worker, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			cfg.Name: 1,
		},
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			delay := time.Duration(5*(1<<uint(n))) * time.Second
			if delay > time.Minute {
				delay = time.Minute
			}
			return delay
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Warn("task processing error",
				zap.String("type", task.Type()),
				zap.Error(err))
		}),
		Logger: logger.Named("asynq").Sugar(),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeGrade, processor.ProcessGrade)

	return &Worker{server: server, mux: mux, logger: logger}, nil
}

// Start begins processing in the background.
func (w *Worker) Start() error {
	w.logger.Info("starting queue worker")
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start queue worker: %w", err)
	}
	return nil
}

// Shutdown waits for active jobs and stops the server.
func (w *Worker) Shutdown() {
	w.server.Shutdown()
	w.logger.Info("queue worker stopped")
}
