package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/varshakam/omr-eval/internal/config"
)

// ErrJobNotFound is returned by Status for an unknown or expired job.
var ErrJobNotFound = errors.New("job not found")

// JobObserver receives job lifecycle events.
type JobObserver interface {
	ObserveJob(stage string)
}

// Job stages reported to JobObserver.
const (
	StageEnqueued  = "enqueued"
	StageCompleted = "completed"
	StageFailed    = "failed"
)

// Client enqueues grading jobs and reports their status.
type Client struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
	retention time.Duration
	timeout   time.Duration
	observer  JobObserver
}

// NewClient connects to the Redis server named by cfg.RedisURL. observer
// may be nil.
func NewClient(cfg config.QueueConfig, observer JobObserver) (*Client, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return &Client{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		queue:     cfg.Name,
		retention: cfg.Retention,
		timeout:   cfg.Timeout,
		observer:  observer,
	}, nil
}

// EnqueueGrade submits p and returns the job id, which is p.SubmissionID.
// Completed jobs are kept for the configured retention so Status can
// return their result.
func (c *Client) EnqueueGrade(ctx context.Context, p GradePayload) (string, error) {
	opts := []asynq.Option{
		asynq.Queue(c.queue),
		asynq.TaskID(p.SubmissionID),
		asynq.MaxRetry(3),
	}
	if c.retention > 0 {
		opts = append(opts, asynq.Retention(c.retention))
	}
	if c.timeout > 0 {
		opts = append(opts, asynq.Timeout(c.timeout))
	}

	task, err := NewGradeTask(p, opts...)
	if err != nil {
		return "", err
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue grade job: %w", err)
	}
	if c.observer != nil {
		c.observer.ObserveJob(StageEnqueued)
	}
	return info.ID, nil
}

// JobStatus is the externally visible state of a grading job.
type JobStatus struct {
	ID          string          `json:"id"`
	State       string          `json:"state"`
	Retried     int             `json:"retried"`
	LastError   string          `json:"last_error,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// Status looks the job up in the grading queue.
func (c *Client) Status(ctx context.Context, id string) (*JobStatus, error) {
	info, err := c.inspector.GetTaskInfo(c.queue, id)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return statusFromInfo(info), nil
}

func statusFromInfo(info *asynq.TaskInfo) *JobStatus {
	s := &JobStatus{
		ID:        info.ID,
		State:     info.State.String(),
		Retried:   info.Retried,
		LastError: info.LastErr,
	}
	if !info.CompletedAt.IsZero() {
		t := info.CompletedAt
		s.CompletedAt = &t
	}
	if len(info.Result) > 0 && json.Valid(info.Result) {
		s.Result = json.RawMessage(info.Result)
	}
	return s
}

// Close releases the Redis connections.
func (c *Client) Close() error {
	return errors.Join(c.client.Close(), c.inspector.Close())
}
