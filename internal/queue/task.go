// Package queue grades answer sheets asynchronously on a Redis-backed
// asynq queue.
package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TypeGrade is the asynq task type for one uploaded sheet.
const TypeGrade = "omr:grade"

// GradePayload is the job data for TypeGrade. Image holds the uploaded
// file bytes as received.
type GradePayload struct {
	SubmissionID string `json:"submission_id"`
	Version      string `json:"version"`
	Filename     string `json:"filename"`
	Image        []byte `json:"image"`
}

// NewGradeTask wraps p in an asynq task.
func NewGradeTask(p GradePayload, opts ...asynq.Option) (*asynq.Task, error) {
	if p.SubmissionID == "" {
		return nil, fmt.Errorf("submission id is required")
	}
	if len(p.Image) == 0 {
		return nil, fmt.Errorf("image is required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal grade payload: %w", err)
	}
	return asynq.NewTask(TypeGrade, data, opts...), nil
}

// ParseGradePayload decodes the payload of a TypeGrade task.
func ParseGradePayload(t *asynq.Task) (GradePayload, error) {
	var p GradePayload
	if t.Type() != TypeGrade {
		return p, fmt.Errorf("unexpected task type %q", t.Type())
	}
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("failed to unmarshal grade payload: %w", err)
	}
	return p, nil
}
