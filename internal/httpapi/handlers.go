package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/varshakam/omr-eval/internal/audit"
	"github.com/varshakam/omr-eval/internal/omr"
	"github.com/varshakam/omr-eval/internal/queue"
	"github.com/varshakam/omr-eval/internal/storage"
)

// AutoVersion asks the grader to read the version from the sheet.
const AutoVersion = "auto"

// SheetResponse is the data of a synchronous grade.
type SheetResponse struct {
	SubmissionID      string          `json:"submission_id"`
	Result            *omr.ExamResult `json:"result"`
	ProcessedImageURL string          `json:"processed_image_url,omitempty"`
	Warning           string          `json:"warning,omitempty"`
}

// JobResponse is the data of an accepted asynchronous grade.
type JobResponse struct {
	JobID     string `json:"job_id"`
	StatusURL string `json:"status_url"`
}

type upload struct {
	filename string
	version  string
	data     []byte
}

type uploadError struct {
	status  int
	message string
}

// readUpload extracts the "sheet" file and "version" field.
func (s *Server) readUpload(c *gin.Context) (*upload, *uploadError) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadMB<<20)

	fh, err := c.FormFile("sheet")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return nil, &uploadError{http.StatusRequestEntityTooLarge, "upload too large"}
		case errors.Is(err, http.ErrMissingFile):
			// A form with no file chosen still sends the field, with an
			// empty filename, which arrives as a plain value.
			if _, ok := c.GetPostForm("sheet"); ok {
				return nil, &uploadError{http.StatusBadRequest, "no selected file"}
			}
		}
		return nil, &uploadError{http.StatusBadRequest, "no file uploaded"}
	}
	if fh.Filename == "" {
		return nil, &uploadError{http.StatusBadRequest, "no selected file"}
	}

	f, err := fh.Open()
	if err != nil {
		return nil, &uploadError{http.StatusBadRequest, "failed to read upload"}
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &uploadError{http.StatusBadRequest, "failed to read upload"}
	}

	version := strings.TrimSpace(c.PostForm("version"))
	switch version {
	case "":
		version = s.cfg.DefaultVersion
	case AutoVersion:
		version = ""
	}

	return &upload{filename: fh.Filename, version: version, data: data}, nil
}

// grade runs the pipeline synchronously and records the audit trail. An
// audit failure is reported as a warning; the grade still stands.
func (s *Server) grade(ctx context.Context, up *upload) (*SheetResponse, error) {
	id := uuid.NewString()
	grading, err := s.deps.Grader.GradeReader(bytes.NewReader(up.data), up.version)
	if err != nil {
		return nil, err
	}

	resp := &SheetResponse{SubmissionID: id, Result: grading.Result}
	if s.deps.Recorder == nil {
		return resp, nil
	}

	record, err := s.deps.Recorder.Record(ctx, audit.Submission{
		ID:       id,
		Filename: up.filename,
		Grading:  grading,
	})
	if err != nil {
		s.logger.Error("failed to record submission",
			zap.String("submission_id", id),
			zap.Error(err))
		resp.Warning = "audit record could not be stored"
		return resp, nil
	}
	resp.ProcessedImageURL = record.ProcessedImage
	return resp, nil
}

func (s *Server) submitSheet(c *gin.Context) {
	up, uerr := s.readUpload(c)
	if uerr != nil {
		Error(c, uerr.status, uerr.message)
		return
	}

	if c.PostForm("async") == "true" {
		s.enqueue(c, up)
		return
	}

	resp, err := s.grade(c.Request.Context(), up)
	if err != nil {
		PipelineError(c, err)
		return
	}
	Success(c, resp)
}

func (s *Server) enqueue(c *gin.Context, up *upload) {
	if s.deps.Jobs == nil {
		BadRequest(c, "asynchronous grading is not enabled")
		return
	}

	id, err := s.deps.Jobs.EnqueueGrade(c.Request.Context(), queue.GradePayload{
		SubmissionID: uuid.NewString(),
		Version:      up.version,
		Filename:     up.filename,
		Image:        up.data,
	})
	if err != nil {
		s.logger.Error("failed to enqueue sheet", zap.Error(err))
		Error(c, http.StatusServiceUnavailable, "failed to enqueue sheet")
		return
	}

	Accepted(c, JobResponse{JobID: id, StatusURL: "/api/jobs/" + id})
}

func (s *Server) jobStatus(c *gin.Context) {
	if s.deps.Jobs == nil {
		NotFound(c, "asynchronous grading is not enabled")
		return
	}

	status, err := s.deps.Jobs.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			NotFound(c, "job not found")
			return
		}
		s.logger.Error("failed to read job status", zap.Error(err))
		Error(c, http.StatusServiceUnavailable, "job status unavailable")
		return
	}
	Success(c, status)
}

// ExamSummary describes one registered exam version.
type ExamSummary struct {
	Version  string           `json:"version"`
	Subjects []SubjectSummary `json:"subjects"`
}

// SubjectSummary names one subject of an exam and its question count.
type SubjectSummary struct {
	Name      string `json:"name"`
	Questions int    `json:"questions"`
}

func (s *Server) listExams(c *gin.Context) {
	reg := s.deps.Grader.Registry()

	exams := make([]ExamSummary, 0, len(reg.Versions()))
	for _, v := range reg.Versions() {
		exam, err := reg.Exam(v)
		if err != nil {
			continue
		}
		summary := ExamSummary{Version: v}
		for _, subj := range exam.Subjects {
			summary.Subjects = append(summary.Subjects, SubjectSummary{
				Name:      subj.Name,
				Questions: len(subj.Layout),
			})
		}
		exams = append(exams, summary)
	}

	Success(c, gin.H{
		"default_version": s.cfg.DefaultVersion,
		"exams":           exams,
	})
}

func (s *Server) health(c *gin.Context) {
	components := gin.H{
		"grader":  "up",
		"storage": s.deps.Store != nil,
		"queue":   s.deps.Jobs != nil,
	}
	if s.deps.OCRVersion != "" {
		components["ocr"] = s.deps.OCRVersion
	}
	Success(c, gin.H{
		"status":     "ok",
		"versions":   s.deps.Grader.Registry().Versions(),
		"components": components,
	})
}

func (s *Server) processedFile(c *gin.Context) {
	name := storage.CleanName(c.Param("name"))
	if s.deps.Store == nil || name == "" {
		NotFound(c, "artifact not found")
		return
	}

	rc, err := s.deps.Store.Get(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			NotFound(c, "artifact not found")
			return
		}
		s.logger.Error("failed to read artifact", zap.String("name", name), zap.Error(err))
		Error(c, http.StatusInternalServerError, "failed to read artifact")
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, -1, contentType, rc, nil)
}

type formPage struct {
	Versions []string
	Default  string
	Identify bool
}

func (s *Server) uploadPage(c *gin.Context) {
	c.HTML(http.StatusOK, "form", formPage{
		Versions: s.deps.Grader.Registry().Versions(),
		Default:  s.cfg.DefaultVersion,
		Identify: s.deps.OCRVersion != "",
	})
}

type resultRow struct {
	Name     string
	Score    int
	MaxScore int
	Answers  string
}

type resultPage struct {
	Version  string
	Total    int
	MaxTotal int
	Subjects []resultRow
	ImageURL string
	Warning  string
}

// uploadPageSubmit is the browser flow: plain-text errors and an HTML
// result table.
func (s *Server) uploadPageSubmit(c *gin.Context) {
	up, uerr := s.readUpload(c)
	if uerr != nil {
		c.String(uerr.status, uerr.message)
		return
	}

	resp, err := s.grade(c.Request.Context(), up)
	if err != nil {
		c.String(StatusFor(err), err.Error())
		return
	}

	page := resultPage{
		Version:  resp.Result.Version,
		Total:    resp.Result.Total,
		MaxTotal: resp.Result.MaxTotal(),
		ImageURL: resp.ProcessedImageURL,
		Warning:  resp.Warning,
	}
	for _, subj := range resp.Result.Subjects {
		page.Subjects = append(page.Subjects, resultRow{
			Name:     subj.Name,
			Score:    subj.Score,
			MaxScore: subj.MaxScore,
			Answers:  joinAnswers(subj.Answers),
		})
	}
	c.HTML(http.StatusOK, "result", page)
}

func joinAnswers(answers []omr.Answer) string {
	parts := make([]string, len(answers))
	for i, a := range answers {
		if a.IsBlank() {
			parts[i] = "-"
		} else {
			parts[i] = string(a)
		}
	}
	return strings.Join(parts, ", ")
}
