// Package audit keeps a record of every graded sheet: the normalized
// black/white image and a JSON document with the scores.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/varshakam/omr-eval/internal/imaging"
	"github.com/varshakam/omr-eval/internal/omr"
	"github.com/varshakam/omr-eval/internal/omrerr"
	"github.com/varshakam/omr-eval/internal/storage"
)

// StampLayout formats the timestamp embedded in artifact names.
const StampLayout = "20060102_150405"

// idPrefixLen is how much of the submission id goes into artifact names.
const idPrefixLen = 8

var errNothingToRecord = errors.New("submission has no grading")

// Submission is one graded upload.
type Submission struct {
	// ID is generated when empty.
	ID       string
	Filename string
	Grading  *omr.Grading
}

// Record is the JSON document stored next to the processed image.
type Record struct {
	SubmissionID   string          `json:"submission_id"`
	Version        string          `json:"version"`
	Result         *omr.ExamResult `json:"-"`
	ProcessedImage string          `json:"processed_image"`
	ResultFile     string          `json:"-"`
	SourceFile     string          `json:"source_file"`
	CreatedAt      time.Time       `json:"created_at"`
}

// MarshalJSON inlines the exam result so results and total sit at the top
// level of the record.
func (r Record) MarshalJSON() ([]byte, error) {
	type meta Record
	head, err := json.Marshal(meta(r))
	if err != nil {
		return nil, err
	}
	if r.Result == nil {
		return head, nil
	}
	body, err := json.Marshal(r.Result)
	if err != nil {
		return nil, err
	}
	// body is {"version":...,"results":...,"total":...}; drop its version
	// and splice the rest after the metadata fields.
	var parts struct {
		Results json.RawMessage `json:"results"`
		Total   int             `json:"total"`
	}
	if err := json.Unmarshal(body, &parts); err != nil {
		return nil, err
	}
	total, _ := json.Marshal(parts.Total)

	var buf bytes.Buffer
	buf.Write(head[:len(head)-1])
	buf.WriteString(`,"results":`)
	buf.Write(parts.Results)
	buf.WriteString(`,"total":`)
	buf.Write(total)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Recorder writes audit artifacts to a storage provider.
type Recorder struct {
	store  storage.Provider
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder returns a Recorder writing to store. A nil logger discards
// log output.
func NewRecorder(store storage.Provider, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{store: store, logger: logger, now: time.Now}
}

// Record stores proc_<stamp>_<id>_<file>.png and
// result_<stamp>_<id>_<file>.json, where <id> is a short prefix of the
// submission id so same-second uploads of one filename stay apart.
func (rec *Recorder) Record(ctx context.Context, sub Submission) (*Record, error) {
	if sub.Grading == nil || sub.Grading.Result == nil || sub.Grading.Raster == nil {
		return nil, omrerr.NewStorageError("record", errNothingToRecord)
	}

	id := sub.ID
	if id == "" {
		id = uuid.NewString()
	}
	created := rec.now()
	base := baseName(sub.Filename, id)
	stem := artifactStem(created.Format(StampLayout), id, base)

	png, err := imaging.EncodePNG(sub.Grading.Raster.Gray())
	if err != nil {
		return nil, omrerr.NewStorageError("encode processed image", err)
	}

	procName := "proc_" + pngName(stem)
	procURL, err := rec.store.Put(ctx, procName, bytes.NewReader(png), int64(len(png)), imaging.MimePNG)
	if err != nil {
		return nil, omrerr.NewStorageError("store processed image", err)
	}

	record := &Record{
		SubmissionID:   id,
		Version:        sub.Grading.Result.Version,
		Result:         sub.Grading.Result,
		ProcessedImage: procURL,
		SourceFile:     base,
		CreatedAt:      created.UTC(),
	}

	doc, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, omrerr.NewStorageError("encode result", err)
	}

	resultName := "result_" + stem + ".json"
	if _, err := rec.store.Put(ctx, resultName, bytes.NewReader(doc), int64(len(doc)), "application/json"); err != nil {
		return nil, omrerr.NewStorageError("store result", err)
	}
	record.ResultFile = resultName

	rec.logger.Info("recorded submission",
		zap.String("submission_id", id),
		zap.String("processed_image", procURL),
		zap.String("result_file", resultName))

	return record, nil
}

func baseName(filename, id string) string {
	name := storage.CleanName(filepath.Base(filename))
	if name == "" {
		return id
	}
	return name
}

// artifactStem joins stamp, id prefix and base. When base is the id itself
// the prefix is left out.
func artifactStem(stamp, id, base string) string {
	if base == id {
		return stamp + "_" + base
	}
	short := storage.CleanName(id)
	if len(short) > idPrefixLen {
		short = short[:idPrefixLen]
	}
	if short == "" {
		return stamp + "_" + base
	}
	return stamp + "_" + short + "_" + base
}

// pngName gives name a .png extension.
func pngName(name string) string {
	ext := filepath.Ext(name)
	if strings.EqualFold(ext, ".png") {
		return name
	}
	return strings.TrimSuffix(name, ext) + ".png"
}
