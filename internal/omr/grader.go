package omr

import (
	"image"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/varshakam/omr-eval/internal/imaging"
	"github.com/varshakam/omr-eval/internal/layout"
	"github.com/varshakam/omr-eval/internal/omrerr"
)

// VersionReader identifies the exam version printed on a normalized sheet.
type VersionReader interface {
	ReadVersion(r *imaging.Raster) (string, error)
}

// Observer receives grading outcomes, typically to export metrics.
type Observer interface {
	ObserveGrade(version, outcome string, elapsed time.Duration)
	ObserveBlank(version, subject string, blank int)
}

// Outcome labels passed to Observer.ObserveGrade.
const (
	OutcomeGraded = "graded"
)

// UnknownVersion is the version reported to the Observer for sheets whose
// version is empty or not registered. Observers only ever see registered
// version names or this value.
const UnknownVersion = "unknown"

// Grading is the result of one sheet together with the raster it was read
// from, which callers persist for audit.
type Grading struct {
	Result *ExamResult
	Raster *imaging.Raster
}

// Grader runs the full pipeline for one sheet at a time. A Grader holds no
// per-sheet state; one instance may serve many goroutines.
type Grader struct {
	registry   *layout.Registry
	normalizer imaging.Normalizer
	detector   Detector
	versions   VersionReader
	observer   Observer
	logger     *zap.Logger
}

// Option configures a Grader.
type Option func(*Grader)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(g *Grader) { g.logger = l }
}

// WithMetrics reports every grading to o.
func WithMetrics(o Observer) Option {
	return func(g *Grader) { g.observer = o }
}

// WithVersionReader enables grading sheets submitted without a version.
func WithVersionReader(v VersionReader) Option {
	return func(g *Grader) { g.versions = v }
}

// WithDetector replaces the default detector.
func WithDetector(d Detector) Option {
	return func(g *Grader) { g.detector = d }
}

// NewGrader creates a grader over a loaded registry.
func NewGrader(registry *layout.Registry, opts ...Option) *Grader {
	g := &Grader{
		registry:   registry,
		normalizer: imaging.DefaultNormalizer(),
		detector:   NewDetector(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Registry returns the registry the grader reads layouts from.
func (g *Grader) Registry() *layout.Registry { return g.registry }

// GradeReader decodes an uploaded image and grades it.
func (g *Grader) GradeReader(r io.Reader, version string) (*Grading, error) {
	start := time.Now()
	img, format, err := imaging.Decode(r)
	if err != nil {
		g.fail(version, start, err)
		return nil, err
	}
	g.logger.Debug("decoded sheet",
		zap.String("format", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))
	return g.Grade(img, version)
}

// Grade runs normalization, detection and scoring for every subject of
// the exam version. An unknown version fails before any image work. An
// empty version is read from the sheet when a VersionReader is configured.
//
// Parameters:
//   - img: the decoded sheet.
//   - version: a registered exam version, or "" to identify it.
//
// Returns:
//   - *Grading: the exam result and the normalized raster it was read from.
//   - error: a ConfigurationError for an unknown or unreadable version, an
//     InvalidImageError for an empty or too short sheet.
func (g *Grader) Grade(img image.Image, version string) (*Grading, error) {
	start := time.Now()

	var exam layout.Exam
	if version != "" {
		var err error
		if exam, err = g.registry.Exam(version); err != nil {
			g.fail(version, start, err)
			return nil, err
		}
	} else if g.versions == nil {
		err := omrerr.NewConfigurationError("exam version is required", map[string]interface{}{
			"versions": g.registry.Versions(),
		})
		g.fail(version, start, err)
		return nil, err
	}

	raster, err := g.normalizer.Normalize(img)
	if err != nil {
		g.fail(version, start, err)
		return nil, err
	}

	if version == "" {
		if version, err = g.identify(raster); err != nil {
			g.fail(version, start, err)
			return nil, err
		}
		exam, _ = g.registry.Exam(version)
	}

	if err := CheckExtent(raster, exam); err != nil {
		g.fail(version, start, err)
		return nil, err
	}

	result := &ExamResult{Version: version}
	for _, s := range exam.Subjects {
		answers := g.detector.Detect(raster, s.Layout)
		score := Score(answers, s.Key)
		result.Subjects = append(result.Subjects, SubjectScore{
			Name: s.Name,
			SubjectResult: SubjectResult{
				Score:    score,
				MaxScore: len(s.Key),
				Answers:  answers,
			},
		})
		result.Total += score

		if g.observer != nil {
			g.observer.ObserveBlank(g.versionLabel(version), s.Name, CountBlank(answers))
		}
	}

	elapsed := time.Since(start)
	if g.observer != nil {
		g.observer.ObserveGrade(g.versionLabel(version), OutcomeGraded, elapsed)
	}
	g.logger.Info("graded sheet",
		zap.String("version", version),
		zap.Int("total", result.Total),
		zap.Int("max_total", result.MaxTotal()),
		zap.Duration("elapsed", elapsed))

	return &Grading{Result: result, Raster: raster}, nil
}

func (g *Grader) identify(raster *imaging.Raster) (string, error) {
	version, err := g.versions.ReadVersion(raster)
	if err != nil {
		return "", err
	}
	if _, err := g.registry.Exam(version); err != nil {
		return "", err
	}
	g.logger.Info("identified exam version", zap.String("version", version))
	return version, nil
}

func (g *Grader) fail(version string, start time.Time, err error) {
	outcome := strings.ToLower(string(omrerr.CodeOf(err)))
	if outcome == "" {
		outcome = "error"
	}
	if g.observer != nil {
		g.observer.ObserveGrade(g.versionLabel(version), outcome, time.Since(start))
	}
	g.logger.Warn("sheet could not be graded",
		zap.String("version", version),
		zap.String("outcome", outcome),
		zap.Error(err))
}

// versionLabel maps a caller-supplied version onto the bounded set of
// registered names.
func (g *Grader) versionLabel(version string) string {
	if version == "" {
		return UnknownVersion
	}
	if _, err := g.registry.Exam(version); err != nil {
		return UnknownVersion
	}
	return version
}

// CheckExtent fails with an InvalidImageError when r is too short to hold
// every bubble of exam. Detection on such a sheet would read clipped
// rectangles as blank.
func CheckExtent(r *imaging.Raster, exam layout.Exam) error {
	bottom := exam.Bottom()
	if r.Height() >= bottom {
		return nil
	}
	err := omrerr.NewInvalidImageError(r.Width(), r.Height(), "sheet is too short for the exam layout")
	err.Details["required_height"] = bottom
	err.Details["version"] = exam.Version
	return err
}
