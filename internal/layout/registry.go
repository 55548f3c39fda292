package layout

import (
	"fmt"

	"github.com/varshakam/omr-eval/internal/imaging"
	"github.com/varshakam/omr-eval/internal/omrerr"
)

// Registry maps exam versions to their layouts and answer keys.
//
// A Registry is populated once at start-up through NewRegistry or Register
// and is read-only afterwards. Lookups are safe for concurrent use as long
// as no Register call runs at the same time.
type Registry struct {
	exams          map[string]Exam
	order          []string
	identification *Rect
}

// NewRegistry validates and registers every exam.
func NewRegistry(exams ...Exam) (*Registry, error) {
	r := &Registry{exams: make(map[string]Exam)}
	for _, e := range exams {
		if err := r.Register(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register validates exam and adds it to the registry. Invalid or duplicate
// exams are rejected with a configuration error and leave the registry
// unchanged.
func (r *Registry) Register(exam Exam) error {
	if err := Validate(exam); err != nil {
		return err
	}
	if _, exists := r.exams[exam.Version]; exists {
		return omrerr.NewConfigurationError("duplicate exam version", map[string]interface{}{
			"version": exam.Version,
		})
	}
	r.exams[exam.Version] = exam
	r.order = append(r.order, exam.Version)
	return nil
}

// SetIdentification configures the sheet region that holds the printed
// exam version label.
func (r *Registry) SetIdentification(region Rect) error {
	if err := validateRect(region); err != nil {
		return omrerr.NewConfigurationError("invalid identification region: "+err.Error(), map[string]interface{}{
			"region": region,
		})
	}
	r.identification = &region
	return nil
}

// Identification returns the version label region, if one is configured.
func (r *Registry) Identification() (Rect, bool) {
	if r.identification == nil {
		return Rect{}, false
	}
	return *r.identification, true
}

// Exam returns the exam registered under version.
func (r *Registry) Exam(version string) (Exam, error) {
	e, ok := r.exams[version]
	if !ok {
		return Exam{}, omrerr.NewConfigurationError("unknown exam version", map[string]interface{}{
			"version":  version,
			"versions": r.Versions(),
		})
	}
	return e, nil
}

// Versions returns the registered versions in registration order.
func (r *Registry) Versions() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// LayoutFor returns the bubble geometry of one subject.
func (r *Registry) LayoutFor(version, subject string) (SubjectLayout, error) {
	s, err := r.subject(version, subject)
	if err != nil {
		return nil, err
	}
	return s.Layout, nil
}

// KeyFor returns the answer key of one subject.
func (r *Registry) KeyFor(version, subject string) (AnswerKey, error) {
	s, err := r.subject(version, subject)
	if err != nil {
		return nil, err
	}
	return s.Key, nil
}

func (r *Registry) subject(version, subject string) (Subject, error) {
	e, err := r.Exam(version)
	if err != nil {
		return Subject{}, err
	}
	s, ok := e.Subject(subject)
	if !ok {
		return Subject{}, omrerr.NewConfigurationError("unknown subject", map[string]interface{}{
			"version": version,
			"subject": subject,
		})
	}
	return s, nil
}

// Validate checks one exam for internal consistency: non-empty unique
// names, at least one question per subject and one option per question,
// unique labels, non-negative rectangles inside the reference width, and
// an answer key of exactly one label per question naming one of its options.
func Validate(exam Exam) error {
	fail := func(msg string, details map[string]interface{}) error {
		if details == nil {
			details = map[string]interface{}{}
		}
		details["version"] = exam.Version
		return omrerr.NewConfigurationError(msg, details)
	}

	if exam.Version == "" {
		return fail("exam version must not be empty", nil)
	}
	if len(exam.Subjects) == 0 {
		return fail("exam has no subjects", nil)
	}

	seen := make(map[string]bool, len(exam.Subjects))
	for _, s := range exam.Subjects {
		if s.Name == "" {
			return fail("subject name must not be empty", nil)
		}
		if seen[s.Name] {
			return fail("duplicate subject", map[string]interface{}{"subject": s.Name})
		}
		seen[s.Name] = true

		if len(s.Layout) == 0 {
			return fail("subject has no questions", map[string]interface{}{"subject": s.Name})
		}
		if len(s.Key) != len(s.Layout) {
			return fail("answer key length does not match question count", map[string]interface{}{
				"subject":   s.Name,
				"key":       len(s.Key),
				"questions": len(s.Layout),
			})
		}

		for qi, q := range s.Layout {
			at := map[string]interface{}{"subject": s.Name, "question": qi + 1}
			if len(q.Options) == 0 {
				return fail("question has no options", at)
			}
			if s.Key[qi] == "" {
				return fail("answer key label must not be empty", at)
			}
			labels := make(map[string]bool, len(q.Options))
			for _, o := range q.Options {
				if o.Label == "" {
					return fail("option label must not be empty", at)
				}
				if labels[o.Label] {
					at["label"] = o.Label
					return fail("duplicate option label", at)
				}
				labels[o.Label] = true
				if err := validateRect(o.Rect); err != nil {
					at["label"] = o.Label
					return fail(err.Error(), at)
				}
			}
			if !labels[s.Key[qi]] {
				at["label"] = s.Key[qi]
				return fail("answer key label names no option of the question", at)
			}
		}
	}
	return nil
}

func validateRect(r Rect) error {
	if r.X < 0 || r.Y < 0 || r.Width < 0 || r.Height < 0 {
		return fmt.Errorf("rectangle (%d,%d,%d,%d) has negative values", r.X, r.Y, r.Width, r.Height)
	}
	if r.Right() > imaging.ReferenceWidth {
		return fmt.Errorf("rectangle right edge %d exceeds reference width %d", r.Right(), imaging.ReferenceWidth)
	}
	return nil
}
