package omr

import (
	"github.com/varshakam/omr-eval/internal/imaging"
	"github.com/varshakam/omr-eval/internal/layout"
)

// DefaultFillRatio is the share of a bubble that must be ink before the
// bubble counts as marked. The comparison is strict.
const DefaultFillRatio = 0.5

// Detector decides which option of each question was marked.
type Detector struct {
	FillRatio float64
}

// NewDetector returns a detector using DefaultFillRatio.
func NewDetector() Detector {
	return Detector{FillRatio: DefaultFillRatio}
}

// Detect returns one answer per question of l, in question order.
//
// For each question the option with the most ink wins, the lowest index
// on ties. The winner is accepted only if its ink count is strictly
// greater than FillRatio times its own area; otherwise the question gets
// NoAnswer. Option rects are expected to lie inside r; callers run
// CheckExtent first.
//
// Parameters:
//   - r: the normalized sheet.
//   - l: the bubble geometry of one subject.
//
// Returns:
//   - []Answer: len(l) answers, NoAnswer for blank or faint questions.
func (d Detector) Detect(r *imaging.Raster, l layout.SubjectLayout) []Answer {
	answers := make([]Answer, len(l))
	for i, q := range l {
		fills := make([]int, len(q.Options))
		for j, o := range q.Options {
			fills[j] = r.CountInk(o.Rect.X, o.Rect.Y, o.Rect.Width, o.Rect.Height)
		}
		answers[i], _ = d.decide(q, fills)
	}
	return answers
}

// Detect runs the default detector.
func Detect(r *imaging.Raster, l layout.SubjectLayout) []Answer {
	return NewDetector().Detect(r, l)
}

// decide applies the first-maximum and fill-ratio rules to one question.
// It returns the answer and the index of the strongest option.
func (d Detector) decide(q layout.Question, fills []int) (Answer, int) {
	if len(fills) == 0 {
		return NoAnswer, -1
	}
	best := 0
	for j := 1; j < len(fills); j++ {
		if fills[j] > fills[best] {
			best = j
		}
	}

	area := q.Options[best].Rect.Area()
	if area <= 0 {
		return NoAnswer, best
	}
	if float64(fills[best]) > d.FillRatio*float64(area) {
		return Answer(q.Options[best].Label), best
	}
	return NoAnswer, best
}

// OptionFill is the measured ink of one option.
type OptionFill struct {
	Label string  `json:"label"`
	Fill  int     `json:"fill"`
	Area  int     `json:"area"`
	Ratio float64 `json:"ratio"`
}

// QuestionReport explains the decision for one question.
type QuestionReport struct {
	Question  int          `json:"question"`
	Answer    Answer       `json:"answer"`
	Strongest string       `json:"strongest"`
	Options   []OptionFill `json:"options"`
}

// Inspect is Detect with the measurements behind each decision. Layout
// authors use it to see how close faint marks come to the threshold.
func (d Detector) Inspect(r *imaging.Raster, l layout.SubjectLayout) []QuestionReport {
	reports := make([]QuestionReport, len(l))
	for i, q := range l {
		fills := make([]int, len(q.Options))
		opts := make([]OptionFill, len(q.Options))
		for j, o := range q.Options {
			fills[j] = r.CountInk(o.Rect.X, o.Rect.Y, o.Rect.Width, o.Rect.Height)
			opts[j] = OptionFill{Label: o.Label, Fill: fills[j], Area: o.Rect.Area()}
			if area := o.Rect.Area(); area > 0 {
				opts[j].Ratio = float64(fills[j]) / float64(area)
			}
		}
		answer, best := d.decide(q, fills)
		reports[i] = QuestionReport{
			Question: i + 1,
			Answer:   answer,
			Options:  opts,
		}
		if best >= 0 {
			reports[i].Strongest = q.Options[best].Label
		}
	}
	return reports
}
