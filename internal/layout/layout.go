// Package layout describes where the answer bubbles of each exam version
// sit on the canonical sheet, and what the correct answers are.
//
// All geometry is in canonical raster pixels: the coordinate system of a
// sheet rescaled to imaging.ReferenceWidth.
package layout

import (
	"image"
)

// Rect is an axis-aligned rectangle given by its top-left corner and size.
type Rect struct {
	X      int `json:"x" mapstructure:"x"`
	Y      int `json:"y" mapstructure:"y"`
	Width  int `json:"width" mapstructure:"width"`
	Height int `json:"height" mapstructure:"height"`
}

// Area returns Width*Height.
func (r Rect) Area() int { return r.Width * r.Height }

// Right returns the exclusive right edge.
func (r Rect) Right() int { return r.X + r.Width }

// Bottom returns the exclusive bottom edge.
func (r Rect) Bottom() int { return r.Y + r.Height }

// Image converts r to an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Option is one bubble of a question.
type Option struct {
	Label string `json:"label"`
	Rect  Rect   `json:"rect"`
}

// Question is the ordered set of bubbles for one question.
type Question struct {
	Options []Option `json:"options"`
}

// SubjectLayout is the ordered list of questions of one subject.
type SubjectLayout []Question

// Bottom returns the largest bottom edge of any option, or 0 for an empty
// layout.
func (l SubjectLayout) Bottom() int {
	bottom := 0
	for _, q := range l {
		for _, o := range q.Options {
			bottom = max(bottom, o.Rect.Bottom())
		}
	}
	return bottom
}

// Right returns the largest right edge of any option.
func (l SubjectLayout) Right() int {
	right := 0
	for _, q := range l {
		for _, o := range q.Options {
			right = max(right, o.Rect.Right())
		}
	}
	return right
}

// AnswerKey holds the correct label of every question, in question order.
type AnswerKey []string

// Subject pairs a layout with its answer key.
type Subject struct {
	Name   string        `json:"name"`
	Layout SubjectLayout `json:"layout"`
	Key    AnswerKey     `json:"key"`
}

// Exam is one printed sheet version.
type Exam struct {
	Version  string    `json:"version"`
	Subjects []Subject `json:"subjects"`
}

// Bottom returns the lowest bubble edge over all subjects. A normalized
// sheet must be at least this tall to be gradable.
func (e Exam) Bottom() int {
	bottom := 0
	for _, s := range e.Subjects {
		bottom = max(bottom, s.Layout.Bottom())
	}
	return bottom
}

// Subject looks up a subject by name.
func (e Exam) Subject(name string) (Subject, bool) {
	for _, s := range e.Subjects {
		if s.Name == name {
			return s, true
		}
	}
	return Subject{}, false
}

// SubjectNames returns subject names in sheet order.
func (e Exam) SubjectNames() []string {
	names := make([]string, len(e.Subjects))
	for i, s := range e.Subjects {
		names[i] = s.Name
	}
	return names
}

// DefaultLabel returns the label of the option at index i when none is
// configured: A, B, ... Z, AA, AB, ...
func DefaultLabel(i int) string {
	label := ""
	for i >= 0 {
		label = string(rune('A'+i%26)) + label
		i = i/26 - 1
	}
	return label
}
