package omr

import (
	"encoding/json"
)

// Answer is the label detected for one question.
type Answer string

// NoAnswer marks a question with no acceptably filled bubble. A blank
// question and one where the strongest mark is too faint look the same.
// It serialises as JSON null and never matches a key label.
const NoAnswer Answer = ""

// IsBlank reports whether a is NoAnswer.
func (a Answer) IsBlank() bool { return a == NoAnswer }

// MarshalJSON renders NoAnswer as null and any label as a string.
func (a Answer) MarshalJSON() ([]byte, error) {
	if a.IsBlank() {
		return []byte("null"), nil
	}
	return json.Marshal(string(a))
}

// UnmarshalJSON accepts a string label or null.
func (a *Answer) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = NoAnswer
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*a = Answer(s)
	return nil
}

// CountBlank returns how many answers are NoAnswer.
func CountBlank(answers []Answer) int {
	n := 0
	for _, a := range answers {
		if a.IsBlank() {
			n++
		}
	}
	return n
}
