package omr

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SubjectResult is the outcome for one subject.
type SubjectResult struct {
	Score    int      `json:"score"`
	MaxScore int      `json:"max_score"`
	Answers  []Answer `json:"answers"`
}

// SubjectScore is a SubjectResult with its subject name.
type SubjectScore struct {
	Name string
	SubjectResult
}

// ExamResult is the graded sheet. Subjects keep the order of the exam
// layout. Total is the sum of subject scores.
type ExamResult struct {
	Version  string
	Subjects []SubjectScore
	Total    int
}

// Subject returns the result of the named subject.
func (r *ExamResult) Subject(name string) (SubjectResult, bool) {
	for _, s := range r.Subjects {
		if s.Name == name {
			return s.SubjectResult, true
		}
	}
	return SubjectResult{}, false
}

// MaxTotal is the number of questions over all subjects.
func (r *ExamResult) MaxTotal() int {
	n := 0
	for _, s := range r.Subjects {
		n += s.MaxScore
	}
	return n
}

// MarshalJSON writes {"version", "results": {subject: ...}, "total"} with
// results in subject order.
func (r ExamResult) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	version, err := json.Marshal(r.Version)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`{"version":`)
	buf.Write(version)

	buf.WriteString(`,"results":{`)
	for i, s := range r.Subjects {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(s.Name)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(s.SubjectResult)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(body)
	}
	buf.WriteString(`},"total":`)
	fmt.Fprintf(&buf, "%d}", r.Total)

	return buf.Bytes(), nil
}

// UnmarshalJSON reads the form written by MarshalJSON, keeping the order
// of the results object. Unknown keys are ignored.
func (r *ExamResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		Version string          `json:"version"`
		Results json.RawMessage `json:"results"`
		Total   int             `json:"total"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	subjects, err := decodeOrderedResults(raw.Results)
	if err != nil {
		return err
	}

	r.Version = raw.Version
	r.Subjects = subjects
	r.Total = raw.Total
	return nil
}

func decodeOrderedResults(data json.RawMessage) ([]SubjectScore, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("results: expected object, got %v", tok)
	}

	var subjects []SubjectScore
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("results: expected subject name, got %v", tok)
		}
		var sr SubjectResult
		if err := dec.Decode(&sr); err != nil {
			return nil, fmt.Errorf("results: subject %s: %w", name, err)
		}
		subjects = append(subjects, SubjectScore{Name: name, SubjectResult: sr})
	}
	return subjects, nil
}
