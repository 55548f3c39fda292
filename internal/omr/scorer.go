package omr

import (
	"github.com/varshakam/omr-eval/internal/layout"
)

// Score counts the positions where the detected answer equals the key.
// Answers and key are paired position by position up to the shorter of
// the two; the registry guarantees they have equal length for real exams.
func Score(answers []Answer, key layout.AnswerKey) int {
	score := 0
	for i := 0; i < len(answers) && i < len(key); i++ {
		if !answers[i].IsBlank() && string(answers[i]) == key[i] {
			score++
		}
	}
	return score
}
