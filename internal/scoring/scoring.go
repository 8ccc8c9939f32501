// Package scoring grades multiple-choice attempts on the fixed 0.0 to 5.0 scale.
package scoring

import (
	"strconv"

	"github.com/stemsi/exstem-classroom/internal/model"
)

// MaxScore is the top of the grading scale.
const MaxScore = 5.0

// Result breaks a score down for logging and feedback prompts.
type Result struct {
	Correct int
	Total   int
	Score   float64
}

// Grade counts the questions whose recorded answer equals the correct index.
// Unanswered and out-of-range answers are incorrect. There is no partial
// credit and no penalty term.
func Grade(questions []model.Question, answers model.Answers) Result {
	res := Result{Total: len(questions)}
	for _, q := range questions {
		if ans, ok := answers[q.ID]; ok && ans == q.CorrectAnswer {
			res.Correct++
		}
	}
	if res.Total > 0 {
		res.Score = float64(res.Correct) / float64(res.Total) * MaxScore
	}
	return res
}

// Score is Grade(...).Score.
func Score(questions []model.Question, answers model.Answers) float64 {
	return Grade(questions, answers).Score
}

// Format renders a score with two decimals, as carried by the result redirect.
func Format(score float64) string {
	return strconv.FormatFloat(score, 'f', 2, 64)
}

// Percent returns the share of correct answers in [0, 100].
func (r Result) Percent() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Correct) / float64(r.Total) * 100
}
