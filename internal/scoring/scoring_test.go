package scoring

import (
	"fmt"
	"math"
	"testing"

	"github.com/stemsi/exstem-classroom/internal/model"
)

func makeQuestions(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:            fmt.Sprintf("q%d", i+1),
			Options:       []string{"a", "b", "c", "d"},
			CorrectAnswer: i % model.OptionCount,
		}
	}
	return qs
}

func TestGrade(t *testing.T) {
	qs := makeQuestions(10)

	allCorrect := model.Answers{}
	for _, q := range qs {
		allCorrect[q.ID] = q.CorrectAnswer
	}

	sevenCorrect := model.Answers{}
	for i, q := range qs {
		switch {
		case i < 7:
			sevenCorrect[q.ID] = q.CorrectAnswer
		case i == 7:
			sevenCorrect[q.ID] = (q.CorrectAnswer + 1) % model.OptionCount
		}
		// q9 and q10 stay unanswered.
	}

	outOfRange := model.Answers{"q1": 9, "q2": -1}

	tests := []struct {
		name    string
		answers model.Answers
		correct int
		score   float64
	}{
		{"no answers", model.Answers{}, 0, 0},
		{"nil answers", nil, 0, 0},
		{"all correct", allCorrect, 10, 5.0},
		{"seven of ten", sevenCorrect, 7, 3.5},
		{"out of range options never match", outOfRange, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Grade(qs, tt.answers)
			if got.Correct != tt.correct {
				t.Errorf("Correct = %d, want %d", got.Correct, tt.correct)
			}
			if got.Total != len(qs) {
				t.Errorf("Total = %d, want %d", got.Total, len(qs))
			}
			if math.Abs(got.Score-tt.score) > 1e-9 {
				t.Errorf("Score = %v, want %v", got.Score, tt.score)
			}
		})
	}
}

func TestGradeUnansweredEqualsWrong(t *testing.T) {
	qs := makeQuestions(4)
	unanswered := model.Answers{"q1": qs[0].CorrectAnswer}
	wrong := model.Answers{"q1": qs[0].CorrectAnswer}
	for _, q := range qs[1:] {
		wrong[q.ID] = (q.CorrectAnswer + 1) % model.OptionCount
	}

	if a, b := Score(qs, unanswered), Score(qs, wrong); a != b {
		t.Fatalf("unanswered score %v != wrong score %v", a, b)
	}
}

func TestGradeEmptyExam(t *testing.T) {
	if got := Score(nil, model.Answers{"q1": 0}); got != 0 {
		t.Fatalf("Score(empty) = %v, want 0", got)
	}
}

func TestGradeIgnoresUnknownQuestionIDs(t *testing.T) {
	qs := makeQuestions(2)
	answers := model.Answers{"q1": qs[0].CorrectAnswer, "ghost": 0}
	if got := Grade(qs, answers).Correct; got != 1 {
		t.Fatalf("Correct = %d, want 1", got)
	}
}

func TestFormat(t *testing.T) {
	tests := map[float64]string{
		3.5:       "3.50",
		0:         "0.00",
		5:         "5.00",
		5.0 / 3.0: "1.67",
	}
	for in, want := range tests {
		if got := Format(in); got != want {
			t.Errorf("Format(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestPercent(t *testing.T) {
	r := Result{Correct: 3, Total: 4}
	if got := r.Percent(); got != 75 {
		t.Fatalf("Percent = %v, want 75", got)
	}
	if got := (Result{}).Percent(); got != 0 {
		t.Fatalf("Percent(empty) = %v, want 0", got)
	}
}
