package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stemsi/exstem-classroom/internal/model"
)

type generatedQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer *int     `json:"correctAnswer"`
	Explanation   string   `json:"explanation"`
	Difficulty    string   `json:"difficulty"`
}

// ParseQuestions extracts a {"questions": [...]} payload from raw model
// output and validates it against the expected count.
func ParseQuestions(raw string, count int) ([]model.Question, error) {
	body := StripJSON(raw)

	var payload struct {
		Questions []generatedQuestion `json:"questions"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(payload.Questions) != count {
		return nil, fmt.Errorf("%w: expected %d questions, got %d", ErrMalformedResponse, count, len(payload.Questions))
	}

	out := make([]model.Question, 0, count)
	for i, g := range payload.Questions {
		q, err := g.toQuestion(i)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (g generatedQuestion) toQuestion(i int) (model.Question, error) {
	n := i + 1
	if strings.TrimSpace(g.Question) == "" {
		return model.Question{}, fmt.Errorf("%w: question %d has no text", ErrMalformedResponse, n)
	}
	if len(g.Options) != model.OptionCount {
		return model.Question{}, fmt.Errorf("%w: question %d has %d options", ErrMalformedResponse, n, len(g.Options))
	}
	for j, o := range g.Options {
		if strings.TrimSpace(o) == "" {
			return model.Question{}, fmt.Errorf("%w: question %d option %s is empty", ErrMalformedResponse, n, model.OptionLabel(j))
		}
	}
	if g.CorrectAnswer == nil || *g.CorrectAnswer < 0 || *g.CorrectAnswer >= model.OptionCount {
		return model.Question{}, fmt.Errorf("%w: question %d has no valid correctAnswer", ErrMalformedResponse, n)
	}

	return model.Question{
		ID:            fmt.Sprintf("q%d", n),
		Question:      strings.TrimSpace(g.Question),
		Options:       g.Options,
		CorrectAnswer: *g.CorrectAnswer,
		Explanation:   strings.TrimSpace(g.Explanation),
		Difficulty:    normalizeDifficulty(g.Difficulty),
	}, nil
}

// StripJSON removes markdown code fences and any prose around the outermost
// JSON object.
func StripJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

func normalizeDifficulty(d string) model.Difficulty {
	switch model.Difficulty(strings.ToLower(strings.TrimSpace(d))) {
	case model.DifficultyEasy:
		return model.DifficultyEasy
	case model.DifficultyHard:
		return model.DifficultyHard
	case model.DifficultyMedium:
		return model.DifficultyMedium
	default:
		return ""
	}
}
