package llm

import (
	"fmt"
	"strings"

	"github.com/stemsi/exstem-classroom/internal/model"
	"github.com/stemsi/exstem-classroom/internal/scoring"
)

// QuestionsPrompt asks for count multiple-choice questions drawn from the
// documented sessions of a course. It returns false when the course has no
// documentation to draw from.
func QuestionsPrompt(course *model.Course, count int) (string, bool) {
	sessions := course.DocumentedSessions()
	if len(sessions) == 0 {
		return "", false
	}

	var docs strings.Builder
	for i, s := range sessions {
		if i > 0 {
			docs.WriteString("\n\n---\n\n")
		}
		title := s.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&docs, "## Session %d: %s\n\n%s\n", s.Number, title, strings.TrimSpace(s.Documentation))
	}

	description := course.Description
	if description == "" {
		description = "Not available"
	}

	var sb strings.Builder
	sb.WriteString("You are an expert teacher writing a multiple-choice exam.\n\n")
	sb.WriteString("COURSE CONTEXT:\n")
	sb.WriteString("Name: " + course.Name + "\n")
	sb.WriteString("Level: " + course.Level + "\n")
	sb.WriteString("Description: " + description + "\n\n")
	sb.WriteString("FULL COURSE DOCUMENTATION:\n")
	sb.WriteString(docs.String())
	sb.WriteString("\nTASK:\n")
	fmt.Fprintf(&sb, "Write exactly %d multiple-choice questions based on the documentation above.\n\n", count)
	sb.WriteString("REQUIREMENTS:\n")
	sb.WriteString("1. Cover the course topics in a balanced way.\n")
	sb.WriteString("2. Every question has exactly 4 options (A, B, C, D).\n")
	sb.WriteString("3. Exactly ONE option is correct.\n")
	sb.WriteString("4. Questions are clear and precise.\n")
	sb.WriteString("5. Avoid trivial or obvious questions.\n")
	sb.WriteString("6. Assess understanding, not literal recall.\n")
	sb.WriteString("7. Mix difficulty levels.\n\n")
	sb.WriteString("RESPONSE FORMAT (strict JSON):\n")
	sb.WriteString(`{"questions": [{"question": "text", "options": ["A", "B", "C", "D"], "correctAnswer": 0, "explanation": "why", "difficulty": "easy|medium|hard"}]}`)
	sb.WriteString("\n\nIMPORTANT:\n")
	sb.WriteString("- Reply with the JSON only, no text before or after it.\n")
	sb.WriteString("- correctAnswer is an index from 0 to 3 (0=A, 1=B, 2=C, 3=D).\n")
	fmt.Fprintf(&sb, "- Produce exactly %d questions.\n", count)
	return sb.String(), true
}

// FeedbackPrompt asks for a narrative feedback report on a submitted attempt.
// Each question is listed with the student's choice, the correct option and
// its explanation.
func FeedbackPrompt(exam *model.Exam, answers model.Answers, score float64) string {
	grade := scoring.Grade(exam.Questions, answers)

	var analysis strings.Builder
	for i, q := range exam.Questions {
		if i > 0 {
			analysis.WriteString("\n---\n\n")
		}
		chosen, answered := answers[q.ID]
		yours := "Not answered"
		if answered {
			yours = optionText(q, chosen)
		}
		status := "Incorrect"
		if answered && chosen == q.CorrectAnswer {
			status = "Correct"
		}
		fmt.Fprintf(&analysis, "**Question %d:** %s\n\n", i+1, q.Question)
		fmt.Fprintf(&analysis, "**Your answer:** %s\n", yours)
		fmt.Fprintf(&analysis, "**Correct answer:** %s\n", optionText(q, q.CorrectAnswer))
		fmt.Fprintf(&analysis, "**Status:** %s\n", status)
		if q.Explanation != "" {
			fmt.Fprintf(&analysis, "\n**Explanation:** %s\n", q.Explanation)
		}
	}

	var sb strings.Builder
	sb.WriteString("You are an expert academic tutor. Write constructive, motivating feedback ")
	sb.WriteString("for a student who has just finished an exam.\n\n")
	sb.WriteString("EXAM INFORMATION:\n")
	sb.WriteString("Title: " + exam.Title + "\n")
	fmt.Fprintf(&sb, "Grade: %s/%.1f\n", scoring.Format(score), scoring.MaxScore)
	fmt.Fprintf(&sb, "Correct answers: %d/%d\n", grade.Correct, grade.Total)
	fmt.Fprintf(&sb, "Accuracy: %.1f%%\n\n", grade.Percent())
	sb.WriteString("DETAILED ANSWER ANALYSIS:\n")
	sb.WriteString(analysis.String())
	sb.WriteString("\nTASK:\nWrite personalised feedback with these parts:\n\n")
	sb.WriteString("1. **Opening**: a motivating greeting that recognises the student's effort\n")
	sb.WriteString("2. **Strengths**: 2-3 areas where the student showed good command\n")
	sb.WriteString("3. **Areas to improve**: 2-3 specific topics to reinforce, based on the incorrect answers\n")
	sb.WriteString("4. **Recommendations**: 3-4 practical tips for the weak topics\n")
	sb.WriteString("5. **Closing**: a positive, motivating conclusion\n\n")
	sb.WriteString("STYLE:\nProfessional but warm. Specific and constructive. Not overly technical.\n\n")
	sb.WriteString("IMPORTANT:\n")
	sb.WriteString("- Be honest but always encouraging\n")
	sb.WriteString("- Focus on learning, not only the grade\n")
	sb.WriteString("- Give actionable feedback\n")
	sb.WriteString("- At most 500 words\n")
	return sb.String()
}

func optionText(q model.Question, i int) string {
	if i < 0 || i >= len(q.Options) {
		return "Invalid option"
	}
	return model.OptionLabel(i) + ") " + q.Options[i]
}
