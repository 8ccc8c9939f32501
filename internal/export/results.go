// Package export renders exam results as spreadsheets for professors.
package export

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/stemsi/exstem-classroom/internal/model"
	"github.com/stemsi/exstem-classroom/internal/scoring"
	"github.com/xuri/excelize/v2"
)

const resultsSheet = "Results"

var resultsHeader = []interface{}{
	"Student", "Email", "Status", "Score", "Correct", "Total",
	"Submitted at", "Reason", "Auto submitted", "Visibility warnings", "Feedback",
}

// ResultsWorkbook writes one row per attempt, ordered by student name.
func ResultsWorkbook(exam *model.Exam, attempts []model.ExamAttempt) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(resultsSheet, "A1", &resultsHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	sorted := make([]model.ExamAttempt, len(attempts))
	copy(sorted, attempts)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StudentName < sorted[j].StudentName })

	for i, a := range sorted {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := resultRow(exam, a)
		if err := f.SetSheetRow(resultsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}
	return buf, nil
}

func resultRow(exam *model.Exam, a model.ExamAttempt) []interface{} {
	grade := scoring.Grade(exam.Questions, a.Answers)

	score, submittedAt, reason, feedback := "", "", "", ""
	if a.Score != nil {
		score = scoring.Format(*a.Score)
	}
	if a.SubmittedAt != nil {
		submittedAt = a.SubmittedAt.UTC().Format(time.RFC3339)
	}
	if a.SubmissionReason != nil {
		reason = string(*a.SubmissionReason)
	}
	if a.Feedback != nil {
		feedback = *a.Feedback
	}

	return []interface{}{
		a.StudentName, a.StudentEmail, string(a.Status), score,
		grade.Correct, grade.Total, submittedAt, reason, a.AutoSubmitted,
		a.VisibilityWarnings, feedback,
	}
}
