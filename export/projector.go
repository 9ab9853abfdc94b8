// Package export flattens stored questions, responses and answers into
// tables and encodes them for download.
package export

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mbolis/quick-survey/catalog"
	"github.com/mbolis/quick-survey/model"
	"github.com/mbolis/quick-survey/survey"
)

const (
	dateLayout   = "2006-01-02 15:04:05"
	promptLength = 60
)

// Table is a header row plus data rows of equal width.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]string
}

func QuestionsTable(questions []model.Question) Table {
	t := Table{
		Name:    "questions",
		Headers: []string{"id", "category", "prompt", "target_audience", "note", "is_active", "created_at", "updated_at"},
	}
	for _, q := range questions {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(q.ID),
			q.Category,
			q.Prompt,
			string(q.TargetAudience),
			q.Note,
			boolCell(q.Active),
			dateCell(q.CreatedAt),
			dateCell(q.UpdatedAt),
		})
	}
	return t
}

func ResponsesTable(responses []model.SurveyResponse) Table {
	t := Table{
		Name:    "responses",
		Headers: []string{"id", "Respondent Name", "Respondent Email", "Respondent Role", "Response Date", "Last Updated"},
	}
	for _, r := range responses {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(r.ID),
			r.Name,
			r.Email,
			r.Role.Label(),
			dateCell(r.CreatedAt),
			dateCell(r.UpdatedAt),
		})
	}
	return t
}

func AnswersTable(records []survey.AnswerRecord) Table {
	t := Table{
		Name:    "answers",
		Headers: []string{"Response ID", "Respondent Name", "Respondent Email", "Question ID", "Question Category", "Question", "Answer", "Answered At"},
	}
	for _, a := range records {
		t.Rows = append(t.Rows, []string{
			strconv.Itoa(a.ResponseID),
			a.RespondentName,
			a.RespondentEmail,
			strconv.Itoa(a.QuestionID),
			a.QuestionCategory,
			a.QuestionPrompt,
			a.Text,
			dateCell(a.CreatedAt),
		})
	}
	return t
}

// Column is one question column of the wide export.
type Column struct {
	QuestionID int
	Header     string
}

var wideFixedHeaders = []string{"ID", "Respondent Name", "Respondent Email", "Respondent Role", "Response Date"}

// WideColumns computes one column per question, in the given order.
func WideColumns(questions []model.Question) []Column {
	cols := make([]Column, len(questions))
	for i, q := range questions {
		cols[i] = Column{QuestionID: q.ID, Header: fmt.Sprintf("Q%d: %s", q.ID, shortPrompt(q.Prompt))}
	}
	return cols
}

// WideTable lays out one row per response, one cell per column. Questions a
// response did not answer get an empty cell.
func WideTable(columns []Column, responses []model.SurveyResponse) Table {
	t := Table{
		Name:    "responses-wide",
		Headers: append([]string{}, wideFixedHeaders...),
	}
	for _, c := range columns {
		t.Headers = append(t.Headers, c.Header)
	}

	for _, r := range responses {
		answers := make(map[int]string, len(r.Answers))
		for _, a := range r.Answers {
			answers[a.QuestionID] = a.Text
		}

		name := r.Name
		if name == "" {
			name = "Anonymous"
		}
		row := make([]string, 0, len(t.Headers))
		row = append(row,
			strconv.Itoa(r.ID),
			name,
			r.Email,
			r.Role.Label(),
			dateCell(r.CreatedAt),
		)
		for _, c := range columns {
			row = append(row, answers[c.QuestionID])
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Resources lists the exportable tables by name.
var Resources = []string{"questions", "responses", "answers", "responses-wide"}

// Load builds the named table from the database.
func Load(ctx context.Context, db catalog.Querier, resource string) (Table, error) {
	switch resource {
	case "questions":
		qs, err := catalog.ListQuestions(ctx, db, catalog.Filter{})
		if err != nil {
			return Table{}, err
		}
		return QuestionsTable(qs), nil

	case "responses":
		rs, err := survey.ListResponses(ctx, db, survey.ResponseFilter{}, false)
		if err != nil {
			return Table{}, err
		}
		return ResponsesTable(rs), nil

	case "answers":
		records, err := survey.ListAnswers(ctx, db, survey.AnswerFilter{})
		if err != nil {
			return Table{}, err
		}
		return AnswersTable(records), nil

	case "responses-wide":
		qs, err := catalog.ActiveQuestions(ctx, db)
		if err != nil {
			return Table{}, err
		}
		rs, err := survey.ListResponses(ctx, db, survey.ResponseFilter{}, true)
		if err != nil {
			return Table{}, err
		}
		return WideTable(WideColumns(qs), rs), nil
	}
	return Table{}, fmt.Errorf("%w: %q", ErrUnknownResource, resource)
}

func shortPrompt(prompt string) string {
	runes := []rune(prompt)
	if len(runes) > promptLength {
		return string(runes[:promptLength]) + "..."
	}
	return prompt
}

func dateCell(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func boolCell(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
