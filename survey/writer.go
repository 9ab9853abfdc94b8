package survey

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mbolis/quick-survey/log"
	"github.com/mbolis/quick-survey/model"
)

// ErrSave wraps every failure to persist a response. Nothing is stored when
// it is returned.
var ErrSave = errors.New("could not save response")

// SaveResponse stores one response and its answers in a single transaction
// and returns the new response id. The stored role is derived from the
// answers, so it may differ from the submitted one.
func SaveResponse(ctx context.Context, db *sql.DB, questions []model.Question, v Values) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin: %w", ErrSave, err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	role := DeriveRole(v.Role, v.Classification())

	var responseID int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO survey_response (respondent_name, respondent_email, respondent_role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		strings.TrimSpace(v.Name),
		strings.TrimSpace(v.Email),
		string(role),
		now,
		now,
	).Scan(&responseID)
	if err != nil {
		return 0, fmt.Errorf("%w: insert response: %w", ErrSave, err)
	}

	answers := resolveAnswers(questions, v.Answers)
	if len(answers) > 0 {
		err = insertAnswers(ctx, tx, responseID, answers, now)
		if err != nil {
			return 0, fmt.Errorf("%w: insert answers: %w", ErrSave, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("%w: commit: %w", ErrSave, err)
	}
	return responseID, nil
}

type answerRow struct {
	questionID int
	text       string
}

// resolveAnswers maps cleaned values to stored text in question order.
// Choice values become their option label; a value matching no option is
// kept as typed.
func resolveAnswers(questions []model.Question, values map[int]string) []answerRow {
	rows := make([]answerRow, 0, len(values))
	for _, q := range questions {
		value := strings.TrimSpace(values[q.ID])
		if value == "" {
			continue
		}
		text := value
		if len(q.Options) > 0 {
			if o, ok := q.Option(value); ok {
				text = o.Label
			} else {
				log.Warnf("survey.resolve_answer: question %d has no option %q, storing as text", q.ID, value)
			}
		}
		rows = append(rows, answerRow{questionID: q.ID, text: text})
	}
	return rows
}

func insertAnswers(ctx context.Context, tx *sql.Tx, responseID int, answers []answerRow, now time.Time) error {
	query := `INSERT INTO survey_answer (response_id, question_id, answer_text, created_at) VALUES ` +
		strings.TrimSuffix(strings.Repeat("(?, ?, ?, ?), ", len(answers)), ", ")

	args := make([]any, 0, 4*len(answers))
	for _, a := range answers {
		args = append(args, responseID, a.questionID, a.text, now)
	}

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
