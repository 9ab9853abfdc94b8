// Package catalog reads and maintains the question bank: questions and the
// ordered options that turn a question into a single choice.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/mbolis/quick-survey/model"
)

var (
	ErrNotFound = errors.New("question not found")
	// ErrProtected is returned when deleting a question that still has answers.
	ErrProtected = errors.New("question has answers")
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const selectQuestion = `
	SELECT q.id, q.category, q.prompt, q.target_audience, q.note, q.is_active, q.created_at, q.updated_at
	FROM question q`

// ActiveQuestions returns the live form's questions ordered by id, each with
// its options ordered by rank.
func ActiveQuestions(ctx context.Context, db Querier) ([]model.Question, error) {
	return ListQuestions(ctx, db, Filter{Active: boolPtr(true)})
}

type Filter struct {
	Audience model.Audience
	Active   *bool
	// Search matches prompt or category, case insensitive.
	Search string
}

func ListQuestions(ctx context.Context, db Querier, filter Filter) ([]model.Question, error) {
	where, args := filter.where()

	rows, err := db.QueryContext(ctx, selectQuestion+where+` ORDER BY q.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := []model.Question{}
	index := map[int]int{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if len(questions) == 0 {
		return questions, nil
	}

	orows, err := db.QueryContext(ctx, `
		SELECT o.id, o.question_id, o.value, o.label, o.ord
		FROM question_option o
		INNER JOIN question q ON (q.id = o.question_id)`+where+`
		ORDER BY o.question_id, o.ord, o.id`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer orows.Close()

	for orows.Next() {
		o := model.QuestionOption{}
		err = orows.Scan(&o.ID, &o.QuestionID, &o.Value, &o.Label, &o.Order)
		if err != nil {
			return nil, err
		}
		if i, ok := index[o.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, o)
		}
	}
	return questions, orows.Err()
}

func (f Filter) where() (string, []any) {
	var clauses []string
	var args []any
	if f.Audience != "" {
		clauses = append(clauses, "q.target_audience = ?")
		args = append(args, string(f.Audience))
	}
	if f.Active != nil {
		clauses = append(clauses, "q.is_active = ?")
		args = append(args, *f.Active)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		clauses = append(clauses, "(q.prompt LIKE ? OR q.category LIKE ?)")
		like := "%" + s + "%"
		args = append(args, like, like)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func GetQuestion(ctx context.Context, db Querier, id int) (model.Question, error) {
	q, err := scanQuestion(db.QueryRowContext(ctx, selectQuestion+` WHERE q.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return q, ErrNotFound
	}
	if err != nil {
		return q, err
	}

	q.Options, err = listOptions(ctx, db, id)
	return q, err
}

func listOptions(ctx context.Context, db Querier, questionID int) ([]model.QuestionOption, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, question_id, value, label, ord
		FROM question_option
		WHERE question_id = ?
		ORDER BY ord, id`,
		questionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var options []model.QuestionOption
	for rows.Next() {
		o := model.QuestionOption{}
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.Value, &o.Label, &o.Order); err != nil {
			return nil, err
		}
		options = append(options, o)
	}
	return options, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row scanner) (q model.Question, err error) {
	var audience string
	err = row.Scan(&q.ID, &q.Category, &q.Prompt, &audience, &q.Note, &q.Active, &q.CreatedAt, &q.UpdatedAt)
	q.TargetAudience = model.Audience(audience)
	return
}

// UpdateQuestion edits a question's copy. When q.Options is non-nil the
// option rows are replaced: values are upserted in slice order and values
// missing from the slice are removed.
func UpdateQuestion(ctx context.Context, db *sql.DB, q model.Question) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE question
		SET
			category = ?,
			prompt = ?,
			target_audience = ?,
			note = ?,
			is_active = ?,
			updated_at = ?
		WHERE id = ?`,
		q.Category,
		q.Prompt,
		string(q.TargetAudience),
		q.Note,
		q.Active,
		now,
		q.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n < 1 {
		return ErrNotFound
	}

	if q.Options != nil {
		err = replaceOptions(ctx, tx, q.ID, q.Options, true, now)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DeleteQuestion removes a question and its options. Questions referenced
// by answers cannot be deleted; deactivate them instead.
func DeleteQuestion(ctx context.Context, db Querier, id int) error {
	res, err := db.ExecContext(ctx, `DELETE FROM question WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrProtected
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n < 1 {
		return ErrNotFound
	}
	return nil
}

// isForeignKeyViolation matches both ways SQLite reports a blocked delete:
// NO ACTION keys fail with CONSTRAINT_FOREIGNKEY, RESTRICT keys with
// CONSTRAINT_TRIGGER.
func isForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.Code != sqlite3.ErrConstraint {
		return false
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintForeignKey, sqlite3.ErrConstraintTrigger:
		return true
	}
	return false
}

// replaceOptions upserts options by (question, value), assigning 1-based
// ranks in slice order. Existing rows keep their ids.
func replaceOptions(ctx context.Context, db Querier, questionID int, options []model.QuestionOption, prune bool, now time.Time) error {
	values := make([]any, 0, len(options)+1)
	values = append(values, questionID)
	for i, o := range options {
		_, err := db.ExecContext(ctx, `
			INSERT INTO question_option (question_id, value, label, ord, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (question_id, value) DO UPDATE
			SET
				label = excluded.label,
				ord = excluded.ord,
				updated_at = excluded.updated_at
			WHERE label IS NOT excluded.label
				OR ord IS NOT excluded.ord`,
			questionID, o.Value, o.Label, i+1, now, now,
		)
		if err != nil {
			return err
		}
		values = append(values, o.Value)
	}

	if !prune {
		return nil
	}

	query := `DELETE FROM question_option WHERE question_id = ?`
	if len(options) > 0 {
		query += ` AND value NOT IN (?` + strings.Repeat(", ?", len(options)-1) + `)`
	}
	_, err := db.ExecContext(ctx, query, values...)
	return err
}

func boolPtr(b bool) *bool { return &b }
