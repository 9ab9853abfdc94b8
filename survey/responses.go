package survey

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mbolis/quick-survey/catalog"
	"github.com/mbolis/quick-survey/model"
)

var ErrResponseNotFound = errors.New("response not found")

type ResponseFilter struct {
	Role model.Role
	// Search matches respondent name or email.
	Search string
}

// ListResponses returns responses newest first. When withAnswers is set each
// response carries its answers ordered by question.
func ListResponses(ctx context.Context, db catalog.Querier, filter ResponseFilter, withAnswers bool) ([]model.SurveyResponse, error) {
	var clauses []string
	var args []any
	if filter.Role != "" {
		clauses = append(clauses, "r.respondent_role = ?")
		args = append(args, string(filter.Role))
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		clauses = append(clauses, "(r.respondent_name LIKE ? OR r.respondent_email LIKE ?)")
		like := "%" + s + "%"
		args = append(args, like, like)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := db.QueryContext(ctx, `
		SELECT r.id, r.respondent_name, r.respondent_email, r.respondent_role, r.created_at, r.updated_at
		FROM survey_response r`+where+`
		ORDER BY r.created_at DESC, r.id DESC`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	responses := []model.SurveyResponse{}
	index := map[int]int{}
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		index[r.ID] = len(responses)
		responses = append(responses, r)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	if !withAnswers || len(responses) == 0 {
		return responses, nil
	}

	arows, err := db.QueryContext(ctx, `
		SELECT a.id, a.response_id, a.question_id, a.answer_text, a.created_at
		FROM survey_answer a
		INNER JOIN survey_response r ON (r.id = a.response_id)`+where+`
		ORDER BY a.response_id, a.question_id`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer arows.Close()

	for arows.Next() {
		a := model.SurveyAnswer{}
		err = arows.Scan(&a.ID, &a.ResponseID, &a.QuestionID, &a.Text, &a.CreatedAt)
		if err != nil {
			return nil, err
		}
		if i, ok := index[a.ResponseID]; ok {
			responses[i].Answers = append(responses[i].Answers, a)
		}
	}
	return responses, arows.Err()
}

func GetResponse(ctx context.Context, db catalog.Querier, id int) (model.SurveyResponse, error) {
	r, err := scanResponse(db.QueryRowContext(ctx, `
		SELECT id, respondent_name, respondent_email, respondent_role, created_at, updated_at
		FROM survey_response
		WHERE id = ?`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrResponseNotFound
	}
	if err != nil {
		return r, err
	}

	records, err := ListAnswers(ctx, db, AnswerFilter{ResponseID: id})
	if err != nil {
		return r, err
	}
	for _, rec := range records {
		r.Answers = append(r.Answers, rec.SurveyAnswer)
	}
	return r, nil
}

// DeleteResponse removes a response; its answers go with it.
func DeleteResponse(ctx context.Context, db catalog.Querier, id int) error {
	res, err := db.ExecContext(ctx, `DELETE FROM survey_response WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n < 1 {
		return ErrResponseNotFound
	}
	return nil
}

// AnswerRecord is an answer joined with its respondent and question.
type AnswerRecord struct {
	model.SurveyAnswer
	RespondentName   string `json:"respondent_name"`
	RespondentEmail  string `json:"respondent_email"`
	QuestionCategory string `json:"question_category"`
	QuestionPrompt   string `json:"question_prompt"`
}

type AnswerFilter struct {
	ResponseID int
	QuestionID int
}

func ListAnswers(ctx context.Context, db catalog.Querier, filter AnswerFilter) ([]AnswerRecord, error) {
	var clauses []string
	var args []any
	if filter.ResponseID != 0 {
		clauses = append(clauses, "a.response_id = ?")
		args = append(args, filter.ResponseID)
	}
	if filter.QuestionID != 0 {
		clauses = append(clauses, "a.question_id = ?")
		args = append(args, filter.QuestionID)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := db.QueryContext(ctx, `
		SELECT
			a.id, a.response_id, a.question_id, a.answer_text, a.created_at,
			r.respondent_name, r.respondent_email,
			q.category, q.prompt
		FROM survey_answer a
		INNER JOIN survey_response r ON (r.id = a.response_id)
		INNER JOIN question q ON (q.id = a.question_id)`+where+`
		ORDER BY a.response_id, a.question_id`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []AnswerRecord{}
	for rows.Next() {
		rec := AnswerRecord{}
		err = rows.Scan(
			&rec.ID, &rec.ResponseID, &rec.QuestionID, &rec.Text, &rec.CreatedAt,
			&rec.RespondentName, &rec.RespondentEmail,
			&rec.QuestionCategory, &rec.QuestionPrompt,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResponse(row scanner) (r model.SurveyResponse, err error) {
	var role string
	err = row.Scan(&r.ID, &r.Name, &r.Email, &role, &r.CreatedAt, &r.UpdatedAt)
	r.Role = model.Role(role)
	return
}
