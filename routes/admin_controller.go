package routes

import (
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/mbolis/quick-survey/app"
	"github.com/mbolis/quick-survey/catalog"
	"github.com/mbolis/quick-survey/httpx"
	"github.com/mbolis/quick-survey/log"
	"github.com/mbolis/quick-survey/model"
	"github.com/mbolis/quick-survey/survey"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("audience", func(fl validator.FieldLevel) bool {
		return model.Audience(fl.Field().String()).Valid()
	})
	return v
}

// questionInput is the body of PUT /questions/{id}. Copy fields are replaced
// as a whole; options are only touched when the key is present.
type questionInput struct {
	Category       string         `json:"category" validate:"max=100"`
	Prompt         string         `json:"prompt" validate:"required"`
	TargetAudience model.Audience `json:"target_audience" validate:"required,audience"`
	Note           string         `json:"note"`
	Active         *bool          `json:"is_active" validate:"required"`
	Options        []optionInput  `json:"options" validate:"omitempty,unique=Value,dive"`
}

type optionInput struct {
	Value string `json:"value" validate:"required,max=100"`
	Label string `json:"label" validate:"required,max=255"`
}

// trim strips surrounding spaces so that blank values fail required and
// values differing only by spaces count as duplicates.
func (in *questionInput) trim() {
	in.Category = strings.TrimSpace(in.Category)
	in.Prompt = strings.TrimSpace(in.Prompt)
	in.Note = strings.TrimSpace(in.Note)
	for i := range in.Options {
		in.Options[i].Value = strings.TrimSpace(in.Options[i].Value)
		in.Options[i].Label = strings.TrimSpace(in.Options[i].Label)
	}
}

func (in questionInput) question(id int) model.Question {
	q := model.Question{
		ID:             id,
		Category:       in.Category,
		Prompt:         in.Prompt,
		TargetAudience: in.TargetAudience,
		Note:           in.Note,
		Active:         *in.Active,
	}
	if in.Options != nil {
		q.Options = make([]model.QuestionOption, len(in.Options))
		for i, o := range in.Options {
			q.Options[i] = model.QuestionOption{Value: o.Value, Label: o.Label}
		}
	}
	return q
}

func urlID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

// queryID reads an optional numeric filter; missing means zero.
func queryID(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func ListQuestions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		filter := catalog.Filter{
			Audience: model.Audience(query.Get("audience")),
			Search:   query.Get("q"),
		}
		if filter.Audience != "" && !filter.Audience.Valid() {
			httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel, "request.query.audience", "invalid audience %q", filter.Audience)
			return
		}
		if v := query.Get("active"); v != "" {
			active, err := strconv.ParseBool(v)
			if err != nil {
				httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel, "request.query.active", "invalid active flag %q", v)
				return
			}
			filter.Active = &active
		}

		questions, err := catalog.ListQuestions(r.Context(), app.DB, filter)
		if err != nil {
			httpx.LogInternalError(w, r, "db.get_questions", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"questions": questions,
		})
	}
}

func GetQuestion(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionID, err := urlID(r)
		if err != nil {
			httpx.LogStatus(w, r, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		question, err := catalog.GetQuestion(r.Context(), app.DB, questionID)
		if errors.Is(err, catalog.ErrNotFound) {
			httpx.LogNotFound(w, r, "get_question", questionID)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, r, "db.get_question", err)
			return
		}

		render.JSON(w, r, question)
	}
}

func UpdateQuestion(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionID, err := urlID(r)
		if err != nil {
			httpx.LogStatus(w, r, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		var in questionInput
		err = render.DecodeJSON(r.Body, &in)
		if err != nil {
			httpx.LogStatus(w, r, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		in.trim()
		err = validate.Struct(in)
		if err != nil {
			renderValidationErrors(w, r, "request.validate_body", err)
			return
		}

		err = catalog.UpdateQuestion(r.Context(), app.DB, in.question(questionID))
		if errors.Is(err, catalog.ErrNotFound) {
			httpx.LogNotFound(w, r, "update_question", questionID)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, r, "db.update_question", err)
			return
		}

		question, err := catalog.GetQuestion(r.Context(), app.DB, questionID)
		if err != nil {
			httpx.LogInternalError(w, r, "db.update_question.reload", err)
			return
		}
		log.WithFields(log.Fields{"question": question.String()}).Info("catalog.question_updated")

		render.JSON(w, r, question)
	}
}

func DeleteQuestion(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questionID, err := urlID(r)
		if err != nil {
			httpx.LogStatus(w, r, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		err = catalog.DeleteQuestion(r.Context(), app.DB, questionID)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			httpx.LogNotFound(w, r, "delete_question", questionID)
		case errors.Is(err, catalog.ErrProtected):
			httpx.LogStatusMsg(w, r, http.StatusConflict, log.InfoLevel, "delete_question.protected",
				"question %d has answers; deactivate it instead", questionID)
		case err != nil:
			httpx.LogInternalError(w, r, "db.delete_question", err)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

func ListResponses(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		filter := survey.ResponseFilter{
			Role:   model.Role(query.Get("role")),
			Search: query.Get("q"),
		}
		if filter.Role != "" && !filter.Role.Valid() {
			httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel, "request.query.role", "invalid role %q", filter.Role)
			return
		}
		withAnswers := query.Get("answers") == "true"

		responses, err := survey.ListResponses(r.Context(), app.DB, filter, withAnswers)
		if err != nil {
			httpx.LogInternalError(w, r, "db.get_responses", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"responses": responses,
		})
	}
}

func GetResponse(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responseID, err := urlID(r)
		if err != nil {
			httpx.LogStatus(w, r, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		response, err := survey.GetResponse(r.Context(), app.DB, responseID)
		if errors.Is(err, survey.ErrResponseNotFound) {
			httpx.LogNotFound(w, r, "get_response", responseID)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, r, "db.get_response", err)
			return
		}

		render.JSON(w, r, response)
	}
}

func DeleteResponse(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responseID, err := urlID(r)
		if err != nil {
			httpx.LogStatus(w, r, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		err = survey.DeleteResponse(r.Context(), app.DB, responseID)
		if errors.Is(err, survey.ErrResponseNotFound) {
			httpx.LogNotFound(w, r, "delete_response", responseID)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, r, "db.delete_response", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func ListAnswers(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var filter survey.AnswerFilter
		var err error
		filter.ResponseID, err = queryID(r, "response_id")
		if err != nil {
			httpx.LogStatus(w, r, http.StatusBadRequest, log.DebugLevel, "request.query.response_id")
			return
		}
		filter.QuestionID, err = queryID(r, "question_id")
		if err != nil {
			httpx.LogStatus(w, r, http.StatusBadRequest, log.DebugLevel, "request.query.question_id")
			return
		}

		answers, err := survey.ListAnswers(r.Context(), app.DB, filter)
		if err != nil {
			httpx.LogInternalError(w, r, "db.get_answers", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"answers": answers,
		})
	}
}

// renderValidationErrors answers 422 with the failing rule per JSON field.
func renderValidationErrors(w http.ResponseWriter, r *http.Request, code string, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		httpx.LogInternalError(w, r, code, err)
		return
	}

	fields := map[string]string{}
	for _, fe := range verrs {
		// drop the struct name
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		fields[field] = fe.Tag()
	}
	log.WithFields(log.Fields{"errors": fields}).Debug(code)

	render.Status(r, http.StatusUnprocessableEntity)
	render.JSON(w, r, map[string]any{
		"errors": fields,
	})
}
