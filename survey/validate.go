package survey

import (
	"net/url"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/mbolis/quick-survey/model"
)

// ClassificationQuestionID is the "which of these best describes you?"
// question. Some of its answers classify the respondent as a builder.
const ClassificationQuestionID = 1

var builderAnswers = map[string]bool{
	"developer": true,
	"founder":   true,
}

const (
	MsgBuilderRequired = "This question is required for builders."
	MsgInvalidEmail    = "Enter a valid email address."
	MsgInvalidRole     = "Select a valid choice."
	MsgNameTooLong     = "Ensure this value has at most 120 characters."
)

// IsBuilder tells whether a respondent is a builder. Either signal is enough:
// the role radio, or a builder answer to the classification question.
func IsBuilder(role model.Role, classification string) bool {
	return role == model.RoleBuilder || builderAnswers[classification]
}

func DeriveRole(role model.Role, classification string) model.Role {
	if IsBuilder(role, classification) {
		return model.RoleBuilder
	}
	return model.RoleGeneral
}

// Values is a cleaned submission. Answers holds trimmed values keyed by
// question id; unanswered questions are absent.
type Values struct {
	Name    string
	Email   string
	Role    model.Role
	Answers map[int]string
}

func (v Values) Classification() string {
	return v.Answers[ClassificationQuestionID]
}

type Result struct {
	Cleaned Values
	// Raw keeps what was posted, for re-rendering the form.
	Raw    url.Values
	Errors map[string][]string
}

func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

func (r *Result) addError(field, msg string) {
	if r.Errors == nil {
		r.Errors = map[string][]string{}
	}
	r.Errors[field] = append(r.Errors[field], msg)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func fieldValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterValidation("role", func(fl validator.FieldLevel) bool {
			return model.Role(fl.Field().String()).Valid()
		})
	})
	return validate
}

// Validate cleans a posted form. It never fails as a whole: problems are
// collected per field and Valid reports whether there were any.
func (f Form) Validate(input url.Values) Result {
	v := fieldValidator()
	res := Result{
		Raw: input,
		Cleaned: Values{
			Name:    strings.TrimSpace(input.Get(NameField)),
			Email:   strings.TrimSpace(input.Get(EmailField)),
			Role:    model.Role(strings.TrimSpace(input.Get(RoleField))),
			Answers: map[int]string{},
		},
	}

	if err := v.Var(res.Cleaned.Name, "max=120"); err != nil {
		res.addError(NameField, MsgNameTooLong)
	}
	if err := v.Var(res.Cleaned.Email, "omitempty,email"); err != nil {
		res.addError(EmailField, MsgInvalidEmail)
	}
	if res.Cleaned.Role == "" {
		res.Cleaned.Role = model.RoleGeneral
	}
	if err := v.Var(string(res.Cleaned.Role), "role"); err != nil {
		res.addError(RoleField, MsgInvalidRole)
	}

	for _, q := range f.questions {
		if answer := strings.TrimSpace(input.Get(FieldName(q))); answer != "" {
			res.Cleaned.Answers[q.ID] = answer
		}
	}

	builder := IsBuilder(res.Cleaned.Role, res.Cleaned.Classification())
	for _, q := range f.questions {
		if builder && q.BuildersOnly() && res.Cleaned.Answers[q.ID] == "" {
			res.addError(FieldName(q), MsgBuilderRequired)
		}
	}

	return res
}
