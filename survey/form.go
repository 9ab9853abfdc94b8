// Package survey turns the active question set into a per-request form,
// validates submissions against it and stores the valid ones.
package survey

import (
	"html"
	"strconv"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/mbolis/quick-survey/model"
)

type Kind string

const (
	KindChoice Kind = "choice"
	KindText   Kind = "text"
)

// Widget is a presentation hint only; validation never looks at it.
type Widget string

const (
	WidgetRadio    Widget = "radio"
	WidgetTextarea Widget = "textarea"
	WidgetInput    Widget = "input"
	WidgetEmail    Widget = "email"
)

const (
	NameField  = "respondent_name"
	EmailField = "respondent_email"
	RoleField  = "respondent_role"

	helpSeparator     = " • "
	textareaRows      = 3
	answerPlaceholder = "Share as much detail as you can..."
)

type Choice struct {
	Value string
	Label string
}

type Field struct {
	Key         string
	Kind        Kind
	Widget      Widget
	Label       string
	Choices     []Choice
	Initial     string
	Required    bool
	HelpText    string
	Rows        int
	Placeholder string
	// QuestionID is zero for the respondent fields.
	QuestionID int
}

// Form is the schema of one rendering of the survey. It is rebuilt from the
// catalog for every request.
type Form struct {
	Respondent []Field
	Questions  []Field

	questions []model.Question
}

func FieldName(q model.Question) string {
	return "question_" + strconv.Itoa(q.ID)
}

func BuildForm(questions []model.Question) Form {
	form := Form{
		Respondent: respondentFields(),
		Questions:  make([]Field, 0, len(questions)),
		questions:  questions,
	}
	for _, q := range questions {
		form.Questions = append(form.Questions, questionField(q))
	}
	return form
}

func (f Form) Fields() []Field {
	fields := make([]Field, 0, len(f.Respondent)+len(f.Questions))
	fields = append(fields, f.Respondent...)
	return append(fields, f.Questions...)
}

func (f Form) Empty() bool {
	return len(f.questions) == 0
}

// QuestionList returns the questions the form was built from, in display order.
func (f Form) QuestionList() []model.Question {
	return f.questions
}

func respondentFields() []Field {
	roles := make([]Choice, len(model.Roles))
	for i, r := range model.Roles {
		roles[i] = Choice{Value: string(r), Label: r.Label()}
	}
	return []Field{
		{
			Key:      NameField,
			Kind:     KindText,
			Widget:   WidgetInput,
			Label:    "Your name",
			HelpText: "Optional. Helps us follow up with clarifying questions.",
		},
		{
			Key:      EmailField,
			Kind:     KindText,
			Widget:   WidgetEmail,
			Label:    "Email",
			HelpText: "Optional. We will only use it to follow up on your answers.",
		},
		{
			Key:      RoleField,
			Kind:     KindChoice,
			Widget:   WidgetRadio,
			Label:    "Which best describes you?",
			Choices:  roles,
			Initial:  string(model.RoleGeneral),
			Required: true,
		},
	}
}

func questionField(q model.Question) Field {
	field := Field{
		Key:        FieldName(q),
		Label:      q.Prompt,
		HelpText:   helpText(q),
		QuestionID: q.ID,
	}
	if len(q.Options) > 0 {
		field.Kind = KindChoice
		field.Widget = WidgetRadio
		field.Choices = make([]Choice, len(q.Options))
		for i, o := range q.Options {
			field.Choices[i] = Choice{Value: o.Value, Label: o.Label}
		}
		return field
	}
	field.Kind = KindText
	field.Widget = WidgetTextarea
	field.Rows = textareaRows
	field.Placeholder = answerPlaceholder
	return field
}

func helpText(q model.Question) string {
	var parts []string
	if c := strings.TrimSpace(q.Category); c != "" {
		parts = append(parts, c)
	}
	if q.BuildersOnly() {
		parts = append(parts, "Builders only")
	}
	if note := plainText(q.Note); note != "" {
		parts = append(parts, note)
	}
	return strings.Join(parts, helpSeparator)
}

var (
	notePolicyOnce sync.Once
	notePolicy     *bluemonday.Policy
)

// plainText strips any markup an admin may have typed into a note. The
// policy escapes what it keeps, templates escape again, so undo it here.
func plainText(raw string) string {
	notePolicyOnce.Do(func() {
		notePolicy = bluemonday.StrictPolicy()
	})
	return strings.TrimSpace(html.UnescapeString(notePolicy.Sanitize(raw)))
}
