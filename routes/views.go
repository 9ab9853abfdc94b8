package routes

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"net/url"

	"github.com/mbolis/quick-survey/httpx"
	"github.com/mbolis/quick-survey/survey"
)

const (
	bannerInvalid   = "Please correct the errors below and try again."
	bannerSaveError = "An error occurred while saving your response."

	pageTitle = "Quick Survey"
)

//go:embed templates/*.html
var templatesFS embed.FS

var views = map[string]*template.Template{
	"form.html":   parseView("form.html"),
	"thanks.html": parseView("thanks.html"),
}

func parseView(name string) *template.Template {
	return template.Must(template.ParseFS(templatesFS, "templates/layout.html", "templates/"+name))
}

// renderView sends nothing of the page when the template fails.
func renderView(w http.ResponseWriter, r *http.Request, name string, data any) {
	var buf bytes.Buffer
	err := views[name].ExecuteTemplate(&buf, "layout", data)
	if err != nil {
		httpx.LogInternalError(w, r, "view.render."+name, err)
		return
	}

	w.Header().Set("content-type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

type fieldView struct {
	survey.Field
	Value  string
	Errors []string
}

type formView struct {
	Title      string
	Banner     string
	Empty      bool
	Respondent []fieldView
	Questions  []fieldView
}

type thanksView struct {
	Title string
}

// newFormView pairs each field with what the user typed, if anything, and its errors.
// With nil input the fields show their initial values.
func newFormView(form survey.Form, input url.Values, errs map[string][]string, banner string) formView {
	bind := func(fields []survey.Field) []fieldView {
		out := make([]fieldView, len(fields))
		for i, f := range fields {
			value := f.Initial
			if input != nil {
				if v, ok := input[f.Key]; ok && len(v) > 0 {
					value = v[0]
				}
			}
			out[i] = fieldView{Field: f, Value: value, Errors: errs[f.Key]}
		}
		return out
	}

	return formView{
		Title:      pageTitle,
		Banner:     banner,
		Empty:      form.Empty(),
		Respondent: bind(form.Respondent),
		Questions:  bind(form.Questions),
	}
}
