package routes

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/mbolis/quick-survey/app"
	"github.com/mbolis/quick-survey/catalog"
	"github.com/mbolis/quick-survey/httpx"
	"github.com/mbolis/quick-survey/log"
	"github.com/mbolis/quick-survey/survey"
)

func SurveyForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		questions, err := catalog.ActiveQuestions(r.Context(), app.DB)
		if err != nil {
			httpx.LogInternalError(w, r, "db.get_questions", err)
			return
		}

		form := survey.BuildForm(questions)
		renderView(w, r, "form.html", newFormView(form, nil, nil, ""))
	}
}

func SubmitSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := r.ParseForm()
		if err != nil {
			httpx.LogStatus(w, r, http.StatusBadRequest, log.DebugLevel, "request.parse_form")
			return
		}

		questions, err := catalog.ActiveQuestions(r.Context(), app.DB)
		if err != nil {
			httpx.LogInternalError(w, r, "db.get_questions", err)
			return
		}
		form := survey.BuildForm(questions)

		res := form.Validate(r.PostForm)
		if !res.Valid() {
			log.WithFields(log.Fields{"errors": res.Errors}).Debug("form.validate")
			renderView(w, r, "form.html", newFormView(form, res.Raw, res.Errors, bannerInvalid))
			return
		}

		responseID, err := survey.SaveResponse(r.Context(), app.DB, form.QuestionList(), res.Cleaned)
		if err != nil {
			log.WithError(err).Error("db.insert_response")
			renderView(w, r, "form.html", newFormView(form, res.Raw, nil, bannerSaveError))
			return
		}

		log.WithFields(log.Fields{"response_id": responseID}).Info("survey.response_saved")
		http.Redirect(w, r, "/thanks/", http.StatusSeeOther)
	}
}

func ThankYou(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renderView(w, r, "thanks.html", thanksView{Title: pageTitle})
	}
}

func Health(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := app.PingContext(r.Context())
		if err != nil {
			log.WithError(err).Error("health.db_ping")
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]any{"status": "unavailable"})
			return
		}
		render.JSON(w, r, map[string]any{"status": "ok"})
	}
}
