package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mbolis/quick-survey/app"
	"github.com/mbolis/quick-survey/httpx"
	"github.com/mbolis/quick-survey/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.RequestID, middleware.RealIP, httpx.AccessLog, middleware.Recoverer)

	root.Get("/", SurveyForm(app))
	root.With(middlewares.RateLimit(app.SubmitRate)).Post("/", SubmitSurvey(app))
	root.Get("/thanks/", ThankYou(app))
	root.Get("/healthz", Health(app))

	root.Mount("/api", apiRouter(app))

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))

	api.Route("/admin", func(r chi.Router) {
		r.Use(middlewares.CookieAuth(app.BearerServer), middlewares.Admin(app.TokenSecret))

		r.Get("/questions", ListQuestions(app))
		r.Get(`/questions/{id:^\d+$}`, GetQuestion(app))
		r.Put(`/questions/{id:^\d+$}`, UpdateQuestion(app))
		r.Delete(`/questions/{id:^\d+$}`, DeleteQuestion(app))

		r.Get("/responses", ListResponses(app))
		r.Get(`/responses/{id:^\d+$}`, GetResponse(app))
		r.Delete(`/responses/{id:^\d+$}`, DeleteResponse(app))

		r.Get("/answers", ListAnswers(app))

		r.Get("/export/{resource}", Export(app))
	})

	return api
}
