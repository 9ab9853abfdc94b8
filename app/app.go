package app

import (
	"database/sql"

	"github.com/go-chi/oauth"

	"github.com/mbolis/quick-survey/config"
	"github.com/mbolis/quick-survey/httpx"
)

// App is handed to every controller.
type App struct {
	*sql.DB
	*oauth.BearerServer
	config.Config
}

// New builds an App around an open, migrated database.
func New(db *sql.DB, cfg config.Config) App {
	return App{
		DB:           db,
		BearerServer: httpx.NewBearerServer(db, cfg),
		Config:       cfg,
	}
}
