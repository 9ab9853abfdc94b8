package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mbolis/quick-survey/app"
	"github.com/mbolis/quick-survey/catalog"
	"github.com/mbolis/quick-survey/config"
	"github.com/mbolis/quick-survey/database"
	"github.com/mbolis/quick-survey/httpx"
	"github.com/mbolis/quick-survey/log"
	"github.com/mbolis/quick-survey/routes"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatal("main.config:", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUrl)
	if err != nil {
		log.Fatal("main.db.open:", err)
	}
	defer db.Close()

	if cfg.Seed {
		sets, err := catalog.EmbeddedSeeds()
		if err != nil {
			log.Fatal("main.seed.load:", err)
		}
		err = catalog.Seed(ctx, db, sets...)
		if err != nil {
			log.Fatal("main.seed.apply:", err)
		}
		log.Infof("Applied %d seed sets", len(sets))
	}

	if cfg.AdminUser != "" {
		err = httpx.SetPassword(ctx, db, cfg.AdminUser, cfg.AdminPassword)
		if err != nil {
			log.Fatal("main.admin_user:", err)
		}
		log.Infof("Admin account %q is ready", cfg.AdminUser)
	}

	handler := routes.Wire(app.New(db, cfg))

	err = runServer(ctx, cfg, handler)
	if err != nil {
		log.Fatal("main.server:", err)
	}
}

func runServer(ctx context.Context, cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	served := make(chan error, 1)
	go func() {
		log.Info("Listening on " + cfg.Url())
		served <- srv.ListenAndServe()
	}()

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		return err
	}
	if err := <-served; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
