package cmd

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"contest-site/pkg/config"
	"contest-site/pkg/handlers"
	"contest-site/pkg/models"
	"contest-site/pkg/preload"
	"contest-site/pkg/services"
	"contest-site/pkg/session"
)

// newServeCmd creates a new command for serving the web application
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Long: `Start the web server. The landing page shows a loading overlay until its posters and hero
videos are preloaded, or until the configured maximum wait has passed.`,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := LoadConfig()
			if err != nil {
				log.Fatalf("Failed to load configuration: %v", err)
			}
			m, err := LoadManifest()
			if err != nil {
				log.Fatalf("Failed to load manifest: %v", err)
			}
			if err := services.InitService(cfg); err != nil {
				log.Fatalf("Failed to initialize media service: %v", err)
			}
			serveWebsite(cfg, m, services.Default())
		},
	}
}

// newEngine builds the preload engine with the configured readiness and timeout
func newEngine(cfg *config.Config, svc preload.Loader) *preload.Engine {
	return preload.NewEngine(svc,
		preload.WithLogger(slog.Default()),
		preload.WithReadiness(cfg.Preload.Readiness()),
		preload.WithAssetTimeout(cfg.Preload.AssetTimeout()),
	)
}

// newPolicy maps the configuration onto the session reveal policy
func newPolicy(cfg *config.Config) session.Policy {
	return session.Policy{
		EnforceMaxWait:        cfg.Preload.EnforceMaxWait,
		MaxWait:               cfg.Preload.MaxWait(),
		CountdownCoversImages: !cfg.Preload.RevealAfterImagesOnly,
	}
}

// serveWebsite preloads the manifest once and serves the site while it does
func serveWebsite(cfg *config.Config, m models.Manifest, svc *services.Service) {
	controller := session.New(newEngine(cfg, svc), m, newPolicy(cfg))
	controller.Start(context.Background())

	mux := http.NewServeMux()
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.PublicDir))))
	mux.HandleFunc("/preload/status", handlers.StatusHandler(controller))
	mux.HandleFunc("/{$}", handlers.IndexHandler(cfg.ViewsDir, controller))
	mux.HandleFunc("/", handlers.AssetHandler(svc))

	// Start server
	cfg.PrintServerStartMessage()
	if err := http.ListenAndServe(cfg.ServerAddress(), mux); err != nil {
		log.Printf("Server error: %v", err)
		os.Exit(1)
	}
}
