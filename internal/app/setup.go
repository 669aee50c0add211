// Package app contains the application setup for the product catalog service.
package app

import (
	"log/slog"
	"net/http"

	"github.com/acme/gocatalog/internal/config"
	"github.com/acme/gocatalog/internal/service"
	"github.com/acme/gocatalog/internal/store"
	"github.com/acme/gocatalog/internal/transport/rest"
	"github.com/acme/gocatalog/pkg/messaging"
	natsclient "github.com/acme/gocatalog/pkg/nats"
	"github.com/acme/gocatalog/pkg/server"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go/jetstream"
)

type Dependencies struct {
	ProductService service.ProductService
	Logger         *slog.Logger
}

func SetupDependencies(dbPool *pgxpool.Pool, js jetstream.JetStream, logger *slog.Logger) *Dependencies {
	pgStore := store.NewPgStore(dbPool)
	var publisher messaging.Publisher = natsclient.NewNatsPublisher(js)
	pService := service.NewService(pgStore, pgStore, publisher)

	return &Dependencies{
		ProductService: pService,
		Logger:         logger,
	}
}

// SetupHttpHandler initializes the HTTP routes for the product catalog service.
// Also used by tests to run the real handler stack against fake dependencies.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	api := rest.NewHandler(deps.ProductService, deps.Logger)
	mux := server.NewChiRouter(deps.Logger)
	api.RegisterRoutes(mux)
	return mux
}

// SetupHttpServer creates and configures an HTTP server for the product catalog service.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	return server.NewHTTPServer(server.HTTPConfig{
		Port:           cfg.HTTPServer.Port,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		ReadTimeout:    cfg.HTTPServer.Timeout.Read,
		WriteTimeout:   cfg.HTTPServer.Timeout.Write,
		IdleTimeout:    cfg.HTTPServer.Timeout.Idle,
		ReadHeader:     cfg.HTTPServer.Timeout.ReadHeader,
	}, SetupHttpHandler(deps))
}
