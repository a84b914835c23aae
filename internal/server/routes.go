package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/promptparty/internal/handler/health"
	"github.com/playperu/promptparty/internal/imagejob"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	settings := &settingsHandler{store: deps.Store, hub: deps.Hub, logger: logger}

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", handleSwaggerUI())
	r.Mount("/healthz", health.NewHandler(logger, deps.Checks).Routes())
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/ws", handleWS(deps.Hub, deps.Recorder, wsLimits{rate: deps.WSRate, burst: deps.WSBurst}, logger))

	r.Route("/api", func(r chi.Router) {
		r.Get("/scores", handleListScores(deps.Store, logger))
		r.Post("/scores/increment", handleIncrementScore(deps.Store, deps.Hub, deps.Recorder, logger))
		r.Get("/rounds", handleListRounds(deps.Store, logger))
		r.Get("/logs", handleListLogs(deps.Store, logger))

		r.Get("/tournaments", handleListTournaments(deps.Store, logger))
		r.Post("/tournaments", handleEnsureTournament(deps.Store, logger))
		r.Post("/tournaments/close", handleCloseTournament(deps.Store, logger))

		r.Get("/settings", settings.get)
		r.Post("/settings", settings.update)

		r.Get("/connections", handleConnections(deps.Hub, logger))
		r.Get("/join-qr.png", handleJoinQR(deps.PublicURL, logger))
	})

	r.Handle(imagejob.PublicPrefix+"*", http.StripPrefix(imagejob.PublicPrefix, handlePictures(deps.Pictures)))

	if deps.Static != nil {
		logger.Info("serving front-end bundle")
		r.NotFound(handleSPA(deps.Static))
	}
}

func handleSwaggerUI() http.Handler {
	return v5emb.New("PromptParty API", "/openapi.json", "/docs")
}
