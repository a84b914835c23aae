package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/promptparty/internal/game"
	"github.com/playperu/promptparty/internal/handler/health"
	"github.com/playperu/promptparty/internal/promptparty"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

type scoresQuery struct {
	Tournament string `query:"tournament" description:"Tournament name, or null for scores outside any tournament."`
}

type roundsQuery struct {
	Limit      int    `query:"limit" default:"50"`
	Sort       string `query:"sort" enum:"asc,desc" default:"desc"`
	Tournament string `query:"tournament"`
}

type logsQuery struct {
	Type       string `query:"type"`
	PlayerName string `query:"playerName" description:"Case-insensitive substring."`
	Limit      int    `query:"limit" default:"100"`
}

type qrQuery struct {
	Size int `query:"size" default:"256"`
}

type operation struct {
	method, path, summary, description string
	req                                any
	resp                               map[int]any
	contentType                        string
}

var operations = []operation{
	{
		method: http.MethodGet, path: "/healthz",
		summary:     "Health check",
		description: "Returns the health status of backend dependencies.",
		resp:        map[int]any{http.StatusOK: health.Response{}, http.StatusServiceUnavailable: health.Response{}},
	},
	{
		method: http.MethodGet, path: "/ws",
		summary:     "Game socket",
		description: "Upgrades to the WebSocket carrying the JSON game protocol for admins, players and supervisors.",
		resp:        map[int]any{http.StatusSwitchingProtocols: nil},
		contentType: "text/plain",
	},
	{
		method: http.MethodGet, path: "/api/scores",
		summary:     "List scores",
		description: "Scores ordered by score descending, then player name.",
		req:         scoresQuery{},
		resp:        map[int]any{http.StatusOK: []promptparty.Score{}},
	},
	{
		method: http.MethodPost, path: "/api/scores/increment",
		summary:     "Award a point",
		description: "Adds one point to a player and marks them a winner of the round when roundId is given. Broadcasts score_update.",
		req:         IncrementScoreRequest{},
		resp: map[int]any{
			http.StatusOK:         promptparty.Score{},
			http.StatusBadRequest: ErrorResponse{},
		},
	},
	{
		method: http.MethodGet, path: "/api/rounds",
		summary:     "Round history",
		description: "Rounds with their answers, ordered by start time.",
		req:         roundsQuery{},
		resp:        map[int]any{http.StatusOK: []promptparty.Round{}},
	},
	{
		method: http.MethodGet, path: "/api/logs",
		summary:     "Event log",
		description: "Most recent audit entries first.",
		req:         logsQuery{},
		resp:        map[int]any{http.StatusOK: []promptparty.EventLogEntry{}},
	},
	{
		method: http.MethodGet, path: "/api/tournaments",
		summary: "List tournaments",
		resp:    map[int]any{http.StatusOK: []promptparty.Tournament{}},
	},
	{
		method: http.MethodPost, path: "/api/tournaments",
		summary:     "Ensure tournament",
		description: "Returns the named tournament, creating it when missing.",
		req:         TournamentRequest{},
		resp: map[int]any{
			http.StatusOK:         promptparty.Tournament{},
			http.StatusBadRequest: ErrorResponse{},
		},
	},
	{
		method: http.MethodPost, path: "/api/tournaments/close",
		summary:     "Close tournament",
		description: "Closed tournaments reject new rounds.",
		req:         TournamentRequest{},
		resp: map[int]any{
			http.StatusOK:         promptparty.Tournament{},
			http.StatusBadRequest: ErrorResponse{},
			http.StatusNotFound:   ErrorResponse{},
		},
	},
	{
		method: http.MethodGet, path: "/api/settings",
		summary: "Live settings",
		resp:    map[int]any{http.StatusOK: game.Live{}},
	},
	{
		method: http.MethodPost, path: "/api/settings",
		summary:     "Update settings",
		description: "Sets the tournament and image model used by the next round.",
		req:         game.SettingsChange{},
		resp: map[int]any{
			http.StatusOK:         game.Live{},
			http.StatusBadRequest: ErrorResponse{},
		},
	},
	{
		method: http.MethodGet, path: "/api/connections",
		summary: "Connection dump",
		resp:    map[int]any{http.StatusOK: ConnectionsResponse{}},
	},
	{
		method: http.MethodGet, path: "/api/join-qr.png",
		summary:     "Join QR code",
		req:         qrQuery{},
		resp:        map[int]any{http.StatusOK: nil},
		contentType: "image/png",
	},
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "PromptParty API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Backend API for the PromptParty prompt-to-picture game.")

	for _, op := range operations {
		oc, err := r.NewOperationContext(op.method, op.path)
		if err != nil {
			continue
		}
		oc.SetSummary(op.summary)
		if op.description != "" {
			oc.SetDescription(op.description)
		}
		if op.req != nil {
			oc.AddReqStructure(op.req)
		}
		for status, body := range op.resp {
			opts := []openapi.ContentOption{openapi.WithHTTPStatus(status)}
			if op.contentType != "" && body == nil {
				opts = append(opts, openapi.WithContentType(op.contentType))
			}
			oc.AddRespStructure(body, opts...)
		}
		_ = r.AddOperation(oc)
	}

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
