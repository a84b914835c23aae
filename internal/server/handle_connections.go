package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/playperu/promptparty/internal/game"
	"github.com/playperu/promptparty/internal/promptparty"
)

type ConnectionInfo struct {
	ID   string           `json:"id"`
	Role promptparty.Role `json:"role"`
	Name string           `json:"name,omitempty"`
}

type CurrentRound struct {
	ID             string    `json:"id"`
	Number         int       `json:"number"`
	Prompt         string    `json:"prompt"`
	TournamentName string    `json:"tournamentName,omitempty"`
	StartTime      time.Time `json:"startTime"`
}

type ConnectionsResponse struct {
	Connections  []ConnectionInfo `json:"connections"`
	Settings     game.Live        `json:"settings"`
	CurrentRound *CurrentRound    `json:"currentRound"`
}

// handleConnections dumps the live registry for operators.
func handleConnections(hub Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := hub.State(r.Context())
		if err != nil {
			logger.Warn("connection dump failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "game loop unavailable")
			return
		}

		resp := ConnectionsResponse{
			Connections: make([]ConnectionInfo, 0, len(state.Connections)),
			Settings:    state.Live,
		}
		for _, c := range state.Connections {
			resp.Connections = append(resp.Connections, ConnectionInfo{ID: string(c.ID), Role: c.Role, Name: c.Name})
		}
		if cur := state.Current; cur != nil {
			resp.CurrentRound = &CurrentRound{
				ID:             cur.ID,
				Number:         cur.Number,
				Prompt:         cur.Prompt,
				TournamentName: cur.TournamentName,
				StartTime:      cur.StartTime,
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

const (
	defaultQRSize = 256
	maxQRSize     = 1024
)

// handleJoinQR renders the URL players open to join as a PNG QR code.
func handleJoinQR(publicURL string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		size := min(queryInt(r, "size", defaultQRSize), maxQRSize)

		png, err := qrcode.Encode(joinURL(publicURL, r), qrcode.Medium, size)
		if err != nil {
			logger.Error("encoding join qr", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(png)))
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		w.Write(png)
	}
}

func joinURL(publicURL string, r *http.Request) string {
	if publicURL != "" {
		return strings.TrimRight(publicURL, "/") + "/"
	}
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/", scheme, r.Host)
}
