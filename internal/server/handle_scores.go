package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/playperu/promptparty/internal/game"
	"github.com/playperu/promptparty/internal/promptparty"
	"github.com/playperu/promptparty/internal/store"
)

const httpConnectionID = "http-api"

func handleListScores(st Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var f store.ScoreFilter
		switch t := r.URL.Query().Get("tournament"); t {
		case "null":
			f.NoTournament = true
		default:
			f.Tournament = t
		}

		scores, err := st.ListScores(r.Context(), f)
		if err != nil {
			logger.Error("listing scores", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, orEmpty(scores))
	}
}

type IncrementScoreRequest struct {
	PlayerName string `json:"playerName"`
	RoundID    string `json:"roundId,omitempty"`
}

// handleIncrementScore awards one point. The round's tournament wins over the
// live one when the round is known; the player is also added to the round's
// winners.
func handleIncrementScore(st Store, hub Hub, rec game.Recorder, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IncrementScoreRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.PlayerName = strings.TrimSpace(req.PlayerName)
		if req.PlayerName == "" {
			writeError(w, http.StatusBadRequest, "playerName is required")
			return
		}
		ctx := r.Context()

		state, err := hub.State(ctx)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "game loop unavailable")
			return
		}
		var tournament *string
		if name := state.Live.TournamentName; name != "" {
			tournament = &name
		}

		if req.RoundID != "" {
			round, err := st.GetRound(ctx, req.RoundID)
			switch {
			case err == nil && round.TournamentName != "":
				tournament = &round.TournamentName
			case err != nil && !errors.Is(err, store.ErrNotFound):
				logger.Error("loading round", "round_id", req.RoundID, "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
		}

		score, err := st.IncrementScore(ctx, tournament, req.PlayerName)
		if err != nil {
			logger.Error("incrementing score", "player", req.PlayerName, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		if req.RoundID != "" {
			if err := st.AddWinner(ctx, req.RoundID, req.PlayerName); err != nil && !errors.Is(err, store.ErrNotFound) {
				logger.Error("adding winner", "round_id", req.RoundID, "player", req.PlayerName, "error", err)
			}
		}

		payload, _ := json.Marshal(map[string]any{
			"roundId":        req.RoundID,
			"tournamentName": tournament,
			"score":          score.Score,
		})
		rec.Record(promptparty.EventLogEntry{
			Type:         "score_increment",
			Direction:    promptparty.ServerToClient,
			Role:         promptparty.RoleAdmin,
			PlayerName:   req.PlayerName,
			ConnectionID: httpConnectionID,
			Payload:      payload,
		})

		if err := hub.Broadcast(ctx, nil, game.NewScoreUpdate(score)); err != nil {
			logger.Warn("score update not broadcast", "player", req.PlayerName, "error", err)
		}

		writeJSON(w, http.StatusOK, score)
	}
}
