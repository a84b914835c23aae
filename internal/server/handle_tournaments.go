package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/playperu/promptparty/internal/store"
)

type TournamentRequest struct {
	Name string `json:"name"`
}

func handleListTournaments(st Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ts, err := st.ListTournaments(r.Context())
		if err != nil {
			logger.Error("listing tournaments", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, orEmpty(ts))
	}
}

func tournamentName(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req TournamentRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return "", false
	}
	return name, true
}

// handleEnsureTournament returns the named tournament, creating it open when
// it does not exist.
func handleEnsureTournament(st Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := tournamentName(w, r)
		if !ok {
			return
		}
		t, err := st.EnsureTournament(r.Context(), name)
		if err != nil {
			logger.Error("ensuring tournament", "tournament", name, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func handleCloseTournament(st Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, ok := tournamentName(w, r)
		if !ok {
			return
		}
		t, err := st.CloseTournament(r.Context(), name)
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tournament not found")
			return
		}
		if err != nil {
			logger.Error("closing tournament", "tournament", name, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		logger.Info("tournament closed", "tournament", name)
		writeJSON(w, http.StatusOK, t)
	}
}
