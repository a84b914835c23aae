package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/playperu/promptparty/internal/game"
)

type settingsHandler struct {
	store  Store
	hub    Hub
	logger *slog.Logger

	// mu orders read-apply-publish so two updates cannot interleave.
	mu sync.Mutex
}

func (h *settingsHandler) get(w http.ResponseWriter, r *http.Request) {
	state, err := h.hub.State(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "game loop unavailable")
		return
	}
	writeJSON(w, http.StatusOK, state.Live)
}

func (h *settingsHandler) update(w http.ResponseWriter, r *http.Request) {
	var change game.SettingsChange
	if err := readJSON(w, r, &change); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	state, err := h.hub.State(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "game loop unavailable")
		return
	}

	live, err := game.ApplySettings(ctx, h.store, state.Live, change)
	if errors.Is(err, game.ErrInvalidTournamentName) {
		writeError(w, http.StatusBadRequest, "currentTournamentName is invalid")
		return
	}
	if err != nil {
		h.logger.Error("updating settings", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := h.hub.UpdateSettings(ctx, live); err != nil {
		writeError(w, http.StatusServiceUnavailable, "game loop unavailable")
		return
	}
	writeJSON(w, http.StatusOK, live)
}
