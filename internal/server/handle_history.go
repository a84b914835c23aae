package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/playperu/promptparty/internal/store"
)

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func handleListRounds(st Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		rounds, err := st.ListRounds(r.Context(), store.RoundFilter{
			TournamentName: q.Get("tournament"),
			Limit:          queryInt(r, "limit", 50),
			Ascending:      q.Get("sort") == "asc",
		})
		if err != nil {
			logger.Error("listing rounds", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, orEmpty(rounds))
	}
}

func handleListLogs(st Store, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		entries, err := st.ListEvents(r.Context(), store.EventFilter{
			Type:       q.Get("type"),
			PlayerName: q.Get("playerName"),
			Limit:      queryInt(r, "limit", 100),
		})
		if err != nil {
			logger.Error("listing event log", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, orEmpty(entries))
	}
}
