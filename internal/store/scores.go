package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/playperu/promptparty/internal/promptparty"
)

// ScoreFilter narrows ListScores. With NoTournament set only scores recorded
// outside any tournament are returned; otherwise a non-empty Tournament
// restricts to that tournament and an empty one returns everything.
type ScoreFilter struct {
	Tournament   string
	NoTournament bool
}

func tournamentKey(name *string) string {
	if name == nil {
		return ""
	}
	return *name
}

// IncrementScore adds one win for player in tournament (nil for none),
// creating the score document on first win, and returns the updated score.
func (s *DocStore) IncrementScore(ctx context.Context, tournament *string, player string) (promptparty.Score, error) {
	var sc promptparty.Score
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		key := tournamentKey(tournament)
		err := getDoc(ctx, tx, &sc,
			`SELECT json(data) FROM scores WHERE tournament_key = ? AND player_name = ?`,
			key, player,
		)
		now := s.now()
		insert := false
		switch {
		case errors.Is(err, ErrNotFound):
			insert = true
			sc = promptparty.Score{
				ID:             newID(),
				TournamentName: tournament,
				PlayerName:     player,
				CreatedAt:      now,
			}
		case err != nil:
			return err
		}
		sc.Score++
		sc.UpdatedAt = now

		data, err := json.Marshal(sc)
		if err != nil {
			return err
		}
		if insert {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO scores (id, tournament_key, player_name, score, data)
				 VALUES (?, ?, ?, ?, jsonb(?))`,
				sc.ID, key, player, sc.Score, string(data),
			)
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE scores SET score = ?, data = jsonb(?) WHERE id = ?`,
			sc.Score, string(data), sc.ID,
		)
		return err
	})
	if err != nil {
		return promptparty.Score{}, err
	}
	return sc, nil
}

// ListScores returns scores sorted by score descending, then player name.
func (s *DocStore) ListScores(ctx context.Context, f ScoreFilter) ([]promptparty.Score, error) {
	query := `SELECT json(data) FROM scores`
	var args []any
	switch {
	case f.NoTournament:
		query += ` WHERE tournament_key = ''`
	case f.Tournament != "":
		query += ` WHERE tournament_key = ?`
		args = append(args, f.Tournament)
	}
	query += ` ORDER BY score DESC, player_name ASC`

	return listDocs[promptparty.Score](ctx, s.db, query, args...)
}
