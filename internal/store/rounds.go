package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/playperu/promptparty/internal/promptparty"
)

// RoundFilter selects rounds for the history listing.
type RoundFilter struct {
	TournamentName string
	Limit          int
	Ascending      bool
}

// CreateRound persists a new round document. An empty ID is filled in.
func (s *DocStore) CreateRound(ctx context.Context, r promptparty.Round) (promptparty.Round, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	now := s.now()
	r.CreatedAt, r.UpdatedAt = now, now
	if r.Answers == nil {
		r.Answers = []promptparty.Answer{}
	}
	if r.WinnerNames == nil {
		r.WinnerNames = []string{}
	}

	if err := putRound(ctx, s.db, r, true); err != nil {
		return promptparty.Round{}, fmt.Errorf("inserting round: %w", err)
	}
	return r, nil
}

func (s *DocStore) GetRound(ctx context.Context, id string) (promptparty.Round, error) {
	var r promptparty.Round
	err := getDoc(ctx, s.db, &r, `SELECT json(data) FROM rounds WHERE id = ?`, id)
	return r, err
}

func (s *DocStore) ListRounds(ctx context.Context, f RoundFilter) ([]promptparty.Round, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	order := "DESC"
	if f.Ascending {
		order = "ASC"
	}

	query := `SELECT json(data) FROM rounds`
	var args []any
	if f.TournamentName != "" {
		query += ` WHERE tournament_name = ?`
		args = append(args, f.TournamentName)
	}
	query += fmt.Sprintf(` ORDER BY start_time %s LIMIT ?`, order)
	args = append(args, limit)

	return listDocs[promptparty.Round](ctx, s.db, query, args...)
}

// AppendAnswer pushes a onto the round's answers unless an answer with the
// same player name is already there, in which case ErrDuplicateAnswer is
// returned and nothing changes.
func (s *DocStore) AppendAnswer(ctx context.Context, roundID string, a promptparty.Answer) error {
	return s.modifyRound(ctx, roundID, func(r *promptparty.Round) error {
		if _, exists := r.AnswerBy(a.PlayerName); exists {
			return ErrDuplicateAnswer
		}
		r.Answers = append(r.Answers, a)
		return nil
	})
}

// SetAnswerImage writes the terminal image state onto the one answer
// matching key. ErrNotFound is returned when the round or the answer is gone.
func (s *DocStore) SetAnswerImage(ctx context.Context, key promptparty.AnswerKey, u promptparty.ImageUpdate) error {
	return s.modifyRound(ctx, key.RoundID, func(r *promptparty.Round) error {
		for i := range r.Answers {
			a := &r.Answers[i]
			if a.PlayerID != key.PlayerID || a.PlayerName != key.PlayerName {
				continue
			}
			a.ImageStatus = u.Status
			a.ImagePath = u.Path
			a.ImageError = u.Error
			if u.ModelName != "" {
				a.ModelName = u.ModelName
			}
			return nil
		}
		return ErrNotFound
	})
}

// AddWinner adds name to the round's winners if it is not there yet.
func (s *DocStore) AddWinner(ctx context.Context, roundID, name string) error {
	return s.modifyRound(ctx, roundID, func(r *promptparty.Round) error {
		if !slices.Contains(r.WinnerNames, name) {
			r.WinnerNames = append(r.WinnerNames, name)
		}
		return nil
	})
}

// modifyRound loads a round, applies fn, and saves it in a transaction.
func (s *DocStore) modifyRound(ctx context.Context, roundID string, fn func(*promptparty.Round) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var r promptparty.Round
		if err := getDoc(ctx, tx, &r, `SELECT json(data) FROM rounds WHERE id = ?`, roundID); err != nil {
			return err
		}
		if err := fn(&r); err != nil {
			return err
		}
		r.UpdatedAt = s.now()
		return putRound(ctx, tx, r, false)
	})
}

func putRound(ctx context.Context, q querier, r promptparty.Round, insert bool) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	var tournament any
	if r.TournamentName != "" {
		tournament = r.TournamentName
	}

	if insert {
		_, err = q.ExecContext(ctx,
			`INSERT INTO rounds (id, round_number, tournament_name, start_time, data)
			 VALUES (?, ?, ?, ?, jsonb(?))`,
			r.ID, r.Number, tournament, sortable(r.StartTime), string(data),
		)
		return err
	}
	_, err = q.ExecContext(ctx,
		`UPDATE rounds SET data = jsonb(?) WHERE id = ?`,
		string(data), r.ID,
	)
	return err
}
