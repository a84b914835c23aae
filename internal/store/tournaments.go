package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/playperu/promptparty/internal/promptparty"
)

func (s *DocStore) GetTournament(ctx context.Context, id string) (promptparty.Tournament, error) {
	var t promptparty.Tournament
	err := getDoc(ctx, s.db, &t, `SELECT json(data) FROM tournaments WHERE id = ?`, id)
	return t, err
}

func (s *DocStore) FindTournamentByName(ctx context.Context, name string) (promptparty.Tournament, error) {
	var t promptparty.Tournament
	err := getDoc(ctx, s.db, &t, `SELECT json(data) FROM tournaments WHERE name = ?`, name)
	return t, err
}

// EnsureTournament returns the tournament called name, creating an open one
// if it does not exist yet.
func (s *DocStore) EnsureTournament(ctx context.Context, name string) (promptparty.Tournament, error) {
	var t promptparty.Tournament
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		err := getDoc(ctx, tx, &t, `SELECT json(data) FROM tournaments WHERE name = ?`, name)
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		now := s.now()
		t = promptparty.Tournament{ID: newID(), Name: name, CreatedAt: now, UpdatedAt: now}
		return putTournament(ctx, tx, t, true)
	})
	return t, err
}

// CloseTournament marks the named tournament closed. ErrNotFound is returned
// when no tournament has that name.
func (s *DocStore) CloseTournament(ctx context.Context, name string) (promptparty.Tournament, error) {
	var t promptparty.Tournament
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := getDoc(ctx, tx, &t, `SELECT json(data) FROM tournaments WHERE name = ?`, name); err != nil {
			return err
		}
		t.IsClosed = true
		t.UpdatedAt = s.now()
		return putTournament(ctx, tx, t, false)
	})
	return t, err
}

// ListTournaments returns every tournament, newest first.
func (s *DocStore) ListTournaments(ctx context.Context) ([]promptparty.Tournament, error) {
	return listDocs[promptparty.Tournament](ctx, s.db,
		`SELECT json(data) FROM tournaments ORDER BY rowid DESC`,
	)
}

func putTournament(ctx context.Context, q querier, t promptparty.Tournament, insert bool) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if insert {
		_, err = q.ExecContext(ctx,
			`INSERT INTO tournaments (id, name, data) VALUES (?, ?, jsonb(?))`,
			t.ID, t.Name, string(data),
		)
		return err
	}
	_, err = q.ExecContext(ctx, `UPDATE tournaments SET data = jsonb(?) WHERE id = ?`, string(data), t.ID)
	return err
}
