package game

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/playperu/promptparty/internal/promptparty"
	"github.com/playperu/promptparty/internal/store"
)

var ErrInvalidTournamentName = errors.New("tournament name must not be blank")

// Live is the part of the settings the round state machine reads on every
// round start.
type Live struct {
	TournamentID   string `json:"-"`
	TournamentName string `json:"currentTournamentName,omitempty"`
	ModelName      string `json:"currentModelName,omitempty"`
}

type SettingsStore interface {
	GetSettings(ctx context.Context) (promptparty.Settings, error)
	PutSettings(ctx context.Context, s promptparty.Settings) (promptparty.Settings, error)
	EnsureTournament(ctx context.Context, name string) (promptparty.Tournament, error)
}

// LoadSettings reads the settings document, creating it together with the
// default tournament on first start, and resolves the current tournament id.
func LoadSettings(ctx context.Context, st SettingsStore, defaultTournament string) (Live, error) {
	s, err := st.GetSettings(ctx)
	if errors.Is(err, store.ErrNotFound) {
		t, err := st.EnsureTournament(ctx, defaultTournament)
		if err != nil {
			return Live{}, fmt.Errorf("creating default tournament: %w", err)
		}
		s, err = st.PutSettings(ctx, promptparty.Settings{CurrentTournamentName: t.Name})
		if err != nil {
			return Live{}, fmt.Errorf("creating settings: %w", err)
		}
	} else if err != nil {
		return Live{}, fmt.Errorf("loading settings: %w", err)
	}

	live := Live{TournamentName: s.CurrentTournamentName, ModelName: s.CurrentModelName}
	if live.TournamentName != "" {
		t, err := st.EnsureTournament(ctx, live.TournamentName)
		if err != nil {
			return Live{}, fmt.Errorf("resolving tournament %q: %w", live.TournamentName, err)
		}
		live.TournamentID = t.ID
	}
	return live, nil
}

// SettingsChange is a partial settings update; nil fields are kept.
type SettingsChange struct {
	TournamentName *string `json:"currentTournamentName"`
	ModelName      *string `json:"currentModelName"`
}

// ApplySettings persists change on top of cur and returns the new live
// settings. A blank model name clears the model; a blank tournament name is
// rejected with ErrInvalidTournamentName.
func ApplySettings(ctx context.Context, st SettingsStore, cur Live, change SettingsChange) (Live, error) {
	next := cur

	if change.TournamentName != nil {
		name := strings.TrimSpace(*change.TournamentName)
		if name == "" {
			return cur, ErrInvalidTournamentName
		}
		t, err := st.EnsureTournament(ctx, name)
		if err != nil {
			return cur, fmt.Errorf("resolving tournament %q: %w", name, err)
		}
		next.TournamentName = t.Name
		next.TournamentID = t.ID
	}
	if change.ModelName != nil {
		next.ModelName = strings.TrimSpace(*change.ModelName)
	}

	_, err := st.PutSettings(ctx, promptparty.Settings{
		CurrentTournamentName: next.TournamentName,
		CurrentModelName:      next.ModelName,
	})
	if err != nil {
		return cur, fmt.Errorf("saving settings: %w", err)
	}
	return next, nil
}
