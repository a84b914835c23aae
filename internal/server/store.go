package server

import (
	"context"

	"github.com/playperu/promptparty/internal/game"
	"github.com/playperu/promptparty/internal/promptparty"
	"github.com/playperu/promptparty/internal/store"
)

// Store is the slice of the document store the HTTP API reads and writes.
type Store interface {
	game.SettingsStore

	GetRound(ctx context.Context, id string) (promptparty.Round, error)
	ListRounds(ctx context.Context, f store.RoundFilter) ([]promptparty.Round, error)
	AddWinner(ctx context.Context, roundID, name string) error

	IncrementScore(ctx context.Context, tournament *string, player string) (promptparty.Score, error)
	ListScores(ctx context.Context, f store.ScoreFilter) ([]promptparty.Score, error)

	ListTournaments(ctx context.Context) ([]promptparty.Tournament, error)
	CloseTournament(ctx context.Context, name string) (promptparty.Tournament, error)

	ListEvents(ctx context.Context, f store.EventFilter) ([]promptparty.EventLogEntry, error)
}

// Hub is the event loop as seen from HTTP handlers.
type Hub interface {
	Connect(ctx context.Context, s game.Sender) (game.ConnID, error)
	Deliver(ctx context.Context, id game.ConnID, data []byte) error
	Disconnect(ctx context.Context, id game.ConnID) error
	Broadcast(ctx context.Context, pred game.Predicate, msg game.Outbound) error
	UpdateSettings(ctx context.Context, l game.Live) error
	State(ctx context.Context) (game.State, error)
}

var (
	_ Store = (*store.DocStore)(nil)
	_ Hub   = (*game.Hub)(nil)
)
