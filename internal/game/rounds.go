package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/playperu/promptparty/internal/metrics"
	"github.com/playperu/promptparty/internal/promptparty"
	"github.com/playperu/promptparty/internal/store"
)

// RoundStore is the persistence the round state machine needs.
type RoundStore interface {
	CreateRound(ctx context.Context, r promptparty.Round) (promptparty.Round, error)
	AppendAnswer(ctx context.Context, roundID string, a promptparty.Answer) error
	GetTournament(ctx context.Context, id string) (promptparty.Tournament, error)
}

// Enqueuer starts image generation for an accepted answer.
type Enqueuer interface {
	Enqueue(job promptparty.ImageJob)
}

// Answer outcomes beyond the rejection reasons sent to clients.
const (
	OutcomeAccepted  = "accepted"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"
	OutcomeIgnored   = "ignored"
)

// Rounds is the round state machine. Like the Registry it belongs to the
// hub goroutine and is not safe for concurrent use.
type Rounds struct {
	store  RoundStore
	images Enqueuer
	reg    *Registry
	router *Router
	rec    Recorder
	clock  clockwork.Clock
	log    *slog.Logger

	live       Live
	current    *promptparty.Round
	nextNumber int
	nextPlayer int
}

func NewRounds(reg *Registry, router *Router, deps Deps) *Rounds {
	return &Rounds{
		store:      deps.Store,
		images:     deps.Images,
		reg:        reg,
		router:     router,
		rec:        deps.Recorder,
		clock:      deps.Clock,
		log:        deps.Logger,
		live:       deps.Live,
		nextNumber: 1,
	}
}

// Current returns a copy of the round currently accepting answers.
func (r *Rounds) Current() (promptparty.Round, bool) {
	if r.current == nil {
		return promptparty.Round{}, false
	}
	return *r.current, true
}

func (r *Rounds) Live() Live { return r.live }

func (r *Rounds) SetLive(l Live) { r.live = l }

// StartRound opens a new round with prompt text and makes it current. It
// returns false when the prompt is blank, the configured tournament is
// closed or gone, or the round could not be saved.
func (r *Rounds) StartRound(ctx context.Context, id ConnID, text string) (promptparty.Round, bool) {
	r.reg.SetRole(id, promptparty.RoleAdmin)

	text = strings.TrimSpace(text)
	if text == "" {
		return promptparty.Round{}, false
	}

	tournamentName := r.live.TournamentName
	if tournamentName == "" {
		tournamentName = promptparty.DefaultTournamentName
	}

	if r.live.TournamentID != "" {
		t, err := r.store.GetTournament(ctx, r.live.TournamentID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			r.log.Error("loading tournament", "tournament_id", r.live.TournamentID, "error", err)
			return promptparty.Round{}, false
		}
		if err != nil || t.IsClosed {
			metrics.RoundStartsRejectedTotal.Inc()
			r.router.SendTo(id, NewRoundStartRejected(tournamentName))
			return promptparty.Round{}, false
		}
	}

	round, err := r.store.CreateRound(ctx, promptparty.Round{
		ID:             uuid.NewString(),
		Number:         r.nextNumber,
		Prompt:         text,
		StartTime:      r.clock.Now().UTC(),
		DurationMs:     promptparty.RoundDurationMs,
		ToleranceMs:    promptparty.RoundToleranceMs,
		TournamentID:   r.live.TournamentID,
		TournamentName: tournamentName,
		ModelName:      r.live.ModelName,
	})
	if err != nil {
		r.log.Error("creating round", "error", err)
		return promptparty.Round{}, false
	}

	r.nextNumber++
	r.current = &round
	metrics.RoundsStartedTotal.Inc()
	r.log.Info("round started", "round_id", round.ID, "round", round.Number, "tournament", tournamentName)

	r.router.Broadcast(nil, NewRoundStart(round))
	return round, true
}

// SubmitAnswer validates and stores one answer to the current round and
// returns the outcome: a rejection reason or one of the Outcome constants.
func (r *Rounds) SubmitAnswer(ctx context.Context, id ConnID, msg PlayerAnswer) string {
	conn, ok := r.reg.Get(id)
	if !ok {
		return OutcomeIgnored
	}

	if r.current == nil {
		return r.reject(id, NewAnswerRejected(ReasonNoActiveRound))
	}
	round := *r.current
	if msg.RoundID != round.ID {
		return r.reject(id, NewAnswerRejected(ReasonWrongRound))
	}

	now := r.clock.Now().UTC()
	elapsed := now.Sub(round.StartTime).Milliseconds()
	maxMs := round.Window().Milliseconds()
	if elapsed > maxMs {
		r.audit("player_answer_too_late", conn, conn.Name, msg)
		return r.reject(id, NewAnswerTooLate(maxMs, elapsed))
	}

	name := conn.Name
	if name == "" {
		name = strings.TrimSpace(msg.PlayerName)
	}
	if name == "" {
		name = promptparty.UnnamedPlayer
	}

	answer := promptparty.Answer{
		PlayerName:         name,
		PlayerID:           string(id),
		Text:               strings.TrimSpace(msg.Text),
		SubmittedAt:        now,
		SubmittedByTimeout: msg.SentByTimeout,
		Late:               elapsed > round.DurationMs,
		TournamentName:     round.TournamentName,
		ImageStatus:        promptparty.ImagePending,
	}

	err := r.store.AppendAnswer(ctx, round.ID, answer)
	switch {
	case errors.Is(err, store.ErrDuplicateAnswer):
		metrics.AnswersTotal.WithLabelValues(OutcomeDuplicate).Inc()
		r.audit("player_answer_duplicate", conn, name, msg)
		return OutcomeDuplicate
	case err != nil:
		metrics.AnswersTotal.WithLabelValues(OutcomeFailed).Inc()
		r.log.Error("saving answer", "round_id", round.ID, "player", name, "error", err)
		return OutcomeFailed
	}

	metrics.AnswersTotal.WithLabelValues(OutcomeAccepted).Inc()
	r.router.Broadcast(HasRole(promptparty.RoleAdmin, promptparty.RolePlayer), NewRoundAnswer(round, answer))
	r.router.SendTo(id, NewAnswerAccepted(round.ID, now, answer.Late))

	if r.images != nil {
		r.images.Enqueue(promptparty.ImageJob{
			RoundID:     round.ID,
			RoundNumber: round.Number,
			PlayerID:    answer.PlayerID,
			PlayerName:  name,
			Prompt:      answer.Text,
			ModelName:   round.ModelName,
		})
	}
	return OutcomeAccepted
}

func (r *Rounds) reject(id ConnID, msg AnswerRejectedMsg) string {
	metrics.AnswersTotal.WithLabelValues(msg.Reason).Inc()
	r.router.SendTo(id, msg)
	return msg.Reason
}

// RegisterPlayer makes id a player, generating a name when none is given.
func (r *Rounds) RegisterPlayer(id ConnID, requested string) string {
	r.reg.SetRole(id, promptparty.RolePlayer)

	name := strings.TrimSpace(requested)
	if name == "" {
		r.nextPlayer++
		name = fmt.Sprintf("Player %d", r.nextPlayer)
	}
	r.reg.SetName(id, name)

	r.router.SendTo(id, NewPlayerIdentity(TypePlayerRegistered, id, name))
	r.broadcastPlayerList()
	return name
}

// RenamePlayer changes a player's display name. Blank names are ignored.
func (r *Rounds) RenamePlayer(id ConnID, newName string) {
	name := strings.TrimSpace(newName)
	if name == "" {
		return
	}
	r.reg.SetRole(id, promptparty.RolePlayer)
	r.reg.SetName(id, name)

	r.router.SendTo(id, NewPlayerIdentity(TypePlayerRenamed, id, name))
	r.router.Broadcast(HasRole(promptparty.RoleAdmin), NewPlayerIdentity(TypePlayerRenamedBroadcast, id, name))
	r.broadcastPlayerList()
}

func (r *Rounds) RegisterAdmin(id ConnID) {
	r.reg.SetRole(id, promptparty.RoleAdmin)
	r.broadcastPlayerList()
}

func (r *Rounds) RegisterSupervisor(id ConnID) {
	r.reg.SetRole(id, promptparty.RoleSupervisor)
}

// Disconnect removes id from the registry and refreshes the admins'
// player list when a player left.
func (r *Rounds) Disconnect(id ConnID) {
	conn, ok := r.reg.Remove(id)
	if !ok {
		return
	}
	r.audit("connection_close", conn, conn.Name, struct{}{})
	if conn.Role == promptparty.RolePlayer {
		r.broadcastPlayerList()
	}
}

func (r *Rounds) broadcastPlayerList() {
	r.router.Broadcast(HasRole(promptparty.RoleAdmin), NewPlayerList(r.reg.Players()))
}

// audit records a client->server entry that is not the raw inbound frame.
func (r *Rounds) audit(typ string, conn Connection, playerName string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Error("encoding audit payload", "type", typ, "error", err)
		return
	}
	r.rec.Record(promptparty.EventLogEntry{
		Type:         typ,
		Direction:    promptparty.ClientToServer,
		Role:         conn.Role,
		PlayerName:   playerName,
		ConnectionID: string(conn.ID),
		Payload:      data,
	})
}
