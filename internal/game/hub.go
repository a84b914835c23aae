// Package game runs the real-time side of a party: one hub goroutine owns
// the connection registry and the round state machine, and everything that
// touches them arrives as a command on the hub's queue.
package game

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"github.com/playperu/promptparty/internal/metrics"
	"github.com/playperu/promptparty/internal/promptparty"
)

const defaultQueue = 256

var ErrHubStopped = errors.New("hub stopped")

// Deps are the hub's collaborators. Images may be nil, which disables
// image generation.
type Deps struct {
	Store    RoundStore
	Images   Enqueuer
	Recorder Recorder
	Clock    clockwork.Clock
	Logger   *slog.Logger
	Live     Live
}

type command interface{ isCommand() }

type (
	connectCmd struct {
		sender Sender
		reply  chan ConnID
	}
	disconnectCmd struct{ id ConnID }
	inboundCmd    struct {
		id   ConnID
		data []byte
	}
	imageDoneCmd struct{ res promptparty.ImageResult }
	broadcastCmd struct {
		pred Predicate
		msg  Outbound
	}
	settingsCmd struct{ live Live }
	stateCmd    struct {
		reply chan State
	}
	syncCmd struct{ done chan struct{} }
)

func (connectCmd) isCommand()    {}
func (disconnectCmd) isCommand() {}
func (inboundCmd) isCommand()    {}
func (imageDoneCmd) isCommand()  {}
func (broadcastCmd) isCommand()  {}
func (settingsCmd) isCommand()   {}
func (stateCmd) isCommand()      {}
func (syncCmd) isCommand()       {}

// Hub serializes every mutation of connection and round state.
type Hub struct {
	reg    *Registry
	router *Router
	rounds *Rounds
	rec    Recorder
	log    *slog.Logger

	cmds chan command
	done chan struct{}
}

func NewHub(deps Deps) *Hub {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	reg := NewRegistry()
	router := NewRouter(reg, deps.Recorder, deps.Logger)
	return &Hub{
		reg:    reg,
		router: router,
		rounds: NewRounds(reg, router, deps),
		rec:    deps.Recorder,
		log:    deps.Logger,
		cmds:   make(chan command, defaultQueue),
		done:   make(chan struct{}),
	}
}

// Run processes commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-h.cmds:
			h.handle(ctx, cmd)
		}
	}
}

func (h *Hub) handle(ctx context.Context, cmd command) {
	switch c := cmd.(type) {
	case connectCmd:
		id := h.reg.Register(c.sender)
		metrics.ConnectionsActive.Set(float64(h.reg.Len()))
		h.rec.Record(promptparty.EventLogEntry{
			Type:         "connection_open",
			Direction:    promptparty.ClientToServer,
			ConnectionID: string(id),
			Payload:      []byte(`{}`),
		})
		h.log.Debug("connection opened", "conn_id", id)
		c.reply <- id

	case disconnectCmd:
		h.rounds.Disconnect(c.id)
		metrics.ConnectionsActive.Set(float64(h.reg.Len()))
		h.log.Debug("connection closed", "conn_id", c.id)

	case inboundCmd:
		h.handleInbound(ctx, c.id, c.data)

	case imageDoneCmd:
		playerID := ConnID(c.res.Job.PlayerID)
		h.router.Broadcast(func(conn Connection) bool {
			return conn.Role == promptparty.RoleAdmin || conn.ID == playerID
		}, NewImageOutcome(c.res))

	case broadcastCmd:
		h.router.Broadcast(c.pred, c.msg)

	case settingsCmd:
		h.rounds.SetLive(c.live)
		h.log.Info("settings updated", "tournament", c.live.TournamentName, "model", c.live.ModelName)

	case stateCmd:
		s := State{Connections: h.reg.ForEach(nil), Live: h.rounds.Live()}
		if r, ok := h.rounds.Current(); ok {
			s.Current = &r
		}
		c.reply <- s

	case syncCmd:
		close(c.done)
	}
}

func (h *Hub) handleInbound(ctx context.Context, id ConnID, data []byte) {
	conn, ok := h.reg.Get(id)
	if !ok {
		h.log.Debug("message from unknown connection", "conn_id", id)
		return
	}

	msg, err := Decode(data)
	if err != nil {
		h.log.Debug("dropping malformed message", "conn_id", id, "error", err)
		return
	}
	metrics.InboundMessagesTotal.WithLabelValues(msg.Kind()).Inc()

	h.rec.Record(promptparty.EventLogEntry{
		Type:         msg.Kind(),
		Direction:    promptparty.ClientToServer,
		Role:         conn.Role,
		PlayerName:   conn.Name,
		ConnectionID: string(id),
		Payload:      data,
	})

	switch m := msg.(type) {
	case AdminRegister:
		h.rounds.RegisterAdmin(id)
	case SupervisorRegister:
		h.rounds.RegisterSupervisor(id)
	case PlayerRegister:
		h.rounds.RegisterPlayer(id, m.PlayerName)
	case PlayerRename:
		h.rounds.RenamePlayer(id, m.NewName)
	case PlayerAnswer:
		h.rounds.SubmitAnswer(ctx, id, m)
	case AdminRoundStart:
		h.rounds.StartRound(ctx, id, m.Text)
	case Unrecognized:
		h.log.Debug("unrecognized message type", "conn_id", id, "type", m.Type)
	}
}

func (h *Hub) send(ctx context.Context, cmd command) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	select {
	case h.cmds <- cmd:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect registers a new connection and returns its id.
func (h *Hub) Connect(ctx context.Context, s Sender) (ConnID, error) {
	reply := make(chan ConnID, 1)
	if err := h.send(ctx, connectCmd{sender: s, reply: reply}); err != nil {
		return "", err
	}
	select {
	case id := <-reply:
		return id, nil
	case <-h.done:
		return "", ErrHubStopped
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (h *Hub) Disconnect(ctx context.Context, id ConnID) error {
	return h.send(ctx, disconnectCmd{id: id})
}

// Deliver queues one raw inbound frame from id. Frames from one connection
// are handled in the order they are delivered.
func (h *Hub) Deliver(ctx context.Context, id ConnID, data []byte) error {
	return h.send(ctx, inboundCmd{id: id, data: data})
}

// ImageDone reports a finished image job. It blocks only until the hub
// accepts the command or stops.
func (h *Hub) ImageDone(res promptparty.ImageResult) {
	if err := h.send(context.Background(), imageDoneCmd{res: res}); err != nil {
		h.log.Warn("image result not broadcast", "round_id", res.Job.RoundID, "player", res.Job.PlayerName, "error", err)
	}
}

// Broadcast sends msg to the connections matching pred from the hub
// goroutine.
func (h *Hub) Broadcast(ctx context.Context, pred Predicate, msg Outbound) error {
	return h.send(ctx, broadcastCmd{pred: pred, msg: msg})
}

// UpdateSettings replaces the live settings used by the next round start.
func (h *Hub) UpdateSettings(ctx context.Context, l Live) error {
	return h.send(ctx, settingsCmd{live: l})
}

// State is a point-in-time view of the hub.
type State struct {
	Connections []Connection
	Live        Live
	Current     *promptparty.Round
}

func (h *Hub) State(ctx context.Context) (State, error) {
	reply := make(chan State, 1)
	if err := h.send(ctx, stateCmd{reply: reply}); err != nil {
		return State{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-h.done:
		return State{}, ErrHubStopped
	case <-ctx.Done():
		return State{}, ctx.Err()
	}
}

// Sync returns once every command queued before it has been handled.
func (h *Hub) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if err := h.send(ctx, syncCmd{done: done}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
