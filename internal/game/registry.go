package game

import (
	"strconv"

	"github.com/playperu/promptparty/internal/promptparty"
)

// ConnID identifies a live connection for the lifetime of the process.
type ConnID string

// Sender is the transport side of a connection. Send must not block; it
// reports false when the connection is closed or its queue is full.
type Sender interface {
	Send(data []byte) bool
}

type Connection struct {
	ID   ConnID
	Role promptparty.Role
	Name string

	sender Sender
}

// Predicate selects broadcast recipients. A nil Predicate selects everyone.
type Predicate func(Connection) bool

// HasRole selects connections with any of roles.
func HasRole(roles ...promptparty.Role) Predicate {
	return func(c Connection) bool {
		for _, r := range roles {
			if c.Role == r {
				return true
			}
		}
		return false
	}
}

// Registry tracks live connections in registration order. It is not safe
// for concurrent use; the hub goroutine owns it.
type Registry struct {
	seq   int
	conns []*Connection
	byID  map[ConnID]*Connection
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[ConnID]*Connection)}
}

// Register adds a connection with no role and no name and returns its id.
func (r *Registry) Register(s Sender) ConnID {
	r.seq++
	c := &Connection{ID: ConnID("c" + strconv.Itoa(r.seq)), sender: s}
	r.conns = append(r.conns, c)
	r.byID[c.ID] = c
	return c.ID
}

func (r *Registry) Get(id ConnID) (Connection, bool) {
	c, ok := r.byID[id]
	if !ok {
		return Connection{}, false
	}
	return *c, true
}

func (r *Registry) SetRole(id ConnID, role promptparty.Role) {
	if c, ok := r.byID[id]; ok {
		c.Role = role
	}
}

func (r *Registry) SetName(id ConnID, name string) {
	if c, ok := r.byID[id]; ok {
		c.Name = name
	}
}

// ForEach returns a snapshot of the connections matching pred, in
// registration order.
func (r *Registry) ForEach(pred Predicate) []Connection {
	out := make([]Connection, 0, len(r.conns))
	for _, c := range r.conns {
		if pred == nil || pred(*c) {
			out = append(out, *c)
		}
	}
	return out
}

// Remove forgets id and returns the connection as it was.
func (r *Registry) Remove(id ConnID) (Connection, bool) {
	c, ok := r.byID[id]
	if !ok {
		return Connection{}, false
	}
	delete(r.byID, id)
	for i, cc := range r.conns {
		if cc == c {
			r.conns = append(r.conns[:i], r.conns[i+1:]...)
			break
		}
	}
	return *c, true
}

func (r *Registry) Len() int { return len(r.conns) }

// Players lists player-role connections for player_list.
func (r *Registry) Players() []PlayerInfo {
	var players []PlayerInfo
	for _, c := range r.ForEach(HasRole(promptparty.RolePlayer)) {
		name := c.Name
		if name == "" {
			name = promptparty.UnnamedPlayer
		}
		players = append(players, PlayerInfo{PlayerID: string(c.ID), PlayerName: name})
	}
	return players
}
