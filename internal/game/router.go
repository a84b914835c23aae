package game

import (
	"encoding/json"
	"log/slog"

	"github.com/playperu/promptparty/internal/metrics"
	"github.com/playperu/promptparty/internal/promptparty"
)

// Recorder accepts audit entries without blocking.
type Recorder interface {
	Record(promptparty.EventLogEntry)
}

// Router delivers outbound messages to registry connections and records
// one server->client audit entry per successful delivery.
type Router struct {
	reg *Registry
	rec Recorder
	log *slog.Logger
}

func NewRouter(reg *Registry, rec Recorder, logger *slog.Logger) *Router {
	return &Router{reg: reg, rec: rec, log: logger}
}

// Broadcast sends msg to every connection matching pred and returns the
// number of successful deliveries.
func (rt *Router) Broadcast(pred Predicate, msg Outbound) int {
	data, err := json.Marshal(msg)
	if err != nil {
		rt.log.Error("encoding outbound message", "type", msg.MessageType(), "error", err)
		return 0
	}

	sent := 0
	for _, c := range rt.reg.ForEach(pred) {
		if rt.deliver(c, msg.MessageType(), data) {
			sent++
		}
	}
	rt.log.Debug("broadcast", "type", msg.MessageType(), "delivered", sent)
	return sent
}

// SendTo sends msg to a single connection. Unknown ids are a no-op.
func (rt *Router) SendTo(id ConnID, msg Outbound) bool {
	c, ok := rt.reg.Get(id)
	if !ok {
		return false
	}
	data, err := json.Marshal(msg)
	if err != nil {
		rt.log.Error("encoding outbound message", "type", msg.MessageType(), "error", err)
		return false
	}
	return rt.deliver(c, msg.MessageType(), data)
}

func (rt *Router) deliver(c Connection, typ string, data []byte) bool {
	if c.sender == nil || !c.sender.Send(data) {
		metrics.DeliveriesTotal.WithLabelValues("skipped").Inc()
		rt.log.Debug("delivery skipped", "conn_id", c.ID, "type", typ)
		return false
	}
	metrics.DeliveriesTotal.WithLabelValues("sent").Inc()
	rt.rec.Record(promptparty.EventLogEntry{
		Type:         typ,
		Direction:    promptparty.ServerToClient,
		Role:         c.Role,
		PlayerName:   c.Name,
		ConnectionID: string(c.ID),
		Payload:      data,
	})
	return true
}
