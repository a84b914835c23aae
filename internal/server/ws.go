package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	"github.com/playperu/promptparty/internal/game"
	"github.com/playperu/promptparty/internal/metrics"
	"github.com/playperu/promptparty/internal/promptparty"
)

const (
	wsSendQueue      = 64
	wsFrameLimit     = 16 << 10
	wsSocketLimit    = 100 << 20
	wsWriteTimeout   = 10 * time.Second
	wsDisconnectWait = 5 * time.Second
)

type wsLimits struct {
	rate  rate.Limit
	burst int
}

// wsConn is the hub's view of one socket. Send only enqueues; a writer
// goroutine owns the socket's write side.
type wsConn struct {
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newWSConn() *wsConn {
	return &wsConn{send: make(chan []byte, wsSendQueue), closed: make(chan struct{})}
}

func (c *wsConn) Send(data []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *wsConn) close() { c.once.Do(func() { close(c.closed) }) }

func handleWS(hub Hub, rec game.Recorder, limits wsLimits, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			logger.Error("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()
		conn.SetReadLimit(wsSocketLimit)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		wc := newWSConn()
		id, err := hub.Connect(ctx, wc)
		if err != nil {
			logger.Warn("websocket rejected", "error", err)
			conn.Close(websocket.StatusTryAgainLater, "server shutting down")
			return
		}
		log := logger.With("conn_id", id)
		defer func() {
			wc.close()
			dctx, dcancel := context.WithTimeout(context.Background(), wsDisconnectWait)
			defer dcancel()
			if err := hub.Disconnect(dctx, id); err != nil {
				log.Debug("disconnect not delivered", "error", err)
			}
		}()

		go writeLoop(ctx, cancel, conn, wc, log)
		rl := &inboundReader{
			conn:    conn,
			hub:     hub,
			rec:     rec,
			id:      id,
			limiter: rate.NewLimiter(limits.rate, limits.burst),
			log:     log,
		}
		rl.run(ctx)
	}
}

func writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, wc *wsConn, log *slog.Logger) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-wc.send:
			wctx, wcancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			wcancel()
			if err != nil {
				log.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

// inboundReader forwards frames to the hub in arrival order until the socket
// or the hub goes away. Oversized frames and frames over the rate limit are
// dropped; neither ends the connection.
type inboundReader struct {
	conn    *websocket.Conn
	hub     Hub
	rec     game.Recorder
	id      game.ConnID
	limiter *rate.Limiter
	log     *slog.Logger
}

func (r *inboundReader) run(ctx context.Context) {
	for {
		data, err := r.next(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				r.log.Debug("websocket read ended", "error", err)
			}
			return
		}
		if data == nil {
			continue
		}
		if !r.limiter.Allow() {
			r.rateLimited(data)
			continue
		}
		if err := r.hub.Deliver(ctx, r.id, data); err != nil {
			r.log.Debug("inbound message not delivered", "error", err)
			return
		}
	}
}

// next reads one frame. A frame over wsFrameLimit is drained and reported
// as nil data.
func (r *inboundReader) next(ctx context.Context) ([]byte, error) {
	_, fr, err := r.conn.Reader(ctx)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(fr, wsFrameLimit+1))
	if err != nil {
		return nil, err
	}
	if len(data) <= wsFrameLimit {
		return data, nil
	}
	n, err := io.Copy(io.Discard, fr)
	if err != nil {
		return nil, err
	}
	r.log.Debug("oversized frame dropped", "bytes", int64(len(data))+n, "limit", wsFrameLimit)
	return nil, nil
}

func (r *inboundReader) rateLimited(data []byte) {
	metrics.InboundRateLimitedTotal.Inc()
	r.log.Debug("inbound message dropped by rate limit")

	payload := json.RawMessage(data)
	if !json.Valid(data) {
		payload = nil
	}
	r.rec.Record(promptparty.EventLogEntry{
		Type:         "rate_limited",
		Direction:    promptparty.ClientToServer,
		ConnectionID: string(r.id),
		Payload:      payload,
	})
}
