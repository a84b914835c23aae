package game

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/playperu/promptparty/internal/database"
	"github.com/playperu/promptparty/internal/migrations"
	"github.com/playperu/promptparty/internal/promptparty"
	"github.com/playperu/promptparty/internal/store"
)

var t0 = time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

// fakeConn records every frame sent to it.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (c *fakeConn) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.frames = append(c.frames, data)
	return true
}

func (c *fakeConn) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// messages decodes the received frames into generic maps.
func (c *fakeConn) messages(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) ofType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range c.messages(t) {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

// memRecorder keeps audit entries in memory, synchronously.
type memRecorder struct {
	mu      sync.Mutex
	entries []promptparty.EventLogEntry
}

func (r *memRecorder) Record(e promptparty.EventLogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *memRecorder) all() []promptparty.EventLogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]promptparty.EventLogEntry(nil), r.entries...)
}

func (r *memRecorder) count(typ string, dir promptparty.Direction) int {
	n := 0
	for _, e := range r.all() {
		if e.Type == typ && e.Direction == dir {
			n++
		}
	}
	return n
}

func (r *memRecorder) reset() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}

// fakeImages remembers enqueued jobs.
type fakeImages struct {
	mu   sync.Mutex
	jobs []promptparty.ImageJob
}

func (f *fakeImages) Enqueue(j promptparty.ImageJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, j)
}

func (f *fakeImages) all() []promptparty.ImageJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]promptparty.ImageJob(nil), f.jobs...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *store.DocStore {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.Run(ctx, db))
	return store.New(db)
}

type harness struct {
	t      *testing.T
	hub    *Hub
	store  *store.DocStore
	rec    *memRecorder
	images *fakeImages
	clock  *clockwork.FakeClock
}

type harnessOption func(*Deps)

func withoutImages() harnessOption {
	return func(d *Deps) { d.Images = nil }
}

func withLive(l Live) harnessOption {
	return func(d *Deps) { d.Live = l }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		store:  newTestStore(t),
		rec:    &memRecorder{},
		images: &fakeImages{},
		clock:  clockwork.NewFakeClockAt(t0),
	}
	deps := Deps{
		Store:    h.store,
		Images:   h.images,
		Recorder: h.rec,
		Clock:    h.clock,
		Logger:   discardLogger(),
	}
	for _, opt := range opts {
		opt(&deps)
	}
	h.hub = NewHub(deps)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) connect() (ConnID, *fakeConn) {
	h.t.Helper()
	c := &fakeConn{}
	id, err := h.hub.Connect(context.Background(), c)
	require.NoError(h.t, err)
	return id, c
}

// send delivers msg from id and waits until the hub has handled it.
func (h *harness) send(id ConnID, msg any) {
	h.t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(h.t, err)
	h.sendRaw(id, data)
}

func (h *harness) sendRaw(id ConnID, data []byte) {
	h.t.Helper()
	require.NoError(h.t, h.hub.Deliver(context.Background(), id, data))
	h.sync()
}

func (h *harness) sync() {
	h.t.Helper()
	require.NoError(h.t, h.hub.Sync(context.Background()))
}

func (h *harness) admin() (ConnID, *fakeConn) {
	id, c := h.connect()
	h.send(id, map[string]any{"type": KindAdminRegister})
	return id, c
}

func (h *harness) player(name string) (ConnID, *fakeConn) {
	id, c := h.connect()
	h.send(id, map[string]any{"type": KindPlayerRegister, "playerName": name})
	return id, c
}

// startRound starts a round from admin and returns its id.
func (h *harness) startRound(admin ConnID, text string) string {
	h.t.Helper()
	h.send(admin, map[string]any{"type": KindAdminRoundStart, "text": text})
	st, err := h.hub.State(context.Background())
	require.NoError(h.t, err)
	require.NotNil(h.t, st.Current, "expected a current round")
	return st.Current.ID
}

func (h *harness) answer(id ConnID, roundID, text string) {
	h.send(id, map[string]any{
		"type":    KindPlayerAnswer,
		"roundId": roundID,
		"text":    text,
	})
}

func (h *harness) round(id string) promptparty.Round {
	h.t.Helper()
	r, err := h.store.GetRound(context.Background(), id)
	require.NoError(h.t, err)
	return r
}
