package game

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/promptparty/internal/promptparty"
)

func TestRegistry_IDsAndOrder(t *testing.T) {
	reg := NewRegistry()
	a := reg.Register(&fakeConn{})
	b := reg.Register(&fakeConn{})
	c := reg.Register(&fakeConn{})

	assert.Equal(t, ConnID("c1"), a)
	assert.Equal(t, ConnID("c2"), b)
	assert.Equal(t, ConnID("c3"), c)

	reg.SetRole(b, promptparty.RolePlayer)
	reg.SetRole(b, promptparty.RolePlayer)
	reg.SetName(b, "Bob")

	_, ok := reg.Remove(a)
	require.True(t, ok)
	d := reg.Register(&fakeConn{})
	assert.Equal(t, ConnID("c4"), d, "ids are never reused")

	var ids []ConnID
	for _, conn := range reg.ForEach(nil) {
		ids = append(ids, conn.ID)
	}
	assert.Equal(t, []ConnID{b, c, d}, ids)

	players := reg.ForEach(HasRole(promptparty.RolePlayer))
	require.Len(t, players, 1)
	assert.Equal(t, "Bob", players[0].Name)

	_, ok = reg.Get(a)
	assert.False(t, ok)
}

func TestRegistry_PlayersUsesPlaceholder(t *testing.T) {
	reg := NewRegistry()
	id := reg.Register(&fakeConn{})
	reg.SetRole(id, promptparty.RolePlayer)

	assert.Equal(t, []PlayerInfo{{PlayerID: "c1", PlayerName: promptparty.UnnamedPlayer}}, reg.Players())
}

func TestDecode(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want ClientMessage
	}{
		{"admin", `{"type":"admin_register"}`, AdminRegister{}},
		{"supervisor", `{"type":"supervisor_register"}`, SupervisorRegister{}},
		{"register", `{"type":"player_register","playerName":"Ann"}`, PlayerRegister{PlayerName: "Ann"}},
		{"rename", `{"type":"player_rename","newName":"Bea"}`, PlayerRename{NewName: "Bea"}},
		{"answer", `{"type":"player_answer","roundId":"r1","playerId":"c1","playerName":"Ann","text":"hi","sentByTimeout":true}`,
			PlayerAnswer{RoundID: "r1", PlayerID: "c1", PlayerName: "Ann", Text: "hi", SentByTimeout: true}},
		{"round start", `{"type":"admin_round_start","text":"cats"}`, AdminRoundStart{Text: "cats"}},
		{"unknown", `{"type":"dance"}`, Unrecognized{Type: "dance"}},
		{"no type", `{"hello":1}`, Unrecognized{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode([]byte(tc.in))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	for _, bad := range []string{`not json`, `[1,2]`, `{"type":"player_answer","text":42}`} {
		_, err := Decode([]byte(bad))
		assert.Error(t, err, bad)
	}
}

func TestHub_MalformedAndUnknownMessagesKeepConnection(t *testing.T) {
	h := newHarness(t)
	id, c := h.connect()
	h.rec.reset()

	h.sendRaw(id, []byte(`{{{`))
	assert.Empty(t, h.rec.all(), "malformed frames are not audited")

	h.sendRaw(id, []byte(`{"type":"dance"}`))
	assert.Equal(t, 1, h.rec.count("dance", promptparty.ClientToServer))
	assert.Empty(t, c.messages(t))

	h.send(id, map[string]any{"type": KindPlayerRegister, "playerName": "Still here"})
	assert.Len(t, c.ofType(t, TypePlayerRegistered), 1)
}

func TestHub_ConnectionOpenIsAudited(t *testing.T) {
	h := newHarness(t)
	id, _ := h.connect()
	h.sync()

	entries := h.rec.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "connection_open", entries[0].Type)
	assert.Equal(t, string(id), entries[0].ConnectionID)
}

func TestHub_BroadcastAuditsEveryDelivery(t *testing.T) {
	h := newHarness(t)
	adminID, _ := h.admin()
	h.player("Alice")
	h.player("Bob")
	h.connect()
	h.rec.reset()

	h.send(adminID, map[string]any{"type": KindAdminRoundStart, "text": "cats"})

	entries := h.rec.all()
	var in, out int
	for _, e := range entries {
		switch e.Direction {
		case promptparty.ClientToServer:
			in++
			assert.Equal(t, KindAdminRoundStart, e.Type)
		case promptparty.ServerToClient:
			out++
			assert.Equal(t, TypeRoundStart, e.Type)
			var payload map[string]any
			require.NoError(t, json.Unmarshal(e.Payload, &payload))
			assert.Equal(t, TypeRoundStart, payload["type"])
		}
	}
	assert.Equal(t, 1, in)
	assert.Equal(t, 4, out)
}

func TestHub_ClosedConnectionIsSkipped(t *testing.T) {
	h := newHarness(t)
	adminID, admin := h.admin()
	_, gone := h.player("Gone")
	_, alice := h.player("Alice")
	gone.close()
	h.rec.reset()

	h.send(adminID, map[string]any{"type": KindAdminRoundStart, "text": "cats"})

	assert.Len(t, admin.ofType(t, TypeRoundStart), 1)
	assert.Len(t, alice.ofType(t, TypeRoundStart), 1)
	assert.Equal(t, 2, h.rec.count(TypeRoundStart, promptparty.ServerToClient))
}

func TestHub_ImageResultGoesToAdminsAndOwner(t *testing.T) {
	h := newHarness(t)
	_, admin := h.admin()
	aliceID, alice := h.player("Alice")
	_, bob := h.player("Bob")
	supID, sup := h.connect()
	h.send(supID, map[string]any{"type": KindSupervisorRegister})

	job := promptparty.ImageJob{RoundID: "r1", RoundNumber: 3, PlayerID: string(aliceID), PlayerName: "Alice"}
	h.hub.ImageDone(promptparty.ImageResult{
		Job:    job,
		Update: promptparty.ImageUpdate{Status: promptparty.ImageOK, Path: "/pictures/r1-c2.png", ModelName: "flux"},
	})
	h.hub.ImageDone(promptparty.ImageResult{
		Job:    job,
		Update: promptparty.ImageUpdate{Status: promptparty.ImageError, Error: "provider down"},
	})
	h.sync()

	for _, c := range []*fakeConn{admin, alice} {
		ready := c.ofType(t, TypeAnswerImageReady)
		require.Len(t, ready, 1)
		assert.Equal(t, "/pictures/r1-c2.png", ready[0]["imagePath"])
		assert.Equal(t, "flux", ready[0]["modelName"])
		assert.EqualValues(t, 3, ready[0]["roundNumber"])

		failed := c.ofType(t, TypeAnswerImageError)
		require.Len(t, failed, 1)
		assert.Equal(t, "provider down", failed[0]["error"])
	}
	assert.Empty(t, bob.ofType(t, TypeAnswerImageReady))
	assert.Empty(t, sup.ofType(t, TypeAnswerImageReady))
}

func TestHub_ExternalBroadcastReachesEveryone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, admin := h.admin()
	supID, sup := h.connect()
	h.send(supID, map[string]any{"type": KindSupervisorRegister})

	cup := "Cup"
	require.NoError(t, h.hub.Broadcast(ctx, nil, NewScoreUpdate(promptparty.Score{TournamentName: &cup, PlayerName: "Alice", Score: 2})))
	h.sync()

	for _, c := range []*fakeConn{admin, sup} {
		got := c.ofType(t, TypeScoreUpdate)
		require.Len(t, got, 1)
		assert.Equal(t, "Cup", got[0]["tournamentName"])
		assert.EqualValues(t, 2, got[0]["score"])
	}
}

func TestHub_StoppedHubRejectsCommands(t *testing.T) {
	hub := NewHub(Deps{Recorder: &memRecorder{}, Logger: discardLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, hub.Run(ctx))

	_, err := hub.Connect(context.Background(), &fakeConn{})
	assert.ErrorIs(t, err, ErrHubStopped)
}
