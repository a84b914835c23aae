package game

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playperu/promptparty/internal/promptparty"
	"github.com/playperu/promptparty/internal/store"
)

func TestStartRound_BroadcastsToEveryRole(t *testing.T) {
	h := newHarness(t)
	adminID, admin := h.admin()
	_, player := h.player("Alice")
	supID, sup := h.connect()
	h.send(supID, map[string]any{"type": KindSupervisorRegister})
	_, unset := h.connect()

	roundID := h.startRound(adminID, "  a dragon eating pasta  ")

	for name, c := range map[string]*fakeConn{"admin": admin, "player": player, "supervisor": sup, "unset": unset} {
		got := c.ofType(t, TypeRoundStart)
		require.Len(t, got, 1, name)
		assert.Equal(t, roundID, got[0]["roundId"], name)
		assert.Equal(t, "a dragon eating pasta", got[0]["text"], name)
		assert.EqualValues(t, 30000, got[0]["durationMs"], name)
		assert.EqualValues(t, 5000, got[0]["toleranceMs"], name)
		assert.EqualValues(t, 1, got[0]["roundNumber"], name)
	}

	r := h.round(roundID)
	assert.Equal(t, "a dragon eating pasta", r.Prompt)
	assert.True(t, r.StartTime.Equal(t0))
	assert.Equal(t, promptparty.DefaultTournamentName, r.TournamentName)
}

func TestStartRound_NumbersIncrease(t *testing.T) {
	h := newHarness(t)
	adminID, _ := h.admin()

	first := h.startRound(adminID, "one")
	second := h.startRound(adminID, "two")

	assert.Equal(t, 1, h.round(first).Number)
	assert.Equal(t, 2, h.round(second).Number)
}

// Scenario C
func TestStartRound_BlankPromptIsIgnored(t *testing.T) {
	h := newHarness(t)
	adminID, admin := h.admin()
	_, player := h.player("Alice")

	h.send(adminID, map[string]any{"type": KindAdminRoundStart, "text": "   "})

	st, err := h.hub.State(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st.Current)
	assert.Empty(t, admin.ofType(t, TypeRoundStart))
	assert.Empty(t, player.ofType(t, TypeRoundStart))

	rounds, err := h.store.ListRounds(context.Background(), store.RoundFilter{})
	require.NoError(t, err)
	assert.Empty(t, rounds)
}

func TestStartRound_ClosedTournamentIsRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tour, err := h.store.EnsureTournament(ctx, "Spring Cup")
	require.NoError(t, err)
	_, err = h.store.CloseTournament(ctx, "Spring Cup")
	require.NoError(t, err)
	require.NoError(t, h.hub.UpdateSettings(ctx, Live{TournamentID: tour.ID, TournamentName: tour.Name}))

	adminID, admin := h.admin()
	_, player := h.player("Alice")
	h.send(adminID, map[string]any{"type": KindAdminRoundStart, "text": "cats"})

	rejected := admin.ofType(t, TypeRoundStartRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, ReasonTournamentClosedOrMissing, rejected[0]["reason"])
	assert.Equal(t, "Spring Cup", rejected[0]["tournamentName"])
	assert.Empty(t, player.messages(t)[1:], "only the requester hears about the rejection")

	st, _ := h.hub.State(ctx)
	assert.Nil(t, st.Current)
}

func TestStartRound_MissingTournamentIsRejected(t *testing.T) {
	h := newHarness(t, withLive(Live{TournamentID: "gone", TournamentName: "Ghost Cup"}))
	adminID, admin := h.admin()

	h.send(adminID, map[string]any{"type": KindAdminRoundStart, "text": "cats"})

	assert.Len(t, admin.ofType(t, TypeRoundStartRejected), 1)
}

func TestStartRound_UsesLiveSettings(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	tour, err := h.store.EnsureTournament(ctx, "Autumn")
	require.NoError(t, err)
	require.NoError(t, h.hub.UpdateSettings(ctx, Live{TournamentID: tour.ID, TournamentName: "Autumn", ModelName: "flux"}))

	adminID, admin := h.admin()
	roundID := h.startRound(adminID, "cats")

	r := h.round(roundID)
	assert.Equal(t, "Autumn", r.TournamentName)
	assert.Equal(t, tour.ID, r.TournamentID)
	assert.Equal(t, "flux", r.ModelName)
	assert.Equal(t, "flux", admin.ofType(t, TypeRoundStart)[0]["modelName"])
}

func TestSubmitAnswer_Accepted(t *testing.T) {
	h := newHarness(t)
	adminID, admin := h.admin()
	aliceID, alice := h.player("Alice")
	_, bob := h.player("Bob")
	supID, sup := h.connect()
	h.send(supID, map[string]any{"type": KindSupervisorRegister})

	roundID := h.startRound(adminID, "cats")
	h.clock.Advance(10 * time.Second)
	h.answer(aliceID, roundID, "  a cat in a hat ")

	r := h.round(roundID)
	require.Len(t, r.Answers, 1)
	a := r.Answers[0]
	assert.Equal(t, "Alice", a.PlayerName)
	assert.Equal(t, string(aliceID), a.PlayerID)
	assert.Equal(t, "a cat in a hat", a.Text)
	assert.False(t, a.Late)
	assert.Equal(t, promptparty.ImagePending, a.ImageStatus)

	for _, c := range []*fakeConn{admin, alice, bob} {
		got := c.ofType(t, TypeRoundAnswer)
		require.Len(t, got, 1)
		assert.Equal(t, "pending", got[0]["imageStatus"])
	}
	assert.Empty(t, sup.ofType(t, TypeRoundAnswer), "supervisors do not see answers")

	accepted := alice.ofType(t, TypeAnswerAccepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, false, accepted[0]["late"])
	assert.Empty(t, bob.ofType(t, TypeAnswerAccepted))

	jobs := h.images.all()
	require.Len(t, jobs, 1)
	assert.Equal(t, promptparty.ImageJob{
		RoundID:     roundID,
		RoundNumber: 1,
		PlayerID:    string(aliceID),
		PlayerName:  "Alice",
		Prompt:      "a cat in a hat",
	}, jobs[0])
}

func TestSubmitAnswer_NoActiveRound(t *testing.T) {
	h := newHarness(t)
	aliceID, alice := h.player("Alice")

	h.answer(aliceID, "whatever", "hello")

	got := alice.ofType(t, TypeAnswerRejected)
	require.Len(t, got, 1)
	assert.Equal(t, ReasonNoActiveRound, got[0]["reason"])
	assert.NotContains(t, got[0], "maxMs")
}

func TestSubmitAnswer_SupersededRoundIsWrongRound(t *testing.T) {
	h := newHarness(t)
	adminID, _ := h.admin()
	aliceID, alice := h.player("Alice")

	old := h.startRound(adminID, "first")
	next := h.startRound(adminID, "second")
	require.NotEqual(t, old, next)

	h.answer(aliceID, old, "too slow")

	got := alice.ofType(t, TypeAnswerRejected)
	require.Len(t, got, 1)
	assert.Equal(t, ReasonWrongRound, got[0]["reason"])
	assert.Empty(t, h.round(old).Answers)
	assert.Empty(t, h.round(next).Answers)
}

// Scenario A
func TestSubmitAnswer_LateAndTooLate(t *testing.T) {
	h := newHarness(t)
	adminID, _ := h.admin()
	aliceID, alice := h.player("Alice")
	bobID, bob := h.player("Bob")

	roundID := h.startRound(adminID, "cats")

	h.clock.Advance(31 * time.Second)
	h.answer(aliceID, roundID, "late but fine")

	accepted := alice.ofType(t, TypeAnswerAccepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, true, accepted[0]["late"])
	a, ok := h.round(roundID).AnswerBy("Alice")
	require.True(t, ok)
	assert.True(t, a.Late)

	h.clock.Advance(5 * time.Second)
	h.answer(bobID, roundID, "way too late")

	rejected := bob.ofType(t, TypeAnswerRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, ReasonTooLate, rejected[0]["reason"])
	assert.EqualValues(t, 35000, rejected[0]["maxMs"])
	assert.EqualValues(t, 36000, rejected[0]["diffMs"])
	_, ok = h.round(roundID).AnswerBy("Bob")
	assert.False(t, ok)
	assert.Equal(t, 1, h.rec.count("player_answer_too_late", promptparty.ClientToServer))
}

func TestSubmitAnswer_WindowBoundaries(t *testing.T) {
	cases := []struct {
		name     string
		elapsed  time.Duration
		accepted bool
		late     bool
	}{
		{"start", 0, true, false},
		{"official end", 30 * time.Second, true, false},
		{"just past official end", 30*time.Second + time.Millisecond, true, true},
		{"tolerance end", 35 * time.Second, true, true},
		{"past tolerance", 35*time.Second + time.Millisecond, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			adminID, _ := h.admin()
			aliceID, alice := h.player("Alice")
			roundID := h.startRound(adminID, "cats")

			h.clock.Advance(tc.elapsed)
			h.answer(aliceID, roundID, "answer")

			a, ok := h.round(roundID).AnswerBy("Alice")
			assert.Equal(t, tc.accepted, ok)
			if tc.accepted {
				assert.Equal(t, tc.late, a.Late)
				assert.Empty(t, alice.ofType(t, TypeAnswerRejected))
			} else {
				assert.Len(t, alice.ofType(t, TypeAnswerRejected), 1)
			}
		})
	}
}

// Scenario B
func TestSubmitAnswer_DuplicateIsSilentButLogged(t *testing.T) {
	h := newHarness(t)
	adminID, admin := h.admin()
	aliceID, alice := h.player("Alice")

	roundID := h.startRound(adminID, "cats")
	h.answer(aliceID, roundID, "first")
	h.answer(aliceID, roundID, "second")

	r := h.round(roundID)
	require.Len(t, r.Answers, 1)
	assert.Equal(t, "first", r.Answers[0].Text)

	assert.Len(t, alice.ofType(t, TypeAnswerAccepted), 1)
	assert.Empty(t, alice.ofType(t, TypeAnswerRejected))
	assert.Len(t, admin.ofType(t, TypeRoundAnswer), 1)
	assert.Len(t, h.images.all(), 1)
	assert.Equal(t, 1, h.rec.count("player_answer_duplicate", promptparty.ClientToServer))
}

func TestSubmitAnswer_DuplicateAcrossConnectionsWithSameName(t *testing.T) {
	h := newHarness(t)
	adminID, _ := h.admin()
	firstID, _ := h.player("Alice")
	secondID, second := h.player("Alice")

	roundID := h.startRound(adminID, "cats")
	h.answer(firstID, roundID, "mine")
	h.answer(secondID, roundID, "also mine")

	assert.Len(t, h.round(roundID).Answers, 1)
	assert.Empty(t, second.ofType(t, TypeAnswerAccepted))
}

func TestSubmitAnswer_TooLateCheckedBeforeDuplicate(t *testing.T) {
	h := newHarness(t)
	adminID, _ := h.admin()
	aliceID, alice := h.player("Alice")

	roundID := h.startRound(adminID, "cats")
	h.answer(aliceID, roundID, "first")
	h.clock.Advance(40 * time.Second)
	h.answer(aliceID, roundID, "again")

	rejected := alice.ofType(t, TypeAnswerRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, ReasonTooLate, rejected[0]["reason"])
	assert.Equal(t, 0, h.rec.count("player_answer_duplicate", promptparty.ClientToServer))
}

func TestSubmitAnswer_NameFallbacks(t *testing.T) {
	h := newHarness(t)
	adminID, _ := h.admin()
	roundID := h.startRound(adminID, "cats")

	namedID, _ := h.connect()
	h.send(namedID, map[string]any{"type": KindPlayerAnswer, "roundId": roundID, "playerName": "Zed", "text": "z"})
	anonID, _ := h.connect()
	h.answer(anonID, roundID, "anon")

	r := h.round(roundID)
	_, ok := r.AnswerBy("Zed")
	assert.True(t, ok, "falls back to the name in the message")
	_, ok = r.AnswerBy(promptparty.UnnamedPlayer)
	assert.True(t, ok, "falls back to the placeholder")
}

func TestSubmitAnswer_NoImagesConfigured(t *testing.T) {
	h := newHarness(t, withoutImages())
	adminID, admin := h.admin()
	aliceID, _ := h.player("Alice")

	roundID := h.startRound(adminID, "cats")
	h.answer(aliceID, roundID, "hello")

	a, ok := h.round(roundID).AnswerBy("Alice")
	require.True(t, ok)
	assert.Equal(t, promptparty.ImagePending, a.ImageStatus)
	assert.Empty(t, admin.ofType(t, TypeAnswerImageReady))
}

func TestRegisterPlayer_GeneratesNamesAndNotifiesAdmins(t *testing.T) {
	h := newHarness(t)
	_, admin := h.admin()

	firstID, first := h.player("")
	_, second := h.player("   ")
	_, carol := h.player(" Carol ")

	assert.Equal(t, "Player 1", first.ofType(t, TypePlayerRegistered)[0]["playerName"])
	assert.Equal(t, string(firstID), first.ofType(t, TypePlayerRegistered)[0]["playerId"])
	assert.Equal(t, "Player 2", second.ofType(t, TypePlayerRegistered)[0]["playerName"])
	assert.Equal(t, "Carol", carol.ofType(t, TypePlayerRegistered)[0]["playerName"])

	lists := admin.ofType(t, TypePlayerList)
	require.NotEmpty(t, lists)
	last := lists[len(lists)-1]["players"].([]any)
	require.Len(t, last, 3)
	assert.Equal(t, "Carol", last[2].(map[string]any)["playerName"])

	assert.Empty(t, first.ofType(t, TypePlayerList), "players never get the player list")
}

func TestRenamePlayer(t *testing.T) {
	h := newHarness(t)
	_, admin := h.admin()
	aliceID, alice := h.player("Alice")

	h.send(aliceID, map[string]any{"type": KindPlayerRename, "newName": "  "})
	assert.Empty(t, alice.ofType(t, TypePlayerRenamed))
	assert.Empty(t, admin.ofType(t, TypePlayerRenamedBroadcast))

	h.send(aliceID, map[string]any{"type": KindPlayerRename, "newName": "Alicia"})

	renamed := alice.ofType(t, TypePlayerRenamed)
	require.Len(t, renamed, 1)
	assert.Equal(t, "Alicia", renamed[0]["playerName"])
	broadcast := admin.ofType(t, TypePlayerRenamedBroadcast)
	require.Len(t, broadcast, 1)
	assert.Equal(t, string(aliceID), broadcast[0]["playerId"])
	assert.Empty(t, alice.ofType(t, TypePlayerRenamedBroadcast))

	lists := admin.ofType(t, TypePlayerList)
	last := lists[len(lists)-1]["players"].([]any)
	assert.Equal(t, "Alicia", last[0].(map[string]any)["playerName"])
}

func TestDisconnect_PlayerRefreshesAdminList(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	_, admin := h.admin()
	aliceID, _ := h.player("Alice")
	before := len(admin.ofType(t, TypePlayerList))

	require.NoError(t, h.hub.Disconnect(ctx, aliceID))
	h.sync()

	lists := admin.ofType(t, TypePlayerList)
	require.Len(t, lists, before+1)
	assert.Empty(t, lists[len(lists)-1]["players"])
	assert.Equal(t, 1, h.rec.count("connection_close", promptparty.ClientToServer))

	st, err := h.hub.State(ctx)
	require.NoError(t, err)
	assert.Len(t, st.Connections, 1)
}

func TestLoadSettings_CreatesDefaultTournament(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	live, err := LoadSettings(ctx, s, promptparty.DefaultTournamentName)
	require.NoError(t, err)
	assert.Equal(t, promptparty.DefaultTournamentName, live.TournamentName)
	assert.NotEmpty(t, live.TournamentID)

	again, err := LoadSettings(ctx, s, promptparty.DefaultTournamentName)
	require.NoError(t, err)
	assert.Equal(t, live.TournamentID, again.TournamentID)
}

func TestApplySettings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	cur, err := LoadSettings(ctx, s, promptparty.DefaultTournamentName)
	require.NoError(t, err)

	blank := "  "
	_, err = ApplySettings(ctx, s, cur, SettingsChange{TournamentName: &blank})
	assert.ErrorIs(t, err, ErrInvalidTournamentName)

	name, model := "Winter", " sdxl "
	next, err := ApplySettings(ctx, s, cur, SettingsChange{TournamentName: &name, ModelName: &model})
	require.NoError(t, err)
	assert.Equal(t, "Winter", next.TournamentName)
	assert.Equal(t, "sdxl", next.ModelName)
	assert.NotEqual(t, cur.TournamentID, next.TournamentID)

	saved, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Winter", saved.CurrentTournamentName)
	assert.Equal(t, "sdxl", saved.CurrentModelName)

	_, err = s.FindTournamentByName(ctx, "Winter")
	assert.NoError(t, err)
}
