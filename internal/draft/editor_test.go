package draft

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/overlay-sync/internal/overlay"
)

type recordingTx struct {
	mu   sync.Mutex
	docs []overlay.AppState
	raws [][]byte
	err  error
}

func (r *recordingTx) Transmit(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	doc, err := overlay.Decode(data)
	if err != nil {
		return err
	}
	r.docs = append(r.docs, doc)
	r.raws = append(r.raws, data)
	return nil
}

func (r *recordingTx) sent() []overlay.AppState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]overlay.AppState(nil), r.docs...)
}

func (r *recordingTx) fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func newEditor(t *testing.T, opts ...Option) (*Editor, *recordingTx) {
	t.Helper()
	tx := &recordingTx{}
	e := New(overlay.Default(), tx, opts...)
	t.Cleanup(e.Close)
	return e, tx
}

func TestDirtyTrackingAndPublishSection(t *testing.T) {
	initial := overlay.Default()
	initial.Blue.Name = "A"
	tx := &recordingTx{}
	e := New(initial, tx)

	require.NoError(t, e.Edit("blue.name", "B"))
	assert.True(t, e.Dirty(overlay.SectionBlue))
	assert.False(t, e.Dirty(overlay.SectionRed))
	assert.Equal(t, "A", e.Live().Blue.Name)
	assert.Empty(t, tx.sent())

	require.NoError(t, e.Publish(overlay.SectionBlue))
	assert.False(t, e.Dirty(overlay.SectionBlue))
	assert.Equal(t, "B", e.Live().Blue.Name)

	sent := tx.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "B", sent[0].Blue.Name)
}

func TestPublishSectionLeavesOtherSectionsStaged(t *testing.T) {
	e, tx := newEditor(t)
	require.NoError(t, e.Edit("blue.name", "ALPHA"))
	require.NoError(t, e.Edit("red.score", "2"))
	assert.Equal(t, []overlay.Section{overlay.SectionBlue, overlay.SectionRed}, e.DirtySections())

	require.NoError(t, e.Publish(overlay.SectionRed))

	assert.Equal(t, []overlay.Section{overlay.SectionBlue}, e.DirtySections())
	sent := tx.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, 2, sent[0].Red.Score)
	assert.Equal(t, "BLUE TEAM", sent[0].Blue.Name)
}

func TestPublishAll(t *testing.T) {
	e, tx := newEditor(t)
	require.NoError(t, e.Edit("blue.picks.0", "Ahri"))
	require.NoError(t, e.Edit("adConfig.speed", "2.5"))
	e.EditDraft(func(s *overlay.AppState) {
		s.Registry = append(s.Registry, overlay.RegisteredTeam{ID: "t1", Name: "Tigers"})
	})
	require.Len(t, e.DirtySections(), 3)

	require.NoError(t, e.PublishAll())

	assert.Empty(t, e.DirtySections())
	assert.Equal(t, e.Draft(), e.Live())
	require.Len(t, tx.sent(), 1)
	assert.Equal(t, e.Live(), tx.sent()[0])
}

func TestLiveImmediateLockstep(t *testing.T) {
	e, tx := newEditor(t)

	require.NoError(t, e.Edit("game.timer", "12"))

	assert.Equal(t, 12, e.Live().Game.Timer)
	assert.Equal(t, 12, e.Draft().Game.Timer)
	assert.Empty(t, e.DirtySections())
	require.Len(t, tx.sent(), 1)
	assert.Equal(t, 12, tx.sent()[0].Game.Timer)
}

func TestLiveImmediateDoesNotFlushStagedEdits(t *testing.T) {
	e, tx := newEditor(t)
	require.NoError(t, e.Edit("blue.name", "STAGED"))

	require.NoError(t, e.SetLive(func(g *overlay.GameState) { g.Phase = overlay.PhasePicking }))

	sent := tx.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, overlay.PhasePicking, sent[0].Game.Phase)
	assert.Equal(t, "BLUE TEAM", sent[0].Blue.Name)
	assert.True(t, e.Dirty(overlay.SectionBlue))
	assert.Equal(t, "STAGED", e.Draft().Blue.Name)
}

func TestSetLivePathRejectsDraftPath(t *testing.T) {
	e, _ := newEditor(t)
	assert.ErrorIs(t, e.SetLivePath("blue.name", "x"), ErrNotLiveImmediate)
}

func TestEditUnknownField(t *testing.T) {
	e, _ := newEditor(t)
	assert.ErrorIs(t, e.Edit("blue.nickname", "x"), overlay.ErrUnknownField)
	assert.Empty(t, e.DirtySections())
}

func TestTransmitFailureKeepsLive(t *testing.T) {
	e, tx := newEditor(t)
	tx.fail(errors.New("not connected"))
	require.NoError(t, e.Edit("blue.name", "B"))

	assert.Error(t, e.Publish(overlay.SectionBlue))
	assert.Error(t, e.Edit("game.timer", "5"))

	assert.True(t, e.Dirty(overlay.SectionBlue))
	assert.Equal(t, overlay.Default().Game, e.Live().Game)
	assert.Equal(t, overlay.Default().Game, e.Draft().Game)
}

func TestTickDecrementsToZero(t *testing.T) {
	e, tx := newEditor(t)
	require.NoError(t, e.SetLive(func(g *overlay.GameState) { g.Timer = 5 }))

	for i := 0; i < 5; i++ {
		moved, err := e.Tick()
		require.NoError(t, err)
		assert.True(t, moved)
	}
	assert.Equal(t, 0, e.Live().Game.Timer)

	moved, err := e.Tick()
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Equal(t, 0, e.Live().Game.Timer)
	assert.Equal(t, 0, e.Draft().Game.Timer)

	// one for the setter, one per tick
	assert.Len(t, tx.sent(), 6)
}

func TestTickRequiresGameControl(t *testing.T) {
	e, tx := newEditor(t)
	require.NoError(t, e.SetLive(func(g *overlay.GameState) { g.IsGameControlEnabled = false }))

	moved, err := e.Tick()
	require.NoError(t, err)
	assert.False(t, moved)
	assert.Equal(t, 30, e.Live().Game.Timer)
	assert.Len(t, tx.sent(), 1)
}

func TestManualNegativeTimerAccepted(t *testing.T) {
	e, _ := newEditor(t)
	require.NoError(t, e.Edit("game.timer", "-3"))
	assert.Equal(t, -3, e.Live().Game.Timer)

	moved, err := e.Tick()
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestRunTicks(t *testing.T) {
	e, _ := newEditor(t, WithTickInterval(5*time.Millisecond))
	require.NoError(t, e.SetLive(func(g *overlay.GameState) { g.Timer = 3 }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	assert.Eventually(t, func() bool { return e.Live().Game.Timer == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestReceiveKeepsDirtySections(t *testing.T) {
	e, tx := newEditor(t)
	require.NoError(t, e.Edit("blue.name", "STAGED"))

	remote := overlay.Default()
	remote.Blue.Name = "REMOTE BLUE"
	remote.Red.Name = "REMOTE RED"
	remote.Game.Timer = 11
	data, err := remote.Encode()
	require.NoError(t, err)

	require.NoError(t, e.Receive(data))

	assert.Equal(t, remote, e.Live())
	draft := e.Draft()
	assert.Equal(t, "STAGED", draft.Blue.Name)
	assert.Equal(t, "REMOTE RED", draft.Red.Name)
	assert.Equal(t, 11, draft.Game.Timer)
	assert.Empty(t, tx.sent())
}

func TestPublishKeepsFieldsFromReceivedDocument(t *testing.T) {
	e, tx := newEditor(t)
	require.NoError(t, e.Receive([]byte(`{"blue":{"name":"REMOTE","flag":"br"},"caster":"Sam"}`)))

	require.NoError(t, e.Edit("blue.name", "ALPHA"))
	require.NoError(t, e.Publish(overlay.SectionBlue))
	require.NoError(t, e.SetLive(func(g *overlay.GameState) { g.Timer = 5 }))

	tx.mu.Lock()
	raws := tx.raws
	tx.mu.Unlock()
	require.Len(t, raws, 2)
	for _, raw := range raws {
		assert.Contains(t, string(raw), `"caster":"Sam"`)
		assert.Contains(t, string(raw), `"flag":"br"`)
	}
	assert.Equal(t, "ALPHA", tx.sent()[1].Blue.Name)
	assert.Equal(t, 5, tx.sent()[1].Game.Timer)
}

func TestReceiveMalformed(t *testing.T) {
	e, _ := newEditor(t)
	assert.Error(t, e.Receive([]byte(`[1,2]`)))
	assert.Equal(t, overlay.Default(), e.Live())
}

func TestIntroAutoClear(t *testing.T) {
	e, tx := newEditor(t, WithIntroHold(20*time.Millisecond))

	require.NoError(t, e.Edit("game.isIntroActive", "true"))
	assert.True(t, e.Live().Game.IsIntroActive)

	assert.Eventually(t, func() bool { return !e.Live().Game.IsIntroActive }, time.Second, 5*time.Millisecond)
	assert.False(t, e.Draft().Game.IsIntroActive)

	sent := tx.sent()
	require.Len(t, sent, 2)
	assert.True(t, sent[0].Game.IsIntroActive)
	assert.False(t, sent[1].Game.IsIntroActive)
}

func TestIntroClearedManuallyIsNotResent(t *testing.T) {
	e, tx := newEditor(t, WithIntroHold(30*time.Millisecond))

	require.NoError(t, e.SetLive(func(g *overlay.GameState) { g.IsIntroActive = true }))
	require.NoError(t, e.SetLive(func(g *overlay.GameState) { g.IsIntroActive = false }))

	time.Sleep(80 * time.Millisecond)
	assert.Len(t, tx.sent(), 2)
}

func TestGoToStep(t *testing.T) {
	e, _ := newEditor(t)

	require.NoError(t, e.GoToStep(7, 25))
	game := e.Live().Game
	assert.Equal(t, overlay.PhasePicking, game.Phase)
	assert.Equal(t, "red", game.Turn)
	assert.Equal(t, 25, game.Timer)

	require.NoError(t, e.GoToStep(len(Order), 0))
	assert.Equal(t, overlay.PhaseStarting, e.Live().Game.Phase)

	assert.Error(t, e.GoToStep(-1, 0))
}

func TestOrderSlots(t *testing.T) {
	counts := map[overlay.Side]map[Action]int{
		overlay.SideBlue: {},
		overlay.SideRed:  {},
	}
	for _, step := range Order {
		assert.Equal(t, counts[step.Side][step.Action], step.Slot)
		counts[step.Side][step.Action]++
	}
	for _, side := range []overlay.Side{overlay.SideBlue, overlay.SideRed} {
		assert.Equal(t, overlay.RosterSize, counts[side][ActionBan])
		assert.Equal(t, overlay.RosterSize, counts[side][ActionPick])
	}
}
