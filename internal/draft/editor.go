// Package draft holds the editor-side pair of documents: live mirrors what
// the hub has, draft carries staged edits until they are published.
package draft

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/overlay-sync/internal/merge"
	"github.com/DoyleJ11/overlay-sync/internal/overlay"
)

const (
	DefaultTickInterval = time.Second
	DefaultIntroHold    = 9500 * time.Millisecond
)

var ErrNotLiveImmediate = errors.New("path is not live-immediate")

// Transmitter sends one full document to the hub.
type Transmitter interface {
	Transmit(doc []byte) error
}

type Option func(*Editor)

func WithLogger(l *zap.Logger) Option {
	return func(e *Editor) { e.log = l }
}

func WithTickInterval(d time.Duration) Option {
	return func(e *Editor) { e.tick = d }
}

// WithIntroHold sets how long the intro stays up before it is cleared.
func WithIntroHold(d time.Duration) Option {
	return func(e *Editor) { e.introHold = d }
}

// Editor is safe for concurrent use. Every mutation of live is transmitted
// first and committed only when the transmitter accepts it.
type Editor struct {
	tx        Transmitter
	log       *zap.Logger
	tick      time.Duration
	introHold time.Duration

	mu         sync.Mutex
	live       overlay.AppState
	liveRaw    []byte // last wire form of live, for fields this build does not know
	draft      overlay.AppState
	introTimer *time.Timer
	introGen   int
	closed     bool
}

func New(initial overlay.AppState, tx Transmitter, opts ...Option) *Editor {
	e := &Editor{
		tx:        tx,
		log:       zap.NewNop(),
		tick:      DefaultTickInterval,
		introHold: DefaultIntroHold,
		live:      initial.Clone(),
		draft:     initial.Clone(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Editor) Live() overlay.AppState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.live.Clone()
}

func (e *Editor) Draft() overlay.AppState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft.Clone()
}

// Edit sets the dotted path to raw. Paths under game go straight to live;
// everything else only touches the draft.
func (e *Editor) Edit(path, raw string) error {
	if overlay.IsLiveImmediate(path) {
		return e.SetLivePath(path, raw)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	next, err := overlay.SetPath(e.draft, path, raw)
	if err != nil {
		return err
	}
	e.draft = next
	return nil
}

// EditDraft applies fn to the draft document.
func (e *Editor) EditDraft(fn func(*overlay.AppState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.draft)
	// game is owned by live
	e.draft.Game = e.live.Game
}

func (e *Editor) Dirty(sec overlay.Section) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !overlay.SectionEqual(e.live, e.draft, sec)
}

func (e *Editor) DirtySections() []overlay.Section {
	e.mu.Lock()
	defer e.mu.Unlock()
	return overlay.Diff(e.live, e.draft)
}

// Publish promotes one section of the draft into live and transmits live.
func (e *Editor) Publish(sec overlay.Section) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	next := e.live.Clone()
	sec.CopyInto(&next, e.draft)
	if err := e.commit(next); err != nil {
		return fmt.Errorf("publish %s: %w", sec, err)
	}
	return nil
}

// PublishAll promotes the whole draft into live and transmits it.
func (e *Editor) PublishAll() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.commit(e.draft.Clone()); err != nil {
		return fmt.Errorf("publish all: %w", err)
	}
	return nil
}

// SetLive applies fn to the live game block, transmits, and mirrors the
// result into the draft.
func (e *Editor) SetLive(fn func(*overlay.GameState)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	game := e.live.Game
	fn(&game)
	return e.setGame(game)
}

// SetLivePath is SetLive addressed by a dotted path under game.
func (e *Editor) SetLivePath(path, raw string) error {
	if !overlay.IsLiveImmediate(path) {
		return fmt.Errorf("%w: %s", ErrNotLiveImmediate, path)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	next, err := overlay.SetPath(e.live, path, raw)
	if err != nil {
		return err
	}
	return e.setGame(next.Game)
}

// Receive adopts a document from the hub. Clean draft sections follow it,
// dirty ones keep the staged edits.
func (e *Editor) Receive(data []byte) error {
	doc, err := overlay.Decode(data)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	dirty := overlay.Diff(e.live, e.draft)
	prev := e.draft
	e.live = doc
	e.liveRaw = bytes.Clone(data)
	e.draft = doc.Clone()
	for _, sec := range dirty {
		sec.CopyInto(&e.draft, prev)
	}
	if !doc.Game.IsIntroActive {
		e.stopIntroLocked()
	}
	return nil
}

// Tick runs one countdown step. It reports whether the timer moved.
func (e *Editor) Tick() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	game := e.live.Game
	if !game.IsGameControlEnabled || game.Timer <= 0 {
		return false, nil
	}
	game.Timer--
	if err := e.setGame(game); err != nil {
		return false, err
	}
	return true, nil
}

// Run ticks the countdown until ctx is done.
func (e *Editor) Run(ctx context.Context) error {
	t := time.NewTicker(e.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := e.Tick(); err != nil {
				e.log.Warn("timer tick not sent", zap.Error(err))
			}
		}
	}
}

func (e *Editor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.stopIntroLocked()
}

func (e *Editor) setGame(game overlay.GameState) error {
	wasIntro := e.live.Game.IsIntroActive
	next := e.live.Clone()
	next.Game = game
	if err := e.commit(next); err != nil {
		return err
	}
	e.draft.Game = game
	switch {
	case game.IsIntroActive && !wasIntro:
		e.scheduleIntroClearLocked()
	case !game.IsIntroActive:
		e.stopIntroLocked()
	}
	return nil
}

// commit transmits next and, on success, makes it the live document.
func (e *Editor) commit(next overlay.AppState) error {
	data, err := merge.Carry(e.liveRaw, next)
	if err != nil {
		return err
	}
	if err := e.tx.Transmit(data); err != nil {
		return err
	}
	e.live = next
	e.liveRaw = data
	return nil
}

func (e *Editor) scheduleIntroClearLocked() {
	if e.closed {
		return
	}
	e.stopIntroLocked()
	gen := e.introGen
	e.introTimer = time.AfterFunc(e.introHold, func() { e.clearIntro(gen) })
}

func (e *Editor) stopIntroLocked() {
	e.introGen++
	if e.introTimer != nil {
		e.introTimer.Stop()
		e.introTimer = nil
	}
}

func (e *Editor) clearIntro(gen int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.introGen || e.closed || !e.live.Game.IsIntroActive {
		return
	}
	e.introTimer = nil
	game := e.live.Game
	game.IsIntroActive = false
	if err := e.setGame(game); err != nil {
		e.log.Warn("intro clear not sent", zap.Error(err))
	}
}
