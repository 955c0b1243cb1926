// Package store holds the authoritative overlay document and writes it
// through to a Persister on every change.
//
// A Store is not safe for concurrent use. The hub loop goroutine owns it.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/overlay-sync/internal/merge"
	"github.com/DoyleJ11/overlay-sync/internal/overlay"
)

// ErrNoSnapshot is returned by Persister.Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot saved")

const ioTimeout = 5 * time.Second

// Persister stores one serialized document.
type Persister interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, doc []byte) error
	Close() error
}

type Store struct {
	state     overlay.AppState
	raw       []byte // state encoded, plus fields carried from the last wire document
	def       overlay.AppState
	persister Persister
	log       *zap.Logger
}

// New returns a store holding def. A nil persister disables persistence.
func New(def overlay.AppState, p Persister, log *zap.Logger) *Store {
	if p == nil {
		p = Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		state:     def.Clone(),
		def:       def.Clone(),
		persister: p,
		log:       log,
	}
}

// Open is New followed by loading the persisted snapshot merged over def.
// Load failures are logged and leave the store at def.
func Open(ctx context.Context, def overlay.AppState, p Persister, log *zap.Logger) *Store {
	s := New(def, p, log)

	ctx, cancel := context.WithTimeout(ctx, ioTimeout)
	defer cancel()

	body, err := s.persister.Load(ctx)
	switch {
	case errors.Is(err, ErrNoSnapshot):
		s.log.Info("no persisted snapshot, starting from default")
		return s
	case err != nil:
		s.log.Error("load snapshot", zap.Error(err))
		return s
	}

	merged, dropped, err := merge.Reconcile(s.def, body)
	if err != nil {
		s.log.Error("reconcile snapshot", zap.Error(err))
		return s
	}
	if len(dropped) > 0 {
		s.log.Warn("snapshot fields reverted to default", zap.Strings("paths", dropped))
	}
	s.state = merged
	s.raw = s.carry(body, merged)
	s.log.Info("snapshot loaded and merged with default", zap.Int("bytes", len(body)))
	return s
}

// Get returns a copy of the current document.
func (s *Store) Get() overlay.AppState {
	return s.state.Clone()
}

// Raw returns the current document as sent on the wire. Fields the schema
// does not know are kept from the last document that carried them.
func (s *Store) Raw() []byte {
	if s.raw == nil {
		s.raw = s.carry(nil, s.state)
	}
	return bytes.Clone(s.raw)
}

// Replace swaps in next wholesale and persists it. Persistence errors are
// logged; the in-memory document is kept either way.
func (s *Store) Replace(next overlay.AppState) {
	s.set(next, s.raw)
}

// ReplaceWire is Replace for a document received on the wire. data must
// decode to next; its unknown fields replace any carried before.
func (s *Store) ReplaceWire(next overlay.AppState, data []byte) {
	s.set(next, data)
}

// Reset replaces the document with the compiled-in default.
func (s *Store) Reset() overlay.AppState {
	s.set(s.def, nil)
	return s.Get()
}

// Update applies fn to the current document and persists the result.
func (s *Store) Update(fn func(*overlay.AppState)) overlay.AppState {
	next := s.state.Clone()
	fn(&next)
	s.Replace(next)
	return s.Get()
}

func (s *Store) set(next overlay.AppState, carryFrom []byte) {
	s.state = next.Clone()
	s.raw = s.carry(carryFrom, s.state)
	s.persist()
}

func (s *Store) carry(from []byte, st overlay.AppState) []byte {
	raw, err := merge.Carry(from, st)
	if err != nil {
		s.log.Error("encode document", zap.Error(err))
		return nil
	}
	return raw
}

func (s *Store) persist() {
	var body bytes.Buffer
	if err := json.Indent(&body, s.Raw(), "", "  "); err != nil {
		s.log.Error("encode snapshot", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), ioTimeout)
	defer cancel()
	if err := s.persister.Save(ctx, body.Bytes()); err != nil {
		s.log.Error("persist snapshot", zap.Error(err))
	}
}

func (s *Store) Close() error {
	return s.persister.Close()
}

// Nop discards every save.
type Nop struct{}

func (Nop) Load(context.Context) ([]byte, error) { return nil, ErrNoSnapshot }
func (Nop) Save(context.Context, []byte) error   { return nil }
func (Nop) Close() error                         { return nil }
