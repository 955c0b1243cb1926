package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/overlay-sync/internal/overlay"
	"github.com/DoyleJ11/overlay-sync/internal/store"
)

type Msg interface{ isHubMsg() }

// Join registers a connection. The current document is sent on Outbox right away.
type Join struct {
	ClientID string
	Outbox   chan []byte // encoded documents for this connection
}

func (Join) isHubMsg() {}

type Leave struct{ ClientID string }

func (Leave) isHubMsg() {}

// FromClient carries a full document received from a connection.
type FromClient struct {
	ClientID string
	Data     []byte
}

func (FromClient) isHubMsg() {}

// FromRelay carries a document accepted by another server instance.
type FromRelay struct {
	Data []byte
}

func (FromRelay) isHubMsg() {}

type Reset struct {
	Reply chan overlay.AppState // optional
}

func (Reset) isHubMsg() {}

// SetUpload points one image slot at an uploaded file.
type SetUpload struct {
	Field string
	Team  string
	Ref   string
	Reply chan bool // optional; false when the slot is unknown
}

func (SetUpload) isHubMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isHubMsg() {}

type Shutdown struct{}

func (Shutdown) isHubMsg() {}

type View struct {
	NumClients int
	State      overlay.AppState
	Raw        []byte // State as broadcast, unknown fields included
}

// Publisher forwards accepted documents to other server instances.
type Publisher interface {
	Publish(doc []byte)
}

type Option func(*Hub)

func WithPublisher(p Publisher) Option {
	return func(h *Hub) { h.publisher = p }
}

func WithLogger(log *zap.Logger) Option {
	return func(h *Hub) { h.log = log }
}

// Hub owns the store and every connection's outbox. All mutations happen on
// the loop goroutine, so the last message processed wins.
type Hub struct {
	inbox     chan Msg
	store     *store.Store
	clients   map[string]chan []byte
	publisher Publisher
	log       *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(parent context.Context, st *store.Store, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(parent)

	h := &Hub{
		inbox:   make(chan Msg, 64),
		store:   st,
		clients: make(map[string]chan []byte),
		log:     zap.NewNop(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(h)
	}

	go h.loop()
	return h
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Join:
				h.clients[msg.ClientID] = msg.Outbox
				h.deliver(msg.ClientID, msg.Outbox, h.store.Raw())
				h.log.Info("client connected", zap.String("client", msg.ClientID), zap.Int("clients", len(h.clients)))

			case Leave:
				if _, ok := h.clients[msg.ClientID]; ok {
					delete(h.clients, msg.ClientID)
					h.log.Info("client disconnected", zap.String("client", msg.ClientID), zap.Int("clients", len(h.clients)))
				}

			case FromClient:
				next, err := overlay.Decode(msg.Data)
				if err != nil {
					h.log.Warn("dropping malformed document",
						zap.String("client", msg.ClientID), zap.Int("bytes", len(msg.Data)), zap.Error(err))
					break
				}
				h.store.ReplaceWire(next, msg.Data)
				h.commit(msg.ClientID, true)

			case FromRelay:
				next, err := overlay.Decode(msg.Data)
				if err != nil {
					h.log.Warn("dropping malformed relayed document", zap.Error(err))
					break
				}
				h.store.ReplaceWire(next, msg.Data)
				h.commit("", false)

			case Reset:
				st := h.store.Reset()
				h.log.Info("state reset to default")
				h.commit("", true)
				if msg.Reply != nil {
					msg.Reply <- st
				}

			case SetUpload:
				var applied bool
				if next := h.store.Get(); next.SetUpload(msg.Field, msg.Team, msg.Ref) {
					h.store.Replace(next)
					applied = true
				}
				h.commit("", true)
				if msg.Reply != nil {
					msg.Reply <- applied
				}

			case GetState:
				msg.Reply <- View{
					NumClients: len(h.clients),
					State:      h.store.Get(),
					Raw:        h.store.Raw(),
				}

			case Shutdown:
				h.shutdown()
				return
			}
		}
	}
}

// commit fans the current document out to every client except skip and,
// when publish is set, hands it to the relay.
func (h *Hub) commit(skip string, publish bool) {
	doc := h.store.Raw()
	h.broadcast(skip, doc)
	if publish && h.publisher != nil {
		h.publisher.Publish(doc)
	}
}

func (h *Hub) broadcast(skip string, doc []byte) {
	for id, ch := range h.clients {
		if id == skip {
			continue
		}
		h.deliver(id, ch, doc)
	}
}

func (h *Hub) deliver(id string, ch chan []byte, doc []byte) {
	select {
	case ch <- doc:
		//ok
	default:
		// Client is slow/full - drop them.
		h.log.Warn("dropping slow client", zap.String("client", id))
		close(ch)
		delete(h.clients, id)
	}
}

func (h *Hub) shutdown() {
	for id, ch := range h.clients {
		close(ch) // Tell client no more documents
		delete(h.clients, id)
	}
	h.cancel()
}

// Inbox exposes the raw inbox for tests.
func (h *Hub) Inbox() chan<- Msg { return h.inbox }

// Send queues msg unless the hub has stopped.
func (h *Hub) Send(ctx context.Context, msg Msg) bool {
	select {
	case <-h.ctx.Done():
		return false
	default:
	}
	select {
	case h.inbox <- msg:
		return true
	case <-h.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

// Done is closed once the hub loop has stopped.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }
