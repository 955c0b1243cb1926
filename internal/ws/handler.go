package ws

import (
	"context"
	"math/rand"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/overlay-sync/internal/hub"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	outboxSize   = 16
)

type Options struct {
	// OriginPatterns are host patterns allowed to connect cross-origin.
	// Empty accepts every origin.
	OriginPatterns []string
	// ReadLimit caps one inbound document; inline logos make them large.
	ReadLimit int64
}

func Handler(h *hub.Hub, log *zap.Logger, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns:     opts.OriginPatterns,
			InsecureSkipVerify: len(opts.OriginPatterns) == 0,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		if opts.ReadLimit > 0 {
			conn.SetReadLimit(opts.ReadLimit)
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := make(chan []byte, outboxSize)
		clientID := randID(6)

		if !h.Send(ctx, hub.Join{ClientID: clientID, Outbox: out}) {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
		defer h.Send(context.Background(), hub.Leave{ClientID: clientID})

		go writeLoop(ctx, cancel, conn, out, log.With(zap.String("client", clientID)))

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if ctx.Err() == nil {
						log.Debug("websocket read ended", zap.String("client", clientID), zap.Error(err))
					}
				}
				return
			}
			if !h.Send(ctx, hub.FromClient{ClientID: clientID, Data: data}) {
				return
			}
		}
	}
}

// writeLoop drains the outbox until the hub closes it, keeping the
// connection alive with pings in between.
func writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan []byte, log *zap.Logger) {
	defer cancel()
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case doc, ok := <-out:
			if !ok {
				// Hub dropped us (slow or shutting down).
				conn.Close(websocket.StatusTryAgainLater, "dropped by server")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, doc)
			wcancel()
			if err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				return
			}

		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				log.Debug("websocket ping failed", zap.Error(err))
				return
			}
		}
	}
}

func randID(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}
