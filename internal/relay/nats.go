// Package relay bridges several overlay servers through NATS so that viewers
// connected to different replicas see the same document.
package relay

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// InstanceHeader carries the id of the server that accepted the document.
const InstanceHeader = "Overlay-Instance"

// NATSRelay publishes every accepted document on one subject and hands
// documents published by other instances to a callback.
type NATSRelay struct {
	nc         *nats.Conn
	subject    string
	instanceID string
	log        *zap.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

func Connect(url, subject string, log *zap.Logger) (*NATSRelay, error) {
	if subject == "" {
		return nil, fmt.Errorf("nats subject is required")
	}
	id, err := newInstanceID()
	if err != nil {
		return nil, err
	}
	nc, err := nats.Connect(url,
		nats.Name("overlay-sync-"+id),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSRelay{nc: nc, subject: subject, instanceID: id, log: log}, nil
}

// Publish implements hub.Publisher.
func (r *NATSRelay) Publish(doc []byte) {
	msg := nats.NewMsg(r.subject)
	msg.Header.Set(InstanceHeader, r.instanceID)
	msg.Data = doc
	if err := r.nc.PublishMsg(msg); err != nil {
		r.log.Error("failed to publish to NATS", zap.Error(err), zap.String("subject", r.subject))
	}
}

// Subscribe delivers documents from other instances to fn. Messages this
// instance published are skipped.
func (r *NATSRelay) Subscribe(fn func(doc []byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return fmt.Errorf("already subscribed to %s", r.subject)
	}
	sub, err := r.nc.Subscribe(r.subject, func(msg *nats.Msg) {
		if msg.Header.Get(InstanceHeader) == r.instanceID {
			return
		}
		fn(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", r.subject, err)
	}
	if err := r.nc.Flush(); err != nil {
		return fmt.Errorf("flush subscription: %w", err)
	}
	r.sub = sub
	return nil
}

func (r *NATSRelay) InstanceID() string { return r.instanceID }

func (r *NATSRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.sub != nil {
		err = r.sub.Unsubscribe()
		r.sub = nil
	}
	r.nc.Close()
	return err
}

func newInstanceID() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("instance id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
