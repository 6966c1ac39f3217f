// Package notify broadcasts cost changes to other processes over NATS so
// remote simulations can invalidate their own flow fields.
package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"battle-nav/internal/config"
	"battle-nav/internal/nav"
)

// CellMessage is one affected cell.
type CellMessage struct {
	X    int   `json:"x"`
	Y    int   `json:"y"`
	Cost uint8 `json:"cost"`
}

// ChangeMessage is the wire form of a nav.CostChange.
type ChangeMessage struct {
	Kind       string        `json:"kind"`
	ObstacleID string        `json:"obstacleId,omitempty"`
	Revision   uint64        `json:"revision"`
	Cells      []CellMessage `json:"cells"`
	NodeID     string        `json:"nodeId,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// NewChangeMessage converts a change for publishing.
func NewChangeMessage(c nav.CostChange, nodeID string) ChangeMessage {
	cells := make([]CellMessage, len(c.Cells))
	for i, cell := range c.Cells {
		cells[i] = CellMessage{X: cell.Index.X, Y: cell.Index.Y, Cost: cell.Cost}
	}
	return ChangeMessage{
		Kind:       c.Kind.String(),
		ObstacleID: string(c.Obstacle),
		Revision:   c.Revision,
		Cells:      cells,
		NodeID:     nodeID,
		Timestamp:  time.Now().UTC(),
	}
}

// EncodeChange marshals a change to JSON.
func EncodeChange(c nav.CostChange, nodeID string) ([]byte, error) {
	return json.Marshal(NewChangeMessage(c, nodeID))
}

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// Publisher is a nav.ChangeSink that forwards every change to a NATS
// subject. Publish never blocks the tick: the NATS client buffers
// internally and reconnects in the background.
type Publisher struct {
	conn    Conn
	subject string
	nodeID  string

	published atomic.Int64
	errors    atomic.Int64
}

// NewPublisher wraps an existing connection.
func NewPublisher(conn Conn, subject, nodeID string) *Publisher {
	if subject == "" {
		subject = config.DefaultNotify().Subject
	}
	return &Publisher{conn: conn, subject: subject, nodeID: nodeID}
}

// Connect dials cfg.NATSURL with reconnect handling.
func Connect(cfg config.NotifyConfig, nodeID string) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("battle-nav " + nodeID),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("⚠️ NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("🔌 NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Println("🔌 NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Printf("📡 Publishing cost changes to %s (subject: %s)", cfg.NATSURL, cfg.Subject)
	return NewPublisher(conn, cfg.Subject, nodeID), nil
}

// Publish implements nav.ChangeSink.
func (p *Publisher) Publish(c nav.CostChange) {
	data, err := EncodeChange(c, p.nodeID)
	if err != nil {
		p.errors.Add(1)
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		if p.errors.Add(1) == 1 {
			log.Printf("⚠️ NATS publish failed: %v", err)
		}
		return
	}
	p.published.Add(1)
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}

// Stats returns publish counters.
func (p *Publisher) Stats() map[string]int64 {
	return map[string]int64{
		"published": p.published.Load(),
		"errors":    p.errors.Load(),
	}
}
