// Package bus wraps an embedded NATS server and client for Laminark's
// observability-only event stream. Nothing on this bus is correctness
// critical: every event it carries is also durably recorded in the store,
// and a publish failure is logged, never propagated as an operation
// failure.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	nc "github.com/nats-io/nats.go"
	ncserver "github.com/nats-io/nats-server/v2/server"
)

// Subjects used across the daemon. One publisher, any number of
// subscribers (the debug HTTP endpoint, future dashboards).
const (
	SubjectObservationCaptured  = "observation.captured"
	SubjectObservationClassified = "observation.classified"
	SubjectShiftDecision        = "shift.decision"
	SubjectPathTransition       = "path.transition"
	SubjectCurationCompleted    = "curation.completed"
)

// Server is an embedded NATS server started in-process, so the daemon and
// its hook processes never depend on an external broker being reachable.
type Server struct {
	ns *ncserver.Server
}

// StartEmbedded boots an embedded NATS server on port, with monitoring HTTP
// disabled, and blocks until it's ready to accept connections or the given
// timeout elapses.
func StartEmbedded(port int, ready time.Duration) (*Server, error) {
	opts := &ncserver.Options{
		Port:     port,
		HTTPPort: -1,
		NoLog:    true,
		NoSigs:   true,
	}

	ns, err := ncserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded event bus server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(ready) {
		return nil, fmt.Errorf("embedded event bus server did not become ready within %s", ready)
	}
	return &Server{ns: ns}, nil
}

// URL is the connection string agents and the hook process use to reach
// this embedded server.
func (s *Server) URL() string {
	return s.ns.ClientURL()
}

// Shutdown stops the embedded server, closing every client connection.
func (s *Server) Shutdown() {
	s.ns.Shutdown()
}

// Client publishes and subscribes to Laminark's event subjects. It never
// returns a connection failure as fatal to callers that only want
// best-effort observability; Dial does, since an unreachable bus at daemon
// startup is worth surfacing once.
type Client struct {
	conn *nc.Conn
}

// Dial connects to the embedded (or external) bus at url.
func Dial(url string) (*Client, error) {
	conn, err := nc.Connect(url,
		nc.Name("laminarkd"),
		nc.ReconnectWait(2*time.Second),
		nc.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to event bus: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// PublishJSON marshals v and publishes it to subject. Errors here are
// reported to the caller but are never meant to roll back the store write
// they followed — the bus is a side channel, not the record of truth.
func (c *Client) PublishJSON(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event for %s: %w", subject, err)
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers an async handler for subject, used by the debug HTTP
// endpoint to tail recent events.
func (c *Client) Subscribe(subject string, handler func(subject string, data []byte)) (*nc.Subscription, error) {
	sub, err := c.conn.Subscribe(subject, func(msg *nc.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	return sub, nil
}
