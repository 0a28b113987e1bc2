package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

const DefaultSubject = "indexer.alerts"

// Publisher is the subset of *nats.Conn used to publish alerts.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSAlerter publishes alerts as JSON messages on a subject.
type NATSAlerter struct {
	pub     Publisher
	subject string
	conn    *nats.Conn
}

// DialNATS connects to a NATS server and returns an alerter publishing on
// subject.
func DialNATS(url, subject string) (*NATSAlerter, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url,
		nats.Name("eventscope-indexer"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	a := NewNATSAlerter(conn, subject)
	a.conn = conn
	return a, nil
}

func NewNATSAlerter(pub Publisher, subject string) *NATSAlerter {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSAlerter{pub: pub, subject: subject}
}

func (n *NATSAlerter) Send(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	return nil
}

// Close drains the connection opened by DialNATS.
func (n *NATSAlerter) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}
