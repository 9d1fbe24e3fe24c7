package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"govsync/internal/errs"
	"govsync/internal/ports"
)

// NATSPublisher publishes each event as JSON on <prefix>.<scope>.<kind>.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

var _ ports.EventPublisher = (*NATSPublisher)(nil)

func ConnectNATS(url string, prefix string, name string) (*NATSPublisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("nats url is required")
	}
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, errs.Wrapf(err, "connect nats %q", url)
	}
	return NewNATSPublisher(conn, prefix), nil
}

func NewNATSPublisher(conn *nats.Conn, prefix string) *NATSPublisher {
	prefix = strings.Trim(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = "govsync"
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

func (p *NATSPublisher) Subject(event ports.GovernanceEvent) string {
	return p.prefix + "." + subjectToken(event.ScopeID) + "." + string(event.Kind)
}

func (p *NATSPublisher) Publish(_ context.Context, event ports.GovernanceEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errs.Wrap(err, "encode governance event")
	}
	if err := p.conn.Publish(p.Subject(event), payload); err != nil {
		return errs.Wrap(err, "publish governance event")
	}
	return nil
}

// Close flushes buffered messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	err := p.conn.FlushTimeout(2 * time.Second)
	p.conn.Close()
	if err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return errs.Wrap(err, "flush nats")
	}
	return nil
}

// subjectToken keeps a scope id within one NATS subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
}
