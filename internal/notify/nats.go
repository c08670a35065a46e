package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/pitabwire/recruitflow/internal/observability"
	"github.com/pitabwire/recruitflow/model"
)

// NATSNotifier publishes notifications as JSON to <prefix>.<recipient>.
type NATSNotifier struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSNotifier creates a notifier on an open connection.
func NewNATSNotifier(conn *nats.Conn, subjectPrefix string) *NATSNotifier {
	return &NATSNotifier{conn: conn, prefix: strings.TrimSuffix(subjectPrefix, ".")}
}

// ConnectNATS dials the server with reconnect handling that logs through
// logger.
func ConnectNATS(url string, logger *zap.Logger) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	nc, err := nats.Connect(
		url,
		nats.Name("recruitflow"),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("nats connection closed")
		}),
		nats.PingInterval(20*time.Second),
		nats.MaxPingsOutstanding(5),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}
	return nc, nil
}

// Subject returns the subject a notification for recipient is published on.
func (n *NATSNotifier) Subject(recipient string) string {
	return n.prefix + "." + subjectToken(recipient)
}

// Notify publishes note with the caller's trace context in the message
// headers. Delivery to subscribers is asynchronous.
func (n *NATSNotifier) Notify(ctx context.Context, note model.Notification) error {
	data, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	msg := nats.NewMsg(n.Subject(note.Recipient))
	msg.Data = data
	observability.InjectTraceHeaders(ctx, http.Header(msg.Header))
	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// HealthCheck reports an error unless the connection is established.
func (n *NATSNotifier) HealthCheck(context.Context) error {
	if status := n.conn.Status(); status != nats.CONNECTED {
		return fmt.Errorf("nats connection is %s", status)
	}
	return nil
}

// subjectToken maps a recipient onto a single NATS subject token.
func subjectToken(recipient string) string {
	if recipient == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, recipient)
}
