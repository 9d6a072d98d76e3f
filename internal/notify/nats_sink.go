package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/kandev/kaiak/internal/common/logger"
	"github.com/kandev/kaiak/pkg/jsonrpc"
)

// NATSSink publishes notifications onto a NATS subject per session. It
// is an alternate transport for deployments that want pub/sub semantics
// over the sink rather than the direct single-consumer drain
// ChannelSink offers.
type NATSSink struct {
	conn      *nats.Conn
	namespace string
	logger    *logger.Logger
}

// NewNATSSink connects to url and returns a Sink that publishes each
// notification to "kaiak.notify.<session_id>", prefixed with
// "<namespace>." when namespace is non-empty.
func NewNATSSink(url, namespace string, log *logger.Logger) (*NATSSink, error) {
	log = log.WithFields(zap.String("component", "notify-nats-sink"))

	conn, err := nats.Connect(url,
		nats.Name("kaiak-host"),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("notify: connect nats: %w", err)
	}

	return &NATSSink{conn: conn, namespace: namespace, logger: log}, nil
}

func (s *NATSSink) subject(sessionID string) string {
	if s.namespace == "" {
		return fmt.Sprintf("kaiak.notify.%s", sessionID)
	}
	return fmt.Sprintf("%s.kaiak.notify.%s", s.namespace, sessionID)
}

// Publish marshals notification and publishes it to the session's subject.
func (s *NATSSink) Publish(_ context.Context, sessionID string, notification jsonrpc.OutboundNotification) error {
	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("notify: marshal notification: %w", err)
	}
	return s.conn.Publish(s.subject(sessionID), data)
}

// Subscribe registers fn against every session subject under this
// sink's namespace using a NATS wildcard subscription.
func (s *NATSSink) Subscribe(fn func(jsonrpc.OutboundNotification)) func() {
	wildcard := s.subject("*")
	sub, err := s.conn.Subscribe(wildcard, func(msg *nats.Msg) {
		var n jsonrpc.OutboundNotification
		if err := json.Unmarshal(msg.Data, &n); err != nil {
			s.logger.Warn("failed to decode notification from nats", zap.Error(err))
			return
		}
		fn(n)
	})
	if err != nil {
		s.logger.Error("nats subscribe failed", zap.Error(err))
		return func() {}
	}
	return func() { _ = sub.Unsubscribe() }
}

// Close drains and closes the underlying NATS connection.
func (s *NATSSink) Close() {
	if s.conn != nil {
		s.conn.Drain()
	}
}
