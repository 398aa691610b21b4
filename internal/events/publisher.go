// Package events publishes transaction lifecycle and connection events to
// NATS. Publishing is best effort: the bus is a notification channel, the
// database is the source of truth.
package events

import (
	"encoding/json"
	"time"

	"tx-engine/internal/config"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const (
	SubjectTxSubmitted = "tx.submitted"
	SubjectTxConfirmed = "tx.confirmed"
	SubjectTxFailed    = "tx.failed"
	SubjectRPCFailover = "rpc.failover"
)

// TransactionEvent is emitted on every transition of a pending transaction.
type TransactionEvent struct {
	TxHash      string    `json:"tx_hash"`
	Wallet      string    `json:"wallet"`
	ChainID     uint64    `json:"chain_id"`
	Nonce       uint64    `json:"nonce"`
	WorkflowID  string    `json:"workflow_id,omitempty"`
	ExecutionID string    `json:"execution_id,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// FailoverEvent is emitted when a connection manager changes state.
type FailoverEvent struct {
	Chain     string    `json:"chain"`
	Event     string    `json:"event"`
	Endpoint  string    `json:"endpoint"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher wraps a NATS connection. A nil *Publisher is valid and drops
// every event, so callers never need to guard for an unconfigured bus.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	log    *logrus.Logger
}

func NewPublisher(cfg config.NATSConfig, log *logrus.Logger) (*Publisher, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("tx-engine"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, prefix: cfg.SubjectPrefix, log: log}, nil
}

func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Drain()
}

func (p *Publisher) publish(subject string, payload interface{}) {
	if p == nil || p.conn == nil {
		return
	}
	if p.prefix != "" {
		subject = p.prefix + "." + subject
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.WithError(err).WithField("subject", subject).Error("failed to marshal event")
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.WithError(err).WithField("subject", subject).Warn("failed to publish event")
	}
}

func (p *Publisher) PublishTransactionEvent(subject string, ev TransactionEvent) {
	ev.Timestamp = time.Now().UTC()
	p.publish(subject, ev)
}

func (p *Publisher) PublishFailoverEvent(chain, event, endpoint string) {
	p.publish(SubjectRPCFailover, FailoverEvent{
		Chain:     chain,
		Event:     event,
		Endpoint:  endpoint,
		Timestamp: time.Now().UTC(),
	})
}
