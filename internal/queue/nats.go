package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/agentmint/agentmint/pkg/models"
)

// NATSQueue publishes upgrade jobs to a NATS subject.
type NATSQueue struct {
	nc      *nats.Conn
	subject string
}

// NewNATSQueue connects to NATS with unlimited reconnects.
func NewNATSQueue(url, subject string) (*NATSQueue, error) {
	nc, err := nats.Connect(url,
		nats.Name("agentmint-control-plane"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Info().Str("url", url).Str("subject", subject).Msg("NATS upgrade queue initialized")
	return &NATSQueue{nc: nc, subject: subject}, nil
}

func (q *NATSQueue) Enqueue(_ context.Context, job models.UpgradeJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode upgrade job: %w", err)
	}
	if err := q.nc.Publish(q.subject, data); err != nil {
		return fmt.Errorf("failed to publish upgrade job: %w", err)
	}
	return nil
}

func (q *NATSQueue) Close() {
	q.nc.Drain()
}
