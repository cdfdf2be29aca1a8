// Package alert publishes the high-severity, human-facing signals an
// on-call operator needs: a reorg being handled, and a fatal rollback
// failure that needs manual intervention.
//
// Built on the same JetStream connect/stream/publish shape used
// elsewhere for domain-event publishing, narrowed to a small fixed
// alert taxonomy and kept durable (a deduplication window, file
// storage) so a consumer subscribing after the fact doesn't miss one.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

const (
	streamName          = "INDEXER_ALERTS"
	streamSubjectPrefix = "INDEXER.ALERT"
	streamCreateTimeout = 10 * time.Second
	duplicateWindow     = 20 * time.Minute
)

// Kind distinguishes the two alert types this package emits.
type Kind string

const (
	KindReorg           Kind = "reorg"
	KindRollbackFailure Kind = "rollback_failure"
)

// Event is the payload published for every alert.
type Event struct {
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	Block     uint64    `json:"block"`
	Timestamp time.Time `json:"timestamp"`
}

// Alerter publishes alert events to a durable NATS JetStream stream.
type Alerter struct {
	js     jetstream.JetStream
	nc     *nats.Conn
	logger zerolog.Logger
}

// New connects to NATS and ensures the alert stream exists.
func New(natsURL string, logger zerolog.Logger) (*Alerter, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("evm-indexer-alerts"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Error().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), streamCreateTimeout)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:       streamName,
		Subjects:   []string{streamSubjectPrefix + ".*"},
		Storage:    jetstream.FileStorage,
		Duplicates: duplicateWindow,
		Retention:  jetstream.LimitsPolicy,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create alert stream: %w", err)
	}

	return &Alerter{js: js, nc: nc, logger: logger.With().Str("component", "alert").Logger()}, nil
}

// Close closes the NATS connection.
func (a *Alerter) Close() {
	if a.nc != nil {
		a.nc.Close()
	}
}

// Reorg publishes a reorg-detected alert. A reorg is not itself an
// error — the rollback that follows is the normal handling path — but
// it is still a signal worth paging on.
func (a *Alerter) Reorg(ctx context.Context, rollbackFrom uint64) error {
	return a.publish(ctx, Event{
		Kind:      KindReorg,
		Message:   fmt.Sprintf("reorg detected, rolling back to before block %d", rollbackFrom),
		Block:     rollbackFrom,
		Timestamp: time.Now(),
	})
}

// RollbackFailure publishes a fatal rollback-failure alert. The daemon
// halts after emitting this; manual intervention is required.
func (a *Alerter) RollbackFailure(ctx context.Context, target uint64, cause error) error {
	return a.publish(ctx, Event{
		Kind:      KindRollbackFailure,
		Message:   fmt.Sprintf("rollback to block %d failed: %v", target, cause),
		Block:     target,
		Timestamp: time.Now(),
	})
}

func (a *Alerter) publish(ctx context.Context, event Event) error {
	subject := fmt.Sprintf("%s.%s", streamSubjectPrefix, event.Kind)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	msgID := fmt.Sprintf("%s-%d-%d", event.Kind, event.Block, event.Timestamp.UnixNano())
	if _, err := a.js.Publish(ctx, subject, data, jetstream.WithMsgID(msgID)); err != nil {
		a.logger.Error().Err(err).Str("subject", subject).Msg("failed to publish alert")
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	a.logger.Warn().Str("kind", string(event.Kind)).Uint64("block", event.Block).Msg(event.Message)
	return nil
}
