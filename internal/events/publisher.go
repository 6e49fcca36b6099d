// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

/*
Package events publishes finalized playback sessions over Watermill.

With events.nats_url set, messages go to that NATS server as core NATS
subjects. Without it they go through an in-process gochannel pub/sub.
Subscribe reads the stream back on either transport. Publishing is guarded by a circuit
breaker so a dead broker costs one fast failure per session rather than a
connect timeout.
*/
package events

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/mediasync/internal/config"
	"github.com/tomtom215/mediasync/internal/logging"
	"github.com/tomtom215/mediasync/internal/metrics"
	"github.com/tomtom215/mediasync/internal/models"
)

const (
	DefaultTopic = "sessions.finalized"

	TypeSessionFinalized = "session.finalized"

	TransportChannel = "gochannel"
	TransportNATS    = "nats"

	breakerName = "events"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("publisher is closed")
)

// SessionFinalized is the payload of a finalized session event.
type SessionFinalized struct {
	EventID    string                `json:"event_id"`
	Type       string                `json:"type"`
	OccurredAt time.Time             `json:"occurred_at"`
	Session    *models.SessionRecord `json:"session"`
}

// Decode parses a SessionFinalized message.
func Decode(msg *message.Message) (*SessionFinalized, error) {
	var ev SessionFinalized
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", msg.UUID, err)
	}
	return &ev, nil
}

// Publisher publishes session events.
type Publisher struct {
	publisher message.Publisher
	local     *gochannel.GoChannel
	breaker   *gobreaker.CircuitBreaker[any]
	topic     string
	transport string
	natsURL   string

	subscribers []message.Subscriber

	mu     sync.RWMutex
	closed bool
}

// New creates a Publisher for cfg.
func New(cfg config.EventsConfig) (*Publisher, error) {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	logger := logging.NewWatermillLogger()

	p := &Publisher{topic: topic, breaker: newBreaker()}
	if cfg.NATSURL == "" {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		p.publisher = ch
		p.local = ch
		p.transport = TransportChannel
	} else {
		pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
			URL:         cfg.NATSURL,
			NatsOptions: natsOptions(logger),
			Marshaler:   &wmNats.NATSMarshaler{},
			JetStream:   wmNats.JetStreamConfig{Disabled: true},
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("create nats publisher: %w", err)
		}
		p.publisher = pub
		p.transport = TransportNATS
		p.natsURL = cfg.NATSURL
	}

	logging.Info().Str("transport", p.transport).Str("topic", topic).Msg("Session event publisher ready")
	return p, nil
}

func natsOptions(logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name("mediasync"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
}

func newBreaker() *gobreaker.CircuitBreaker[any] {
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			switch to {
			case gobreaker.StateOpen:
				metrics.CircuitBreakerState.WithLabelValues(name).Set(2)
			case gobreaker.StateHalfOpen:
				metrics.CircuitBreakerState.WithLabelValues(name).Set(1)
			default:
				metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
			}
		},
	})
}

// Topic returns the topic sessions are published on.
func (p *Publisher) Topic() string { return p.topic }

// Transport returns "gochannel" or "nats".
func (p *Publisher) Transport() string { return p.transport }

// PublishSession publishes rec as a SessionFinalized event. The record id
// is the message id, so consumers can deduplicate redeliveries.
func (p *Publisher) PublishSession(ctx context.Context, rec *models.SessionRecord) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	id := rec.ID
	if id == "" {
		id = watermill.NewUUID()
	}
	data, err := json.Marshal(SessionFinalized{
		EventID:    id,
		Type:       TypeSessionFinalized,
		OccurredAt: rec.EndTime,
		Session:    rec,
	})
	if err != nil {
		return fmt.Errorf("encode session event: %w", err)
	}

	msg := message.NewMessage(id, data)
	msg.SetContext(ctx)
	msg.Metadata.Set("type", TypeSessionFinalized)
	msg.Metadata.Set("server_id", rec.ServerID)
	msg.Metadata.Set("user_id", rec.UserID)
	msg.Metadata.Set("completed", strconv.FormatBool(rec.Completed))

	_, err = p.breaker.Execute(func() (any, error) {
		return nil, p.publisher.Publish(p.topic, msg)
	})
	if err != nil {
		metrics.EventsPublished.WithLabelValues(p.topic, "error").Inc()
		return fmt.Errorf("publish session %s: %w", id, err)
	}
	metrics.EventsPublished.WithLabelValues(p.topic, "ok").Inc()
	return nil
}

// Subscribe returns the stream of published events. On NATS every call
// opens its own core NATS subscription, closed with the publisher.
// Messages must be acked.
func (p *Publisher) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.local != nil {
		return p.local.Subscribe(ctx, p.topic)
	}

	logger := logging.NewWatermillLogger()
	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              p.natsURL,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     10 * time.Second,
		NatsOptions:      natsOptions(logger),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats subscriber: %w", err)
	}
	msgs, err := sub.Subscribe(ctx, p.topic)
	if err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", p.topic, err)
	}
	p.subscribers = append(p.subscribers, sub)
	return msgs, nil
}

// Close flushes and closes the transport. It is safe to call twice.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for _, sub := range p.subscribers {
		errs = append(errs, sub.Close())
	}
	errs = append(errs, p.publisher.Close())
	return errors.Join(errs...)
}
