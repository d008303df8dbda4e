// fleetd - fleet telemetry and control plane for network-attached A/V encoder appliances
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/fleetd

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/fleetd/internal/config"
	"github.com/tomtom215/fleetd/internal/logging"
)

// transport owns the watermill-nats publisher/subscriber pair and the
// underlying *nats.Conn, grounded on the teacher's
// internal/eventprocessor publisher.go/subscriber.go but collapsed into
// a single direct Publisher/Subscriber (no CQRS command/event routing
// layer: the fleet has one event shape and one consumer group).
type transport struct {
	conn       *natsgo.Conn
	publisher  message.Publisher
	subscriber message.Subscriber
}

// watermillLogger adapts the global zerolog logger to watermill's
// LoggerAdapter interface.
type watermillLogger struct{}

func (watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	logging.Warn().Err(err).Fields(map[string]any(fields)).Msg(msg)
}
func (watermillLogger) Info(msg string, fields watermill.LogFields) {
	logging.Info().Fields(map[string]any(fields)).Msg(msg)
}
func (watermillLogger) Debug(msg string, fields watermill.LogFields) {
	logging.Debug().Fields(map[string]any(fields)).Msg(msg)
}
func (watermillLogger) Trace(msg string, fields watermill.LogFields) {
	logging.Debug().Fields(map[string]any(fields)).Msg(msg)
}
func (l watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return l
}

// newTransport dials url and builds a JetStream-backed publisher and
// subscriber bound to eventsSubject, ensuring the backing stream exists
// first.
func newTransport(ctx context.Context, url string, cfg config.NATSConfig) (*transport, error) {
	logger := watermillLogger{}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("nats connection lost, reconnecting")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}

	conn, err := natsgo.Connect(url, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", url, err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	if err := ensureStream(ctx, js, cfg); err != nil {
		conn.Close()
		return nil, err
	}

	pubConfig := wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false,
			TrackMsgId:    true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}
	pub, err := wmNats.NewPublisher(pubConfig, logger)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	subConfig := wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     10 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: false,
			AckAsync:      false,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.MaxDeliver(5),
				natsgo.AckWait(30 * time.Second),
				natsgo.BindStream(eventsStreamName),
			},
			DurablePrefix: cfg.DurableName,
		},
	}
	sub, err := wmNats.NewSubscriber(subConfig, logger)
	if err != nil {
		pub.Close()
		conn.Close()
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}

	return &transport{conn: conn, publisher: pub, subscriber: sub}, nil
}

// publish sends payload on eventsSubject, using msgID as the NATS
// message ID for JetStream's own transport-level dedup (distinct from
// the Bus's content-level dedup ring).
func (t *transport) publish(msgID string, payload []byte) error {
	msg := message.NewMessage(msgID, payload)
	msg.Metadata.Set(natsgo.MsgIdHdr, msgID)
	return t.publisher.Publish(eventsSubject, msg)
}

// consume returns the channel of inbound messages for eventsSubject.
func (t *transport) consume(ctx context.Context) (<-chan *message.Message, error) {
	return t.subscriber.Subscribe(ctx, eventsSubject)
}

// close releases the publisher, subscriber, and underlying connection.
func (t *transport) close() {
	_ = t.publisher.Close()
	_ = t.subscriber.Close()
	t.conn.Close()
}
