package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Event types emitted on success paths.
const (
	EventInboxListed     = "sms.inbox.listed"
	EventCleanupComplete = "sms.cleanup.complete"
)

const eventQueue = "sms_events"

const eventSource = "netgear-sms-gw"

// EventBus delivers a result event to subscribers. Implementations must
// tolerate being called from concurrent service invocations.
type EventBus interface {
	Publish(ctx context.Context, eventType string, data map[string]interface{}) error
}

// loadEventBus wires the publishers selected by the environment. With
// nothing configured events are dropped silently (the service results still
// carry the same data).
func loadEventBus() (EventBus, error) {
	var buses []EventBus

	if addr := os.Getenv("AMQP_URL"); addr != "" {
		buses = append(buses, NewAMQPEventBus(addr))
	}

	if targets := os.Getenv("EVENT_WEBHOOK_URLS"); targets != "" {
		bus, err := NewWebhookEventBus(strings.Split(targets, ","))
		if err != nil {
			return nil, err
		}
		buses = append(buses, bus)
	}

	switch len(buses) {
	case 0:
		return nil, nil
	case 1:
		return buses[0], nil
	default:
		return multiEventBus(buses), nil
	}
}

// multiEventBus fans one event out to every configured publisher.
type multiEventBus []EventBus

func (m multiEventBus) Publish(ctx context.Context, eventType string, data map[string]interface{}) error {
	var firstErr error
	for _, bus := range m {
		if err := bus.Publish(ctx, eventType, data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// publishEvent emits an event best-effort: a publish failure is logged and
// counted but never fails the service call that produced it.
func (gateway *Gateway) publishEvent(ctx context.Context, eventType string, data map[string]interface{}) {
	if gateway.Events == nil {
		return
	}
	if err := gateway.Events.Publish(ctx, eventType, data); err != nil {
		gateway.Metrics.EventPublishFailed()
		logf := LoggingFormat{
			Type:    LogType.Event,
			Level:   logrus.ErrorLevel,
			Message: "failed to publish event",
			Error:   err,
		}
		logf.AddField("event", eventType)
		logf.Print()
	}
}

const (
	reconnectDelay = 5 * time.Second
	reInitDelay    = 2 * time.Second
)

// AMQPEventBus publishes events to a durable queue, recovering the
// connection and channel in the background.
type AMQPEventBus struct {
	m               sync.Mutex
	connection      *amqp.Connection
	channel         *amqp.Channel
	done            chan bool
	notifyConnClose chan *amqp.Error
	notifyChanClose chan *amqp.Error
	notifyConfirm   chan amqp.Confirmation
	isReady         bool
}

// NewAMQPEventBus creates the bus and starts connecting in the background.
func NewAMQPEventBus(addr string) *AMQPEventBus {
	bus := &AMQPEventBus{done: make(chan bool)}
	go bus.handleReconnect(addr)
	return bus
}

// Close cleanly shuts down the channel and connection.
func (bus *AMQPEventBus) Close() error {
	bus.m.Lock()
	defer bus.m.Unlock()

	if !bus.isReady {
		return fmt.Errorf("connection already closed")
	}
	close(bus.done)
	if err := bus.channel.Close(); err != nil {
		return err
	}
	if err := bus.connection.Close(); err != nil {
		return err
	}
	bus.isReady = false
	return nil
}

func (bus *AMQPEventBus) handleReconnect(addr string) {
	for {
		bus.m.Lock()
		bus.isReady = false
		bus.m.Unlock()

		conn, err := bus.connect(addr)
		if err != nil {
			logf := LoggingFormat{
				Type:    LogType.Event,
				Level:   logrus.WarnLevel,
				Message: "AMQP connect failed, retrying",
				Error:   err,
			}
			logf.Print()
			select {
			case <-bus.done:
				return
			case <-time.After(reconnectDelay):
			}
			continue
		}

		if done := bus.handleReInit(conn); done {
			return
		}
	}
}

func (bus *AMQPEventBus) connect(addr string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(addr)
	if err != nil {
		return nil, err
	}
	bus.changeConnection(conn)
	return conn, nil
}

func (bus *AMQPEventBus) handleReInit(conn *amqp.Connection) bool {
	for {
		bus.m.Lock()
		bus.isReady = false
		bus.m.Unlock()

		if err := bus.init(conn); err != nil {
			select {
			case <-bus.done:
				return true
			case <-bus.notifyConnClose:
				return false
			case <-time.After(reInitDelay):
			}
			continue
		}

		select {
		case <-bus.done:
			return true
		case <-bus.notifyConnClose:
			return false
		case <-bus.notifyChanClose:
			// fall through and re-init the channel
		}
	}
}

// init opens a confirming channel and declares the event queue.
func (bus *AMQPEventBus) init(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	if err := ch.Confirm(false); err != nil {
		return err
	}

	_, err = ch.QueueDeclare(
		eventQueue,
		true,  // Durable
		false, // Delete when unused
		false, // Exclusive
		false, // No-wait
		nil,   // Arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", eventQueue, err)
	}

	bus.changeChannel(ch)
	bus.m.Lock()
	bus.isReady = true
	bus.m.Unlock()
	return nil
}

func (bus *AMQPEventBus) changeConnection(conn *amqp.Connection) {
	bus.connection = conn
	bus.notifyConnClose = make(chan *amqp.Error, 1)
	bus.connection.NotifyClose(bus.notifyConnClose)
}

func (bus *AMQPEventBus) changeChannel(ch *amqp.Channel) {
	bus.channel = ch
	bus.notifyChanClose = make(chan *amqp.Error, 1)
	bus.notifyConfirm = make(chan amqp.Confirmation, 1)
	bus.channel.NotifyClose(bus.notifyChanClose)
	bus.channel.NotifyPublish(bus.notifyConfirm)
}

// Publish sends one event to the queue and waits for the broker confirm.
func (bus *AMQPEventBus) Publish(ctx context.Context, eventType string, data map[string]interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"event": eventType,
		"data":  data,
	})
	if err != nil {
		return err
	}

	if err := bus.unsafePublish(ctx, body); err != nil {
		return err
	}

	select {
	case confirm := <-bus.notifyConfirm:
		if !confirm.Ack {
			return fmt.Errorf("broker nacked event %s", eventType)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (bus *AMQPEventBus) unsafePublish(ctx context.Context, body []byte) error {
	bus.m.Lock()
	defer bus.m.Unlock()

	if bus.channel == nil || !bus.isReady {
		return fmt.Errorf("event bus not connected")
	}

	return bus.channel.PublishWithContext(
		ctx,
		"",         // Exchange
		eventQueue, // Routing key
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// WebhookEventBus delivers events as CloudEvents over HTTP to fixed targets.
type WebhookEventBus struct {
	client  cloudevents.Client
	targets []string
}

// NewWebhookEventBus builds a CloudEvents HTTP sender for the given URLs.
func NewWebhookEventBus(targets []string) (*WebhookEventBus, error) {
	client, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, fmt.Errorf("failed to create CloudEvents client: %w", err)
	}

	cleaned := make([]string, 0, len(targets))
	for _, t := range targets {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return &WebhookEventBus{client: client, targets: cleaned}, nil
}

// Publish sends the event to every webhook target.
func (bus *WebhookEventBus) Publish(ctx context.Context, eventType string, data map[string]interface{}) error {
	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(eventSource)
	event.SetType(eventType)
	event.SetTime(time.Now().UTC())
	if err := event.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return err
	}

	var firstErr error
	for _, target := range bus.targets {
		sendCtx := cloudevents.ContextWithTarget(ctx, target)
		if result := bus.client.Send(sendCtx, event); cloudevents.IsUndelivered(result) {
			if firstErr == nil {
				firstErr = fmt.Errorf("event %s undelivered to %s: %w", eventType, target, result)
			}
		}
	}
	return firstErr
}
