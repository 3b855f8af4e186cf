// Package service wires the activity feed to the message broker.  Broker
// failures are logged and returned so callers can ignore them without
// interrupting the main request flow.
package service

import (
    "context"
    "encoding/json"
    "log"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    q "github.com/iliyamo/agency-portal/internal/queue"
)

// Publisher delivers activity events to downstream consumers.
type Publisher interface {
    PublishActivity(ctx context.Context, ev q.ActivityEvent) error
}

// NopPublisher drops every event.  Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishActivity(context.Context, q.ActivityEvent) error { return nil }

// AMQPPublisher publishes to the durable activity queue on the default
// exchange.  A connection is dialled per publish; activity volume is a few
// events per user action.
type AMQPPublisher struct {
    URL         string
    DialTimeout time.Duration
}

// NewAMQPPublisher returns a publisher for url.
func NewAMQPPublisher(url string) *AMQPPublisher {
    return &AMQPPublisher{URL: url, DialTimeout: 2 * time.Second}
}

// PublishActivity marks messages persistent so they survive broker restarts.
func (p *AMQPPublisher) PublishActivity(ctx context.Context, ev q.ActivityEvent) error {
    conn, err := amqp.DialConfig(p.URL, amqp.Config{Dial: amqp.DefaultDial(p.DialTimeout)})
    if err != nil {
        log.Printf("rabbitmq: dial failed: %v", err)
        return err
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        log.Printf("rabbitmq: channel open failed: %v", err)
        return err
    }
    defer func() { _ = ch.Close() }()

    if _, err := ch.QueueDeclare(q.ActivityQueueName, true, false, false, false, nil); err != nil {
        log.Printf("rabbitmq: queue declare failed: %v", err)
        return err
    }

    body, err := json.Marshal(ev)
    if err != nil {
        log.Printf("rabbitmq: marshal event failed: %v", err)
        return err
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        MessageId:    ev.ID,
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", q.ActivityQueueName, false, false, pub); err != nil {
        log.Printf("rabbitmq: publish failed: %v", err)
        return err
    }
    return nil
}
