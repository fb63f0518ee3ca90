// Package service holds outbound integrations used by the request path.
// Errors here are logged and never fail the request that triggered them.
package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dataarchlabs/lab-portal/internal/identity"
	"github.com/dataarchlabs/lab-portal/internal/logger"
	"github.com/dataarchlabs/lab-portal/internal/model"
	"github.com/dataarchlabs/lab-portal/internal/queue"
)

const publishTimeout = 5 * time.Second

// AuthEventPublisher sends an AuthEvent for every resolved login. It
// implements identity.Events.
type AuthEventPublisher struct {
	url     string
	publish func(ctx context.Context, url string, ev queue.AuthEvent) error
	now     func() time.Time
}

func NewAuthEventPublisher(amqpURL string) *AuthEventPublisher {
	return &AuthEventPublisher{url: amqpURL, publish: PublishAuthEvent, now: time.Now}
}

var _ identity.Events = (*AuthEventPublisher)(nil)

// AccountResolved publishes in the background so a slow broker never delays
// a login.
func (p *AuthEventPublisher) AccountResolved(ctx context.Context, acct *model.Account, provider string, outcome identity.Outcome) {
	ev := queue.AuthEvent{
		Type:       eventType(outcome),
		AccountID:  acct.ID,
		Email:      acct.Email,
		Role:       string(acct.Role),
		Provider:   provider,
		OccurredAt: p.now().UTC(),
	}
	pubCtx := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(pubCtx, publishTimeout)
		defer cancel()
		if err := p.publish(ctx, p.url, ev); err != nil {
			logger.Error("auth event publish failed", map[string]any{"type": ev.Type, "account_id": ev.AccountID, "err": err})
		}
	}()
}

func eventType(o identity.Outcome) string {
	switch o {
	case identity.OutcomeCreated:
		return queue.EventAccountCreated
	case identity.OutcomeLinked:
		return queue.EventAccountLinked
	default:
		return queue.EventAccountLogin
	}
}

// PublishAuthEvent publishes ev to the auth.events queue as a persistent
// JSON message.
func PublishAuthEvent(ctx context.Context, url string, ev queue.AuthEvent) error {
	conn, err := amqp.Dial(url)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		queue.AuthEventsQueue, // name
		true,                  // durable
		false,                 // autoDelete
		false,                 // exclusive
		false,                 // noWait
		nil,                   // args
	); err != nil {
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return ch.PublishWithContext(ctx,
		"",                    // default exchange
		queue.AuthEventsQueue, // routing key = queue name
		false,                 // mandatory
		false,                 // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent, // store on disk
			Timestamp:    ev.OccurredAt,
			Type:         ev.Type,
			Body:         body,
		},
	)
}
