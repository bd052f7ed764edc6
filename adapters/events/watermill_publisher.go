package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/domainauth/ports"
)

const (
	// LoginTopic receives an event for every successful login
	LoginTopic = "domainauth.login"

	// LogoutTopic receives an event when an authenticated session is destroyed
	LogoutTopic = "domainauth.logout"
)

// SessionEvent is the payload published on both topics
type SessionEvent struct {
	Domain    string    `json:"domain"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	now       func() time.Time
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		now:       time.Now,
	}
}

// PublishLogin publishes a login event
func (p *WatermillPublisher) PublishLogin(ctx context.Context, domain, sessionID string) error {
	return p.publish(ctx, LoginTopic, domain, sessionID)
}

// PublishLogout publishes a logout event
func (p *WatermillPublisher) PublishLogout(ctx context.Context, domain, sessionID string) error {
	return p.publish(ctx, LogoutTopic, domain, sessionID)
}

func (p *WatermillPublisher) publish(ctx context.Context, topic, domain, sessionID string) error {
	event := SessionEvent{
		Domain:    domain,
		SessionID: sessionID,
		At:        p.now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NopPublisher drops every event
type NopPublisher struct{}

// PublishLogin does nothing
func (NopPublisher) PublishLogin(context.Context, string, string) error { return nil }
// PublishLogout does nothing
func (NopPublisher) PublishLogout(context.Context, string, string) error { return nil }
