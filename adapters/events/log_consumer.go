package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/sirupsen/logrus"
)

// LogEvents logs every session event published on subscriber until ctx is
// done. Undecodable messages are logged and dropped.
func LogEvents(ctx context.Context, subscriber message.Subscriber, logger logrus.FieldLogger) error {
	subscriptions := make(map[string]<-chan *message.Message)
	for _, topic := range []string{LoginTopic, LogoutTopic} {
		messages, err := subscriber.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		subscriptions[topic] = messages
	}

	var wg sync.WaitGroup
	for topic, messages := range subscriptions {
		topic, messages := topic, messages
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range messages {
				var event SessionEvent
				if err := json.Unmarshal(msg.Payload, &event); err != nil {
					logger.WithError(err).WithField("topic", topic).Warn("Dropping undecodable event")
					msg.Ack()
					continue
				}

				logger.WithFields(logrus.Fields{
					"topic":  topic,
					"domain": event.Domain,
					"at":     event.At,
				}).Info("Session event")
				msg.Ack()
			}
		}()
	}

	wg.Wait()
	return nil
}
