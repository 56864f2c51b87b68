// Package events publishes lifecycle notifications for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"bitbucket.org/mmdatafocus/coordinator_backend/models"
	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
)

type LifecycleEvent struct {
	Operation         string                   `json:"operation"`
	OasysAssessmentPk string                   `json:"oasysAssessmentPk"`
	Records           []models.VersionedEntity `json:"records"`
	UserId            string                   `json:"userId,omitempty"`
	UserName          string                   `json:"userName,omitempty"`
	CorrelationId     string                   `json:"correlationId,omitempty"`
	OccurredAt        time.Time                `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, event LifecycleEvent) error
}

type PubSubPublisher struct {
	Topic  *pubsub.Topic
	Logger *logrus.Logger
}

func NewPubSubPublisher(topic *pubsub.Topic, logger *logrus.Logger) *PubSubPublisher {
	return &PubSubPublisher{Topic: topic, Logger: logger}
}

// Publish blocks until the server acknowledges the message.
func (p *PubSubPublisher) Publish(ctx context.Context, event LifecycleEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	result := p.Topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"operation":         event.Operation,
			"oasysAssessmentPk": event.OasysAssessmentPk,
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return err
	}
	if p.Logger != nil {
		p.Logger.WithFields(logrus.Fields{
			"messageId": id,
			"operation": event.Operation,
		}).Debug("lifecycle event published")
	}
	return nil
}

// NoopPublisher drops events. Used when PUBSUB_TOPIC is not set.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event LifecycleEvent) error {
	return nil
}
