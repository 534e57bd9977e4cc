// Package pubsub implements a Google Cloud Pub/Sub publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"google.golang.org/api/option"
)

// Publisher wraps a Pub/Sub publisher client.
type Publisher struct {
	client     *pubsub.Client
	publisher  *pubsub.Publisher
	attributes map[string]string
}

// New creates a Publisher for the provided topic publisher. attributes are
// attached to every message.
func New(publisher *pubsub.Publisher, attributes map[string]string) *Publisher {
	return &Publisher{publisher: publisher, attributes: attributes}
}

// Dial opens a client for projectID and returns a Publisher bound to topic.
func Dial(ctx context.Context, projectID, topic string, attributes map[string]string, opts ...option.ClientOption) (*Publisher, error) {
	if projectID == "" || topic == "" {
		return nil, fmt.Errorf("pubsub project and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	p := New(client.Publisher(topic), attributes)
	p.client = client
	return p, nil
}

// Publish marshals the payload to JSON and publishes it to the topic. The
// topic argument is recorded as an attribute; routing is fixed at Dial.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p.publisher == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	attrs := make(map[string]string, len(p.attributes)+1)
	for k, v := range p.attributes {
		attrs[k] = v
	}
	if topic != "" {
		attrs["topic"] = topic
	}

	result := p.publisher.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes pending messages and releases the client.
func (p *Publisher) Close() error {
	if p.publisher != nil {
		p.publisher.Stop()
	}
	if p.client != nil {
		if err := p.client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
	}
	return nil
}
