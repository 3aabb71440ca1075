// Package pubsub publishes scrape notifications to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.opentelemetry.io/otel"
)

// topicPublisher is the part of *pubsub.Publisher used here.
type topicPublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
	Stop()
}

// Publisher sends JSON payloads to per-topic Pub/Sub publishers.
type Publisher struct {
	mu         sync.Mutex
	newTopic   func(topic string) topicPublisher
	publishers map[string]topicPublisher
	await      func(ctx context.Context, res *pubsub.PublishResult) (string, error)
}

// New creates a Publisher backed by client. Topic publishers are created on first use.
func New(client *pubsub.Client) *Publisher {
	var factory func(string) topicPublisher
	if client != nil {
		factory = func(topic string) topicPublisher { return client.Publisher(topic) }
	}
	return newWithFactory(factory)
}

func newWithFactory(factory func(string) topicPublisher) *Publisher {
	return &Publisher{
		newTopic:   factory,
		publishers: make(map[string]topicPublisher),
		await: func(ctx context.Context, res *pubsub.PublishResult) (string, error) {
			return res.Get(ctx)
		},
	}
}

// Publish marshals payload to JSON, injects trace context into the attributes,
// and waits for the server-assigned message ID.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if p.newTopic == nil {
		return "", errors.New("pubsub client is not configured")
	}
	if topic == "" {
		return "", errors.New("topic is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data, Attributes: map[string]string{}}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	result := p.topic(topic).Publish(ctx, msg)
	id, err := p.await(ctx, result)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes and stops every topic publisher.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, tp := range p.publishers {
		tp.Stop()
		delete(p.publishers, name)
	}
}

func (p *Publisher) topic(name string) topicPublisher {
	p.mu.Lock()
	defer p.mu.Unlock()
	tp, ok := p.publishers[name]
	if !ok {
		tp = p.newTopic(name)
		p.publishers[name] = tp
	}
	return tp
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
