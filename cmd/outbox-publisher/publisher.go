package main

import (
	"context"
	"errors"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// publisher sends one message and blocks until the broker acknowledges it.
type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) (string, error)
}

type topicPublishers interface {
	Publisher(name string) *gcppubsub.Publisher
}

// publisherCache hands out one Pub/Sub publisher per topic. Publishers batch
// internally, so they are created once and stopped on shutdown.
type publisherCache struct {
	source topicPublishers
	mu     sync.Mutex
	byName map[string]*gcppubsub.Publisher
}

func newPublisherCache(source topicPublishers) *publisherCache {
	return &publisherCache{source: source, byName: map[string]*gcppubsub.Publisher{}}
}

func (c *publisherCache) For(topic string) publisher {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byName[topic]
	if !ok {
		p = c.source.Publisher(topic)
		if p == nil {
			return nil
		}
		c.byName[topic] = p
	}
	return gcpPublisher{p}
}

func (c *publisherCache) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, p := range c.byName {
		p.Stop()
		delete(c.byName, name)
	}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) (string, error) {
	result := g.p.Publish(ctx, msg)
	if result == nil {
		return "", errors.New("publish returned no result")
	}
	return result.Get(ctx)
}
