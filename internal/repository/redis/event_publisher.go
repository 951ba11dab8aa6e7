package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"streamchat-backend/internal/domain"
	"streamchat-backend/pkg/logger"
	"streamchat-backend/pkg/metrics"
)

// ErrEventQueueFull is returned by Emit when the publisher cannot accept more events
var ErrEventQueueFull = errors.New("event queue is full")

// ErrPublisherClosed is returned by Emit after Close
var ErrPublisherClosed = errors.New("event publisher is closed")

type queuedEvent struct {
	topic string
	event *domain.Event
}

// EventPublisher fans realtime events out over Redis Pub/Sub. Emit only enqueues;
// a fixed pool of workers does the network I/O so request handlers never wait on Redis.
type EventPublisher struct {
	client  *redis.Client
	queue   chan queuedEvent
	workers int
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewEventPublisher creates a publisher with a bounded queue
func NewEventPublisher(client *redis.Client, queueSize, workers int) *EventPublisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workers <= 0 {
		workers = 4
	}
	return &EventPublisher{
		client:  client,
		queue:   make(chan queuedEvent, queueSize),
		workers: workers,
		timeout: 3 * time.Second,
	}
}

// Start launches the worker pool
func (p *EventPublisher) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
}

// Emit enqueues an event for topic without blocking
func (p *EventPublisher) Emit(topic string, event *domain.Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPublisherClosed
	}

	select {
	case p.queue <- queuedEvent{topic: topic, event: event}:
		metrics.ChatEventQueueLength.Set(float64(len(p.queue)))
		return nil
	default:
		return ErrEventQueueFull
	}
}

// Close stops accepting events and waits for queued ones to be published
func (p *EventPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *EventPublisher) run() {
	defer p.wg.Done()

	for item := range p.queue {
		metrics.ChatEventQueueLength.Set(float64(len(p.queue)))
		if err := p.publish(item); err != nil {
			metrics.ChatEventEmittedTotal.WithLabelValues(item.event.Operation, "failed").Inc()
			logger.Warn("Failed to publish event",
				zap.String("topic", item.topic),
				zap.String("operation", item.event.Operation),
				zap.Error(err))
			continue
		}
		metrics.ChatEventEmittedTotal.WithLabelValues(item.event.Operation, "published").Inc()
	}
}

func (p *EventPublisher) publish(item queuedEvent) error {
	data, err := json.Marshal(item.event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	return p.client.Publish(ctx, item.topic, data).Err()
}
