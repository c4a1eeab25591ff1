package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/model"
)

// TopicOutreachEvents carries a model.OutreachEvent for every email log entry.
const TopicOutreachEvents = "outreach_events"

// ErrNoSubscribers is returned by Publish when nobody listens on the topic.
var ErrNoSubscribers = errors.New("no subscribers")

// Queue interface
type Queue interface {
	Publish(topic string, payload any) error
	Subscribe(topic string, handler func(payload any) error) error
}

// InMemoryQueue delivers to in-process subscribers with retry
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload any) error
	wg       sync.WaitGroup

	// Backoff is multiplied by the attempt number between retries.
	Backoff    time.Duration
	MaxRetries int

	log *zap.Logger
}

// NewInMemoryQueue creates a new queue
func NewInMemoryQueue(logger *zap.Logger) *InMemoryQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryQueue{
		handlers:   make(map[string][]func(payload any) error),
		Backoff:    500 * time.Millisecond,
		MaxRetries: 3,
		log:        logger,
	}
}

// JobPayload wraps a message payload with retry info
type JobPayload struct {
	Topic      string
	Payload    any
	RetryCount int
	MaxRetries int
}

// Publish hands the payload to every subscriber of topic
func (q *InMemoryQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("topic %s: %w", topic, ErrNoSubscribers)
	}

	job := JobPayload{
		Topic:      topic,
		Payload:    payload,
		RetryCount: 0,
		MaxRetries: q.MaxRetries,
	}

	for _, handler := range handlers {
		q.wg.Add(1)
		go q.processJob(handler, job)
	}

	return nil
}

// processJob handles retries and errors
func (q *InMemoryQueue) processJob(handler func(payload any) error, job JobPayload) {
	defer q.wg.Done()
	for job.RetryCount <= job.MaxRetries {
		err := handler(job.Payload)
		if err == nil {
			return // ACK
		}

		job.RetryCount++
		q.log.Warn("job failed",
			zap.String("topic", job.Topic),
			zap.Int("attempt", job.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.Error(err))

		if job.RetryCount > job.MaxRetries {
			q.log.Error("job permanently failed", zap.String("topic", job.Topic), zap.Any("payload", job.Payload))
			return // No requeue
		}

		time.Sleep(time.Duration(job.RetryCount) * q.Backoff)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload any) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

// Wait blocks until every delivered job has finished or given up.
func (q *InMemoryQueue) Wait() {
	q.wg.Wait()
}

// DecodeEvent accepts the payload forms an outreach event arrives in: the
// value itself from the in-memory queue or JSON bytes from a broker.
func DecodeEvent(payload any) (model.OutreachEvent, error) {
	switch v := payload.(type) {
	case model.OutreachEvent:
		return v, nil
	case *model.OutreachEvent:
		if v == nil {
			return model.OutreachEvent{}, errors.New("nil outreach event")
		}
		return *v, nil
	case []byte:
		var ev model.OutreachEvent
		if err := json.Unmarshal(v, &ev); err != nil {
			return ev, fmt.Errorf("decode outreach event: %w", err)
		}
		return ev, nil
	default:
		return model.OutreachEvent{}, fmt.Errorf("unexpected payload type %T", payload)
	}
}

// StartEventSubscriber feeds every outreach event on q to sink. Payloads
// that cannot be decoded are dropped.
func StartEventSubscriber(q Queue, sink func(model.OutreachEvent), logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	err := q.Subscribe(TopicOutreachEvents, func(payload any) error {
		ev, err := DecodeEvent(payload)
		if err != nil {
			logger.Warn("dropping outreach event", zap.Error(err))
			return nil // no retry
		}
		sink(ev)
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicOutreachEvents, err)
	}
	return nil
}
