// Package service publishes domain events to RabbitMQ. Publishing is best
// effort: failures are logged and counted, and never surface to the request
// that triggered them.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/segregate/internal/queue"
)

// Notifier accepts events for delivery. Notify must not block the caller
// on the broker.
type Notifier interface {
	Notify(ev queue.Event)
}

// Observer is told about every publish attempt and every event dropped
// before one. *middleware.Metrics satisfies it.
type Observer interface {
	Published(eventType string, err error)
	Dropped(eventType string)
}

// Nop discards events. Used when no broker is configured.
type Nop struct{}

func (Nop) Notify(queue.Event) {}

// ErrCloseTimeout is returned by Close when queued events could not be
// flushed in time.
var ErrCloseTimeout = errors.New("notify: close timed out with events pending")

const (
	defaultQueueSize      = 256
	defaultPublishTimeout = 5 * time.Second
	defaultCloseTimeout   = 5 * time.Second
)

// PublisherOptions tunes a Publisher. Zero values take the defaults.
type PublisherOptions struct {
	QueueSize      int           // buffered events; Notify drops beyond this
	PublishTimeout time.Duration // per event, dial included
	CloseTimeout   time.Duration // how long Close waits for the queue to drain
}

// Publisher publishes events to the notification queue over one lazily
// opened connection, reopened after any failure. A single worker drains a
// bounded buffer, so a stalled broker costs at most one publish timeout per
// event and never more than QueueSize pending events.
type Publisher struct {
	url      string
	logger   *zap.Logger
	observer Observer
	opts     PublisherOptions

	events    chan queue.Event
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// base is cancelled when Close gives up, failing whatever is in flight.
	base   context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher returns a publisher for url and starts its worker. No
// connection is made until the first event.
func NewPublisher(url string, logger *zap.Logger, observer Observer, opts PublisherOptions) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = defaultCloseTimeout
	}
	base, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		url:      url,
		logger:   logger,
		observer: observer,
		opts:     opts,
		events:   make(chan queue.Event, opts.QueueSize),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		base:     base,
		cancel:   cancel,
	}
	go p.run()
	return p
}

// Notify queues ev for the worker. When the queue is full, or the
// publisher is closed, the event is dropped and counted.
func (p *Publisher) Notify(ev queue.Event) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	select {
	case <-p.quit:
		p.drop(ev, "publisher closed")
		return
	default:
	}
	select {
	case p.events <- ev:
	default:
		p.drop(ev, "queue full")
	}
}

func (p *Publisher) drop(ev queue.Event, reason string) {
	p.logger.Warn("notify: event dropped", zap.String("type", ev.Type), zap.String("reason", reason))
	if p.observer != nil {
		p.observer.Dropped(ev.Type)
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for {
		select {
		case ev := <-p.events:
			p.send(ev)
		case <-p.quit:
			for {
				select {
				case ev := <-p.events:
					p.send(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) send(ev queue.Event) {
	ctx, cancel := context.WithTimeout(p.base, p.opts.PublishTimeout)
	defer cancel()
	if err := p.Publish(ctx, ev); err != nil {
		p.logger.Warn("notify: publish failed", zap.String("type", ev.Type), zap.Error(err))
	}
}

// Publish sends ev synchronously as a persistent JSON message. Dialing
// and publishing both stop at ctx's deadline.
func (p *Publisher) Publish(ctx context.Context, ev queue.Event) (err error) {
	defer func() {
		if p.observer != nil {
			p.observer.Published(ev.Type, err)
		}
	}()

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, "", queue.QueueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.OccurredAt,
		Type:         ev.Type,
		Body:         body,
	})
	if err != nil {
		p.reset()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// channel returns an open channel, dialing if needed. Callers hold p.mu.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      dialContext(ctx, p.opts.PublishTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(queue.QueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// dialContext connects under ctx and bounds the AMQP handshake by ctx's
// deadline, or by fallback when ctx has none. The library clears the
// deadline once the connection is open.
func dialContext(ctx context.Context, fallback time.Duration) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		deadline, ok := ctx.Deadline()
		if !ok {
			deadline = time.Now().Add(fallback)
		}
		d := net.Dialer{Deadline: deadline}
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close stops accepting events and waits up to CloseTimeout for the queue
// to drain. On timeout the in-flight publish is cancelled, the rest of the
// queue fails fast, and ErrCloseTimeout is returned.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() { close(p.quit) })

	timer := time.NewTimer(p.opts.CloseTimeout)
	defer timer.Stop()
	var err error
	select {
	case <-p.done:
	case <-timer.C:
		p.cancel()
		err = ErrCloseTimeout
	}
	p.cancel()

	// Only close the connection once the worker has let go of it.
	select {
	case <-p.done:
		p.mu.Lock()
		p.reset()
		p.mu.Unlock()
	default:
	}
	return err
}
