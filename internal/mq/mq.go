package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"qms/dashboard-service/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// VisitEvent is what the kiosk publishes when it writes a visit.
type VisitEvent struct {
	VisitID        string `json:"visit_id"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status,omitempty"`
}

// Notifier turns kiosk visit events on a fanout exchange into change
// signals for the live feed.
type Notifier struct {
	url      string
	exchange string
	logger   *zap.Logger
	retry    time.Duration

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel

	// redial and consume are swapped out in tests.
	redial  func() error
	consume func() (<-chan amqp.Delivery, error)
}

func Dial(url, exchange string, logger *zap.Logger) (*Notifier, error) {
	n := &Notifier{url: url, exchange: exchange, logger: logger, retry: 5 * time.Second}
	n.redial = n.connect
	n.consume = n.consumeQueue
	if err := n.connect(); err != nil {
		return nil, err
	}
	return n, nil
}

// connect opens a fresh connection and channel, replacing any previous
// ones.
func (n *Notifier) connect() error {
	conn, err := amqp.Dial(n.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(n.exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", n.exchange, err)
	}

	n.mu.Lock()
	oldConn, oldCh := n.conn, n.ch
	n.conn, n.ch = conn, ch
	n.mu.Unlock()
	closeAll(oldConn, oldCh)
	return nil
}

func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	conn, ch := n.conn, n.ch
	n.conn, n.ch = nil, nil
	n.mu.Unlock()
	closeAll(conn, ch)
}

func closeAll(conn *amqp.Connection, ch *amqp.Channel) {
	if ch != nil {
		_ = ch.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

// consumeQueue binds a private queue to the exchange on the current channel.
func (n *Notifier) consumeQueue() (<-chan amqp.Delivery, error) {
	n.mu.Lock()
	ch := n.ch
	n.mu.Unlock()
	if ch == nil {
		return nil, fmt.Errorf("amqp channel closed")
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", n.exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

// Watch reports the statuses of every event received. When the broker
// connection drops it reconnects, then signals every status so subscribers
// re-read anything missed. The channel closes when ctx is done.
func (n *Notifier) Watch(ctx context.Context) (<-chan string, error) {
	deliveries, err := n.consume()
	if err != nil {
		return nil, err
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		for {
			n.drain(ctx, deliveries, out)
			if ctx.Err() != nil {
				return
			}
			n.logger.Warn("amqp deliveries closed", zap.String("exchange", n.exchange))
			deliveries = n.resubscribe(ctx, out)
			if deliveries == nil {
				return
			}
		}
	}()
	return out, nil
}

func (n *Notifier) drain(ctx context.Context, deliveries <-chan amqp.Delivery, out chan<- string) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			for _, status := range Statuses(d.Body) {
				select {
				case out <- status:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (n *Notifier) resubscribe(ctx context.Context, out chan<- string) <-chan amqp.Delivery {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(n.retry):
		}
		if err := n.redial(); err != nil {
			n.logger.Warn("amqp reconnect failed", zap.Error(err))
			continue
		}
		deliveries, err := n.consume()
		if err != nil {
			n.logger.Warn("amqp resubscribe failed", zap.Error(err))
			continue
		}
		select {
		case out <- "":
		case <-ctx.Done():
			return nil
		}
		return deliveries
	}
}

// Statuses extracts the statuses an event touches. A body that cannot be
// read signals every status.
func Statuses(body []byte) []string {
	var event VisitEvent
	if err := json.Unmarshal(body, &event); err != nil || !models.ValidStatus(event.Status) {
		return []string{""}
	}
	statuses := []string{event.Status}
	if event.PreviousStatus != "" && event.PreviousStatus != event.Status && models.ValidStatus(event.PreviousStatus) {
		statuses = append(statuses, event.PreviousStatus)
	}
	return statuses
}
