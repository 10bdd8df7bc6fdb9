package postgres

import (
	"context"
	"time"

	"qms/dashboard-service/internal/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const queueChannel = "queue_changes"

// Listener turns NOTIFY messages from the queues trigger into change
// signals. Each payload is the status whose record set changed.
type Listener struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	retry  time.Duration
}

func NewListener(pool *pgxpool.Pool, logger *zap.Logger) *Listener {
	return &Listener{pool: pool, logger: logger, retry: 5 * time.Second}
}

// Watch delivers a status on the returned channel every time a visit with
// that status is written. The channel closes when ctx is done.
func (l *Listener) Watch(ctx context.Context) (<-chan string, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+queueChannel); err != nil {
		conn.Release()
		return nil, err
	}

	out := make(chan string, 16)
	go func() {
		defer close(out)
		for {
			l.drain(ctx, conn, out)
			conn.Release()
			if ctx.Err() != nil {
				return
			}
			conn = l.reconnect(ctx, out)
			if conn == nil {
				return
			}
		}
	}()
	return out, nil
}

func (l *Listener) drain(ctx context.Context, conn *pgxpool.Conn, out chan<- string) {
	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				l.logger.Warn("queue listener interrupted", zap.Error(err))
			}
			return
		}
		select {
		case out <- notification.Payload:
		case <-ctx.Done():
			return
		}
	}
}

func (l *Listener) reconnect(ctx context.Context, out chan<- string) *pgxpool.Conn {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.retry):
		}
		conn, err := l.pool.Acquire(ctx)
		if err != nil {
			l.logger.Warn("queue listener reconnect failed", zap.Error(err))
			continue
		}
		if _, err := conn.Exec(ctx, "LISTEN "+queueChannel); err != nil {
			conn.Release()
			l.logger.Warn("queue listener LISTEN failed", zap.Error(err))
			continue
		}
		// Signal every status so subscribers re-read anything missed.
		for _, status := range models.Statuses {
			select {
			case out <- status:
			default:
			}
		}
		return conn
	}
}
