package events

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// PostgresChannel is the LISTEN/NOTIFY channel name
const PostgresChannel = "checklist_events"

// PostgresBroker uses PostgreSQL LISTEN/NOTIFY, so deployments without Redis
// still share events across instances
type PostgresBroker struct {
	db       *sql.DB
	listener *pq.Listener
	local    *LocalBroker
	stop     chan struct{}
	done     chan struct{}
}

// NewPostgresBroker opens a notify connection and a listener on dsn
func NewPostgresBroker(ctx context.Context, dsn string) (*PostgresBroker, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	listener := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Warn("event listener connection problem", "event", ev, "error", err)
		}
	})
	if err := listener.Listen(PostgresChannel); err != nil {
		listener.Close()
		db.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", PostgresChannel, err)
	}

	b := &PostgresBroker{
		db:       db,
		listener: listener,
		local:    NewLocalBroker(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go b.forward()

	return b, nil
}

func (b *PostgresBroker) forward() {
	defer close(b.done)

	ticker := time.NewTicker(90 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case n, ok := <-b.listener.Notify:
			if !ok {
				return
			}
			// nil after a reconnect; notifications may have been missed
			if n == nil {
				continue
			}
			ev, err := decodeEvent([]byte(n.Extra))
			if err != nil {
				slog.Warn("dropping malformed event", "channel", n.Channel, "error", err)
				continue
			}
			b.local.Publish(context.Background(), ev)
		case <-ticker.C:
			if err := b.listener.Ping(); err != nil {
				slog.Warn("event listener ping failed", "error", err)
			}
		}
	}
}

// Publish sends ev through pg_notify
func (b *PostgresBroker) Publish(ctx context.Context, ev ChecklistEvent) error {
	data, err := encodeEvent(ev)
	if err != nil {
		return err
	}
	if _, err := b.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, PostgresChannel, string(data)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Subscribe streams events for one checklist until ctx is done
func (b *PostgresBroker) Subscribe(ctx context.Context, checklistID string) (<-chan ChecklistEvent, error) {
	return b.local.Subscribe(ctx, checklistID)
}

// Ping checks the notify connection
func (b *PostgresBroker) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close stops the listener and closes local subscriptions
func (b *PostgresBroker) Close() error {
	close(b.stop)
	<-b.done
	b.local.Close()
	if err := b.listener.Close(); err != nil {
		b.db.Close()
		return err
	}
	return b.db.Close()
}
