package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
)

const reconnectDelay = 5 * time.Second

// Listener holds a dedicated Postgres connection in LISTEN mode and forwards
// decoded events to a sink. The pooled database/sql handle cannot be used for
// this; LISTEN requires a session pinned to one connection.
type Listener struct {
	dsn  string
	sink func(Event)
}

// NewListener returns a listener publishing to sink.
func NewListener(dsn string, sink func(Event)) *Listener {
	return &Listener{dsn: dsn, sink: sink}
}

// Run listens until ctx is cancelled, reconnecting on connection loss.
func (l *Listener) Run(ctx context.Context) error {
	for {
		if err := l.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("notify: listener error, reconnecting in %s: %v", reconnectDelay, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return err
	}
	log.Printf("notify: listening on channel %q", Channel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var ev Event
		if err := json.Unmarshal([]byte(n.Payload), &ev); err != nil {
			log.Printf("notify: dropping malformed payload: %v", err)
			continue
		}
		l.sink(ev)
	}
}
