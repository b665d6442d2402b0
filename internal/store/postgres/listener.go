package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// Notifier receives the name of a collection that changed.
type Notifier interface {
	Notify(ctx context.Context, collection string)
}

// Listener forwards pg_notify events on Channel to a Notifier, so writes
// committed by other instances reach local subscribers.
type Listener struct {
	databaseURL string
	target      Notifier
	log         *slog.Logger
	retryDelay  time.Duration
}

func NewListener(databaseURL string, target Notifier, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	return &Listener{databaseURL: databaseURL, target: target, log: log, retryDelay: 2 * time.Second}
}

// Run listens until ctx is done, reconnecting after connection loss.
func (l *Listener) Run(ctx context.Context) error {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.log.Warn("change listener disconnected", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{Channel}.Sanitize()); err != nil {
		return err
	}
	l.log.Info("listening for changes", "channel", Channel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if n.Payload == "" {
			continue
		}
		l.target.Notify(ctx, n.Payload)
	}
}

var errNoDatabase = errors.New("postgres: database url required")

// StartListener runs a Listener in the background; the returned func stops it.
func StartListener(ctx context.Context, databaseURL string, target Notifier, log *slog.Logger) (func(), error) {
	if databaseURL == "" {
		return nil, errNoDatabase
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	listener := NewListener(databaseURL, target, log)
	go func() {
		defer close(done)
		_ = listener.Run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}, nil
}
