// Package notify announces completed build cycles on a NATS subject so
// downstream consumers (cache invalidators, deployment hooks, dashboards)
// can react to publishes without polling.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sitewright/sitewright/internal/build"
	"github.com/sitewright/sitewright/internal/foundation/errors"
	"github.com/sitewright/sitewright/internal/logfields"
)

const connectTimeout = 5 * time.Second

// Announcer publishes cycle records as JSON messages. It implements
// build.Notifier.
type Announcer struct {
	conn    *nats.Conn
	subject string
}

// NewAnnouncer connects to the NATS server at url. Announcements are a side
// channel, so the connection reconnects in the background rather than
// failing builds when the broker drops.
func NewAnnouncer(url, subject string) (*Announcer, error) {
	if url == "" {
		return nil, errors.NotifyError("notify URL is required").Build()
	}
	if subject == "" {
		subject = "sitewright.builds"
	}

	conn, err := nats.Connect(url,
		nats.Name("sitewright"),
		nats.Timeout(connectTimeout),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, errors.NotifyError("failed to connect to NATS").
			WithCause(err).
			WithContext("url", url).
			Build()
	}

	slog.Info("Build announcer connected",
		logfields.URL(url), logfields.Subject(subject))
	return &Announcer{conn: conn, subject: subject}, nil
}

// Announce publishes one cycle record and flushes so broker errors surface
// here instead of silently vanishing into the send buffer.
func (a *Announcer) Announce(ctx context.Context, rec build.CycleRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.NotifyError("failed to marshal cycle record").
			WithCause(err).
			WithContext("build_id", rec.BuildID).
			Build()
	}
	if err := a.conn.Publish(a.subject, data); err != nil {
		return errors.NotifyError("failed to publish cycle record").
			WithCause(err).
			WithContext("subject", a.subject).
			Build()
	}
	if err := a.conn.FlushWithContext(ctx); err != nil {
		return errors.NotifyError("failed to flush announcement").
			WithCause(err).
			WithContext("subject", a.subject).
			Build()
	}

	slog.Debug("Announced build cycle",
		logfields.BuildID(rec.BuildID),
		logfields.Outcome(rec.Outcome),
		logfields.Subject(a.subject))
	return nil
}

// Close closes the NATS connection.
func (a *Announcer) Close() {
	if a.conn != nil {
		a.conn.Close()
	}
}
