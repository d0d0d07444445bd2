// Package stream carries inbox events over redis pub/sub.
package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"github.com/socialdist/fednode/types"
)

var tracer = otel.Tracer("stream")

// Event announces a new inbox entry for Author.
type Event struct {
	Type      types.InboxItemType `json:"type"`
	Author    string              `json:"author"`
	Entry     any                 `json:"entry"`
	Published time.Time           `json:"published"`
}

// Channel is the redis channel carrying an author's inbox events.
func Channel(authorID string) string {
	return "inbox:" + authorID
}

// Publisher sends events. A nil Publisher or one without a client drops them.
type Publisher struct {
	rdb *redis.Client
}

func NewPublisher(rdb *redis.Client) *Publisher {
	return &Publisher{rdb: rdb}
}

// Publish is best effort: failures are logged and returned, never retried.
func (p *Publisher) Publish(ctx context.Context, authorID string, event Event) error {
	if !p.Enabled() {
		return nil
	}
	ctx, span := tracer.Start(ctx, "Stream.Publisher.Publish")
	defer span.End()

	if event.Published.IsZero() {
		event.Published = time.Now()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "encode inbox event")
	}
	if err := p.rdb.Publish(ctx, Channel(authorID), payload).Err(); err != nil {
		span.RecordError(err)
		log.Warn().Err(err).Str("author", authorID).Msg("inbox event not published")
		return errors.Wrap(err, "publish inbox event")
	}
	return nil
}

// Enabled reports whether events reach redis.
func (p *Publisher) Enabled() bool {
	return p != nil && p.rdb != nil
}

// Subscribe calls fn for every event on authorID's channel until ctx ends, the connection fails
// or fn returns an error.
func (p *Publisher) Subscribe(ctx context.Context, authorID string, fn func(Event) error) error {
	if !p.Enabled() {
		return errors.Wrap(types.ErrUpstreamUnavailable, "event stream not configured")
	}

	pubsub := p.rdb.Subscribe(ctx, Channel(authorID))
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			log.Warn().Err(err).Str("author", authorID).Msg("inbox stream receive failed")
			return errors.Wrap(err, "receive inbox event")
		}

		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Warn().Err(err).Str("author", authorID).Msg("malformed inbox event")
			continue
		}
		if err := fn(event); err != nil {
			return err
		}
	}
}
