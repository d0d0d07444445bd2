package inbox

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/socialdist/fednode/stream"
	"github.com/socialdist/fednode/types"
	"github.com/socialdist/fednode/urlutil"
)

// FanOutPost tells every follower of the post's author about it. Local followers get an inbox entry,
// remote ones a delivery to their inbox. Failures are logged per follower and never abort the loop.
// post.Author must be loaded. It returns how many followers were reached.
func (s *Service) FanOutPost(ctx context.Context, post types.Post) int {
	ctx, span := tracer.Start(ctx, "Inbox.Service.FanOutPost")
	defer span.End()

	followers, err := s.store.GetFollowers(ctx, post.AuthorID)
	if err != nil {
		span.RecordError(err)
		log.Warn().Err(err).Str("post", post.ID).Msg("followers not loaded for fan-out")
		return 0
	}

	obj := post.ToObject()
	reached := 0
	for _, edge := range followers {
		follower := edge.Actor
		switch {
		case follower.IsNode:
			continue
		case follower.Local():
			entry, err := s.store.CreatePostEntry(ctx, follower.ID, obj.ID)
			if err != nil {
				log.Warn().Err(err).Str("follower", follower.ID).Msg("post entry not stored")
				continue
			}
			s.publisher.Publish(ctx, follower.ID, stream.Event{Type: types.InboxPost, Author: follower.URL, Entry: entry})
		default:
			inboxURL := urlutil.Join(follower.URL, "inbox")
			resp, err := s.client.Post(ctx, inboxURL, types.NewEnvelope(urlutil.Standardize(follower.URL), obj))
			if err != nil {
				log.Warn().Err(err).Str("url", inboxURL).Msg("post not delivered")
				continue
			}
			if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
				log.Warn().Int("status", resp.StatusCode).Str("url", inboxURL).Msg("post delivery refused")
				continue
			}
		}
		reached++
	}
	return reached
}
