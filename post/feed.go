package post

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/socialdist/fednode/types"
	"github.com/socialdist/fednode/urlutil"
)

const githubActivityPrefix = "Github Activity:"

type feedItem struct {
	published time.Time
	body      json.RawMessage
}

// Feed merges the PUBLIC posts of everyone authorID follows with the FRIENDS posts of mutual
// followees, newest first. Remote followees are read live from their nodes.
func (s *Service) Feed(ctx context.Context, authorID string, page types.Page) ([]json.RawMessage, error) {
	ctx, span := tracer.Start(ctx, "Post.Service.Feed")
	defer span.End()

	author, err := s.store.GetAuthor(ctx, authorID)
	if err != nil {
		return nil, err
	}
	following, err := s.store.GetFollowing(ctx, author.ID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	var items []feedItem
	for _, edge := range following {
		followee := edge.Object
		wanted := []types.Visibility{types.VisibilityPublic}
		if s.relations.IsMutualFollow(ctx, author.URL, followee.URL) {
			wanted = append(wanted, types.VisibilityFriends)
		}

		if followee.Local() {
			items = append(items, s.localFeed(ctx, followee, wanted)...)
		} else {
			items = append(items, s.remoteFeed(ctx, followee, wanted)...)
		}
	}

	slices.SortStableFunc(items, func(a, b feedItem) int {
		return b.published.Compare(a.published)
	})
	return lo.Map(types.Paginate(items, page), func(item feedItem, _ int) json.RawMessage {
		return item.body
	}), nil
}

func (s *Service) localFeed(ctx context.Context, followee types.Author, wanted []types.Visibility) []feedItem {
	var items []feedItem
	for _, vis := range wanted {
		posts, err := s.store.ListFeedPosts(ctx, followee.ID, vis)
		if err != nil {
			log.Warn().Err(err).Str("author", followee.ID).Msg("feed posts not loaded")
			continue
		}
		for _, p := range posts {
			if vis == types.VisibilityPublic && strings.Contains(p.Title, githubActivityPrefix) {
				continue
			}
			body, err := json.Marshal(p.ToObject())
			if err != nil {
				continue
			}
			items = append(items, feedItem{published: p.Published, body: body})
		}
	}
	return items
}

func (s *Service) remoteFeed(ctx context.Context, followee types.Author, wanted []types.Visibility) []feedItem {
	u := urlutil.Join(followee.URL, "posts")
	resp, err := s.client.Get(ctx, u)
	if err != nil {
		log.Warn().Err(err).Str("url", u).Msg("remote feed not fetched")
		return nil
	}
	if !resp.OK() {
		log.Warn().Int("status", resp.StatusCode).Str("url", u).Msg("remote feed refused")
		return nil
	}
	raw, err := resp.Raw()
	if err != nil {
		return nil
	}

	var items []feedItem
	for _, p := range raw.GetList("items") {
		vis := types.Visibility(strings.ToUpper(p.MustGetString("visibility")))
		if !lo.Contains(wanted, vis) {
			continue
		}
		if vis == types.VisibilityPublic && strings.Contains(p.MustGetString("title"), githubActivityPrefix) {
			continue
		}
		body, err := json.Marshal(p)
		if err != nil {
			continue
		}
		published, _ := time.Parse(time.RFC3339, p.MustGetString("published"))
		items = append(items, feedItem{published: published, body: body})
	}
	return items
}
