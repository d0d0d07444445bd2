// Package inbox routes inbox deliveries to their owning node and stores the ones addressed here.
package inbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/socialdist/fednode/fedclient"
	"github.com/socialdist/fednode/identity"
	"github.com/socialdist/fednode/node"
	"github.com/socialdist/fednode/store"
	"github.com/socialdist/fednode/stream"
	"github.com/socialdist/fednode/types"
	"github.com/socialdist/fednode/urlutil"
)

type Service struct {
	store     *store.Store
	client    *fedclient.Client
	nodes     *node.Registry
	identity  *identity.Service
	publisher *stream.Publisher
}

func NewService(
	store *store.Store,
	client *fedclient.Client,
	nodes *node.Registry,
	identity *identity.Service,
	publisher *stream.Publisher,
) *Service {
	return &Service{
		store,
		client,
		nodes,
		identity,
		publisher,
	}
}

// Result of a delivery: a stored entry, a peer's answer to a forward, or neither (unfollow).
type Result struct {
	Entry     *types.InboxEntry
	Forwarded *fedclient.Response
}

// Target is where an author's inbox lives.
type Target struct {
	Author types.Author
	URL    string
	Local  bool
}

// Resolve finds the owner of authorID's inbox. With all, peers are searched for authors unknown here.
func (s *Service) Resolve(ctx context.Context, authorID string, all bool) (Target, error) {
	ctx, span := tracer.Start(ctx, "Inbox.Service.Resolve")
	defer span.End()

	author, err := s.store.GetAuthor(ctx, authorID)
	if err == nil && !author.IsNode {
		return Target{Author: author, URL: urlutil.Standardize(author.URL), Local: author.Local()}, nil
	}
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		span.RecordError(err)
		return Target{}, err
	}
	if !all {
		return Target{}, errors.Wrapf(types.ErrNotFound, "author %s", authorID)
	}

	u, err := s.client.ResolveAuthorURL(ctx, authorID)
	if err != nil {
		span.RecordError(err)
		return Target{}, err
	}
	return Target{URL: u}, nil
}

// Dispatch delivers body to authorID's inbox. body is an envelope or a bare typed item.
func (s *Service) Dispatch(ctx context.Context, authorID string, body []byte, all bool) (Result, error) {
	ctx, span := tracer.Start(ctx, "Inbox.Service.Dispatch")
	defer span.End()

	item, err := unwrap(body)
	if err != nil {
		return Result{}, err
	}
	itemType, err := types.ParseInboxItemType(item.MustGetString("type"))
	if err != nil {
		return Result{}, errors.Wrap(err, "unsupported inbox type")
	}

	target, err := s.Resolve(ctx, authorID, all)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}

	if !target.Local {
		resp, err := s.forward(ctx, target, itemType, item)
		if err != nil {
			span.RecordError(err)
			return Result{}, err
		}
		return Result{Forwarded: resp}, nil
	}

	var entry types.InboxEntry
	switch itemType {
	case types.InboxPost:
		entry, err = s.receivePost(ctx, target.Author, item)
	case types.InboxFollow:
		entry, err = s.receiveFollow(ctx, target.Author, item)
	case types.InboxLike:
		entry, err = s.receiveLike(ctx, target.Author, item)
	case types.InboxComment:
		entry, err = s.receiveComment(ctx, target.Author, item)
	case types.InboxUnfollow:
		return Result{}, s.receiveUnfollow(ctx, item)
	default:
		return Result{}, errors.Wrapf(types.ErrValidation, "unsupported inbox type %q", itemType)
	}
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}

	s.publisher.Publish(ctx, target.Author.ID, stream.Event{
		Type:   itemType,
		Author: target.URL,
		Entry:  item,
	})
	return Result{Entry: &entry}, nil
}

func unwrap(body []byte) (*types.RawObj, error) {
	raw, err := types.LoadAsRawObj(body)
	if err != nil {
		return nil, errors.Wrapf(types.ErrValidation, "inbox body is not a JSON object: %v", err)
	}
	if raw.Has("items") {
		items := raw.GetList("items")
		if len(items) == 0 {
			return nil, errors.Wrap(types.ErrValidation, "inbox envelope has no items")
		}
		return items[0], nil
	}
	if !raw.Has("type") {
		return nil, errors.Wrap(types.ErrValidation, "inbox item has no type")
	}
	return raw, nil
}

// forward hands the delivery to the node owning the inbox. A follow also leaves a local mirror of
// the edge since some peers never echo the accept back.
func (s *Service) forward(ctx context.Context, target Target, itemType types.InboxItemType, item *types.RawObj) (*fedclient.Response, error) {
	ctx, span := tracer.Start(ctx, "Inbox.Service.forward")
	defer span.End()

	if itemType == types.InboxFollow {
		if err := s.mirrorFollow(ctx, item); err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	envelope := types.NewEnvelope(target.URL, item)
	inboxURL := urlutil.Join(target.URL, "inbox")
	resp, err := s.client.Post(ctx, inboxURL, envelope)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, types.ErrNotFound) {
			return nil, errors.Wrapf(types.ErrUpstreamUnavailable, "no node serves %s", inboxURL)
		}
		return nil, err
	}
	log.Info().Str("url", inboxURL).Int("status", resp.StatusCode).Str("type", string(itemType)).Msg("inbox item forwarded")
	return resp, nil
}

func (s *Service) mirrorFollow(ctx context.Context, item *types.RawObj) error {
	actorObj, _ := item.GetRaw("actor")
	actor, err := s.identity.ResolveOrCopyRaw(ctx, actorObj)
	if err != nil {
		return errors.Wrap(err, "follow actor")
	}
	objectObj, _ := item.GetRaw("object")
	object, err := s.identity.ResolveOrCopyRaw(ctx, objectObj)
	if err != nil {
		return errors.Wrap(err, "follow object")
	}

	if _, err := s.store.CreateFollower(ctx, object.ID, actor.ID); err != nil && !errors.Is(err, types.ErrConflict) {
		return err
	}
	return nil
}

func (s *Service) receivePost(ctx context.Context, owner types.Author, item *types.RawObj) (types.InboxEntry, error) {
	postURL := urlutil.Standardize(item.MustGetString("id"))
	if postURL == "" {
		return types.InboxEntry{}, errors.Wrap(types.ErrValidation, "post item has no id")
	}
	return s.store.CreatePostEntry(ctx, owner.ID, postURL)
}

func (s *Service) receiveFollow(ctx context.Context, owner types.Author, item *types.RawObj) (types.InboxEntry, error) {
	// the object must already be ours; nothing is copied for a follow that gets rejected
	objectURL, _ := item.GetString("object.id")
	if objectURL == "" {
		return types.InboxEntry{}, errors.Wrap(types.ErrValidation, "follow object has no id")
	}
	object, err := s.store.GetLocalAuthor(ctx, urlutil.ExtractID(objectURL))
	if err != nil {
		return types.InboxEntry{}, errors.Wrap(err, "follow object")
	}
	if object.ID != owner.ID {
		return types.InboxEntry{}, errors.Wrapf(types.ErrValidation, "follow of %s delivered to %s", object.ID, owner.ID)
	}

	actorObj, _ := item.GetRaw("actor")
	actor, err := s.identity.ResolveOrCopyRaw(ctx, actorObj)
	if err != nil {
		return types.InboxEntry{}, errors.Wrap(err, "follow actor")
	}

	return s.store.CreateFollowEntry(ctx, owner.ID, types.FollowRequest{
		ObjectID: object.ID,
		Object:   object,
		ActorID:  actor.ID,
		Actor:    actor,
	})
}

func (s *Service) receiveLike(ctx context.Context, owner types.Author, item *types.RawObj) (types.InboxEntry, error) {
	authorURL, ok := item.GetString("author.url")
	if !ok || authorURL == "" {
		authorURL, ok = item.GetString("author.id")
	}
	objectURL, _ := item.GetString("object")
	if !ok || authorURL == "" || objectURL == "" {
		return types.InboxEntry{}, errors.Wrap(types.ErrValidation, "like needs author.url and object")
	}

	return s.store.CreateLikeEntry(ctx, owner.ID, types.Like{
		ID:        uuid.NewString(),
		Author:    urlutil.Standardize(authorURL),
		Object:    urlutil.Standardize(objectURL),
		Published: publishedOf(item),
	})
}

func (s *Service) receiveComment(ctx context.Context, owner types.Author, item *types.RawObj) (types.InboxEntry, error) {
	postURL, _ := item.GetString("id")
	if postURL == "" {
		postURL, _ = item.GetString("post.id")
	}
	if postURL == "" {
		return types.InboxEntry{}, errors.Wrap(types.ErrValidation, "comment item names no post")
	}

	post, err := s.store.GetPost(ctx, urlutil.ExtractID(postURL))
	if err != nil {
		return types.InboxEntry{}, err
	}
	if post.AuthorID != owner.ID {
		return types.InboxEntry{}, errors.Wrapf(types.ErrValidation, "post %s does not belong to %s", post.ID, owner.ID)
	}

	authorObj, ok := item.GetRaw("author")
	if !ok {
		return types.InboxEntry{}, errors.Wrap(types.ErrValidation, "comment author is required")
	}
	author, err := s.identity.ResolveOrCopyRaw(ctx, authorObj)
	if err != nil {
		return types.InboxEntry{}, errors.Wrap(err, "comment author")
	}

	text := item.MustGetString("comment")
	if text == "" {
		return types.InboxEntry{}, errors.Wrap(types.ErrValidation, "comment content is required")
	}
	contentType, err := types.ParseContentType(item.MustGetString("contentType"))
	if err != nil {
		return types.InboxEntry{}, err
	}

	comment := types.Comment{
		ID:          uuid.NewString(),
		PostID:      post.ID,
		AuthorID:    author.ID,
		Text:        text,
		ContentType: contentType,
		Published:   publishedOf(item),
	}
	commentURL := types.CommentURL(types.PostURL(post.Author, post.ID), comment.ID)
	return s.store.CreateCommentEntry(ctx, owner.ID, comment, urlutil.Standardize(author.URL), commentURL)
}

func (s *Service) receiveUnfollow(ctx context.Context, item *types.RawObj) error {
	actorID := urlutil.ExtractID(item.MustGetString("actor.id"))
	objectID := urlutil.ExtractID(item.MustGetString("object.id"))
	if actorID == "" || objectID == "" {
		return errors.Wrap(types.ErrValidation, "unfollow needs actor.id and object.id")
	}

	actor, err := s.store.GetAuthor(ctx, actorID)
	if err != nil {
		return err
	}
	object, err := s.store.GetAuthor(ctx, objectID)
	if err != nil {
		return err
	}
	return s.store.DeleteFollower(ctx, object.ID, actor.ID)
}

func publishedOf(item *types.RawObj) time.Time {
	if s, ok := item.GetString("published"); ok {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return time.Now()
}

// Clear empties requester's own inbox.
func (s *Service) Clear(ctx context.Context, requester types.Author, authorID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "Inbox.Service.Clear")
	defer span.End()

	if requester.ID != authorID {
		return 0, errors.Wrap(types.ErrUnauthorized, "only the owner can clear an inbox")
	}
	n, err := s.store.ClearInbox(ctx, authorID)
	if err != nil {
		span.RecordError(err)
	}
	return n, err
}

// Listing is a rendered inbox, or a peer's answer when the inbox lives elsewhere.
type Listing struct {
	Type      string              `json:"type"`
	Author    string              `json:"author"`
	Items     []json.RawMessage   `json:"items"`
	Forwarded *fedclient.Response `json:"-"`
}

// List renders a page of authorID's inbox. Posts and comments are fetched live from their nodes.
func (s *Service) List(ctx context.Context, requester types.Author, authorID string, page types.Page) (Listing, error) {
	ctx, span := tracer.Start(ctx, "Inbox.Service.List")
	defer span.End()

	target, err := s.Resolve(ctx, authorID, false)
	if err != nil {
		span.RecordError(err)
		return Listing{}, err
	}

	if !target.Local {
		resp, err := s.client.Get(ctx, urlutil.Join(target.URL, "inbox"))
		if err != nil {
			span.RecordError(err)
			return Listing{}, err
		}
		return Listing{Forwarded: resp}, nil
	}

	if requester.ID != target.Author.ID && !requester.IsNode {
		return Listing{}, errors.Wrap(types.ErrUnauthorized, "only the owner can read an inbox")
	}

	entries, err := s.store.ListInbox(ctx, target.Author.ID, page)
	if err != nil {
		span.RecordError(err)
		return Listing{}, err
	}

	items := make([]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		rendered, err := json.Marshal(s.render(ctx, entry))
		if err != nil {
			log.Warn().Err(err).Uint("entry", entry.ID).Msg("inbox entry not rendered")
			continue
		}
		items = append(items, rendered)
	}
	return Listing{Type: "inbox", Author: target.URL, Items: items}, nil
}
