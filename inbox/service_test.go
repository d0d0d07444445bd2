package inbox_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialdist/fednode/identity"
	"github.com/socialdist/fednode/inbox"
	"github.com/socialdist/fednode/store"
	"github.com/socialdist/fednode/stream"
	"github.com/socialdist/fednode/testutil"
	"github.com/socialdist/fednode/types"
)

func newService(t *testing.T) (*inbox.Service, *store.Store) {
	t.Helper()
	s := testutil.NewStore(t)
	reg, client := testutil.Gateway(s)
	return inbox.NewService(s, client, reg, identity.NewService(s), stream.NewPublisher(nil)), s
}

func createPost(t *testing.T, s *store.Store, author types.Author, visibility types.Visibility) types.Post {
	t.Helper()
	post, err := s.CreatePost(context.Background(), types.Post{
		ID:          uuid.NewString(),
		AuthorID:    author.ID,
		Author:      author,
		Title:       "hello",
		Content:     "world",
		ContentType: types.ContentPlain,
		Visibility:  visibility,
		Published:   time.Now(),
	})
	require.NoError(t, err)
	return post
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestLikeIsUniquePerAuthorAndObject(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	owner := testutil.LocalAuthor(t, s, "alice")
	post := createPost(t, s, owner, types.VisibilityPublic)
	postURL := types.PostURL(owner, post.ID)

	like := mustJSON(t, map[string]any{
		"type":   "inbox",
		"author": owner.URL,
		"items": []any{map[string]any{
			"type":   "Like",
			"author": map[string]any{"url": "http://peer.test/api/authors/x"},
			"object": postURL,
		}},
	})

	result, err := svc.Dispatch(ctx, owner.ID, like, false)
	require.NoError(t, err)
	require.NotNil(t, result.Entry)
	assert.Equal(t, types.InboxLike, result.Entry.Type)

	_, err = svc.Dispatch(ctx, owner.ID, like, false)
	assert.ErrorIs(t, err, types.ErrConflict)

	count, err := s.CountLikes(ctx, "http://peer.test/api/authors/x", postURL)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	entries, err := s.CountInbox(ctx, owner.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, entries)
}

func TestFanOutReachesLocalAndRemoteFollowers(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	peer, _ := testutil.PeerNode(t, s, "peer", types.FlavorDefault)

	author := testutil.LocalAuthor(t, s, "alice")
	local := testutil.LocalAuthor(t, s, "bob")
	remote := testutil.RemoteAuthor(t, s, peer.URL+"/api", "f2", "carol")

	_, err := s.CreateFollower(ctx, author.ID, local.ID)
	require.NoError(t, err)
	_, err = s.CreateFollower(ctx, author.ID, remote.ID)
	require.NoError(t, err)

	post := createPost(t, s, author, types.VisibilityPublic)
	assert.Equal(t, 2, svc.FanOutPost(ctx, post))

	requests := peer.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, http.MethodPost, requests[0].Method)
	assert.Equal(t, "/api/authors/f2/inbox", requests[0].Path)
	assert.Equal(t, "peer-user", requests[0].User)

	body := requests[0].JSON()
	assert.Equal(t, "inbox", body["type"])
	items, _ := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, types.PostURL(author, post.ID), items[0].(map[string]any)["id"])

	count, err := s.CountInbox(ctx, local.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestFanOutSurvivesUnreachableFollower(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	peer, _ := testutil.PeerNode(t, s, "peer", types.FlavorDefault)
	peer.Handle(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	author := testutil.LocalAuthor(t, s, "alice")
	local := testutil.LocalAuthor(t, s, "bob")
	remote := testutil.RemoteAuthor(t, s, peer.URL+"/api", "f2", "carol")
	stranger := testutil.RemoteAuthor(t, s, "http://nowhere.test/api", "f3", "dave")
	for _, f := range []types.Author{remote, stranger, local} {
		_, err := s.CreateFollower(ctx, author.ID, f.ID)
		require.NoError(t, err)
	}

	post := createPost(t, s, author, types.VisibilityFriends)
	assert.Equal(t, 1, svc.FanOutPost(ctx, post))

	count, err := s.CountInbox(ctx, local.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestFollowRequestIsStored(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	owner := testutil.LocalAuthor(t, s, "alice")

	follow := mustJSON(t, map[string]any{
		"type":    "follow",
		"summary": "carol wants to follow alice",
		"actor": map[string]any{
			"type":        "author",
			"id":          "http://peer.test/api/authors/c1",
			"host":        "http://peer.test/api/",
			"displayName": "carol",
			"url":         "http://peer.test/api/authors/c1",
		},
		"object": owner.ToObject(),
	})

	result, err := svc.Dispatch(ctx, owner.ID, follow, false)
	require.NoError(t, err)
	require.NotNil(t, result.Entry)
	assert.Equal(t, types.InboxFollow, result.Entry.Type)

	actor, err := s.GetAuthor(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, actor.IsRemote)

	listing, err := svc.List(ctx, owner, owner.ID, types.NewPage("", "", types.DefaultPageSize, types.MaxPageSize))
	require.NoError(t, err)
	require.Len(t, listing.Items, 1)

	var item map[string]any
	require.NoError(t, json.Unmarshal(listing.Items[0], &item))
	assert.Equal(t, "follow", item["type"])
	assert.Equal(t, "carol wants to follow alice", item["summary"])
}

func TestFollowForAnotherAuthorIsRejected(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	owner := testutil.LocalAuthor(t, s, "alice")
	other := testutil.LocalAuthor(t, s, "bob")

	follow := mustJSON(t, map[string]any{
		"type":   "follow",
		"actor":  owner.ToObject(),
		"object": other.ToObject(),
	})
	_, err := svc.Dispatch(ctx, owner.ID, follow, false)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestRejectedFollowCopiesNothing(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	owner := testutil.LocalAuthor(t, s, "alice")

	follow := mustJSON(t, map[string]any{
		"type": "follow",
		"actor": map[string]any{
			"type":        "author",
			"id":          "http://peer.test/api/authors/c1",
			"host":        "http://peer.test/api/",
			"displayName": "carol",
			"url":         "http://peer.test/api/authors/c1",
		},
		"object": map[string]any{
			"type":        "author",
			"id":          "http://other.test/api/authors/zz",
			"host":        "http://other.test/api/",
			"displayName": "zed",
			"url":         "http://other.test/api/authors/zz",
		},
	})
	_, err := svc.Dispatch(ctx, owner.ID, follow, false)
	assert.ErrorIs(t, err, types.ErrNotFound)

	_, err = s.GetAuthor(ctx, "c1")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = s.GetAuthor(ctx, "zz")
	assert.ErrorIs(t, err, types.ErrNotFound)

	count, err := s.CountInbox(ctx, owner.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCommentOnLocalPost(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	owner := testutil.LocalAuthor(t, s, "alice")
	post := createPost(t, s, owner, types.VisibilityPublic)

	comment := mustJSON(t, map[string]any{
		"type":        "comment",
		"id":          types.PostURL(owner, post.ID),
		"comment":     "nice",
		"contentType": "text/markdown",
		"author": map[string]any{
			"type":        "author",
			"id":          "http://peer.test/api/authors/c1",
			"host":        "http://peer.test/api/",
			"displayName": "carol",
			"url":         "http://peer.test/api/authors/c1",
		},
	})

	result, err := svc.Dispatch(ctx, owner.ID, comment, false)
	require.NoError(t, err)
	require.NotNil(t, result.Entry)

	comments, err := s.ListComments(ctx, post.ID, types.NewPage("", "", types.DefaultPageSize, types.MaxPageSize))
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "nice", comments[0].Text)
	assert.Equal(t, types.ContentMarkdown, comments[0].ContentType)

	updated, err := s.GetPost(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.CommentCount)

	listing, err := svc.List(ctx, owner, owner.ID, types.NewPage("", "", types.DefaultPageSize, types.MaxPageSize))
	require.NoError(t, err)
	require.Len(t, listing.Items, 1)
	var item map[string]any
	require.NoError(t, json.Unmarshal(listing.Items[0], &item))
	assert.Equal(t, "comment", item["type"])
	assert.Equal(t, "nice", item["comment"])
}

func TestUnfollowRemovesEdgeWithoutEntry(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	owner := testutil.LocalAuthor(t, s, "alice")
	remote := testutil.RemoteAuthor(t, s, "http://peer.test/api", "c1", "carol")
	_, err := s.CreateFollower(ctx, owner.ID, remote.ID)
	require.NoError(t, err)

	unfollow := mustJSON(t, map[string]any{
		"type":   "Unfollow",
		"actor":  map[string]any{"id": remote.URL},
		"object": map[string]any{"id": owner.URL},
	})
	result, err := svc.Dispatch(ctx, owner.ID, unfollow, false)
	require.NoError(t, err)
	assert.Nil(t, result.Entry)

	has, err := s.HasFollower(ctx, owner.ID, remote.ID)
	require.NoError(t, err)
	assert.False(t, has)

	count, err := s.CountInbox(ctx, owner.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUnknownItemType(t *testing.T) {
	svc, s := newService(t)
	owner := testutil.LocalAuthor(t, s, "alice")

	_, err := svc.Dispatch(context.Background(), owner.ID, []byte(`{"type":"share","id":"x"}`), false)
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = svc.Dispatch(context.Background(), owner.ID, []byte(`not json`), false)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestUnknownAuthor(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Dispatch(context.Background(), "ghost", []byte(`{"type":"post","id":"http://x/posts/1"}`), false)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestDeliveryToRemoteAuthorIsForwarded(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	peer, _ := testutil.PeerNode(t, s, "peer", types.FlavorDefault)
	peer.Handle(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"accepted":true}`))
	})

	local := testutil.LocalAuthor(t, s, "alice")
	remote := testutil.RemoteAuthor(t, s, peer.URL+"/api", "r1", "carol")

	follow := mustJSON(t, map[string]any{
		"type":   "follow",
		"actor":  local.ToObject(),
		"object": remote.ToObject(),
	})
	result, err := svc.Dispatch(ctx, remote.ID, follow, false)
	require.NoError(t, err)
	require.NotNil(t, result.Forwarded)
	assert.Equal(t, http.StatusCreated, result.Forwarded.StatusCode)
	assert.JSONEq(t, `{"accepted":true}`, string(result.Forwarded.Body))

	requests := peer.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, "/api/authors/r1/inbox", requests[0].Path)
	assert.Equal(t, "inbox", requests[0].JSON()["type"])

	has, err := s.HasFollower(ctx, remote.ID, local.ID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestDeliveryToUnknownAuthorSearchesPeers(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	peer, _ := testutil.PeerNode(t, s, "peer", types.FlavorDefault)
	peer.Handle(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write([]byte(`{"type":"author","id":"` + "http://" + r.Host + `/api/authors/z9"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	})

	result, err := svc.Dispatch(ctx, "z9", []byte(`{"type":"post","id":"http://x/posts/1"}`), true)
	require.NoError(t, err)
	require.NotNil(t, result.Forwarded)

	requests := peer.Requests()
	require.Len(t, requests, 2)
	assert.Equal(t, "/api/authors/z9", requests[0].Path)
	assert.Equal(t, "/api/authors/z9/inbox", requests[1].Path)
}

func TestListRendersMissingPostPlaceholder(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	peer, _ := testutil.PeerNode(t, s, "peer", types.FlavorDefault)
	peer.Handle(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	owner := testutil.LocalAuthor(t, s, "alice")

	_, err := svc.Dispatch(ctx, owner.ID, mustJSON(t, map[string]any{
		"type": "post",
		"id":   peer.URL + "/api/authors/r1/posts/p1",
	}), false)
	require.NoError(t, err)

	listing, err := svc.List(ctx, owner, owner.ID, types.NewPage("", "", types.DefaultPageSize, types.MaxPageSize))
	require.NoError(t, err)
	require.Len(t, listing.Items, 1)
	assert.JSONEq(t, `{"type":"post","post":{"error":"Post not found"}}`, string(listing.Items[0]))
}

func TestInboxIsPrivate(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	owner := testutil.LocalAuthor(t, s, "alice")
	other := testutil.LocalAuthor(t, s, "bob")
	page := types.NewPage("", "", types.DefaultPageSize, types.MaxPageSize)

	_, err := svc.List(ctx, other, owner.ID, page)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	_, err = svc.List(ctx, types.Author{ID: "node", IsNode: true}, owner.ID, page)
	assert.NoError(t, err)

	_, err = svc.Clear(ctx, other, owner.ID)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
	_, err = svc.Clear(ctx, owner, owner.ID)
	assert.NoError(t, err)
}
