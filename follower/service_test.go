package follower_test

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialdist/fednode/follower"
	"github.com/socialdist/fednode/store"
	"github.com/socialdist/fednode/testutil"
	"github.com/socialdist/fednode/types"
)

func newService(t *testing.T) (*follower.Service, *store.Store) {
	t.Helper()
	s := testutil.NewStore(t)
	reg, client := testutil.Gateway(s)
	return follower.NewService(s, client, reg), s
}

func TestMutualFollowSymmetry(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	a := testutil.LocalAuthor(t, s, "alice")
	b := testutil.LocalAuthor(t, s, "bob")

	_, err := svc.AddFollower(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, svc.IsMutualFollow(ctx, a.URL, b.URL))

	_, err = svc.AddFollower(ctx, a.ID, b.URL)
	require.NoError(t, err)
	assert.True(t, svc.IsMutualFollow(ctx, a.URL, b.URL))
	assert.True(t, svc.IsMutualFollow(ctx, b.URL, a.URL))

	require.NoError(t, svc.RemoveFollower(ctx, a.ID, b.ID))
	assert.False(t, svc.IsMutualFollow(ctx, a.URL, b.URL))
	assert.False(t, svc.IsMutualFollow(ctx, b.URL, a.URL))
}

func TestDuplicateFollowIsConflict(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	a := testutil.LocalAuthor(t, s, "alice")
	b := testutil.LocalAuthor(t, s, "bob")

	_, err := svc.AddFollower(ctx, b.ID, a.ID)
	require.NoError(t, err)
	_, err = svc.AddFollower(ctx, b.ID, a.ID)
	assert.ErrorIs(t, err, types.ErrConflict)

	edges, err := s.GetFollowers(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestFollowThenList(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	a := testutil.LocalAuthor(t, s, "alice")
	b := testutil.LocalAuthor(t, s, "bob")

	followers, err := svc.ListFollowers(ctx, b.ID, true)
	require.NoError(t, err)
	assert.Empty(t, followers.Edges)

	_, err = svc.AddFollower(ctx, b.ID, a.ID)
	require.NoError(t, err)
	followers, err = svc.ListFollowers(ctx, b.ID, true)
	require.NoError(t, err)
	require.Len(t, followers.Edges, 1)
	assert.Equal(t, a.ID, followers.Edges[0].Actor.ID)

	require.NoError(t, svc.RemoveFollower(ctx, b.ID, a.ID))
	followers, err = svc.ListFollowers(ctx, b.ID, true)
	require.NoError(t, err)
	assert.Empty(t, followers.Edges)

	assert.ErrorIs(t, svc.RemoveFollower(ctx, b.ID, a.ID), types.ErrNotFound)
}

func TestAddFollowerRequiresLocalObject(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	a := testutil.LocalAuthor(t, s, "alice")
	remote := testutil.RemoteAuthor(t, s, "http://peer.example/api", "r1", "remote")

	_, err := svc.AddFollower(ctx, remote.ID, a.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = svc.AddFollower(ctx, a.ID, "missing")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestStaleRemoteFollowerPruned(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	peer, peerNode := testutil.PeerNode(t, s, "peer", types.FlavorDefault)
	b := testutil.LocalAuthor(t, s, "bob")
	stale := testutil.RemoteAuthor(t, s, peerNode.URL, "r1", "stale")
	alive := testutil.RemoteAuthor(t, s, peerNode.URL, "r2", "alive")

	_, err := svc.AddFollower(ctx, b.ID, stale.ID)
	require.NoError(t, err)
	_, err = svc.AddFollower(ctx, b.ID, alive.ID)
	require.NoError(t, err)

	peer.Handle(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.EscapedPath(), url.PathEscape(stale.URL)) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})

	followers, err := svc.ListFollowers(ctx, b.ID, true)
	require.NoError(t, err)
	require.Len(t, followers.Edges, 1, "inconclusive answers keep the edge")
	assert.Equal(t, alive.ID, followers.Edges[0].Actor.ID)

	ok, err := s.HasFollower(ctx, b.ID, stale.ID)
	require.NoError(t, err)
	assert.False(t, ok, "pruned from storage")

	reqs := peer.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/api/authors/"+b.ID+"/followers/"+url.PathEscape(stale.URL), reqs[0].Path)
	assert.Equal(t, "peer-user", reqs[0].User)
}

func TestLivenessSkippedForFlavorsWithoutIt(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	peer, peerNode := testutil.PeerNode(t, s, "http", types.FlavorHTTP)
	peer.Handle(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	b := testutil.LocalAuthor(t, s, "bob")
	remote := testutil.RemoteAuthor(t, s, peerNode.URL, "r1", "remote")
	_, err := svc.AddFollower(ctx, b.ID, remote.ID)
	require.NoError(t, err)

	followers, err := svc.ListFollowers(ctx, b.ID, true)
	require.NoError(t, err)
	assert.Len(t, followers.Edges, 1)
	assert.Empty(t, peer.Requests())
}

func TestRemoveFollowerNotifiesPeer(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	peer, peerNode := testutil.PeerNode(t, s, "http", types.FlavorHTTP)
	a := testutil.LocalAuthor(t, s, "alice")
	remote := testutil.RemoteAuthor(t, s, peerNode.URL, "r1", "remote")
	_, err := s.CreateFollower(ctx, remote.ID, a.ID)
	require.NoError(t, err)

	require.NoError(t, svc.RemoveFollower(ctx, remote.ID, a.ID))

	reqs := peer.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].Method)
	assert.Equal(t, "/api/authors/r1/inbox", reqs[0].Path)
	body := reqs[0].JSON()
	assert.Equal(t, "inbox", body["type"])
	items := body["items"].([]any)
	assert.Equal(t, "unfollow", items[0].(map[string]any)["type"])

	ok, err := s.HasFollower(ctx, remote.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoveMissingFollowerTellsNobody(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	peer, peerNode := testutil.PeerNode(t, s, "http", types.FlavorHTTP)
	a := testutil.LocalAuthor(t, s, "alice")
	remote := testutil.RemoteAuthor(t, s, peerNode.URL, "r1", "remote")

	err := svc.RemoveFollower(ctx, remote.ID, a.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Empty(t, peer.Requests())
}

func TestRemoveFollowerSurvivesUnreachablePeer(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	peer, peerNode := testutil.PeerNode(t, s, "lost", types.FlavorLost)
	a := testutil.LocalAuthor(t, s, "alice")
	remote := testutil.RemoteAuthor(t, s, peerNode.URL, "r1", "remote")
	_, err := s.CreateFollower(ctx, remote.ID, a.ID)
	require.NoError(t, err)
	peer.Close()

	assert.NoError(t, svc.RemoveFollower(ctx, remote.ID, a.ID))
}

func TestFollowsAsksPeerForUnknownAuthor(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	peer, peerNode := testutil.PeerNode(t, s, "peer", types.FlavorDefault)
	a := testutil.LocalAuthor(t, s, "alice")
	unknown := peerNode.URL + "/authors/u1"

	assert.True(t, svc.Follows(ctx, a.URL, unknown))
	reqs := peer.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/api/authors/u1/followers/"+url.PathEscape(a.URL), reqs[0].Path)

	assert.False(t, svc.Follows(ctx, unknown, a.URL), "local followers are all recorded locally")
	assert.False(t, svc.IsMutualFollow(ctx, a.URL, unknown))
}

func TestSearchFollowersFirstAnswerWins(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	peer, _ := testutil.PeerNode(t, s, "peer", types.FlavorDefault)
	peer.Handle(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"type":"followers","items":[]}`))
	})
	b := testutil.LocalAuthor(t, s, "bob")

	followers, err := svc.ListFollowers(ctx, b.ID, false)
	require.NoError(t, err)
	assert.Nil(t, followers.Remote, "the local node answers for its own authors")

	followers, err = svc.ListFollowers(ctx, "elsewhere", false)
	require.NoError(t, err)
	require.NotNil(t, followers.Remote)
	assert.JSONEq(t, `{"type":"followers","items":[]}`, string(followers.Remote.Body))
}
