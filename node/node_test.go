package node_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialdist/fednode/node"
	"github.com/socialdist/fednode/testutil"
	"github.com/socialdist/fednode/types"
)

func TestMatchByURLLongestPrefix(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStore(t)
	testutil.Node(t, s, "short", "http://peer.example/api", types.FlavorDefault)
	testutil.Node(t, s, "long", "http://peer.example/api/v2", types.FlavorDefault)
	testutil.Node(t, s, "twin", "http://peer.example/api", types.FlavorDefault)
	reg := node.NewRegistry(s)

	n, target, ok, err := reg.MatchByURL(ctx, "http://peer.example/api/v2/authors/1/")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "long", n.Name)
	assert.Equal(t, "http://peer.example/api/v2/authors/1", target)

	n, _, ok, err = reg.MatchByURL(ctx, "http://peer.example/api/authors/1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "short", n.Name, "ties go to the earlier registration")

	n, _, ok, err = reg.MatchByURL(ctx, testutil.HostAPIURL+"authors/1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.FlavorLocal, n.Flavor)

	_, _, ok, err = reg.MatchByURL(ctx, "http://stranger.example/api/authors/1")
	require.NoError(t, err)
	assert.False(t, ok)

	// a sibling path is not under the base
	_, _, ok, err = reg.MatchByURL(ctx, "http://peer.example/apix/authors/1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistryReadsStorageEachCall(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStore(t)
	reg := node.NewRegistry(s)

	peers, err := reg.Peers(ctx)
	require.NoError(t, err)
	assert.Empty(t, peers)

	testutil.Node(t, s, "late", "http://late.example/api", types.FlavorHTTP)
	peers, err = reg.Peers(ctx)
	require.NoError(t, err)
	require.Len(t, peers, 1)

	late := peers[0]
	late.ID = 0
	late.Disabled = true
	require.NoError(t, s.UpsertNode(ctx, late))
	peers, err = reg.Peers(ctx)
	require.NoError(t, err)
	assert.Empty(t, peers)
}

func TestFlavorOfPrincipal(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewStore(t)
	testutil.Node(t, s, "lost", "http://lost.example/api", types.FlavorLost)
	reg := node.NewRegistry(s)

	f, ok, err := reg.FlavorOfPrincipal(ctx, "lost-user")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, types.FlavorLost, f)

	_, ok, err = reg.FlavorOfPrincipal(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizationHeader(t *testing.T) {
	n := types.Node{DisplayName: "user", Password: "pass"}
	assert.Equal(t, "Basic dXNlcjpwYXNz", node.AuthorizationHeader(n))
}

func TestTransformURL(t *testing.T) {
	lost := types.Node{URL: "http://lost.example/api/", Flavor: types.FlavorLost}
	plain := types.Node{URL: "http://plain.example/api/"}

	tests := []struct {
		name string
		node types.Node
		in   string
		want string
	}{
		{"identity", plain, "http://plain.example/api/authors/1/", "http://plain.example/api/authors/1"},
		{"slash appended", lost, "http://lost.example/api/authors/1", "http://lost.example/api/authors/1/"},
		{"slash before query", lost, "http://lost.example/api/authors?page=2", "http://lost.example/api/authors/?page=2"},
		{"bare host rewritten", lost, "http://lost.example/authors/1", "http://lost.example/api/authors/1/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, node.TransformURL(tt.in, tt.node))
		})
	}
}

func TestSearchURL(t *testing.T) {
	http := types.Node{URL: "http://http.example/api", Flavor: types.FlavorHTTP}
	plain := types.Node{URL: "http://plain.example/api"}

	assert.Equal(t, "http://http.example/api/authors/", node.SearchURL(http, "authors?page=1&size=5", node.ResourceAuthors))
	assert.Equal(t, "http://http.example/api/authors/1/posts/2/comments?page=1",
		node.SearchURL(http, "authors/1/posts/2/comments?page=1", node.ResourceComments))
	assert.Equal(t, "http://plain.example/api/authors/1", node.SearchURL(plain, "/authors/1/", node.ResourceAuthors))
}

func TestTransformPayloadUnwrapsInbox(t *testing.T) {
	lost := types.Node{URL: "http://lost.example/api", Flavor: types.FlavorLost}
	body := []byte(`{"type":"inbox","author":"x","items":[{"type":"follow","summary":"hi"}]}`)

	out := node.TransformPayload(lost, "POST", "http://lost.example/api/authors/1/inbox/", body)
	var got map[string]any
	require.NoError(t, json.Unmarshal(out, &got))
	assert.Equal(t, "Follow", got["type"])
	assert.Equal(t, "hi", got["summary"])

	assert.Equal(t, body, node.TransformPayload(lost, "GET", "http://lost.example/api/authors/1/inbox/", body))
	assert.Equal(t, body, node.TransformPayload(types.Node{}, "POST", "http://x/inbox", body))
}

func TestUnfollowNotice(t *testing.T) {
	actor := types.Author{DisplayName: "ann", URL: testutil.HostAPIURL + "authors/a"}
	object := types.Author{DisplayName: "bob", URL: "http://peer.example/api/authors/b"}

	_, _, ok := node.UnfollowNotice(types.Node{}, actor, object)
	assert.False(t, ok)

	target, body, ok := node.UnfollowNotice(types.Node{Flavor: types.FlavorLost}, actor, object)
	require.True(t, ok)
	assert.Equal(t, "http://peer.example/api/authors/b/inbox/", target)
	assert.Equal(t, "Unfollow", body.(map[string]any)["type"])

	target, body, ok = node.UnfollowNotice(types.Node{Flavor: types.FlavorHTTP}, actor, object)
	require.True(t, ok)
	assert.Equal(t, "http://peer.example/api/authors/b/inbox", target)
	env := body.(types.Envelope)
	assert.Equal(t, "inbox", env.Type)
	assert.Equal(t, "http://peer.example/api/authors/b", env.Author)
	assert.Len(t, env.Items, 1)
}

func TestQuirks(t *testing.T) {
	assert.Equal(t, "comments", node.CommentsKey(types.FlavorLost))
	assert.Equal(t, "items", node.CommentsKey(types.FlavorDefault))
	assert.False(t, node.LivenessEnabled(types.Node{Flavor: types.FlavorHTTP}))
	assert.True(t, node.LivenessEnabled(types.Node{}))

	item := map[string]any{}
	node.CommentPostRef(types.Node{Flavor: types.FlavorAttack}, item, "http://p/1")
	assert.Equal(t, map[string]any{"post": map[string]any{"id": "http://p/1"}}, item)
}
