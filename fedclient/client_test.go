package fedclient_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialdist/fednode/fedclient"
	"github.com/socialdist/fednode/node"
	"github.com/socialdist/fednode/store"
	"github.com/socialdist/fednode/testutil"
	"github.com/socialdist/fednode/types"
)

func newClient(t *testing.T, timeout time.Duration) (*fedclient.Client, *nodeFixture) {
	t.Helper()
	s := testutil.NewStore(t)
	reg := node.NewRegistry(s)
	client := fedclient.NewClient(nil, reg, types.NodeConfig{HostAPIURL: testutil.HostAPIURL, FetchTimeout: timeout}, fedclient.NewMetrics())
	return client, &nodeFixture{t: t, s: s}
}

type nodeFixture struct {
	t *testing.T
	s *store.Store
}

func (f *nodeFixture) peer(name string, flavor types.Flavor) *testutil.Peer {
	p := testutil.NewPeer(f.t)
	n := types.Node{Name: name, DisplayName: name + "-user", URL: p.URL + "/api/", Password: name + "-secret", Flavor: flavor}
	require.NoError(f.t, f.s.UpsertNode(context.Background(), n))
	return p
}

func TestFetchAttachesNodeCredentials(t *testing.T) {
	client, f := newClient(t, 0)
	p := f.peer("alpha", types.FlavorDefault)
	p.Handle(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte(`{"hello":"world"}`))
	})

	resp, err := client.Get(context.Background(), p.URL+"/api/authors/1/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode, "status is passed back unchanged")
	assert.Equal(t, `{"hello":"world"}`, string(resp.Body))
	assert.Equal(t, "alpha", resp.Node.Name)

	reqs := p.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/api/authors/1", reqs[0].Path)
	assert.Equal(t, "alpha-user", reqs[0].User)
	assert.Equal(t, "alpha-secret", reqs[0].Password)
}

func TestFetchNoMatchingNode(t *testing.T) {
	client, _ := newClient(t, 0)

	_, err := client.Get(context.Background(), "http://nowhere.example/api/authors/1")
	assert.ErrorIs(t, err, fedclient.ErrNoMatchingNode)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestFetchAdaptsForFlavor(t *testing.T) {
	client, f := newClient(t, 0)
	p := f.peer("lost", types.FlavorLost)

	_, err := client.Post(context.Background(), p.URL+"/api/authors/1/inbox", map[string]any{
		"type":   "inbox",
		"author": p.URL + "/api/authors/1",
		"items":  []any{map[string]any{"type": "like", "object": "x"}},
	})
	require.NoError(t, err)

	reqs := p.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/api/authors/1/inbox/", reqs[0].Path)
	assert.Equal(t, "Like", reqs[0].JSON()["type"])
	assert.Equal(t, "x", reqs[0].JSON()["object"])
}

func TestFetchTimeoutIsUpstreamUnavailable(t *testing.T) {
	client, f := newClient(t, 50*time.Millisecond)
	p := f.peer("slow", types.FlavorDefault)
	p.Handle(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	})

	_, err := client.Get(context.Background(), p.URL+"/api/authors/1")
	assert.ErrorIs(t, err, types.ErrUpstreamUnavailable)
}

func TestSearchAllFirstHitWins(t *testing.T) {
	client, f := newClient(t, 0)
	miss := f.peer("miss", types.FlavorDefault)
	miss.Handle(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	hit := f.peer("hit", types.FlavorDefault)
	hit.Handle(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"type":"author","id":"` + "http://" + r.Host + `/api/authors/7"}`))
	})
	late := f.peer("late", types.FlavorDefault)

	resp, err := client.SearchAll(context.Background(), node.ResourceAuthors, "authors/7?all=true&page=1")
	require.NoError(t, err)
	assert.Equal(t, "hit", resp.Node.Name)
	assert.Len(t, miss.Requests(), 1)
	assert.Empty(t, late.Requests())
	assert.Equal(t, "page=1", hit.Requests()[0].RawQuery, "all is never forwarded")

	found, err := client.ResolveAuthorURL(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, hit.URL+"/api/authors/7", found)
}

func TestSearchAllNotFound(t *testing.T) {
	client, f := newClient(t, 0)
	p := f.peer("miss", types.FlavorDefault)
	p.Handle(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.SearchAll(context.Background(), node.ResourcePosts, "authors/1/posts/2")
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Len(t, client.SearchEach(context.Background(), node.ResourcePosts, "authors/1/posts/2"), 0)
}
