// Package testutil holds fixtures shared by package tests: a migrated sqlite store and fake peers.
package testutil

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/socialdist/fednode/fedclient"
	"github.com/socialdist/fednode/node"
	"github.com/socialdist/fednode/store"
	"github.com/socialdist/fednode/types"
)

// HostAPIURL is the base URL the node under test serves.
const HostAPIURL = "http://local.test/api/"

// NewStore opens a fresh migrated sqlite database under t.TempDir().
func NewStore(t *testing.T) *store.Store {
	t.Helper()

	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "fednode.db"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := store.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	db.Create(&types.Node{Name: "local", DisplayName: "local", URL: HostAPIURL, Flavor: types.FlavorLocal})
	return store.NewStore(db)
}

// LocalAuthor creates an active local author.
func LocalAuthor(t *testing.T, s *store.Store, name string) types.Author {
	t.Helper()

	id := uuid.NewString()
	author, err := s.CreateAuthor(context.Background(), types.Author{
		ID:          id,
		DisplayName: name,
		URL:         types.LocalAuthorURL(HostAPIURL, id),
		Host:        HostAPIURL,
		Github:      "https://github.com/" + name,
		IsActive:    true,
	})
	if err != nil {
		t.Fatalf("create author %s: %v", name, err)
	}
	return author
}

// RemoteAuthor creates a shadow copy of an author living under peerURL.
func RemoteAuthor(t *testing.T, s *store.Store, peerURL, id, name string) types.Author {
	t.Helper()

	author := types.Author{
		ID:          id,
		DisplayName: name,
		URL:         peerURL + "/authors/" + id,
		Host:        peerURL + "/",
		IsRemote:    true,
		IsActive:    true,
	}
	if _, err := s.InsertAuthorIfAbsent(context.Background(), author); err != nil {
		t.Fatalf("create remote author %s: %v", name, err)
	}
	return author
}

// Node registers a peer.
func Node(t *testing.T, s *store.Store, name, url string, flavor types.Flavor) types.Node {
	t.Helper()

	node := types.Node{Name: name, DisplayName: name + "-user", URL: url, Password: name + "-secret", Flavor: flavor}
	if err := s.UpsertNode(context.Background(), node); err != nil {
		t.Fatalf("create node %s: %v", name, err)
	}
	return node
}

// Gateway returns a registry and gateway over s, without cache or metrics.
func Gateway(s *store.Store) (*node.Registry, *fedclient.Client) {
	reg := node.NewRegistry(s)
	return reg, fedclient.NewClient(nil, reg, types.NodeConfig{HostAPIURL: HostAPIURL, FetchTimeout: time.Second}, nil)
}

// PeerNode starts a peer and registers it with its api under /api.
func PeerNode(t *testing.T, s *store.Store, name string, flavor types.Flavor) (*Peer, types.Node) {
	t.Helper()

	p := NewPeer(t)
	return p, Node(t, s, name, p.URL+"/api", flavor)
}

// Request is what a Peer saw.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	User     string
	Password string
	Body     []byte
}

// JSON decodes the recorded body.
func (r Request) JSON() map[string]any {
	var m map[string]any
	json.Unmarshal(r.Body, &m)
	return m
}

// Peer is a fake remote node that records every request it serves.
type Peer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []Request
	handler  http.HandlerFunc
}

// NewPeer starts a peer answering 200 {} until Handle is called.
func NewPeer(t *testing.T) *Peer {
	t.Helper()

	p := &Peer{}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.Close)
	return p
}

// Handle replaces the response logic.
func (p *Peer) Handle(h http.HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handler = h
}

// Requests returns a copy of what was served so far.
func (p *Peer) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Request(nil), p.requests...)
}

func (p *Peer) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	user, pass, _ := r.BasicAuth()

	p.mu.Lock()
	p.requests = append(p.requests, Request{
		Method:   r.Method,
		Path:     r.URL.EscapedPath(),
		RawQuery: r.URL.RawQuery,
		User:     user,
		Password: pass,
		Body:     body,
	})
	h := p.handler
	p.mu.Unlock()

	if h != nil {
		h(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte("{}"))
}
