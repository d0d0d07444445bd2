// Package fedclient is the single outbound path to peer nodes.
package fedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/socialdist/fednode/node"
	"github.com/socialdist/fednode/types"
	"github.com/socialdist/fednode/urlutil"
)

var (
	UserAgent = "fednode/1.0"

	// ErrNoMatchingNode is returned when no registered node serves a URL.
	ErrNoMatchingNode = errors.Wrap(types.ErrNotFound, "no node serves this url")
)

const defaultTimeout = 10 * time.Second

var tracer = otel.Tracer("fedclient")

// Response is a peer's answer, passed back unchanged.
type Response struct {
	Node       types.Node
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) OK() bool {
	return r.StatusCode == http.StatusOK
}

// Raw parses the body as a loose JSON object.
func (r *Response) Raw() (*types.RawObj, error) {
	return types.LoadAsRawObj(r.Body)
}

func (r *Response) Decode(v any) error {
	return errors.Wrapf(json.Unmarshal(r.Body, v), "decode response of %s", r.URL)
}

type Client struct {
	mc      *memcache.Client
	nodes   *node.Registry
	config  types.NodeConfig
	http    *http.Client
	metrics *Metrics
}

// NewClient builds the gateway. mc may be nil, which disables the owner cache.
func NewClient(
	mc *memcache.Client,
	nodes *node.Registry,
	config types.NodeConfig,
	metrics *Metrics,
) *Client {
	timeout := config.FetchTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		mc:      mc,
		nodes:   nodes,
		config:  config,
		http:    &http.Client{Timeout: timeout},
		metrics: metrics,
	}
}

// Fetch sends a request to whichever node serves u. body may be nil, []byte or any JSON-encodable value.
func (c *Client) Fetch(ctx context.Context, method, u string, body any) (*Response, error) {
	ctx, span := tracer.Start(ctx, "FedClient.Fetch")
	defer span.End()

	n, target, ok, err := c.nodes.MatchByURL(ctx, u)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(ErrNoMatchingNode, "%s", u)
	}
	return c.FetchFrom(ctx, n, method, target, body)
}

func (c *Client) Get(ctx context.Context, u string) (*Response, error) {
	return c.Fetch(ctx, http.MethodGet, u, nil)
}

func (c *Client) Post(ctx context.Context, u string, body any) (*Response, error) {
	return c.Fetch(ctx, http.MethodPost, u, body)
}

// FetchFrom sends a request to an already chosen node. target must already be adapted for n.
func (c *Client) FetchFrom(ctx context.Context, n types.Node, method, target string, body any) (*Response, error) {
	ctx, span := tracer.Start(ctx, "FedClient.FetchFrom")
	defer span.End()
	span.SetAttributes(
		attribute.String("node", n.Name),
		attribute.String("method", method),
		attribute.String("url", target),
	)

	payload, err := encode(body)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	payload = node.TransformPayload(n, method, target, payload)

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrapf(types.ErrValidation, "build request for %s: %v", target, err)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Authorization", node.AuthorizationHeader(n))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.failure(n)
		span.RecordError(err)
		log.Warn().Err(err).Str("node", n.Name).Str("method", method).Str("url", target).Msg("peer unreachable")
		return nil, errors.Wrapf(types.ErrUpstreamUnavailable, "%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.failure(n)
		span.RecordError(err)
		return nil, errors.Wrapf(types.ErrUpstreamUnavailable, "read %s: %v", target, err)
	}
	c.metrics.observe(n, method, resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("status", resp.StatusCode))
	log.Debug().Str("node", n.Name).Str("method", method).Str("url", target).Int("status", resp.StatusCode).Msg("peer answered")

	return &Response{
		Node:       n,
		URL:        target,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// SearchAll asks every peer for path in registration order and returns the first 200.
// Peers that fail or answer anything else are skipped.
func (c *Client) SearchAll(ctx context.Context, res node.Resource, path string) (*Response, error) {
	ctx, span := tracer.Start(ctx, "FedClient.SearchAll")
	defer span.End()

	peers, err := c.nodes.Peers(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	path = urlutil.StripAllParam(path)
	for _, n := range peers {
		resp, err := c.FetchFrom(ctx, n, http.MethodGet, node.SearchURL(n, path, res), nil)
		if err != nil {
			continue
		}
		if resp.OK() {
			return resp, nil
		}
		log.Debug().Str("node", n.Name).Int("status", resp.StatusCode).Str("path", path).Msg("search miss")
	}
	return nil, errors.Wrapf(types.ErrNotFound, "no peer has %s", path)
}

// SearchEach asks every peer for path and returns each 200, in registration order.
func (c *Client) SearchEach(ctx context.Context, res node.Resource, path string) []*Response {
	ctx, span := tracer.Start(ctx, "FedClient.SearchEach")
	defer span.End()

	peers, err := c.nodes.Peers(ctx)
	if err != nil {
		span.RecordError(err)
		return nil
	}

	path = urlutil.StripAllParam(path)
	found := make([]*Response, 0, len(peers))
	for _, n := range peers {
		resp, err := c.FetchFrom(ctx, n, http.MethodGet, node.SearchURL(n, path, res), nil)
		if err != nil || !resp.OK() {
			continue
		}
		found = append(found, resp)
	}
	return found
}

// ResolveAuthorURL finds the canonical URL of a remote author known only by id.
// Answers are cached in memcache for 30 minutes.
func (c *Client) ResolveAuthorURL(ctx context.Context, id string) (string, error) {
	ctx, span := tracer.Start(ctx, "FedClient.ResolveAuthorURL")
	defer span.End()

	key := "author:" + id
	if c.mc != nil {
		if item, err := c.mc.Get(key); err == nil {
			return string(item.Value), nil
		}
	}

	resp, err := c.SearchAll(ctx, node.ResourceAuthors, "authors/"+id)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	raw, err := resp.Raw()
	if err != nil {
		return "", errors.Wrapf(types.ErrValidation, "author %s: %v", id, err)
	}
	u, ok := raw.GetString("url")
	if !ok || u == "" {
		u, ok = raw.GetString("id")
	}
	if !ok || u == "" {
		return "", errors.Wrapf(types.ErrValidation, "author %s has no url", id)
	}
	u = urlutil.Standardize(u)

	if c.mc != nil {
		c.mc.Set(&memcache.Item{
			Key:        key,
			Value:      []byte(u),
			Expiration: 1800, // 30 minutes
		})
	}
	return u, nil
}

func encode(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encode request body")
	}
	return payload, nil
}

func statusLabel(code int) string {
	return strconv.Itoa(code)
}
