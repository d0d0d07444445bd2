package node

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/socialdist/fednode/types"
	"github.com/socialdist/fednode/urlutil"
)

// UnfollowStyle is how a peer expects to hear about an unfollow.
type UnfollowStyle int

const (
	UnfollowNone UnfollowStyle = iota
	// UnfollowBare posts the item itself to {object}/inbox/.
	UnfollowBare
	// UnfollowEnvelope posts an inbox envelope to {object}/inbox.
	UnfollowEnvelope
)

// Resource names what a peer search is looking for.
type Resource int

const (
	ResourceAuthors Resource = iota
	ResourcePosts
	ResourceComments
	ResourceLikes
	ResourceFollowers
	ResourceInbox
)

// Quirks is one row of the protocol adaptation table.
type Quirks struct {
	TrailingSlash  bool
	SearchSlash    bool
	UnwrapInbox    bool
	CommentsKey    string
	Liveness       bool
	Unfollow       UnfollowStyle
	NestedPostRef  bool
	SkipInSearches bool
}

// QuirksFor is the adaptation table. New peers get a new case here and nowhere else.
func QuirksFor(f types.Flavor) Quirks {
	switch f {
	case types.FlavorLocal:
		return Quirks{CommentsKey: "items", Liveness: true, SkipInSearches: true}
	case types.FlavorLost:
		return Quirks{
			TrailingSlash: true,
			UnwrapInbox:   true,
			CommentsKey:   "comments",
			Unfollow:      UnfollowBare,
		}
	case types.FlavorHTTP:
		return Quirks{
			SearchSlash: true,
			CommentsKey: "items",
			Unfollow:    UnfollowEnvelope,
		}
	case types.FlavorAttack:
		return Quirks{CommentsKey: "items", Liveness: true, NestedPostRef: true}
	default:
		return Quirks{CommentsKey: "items", Liveness: true}
	}
}

// TransformURL rewrites an outbound URL for node n.
func TransformURL(u string, n types.Node) string {
	u = urlutil.Standardize(u)
	q := QuirksFor(n.Flavor)
	if !q.TrailingSlash {
		return u
	}

	path, query, found := strings.Cut(u, "?")
	if found {
		u = strings.TrimRight(path, "/") + "/?" + query
	} else {
		u = u + "/"
	}

	// a bare host is rewritten to the node's api base
	base := urlutil.Standardize(n.URL)
	parsed, err := url.Parse(base)
	if err != nil || parsed.Host == "" {
		return u
	}
	origin := parsed.Scheme + "://" + parsed.Host
	if base != origin && strings.HasPrefix(u, origin+"/") && !strings.HasPrefix(u, base+"/") {
		u = base + strings.TrimPrefix(u, origin)
	}
	return u
}

// SearchURL builds the URL asking node n for path during a search across peers.
func SearchURL(n types.Node, path string, res Resource) string {
	target := TransformURL(urlutil.Join(n.URL, path), n)
	if QuirksFor(n.Flavor).SearchSlash && (res == ResourceAuthors || res == ResourcePosts) {
		target, _, _ = strings.Cut(target, "?")
		target = strings.TrimRight(target, "/") + "/"
	}
	return target
}

// TransformPayload rewrites an outbound body for node n.
// Peers that do not accept the inbox envelope receive its first item with a capitalized type.
func TransformPayload(n types.Node, method, target string, body []byte) []byte {
	if !QuirksFor(n.Flavor).UnwrapInbox || method != "POST" || !strings.Contains(target, "/inbox") || len(body) == 0 {
		return body
	}

	raw, err := types.LoadAsRawObj(body)
	if err != nil {
		return body
	}
	items := raw.GetList("items")
	if len(items) == 0 {
		return body
	}
	item := items[0]
	if t, ok := item.GetString("type"); ok {
		item.Set("type", capitalize(t))
	}
	out, err := json.Marshal(item)
	if err != nil {
		return body
	}
	return out
}

// CommentsKey is the list key a caller of flavor f expects in comment listings.
func CommentsKey(f types.Flavor) string {
	return QuirksFor(f).CommentsKey
}

// LivenessEnabled reports whether follower edges held by node n can be re-verified.
func LivenessEnabled(n types.Node) bool {
	return QuirksFor(n.Flavor).Liveness
}

// UnfollowNotice builds the notification telling object's node that actor stopped following.
// ok is false when the node expects none.
func UnfollowNotice(n types.Node, actor, object types.Author) (target string, body any, ok bool) {
	item := map[string]any{
		"type":    "unfollow",
		"summary": fmt.Sprintf("%s unfollowed %s.", actor.DisplayName, object.DisplayName),
		"actor":   actor.ToObject(),
		"object":  object.ToObject(),
	}

	switch QuirksFor(n.Flavor).Unfollow {
	case UnfollowBare:
		item["type"] = "Unfollow"
		return urlutil.Join(object.URL, "inbox") + "/", item, true
	case UnfollowEnvelope:
		return urlutil.Join(object.URL, "inbox"), types.NewEnvelope(urlutil.Standardize(object.URL), item), true
	}
	return "", nil, false
}

// CommentPostRef fills in how a comment item forwarded to node n names its post.
func CommentPostRef(n types.Node, item map[string]any, postURL string) {
	if QuirksFor(n.Flavor).NestedPostRef {
		item["post"] = map[string]any{"id": postURL}
		return
	}
	item["id"] = postURL
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
