package types

import (
	"strings"

	"github.com/pkg/errors"
)

// Visibility of a post.
type Visibility string

const (
	VisibilityPublic   Visibility = "PUBLIC"
	VisibilityFriends  Visibility = "FRIENDS"
	VisibilityUnlisted Visibility = "UNLISTED"
)

func ParseVisibility(s string) (Visibility, error) {
	switch v := Visibility(strings.ToUpper(s)); v {
	case VisibilityPublic, VisibilityFriends, VisibilityUnlisted:
		return v, nil
	case "":
		return VisibilityPublic, nil
	}
	return "", errors.Wrapf(ErrValidation, "unknown visibility %q", s)
}

// ContentType of a post or comment body.
type ContentType string

const (
	ContentPlain    ContentType = "text/plain"
	ContentMarkdown ContentType = "text/markdown"
	ContentBase64   ContentType = "application/base64"
	ContentPNG      ContentType = "image/png;base64"
	ContentJPEG     ContentType = "image/jpeg;base64"
	ContentGIF      ContentType = "image/gif;base64"
)

func ParseContentType(s string) (ContentType, error) {
	switch c := ContentType(s); c {
	case ContentPlain, ContentMarkdown, ContentBase64, ContentPNG, ContentJPEG, ContentGIF:
		return c, nil
	case "":
		return ContentPlain, nil
	}
	return "", errors.Wrapf(ErrValidation, "unknown content type %q", s)
}

// IsImage reports whether the content is a base64 encoded image.
func (c ContentType) IsImage() bool {
	switch c {
	case ContentPNG, ContentJPEG, ContentGIF:
		return true
	}
	return false
}

// MimeType is the media type served for image content.
func (c ContentType) MimeType() string {
	mime, _, _ := strings.Cut(string(c), ";")
	return mime
}

// InboxItemType is the discriminator of an inbox item.
type InboxItemType string

const (
	InboxPost     InboxItemType = "post"
	InboxFollow   InboxItemType = "follow"
	InboxLike     InboxItemType = "like"
	InboxComment  InboxItemType = "comment"
	InboxUnfollow InboxItemType = "unfollow"
)

// ParseInboxItemType is case-insensitive; peers disagree on capitalization.
func ParseInboxItemType(s string) (InboxItemType, error) {
	switch t := InboxItemType(strings.ToLower(s)); t {
	case InboxPost, InboxFollow, InboxLike, InboxComment, InboxUnfollow:
		return t, nil
	}
	return "", errors.Wrapf(ErrValidation, "unsupported inbox type %q", s)
}

// Storable reports whether entries of this type are kept in an inbox.
func (t InboxItemType) Storable() bool {
	switch t {
	case InboxPost, InboxFollow, InboxLike, InboxComment:
		return true
	}
	return false
}

// Flavor selects the protocol quirks of a peer node.
type Flavor string

const (
	FlavorDefault Flavor = ""
	FlavorLocal   Flavor = "local"
	FlavorLost    Flavor = "lost"
	FlavorHTTP    Flavor = "http"
	FlavorAttack  Flavor = "attack"
)

func ParseFlavor(s string) (Flavor, error) {
	switch f := Flavor(strings.ToLower(s)); f {
	case FlavorDefault, FlavorLocal, FlavorLost, FlavorHTTP, FlavorAttack:
		return f, nil
	case "default":
		return FlavorDefault, nil
	}
	return "", errors.Wrapf(ErrValidation, "unknown node flavor %q", s)
}
