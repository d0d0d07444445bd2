package types

import "time"

// AuthorObject is the federation wire form of an Author.
type AuthorObject struct {
	Type         string  `json:"type" validate:"eq=author"`
	ID           string  `json:"id" validate:"required"`
	Host         string  `json:"host" validate:"required,url"`
	DisplayName  string  `json:"displayName" validate:"required"`
	URL          string  `json:"url" validate:"required,url"`
	Github       string  `json:"github" validate:"omitempty,url"`
	ProfileImage *string `json:"profileImage"`
}

// PostObject is the federation wire form of a Post.
type PostObject struct {
	Type        string       `json:"type"`
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Content     string       `json:"content"`
	ContentType ContentType  `json:"contentType"`
	Source      string       `json:"source"`
	Origin      string       `json:"origin"`
	Visibility  Visibility   `json:"visibility"`
	Published   time.Time    `json:"published"`
	Author      AuthorObject `json:"author"`
	Comments    string       `json:"comments"`
	Count       int          `json:"count"`
}

type CommentObject struct {
	Type        string       `json:"type"`
	ID          string       `json:"id"`
	Author      AuthorObject `json:"author"`
	Comment     string       `json:"comment"`
	ContentType ContentType  `json:"contentType"`
	Published   time.Time    `json:"published"`
}

// LikeObject renders a Like. Author holds the full object when the liker is known locally.
type LikeObject struct {
	Type      string    `json:"type"`
	ID        string    `json:"id,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Author    any       `json:"author"`
	Object    string    `json:"object"`
	Published time.Time `json:"published"`
}

type FollowerObject struct {
	Type    string       `json:"type"`
	Summary string       `json:"summary"`
	Actor   AuthorObject `json:"actor"`
	Object  AuthorObject `json:"object"`
}

// Envelope wraps typed items delivered to an inbox.
type Envelope struct {
	Type   string `json:"type"`
	Author string `json:"author"`
	Items  []any  `json:"items"`
}

// NewEnvelope addresses items to the inbox of the author at authorURL.
func NewEnvelope(authorURL string, items ...any) Envelope {
	return Envelope{Type: "inbox", Author: authorURL, Items: items}
}

// Collection is the list shape used by every listing endpoint.
type Collection[T any] struct {
	Type  string `json:"type"`
	Items []T    `json:"items"`
}

// NodeConfig is the node-wide federation setting.
type NodeConfig struct {
	HostAPIURL   string        `mapstructure:"hostApiUrl"`
	FetchTimeout time.Duration `mapstructure:"fetchTimeout"`
}

// PeerConfig seeds an outbound Node record.
type PeerConfig struct {
	Name        string `mapstructure:"name"`
	DisplayName string `mapstructure:"displayName"`
	URL         string `mapstructure:"url"`
	Password    string `mapstructure:"password"`
	Flavor      string `mapstructure:"flavor"`
	Disabled    bool   `mapstructure:"disabled"`
}

// NodeAccountConfig seeds the credential a peer uses to call this node.
type NodeAccountConfig struct {
	DisplayName string `mapstructure:"displayName"`
	Password    string `mapstructure:"password"`
}
