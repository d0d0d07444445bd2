package types

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Author is a user of the network: a local account, a remote shadow copy, or a peer node's credential.
type Author struct {
	ID           string    `json:"id" gorm:"primaryKey;type:text"`
	DisplayName  string    `json:"displayName" gorm:"type:text;uniqueIndex:uniq_author_display_name,where:is_node = false AND is_remote = false"`
	URL          string    `json:"url" gorm:"type:text;index"`
	Host         string    `json:"host" gorm:"type:text"`
	Github       string    `json:"github" gorm:"type:text"`
	ProfileImage *string   `json:"profileImage" gorm:"type:text"`
	IsRemote     bool      `json:"isRemote" gorm:"type:bool;default:false"`
	IsNode       bool      `json:"isNode" gorm:"type:bool;default:false"`
	IsActive     bool      `json:"isActive" gorm:"type:bool;default:false"`
	PasswordHash string    `json:"-" gorm:"type:text"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Local reports whether this node is authoritative for the author.
func (a Author) Local() bool {
	return !a.IsRemote && !a.IsNode
}

// Node is a registered peer.
type Node struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name        string    `json:"name" gorm:"type:text;uniqueIndex"`
	DisplayName string    `json:"displayName" gorm:"type:text"`
	URL         string    `json:"url" gorm:"type:text"`
	Password    string    `json:"-" gorm:"type:text"`
	Flavor      Flavor    `json:"flavor" gorm:"type:text"`
	Disabled    bool      `json:"disabled" gorm:"type:bool;default:false"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Post is authored by a local Author. Its URL is derived, see PostURL.
type Post struct {
	ID           string      `json:"id" gorm:"primaryKey;type:text"`
	AuthorID     string      `json:"authorId" gorm:"type:text;index"`
	Author       Author      `json:"author" gorm:"foreignKey:AuthorID"`
	Title        string      `json:"title" gorm:"type:text"`
	Description  string      `json:"description" gorm:"type:text"`
	Content      string      `json:"content" gorm:"type:text"`
	ContentType  ContentType `json:"contentType" gorm:"type:text"`
	Source       string      `json:"source" gorm:"type:text"`
	Origin       string      `json:"origin" gorm:"type:text"`
	Visibility   Visibility  `json:"visibility" gorm:"type:text;index"`
	CommentCount int         `json:"count" gorm:"default:0"`
	IsGithub     bool        `json:"isGithub" gorm:"type:bool;default:false"`
	Published    time.Time   `json:"published" gorm:"index"`
}

// Comment on a Post. The author may be a remote shadow.
type Comment struct {
	ID          string      `json:"id" gorm:"primaryKey;type:text"`
	PostID      string      `json:"postId" gorm:"type:text;index"`
	Post        Post        `json:"-" gorm:"foreignKey:PostID"`
	AuthorID    string      `json:"authorId" gorm:"type:text"`
	Author      Author      `json:"author" gorm:"foreignKey:AuthorID"`
	Text        string      `json:"comment" gorm:"column:comment;type:text"`
	ContentType ContentType `json:"contentType" gorm:"type:text"`
	Published   time.Time   `json:"published" gorm:"index"`
}

// Like keeps both ends as URLs; either may never be materialized locally.
type Like struct {
	ID        string    `json:"id" gorm:"primaryKey;type:text"`
	Author    string    `json:"author" gorm:"type:text;uniqueIndex:uniq_like"`
	Object    string    `json:"object" gorm:"type:text;uniqueIndex:uniq_like"`
	Published time.Time `json:"published"`
}

// Follower asserts that Actor follows Object.
type Follower struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	ObjectID  string    `json:"objectId" gorm:"type:text;uniqueIndex:uniq_follower"`
	Object    Author    `json:"object" gorm:"foreignKey:ObjectID"`
	ActorID   string    `json:"actorId" gorm:"type:text;uniqueIndex:uniq_follower"`
	Actor     Author    `json:"actor" gorm:"foreignKey:ActorID"`
	CreatedAt time.Time `json:"createdAt"`
}

// FollowRequest records a follow solicitation surfaced through an inbox.
type FollowRequest struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	ObjectID  string    `json:"objectId" gorm:"type:text;index"`
	Object    Author    `json:"object" gorm:"foreignKey:ObjectID"`
	ActorID   string    `json:"actorId" gorm:"type:text"`
	Actor     Author    `json:"actor" gorm:"foreignKey:ActorID"`
	CreatedAt time.Time `json:"createdAt"`
}

// InboxCommentRef points at a comment that may live on another node.
type InboxCommentRef struct {
	ID         uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	CommentURL string `json:"commentUrl" gorm:"type:text"`
	AuthorURL  string `json:"author" gorm:"type:text"`
}

// InboxEntry is a tagged union: exactly one payload reference is set and it matches Type.
type InboxEntry struct {
	ID              uint             `json:"id" gorm:"primaryKey;autoIncrement"`
	AuthorID        string           `json:"authorId" gorm:"type:text;index"`
	Type            InboxItemType    `json:"type" gorm:"type:text"`
	Published       time.Time        `json:"published" gorm:"index"`
	PostURL         *string          `json:"post,omitempty" gorm:"type:text"`
	LikeID          *string          `json:"-" gorm:"type:text"`
	Like            *Like            `json:"like,omitempty" gorm:"foreignKey:LikeID"`
	CommentID       *uint            `json:"-"`
	Comment         *InboxCommentRef `json:"comment,omitempty" gorm:"foreignKey:CommentID"`
	FollowRequestID *uint            `json:"-"`
	FollowRequest   *FollowRequest   `json:"follow,omitempty" gorm:"foreignKey:FollowRequestID"`
}

// Validate checks the tagged-union invariant.
func (e *InboxEntry) Validate() error {
	set := map[InboxItemType]bool{
		InboxPost:    e.PostURL != nil,
		InboxLike:    e.LikeID != nil || e.Like != nil,
		InboxComment: e.CommentID != nil || e.Comment != nil,
		InboxFollow:  e.FollowRequestID != nil || e.FollowRequest != nil,
	}

	count := 0
	for _, ok := range set {
		if ok {
			count++
		}
	}
	if count != 1 {
		return errors.Wrapf(ErrValidation, "inbox entry must carry exactly one payload, got %d", count)
	}
	if !e.Type.Storable() {
		return errors.Wrapf(ErrValidation, "inbox entry type %q cannot be stored", e.Type)
	}
	if !set[e.Type] {
		return errors.Wrapf(ErrValidation, "inbox entry payload does not match type %q", e.Type)
	}
	return nil
}

func (e *InboxEntry) BeforeCreate(tx *gorm.DB) error {
	if e.Published.IsZero() {
		e.Published = time.Now()
	}
	return e.Validate()
}

func NewPostEntry(authorID, postURL string) (InboxEntry, error) {
	e := InboxEntry{AuthorID: authorID, Type: InboxPost, PostURL: &postURL, Published: time.Now()}
	return e, e.Validate()
}

func NewLikeEntry(authorID string, like *Like) (InboxEntry, error) {
	e := InboxEntry{AuthorID: authorID, Type: InboxLike, Like: like, Published: time.Now()}
	return e, e.Validate()
}

func NewCommentEntry(authorID string, comment *InboxCommentRef) (InboxEntry, error) {
	e := InboxEntry{AuthorID: authorID, Type: InboxComment, Comment: comment, Published: time.Now()}
	return e, e.Validate()
}

func NewFollowEntry(authorID string, request *FollowRequest) (InboxEntry, error) {
	e := InboxEntry{AuthorID: authorID, Type: InboxFollow, FollowRequest: request, Published: time.Now()}
	return e, e.Validate()
}
