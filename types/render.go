package types

import (
	"fmt"
	"strings"

	"github.com/socialdist/fednode/urlutil"
)

// LocalAuthorURL is where this node serves a local author.
func LocalAuthorURL(hostAPIURL, id string) string {
	return urlutil.Join(hostAPIURL, "authors", id)
}

func PostURL(author Author, postID string) string {
	return urlutil.Join(author.URL, "posts", postID)
}

func CommentURL(postURL, commentID string) string {
	return urlutil.Join(postURL, "comments", commentID)
}

// LikeObjectURL returns the URL of the post or comment a like listing is about.
func LikeObjectURL(author Author, postID, commentID string) string {
	u := PostURL(author, postID)
	if commentID != "" {
		u = CommentURL(u, commentID)
	}
	return u
}

func (a Author) ToObject() AuthorObject {
	return AuthorObject{
		Type:         "author",
		ID:           urlutil.Standardize(a.URL),
		Host:         a.Host,
		DisplayName:  a.DisplayName,
		URL:          urlutil.Standardize(a.URL),
		Github:       a.Github,
		ProfileImage: a.ProfileImage,
	}
}

// ToObject renders a post; p.Author must be loaded.
func (p Post) ToObject() PostObject {
	u := PostURL(p.Author, p.ID)
	return PostObject{
		Type:        "post",
		ID:          u,
		Title:       p.Title,
		Description: p.Description,
		Content:     p.Content,
		ContentType: p.ContentType,
		Source:      firstNonEmpty(p.Source, u),
		Origin:      firstNonEmpty(p.Origin, u),
		Visibility:  p.Visibility,
		Published:   p.Published,
		Author:      p.Author.ToObject(),
		Comments:    u + "/comments",
		Count:       p.CommentCount,
	}
}

// ToObject renders a comment; c.Post.Author and c.Author must be loaded.
func (c Comment) ToObject() CommentObject {
	return CommentObject{
		Type:        "comment",
		ID:          CommentURL(PostURL(c.Post.Author, c.PostID), c.ID),
		Author:      c.Author.ToObject(),
		Comment:     c.Text,
		ContentType: c.ContentType,
		Published:   c.Published,
	}
}

// ToObject renders a like; liker is nil when the liking author is not held locally.
func (l Like) ToObject(liker *Author) LikeObject {
	obj := LikeObject{
		Type:      "like",
		ID:        l.ID,
		Object:    l.Object,
		Published: l.Published,
		Author:    map[string]string{"url": l.Author},
	}
	if liker != nil {
		obj.Author = liker.ToObject()
		obj.Summary = fmt.Sprintf("%s likes your post", liker.DisplayName)
	}
	return obj
}

func (f Follower) ToObject() FollowerObject {
	return FollowerObject{
		Type:    "follower",
		Summary: fmt.Sprintf("%s follows %s", f.Actor.DisplayName, f.Object.DisplayName),
		Actor:   f.Actor.ToObject(),
		Object:  f.Object.ToObject(),
	}
}

// Summary is the line shown for a follow request in an inbox.
func (r FollowRequest) Summary() string {
	return fmt.Sprintf("%s wants to follow %s", r.Actor.DisplayName, r.Object.DisplayName)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
