package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInboxEntryTaggedUnion(t *testing.T) {
	postURL := "http://a.example/api/authors/1/posts/2"
	likeID := "like-1"
	var commentID uint = 3

	e, err := NewPostEntry("1", postURL)
	require.NoError(t, err)
	assert.Equal(t, InboxPost, e.Type)

	_, err = NewLikeEntry("1", nil)
	assert.ErrorIs(t, err, ErrValidation, "zero payloads")

	both := InboxEntry{AuthorID: "1", Type: InboxPost, PostURL: &postURL, LikeID: &likeID}
	assert.ErrorIs(t, both.Validate(), ErrValidation, "two payloads")

	mismatch := InboxEntry{AuthorID: "1", Type: InboxPost, CommentID: &commentID}
	assert.ErrorIs(t, mismatch.Validate(), ErrValidation, "payload of another type")

	unfollow := InboxEntry{AuthorID: "1", Type: InboxUnfollow, PostURL: &postURL}
	assert.ErrorIs(t, unfollow.Validate(), ErrValidation)

	_, err = NewFollowEntry("1", &FollowRequest{ObjectID: "1", ActorID: "2"})
	assert.NoError(t, err)

	c, err := NewCommentEntry("1", &InboxCommentRef{CommentURL: postURL + "/comments/3", AuthorURL: "http://a.example/api/authors/4"})
	require.NoError(t, err)
	assert.Equal(t, InboxComment, c.Type)
}

func TestDerivedURLs(t *testing.T) {
	author := Author{ID: "a1", URL: "http://a.example/api/authors/a1/", Host: "http://a.example/api/"}
	post := Post{ID: "p1", Author: author, AuthorID: "a1"}

	obj := post.ToObject()
	assert.Equal(t, "http://a.example/api/authors/a1/posts/p1", obj.ID)
	assert.Equal(t, obj.ID+"/comments", obj.Comments)
	assert.Equal(t, obj.ID, obj.Source)
	assert.Equal(t, "http://a.example/api/authors/a1", obj.Author.ID)

	comment := Comment{ID: "c1", PostID: "p1", Post: post, Author: author}
	assert.Equal(t, obj.ID+"/comments/c1", comment.ToObject().ID)

	assert.Equal(t, "http://a.example/api/authors/a1", LocalAuthorURL("http://a.example/api/", "a1"))
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, Paginate(items, NewPage("", "", DefaultPageSize, MaxPageSize)))
	assert.Equal(t, []int{4, 5, 6}, Paginate(items, NewPage("2", "3", DefaultPageSize, MaxPageSize)))
	assert.Empty(t, Paginate(items, NewPage("9", "3", DefaultPageSize, MaxPageSize)))
	assert.Equal(t, 100, NewPage("1", "5000", DefaultPageSize, MaxPageSize).Size)
}

func TestRawObj(t *testing.T) {
	raw, err := LoadAsRawObj([]byte(`{"type":"inbox","items":[{"type":"like","author":{"url":"u"}},"x"]}`))
	require.NoError(t, err)

	items := raw.GetList("items")
	require.Len(t, items, 1)
	assert.Equal(t, "u", items[0].MustGetString("author.url"))
	assert.False(t, items[0].Has("object"))

	raw.Rename("items", "comments")
	assert.True(t, raw.Has("comments"))
	assert.False(t, raw.Has("items"))
}
