package post_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialdist/fednode/auth"
	"github.com/socialdist/fednode/post"
	"github.com/socialdist/fednode/testutil"
	"github.com/socialdist/fednode/types"
	"github.com/socialdist/fednode/urlutil"
)

func listComments(t *testing.T, h post.Handler, requester *types.Author, authorID, postID string) map[string]any {
	t.Helper()
	ctx := context.Background()
	if requester != nil {
		ctx = auth.WithRequester(ctx, *requester)
	}
	req := httptest.NewRequest(http.MethodGet, "/api/authors/"+authorID+"/posts/"+postID+"/comments", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	c.SetParamNames("author_id", "post_id")
	c.SetParamValues(authorID, postID)

	require.NoError(t, h.ListComments(c))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestListCommentsHandlerRenamesKey(t *testing.T) {
	ctx := context.Background()
	svc, s := newService(t)
	testutil.Node(t, s, "lost", "http://lost.test/api", types.FlavorLost)
	alice := testutil.LocalAuthor(t, s, "alice")
	obj := publish(t, svc, alice, "public", types.VisibilityPublic)
	postID := urlutil.ExtractID(obj.ID)
	_, err := svc.CreateComment(ctx, &alice, alice.ID, postID, post.CommentInput{Comment: "first"})
	require.NoError(t, err)

	h := post.NewHandler(svc, "/api")

	body := listComments(t, h, &alice, alice.ID, postID)
	assert.Equal(t, "comments", body["type"])
	assert.Len(t, body["items"], 1)
	assert.NotContains(t, body, "comments")

	lost := types.Author{ID: "lost-account", DisplayName: "lost-user", IsNode: true}
	body = listComments(t, h, &lost, alice.ID, postID)
	assert.Len(t, body["comments"], 1)
	assert.NotContains(t, body, "items")
}
