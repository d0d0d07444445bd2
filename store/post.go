package store

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/socialdist/fednode/types"
)

func (s *Store) CreatePost(ctx context.Context, post types.Post) (types.Post, error) {
	ctx, span := tracer.Start(ctx, "StoreCreatePost")
	defer span.End()

	err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&post).Error
	return post, err
}

// GetPost returns a post with its author loaded.
func (s *Store) GetPost(ctx context.Context, id string) (types.Post, error) {
	ctx, span := tracer.Start(ctx, "StoreGetPost")
	defer span.End()

	var post types.Post
	err := s.db.WithContext(ctx).Preload("Author").Where("id = ?", id).First(&post).Error
	return post, translate(err, "post %s", id)
}

// ListPosts returns an author's posts restricted to the given visibilities, newest first.
func (s *Store) ListPosts(ctx context.Context, authorID string, visibilities []types.Visibility, page types.Page) ([]types.Post, error) {
	ctx, span := tracer.Start(ctx, "StoreListPosts")
	defer span.End()

	var posts []types.Post
	q := s.db.WithContext(ctx).Preload("Author").Where("author_id = ?", authorID)
	if visibilities != nil {
		q = q.Where("visibility IN ?", visibilities)
	}
	err := q.Order("published DESC").Offset(page.Offset()).Limit(page.Size).Find(&posts).Error
	return posts, err
}

// ListPublicPosts returns PUBLIC posts of every local author, newest first.
func (s *Store) ListPublicPosts(ctx context.Context, page types.Page) ([]types.Post, error) {
	ctx, span := tracer.Start(ctx, "StoreListPublicPosts")
	defer span.End()

	var posts []types.Post
	err := s.db.WithContext(ctx).Preload("Author").
		Where("visibility = ?", types.VisibilityPublic).
		Order("published DESC").
		Offset(page.Offset()).Limit(page.Size).
		Find(&posts).Error
	return posts, err
}

// ListFeedPosts returns all of an author's posts of one visibility, skipping imported GitHub activity.
func (s *Store) ListFeedPosts(ctx context.Context, authorID string, visibility types.Visibility) ([]types.Post, error) {
	ctx, span := tracer.Start(ctx, "StoreListFeedPosts")
	defer span.End()

	var posts []types.Post
	err := s.db.WithContext(ctx).Preload("Author").
		Where("author_id = ? AND visibility = ? AND is_github = ?", authorID, visibility, false).
		Order("published DESC").
		Find(&posts).Error
	return posts, err
}

func (s *Store) UpdatePost(ctx context.Context, post types.Post) (types.Post, error) {
	ctx, span := tracer.Start(ctx, "StoreUpdatePost")
	defer span.End()

	err := s.db.WithContext(ctx).Model(&post).Omit(clause.Associations).
		Select("title", "description", "content", "content_type", "source", "origin", "visibility").
		Updates(&post).Error
	return post, err
}

// DeletePost removes a post together with its comments and the likes on it.
func (s *Store) DeletePost(ctx context.Context, post types.Post) error {
	ctx, span := tracer.Start(ctx, "StoreDeletePost")
	defer span.End()

	postURL := types.PostURL(post.Author, post.ID)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		likes := tx.Model(&types.Like{}).Select("id").Where("object = ? OR object LIKE ?", postURL, postURL+"/comments/%")
		if err := tx.Where("like_id IN (?)", likes).Delete(&types.InboxEntry{}).Error; err != nil {
			return err
		}
		if err := tx.Where("object = ? OR object LIKE ?", postURL, postURL+"/comments/%").Delete(&types.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&types.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&types.Post{}, "id = ?", post.ID).Error
	})
}

// GetComment returns a comment with its author and post author loaded.
func (s *Store) GetComment(ctx context.Context, id string) (types.Comment, error) {
	ctx, span := tracer.Start(ctx, "StoreGetComment")
	defer span.End()

	var comment types.Comment
	err := s.db.WithContext(ctx).
		Preload("Author").Preload("Post").Preload("Post.Author").
		Where("id = ?", id).
		First(&comment).Error
	return comment, translate(err, "comment %s", id)
}

// ListComments returns the comments on a post, newest first.
func (s *Store) ListComments(ctx context.Context, postID string, page types.Page) ([]types.Comment, error) {
	ctx, span := tracer.Start(ctx, "StoreListComments")
	defer span.End()

	var comments []types.Comment
	err := s.db.WithContext(ctx).
		Preload("Author").Preload("Post").Preload("Post.Author").
		Where("post_id = ?", postID).
		Order("published DESC").
		Offset(page.Offset()).Limit(page.Size).
		Find(&comments).Error
	return comments, err
}

// ListLikesByObject returns the likes on an object URL, newest first.
func (s *Store) ListLikesByObject(ctx context.Context, objectURL string) ([]types.Like, error) {
	ctx, span := tracer.Start(ctx, "StoreListLikesByObject")
	defer span.End()

	var likes []types.Like
	err := s.db.WithContext(ctx).Where("object = ?", objectURL).Order("published DESC").Find(&likes).Error
	return likes, err
}

// ListLikesByAuthor returns the likes made by an author URL.
func (s *Store) ListLikesByAuthor(ctx context.Context, authorURL string) ([]types.Like, error) {
	ctx, span := tracer.Start(ctx, "StoreListLikesByAuthor")
	defer span.End()

	var likes []types.Like
	err := s.db.WithContext(ctx).Where("author = ?", authorURL).Order("published DESC").Find(&likes).Error
	return likes, err
}
