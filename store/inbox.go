package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/socialdist/fednode/types"
)

func createEntry(tx *gorm.DB, entry *types.InboxEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	return tx.Omit(clause.Associations).Create(entry).Error
}

// CreatePostEntry stores a POST inbox entry.
func (s *Store) CreatePostEntry(ctx context.Context, ownerID, postURL string) (types.InboxEntry, error) {
	ctx, span := tracer.Start(ctx, "StoreCreatePostEntry")
	defer span.End()

	entry, err := types.NewPostEntry(ownerID, postURL)
	if err != nil {
		return entry, err
	}
	err = createEntry(s.db.WithContext(ctx), &entry)
	return entry, err
}

// CreateFollowEntry stores a follow request and the FOLLOW entry referencing it.
func (s *Store) CreateFollowEntry(ctx context.Context, ownerID string, request types.FollowRequest) (types.InboxEntry, error) {
	ctx, span := tracer.Start(ctx, "StoreCreateFollowEntry")
	defer span.End()

	var entry types.InboxEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&request).Error; err != nil {
			return err
		}
		var err error
		entry, err = types.NewFollowEntry(ownerID, &request)
		if err != nil {
			return err
		}
		entry.FollowRequestID = &request.ID
		return createEntry(tx, &entry)
	})
	return entry, err
}

// CreateLikeEntry stores a like and the LIKE entry referencing it.
// An existing (author, object) like is a conflict and nothing is written.
func (s *Store) CreateLikeEntry(ctx context.Context, ownerID string, like types.Like) (types.InboxEntry, error) {
	ctx, span := tracer.Start(ctx, "StoreCreateLikeEntry")
	defer span.End()

	var entry types.InboxEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&like)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errors.Wrapf(types.ErrConflict, "%s already liked %s", like.Author, like.Object)
		}
		var err error
		entry, err = types.NewLikeEntry(ownerID, &like)
		if err != nil {
			return err
		}
		entry.LikeID = &like.ID
		return createEntry(tx, &entry)
	})
	return entry, err
}

// CreateCommentEntry stores a comment on a local post and the COMMENT entry for its owner.
func (s *Store) CreateCommentEntry(ctx context.Context, ownerID string, comment types.Comment, authorURL, commentURL string) (types.InboxEntry, error) {
	ctx, span := tracer.Start(ctx, "StoreCreateCommentEntry")
	defer span.End()

	var entry types.InboxEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&comment).Error; err != nil {
			return err
		}
		err := tx.Model(&types.Post{}).Where("id = ?", comment.PostID).
			UpdateColumn("comment_count", gorm.Expr("comment_count + ?", 1)).Error
		if err != nil {
			return err
		}

		ref := types.InboxCommentRef{CommentURL: commentURL, AuthorURL: authorURL}
		if err := tx.Create(&ref).Error; err != nil {
			return err
		}
		entry, err = types.NewCommentEntry(ownerID, &ref)
		if err != nil {
			return err
		}
		entry.CommentID = &ref.ID
		return createEntry(tx, &entry)
	})
	return entry, err
}

// ListInbox returns an author's entries newest first with their payloads loaded.
func (s *Store) ListInbox(ctx context.Context, ownerID string, page types.Page) ([]types.InboxEntry, error) {
	ctx, span := tracer.Start(ctx, "StoreListInbox")
	defer span.End()

	var entries []types.InboxEntry
	err := s.db.WithContext(ctx).
		Preload("Like").
		Preload("Comment").
		Preload("FollowRequest").
		Preload("FollowRequest.Actor").
		Preload("FollowRequest.Object").
		Where("author_id = ?", ownerID).
		Order("published DESC").Order("id DESC").
		Offset(page.Offset()).Limit(page.Size).
		Find(&entries).Error
	return entries, err
}

// ClearInbox deletes every entry owned by the author.
func (s *Store) ClearInbox(ctx context.Context, ownerID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "StoreClearInbox")
	defer span.End()

	result := s.db.WithContext(ctx).Where("author_id = ?", ownerID).Delete(&types.InboxEntry{})
	return result.RowsAffected, result.Error
}

// CountInbox counts an author's entries.
func (s *Store) CountInbox(ctx context.Context, ownerID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "StoreCountInbox")
	defer span.End()

	var count int64
	err := s.db.WithContext(ctx).Model(&types.InboxEntry{}).Where("author_id = ?", ownerID).Count(&count).Error
	return count, err
}

// CountLikes counts the like rows matching an (author, object) pair.
func (s *Store) CountLikes(ctx context.Context, authorURL, objectURL string) (int64, error) {
	ctx, span := tracer.Start(ctx, "StoreCountLikes")
	defer span.End()

	var count int64
	err := s.db.WithContext(ctx).Model(&types.Like{}).
		Where("author = ? AND object = ?", authorURL, objectURL).
		Count(&count).Error
	return count, err
}
