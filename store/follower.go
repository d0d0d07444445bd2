package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm/clause"

	"github.com/socialdist/fednode/types"
)

// CreateFollower inserts the edge. An existing (object, actor) pair is a conflict.
func (s *Store) CreateFollower(ctx context.Context, objectID, actorID string) (types.Follower, error) {
	ctx, span := tracer.Start(ctx, "StoreCreateFollower")
	defer span.End()

	follower := types.Follower{ObjectID: objectID, ActorID: actorID}
	result := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&follower)
	if result.Error != nil {
		return follower, result.Error
	}
	if result.RowsAffected == 0 {
		return follower, errors.Wrapf(types.ErrConflict, "%s already follows %s", actorID, objectID)
	}
	return follower, nil
}

// GetFollower returns the edge with both ends loaded.
func (s *Store) GetFollower(ctx context.Context, objectID, actorID string) (types.Follower, error) {
	ctx, span := tracer.Start(ctx, "StoreGetFollower")
	defer span.End()

	var follower types.Follower
	err := s.db.WithContext(ctx).
		Preload("Object").Preload("Actor").
		Where("object_id = ? AND actor_id = ?", objectID, actorID).
		First(&follower).Error
	return follower, translate(err, "follower %s of %s", actorID, objectID)
}

// HasFollower reports whether actor follows object.
func (s *Store) HasFollower(ctx context.Context, objectID, actorID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "StoreHasFollower")
	defer span.End()

	var count int64
	err := s.db.WithContext(ctx).Model(&types.Follower{}).
		Where("object_id = ? AND actor_id = ?", objectID, actorID).
		Count(&count).Error
	return count > 0, err
}

// DeleteFollower removes the edge; a missing edge is not found.
func (s *Store) DeleteFollower(ctx context.Context, objectID, actorID string) error {
	ctx, span := tracer.Start(ctx, "StoreDeleteFollower")
	defer span.End()

	result := s.db.WithContext(ctx).
		Where("object_id = ? AND actor_id = ?", objectID, actorID).
		Delete(&types.Follower{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.Wrapf(types.ErrNotFound, "follower %s of %s", actorID, objectID)
	}
	return nil
}

// GetFollowers returns everyone following object, oldest first.
func (s *Store) GetFollowers(ctx context.Context, objectID string) ([]types.Follower, error) {
	ctx, span := tracer.Start(ctx, "StoreGetFollowers")
	defer span.End()

	var followers []types.Follower
	err := s.db.WithContext(ctx).
		Preload("Object").Preload("Actor").
		Where("object_id = ?", objectID).
		Order("id ASC").
		Find(&followers).Error
	return followers, err
}

// GetFollowing returns every edge where actor is the follower.
func (s *Store) GetFollowing(ctx context.Context, actorID string) ([]types.Follower, error) {
	ctx, span := tracer.Start(ctx, "StoreGetFollowing")
	defer span.End()

	var follows []types.Follower
	err := s.db.WithContext(ctx).
		Preload("Object").Preload("Actor").
		Where("actor_id = ?", actorID).
		Order("id ASC").
		Find(&follows).Error
	return follows, err
}
