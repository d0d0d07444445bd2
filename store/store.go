package store

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/socialdist/fednode/types"
	"github.com/socialdist/fednode/urlutil"
)

var tracer = otel.Tracer("store")

// Store is the relational repository of the node.
type Store struct {
	db *gorm.DB
}

// NewStore returns a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates every table the node uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.Author{},
		&types.Node{},
		&types.Post{},
		&types.Comment{},
		&types.Like{},
		&types.Follower{},
		&types.FollowRequest{},
		&types.InboxCommentRef{},
		&types.InboxEntry{},
	)
}

func translate(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(types.ErrNotFound, format, args...)
	}
	return errors.Wrapf(err, format, args...)
}

// GetAuthor returns an author by id.
func (s *Store) GetAuthor(ctx context.Context, id string) (types.Author, error) {
	ctx, span := tracer.Start(ctx, "StoreGetAuthor")
	defer span.End()

	var author types.Author
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&author).Error
	return author, translate(err, "author %s", id)
}

// GetLocalAuthor returns an author this node is authoritative for.
func (s *Store) GetLocalAuthor(ctx context.Context, id string) (types.Author, error) {
	ctx, span := tracer.Start(ctx, "StoreGetLocalAuthor")
	defer span.End()

	var author types.Author
	err := s.db.WithContext(ctx).
		Where("id = ? AND is_remote = ? AND is_node = ?", id, false, false).
		First(&author).Error
	return author, translate(err, "local author %s", id)
}

// GetAuthorByURL matches on the standardized profile URL.
func (s *Store) GetAuthorByURL(ctx context.Context, u string) (types.Author, error) {
	ctx, span := tracer.Start(ctx, "StoreGetAuthorByURL")
	defer span.End()

	var author types.Author
	err := s.db.WithContext(ctx).Where("url = ?", urlutil.Standardize(u)).First(&author).Error
	return author, translate(err, "author %s", u)
}

// GetAccount returns the credential row authenticated under a display name.
func (s *Store) GetAccount(ctx context.Context, displayName string) (types.Author, error) {
	ctx, span := tracer.Start(ctx, "StoreGetAccount")
	defer span.End()

	var author types.Author
	err := s.db.WithContext(ctx).
		Where("display_name = ? AND is_remote = ? AND is_active = ?", displayName, false, true).
		Order("is_node DESC").
		First(&author).Error
	return author, translate(err, "account %s", displayName)
}

// ListLocalAuthors returns active local humans, newest first.
func (s *Store) ListLocalAuthors(ctx context.Context) ([]types.Author, error) {
	ctx, span := tracer.Start(ctx, "StoreListLocalAuthors")
	defer span.End()

	var authors []types.Author
	err := s.db.WithContext(ctx).
		Where("is_remote = ? AND is_node = ? AND is_active = ?", false, false, true).
		Order("created_at DESC").
		Find(&authors).Error
	return authors, err
}

// CreateAuthor inserts a local author. A taken display name is a conflict.
func (s *Store) CreateAuthor(ctx context.Context, author types.Author) (types.Author, error) {
	ctx, span := tracer.Start(ctx, "StoreCreateAuthor")
	defer span.End()

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&author)
	if result.Error != nil {
		return author, result.Error
	}
	if result.RowsAffected == 0 {
		return author, errors.Wrapf(types.ErrConflict, "author %s already exists", author.DisplayName)
	}
	return author, nil
}

// InsertAuthorIfAbsent reports false when a row with the same key already exists.
func (s *Store) InsertAuthorIfAbsent(ctx context.Context, author types.Author) (bool, error) {
	ctx, span := tracer.Start(ctx, "StoreInsertAuthorIfAbsent")
	defer span.End()

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&author)
	return result.RowsAffected > 0, result.Error
}

// UpdateAuthor saves the editable profile fields.
func (s *Store) UpdateAuthor(ctx context.Context, author types.Author) (types.Author, error) {
	ctx, span := tracer.Start(ctx, "StoreUpdateAuthor")
	defer span.End()

	err := s.db.WithContext(ctx).Model(&author).Select("display_name", "github", "profile_image").Updates(&author).Error
	return author, err
}

// UpsertNodeAccount creates or refreshes the is_node credential of a peer.
func (s *Store) UpsertNodeAccount(ctx context.Context, account types.Author) error {
	ctx, span := tracer.Start(ctx, "StoreUpsertNodeAccount")
	defer span.End()

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "password_hash", "is_active"}),
	}).Create(&account).Error
}

// GetActiveNodes lists enabled nodes in registration order.
func (s *Store) GetActiveNodes(ctx context.Context) ([]types.Node, error) {
	ctx, span := tracer.Start(ctx, "StoreGetActiveNodes")
	defer span.End()

	var nodes []types.Node
	err := s.db.WithContext(ctx).Where("disabled = ?", false).Order("id ASC").Find(&nodes).Error
	return nodes, err
}

// UpsertNode creates or updates a node by name.
func (s *Store) UpsertNode(ctx context.Context, node types.Node) error {
	ctx, span := tracer.Start(ctx, "StoreUpsertNode")
	defer span.End()

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "url", "password", "flavor", "disabled"}),
	}).Create(&node).Error
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
