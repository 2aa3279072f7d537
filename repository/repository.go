// Package repository holds the data access layer: one interface per entity, backed by gorm.
package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/cppla/microblog/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write violates a unique index.
	ErrDuplicate = errors.New("duplicate record")
)

// Users is the data access contract for accounts.
type Users interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	GrantAdmin(ctx context.Context, usernames []string) (int64, error)
}

// Posts is the data access contract for posts. Author is preloaded on reads.
type Posts interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id uint) (*models.Post, error)
	List(ctx context.Context) ([]models.Post, error)
	ListByAuthor(ctx context.Context, userID uint) ([]models.Post, error)
	UpdateContent(ctx context.Context, id uint, title, content string) error
	Delete(ctx context.Context, id uint) error
}

// Comments is the data access contract for comments.
type Comments interface {
	Create(ctx context.Context, comment *models.Comment) error
	ListByPost(ctx context.Context, postID uint) ([]models.Comment, error)
	DeleteByPost(ctx context.Context, postID uint) error
}

// Likes is the data access contract for likes.
type Likes interface {
	Create(ctx context.Context, like *models.Like) error
	Find(ctx context.Context, userID, postID uint) (*models.Like, error)
	Delete(ctx context.Context, id uint) error
	CountByPost(ctx context.Context, postID uint) (int64, error)
	DeleteByPost(ctx context.Context, postID uint) error
}

// Store groups the per-entity repositories over one gorm handle.
type Store struct {
	db       *gorm.DB
	Users    Users
	Posts    Posts
	Comments Comments
	Likes    Likes
}

// NewStore creates a Store on db.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:       db,
		Users:    &userRepo{db: db},
		Posts:    &postRepo{db: db},
		Comments: &commentRepo{db: db},
		Likes:    &likeRepo{db: db},
	}
}

// Transaction runs fn with a Store bound to one database transaction. Returning an
// error (or panicking) from fn rolls everything back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

// translate maps gorm errors onto the package sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isDuplicate(err):
		return ErrDuplicate
	default:
		return err
	}
}

// isDuplicate recognises unique violations even when the driver has no error translator.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}
