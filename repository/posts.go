package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/microblog/models"
)

type postRepo struct {
	db *gorm.DB
}

func (r *postRepo) Create(ctx context.Context, post *models.Post) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error)
}

func (r *postRepo) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	var post models.Post
	if err := r.db.WithContext(ctx).Preload("Author").First(&post, id).Error; err != nil {
		return nil, translate(err)
	}
	return &post, nil
}

// List returns every post, newest first.
func (r *postRepo) List(ctx context.Context) ([]models.Post, error) {
	var posts []models.Post
	err := r.db.WithContext(ctx).Preload("Author").
		Order("date_posted DESC").Order("id DESC").
		Find(&posts).Error
	return posts, err
}

// ListByAuthor returns the posts of one author, newest first.
func (r *postRepo) ListByAuthor(ctx context.Context, userID uint) ([]models.Post, error) {
	var posts []models.Post
	err := r.db.WithContext(ctx).Preload("Author").
		Where("user_id = ?", userID).
		Order("date_posted DESC").Order("id DESC").
		Find(&posts).Error
	return posts, err
}

// UpdateContent overwrites title and content only; author and date_posted are left alone.
func (r *postRepo) UpdateContent(ctx context.Context, id uint, title, content string) error {
	err := r.db.WithContext(ctx).Model(&models.Post{ID: id}).
		Updates(map[string]interface{}{"title": title, "content": content}).Error
	return translate(err)
}

// Delete removes the post row only. Callers remove dependents first.
func (r *postRepo) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Post{}, id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
