package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/microblog/models"
)

type likeRepo struct {
	db *gorm.DB
}

// Create inserts a like; a second like for the same (user, post) yields ErrDuplicate.
func (r *likeRepo) Create(ctx context.Context, like *models.Like) error {
	return translate(r.db.WithContext(ctx).Omit(clause.Associations).Create(like).Error)
}

func (r *likeRepo) Find(ctx context.Context, userID, postID uint) (*models.Like, error) {
	var like models.Like
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND post_id = ?", userID, postID).
		First(&like).Error
	if err != nil {
		return nil, translate(err)
	}
	return &like, nil
}

func (r *likeRepo) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Like{}, id).Error
}

func (r *likeRepo) CountByPost(ctx context.Context, postID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Like{}).Where("post_id = ?", postID).Count(&n).Error
	return n, err
}

func (r *likeRepo) DeleteByPost(ctx context.Context, postID uint) error {
	return r.db.WithContext(ctx).Where("post_id = ?", postID).Delete(&models.Like{}).Error
}
