package config

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/microblog/models"
)

// SchemaMigration records one applied migration step.
type SchemaMigration struct {
	Version   int       `gorm:"primaryKey;autoIncrement:false"`
	Name      string    `gorm:"size:128;not null"`
	AppliedAt time.Time `gorm:"not null"`
}

type migration struct {
	version int
	name    string
	up      func(tx *gorm.DB) error
}

// migrations are forward-only: append new steps, never edit applied ones.
var migrations = []migration{
	{
		version: 1,
		name:    "create_users_posts_comments_likes",
		up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.User{}, &models.Post{}, &models.Comment{}, &models.Like{})
		},
	},
	{
		// Databases imported from the earlier site may carry duplicate likes and no unique index.
		version: 2,
		name:    "likes_unique_user_post",
		up: func(tx *gorm.DB) error {
			if tx.Migrator().HasIndex(&models.Like{}, "idx_likes_user_post") {
				return nil
			}
			if err := tx.Exec(`DELETE FROM likes WHERE id NOT IN (
				SELECT id FROM (SELECT MIN(id) AS id FROM likes GROUP BY user_id, post_id) AS keep)`).Error; err != nil {
				return err
			}
			return tx.Migrator().CreateIndex(&models.Like{}, "idx_likes_user_post")
		},
	},
	{
		// Same for orphaned comments and likes left behind by post deletions that did not cascade.
		version: 3,
		name:    "drop_orphaned_comments_and_likes",
		up: func(tx *gorm.DB) error {
			if err := tx.Exec(`DELETE FROM comments WHERE post_id NOT IN (SELECT id FROM posts)`).Error; err != nil {
				return err
			}
			return tx.Exec(`DELETE FROM likes WHERE post_id NOT IN (SELECT id FROM posts)`).Error
		},
	},
}

// Migrate applies pending migrations in version order, each in its own transaction,
// and returns the names of the steps it applied.
func Migrate(db *gorm.DB) ([]string, error) {
	if err := db.AutoMigrate(&SchemaMigration{}); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	var applied []SchemaMigration
	if err := db.Find(&applied).Error; err != nil {
		return nil, fmt.Errorf("load applied migrations: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, m := range applied {
		done[m.Version] = true
	}

	var ran []string
	for _, m := range migrations {
		if done[m.version] {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.up(tx); err != nil {
				return err
			}
			return tx.Create(&SchemaMigration{Version: m.version, Name: m.name, AppliedAt: time.Now()}).Error
		})
		if err != nil {
			return ran, fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		ran = append(ran, m.name)
	}
	return ran, nil
}
