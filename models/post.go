package models

import "time"

// Post is a blog entry owned by exactly one author.
type Post struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Title      string    `gorm:"size:100;not null" json:"title"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	DatePosted time.Time `gorm:"not null;index" json:"date_posted"`
	UserID     uint      `gorm:"index;not null" json:"user_id"`
	UpdatedAt  time.Time `json:"updated_at"`
	Author     User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
}
