package models

import "time"

// User is a registered account. Passwords are stored as hashes only.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:64;not null;uniqueIndex:idx_users_username" json:"username"`
	Email        string    `gorm:"size:120;not null;uniqueIndex:idx_users_email" json:"email"`
	PasswordHash string    `gorm:"column:password;size:255;not null" json:"-"`
	IsAdmin      bool      `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}
