package models

import (
	"strings"
	"time"
)

type User struct {
	ID       string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Email    string `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	Name     string `json:"name" gorm:"type:varchar(100)"`
	Password string `json:"-" gorm:"not null"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// NormalizeEmail is applied before every lookup and insert so the unique
// index is effectively case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
