package models

import "time"

const (
	TaskTitleMaxLength       = 50
	TaskDescriptionMaxLength = 500
)

// Task belongs to exactly one user. ID and UserID never change after insert.
// Timestamps are written by the service clock, not by gorm, so UpdatedAt can
// be kept strictly increasing.
type Task struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID      string    `json:"user_id" gorm:"type:varchar(36);not null;index:idx_tasks_user_created,priority:1"`
	Title       string    `json:"title" gorm:"type:varchar(50);not null"`
	Description string    `json:"description" gorm:"type:varchar(500);not null;default:''"`
	Completed   bool      `json:"completed" gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"created_at" gorm:"not null;autoCreateTime:false;index:idx_tasks_user_created,priority:2"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"not null;autoUpdateTime:false"`
}

func (Task) TableName() string {
	return "tasks"
}

func (t *Task) OwnedBy(userID string) bool {
	return t.UserID == userID
}
