package repositories

import (
	"context"
	"errors"
	"fmt"

	"task-gateway/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

type TaskQuery struct {
	Offset    int
	Limit     int
	Completed *bool
}

// TaskRepository scopes every read and write by owner. There is no lookup by
// id alone.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// WithinTx runs fn with a repository bound to a single transaction. fn's error
// rolls the transaction back.
func (r *TaskRepository) WithinTx(ctx context.Context, fn func(tx *TaskRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&TaskRepository{db: tx})
	})
}

func (r *TaskRepository) Create(ctx context.Context, task *models.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// ListByOwner returns the owner's tasks most recent first. The id tie-break
// keeps the order stable for tasks created in the same instant.
func (r *TaskRepository) ListByOwner(ctx context.Context, userID string, q TaskQuery) ([]models.Task, error) {
	tx := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if q.Completed != nil {
		tx = tx.Where("completed = ?", *q.Completed)
	}

	tasks := make([]models.Task, 0)
	err := tx.Order("created_at DESC").
		Order("id DESC").
		Offset(q.Offset).
		Limit(q.Limit).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

func (r *TaskRepository) FindOwned(ctx context.Context, userID string, id uint) (*models.Task, error) {
	return r.findOwned(r.db.WithContext(ctx), userID, id)
}

// LockOwned reads the task with a row lock (FOR UPDATE). Use it inside
// WithinTx so the lock covers the following write.
func (r *TaskRepository) LockOwned(ctx context.Context, userID string, id uint) (*models.Task, error) {
	return r.findOwned(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), userID, id)
}

func (r *TaskRepository) findOwned(tx *gorm.DB, userID string, id uint) (*models.Task, error) {
	var task models.Task
	err := tx.Where("id = ? AND user_id = ?", id, userID).Take(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task %d: %w", id, err)
	}
	return &task, nil
}

// Save writes every column of an existing task, scoped by its owner.
func (r *TaskRepository) Save(ctx context.Context, task *models.Task) error {
	result := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ? AND user_id = ?", task.ID, task.UserID).
		Updates(map[string]interface{}{
			"title":       task.Title,
			"description": task.Description,
			"completed":   task.Completed,
			"updated_at":  task.UpdatedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update task %d: %w", task.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, userID string, id uint) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Task{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete task %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
