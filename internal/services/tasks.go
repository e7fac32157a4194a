package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"task-gateway/internal/models"
	"task-gateway/internal/repositories"
)

type TaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
}

// TaskUpdate leaves nil fields untouched.
type TaskUpdate struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

type ListOptions struct {
	Skip      int
	Limit     int
	Completed *bool
}

// TaskService is the owner-scoped task contract. Every operation takes the
// authenticated user id; a task owned by someone else behaves exactly like a
// task that does not exist.
type TaskService interface {
	Create(ctx context.Context, userID string, in TaskInput) (*models.Task, error)
	List(ctx context.Context, userID string, opts ListOptions) ([]models.Task, error)
	Get(ctx context.Context, userID string, taskID uint) (*models.Task, error)
	Update(ctx context.Context, userID string, taskID uint, upd TaskUpdate) (*models.Task, error)
	ToggleComplete(ctx context.Context, userID string, taskID uint) (*models.Task, error)
	Delete(ctx context.Context, userID string, taskID uint) error
}

type TaskServiceImpl struct {
	repo *repositories.TaskRepository
	now  func() time.Time
}

func NewTaskService(repo *repositories.TaskRepository) *TaskServiceImpl {
	return &TaskServiceImpl{repo: repo, now: time.Now}
}

// WithClock replaces the time source. Tests use it to pin timestamps.
func (s *TaskServiceImpl) WithClock(now func() time.Time) *TaskServiceImpl {
	s.now = now
	return s
}

// clock is truncated to the precision PostgreSQL stores.
func (s *TaskServiceImpl) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// advance returns a timestamp strictly after prev even if the clock has not
// moved or went backwards.
func (s *TaskServiceImpl) advance(prev time.Time) time.Time {
	now := s.clock()
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

func (s *TaskServiceImpl) Create(ctx context.Context, userID string, in TaskInput) (*models.Task, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	now := s.clock()
	task := &models.Task{
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
		Completed:   in.Completed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskServiceImpl) List(ctx context.Context, userID string, opts ListOptions) ([]models.Task, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	return s.repo.ListByOwner(ctx, userID, repositories.TaskQuery{
		Offset:    opts.Skip,
		Limit:     opts.Limit,
		Completed: opts.Completed,
	})
}

func (s *TaskServiceImpl) Get(ctx context.Context, userID string, taskID uint) (*models.Task, error) {
	task, err := s.repo.FindOwned(ctx, userID, taskID)
	if err != nil {
		return nil, translateRepoError(err)
	}
	return task, nil
}

func (s *TaskServiceImpl) Update(ctx context.Context, userID string, taskID uint, upd TaskUpdate) (*models.Task, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, userID, taskID, func(task *models.Task) {
		if upd.Title != nil {
			task.Title = *upd.Title
		}
		if upd.Description != nil {
			task.Description = *upd.Description
		}
		if upd.Completed != nil {
			task.Completed = *upd.Completed
		}
	})
}

func (s *TaskServiceImpl) ToggleComplete(ctx context.Context, userID string, taskID uint) (*models.Task, error) {
	return s.mutate(ctx, userID, taskID, func(task *models.Task) {
		task.Completed = !task.Completed
	})
}

// Delete is not idempotent: a second call returns ErrNotFound.
func (s *TaskServiceImpl) Delete(ctx context.Context, userID string, taskID uint) error {
	return translateRepoError(s.repo.Delete(ctx, userID, taskID))
}

// mutate locks the owned row, applies fn and saves it in one transaction, so
// concurrent mutations of the same task apply one after another.
func (s *TaskServiceImpl) mutate(ctx context.Context, userID string, taskID uint, fn func(*models.Task)) (*models.Task, error) {
	var updated *models.Task
	err := s.repo.WithinTx(ctx, func(tx *repositories.TaskRepository) error {
		task, err := tx.LockOwned(ctx, userID, taskID)
		if err != nil {
			return err
		}

		fn(task)
		task.UpdatedAt = s.advance(task.UpdatedAt)

		if err := tx.Save(ctx, task); err != nil {
			return err
		}
		updated = task
		return nil
	})
	if err != nil {
		return nil, translateRepoError(err)
	}
	return updated, nil
}

func translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("task storage: %w", err)
}
