package repositories_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"task-gateway/internal/models"
	"task-gateway/internal/repositories"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get underlying sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(&models.User{}, &models.Task{}); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

func seedTask(t *testing.T, repo *repositories.TaskRepository, userID, title string, created time.Time, completed bool) models.Task {
	t.Helper()
	task := models.Task{UserID: userID, Title: title, Completed: completed, CreatedAt: created, UpdatedAt: created}
	if err := repo.Create(context.Background(), &task); err != nil {
		t.Fatalf("Failed to seed task: %v", err)
	}
	return task
}

func TestTaskRepository_ListByOwner_OrderAndScope(t *testing.T) {
	repo := repositories.NewTaskRepository(setupTestDB(t))
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	oldest := seedTask(t, repo, "alice", "oldest", base, false)
	newest := seedTask(t, repo, "alice", "newest", base.Add(2*time.Minute), true)
	sameA := seedTask(t, repo, "alice", "same-a", base.Add(time.Minute), false)
	sameB := seedTask(t, repo, "alice", "same-b", base.Add(time.Minute), false)
	seedTask(t, repo, "bob", "bob's", base.Add(time.Hour), false)

	tasks, err := repo.ListByOwner(context.Background(), "alice", repositories.TaskQuery{Limit: 100})
	if err != nil {
		t.Fatalf("Failed to list tasks: %v", err)
	}

	expected := []uint{newest.ID, sameB.ID, sameA.ID, oldest.ID}
	if len(tasks) != len(expected) {
		t.Fatalf("Expected %d tasks, got %d", len(expected), len(tasks))
	}
	for i, id := range expected {
		if tasks[i].ID != id {
			t.Errorf("Position %d: expected task %d, got %d", i, id, tasks[i].ID)
		}
		if tasks[i].UserID != "alice" {
			t.Errorf("Expected only alice's tasks, got owner %s", tasks[i].UserID)
		}
	}
}

func TestTaskRepository_ListByOwner_FilterAndPaging(t *testing.T) {
	repo := repositories.NewTaskRepository(setupTestDB(t))
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		seedTask(t, repo, "alice", "task", base.Add(time.Duration(i)*time.Minute), i%2 == 0)
	}

	done := true
	tasks, err := repo.ListByOwner(context.Background(), "alice", repositories.TaskQuery{Limit: 100, Completed: &done})
	if err != nil {
		t.Fatalf("Failed to list tasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Errorf("Expected 3 completed tasks, got %d", len(tasks))
	}

	page, err := repo.ListByOwner(context.Background(), "alice", repositories.TaskQuery{Offset: 1, Limit: 2})
	if err != nil {
		t.Fatalf("Failed to list tasks: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("Expected a page of 2 tasks, got %d", len(page))
	}

	empty, err := repo.ListByOwner(context.Background(), "nobody", repositories.TaskQuery{Limit: 100})
	if err != nil {
		t.Fatalf("Failed to list tasks: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Errorf("Expected an empty non-nil list, got %#v", empty)
	}
}

func TestTaskRepository_FindOwned(t *testing.T) {
	repo := repositories.NewTaskRepository(setupTestDB(t))
	task := seedTask(t, repo, "alice", "mine", time.Now().UTC(), false)

	found, err := repo.FindOwned(context.Background(), "alice", task.ID)
	if err != nil {
		t.Fatalf("Expected to find task, got %v", err)
	}
	if found.Title != "mine" {
		t.Errorf("Expected title 'mine', got '%s'", found.Title)
	}

	if _, err := repo.FindOwned(context.Background(), "bob", task.ID); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a foreign task, got %v", err)
	}
	if _, err := repo.FindOwned(context.Background(), "alice", task.ID+100); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a missing task, got %v", err)
	}
}

func TestTaskRepository_SaveAndDeleteAreScoped(t *testing.T) {
	repo := repositories.NewTaskRepository(setupTestDB(t))
	task := seedTask(t, repo, "alice", "mine", time.Now().UTC(), false)

	forged := task
	forged.UserID = "bob"
	forged.Title = "hijacked"
	if err := repo.Save(context.Background(), &forged); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("Expected ErrNotFound when saving under another owner, got %v", err)
	}
	if err := repo.Delete(context.Background(), "bob", task.ID); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("Expected ErrNotFound when deleting under another owner, got %v", err)
	}

	task.Title = "renamed"
	if err := repo.Save(context.Background(), &task); err != nil {
		t.Fatalf("Failed to save: %v", err)
	}
	reloaded, _ := repo.FindOwned(context.Background(), "alice", task.ID)
	if reloaded.Title != "renamed" {
		t.Errorf("Expected title 'renamed', got '%s'", reloaded.Title)
	}

	if err := repo.Delete(context.Background(), "alice", task.ID); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if err := repo.Delete(context.Background(), "alice", task.ID); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

func TestTaskRepository_WithinTxRollsBack(t *testing.T) {
	repo := repositories.NewTaskRepository(setupTestDB(t))
	task := seedTask(t, repo, "alice", "before", time.Now().UTC(), false)

	boom := errors.New("boom")
	err := repo.WithinTx(context.Background(), func(tx *repositories.TaskRepository) error {
		locked, err := tx.LockOwned(context.Background(), "alice", task.ID)
		if err != nil {
			return err
		}
		locked.Title = "during"
		if err := tx.Save(context.Background(), locked); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the callback error, got %v", err)
	}

	reloaded, _ := repo.FindOwned(context.Background(), "alice", task.ID)
	if reloaded.Title != "before" {
		t.Errorf("Expected rollback to keep 'before', got '%s'", reloaded.Title)
	}
}

func TestUserRepository_CreateAndFind(t *testing.T) {
	repo := repositories.NewUserRepository(setupTestDB(t))
	ctx := context.Background()

	user := models.User{ID: "u-1", Email: "alice@example.com", Name: "Alice", Password: "hash"}
	if err := repo.Create(ctx, &user); err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	byEmail, err := repo.FindByEmail(ctx, "  ALICE@example.com")
	if err != nil {
		t.Fatalf("Failed to find by email: %v", err)
	}
	if byEmail.ID != "u-1" {
		t.Errorf("Expected id u-1, got %s", byEmail.ID)
	}

	if _, err := repo.FindByID(ctx, "u-1"); err != nil {
		t.Errorf("Failed to find by id: %v", err)
	}
	if _, err := repo.FindByID(ctx, "missing"); !errors.Is(err, repositories.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	dup := models.User{ID: "u-2", Email: "alice@example.com", Password: "hash"}
	if err := repo.Create(ctx, &dup); !errors.Is(err, repositories.ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}
}
