package models_test

import (
	"testing"
	"time"

	"task-gateway/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Task{}); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

func TestTask_OwnedBy(t *testing.T) {
	task := models.Task{ID: 1, UserID: "user-a", Title: "Test Task"}

	if !task.OwnedBy("user-a") {
		t.Error("Expected task to be owned by user-a")
	}
	if task.OwnedBy("user-b") {
		t.Error("Expected task not to be owned by user-b")
	}
}

func TestTask_TimestampsAreNotManagedByGorm(t *testing.T) {
	db := openTestDB(t)

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	task := models.Task{UserID: "user-a", Title: "Pinned", CreatedAt: created, UpdatedAt: created}
	if err := db.Create(&task).Error; err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	task.Title = "Renamed"
	if err := db.Save(&task).Error; err != nil {
		t.Fatalf("Failed to save task: %v", err)
	}

	var stored models.Task
	if err := db.First(&stored, task.ID).Error; err != nil {
		t.Fatalf("Failed to reload task: %v", err)
	}

	if !stored.UpdatedAt.Equal(created) {
		t.Errorf("Expected UpdatedAt %v to be left alone, got %v", created, stored.UpdatedAt)
	}
	if stored.ID == 0 {
		t.Error("Expected an assigned id")
	}
}

func TestUser_EmailIsUnique(t *testing.T) {
	db := openTestDB(t)

	first := models.User{ID: "u1", Email: "a@example.com", Password: "hash"}
	if err := db.Create(&first).Error; err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	second := models.User{ID: "u2", Email: "a@example.com", Password: "hash"}
	if err := db.Create(&second).Error; err == nil {
		t.Error("Expected duplicate email to be rejected")
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := map[string]string{
		"  Alice@Example.COM ": "alice@example.com",
		"bob@example.com":      "bob@example.com",
		"":                     "",
	}

	for in, expected := range tests {
		if got := models.NormalizeEmail(in); got != expected {
			t.Errorf("NormalizeEmail(%q): expected %q, got %q", in, expected, got)
		}
	}
}
