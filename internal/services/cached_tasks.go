package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"task-gateway/internal/cache"
	"task-gateway/internal/models"

	"go.uber.org/zap"
)

// CachedTaskService caches reads per owner and drops the owner's entries after
// every successful write. Cache failures are logged and never fail a request.
type CachedTaskService struct {
	taskService TaskService
	cache       cache.Cache
	ttl         time.Duration
	logger      *zap.Logger

	// Invalidation counters striped by owner. A read-through only keeps what
	// it stored if no invalidation of its stripe happened since it started.
	epochs [epochStripes]atomic.Uint64
}

const epochStripes = 256

func NewCachedTaskService(taskService TaskService, c cache.Cache, ttl time.Duration, logger *zap.Logger) *CachedTaskService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedTaskService{
		taskService: taskService,
		cache:       c,
		ttl:         ttl,
		logger:      logger.Named("task_cache"),
	}
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func ownerPrefix(userID string) string {
	return "tasks:" + userID + ":"
}

// ownerPattern matches every key under ownerPrefix(userID), with glob
// metacharacters in the id taken literally.
func ownerPattern(userID string) string {
	return "tasks:" + globEscaper.Replace(userID) + ":*"
}

func (s *CachedTaskService) epoch(userID string) *atomic.Uint64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &s.epochs[h.Sum32()%epochStripes]
}

func listKey(userID string, opts ListOptions) string {
	filter := "all"
	if opts.Completed != nil {
		filter = strconv.FormatBool(*opts.Completed)
	}
	return fmt.Sprintf("%slist:%d:%d:%s", ownerPrefix(userID), opts.Skip, opts.Limit, filter)
}

func itemKey(userID string, taskID uint) string {
	return fmt.Sprintf("%sitem:%d", ownerPrefix(userID), taskID)
}

func (s *CachedTaskService) Create(ctx context.Context, userID string, in TaskInput) (*models.Task, error) {
	task, err := s.taskService.Create(ctx, userID, in)
	if err != nil {
		return nil, err
	}
	s.invalidateOwner(ctx, userID)
	return task, nil
}

func (s *CachedTaskService) List(ctx context.Context, userID string, opts ListOptions) ([]models.Task, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	key := listKey(userID, opts)
	var cached []models.Task
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("task list cache read failed", zap.String("key", key), zap.Error(err))
	}

	started := s.epoch(userID).Load()
	tasks, err := s.taskService.List(ctx, userID, opts)
	if err != nil {
		return nil, err
	}

	s.storeIfCurrent(ctx, userID, key, tasks, started)
	return tasks, nil
}

func (s *CachedTaskService) Get(ctx context.Context, userID string, taskID uint) (*models.Task, error) {
	key := itemKey(userID, taskID)
	var cached models.Task
	if err := s.cache.Get(ctx, key, &cached); err == nil && cached.OwnedBy(userID) {
		return &cached, nil
	}

	started := s.epoch(userID).Load()
	task, err := s.taskService.Get(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}

	s.storeIfCurrent(ctx, userID, key, task, started)
	return task, nil
}

func (s *CachedTaskService) Update(ctx context.Context, userID string, taskID uint, upd TaskUpdate) (*models.Task, error) {
	task, err := s.taskService.Update(ctx, userID, taskID, upd)
	if err != nil {
		return nil, err
	}
	s.invalidateOwner(ctx, userID)
	return task, nil
}

func (s *CachedTaskService) ToggleComplete(ctx context.Context, userID string, taskID uint) (*models.Task, error) {
	task, err := s.taskService.ToggleComplete(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	s.invalidateOwner(ctx, userID)
	return task, nil
}

func (s *CachedTaskService) Delete(ctx context.Context, userID string, taskID uint) error {
	if err := s.taskService.Delete(ctx, userID, taskID); err != nil {
		return err
	}
	s.invalidateOwner(ctx, userID)
	return nil
}

// storeIfCurrent caches a value read from the database unless a mutation of
// the owner committed while it was being read. The epoch is checked again
// after the write: an invalidation that began in between either sees the
// entry and deletes it, or bumped the epoch first and the entry is dropped here.
func (s *CachedTaskService) storeIfCurrent(ctx context.Context, userID, key string, value interface{}, started uint64) {
	epoch := s.epoch(userID)
	if epoch.Load() != started {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		s.logger.Warn("task cache write failed", zap.String("key", key), zap.Error(err))
		return
	}
	if epoch.Load() != started {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Warn("stale task cache entry not removed", zap.String("key", key), zap.Error(err))
		}
	}
}

// invalidateOwner touches only the owner's keys; other users' cached lists
// stay warm.
func (s *CachedTaskService) invalidateOwner(ctx context.Context, userID string) {
	s.epoch(userID).Add(1)
	pattern := ownerPattern(userID)
	if err := s.cache.DeletePattern(ctx, pattern); err != nil {
		s.logger.Warn("task cache invalidation failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
