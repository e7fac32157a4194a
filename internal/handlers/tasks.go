package handlers

import (
	"net/http"
	"strconv"

	"task-gateway/internal/middleware"
	"task-gateway/internal/services"

	"github.com/gin-gonic/gin"
)

type TaskHandler struct {
	taskService services.TaskService
}

func NewTaskHandler(taskService services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// RegisterRoutes mounts the task routes on a group whose path carries
// :user_id. The group must already run middleware.Authenticate.
func (h *TaskHandler) RegisterRoutes(rg *gin.RouterGroup) {
	tasks := rg.Group("/tasks", RequireOwner())
	tasks.GET("", h.ListTasks)
	tasks.POST("", h.CreateTask)
	tasks.GET("/:id", h.GetTask)
	tasks.PUT("/:id", h.UpdateTask)
	tasks.DELETE("/:id", h.DeleteTask)
	tasks.PATCH("/:id/complete", h.ToggleComplete)
}

// RequireOwner stops requests whose :user_id differs from the authenticated
// identity.
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "User not authenticated"})
			return
		}
		if c.Param("user_id") != userID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "Not authorized to access these tasks"})
			return
		}
		c.Next()
	}
}

// taskID parses :id. A malformed id cannot name an owned task, so it is
// answered like a missing one.
func taskID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		writeError(c, services.ErrNotFound)
		return 0, false
	}
	return uint(id), true
}

func listOptions(c *gin.Context) (services.ListOptions, bool) {
	var opts services.ListOptions

	if raw := c.Query("skip"); raw != "" {
		skip, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "skip must be an integer")
			return opts, false
		}
		opts.Skip = skip
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "limit must be an integer")
			return opts, false
		}
		opts.Limit = limit
		if limit == 0 {
			// An explicit zero is out of range; only an absent limit defaults.
			opts.Limit = -1
		}
	}
	if raw := c.Query("completed"); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "completed must be a boolean")
			return opts, false
		}
		opts.Completed = &completed
	}
	return opts, true
}

func (h *TaskHandler) ListTasks(c *gin.Context) {
	opts, ok := listOptions(c)
	if !ok {
		return
	}

	tasks, err := h.taskService.List(c.Request.Context(), c.Param("user_id"), opts)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	var input services.TaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	task, err := h.taskService.Create(c.Request.Context(), c.Param("user_id"), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) GetTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	task, err := h.taskService.Get(c.Request.Context(), c.Param("user_id"), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	var upd services.TaskUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	task, err := h.taskService.Update(c.Request.Context(), c.Param("user_id"), id, upd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) ToggleComplete(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	task, err := h.taskService.ToggleComplete(c.Request.Context(), c.Param("user_id"), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}

	if err := h.taskService.Delete(c.Request.Context(), c.Param("user_id"), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task deleted successfully"})
}
