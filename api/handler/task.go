package handler

import (
	"net/http"

	"github.com/fyerfyer/poli-golly/api/middleware"
	"github.com/fyerfyer/poli-golly/api/model"
	"github.com/fyerfyer/poli-golly/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TaskHandler 处理任务相关的API请求
type TaskHandler struct {
	queue  taskqueue.Queue // 任务队列
	logger *logrus.Logger  // 日志记录器
}

// NewTaskHandler 创建新的任务处理器
func NewTaskHandler(queue taskqueue.Queue) *TaskHandler {
	return &TaskHandler{
		queue:  queue,
		logger: middleware.GetLogger(),
	}
}

// GetTaskStatus 获取任务状态
// GET /api/tasks/:id
func (h *TaskHandler) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("id")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"任务ID不能为空",
		))
		return
	}

	task, err := h.queue.GetTask(c.Request.Context(), taskID)
	if err != nil {
		h.logger.WithError(err).WithField("task_id", taskID).Warn("Failed to get task")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(taskqueue.NewTaskInfo(task)))
}

// GetOwnerTasks 获取文档或术语表任务关联的全部队列任务
// GET /api/documents/:id/tasks
// GET /api/glossary/:id/tasks
func (h *TaskHandler) GetOwnerTasks(c *gin.Context) {
	ownerID := c.Param("id")
	if ownerID == "" {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"ID不能为空",
		))
		return
	}

	tasks, err := h.queue.GetTasksByOwner(c.Request.Context(), ownerID)
	if err != nil {
		h.logger.WithError(err).WithField("owner_id", ownerID).Error("Failed to get owner tasks")
		respondError(c, err)
		return
	}

	infos := make([]*taskqueue.TaskInfo, len(tasks))
	for i, task := range tasks {
		infos[i] = taskqueue.NewTaskInfo(task)
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(map[string]interface{}{
		"owner_id": ownerID,
		"tasks":    infos,
	}))
}
