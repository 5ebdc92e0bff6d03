package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisTest 启动miniredis并创建队列
func setupRedisTest(t *testing.T) (*RedisQueue, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err, "Failed to create miniredis")

	queue, err := NewRedisQueue(&Config{
		RedisAddr:   mr.Addr(),
		Concurrency: 2,
		RetryLimit:  2,
		RetryDelay:  time.Second,
	})
	require.NoError(t, err)

	return queue, func() {
		queue.Close()
		mr.Close()
	}
}

func TestNewRedisQueue(t *testing.T) {
	queue, cleanup := setupRedisTest(t)
	defer cleanup()
	assert.NotNil(t, queue)

	_, err := NewRedisQueue(&Config{RedisAddr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestRedisQueue_Enqueue(t *testing.T) {
	queue, cleanup := setupRedisTest(t)
	defer cleanup()

	ctx := context.Background()
	payload := &ChunkDocumentPayload{DocumentID: "doc-123", ChunkLevel: 2, Label: "policy"}

	taskID, err := queue.Enqueue(ctx, TaskChunkDocument, "doc-123", payload)
	require.NoError(t, err)
	assert.NotEmpty(t, taskID)

	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, taskID, task.ID)
	assert.Equal(t, TaskChunkDocument, task.Type)
	assert.Equal(t, "doc-123", task.OwnerID)
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, 2, task.MaxRetries)

	var decoded ChunkDocumentPayload
	require.NoError(t, UnmarshalPayload(task.Payload, &decoded))
	assert.Equal(t, *payload, decoded)
}

func TestRedisQueue_GetTasksByOwner(t *testing.T) {
	queue, cleanup := setupRedisTest(t)
	defer cleanup()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := queue.Enqueue(ctx, TaskChunkDocument, "doc-456", &ChunkDocumentPayload{DocumentID: "doc-456", ChunkLevel: 1})
		require.NoError(t, err)
	}
	_, err := queue.Enqueue(ctx, TaskGlossaryBuild, "job-1", &GlossaryBuildPayload{JobID: "job-1"})
	require.NoError(t, err)

	tasks, err := queue.GetTasksByOwner(ctx, "doc-456")
	require.NoError(t, err)
	assert.Len(t, tasks, 3)
	for _, task := range tasks {
		assert.Equal(t, "doc-456", task.OwnerID)
	}

	empty, err := queue.GetTasksByOwner(ctx, "non-existent")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisQueue_UpdateTaskStatus(t *testing.T) {
	queue, cleanup := setupRedisTest(t)
	defer cleanup()

	ctx := context.Background()
	taskID, err := queue.Enqueue(ctx, TaskChunkDocument, "doc-789", &ChunkDocumentPayload{DocumentID: "doc-789", ChunkLevel: 1})
	require.NoError(t, err)

	require.NoError(t, queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, ""))
	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, task.Status)
	assert.Equal(t, 1, task.Attempts)
	assert.NotNil(t, task.StartedAt)

	require.NoError(t, queue.UpdateProgress(ctx, taskID, 140))
	task, err = queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, 100, task.Progress)

	result := &ChunkDocumentResult{DocumentID: "doc-789", ChunkCount: 4, HeadingCount: 6}
	require.NoError(t, queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, result, ""))

	task, err = queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.NotNil(t, task.CompletedAt)

	var decoded ChunkDocumentResult
	require.NoError(t, json.Unmarshal(task.Result, &decoded))
	assert.Equal(t, 4, decoded.ChunkCount)

	info := NewTaskInfo(task)
	assert.Equal(t, 100, info.Progress)
	assert.Equal(t, "doc-789", info.OwnerID)
}

func TestRedisQueue_WaitForTask(t *testing.T) {
	queue, cleanup := setupRedisTest(t)
	defer cleanup()

	ctx := context.Background()
	taskID, err := queue.Enqueue(ctx, TaskGlossaryBuild, "job-1", &GlossaryBuildPayload{JobID: "job-1"})
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = queue.UpdateTaskStatus(context.Background(), taskID, StatusFailed, nil, "scorer unavailable")
	}()

	task, err := queue.WaitForTask(ctx, taskID, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, "scorer unavailable", task.Error)

	// 超时
	pendingID, err := queue.Enqueue(ctx, TaskGlossaryBuild, "job-2", &GlossaryBuildPayload{JobID: "job-2"})
	require.NoError(t, err)
	_, err = queue.WaitForTask(ctx, pendingID, 200*time.Millisecond)
	assert.ErrorIs(t, err, ErrTaskTimeout)
}

func TestRedisQueue_DeleteTask(t *testing.T) {
	queue, cleanup := setupRedisTest(t)
	defer cleanup()

	ctx := context.Background()
	taskID, err := queue.Enqueue(ctx, TaskChunkDocument, "doc-delete", &ChunkDocumentPayload{DocumentID: "doc-delete", ChunkLevel: 1})
	require.NoError(t, err)

	require.NoError(t, queue.DeleteTask(ctx, taskID))

	_, err = queue.GetTask(ctx, taskID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	tasks, err := queue.GetTasksByOwner(ctx, "doc-delete")
	require.NoError(t, err)
	assert.Empty(t, tasks)

	assert.ErrorIs(t, queue.DeleteTask(ctx, taskID), ErrTaskNotFound)
}

func TestRedisWorker_Wrap(t *testing.T) {
	queue, cleanup := setupRedisTest(t)
	defer cleanup()

	ctx := context.Background()
	worker := NewRedisWorker(queue, nil)

	t.Run("success stores result", func(t *testing.T) {
		taskID, err := queue.Enqueue(ctx, TaskChunkDocument, "doc-1", &ChunkDocumentPayload{DocumentID: "doc-1", ChunkLevel: 1})
		require.NoError(t, err)

		handler := HandlerFunc(func(ctx context.Context, task *Task) (interface{}, error) {
			var p ChunkDocumentPayload
			if err := UnmarshalPayload(task.Payload, &p); err != nil {
				return nil, err
			}
			return &ChunkDocumentResult{DocumentID: p.DocumentID, ChunkCount: 3}, nil
		})

		err = worker.wrap(handler)(ctx, asynq.NewTask(string(TaskChunkDocument), []byte(taskID)))
		require.NoError(t, err)

		task, err := queue.GetTask(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, task.Status)
		assert.JSONEq(t, `{"document_id":"doc-1","line_count":0,"heading_count":0,"chunk_count":3,"coverage_gap":0}`, string(task.Result))
	})

	t.Run("failure outside asynq is final", func(t *testing.T) {
		taskID, err := queue.Enqueue(ctx, TaskGlossaryBuild, "job-1", &GlossaryBuildPayload{JobID: "job-1"})
		require.NoError(t, err)

		handler := HandlerFunc(func(ctx context.Context, task *Task) (interface{}, error) {
			return nil, errors.New("boom")
		})

		err = worker.wrap(handler)(ctx, asynq.NewTask(string(TaskGlossaryBuild), []byte(taskID)))
		assert.EqualError(t, err, "boom")

		task, err := queue.GetTask(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, task.Status)
		assert.Equal(t, "boom", task.Error)
	})

	t.Run("invalid payload skips retry", func(t *testing.T) {
		taskID, err := queue.Enqueue(ctx, TaskGlossaryBuild, "job-2", nil)
		require.NoError(t, err)

		handler := HandlerFunc(func(ctx context.Context, task *Task) (interface{}, error) {
			return nil, ErrInvalidPayload
		})

		err = worker.wrap(handler)(ctx, asynq.NewTask(string(TaskGlossaryBuild), []byte(taskID)))
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("missing task record", func(t *testing.T) {
		err := worker.wrap(HandlerFunc(func(ctx context.Context, task *Task) (interface{}, error) {
			t.Fatal("handler should not run")
			return nil, nil
		}))(ctx, asynq.NewTask(string(TaskChunkDocument), []byte("missing")))
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})
}

func TestNewQueueFactory(t *testing.T) {
	_, err := NewQueue("carrier-pigeon", DefaultConfig())
	assert.Error(t, err)
}
