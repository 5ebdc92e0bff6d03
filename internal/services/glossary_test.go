package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/poli-golly/internal/definitions"
	"github.com/fyerfyer/poli-golly/internal/glossary"
	"github.com/fyerfyer/poli-golly/internal/models"
	"github.com/fyerfyer/poli-golly/internal/repository"
	"github.com/fyerfyer/poli-golly/pkg/storage"
	"github.com/fyerfyer/poli-golly/pkg/taskqueue"
)

const definitionsCSV = "Sub-term,Definition\n" +
	"Provider,A natural or legal person that develops a system\n" +
	"Deployer,A person using a system under its authority\n"

// setupGlossaryTestEnv 设置术语表服务的测试环境
func setupGlossaryTestEnv(t *testing.T, opts ...GlossaryOption) *GlossaryService {
	_, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)

	store, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	scorer, err := glossary.NewScorer(glossary.Config{Scorer: "keyword"})
	require.NoError(t, err)

	base := []GlossaryOption{
		WithGlossaryLogger(logrus.New()),
		WithGlossaryRepository(repository.NewGlossaryRepository()),
		WithScoring(2, 0),
		WithGlossaryTimeout(10 * time.Second),
	}
	return NewGlossaryService(store, scorer, append(base, opts...)...)
}

// chunksZip 生成分块压缩包
func chunksZip(t *testing.T, files ...[2]string) []byte {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f[0])
		require.NoError(t, err)
		_, err = io.WriteString(w, f[1])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func policyChunks(t *testing.T) []byte {
	return chunksZip(t,
		[2]string{"policy__Article_1.md", "# policy, Article 1\n\nThe provider shall register."},
		[2]string{"policy__Article_2.md", "# policy, Article 2\n\nObligations of the deployer."},
		[2]string{"policy__Article_3.md", "# policy, Article 3\n\nFinal provisions."},
	)
}

func TestGlossaryService_CreateJobSync(t *testing.T) {
	srv := setupGlossaryTestEnv(t)
	ctx := context.Background()

	job, err := srv.CreateJob(ctx, bytes.NewReader(policyChunks(t)), "policy_chunks.zip", strings.NewReader(definitionsCSV), "terms.csv")
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusCompleted, job.Status)
	assert.Equal(t, 3, job.ChunkCount)
	assert.Equal(t, 2, job.TermCount)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, "keyword", job.Scorer)
	assert.NotNil(t, job.CompletedAt)
	assert.True(t, strings.HasPrefix(job.ResultName, "glossary_results_"))
	assert.True(t, strings.HasSuffix(job.ResultName, ".xlsx"))

	t.Run("results in archive order", func(t *testing.T) {
		res, err := srv.Results(ctx, job.ID, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"Deployer", "Provider"}, res.Terms)
		require.Len(t, res.Results, 3)
		assert.Equal(t, "policy__Article_1.md", res.Results[0].ChunkInfo)
		assert.Equal(t, "Provider||1.000", res.Results[0].KeyTerms)
		assert.Equal(t, "Deployer||1.000", res.Results[1].KeyTerms)
		assert.Equal(t, "", res.Results[2].KeyTerms)
		assert.Equal(t, "# policy, Article 3\n\nFinal provisions.", res.Results[2].ChunkText)
	})

	t.Run("sorted by term", func(t *testing.T) {
		res, err := srv.Results(ctx, job.ID, "Deployer")
		require.NoError(t, err)
		assert.Equal(t, "Deployer", res.SortedBy)
		assert.Equal(t, "policy__Article_2.md", res.Results[0].ChunkInfo)
		assert.Equal(t, "policy__Article_1.md", res.Results[1].ChunkInfo)
	})

	t.Run("download", func(t *testing.T) {
		rc, name, err := srv.OpenResult(ctx, job.ID)
		require.NoError(t, err)
		defer rc.Close()
		assert.Equal(t, job.ResultName, name)

		results, err := glossary.ReadXLSX(rc)
		require.NoError(t, err)
		assert.Len(t, results, 3)
	})

	jobs, total, err := srv.ListJobs(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, job.ID, jobs[0].ID)
}

func TestGlossaryService_Validation(t *testing.T) {
	srv := setupGlossaryTestEnv(t)
	ctx := context.Background()

	_, err := srv.CreateJob(ctx, bytes.NewReader(policyChunks(t)), "c.zip", strings.NewReader("Term,Meaning\nA,B\n"), "terms.csv")
	assert.ErrorIs(t, err, definitions.ErrColumnNotFound)

	_, err = srv.CreateJob(ctx, bytes.NewReader(policyChunks(t)), "c.zip", strings.NewReader("Sub-term,Definition\n"), "terms.csv")
	assert.ErrorIs(t, err, definitions.ErrTooFewRows)

	_, err = srv.CreateJob(ctx, bytes.NewReader(policyChunks(t)), "c.zip", strings.NewReader("Sub-term,Definition\n ,x\n"), "terms.csv")
	assert.ErrorIs(t, err, ErrNoTerms)

	_, err = srv.CreateJob(ctx, bytes.NewReader(policyChunks(t)), "c.zip", strings.NewReader(definitionsCSV), "terms.json")
	assert.ErrorIs(t, err, definitions.ErrUnsupportedFormat)

	noMarkdown := chunksZip(t, [2]string{"readme.txt", "text"})
	_, err = srv.CreateJob(ctx, bytes.NewReader(noMarkdown), "c.zip", strings.NewReader(definitionsCSV), "terms.csv")
	assert.ErrorIs(t, err, ErrNoChunks)

	_, err = srv.CreateJob(ctx, strings.NewReader("not a zip"), "c.zip", strings.NewReader(definitionsCSV), "terms.csv")
	assert.Error(t, err)

	_, total, err := srv.ListJobs(ctx, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total, "invalid uploads do not create jobs")

	_, err = srv.Results(ctx, "missing", "")
	assert.ErrorIs(t, err, models.ErrGlossaryJobNotFound)
}

func TestGlossaryService_CustomColumns(t *testing.T) {
	srv := setupGlossaryTestEnv(t, WithTermColumns("Term", "Meaning"), WithScorerName("custom"))
	ctx := context.Background()

	job, err := srv.CreateJob(ctx, bytes.NewReader(policyChunks(t)), "c.zip", strings.NewReader("Term,Meaning\nprovisions,end\n"), "terms.csv")
	require.NoError(t, err)
	assert.Equal(t, "custom", job.Scorer)

	res, err := srv.Results(ctx, job.ID, "provisions")
	require.NoError(t, err)
	assert.Equal(t, "policy__Article_3.md", res.Results[0].ChunkInfo)
	assert.Equal(t, []string{"provisions"}, res.Terms)
}

func TestGlossaryService_Async(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	queue, err := taskqueue.NewRedisQueue(&taskqueue.Config{RedisAddr: mr.Addr()})
	require.NoError(t, err)
	defer queue.Close()

	srv := setupGlossaryTestEnv(t, WithGlossaryTaskQueue(queue))
	ctx := context.Background()

	job, err := srv.CreateJob(ctx, bytes.NewReader(policyChunks(t)), "policy_chunks.zip", strings.NewReader(definitionsCSV), "terms.csv")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	require.NotEmpty(t, job.TaskID)

	_, err = srv.Results(ctx, job.ID, "")
	assert.ErrorIs(t, err, ErrJobNotReady)
	_, _, err = srv.OpenResult(ctx, job.ID)
	assert.ErrorIs(t, err, ErrJobNotReady)

	task, err := queue.GetTask(ctx, job.TaskID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.TaskGlossaryBuild, task.Type)

	result, err := srv.HandleGlossaryTask(ctx, task)
	require.NoError(t, err)
	built, ok := result.(taskqueue.GlossaryBuildResult)
	require.True(t, ok)
	assert.Equal(t, job.ID, built.JobID)
	assert.Equal(t, 3, built.ChunkCount)
	assert.Equal(t, 2, built.TermCount)
	assert.NotEmpty(t, built.ResultFile)

	// 已完成的任务再次执行直接返回
	again, err := srv.RunJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, built.ResultFile, again.ResultFile)

	_, err = srv.HandleGlossaryTask(ctx, &taskqueue.Task{Payload: json.RawMessage(`{}`)})
	assert.ErrorIs(t, err, taskqueue.ErrInvalidPayload)

	_, err = srv.HandleGlossaryTask(ctx, &taskqueue.Task{Payload: json.RawMessage(`{"job_id":"missing"}`)})
	assert.ErrorIs(t, err, taskqueue.ErrInvalidPayload)
}
