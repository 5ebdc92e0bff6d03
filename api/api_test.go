package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fyerfyer/poli-golly/api/handler"
	"github.com/fyerfyer/poli-golly/internal/cache"
	"github.com/fyerfyer/poli-golly/internal/database"
	"github.com/fyerfyer/poli-golly/internal/glossary"
	"github.com/fyerfyer/poli-golly/internal/repository"
	"github.com/fyerfyer/poli-golly/internal/services"
	"github.com/fyerfyer/poli-golly/pkg/storage"
	"github.com/fyerfyer/poli-golly/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const policyMarkdown = "Preamble text\n" +
	"# Chapter I General\n" +
	"## Article 1 Scope\n" +
	"Body one.\n" +
	"## Article 2, Terms\n" +
	"Body two.\n" +
	"# Annex I\n" +
	"Annex body."

// 测试环境配置
type testEnv struct {
	Router          *gin.Engine
	Storage         storage.Storage
	ChunkService    *services.ChunkService
	GlossaryService *services.GlossaryService
	Queue           taskqueue.Queue
}

// apiResponse 用于解析统一响应结构
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	TraceID string          `json:"trace_id"`
}

// 创建测试环境，queue不为空时启用异步处理
func setupTestEnv(t *testing.T, queue taskqueue.Queue) *testEnv {
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	require.NoError(t, database.SetupInMemory(fmt.Sprintf("api_%d", time.Now().UnixNano()), logger))
	t.Cleanup(func() {
		_ = database.Close()
		database.DB = nil
	})

	fileStorage, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	cacheService, err := cache.NewCache(cache.Config{
		Type:            "memory",
		DefaultTTL:      time.Hour,
		CleanupInterval: time.Minute,
	})
	require.NoError(t, err)

	docRepo := repository.NewDocumentRepository()
	chunkOpts := []services.ChunkOption{
		services.WithLogger(logger),
		services.WithDocumentRepository(docRepo),
		services.WithStatusManager(services.NewDocumentStatusManager(docRepo, logger)),
		services.WithCache(cacheService, time.Hour),
		services.WithDefaultLevel(1),
		services.WithTimeout(10 * time.Second),
	}

	scorer, err := glossary.NewScorer(glossary.Config{Scorer: "keyword"})
	require.NoError(t, err)
	glossaryOpts := []services.GlossaryOption{
		services.WithGlossaryLogger(logger),
		services.WithGlossaryRepository(repository.NewGlossaryRepository()),
		services.WithScorerName("keyword"),
		services.WithScoring(2, 0),
	}

	var taskHandler *handler.TaskHandler
	if queue != nil {
		chunkOpts = append(chunkOpts, services.WithTaskQueue(queue))
		glossaryOpts = append(glossaryOpts, services.WithGlossaryTaskQueue(queue))
		taskHandler = handler.NewTaskHandler(queue)
	}

	chunkService := services.NewChunkService(fileStorage, chunkOpts...)
	require.NoError(t, chunkService.Init())
	glossaryService := services.NewGlossaryService(fileStorage, scorer, glossaryOpts...)
	require.NoError(t, glossaryService.Init())

	router := SetupRouter(Handlers{
		Document: handler.NewDocumentHandler(chunkService),
		Convert:  handler.NewConvertHandler(services.NewConvertService(nil, logger)),
		Glossary: handler.NewGlossaryHandler(glossaryService),
		Task:     taskHandler,
	}, 1<<20)

	return &testEnv{
		Router:          router,
		Storage:         fileStorage,
		ChunkService:    chunkService,
		GlossaryService: glossaryService,
		Queue:           queue,
	}
}

// uploadFile 上传的文件
type uploadFile struct {
	Field   string
	Name    string
	Content []byte
}

// newMultipartRequest 构建multipart请求
func newMultipartRequest(t *testing.T, method, url string, files []uploadFile, fields map[string]string) *http.Request {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, f := range files {
		part, err := writer.CreateFormFile(f.Field, f.Name)
		require.NoError(t, err)
		_, err = part.Write(f.Content)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(method, url, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// perform 执行请求并返回响应记录
func (env *testEnv) perform(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)
	return w
}

// get 执行GET请求
func (env *testEnv) get(url string) *httptest.ResponseRecorder {
	return env.perform(httptest.NewRequest(http.MethodGet, url, nil))
}

// decode 解析统一响应并将data解析到out
func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) apiResponse {
	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	if out != nil && len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, out))
	}
	return resp
}

// TestHealthCheck 测试健康检查接口
func TestHealthCheck(t *testing.T) {
	env := setupTestEnv(t, nil)

	w := env.get("/api/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","database":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	w = env.perform(req)
	assert.Equal(t, "trace-123", w.Header().Get("X-Trace-ID"))

	t.Run("database unavailable", func(t *testing.T) {
		db := database.DB
		database.DB = nil
		defer func() { database.DB = db }()

		w := env.get("/api/health")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.JSONEq(t, `{"status":"unavailable","database":"database not initialized"}`, w.Body.String())
	})
}

// TestConvert 测试文档转换接口
func TestConvert(t *testing.T) {
	env := setupTestEnv(t, nil)

	t.Run("text with heading map", func(t *testing.T) {
		req := newMultipartRequest(t, http.MethodPost, "/api/convert",
			[]uploadFile{{Field: "file", Name: "act.txt", Content: []byte("Chapter I General\nArticle 1 Scope\nBody")}},
			map[string]string{"heading_map": "Chapter:1,Article:2"},
		)
		w := env.perform(req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var res services.ConvertResult
		resp := decode(t, w, &res)
		assert.Equal(t, 0, resp.Code)
		assert.Equal(t, "act.md", res.FileName)
		assert.Equal(t, "# Chapter I General\n\n## Article 1 Scope\n\nBody\n", res.Markdown)
	})

	t.Run("download as markdown file", func(t *testing.T) {
		req := newMultipartRequest(t, http.MethodPost, "/api/convert?download=true",
			[]uploadFile{{Field: "file", Name: "act.html", Content: []byte("<h1>Act</h1><p>Body</p>")}},
			nil,
		)
		w := env.perform(req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="act.md"`)
		assert.Contains(t, w.Body.String(), "# Act")
	})

	t.Run("invalid heading map", func(t *testing.T) {
		req := newMultipartRequest(t, http.MethodPost, "/api/convert",
			[]uploadFile{{Field: "file", Name: "act.txt", Content: []byte("x")}},
			map[string]string{"heading_map": "Chapter:nine"},
		)
		w := env.perform(req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decode(t, w, nil)
		assert.Equal(t, "无效的标题映射", resp.Message)
		assert.NotEmpty(t, resp.TraceID)
	})

	t.Run("unsupported type", func(t *testing.T) {
		req := newMultipartRequest(t, http.MethodPost, "/api/convert",
			[]uploadFile{{Field: "file", Name: "act.docx", Content: []byte("x")}},
			nil,
		)
		w := env.perform(req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		req := newMultipartRequest(t, http.MethodPost, "/api/convert", nil, map[string]string{"heading_map": ""})
		w := env.perform(req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

// TestParseDefinitions 测试定义表解析接口
func TestParseDefinitions(t *testing.T) {
	env := setupTestEnv(t, nil)

	req := newMultipartRequest(t, http.MethodPost, "/api/definitions",
		[]uploadFile{{Field: "file", Name: "terms.csv", Content: []byte("Sub-term,Definition\nProvider,A person\nDeployer\n")}},
		nil,
	)
	w := env.perform(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var table struct {
		Headers []string   `json:"headers"`
		Rows    [][]string `json:"rows"`
	}
	decode(t, w, &table)
	assert.Equal(t, []string{"Sub-term", "Definition"}, table.Headers)
	assert.Equal(t, [][]string{{"Provider", "A person"}, {"Deployer", ""}}, table.Rows)

	req = newMultipartRequest(t, http.MethodPost, "/api/definitions",
		[]uploadFile{{Field: "file", Name: "terms.json", Content: []byte("{}")}},
		nil,
	)
	w = env.perform(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "请上传CSV或XLSX格式的定义表", decode(t, w, nil).Message)

	req = newMultipartRequest(t, http.MethodPost, "/api/definitions",
		[]uploadFile{{Field: "file", Name: "terms.csv", Content: []byte("Sub-term,Definition\n")}},
		nil,
	)
	w = env.perform(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestBodyLimit 测试请求体大小限制
func TestBodyLimit(t *testing.T) {
	env := setupTestEnv(t, nil)

	big := strings.Repeat("a", 2<<20)
	req := newMultipartRequest(t, http.MethodPost, "/api/documents",
		[]uploadFile{{Field: "file", Name: "big.md", Content: []byte(big)}},
		nil,
	)
	w := env.perform(req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code, w.Body.String())
}

// TestCors 测试跨域预检请求
func TestCors(t *testing.T) {
	env := setupTestEnv(t, nil)

	w := env.perform(httptest.NewRequest(http.MethodOptions, "/api/documents", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
