package api

import (
	"net/http"

	"github.com/fyerfyer/poli-golly/api/handler"
	"github.com/fyerfyer/poli-golly/api/middleware"
	"github.com/fyerfyer/poli-golly/internal/database"
	"github.com/gin-gonic/gin"
)

// Handlers 路由使用的全部处理器
// Task为空时不注册任务查询接口
type Handlers struct {
	Document *handler.DocumentHandler
	Convert  *handler.ConvertHandler
	Glossary *handler.GlossaryHandler
	Task     *handler.TaskHandler
}

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件，maxUploadSize限制请求体字节数
func SetupRouter(h Handlers, maxUploadSize int64) *gin.Engine {
	router := gin.New()

	// 追踪ID需要先于错误处理设置
	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())
	router.Use(Cors())
	router.Use(middleware.BodyLimit(maxUploadSize))

	// 在调试模式下记录请求体和响应体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
		router.Use(middleware.ResponseLogger())
	}

	api := router.Group("/api")
	{
		// 文档转换API
		api.POST("/convert", h.Convert.Convert)
		api.POST("/definitions", h.Convert.ParseDefinitions)

		// 文档分块API
		docGroup := api.Group("/documents")
		{
			docGroup.POST("", h.Document.UploadDocument)
			docGroup.GET("", h.Document.ListDocuments)
			docGroup.GET("/:id", h.Document.GetDocument)
			docGroup.DELETE("/:id", h.Document.DeleteDocument)
			docGroup.POST("/:id/chunk", h.Document.RechunkDocument)
			docGroup.GET("/:id/chunks", h.Document.ListChunks)
			docGroup.GET("/:id/chunks/:index", h.Document.GetChunk)
			docGroup.GET("/:id/chunks/:index/preview", h.Document.PreviewChunk)
			docGroup.GET("/:id/bundle", h.Document.DownloadBundle)
		}

		// 术语表API
		glossaryGroup := api.Group("/glossary")
		{
			glossaryGroup.POST("", h.Glossary.CreateJob)
			glossaryGroup.GET("", h.Glossary.ListJobs)
			glossaryGroup.GET("/:id", h.Glossary.GetJob)
			glossaryGroup.GET("/:id/download", h.Glossary.DownloadResult)
		}

		// 任务查询API，仅在启用任务队列时可用
		if h.Task != nil {
			api.GET("/tasks/:id", h.Task.GetTaskStatus)
			docGroup.GET("/:id/tasks", h.Task.GetOwnerTasks)
			glossaryGroup.GET("/:id/tasks", h.Task.GetOwnerTasks)
		}

		// 健康检查API
		api.GET("/health", func(c *gin.Context) {
			if err := database.Ping(c.Request.Context()); err != nil {
				middleware.GetLogger().WithError(err).Error("Health check failed")
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":   "unavailable",
					"database": err.Error(),
				})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"status":   "ok",
				"database": "ok",
			})
		})
	}

	return router
}

// Cors 跨域资源共享中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Trace-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
