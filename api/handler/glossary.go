package handler

import (
	"io"
	"net/http"

	"github.com/fyerfyer/poli-golly/api/middleware"
	"github.com/fyerfyer/poli-golly/api/model"
	"github.com/fyerfyer/poli-golly/internal/models"
	"github.com/fyerfyer/poli-golly/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// xlsxContentType XLSX文件的MIME类型
const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// GlossaryHandler 处理术语表相关的API请求
type GlossaryHandler struct {
	glossaryService *services.GlossaryService // 术语表服务
	logger          *logrus.Logger            // 日志记录器
}

// NewGlossaryHandler 创建新的术语表处理器
func NewGlossaryHandler(glossaryService *services.GlossaryService) *GlossaryHandler {
	return &GlossaryHandler{
		glossaryService: glossaryService,
		logger:          middleware.GetLogger(),
	}
}

// CreateJob 上传分块压缩包和定义表并创建术语表任务
// POST /api/glossary
func (h *GlossaryHandler) CreateJob(c *gin.Context) {
	var req model.GlossaryRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid glossary request")
		respondBindError(c, err, "请同时上传分块压缩包和定义表")
		return
	}

	chunks, err := req.ZipFile.Open()
	if err != nil {
		h.logger.WithError(err).Error("Failed to open chunks archive")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(http.StatusInternalServerError, "无法打开上传的文件"))
		return
	}
	defer chunks.Close()

	defs, err := req.DefinitionsFile.Open()
	if err != nil {
		h.logger.WithError(err).Error("Failed to open definitions file")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(http.StatusInternalServerError, "无法打开上传的文件"))
		return
	}
	defer defs.Close()

	job, err := h.glossaryService.CreateJob(c.Request.Context(),
		chunks, req.ZipFile.Filename,
		defs, req.DefinitionsFile.Filename,
	)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":       err.Error(),
			"zip_file":    req.ZipFile.Filename,
			"definitions": req.DefinitionsFile.Filename,
		}).Error("Failed to create glossary job")

		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewGlossaryJobInfo(job)))
}

// ListJobs 获取术语表任务列表
// GET /api/glossary
func (h *GlossaryHandler) ListJobs(c *gin.Context) {
	var req model.PaginationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的查询参数"))
		return
	}

	jobs, total, err := h.glossaryService.ListJobs(c.Request.Context(), req.Offset(), req.GetPageSize())
	if err != nil {
		respondError(c, err)
		return
	}

	infos := make([]model.GlossaryJobInfo, 0, len(jobs))
	for _, job := range jobs {
		infos = append(infos, model.NewGlossaryJobInfo(job))
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.GlossaryListResponse{
		Total:    total,
		Page:     req.GetPage(),
		PageSize: req.GetPageSize(),
		Jobs:     infos,
	}))
}

// GetJob 获取术语表任务，完成后附带结果
// GET /api/glossary/:id?sort=术语
func (h *GlossaryHandler) GetJob(c *gin.Context) {
	var uri model.DocumentURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的任务ID"))
		return
	}
	var query model.GlossaryResultRequest
	_ = c.ShouldBindQuery(&query)

	job, err := h.glossaryService.GetJob(c.Request.Context(), uri.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := model.GlossaryJobResponse{Job: model.NewGlossaryJobInfo(job)}
	if job.Status == models.JobStatusCompleted {
		res, err := h.glossaryService.Results(c.Request.Context(), uri.ID, query.Sort)
		if err != nil {
			respondError(c, err)
			return
		}
		resp.Terms = res.Terms
		resp.SortedBy = res.SortedBy
		resp.Results = model.NewGlossaryResultRows(res.Results)
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// DownloadResult 下载术语表结果表格
// GET /api/glossary/:id/download
func (h *GlossaryHandler) DownloadResult(c *gin.Context) {
	var uri model.DocumentURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的任务ID"))
		return
	}

	rc, name, err := h.glossaryService.OpenResult(c.Request.Context(), uri.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", attachment(name))
	c.Data(http.StatusOK, xlsxContentType, data)
}
