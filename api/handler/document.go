package handler

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/fyerfyer/poli-golly/api/middleware"
	"github.com/fyerfyer/poli-golly/api/model"
	"github.com/fyerfyer/poli-golly/internal/document"
	"github.com/fyerfyer/poli-golly/internal/models"
	"github.com/fyerfyer/poli-golly/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DocumentHandler 处理文档上传与分块相关的API请求
type DocumentHandler struct {
	chunkService *services.ChunkService // 分块服务
	logger       *logrus.Logger         // 日志记录器
}

// NewDocumentHandler 创建新的文档处理器
func NewDocumentHandler(chunkService *services.ChunkService) *DocumentHandler {
	return &DocumentHandler{
		chunkService: chunkService,
		logger:       middleware.GetLogger(),
	}
}

// UploadDocument 处理文档上传请求
// POST /api/documents
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	var req model.DocumentUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Warn("Invalid document upload request")

		respondBindError(c, err, "无效的请求参数")
		return
	}

	filename := req.File.Filename
	if !document.IsChunkable(filename) {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"不支持的文件类型，仅支持 .md, .markdown, .txt",
		))
		return
	}

	file, err := req.File.Open()
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":    err.Error(),
			"filename": filename,
		}).Error("Failed to open uploaded file")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"无法打开上传的文件",
		))
		return
	}
	defer file.Close()

	doc, err := h.chunkService.UploadDocument(c.Request.Context(), file, filename, req.Label, req.ChunkLevel)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":    err.Error(),
			"filename": filename,
		}).Error("Failed to upload document")

		respondError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"doc_id":   doc.ID,
		"filename": filename,
		"status":   doc.Status,
	}).Info("Document uploaded successfully")

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewDocumentInfo(doc)))
}

// GetDocument 获取文档信息和分块统计
// GET /api/documents/:id
func (h *DocumentHandler) GetDocument(c *gin.Context) {
	var uri model.DocumentURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的文档ID"))
		return
	}

	doc, err := h.chunkService.GetDocument(c.Request.Context(), uri.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewDocumentInfo(doc)))
}

// ListDocuments 获取文档列表
// GET /api/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	var req model.DocumentListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的查询参数"))
		return
	}

	filters := make(map[string]interface{})
	if req.Status != "" {
		filters["status"] = models.DocumentStatus(req.Status)
	}
	if req.FileName != "" {
		filters["file_name"] = req.FileName
	}
	if req.Label != "" {
		filters["label"] = req.Label
	}

	docs, total, err := h.chunkService.ListDocuments(c.Request.Context(), req.Offset(), req.GetPageSize(), filters)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list documents")
		respondError(c, err)
		return
	}

	infos := make([]model.DocumentInfo, 0, len(docs))
	for _, doc := range docs {
		infos = append(infos, model.NewDocumentInfo(doc))
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentListResponse{
		Total:     total,
		Page:      req.GetPage(),
		PageSize:  req.GetPageSize(),
		Documents: infos,
	}))
}

// RechunkDocument 以新的层级重新分块
// POST /api/documents/:id/chunk
func (h *DocumentHandler) RechunkDocument(c *gin.Context) {
	var uri model.DocumentURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的文档ID"))
		return
	}

	var req model.RechunkRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "分块层级必须在1到6之间"))
		return
	}

	doc, err := h.chunkService.RechunkDocument(c.Request.Context(), uri.ID, req.ChunkLevel, req.Label)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":  err.Error(),
			"doc_id": uri.ID,
		}).Error("Failed to rechunk document")

		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewDocumentInfo(doc)))
}

// ListChunks 获取文档的分块列表
// GET /api/documents/:id/chunks
func (h *DocumentHandler) ListChunks(c *gin.Context) {
	var uri model.DocumentURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的文档ID"))
		return
	}

	doc, err := h.chunkService.GetDocument(c.Request.Context(), uri.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	rows, err := h.chunkService.ListChunks(c.Request.Context(), uri.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := model.ChunkListResponse{
		DocumentID: uri.ID,
		Total:      len(rows),
		Chunks:     make([]model.ChunkInfo, 0, len(rows)),
	}
	for _, row := range rows {
		resp.Chunks = append(resp.Chunks, model.NewChunkInfo(row))
	}
	if doc.Status == models.DocStatusCompleted && !doc.HasHeadings() {
		resp.Warning = model.NoHeadingsWarning
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// GetChunk 获取单个分块的Markdown内容
// GET /api/documents/:id/chunks/:index
func (h *DocumentHandler) GetChunk(c *gin.Context) {
	var uri model.ChunkURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的分块序号"))
		return
	}

	chunk, err := h.chunkService.RenderChunk(c.Request.Context(), uri.ID, *uri.Index)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(chunk))
}

// PreviewChunk 以HTML预览单个分块
// GET /api/documents/:id/chunks/:index/preview
func (h *DocumentHandler) PreviewChunk(c *gin.Context) {
	var uri model.ChunkURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的分块序号"))
		return
	}

	page, err := h.chunkService.PreviewChunk(c.Request.Context(), uri.ID, *uri.Index)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

// DownloadBundle 下载全部分块的压缩包
// GET /api/documents/:id/bundle
func (h *DocumentHandler) DownloadBundle(c *gin.Context) {
	var uri model.DocumentURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的文档ID"))
		return
	}

	var buf bytes.Buffer
	name, err := h.chunkService.BundleChunks(c.Request.Context(), uri.ID, &buf)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", attachment(name))
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

// DeleteDocument 删除文档
// DELETE /api/documents/:id
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	var uri model.DocumentURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的文档ID"))
		return
	}

	if err := h.chunkService.DeleteDocument(c.Request.Context(), uri.ID); err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":  err.Error(),
			"doc_id": uri.ID,
		}).Error("Failed to delete document")

		respondError(c, err)
		return
	}

	h.logger.WithField("doc_id", uri.ID).Info("Document deleted successfully")

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.DocumentDeleteResponse{
		Success: true,
		ID:      uri.ID,
	}))
}

// attachment 构建下载文件的Content-Disposition
func attachment(name string) string {
	return fmt.Sprintf("attachment; filename=%q", name)
}

// respondBindError 绑定失败时区分请求体过大和参数错误
func respondBindError(c *gin.Context, err error, message string) {
	if app := toAppError(err); app.Code == http.StatusRequestEntityTooLarge {
		middleware.HandleError(c, app)
		return
	}
	c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, message))
}
