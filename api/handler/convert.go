package handler

import (
	"net/http"

	"github.com/fyerfyer/poli-golly/api/middleware"
	"github.com/fyerfyer/poli-golly/api/model"
	"github.com/fyerfyer/poli-golly/internal/definitions"
	"github.com/fyerfyer/poli-golly/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ConvertHandler 处理文档转换和定义表解析请求
type ConvertHandler struct {
	convertService *services.ConvertService // 转换服务
	logger         *logrus.Logger           // 日志记录器
}

// NewConvertHandler 创建新的转换处理器
func NewConvertHandler(convertService *services.ConvertService) *ConvertHandler {
	return &ConvertHandler{
		convertService: convertService,
		logger:         middleware.GetLogger(),
	}
}

// Convert 将上传的PDF、HTML或文本转换为Markdown
// POST /api/convert
// 查询参数download=true时直接返回.md文件
func (h *ConvertHandler) Convert(c *gin.Context) {
	var req model.ConvertRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid convert request")
		respondBindError(c, err, "未提供文件")
		return
	}

	file, err := req.File.Open()
	if err != nil {
		h.logger.WithError(err).Error("Failed to open uploaded file")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"无法打开上传的文件",
		))
		return
	}
	defer file.Close()

	res, err := h.convertService.Convert(c.Request.Context(), file, req.File.Filename, req.HeadingMap)
	if err != nil {
		respondError(c, err)
		return
	}

	if c.Query("download") == "true" {
		c.Header("Content-Disposition", attachment(res.FileName))
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(res.Markdown))
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(res))
}

// ParseDefinitions 解析上传的定义表并返回表格内容
// POST /api/definitions
func (h *ConvertHandler) ParseDefinitions(c *gin.Context) {
	var req model.DefinitionsRequest
	if err := c.ShouldBind(&req); err != nil {
		respondBindError(c, err, "未提供文件")
		return
	}

	file, err := req.File.Open()
	if err != nil {
		h.logger.WithError(err).Error("Failed to open uploaded file")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"无法打开上传的文件",
		))
		return
	}
	defer file.Close()

	table, err := definitions.Read(file, req.File.Filename)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":    err.Error(),
			"filename": req.File.Filename,
		}).Warn("Failed to parse definitions table")

		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(table))
}
