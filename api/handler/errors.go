package handler

import (
	"archive/zip"
	"errors"
	"net/http"
	"strings"

	"github.com/fyerfyer/poli-golly/api/middleware"
	"github.com/fyerfyer/poli-golly/internal/chunker"
	"github.com/fyerfyer/poli-golly/internal/definitions"
	"github.com/fyerfyer/poli-golly/internal/document"
	"github.com/fyerfyer/poli-golly/internal/models"
	"github.com/fyerfyer/poli-golly/internal/services"
	"github.com/fyerfyer/poli-golly/pkg/storage"
	"github.com/fyerfyer/poli-golly/pkg/taskqueue"
	"github.com/gin-gonic/gin"
)

// toAppError 将服务层错误转换为API错误
func toAppError(err error) middleware.AppError {
	var tooLarge *http.MaxBytesError

	switch {
	case errors.Is(err, models.ErrDocumentNotFound):
		return middleware.NewNotFoundError("文档不存在")
	case errors.Is(err, models.ErrChunkNotFound):
		return middleware.NewNotFoundError("分块不存在")
	case errors.Is(err, models.ErrGlossaryJobNotFound):
		return middleware.NewNotFoundError("术语表任务不存在")
	case errors.Is(err, taskqueue.ErrTaskNotFound):
		return middleware.NewNotFoundError("任务不存在")
	case errors.Is(err, storage.ErrNotFound):
		return middleware.NewNotFoundError("文件不存在")

	case errors.Is(err, services.ErrDocumentNotReady):
		return middleware.NewConflictError("文档尚未完成分块", err.Error())
	case errors.Is(err, services.ErrJobNotReady):
		return middleware.NewConflictError("术语表任务尚未完成", err.Error())
	case errors.Is(err, models.ErrInvalidDocumentStatus):
		return middleware.NewConflictError("文档正在处理中", err.Error())

	case errors.Is(err, chunker.ErrInputTooLarge), errors.As(err, &tooLarge),
		strings.Contains(err.Error(), "request body too large"):
		return middleware.NewTooLargeError("文件过大", err.Error())

	case errors.Is(err, chunker.ErrInvalidChunkLevel):
		return middleware.NewValidationError("分块层级必须在1到6之间", err.Error())
	case errors.Is(err, document.ErrUnsupportedType):
		return middleware.NewValidationError("不支持的文件类型", err.Error())
	case errors.Is(err, document.ErrInvalidHeadingMap):
		return middleware.NewValidationError("无效的标题映射", err.Error())
	case errors.Is(err, document.ErrConversion):
		return middleware.NewBusinessError("文档转换失败", err.Error())
	case errors.Is(err, definitions.ErrUnsupportedFormat):
		return middleware.NewValidationError("请上传CSV或XLSX格式的定义表", err.Error())
	case errors.Is(err, definitions.ErrTooFewRows):
		return middleware.NewValidationError("定义表至少需要表头和一行数据", err.Error())
	case errors.Is(err, definitions.ErrColumnNotFound):
		return middleware.NewValidationError("定义表缺少必要的列", err.Error())
	case errors.Is(err, services.ErrNoTerms):
		return middleware.NewValidationError("定义表中没有术语", err.Error())
	case errors.Is(err, services.ErrNoChunks):
		return middleware.NewValidationError("压缩包中没有Markdown分块", err.Error())
	case errors.Is(err, zip.ErrFormat):
		return middleware.NewValidationError("无效的压缩包", err.Error())
	}

	return middleware.NewInternalError("服务器内部错误", err.Error())
}

// respondError 交给错误中间件统一输出
func respondError(c *gin.Context, err error) {
	middleware.HandleError(c, toAppError(err))
}
