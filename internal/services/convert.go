package services

import (
	"context"
	"io"

	"github.com/fyerfyer/poli-golly/internal/document"
	"github.com/sirupsen/logrus"
)

// ConvertResult 转换结果
type ConvertResult struct {
	Markdown   string `json:"markdown"`
	FileName   string `json:"filename"`
	HeadingMap string `json:"heading_map,omitempty"`
}

// ConvertService 将PDF、HTML等文档转换为带标题的Markdown
type ConvertService struct {
	converter document.Converter
	logger    *logrus.Logger
}

// NewConvertService 创建转换服务，converter为空时使用默认转换器
func NewConvertService(converter document.Converter, logger *logrus.Logger) *ConvertService {
	if converter == nil {
		converter = document.NewConverter()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &ConvertService{converter: converter, logger: logger}
}

// Convert 转换文档，headingMap形如 "Chapter:1,Article:2" 或JSON对象
func (s *ConvertService) Convert(ctx context.Context, r io.Reader, filename, headingMap string) (*ConvertResult, error) {
	m, err := document.ParseHeadingMap(headingMap)
	if err != nil {
		return nil, err
	}

	md, err := s.converter.Convert(ctx, r, filename, m)
	if err != nil {
		s.logger.WithError(err).WithField("filename", filename).Warn("Document conversion failed")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"filename":      filename,
		"heading_rules": len(m),
		"bytes":         len(md),
	}).Info("Document converted")

	return &ConvertResult{
		Markdown:   md,
		FileName:   document.OutputName(filename),
		HeadingMap: m.String(),
	}, nil
}
