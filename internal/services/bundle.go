package services

import (
	"archive/zip"
	"fmt"
	"io"
	"time"

	"github.com/fyerfyer/poli-golly/internal/chunker"
)

// WriteBundle 将每个分块渲染为一个Markdown文件写入zip
// 只有一个分块的文档同样打包
func WriteBundle(w io.Writer, result *chunker.Result) error {
	zw := zip.NewWriter(w)
	modified := time.Now()

	for i, name := range chunker.UniqueFileNames(result.Chunks) {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return fmt.Errorf("failed to add %s to bundle: %w", name, err)
		}
		if _, err := io.WriteString(fw, result.Render(i)); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish bundle: %w", err)
	}
	return nil
}
