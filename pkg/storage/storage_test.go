package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readAll 读取文件内容辅助函数
func readAll(t *testing.T, r io.ReadCloser) string {
	defer r.Close()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}

// exerciseStorage 对任意存储实现执行相同的读写检查
func exerciseStorage(t *testing.T, s Storage) {
	ctx := context.Background()
	content := "# Policy\n\nbody"

	info, err := s.Save(ctx, strings.NewReader(content), "Policy Doc.MD")
	require.NoError(t, err)
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, "Policy Doc.MD", info.Name)
	assert.Equal(t, int64(len(content)), info.Size)
	assert.Equal(t, "text/markdown", info.MimeType)

	t.Run("Get", func(t *testing.T) {
		rc, err := s.Get(ctx, info.ID)
		require.NoError(t, err)
		assert.Equal(t, content, readAll(t, rc))

		data, err := ReadAll(ctx, s, info.ID)
		require.NoError(t, err)
		assert.Equal(t, content, string(data))
	})

	t.Run("List", func(t *testing.T) {
		files, err := s.List(ctx)
		require.NoError(t, err)

		found := false
		for _, f := range files {
			if f.ID == info.ID {
				found = true
			}
		}
		assert.True(t, found, "saved file should be listed")
	})

	t.Run("Exists", func(t *testing.T) {
		exists, err := s.Exists(ctx, info.ID)
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = s.Exists(ctx, "non-existent-id")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, info.ID))

		exists, err := s.Exists(ctx, info.ID)
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = s.Get(ctx, info.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, info.ID), ErrNotFound)
	})
}

// TestLocalStorage 测试本地存储实现
func TestLocalStorage(t *testing.T) {
	s, err := NewLocalStorage(LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)

	exerciseStorage(t, s)

	t.Run("rejects path traversal ids", func(t *testing.T) {
		_, err := s.Get(context.Background(), "../etc/passwd")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("binary content", func(t *testing.T) {
		payload := []byte{0x50, 0x4b, 0x03, 0x04, 0x00, 0xff}
		info, err := s.Save(context.Background(), bytes.NewReader(payload), "chunks.zip")
		require.NoError(t, err)
		assert.Equal(t, "application/zip", info.MimeType)

		data, err := ReadAll(context.Background(), s, info.ID)
		require.NoError(t, err)
		assert.Equal(t, payload, data)
	})
}

// TestMinioStorage 测试MinIO存储实现
// 需要本地运行MinIO，设置 MINIO_TEST_ENDPOINT 后执行
func TestMinioStorage(t *testing.T) {
	endpoint := os.Getenv("MINIO_TEST_ENDPOINT")
	if endpoint == "" {
		t.Skip("MINIO_TEST_ENDPOINT not set, skipping MinIO tests")
	}

	s, err := NewMinioStorage(MinioConfig{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "poligolly-test",
	})
	require.NoError(t, err)

	exerciseStorage(t, s)
}

// TestStorageFactory 测试存储工厂函数
func TestStorageFactory(t *testing.T) {
	s, err := NewStorage(Config{Type: "local", Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	_, err = NewStorage(Config{Type: "ftp"})
	assert.Error(t, err)
}

func TestGetMimeType(t *testing.T) {
	assert.Equal(t, "text/csv", getMimeType("defs.CSV"))
	assert.Equal(t, "text/html", getMimeType("page.htm"))
	assert.Equal(t, "application/octet-stream", getMimeType("noext"))
}
