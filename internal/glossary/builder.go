package glossary

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/poli-golly/internal/definitions"
)

// ChunkText 分块压缩包中的一个Markdown文件
type ChunkText struct {
	Name string // 压缩包内的文件名
	Text string // 文件内容
}

// Result 一个分块的术语表结果行
type Result struct {
	ChunkInfo string `json:"chunk_info"` // 分块文件名
	ChunkText string `json:"chunk_text"` // 分块内容
	KeyTerms  string `json:"key_terms"`  // term||score 列表
}

// ProgressFunc 进度回调，done为已处理的分块数
type ProgressFunc func(done, total int)

// Options 构建器选项
type Options struct {
	Concurrency     int           // 并行处理的分块数
	RequestInterval time.Duration // 每个分块处理完成后的等待时间
	Logger          *logrus.Logger
	Progress        ProgressFunc
}

// Builder 为每个分块计算术语得分
type Builder struct {
	scorer   Scorer
	workers  int
	interval time.Duration
	logger   *logrus.Logger
	progress ProgressFunc
}

// NewBuilder 创建术语表构建器
func NewBuilder(scorer Scorer, opts Options) *Builder {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Builder{
		scorer:   scorer,
		workers:  opts.Concurrency,
		interval: opts.RequestInterval,
		logger:   opts.Logger,
		progress: opts.Progress,
	}
}

// Build 对每个分块逐个术语评分，结果顺序与输入一致
// 单个术语评分失败记为0分，只有上下文取消时返回错误
func (b *Builder) Build(ctx context.Context, chunks []ChunkText, terms []definitions.Term) ([]Result, error) {
	results := make([]Result, len(chunks))
	if len(chunks) == 0 {
		return results, nil
	}

	wp := workerpool.New(b.workers)
	var mu sync.Mutex
	done := 0

	for i, chunk := range chunks {
		i, chunk := i, chunk
		wp.Submit(func() {
			if ctx.Err() != nil {
				return
			}

			keyTerms := b.scoreChunk(ctx, chunk, terms)
			results[i] = Result{
				ChunkInfo: chunk.Name,
				ChunkText: chunk.Text,
				KeyTerms:  keyTerms,
			}
			b.logger.WithFields(logrus.Fields{
				"chunk":     chunk.Name,
				"key_terms": keyTerms,
			}).Info("Processed chunk")

			mu.Lock()
			done++
			if b.progress != nil {
				b.progress(done, len(chunks))
			}
			mu.Unlock()

			if b.interval > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(b.interval):
				}
			}
		})
	}

	wp.StopWait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// scoreChunk 返回分块的key_terms字段
func (b *Builder) scoreChunk(ctx context.Context, chunk ChunkText, terms []definitions.Term) string {
	scores := make([]TermScore, 0, len(terms))
	for _, term := range terms {
		score, err := b.scorer.Score(ctx, chunk.Text, term)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			b.logger.WithError(err).WithFields(logrus.Fields{
				"chunk": chunk.Name,
				"term":  term.Name,
			}).Warn("Failed to score term, defaulting to 0")
			continue
		}
		scores = append(scores, TermScore{Term: term.Name, Score: clamp(score)})
	}
	return FormatKeyTerms(scores)
}

// ReadChunks 读取压缩包中的全部.md文件，保持压缩包内顺序
// 非法的UTF-8字节被丢弃
func ReadChunks(r io.ReaderAt, size int64) ([]ChunkText, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("opening zip: %w", err)
	}

	var chunks []ChunkText
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, ".md") {
			continue
		}
		text, err := readZipEntry(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}
		chunks = append(chunks, ChunkText{Name: path.Clean(f.Name), Text: text})
	}
	return chunks, nil
}

func readZipEntry(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(data), ""), nil
}
