package glossary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/poli-golly/internal/definitions"
)

var (
	// ErrScorerUnavailable 评分服务不可用
	ErrScorerUnavailable = errors.New("scorer unavailable")
	// ErrRateLimited 评分服务限流
	ErrRateLimited = errors.New("scorer rate limited")
)

// Scorer 评估术语概念在文本中的体现程度
// 返回值在[0,1]之间，0表示完全没有体现
type Scorer interface {
	Score(ctx context.Context, text string, term definitions.Term) (float64, error)
}

// Config 评分器配置
type Config struct {
	Scorer   string        // 评分器类型：keyword或openai
	Model    string        // 模型名称
	APIKey   string        // API密钥
	Endpoint string        // 自定义OpenAI兼容端点
	Timeout  time.Duration // 单次请求超时
	Retries  int           // 限流时的最大重试次数
}

// Factory 评分器工厂函数
type Factory func(cfg Config) (Scorer, error)

var factories = make(map[string]Factory)

// RegisterScorer 注册评分器工厂
func RegisterScorer(name string, f Factory) {
	factories[name] = f
}

// NewScorer 根据配置创建评分器
func NewScorer(cfg Config) (Scorer, error) {
	name := cfg.Scorer
	if name == "" {
		name = "keyword"
	}
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown scorer: %s", name)
	}
	return f(cfg)
}

// clamp 把分数限制在[0,1]
func clamp(score float64) float64 {
	if score != score || score < 0 { // NaN
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
