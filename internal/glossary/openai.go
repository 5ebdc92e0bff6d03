package glossary

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/poli-golly/internal/definitions"
)

const scorePrompt = `Given the following text:
"%s"

And the following term and its definition:
Term: "%s"
Definition: "%s"

To what extent is the concept described by the term (or a semantic variant of it) implied in the text?
Provide a score between 0.000 and 1.000, where 0.000 means the concept is not present at all, and 1.000 means the concept is explicitly and strongly present.
Only output the score as a floating-point number.`

// OpenAIScorer 通过OpenAI兼容的对话接口评分
type OpenAIScorer struct {
	client  *openai.Client // OpenAI API客户端
	model   string         // 使用的对话模型
	timeout time.Duration  // 单次请求超时
	retries int            // 限流重试次数
	logger  *logrus.Logger
}

// NewOpenAIScorer 创建OpenAI评分器
func NewOpenAIScorer(cfg Config) (Scorer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientConfig.BaseURL = cfg.Endpoint
	}

	return &OpenAIScorer{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		retries: cfg.Retries,
		logger:  logrus.StandardLogger(),
	}, nil
}

// Score 实现Scorer接口
// 模型返回非数字内容时记为0分
func (s *OpenAIScorer) Score(ctx context.Context, text string, term definitions.Term) (float64, error) {
	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(scorePrompt, text, term.Name, term.Definition),
			},
		},
		// 0会被省略，使用最小的非零值
		Temperature: math.SmallestNonzeroFloat32,
	}

	for attempt := 0; ; attempt++ {
		timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
		resp, err := s.client.CreateChatCompletion(timeoutCtx, req)
		cancel()

		if err == nil {
			if len(resp.Choices) == 0 {
				return 0, nil
			}
			return s.parse(resp.Choices[0].Message.Content, term.Name), nil
		}

		if !isRateLimitError(err) {
			return 0, fmt.Errorf("%w: %v", ErrScorerUnavailable, err)
		}
		if attempt >= s.retries {
			return 0, ErrRateLimited
		}

		// 指数退避策略
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(time.Duration(1<<attempt) * time.Second):
		}
	}
}

func (s *OpenAIScorer) parse(content, term string) float64 {
	content = strings.TrimSpace(content)
	score, err := strconv.ParseFloat(content, 64)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"term":     term,
			"response": content,
		}).Warn("Scorer returned non-numeric response, defaulting to 0")
		return 0
	}
	return clamp(score)
}

// isRateLimitError 检查是否为速率限制错误
func isRateLimitError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "429")
}

func init() {
	RegisterScorer("openai", NewOpenAIScorer)
}
