package glossary

import (
	"context"
	"strings"
	"unicode"

	"github.com/fyerfyer/poli-golly/internal/definitions"
)

// KeywordScorer 离线评分器，不调用外部服务
// 完整术语出现记1分，否则按术语中出现的词所占比例计分
type KeywordScorer struct{}

// NewKeywordScorer 创建关键词评分器
func NewKeywordScorer(Config) (Scorer, error) {
	return &KeywordScorer{}, nil
}

// Score 实现Scorer接口
func (s *KeywordScorer) Score(ctx context.Context, text string, term definitions.Term) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	textWords := words(text)
	termWords := words(term.Name)
	if len(termWords) == 0 || len(textWords) == 0 {
		return 0, nil
	}

	if containsPhrase(textWords, termWords) {
		return 1, nil
	}

	present := make(map[string]bool, len(textWords))
	for _, w := range textWords {
		present[w] = true
	}
	found := 0
	for _, w := range termWords {
		if present[w] {
			found++
		}
	}
	// 部分匹配最多0.5分
	return clamp(0.5 * float64(found) / float64(len(termWords))), nil
}

// words 小写的字母数字词序列
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsPhrase(text, phrase []string) bool {
	for i := 0; i+len(phrase) <= len(text); i++ {
		match := true
		for j := range phrase {
			if text[i+j] != phrase[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func init() {
	RegisterScorer("keyword", NewKeywordScorer)
}
