package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidHeadingMap 标题映射格式错误
var ErrInvalidHeadingMap = errors.New("invalid heading map")

// HeadingRule 以Prefix开头的行提升为Level级标题
type HeadingRule struct {
	Prefix string `json:"prefix"`
	Level  int    `json:"level"`
}

// HeadingMap 按声明顺序匹配的标题映射
type HeadingMap []HeadingRule

// String 输出为 "Chapter:1,Article:2" 格式
func (m HeadingMap) String() string {
	parts := make([]string, len(m))
	for i, r := range m {
		parts[i] = fmt.Sprintf("%s:%d", r.Prefix, r.Level)
	}
	return strings.Join(parts, ",")
}

// ParseHeadingMap 解析标题映射
// 支持 "Chapter:1,Article:2" 以及 {"Chapter":1,"Article":2} 两种写法
// 缺少前缀或级别的项会被忽略，重复前缀保留首次出现的位置并使用最后的级别
func ParseHeadingMap(s string) (HeadingMap, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "{") {
		return parseHeadingMapJSON(s)
	}

	var m HeadingMap
	for _, pair := range strings.Split(s, ",") {
		prefix, level, _ := strings.Cut(pair, ":")
		prefix = strings.TrimSpace(prefix)
		level = strings.TrimSpace(level)
		if prefix == "" || level == "" {
			continue
		}
		n, err := strconv.Atoi(level)
		if err != nil {
			return nil, fmt.Errorf("%w: level %q for %q is not a number", ErrInvalidHeadingMap, level, prefix)
		}
		if m, err = m.with(prefix, n); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// parseHeadingMapJSON 逐个读取JSON对象的键，保留声明顺序
func parseHeadingMapJSON(s string) (HeadingMap, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()

	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidHeadingMap)
	}

	var m HeadingMap
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidHeadingMap, err)
		}
		prefix, _ := tok.(string)

		var raw json.Number
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("%w: level for %q: %v", ErrInvalidHeadingMap, prefix, err)
		}
		n, err := strconv.Atoi(raw.String())
		if err != nil {
			return nil, fmt.Errorf("%w: level for %q is not an integer", ErrInvalidHeadingMap, prefix)
		}
		if strings.TrimSpace(prefix) == "" {
			continue
		}
		if m, err = m.with(prefix, n); err != nil {
			return nil, err
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeadingMap, err)
	}
	return m, nil
}

func (m HeadingMap) with(prefix string, level int) (HeadingMap, error) {
	if level < 1 || level > 6 {
		return nil, fmt.Errorf("%w: level %d for %q must be between 1 and 6", ErrInvalidHeadingMap, level, prefix)
	}
	for i := range m {
		if m[i].Prefix == prefix {
			m[i].Level = level
			return m, nil
		}
	}
	return append(m, HeadingRule{Prefix: prefix, Level: level}), nil
}

// match 返回第一条前缀匹配（不区分大小写）的规则
func (m HeadingMap) match(line string) (HeadingRule, bool) {
	lower := strings.ToLower(line)
	for _, r := range m {
		if strings.HasPrefix(lower, strings.ToLower(r.Prefix)) {
			return r, true
		}
	}
	return HeadingRule{}, false
}

// ApplyHeadingMap 把匹配前缀的行转换为标题
// 映射为空时原样返回；否则每行去掉首尾空白，每个非空行后追加一个空行
func ApplyHeadingMap(markdown string, m HeadingMap) string {
	if len(m) == 0 {
		return markdown
	}

	lines := strings.Split(markdown, "\n")
	out := make([]string, 0, len(lines)*2)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			if r, ok := m.match(line); ok {
				line = strings.Repeat("#", r.Level) + " " + line
			}
			out = append(out, line)
		}
		out = append(out, "")
	}
	return strings.Join(out, "\n")
}
