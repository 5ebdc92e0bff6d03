package chunker

import (
	"errors"
	"fmt"
)

const (
	// MinLevel 最小标题深度
	MinLevel = 1
	// MaxLevel 最大标题深度
	MaxLevel = 6
	// DefaultMaxLines 默认允许的最大行数
	DefaultMaxLines = 1_000_000
)

var (
	// ErrInvalidChunkLevel 分块层级不在 [1,6] 范围内
	ErrInvalidChunkLevel = errors.New("chunk level must be between 1 and 6")

	// ErrInputTooLarge 输入行数超过上限
	ErrInputTooLarge = errors.New("input exceeds maximum line count")
)

// ValidateLevel 校验分块层级
// Partition本身对任意整数都不会崩溃，但调用方应在调用前校验
func ValidateLevel(level int) error {
	if level < MinLevel || level > MaxLevel {
		return fmt.Errorf("%w: got %d", ErrInvalidChunkLevel, level)
	}
	return nil
}

// CheckSize 校验行数上限，maxLines<=0 表示不限制
func CheckSize(lineCount, maxLines int) error {
	if maxLines > 0 && lineCount > maxLines {
		return fmt.Errorf("%w: %d lines (limit %d)", ErrInputTooLarge, lineCount, maxLines)
	}
	return nil
}
