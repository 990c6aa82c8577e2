package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mautops/shipchange-gin/internal/model"
)

// NumberSource 提供指定前缀下当前最大的申请编号
type NumberSource interface {
	LastNumberWithPrefix(ctx context.Context, prefix string) (string, error)
}

// NumberGenerator 申请编号生成器接口
type NumberGenerator interface {
	Next(ctx context.Context, src NumberSource, t model.RequestType, at time.Time) (string, error)
}

// RequestNumberGenerator 按 {PREFIX}-{YYYYMM}-{SEQ} 生成申请编号
//
// 生成结果只是候选值，唯一性由写入时的唯一索引保证，冲突后由调用方重新生成。
type RequestNumberGenerator struct{}

// NewRequestNumberGenerator 创建申请编号生成器
func NewRequestNumberGenerator() *RequestNumberGenerator {
	return &RequestNumberGenerator{}
}

// Next 生成下一个候选编号
func (g *RequestNumberGenerator) Next(ctx context.Context, src NumberSource, t model.RequestType, at time.Time) (string, error) {
	prefix := NumberPrefix(t, at)
	last, err := src.LastNumberWithPrefix(ctx, prefix)
	if err != nil {
		return "", err
	}

	seq := 1
	if last != "" {
		n, err := ParseSequence(last)
		if err != nil {
			return "", err
		}
		seq = n + 1
	}
	return FormatRequestNumber(t, at, seq), nil
}

// NumberPrefix 返回类型与月份对应的编号前缀，包含结尾的连字符
func NumberPrefix(t model.RequestType, at time.Time) string {
	return fmt.Sprintf("%s-%s-", t.Prefix(), at.Format("200601"))
}

// FormatRequestNumber 格式化申请编号，序号至少三位
func FormatRequestNumber(t model.RequestType, at time.Time, seq int) string {
	return fmt.Sprintf("%s%03d", NumberPrefix(t, at), seq)
}

// ParseSequence 解析编号末段的序号
func ParseSequence(number string) (int, error) {
	idx := strings.LastIndex(number, "-")
	if idx < 0 || idx == len(number)-1 {
		return 0, fmt.Errorf("malformed request number %q", number)
	}
	seq, err := strconv.Atoi(number[idx+1:])
	if err != nil || seq < 0 {
		return 0, fmt.Errorf("malformed request number %q", number)
	}
	return seq, nil
}
