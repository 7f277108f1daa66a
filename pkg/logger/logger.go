package logger

import (
	"context"

	"go.uber.org/zap"

	"github.com/DevNectorFoods/Email-Automation/pkg/trace"
)

var Log *zap.Logger

func NewLogger() *zap.Logger {
	l, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	Log = l
	return l
}

// WithPass 从 context 中提取 pass_id 并添加到 logger
// 每一轮抓取（定时或手动触发）都带一个 pass_id，便于串联同一轮的所有日志
func WithPass(ctx context.Context, logger *zap.Logger) *zap.Logger {
	passID := trace.FromContext(ctx)
	if passID != "" {
		return logger.With(zap.String("pass_id", passID))
	}
	return logger
}
