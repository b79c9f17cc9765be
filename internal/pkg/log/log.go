package log

import (
	"context"
	"fmt"

	confv1 "lti-tool-provider/internal/conf/v1"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module 提供 *zap.Logger
var Module = fx.Module("log",
	fx.Provide(NewLogger),
)

// NewLogger 根据 log 配置创建 zap 日志器, 未配置时使用 info 级别 JSON 输出
func NewLogger(lc fx.Lifecycle, cfg *confv1.Bootstrap) (*zap.Logger, error) {
	logger, err := Build(cfg.Log)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			// stderr 上 Sync 会返回 EINVAL, 忽略
			_ = logger.Sync()
			return nil
		},
	})
	return logger, nil
}

// Build 不依赖 fx 构造日志器, 供测试和命令行工具使用
func Build(c *confv1.Log) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c != nil {
		if c.Level != "" {
			level, err := zap.ParseAtomicLevel(c.Level)
			if err != nil {
				return nil, fmt.Errorf("parse log level %q: %w", c.Level, err)
			}
			zc.Level = level
		}
		if c.Format == "console" {
			zc.Encoding = "console"
			zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
		}
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}
