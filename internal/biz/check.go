package biz

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"lti-tool-provider/internal/biz/model"
	"lti-tool-provider/internal/data"

	"connectrpc.com/connect"
	"go.uber.org/zap"
)

const (
	statusReady     = "Ready"
	statusUnhealthy = "Unhealthy"
	readyTimeout    = 3 * time.Second
)

type CheckUseCase struct {
	repo   data.CheckRepo
	logger *zap.Logger
}

func NewCheckUseCase(repo data.CheckRepo, logger *zap.Logger) (model.CheckUseCase, error) {
	return &CheckUseCase{
		repo:   repo,
		logger: logger,
	}, nil
}

// Ready Details 中每个组件对应 ok 或错误信息
func (c *CheckUseCase) Ready(ctx context.Context, _ model.HealthCheckReq) (model.HealthCheckReply, error) {
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()

	results := c.repo.Ping(ctx)
	details := make(map[string]string, len(results))
	var failed []string
	for name, err := range results {
		if err != nil {
			details[name] = err.Error()
			failed = append(failed, name)
			continue
		}
		details[name] = "ok"
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		c.logger.Warn("Service not ready", zap.Strings("components", failed))
		return model.HealthCheckReply{Status: statusUnhealthy, Details: details},
			connect.NewError(connect.CodeUnavailable, fmt.Errorf("unhealthy components: %s", strings.Join(failed, ", ")))
	}
	return model.HealthCheckReply{Status: statusReady, Details: details}, nil
}
