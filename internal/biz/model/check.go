package model

import "context"

type CheckUseCase interface {
	// Ready 任一依赖组件不可用时返回 Unhealthy 和错误
	Ready(ctx context.Context, req HealthCheckReq) (HealthCheckReply, error)
}

type (
	HealthCheckReq   struct{}
	HealthCheckReply struct {
		Status string
		// Details 组件名 -> "ok" 或错误信息
		Details map[string]string
	}
)
