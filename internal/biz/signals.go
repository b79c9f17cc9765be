package biz

import (
	"context"
	"errors"
	"sync"

	"lti-tool-provider/internal/biz/model"

	"go.uber.org/zap"
)

type (
	LaunchReceivedHandler func(ctx context.Context, event model.LaunchReceived)
	GradeUpdatedHandler   func(ctx context.Context, event model.GradeUpdated) error
)

// Signals 进程内的事件分发, 订阅者按注册顺序同步调用.
// 与工具编译在同一进程的宿主代码通过 EmitGradeUpdated 触发成绩回传, 不经过网络也不需要服务令牌;
// 进程外的宿主使用 OutcomeService RPC, 它需要 OutcomeResult, 因此直接调用 GradeUseCase.
type Signals struct {
	mu     sync.RWMutex
	launch []LaunchReceivedHandler
	grade  []GradeUpdatedHandler
	logger *zap.Logger
}

func NewSignals(logger *zap.Logger) *Signals {
	return &Signals{logger: logger}
}

func (s *Signals) SubscribeLaunchReceived(h LaunchReceivedHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launch = append(s.launch, h)
}

func (s *Signals) SubscribeGradeUpdated(h GradeUpdatedHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grade = append(s.grade, h)
}

func (s *Signals) EmitLaunchReceived(ctx context.Context, event model.LaunchReceived) {
	s.mu.RLock()
	handlers := append([]LaunchReceivedHandler(nil), s.launch...)
	s.mu.RUnlock()

	s.logger.Debug("LTI launch received",
		zap.Int64("principal_id", event.Principal.ID),
		zap.String("variance_key", event.Record.VarianceKey),
		zap.Int("subscribers", len(handlers)),
	)
	for _, h := range handlers {
		h(ctx, event)
	}
}

// EmitGradeUpdated 返回所有订阅者错误的合并结果
func (s *Signals) EmitGradeUpdated(ctx context.Context, event model.GradeUpdated) error {
	s.mu.RLock()
	handlers := append([]GradeUpdatedHandler(nil), s.grade...)
	s.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
