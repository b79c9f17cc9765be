package biz

import (
	"context"

	"lti-tool-provider/internal/biz/model"

	"go.uber.org/fx"
)

var Module = fx.Module("biz",
	fx.Provide(NewUserUseCase),
	fx.Provide(NewCheckUseCase),
	fx.Provide(NewSignals),
	fx.Provide(NewLaunchVerifier),
	fx.Provide(NewConfigHooks),
	fx.Provide(NewLaunchUseCase),
	fx.Provide(NewGradeUseCase),
	fx.Invoke(RegisterGradeHandler),
)

// RegisterGradeHandler 将 GradeUpdated 事件接到成绩回传, 是进程内宿主触发回传的入口
func RegisterGradeHandler(signals *Signals, grades model.GradeUseCase) {
	signals.SubscribeGradeUpdated(func(ctx context.Context, event model.GradeUpdated) error {
		_, err := grades.HandleGradeUpdated(ctx, event)
		return err
	})
}
