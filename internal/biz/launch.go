package biz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"lti-tool-provider/internal/biz/model"
	"lti-tool-provider/internal/data"
	"lti-tool-provider/internal/pkg/oauth1"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const meterName = "lti-tool-provider/biz"

// 启动结果, 作为 lti.launch.count 的 outcome 属性
const (
	launchAuthenticated = "authenticated"
	launchDeferred      = "deferred"
	launchInvalid       = "invalid"
	launchFailed        = "failed"
)

type LaunchUseCase struct {
	repo     data.LtiUserRepo
	hooks    model.ApplicationHooks
	verifier model.LaunchVerifier
	signals  *Signals
	logger   *zap.Logger
	counter  metric.Int64Counter
}

func NewLaunchUseCase(
	repo data.LtiUserRepo,
	hooks model.ApplicationHooks,
	verifier model.LaunchVerifier,
	signals *Signals,
	logger *zap.Logger,
) (model.LaunchUseCase, error) {
	counter, err := otel.GetMeterProvider().Meter(meterName).Int64Counter(
		"lti.launch.count",
		metric.WithDescription("LTI 启动请求数"),
		metric.WithUnit("{launch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create launch counter: %w", err)
	}

	return &LaunchUseCase{
		repo:     repo,
		hooks:    hooks,
		verifier: verifier,
		signals:  signals,
		logger:   logger,
		counter:  counter,
	}, nil
}

func (uc *LaunchUseCase) Launch(ctx context.Context, req *model.LaunchRequest) (*model.LaunchResult, error) {
	result, err := uc.launch(ctx, req)

	outcome := launchFailed
	var invalid *model.InvalidLaunchRequestError
	switch {
	case errors.As(err, &invalid):
		outcome = launchInvalid
	case err != nil:
	case result.Authenticated:
		outcome = launchAuthenticated
	default:
		outcome = launchDeferred
	}
	uc.counter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	if err != nil {
		uc.logger.Warn("LTI launch failed", zap.String("outcome", outcome), zap.Error(err))
	}
	return result, err
}

func (uc *LaunchUseCase) launch(ctx context.Context, req *model.LaunchRequest) (*model.LaunchResult, error) {
	v := &memoVerifier{verifier: uc.verifier, req: req}

	principal := req.Auth.Principal(ctx)
	if principal != nil && req.Params.Get(oauth1.ParamSignature) != "" {
		mismatch, err := uc.identityMismatch(ctx, v, principal)
		if err != nil {
			return nil, err
		}
		if mismatch {
			uc.logger.Info("LTI user changed, signing out current principal",
				zap.Int64("principal_id", principal.ID),
			)
			if err := req.Auth.SignOut(ctx); err != nil {
				return nil, fmt.Errorf("sign out: %w", err)
			}
			if err := req.Session.Delete(ctx, model.SessionKey); err != nil {
				return nil, fmt.Errorf("clear session: %w", err)
			}
			principal = nil
		}
	}

	if principal == nil {
		raw, err := v.verify(ctx)
		if err != nil {
			return nil, err
		}
		params := ExtractLaunchParameters(raw)
		hint := BuildIdentityHint(params, uc.hooks.OptionalLtiParameters())
		if err := uc.hooks.AuthenticationHook(ctx, req, hint); err != nil {
			return nil, fmt.Errorf("authentication hook: %w", err)
		}

		principal = req.Auth.Principal(ctx)
		if principal == nil {
			return uc.deferLaunch(ctx, req, params)
		}
	}

	params, err := uc.resolveParameters(ctx, req, v)
	if err != nil {
		return nil, err
	}

	key, err := NormalizeVarianceKey(uc.hooks.VaryByKey(params))
	if err != nil {
		return nil, err
	}

	record, created, err := uc.repo.UpsertLtiUser(ctx, principal.ID, key, params)
	if err != nil {
		return nil, fmt.Errorf("store LTI parameters: %w", err)
	}
	uc.logger.Info("LTI parameters stored",
		zap.Int64("principal_id", principal.ID),
		zap.String("variance_key", key),
		zap.Bool("created", created),
	)

	uc.signals.EmitLaunchReceived(ctx, model.LaunchReceived{Principal: principal, Record: record})

	redirect, err := uc.hooks.AuthenticatedRedirectTo(ctx, req, params)
	if err != nil {
		return nil, fmt.Errorf("authenticated redirect: %w", err)
	}
	return &model.LaunchResult{RedirectURL: redirect, Authenticated: true}, nil
}

// identityMismatch 只查询不创建: 没有记录时不算冲突
func (uc *LaunchUseCase) identityMismatch(ctx context.Context, v *memoVerifier, principal *model.Principal) (bool, error) {
	raw, err := v.verify(ctx)
	if err != nil {
		return false, err
	}
	params := ExtractLaunchParameters(raw)

	key, err := NormalizeVarianceKey(uc.hooks.VaryByKey(params))
	if err != nil {
		return false, err
	}

	record, err := uc.repo.GetLtiUser(ctx, principal.ID, key)
	if errors.Is(err, model.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load LTI parameters: %w", err)
	}

	stored := record.Parameters.Get(model.ParamUserID)
	current := params.Get(model.ParamUserID)
	return stored != "" && current != "" && stored != current, nil
}

// resolveParameters 认证跳转回来时优先使用会话中保存的参数.
// 请求自身带有 lis_result_sourcedid 时以当前请求为准, 会话中的旧值同时清除.
func (uc *LaunchUseCase) resolveParameters(ctx context.Context, req *model.LaunchRequest, v *memoVerifier) (model.LaunchParameters, error) {
	saved, ok, err := req.Session.Get(ctx, model.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	if ok {
		if err := req.Session.Delete(ctx, model.SessionKey); err != nil {
			return nil, fmt.Errorf("clear session: %w", err)
		}
		if req.Params.Get(model.ParamResultSourcedID) == "" {
			var params model.LaunchParameters
			if err := json.Unmarshal(saved, &params); err != nil {
				return nil, fmt.Errorf("decode session LTI parameters: %w", err)
			}
			return params, nil
		}
	}

	raw, err := v.verify(ctx)
	if err != nil {
		return nil, err
	}
	return ExtractLaunchParameters(raw), nil
}

func (uc *LaunchUseCase) deferLaunch(ctx context.Context, req *model.LaunchRequest, params model.LaunchParameters) (*model.LaunchResult, error) {
	payload, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode LTI parameters: %w", err)
	}
	if err := req.Session.Set(ctx, model.SessionKey, payload); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	redirect, err := uc.hooks.AnonymousRedirectTo(ctx, req, params)
	if err != nil {
		return nil, fmt.Errorf("anonymous redirect: %w", err)
	}
	return &model.LaunchResult{RedirectURL: redirect}, nil
}
