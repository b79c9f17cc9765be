package biz

import (
	"context"
	"fmt"
	"net/url"

	"lti-tool-provider/internal/biz/model"
	conf "lti-tool-provider/internal/conf/v1"

	"go.uber.org/zap"
)

const (
	DefaultLaunchPath          = "/lti/"
	defaultRedirectAfterLaunch = "/"
)

// ConfigHooks 由配置驱动的 ApplicationHooks 实现
type ConfigHooks struct {
	cfg        *conf.Lti
	launchPath string
	users      model.UserUseCase
	logger     *zap.Logger
}

var _ model.ApplicationHooks = (*ConfigHooks)(nil)

func NewConfigHooks(cfg *conf.Bootstrap, users model.UserUseCase, logger *zap.Logger) model.ApplicationHooks {
	launchPath := DefaultLaunchPath
	if cfg.Server != nil && cfg.Server.Http != nil && cfg.Server.Http.LaunchPath != "" {
		launchPath = cfg.Server.Http.LaunchPath
	}
	return &ConfigHooks{
		cfg:        cfg.Lti,
		launchPath: launchPath,
		users:      users,
		logger:     logger,
	}
}

// AuthenticationHook 开启 auto_provision 时为 LTI 用户创建本地账号 lti:<user_id> 并登录
func (h *ConfigHooks) AuthenticationHook(ctx context.Context, req *model.LaunchRequest, hint model.IdentityHint) error {
	if !h.cfg.AutoProvision || hint.UserID == "" {
		return nil
	}

	principal, err := h.users.Provision(ctx, model.ProvisionedUsernamePrefix+hint.UserID, hint.Email)
	if err != nil {
		return fmt.Errorf("provision LTI user: %w", err)
	}
	if err := req.Auth.SignIn(ctx, principal); err != nil {
		return fmt.Errorf("sign in LTI user: %w", err)
	}

	h.logger.Info("LTI user signed in",
		zap.Int64("principal_id", principal.ID),
		zap.String("username", principal.Username),
	)
	return nil
}

func (h *ConfigHooks) VaryByKey(params model.LaunchParameters) (string, bool) {
	if h.cfg.VaryByParameter == "" {
		return "", false
	}
	return params.Get(h.cfg.VaryByParameter), true
}

// AnonymousRedirectTo 未配置 login_url 时回到启动地址
func (h *ConfigHooks) AnonymousRedirectTo(_ context.Context, _ *model.LaunchRequest, _ model.LaunchParameters) (string, error) {
	if h.cfg.LoginUrl == "" {
		return h.launchPath, nil
	}

	u, err := url.Parse(h.cfg.LoginUrl)
	if err != nil {
		return "", fmt.Errorf("parse login url: %w", err)
	}
	q := u.Query()
	q.Set("next", h.launchPath)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (h *ConfigHooks) AuthenticatedRedirectTo(_ context.Context, _ *model.LaunchRequest, _ model.LaunchParameters) (string, error) {
	if h.cfg.RedirectAfterLaunch == "" {
		return defaultRedirectAfterLaunch, nil
	}
	return h.cfg.RedirectAfterLaunch, nil
}

func (h *ConfigHooks) OptionalLtiParameters() map[string]string {
	out := make(map[string]string, len(h.cfg.OptionalParameters))
	for k, v := range h.cfg.OptionalParameters {
		out[k] = v
	}
	return out
}
