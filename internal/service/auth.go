package service

import (
	"context"
	"net/http"
	"strings"
	"time"

	"lti-tool-provider/internal/biz/model"
	conf "lti-tool-provider/internal/conf/v1"

	"go.uber.org/zap"
)

const (
	defaultAuthCookieName = "lti_auth"
	defaultTokenLifetime  = 24 * time.Hour
)

// authCookie 保存主体 JWT 的 cookie 设置
type authCookie struct {
	name   string
	secure bool
	maxAge time.Duration
}

func newAuthCookie(cfg *conf.Bootstrap) authCookie {
	c := authCookie{name: defaultAuthCookieName, maxAge: defaultTokenLifetime}
	if cfg.Auth != nil {
		if cfg.Auth.CookieName != "" {
			c.name = cfg.Auth.CookieName
		}
		if cfg.Auth.JwtExpireHours > 0 {
			c.maxAge = time.Duration(cfg.Auth.JwtExpireHours) * time.Hour
		}
	}
	if cfg.Server != nil && cfg.Server.Http != nil {
		c.secure = cfg.Server.Http.SecureCookies
	}
	return c
}

// LMS 通常在 iframe 中跨站提交启动表单, 安全模式下需要 SameSite=None
func (c authCookie) sameSite() http.SameSite {
	if c.secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

func (c authCookie) issue(token string) *http.Cookie {
	return &http.Cookie{
		Name:     c.name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: c.sameSite(),
	}
}

func (c authCookie) clear() *http.Cookie {
	return &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: c.sameSite(),
	}
}

// cookiePrincipalStore 从认证 cookie 或 Bearer 头中读取主体, 登录登出通过 Set-Cookie 生效
type cookiePrincipalStore struct {
	w      http.ResponseWriter
	r      *http.Request
	users  model.UserUseCase
	cookie authCookie
	logger *zap.Logger

	loaded    bool
	principal *model.Principal
}

func newCookiePrincipalStore(w http.ResponseWriter, r *http.Request, users model.UserUseCase, cookie authCookie, logger *zap.Logger) *cookiePrincipalStore {
	return &cookiePrincipalStore{w: w, r: r, users: users, cookie: cookie, logger: logger}
}

func (s *cookiePrincipalStore) Principal(context.Context) *model.Principal {
	if !s.loaded {
		s.loaded = true
		if token := s.token(); token != "" {
			principal, err := s.users.ParseToken(token)
			if err != nil {
				s.logger.Debug("Ignoring invalid auth token", zap.Error(err))
			} else {
				s.principal = principal
			}
		}
	}
	return s.principal
}

func (s *cookiePrincipalStore) token() string {
	if c, err := s.r.Cookie(s.cookie.name); err == nil && c.Value != "" {
		return c.Value
	}
	return bearerToken(s.r.Header)
}

func bearerToken(header http.Header) string {
	scheme, token, ok := strings.Cut(header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

func (s *cookiePrincipalStore) SignIn(_ context.Context, principal *model.Principal) error {
	token, err := s.users.IssueToken(principal)
	if err != nil {
		return err
	}
	http.SetCookie(s.w, s.cookie.issue(token))
	s.loaded = true
	s.principal = principal
	return nil
}

func (s *cookiePrincipalStore) SignOut(context.Context) error {
	http.SetCookie(s.w, s.cookie.clear())
	s.loaded = true
	s.principal = nil
	return nil
}
