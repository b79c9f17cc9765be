package service

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"lti-tool-provider/internal/biz"
	"lti-tool-provider/internal/biz/model"
	conf "lti-tool-provider/internal/conf/v1"
	"lti-tool-provider/internal/pkg/oauth1"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const (
	browserSessionName = "lti_session"
	sessionIDKey       = "sid"
	sessionMaxAge      = 7 * 24 * 3600
)

// LaunchService 处理 LTI 启动请求并返回 302 跳转
type LaunchService struct {
	uc       model.LaunchUseCase
	sessions model.SessionStore
	users    model.UserUseCase
	cookies  sessions.Store
	cookie   authCookie
	path     string
	trustFwd bool
	logger   *zap.Logger
}

func NewLaunchService(
	cfg *conf.Bootstrap,
	uc model.LaunchUseCase,
	sessionStore model.SessionStore,
	users model.UserUseCase,
	logger *zap.Logger,
) (*LaunchService, error) {
	httpCfg := cfg.Server.Http

	secret := []byte(httpCfg.SessionSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate session secret failed: %v", err)
		}
		logger.Warn("WARNING: Using auto-generated session secret, set server.http.session_secret in config for production")
	}

	cookie := newAuthCookie(cfg)
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   cookie.secure,
		SameSite: cookie.sameSite(),
	}

	path := httpCfg.LaunchPath
	if path == "" {
		path = biz.DefaultLaunchPath
	}

	return &LaunchService{
		uc:       uc,
		sessions: sessionStore,
		users:    users,
		cookies:  store,
		cookie:   cookie,
		path:     path,
		trustFwd: httpCfg.TrustForwardedHeaders,
		logger:   logger,
	}, nil
}

// Path 启动入口的路由
func (s *LaunchService) Path() string {
	return s.path
}

func (s *LaunchService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	params, err := launchParameters(r)
	if err != nil {
		http.Error(w, (&model.InvalidLaunchRequestError{Err: err}).Error(), http.StatusBadRequest)
		return
	}

	sid, err := s.sessionID(w, r)
	if err != nil {
		s.logger.Error("Failed to save browser session", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	req := &model.LaunchRequest{
		Method:  r.Method,
		URL:     s.requestURL(r),
		Params:  params,
		Session: s.sessions.Bind(sid),
		Auth:    newCookiePrincipalStore(w, r, s.users, s.cookie, s.logger),
	}

	result, err := s.uc.Launch(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}

	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

func (s *LaunchService) writeError(w http.ResponseWriter, err error) {
	var invalid *model.InvalidLaunchRequestError
	switch {
	case errors.As(err, &invalid):
		http.Error(w, invalid.Error(), http.StatusBadRequest)
	case errors.Is(err, model.ErrWrongPrincipal), errors.Is(err, model.ErrProvisionConflict):
		s.logger.Warn("LTI launch refused", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
	default:
		s.logger.Error("LTI launch error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// sessionID 浏览器会话 ID 保存在签名 cookie 中, 首次访问时生成
func (s *LaunchService) sessionID(w http.ResponseWriter, r *http.Request) (string, error) {
	sess, err := s.cookies.Get(r, browserSessionName)
	if err != nil {
		// 签名无效时得到的是新会话
		s.logger.Debug("Discarding invalid session cookie", zap.Error(err))
	}
	if id, ok := sess.Values[sessionIDKey].(string); ok && id != "" {
		return id, nil
	}

	id := uuid.NewString()
	sess.Values[sessionIDKey] = id
	if err := sess.Save(r, w); err != nil {
		return "", err
	}
	return id, nil
}

// requestURL 还原参与签名的绝对地址
func (s *LaunchService) requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host

	if s.trustFwd {
		if proto := firstHeaderValue(r, "X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		if fwdHost := firstHeaderValue(r, "X-Forwarded-Host"); fwdHost != "" {
			host = fwdHost
		}
	}

	return (&url.URL{Scheme: scheme, Host: host, Path: r.URL.Path}).String()
}

func firstHeaderValue(r *http.Request, name string) string {
	value, _, _ := strings.Cut(r.Header.Get(name), ",")
	return strings.TrimSpace(value)
}

// launchParameters 合并查询参数, 表单参数和 Authorization 头中的 oauth 参数
func launchParameters(r *http.Request) (url.Values, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}

	params := make(url.Values, len(r.Form))
	for k, vs := range r.Form {
		params[k] = append([]string(nil), vs...)
	}

	header, ok, err := oauth1.ParseAuthorizationHeader(r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}
	if ok {
		for k, vs := range header {
			params[k] = append(params[k], vs...)
		}
	}
	return params, nil
}
