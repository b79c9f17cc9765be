package biz

import (
	"context"
	"net/url"
	"time"

	"lti-tool-provider/internal/biz/model"
	conf "lti-tool-provider/internal/conf/v1"
	"lti-tool-provider/internal/pkg/oauth1"
)

const defaultTimestampWindow = 5 * time.Minute

// OAuthVerifier 使用配置的 consumer key/secret 校验 LTI 启动签名
type OAuthVerifier struct {
	verifier *oauth1.Verifier
}

func NewLaunchVerifier(cfg *conf.Bootstrap) model.LaunchVerifier {
	window := time.Duration(cfg.Lti.TimestampWindowSeconds) * time.Second
	if window == 0 {
		window = defaultTimestampWindow
	}
	return &OAuthVerifier{
		verifier: &oauth1.Verifier{
			ConsumerKey:    cfg.Lti.ToolConsumerKey,
			ConsumerSecret: cfg.Lti.ToolConsumerSecret,
			MaxSkew:        window,
		},
	}
}

// Verify 不访问任何外部状态, 同一请求在时间窗口内多次校验结果一致
func (v *OAuthVerifier) Verify(_ context.Context, req *model.LaunchRequest) (url.Values, error) {
	if err := v.verifier.Verify(req.Method, req.URL, req.Params); err != nil {
		return nil, &model.InvalidLaunchRequestError{Err: err}
	}
	out := make(url.Values, len(req.Params))
	for k, vs := range req.Params {
		out[k] = append([]string(nil), vs...)
	}
	return out, nil
}

// memoVerifier 在单次启动处理中缓存校验结果
type memoVerifier struct {
	verifier model.LaunchVerifier
	req      *model.LaunchRequest
	done     bool
	params   url.Values
	err      error
}

func (m *memoVerifier) verify(ctx context.Context) (url.Values, error) {
	if !m.done {
		m.params, m.err = m.verifier.Verify(ctx, m.req)
		m.done = true
	}
	return m.params, m.err
}
