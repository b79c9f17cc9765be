// Package oauth1 LTI 1.x 使用的两腿 OAuth 1.0a.
// HMAC-SHA1 签名的计算与比对由 github.com/mrjones/oauth 完成, 这里负责 LTI 的参数约束,
// 可配置的时间窗口以及 Authorization 头的编解码.
package oauth1

import (
	"crypto/hmac"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mrjones/oauth"
)

const (
	SignatureMethodHMACSHA1 = "HMAC-SHA1"
	Version                 = "1.0"

	ParamConsumerKey     = "oauth_consumer_key"
	ParamNonce           = "oauth_nonce"
	ParamSignature       = "oauth_signature"
	ParamSignatureMethod = "oauth_signature_method"
	ParamTimestamp       = "oauth_timestamp"
	ParamVersion         = "oauth_version"
	ParamBodyHash        = "oauth_body_hash"

	formContentType = "application/x-www-form-urlencoded"
)

var (
	ErrMissingParameter           = errors.New("missing oauth parameter")
	ErrInvalidConsumerKey         = errors.New("invalid consumer key")
	ErrUnsupportedSignatureMethod = errors.New("unsupported signature method")
	ErrUnsupportedVersion         = errors.New("unsupported oauth version")
	ErrInvalidTimestamp           = errors.New("invalid timestamp")
	ErrExpiredTimestamp           = errors.New("expired timestamp")
	ErrRepeatedParameter          = errors.New("repeated parameter")
	ErrInvalidSignature           = errors.New("invalid signature")
)

// PercentEncode RFC 5849 3.6 编码, 只保留 RFC 3986 unreserved 字符
func PercentEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}

// normalizeURL 签名基串中的 URI: scheme 与 host 小写, 去掉默认端口, 查询串和 fragment
func normalizeURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("url %q is not absolute", rawURL)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" {
		if !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
			host = host + ":" + port
		}
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return &url.URL{Scheme: scheme, Host: host, Path: path}, nil
}

// formRequest 把全部参数放进表单体, 查询参数已经合并在 params 中
func formRequest(method, rawURL string, params url.Values) (*http.Request, error) {
	u, err := normalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(strings.ToUpper(method), u.String(), strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build signing request: %w", err)
	}
	req.Header.Set("Content-Type", formContentType)
	return req, nil
}

// Verifier 校验单一 consumer 的两腿签名请求
type Verifier struct {
	ConsumerKey    string
	ConsumerSecret string
	// MaxSkew 限制 |now - oauth_timestamp|, 为 0 时不校验
	MaxSkew time.Duration
	Now     func() time.Time
}

// Verify 校验 params 中的 oauth 参数, 不做 I/O, 不记录 nonce
func (v *Verifier) Verify(method, rawURL string, params url.Values) error {
	for _, name := range []string{ParamSignature, ParamConsumerKey, ParamSignatureMethod, ParamTimestamp, ParamNonce} {
		if params.Get(name) == "" {
			return fmt.Errorf("%w: %s", ErrMissingParameter, name)
		}
	}

	if !hmac.Equal([]byte(params.Get(ParamConsumerKey)), []byte(v.ConsumerKey)) {
		return ErrInvalidConsumerKey
	}
	if method := params.Get(ParamSignatureMethod); method != SignatureMethodHMACSHA1 {
		return fmt.Errorf("%w: %s", ErrUnsupportedSignatureMethod, method)
	}
	if version := params.Get(ParamVersion); version != "" && version != Version {
		return fmt.Errorf("%w: %s", ErrUnsupportedVersion, version)
	}

	ts, err := strconv.ParseInt(params.Get(ParamTimestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidTimestamp, params.Get(ParamTimestamp))
	}
	if v.MaxSkew > 0 {
		skew := v.now().Sub(time.Unix(ts, 0))
		if skew < 0 {
			skew = -skew
		}
		if skew > v.MaxSkew {
			return fmt.Errorf("%w: off by %s", ErrExpiredTimestamp, skew.Truncate(time.Second))
		}
	}

	// mrjones/oauth 以 map[string]string 处理参数, 同名参数无法参与签名
	for name, values := range params {
		if len(values) > 1 {
			return fmt.Errorf("%w: %s", ErrRepeatedParameter, name)
		}
	}

	req, err := formRequest(method, rawURL, params)
	if err != nil {
		return err
	}
	// 时间窗口已在上面按配置校验, 库内固定的 5 分钟检查关闭
	provider := oauth.NewProvider(func(key string, _ map[string]string) (*oauth.Consumer, error) {
		return oauth.NewConsumer(v.ConsumerKey, v.ConsumerSecret, oauth.ServiceProvider{IgnoreTimestamp: true}), nil
	})
	key, err := provider.IsAuthorized(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if key == nil {
		return ErrInvalidSignature
	}
	return nil
}

func (v *Verifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Signer 为表单请求生成两腿签名
type Signer struct {
	ConsumerKey    string
	ConsumerSecret string
}

// captureTransport 截获签好名的请求, 不发往网络
type captureTransport struct {
	req *http.Request
}

func (t *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.req = req
	return &http.Response{
		StatusCode: http.StatusNoContent,
		Header:     http.Header{},
		Body:       http.NoBody,
		Request:    req,
	}, nil
}

// SignForm 返回带 oauth 协议参数和签名的表单副本, 可直接以 application/x-www-form-urlencoded 提交.
// rawURL 的查询参数参与签名但不会写入返回的表单.
func (s *Signer) SignForm(method, rawURL string, form url.Values) (url.Values, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	all := url.Values{}
	for k, vs := range form {
		all[k] = append([]string(nil), vs...)
	}
	for k, vs := range u.Query() {
		all[k] = append(all[k], vs...)
	}

	req, err := formRequest(method, rawURL, all)
	if err != nil {
		return nil, err
	}

	capture := &captureTransport{}
	consumer := oauth.NewCustomHttpClientConsumer(s.ConsumerKey, s.ConsumerSecret, oauth.ServiceProvider{}, &http.Client{Transport: capture})
	client, err := consumer.MakeHttpClient(&oauth.AccessToken{})
	if err != nil {
		return nil, fmt.Errorf("create signing client: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sign form: %w", err)
	}
	resp.Body.Close()
	if capture.req == nil {
		return nil, errors.New("sign form: request was not signed")
	}

	oauthParams, ok, err := ParseAuthorizationHeader(capture.req.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("sign form: missing OAuth authorization header")
	}

	signed := url.Values{}
	for k, vs := range form {
		signed[k] = append([]string(nil), vs...)
	}
	for k, vs := range oauthParams {
		signed[k] = vs
	}
	return signed, nil
}

// NewBodyHashClient 返回对非表单请求体附加 oauth_body_hash 并签名的 http.Client, base 负责实际发送
func NewBodyHashClient(consumerKey, consumerSecret string, base *http.Client) (*http.Client, error) {
	consumer := oauth.NewCustomHttpClientConsumer(consumerKey, consumerSecret, oauth.ServiceProvider{BodyHash: true}, base)
	client, err := consumer.MakeHttpClient(&oauth.AccessToken{})
	if err != nil {
		return nil, fmt.Errorf("create body hash client: %w", err)
	}
	return client, nil
}

// AuthorizationHeader 把 oauth_* 参数编码为 OAuth 方案的 Authorization 头
func AuthorizationHeader(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if strings.HasPrefix(k, "oauth_") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf(`%s="%s"`, PercentEncode(k), PercentEncode(params.Get(k))))
	}
	return "OAuth " + strings.Join(parts, ", ")
}

// ParseAuthorizationHeader 解析 OAuth 方案的 Authorization 头, 其他方案返回 ok=false
func ParseAuthorizationHeader(header string) (params url.Values, ok bool, err error) {
	scheme, rest, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "OAuth") {
		return nil, false, nil
	}

	params = url.Values{}
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, found := strings.Cut(part, "=")
		if !found {
			return nil, true, fmt.Errorf("malformed authorization parameter %q", part)
		}
		key, err := url.PathUnescape(strings.TrimSpace(k))
		if err != nil {
			return nil, true, fmt.Errorf("decode authorization key: %w", err)
		}
		value, err := url.PathUnescape(strings.Trim(strings.TrimSpace(v), `"`))
		if err != nil {
			return nil, true, fmt.Errorf("decode authorization value: %w", err)
		}
		// realm 不参与签名
		if key == "realm" {
			continue
		}
		params.Add(key, value)
	}
	return params, true, nil
}
