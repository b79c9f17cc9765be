package model

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"
)

// LTI 规范字段名
const (
	ParamUserID               = "user_id"
	ParamPersonSourcedID      = "lis_person_sourcedid"
	ParamPersonEmail          = "lis_person_contact_email_primary"
	ParamResultSourcedID      = "lis_result_sourcedid"
	ParamOutcomeServiceURL    = "lis_outcome_service_url"
	ParamResourceLinkID       = "resource_link_id"
	ParamContextID            = "context_id"
	ParamRoles                = "roles"
	ParamLtiVersion           = "lti_version"
	ParamLtiMessageType       = "lti_message_type"
	ParamLaunchPresentation   = "launch_presentation_return_url"
	ParamToolConsumerInstance = "tool_consumer_instance_guid"
)

// SessionKey 认证跳转期间保存启动参数的会话键
const SessionKey = "lti_parameters"

// MaxVarianceKeyLength 与存储层 custom_key 列长度一致
const MaxVarianceKeyLength = 190

// LaunchParameters 去除 oauth 协议字段之后的 LTI 参数.
// 单值字段序列化为 JSON 字符串, 多值字段序列化为数组.
type LaunchParameters map[string][]string

// Get 返回字段的第一个值
func (p LaunchParameters) Get(key string) string {
	if vs := p[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// Has 字段存在且非空
func (p LaunchParameters) Has(key string) bool {
	return p.Get(key) != ""
}

// Keys 排序后的字段名
func (p LaunchParameters) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone 深拷贝
func (p LaunchParameters) Clone() LaunchParameters {
	out := make(LaunchParameters, len(p))
	for k, vs := range p {
		out[k] = append([]string(nil), vs...)
	}
	return out
}

// Values 转换为 url.Values
func (p LaunchParameters) Values() url.Values {
	return url.Values(p.Clone())
}

func (p LaunchParameters) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(p))
	for k, vs := range p {
		if len(vs) == 1 {
			out[k] = vs[0]
			continue
		}
		out[k] = vs
	}
	return json.Marshal(out)
}

func (p *LaunchParameters) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(LaunchParameters, len(raw))
	for k, v := range raw {
		var single string
		if err := json.Unmarshal(v, &single); err == nil {
			out[k] = []string{single}
			continue
		}
		var multi []string
		if err := json.Unmarshal(v, &multi); err != nil {
			return fmt.Errorf("lti parameter %q: %w", k, err)
		}
		out[k] = multi
	}
	*p = out
	return nil
}

// IdentityHint 传给认证钩子的身份信息, 不落库
type IdentityHint struct {
	UserID      string
	Username    string
	Email       string
	ExtraParams map[string]string
}

// Principal 宿主应用中已认证的用户
type Principal struct {
	ID       int64
	Username string
}

// LtiUserRecord 按 (principal, variance key) 唯一保存的启动参数
type LtiUserRecord struct {
	ID          int64
	PrincipalID int64
	VarianceKey string
	Parameters  LaunchParameters
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// GradeRequest 一次成绩回传
type GradeRequest struct {
	OutcomeServiceURL string
	ResultSourcedID   string
	Grade             float64
}

// OutcomeResult 成绩服务的响应
type OutcomeResult struct {
	Success     bool
	CodeMajor   string
	Description string
}

// Session 由宿主提供, 作用域为单个浏览器会话
type Session interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// SessionStore 按会话 ID 绑定 Session
type SessionStore interface {
	Bind(sessionID string) Session
}

// PrincipalStore 当前请求的认证状态
type PrincipalStore interface {
	// Principal 未认证时返回 nil
	Principal(ctx context.Context) *Principal
	SignIn(ctx context.Context, principal *Principal) error
	SignOut(ctx context.Context) error
}

// LaunchRequest 一次 LTI 启动请求
type LaunchRequest struct {
	Method string
	// URL 是参与签名的绝对地址
	URL string
	// Params 合并后的查询参数, 表单参数和 Authorization 头中的 oauth 参数
	Params  url.Values
	Session Session
	Auth    PrincipalStore
}

// LaunchResult 启动处理结果, 由 HTTP 层转换为重定向
type LaunchResult struct {
	RedirectURL   string
	Authenticated bool
}

// LaunchVerifier 校验签名并返回完整参数
type LaunchVerifier interface {
	Verify(ctx context.Context, req *LaunchRequest) (url.Values, error)
}

// ApplicationHooks 宿主应用提供的认证与跳转能力
type ApplicationHooks interface {
	// AuthenticationHook 可以通过 req.Auth.SignIn 建立认证主体
	AuthenticationHook(ctx context.Context, req *LaunchRequest, hint IdentityHint) error
	// VaryByKey ok 为 false 表示不区分, 每个用户只保存一条记录
	VaryByKey(params LaunchParameters) (key string, ok bool)
	AnonymousRedirectTo(ctx context.Context, req *LaunchRequest, params LaunchParameters) (string, error)
	AuthenticatedRedirectTo(ctx context.Context, req *LaunchRequest, params LaunchParameters) (string, error)
	// OptionalLtiParameters LTI 参数名 -> IdentityHint.ExtraParams 键名
	OptionalLtiParameters() map[string]string
}

// OutcomeSender 发送 replaceResult
type OutcomeSender interface {
	ReplaceResult(ctx context.Context, req *GradeRequest) (*OutcomeResult, error)
}

// LaunchUseCase 启动状态机
type LaunchUseCase interface {
	Launch(ctx context.Context, req *LaunchRequest) (*LaunchResult, error)
}

// GradeUseCase 成绩回传
type GradeUseCase interface {
	BuildGradeRequest(record *LtiUserRecord, grade float64) (*GradeRequest, error)
	SendGrade(ctx context.Context, record *LtiUserRecord, grade float64) (*OutcomeResult, error)
	HandleGradeUpdated(ctx context.Context, event GradeUpdated) (*OutcomeResult, error)
}
