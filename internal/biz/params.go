package biz

import (
	"fmt"
	"net/url"
	"strings"

	"lti-tool-provider/internal/biz/model"
)

// ExtractLaunchParameters 去除所有名称中包含 oauth 的字段
func ExtractLaunchParameters(raw url.Values) model.LaunchParameters {
	params := make(model.LaunchParameters, len(raw))
	for k, vs := range raw {
		if strings.Contains(k, "oauth") {
			continue
		}
		params[k] = append([]string(nil), vs...)
	}
	return params
}

// BuildIdentityHint 从启动参数构造认证钩子的输入.
// optional 为 LTI 参数名到 ExtraParams 键名的映射, 缺失的可选参数不出现在 ExtraParams 中.
func BuildIdentityHint(params model.LaunchParameters, optional map[string]string) model.IdentityHint {
	extra := make(map[string]string, len(optional))
	for ltiName, hintKey := range optional {
		if vs, ok := params[ltiName]; ok && len(vs) > 0 {
			extra[hintKey] = vs[0]
		}
	}
	return model.IdentityHint{
		UserID:      params.Get(model.ParamUserID),
		Username:    params.Get(model.ParamPersonSourcedID),
		Email:       params.Get(model.ParamPersonEmail),
		ExtraParams: extra,
	}
}

// NormalizeVarianceKey 未指定 key 时存为空串, 超长 key 直接拒绝而不是截断
func NormalizeVarianceKey(key string, ok bool) (string, error) {
	if !ok {
		return "", nil
	}
	if len(key) > model.MaxVarianceKeyLength {
		return "", fmt.Errorf("%w: %d bytes", model.ErrVarianceKeyTooLong, len(key))
	}
	return key, nil
}
