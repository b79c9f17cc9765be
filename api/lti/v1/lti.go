// Package v1 定义 lti.v1 服务的消息, 使用 JSON 编解码.
package v1

type RegisterRequest struct {
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	Email        string `json:"email"`
	Salt         string `json:"salt"`
}

type RegisterResponse struct {
	UserId string `json:"user_id"`
}

type AuthChallengeRequest struct {
	Username string `json:"username"`
}

type AuthChallengeResponse struct {
	Challenge string `json:"challenge"`
	Salt      string `json:"salt"`
}

type SubmitAuthRequest struct {
	Username          string `json:"username"`
	HashedCredential  string `json:"hashed_credential"`
	AuthRequestId     string `json:"auth_request_id"`
	ChallengeResponse string `json:"challenge_response"`
}

type SubmitAuthResponse struct {
	Code      string `json:"code"`
	State     string `json:"state"`
	AuthToken string `json:"auth_token"`
}

// UpdateGradeRequest 为 principal 回传成绩. variance_key 缺省时使用空 key.
type UpdateGradeRequest struct {
	PrincipalId int64   `json:"principal_id"`
	Grade       float64 `json:"grade"`
	VarianceKey *string `json:"variance_key,omitempty"`
}

type UpdateGradeResponse struct {
	// Sent 为 false 表示没有找到 LTI 参数, 未发送 (宽松模式)
	Sent        bool   `json:"sent"`
	CodeMajor   string `json:"code_major,omitempty"`
	Description string `json:"description,omitempty"`
}
