package model

import (
	"context"
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user Already Exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidToken      = errors.New("invalid auth token")
	ErrReservedUsername  = errors.New("username is reserved for LTI accounts")
	ErrProvisionConflict = errors.New("username belongs to a password account")
)

// ProvisionedUsernamePrefix 自动创建的 LTI 账号前缀, 注册时不可使用
const ProvisionedUsernamePrefix = "lti:"

// User 业务层用户模型
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Salt         string
	Email        string
	CreatedAt    string
}

// AuthChallenge 认证挑战
type AuthChallenge struct {
	Username  string
	Challenge string
	Salt      string
}

// AuthResult 认证结果
type AuthResult struct {
	Code      string
	State     string
	AuthToken string
}

// UserUseCase 用户用例接口
type UserUseCase interface {
	Register(ctx context.Context, username, passwordHash, email, salt string) (string, error)
	GetAuthChallenge(ctx context.Context, username string) (*AuthChallenge, error)
	SubmitAuth(ctx context.Context, username, hashedCredential, authRequestID, challengeResponse string) (*AuthResult, error)
	// IssueToken 为主体签发 JWT, 用于认证 cookie
	IssueToken(principal *Principal) (string, error)
	// ParseToken 校验 JWT 并还原主体
	ParseToken(token string) (*Principal, error)
	// Provision 按用户名查找本地用户, 不存在时创建无密码账号
	Provision(ctx context.Context, username, email string) (*Principal, error)
}
