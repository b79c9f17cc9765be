package biz

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"lti-tool-provider/internal/biz/model"
	conf "lti-tool-provider/internal/conf/v1"
	"lti-tool-provider/internal/data"

	"connectrpc.com/connect"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type UserUseCase struct {
	repo   data.UserRepo
	cfg    *conf.Auth
	secret []byte
	logger *zap.Logger
}

func NewUserUseCase(repo data.UserRepo, cfg *conf.Bootstrap, logger *zap.Logger) (model.UserUseCase, error) {
	var secret []byte
	if cfg.Auth.JwtSecret != "" {
		secret = []byte(cfg.Auth.JwtSecret)
	} else {
		// 生成默认密钥
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate jwt secret failed: %v", err)
		}
		logger.Warn("WARNING: Using auto-generated JWT secret, set auth.jwt_secret in config for production")
	}

	return &UserUseCase{
		repo:   repo,
		cfg:    cfg.Auth,
		secret: secret,
		logger: logger,
	}, nil
}

func (uc *UserUseCase) Register(ctx context.Context, username, passwordHash, email, salt string) (string, error) {
	if strings.HasPrefix(strings.ToLower(username), model.ProvisionedUsernamePrefix) {
		return "", connect.NewError(connect.CodeInvalidArgument, model.ErrReservedUsername)
	}

	// 检查用户是否已存在
	existingUser, err := uc.repo.GetUserByName(ctx, username)
	if err == nil && existingUser != nil {
		return "", connect.NewError(connect.CodeAlreadyExists, errors.New("user already exists"))
	}

	// 创建用户
	userID, err := uc.repo.CreateUser(ctx, &model.User{
		Username:     username,
		PasswordHash: passwordHash,
		Email:        email,
		Salt:         salt,
	})
	if err != nil {
		return "", connect.NewError(connect.CodeInternal, err)
	}

	return fmt.Sprintf("%d", userID), nil
}

func (uc *UserUseCase) GetAuthChallenge(ctx context.Context, username string) (*model.AuthChallenge, error) {
	// 获取用户信息
	user, err := uc.repo.GetUserByName(ctx, username)
	if err != nil {
		// 返回通用错误避免用户枚举
		return nil, errors.New("authentication failed")
	}

	// 生成随机挑战
	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return nil, fmt.Errorf("generate challenge failed: %v", err)
	}
	challengeStr := base64.StdEncoding.EncodeToString(challenge)

	// 存储挑战到缓存
	timeout := time.Duration(uc.cfg.ChallengeTimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 2 * time.Minute // 默认2分钟
	}

	if err := uc.repo.StoreAuthChallenge(ctx, username, challengeStr, timeout); err != nil {
		return nil, fmt.Errorf("store auth challenge failed: %v", err)
	}

	return &model.AuthChallenge{
		Username:  username,
		Challenge: challengeStr,
		Salt:      user.Salt,
	}, nil
}

func (uc *UserUseCase) SubmitAuth(ctx context.Context, username, hashedCredential, authRequestID, challengeResponse string) (*model.AuthResult, error) {
	// 验证挑战响应
	expectedChallenge, err := uc.repo.GetAuthChallenge(ctx, username)
	if err != nil {
		return nil, errors.New("invalid or expired challenge")
	}

	// 计算期望的挑战响应
	expectedResponse := computeChallengeResponse(expectedChallenge, username)
	if challengeResponse != expectedResponse {
		return nil, errors.New("invalid challenge response")
	}

	// 获取用户信息
	user, err := uc.repo.GetUserByName(ctx, username)
	if err != nil {
		return nil, errors.New("authentication failed")
	}

	// 验证凭证, LTI 自动创建的账号没有密码
	if user.PasswordHash == "" || !constantTimeCompare(hashedCredential, user.PasswordHash) {
		return nil, errors.New("authentication failed")
	}

	// 生成JWT令牌
	token, err := uc.IssueToken(&model.Principal{ID: user.ID, Username: user.Username})
	if err != nil {
		return nil, fmt.Errorf("generate token failed: %v", err)
	}

	return &model.AuthResult{
		Code:      "success",
		State:     "authenticated",
		AuthToken: token,
	}, nil
}

// IssueToken 签发 HS256 JWT, sub 为用户 ID, usr 为用户名
func (uc *UserUseCase) IssueToken(principal *model.Principal) (string, error) {
	expireHours := uc.cfg.JwtExpireHours
	if expireHours == 0 {
		expireHours = 24 // 默认24小时
	}

	claims := jwt.MapClaims{
		"sub": principal.ID,
		"usr": principal.Username,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Duration(expireHours) * time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(uc.secret)
}

func (uc *UserUseCase) ParseToken(tokenString string) (*model.Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return uc.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, model.ErrInvalidToken
	}
	// 数字 claim 解析后为 float64
	sub, ok := claims["sub"].(float64)
	if !ok {
		return nil, fmt.Errorf("%w: missing sub", model.ErrInvalidToken)
	}
	username, _ := claims["usr"].(string)

	return &model.Principal{ID: int64(sub), Username: username}, nil
}

// Provision 创建的账号没有密码, 只能通过 LTI 启动登录; 同名的密码账号不会被复用
func (uc *UserUseCase) Provision(ctx context.Context, username, email string) (*model.Principal, error) {
	user, err := uc.repo.GetUserByName(ctx, username)
	if err == nil {
		return provisionedPrincipal(user)
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		return nil, fmt.Errorf("get user failed: %w", err)
	}

	userID, err := uc.repo.CreateUser(ctx, &model.User{
		Username: username,
		Email:    email,
	})
	if err != nil {
		// 并发启动时另一请求可能已经创建
		if existing, getErr := uc.repo.GetUserByName(ctx, username); getErr == nil {
			return provisionedPrincipal(existing)
		}
		return nil, fmt.Errorf("create user failed: %w", err)
	}

	uc.logger.Info("Provisioned user", zap.Int64("user_id", userID), zap.String("username", username))
	return &model.Principal{ID: userID, Username: username}, nil
}

func provisionedPrincipal(user *model.User) (*model.Principal, error) {
	if user.PasswordHash != "" {
		return nil, fmt.Errorf("%w: %s", model.ErrProvisionConflict, user.Username)
	}
	return &model.Principal{ID: user.ID, Username: user.Username}, nil
}

func computeChallengeResponse(challenge, username string) string {
	str := fmt.Sprintf("%s:%s:%d", challenge, username, time.Now().Unix()/30)
	hash := sha256.Sum256([]byte(str))
	return hex.EncodeToString(hash[:])
}

func constantTimeCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}

	result := 0
	for i := 0; i < len(a); i++ {
		result |= int(a[i]) ^ int(b[i])
	}
	return result == 0
}
