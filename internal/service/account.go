package service

import (
	"context"

	v1 "lti-tool-provider/api/lti/v1"
	"lti-tool-provider/api/lti/v1/ltiv1connect"
	"lti-tool-provider/internal/biz/model"
	conf "lti-tool-provider/internal/conf/v1"

	"connectrpc.com/connect"
)

// AccountService 实现登录相关的 Connect 服务, 匿名 LTI 启动会跳转到这里登录
type AccountService struct {
	userUseCase model.UserUseCase
	cookie      authCookie
}

// 显式接口检查
var _ ltiv1connect.AccountServiceHandler = (*AccountService)(nil)

func NewAccountService(userUseCase model.UserUseCase, cfg *conf.Bootstrap) ltiv1connect.AccountServiceHandler {
	return &AccountService{
		userUseCase: userUseCase,
		cookie:      newAuthCookie(cfg),
	}
}

func (s *AccountService) Register(ctx context.Context, req *connect.Request[v1.RegisterRequest]) (*connect.Response[v1.RegisterResponse], error) {
	userID, err := s.userUseCase.Register(
		ctx,
		req.Msg.Username,
		req.Msg.PasswordHash,
		req.Msg.Email,
		req.Msg.Salt,
	)
	if err != nil {
		return nil, err
	}

	response := &v1.RegisterResponse{
		UserId: userID,
	}

	return connect.NewResponse(response), nil
}

func (s *AccountService) GetAuthChallenge(ctx context.Context, req *connect.Request[v1.AuthChallengeRequest]) (*connect.Response[v1.AuthChallengeResponse], error) {
	challenge, err := s.userUseCase.GetAuthChallenge(ctx, req.Msg.Username)
	if err != nil {
		return nil, connect.NewError(connect.CodeUnauthenticated, err)
	}

	response := &v1.AuthChallengeResponse{
		Challenge: challenge.Challenge,
		Salt:      challenge.Salt,
	}

	return connect.NewResponse(response), nil
}

func (s *AccountService) SubmitAuth(ctx context.Context, req *connect.Request[v1.SubmitAuthRequest]) (*connect.Response[v1.SubmitAuthResponse], error) {
	result, err := s.userUseCase.SubmitAuth(
		ctx,
		req.Msg.Username,
		req.Msg.HashedCredential,
		req.Msg.AuthRequestId,
		req.Msg.ChallengeResponse,
	)
	if err != nil {
		return nil, connect.NewError(connect.CodeUnauthenticated, err)
	}

	response := connect.NewResponse(&v1.SubmitAuthResponse{
		Code:      result.Code,
		State:     result.State,
		AuthToken: result.AuthToken,
	})
	// 同时写入认证 cookie, 浏览器回到启动地址时即为已登录状态
	response.Header().Add("Set-Cookie", s.cookie.issue(result.AuthToken).String())

	return response, nil
}
