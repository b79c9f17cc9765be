package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	v1 "lti-tool-provider/api/lti/v1"
	"lti-tool-provider/api/lti/v1/ltiv1connect"
	"lti-tool-provider/internal/biz/model"
	conf "lti-tool-provider/internal/conf/v1"

	"connectrpc.com/connect"
	"go.uber.org/zap"
)

var errOutcomeCaller = errors.New("outcome service requires a valid bearer token")

// OutcomeService 供宿主应用通过 RPC 触发成绩回传
type OutcomeService struct {
	grades model.GradeUseCase
}

var _ ltiv1connect.OutcomeServiceHandler = (*OutcomeService)(nil)

func NewOutcomeService(grades model.GradeUseCase) ltiv1connect.OutcomeServiceHandler {
	return &OutcomeService{grades: grades}
}

func (s *OutcomeService) UpdateGrade(ctx context.Context, req *connect.Request[v1.UpdateGradeRequest]) (*connect.Response[v1.UpdateGradeResponse], error) {
	event := model.GradeUpdated{
		Grade:       req.Msg.Grade,
		VarianceKey: req.Msg.VarianceKey,
	}
	if req.Msg.PrincipalId != 0 {
		event.Principal = &model.Principal{ID: req.Msg.PrincipalId}
	}

	result, err := s.grades.HandleGradeUpdated(ctx, event)
	if err != nil {
		return nil, gradeError(err)
	}

	response := &v1.UpdateGradeResponse{}
	if result != nil {
		response.Sent = true
		response.CodeMajor = result.CodeMajor
		response.Description = result.Description
	}
	return connect.NewResponse(response), nil
}

// OutcomeAuthInterceptor 只放行携带 lti.outcome_api_token 的调用方, 未配置令牌时全部拒绝
func OutcomeAuthInterceptor(cfg *conf.Bootstrap, logger *zap.Logger) connect.UnaryInterceptorFunc {
	var token []byte
	if cfg.Lti != nil {
		token = []byte(cfg.Lti.OutcomeApiToken)
	}
	if len(token) == 0 {
		logger.Warn("lti.outcome_api_token is empty, grade RPC rejects every caller")
	}

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if !validCaller(bearerToken(req.Header()), token) {
				logger.Warn("Rejected grade RPC caller",
					zap.String("procedure", req.Spec().Procedure),
					zap.String("peer", req.Peer().Addr),
				)
				return nil, connect.NewError(connect.CodeUnauthenticated, errOutcomeCaller)
			}
			return next(ctx, req)
		}
	}
}

func validCaller(presented string, token []byte) bool {
	if len(token) == 0 || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), token) == 1
}

// NewOutcomeServiceHandler 挂载带调用方校验的成绩 RPC
func NewOutcomeServiceHandler(svc ltiv1connect.OutcomeServiceHandler, cfg *conf.Bootstrap, logger *zap.Logger, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append(opts, connect.WithInterceptors(OutcomeAuthInterceptor(cfg, logger)))
	return ltiv1connect.NewOutcomeServiceHandler(svc, opts...)
}

func gradeError(err error) *connect.Error {
	switch {
	case errors.Is(err, model.ErrInvalidGrade), errors.Is(err, model.ErrPrincipalRequired):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, model.ErrMissingOutcomeParameters):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, model.ErrRecordNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeUnavailable, err)
	}
}
