package ltiv1connect

import (
	"context"
	"net/http"
	"strings"

	v1 "lti-tool-provider/api/lti/v1"
	"lti-tool-provider/internal/pkg/jsoncodec"

	"connectrpc.com/connect"
)

const (
	// AccountServiceName is the fully-qualified name of the AccountService service.
	AccountServiceName = "lti.v1.AccountService"
	// OutcomeServiceName is the fully-qualified name of the OutcomeService service.
	OutcomeServiceName = "lti.v1.OutcomeService"
)

const (
	AccountServiceRegisterProcedure         = "/lti.v1.AccountService/Register"
	AccountServiceGetAuthChallengeProcedure = "/lti.v1.AccountService/GetAuthChallenge"
	AccountServiceSubmitAuthProcedure       = "/lti.v1.AccountService/SubmitAuth"
	OutcomeServiceUpdateGradeProcedure      = "/lti.v1.OutcomeService/UpdateGrade"
)

// AccountServiceClient is a client for the lti.v1.AccountService service.
type AccountServiceClient interface {
	Register(context.Context, *connect.Request[v1.RegisterRequest]) (*connect.Response[v1.RegisterResponse], error)
	GetAuthChallenge(context.Context, *connect.Request[v1.AuthChallengeRequest]) (*connect.Response[v1.AuthChallengeResponse], error)
	SubmitAuth(context.Context, *connect.Request[v1.SubmitAuthRequest]) (*connect.Response[v1.SubmitAuthResponse], error)
}

// NewAccountServiceClient constructs a client for the lti.v1.AccountService service.
func NewAccountServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) AccountServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsoncodec.Codec{})}, opts...)
	return &accountServiceClient{
		register: connect.NewClient[v1.RegisterRequest, v1.RegisterResponse](
			httpClient,
			baseURL+AccountServiceRegisterProcedure,
			opts...,
		),
		getAuthChallenge: connect.NewClient[v1.AuthChallengeRequest, v1.AuthChallengeResponse](
			httpClient,
			baseURL+AccountServiceGetAuthChallengeProcedure,
			opts...,
		),
		submitAuth: connect.NewClient[v1.SubmitAuthRequest, v1.SubmitAuthResponse](
			httpClient,
			baseURL+AccountServiceSubmitAuthProcedure,
			opts...,
		),
	}
}

type accountServiceClient struct {
	register         *connect.Client[v1.RegisterRequest, v1.RegisterResponse]
	getAuthChallenge *connect.Client[v1.AuthChallengeRequest, v1.AuthChallengeResponse]
	submitAuth       *connect.Client[v1.SubmitAuthRequest, v1.SubmitAuthResponse]
}

func (c *accountServiceClient) Register(ctx context.Context, req *connect.Request[v1.RegisterRequest]) (*connect.Response[v1.RegisterResponse], error) {
	return c.register.CallUnary(ctx, req)
}

func (c *accountServiceClient) GetAuthChallenge(ctx context.Context, req *connect.Request[v1.AuthChallengeRequest]) (*connect.Response[v1.AuthChallengeResponse], error) {
	return c.getAuthChallenge.CallUnary(ctx, req)
}

func (c *accountServiceClient) SubmitAuth(ctx context.Context, req *connect.Request[v1.SubmitAuthRequest]) (*connect.Response[v1.SubmitAuthResponse], error) {
	return c.submitAuth.CallUnary(ctx, req)
}

// AccountServiceHandler is an implementation of the lti.v1.AccountService service.
type AccountServiceHandler interface {
	Register(context.Context, *connect.Request[v1.RegisterRequest]) (*connect.Response[v1.RegisterResponse], error)
	GetAuthChallenge(context.Context, *connect.Request[v1.AuthChallengeRequest]) (*connect.Response[v1.AuthChallengeResponse], error)
	SubmitAuth(context.Context, *connect.Request[v1.SubmitAuthRequest]) (*connect.Response[v1.SubmitAuthResponse], error)
}

// NewAccountServiceHandler builds an HTTP handler from the service implementation. It returns the
// path on which to mount the handler and the handler itself.
func NewAccountServiceHandler(svc AccountServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsoncodec.Codec{})}, opts...)
	accountServiceRegisterHandler := connect.NewUnaryHandler(
		AccountServiceRegisterProcedure,
		svc.Register,
		opts...,
	)
	accountServiceGetAuthChallengeHandler := connect.NewUnaryHandler(
		AccountServiceGetAuthChallengeProcedure,
		svc.GetAuthChallenge,
		opts...,
	)
	accountServiceSubmitAuthHandler := connect.NewUnaryHandler(
		AccountServiceSubmitAuthProcedure,
		svc.SubmitAuth,
		opts...,
	)
	return "/lti.v1.AccountService/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case AccountServiceRegisterProcedure:
			accountServiceRegisterHandler.ServeHTTP(w, r)
		case AccountServiceGetAuthChallengeProcedure:
			accountServiceGetAuthChallengeHandler.ServeHTTP(w, r)
		case AccountServiceSubmitAuthProcedure:
			accountServiceSubmitAuthHandler.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// OutcomeServiceClient is a client for the lti.v1.OutcomeService service.
type OutcomeServiceClient interface {
	UpdateGrade(context.Context, *connect.Request[v1.UpdateGradeRequest]) (*connect.Response[v1.UpdateGradeResponse], error)
}

// NewOutcomeServiceClient constructs a client for the lti.v1.OutcomeService service.
func NewOutcomeServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) OutcomeServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsoncodec.Codec{})}, opts...)
	return &outcomeServiceClient{
		updateGrade: connect.NewClient[v1.UpdateGradeRequest, v1.UpdateGradeResponse](
			httpClient,
			baseURL+OutcomeServiceUpdateGradeProcedure,
			opts...,
		),
	}
}

type outcomeServiceClient struct {
	updateGrade *connect.Client[v1.UpdateGradeRequest, v1.UpdateGradeResponse]
}

func (c *outcomeServiceClient) UpdateGrade(ctx context.Context, req *connect.Request[v1.UpdateGradeRequest]) (*connect.Response[v1.UpdateGradeResponse], error) {
	return c.updateGrade.CallUnary(ctx, req)
}

// OutcomeServiceHandler is an implementation of the lti.v1.OutcomeService service.
type OutcomeServiceHandler interface {
	UpdateGrade(context.Context, *connect.Request[v1.UpdateGradeRequest]) (*connect.Response[v1.UpdateGradeResponse], error)
}

// NewOutcomeServiceHandler builds an HTTP handler from the service implementation. It returns the
// path on which to mount the handler and the handler itself.
func NewOutcomeServiceHandler(svc OutcomeServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsoncodec.Codec{})}, opts...)
	outcomeServiceUpdateGradeHandler := connect.NewUnaryHandler(
		OutcomeServiceUpdateGradeProcedure,
		svc.UpdateGrade,
		opts...,
	)
	return "/lti.v1.OutcomeService/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case OutcomeServiceUpdateGradeProcedure:
			outcomeServiceUpdateGradeHandler.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
