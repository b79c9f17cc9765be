package checkv1connect

import (
	"context"
	"net/http"
	"strings"

	v1 "lti-tool-provider/api/check/v1"
	"lti-tool-provider/internal/pkg/jsoncodec"

	"connectrpc.com/connect"
)

const (
	// CheckServiceName is the fully-qualified name of the CheckService service.
	CheckServiceName = "check.v1.CheckService"
)

const (
	// CheckServiceReadyProcedure is the fully-qualified name of the CheckService's Ready RPC.
	CheckServiceReadyProcedure = "/check.v1.CheckService/Ready"
)

// CheckServiceClient is a client for the check.v1.CheckService service.
type CheckServiceClient interface {
	Ready(context.Context, *connect.Request[v1.ReadyCheckReq]) (*connect.Response[v1.ReadyCheckReply], error)
}

// NewCheckServiceClient constructs a client for the check.v1.CheckService service.
func NewCheckServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) CheckServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsoncodec.Codec{})}, opts...)
	return &checkServiceClient{
		ready: connect.NewClient[v1.ReadyCheckReq, v1.ReadyCheckReply](
			httpClient,
			baseURL+CheckServiceReadyProcedure,
			opts...,
		),
	}
}

type checkServiceClient struct {
	ready *connect.Client[v1.ReadyCheckReq, v1.ReadyCheckReply]
}

func (c *checkServiceClient) Ready(ctx context.Context, req *connect.Request[v1.ReadyCheckReq]) (*connect.Response[v1.ReadyCheckReply], error) {
	return c.ready.CallUnary(ctx, req)
}

// CheckServiceHandler is an implementation of the check.v1.CheckService service.
type CheckServiceHandler interface {
	Ready(context.Context, *connect.Request[v1.ReadyCheckReq]) (*connect.Response[v1.ReadyCheckReply], error)
}

// NewCheckServiceHandler builds an HTTP handler from the service implementation. It returns the
// path on which to mount the handler and the handler itself.
func NewCheckServiceHandler(svc CheckServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsoncodec.Codec{})}, opts...)
	checkServiceReadyHandler := connect.NewUnaryHandler(
		CheckServiceReadyProcedure,
		svc.Ready,
		opts...,
	)
	return "/check.v1.CheckService/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case CheckServiceReadyProcedure:
			checkServiceReadyHandler.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
