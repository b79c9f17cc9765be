package server

import (
	"context"
	"net/http"
	"time"

	"lti-tool-provider/api/check/v1/checkv1connect"
	"lti-tool-provider/api/lti/v1/ltiv1connect"
	conf "lti-tool-provider/internal/conf/v1"
	"lti-tool-provider/internal/service"

	"connectrpc.com/connect"
	connectcors "connectrpc.com/cors"
	"connectrpc.com/otelconnect"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

var Module = fx.Module("server",
	fx.Provide(
		NewHTTPServer,
	),
)

func NewHTTPServer(
	lc fx.Lifecycle,
	cfg *conf.Bootstrap,
	accountv1Service ltiv1connect.AccountServiceHandler,
	outcomev1Service ltiv1connect.OutcomeServiceHandler,
	checkv1Service checkv1connect.CheckServiceHandler,
	launchService *service.LaunchService,
	logger *zap.Logger,
	monitoringMiddleware func(http.Handler) http.Handler,
	connectInterceptor connect.UnaryInterceptorFunc,
) *http.Server {
	// 1. 创建 OTel Connect 拦截器实例
	otelInterceptor, err := otelconnect.NewInterceptor(
		otelconnect.WithoutServerPeerAttributes(),
	)
	if err != nil {
		logger.Fatal("failed to create otel interceptor", zap.Error(err))
	}

	// 2. 将 OTel 拦截器和监控拦截器加入到 Connect 拦截器列表中
	interceptors := connect.WithInterceptors(otelInterceptor, connectInterceptor)

	// 3. 将拦截器传递给 Service Handler
	accountv1connectPath, accountv1connectHandler := ltiv1connect.NewAccountServiceHandler(
		accountv1Service,
		interceptors,
	)
	// 成绩回传会以工具身份签名发往 LMS, 只允许持有服务令牌的宿主调用
	outcomev1connectPath, outcomev1connectHandler := service.NewOutcomeServiceHandler(
		outcomev1Service,
		cfg,
		logger,
		interceptors,
	)
	checkv1connectPath, checkv1connectHandler := checkv1connect.NewCheckServiceHandler(
		checkv1Service,
		interceptors,
	)

	mux := http.NewServeMux()
	mux.Handle(accountv1connectPath, accountv1connectHandler)
	mux.Handle(outcomev1connectPath, outcomev1connectHandler)
	mux.Handle(checkv1connectPath, checkv1connectHandler)
	// LTI 启动入口是普通表单提交, 不走 Connect 协议
	mux.Handle(launchService.Path(), otelhttp.NewHandler(launchService, "lti.launch"))

	// CORS 配置
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   connectcors.AllowedMethods(),
		AllowedHeaders:   connectcors.AllowedHeaders(),
		ExposedHeaders:   connectcors.ExposedHeaders(),
		MaxAge:           7200,
		AllowCredentials: false,
	})

	// 创建处理器链：监控中间件 -> CORS -> HTTP/2
	handlerChain := monitoringMiddleware(corsHandler.Handler(mux))

	server := &http.Server{
		Addr:         cfg.Server.Http.Addr,
		Handler:      h2c.NewHandler(handlerChain, &http2.Server{}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	// 注册生命周期钩子
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("HTTP server starting", zap.String("addr", cfg.Server.Http.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("HTTP server shutting down...")
			return server.Shutdown(ctx)
		},
	})

	return server
}
