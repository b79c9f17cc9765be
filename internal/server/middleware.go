package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/connect"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const instrumentationName = "lti-tool-provider"

// serverMetrics HTTP 与 RPC 共用的请求指标
type serverMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

func newServerMetrics(meter metric.Meter) (*serverMetrics, error) {
	requests, err := meter.Int64Counter(
		"http.server.request.count",
		metric.WithDescription("HTTP 请求总数"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("HTTP 请求耗时"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	errs, err := meter.Int64Counter(
		"http.server.error.count",
		metric.WithDescription("HTTP 错误总数"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	return &serverMetrics{requests: requests, duration: duration, errors: errs}, nil
}

func (m *serverMetrics) record(ctx context.Context, start time.Time, failed bool, attrs ...attribute.KeyValue) {
	opt := metric.WithAttributes(attrs...)
	m.requests.Add(ctx, 1, opt)
	m.duration.Record(ctx, float64(time.Since(start).Milliseconds()), opt)
	if failed {
		m.errors.Add(ctx, 1, opt)
	}
}

// mustMetrics 指标创建失败时退化为 noop, 不影响请求处理
func mustMetrics(logger *zap.Logger) *serverMetrics {
	m, err := newServerMetrics(otel.GetMeterProvider().Meter(instrumentationName))
	if err != nil {
		logger.Error("Failed to initialize metrics", zap.Error(err))
		m, _ = newServerMetrics(noop.NewMeterProvider().Meter(instrumentationName))
	}
	return m
}

// MonitoringMiddleware 为每个请求记录 span, 指标和访问日志
func MonitoringMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	m := mustMetrics(logger)
	tracer := otel.GetTracerProvider().Tracer(instrumentationName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()

			ctx, span := tracer.Start(r.Context(), r.Method, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			req := r.WithContext(ctx)
			next.ServeHTTP(ww, req)

			// 路由匹配后 ServeMux 会写入 Pattern, 用它代替原始路径避免指标维度膨胀
			route := routeOf(req)
			span.SetName(fmt.Sprintf("%s %s", r.Method, route))
			span.SetAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.user_agent", r.UserAgent()),
				attribute.String("http.host", r.Host),
				attribute.Int("http.status_code", ww.statusCode),
			)

			failed := ww.statusCode >= http.StatusBadRequest
			m.record(ctx, startTime, failed,
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.Int("http.status_code", ww.statusCode),
			)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.statusCode),
				zap.Duration("duration", time.Since(startTime)),
			}
			if failed {
				span.SetStatus(codes.Error, http.StatusText(ww.statusCode))
				logger.Warn("HTTP request error", append(fields, zap.String("user_agent", r.UserAgent()))...)
				return
			}
			span.SetStatus(codes.Ok, "OK")
			logger.Info("HTTP request completed", fields...)
		})
	}
}

func routeOf(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return r.URL.Path
}

// ConnectMonitoringInterceptor Connect 专用的监控拦截器
func ConnectMonitoringInterceptor(logger *zap.Logger) connect.UnaryInterceptorFunc {
	m := mustMetrics(logger)
	tracer := otel.GetTracerProvider().Tracer(instrumentationName)

	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			startTime := time.Now()
			procedure := req.Spec().Procedure
			service, method := splitProcedure(procedure)

			ctx, span := tracer.Start(ctx, procedure)
			defer span.End()

			span.SetAttributes(
				attribute.String("rpc.system", "connect"),
				attribute.String("rpc.service", service),
				attribute.String("rpc.method", method),
				attribute.String("rpc.peer", req.Peer().Addr),
			)

			resp, err := next(ctx, req)

			attrs := []attribute.KeyValue{
				attribute.String("rpc.service", service),
				attribute.String("rpc.method", method),
			}
			if err != nil {
				code := connect.CodeOf(err)
				attrs = append(attrs, attribute.String("rpc.connect_rpc.error_code", code.String()))
				span.SetStatus(codes.Error, err.Error())
				logger.Error("RPC request failed",
					zap.String("procedure", procedure),
					zap.String("code", code.String()),
					zap.Duration("duration", time.Since(startTime)),
					zap.Error(err),
				)
			} else {
				span.SetStatus(codes.Ok, "OK")
				logger.Info("RPC request completed",
					zap.String("procedure", procedure),
					zap.Duration("duration", time.Since(startTime)),
				)
			}
			m.record(ctx, startTime, err != nil, attrs...)

			return resp, err
		}
	}
}

// splitProcedure "/lti.v1.OutcomeService/UpdateGrade" -> ("lti.v1.OutcomeService", "UpdateGrade")
func splitProcedure(procedure string) (string, string) {
	service, method, ok := strings.Cut(strings.TrimPrefix(procedure, "/"), "/")
	if !ok {
		return procedure, ""
	}
	return service, method
}

// responseWriter 包装 http.ResponseWriter 来捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.statusCode = http.StatusOK
		rw.written = true
	}
	return rw.ResponseWriter.Write(b)
}

// Unwrap 供 http.ResponseController 使用
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// MiddlewareModule 提供 Fx 模块
var MiddlewareModule = fx.Module("server.middleware",
	fx.Provide(
		func(logger *zap.Logger) func(http.Handler) http.Handler {
			return MonitoringMiddleware(logger)
		},
		ConnectMonitoringInterceptor,
	),
)
