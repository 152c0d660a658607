// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"pricewise/internal/pkg/tracing"
)

// Init 配置全局 logger，所有日志都带上 service 字段。
func Init(serviceName, level string) {
	InitWithWriter(os.Stdout, serviceName, level)
}

func InitWithWriter(w io.Writer, serviceName, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zlog.Logger = zerolog.New(w).With().Timestamp().Str("service", serviceName).Logger()
}

// Ctx 返回 context 中的请求级 logger；没有时退回全局 logger，并尽量补上 trace_id。
func Ctx(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return &zlog.Logger
	}
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return l
	}
	l := zlog.Logger
	if traceID := tracing.GetTraceIDFromContext(ctx); traceID != "" {
		l = l.With().Str("trace_id", traceID).Logger()
	}
	return &l
}

// WithTraceID 把带 trace_id 的 logger 放进 context。
func WithTraceID(ctx context.Context) context.Context {
	traceID := tracing.GetTraceIDFromContext(ctx)
	l := zlog.With().Str("trace_id", traceID).Logger()
	return l.WithContext(ctx)
}

// Middleware 先提取上游的 trace 上下文，再注入请求级 logger。
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx = WithTraceID(ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
