// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Init 配置全局 zerolog logger。level 无法解析时退回 info。
func Init(serviceName, level string) {
	InitWithWriter(os.Stdout, serviceName, level)
}

// InitWithWriter 同 Init, 但允许指定输出, 便于测试和本地开发时使用 ConsoleWriter。
func InitWithWriter(w io.Writer, serviceName, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	SetLevel(level)
	log.Logger = zerolog.New(w).With().Timestamp().Str("service", serviceName).Logger()
}

// SetLevel 动态调整全局日志级别, 配置热更新时调用。
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// Ctx 返回绑定了 trace_id / span_id 的 logger。
// 如果 ctx 中已经存放了 logger (见 Middleware), 直接使用它。
func Ctx(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != zerolog.DefaultContextLogger && l.GetLevel() != zerolog.Disabled {
		return l
	}
	l := log.Logger
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		l = l.With().Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String()).Logger()
	}
	return &l
}

// WithContext 将带有 trace 信息的 logger 存入 ctx。
func WithContext(ctx context.Context) context.Context {
	return Ctx(ctx).WithContext(ctx)
}

// Middleware 为每个请求注入 logger, 并记录访问日志。
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithContext(r.Context())
		Ctx(ctx).Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request received")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
