package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"noiton/internal/config"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewDefault 创建输出到 stdout 的 JSON 日志器。
//
// 参数:
//
//	level: 日志级别字符串（debug / info / warn / error），无法识别时使用 info
//
// 返回值:
//
//	*slog.Logger: 结构化日志器
func NewDefault(level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// New 按配置创建日志器。
//
// 当 cfg.File 非空时，日志同时写入 stdout 与按大小滚动的文件。
func New(level string, cfg config.LogConfig) *slog.Logger {
	if cfg.File == "" {
		return NewDefault(level)
	}
	rotating := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	out := io.MultiWriter(os.Stdout, rotating)
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// ParseLevel 将字符串转换为 slog.Level。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
