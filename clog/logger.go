package clog

import "context"

// Logger 日志接口，提供结构化日志记录能力。
//
// 五个日志级别：Debug、Info、Warn、Error、Fatal，每个级别均有
// 带 Context 的变体，用于自动提取 Context 中登记的字段。
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)
	FatalContext(ctx context.Context, msg string, fields ...Field)

	// With 创建带预设字段的子 Logger，预设字段出现在所有日志中。
	With(fields ...Field) Logger

	// WithNamespace 创建扩展命名空间的子 Logger，
	// 命名空间以 "." 连接并作为 namespace 字段输出。
	WithNamespace(parts ...string) Logger

	// SetLevel 运行时调整日志级别，对同一 handler 派生的所有子 Logger 生效。
	SetLevel(level Level) error

	// Flush 强制写出缓冲中的日志。
	Flush()
}
