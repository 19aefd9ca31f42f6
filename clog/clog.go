// Package clog 为 confhub 提供基于 slog 的结构化日志组件。
//
// 特性：
//   - 抽象接口，不向业务代码暴露底层实现
//   - 层级命名空间，定位日志来源组件
//   - 函数式选项模式，与 confhub 其他组件一致
//   - 支持运行时动态调整日志级别
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{
//	    Level:  "info",
//	    Format: "console",
//	    Output: "stdout",
//	})
//	logger.Info("store ready", clog.String("driver", "mysql"))
//
//	storeLogger := logger.WithNamespace("store")
//	storeLogger.Warn("cache refresh failed", clog.Error(err))
package clog

import "fmt"

// New 创建 Logger 实例。
//
// config 为 nil 时使用默认配置（info 级别，console 格式，stdout 输出）。
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := applyOptions(opts...)
	return newLogger(config, o)
}

// Must 类似 New，出错时 panic。仅用于初始化阶段。
func Must(config *Config, opts ...Option) Logger {
	logger, err := New(config, opts...)
	if err != nil {
		panic(fmt.Sprintf("clog: %v", err))
	}
	return logger
}
