// Package metrics 为 confhub 提供统一的指标收集能力。
// 基于 OpenTelemetry 构建，通过 Prometheus exporter 暴露指标。
//
// 快速开始：
//
//	meter, _ := metrics.New(&metrics.Config{
//	    Enabled:     true,
//	    ServiceName: "confhub",
//	    Port:        9090,
//	    Path:        "/metrics",
//	})
//	defer meter.Shutdown(ctx)
//
//	counter, _ := meter.Counter("config_changes_total", "配置变更总数")
//	counter.Inc(ctx, metrics.L("category", "smtp"))
package metrics

import "context"

// Counter 计数器，只增不减。用于变更次数、重载成功/失败次数等。
type Counter interface {
	// Inc 计数器加一
	Inc(ctx context.Context, labels ...Label)

	// Add 计数器增加给定值，val 应为非负数
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 仪表盘，记录可增可减的瞬时值。用于已注册 Handler 数、在途重载数等。
type Gauge interface {
	Set(ctx context.Context, val float64, labels ...Label)
	Inc(ctx context.Context, labels ...Label)
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 直方图，记录值的分布。用于重载耗时、查询耗时等。
type Histogram interface {
	Record(ctx context.Context, val float64, labels ...Label)
}

// Meter 指标工厂接口，所有指标类型的创建入口。
// 创建出的指标并发安全。
type Meter interface {
	Counter(name string, desc string, opts ...MetricOption) (Counter, error)
	Gauge(name string, desc string, opts ...MetricOption) (Gauge, error)
	Histogram(name string, desc string, opts ...MetricOption) (Histogram, error)

	// Shutdown 关闭 Meter 并刷新指标，通常在进程退出时调用
	Shutdown(ctx context.Context) error
}

// MetricOption 指标创建选项
type MetricOption func(*MetricOptions)

// MetricOptions 指标选项集合
type MetricOptions struct {
	// Unit 指标单位，建议使用 UCUM 单位代码，如 "s"、"bytes"
	Unit string
}

// WithUnit 设置指标单位
func WithUnit(unit string) MetricOption {
	return func(o *MetricOptions) {
		o.Unit = unit
	}
}
