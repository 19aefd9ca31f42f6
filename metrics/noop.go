package metrics

import "context"

// Discard 返回空操作的 Meter，用作组件未注入指标时的默认值。
func Discard() Meter {
	return &noopMeter{}
}

type noopMeter struct{}

func (n *noopMeter) Counter(name string, desc string, opts ...MetricOption) (Counter, error) {
	return &noopInstrument{}, nil
}

func (n *noopMeter) Gauge(name string, desc string, opts ...MetricOption) (Gauge, error) {
	return &noopInstrument{}, nil
}

func (n *noopMeter) Histogram(name string, desc string, opts ...MetricOption) (Histogram, error) {
	return &noopInstrument{}, nil
}

func (n *noopMeter) Shutdown(ctx context.Context) error { return nil }

type noopInstrument struct{}

func (i *noopInstrument) Inc(ctx context.Context, labels ...Label)                 {}
func (i *noopInstrument) Add(ctx context.Context, val float64, labels ...Label)    {}
func (i *noopInstrument) Set(ctx context.Context, val float64, labels ...Label)    {}
func (i *noopInstrument) Dec(ctx context.Context, labels ...Label)                 {}
func (i *noopInstrument) Record(ctx context.Context, val float64, labels ...Label) {}
