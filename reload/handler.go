package reload

import (
	"context"
	"time"

	"github.com/ceyewan/confhub/event"
	"github.com/ceyewan/confhub/xerrors"
)

// HandlerFunc 消费重载结果的回调。
// values 是调度时刻重新读取的当前配置值，evt 是触发重载的变更事件。
type HandlerFunc func(ctx context.Context, values map[string]any, evt event.ChangeEvent) error

// Registration 一个服务对热重载的订阅声明
type Registration struct {
	// ServiceName 唯一标识，重复注册时替换旧注册并重置统计
	ServiceName string

	// Categories 关心的配置分类，至少一个
	Categories []string

	// Environments 关心的环境，空表示全部环境
	Environments []string

	// Priority 调度顺序，小的先执行，相同时按注册顺序
	Priority int

	// Timeout 单次调用超时，零值用协调器默认值
	Timeout time.Duration

	// MaxRetries 失败重试次数上限，零值用协调器默认值
	MaxRetries int

	// RetryDelay 重试间隔，零值用协调器默认值
	RetryDelay time.Duration

	// Handler 回调函数
	Handler HandlerFunc
}

func (r *Registration) validate() error {
	if r.ServiceName == "" {
		return xerrors.Wrap(ErrInvalidInput, "service name is required")
	}
	if len(r.Categories) == 0 {
		return xerrors.Wrap(ErrInvalidInput, "at least one category is required")
	}
	if r.Handler == nil {
		return xerrors.Wrap(ErrInvalidInput, "handler is required")
	}
	return nil
}

func (r *Registration) matches(category, environment string) bool {
	if !contains(r.Categories, category) {
		return false
	}
	return len(r.Environments) == 0 || contains(r.Environments, environment)
}

func contains(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}

// Status 服务的健康分级
type Status string

const (
	// StatusHealthy 从未失败
	StatusHealthy Status = "healthy"
	// StatusDegraded 有失败但不多于成功
	StatusDegraded Status = "degraded"
	// StatusUnhealthy 失败多于成功
	StatusUnhealthy Status = "unhealthy"
)

// HandlerStats 单个服务的重载统计。
// 计数以整次重载为单位，重试内的多次尝试只计一次。
type HandlerStats struct {
	ServiceName  string    `json:"service_name"`
	Priority     int       `json:"priority"`
	SuccessCount int64     `json:"success_count"`
	ErrorCount   int64     `json:"error_count"`
	LastReloadAt time.Time `json:"last_reload_at"`
	LastError    string    `json:"last_error,omitempty"`
	Status       Status    `json:"status"`
}

func (s *HandlerStats) classify() Status {
	switch {
	case s.ErrorCount == 0:
		return StatusHealthy
	case s.ErrorCount <= s.SuccessCount:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}
