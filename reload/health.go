package reload

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ceyewan/confhub/clog"
	"github.com/ceyewan/confhub/event"
)

// ServiceHealth 单个服务的健康状况
type ServiceHealth struct {
	ServiceName  string `json:"service_name"`
	Status       Status `json:"status"`
	SuccessCount int64  `json:"success_count"`
	ErrorCount   int64  `json:"error_count"`
	LastError    string `json:"last_error,omitempty"`
}

// HealthReport 协调器的健康检查报告。
// Overall 取所有服务中最差的状态，没有注册时为 healthy。
// Error 非空表示健康检查自身出错，此时 Services 可能不完整。
type HealthReport struct {
	Overall   Status          `json:"overall"`
	Services  []ServiceHealth `json:"services"`
	CheckedAt time.Time       `json:"checked_at"`
	Error     string          `json:"error,omitempty"`
}

// Health 立即计算一份健康报告
func (c *Coordinator) Health() HealthReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	report := HealthReport{Overall: StatusHealthy, CheckedAt: time.Now()}
	for _, s := range c.stats {
		status := s.classify()
		report.Services = append(report.Services, ServiceHealth{
			ServiceName:  s.ServiceName,
			Status:       status,
			SuccessCount: s.SuccessCount,
			ErrorCount:   s.ErrorCount,
			LastError:    s.LastError,
		})
		report.Overall = worse(report.Overall, status)
	}
	return report
}

func (c *Coordinator) healthLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.runHealthCheck(c.ctx)
		}
	}
}

// runHealthCheck 发布一轮健康报告。检查自身的任何异常都被吞下并
// 记入报告的 Error 字段，不会中断协调器。
func (c *Coordinator) runHealthCheck(ctx context.Context) {
	var report HealthReport
	func() {
		defer func() {
			if r := recover(); r != nil {
				report.Error = fmt.Sprintf("health check panic: %v", r)
				report.CheckedAt = time.Now()
			}
		}()
		report = c.Health()
	}()

	data, err := json.Marshal(report)
	if err != nil {
		c.logger.Warn("health report marshal failed", clog.Error(err))
		return
	}
	if err := c.bus.Publish(ctx, event.TopicHealth, data); err != nil {
		c.logger.Warn("health report publish failed", clog.Error(err))
		return
	}

	if report.Overall != StatusHealthy {
		c.logger.Warn("reload health degraded",
			clog.String("overall", string(report.Overall)),
			clog.Int("services", len(report.Services)))
	}
}

func worse(a, b Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
