package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/confhub/xerrors"
)

// ReloadPhase 热重载生命周期阶段
type ReloadPhase string

const (
	// ReloadTriggered 防抖窗口结束，重载开始
	ReloadTriggered ReloadPhase = "triggered"
	// ReloadCompleted Handler 全部执行完毕，成功和失败计数在事件里
	ReloadCompleted ReloadPhase = "completed"
	// ReloadFailed 配置值读取失败，重载中止
	ReloadFailed ReloadPhase = "failed"
)

// ReloadEvent 热重载生命周期事件，供外部观察重载进度
type ReloadEvent struct {
	ID           string        `json:"id"`
	Phase        ReloadPhase   `json:"phase"`
	Category     string        `json:"category"`
	Key          string        `json:"key"`
	SuccessCount int           `json:"success_count"`
	ErrorCount   int           `json:"error_count"`
	Duration     time.Duration `json:"duration"`
	Errors       []string      `json:"errors,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// NewReload 构造热重载生命周期事件
func NewReload(phase ReloadPhase, category, key string) ReloadEvent {
	return ReloadEvent{
		ID:        uuid.NewString(),
		Phase:     phase,
		Category:  category,
		Key:       key,
		Timestamp: time.Now(),
	}
}

// Marshal 编码为 JSON
func (e *ReloadEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalReload 从 JSON 解码热重载事件
func UnmarshalReload(data []byte) (ReloadEvent, error) {
	var e ReloadEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return ReloadEvent{}, xerrors.Wrapf(ErrInvalidEvent, "decode: %v", err)
	}
	return e, nil
}
