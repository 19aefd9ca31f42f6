// Package event 定义配置变更与热重载的事件模型。
//
// 配置存储的每次写操作发布一条 ChangeEvent，热重载协调器订阅这些
// 事件并按事件携带的 (category, key) 触发防抖重载。事件通过 JSON
// 编码在总线上传输，跨语言订阅方可以直接消费。
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/confhub/xerrors"
)

// Type 变更事件类型
type Type string

const (
	// TypeCreated 新建配置项
	TypeCreated Type = "created"
	// TypeUpdated 更新配置项的值
	TypeUpdated Type = "updated"
	// TypeDeleted 删除配置项
	TypeDeleted Type = "deleted"
)

// ErrInvalidEvent 事件缺少必要字段或编码损坏
var ErrInvalidEvent = xerrors.New("event: invalid event")

// ChangeEvent 配置变更事件。
// 同一个信封承载三种变体：Created 时 OldValue 为空，
// Deleted 时 NewValue 为空，Updated 时两者都有。
type ChangeEvent struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	Category    string    `json:"category"`
	Key         string    `json:"key"`
	Environment string    `json:"environment"`
	OldValue    string    `json:"old_value,omitempty"`
	NewValue    string    `json:"new_value,omitempty"`
	Actor       string    `json:"actor,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewCreated 构造新建事件
func NewCreated(category, key, environment, newValue, actor string) ChangeEvent {
	return newChange(TypeCreated, category, key, environment, "", newValue, actor)
}

// NewUpdated 构造更新事件
func NewUpdated(category, key, environment, oldValue, newValue, actor string) ChangeEvent {
	return newChange(TypeUpdated, category, key, environment, oldValue, newValue, actor)
}

// NewDeleted 构造删除事件
func NewDeleted(category, key, environment, oldValue, actor string) ChangeEvent {
	return newChange(TypeDeleted, category, key, environment, oldValue, "", actor)
}

func newChange(typ Type, category, key, environment, oldValue, newValue, actor string) ChangeEvent {
	return ChangeEvent{
		ID:          uuid.NewString(),
		Type:        typ,
		Category:    category,
		Key:         key,
		Environment: environment,
		OldValue:    oldValue,
		NewValue:    newValue,
		Actor:       actor,
		Timestamp:   time.Now(),
	}
}

// Validate 校验事件的必要字段
func (e *ChangeEvent) Validate() error {
	switch e.Type {
	case TypeCreated, TypeUpdated, TypeDeleted:
	default:
		return xerrors.Wrapf(ErrInvalidEvent, "unknown type %q", e.Type)
	}
	if e.Category == "" || e.Key == "" {
		return xerrors.Wrap(ErrInvalidEvent, "category and key are required")
	}
	return nil
}

// Marshal 编码为 JSON
func (e *ChangeEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalChange 从 JSON 解码并校验变更事件
func UnmarshalChange(data []byte) (ChangeEvent, error) {
	var e ChangeEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return ChangeEvent{}, xerrors.Wrapf(ErrInvalidEvent, "decode: %v", err)
	}
	if err := e.Validate(); err != nil {
		return ChangeEvent{}, err
	}
	return e, nil
}
