package store

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/ceyewan/confhub/clog"
)

func (s *configStore) GetValues(ctx context.Context, category, environment string) (map[string]any, error) {
	entries, err := s.FindByCategory(ctx, category, environment, false)
	if err != nil {
		return nil, err
	}

	values := make(map[string]any, len(entries))
	for i := range entries {
		values[entries[i].Key] = s.coerce(ctx, &entries[i])
	}
	return values, nil
}

// coerce 把持久化的字符串值转换为 ValueType 对应的 Go 类型。
// 转换失败时回退到原始字符串，不让单个坏值拖垮整个分类的读取。
func (s *configStore) coerce(ctx context.Context, entry *ConfigEntry) any {
	raw := entry.Value
	if entry.IsEncrypted {
		decrypted, err := s.cipher.Decrypt(raw)
		if err != nil {
			s.logger.WarnContext(ctx, "decrypt failed, returning raw value",
				clog.String("category", entry.Category),
				clog.String("key", entry.Key),
				clog.Error(err))
			return raw
		}
		raw = decrypted
	}

	switch entry.ValueType {
	case ValueTypeNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return raw
		}
		return n
	case ValueTypeBoolean:
		return raw == "true" || raw == "1"
	case ValueTypeJSON:
		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return raw
		}
		return parsed
	default:
		return raw
	}
}
