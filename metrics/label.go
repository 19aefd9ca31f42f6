package metrics

import (
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Label 指标标签，键值均为字符串。
type Label struct {
	Key   string
	Value string
}

// L 创建标签的简写形式。
//
//	counter.Inc(ctx, metrics.L("category", "smtp"), metrics.L("environment", "production"))
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}

// toAttributes 转换为 OTel 属性（内部使用）
func toAttributes(labels []Label) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for _, l := range labels {
		attrs = append(attrs, attribute.String(l.Key, l.Value))
	}
	return attrs
}

// labelKey 生成稳定的标签组合键，用于 Gauge 的本地累计（内部使用）
func labelKey(labels []Label) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, l.Key+"="+l.Value)
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}
