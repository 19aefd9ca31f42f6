package merge

import "time"

// 合并层级，数字越大优先级越高
const (
	PriorityDefault = 1
	PriorityEnvVar  = 2
	PriorityCache   = 3
	PriorityStore   = 4
)

// 合并来源名
const (
	SourceDefault = "default"
	SourceEnvVar  = "env"
	SourceCache   = "cache"
	SourceStore   = "store"
)

// Source 参与合并的一层来源的摘要
type Source struct {
	Name      string    `json:"name" msgpack:"name"`
	Priority  int       `json:"priority" msgpack:"priority"`
	KeyCount  int       `json:"key_count" msgpack:"key_count"`
	UpdatedAt time.Time `json:"updated_at" msgpack:"updated_at"`
}

// Snapshot 一个分类在一个环境下的合并结果。
// Values 按层级覆盖后的最终键值，Sources 记录各层的参与情况，
// Provenance 记录每个键最终取自哪一层。
type Snapshot struct {
	Category    string            `json:"category" msgpack:"category"`
	Environment string            `json:"environment" msgpack:"environment"`
	Values      map[string]any    `json:"values" msgpack:"values"`
	Provenance  map[string]string `json:"provenance" msgpack:"provenance"`
	Sources     []Source          `json:"sources" msgpack:"sources"`
	MergedAt    time.Time         `json:"merged_at" msgpack:"merged_at"`
}

// Get 读取合并后的单个键值，第二个返回值表示键是否存在
func (s *Snapshot) Get(key string) (any, bool) {
	v, ok := s.Values[key]
	return v, ok
}

// SourceOf 返回键最终取自的来源名，键不存在时返回空串
func (s *Snapshot) SourceOf(key string) string {
	return s.Provenance[key]
}
