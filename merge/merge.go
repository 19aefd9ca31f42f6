// Package merge 提供多来源配置的合并解析。
//
// 一次解析针对一个 (category, environment) 组合，按固定的层级
// 从低到高叠加四个来源：
//
//  1. 元数据默认值
//  2. 环境变量 UPPER(category)_UPPER(key)
//  3. 上一轮缓存的快照值
//  4. 配置存储中的当前值
//
// 高层级覆盖低层级，产出的 Snapshot 记录每个键的最终归属层。
// 快照写回缓存并带 TTL，存储的写路径会按同一个键失效缓存，
// 缓存不可用时静默降级为直接合并。
//
// 基本使用：
//
//	resolver, _ := merge.New(st, merge.WithMeta(registry),
//	    merge.WithCache(cacheClient), merge.WithLogger(logger))
//
//	snapshot, _ := resolver.Resolve(ctx, "smtp", store.EnvProduction)
//	host, _ := snapshot.Get("host")
package merge

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/ceyewan/confhub/cache"
	"github.com/ceyewan/confhub/clog"
	"github.com/ceyewan/confhub/meta"
	"github.com/ceyewan/confhub/store"
	"github.com/ceyewan/confhub/xerrors"
)

// defaultSnapshotTTL 快照在缓存中的存活时间
const defaultSnapshotTTL = 5 * time.Minute

// Resolver 合并解析器的核心能力
type Resolver interface {
	// Resolve 合并四层来源并返回快照。
	// 缓存可用时快照写回缓存，后续写操作负责失效。
	Resolve(ctx context.Context, category, environment string) (*Snapshot, error)

	// ResolveValue 解析单个键的最终值及其来源层名。
	// 键在任何一层都不存在时返回 store.ErrNotFound。
	ResolveValue(ctx context.Context, category, key, environment string) (any, string, error)

	// Invalidate 丢弃缓存中的快照，下次 Resolve 重新合并
	Invalidate(ctx context.Context, category, environment string) error
}

// Option 组件可选依赖
type Option func(*options)

type options struct {
	logger clog.Logger
	cache  cache.Cache
	meta   meta.Registry
	ttl    time.Duration
}

// WithLogger 注入日志器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("merge")
		}
	}
}

// WithCache 注入缓存作为第三层来源和快照存放处
func WithCache(c cache.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithMeta 注入元数据注册表作为默认值来源
func WithMeta(registry meta.Registry) Option {
	return func(o *options) {
		o.meta = registry
	}
}

// WithSnapshotTTL 覆盖快照缓存的存活时间，默认 5 分钟
func WithSnapshotTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

type resolver struct {
	store  store.Store
	meta   meta.Registry
	cache  cache.Cache
	logger clog.Logger
	ttl    time.Duration
}

// New 创建合并解析器，配置存储是必要依赖，其余层缺省时跳过
func New(st store.Store, opts ...Option) (Resolver, error) {
	if st == nil {
		return nil, xerrors.Wrap(ErrInvalidInput, "store is required")
	}

	o := &options{ttl: defaultSnapshotTTL}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = clog.Discard()
	}

	return &resolver{
		store:  st,
		meta:   o.meta,
		cache:  o.cache,
		logger: o.logger,
		ttl:    o.ttl,
	}, nil
}

func (r *resolver) Resolve(ctx context.Context, category, environment string) (*Snapshot, error) {
	if category == "" || environment == "" {
		return nil, xerrors.Wrap(ErrInvalidInput, "category and environment are required")
	}

	snapshot := &Snapshot{
		Category:    category,
		Environment: environment,
		Values:      map[string]any{},
		Provenance:  map[string]string{},
	}

	// 第一层：元数据默认值
	defaults := r.defaultLayer(ctx, category)
	r.apply(snapshot, SourceDefault, PriorityDefault, defaults)

	// 第四层先读出来，既是最高层也决定环境变量要探测哪些键
	entries, err := r.store.GetValues(ctx, category, environment)
	if err != nil {
		return nil, xerrors.Wrap(ErrResolveFailed, err.Error())
	}

	// 第二层：环境变量，对所有已知键探测 UPPER(category)_UPPER(key)
	envValues := envLayer(category, keysOf(defaults, entries))
	r.apply(snapshot, SourceEnvVar, PriorityEnvVar, envValues)

	// 第三层：上一轮缓存的快照值
	r.apply(snapshot, SourceCache, PriorityCache, r.cacheLayer(ctx, category, environment))

	// 第四层：配置存储的当前值
	r.apply(snapshot, SourceStore, PriorityStore, entries)

	snapshot.MergedAt = time.Now()

	if r.cache != nil {
		key := store.SnapshotKey(category, environment)
		if cerr := r.cache.SetWithTTL(ctx, key, *snapshot, r.ttl); cerr != nil {
			r.logger.WarnContext(ctx, "snapshot cache write failed",
				clog.String("cache_key", key), clog.Error(cerr))
		}
	}

	r.logger.DebugContext(ctx, "snapshot resolved",
		clog.String("category", category),
		clog.String("environment", environment),
		clog.Int("keys", len(snapshot.Values)))
	return snapshot, nil
}

func (r *resolver) ResolveValue(ctx context.Context, category, key, environment string) (any, string, error) {
	snapshot, err := r.Resolve(ctx, category, environment)
	if err != nil {
		return nil, "", err
	}
	value, ok := snapshot.Get(key)
	if !ok {
		return nil, "", xerrors.Wrapf(store.ErrNotFound, "%s/%s in %s", category, key, environment)
	}
	return value, snapshot.SourceOf(key), nil
}

func (r *resolver) Invalidate(ctx context.Context, category, environment string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Invalidate(ctx, store.SnapshotKey(category, environment))
}

// apply 把一层的键值叠加进快照并登记来源，空层不登记
func (r *resolver) apply(snapshot *Snapshot, name string, priority int, values map[string]any) {
	if len(values) == 0 {
		return
	}
	for key, value := range values {
		snapshot.Values[key] = value
		snapshot.Provenance[key] = name
	}
	snapshot.Sources = append(snapshot.Sources, Source{
		Name:      name,
		Priority:  priority,
		KeyCount:  len(values),
		UpdatedAt: time.Now(),
	})
}

func (r *resolver) defaultLayer(ctx context.Context, category string) map[string]any {
	if r.meta == nil {
		return nil
	}
	metas, err := r.meta.FindByCategory(ctx, category)
	if err != nil {
		r.logger.WarnContext(ctx, "metadata layer unavailable",
			clog.String("category", category), clog.Error(err))
		return nil
	}

	values := map[string]any{}
	for i := range metas {
		if metas[i].DefaultValue != "" {
			values[metas[i].Key] = metas[i].DefaultValue
		}
	}
	return values
}

func (r *resolver) cacheLayer(ctx context.Context, category, environment string) map[string]any {
	if r.cache == nil {
		return nil
	}

	var cached Snapshot
	err := r.cache.Get(ctx, store.SnapshotKey(category, environment), &cached)
	if err != nil {
		if !xerrors.Is(err, cache.ErrMiss) {
			r.logger.WarnContext(ctx, "cache layer unavailable",
				clog.String("category", category), clog.Error(err))
		}
		return nil
	}
	return cached.Values
}

// envLayer 对每个候选键探测环境变量 UPPER(category)_UPPER(key)
func envLayer(category string, keys []string) map[string]any {
	values := map[string]any{}
	prefix := strings.ToUpper(category) + "_"
	for _, key := range keys {
		if v, ok := os.LookupEnv(prefix + strings.ToUpper(key)); ok {
			values[key] = v
		}
	}
	return values
}

func keysOf(layers ...map[string]any) []string {
	seen := map[string]bool{}
	var keys []string
	for _, layer := range layers {
		for key := range layer {
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}
	return keys
}
