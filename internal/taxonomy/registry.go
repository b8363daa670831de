package taxonomy

import (
	"iter"
	"sync"
	"sync/atomic"

	"itemhub/internal/config"

	"github.com/cockroachdb/errors"
)

// snapshot 是注册表的不可变快照，读路径只做一次原子加载，不加锁。
type snapshot struct {
	order []Definition
	byKey map[string]int
}

func (s *snapshot) with(def Definition) *snapshot {
	next := &snapshot{
		order: make([]Definition, len(s.order), len(s.order)+1),
		byKey: make(map[string]int, len(s.byKey)+1),
	}
	copy(next.order, s.order)
	for k, v := range s.byKey {
		next.byKey[k] = v
	}
	next.byKey[def.Key] = len(next.order)
	next.order = append(next.order, def)
	return next
}

// Registry 持有一个实体类型的全部分类体系定义。
// 启动时构建一次，之后只读，可被并发请求共享；Reload 以整体替换快照的方式生效。
type Registry struct {
	mu   sync.Mutex // 串行化写入方
	snap atomic.Pointer[snapshot]
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.snap.Store(&snapshot{byKey: map[string]int{}})
	return r
}

// NewRegistryFromConfig 按配置顺序注册所有分类体系。
func NewRegistryFromConfig(items []config.TaxonomyConfig) (*Registry, error) {
	r := NewRegistry()
	for _, c := range items {
		if err := r.Register(DefinitionFromConfig(c)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register 注册一个定义，key 已存在时返回 ErrDuplicateKey。
func (r *Registry) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	if _, ok := cur.byKey[def.Key]; ok {
		return errors.Wrapf(ErrDuplicateKey, "taxonomy %q", def.Key)
	}
	r.snap.Store(cur.with(def))
	return nil
}

// Get 按 key 查找定义，不存在时返回 ErrNotFound。
func (r *Registry) Get(key string) (Definition, error) {
	cur := r.snap.Load()
	idx, ok := cur.byKey[key]
	if !ok {
		return Definition{}, errors.Wrapf(ErrNotFound, "taxonomy %q", key)
	}
	return cur.order[idx], nil
}

// Lookup 供关联/查询路径使用：未注册的 key 归类为 ErrUnknownTaxonomy。
func (r *Registry) Lookup(key string) (Definition, error) {
	def, err := r.Get(key)
	if err != nil {
		return Definition{}, errors.Wrapf(ErrUnknownTaxonomy, "taxonomy %q", key)
	}
	return def, nil
}

// All 按注册顺序惰性遍历定义。遍历基于调用时刻的快照。
func (r *Registry) All() iter.Seq[Definition] {
	cur := r.snap.Load()
	return func(yield func(Definition) bool) {
		for _, def := range cur.order {
			if !yield(def) {
				return
			}
		}
	}
}

func (r *Registry) Keys() []string {
	cur := r.snap.Load()
	keys := make([]string, 0, len(cur.order))
	for _, def := range cur.order {
		keys = append(keys, def.Key)
	}
	return keys
}

func (r *Registry) Len() int {
	return len(r.snap.Load().order)
}

// Reload 用一组新定义整体替换注册表。
// hasTerms 用于判断某个已有分类体系下是否存在 term：存在时不允许翻转 hierarchical，
// 否则已有的父子关系会变成悬挂数据。
func (r *Registry) Reload(defs []Definition, hasTerms func(key string) (bool, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	next := &snapshot{byKey: map[string]int{}}
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return err
		}
		if _, ok := next.byKey[def.Key]; ok {
			return errors.Wrapf(ErrDuplicateKey, "taxonomy %q", def.Key)
		}
		if idx, ok := cur.byKey[def.Key]; ok && cur.order[idx].Hierarchical != def.Hierarchical {
			if hasTerms == nil {
				return errors.Wrapf(ErrHierarchyLocked, "taxonomy %q", def.Key)
			}
			exists, err := hasTerms(def.Key)
			if err != nil {
				return err
			}
			if exists {
				return errors.Wrapf(ErrHierarchyLocked, "taxonomy %q", def.Key)
			}
		}
		next = next.with(def)
	}
	r.snap.Store(next)
	return nil
}
