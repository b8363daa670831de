package filter

import (
	"strconv"

	"itemhub/internal/config"
	"itemhub/internal/query"

	"github.com/cockroachdb/errors"
)

var ErrDuplicateTab = errors.New("duplicate filter tab")

// Tab 是一个预编译好的列表页签。
type Tab struct {
	Key       string          `json:"key"`
	Label     string          `json:"label"`
	Icon      string          `json:"icon"`
	Clauses   []Clause        `json:"query"`
	Predicate query.Predicate `json:"-"`
}

// TabSet 按配置顺序保存页签。
type TabSet struct {
	tabs  []Tab
	byKey map[string]int
}

// CompileTabs 在启动时编译全部页签，任一页签配置错误都会返回错误。
// 未配置 key 的页签使用其下标作为 key。
func (e *Engine) CompileTabs(cfgs []config.TabConfig) (*TabSet, error) {
	set := &TabSet{byKey: make(map[string]int, len(cfgs))}
	for i, cfg := range cfgs {
		key := cfg.Key
		if key == "" {
			key = strconv.Itoa(i)
		}
		if _, ok := set.byKey[key]; ok {
			return nil, errors.Wrapf(ErrDuplicateTab, "tab %q", key)
		}

		clauses := make([]Clause, 0, len(cfg.Query))
		for _, q := range cfg.Query {
			clauses = append(clauses, Clause{Field: q.Field, Operator: Operator(q.Operator), Value: q.Value})
		}
		pred, err := e.Compile(clauses)
		if err != nil {
			return nil, errors.Wrapf(err, "tab %q", key)
		}

		set.byKey[key] = len(set.tabs)
		set.tabs = append(set.tabs, Tab{
			Key:       key,
			Label:     cfg.Label,
			Icon:      cfg.Icon,
			Clauses:   clauses,
			Predicate: pred,
		})
	}
	return set, nil
}

func (s *TabSet) Get(key string) (Tab, bool) {
	idx, ok := s.byKey[key]
	if !ok {
		return Tab{}, false
	}
	return s.tabs[idx], true
}

func (s *TabSet) All() []Tab {
	out := make([]Tab, len(s.tabs))
	copy(out, s.tabs)
	return out
}

func (s *TabSet) Len() int { return len(s.tabs) }
