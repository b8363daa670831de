package query

import (
	"context"
	"slices"
	"strings"

	"itemhub/internal/taxonomy"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidMode = errors.New("invalid membership mode")

// Mode 决定多个 term 之间的组合方式。
type Mode string

const (
	// ModeAny 实体至少持有其中一个 term。
	ModeAny Mode = "any"
	// ModeAll 实体必须持有每一个 term。
	ModeAll Mode = "all"
)

// ParseMode 解析请求参数中的模式，空字符串默认为 ModeAny。
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeAny:
		return ModeAny, nil
	case ModeAll:
		return ModeAll, nil
	default:
		return "", errors.Wrapf(ErrInvalidMode, "%q", raw)
	}
}

// TermResolver 校验 term 存在，并在需要时展开为它的整棵子树（含自身）。
type TermResolver interface {
	Expand(ctx context.Context, key string, termID uint, includeDescendants bool) ([]uint, error)
}

// MembershipReader 读取实体当前挂载的 term。
type MembershipReader interface {
	ListTerms(ctx context.Context, key, entityType string, entityID uint, includeAncestors bool) ([]uint, error)
}

// Builder 构建分类体系成员关系谓词。
type Builder struct {
	registry *taxonomy.Registry
	terms    TermResolver
	members  MembershipReader
}

func NewBuilder(registry *taxonomy.Registry, terms TermResolver, members MembershipReader) *Builder {
	return &Builder{registry: registry, terms: terms, members: members}
}

type buildOptions struct {
	descendants bool
}

type BuildOption func(*buildOptions)

// WithDescendants 让每个 term 同时匹配它的所有后代 term，仅对层级分类体系生效。
func WithDescendants() BuildOption {
	return func(o *buildOptions) { o.descendants = true }
}

// BuildMembershipPredicate 按 mode 构建成员关系谓词。
// ModeAny 且 termIDs 为空时不匹配任何实体；ModeAll 且为空时匹配全部实体。
// 未注册的分类体系和不存在的 term 在构建阶段就返回错误。
func (b *Builder) BuildMembershipPredicate(ctx context.Context, key string, termIDs []uint, mode Mode, opts ...BuildOption) (Predicate, error) {
	def, err := b.registry.Lookup(key)
	if err != nil {
		return nil, err
	}
	if mode != ModeAny && mode != ModeAll {
		return nil, errors.Wrapf(ErrInvalidMode, "%q", mode)
	}

	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	ids := slices.Clone(termIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	groups := make([][]uint, 0, len(ids))
	for _, id := range ids {
		expanded, err := b.terms.Expand(ctx, key, id, o.descendants && def.Hierarchical)
		if err != nil {
			return nil, err
		}
		groups = append(groups, expanded)
	}

	if len(groups) == 0 {
		if mode == ModeAll {
			return All(), nil
		}
		return None(), nil
	}
	return &membershipPredicate{def: def, mode: mode, groups: groups, members: b.members}, nil
}

// membershipPredicate 中每个 group 对应一个请求的 term（展开后代后的集合）。
// ANY：命中任一 group；ALL：每个 group 都至少命中一个。
type membershipPredicate struct {
	def     taxonomy.Definition
	mode    Mode
	groups  [][]uint
	members MembershipReader
}

func (m *membershipPredicate) Match(ctx context.Context, e Entity) (bool, error) {
	held, err := m.members.ListTerms(ctx, m.def.Key, e.EntityType(), e.EntityID(), false)
	if err != nil {
		return false, err
	}
	set := make(map[uint]struct{}, len(held))
	for _, id := range held {
		set[id] = struct{}{}
	}

	hit := func(group []uint) bool {
		for _, id := range group {
			if _, ok := set[id]; ok {
				return true
			}
		}
		return false
	}

	if m.mode == ModeAny {
		for _, g := range m.groups {
			if hit(g) {
				return true, nil
			}
		}
		return false, nil
	}
	for _, g := range m.groups {
		if !hit(g) {
			return false, nil
		}
	}
	return true, nil
}

func (m *membershipPredicate) Scope(t Target) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		col := db.Statement.Quote(clause.Column{Table: t.Table, Name: t.idColumn()})
		if m.mode == ModeAny {
			var union []uint
			for _, g := range m.groups {
				union = append(union, g...)
			}
			slices.Sort(union)
			union = slices.Compact(union)
			return db.Where(col+" IN (?)", m.subQuery(db, t, union))
		}
		for _, g := range m.groups {
			db = db.Where(col+" IN (?)", m.subQuery(db, t, g))
		}
		return db
	}
}

// subQuery: SELECT fk FROM storage WHERE type = ? AND related IN (?)
func (m *membershipPredicate) subQuery(db *gorm.DB, t Target, termIDs []uint) *gorm.DB {
	values := make([]interface{}, 0, len(termIDs))
	for _, id := range termIDs {
		values = append(values, id)
	}
	return db.Session(&gorm.Session{NewDB: true}).
		Table(m.def.StorageTable).
		Select(m.def.ForeignKeyField).
		Where(clause.Eq{Column: clause.Column{Name: m.def.TypeColumn()}, Value: t.EntityType}).
		Where(clause.IN{Column: clause.Column{Name: m.def.RelatedKeyField}, Values: values})
}
