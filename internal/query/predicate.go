// Package query 定义可组合的实体谓词。
// 同一个谓词既能在内存中对单个实体求值（Match），也能下推为 GORM 查询条件（Scope），
// 列表查询走 Scope，单条记录的校验和测试走 Match。
package query

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entity 是谓词求值的对象：一个带类型鉴别的实体记录。
type Entity interface {
	EntityType() string
	EntityID() uint
	// Field 按列名取值，第二个返回值表示该字段是否存在。
	Field(name string) (any, bool)
}

// Target 描述 Scope 作用的实体表。
type Target struct {
	Table      string
	EntityType string
	IDColumn   string
}

func (t Target) idColumn() string {
	if t.IDColumn == "" {
		return "id"
	}
	return t.IDColumn
}

type Predicate interface {
	Match(ctx context.Context, e Entity) (bool, error)
	Scope(t Target) func(*gorm.DB) *gorm.DB
}

type allPredicate struct{}

func (allPredicate) Match(context.Context, Entity) (bool, error) { return true, nil }

func (allPredicate) Scope(Target) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB { return db }
}

type nonePredicate struct{}

func (nonePredicate) Match(context.Context, Entity) (bool, error) { return false, nil }

func (nonePredicate) Scope(Target) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB { return db.Where("1 = 0") }
}

// All 匹配任意实体。
func All() Predicate { return allPredicate{} }

// None 不匹配任何实体。
func None() Predicate { return nonePredicate{} }

func isAll(p Predicate) bool {
	_, ok := p.(allPredicate)
	return ok
}

func isNone(p Predicate) bool {
	_, ok := p.(nonePredicate)
	return ok
}

type andPredicate struct {
	parts []Predicate
}

// And 组合多个谓词，全部成立才匹配。空参数等价于 All。
func And(ps ...Predicate) Predicate {
	parts := make([]Predicate, 0, len(ps))
	for _, p := range ps {
		switch {
		case p == nil || isAll(p):
			continue
		case isNone(p):
			return None()
		}
		if inner, ok := p.(*andPredicate); ok {
			parts = append(parts, inner.parts...)
			continue
		}
		parts = append(parts, p)
	}
	switch len(parts) {
	case 0:
		return All()
	case 1:
		return parts[0]
	}
	return &andPredicate{parts: parts}
}

func (a *andPredicate) Match(ctx context.Context, e Entity) (bool, error) {
	for _, p := range a.parts {
		ok, err := p.Match(ctx, e)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (a *andPredicate) Scope(t Target) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		for _, p := range a.parts {
			db = p.Scope(t)(db)
		}
		return db
	}
}

type orPredicate struct {
	parts []Predicate
}

// Or 组合多个谓词，任一成立即匹配。空参数等价于 None。
func Or(ps ...Predicate) Predicate {
	parts := make([]Predicate, 0, len(ps))
	for _, p := range ps {
		switch {
		case p == nil || isNone(p):
			continue
		case isAll(p):
			return All()
		}
		if inner, ok := p.(*orPredicate); ok {
			parts = append(parts, inner.parts...)
			continue
		}
		parts = append(parts, p)
	}
	switch len(parts) {
	case 0:
		return None()
	case 1:
		return parts[0]
	}
	return &orPredicate{parts: parts}
}

func (o *orPredicate) Match(ctx context.Context, e Entity) (bool, error) {
	for _, p := range o.parts {
		ok, err := p.Match(ctx, e)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Scope 把每个分支构造成独立的条件组，再用 OR 连接：(a) OR (b)。
func (o *orPredicate) Scope(t Target) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		group := db.Session(&gorm.Session{NewDB: true})
		for i, p := range o.parts {
			cond := p.Scope(t)(db.Session(&gorm.Session{NewDB: true}))
			if i == 0 {
				group = group.Where(cond)
			} else {
				group = group.Or(cond)
			}
		}
		return db.Where(group)
	}
}

type notPredicate struct {
	inner Predicate
}

func Not(p Predicate) Predicate {
	switch {
	case p == nil || isAll(p):
		return None()
	case isNone(p):
		return All()
	}
	if n, ok := p.(*notPredicate); ok {
		return n.inner
	}
	return &notPredicate{inner: p}
}

func (n *notPredicate) Match(ctx context.Context, e Entity) (bool, error) {
	ok, err := n.inner.Match(ctx, e)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// Scope 把内层条件整体取反：NOT (a AND b)。
// 不能用 db.Not，gorm 会把 AND 组拆开逐项取反，得到 a <> x AND b <> y。
func (n *notPredicate) Scope(t Target) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		inner := n.inner.Scope(t)(db.Session(&gorm.Session{NewDB: true}))
		exprs := whereExprs(inner)
		if len(exprs) == 0 {
			return db.Where("1 = 0")
		}
		return db.Where(negatedGroup{exprs: exprs})
	}
}

func whereExprs(db *gorm.DB) []clause.Expression {
	c, ok := db.Statement.Clauses["WHERE"]
	if !ok {
		return nil
	}
	where, ok := c.Expression.(clause.Where)
	if !ok {
		return nil
	}
	return where.Exprs
}

type negatedGroup struct {
	exprs []clause.Expression
}

func (g negatedGroup) Build(builder clause.Builder) {
	builder.WriteString("NOT (")
	clause.Where{Exprs: g.exprs}.Build(builder)
	builder.WriteByte(')')
}
