// Package filter 把声明式的 field/operator/value 子句编译为实体谓词。
// 编译是无状态的；不支持的运算符在编译期报错，配置错误在启动时暴露，而不是等到求值时。
package filter

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"itemhub/internal/query"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrUnsupportedOperator = errors.New("unsupported filter operator")
	ErrInvalidClause       = errors.New("invalid filter clause")
)

// Clause 是一个 field/operator/value 三元组。
type Clause struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

func (c Clause) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
}

// CompileError 指出编译失败的子句（按声明顺序的第一个）。
type CompileError struct {
	Index  int
	Clause Clause
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("filter clause #%d (%s): %v", e.Index, e.Clause, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Engine 持有运算符表。Register 应在启动阶段完成，之后 Compile 可并发调用。
type Engine struct {
	mu  sync.RWMutex
	ops map[Operator]OperatorSpec
}

func NewEngine() *Engine {
	return &Engine{ops: builtinOperators()}
}

// Register 注册或覆盖一个运算符。
func (e *Engine) Register(op Operator, spec OperatorSpec) {
	if spec.Prepare == nil {
		spec.Prepare = identity
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ops[normalizeOperator(op)] = spec
}

func (e *Engine) lookup(op Operator) (OperatorSpec, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	spec, ok := e.ops[normalizeOperator(op)]
	return spec, ok
}

// Compile 把子句序列按 AND 语义折叠成一个谓词。空序列匹配所有实体。
func (e *Engine) Compile(clauses []Clause) (query.Predicate, error) {
	parts := make([]query.Predicate, 0, len(clauses))
	for i, c := range clauses {
		p, err := e.compileClause(c)
		if err != nil {
			return nil, &CompileError{Index: i, Clause: c, Err: err}
		}
		parts = append(parts, p)
	}
	return query.And(parts...), nil
}

func (e *Engine) compileClause(c Clause) (query.Predicate, error) {
	if strings.TrimSpace(c.Field) == "" {
		return nil, errors.Wrap(ErrInvalidClause, "field is required")
	}
	spec, ok := e.lookup(c.Operator)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedOperator, "%q", c.Operator)
	}
	prepared, err := spec.Prepare(c.Value)
	if err != nil {
		return nil, err
	}
	return &fieldPredicate{field: strings.TrimSpace(c.Field), spec: spec, value: prepared}, nil
}

type fieldPredicate struct {
	field string
	spec  OperatorSpec
	value any
}

// Match 字段缺失或为 nil 时不匹配，与 SQL 中 NULL 参与比较的结果一致。
func (p *fieldPredicate) Match(_ context.Context, e query.Entity) (bool, error) {
	actual, ok := e.Field(p.field)
	if !ok || actual == nil {
		return false, nil
	}
	return p.spec.Match(actual, p.value), nil
}

func (p *fieldPredicate) Scope(t query.Target) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(p.spec.Expr(clause.Column{Table: t.Table, Name: p.field}, p.value))
	}
}
