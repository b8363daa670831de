package filter

import (
	"cmp"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cast"
	"gorm.io/gorm/clause"
)

type Operator string

const (
	OpEq      Operator = "="
	OpNeq     Operator = "!="
	OpNotEq   Operator = "<>"
	OpGt      Operator = ">"
	OpGte     Operator = ">="
	OpLt      Operator = "<"
	OpLte     Operator = "<="
	OpLike    Operator = "like"
	OpNotLike Operator = "not like"
	OpIn      Operator = "in"
	OpNotIn   Operator = "not in"
)

// normalizeOperator 统一大小写和空白："NOT   LIKE" -> "not like"。
func normalizeOperator(op Operator) Operator {
	return Operator(strings.ToLower(strings.Join(strings.Fields(string(op)), " ")))
}

// OperatorSpec 定义一个运算符的编译期预处理、内存求值和 SQL 表达式。
type OperatorSpec struct {
	// Prepare 在编译期校验并预处理期望值，返回值会传给 Match 和 Expr。
	Prepare func(value any) (any, error)
	Match   func(actual, prepared any) bool
	Expr    func(col clause.Column, prepared any) clause.Expression
}

func identity(v any) (any, error) { return v, nil }

func builtinOperators() map[Operator]OperatorSpec {
	eq := OperatorSpec{
		Prepare: identity,
		Match:   func(a, b any) bool { return equal(a, b) },
		Expr:    func(c clause.Column, v any) clause.Expression { return clause.Eq{Column: c, Value: v} },
	}
	neq := OperatorSpec{
		Prepare: identity,
		Match:   func(a, b any) bool { return !equal(a, b) },
		Expr:    func(c clause.Column, v any) clause.Expression { return clause.Neq{Column: c, Value: v} },
	}
	ordered := func(ok func(int) bool, expr func(clause.Column, any) clause.Expression) OperatorSpec {
		return OperatorSpec{
			Prepare: identity,
			Match: func(a, b any) bool {
				c, comparable := compare(a, b)
				return comparable && ok(c)
			},
			Expr: expr,
		}
	}
	like := OperatorSpec{
		Prepare: prepareLike,
		Match:   func(a, p any) bool { return p.(*likePattern).match(a) },
		Expr: func(c clause.Column, p any) clause.Expression {
			return clause.Like{Column: c, Value: p.(*likePattern).raw}
		},
	}
	notLike := OperatorSpec{
		Prepare: prepareLike,
		Match:   func(a, p any) bool { return !p.(*likePattern).match(a) },
		Expr: func(c clause.Column, p any) clause.Expression {
			return clause.Not(clause.Like{Column: c, Value: p.(*likePattern).raw})
		},
	}
	in := OperatorSpec{
		Prepare: prepareList,
		Match:   func(a, l any) bool { return contains(l.([]any), a) },
		Expr: func(c clause.Column, l any) clause.Expression {
			return clause.IN{Column: c, Values: l.([]any)}
		},
	}
	notIn := OperatorSpec{
		Prepare: prepareList,
		Match:   func(a, l any) bool { return !contains(l.([]any), a) },
		Expr: func(c clause.Column, l any) clause.Expression {
			return clause.Not(clause.IN{Column: c, Values: l.([]any)})
		},
	}

	return map[Operator]OperatorSpec{
		OpEq:    eq,
		OpNeq:   neq,
		OpNotEq: neq,
		OpGt: ordered(func(c int) bool { return c > 0 }, func(c clause.Column, v any) clause.Expression {
			return clause.Gt{Column: c, Value: v}
		}),
		OpGte: ordered(func(c int) bool { return c >= 0 }, func(c clause.Column, v any) clause.Expression {
			return clause.Gte{Column: c, Value: v}
		}),
		OpLt: ordered(func(c int) bool { return c < 0 }, func(c clause.Column, v any) clause.Expression {
			return clause.Lt{Column: c, Value: v}
		}),
		OpLte: ordered(func(c int) bool { return c <= 0 }, func(c clause.Column, v any) clause.Expression {
			return clause.Lte{Column: c, Value: v}
		}),
		OpLike:    like,
		OpNotLike: notLike,
		OpIn:      in,
		OpNotIn:   notIn,
	}
}

func prepareList(v any) (any, error) {
	if v == nil {
		return nil, errors.Wrap(ErrInvalidClause, "list value is required")
	}
	if _, ok := v.(string); ok {
		return nil, errors.Wrap(ErrInvalidClause, "list value must be a sequence")
	}
	list, err := cast.ToSliceE(v)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidClause, "list value: %v", err)
	}
	return list, nil
}

// likePattern 按 SQL LIKE 语义匹配：% 任意长度，_ 单个字符，不区分大小写。
type likePattern struct {
	raw string
	re  *regexp.Regexp
}

func prepareLike(v any) (any, error) {
	raw, err := cast.ToStringE(v)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidClause, "like pattern: %v", err)
	}
	var b strings.Builder
	b.WriteString(`(?is)^`)
	for _, r := range raw {
		switch r {
		case '%':
			b.WriteString(`.*`)
		case '_':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`$`)
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidClause, "like pattern: %v", err)
	}
	return &likePattern{raw: raw, re: re}, nil
}

func (p *likePattern) match(actual any) bool {
	s, err := cast.ToStringE(actual)
	if err != nil {
		return false
	}
	return p.re.MatchString(s)
}

func contains(list []any, actual any) bool {
	for _, v := range list {
		if equal(actual, v) {
			return true
		}
	}
	return false
}

func equal(a, b any) bool {
	c, ok := compare(a, b)
	return ok && c == 0
}

// compare 依次尝试时间、数值、字符串比较；第二个返回值表示两者是否可比较。
// 两边都是字符串时按字符串精确比较，与 MySQL 对字符串列的比较一致："01" != "1"。
// 只有一边是字符串时，才按 MySQL 的隐式转换把它当作数值。NaN 与任何值都不可比较。
func compare(a, b any) (int, bool) {
	if ta, tb, ok := asTimes(a, b); ok {
		return ta.Compare(tb), true
	}
	_, aIsString := a.(string)
	_, bIsString := b.(string)
	if !aIsString || !bIsString {
		if fa, ok := toNumber(a); ok {
			if fb, ok := toNumber(b); ok {
				if math.IsNaN(fa) || math.IsNaN(fb) {
					return 0, false
				}
				return cmp.Compare(fa, fb), true
			}
		}
	}
	sa, errA := cast.ToStringE(a)
	sb, errB := cast.ToStringE(b)
	if errA != nil || errB != nil {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case time.Time, *time.Time:
		return 0, false
	}
	f, err := cast.ToFloat64E(v)
	return f, err == nil
}

// asTimes 仅当至少一边是 time.Time 时按时间比较，另一边允许是可解析的字符串。
func asTimes(a, b any) (time.Time, time.Time, bool) {
	_, aIsTime := a.(time.Time)
	_, bIsTime := b.(time.Time)
	if !aIsTime && !bIsTime {
		return time.Time{}, time.Time{}, false
	}
	ta, err := cast.ToTimeE(a)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	tb, err := cast.ToTimeE(b)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return ta, tb, true
}
