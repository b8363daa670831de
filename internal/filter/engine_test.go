package filter

import (
	"context"
	"math"
	"testing"
	"time"

	"itemhub/internal/config"
	"itemhub/internal/query"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

type record map[string]any

func (r record) EntityType() string { return "item" }
func (r record) EntityID() uint     { return 1 }
func (r record) Field(name string) (any, bool) {
	v, ok := r[name]
	return v, ok
}

func match(t *testing.T, p query.Predicate, r record) bool {
	t.Helper()
	ok, err := p.Match(context.Background(), r)
	require.NoError(t, err)
	return ok
}

func TestCompile_TypeEquals(t *testing.T) {
	p, err := NewEngine().Compile([]Clause{{Field: "type", Operator: "=", Value: "Post"}})
	require.NoError(t, err)

	assert.True(t, match(t, p, record{"type": "Post"}))
	assert.False(t, match(t, p, record{"type": "Page"}))
}

func TestCompile_UnsupportedOperatorFailsAtCompileTime(t *testing.T) {
	_, err := NewEngine().Compile([]Clause{{Field: "x", Operator: "~~"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedOperator), "got %v", err)
}

func TestCompile_ReportsFirstFailingClause(t *testing.T) {
	_, err := NewEngine().Compile([]Clause{
		{Field: "type", Operator: "=", Value: "Post"},
		{Field: "x", Operator: "~~"},
		{Field: "y", Operator: "??"},
	})

	var ce *CompileError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, 1, ce.Index)
	assert.Equal(t, "x", ce.Clause.Field)
}

func TestCompile_EmptyClausesMatchEverything(t *testing.T) {
	p, err := NewEngine().Compile(nil)
	require.NoError(t, err)

	assert.True(t, match(t, p, record{}))
	assert.True(t, match(t, p, record{"type": "Page"}))
}

func TestCompile_AndSemantics(t *testing.T) {
	p, err := NewEngine().Compile([]Clause{
		{Field: "type", Operator: "=", Value: "Post"},
		{Field: "status", Operator: "!=", Value: "Never"},
	})
	require.NoError(t, err)

	assert.True(t, match(t, p, record{"type": "Post", "status": "Done"}))
	assert.False(t, match(t, p, record{"type": "Post", "status": "Never"}))
	assert.False(t, match(t, p, record{"type": "Page", "status": "Done"}))
}

func TestCompile_EmptyField(t *testing.T) {
	_, err := NewEngine().Compile([]Clause{{Field: " ", Operator: "="}})
	assert.True(t, errors.Is(err, ErrInvalidClause), "got %v", err)
}

func TestCompile_InRequiresList(t *testing.T) {
	_, err := NewEngine().Compile([]Clause{{Field: "status", Operator: "in", Value: "Done"}})
	assert.True(t, errors.Is(err, ErrInvalidClause), "got %v", err)
}

func TestOperators(t *testing.T) {
	due := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	r := record{
		"title":     "Hello World",
		"status":    "Done",
		"author_id": uint(7),
		"is_active": true,
		"due_at":    due,
		"empty":     nil,
	}

	cases := []struct {
		name string
		c    Clause
		want bool
	}{
		{"like contains", Clause{Field: "title", Operator: "like", Value: "%world%"}, true},
		{"like prefix", Clause{Field: "title", Operator: "LIKE", Value: "Hell_ %"}, true},
		{"like miss", Clause{Field: "title", Operator: "like", Value: "%mars%"}, false},
		{"not like", Clause{Field: "title", Operator: "not  like", Value: "%mars%"}, true},
		{"in", Clause{Field: "status", Operator: "in", Value: []any{"Maybe", "Done"}}, true},
		{"not in", Clause{Field: "status", Operator: "not in", Value: []string{"Maybe", "Done"}}, false},
		{"numeric eq with string", Clause{Field: "author_id", Operator: "=", Value: "7"}, true},
		{"numeric gt", Clause{Field: "author_id", Operator: ">", Value: 3}, true},
		{"numeric lte", Clause{Field: "author_id", Operator: "<=", Value: 6}, false},
		{"bool as number", Clause{Field: "is_active", Operator: "=", Value: 1}, true},
		{"time after", Clause{Field: "due_at", Operator: ">=", Value: "2025-01-01"}, true},
		{"time before", Clause{Field: "due_at", Operator: "<", Value: "2025-01-01"}, false},
		{"diamond", Clause{Field: "status", Operator: "<>", Value: "Done"}, false},
		{"nil never matches", Clause{Field: "empty", Operator: "!=", Value: "x"}, false},
		{"missing never matches", Clause{Field: "section", Operator: "!=", Value: "x"}, false},
	}
	e := NewEngine()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := e.Compile([]Clause{tc.c})
			require.NoError(t, err)
			assert.Equal(t, tc.want, match(t, p, r))
		})
	}
}

func TestCompare_StringsMatchExactly(t *testing.T) {
	cases := []struct {
		name       string
		a, b       any
		want       int
		comparable bool
	}{
		{"leading zero", "01", "1", -1, true},
		{"exponent", "1e2", "100", 1, true},
		{"same string", "Done", "Done", 0, true},
		{"string orders lexically", "10", "9", -1, true},
		{"nan string vs string", "NaN", "5", 1, true},
		{"nan vs number", "NaN", 5, 0, false},
		{"float nan", math.NaN(), 1.0, 0, false},
		{"number vs numeric string", uint(7), "7", 0, true},
		{"numbers", 10, 9.5, 1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := compare(tc.a, tc.b)
			assert.Equal(t, tc.comparable, ok)
			if ok {
				assert.Equal(t, tc.want, sign(got))
			}
		})
	}
}

func sign(v int) int {
	switch {
	case v < 0:
		return -1
	case v > 0:
		return 1
	}
	return 0
}

func TestEngine_EqualityOnStringFieldsIsExact(t *testing.T) {
	r := record{"type": "01", "code": "NaN"}
	e := NewEngine()
	cases := []struct {
		name string
		c    Clause
		want bool
	}{
		{"leading zero", Clause{Field: "type", Operator: "=", Value: "1"}, false},
		{"exact", Clause{Field: "type", Operator: "=", Value: "01"}, true},
		{"nan against number string", Clause{Field: "code", Operator: "=", Value: "5"}, false},
		{"nan against number", Clause{Field: "code", Operator: "=", Value: 5}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := e.Compile([]Clause{tc.c})
			require.NoError(t, err)
			assert.Equal(t, tc.want, match(t, p, r))
		})
	}
}

func TestEngine_RegisterCustomOperator(t *testing.T) {
	e := NewEngine()
	e.Register("starts with", OperatorSpec{
		Match: func(a, v any) bool {
			s, _ := a.(string)
			p, _ := v.(string)
			return len(s) >= len(p) && s[:len(p)] == p
		},
	})

	p, err := e.Compile([]Clause{{Field: "title", Operator: "STARTS WITH", Value: "He"}})
	require.NoError(t, err)
	assert.True(t, match(t, p, record{"title": "Hello"}))
}

func TestCompileTabs(t *testing.T) {
	set, err := NewEngine().CompileTabs([]config.TabConfig{
		{Key: "all", Label: "All"},
		{Label: "Post", Query: []config.ClauseConfig{{Field: "type", Operator: "=", Value: "Post"}}},
		{Label: "Page", Query: []config.ClauseConfig{{Field: "type", Operator: "=", Value: "Page"}}},
	})
	require.NoError(t, err)
	require.Equal(t, 3, set.Len())

	all := set.All()
	assert.Equal(t, []string{"all", "1", "2"}, []string{all[0].Key, all[1].Key, all[2].Key})

	post, ok := set.Get("1")
	require.True(t, ok)
	assert.True(t, match(t, post.Predicate, record{"type": "Post"}))
	assert.False(t, match(t, post.Predicate, record{"type": "Page"}))

	allTab, ok := set.Get("all")
	require.True(t, ok)
	assert.True(t, match(t, allTab.Predicate, record{"type": "Page"}))
}

func TestCompileTabs_Misconfigured(t *testing.T) {
	_, err := NewEngine().CompileTabs([]config.TabConfig{
		{Key: "odd", Query: []config.ClauseConfig{{Field: "type", Operator: "~~", Value: "Post"}}},
	})
	assert.True(t, errors.Is(err, ErrUnsupportedOperator), "got %v", err)

	_, err = NewEngine().CompileTabs([]config.TabConfig{{Key: "a"}, {Key: "a"}})
	assert.True(t, errors.Is(err, ErrDuplicateTab), "got %v", err)
}

type itemRow struct {
	ID   uint
	Type string
}

func (itemRow) TableName() string { return "items" }

func TestScope_RendersClauses(t *testing.T) {
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{DryRun: true})
	require.NoError(t, err)

	p, err := NewEngine().Compile([]Clause{
		{Field: "type", Operator: "=", Value: "Post"},
		{Field: "status", Operator: "not in", Value: []any{"Never"}},
		{Field: "title", Operator: "like", Value: "%go%"},
	})
	require.NoError(t, err)

	target := query.Target{Table: "items", EntityType: "item"}
	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		var rows []itemRow
		return tx.Model(&itemRow{}).Scopes(p.Scope(target)).Find(&rows)
	})
	assert.Contains(t, sql, "`items`.`type` = ")
	assert.Contains(t, sql, "`items`.`status` <> ")
	assert.Contains(t, sql, "`items`.`title` LIKE ")
}
