package query

import (
	"context"
	"testing"

	"itemhub/internal/taxonomy"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 分类树：1 -> 2 -> 3，以及独立根节点 4。
var categoryChildren = map[uint][]uint{1: {2}, 2: {3}}

type fakeResolver struct{}

func (fakeResolver) Expand(_ context.Context, key string, termID uint, includeDescendants bool) ([]uint, error) {
	if termID == 0 || termID > 4 {
		return nil, errors.Wrapf(taxonomy.ErrUnknownTerm, "%s #%d", key, termID)
	}
	out := []uint{termID}
	if !includeDescendants {
		return out, nil
	}
	queue := []uint{termID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range categoryChildren[cur] {
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	return out, nil
}

type fakeMembers map[uint][]uint

func (f fakeMembers) ListTerms(_ context.Context, _, _ string, entityID uint, _ bool) ([]uint, error) {
	return f[entityID], nil
}

func newTestRegistry(t *testing.T) *taxonomy.Registry {
	t.Helper()
	r := taxonomy.NewRegistry()
	require.NoError(t, r.Register(taxonomy.Definition{
		Key: "category", Label: "Categories", Kind: taxonomy.KindCategory,
		TermTable: "categories", StorageTable: "categorizables", RelationName: "categorizable",
		ForeignKeyField: "categorizable_id", RelatedKeyField: "category_id", Hierarchical: true,
	}))
	require.NoError(t, r.Register(taxonomy.Definition{
		Key: "tag", Label: "Tags", Kind: taxonomy.KindTag,
		TermTable: "tags", StorageTable: "taggables", RelationName: "taggable",
		ForeignKeyField: "taggable_id", RelatedKeyField: "tag_id",
	}))
	return r
}

func item(id uint) fakeEntity { return fakeEntity{typ: "item", id: id} }

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAny, m)

	m, err = ParseMode(" ALL ")
	require.NoError(t, err)
	assert.Equal(t, ModeAll, m)

	_, err = ParseMode("some")
	assert.True(t, errors.Is(err, ErrInvalidMode))
}

func TestBuildMembershipPredicate_AnyAndAll(t *testing.T) {
	members := fakeMembers{10: {1, 4}, 11: {1}, 12: {}}
	b := NewBuilder(newTestRegistry(t), fakeResolver{}, members)
	ctx := context.Background()

	anyP, err := b.BuildMembershipPredicate(ctx, "category", []uint{1, 4}, ModeAny)
	require.NoError(t, err)
	allP, err := b.BuildMembershipPredicate(ctx, "category", []uint{1, 4}, ModeAll)
	require.NoError(t, err)

	cases := []struct {
		id      uint
		wantAny bool
		wantAll bool
	}{
		{10, true, true},
		{11, true, false},
		{12, false, false},
	}
	for _, tc := range cases {
		got, err := anyP.Match(ctx, item(tc.id))
		require.NoError(t, err)
		assert.Equal(t, tc.wantAny, got, "ANY entity %d", tc.id)

		got, err = allP.Match(ctx, item(tc.id))
		require.NoError(t, err)
		assert.Equal(t, tc.wantAll, got, "ALL entity %d", tc.id)
	}
}

func TestBuildMembershipPredicate_WithDescendants(t *testing.T) {
	members := fakeMembers{20: {3}}
	b := NewBuilder(newTestRegistry(t), fakeResolver{}, members)
	ctx := context.Background()

	exact, err := b.BuildMembershipPredicate(ctx, "category", []uint{1}, ModeAny)
	require.NoError(t, err)
	ok, err := exact.Match(ctx, item(20))
	require.NoError(t, err)
	assert.False(t, ok)

	subtree, err := b.BuildMembershipPredicate(ctx, "category", []uint{1}, ModeAny, WithDescendants())
	require.NoError(t, err)
	ok, err = subtree.Match(ctx, item(20))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBuildMembershipPredicate_DescendantsIgnoredForFlatTaxonomy(t *testing.T) {
	members := fakeMembers{30: {3}}
	b := NewBuilder(newTestRegistry(t), fakeResolver{}, members)
	ctx := context.Background()

	p, err := b.BuildMembershipPredicate(ctx, "tag", []uint{1}, ModeAny, WithDescendants())
	require.NoError(t, err)
	ok, err := p.Match(ctx, item(30))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuildMembershipPredicate_EmptyTerms(t *testing.T) {
	b := NewBuilder(newTestRegistry(t), fakeResolver{}, fakeMembers{})
	ctx := context.Background()

	p, err := b.BuildMembershipPredicate(ctx, "tag", nil, ModeAny)
	require.NoError(t, err)
	assert.True(t, isNone(p))

	p, err = b.BuildMembershipPredicate(ctx, "tag", nil, ModeAll)
	require.NoError(t, err)
	assert.True(t, isAll(p))
}

func TestBuildMembershipPredicate_Errors(t *testing.T) {
	b := NewBuilder(newTestRegistry(t), fakeResolver{}, fakeMembers{})
	ctx := context.Background()

	_, err := b.BuildMembershipPredicate(ctx, "color", []uint{1}, ModeAny)
	assert.True(t, errors.Is(err, taxonomy.ErrUnknownTaxonomy), "got %v", err)

	_, err = b.BuildMembershipPredicate(ctx, "category", []uint{99}, ModeAny)
	assert.True(t, errors.Is(err, taxonomy.ErrUnknownTerm), "got %v", err)

	_, err = b.BuildMembershipPredicate(ctx, "category", []uint{1}, Mode("most"))
	assert.True(t, errors.Is(err, ErrInvalidMode), "got %v", err)
}

func TestMembershipPredicate_ComposesWithFieldPredicate(t *testing.T) {
	members := fakeMembers{40: {2}, 41: {2}}
	b := NewBuilder(newTestRegistry(t), fakeResolver{}, members)
	ctx := context.Background()

	tax, err := b.BuildMembershipPredicate(ctx, "category", []uint{2}, ModeAny)
	require.NoError(t, err)

	p := And(tax, constPredicate{result: false})
	ok, err := p.Match(ctx, item(40))
	require.NoError(t, err)
	assert.False(t, ok)

	p = Or(tax, constPredicate{result: false})
	ok, err = p.Match(ctx, item(41))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMembershipPredicate_ScopeAny(t *testing.T) {
	b := NewBuilder(newTestRegistry(t), fakeResolver{}, fakeMembers{})
	p, err := b.BuildMembershipPredicate(context.Background(), "category", []uint{1}, ModeAny, WithDescendants())
	require.NoError(t, err)

	sql := toSQL(newDryRunDB(t), p)
	assert.Contains(t, sql, "`items`.`id` IN (SELECT")
	assert.Contains(t, sql, "`categorizables`")
	assert.Contains(t, sql, "`categorizable_type` = ")
	assert.Contains(t, sql, "`category_id` IN (1,2,3)")
}

func TestMembershipPredicate_ScopeAllUsesOneSubqueryPerTerm(t *testing.T) {
	b := NewBuilder(newTestRegistry(t), fakeResolver{}, fakeMembers{})
	p, err := b.BuildMembershipPredicate(context.Background(), "tag", []uint{1, 4}, ModeAll)
	require.NoError(t, err)

	sql := toSQL(newDryRunDB(t), p)
	assert.Contains(t, sql, "`tag_id` = 1")
	assert.Contains(t, sql, "`tag_id` = 4")
}
