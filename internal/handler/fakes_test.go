package handler

import (
	"context"
	"iter"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"itemhub/internal/config"
	"itemhub/internal/filter"
	"itemhub/internal/model"
	"itemhub/internal/service"
	"itemhub/internal/taxonomy"
	applog "itemhub/pkg/log"

	"github.com/gin-gonic/gin"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	applog.Init("error", "console", "")
	code := m.Run()
	os.Exit(code)
}

func doReq(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func newTestRegistry(t *testing.T) *taxonomy.Registry {
	t.Helper()
	r, err := taxonomy.NewRegistryFromConfig([]config.TaxonomyConfig{
		{
			Key:          "category",
			Label:        "Categories",
			TermTable:    "categories",
			Table:        "categorizables",
			Relationship: "categorizable",
			ForeignKey:   "categorizable_id",
			RelatedKey:   "category_id",
			Hierarchical: true,
		},
		{
			Key:          "tag",
			Label:        "Tags",
			TermTable:    "tags",
			Table:        "taggables",
			Relationship: "taggable",
			ForeignKey:   "taggable_id",
			RelatedKey:   "tag_id",
		},
	})
	if err != nil {
		t.Fatalf("NewRegistryFromConfig() error = %v", err)
	}
	return r
}

type fakeItemService struct {
	createFn func(ctx context.Context, in service.ItemInput) (*service.ItemView, error)
	getFn    func(ctx context.Context, id uint) (*service.ItemView, error)
	updateFn func(ctx context.Context, id uint, in service.ItemInput) (*service.ItemView, error)
	deleteFn func(ctx context.Context, id uint) error
	listFn   func(ctx context.Context, q service.ListQuery) (*service.ItemPage, error)
	tabs     []filter.Tab
}

func (f *fakeItemService) Create(ctx context.Context, in service.ItemInput) (*service.ItemView, error) {
	return f.createFn(ctx, in)
}

func (f *fakeItemService) Get(ctx context.Context, id uint) (*service.ItemView, error) {
	return f.getFn(ctx, id)
}

func (f *fakeItemService) Update(ctx context.Context, id uint, in service.ItemInput) (*service.ItemView, error) {
	return f.updateFn(ctx, id, in)
}

func (f *fakeItemService) Delete(ctx context.Context, id uint) error {
	return f.deleteFn(ctx, id)
}

func (f *fakeItemService) List(ctx context.Context, q service.ListQuery) (*service.ItemPage, error) {
	return f.listFn(ctx, q)
}

func (f *fakeItemService) Tabs() []filter.Tab {
	return f.tabs
}

type fakeTermService struct {
	createFn      func(ctx context.Context, key string, in service.TermInput) (*model.TaxonomyTerm, error)
	updateFn      func(ctx context.Context, key string, id uint, in service.TermInput) (*model.TaxonomyTerm, error)
	setParentFn   func(ctx context.Context, key string, id uint, parentID *uint) error
	deleteFn      func(ctx context.Context, key string, id uint, strategy service.DeleteStrategy) error
	getFn         func(ctx context.Context, key string, id uint) (*model.TaxonomyTerm, error)
	listFn        func(ctx context.Context, key string) ([]model.TaxonomyTerm, error)
	childrenFn    func(ctx context.Context, key string, parentID *uint) ([]model.TaxonomyTerm, error)
	treeFn        func(ctx context.Context, key string) ([]*model.TaxonomyTermNode, error)
	descendantsFn func(ctx context.Context, key string, id uint) ([]uint, error)
	ancestorsFn   func(ctx context.Context, key string, id uint) ([]uint, error)
}

func (f *fakeTermService) CreateTerm(ctx context.Context, key string, in service.TermInput) (*model.TaxonomyTerm, error) {
	return f.createFn(ctx, key, in)
}

func (f *fakeTermService) UpdateTerm(ctx context.Context, key string, id uint, in service.TermInput) (*model.TaxonomyTerm, error) {
	return f.updateFn(ctx, key, id, in)
}

func (f *fakeTermService) SetParent(ctx context.Context, key string, id uint, parentID *uint) error {
	return f.setParentFn(ctx, key, id, parentID)
}

func (f *fakeTermService) DeleteTerm(ctx context.Context, key string, id uint, strategy service.DeleteStrategy) error {
	return f.deleteFn(ctx, key, id, strategy)
}

func (f *fakeTermService) GetTerm(ctx context.Context, key string, id uint) (*model.TaxonomyTerm, error) {
	return f.getFn(ctx, key, id)
}

func (f *fakeTermService) ListTerms(ctx context.Context, key string) ([]model.TaxonomyTerm, error) {
	return f.listFn(ctx, key)
}

func (f *fakeTermService) Children(ctx context.Context, key string, parentID *uint) ([]model.TaxonomyTerm, error) {
	return f.childrenFn(ctx, key, parentID)
}

func (f *fakeTermService) Tree(ctx context.Context, key string) ([]*model.TaxonomyTermNode, error) {
	return f.treeFn(ctx, key)
}

func (f *fakeTermService) Descendants(ctx context.Context, key string, id uint) ([]uint, error) {
	return f.descendantsFn(ctx, key, id)
}

func (f *fakeTermService) Ancestors(ctx context.Context, key string, id uint) ([]uint, error) {
	return f.ancestorsFn(ctx, key, id)
}

func (f *fakeTermService) WithAncestors(context.Context, string, []uint) ([]uint, error) {
	return nil, nil
}

func (f *fakeTermService) Expand(_ context.Context, _ string, termID uint, _ bool) ([]uint, error) {
	return []uint{termID}, nil
}

func (f *fakeTermService) HasTerms(context.Context, string) (bool, error) {
	return false, nil
}

type fakeAssocService struct {
	attachFn    func(ctx context.Context, key, entityType string, entityID, termID uint) error
	detachFn    func(ctx context.Context, key, entityType string, entityID, termID uint) error
	syncFn      func(ctx context.Context, key, entityType string, entityID uint, termIDs []uint) error
	listTermsFn func(ctx context.Context, key, entityType string, entityID uint, includeAncestors bool) ([]uint, error)
	detachAllFn func(ctx context.Context, entityType string, entityID uint) error
	entities    []model.EntityRef
	entitiesErr error
	yielded     int
}

func (f *fakeAssocService) Attach(ctx context.Context, key, entityType string, entityID, termID uint) error {
	return f.attachFn(ctx, key, entityType, entityID, termID)
}

func (f *fakeAssocService) Detach(ctx context.Context, key, entityType string, entityID, termID uint) error {
	return f.detachFn(ctx, key, entityType, entityID, termID)
}

func (f *fakeAssocService) Sync(ctx context.Context, key, entityType string, entityID uint, termIDs []uint) error {
	return f.syncFn(ctx, key, entityType, entityID, termIDs)
}

func (f *fakeAssocService) CheckTerms(context.Context, string, []uint) error { return nil }

func (f *fakeAssocService) DetachAll(ctx context.Context, entityType string, entityID uint) error {
	return f.detachAllFn(ctx, entityType, entityID)
}

func (f *fakeAssocService) ListTerms(ctx context.Context, key, entityType string, entityID uint, includeAncestors bool) ([]uint, error) {
	return f.listTermsFn(ctx, key, entityType, entityID, includeAncestors)
}

func (f *fakeAssocService) EntitiesWithTerm(context.Context, string, uint, bool) iter.Seq2[model.EntityRef, error] {
	return func(yield func(model.EntityRef, error) bool) {
		for _, ref := range f.entities {
			f.yielded++
			if !yield(ref, nil) {
				return
			}
		}
		if f.entitiesErr != nil {
			yield(model.EntityRef{}, f.entitiesErr)
		}
	}
}

func (f *fakeAssocService) Forget(context.Context, string, uint) {}
