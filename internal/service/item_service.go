package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"itemhub/internal/filter"
	"itemhub/internal/model"
	"itemhub/internal/query"
	"itemhub/internal/repository"
	"itemhub/internal/taxonomy"
	"itemhub/pkg/log"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	defaultSortBy   = "title"
	// maxSlugAttempts slug 冲突时最多尝试的后缀数量。
	maxSlugAttempts = 50
)

// sortableColumns 允许排序的列。
var sortableColumns = map[string]struct{}{
	"id":           {},
	"title":        {},
	"status":       {},
	"type":         {},
	"section":      {},
	"due_at":       {},
	"published_at": {},
	"created_at":   {},
	"updated_at":   {},
}

// ItemInput 是创建或更新 item 时的可写字段。
// Taxonomies 为 nil 时更新不触碰关联；某个 key 对应空切片表示清空该分类体系。
type ItemInput struct {
	Title       string
	Slug        string
	IsActive    bool
	Description string
	Content     string
	Data        map[string]interface{}
	Image       string
	Type        string
	Status      string
	Section     string
	AuthorID    *uint
	Color       string
	DueAt       *time.Time
	PublishedAt *time.Time
	Taxonomies  map[string][]uint
}

// ItemView 是 item 加上各分类体系下直接挂载的 term id。
type ItemView struct {
	*model.Item
	Taxonomies map[string][]uint `json:"taxonomies"`
}

// TaxonomyFilter 是列表页上一个分类体系的筛选条件。
type TaxonomyFilter struct {
	Key         string
	TermIDs     []uint
	Mode        query.Mode
	Descendants bool
}

// ListQuery 列表查询参数，各条件之间是 AND 关系。
type ListQuery struct {
	Tab        string
	Taxonomies []TaxonomyFilter
	Active     *bool
	Title      string
	Status     string
	Type       string
	Section    string
	SortBy     string
	SortDesc   *bool
	Page       int
	PageSize   int
}

type ItemPage struct {
	Items    []model.Item `json:"items"`
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
}

type ItemService interface {
	Create(ctx context.Context, in ItemInput) (*ItemView, error)
	Get(ctx context.Context, id uint) (*ItemView, error)
	Update(ctx context.Context, id uint, in ItemInput) (*ItemView, error)
	// Delete 在一个事务内删除 item 及其全部分类关联。
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, q ListQuery) (*ItemPage, error)
	Tabs() []filter.Tab
}

type itemService struct {
	itemRepo repository.ItemRepository
	assoc    AssociationService
	registry *taxonomy.Registry
	builder  *query.Builder
	engine   *filter.Engine
	tabs     *filter.TabSet
}

func NewItemService(
	itemRepo repository.ItemRepository,
	assoc AssociationService,
	registry *taxonomy.Registry,
	builder *query.Builder,
	engine *filter.Engine,
	tabs *filter.TabSet,
) ItemService {
	return &itemService{
		itemRepo: itemRepo,
		assoc:    assoc,
		registry: registry,
		builder:  builder,
		engine:   engine,
		tabs:     tabs,
	}
}

func (s *itemService) ready() bool {
	return s.itemRepo != nil && s.assoc != nil && s.registry != nil
}

// Create 创建 item。
// 关键规则：
// 1. title 必填；slug 为空时由 title 生成。
// 2. Taxonomies 中的 key 必须已注册，先校验再写库。
func (s *itemService) Create(ctx context.Context, in ItemInput) (*ItemView, error) {
	if !s.ready() {
		return nil, ErrInternal
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errors.Wrap(ErrInvalidInput, "title is required")
	}
	if err := validateChoices(in); err != nil {
		return nil, err
	}
	if err := s.checkTaxonomies(ctx, in.Taxonomies); err != nil {
		return nil, err
	}

	item := &model.Item{UUID: uuid.NewString()}
	applyInput(item, in, title)
	if err := s.uniqueSlug(ctx, item); err != nil {
		return nil, err
	}

	if err := s.itemRepo.Create(ctx, item); err != nil {
		log.Errorf("CreateItem: %v", err)
		return nil, taxonomy.MarkStorage(err)
	}
	if err := s.syncTaxonomies(ctx, item, in.Taxonomies); err != nil {
		return nil, err
	}
	return s.view(ctx, item)
}

func (s *itemService) Get(ctx context.Context, id uint) (*ItemView, error) {
	item, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, item)
}

func (s *itemService) Update(ctx context.Context, id uint, in ItemInput) (*ItemView, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, errors.Wrap(ErrInvalidInput, "title is required")
	}
	if err := validateChoices(in); err != nil {
		return nil, err
	}
	item, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkTaxonomies(ctx, in.Taxonomies); err != nil {
		return nil, err
	}

	applyInput(item, in, title)
	if err := s.uniqueSlug(ctx, item); err != nil {
		return nil, err
	}
	if err := s.itemRepo.Update(ctx, item); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrItemNotFound, "item #%d", id)
		}
		log.Errorf("UpdateItem: item %d: %v", id, err)
		return nil, taxonomy.MarkStorage(err)
	}
	if err := s.syncTaxonomies(ctx, item, in.Taxonomies); err != nil {
		return nil, err
	}
	return s.view(ctx, item)
}

func (s *itemService) Delete(ctx context.Context, id uint) error {
	if !s.ready() {
		return ErrInternal
	}
	if id == 0 {
		return errors.Wrap(ErrInvalidInput, "item id is required")
	}

	defs := make([]taxonomy.Definition, 0, s.registry.Len())
	for def := range s.registry.All() {
		defs = append(defs, def)
	}
	if err := s.itemRepo.DeleteWithAssociations(ctx, id, defs); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrapf(ErrItemNotFound, "item #%d", id)
		}
		log.Errorf("DeleteItem: item %d: %v", id, err)
		return taxonomy.MarkStorage(err)
	}
	s.assoc.Forget(ctx, model.ItemEntityType, id)
	return nil
}

// List 组合页签谓词、分类体系谓词和静态过滤条件，下推为一次分页查询。
func (s *itemService) List(ctx context.Context, q ListQuery) (*ItemPage, error) {
	if !s.ready() || s.engine == nil || s.builder == nil {
		return nil, ErrInternal
	}

	pred, err := s.listPredicate(ctx, q)
	if err != nil {
		return nil, err
	}

	sortBy := strings.TrimSpace(q.SortBy)
	if sortBy == "" {
		sortBy = defaultSortBy
	}
	if _, ok := sortableColumns[sortBy]; !ok {
		return nil, errors.Wrapf(ErrInvalidInput, "cannot sort by %q", q.SortBy)
	}
	desc := true
	if q.SortDesc != nil {
		desc = *q.SortDesc
	}

	page, size := q.Page, q.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	target := query.Target{Table: model.Item{}.TableName(), EntityType: model.ItemEntityType}
	items, total, err := s.itemRepo.FindPage(ctx, pred.Scope(target), repository.PageOptions{
		Offset:  (page - 1) * size,
		Limit:   size,
		OrderBy: sortBy,
		Desc:    desc,
	})
	if err != nil {
		log.Errorf("ListItems: %v", err)
		return nil, taxonomy.MarkStorage(err)
	}
	return &ItemPage{Items: items, Total: total, Page: page, PageSize: size}, nil
}

func (s *itemService) listPredicate(ctx context.Context, q ListQuery) (query.Predicate, error) {
	parts := make([]query.Predicate, 0, len(q.Taxonomies)+2)

	if key := strings.TrimSpace(q.Tab); key != "" {
		if s.tabs == nil {
			return nil, errors.Wrapf(ErrUnknownTab, "%q", key)
		}
		tab, ok := s.tabs.Get(key)
		if !ok {
			return nil, errors.Wrapf(ErrUnknownTab, "%q", key)
		}
		parts = append(parts, tab.Predicate)
	}

	for _, tf := range q.Taxonomies {
		mode := tf.Mode
		if mode == "" {
			mode = query.ModeAny
		}
		var opts []query.BuildOption
		if tf.Descendants {
			opts = append(opts, query.WithDescendants())
		}
		p, err := s.builder.BuildMembershipPredicate(ctx, tf.Key, tf.TermIDs, mode, opts...)
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}

	static, err := s.engine.Compile(staticClauses(q))
	if err != nil {
		return nil, errors.Mark(err, ErrInvalidInput)
	}
	parts = append(parts, static)

	return query.And(parts...), nil
}

// staticClauses 把列表页的固定筛选项翻译为过滤子句：启用状态、标题模糊匹配、下拉筛选。
func staticClauses(q ListQuery) []filter.Clause {
	var clauses []filter.Clause
	if q.Active != nil {
		clauses = append(clauses, filter.Clause{Field: "is_active", Operator: filter.OpEq, Value: *q.Active})
	}
	if title := strings.TrimSpace(q.Title); title != "" {
		clauses = append(clauses, filter.Clause{Field: "title", Operator: filter.OpLike, Value: "%" + title + "%"})
	}
	selects := []struct{ field, value string }{
		{"status", q.Status},
		{"type", q.Type},
		{"section", q.Section},
	}
	for _, sel := range selects {
		if v := strings.TrimSpace(sel.value); v != "" {
			clauses = append(clauses, filter.Clause{Field: sel.field, Operator: filter.OpEq, Value: v})
		}
	}
	return clauses
}

func (s *itemService) Tabs() []filter.Tab {
	if s.tabs == nil {
		return nil
	}
	return s.tabs.All()
}

func (s *itemService) find(ctx context.Context, id uint) (*model.Item, error) {
	if !s.ready() {
		return nil, ErrInternal
	}
	if id == 0 {
		return nil, errors.Wrap(ErrInvalidInput, "item id is required")
	}
	item, err := s.itemRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrItemNotFound, "item #%d", id)
		}
		log.Errorf("FindItem: item %d: %v", id, err)
		return nil, taxonomy.MarkStorage(err)
	}
	if item == nil {
		return nil, errors.Wrapf(ErrItemNotFound, "item #%d", id)
	}
	return item, nil
}

// uniqueSlug 保证 slug 唯一：冲突时依次追加 -2、-3 ...，标题里没有可用字符时退回 uuid。
func (s *itemService) uniqueSlug(ctx context.Context, item *model.Item) error {
	if item.Slug == "" {
		item.Slug = item.UUID
	}
	base := item.Slug
	for n := 2; n <= maxSlugAttempts+1; n++ {
		existing, err := s.itemRepo.FindBySlug(ctx, item.Slug)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			log.Errorf("FindItemBySlug: %q: %v", item.Slug, err)
			return taxonomy.MarkStorage(err)
		}
		if existing == nil || existing.ID == item.ID {
			return nil
		}
		item.Slug = fmt.Sprintf("%s-%d", base, n)
	}
	return errors.Wrapf(ErrInvalidInput, "slug %q is already taken", base)
}

// checkTaxonomies 在写 item 之前校验全部分类体系 key 和 term id，
// 避免 item 已落库而关联同步失败。
func (s *itemService) checkTaxonomies(ctx context.Context, m map[string][]uint) error {
	for key := range m {
		if _, err := s.registry.Lookup(key); err != nil {
			return err
		}
	}
	for def := range s.registry.All() {
		ids, ok := m[def.Key]
		if !ok {
			continue
		}
		if err := s.assoc.CheckTerms(ctx, def.Key, ids); err != nil {
			return err
		}
	}
	return nil
}

// validateChoices 下拉字段只接受预设值或空值。
func validateChoices(in ItemInput) error {
	choices := []struct {
		field   string
		value   string
		allowed []string
	}{
		{"type", in.Type, model.ItemTypes},
		{"status", in.Status, model.ItemStatuses},
		{"section", in.Section, model.ItemSections},
	}
	for _, c := range choices {
		v := strings.TrimSpace(c.value)
		if v != "" && !slices.Contains(c.allowed, v) {
			return errors.Wrapf(ErrInvalidInput, "%s must be one of %s", c.field, strings.Join(c.allowed, ", "))
		}
	}
	return nil
}

// syncTaxonomies 按注册顺序同步，保证多个分类体系的写入顺序稳定。
func (s *itemService) syncTaxonomies(ctx context.Context, item *model.Item, m map[string][]uint) error {
	if m == nil {
		return nil
	}
	for def := range s.registry.All() {
		ids, ok := m[def.Key]
		if !ok {
			continue
		}
		if err := s.assoc.Sync(ctx, def.Key, item.EntityType(), item.ID, ids); err != nil {
			return err
		}
	}
	return nil
}

func (s *itemService) view(ctx context.Context, item *model.Item) (*ItemView, error) {
	v := &ItemView{Item: item, Taxonomies: make(map[string][]uint, s.registry.Len())}
	for def := range s.registry.All() {
		ids, err := s.assoc.ListTerms(ctx, def.Key, item.EntityType(), item.ID, false)
		if err != nil {
			return nil, err
		}
		v.Taxonomies[def.Key] = ids
	}
	return v, nil
}

func applyInput(item *model.Item, in ItemInput, title string) {
	item.Title = title
	item.Slug = normalizeSlug(in.Slug, title)
	item.IsActive = in.IsActive
	item.Description = in.Description
	item.Content = in.Content
	item.Data = datatypes.JSONMap(in.Data)
	item.Image = strings.TrimSpace(in.Image)
	item.Type = strings.TrimSpace(in.Type)
	item.Status = strings.TrimSpace(in.Status)
	item.Section = strings.TrimSpace(in.Section)
	item.AuthorID = normalizeOptionalID(in.AuthorID)
	item.Color = strings.TrimSpace(in.Color)
	item.DueAt = in.DueAt
	item.PublishedAt = in.PublishedAt
}
