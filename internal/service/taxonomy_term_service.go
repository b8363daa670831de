package service

import (
	"context"
	"slices"
	"strings"

	"itemhub/internal/model"
	"itemhub/internal/repository"
	"itemhub/internal/taxonomy"
	"itemhub/pkg/log"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"
)

// DeleteStrategy 决定删除有子节点的 term 时的行为。
type DeleteStrategy string

const (
	// DeleteProtect 有子节点时拒绝删除。
	DeleteProtect DeleteStrategy = "protect"
	// DeleteReparent 子节点挂到被删节点的父节点下。
	DeleteReparent DeleteStrategy = "reparent"
)

// ParseDeleteStrategy 空字符串默认为 DeleteProtect。
func ParseDeleteStrategy(raw string) (DeleteStrategy, error) {
	switch DeleteStrategy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", DeleteProtect:
		return DeleteProtect, nil
	case DeleteReparent:
		return DeleteReparent, nil
	}
	return "", errors.Wrapf(ErrInvalidInput, "unknown delete strategy %q", raw)
}

// TermInput 是创建或更新 term 时的可写字段。
type TermInput struct {
	Name        string
	Slug        string
	Description string
	ParentID    *uint
}

// TaxonomyTermService 管理各分类体系下的 term 及其层级。
// 同时实现 query.TermResolver，供成员关系谓词展开后代 term。
type TaxonomyTermService interface {
	CreateTerm(ctx context.Context, key string, in TermInput) (*model.TaxonomyTerm, error)
	UpdateTerm(ctx context.Context, key string, id uint, in TermInput) (*model.TaxonomyTerm, error)
	// SetParent 修改父节点，parentID 为 nil 表示提升为根节点。
	// 会形成环时返回 taxonomy.ErrCycleDetected，且不做任何修改。
	SetParent(ctx context.Context, key string, id uint, parentID *uint) error
	DeleteTerm(ctx context.Context, key string, id uint, strategy DeleteStrategy) error
	GetTerm(ctx context.Context, key string, id uint) (*model.TaxonomyTerm, error)
	ListTerms(ctx context.Context, key string) ([]model.TaxonomyTerm, error)
	// Children 返回 parentID 的直接子节点，parentID 为 nil 时返回根节点。
	Children(ctx context.Context, key string, parentID *uint) ([]model.TaxonomyTerm, error)
	Tree(ctx context.Context, key string) ([]*model.TaxonomyTermNode, error)
	// Descendants 返回 id 的全部后代（不含自身），按 id 升序。
	Descendants(ctx context.Context, key string, id uint) ([]uint, error)
	// Ancestors 返回 id 的全部祖先，从直接父节点到根。
	Ancestors(ctx context.Context, key string, id uint) ([]uint, error)
	// WithAncestors 返回 ids 与它们全部祖先的并集，按 id 升序。
	WithAncestors(ctx context.Context, key string, ids []uint) ([]uint, error)
	Expand(ctx context.Context, key string, termID uint, includeDescendants bool) ([]uint, error)
	HasTerms(ctx context.Context, key string) (bool, error)
}

type taxonomyTermService struct {
	registry *taxonomy.Registry
	termRepo repository.TaxonomyTermRepository
	cache    MembershipCache
}

type TermServiceOption func(*taxonomyTermService)

// WithTermMembershipCache 删除 term 后清除受影响实体的成员关系缓存。
func WithTermMembershipCache(cache MembershipCache) TermServiceOption {
	return func(s *taxonomyTermService) { s.cache = cache }
}

func NewTaxonomyTermService(registry *taxonomy.Registry, termRepo repository.TaxonomyTermRepository, opts ...TermServiceOption) TaxonomyTermService {
	s := &taxonomyTermService{registry: registry, termRepo: termRepo}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *taxonomyTermService) definition(key string) (taxonomy.Definition, error) {
	if s.registry == nil || s.termRepo == nil {
		return taxonomy.Definition{}, ErrInternal
	}
	return s.registry.Lookup(strings.TrimSpace(key))
}

// CreateTerm 创建 term。
// 关键规则：
// 1. name 必填；slug 为空时由 name 生成。
// 2. 非层级分类体系不允许指定父节点。
// 3. 指定父节点时，父节点必须存在。
func (s *taxonomyTermService) CreateTerm(ctx context.Context, key string, in TermInput) (*model.TaxonomyTerm, error) {
	def, err := s.definition(key)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errors.Wrap(ErrInvalidInput, "term name is required")
	}

	parentID := normalizeOptionalID(in.ParentID)
	if parentID != nil {
		if !def.Hierarchical {
			return nil, errors.Wrapf(taxonomy.ErrNotHierarchical, "taxonomy %q", def.Key)
		}
		if _, err := s.find(ctx, def, *parentID); err != nil {
			return nil, err
		}
	}

	term := &model.TaxonomyTerm{
		Name:        name,
		Slug:        normalizeSlug(in.Slug, name),
		Description: in.Description,
		ParentID:    parentID,
	}
	if err := s.termRepo.Create(ctx, def, term); err != nil {
		log.Errorf("CreateTerm: taxonomy %q: %v", def.Key, err)
		return nil, taxonomy.MarkStorage(err)
	}
	return term, nil
}

// UpdateTerm 更新 term 字段，父节点变更走与 SetParent 相同的环检测。
func (s *taxonomyTermService) UpdateTerm(ctx context.Context, key string, id uint, in TermInput) (*model.TaxonomyTerm, error) {
	def, err := s.definition(key)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, errors.Wrap(ErrInvalidInput, "term name is required")
	}

	term, err := s.find(ctx, def, id)
	if err != nil {
		return nil, err
	}

	parentID := normalizeOptionalID(in.ParentID)
	check, err := s.parentCheck(def, id, parentID)
	if err != nil {
		return nil, err
	}

	term.Name = name
	term.Slug = normalizeSlug(in.Slug, name)
	term.Description = in.Description
	term.ParentID = parentID

	if err := s.termRepo.Update(ctx, def, term, check); err != nil {
		return nil, s.parentWriteError("UpdateTerm", def, id, err)
	}
	return term, nil
}

func (s *taxonomyTermService) SetParent(ctx context.Context, key string, id uint, parentID *uint) error {
	def, err := s.definition(key)
	if err != nil {
		return err
	}
	if _, err := s.find(ctx, def, id); err != nil {
		return err
	}

	parentID = normalizeOptionalID(parentID)
	check, err := s.parentCheck(def, id, parentID)
	if err != nil {
		return err
	}

	if err := s.termRepo.UpdateParent(ctx, def, id, parentID, check); err != nil {
		return s.parentWriteError("SetParent", def, id, err)
	}
	return nil
}

// parentCheck 返回把 id 挂到 parentID 下的校验函数，由仓储在锁表事务内执行。
// 不依赖表数据的错误（非层级、自身为父）在这里直接返回；parentID 为 nil 时无需校验。
func (s *taxonomyTermService) parentCheck(def taxonomy.Definition, id uint, parentID *uint) (repository.ParentCheck, error) {
	if parentID == nil {
		return nil, nil
	}
	if !def.Hierarchical {
		return nil, errors.Wrapf(taxonomy.ErrNotHierarchical, "taxonomy %q", def.Key)
	}
	if *parentID == id {
		return nil, errors.Wrapf(taxonomy.ErrCycleDetected, "%s #%d cannot be its own parent", def.Key, id)
	}
	return func(parents map[uint]*uint) error {
		return checkAcyclic(def, parents, id, *parentID)
	}, nil
}

// checkAcyclic 从新父节点向上走到根，途中遇到 id 说明 parentID 是 id 的后代。
func checkAcyclic(def taxonomy.Definition, parents map[uint]*uint, id, parentID uint) error {
	if _, ok := parents[id]; !ok {
		return errors.Wrapf(taxonomy.ErrUnknownTerm, "%s #%d", def.Key, id)
	}
	if _, ok := parents[parentID]; !ok {
		return errors.Wrapf(taxonomy.ErrUnknownTerm, "%s #%d", def.Key, parentID)
	}

	visited := map[uint]struct{}{}
	for cur := &parentID; cur != nil; cur = parents[*cur] {
		if *cur == id {
			return errors.Wrapf(taxonomy.ErrCycleDetected, "%s #%d is a descendant of #%d", def.Key, parentID, id)
		}
		if _, seen := visited[*cur]; seen {
			break
		}
		visited[*cur] = struct{}{}
	}
	return nil
}

// parentWriteError 校验错误原样返回，其余按存储错误处理。
func (s *taxonomyTermService) parentWriteError(op string, def taxonomy.Definition, id uint, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errors.Wrapf(taxonomy.ErrUnknownTerm, "%s #%d", def.Key, id)
	case errors.Is(err, taxonomy.ErrCycleDetected), errors.Is(err, taxonomy.ErrUnknownTerm):
		return err
	}
	log.Errorf("%s: taxonomy %q term %d: %v", op, def.Key, id, err)
	return taxonomy.MarkStorage(err)
}

// DeleteTerm 按策略删除 term，关联行在同一事务内一并删除。
func (s *taxonomyTermService) DeleteTerm(ctx context.Context, key string, id uint, strategy DeleteStrategy) error {
	def, err := s.definition(key)
	if err != nil {
		return err
	}
	if id == 0 {
		return errors.Wrap(ErrInvalidInput, "term id is required")
	}

	var affected []model.EntityRef
	switch strategy {
	case DeleteReparent:
		affected, err = s.termRepo.DeleteAndReparentChildren(ctx, def, id)
	case DeleteProtect, "":
		affected, err = s.termRepo.Delete(ctx, def, id)
	default:
		return errors.Wrapf(ErrInvalidInput, "unknown delete strategy %q", strategy)
	}

	switch {
	case err == nil:
		for _, ref := range affected {
			invalidateMembership(ctx, s.cache, def.Key, ref.Type, ref.ID)
		}
		log.Debugw("taxonomy term deleted",
			"taxonomy", def.Key, "term_id", id, "strategy", string(strategy), "detached_entities", len(affected))
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return errors.Wrapf(taxonomy.ErrUnknownTerm, "%s #%d", def.Key, id)
	case errors.Is(err, repository.ErrTermHasChildren):
		return errors.Wrapf(ErrTermHasChildren, "%s #%d", def.Key, id)
	default:
		log.Errorf("DeleteTerm: taxonomy %q term %d: %v", def.Key, id, err)
		return taxonomy.MarkStorage(err)
	}
}

func (s *taxonomyTermService) GetTerm(ctx context.Context, key string, id uint) (*model.TaxonomyTerm, error) {
	def, err := s.definition(key)
	if err != nil {
		return nil, err
	}
	return s.find(ctx, def, id)
}

func (s *taxonomyTermService) ListTerms(ctx context.Context, key string) ([]model.TaxonomyTerm, error) {
	def, err := s.definition(key)
	if err != nil {
		return nil, err
	}
	terms, err := s.termRepo.FindAll(ctx, def)
	if err != nil {
		return nil, taxonomy.MarkStorage(err)
	}
	return terms, nil
}

func (s *taxonomyTermService) Children(ctx context.Context, key string, parentID *uint) ([]model.TaxonomyTerm, error) {
	def, err := s.definition(key)
	if err != nil {
		return nil, err
	}
	parentID = normalizeOptionalID(parentID)
	if parentID != nil {
		if _, err := s.find(ctx, def, *parentID); err != nil {
			return nil, err
		}
	}
	terms, err := s.termRepo.FindByParent(ctx, def, parentID)
	if err != nil {
		log.Errorf("Children: taxonomy %q: %v", def.Key, err)
		return nil, taxonomy.MarkStorage(err)
	}
	return terms, nil
}

// Tree 构建 term 树（根节点 + 递归 children）。
// 两遍扫描：第一遍创建所有节点，第二遍按 parent 关系挂载。
// 父节点缺失的孤儿节点作为根节点返回。
func (s *taxonomyTermService) Tree(ctx context.Context, key string) ([]*model.TaxonomyTermNode, error) {
	terms, err := s.ListTerms(ctx, key)
	if err != nil {
		return nil, err
	}

	nodes := make(map[uint]*model.TaxonomyTermNode, len(terms))
	for _, term := range terms {
		nodes[term.ID] = &model.TaxonomyTermNode{
			ID:       term.ID,
			Name:     term.Name,
			Slug:     term.Slug,
			ParentID: term.ParentID,
			Children: []*model.TaxonomyTermNode{},
		}
	}

	tree := make([]*model.TaxonomyTermNode, 0)
	for _, term := range terms {
		node := nodes[term.ID]
		if term.ParentID != nil {
			if parent, ok := nodes[*term.ParentID]; ok && parent != node {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		tree = append(tree, node)
	}
	return tree, nil
}

func (s *taxonomyTermService) Descendants(ctx context.Context, key string, id uint) ([]uint, error) {
	def, err := s.definition(key)
	if err != nil {
		return nil, err
	}
	parents, err := s.parentMap(ctx, def)
	if err != nil {
		return nil, err
	}
	if _, ok := parents[id]; !ok {
		return nil, errors.Wrapf(taxonomy.ErrUnknownTerm, "%s #%d", def.Key, id)
	}
	return descendantsOf(parents, id), nil
}

func (s *taxonomyTermService) Ancestors(ctx context.Context, key string, id uint) ([]uint, error) {
	def, err := s.definition(key)
	if err != nil {
		return nil, err
	}
	parents, err := s.parentMap(ctx, def)
	if err != nil {
		return nil, err
	}
	if _, ok := parents[id]; !ok {
		return nil, errors.Wrapf(taxonomy.ErrUnknownTerm, "%s #%d", def.Key, id)
	}
	return ancestorsOf(parents, id), nil
}

func (s *taxonomyTermService) WithAncestors(ctx context.Context, key string, ids []uint) ([]uint, error) {
	def, err := s.definition(key)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 || !def.Hierarchical {
		return sortedUnique(ids), nil
	}
	parents, err := s.parentMap(ctx, def)
	if err != nil {
		return nil, err
	}

	out := slices.Clone(ids)
	for _, id := range ids {
		out = append(out, ancestorsOf(parents, id)...)
	}
	return sortedUnique(out), nil
}

// Expand 校验 term 存在；includeDescendants 为 true 时返回自身及全部后代。
func (s *taxonomyTermService) Expand(ctx context.Context, key string, termID uint, includeDescendants bool) ([]uint, error) {
	def, err := s.definition(key)
	if err != nil {
		return nil, err
	}
	if !includeDescendants || !def.Hierarchical {
		if _, err := s.find(ctx, def, termID); err != nil {
			return nil, err
		}
		return []uint{termID}, nil
	}

	parents, err := s.parentMap(ctx, def)
	if err != nil {
		return nil, err
	}
	if _, ok := parents[termID]; !ok {
		return nil, errors.Wrapf(taxonomy.ErrUnknownTerm, "%s #%d", def.Key, termID)
	}
	return append([]uint{termID}, descendantsOf(parents, termID)...), nil
}

func (s *taxonomyTermService) HasTerms(ctx context.Context, key string) (bool, error) {
	def, err := s.definition(key)
	if err != nil {
		return false, err
	}
	n, err := s.termRepo.Count(ctx, def)
	if err != nil {
		return false, taxonomy.MarkStorage(err)
	}
	return n > 0, nil
}

func (s *taxonomyTermService) find(ctx context.Context, def taxonomy.Definition, id uint) (*model.TaxonomyTerm, error) {
	if id == 0 {
		return nil, errors.Wrapf(taxonomy.ErrUnknownTerm, "%s #0", def.Key)
	}
	term, err := s.termRepo.FindByID(ctx, def, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(taxonomy.ErrUnknownTerm, "%s #%d", def.Key, id)
		}
		log.Errorf("find term: taxonomy %q term %d: %v", def.Key, id, err)
		return nil, taxonomy.MarkStorage(err)
	}
	if term == nil {
		return nil, errors.Wrapf(taxonomy.ErrUnknownTerm, "%s #%d", def.Key, id)
	}
	return term, nil
}

// parentMap 一次性加载分类体系的全部 term：id -> parent_id。
func (s *taxonomyTermService) parentMap(ctx context.Context, def taxonomy.Definition) (map[uint]*uint, error) {
	terms, err := s.termRepo.FindAll(ctx, def)
	if err != nil {
		log.Errorf("load terms: taxonomy %q: %v", def.Key, err)
		return nil, taxonomy.MarkStorage(err)
	}
	parents := make(map[uint]*uint, len(terms))
	for _, t := range terms {
		parents[t.ID] = t.ParentID
	}
	return parents, nil
}

func descendantsOf(parents map[uint]*uint, id uint) []uint {
	children := make(map[uint][]uint, len(parents))
	for child, parent := range parents {
		if parent != nil {
			children[*parent] = append(children[*parent], child)
		}
	}

	var out []uint
	seen := map[uint]struct{}{id: {}}
	queue := []uint{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range children[cur] {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
			queue = append(queue, c)
		}
	}
	slices.Sort(out)
	return out
}

func ancestorsOf(parents map[uint]*uint, id uint) []uint {
	var out []uint
	seen := map[uint]struct{}{id: {}}
	for cur := parents[id]; cur != nil; cur = parents[*cur] {
		if _, ok := seen[*cur]; ok {
			break
		}
		seen[*cur] = struct{}{}
		out = append(out, *cur)
	}
	return out
}

func sortedUnique(ids []uint) []uint {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

// normalizeOptionalID 把 0 视为未指定。
func normalizeOptionalID(raw *uint) *uint {
	if raw == nil || *raw == 0 {
		return nil
	}
	v := *raw
	return &v
}
