package service

import (
	"context"
	"iter"
	"strings"

	"itemhub/internal/model"
	"itemhub/internal/repository"
	"itemhub/internal/taxonomy"
	"itemhub/pkg/log"

	"github.com/cockroachdb/errors"
)

// MembershipCache 缓存实体在某个分类体系下直接挂载的 term id。
// 缓存故障只记录日志，不影响主流程。
type MembershipCache interface {
	Get(ctx context.Context, key, entityType string, entityID uint) ([]uint, bool, error)
	Set(ctx context.Context, key, entityType string, entityID uint, termIDs []uint) error
	Invalidate(ctx context.Context, key, entityType string, entityID uint) error
}

// AssociationService 管理实体与 term 之间的多态关联。
// 实体只是弱引用 (type, id)，这里不校验实体是否存在。
type AssociationService interface {
	// Attach 幂等：重复挂载不会产生重复行。
	Attach(ctx context.Context, key, entityType string, entityID, termID uint) error
	// Detach 未挂载时为空操作；term 不存在时返回 taxonomy.ErrUnknownTerm。
	Detach(ctx context.Context, key, entityType string, entityID, termID uint) error
	// Sync 把实体在该分类体系下的 term 集合设置为 termIDs。
	Sync(ctx context.Context, key, entityType string, entityID uint, termIDs []uint) error
	// CheckTerms 校验 termIDs 全部存在于该分类体系，不做任何写入。
	CheckTerms(ctx context.Context, key string, termIDs []uint) error
	// DetachAll 删除实体在所有分类体系下的关联。
	DetachAll(ctx context.Context, entityType string, entityID uint) error
	// ListTerms 返回按 id 升序的 term id；includeAncestors 只对层级分类体系生效。
	ListTerms(ctx context.Context, key, entityType string, entityID uint, includeAncestors bool) ([]uint, error)
	// EntitiesWithTerm 流式返回持有 termID（可含后代）的实体，已去重。
	EntitiesWithTerm(ctx context.Context, key string, termID uint, includeDescendants bool) iter.Seq2[model.EntityRef, error]
	// Forget 清除实体在所有分类体系下的成员关系缓存。
	Forget(ctx context.Context, entityType string, entityID uint)
}

type associationService struct {
	registry  *taxonomy.Registry
	terms     TaxonomyTermService
	assocRepo repository.TaxonomyAssociationRepository
	cache     MembershipCache
}

// NewAssociationService cache 可以为 nil。
func NewAssociationService(registry *taxonomy.Registry, terms TaxonomyTermService, assocRepo repository.TaxonomyAssociationRepository, cache MembershipCache) AssociationService {
	return &associationService{
		registry:  registry,
		terms:     terms,
		assocRepo: assocRepo,
		cache:     cache,
	}
}

func (s *associationService) definition(key string) (taxonomy.Definition, error) {
	if s.registry == nil || s.terms == nil || s.assocRepo == nil {
		return taxonomy.Definition{}, ErrInternal
	}
	return s.registry.Lookup(strings.TrimSpace(key))
}

func validEntity(entityType string, entityID uint) error {
	if strings.TrimSpace(entityType) == "" || entityID == 0 {
		return errors.Wrap(ErrInvalidInput, "entity type and id are required")
	}
	return nil
}

func (s *associationService) Attach(ctx context.Context, key, entityType string, entityID, termID uint) error {
	def, err := s.definition(key)
	if err != nil {
		return err
	}
	if err := validEntity(entityType, entityID); err != nil {
		return err
	}
	if _, err := s.terms.GetTerm(ctx, def.Key, termID); err != nil {
		return err
	}

	if err := s.assocRepo.Insert(ctx, def, entityType, entityID, termID); err != nil {
		log.Errorf("Attach: taxonomy %q %s#%d term %d: %v", def.Key, entityType, entityID, termID, err)
		return taxonomy.MarkStorage(err)
	}
	s.invalidate(ctx, def.Key, entityType, entityID)
	return nil
}

func (s *associationService) Detach(ctx context.Context, key, entityType string, entityID, termID uint) error {
	def, err := s.definition(key)
	if err != nil {
		return err
	}
	if err := validEntity(entityType, entityID); err != nil {
		return err
	}
	if _, err := s.terms.GetTerm(ctx, def.Key, termID); err != nil {
		return err
	}

	if err := s.assocRepo.Delete(ctx, def, entityType, entityID, termID); err != nil {
		log.Errorf("Detach: taxonomy %q %s#%d term %d: %v", def.Key, entityType, entityID, termID, err)
		return taxonomy.MarkStorage(err)
	}
	s.invalidate(ctx, def.Key, entityType, entityID)
	return nil
}

// Sync 先校验全部 term 存在，再计算差集，只删除多余的、只写入缺少的。
func (s *associationService) Sync(ctx context.Context, key, entityType string, entityID uint, termIDs []uint) error {
	def, err := s.definition(key)
	if err != nil {
		return err
	}
	if err := validEntity(entityType, entityID); err != nil {
		return err
	}

	want := sortedUnique(termIDs)
	if err := s.checkTerms(ctx, def, want); err != nil {
		return err
	}

	current, err := s.assocRepo.TermIDs(ctx, def, entityType, entityID)
	if err != nil {
		return taxonomy.MarkStorage(err)
	}
	add, remove := diffIDs(sortedUnique(current), want)

	if err := s.assocRepo.Replace(ctx, def, entityType, entityID, add, remove); err != nil {
		log.Errorf("Sync: taxonomy %q %s#%d: %v", def.Key, entityType, entityID, err)
		return taxonomy.MarkStorage(err)
	}
	s.invalidate(ctx, def.Key, entityType, entityID)
	return nil
}

func (s *associationService) CheckTerms(ctx context.Context, key string, termIDs []uint) error {
	def, err := s.definition(key)
	if err != nil {
		return err
	}
	return s.checkTerms(ctx, def, sortedUnique(termIDs))
}

func (s *associationService) checkTerms(ctx context.Context, def taxonomy.Definition, termIDs []uint) error {
	for _, id := range termIDs {
		if _, err := s.terms.GetTerm(ctx, def.Key, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *associationService) DetachAll(ctx context.Context, entityType string, entityID uint) error {
	if s.registry == nil || s.assocRepo == nil {
		return ErrInternal
	}
	if err := validEntity(entityType, entityID); err != nil {
		return err
	}
	for def := range s.registry.All() {
		if err := s.assocRepo.DeleteForEntity(ctx, def, entityType, entityID); err != nil {
			log.Errorf("DetachAll: taxonomy %q %s#%d: %v", def.Key, entityType, entityID, err)
			return taxonomy.MarkStorage(err)
		}
		s.invalidate(ctx, def.Key, entityType, entityID)
	}
	return nil
}

func (s *associationService) ListTerms(ctx context.Context, key, entityType string, entityID uint, includeAncestors bool) ([]uint, error) {
	def, err := s.definition(key)
	if err != nil {
		return nil, err
	}

	ids, err := s.directTerms(ctx, def, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if includeAncestors && def.Hierarchical {
		return s.terms.WithAncestors(ctx, def.Key, ids)
	}
	return ids, nil
}

func (s *associationService) directTerms(ctx context.Context, def taxonomy.Definition, entityType string, entityID uint) ([]uint, error) {
	if s.cache != nil {
		ids, ok, err := s.cache.Get(ctx, def.Key, entityType, entityID)
		if err != nil {
			log.Warnw("membership cache get failed",
				"taxonomy", def.Key, "entity_type", entityType, "entity_id", entityID, "error", err)
		} else if ok {
			return ids, nil
		}
	}

	ids, err := s.assocRepo.TermIDs(ctx, def, entityType, entityID)
	if err != nil {
		log.Errorf("ListTerms: taxonomy %q %s#%d: %v", def.Key, entityType, entityID, err)
		return nil, taxonomy.MarkStorage(err)
	}
	ids = sortedUnique(ids)
	if ids == nil {
		ids = []uint{}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, def.Key, entityType, entityID, ids); err != nil {
			log.Warnw("membership cache set failed",
				"taxonomy", def.Key, "entity_type", entityType, "entity_id", entityID, "error", err)
		}
	}
	return ids, nil
}

func (s *associationService) EntitiesWithTerm(ctx context.Context, key string, termID uint, includeDescendants bool) iter.Seq2[model.EntityRef, error] {
	return func(yield func(model.EntityRef, error) bool) {
		def, err := s.definition(key)
		if err != nil {
			yield(model.EntityRef{}, err)
			return
		}
		ids, err := s.terms.Expand(ctx, def.Key, termID, includeDescendants)
		if err != nil {
			yield(model.EntityRef{}, err)
			return
		}

		stopped := false
		err = s.assocRepo.EachEntity(ctx, def, ids, func(ref model.EntityRef) bool {
			if !yield(ref, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			log.Errorf("EntitiesWithTerm: taxonomy %q term %d: %v", def.Key, termID, err)
			yield(model.EntityRef{}, taxonomy.MarkStorage(err))
		}
	}
}

func (s *associationService) Forget(ctx context.Context, entityType string, entityID uint) {
	if s.registry == nil {
		return
	}
	for def := range s.registry.All() {
		s.invalidate(ctx, def.Key, entityType, entityID)
	}
}

func (s *associationService) invalidate(ctx context.Context, key, entityType string, entityID uint) {
	invalidateMembership(ctx, s.cache, key, entityType, entityID)
}

func invalidateMembership(ctx context.Context, cache MembershipCache, key, entityType string, entityID uint) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx, key, entityType, entityID); err != nil {
		log.Warnw("membership cache invalidate failed",
			"taxonomy", key, "entity_type", entityType, "entity_id", entityID, "error", err)
	}
}

// diffIDs 两个输入都已升序去重。
func diffIDs(current, want []uint) (add, remove []uint) {
	i, j := 0, 0
	for i < len(current) || j < len(want) {
		switch {
		case j >= len(want) || (i < len(current) && current[i] < want[j]):
			remove = append(remove, current[i])
			i++
		case i >= len(current) || want[j] < current[i]:
			add = append(add, want[j])
			j++
		default:
			i++
			j++
		}
	}
	return add, remove
}
