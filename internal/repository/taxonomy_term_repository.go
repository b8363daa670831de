package repository

import (
	"context"
	"errors"
	"fmt"

	"itemhub/internal/model"
	"itemhub/internal/taxonomy"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrTermHasChildren 表示 term 下仍有子节点，禁止直接删除。
	ErrTermHasChildren = errors.New("taxonomy term has children")
)

// ParentCheck 在锁住整张 term 表的事务内，按当前 id → parent_id 映射校验新的父节点。
// 返回错误时事务回滚，错误原样返回给调用方。
type ParentCheck func(parents map[uint]*uint) error

// TaxonomyTermRepository 定义 term 的持久化操作。
// 每个分类体系的 term 存在各自的表里（def.TermTable），层级关系通过 parent_id 实现。
type TaxonomyTermRepository interface {
	Create(ctx context.Context, def taxonomy.Definition, term *model.TaxonomyTerm) error
	FindAll(ctx context.Context, def taxonomy.Definition) ([]model.TaxonomyTerm, error)
	FindByID(ctx context.Context, def taxonomy.Definition, id uint) (*model.TaxonomyTerm, error)
	FindByParent(ctx context.Context, def taxonomy.Definition, parentID *uint) ([]model.TaxonomyTerm, error)
	Count(ctx context.Context, def taxonomy.Definition) (int64, error)
	// Update 更新 name、slug、description、parent_id。
	// check 不为 nil 时先锁表校验，并发的父节点修改因此串行执行。
	Update(ctx context.Context, def taxonomy.Definition, term *model.TaxonomyTerm, check ParentCheck) error
	UpdateParent(ctx context.Context, def taxonomy.Definition, id uint, parentID *uint, check ParentCheck) error

	// Delete 默认保护删除：有子节点则返回 ErrTermHasChildren。
	// 同一事务内删除该 term 的全部关联行，返回失去该 term 的实体。
	Delete(ctx context.Context, def taxonomy.Definition, id uint) ([]model.EntityRef, error)

	// DeleteAndReparentChildren 子节点挂到当前节点的父节点后删除当前节点。
	//   删除前：A → B → C, D
	//   删除后：A → C, D
	DeleteAndReparentChildren(ctx context.Context, def taxonomy.Definition, id uint) ([]model.EntityRef, error)
}

type taxonomyTermRepository struct {
	db *gorm.DB
}

func NewTaxonomyTermRepository(db *gorm.DB) TaxonomyTermRepository {
	return &taxonomyTermRepository{db: db}
}

func (r *taxonomyTermRepository) table(ctx context.Context, def taxonomy.Definition) *gorm.DB {
	return r.db.WithContext(ctx).Table(def.TermTable)
}

func (r *taxonomyTermRepository) Create(ctx context.Context, def taxonomy.Definition, term *model.TaxonomyTerm) error {
	if term == nil {
		return fmt.Errorf("term is nil")
	}
	return r.table(ctx, def).Create(term).Error
}

func (r *taxonomyTermRepository) FindAll(ctx context.Context, def taxonomy.Definition) ([]model.TaxonomyTerm, error) {
	var terms []model.TaxonomyTerm
	if err := r.table(ctx, def).Order("id ASC").Find(&terms).Error; err != nil {
		return nil, err
	}
	return terms, nil
}

func (r *taxonomyTermRepository) FindByID(ctx context.Context, def taxonomy.Definition, id uint) (*model.TaxonomyTerm, error) {
	if id == 0 {
		return nil, fmt.Errorf("term id is required")
	}

	var term model.TaxonomyTerm
	if err := r.table(ctx, def).Where("id = ?", id).First(&term).Error; err != nil {
		return nil, err
	}
	return &term, nil
}

func (r *taxonomyTermRepository) FindByParent(ctx context.Context, def taxonomy.Definition, parentID *uint) ([]model.TaxonomyTerm, error) {
	var terms []model.TaxonomyTerm

	tx := r.table(ctx, def).Order("id ASC")
	if parentID == nil {
		tx = tx.Where("parent_id IS NULL")
	} else {
		tx = tx.Where("parent_id = ?", *parentID)
	}

	if err := tx.Find(&terms).Error; err != nil {
		return nil, err
	}
	return terms, nil
}

func (r *taxonomyTermRepository) Count(ctx context.Context, def taxonomy.Definition) (int64, error) {
	var n int64
	if err := r.table(ctx, def).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// Update 使用 Select 限定字段，避免零值覆盖；id 不存在时返回 gorm.ErrRecordNotFound。
func (r *taxonomyTermRepository) Update(ctx context.Context, def taxonomy.Definition, term *model.TaxonomyTerm, check ParentCheck) error {
	if term == nil {
		return fmt.Errorf("term is nil")
	}
	if term.ID == 0 {
		return fmt.Errorf("term id is required")
	}

	return r.withParentLock(ctx, def, check, func(tx *gorm.DB) error {
		res := tx.Table(def.TermTable).Model(&model.TaxonomyTerm{}).
			Where("id = ?", term.ID).
			Select("name", "slug", "description", "parent_id").
			Updates(term)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *taxonomyTermRepository) UpdateParent(ctx context.Context, def taxonomy.Definition, id uint, parentID *uint, check ParentCheck) error {
	return r.withParentLock(ctx, def, check, func(tx *gorm.DB) error {
		res := tx.Table(def.TermTable).Model(&model.TaxonomyTerm{}).
			Where("id = ?", id).
			Update("parent_id", parentID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// withParentLock 在事务内用 SELECT ... FOR UPDATE 读取整张表的父子关系，
// 校验通过后再执行写入。check 为 nil 时只开事务。
func (r *taxonomyTermRepository) withParentLock(ctx context.Context, def taxonomy.Definition, check ParentCheck, write func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if check != nil {
			var rows []model.TaxonomyTerm
			if err := tx.Table(def.TermTable).
				Select("id", "parent_id").
				Clauses(clause.Locking{Strength: "UPDATE"}).
				Find(&rows).Error; err != nil {
				return err
			}
			parents := make(map[uint]*uint, len(rows))
			for _, t := range rows {
				parents[t.ID] = t.ParentID
			}
			if err := check(parents); err != nil {
				return err
			}
		}
		return write(tx)
	})
}

func (r *taxonomyTermRepository) Delete(ctx context.Context, def taxonomy.Definition, id uint) ([]model.EntityRef, error) {
	if id == 0 {
		return nil, fmt.Errorf("term id is required")
	}

	var affected []model.EntityRef
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current model.TaxonomyTerm
		if err := tx.Table(def.TermTable).Where("id = ?", id).First(&current).Error; err != nil {
			return err
		}

		var childCount int64
		if err := tx.Table(def.TermTable).
			Where("parent_id = ?", id).
			Count(&childCount).Error; err != nil {
			return err
		}
		if childCount > 0 {
			return ErrTermHasChildren
		}

		var err error
		affected, err = deleteTermRows(tx, def, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

func (r *taxonomyTermRepository) DeleteAndReparentChildren(ctx context.Context, def taxonomy.Definition, id uint) ([]model.EntityRef, error) {
	if id == 0 {
		return nil, fmt.Errorf("term id is required")
	}

	var affected []model.EntityRef
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current model.TaxonomyTerm
		if err := tx.Table(def.TermTable).Where("id = ?", id).First(&current).Error; err != nil {
			return err
		}

		if err := tx.Table(def.TermTable).Model(&model.TaxonomyTerm{}).
			Where("parent_id = ?", id).
			Update("parent_id", current.ParentID).Error; err != nil {
			return err
		}

		var err error
		affected, err = deleteTermRows(tx, def, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return affected, nil
}

// deleteTermRows 记录持有该 term 的实体，清理关联行后删除 term 本身，必须在事务内调用。
func deleteTermRows(tx *gorm.DB, def taxonomy.Definition, id uint) ([]model.EntityRef, error) {
	rows, err := tx.Table(def.StorageTable).
		Distinct(def.TypeColumn(), def.ForeignKeyField).
		Where(clause.Eq{Column: clause.Column{Name: def.RelatedKeyField}, Value: id}).
		Rows()
	if err != nil {
		return nil, err
	}
	var affected []model.EntityRef
	for rows.Next() {
		var ref model.EntityRef
		if err := rows.Scan(&ref.Type, &ref.ID); err != nil {
			rows.Close()
			return nil, err
		}
		affected = append(affected, ref)
	}
	err = rows.Err()
	if cerr := rows.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quoteIdent(def.StorageTable), quoteIdent(def.RelatedKeyField))
	if err := tx.Exec(stmt, id).Error; err != nil {
		return nil, err
	}

	res := tx.Table(def.TermTable).Where("id = ?", id).Delete(&model.TaxonomyTerm{})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return affected, nil
}
