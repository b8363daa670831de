package repository

import (
	"context"
	"fmt"
	"strings"

	"itemhub/internal/model"
	"itemhub/internal/taxonomy"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaxonomyAssociationRepository 读写多态关联表（categorizables、taggables ...）。
// 一行记录 = (实体类型, 实体 ID, term ID)，表上有三列联合唯一索引。
type TaxonomyAssociationRepository interface {
	// Insert 幂等写入，已存在时不报错也不产生重复行。
	Insert(ctx context.Context, def taxonomy.Definition, entityType string, entityID, termID uint) error
	Delete(ctx context.Context, def taxonomy.Definition, entityType string, entityID, termID uint) error
	// Replace 在一个事务内删除 remove 并写入 add。
	Replace(ctx context.Context, def taxonomy.Definition, entityType string, entityID uint, add, remove []uint) error
	DeleteForEntity(ctx context.Context, def taxonomy.Definition, entityType string, entityID uint) error
	TermIDs(ctx context.Context, def taxonomy.Definition, entityType string, entityID uint) ([]uint, error)
	// EachEntity 流式遍历关联到任一 termIDs 的实体（已去重），fn 返回 false 时停止。
	EachEntity(ctx context.Context, def taxonomy.Definition, termIDs []uint, fn func(model.EntityRef) bool) error
}

type taxonomyAssociationRepository struct {
	db *gorm.DB
}

func NewTaxonomyAssociationRepository(db *gorm.DB) TaxonomyAssociationRepository {
	return &taxonomyAssociationRepository{db: db}
}

func (r *taxonomyAssociationRepository) Insert(ctx context.Context, def taxonomy.Definition, entityType string, entityID, termID uint) error {
	return insertAssociations(r.db.WithContext(ctx), def, entityType, entityID, []uint{termID})
}

func (r *taxonomyAssociationRepository) Delete(ctx context.Context, def taxonomy.Definition, entityType string, entityID, termID uint) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ? AND %s = ?",
		quoteIdent(def.StorageTable), quoteIdent(def.TypeColumn()),
		quoteIdent(def.ForeignKeyField), quoteIdent(def.RelatedKeyField))
	return r.db.WithContext(ctx).Exec(stmt, entityType, entityID, termID).Error
}

func (r *taxonomyAssociationRepository) Replace(ctx context.Context, def taxonomy.Definition, entityType string, entityID uint, add, remove []uint) error {
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(remove) > 0 {
			stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ? AND %s IN ?",
				quoteIdent(def.StorageTable), quoteIdent(def.TypeColumn()),
				quoteIdent(def.ForeignKeyField), quoteIdent(def.RelatedKeyField))
			if err := tx.Exec(stmt, entityType, entityID, remove).Error; err != nil {
				return err
			}
		}
		return insertAssociations(tx, def, entityType, entityID, add)
	})
}

func (r *taxonomyAssociationRepository) DeleteForEntity(ctx context.Context, def taxonomy.Definition, entityType string, entityID uint) error {
	return deleteEntityAssociations(r.db.WithContext(ctx), def, entityType, entityID)
}

func (r *taxonomyAssociationRepository) TermIDs(ctx context.Context, def taxonomy.Definition, entityType string, entityID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Table(def.StorageTable).
		Where(clause.Eq{Column: clause.Column{Name: def.TypeColumn()}, Value: entityType}).
		Where(clause.Eq{Column: clause.Column{Name: def.ForeignKeyField}, Value: entityID}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: def.RelatedKeyField}}).
		Pluck(def.RelatedKeyField, &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *taxonomyAssociationRepository) EachEntity(ctx context.Context, def taxonomy.Definition, termIDs []uint, fn func(model.EntityRef) bool) error {
	if len(termIDs) == 0 {
		return nil
	}
	rows, err := r.db.WithContext(ctx).
		Table(def.StorageTable).
		Distinct(def.TypeColumn(), def.ForeignKeyField).
		Where(clause.IN{Column: clause.Column{Name: def.RelatedKeyField}, Values: uintsToAny(termIDs)}).
		Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var ref model.EntityRef
		if err := rows.Scan(&ref.Type, &ref.ID); err != nil {
			return err
		}
		if !fn(ref) {
			return nil
		}
	}
	return rows.Err()
}

// insertAssociations 使用 INSERT IGNORE 依赖唯一索引去重。
func insertAssociations(db *gorm.DB, def taxonomy.Definition, entityType string, entityID uint, termIDs []uint) error {
	if len(termIDs) == 0 {
		return nil
	}
	placeholders := make([]string, 0, len(termIDs))
	args := make([]interface{}, 0, len(termIDs)*3)
	for _, id := range termIDs {
		placeholders = append(placeholders, "(?, ?, ?)")
		args = append(args, entityType, entityID, id)
	}
	stmt := fmt.Sprintf("INSERT IGNORE INTO %s (%s, %s, %s) VALUES %s",
		quoteIdent(def.StorageTable), quoteIdent(def.TypeColumn()),
		quoteIdent(def.ForeignKeyField), quoteIdent(def.RelatedKeyField),
		strings.Join(placeholders, ", "))
	return db.Exec(stmt, args...).Error
}

func deleteEntityAssociations(db *gorm.DB, def taxonomy.Definition, entityType string, entityID uint) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ?",
		quoteIdent(def.StorageTable), quoteIdent(def.TypeColumn()), quoteIdent(def.ForeignKeyField))
	return db.Exec(stmt, entityType, entityID).Error
}

func uintsToAny(ids []uint) []interface{} {
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
