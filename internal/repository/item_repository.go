package repository

import (
	"context"
	"fmt"

	"itemhub/internal/model"
	"itemhub/internal/taxonomy"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PageOptions 分页和排序参数。OrderBy 必须是调用方校验过的列名。
type PageOptions struct {
	Offset  int
	Limit   int
	OrderBy string
	Desc    bool
}

// ItemRepository 定义 item 的持久化操作。
type ItemRepository interface {
	Create(ctx context.Context, item *model.Item) error
	FindByID(ctx context.Context, id uint) (*model.Item, error)
	FindBySlug(ctx context.Context, slug string) (*model.Item, error)
	// Update 更新除 id、uuid、created_at 以外的全部字段
	Update(ctx context.Context, item *model.Item) error
	// FindPage 先 Count 再取当前页，scope 为 nil 时不加过滤条件。
	FindPage(ctx context.Context, scope func(*gorm.DB) *gorm.DB, opts PageOptions) ([]model.Item, int64, error)
	// DeleteWithAssociations 在一个事务内删除 item 及其在 defs 中所有关联表里的行。
	DeleteWithAssociations(ctx context.Context, id uint, defs []taxonomy.Definition) error
}

type itemRepository struct {
	db *gorm.DB
}

func NewItemRepository(db *gorm.DB) ItemRepository {
	return &itemRepository{db: db}
}

func (r *itemRepository) Create(ctx context.Context, item *model.Item) error {
	if item == nil {
		return fmt.Errorf("item is nil")
	}
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *itemRepository) FindByID(ctx context.Context, id uint) (*model.Item, error) {
	if id == 0 {
		return nil, fmt.Errorf("item id is required")
	}

	var item model.Item
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *itemRepository) FindBySlug(ctx context.Context, slug string) (*model.Item, error) {
	var item model.Item
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *itemRepository) Update(ctx context.Context, item *model.Item) error {
	if item == nil {
		return fmt.Errorf("item is nil")
	}
	if item.ID == 0 {
		return fmt.Errorf("item id is required")
	}

	tx := r.db.WithContext(ctx).Model(&model.Item{}).
		Where("id = ?", item.ID).
		Select("*").
		Omit("id", "uuid", "created_at").
		Updates(item)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *itemRepository) FindPage(ctx context.Context, scope func(*gorm.DB) *gorm.DB, opts PageOptions) ([]model.Item, int64, error) {
	var (
		items []model.Item
		total int64
	)

	base := r.db.WithContext(ctx).Model(&model.Item{})
	if scope != nil {
		base = base.Scopes(scope)
	}

	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []model.Item{}, 0, nil
	}

	tx := base.Session(&gorm.Session{})
	if opts.OrderBy != "" {
		tx = tx.Order(clause.OrderByColumn{
			Column: clause.Column{Table: model.Item{}.TableName(), Name: opts.OrderBy},
			Desc:   opts.Desc,
		})
	}
	if opts.Limit > 0 {
		tx = tx.Offset(opts.Offset).Limit(opts.Limit)
	}
	if err := tx.Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *itemRepository) DeleteWithAssociations(ctx context.Context, id uint, defs []taxonomy.Definition) error {
	if id == 0 {
		return fmt.Errorf("item id is required")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current model.Item
		if err := tx.Select("id").Where("id = ?", id).First(&current).Error; err != nil {
			return err
		}

		for _, def := range defs {
			if err := deleteEntityAssociations(tx, def, current.EntityType(), id); err != nil {
				return err
			}
		}

		return tx.Where("id = ?", id).Delete(&model.Item{}).Error
	})
}
