package model

import (
	"time"

	"gorm.io/datatypes"
)

// ItemEntityType 是 Item 在多态关联表中的类型鉴别值。
const ItemEntityType = "item"

// 下拉字段的可选值，空字符串表示未选择。
var (
	ItemTypes    = []string{"Post", "Page"}
	ItemStatuses = []string{"Probably", "Never", "Done", "Maybe"}
	ItemSections = []string{"Header", "Main", "Footer"}
)

// Item 对应数据库中 items 表。
type Item struct {
	ID          uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID        string            `gorm:"type:char(36);uniqueIndex" json:"uuid"`
	Title       string            `gorm:"type:varchar(255);not null" json:"title"`
	Slug        string            `gorm:"type:varchar(255);uniqueIndex" json:"slug"`
	IsActive    bool              `gorm:"default:false" json:"isActive"`
	Description string            `gorm:"type:text" json:"description"`
	Content     string            `gorm:"type:longtext" json:"content"`
	Data        datatypes.JSONMap `gorm:"type:json" json:"data"`
	Image       string            `gorm:"type:varchar(255)" json:"image"`
	Type        string            `gorm:"type:varchar(50);index" json:"type"`
	Status      string            `gorm:"type:varchar(50);index" json:"status"`
	Section     string            `gorm:"type:varchar(50);index" json:"section"`
	AuthorID    *uint             `gorm:"index" json:"authorId"`
	Color       string            `gorm:"type:varchar(20)" json:"color"`
	DueAt       *time.Time        `json:"dueAt"`
	PublishedAt *time.Time        `json:"publishedAt"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定 GORM 使用的表名
func (Item) TableName() string {
	return "items"
}

func (i *Item) EntityType() string { return ItemEntityType }

func (i *Item) EntityID() uint { return i.ID }

// Field 按列名取值，供过滤引擎在内存中求值。空指针字段返回 nil。
func (i *Item) Field(name string) (any, bool) {
	switch name {
	case "id":
		return i.ID, true
	case "uuid":
		return i.UUID, true
	case "title":
		return i.Title, true
	case "slug":
		return i.Slug, true
	case "is_active":
		return i.IsActive, true
	case "description":
		return i.Description, true
	case "content":
		return i.Content, true
	case "data":
		return map[string]interface{}(i.Data), true
	case "image":
		return i.Image, true
	case "type":
		return i.Type, true
	case "status":
		return i.Status, true
	case "section":
		return i.Section, true
	case "author_id":
		if i.AuthorID == nil {
			return nil, true
		}
		return *i.AuthorID, true
	case "color":
		return i.Color, true
	case "due_at":
		if i.DueAt == nil {
			return nil, true
		}
		return *i.DueAt, true
	case "published_at":
		if i.PublishedAt == nil {
			return nil, true
		}
		return *i.PublishedAt, true
	case "created_at":
		return i.CreatedAt, true
	case "updated_at":
		return i.UpdatedAt, true
	}
	return nil, false
}
