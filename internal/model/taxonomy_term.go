package model

import "time"

// TaxonomyTerm 是某个分类体系中的一个 term。
// 表名由分类体系定义决定（categories、tags ...），查询时通过 db.Table 指定，
// 因此这里不实现 TableName。ParentID 只对层级分类体系有意义。
type TaxonomyTerm struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Slug        string    `gorm:"type:varchar(255);index" json:"slug"`
	Description string    `gorm:"type:text" json:"description"`
	ParentID    *uint     `gorm:"index" json:"parentId"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TaxonomyTermNode 是 term 的树形节点，用于返回树形结构响应。
type TaxonomyTermNode struct {
	ID       uint                `json:"id"`
	Name     string              `json:"name"`
	Slug     string              `json:"slug"`
	ParentID *uint               `json:"parentId"`
	Children []*TaxonomyTermNode `json:"children"`
}

// EntityRef 是多态关联中被引用的实体（类型 + ID），只是弱引用。
type EntityRef struct {
	Type string `json:"type"`
	ID   uint   `json:"id"`
}
