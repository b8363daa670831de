// Package taxonomy 描述可配置的分类体系（分类、标签等）以及保存它们的注册表。
package taxonomy

import (
	"regexp"
	"strings"

	"itemhub/internal/config"

	"github.com/cockroachdb/errors"
)

// Kind 是分类体系的标签化变体，渲染层据此选择表单控件，而不是做运行时的能力探测。
type Kind string

const (
	KindCategory Kind = "category"
	KindTag      Kind = "tag"
	KindCustom   Kind = "custom"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Definition 是一种分类体系的静态描述。
// 关联表是多态的：同一张表通过 TypeColumn 区分不同的实体类型。
//
//	categorizables(categorizable_type, categorizable_id, category_id)
type Definition struct {
	Key             string `json:"key"`
	Label           string `json:"label"`
	Kind            Kind   `json:"kind"`
	TermTable       string `json:"termTable"`
	StorageTable    string `json:"storageTable"`
	RelationName    string `json:"relationName"`
	ForeignKeyField string `json:"foreignKeyField"`
	RelatedKeyField string `json:"relatedKeyField"`
	Hierarchical    bool   `json:"hierarchical"`
	CreateFormRef   string `json:"createFormRef"`
}

// TypeColumn 返回多态鉴别列名，例如 categorizable -> categorizable_type。
func (d Definition) TypeColumn() string {
	return d.RelationName + "_type"
}

// Validate 校验定义。表名和列名会被拼进 SQL 标识符，必须是合法的标识符。
func (d Definition) Validate() error {
	if strings.TrimSpace(d.Key) == "" {
		return errors.Wrap(ErrInvalidDefinition, "key is required")
	}
	idents := []struct {
		name  string
		value string
	}{
		{"termTable", d.TermTable},
		{"storageTable", d.StorageTable},
		{"relationName", d.RelationName},
		{"foreignKeyField", d.ForeignKeyField},
		{"relatedKeyField", d.RelatedKeyField},
	}
	for _, id := range idents {
		if !identPattern.MatchString(id.value) {
			return errors.Wrapf(ErrInvalidDefinition, "taxonomy %q: %s %q is not a valid identifier", d.Key, id.name, id.value)
		}
	}
	if d.ForeignKeyField == d.RelatedKeyField || d.TypeColumn() == d.ForeignKeyField || d.TypeColumn() == d.RelatedKeyField {
		return errors.Wrapf(ErrInvalidDefinition, "taxonomy %q: association columns must be distinct", d.Key)
	}
	switch d.Kind {
	case KindCategory, KindTag, KindCustom:
	default:
		return errors.Wrapf(ErrInvalidDefinition, "taxonomy %q: unknown kind %q", d.Key, d.Kind)
	}
	return nil
}

// DefinitionFromConfig 把配置项转换为 Definition。
// 未显式配置 kind 时按 hierarchical 推断：层级分类为 category，平铺为 tag。
func DefinitionFromConfig(c config.TaxonomyConfig) Definition {
	kind := Kind(strings.ToLower(strings.TrimSpace(c.Kind)))
	if kind == "" {
		kind = KindTag
		if c.Hierarchical {
			kind = KindCategory
		}
	}
	label := c.Label
	if label == "" {
		label = c.Key
	}
	return Definition{
		Key:             strings.TrimSpace(c.Key),
		Label:           label,
		Kind:            kind,
		TermTable:       c.TermTable,
		StorageTable:    c.Table,
		RelationName:    c.Relationship,
		ForeignKeyField: c.ForeignKey,
		RelatedKeyField: c.RelatedKey,
		Hierarchical:    c.Hierarchical,
		CreateFormRef:   c.CreateForm,
	}
}
