package taxonomy

// Widget 是渲染层使用的表单控件类型。
type Widget string

const (
	WidgetTreeSelect  Widget = "tree-select"
	WidgetMultiSelect Widget = "multi-select"
)

// FieldSpec 描述一个分类体系在 Item 表单中的字段。
type FieldSpec struct {
	Key          string `json:"key"`
	Label        string `json:"label"`
	Widget       Widget `json:"widget"`
	Multiple     bool   `json:"multiple"`
	Hierarchical bool   `json:"hierarchical"`
	CreateForm   string `json:"createForm,omitempty"`
}

// ColumnSpec 描述一个分类体系在列表中的列。
type ColumnSpec struct {
	Key          string `json:"key"`
	Label        string `json:"label"`
	Relationship string `json:"relationship"`
	Toggleable   bool   `json:"toggleable"`
}

func (d Definition) Field() FieldSpec {
	widget := WidgetMultiSelect
	if d.Kind == KindCategory || (d.Kind == KindCustom && d.Hierarchical) {
		widget = WidgetTreeSelect
	}
	return FieldSpec{
		Key:          d.Key,
		Label:        d.Label,
		Widget:       widget,
		Multiple:     true,
		Hierarchical: d.Hierarchical,
		CreateForm:   d.CreateFormRef,
	}
}

func (d Definition) Column() ColumnSpec {
	return ColumnSpec{
		Key:          d.Key,
		Label:        d.Label,
		Relationship: d.RelationName,
		Toggleable:   true,
	}
}

// Fields 按注册顺序返回表单字段描述。
func (r *Registry) Fields() []FieldSpec {
	fields := make([]FieldSpec, 0, r.Len())
	for def := range r.All() {
		fields = append(fields, def.Field())
	}
	return fields
}

// Columns 按注册顺序返回列表列描述。
func (r *Registry) Columns() []ColumnSpec {
	cols := make([]ColumnSpec, 0, r.Len())
	for def := range r.All() {
		cols = append(cols, def.Column())
	}
	return cols
}
