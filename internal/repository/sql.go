package repository

import "strings"

// quoteIdent 给 MySQL 标识符加反引号。
// 调用方传入的表名、列名都来自已校验的分类体系定义（只含字母、数字、下划线）。
func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
