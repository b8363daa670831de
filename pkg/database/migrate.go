package database

import (
	"fmt"

	"itemhub/internal/model"
	"itemhub/internal/taxonomy"
	"itemhub/pkg/log"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"
)

// Migrate 创建 items 表，以及注册表中每个分类体系的 term 表和多态关联表。
// term 表共用 model.TaxonomyTerm 的结构，通过 db.Table 指定表名。
func Migrate(db *gorm.DB, registry *taxonomy.Registry) error {
	log.Info("Running migrations...")

	if err := db.AutoMigrate(&model.Item{}); err != nil {
		return errors.Wrap(err, "migrate items")
	}

	for def := range registry.All() {
		if err := db.Table(def.TermTable).AutoMigrate(&model.TaxonomyTerm{}); err != nil {
			return errors.Wrapf(err, "migrate term table %q", def.TermTable)
		}
		if err := db.Exec(associationDDL(def)).Error; err != nil {
			return errors.Wrapf(err, "migrate association table %q", def.StorageTable)
		}
		log.Infof("taxonomy %q migrated: %s, %s", def.Key, def.TermTable, def.StorageTable)
	}

	log.Info("Migrations completed successfully")
	return nil
}

// associationDDL 生成多态关联表的建表语句。
// (type, fk, related) 唯一索引保证同一实体不会重复挂载同一个 term，
// 单独的 related 索引服务于按 term 反查实体。
// 标识符已经过 Definition.Validate 校验。
func associationDDL(def taxonomy.Definition) string {
	typeCol, fk, rel := def.TypeColumn(), def.ForeignKeyField, def.RelatedKeyField
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+
		"`%s` varchar(191) NOT NULL, "+
		"`%s` bigint unsigned NOT NULL, "+
		"`%s` bigint unsigned NOT NULL, "+
		"UNIQUE KEY `uniq_%s_entity_term` (`%s`, `%s`, `%s`), "+
		"KEY `idx_%s_%s` (`%s`)"+
		") ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
		def.StorageTable,
		typeCol, fk, rel,
		def.StorageTable, typeCol, fk, rel,
		def.StorageTable, rel, rel,
	)
}
