package repository

import (
	"testing"

	"itemhub/internal/taxonomy"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

var (
	categoryDef = taxonomy.Definition{
		Key:             "category",
		Kind:            taxonomy.KindCategory,
		TermTable:       "categories",
		StorageTable:    "categorizables",
		RelationName:    "categorizable",
		ForeignKeyField: "categorizable_id",
		RelatedKeyField: "category_id",
		Hierarchical:    true,
	}
	tagDef = taxonomy.Definition{
		Key:             "tag",
		Kind:            taxonomy.KindTag,
		TermTable:       "tags",
		StorageTable:    "taggables",
		RelationName:    "taggable",
		ForeignKeyField: "taggable_id",
		RelatedKeyField: "tag_id",
	}
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open() error: %v", err)
	}
	return gdb, mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
