package database

import (
	"strings"
	"testing"

	"itemhub/internal/taxonomy"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestParseSQLLevel(t *testing.T) {
	cases := map[string]logger.LogLevel{
		"silent":  logger.Silent,
		"ERROR":   logger.Error,
		" info ":  logger.Info,
		"warn":    logger.Warn,
		"":        logger.Warn,
		"verbose": logger.Warn,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseSQLLevel(in), "level %q", in)
	}
}

func TestAssociationDDL(t *testing.T) {
	def := taxonomy.Definition{
		Key:             "category",
		Kind:            taxonomy.KindCategory,
		TermTable:       "categories",
		StorageTable:    "categorizables",
		RelationName:    "categorizable",
		ForeignKeyField: "categorizable_id",
		RelatedKeyField: "category_id",
		Hierarchical:    true,
	}
	require.NoError(t, def.Validate())

	ddl := associationDDL(def)
	assert.True(t, strings.HasPrefix(ddl, "CREATE TABLE IF NOT EXISTS `categorizables` ("))
	assert.Contains(t, ddl, "`categorizable_type` varchar(191) NOT NULL")
	assert.Contains(t, ddl, "UNIQUE KEY `uniq_categorizables_entity_term` (`categorizable_type`, `categorizable_id`, `category_id`)")
	assert.Contains(t, ddl, "KEY `idx_categorizables_category_id` (`category_id`)")
}

func TestInitRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := InitRedis(mr.Addr(), "", 0)
	require.NoError(t, err)
	defer rdb.Close()

	mr.Close()
	_, err = InitRedis(mr.Addr(), "", 0)
	assert.Error(t, err)
}
