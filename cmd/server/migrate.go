package main

import (
	"itemhub/internal/taxonomy"
	"itemhub/pkg/database"
	"itemhub/pkg/log"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "创建 items 表以及每个分类体系的 term 表和关联表",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defer log.Sync()

		registry, err := taxonomy.NewRegistryFromConfig(cfg.Item.Taxonomies)
		if err != nil {
			return err
		}
		db, err := database.InitMySQL(cfg.Database.MySQL.DSN, cfg.Log.SQLLevel)
		if err != nil {
			return err
		}
		return database.Migrate(db, registry)
	},
}
