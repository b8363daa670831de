package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"itemhub/internal/config"
	"itemhub/internal/taxonomy"

	"github.com/spf13/cobra"
)

var taxonomiesCmd = &cobra.Command{
	Use:   "taxonomies",
	Short: "校验并列出配置中的分类体系",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		registry, err := taxonomy.NewRegistryFromConfig(cfg.Item.Taxonomies)
		if err != nil {
			return err
		}
		return printTaxonomies(cmd.OutOrStdout(), registry)
	},
}

func printTaxonomies(out io.Writer, registry *taxonomy.Registry) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tKIND\tTERM TABLE\tSTORAGE TABLE\tCOLUMNS\tHIERARCHICAL")
	for def := range registry.All() {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s,%s,%s\t%t\n",
			def.Key, def.Kind, def.TermTable, def.StorageTable,
			def.TypeColumn(), def.ForeignKeyField, def.RelatedKeyField, def.Hierarchical)
	}
	return w.Flush()
}
