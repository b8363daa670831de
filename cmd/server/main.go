package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "itemhub",
	Short: "itemhub - 带可配置分类体系的内容条目服务",
	Long: `itemhub 管理内容条目（Item）以及挂载在其上的分类体系（分类、标签等）。

Examples:
  itemhub serve                       # 启动 HTTP 服务
  itemhub migrate                     # 创建 items、term 表和关联表
  itemhub taxonomies                  # 查看配置中的分类体系
  itemhub serve --config /etc/itemhub/config.yaml`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "配置文件路径")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(taxonomiesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
