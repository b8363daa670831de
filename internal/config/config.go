// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Item     ItemConfig     `mapstructure:"item"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
	// SQLLevel 控制 GORM 的 SQL 日志级别：silent/error/warn/info
	SQLLevel string `mapstructure:"sql_level"`
}

type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 为空 Addr 时不启用成员关系缓存。
type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// ItemConfig 对应 Item 资源的全部声明式配置。
// tabs 与 taxonomies 使用有序列表而不是 map，viper 解析 map 时会丢失配置顺序，
// 而 UI 渲染顺序需要与配置顺序一致。
type ItemConfig struct {
	Single          string           `mapstructure:"single"`
	Plural          string           `mapstructure:"plural"`
	NavigationGroup string           `mapstructure:"navigation_group"`
	NavigationSort  int              `mapstructure:"navigation_sort"`
	Tabs            []TabConfig      `mapstructure:"tabs"`
	Taxonomies      []TaxonomyConfig `mapstructure:"taxonomies"`
}

type TabConfig struct {
	Key   string         `mapstructure:"key"`
	Label string         `mapstructure:"label"`
	Icon  string         `mapstructure:"icon"`
	Query []ClauseConfig `mapstructure:"query"`
}

// ClauseConfig 是一个 field/operator/value 三元组。
type ClauseConfig struct {
	Field    string      `mapstructure:"field"`
	Operator string      `mapstructure:"operator"`
	Value    interface{} `mapstructure:"value"`
}

type TaxonomyConfig struct {
	Key          string `mapstructure:"key"`
	Label        string `mapstructure:"label"`
	Kind         string `mapstructure:"kind"`
	TermTable    string `mapstructure:"term_table"`
	Table        string `mapstructure:"table"`
	Relationship string `mapstructure:"relationship"`
	ForeignKey   string `mapstructure:"foreign_key"`
	RelatedKey   string `mapstructure:"related_key"`
	Hierarchical bool   `mapstructure:"hierarchical"`
	CreateForm   string `mapstructure:"create_form"`
}

// Load 从指定路径读取 YAML 配置并返回解析结果。
// 配置作为显式对象传给各组件的构造函数，业务代码中不做全局查找。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.sql_level", "warn")
	v.SetDefault("database.redis.ttl_seconds", 300)
	v.SetDefault("item.single", "Item")
	v.SetDefault("item.plural", "Items")
}
