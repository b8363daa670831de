package main

import (
	"context"
	"time"

	"itemhub/internal/cache"
	"itemhub/internal/config"
	"itemhub/internal/filter"
	"itemhub/internal/handler"
	"itemhub/internal/middleware"
	"itemhub/internal/query"
	"itemhub/internal/repository"
	"itemhub/internal/service"
	"itemhub/internal/taxonomy"
	"itemhub/pkg/database"
	"itemhub/pkg/log"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// app 持有 serve 命令装配好的全部组件。
type app struct {
	cfg         *config.Config
	db          *gorm.DB
	rdb         *redis.Client
	registry    *taxonomy.Registry
	termService service.TaxonomyTermService
	router      *gin.Engine
}

// loadConfig 读取配置并初始化日志，所有子命令共用。
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	return cfg, nil
}

func newApp(cfg *config.Config) (*app, error) {
	registry, err := taxonomy.NewRegistryFromConfig(cfg.Item.Taxonomies)
	if err != nil {
		return nil, errors.Wrap(err, "build taxonomy registry")
	}

	engine := filter.NewEngine()
	tabs, err := engine.CompileTabs(cfg.Item.Tabs)
	if err != nil {
		return nil, errors.Wrap(err, "compile tabs")
	}

	db, err := database.InitMySQL(cfg.Database.MySQL.DSN, cfg.Log.SQLLevel)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, db: db, registry: registry}

	// Redis 只承担成员关系缓存，不可用时降级为直接查库
	var membershipCache service.MembershipCache
	if addr := cfg.Database.Redis.Addr; addr != "" {
		rdb, err := database.InitRedis(addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		if err != nil {
			log.Warnf("membership cache disabled: %v", err)
		} else {
			a.rdb = rdb
			ttl := time.Duration(cfg.Database.Redis.TTLSeconds) * time.Second
			membershipCache = cache.NewMembershipCache(rdb, ttl)
		}
	}

	termService := service.NewTaxonomyTermService(registry, repository.NewTaxonomyTermRepository(db),
		service.WithTermMembershipCache(membershipCache))
	assocService := service.NewAssociationService(registry, termService, repository.NewTaxonomyAssociationRepository(db), membershipCache)
	builder := query.NewBuilder(registry, termService, assocService)
	itemService := service.NewItemService(repository.NewItemRepository(db), assocService, registry, builder, engine, tabs)
	a.termService = termService

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.RequestLogger(), gin.Recovery())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
	r.GET("/health", a.health)

	api := r.Group("/api/v1")
	handler.NewItemHandler(itemService, assocService, registry, cfg.Item).RegisterRoutes(api)
	handler.NewTaxonomyHandler(registry, termService, assocService).RegisterRoutes(api)
	a.router = r

	return a, nil
}

func (a *app) health(c *gin.Context) {
	sqlDB, err := a.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		log.Errorf("health check: %v", err)
		c.JSON(503, gin.H{"message": "database unavailable"})
		return
	}
	c.JSON(200, gin.H{"message": "ok"})
}

// reloadTaxonomies 重新读取配置文件中的分类体系定义并整体替换注册表。
// 已有 term 的分类体系不允许翻转 hierarchical。
func (a *app) reloadTaxonomies() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	defs := make([]taxonomy.Definition, 0, len(cfg.Item.Taxonomies))
	for _, tc := range cfg.Item.Taxonomies {
		defs = append(defs, taxonomy.DefinitionFromConfig(tc))
	}

	hasTerms := func(key string) (bool, error) {
		return a.termService.HasTerms(context.Background(), key)
	}
	if err := a.registry.Reload(defs, hasTerms); err != nil {
		return err
	}
	return database.Migrate(a.db, a.registry)
}

func (a *app) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
