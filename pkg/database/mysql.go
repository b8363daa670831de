// Package database 提供 MySQL、Redis 连接的初始化以及表结构迁移。
package database

import (
	"strings"
	"time"

	"itemhub/pkg/log"

	"github.com/cockroachdb/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"moul.io/zapgorm2"
)

// slowSQLThreshold 超过该耗时的 SQL 以 warn 级别记录。
const slowSQLThreshold = 200 * time.Millisecond

// InitMySQL 根据 DSN 连接 MySQL 并返回 GORM 实例。
// SQL 日志通过 zapgorm2 写入应用的 zap logger，sqlLevel 取值 silent/error/warn/info。
func InitMySQL(dsn, sqlLevel string) (*gorm.DB, error) {
	gormLogger := zapgorm2.New(log.GetLogger())
	gormLogger.SlowThreshold = slowSQLThreshold
	gormLogger.IgnoreRecordNotFoundError = true
	gormLogger.SetAsDefault()

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormLogger.LogMode(ParseSQLLevel(sqlLevel)),
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect mysql")
	}

	// 获取底层 *sql.DB 以配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql db")
	}
	sqlDB.SetMaxIdleConns(10)           // 最大空闲连接数
	sqlDB.SetMaxOpenConns(100)          // 最大打开连接数
	sqlDB.SetConnMaxLifetime(time.Hour) // 连接最大存活时间，超时连接会被回收

	log.Info("MySQL initialized successfully")
	return db, nil
}

// ParseSQLLevel 未识别的取值按 warn 处理。
func ParseSQLLevel(level string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
