package database

import (
	"context"
	"embed"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/pressly/goose/v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"eCard/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// InitDatabase 使用配置初始化 PostgreSQL 连接，并返回 GORM 数据库实例。
func InitDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         newGormLogger(os.Stdout),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap db: %w", err)
	}

	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// newGormLogger 只输出慢查询与真正的错误。
// 注册与登录都会先按用户名查询，未命中属于正常路径，不记录。
func newGormLogger(w io.Writer) logger.Interface {
	return logger.New(log.New(w, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// Migrate 按配置建表：auto 走 AutoMigrate（开发与测试），goose 执行内嵌的 PostgreSQL 迁移脚本。
func Migrate(ctx context.Context, db *gorm.DB, mode string) error {
	switch mode {
	case "", "auto":
		if err := db.WithContext(ctx).AutoMigrate(&User{}, &CardExport{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	case "goose":
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("unwrap db: %w", err)
		}
		goose.SetBaseFS(migrationsFS)
		if err := goose.SetDialect(gooseDialect(db)); err != nil {
			return fmt.Errorf("goose dialect: %w", err)
		}
		if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
			return fmt.Errorf("goose up: %w", err)
		}
		return nil
	case "none":
		return nil
	default:
		return fmt.Errorf("unknown migrate mode %q", mode)
	}
}

// gooseDialect 把 gorm 方言名映射为 goose 方言名；测试用 sqlite 跑同一套脚本。
func gooseDialect(db *gorm.DB) string {
	if db.Dialector.Name() == "sqlite" {
		return "sqlite3"
	}
	return "postgres"
}
