package db

import (
	"fmt"
	"time"

	"AuraFM/config"
	"AuraFM/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect 建立 GORM 数据库连接
func Connect(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		// 禁用外键约束，关联通过 ID 解析，行可能乱序到达
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database with GORM: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// 设置连接池参数
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return gdb, nil
}

// Close 关闭 GORM 数据库连接
func Close(gdb *gorm.DB) error {
	if gdb == nil {
		return nil
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate 自动迁移目录实体表
func Migrate(gdb *gorm.DB) error {
	err := gdb.AutoMigrate(
		&model.Employee{},
		&model.Program{},
		&model.Channel{},
		&model.Broadcast{},
		&model.Setting{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto migrate models: %w", err)
	}
	return nil
}

// DropAll 删除所有目录实体表（destructive wipe）
func DropAll(gdb *gorm.DB) error {
	err := gdb.Migrator().DropTable(
		"broadcast_hosts",
		&model.Broadcast{},
		&model.Channel{},
		&model.Program{},
		&model.Employee{},
		&model.Setting{},
	)
	if err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	return nil
}
