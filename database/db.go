package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"realtime-poll-backend/config"
	"realtime-poll-backend/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open 按配置打开数据库连接并完成迁移。
// TranslateError开启后，两种驱动的唯一约束冲突都会映射为gorm.ErrDuplicatedKey，
// 投票去重依赖这一点
func Open(cfg *config.Config) (*gorm.DB, error) {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	gormCfg := &gorm.Config{
		Logger:         newLogger,
		TranslateError: true,
	}

	var db *gorm.DB
	var err error

	switch cfg.DBDriver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
		log.Println("使用MySQL数据库")
		db, err = gorm.Open(mysql.Open(dsn), gormCfg)
	default:
		log.Printf("使用SQLite数据库: %s", cfg.SQLitePath)
		db, err = gorm.Open(sqlite.Open(cfg.SQLitePath+"?_foreign_keys=on"), gormCfg)
	}

	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %v", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Println("数据库连接和迁移成功")
	return db, nil
}

// Migrate 迁移全部模型
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Poll{}, &models.Option{}, &models.Vote{}); err != nil {
		return fmt.Errorf("迁移模型失败: %v", err)
	}
	return nil
}

// DeletePollCascade 级联删除投票及其选项和投票记录，单个事务内全部删除或全部保留。
// 所有权链为 Poll -> Option -> Vote，删除顺序与外键方向相反
func DeletePollCascade(db *gorm.DB, pollID uint) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("poll_id = ?", pollID).Delete(&models.Vote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("poll_id = ?", pollID).Delete(&models.Option{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Poll{}, pollID).Error
	})
}

// Close 关闭底层数据库连接
func Close(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("获取数据库连接失败: %v", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Printf("关闭数据库连接失败: %v", err)
		return
	}

	log.Println("数据库连接已关闭")
}
