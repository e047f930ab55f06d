package bootstrap

import (
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	glog "gorm.io/gorm/logger"

	"github.com/code-100-precent/SpeechGate/internal/models"
	"github.com/code-100-precent/SpeechGate/pkg/config"
	"github.com/code-100-precent/SpeechGate/pkg/logger"
)

// SetupDatabase 连接sqlite并迁移异步任务表
func SetupDatabase(cfg *config.Config) (*gorm.DB, error) {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	logLevel := glog.Silent
	if cfg.Debug {
		logLevel = glog.Info
	}
	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: glog.Default.LogMode(logLevel),
	})
	if err != nil {
		logger.Error("数据库连接失败",
			zap.String("path", cfg.DatabasePath), zap.Error(err))
		return nil, err
	}

	if err := db.AutoMigrate(&models.AsyncTTSTask{}); err != nil {
		logger.Error("数据库迁移失败", zap.Error(err))
		return nil, err
	}

	logger.Info("数据库初始化完成", zap.String("path", cfg.DatabasePath))
	return db, nil
}
