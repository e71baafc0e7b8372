package di

import (
	"context"
	"fmt"
	"os"

	"github.com/aihub/knowledge-qa/internal/config"
	"github.com/aihub/knowledge-qa/internal/database"
	"github.com/aihub/knowledge-qa/internal/events"
	"github.com/aihub/knowledge-qa/internal/logger"
	"github.com/aihub/knowledge-qa/internal/repository"
	"github.com/aihub/knowledge-qa/internal/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RegisterProviders 注册所有依赖提供者
func RegisterProviders(container *dig.Container) error {
	if err := registerBase(container); err != nil {
		return err
	}
	if err := registerInfrastructure(container); err != nil {
		return err
	}
	return registerServices(container)
}

// registerBase 注册配置、日志和指标
func registerBase(container *dig.Container) error {
	// 注册配置
	if err := container.Provide(func() (*config.Config, error) {
		cfg := config.GetAppConfig()
		if cfg == nil {
			return nil, fmt.Errorf("config not loaded")
		}
		return cfg, nil
	}); err != nil {
		return err
	}

	// 注册日志
	if err := container.Provide(func() *zap.Logger {
		return logger.GetLogger()
	}); err != nil {
		return err
	}

	// 数据库层使用logrus
	if err := container.Provide(func(cfg *config.Config) *logrus.Logger {
		l := &logrus.Logger{
			Out:       os.Stderr,
			Formatter: &logrus.JSONFormatter{},
			Hooks:     make(logrus.LevelHooks),
			Level:     logrus.InfoLevel,
		}
		if cfg.Server.Env == "development" {
			l.Formatter = &logrus.TextFormatter{FullTimestamp: true}
		}
		return l
	}); err != nil {
		return err
	}

	if err := container.Provide(prometheus.NewRegistry); err != nil {
		return err
	}
	return container.Provide(func(reg *prometheus.Registry) prometheus.Registerer {
		return reg
	})
}

// registerInfrastructure 注册数据库、Redis、Kafka和迁移工具
func registerInfrastructure(container *dig.Container) error {
	// 注册数据库
	if err := container.Provide(func(cfg *config.Config) (*gorm.DB, error) {
		return database.InitDB(cfg.Database)
	}); err != nil {
		return err
	}

	if err := container.Provide(func(db *gorm.DB) repository.ChunkStore {
		return repository.NewGormChunkStore(db)
	}); err != nil {
		return err
	}

	// Redis未启用时为nil
	if err := container.Provide(func(cfg *config.Config) (*redis.Client, error) {
		return database.InitRedis(context.Background(), cfg.Redis)
	}); err != nil {
		return err
	}

	if err := container.Provide(func(cfg *config.Config, log *zap.Logger) (events.Publisher, error) {
		return events.NewPublisher(cfg.Kafka, log.Named("events"))
	}); err != nil {
		return err
	}

	if err := container.Provide(func(cfg *config.Config, log *logrus.Logger) (*database.MigrationManager, error) {
		return database.OpenMigrationManager(cfg.Database.URL, log)
	}); err != nil {
		return err
	}

	return container.Provide(func(db *gorm.DB, log *logrus.Logger) (*database.HealthChecker, error) {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		return database.NewHealthChecker(sqlDB, log), nil
	})
}

// registerServices 注册业务服务
func registerServices(container *dig.Container) error {
	return container.Provide(func(cfg *config.Config, store repository.ChunkStore, redisClient *redis.Client,
		publisher events.Publisher, reg prometheus.Registerer, log *zap.Logger) (*services.KnowledgeService, error) {
		return services.NewKnowledgeService(context.Background(), cfg, services.Dependencies{
			Store:      store,
			Redis:      redisClient,
			Publisher:  publisher,
			Registerer: reg,
			Logger:     log.Named("knowledge"),
		})
	})
}
