package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationManager 数据库迁移管理器，迁移文件随二进制一起打包
type MigrationManager struct {
	migrate *migrate.Migrate
	logger  *logrus.Logger
}

// NewMigrationManager 创建迁移管理器。Close 时会一并关闭 db
func NewMigrationManager(db *sql.DB, logger *logrus.Logger) (*MigrationManager, error) {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return &MigrationManager{
		migrate: m,
		logger:  logger,
	}, nil
}

// OpenMigrationManager 使用独立连接（lib/pq）创建迁移管理器
func OpenMigrationManager(dbURL string, logger *logrus.Logger) (*MigrationManager, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open migration connection: %w", err)
	}
	manager, err := NewMigrationManager(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return manager, nil
}

// RunMigrations 执行所有待执行的迁移
func RunMigrations(dbURL string) error {
	manager, err := OpenMigrationManager(dbURL, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer manager.Close()
	return manager.Up()
}

// Up 执行所有待执行的迁移
func (mm *MigrationManager) Up() error {
	mm.logger.Info("Starting database migration up")

	err := mm.migrate.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		mm.logger.Info("No migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	mm.logger.Info("Database migrations completed successfully")
	return nil
}

// Down 回滚最后一次迁移
func (mm *MigrationManager) Down() error {
	mm.logger.Info("Rolling back last migration")

	if err := mm.migrate.Steps(-1); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	mm.logger.Info("Migration rollback completed")
	return nil
}

// Version 获取当前数据库版本，未迁移时返回0
func (mm *MigrationManager) Version() (uint, bool, error) {
	version, dirty, err := mm.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// Close 关闭迁移管理器
func (mm *MigrationManager) Close() error {
	sourceErr, dbErr := mm.migrate.Close()
	if sourceErr != nil {
		mm.logger.Errorf("Error closing migration source: %v", sourceErr)
	}
	if dbErr != nil {
		mm.logger.Errorf("Error closing migration database: %v", dbErr)
	}

	if sourceErr != nil || dbErr != nil {
		return fmt.Errorf("errors occurred while closing migrator: source=%v, db=%v", sourceErr, dbErr)
	}
	return nil
}
