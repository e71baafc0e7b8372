package bootstrap

import (
	"github.com/aihub/knowledge-qa/internal/config"
	"github.com/aihub/knowledge-qa/internal/database"
	"github.com/aihub/knowledge-qa/internal/di"
	"github.com/aihub/knowledge-qa/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	Config       *config.Config
	container    *dig.Container
	cleanupTasks []func() error
}

// Init bootstraps configuration, logger and the dependency container. Database,
// vector store and broker connections are opened lazily on first use.
func Init() (*App, error) {
	// .env is loaded by the config layer (non-fatal if missing).
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}
	cfg := config.AppConfig

	if err := logger.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		return nil, err
	}

	container, err := di.BuildContainer()
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:    cfg,
		container: container,
	}
	app.AddCleanup(func() error {
		logger.Sync()
		return nil
	})
	app.AddCleanup(database.CloseDB)
	app.AddCleanup(database.CloseRedis)
	if cfg.Prometheus.Enabled {
		app.AddCleanup(app.pushMetrics)
	}
	return app, nil
}

// Invoke resolves dependencies from the container.
func (a *App) Invoke(function interface{}) error {
	return di.InvokeOn(a.container, function)
}

// AddCleanup registers a task executed in reverse order on Shutdown.
func (a *App) AddCleanup(task func() error) {
	a.cleanupTasks = append(a.cleanupTasks, task)
}

// Shutdown releases resources registered during the command run.
func (a *App) Shutdown() {
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			logger.Warn("Cleanup task failed", zap.Error(err))
		}
	}
	a.cleanupTasks = nil
}

// pushMetrics 命令行进程存活时间短，指标推送到Pushgateway
func (a *App) pushMetrics() error {
	return a.container.Invoke(func(reg *prometheus.Registry) error {
		families, err := reg.Gather()
		if err != nil || len(families) == 0 {
			return err
		}
		return push.New(a.Config.Prometheus.PushgatewayURL, a.Config.Prometheus.Job).
			Gatherer(reg).
			Push()
	})
}
