package bootstrap

import (
	"github.com/yuqie6/cyclecal/internal/eventbus"
	"github.com/yuqie6/cyclecal/internal/pkg/config"
	"github.com/yuqie6/cyclecal/internal/repository"
	"github.com/yuqie6/cyclecal/internal/service"
)

// Core 持有核心依赖
type Core struct {
	Cfg *config.Config
	DB  *repository.Database
	Hub *eventbus.Hub

	Repos struct {
		Settings   *repository.SettingsRepository
		Cycle      *repository.CycleRepository
		SkipPeriod *repository.SkipPeriodRepository
	}

	Services struct {
		Calendar *service.CalendarService
		Cycle    *service.CycleService
	}
}

// NewCore 构建核心依赖（不启动 HTTP 服务）
func NewCore(cfgPath string) (*Core, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	config.SetupLogger(cfg.App.LogLevel)

	db, err := repository.NewDatabase(cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}

	c := &Core{Cfg: cfg, DB: db, Hub: eventbus.NewHub()}

	// Repos
	c.Repos.Settings = repository.NewSettingsRepository(db.DB)
	c.Repos.Cycle = repository.NewCycleRepository(db.DB)
	c.Repos.SkipPeriod = repository.NewSkipPeriodRepository(db.DB)

	// Services
	c.Services.Calendar = service.NewCalendarService(
		c.Repos.Settings,
		c.Repos.Cycle,
		c.Repos.SkipPeriod,
		c.Hub,
	)
	c.Services.Cycle = service.NewCycleService(
		c.Repos.Settings,
		c.Repos.Cycle,
		c.Repos.SkipPeriod,
		c.Services.Calendar,
		c.Hub,
	)

	return c, nil
}

// Close 关闭核心依赖资源
func (c *Core) Close() error {
	if c == nil {
		return nil
	}
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
