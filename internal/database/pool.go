package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"task-gateway/internal/config"
	"task-gateway/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type PoolConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	LogLevel        logger.LogLevel
}

func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Driver:          DriverPostgres,
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Minute * 30,
		LogLevel:        logger.Info,
	}
}

// PoolConfigFromConfig maps the loaded configuration onto a pool config.
// SQLite gets a single connection: it allows one writer at a time and this
// keeps task transactions strictly serialized.
func PoolConfigFromConfig(cfg *config.Config) *PoolConfig {
	pc := DefaultPoolConfig()
	pc.Driver = cfg.Database.Driver
	pc.DSN = cfg.GetDatabaseDSN()
	pc.MaxOpenConns = cfg.Database.MaxOpenConns
	pc.MaxIdleConns = cfg.Database.MaxIdleConns
	pc.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	pc.ConnMaxIdleTime = cfg.Database.ConnMaxIdleTime
	if cfg.IsProduction() {
		pc.LogLevel = logger.Warn
	}
	if pc.Driver == DriverSQLite {
		pc.MaxOpenConns = 1
		pc.MaxIdleConns = 1
	}
	return pc
}

func (c *PoolConfig) validate() error {
	if c.DSN == "" {
		return errors.New("database DSN is required")
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return errors.New("connection counts must not be negative")
	}
	if c.ConnMaxLifetime < 0 || c.ConnMaxIdleTime < 0 {
		return errors.New("connection lifetimes must not be negative")
	}
	switch c.Driver {
	case "", DriverPostgres, DriverSQLite:
		return nil
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}
}

func (c *PoolConfig) dialector() gorm.Dialector {
	if c.Driver == DriverSQLite {
		return sqlite.Open(c.DSN)
	}
	return postgres.Open(c.DSN)
}

type DatabasePool struct {
	DB     *gorm.DB
	config *PoolConfig
}

func NewDatabasePool(config *PoolConfig) (*DatabasePool, error) {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if err := config.validate(); err != nil {
		return nil, err
	}

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  config.LogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(config.dialector(), &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	pool := &DatabasePool{DB: db, config: config}
	if err := pool.Health(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// Migrate creates or updates the users and tasks tables.
func (p *DatabasePool) Migrate() error {
	if p.DB == nil {
		return errors.New("database not initialized")
	}
	return p.DB.AutoMigrate(&models.User{}, &models.Task{})
}

func (p *DatabasePool) Stats() map[string]interface{} {
	if p.DB == nil {
		return map[string]interface{}{"error": "database not initialized"}
	}

	sqlDB, err := p.DB.DB()
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}

	stats := sqlDB.Stats()
	return map[string]interface{}{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration":        stats.WaitDuration.String(),
		"max_idle_closed":      stats.MaxIdleClosed,
		"max_lifetime_closed":  stats.MaxLifetimeClosed,
	}
}

func (p *DatabasePool) Health() error {
	return p.HealthContext(context.Background())
}

func (p *DatabasePool) HealthContext(ctx context.Context) error {
	if p.DB == nil {
		return errors.New("database not initialized")
	}

	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

func (p *DatabasePool) Close() error {
	if p.DB == nil {
		return nil
	}

	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
