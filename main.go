package main

import (
	"github.com/wfunc/trainroom/config"
	"github.com/wfunc/trainroom/logger"
	"github.com/wfunc/trainroom/monitor"
	"github.com/wfunc/trainroom/persistence"
	"github.com/wfunc/trainroom/server"
)

func main() {
	// Initialize logger
	logger.Init()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	// 房间快照存储：配置了 Redis 用 Redis，否则纯内存
	var store persistence.Store
	if cfg.Redis.Addr != "" {
		store, err = persistence.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Log.Fatalf("Failed to connect to redis: %v", err)
		}
		logger.Log.Info("Redis connection successful.")
	} else {
		store = persistence.NewMemoryStore()
		logger.Log.Warn("No redis configured, room snapshots are in-memory only.")
	}

	// 训练记录归档，可选
	var records persistence.RecordStore
	switch cfg.Database.Driver {
	case "gorm":
		records, err = persistence.NewGormRecordStore(
			cfg.Database.Postgres.Host,
			cfg.Database.Postgres.Port,
			cfg.Database.Postgres.User,
			cfg.Database.Postgres.Password,
			cfg.Database.Postgres.DBName,
		)
	case "postgres":
		records, err = persistence.NewPostgresRecordStore(
			cfg.Database.Postgres.Host,
			cfg.Database.Postgres.Port,
			cfg.Database.Postgres.User,
			cfg.Database.Postgres.Password,
			cfg.Database.Postgres.DBName,
		)
	case "", "none":
		// 不归档
	default:
		logger.Log.Fatalf("Unknown database driver: %s", cfg.Database.Driver)
	}
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	if records != nil {
		logger.Log.Info("Database connection successful.")
	}

	// Metrics
	mon := monitor.NewMonitor("trainroom")
	if cfg.Server.MetricsAddress != "" {
		mon.StartServer(cfg.Server.MetricsAddress)
	}

	// Initialize Room Server
	roomServer := server.NewRoomServer(cfg.Server.HTTPAddress, cfg.Server.RPCAddress, store, records, mon)

	// Start Server
	logger.Log.Infof("Starting room server on %s", cfg.Server.HTTPAddress)
	if err := roomServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}
