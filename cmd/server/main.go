package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/example/posbackoffice/gateway"
	"github.com/example/posbackoffice/pkg/config"
	"github.com/example/posbackoffice/pkg/discovery"
	"github.com/example/posbackoffice/pkg/logger"
	"github.com/example/posbackoffice/pkg/metrics"
	"github.com/example/posbackoffice/pkg/repository"
	"github.com/example/posbackoffice/pkg/service"
	"github.com/example/posbackoffice/pkg/store"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Setup logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting POS back-office service",
		zap.String("name", cfg.Server.Name),
		zap.Int("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Driver))

	ctx := context.Background()

	// Database, retried until the configured attempts run out
	db, err := store.Open(ctx, &cfg.Database, log)
	if err != nil {
		log.Fatal("Database unavailable", zap.Error(err))
	}
	if err := store.Migrate(ctx, db); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}

	shutdownOps := map[string]gfshutdown.Operation{}
	// closed after the HTTP server has drained, in order
	var backends []func(ctx context.Context) error

	// Redis reference-data cache
	var cache service.ReferenceCache
	if cfg.Redis.Enabled {
		redisRepo := repository.NewRedisRepository(&cfg.Redis)
		if err := redisRepo.Ping(ctx); err != nil {
			log.Warn("Redis connection failed, serving reference data from the database", zap.Error(err))
			redisRepo.Close()
		} else {
			log.Info("Redis connected successfully")
			cache = redisRepo
			backends = append(backends, func(ctx context.Context) error {
				return redisRepo.Close()
			})
		}
	}

	// MongoDB audit trail
	var audit service.AuditLogger
	if cfg.MongoDB.Enabled {
		mongoRepo, err := repository.NewMongoRepository(ctx, &cfg.MongoDB)
		if err != nil {
			log.Warn("MongoDB connection failed, audit trail disabled", zap.Error(err))
		} else {
			log.Info("MongoDB connected successfully")
			audit = mongoRepo
			backends = append(backends, mongoRepo.Close)
		}
	}

	m := metrics.New()
	svc := service.New(repository.NewRestaurantRepository(db), cache, audit, m, log)
	gw := gateway.NewGateway(&cfg.Server, svc, m, log)

	go func() {
		if err := gw.Start(); err != nil {
			log.Fatal("Gateway error", zap.Error(err))
		}
	}()
	// in-flight requests finish before any backend closes
	shutdownOps["http"] = func(ctx context.Context) error {
		return gw.Drain(ctx, append(backends, func(context.Context) error {
			return store.Close(db)
		})...)
	}

	// Register in etcd for service discovery
	if cfg.Etcd.Enabled {
		sd, err := discovery.NewServiceDiscovery(&cfg.Etcd, log)
		if err != nil {
			log.Warn("Failed to connect to etcd, continuing without service discovery", zap.Error(err))
		} else {
			instance := &discovery.ServiceInstance{
				Name: cfg.Server.Name,
				Host: cfg.Server.Host,
				Port: cfg.Server.Port,
			}
			if err := sd.Register(ctx, instance); err != nil {
				log.Warn("Failed to register service", zap.Error(err))
				sd.Close()
			} else {
				log.Info("Service registered in etcd", zap.String("address", instance.Addr()))
				shutdownOps["etcd"] = func(ctx context.Context) error {
					defer sd.Close()
					return sd.Deregister(ctx, instance)
				}
			}
		}
	}

	wait := gfshutdown.GracefulShutdown(ctx, cfg.Server.ShutdownTimeout, shutdownOps)
	exitCode := <-wait

	log.Info("Service stopped", zap.Int("exit_code", exitCode))
	log.Sync()
	os.Exit(exitCode)
}
