package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/atlasbank/swift-portal/internal/config"
	"github.com/atlasbank/swift-portal/internal/repository"
	"github.com/atlasbank/swift-portal/internal/settler"
	"github.com/atlasbank/swift-portal/pkg/logger"
	"github.com/atlasbank/swift-portal/pkg/pg"
	"github.com/atlasbank/swift-portal/pkg/prom"
	"github.com/atlasbank/swift-portal/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
		Addrs:      []string{config.Get().RedisAddr},
		ClientName: "default",
		DB:         config.Get().RedisDatabase,
		Username:   config.Get().RedisUsername,
		Password:   config.Get().RedisPassword,
	})
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	gatewayConfig := settler.DefaultGatewayConfig(
		config.Get().SwiftGatewayPrimaryUrl,
		config.Get().SwiftGatewayBackupUrl,
	)
	gatewayConfig.Timeout = time.Second * 5
	gateway, err := settler.NewGateway(gatewayConfig)
	if err != nil {
		logger.Error("failed to create swift gateway", "error", err)
		return
	}

	paymentRepo := repository.NewPaymentRepository(db)

	idempotencyConfig := settler.DefaultIdempotencyConfig()
	idempotencyService := settler.NewIdempotencyService(redisAdap, idempotencyConfig)

	service, err := settler.NewService(redisAdap, paymentRepo)
	if err != nil {
		logger.Error("failed to create the settler", "error", err)
		return
	}
	service.RegisterProcessor(settler.NewPaymentProcessor(gateway, paymentRepo, idempotencyService))

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}

	go func() {
		prom.ListenAndServer(":9100", "/metrics")
	}()

	go func() {
		err := service.Start()
		if err != nil {
			logger.Error("failed to start the settler", "error", err)
		}
	}()

	select {
	case <-c:
		service.Stop()
	}
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
