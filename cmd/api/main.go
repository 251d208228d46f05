package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/atlasbank/swift-portal/internal/config"
	"github.com/atlasbank/swift-portal/internal/handlers"
	"github.com/atlasbank/swift-portal/internal/queue"
	"github.com/atlasbank/swift-portal/internal/ratelimit"
	"github.com/atlasbank/swift-portal/internal/repository"
	"github.com/atlasbank/swift-portal/internal/security"
	"github.com/atlasbank/swift-portal/internal/services"
	"github.com/atlasbank/swift-portal/internal/session"
	xhttp "github.com/atlasbank/swift-portal/pkg/http"
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

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(time.Second * 5))
	s.Use(xhttp.SecurityHeadersMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

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

	settlementQueue, err := queue.NewQueue(redisAdap, queue.QueueConfig{
		Name:              config.Get().QueueName,
		ConsumerGroup:     config.Get().QueueConsumerGroup,
		ConsumerName:      config.Get().QueueConsumerName,
		MaxRetries:        config.Get().QueueMaxRetries,
		VisibilityTimeout: config.Get().QueueVisibilityTimeout,
		PollInterval:      config.Get().QueuePollInterval,
		BatchSize:         config.Get().QueueBatchSize,
		MaxLen:            config.Get().QueueMaxLen,
		EnableDLQ:         config.Get().QueueEnableDLQ,
	})
	if err != nil {
		logger.Error("failed creating settlement queue", "error", err)
	}

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
	if config.Get().AppDebugMetricsAddr != "" {
		go func() {
			prom.ListenAndServer(config.Get().AppDebugMetricsAddr, config.Get().AppDebugMetricsURI)
		}()
	}

	userRepo := repository.NewUserRepository(db)
	employeeRepo := repository.NewEmployeeRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)

	sessions := session.NewStore(redisAdap, config.Get().SessionTTL)
	lockout := ratelimit.NewLockout(redisAdap, "lockout:", config.Get().LockoutMaxFailures, config.Get().LockoutWindow)
	authLimiter := ratelimit.NewLimiter(redisAdap, "ratelimit:auth:", config.Get().AuthRateLimitMax, config.Get().AuthRateLimitWindow)
	csrf := security.NewCSRF(config.Get().CSRFCookieName, config.Get().CSRFHeaderName, config.Get().SessionCookieSecure)

	// services
	authService := services.NewAuthService(userRepo, employeeRepo, sessions, lockout, config.Get().BcryptCost)
	paymentService := services.NewPaymentService(paymentRepo, settlementQueue)
	healthService := services.NewHealthService(db, redisAdap)

	// v1 handlers
	authHandler := handlers.NewAuthHandler(
		authService,
		csrf,
		authLimiter,
		config.Get().SessionCookieName,
		config.Get().SessionCookieSecure,
		config.Get().SessionTTL,
	)
	paymentHandler := handlers.NewPaymentHandler(paymentService, authHandler)
	portalHandler := handlers.NewPortalHandler(healthService, csrf)

	g := s.Router.Group("/api/v1")
	handlers.RegisterAuthRoutes(g, authHandler)
	handlers.RegisterPaymentRoutes(g, paymentHandler)
	handlers.RegisterPortalRoutes(g, portalHandler)

	// CSRF wraps routing so the double-submit check runs before any
	// state-changing handler.
	s.Use(csrf.Middleware)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		var err error
		if config.Get().HttpTLSCert != "" && config.Get().HttpTLSKey != "" {
			err = s.ListenAndServeTLS(config.Get().HttpListenAddr, config.Get().HttpTLSCert, config.Get().HttpTLSKey)
		} else {
			err = s.ListenAndServe(config.Get().HttpListenAddr)
		}
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	select {
	case <-c:
		s.Shutdown()
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
