package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// AckStatus represents the acknowledgement state of a payment
type AckStatus string

const (
	StatusAcknowledged AckStatus = "acknowledged"
	StatusRejected     AckStatus = "rejected"
)

// AcknowledgeRequest represents a payment forwarded for acknowledgement
type AcknowledgeRequest struct {
	PaymentID    int64  `json:"payment_id" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
	Currency     string `json:"currency" binding:"required"`
	PayeeAccount string `json:"payee_account" binding:"required"`
	SwiftCode    string `json:"swift_code" binding:"required"`
}

// AcknowledgeResponse represents the network's answer
type AcknowledgeResponse struct {
	PaymentID      int64     `json:"payment_id"`
	Status         AckStatus `json:"status"`
	Reference      string    `json:"reference"`
	Reason         string    `json:"reason,omitempty"`
	AcknowledgedAt time.Time `json:"acknowledged_at"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status  string    `json:"status"`
	Node    string    `json:"node"`
	Time    time.Time `json:"time"`
	AckRate float64   `json:"ack_rate"`
}

// MockNetwork simulates the SWIFT acknowledgement endpoint
type MockNetwork struct {
	ackRate  float64
	minDelay time.Duration
	maxDelay time.Duration
	node     string
	rng      *rand.Rand
}

func NewMockNetwork(ackRate float64, minDelay, maxDelay time.Duration) *MockNetwork {
	return &MockNetwork{
		ackRate:  ackRate,
		minDelay: minDelay,
		maxDelay: maxDelay,
		node:     "SWIFT_MOCK_" + uuid.New().String()[:8],
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *MockNetwork) acknowledge(req *AcknowledgeRequest) *AcknowledgeResponse {
	// Simulate network latency
	time.Sleep(m.randomDelay())

	response := &AcknowledgeResponse{
		PaymentID:      req.PaymentID,
		Reference:      "SW" + strings.ToUpper(uuid.New().String()[:12]),
		AcknowledgedAt: time.Now(),
	}

	if m.shouldAcknowledge() {
		response.Status = StatusAcknowledged

		log.Info().
			Int64("payment_id", req.PaymentID).
			Str("amount", req.Amount).
			Str("currency", req.Currency).
			Str("reference", response.Reference).
			Msg("Payment acknowledged")
	} else {
		response.Status = StatusRejected
		response.Reason = m.randomRejection()

		log.Warn().
			Int64("payment_id", req.PaymentID).
			Str("reason", response.Reason).
			Msg("Payment rejected")
	}

	return response
}

func (m *MockNetwork) randomDelay() time.Duration {
	delta := m.maxDelay - m.minDelay
	if delta <= 0 {
		return m.minDelay
	}
	return m.minDelay + time.Duration(m.rng.Int63n(int64(delta)))
}

func (m *MockNetwork) shouldAcknowledge() bool {
	return m.rng.Float64() < m.ackRate
}

func (m *MockNetwork) randomRejection() string {
	reasons := []string{
		"beneficiary bank unreachable",
		"intermediary rejected the instruction",
		"account closed at beneficiary bank",
		"compliance hold at receiving institution",
	}
	return reasons[m.rng.Intn(len(reasons))]
}

// Handler holds the mock network and routes
type Handler struct {
	network *MockNetwork
}

func NewHandler(network *MockNetwork) *Handler {
	return &Handler{network: network}
}

// Acknowledge handles a single payment acknowledgement request
func (h *Handler) Acknowledge(c *gin.Context) {
	var req AcknowledgeRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	log.Info().
		Int64("payment_id", req.PaymentID).
		Str("swift_code", req.SwiftCode).
		Msg("Received acknowledgement request")

	response := h.network.acknowledge(&req)

	statusCode := http.StatusOK
	if response.Status == StatusRejected {
		statusCode = http.StatusAccepted // 202: received but rejected by the network
	}

	c.JSON(statusCode, response)
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(c *gin.Context) {
	// Simulate 5% downtime
	if h.network.rng.Float64() < 0.05 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unavailable",
			"error":  "Network node temporarily unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Node:    h.network.node,
		Time:    time.Now(),
		AckRate: h.network.ackRate,
	})
}

// UpdateConfig allows changing the acknowledgement rate at runtime
func (h *Handler) UpdateConfig(c *gin.Context) {
	var config struct {
		AckRate *float64 `json:"ack_rate"`
	}

	if err := c.ShouldBindJSON(&config); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	if config.AckRate != nil {
		if *config.AckRate >= 0 && *config.AckRate <= 1.0 {
			h.network.ackRate = *config.AckRate
			log.Info().Float64("rate", *config.AckRate).Msg("Updated acknowledgement rate")
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message":  "Configuration updated",
		"ack_rate": h.network.ackRate,
	})
}

// SetupRouter configures all routes
func SetupRouter(handler *Handler) *gin.Engine {
	router := gin.Default()

	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Msg("Request processed")
	})

	v1 := router.Group("/api/v1")
	{
		v1.POST("/swift/acknowledge", handler.Acknowledge)
		v1.GET("/health", handler.HealthCheck)
		v1.PUT("/config", handler.UpdateConfig)
	}

	// The settler gateway probes /health at the root
	router.GET("/health", handler.HealthCheck)

	return router
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	port := getEnv("PORT", "8091")
	ackRate := getEnvFloat("ACK_RATE", 1)
	minDelay := getEnvDuration("MIN_DELAY", 100*time.Millisecond)
	maxDelay := getEnvDuration("MAX_DELAY", 1*time.Second)

	log.Info().
		Str("port", port).
		Float64("ack_rate", ackRate).
		Dur("min_delay", minDelay).
		Dur("max_delay", maxDelay).
		Msg("Starting Mock SWIFT Network")

	network := NewMockNetwork(ackRate, minDelay, maxDelay)
	handler := NewHandler(network)
	router := SetupRouter(handler)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		var f float64
		if _, err := fmt.Sscanf(value, "%f", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
