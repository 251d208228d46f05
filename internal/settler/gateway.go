package settler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/atlasbank/swift-portal/pkg/logger"
)

// AckStatus is the acknowledgement state reported by the SWIFT endpoint.
type AckStatus string

const (
	StatusAcknowledged AckStatus = "acknowledged"
	StatusRejected     AckStatus = "rejected"
)

var ErrNoAvailableEndpoints = errors.New("no available swift endpoints")

// AckRequest is the payload sent to the SWIFT acknowledgement endpoint
// for a submitted payment.
type AckRequest struct {
	PaymentID    int64  `json:"payment_id"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	PayeeAccount string `json:"payee_account"`
	SwiftCode    string `json:"swift_code"`
}

type AckResponse struct {
	PaymentID      int64     `json:"payment_id"`
	Status         AckStatus `json:"status"`
	Reference      string    `json:"reference"`
	AcknowledgedAt time.Time `json:"acknowledged_at"`
}

type endpoint struct {
	name             string
	url              string
	client           *fasthttp.Client
	consecutiveFails atomic.Int32
	downUntil        atomic.Int64
}

func (e *endpoint) available() bool {
	return time.Now().Unix() > e.downUntil.Load()
}

type GatewayConfig struct {
	PrimaryURL string
	BackupURL  string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	MaxConns   int

	// FailThreshold consecutive failures take an endpoint out of
	// rotation for Cooldown.
	FailThreshold int
	Cooldown      time.Duration
}

func DefaultGatewayConfig(primaryURL, backupURL string) GatewayConfig {
	return GatewayConfig{
		PrimaryURL:    primaryURL,
		BackupURL:     backupURL,
		Timeout:       5 * time.Second,
		MaxRetries:    2,
		RetryDelay:    200 * time.Millisecond,
		MaxConns:      512,
		FailThreshold: 5,
		Cooldown:      30 * time.Second,
	}
}

// Gateway talks to the SWIFT acknowledgement service. It prefers the
// primary endpoint and fails over to the backup while the primary is
// cooling down.
type Gateway struct {
	config    GatewayConfig
	endpoints []*endpoint
}

func NewGateway(config GatewayConfig) (*Gateway, error) {
	if config.PrimaryURL == "" {
		return nil, errors.New("primary endpoint url is required")
	}

	g := &Gateway{config: config}

	add := func(name, url string) {
		g.endpoints = append(g.endpoints, &endpoint{
			name: name,
			url:  url,
			client: &fasthttp.Client{
				MaxConnsPerHost:     config.MaxConns,
				ReadTimeout:         config.Timeout,
				WriteTimeout:        config.Timeout,
				MaxIdleConnDuration: 60 * time.Second,
			},
		})
		logger.Info("SWIFT endpoint initialized", "name", name, "url", url)
	}

	add("primary", config.PrimaryURL)
	if config.BackupURL != "" {
		add("backup", config.BackupURL)
	}

	return g, nil
}

// selectEndpoint returns the first endpoint not in cooldown, in
// declaration order, so the primary always wins when healthy.
func (g *Gateway) selectEndpoint() (*endpoint, error) {
	for _, ep := range g.endpoints {
		if ep.available() {
			return ep, nil
		}
	}
	return nil, ErrNoAvailableEndpoints
}

// Acknowledge sends a submitted payment for acknowledgement, retrying
// across endpoints on transport failure.
func (g *Gateway) Acknowledge(ctx context.Context, req *AckRequest) (*AckResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(g.config.RetryDelay):
			}
		}

		ep, err := g.selectEndpoint()
		if err != nil {
			lastErr = err
			continue
		}

		startTime := time.Now()
		response, err := g.doRequest(ctx, ep, "POST", "/api/v1/swift/acknowledge", reqBody)
		latency := time.Since(startTime).Milliseconds()

		if err != nil {
			g.recordFailure(ep)
			logger.Warn("Acknowledgement request failed, retrying", "error", err, "endpoint", ep.name, "attempt", attempt+1)
			lastErr = err
			continue
		}

		ep.consecutiveFails.Store(0)

		var resp AckResponse
		if err := json.Unmarshal(response, &resp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}

		logger.Info("Payment acknowledged by SWIFT endpoint", "payment_id", req.PaymentID, "status", string(resp.Status), "endpoint", ep.name, "latency_ms", latency)

		return &resp, nil
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", g.config.MaxRetries+1, lastErr)
}

// Healthy reports whether at least one endpoint answers its health check.
func (g *Gateway) Healthy(ctx context.Context) bool {
	for _, ep := range g.endpoints {
		if !ep.available() {
			continue
		}
		response, err := g.doRequest(ctx, ep, "GET", "/health", nil)
		if err != nil {
			continue
		}
		var health struct {
			Status string `json:"status"`
		}
		if err := json.Unmarshal(response, &health); err == nil && health.Status == "ok" {
			return true
		}
	}
	return false
}

func (g *Gateway) doRequest(ctx context.Context, ep *endpoint, method, path string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(ep.url + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")

	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(g.config.Timeout)
	}

	if err := ep.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	statusCode := resp.StatusCode()
	if statusCode != fasthttp.StatusOK && statusCode != fasthttp.StatusAccepted {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", statusCode, resp.Body())
	}

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())

	return result, nil
}

func (g *Gateway) recordFailure(ep *endpoint) {
	fails := ep.consecutiveFails.Add(1)
	if int(fails) >= g.config.FailThreshold {
		until := time.Now().Add(g.config.Cooldown).Unix()
		ep.downUntil.Store(until)
		ep.consecutiveFails.Store(0)

		logger.Warn("SWIFT endpoint taken out of rotation", "endpoint", ep.name, "consecutive_fails", fails, "cooldown", g.config.Cooldown)
	}
}
