package settler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/atlasbank/swift-portal/internal/config"
	"github.com/atlasbank/swift-portal/internal/model"
	"github.com/atlasbank/swift-portal/internal/queue"
	"github.com/atlasbank/swift-portal/pkg/logger"
	"github.com/atlasbank/swift-portal/pkg/redis"
	"github.com/atlasbank/swift-portal/pkg/worker"
)

const ProcessingTimeout = time.Second * 5
const HealthInterval = time.Second * 30
const ShutdownTimeout = time.Minute

// SweepInterval controls how often stuck submitted payments are
// republished. A payment counts as stuck once it sat in submitted for
// SweepStuckAfter without a settlement job completing it.
const SweepInterval = time.Minute
const SweepStuckAfter = 2 * time.Minute

const consumerInstances = 4
const workerCount = 32

// Service consumes settlement jobs and drives submitted payments to a
// terminal status.
type Service struct {
	adapter     redis.RedisAdapter
	queues      []*queue.Queue
	processor   Processor
	paymentRepo PaymentRepository
	metrics     *ServiceMetrics
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	worker      *worker.WorkerManager
}

// Processor handles a single queue message.
type Processor interface {
	Process(ctx context.Context, message *queue.Message) error
	GetType() string
}

func NewService(redisAdapter redis.RedisAdapter, paymentRepo PaymentRepository) (*Service, error) {
	ctx, cancel := context.WithCancel(context.Background())
	service := &Service{
		adapter:     redisAdapter,
		queues:      make([]*queue.Queue, 0),
		paymentRepo: paymentRepo,
		metrics:     NewServiceMetrics(),
		ctx:         ctx,
		cancel:      cancel,
		worker:      worker.NewWorkerManager(10_000, workerCount, nil),
	}
	return service, nil
}

// RegisterProcessor sets the processor that settles each job.
func (s *Service) RegisterProcessor(processor Processor) {
	s.processor = processor
	logger.Info("Registered processor", "type", processor.GetType())
}

// Start launches the worker pool, the queue consumers and the
// background sweepers.
func (s *Service) Start() error {
	logger.Info("Starting Settlement Service...")

	s.worker.SetWorker(s.workerHandler)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.worker.Start(); err != nil {
			logger.Error("Worker manager stopped", "error", err)
		}
	}()

	for i := 0; i < consumerInstances; i++ {
		queueConfig := queue.QueueConfig{
			Name:              config.Get().QueueName,
			ConsumerGroup:     config.Get().QueueConsumerGroup,
			ConsumerName:      config.Get().QueueConsumerName,
			MaxRetries:        config.Get().QueueMaxRetries,
			VisibilityTimeout: config.Get().QueueVisibilityTimeout,
			PollInterval:      config.Get().QueuePollInterval,
			BatchSize:         config.Get().QueueBatchSize,
			MaxLen:            config.Get().QueueMaxLen,
			EnableDLQ:         config.Get().QueueEnableDLQ,
		}
		queueConfig.ConsumerName = fmt.Sprintf("%s-instance-%d", queueConfig.ConsumerName, i)

		q, err := queue.NewQueue(s.adapter, queueConfig)
		if err != nil {
			return fmt.Errorf("failed to create queue %d: %w", i, err)
		}

		if err := q.Consume(s.messageHandler); err != nil {
			return fmt.Errorf("failed to start consumer %d: %w", i, err)
		}

		s.queues = append(s.queues, q)
		logger.Info("Started consumer instance", "instance", i)
	}

	s.wg.Add(3)
	go s.metricsReporter()
	go s.healthChecker()
	go s.pendingSweeper()

	logger.Info("Settlement Service started", "consumers", len(s.queues), "workers", workerCount)
	return nil
}

// pendingSweeper republishes payments stuck in submitted. Covers jobs
// whose enqueue failed at submit time as well as jobs lost to a
// consumer crash after the DLQ gave up on them.
func (s *Service) pendingSweeper() {
	defer s.wg.Done()

	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepStuckPayments()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Service) sweepStuckPayments() {
	if len(s.queues) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	payments, _, err := s.paymentRepo.List(ctx, model.PaymentFilter{
		Statuses: []model.PaymentStatus{model.PaymentStatusSubmitted},
		Limit:    200,
	})
	if err != nil {
		logger.Warn("Pending sweep query failed", "error", err)
		return
	}

	cutoff := time.Now().Add(-SweepStuckAfter)
	republished := 0

	for _, p := range payments {
		if p.SubmittedAt == nil || p.SubmittedAt.After(cutoff) {
			continue
		}

		job := queue.SettlementJob{PaymentID: p.ID}
		if _, err := s.queues[0].PublishJSON(ctx, job, map[string]string{"source": "sweep"}); err != nil {
			logger.Warn("Failed to republish stuck payment", "payment_id", p.ID, "error", err)
			continue
		}
		republished++
	}

	if republished > 0 {
		logger.Info("Pending sweep republished stuck payments", "count", republished)
	}
}

func (s *Service) metricsReporter() {
	defer s.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.reportMetrics()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Service) reportMetrics() {
	stats := s.metrics.GetStats()

	logger.Info("=== Settlement Metrics ===")
	logger.Info("Metrics", "total_settled", stats["total_settled"], "total_failed", stats["total_failed"], "rate_per_second", stats["rate_per_second"], "avg_duration_ms", stats["avg_duration_ms"], "uptime_seconds", stats["uptime_seconds"])

	for i, q := range s.queues {
		if length, err := q.Len(); err == nil {
			logger.Info("Queue stats", "queue", i, "length", length)
		}
	}
}

func (s *Service) healthChecker() {
	defer s.wg.Done()

	ticker := time.NewTicker(HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.performHealthCheck()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Service) performHealthCheck() {
	if err := s.adapter.Client().Ping(context.Background()).Err(); err != nil {
		logger.Error("HEALTH CHECK FAILED: Redis connection error", "error", err)
		return
	}

	for i, q := range s.queues {
		length, err := q.Len()
		if err != nil {
			logger.Warn("HEALTH CHECK WARNING: Queue length unavailable", "queue", i, "error", err)
			continue
		}

		if length > 10000 {
			logger.Warn("HEALTH CHECK WARNING: Queue has high lag", "queue", i, "length", length)
		}
	}

	logger.Info("HEALTH CHECK: OK - Service healthy")
}

// Stop gracefully stops the service.
func (s *Service) Stop() {
	logger.Info("Shutting down Settlement Service...")

	s.cancel()

	timeout := ShutdownTimeout
	stopChan := make(chan bool, len(s.queues))

	for i, q := range s.queues {
		go func(index int, queue *queue.Queue) {
			if err := queue.Stop(timeout); err != nil {
				logger.Error("Error stopping queue", "queue", index, "error", err)
			}
			stopChan <- true
		}(i, q)
	}

	for range s.queues {
		select {
		case <-stopChan:
		case <-time.After(timeout + 5*time.Second):
			logger.Warn("Timeout waiting for queues to stop")
		}
	}

	s.worker.Exit()

	s.wg.Wait()

	s.reportMetrics()

	logger.Info("Settlement Service stopped")
}

type jobResult struct {
	msg        *queue.Message
	resultChan chan error
	ctx        context.Context
}

// messageHandler receives messages from the queue and hands them to
// the worker pool, blocking until the worker reports a result.
func (s *Service) messageHandler(ctx context.Context, msg *queue.Message) error {
	resultChan := make(chan error, 1)

	msgCtx, cancel := context.WithTimeout(ctx, ProcessingTimeout+time.Second)
	defer cancel()

	job := &jobResult{
		msg:        msg,
		resultChan: resultChan,
		ctx:        msgCtx,
	}

	s.worker.Enqueue(job)

	select {
	case err := <-resultChan:
		return err
	case <-msgCtx.Done():
		return fmt.Errorf("timeout waiting for worker to settle payment: %w", msgCtx.Err())
	}
}

func (s *Service) workerHandler(workerIndex int, job interface{}) {
	jobRes, ok := job.(*jobResult)
	if !ok {
		logger.Error("Invalid job type in worker", "worker", workerIndex)
		return
	}

	msg := jobRes.msg
	start := time.Now()
	var resultErr error

	select {
	case <-jobRes.ctx.Done():
		logger.Warn("Job context cancelled before processing started", "worker", workerIndex)
		return
	default:
	}

	if s.processor == nil {
		logger.Info("No processor registered", "worker", workerIndex)
		s.metrics.RecordFailure()
		resultErr = nil // ACK, nothing will ever handle it
	} else {
		if err := s.processor.Process(jobRes.ctx, msg); err != nil {
			s.metrics.RecordFailure()
			logger.Error("Failed to settle payment", "worker", workerIndex, "error", err)
			resultErr = err
		} else {
			s.metrics.RecordSuccess(time.Since(start))
			resultErr = nil
		}
	}

	// Non-blocking: if messageHandler already timed out there is no
	// receiver on the channel.
	select {
	case jobRes.resultChan <- resultErr:
	case <-jobRes.ctx.Done():
		logger.Warn("Context cancelled while sending result, message handler timed out", "worker", workerIndex)
	}
}
