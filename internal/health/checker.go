// Package health runs periodic ledger audits and publishes the result as the
// gRPC health status of the ledger service.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/jmerrifield20/starregistry/internal/ledger"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultService is the gRPC health service name reported for the ledger.
const DefaultService = "starregistry.Ledger"

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	Service       string
}

// Auditor is the part of the ledger the checker needs.
type Auditor interface {
	Validate(ctx context.Context) []ledger.Fault
	Height(ctx context.Context) int
}

// MetricsRecordFunc is an optional callback invoked after every audit.
type MetricsRecordFunc func(height, faults int)

// HealthChecker audits the ledger on a fixed interval and flips the gRPC
// health status between SERVING and NOT_SERVING.
type HealthChecker struct {
	auditor   Auditor
	status    *health.Server
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger

	mu         sync.Mutex
	lastFaults []ledger.Fault
	checkedAt  time.Time
}

// New creates a new HealthChecker. status may be shared with a gRPC server.
func New(auditor Auditor, status *health.Server, cfg Config, logger *zap.Logger) *HealthChecker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.Service == "" {
		cfg.Service = DefaultService
	}
	if status == nil {
		status = health.NewServer()
	}
	return &HealthChecker{
		auditor: auditor,
		status:  status,
		cfg:     cfg,
		logger:  logger,
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (h *HealthChecker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Server returns the gRPC health server the checker reports into.
func (h *HealthChecker) Server() *health.Server {
	return h.status
}

// Start runs an audit immediately and then on every tick until ctx is done.
func (h *HealthChecker) Start(ctx context.Context) {
	h.Check(ctx)

	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check audits the ledger once, updates the health status and returns the
// faults found.
func (h *HealthChecker) Check(ctx context.Context) []ledger.Fault {
	faults := h.auditor.Validate(ctx)
	height := h.auditor.Height(ctx)

	h.mu.Lock()
	prev := len(h.lastFaults)
	h.lastFaults = faults
	h.checkedAt = time.Now().UTC()
	h.mu.Unlock()

	if len(faults) == 0 {
		h.status.SetServingStatus(h.cfg.Service, healthpb.HealthCheckResponse_SERVING)
		if prev > 0 {
			h.logger.Info("health: ledger intact again", zap.Int("height", height))
		}
	} else {
		h.status.SetServingStatus(h.cfg.Service, healthpb.HealthCheckResponse_NOT_SERVING)
		if prev == 0 {
			h.logger.Warn("health: ledger integrity faults",
				zap.Int("height", height),
				zap.Int("faults", len(faults)),
				zap.Error(faults[0]),
			)
		}
	}

	if h.onMetrics != nil {
		h.onMetrics(height, len(faults))
	}
	return faults
}

// LastFaults returns the result of the most recent audit and when it ran.
func (h *HealthChecker) LastFaults() ([]ledger.Fault, time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastFaults, h.checkedAt
}
