package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/scriptify-cm/event-qr-platform/pkg/logger"
)

// maxRoundsPerScan bounds how many full batches one tick drains
const maxRoundsPerScan = 10

// Expirer closes tickets whose reservation window has elapsed
type Expirer interface {
	ExpireDue(ctx context.Context, limit int) (int, error)
}

// ExpiryWorkerConfig contains configuration for the expiry worker
type ExpiryWorkerConfig struct {
	// ScanInterval is the interval between sweeps for stale tickets
	ScanInterval time.Duration
	// BatchSize is the number of tickets expired per round
	BatchSize int
}

// DefaultExpiryWorkerConfig returns default configuration
func DefaultExpiryWorkerConfig() *ExpiryWorkerConfig {
	return &ExpiryWorkerConfig{
		ScanInterval: 30 * time.Second,
		BatchSize:    100,
	}
}

// ExpiryWorker moves pending and otp_sent tickets past their window to expired
type ExpiryWorker struct {
	expirer Expirer
	config  *ExpiryWorkerConfig
	log     *logger.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	// Stats
	totalExpired     int64
	totalScans       int64
	lastScanTime     time.Time
	lastExpiredCount int
	lastError        string
}

// NewExpiryWorker creates a new expiry worker
func NewExpiryWorker(expirer Expirer, config *ExpiryWorkerConfig) *ExpiryWorker {
	defaults := DefaultExpiryWorkerConfig()
	if config == nil {
		config = defaults
	}
	if config.ScanInterval <= 0 {
		config.ScanInterval = defaults.ScanInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}

	return &ExpiryWorker{
		expirer: expirer,
		config:  config,
		log:     logger.Get().With(zap.String("component", "expiry-worker")),
		stopCh:  make(chan struct{}),
	}
}

// Start starts the expiry worker
func (w *ExpiryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("expiry worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting expiry worker",
		zap.Duration("interval", w.config.ScanInterval),
		zap.Int("batch_size", w.config.BatchSize),
	)

	w.wg.Add(1)
	go w.loop(ctx)

	return nil
}

// Stop stops the expiry worker and waits for the current sweep to finish
func (w *ExpiryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping expiry worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Expiry worker stopped")
}

func (w *ExpiryWorker) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	// Run immediately on start
	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps until a round comes back short of a full batch and returns the number expired
func (w *ExpiryWorker) RunOnce(ctx context.Context) int {
	total := 0
	var scanErr error
	for round := 0; round < maxRoundsPerScan; round++ {
		n, err := w.expirer.ExpireDue(ctx, w.config.BatchSize)
		total += n
		if err != nil {
			scanErr = err
			break
		}
		if n < w.config.BatchSize {
			break
		}
	}

	w.mu.Lock()
	w.totalScans++
	w.totalExpired += int64(total)
	w.lastScanTime = time.Now()
	w.lastExpiredCount = total
	w.lastError = ""
	if scanErr != nil {
		w.lastError = scanErr.Error()
	}
	w.mu.Unlock()

	switch {
	case scanErr != nil && !errors.Is(scanErr, context.Canceled):
		w.log.Error("Expiry sweep failed", zap.Int("expired", total), zap.Error(scanErr))
	case total > 0:
		w.log.Info("Expired stale tickets", zap.Int("expired", total))
	default:
		w.log.Debug("Expiry sweep found nothing due")
	}
	return total
}

// GetStats returns worker statistics
func (w *ExpiryWorker) GetStats() *ExpiryWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &ExpiryWorkerStats{
		IsRunning:        w.running,
		TotalExpired:     w.totalExpired,
		TotalScans:       w.totalScans,
		LastScanTime:     w.lastScanTime,
		LastExpiredCount: w.lastExpiredCount,
		LastError:        w.lastError,
	}
}

// ExpiryWorkerStats contains worker statistics
type ExpiryWorkerStats struct {
	IsRunning        bool      `json:"is_running"`
	TotalExpired     int64     `json:"total_expired"`
	TotalScans       int64     `json:"total_scans"`
	LastScanTime     time.Time `json:"last_scan_time"`
	LastExpiredCount int       `json:"last_expired_count"`
	LastError        string    `json:"last_error,omitempty"`
}
