package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/gravity-bridge/internal/pkg/sweeper"
)

// SweepRunner runs one pass over pending submissions.
type SweepRunner interface {
	RunOnce(ctx context.Context) (sweeper.Summary, error)
}

// Manager owns the job queue workers and the periodic sweep.
type Manager struct {
	queue         *Queue
	sweeper       SweepRunner
	sweepInterval time.Duration
	sweepTimeout  time.Duration
	sweepTicker   *time.Ticker
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
}

// NewManager creates a manager. queue may be nil when jobs run inline.
func NewManager(queue *Queue, runner SweepRunner, sweepInterval time.Duration) *Manager {
	if sweepInterval <= 0 {
		sweepInterval = sweeper.DefaultInterval
	}
	return &Manager{
		queue:         queue,
		sweeper:       runner,
		sweepInterval: sweepInterval,
		sweepTimeout:  5 * time.Minute,
		stopCh:        make(chan struct{}),
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	if m.queue != nil {
		m.queue.Start()
	}

	m.sweepTicker = time.NewTicker(m.sweepInterval)
	m.wg.Add(1)
	go m.sweepWorker(m.stopCh)

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}

	close(m.stopCh)
	m.running = false

	m.wg.Wait()

	if m.queue != nil {
		m.queue.Stop()
	}

	log.Info("[JobQueue Manager] Stopped successfully")
}

// sweepWorker runs the retry sweep on every tick
func (m *Manager) sweepWorker(stopCh chan struct{}) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started sweep worker (interval: %s)", m.sweepInterval)

	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Sweep worker stopping")
			return
		case <-m.sweepTicker.C:
			if _, err := m.RunSweepOnce(); err != nil {
				log.Errorf("[JobQueue Manager] Sweep error: %v", err)
			}
		}
	}
}

// RunSweepOnce runs a single sweep bounded by the manager timeout.
func (m *Manager) RunSweepOnce() (sweeper.Summary, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.sweepTimeout)
	defer cancel()
	return m.sweeper.RunOnce(ctx)
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
