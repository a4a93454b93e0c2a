package memory

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ebbing-ai/memorybank/config"
)

// SchedulerState is the scheduler's lifecycle state.
type SchedulerState int

const (
	// SchedulerIdle means no sweep is in flight.
	SchedulerIdle SchedulerState = iota
	// SchedulerRunning means a sweep is in flight.
	SchedulerRunning
	// SchedulerFailed means the last sweep finished with per-record
	// errors. The next sweep runs normally.
	SchedulerFailed
)

func (s SchedulerState) String() string {
	switch s {
	case SchedulerIdle:
		return "idle"
	case SchedulerRunning:
		return "running"
	case SchedulerFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SweepKind distinguishes the two timer-driven sweeps.
type SweepKind string

const (
	// SweepDecay is the short-interval decay pass.
	SweepDecay SweepKind = "decay"
	// SweepMaintenance is the long-interval pass: decay plus
	// store-wide consistency checks.
	SweepMaintenance SweepKind = "maintenance"
)

// SweepSummary reports what one sweep did. A sweep never aborts the
// process: per-record failures are counted here and skipped.
type SweepSummary struct {
	Kind      SweepKind     `json:"kind"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Examined  int           `json:"examined"`
	Decayed   int           `json:"decayed"`
	Deleted   int           `json:"deleted"`
	Errored   int           `json:"errored"`
	Repaired  int           `json:"repaired,omitempty"`
	Cancelled bool          `json:"cancelled,omitempty"`
}

// SchedulerStatus is the externally visible scheduler state.
type SchedulerStatus struct {
	State           string        `json:"state"`
	LastSweep       *SweepSummary `json:"last_sweep,omitempty"`
	NextDecay       time.Time     `json:"next_decay,omitempty"`
	NextMaintenance time.Time     `json:"next_maintenance,omitempty"`
}

// sweepPageSize bounds how many records a sweep holds in memory at once.
const sweepPageSize = 200

// Scheduler runs the recurring forgetting sweeps. It mutates records
// only through the Engine's decay path, so it shares the same
// per-record locks as live requests; the only store-wide exclusion is
// that two sweeps never overlap.
type Scheduler struct {
	engine *Engine
	cfg    *config.Retention

	mu      sync.Mutex
	state   SchedulerState
	last    *SweepSummary
	nextDec time.Time
	nextMnt time.Time
	started bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewScheduler creates a Scheduler over the given engine.
func NewScheduler(engine *Engine, cfg *config.Retention) *Scheduler {
	return &Scheduler{
		engine: engine,
		cfg:    cfg,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the background sweep loop: one decay sweep shortly
// after startup, then decay sweeps every SweepInterval and maintenance
// sweeps every MaintenanceInterval. Start is idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.nextDec = time.Now().Add(s.cfg.SweepInterval)
	s.nextMnt = time.Now().Add(s.cfg.MaintenanceInterval)
	s.mu.Unlock()

	go s.run()
	log.Printf("[SWEEP] Scheduler started (decay every %s, maintenance every %s)",
		s.cfg.SweepInterval, s.cfg.MaintenanceInterval)
}

// Stop cancels the loop. An in-flight sweep finishes its current
// record and then stops; Stop returns once the loop has exited.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopCh)
	<-s.doneCh
	log.Printf("[SWEEP] Scheduler stopped")
}

func (s *Scheduler) run() {
	defer close(s.doneCh)

	// Startup pass so a store that sat cold still decays promptly.
	s.timerSweep(SweepDecay)

	decay := time.NewTicker(s.cfg.SweepInterval)
	defer decay.Stop()
	maintenance := time.NewTicker(s.cfg.MaintenanceInterval)
	defer maintenance.Stop()

	for {
		select {
		case <-decay.C:
			s.mu.Lock()
			s.nextDec = time.Now().Add(s.cfg.SweepInterval)
			s.mu.Unlock()
			s.timerSweep(SweepDecay)
		case <-maintenance.C:
			s.mu.Lock()
			s.nextMnt = time.Now().Add(s.cfg.MaintenanceInterval)
			s.mu.Unlock()
			s.timerSweep(SweepMaintenance)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) timerSweep(kind SweepKind) {
	summary, err := s.RunNow(context.Background(), kind)
	if errors.Is(err, ErrSweepRunning) {
		log.Printf("[SWEEP] Skipping %s sweep: already running", kind)
		return
	}
	if err != nil {
		log.Printf("[SWEEP] %s sweep error: %v", kind, err)
		return
	}
	log.Printf("[SWEEP] %s sweep: examined=%d decayed=%d deleted=%d errored=%d in %s",
		summary.Kind, summary.Examined, summary.Decayed, summary.Deleted, summary.Errored, summary.Duration)
}

// RunNow triggers a sweep outside the timer cadence (the on-demand
// "run forgetting curve" operation). If a sweep is already in flight
// it is a no-op returning ErrSweepRunning, never a second overlapping
// sweep.
func (s *Scheduler) RunNow(ctx context.Context, kind SweepKind) (SweepSummary, error) {
	if !s.engine.Guard().TryBeginSweep() {
		return SweepSummary{}, ErrSweepRunning
	}
	defer s.engine.Guard().EndSweep()

	s.setState(SchedulerRunning)

	summary := s.sweep(ctx, kind)

	if summary.Errored > 0 {
		s.setState(SchedulerFailed)
	} else {
		s.setState(SchedulerIdle)
	}

	s.mu.Lock()
	s.last = &summary
	s.mu.Unlock()

	return summary, nil
}

// sweep enumerates every record in pages and applies decay one record
// at a time. A record failing is logged, counted and skipped; the
// sweep keeps going. Cancellation is cooperative at per-record
// granularity: the current record always finishes.
func (s *Scheduler) sweep(ctx context.Context, kind SweepKind) SweepSummary {
	start := time.Now()
	summary := SweepSummary{Kind: kind, StartedAt: start}

	cursor := ""
	for {
		page, next, err := s.engine.index.All(ctx, cursor, sweepPageSize)
		if err != nil {
			log.Printf("[SWEEP] Enumeration failed at cursor %q: %v", cursor, err)
			summary.Errored++
			break
		}

		for _, rec := range page {
			if s.cancelled(ctx) {
				summary.Cancelled = true
				summary.Duration = time.Since(start)
				return summary
			}

			summary.Examined++

			if kind == SweepMaintenance {
				repaired, err := s.engine.repairOne(ctx, rec.ID, start)
				if err != nil {
					log.Printf("[SWEEP] Repair %s failed: %v", rec.ID, err)
					summary.Errored++
					continue
				}
				if repaired {
					summary.Repaired++
				}
			}

			outcome, err := s.engine.decayOne(ctx, rec.ID, start)
			if err != nil {
				log.Printf("[SWEEP] Decay %s failed: %v", rec.ID, err)
				summary.Errored++
				continue
			}
			switch outcome {
			case decayUpdated:
				summary.Decayed++
			case decayDeleted:
				summary.Deleted++
			}
		}

		if next == "" {
			break
		}
		cursor = next
	}

	summary.Duration = time.Since(start)
	return summary
}

func (s *Scheduler) cancelled(ctx context.Context) bool {
	select {
	case <-s.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (s *Scheduler) setState(state SchedulerState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Status reports the scheduler's current state, the last sweep summary
// and the next timer-driven runs.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := SchedulerStatus{
		State:     s.state.String(),
		LastSweep: s.last,
	}
	if s.started {
		status.NextDecay = s.nextDec
		status.NextMaintenance = s.nextMnt
	}
	return status
}
