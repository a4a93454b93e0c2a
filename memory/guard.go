package memory

import "sync"

// Guard serializes mutations per record and tracks the store-wide
// sweep flag. Locking record A never blocks operations on record B;
// the only store-wide exclusion is between two sweeps.
//
// Lock entries are refcounted and removed when the last holder
// releases, so the lock table stays proportional to in-flight
// operations rather than store size.
type Guard struct {
	mu    sync.Mutex
	locks map[string]*recordLock

	sweepMu  sync.Mutex
	sweeping bool
}

type recordLock struct {
	mu   sync.Mutex
	refs int
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{locks: make(map[string]*recordLock)}
}

// LockRecord acquires the exclusive lock for the given record id and
// returns the release function. All mutations to a record (store,
// retrieval boost, forget, per-record decay) must run between the two.
func (g *Guard) LockRecord(id string) func() {
	g.mu.Lock()
	rl, ok := g.locks[id]
	if !ok {
		rl = &recordLock{}
		g.locks[id] = rl
	}
	rl.refs++
	g.mu.Unlock()

	rl.mu.Lock()

	return func() {
		rl.mu.Unlock()

		g.mu.Lock()
		rl.refs--
		if rl.refs == 0 {
			delete(g.locks, id)
		}
		g.mu.Unlock()
	}
}

// TryBeginSweep attempts to claim the store-wide sweep flag. It
// returns false if a sweep is already in flight; at most one sweep
// runs at a time regardless of trigger (timer or on-demand).
func (g *Guard) TryBeginSweep() bool {
	g.sweepMu.Lock()
	defer g.sweepMu.Unlock()
	if g.sweeping {
		return false
	}
	g.sweeping = true
	return true
}

// EndSweep releases the sweep flag.
func (g *Guard) EndSweep() {
	g.sweepMu.Lock()
	g.sweeping = false
	g.sweepMu.Unlock()
}

// SweepRunning reports whether a sweep currently holds the flag.
func (g *Guard) SweepRunning() bool {
	g.sweepMu.Lock()
	defer g.sweepMu.Unlock()
	return g.sweeping
}
