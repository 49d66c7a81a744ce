package services

import (
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// TurnTimers is the timing boundary the session machine talks to.
// Production uses the gocron-backed TurnScheduler; tests substitute a
// manual implementation and fire deadlines by hand.
type TurnTimers interface {
	// Arm schedules fire() at the given time under the key, replacing
	// any timer already armed for that key.
	Arm(key string, at time.Time, fire func())
	// Disarm cancels the timer for the key if one is armed.
	Disarm(key string)
}

// TurnScheduler drives per-session one-shot timers on a gocron
// scheduler. The session machine re-checks its turn epoch when a timer
// fires, so a raced or stale expiry is harmless here.
type TurnScheduler struct {
	sched gocron.Scheduler
	mu    sync.Mutex
	jobs  map[string]uuid.UUID
}

// NewTurnScheduler starts the underlying scheduler.
func NewTurnScheduler() (*TurnScheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	sched.Start()
	return &TurnScheduler{sched: sched, jobs: make(map[string]uuid.UUID)}, nil
}

// Arm schedules a one-shot job, replacing any previous one for the key.
func (t *TurnScheduler) Arm(key string, at time.Time, fire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.jobs[key]; ok {
		if err := t.sched.RemoveJob(id); err != nil {
			log.Printf("[TurnScheduler] Failed to replace timer for %s: %v", key, err)
		}
		delete(t.jobs, key)
	}
	job, err := t.sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(at)),
		gocron.NewTask(func() {
			t.mu.Lock()
			delete(t.jobs, key)
			t.mu.Unlock()
			fire()
		}),
	)
	if err != nil {
		log.Printf("[TurnScheduler] Failed to arm timer for %s: %v", key, err)
		return
	}
	t.jobs[key] = job.ID()
}

// Disarm drops the timer for the key. Safe to call when none is armed.
func (t *TurnScheduler) Disarm(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.jobs[key]
	if !ok {
		return
	}
	if err := t.sched.RemoveJob(id); err != nil {
		log.Printf("[TurnScheduler] Failed to disarm timer for %s: %v", key, err)
	}
	delete(t.jobs, key)
}

// Every registers a recurring task on the same scheduler (expiry and
// cleanup sweeps).
func (t *TurnScheduler) Every(interval time.Duration, task func()) {
	if _, err := t.sched.NewJob(gocron.DurationJob(interval), gocron.NewTask(task)); err != nil {
		log.Printf("[TurnScheduler] Failed to register recurring job: %v", err)
	}
}

// Shutdown stops the scheduler and all pending timers.
func (t *TurnScheduler) Shutdown() {
	if err := t.sched.Shutdown(); err != nil {
		log.Printf("[TurnScheduler] Shutdown error: %v", err)
	}
}
