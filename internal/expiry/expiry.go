// Package expiry implements the registry's health-driven reclamation
// loop: a single dedicated worker that periodically evicts resources
// whose health has gone stale, cascading through parent/child
// relationships via the store's own Erase semantics.
//
// The loop's wake scheduling is grounded on the teacher's
// tracker.ConnectionTracker (a ticker-driven staleness sweep), adapted
// to additionally wait on the store's expiration condition variable so
// a fresh heartbeat can shorten the next sleep instead of waiting out a
// full fixed interval.
package expiry

import (
	"sync"
	"time"

	"github.com/streamspace/nmos-registry/internal/logger"
	"github.com/streamspace/nmos-registry/internal/store"
	"github.com/streamspace/nmos-registry/internal/tai"
)

// DefaultMaxSleep bounds how long the loop ever sleeps between sweeps,
// even with no resources in the store.
const DefaultMaxSleep = time.Second

// Loop is the expiration/heartbeat reclamation worker.
type Loop struct {
	store        *store.Store
	gcWindowSec  int64
	maxSleep     time.Duration
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New builds a Loop. gcWindowSec is the registration_expiry_interval
// setting: a resource is stale once health + gcWindowSec < now.
func New(s *store.Store, gcWindowSec int64) *Loop {
	return &Loop{
		store:       s,
		gcWindowSec: gcWindowSec,
		maxSleep:    DefaultMaxSleep,
		shutdown:    make(chan struct{}),
	}
}

// Stop signals the loop to exit and wakes it if it is currently
// sleeping.
func (l *Loop) Stop() {
	l.shutdownOnce.Do(func() {
		close(l.shutdown)
		cond := l.store.ExpirationCond()
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
}

// Run executes the reclamation loop until Stop is called. It is meant
// to be run in its own goroutine for the lifetime of the process.
func (l *Loop) Run() {
	log := logger.Expiry()
	for {
		select {
		case <-l.shutdown:
			return
		default:
		}

		cutoff := tai.HealthNow() - l.gcWindowSec
		deleted := l.store.EraseExpired(cutoff)
		for _, r := range deleted {
			log.Info().Str("id", r.ID).Str("type", string(r.Type)).Msg("resource expired")
		}

		select {
		case <-l.shutdown:
			return
		default:
		}
		l.waitFor(l.nextWakeDuration())
	}
}

// nextWakeDuration computes the sooner of (a) the time until the
// earliest-health resource next crosses the expiry cutoff, or (b) the
// loop's maximum sleep.
func (l *Loop) nextWakeDuration() time.Duration {
	health, ok := l.store.EarliestHealth()
	if !ok {
		return l.maxSleep
	}
	nextExpirySec := health + l.gcWindowSec - tai.HealthNow()
	if nextExpirySec <= 0 {
		return 0
	}
	d := time.Duration(nextExpirySec) * time.Second
	if d > l.maxSleep {
		return l.maxSleep
	}
	return d
}

// waitFor blocks on the store's expiration condition variable for up to
// d, returning early if the condition is signaled (a fresh heartbeat, a
// deletion, or Stop).
func (l *Loop) waitFor(d time.Duration) {
	cond := l.store.ExpirationCond()
	cond.L.Lock()
	defer cond.L.Unlock()

	timer := time.AfterFunc(d, func() {
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
	defer timer.Stop()

	cond.Wait()
}
