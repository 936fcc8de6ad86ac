package subscription

import (
	"encoding/json"
	"time"

	"github.com/streamspace/nmos-registry/internal/models"
	"github.com/streamspace/nmos-registry/internal/tai"
)

// maxFanoutSleep bounds how long the fanout worker ever sleeps with no
// store activity, so per-session pacing timers still get rechecked.
const maxFanoutSleep = 200 * time.Millisecond

func grainJSON(g *models.Grain) ([]byte, error) { return json.Marshal(g) }

// Run executes the fanout worker until Stop is called: on every wake it
// drains newly appended store events into each subscription's matching
// sessions, then flushes any session whose pacing window has elapsed.
func (m *Manager) Run() {
	for {
		select {
		case <-m.shutdown:
			return
		default:
		}

		m.drainEvents()
		m.flushDue()

		m.waitFor(maxFanoutSleep)
	}
}

func (m *Manager) entries() []*entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entry, 0, len(m.byID))
	for _, e := range m.byID {
		out = append(out, e)
	}
	return out
}

// drainEvents applies every unseen store event to each subscription's
// filter, classifying it per the addition/deletion/modification/no-event
// truth table, and appends matching changes to every attached session's
// pending buffer.
func (m *Manager) drainEvents() {
	for _, e := range m.entries() {
		m.mu.Lock()
		since := e.lastSeenSeq
		m.mu.Unlock()

		events := m.store.EventsSince(since)
		if len(events) == 0 {
			continue
		}

		var changes []models.Change
		maxSeq := since
		for _, ev := range events {
			if ev.Seq > maxSeq {
				maxSeq = ev.Seq
			}
			if !e.matches(ev.Type) {
				continue
			}
			var preData, postData map[string]interface{}
			var preMatch, postMatch bool
			if ev.Pre != nil {
				preData = ev.Pre.Data
				preMatch = e.filter.Matches(preData)
			}
			if ev.Post != nil {
				postData = ev.Post.Data
				postMatch = e.filter.Matches(postData)
			}
			switch models.ClassifyChange(preMatch, postMatch, preData, postData) {
			case models.ChangeAddition:
				changes = append(changes, models.Change{Path: ev.ID, Post: postData})
			case models.ChangeDeletion:
				changes = append(changes, models.Change{Path: ev.ID, Pre: preData})
			case models.ChangeModification:
				changes = append(changes, models.Change{Path: ev.ID, Pre: preData, Post: postData})
			}
		}

		m.mu.Lock()
		e.lastSeenSeq = maxSeq
		if len(changes) > 0 {
			for sess := range e.sessions {
				sess.pending = append(sess.pending, changes...)
			}
		}
		m.mu.Unlock()
	}
}

// flushDue sends a grain to every session whose pacing limiter currently
// allows a send and which has pending changes.
func (m *Manager) flushDue() {
	for _, e := range m.entries() {
		m.mu.Lock()
		sessions := make([]*Session, 0, len(e.sessions))
		for s := range e.sessions {
			sessions = append(sessions, s)
		}
		m.mu.Unlock()

		for _, sess := range sessions {
			m.mu.Lock()
			if len(sess.pending) == 0 || !sess.limiter.Allow() {
				m.mu.Unlock()
				continue
			}
			changes := sess.pending
			sess.pending = nil
			m.mu.Unlock()

			now := tai.Now()
			grain := models.NewGrain(e.sub.ResourcePath, now.String(), changes)
			sess.lastSendTAI = now
			sess.enqueue(grain)
		}
	}
}

func (m *Manager) waitFor(d time.Duration) {
	cond := m.store.EventsCond()
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
