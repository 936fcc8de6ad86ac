// Package store implements the registry's multi-indexed in-memory
// resource collection: fast lookup by id, ordered iteration by type,
// parent/child referential integrity, TAI strictly-increasing update
// stamps, and health-driven expiry.
//
// A single mutex guards the whole store. It does not cover the
// subscription registry or its per-session pending buffers, which
// internal/subscription guards with its own mutex. Two condition
// variables hang off the store's mutex:
// ExpirationCond wakes the GC loop on any health refresh or deletion,
// EventsCond wakes the subscription fanout on any resource mutation.
package store

import (
	"container/list"
	"sort"
	"sync"

	"github.com/streamspace/nmos-registry/internal/apierrors"
	"github.com/streamspace/nmos-registry/internal/models"
	"github.com/streamspace/nmos-registry/internal/tai"
)

// Event records one resource transition: Pre is the resource's state
// before the mutation (nil for a creation), Post its state after (nil
// for a deletion). Events are retained in an append-only log so that
// subscriptions which track a last-seen sequence number can replay
// everything they missed, including deletions, which are no longer
// present in the live index once processed.
type Event struct {
	Seq  int64
	Type models.Type
	ID   string
	Pre  *models.Resource
	Post *models.Resource
}

// Store is the resource collection described above.
type Store struct {
	mu             sync.Mutex
	expirationCond *sync.Cond
	eventsCond     *sync.Cond

	allowInvalidResources bool

	resources map[string]*models.Resource
	byType    map[models.Type]map[string]*models.Resource
	children  map[string]map[string]struct{}

	updatedOrder *list.List
	updatedElem  map[string]*list.Element

	latestUpdated tai.Timestamp

	events   []Event
	eventSeq int64
}

// New builds an empty Store. allowInvalidResources disables the
// parent-existence check on Insert, per the `allow_invalid_resources`
// setting.
func New(allowInvalidResources bool) *Store {
	s := &Store{
		allowInvalidResources: allowInvalidResources,
		resources:             make(map[string]*models.Resource),
		byType:                make(map[models.Type]map[string]*models.Resource),
		children:              make(map[string]map[string]struct{}),
		updatedOrder:          list.New(),
		updatedElem:           make(map[string]*list.Element),
	}
	s.expirationCond = sync.NewCond(&s.mu)
	s.eventsCond = sync.NewCond(&s.mu)
	return s
}

// Lock and Unlock expose the store's mutex so a collaborator can share
// its critical section. The subscription registry does not use them.
func (s *Store) Lock()   { s.mu.Lock() }
func (s *Store) Unlock() { s.mu.Unlock() }

// ExpirationCond is signaled after any health refresh or deletion.
func (s *Store) ExpirationCond() *sync.Cond { return s.expirationCond }

// EventsCond is signaled after any resource mutation observable by
// subscribers (insert, modify, erase).
func (s *Store) EventsCond() *sync.Cond { return s.eventsCond }

// nextUpdated assigns the next strictly-increasing update stamp. Caller
// must hold the lock.
func (s *Store) nextUpdated() tai.Timestamp {
	now := tai.Now()
	candidate := s.latestUpdated.AddNsec(1)
	next := candidate
	if now.After(candidate) {
		next = now
	}
	s.latestUpdated = next
	return next
}

func (s *Store) appendEvent(t models.Type, id string, pre, post *models.Resource) {
	s.eventSeq++
	s.events = append(s.events, Event{Seq: s.eventSeq, Type: t, ID: id, Pre: pre, Post: post})
}

// EventsSince returns every event with Seq > since, in order.
func (s *Store) EventsSince(since int64) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := sort.Search(len(s.events), func(i int) bool { return s.events[i].Seq > since })
	out := make([]Event, len(s.events)-idx)
	copy(out, s.events[idx:])
	return out
}

// LatestEventSeq returns the sequence number of the most recently
// appended event, usable as a subscription's initial watermark so it
// does not replay history older than its creation.
func (s *Store) LatestEventSeq() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.eventSeq
}

// TrimEventsBefore discards retained events with Seq <= floor, once no
// subscription can still need them. Safe to call periodically from the
// subscription manager.
func (s *Store) TrimEventsBefore(floor int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := sort.Search(len(s.events), func(i int) bool { return s.events[i].Seq > floor })
	s.events = append([]Event(nil), s.events[idx:]...)
}

func (s *Store) insertIndices(r *models.Resource) {
	s.resources[r.ID] = r
	if s.byType[r.Type] == nil {
		s.byType[r.Type] = make(map[string]*models.Resource)
	}
	s.byType[r.Type][r.ID] = r
	if parentType, parentID, ok := r.Parent(); ok {
		_ = parentType
		if s.children[parentID] == nil {
			s.children[parentID] = make(map[string]struct{})
		}
		s.children[parentID][r.ID] = struct{}{}
	}
	elem := s.updatedOrder.PushBack(r.ID)
	s.updatedElem[r.ID] = elem
}

func (s *Store) removeIndices(id string) {
	r, ok := s.resources[id]
	if !ok {
		return
	}
	delete(s.resources, id)
	delete(s.byType[r.Type], id)
	if parentType, parentID, ok := r.Parent(); ok {
		_ = parentType
		delete(s.children[parentID], id)
	}
	delete(s.children, id)
	if elem, ok := s.updatedElem[id]; ok {
		s.updatedOrder.Remove(elem)
		delete(s.updatedElem, id)
	}
}

func (s *Store) touchUpdatedOrder(id string) {
	if elem, ok := s.updatedElem[id]; ok {
		s.updatedOrder.Remove(elem)
	}
	s.updatedElem[id] = s.updatedOrder.PushBack(id)
}

// Insert adds a newly-created resource. It fails with DuplicateId if
// the id is already present, or ParentMissing if the resource declares
// a parent reference that doesn't exist and allow_invalid_resources is
// false. On success, Created/Updated/Health and data.version are
// assigned by the store; the returned Resource is a private copy.
func (s *Store) Insert(r *models.Resource) (*models.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.resources[r.ID]; exists {
		return nil, apierrors.DuplicateID(r.ID)
	}
	if _, parentID, ok := r.Parent(); ok && !s.allowInvalidResources {
		if _, exists := s.resources[parentID]; !exists {
			return nil, apierrors.ParentMissing(parentID)
		}
	}

	now := s.nextUpdated()
	stored := r.Clone()
	stored.Created = now
	stored.Updated = now
	stored.Health = tai.HealthNow()
	stored.SetVersion()

	s.insertIndices(stored)
	s.appendEvent(stored.Type, stored.ID, nil, stored.Clone())
	s.eventsCond.Signal()
	s.expirationCond.Signal()

	return stored.Clone(), nil
}

// Find returns a copy of the resource with the given id, if present.
func (s *Store) Find(id string) (*models.Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[id]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// IterateByType returns a copy of every resource of the given type,
// ordered by Created (the store's insertion order for that type, since
// ids are never reused).
func (s *Store) IterateByType(t models.Type) []*models.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket := s.byType[t]
	out := make([]*models.Resource, 0, len(bucket))
	for _, r := range bucket {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

// Mutator mutates a resource's data in place; it may return an error to
// abort the modification before any stamp is reassigned.
type Mutator func(data map[string]interface{}) error

// Modify runs fn against a working copy of the named resource's data,
// then reassigns Updated via the strictly-increasing-update rule and
// rewrites data.version to match. It returns the resource's state both
// before and after the mutation so callers can build change events.
func (s *Store) Modify(id string, fn Mutator) (pre, post *models.Resource, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.resources[id]
	if !ok {
		return nil, nil, apierrors.NotFound(id)
	}
	pre = existing.Clone()
	working := existing.Clone()
	if err := fn(working.Data); err != nil {
		return nil, nil, err
	}

	working.Updated = s.nextUpdated()
	working.SetVersion()

	s.resources[id] = working
	s.byType[working.Type][id] = working
	s.touchUpdatedOrder(id)

	post = working.Clone()
	s.appendEvent(working.Type, id, pre, post.Clone())
	s.eventsCond.Signal()

	return pre, post, nil
}

// collectDescendants returns id and every resource transitively parented
// by it, breadth-first. Caller must hold the lock.
func (s *Store) collectDescendants(id string) []string {
	var ids []string
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		ids = append(ids, cur)
		for child := range s.children[cur] {
			queue = append(queue, child)
		}
	}
	return ids
}

// Erase deletes the named resource and every descendant atomically,
// returning the number of resources removed. NotFound if id is absent.
func (s *Store) Erase(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resources[id]; !ok {
		return 0, apierrors.NotFound(id)
	}
	ids := s.collectDescendants(id)
	for _, cid := range ids {
		r := s.resources[cid]
		pre := r.Clone()
		s.removeIndices(cid)
		s.appendEvent(r.Type, cid, pre, nil)
	}
	s.eventsCond.Signal()
	s.expirationCond.Signal()
	return len(ids), nil
}

// SetHealth refreshes the named resource's health and cascades the same
// refresh to every descendant. NotFound if id is absent.
func (s *Store) SetHealth(id string, health int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.resources[id]; !ok {
		return apierrors.NotFound(id)
	}
	for _, cid := range s.collectDescendants(id) {
		s.resources[cid].Health = health
	}
	s.expirationCond.Signal()
	return nil
}

// EarliestHealth returns the minimum health value across all resources
// currently in the store, used by the expiration loop to schedule its
// next wake. ok is false when the store is empty.
func (s *Store) EarliestHealth() (health int64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	first := true
	for _, r := range s.resources {
		if first || r.Health < health {
			health = r.Health
			first = false
		}
	}
	return health, !first
}

// EraseExpired removes every resource (cascading to descendants) whose
// health is below cutoff, returning the pre-deletion state of everything
// removed.
func (s *Store) EraseExpired(cutoff int64) []*models.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []string
	for id, r := range s.resources {
		if r.Health < cutoff {
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)

	seen := make(map[string]bool)
	var deleted []*models.Resource
	for _, id := range stale {
		if seen[id] {
			continue
		}
		if _, ok := s.resources[id]; !ok {
			continue
		}
		for _, cid := range s.collectDescendants(id) {
			seen[cid] = true
			r, ok := s.resources[cid]
			if !ok {
				continue
			}
			pre := r.Clone()
			s.removeIndices(cid)
			s.appendEvent(r.Type, cid, pre, nil)
			deleted = append(deleted, pre)
		}
	}
	if len(deleted) > 0 {
		s.eventsCond.Signal()
	}
	return deleted
}

// Len returns the total number of resources currently stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.resources)
}
