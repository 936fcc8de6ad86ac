// Package subscription implements the query-subscription engine: the
// subscription registry (creation, equivalence collapsing, persist/
// transient lifecycle), the WebSocket session pool, and the fanout
// worker that drains the store's event log into per-session grains.
//
// The WebSocket transport (Upgrader, ping/pong keepalive, buffered
// per-connection send channel) is adapted from the teacher's
// internal/websocket Hub/Client, narrowed from an org-wide broadcast
// hub to one session per NMOS subscription. Per-session pacing uses
// golang.org/x/time/rate to enforce max_update_rate_ms.
package subscription

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/streamspace/nmos-registry/internal/apierrors"
	"github.com/streamspace/nmos-registry/internal/models"
	"github.com/streamspace/nmos-registry/internal/query"
	"github.com/streamspace/nmos-registry/internal/router"
	"github.com/streamspace/nmos-registry/internal/store"
	"github.com/streamspace/nmos-registry/internal/tai"
)

// CreateRequest is the decoded body of POST /subscriptions.
type CreateRequest struct {
	MaxUpdateRateMs int64                  `json:"max_update_rate_ms"`
	Persist         bool                   `json:"persist"`
	Secure          bool                   `json:"secure"`
	ResourcePath    string                 `json:"resource_path"`
	Params          map[string]interface{} `json:"params"`
}

type entry struct {
	sub          *models.Subscription
	filter       *query.Filter
	resourceType models.Type // "" means every type (resource_path == "/" or "")
	hasType      bool
	lastSeenSeq  int64
	sessions     map[*Session]struct{}
}

// Manager owns the subscription registry and the fanout worker. The
// registry is guarded by its own mutex rather than the store's: each
// lookup into the store goes through the store's own locked methods, so
// a consistent per-scan snapshot never requires holding two locks at
// once.
type Manager struct {
	store    *store.Store
	wsBase   string
	mu       sync.Mutex
	byID     map[string]*entry
	byKey    map[models.FilterKey]*entry
	shutdown chan struct{}
	once     sync.Once
}

// New builds a Manager. wsBase is the scheme+host prefix used to build
// each subscription's ws_href (e.g. "ws://192.168.1.10:3213").
func New(s *store.Store, wsBase string) *Manager {
	return &Manager{
		store:    s,
		wsBase:   strings.TrimRight(wsBase, "/"),
		byID:     make(map[string]*entry),
		byKey:    make(map[models.FilterKey]*entry),
		shutdown: make(chan struct{}),
	}
}

// Stop ends the fanout loop.
func (m *Manager) Stop() {
	m.once.Do(func() {
		close(m.shutdown)
		cond := m.store.EventsCond()
		cond.L.Lock()
		cond.Broadcast()
		cond.L.Unlock()
	})
}

func filterKey(req CreateRequest) (models.FilterKey, error) {
	paramsJSON, err := json.Marshal(req.Params)
	if err != nil {
		return models.FilterKey{}, err
	}
	return models.FilterKey{
		MaxUpdateRateMs: req.MaxUpdateRateMs,
		Persist:         req.Persist,
		ResourcePath:    req.ResourcePath,
		ParamsJSON:      string(paramsJSON),
	}, nil
}

func filterFromParams(params map[string]interface{}) (*query.Filter, error) {
	f := &query.Filter{Basic: map[string]interface{}{}}
	for k, v := range params {
		switch k {
		case "query":
			qm, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			rqlStr, ok := qm["rql"].(string)
			if !ok || rqlStr == "" {
				continue
			}
			expr, err := query.ParseRQL(rqlStr)
			if err != nil {
				return nil, err
			}
			f.RQL = expr
		case "paging":
			// paging has no meaning on a live stream.
		default:
			f.Basic[k] = v
		}
	}
	return f, nil
}

// Create mints a new subscription, or returns the existing one if an
// equivalent subscription (same max_update_rate_ms, persist,
// resource_path, params) already exists.
func (m *Manager) Create(req CreateRequest) (*models.Subscription, error) {
	key, err := filterKey(req)
	if err != nil {
		return nil, apierrors.MalformedRequest("invalid params: " + err.Error())
	}
	filter, err := filterFromParams(req.Params)
	if err != nil {
		return nil, apierrors.MalformedRequest("invalid params.query.rql: " + err.Error())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.byKey[key]; ok {
		return existing.sub, nil
	}

	resourceType, hasType := models.TypeFromResourcePath(strings.Trim(req.ResourcePath, "/"))
	id := uuid.New().String()
	sub := &models.Subscription{
		ID:              id,
		WSHref:          fmt.Sprintf("%s/%s", m.wsBase, id),
		MaxUpdateRateMs: req.MaxUpdateRateMs,
		Persist:         req.Persist,
		Secure:          req.Secure,
		ResourcePath:    req.ResourcePath,
		Params:          req.Params,
		LastSeenUpdate:  tai.Now().String(),
	}
	e := &entry{
		sub:          sub,
		filter:       filter,
		resourceType: resourceType,
		hasType:      hasType,
		lastSeenSeq:  m.store.LatestEventSeq(),
		sessions:     make(map[*Session]struct{}),
	}
	m.byID[id] = e
	m.byKey[key] = e
	return sub, nil
}

// Get returns a subscription's record by id.
func (m *Manager) Get(id string) (*models.Subscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.byID[id]
	if !ok {
		return nil, false
	}
	return e.sub, true
}

func (e *entry) matches(t models.Type) bool {
	return !e.hasType || e.resourceType == t
}

// currentMatches returns every resource currently matching e's resource
// type and filter, used to build the initial sync grain.
func (m *Manager) currentMatches(e *entry) []*models.Resource {
	types := []models.Type{
		models.TypeNode, models.TypeDevice, models.TypeSource,
		models.TypeFlow, models.TypeSender, models.TypeReceiver,
	}
	var out []*models.Resource
	for _, t := range types {
		if !e.matches(t) {
			continue
		}
		for _, r := range m.store.IterateByType(t) {
			if e.filter.Matches(r.Data) {
				out = append(out, r)
			}
		}
	}
	return out
}

// Router builds the router for the separate WebSocket listener
// (query_ws_port): every subscription's ws_href is "<wsBase>/<id>", so
// this router matches the bare id and upgrades the connection.
func (m *Manager) Router() *router.Router {
	rt := router.New()
	rt.Support(`/(?P<id>[^/]+)/?`, "", m.Connect)
	return rt
}

// rateLimiter builds a token limiter pacing sends to no more than once
// per max_update_rate_ms, bursting by 1 so a backlog collapses into a
// single grain rather than one send per buffered change.
func rateLimiter(maxUpdateRateMs int64) *rate.Limiter {
	if maxUpdateRateMs <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	interval := time.Duration(maxUpdateRateMs) * time.Millisecond
	return rate.NewLimiter(rate.Every(interval), 1)
}
