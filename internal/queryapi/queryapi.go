// Package queryapi implements the Query REST API: filtered, paged
// listings and single-resource lookups over the store, plus the
// subscription-creation endpoint that hands off to internal/subscription.
package queryapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/streamspace/nmos-registry/internal/apierrors"
	"github.com/streamspace/nmos-registry/internal/models"
	"github.com/streamspace/nmos-registry/internal/query"
	"github.com/streamspace/nmos-registry/internal/router"
	"github.com/streamspace/nmos-registry/internal/store"
	"github.com/streamspace/nmos-registry/internal/subscription"
)

// API holds the query API's dependencies.
type API struct {
	store *store.Store
	subs  *subscription.Manager
}

// New builds a query API bound to s and subs.
func New(s *store.Store, subs *subscription.Manager) *API {
	return &API{store: s, subs: subs}
}

var listedTypes = []models.Type{
	models.TypeNode, models.TypeDevice, models.TypeSource,
	models.TypeFlow, models.TypeSender, models.TypeReceiver,
}

// Router builds a sub-router implementing this version's query
// endpoints, ready to be mounted at /x-nmos/query/{version}/.
func (a *API) Router() *router.Router {
	rt := router.New()
	for _, t := range listedTypes {
		path := t.ResourcePath()
		rt.Support(`/`+path+`/?`, http.MethodGet, a.list(t))
		rt.Support(`/`+path+`/(?P<id>[^/]+)/?`, http.MethodGet, a.get(t))
	}
	rt.Support(`/subscriptions/?`, http.MethodPost, a.postSubscription)
	rt.Support(`/subscriptions/(?P<id>[^/]+)/?`, http.MethodGet, a.getSubscription)
	return rt
}

func (a *API) list(resourceType models.Type) router.Handler {
	return func(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
		filter, err := query.Parse(r.URL.RawQuery)
		if err != nil {
			apierrors.WriteJSON(w, apierrors.MalformedRequest(err.Error()))
			return false
		}

		items := a.store.IterateByType(resourceType)
		matched := make([]*models.Resource, 0, len(items))
		for _, it := range items {
			if filter.Matches(it.Data) {
				matched = append(matched, it)
			}
		}
		page, total := query.Window(matched, filter)

		body := make([]map[string]interface{}, len(page))
		for i, it := range page {
			body[i] = it.Data
		}
		w.Header().Set("X-Total-Count", strconv.Itoa(total))
		writeJSON(w, http.StatusOK, body)
		return false
	}
}

func (a *API) get(resourceType models.Type) router.Handler {
	return func(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
		res, ok := a.store.Find(params["id"])
		if !ok || res.Type != resourceType {
			apierrors.WriteJSON(w, apierrors.NotFound(params["id"]))
			return false
		}
		writeJSON(w, http.StatusOK, res.Data)
		return false
	}
}

func (a *API) postSubscription(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
	var req subscription.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.WriteJSON(w, apierrors.MalformedRequest("could not parse request body"))
		return false
	}
	sub, err := a.subs.Create(req)
	if err != nil {
		apierrors.WriteJSON(w, err)
		return false
	}
	writeJSON(w, http.StatusCreated, sub.Data())
	return false
}

func (a *API) getSubscription(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
	sub, ok := a.subs.Get(params["id"])
	if !ok {
		apierrors.WriteJSON(w, apierrors.NotFound(params["id"]))
		return false
	}
	writeJSON(w, http.StatusOK, sub.Data())
	return false
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
