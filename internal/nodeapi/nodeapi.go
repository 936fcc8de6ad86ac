// Package nodeapi implements the read-only Node API: the "self"
// resource view and its subresource listings, grounded directly on
// nmos-cpp's node_api.cpp routing tree.
//
// This core has no per-field JSON schema registry (spec.md's Non-goals
// explicitly exclude "the bit-exact JSON schemas of every individual
// NMOS resource kind"), so the downgrade rule — omit fields introduced
// after the requested API version — has nothing to omit by: no
// downgrade is applied, and every version serves the full resource.
// See DESIGN.md for this Open Question's resolution.
package nodeapi

import (
	"encoding/json"
	"net/http"

	"github.com/streamspace/nmos-registry/internal/apierrors"
	"github.com/streamspace/nmos-registry/internal/models"
	"github.com/streamspace/nmos-registry/internal/router"
	"github.com/streamspace/nmos-registry/internal/store"
)

// API holds the Node API's dependency on the resource store.
type API struct {
	store *store.Store
}

// New builds a Node API bound to s.
func New(s *store.Store) *API { return &API{store: s} }

var subresourceTypes = map[string]models.Type{
	"devices":   models.TypeDevice,
	"sources":   models.TypeSource,
	"flows":     models.TypeFlow,
	"senders":   models.TypeSender,
	"receivers": models.TypeReceiver,
}

// Router builds a sub-router implementing this version's node API,
// ready to be mounted at /x-nmos/node/{version}/.
func (a *API) Router() *router.Router {
	rt := router.New()
	rt.Support(`/?`, http.MethodGet, a.listRoot)
	rt.Support(`/self/?`, http.MethodGet, a.self)
	rt.Support(`/receivers/(?P<id>[^/]+)/target/?`, http.MethodGet, a.receiverTarget)
	rt.Support(`/(?P<sub>devices|sources|flows|senders|receivers)/?`, http.MethodGet, a.list)
	rt.Support(`/(?P<sub>devices|sources|flows|senders|receivers)/(?P<id>[^/]+)/?`, http.MethodGet, a.get)
	return rt
}

func (a *API) listRoot(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
	writeJSON(w, http.StatusOK, []string{"self/", "devices/", "sources/", "flows/", "senders/", "receivers/"})
	return false
}

// self finds the sole node-type resource this Node API instance
// represents — node_api.cpp's find-the-one-node-resource contract.
func (a *API) self(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
	nodes := a.store.IterateByType(models.TypeNode)
	if len(nodes) == 0 {
		apierrors.WriteJSON(w, apierrors.NotFound("self"))
		return false
	}
	writeJSON(w, http.StatusOK, nodes[0].Data)
	return false
}

func (a *API) list(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
	resourceType := subresourceTypes[params["sub"]]
	items := a.store.IterateByType(resourceType)
	body := make([]map[string]interface{}, len(items))
	for i, it := range items {
		body[i] = it.Data
	}
	writeJSON(w, http.StatusOK, body)
	return false
}

func (a *API) get(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
	resourceType := subresourceTypes[params["sub"]]
	res, ok := a.store.Find(params["id"])
	if !ok || res.Type != resourceType {
		apierrors.WriteJSON(w, apierrors.NotFound(params["id"]))
		return false
	}
	writeJSON(w, http.StatusOK, res.Data)
	return false
}

func (a *API) receiverTarget(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
	res, ok := a.store.Find(params["id"])
	if !ok || res.Type != models.TypeReceiver {
		apierrors.WriteJSON(w, apierrors.NotFound(params["id"]))
		return false
	}
	apierrors.WriteJSON(w, apierrors.NotImplemented())
	return false
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
