// Package registration implements the Registration API: resource
// creation/update, health heartbeats, and deletion, each mutating the
// store under its single lock and signaling the subscription fanout.
package registration

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/streamspace/nmos-registry/internal/apierrors"
	"github.com/streamspace/nmos-registry/internal/logger"
	"github.com/streamspace/nmos-registry/internal/models"
	"github.com/streamspace/nmos-registry/internal/router"
	"github.com/streamspace/nmos-registry/internal/store"
	"github.com/streamspace/nmos-registry/internal/tai"
)

var knownTypes = map[string]models.Type{
	string(models.TypeNode):     models.TypeNode,
	string(models.TypeDevice):   models.TypeDevice,
	string(models.TypeSource):   models.TypeSource,
	string(models.TypeFlow):     models.TypeFlow,
	string(models.TypeSender):   models.TypeSender,
	string(models.TypeReceiver): models.TypeReceiver,
}

// API holds the registration handlers' dependency on the resource
// store.
type API struct {
	store *store.Store
}

// New builds a registration API bound to s.
func New(s *store.Store) *API { return &API{store: s} }

// Router builds a sub-router implementing this version's registration
// endpoints, ready to be mounted by the process entry point at
// /x-nmos/registration/{version}/.
func (a *API) Router() *router.Router {
	rt := router.New()
	rt.Support(`/resource/?`, http.MethodPost, a.postResource)
	rt.Support(`/health/nodes/(?P<id>[^/]+)/?`, http.MethodPost, a.postHealth)
	rt.Support(`/resource/(?P<type>[^/]+)/(?P<id>[^/]+)/?`, http.MethodDelete, a.deleteResource)
	return rt
}

type resourceBody struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

func (a *API) postResource(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
	var body resourceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierrors.WriteJSON(w, apierrors.MalformedRequest("could not parse request body"))
		return false
	}
	resourceType, ok := knownTypes[body.Type]
	if !ok {
		apierrors.WriteJSON(w, apierrors.MalformedRequest("unknown resource type "+body.Type))
		return false
	}
	id, ok := body.Data["id"].(string)
	if !ok || id == "" {
		apierrors.WriteJSON(w, apierrors.MalformedRequest("data.id is required"))
		return false
	}

	if _, exists := a.store.Find(id); exists {
		_, post, err := a.store.Modify(id, func(data map[string]interface{}) error {
			for k, v := range body.Data {
				if k == "version" {
					continue
				}
				data[k] = v
			}
			return nil
		})
		if err != nil {
			apierrors.WriteJSON(w, err)
			return false
		}
		if err := a.store.SetHealth(id, tai.HealthNow()); err != nil {
			apierrors.WriteJSON(w, err)
			return false
		}
		writeJSON(w, http.StatusOK, post.Data)
		return false
	}

	resource, err := models.NewResource(resourceType, id, body.Data)
	if err != nil {
		apierrors.WriteJSON(w, apierrors.MalformedRequest(err.Error()))
		return false
	}
	stored, err := a.store.Insert(resource)
	if err != nil {
		apierrors.WriteJSON(w, err)
		return false
	}
	logger.GetLogger().Info().Str("id", id).Str("type", body.Type).Msg("resource registered")
	if path := resourceType.ResourcePath(); path != "" {
		w.Header().Set("Location", "resource/"+path+"/"+id)
	}
	writeJSON(w, http.StatusCreated, stored.Data)
	return false
}

func (a *API) postHealth(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
	id := params["id"]
	health := tai.HealthNow()
	if err := a.store.SetHealth(id, health); err != nil {
		apierrors.WriteJSON(w, err)
		return false
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"health": strconv.FormatInt(health, 10)})
	return false
}

func (a *API) deleteResource(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
	id := params["id"]
	resourceType, ok := models.TypeFromResourcePath(params["type"])
	existing, exists := a.store.Find(id)
	if !exists {
		apierrors.WriteJSON(w, apierrors.NotFound(id))
		return false
	}
	if ok && existing.Type != resourceType {
		apierrors.WriteJSON(w, apierrors.NotFound(id))
		return false
	}

	if _, err := a.store.Erase(id); err != nil {
		apierrors.WriteJSON(w, err)
		return false
	}
	w.WriteHeader(http.StatusNoContent)
	return false
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
