// Package connectionapi implements the IS-05 Connection API stubs:
// staged/active/constraints views and the activate_immediate PATCH
// path, grounded on nmos-cpp's connection_api.cpp routing tree and
// its split between fully-stubbed endpoints and the one mutation this
// core actually performs.
package connectionapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/streamspace/nmos-registry/internal/apierrors"
	"github.com/streamspace/nmos-registry/internal/models"
	"github.com/streamspace/nmos-registry/internal/router"
	"github.com/streamspace/nmos-registry/internal/store"
)

// API holds the connection API's dependency on the resource store.
type API struct {
	store *store.Store
}

// New builds a Connection API bound to s.
func New(s *store.Store) *API { return &API{store: s} }

var endpointTypes = map[string]models.Type{
	"senders":   models.TypeSender,
	"receivers": models.TypeReceiver,
}

// Router builds a sub-router implementing /single/{senders|receivers}/{id}/*,
// ready to be mounted at /x-nmos/connection/v1.0/.
func (a *API) Router() *router.Router {
	rt := router.New()
	rt.Support(`/single/(?P<kind>senders|receivers)/(?P<id>[^/]+)/staged/?`, http.MethodGet, a.stubView)
	rt.Support(`/single/(?P<kind>senders|receivers)/(?P<id>[^/]+)/active/?`, http.MethodGet, a.stubView)
	rt.Support(`/single/(?P<kind>senders|receivers)/(?P<id>[^/]+)/constraints/?`, http.MethodGet, a.stubView)
	rt.Support(`/single/(?P<kind>senders|receivers)/(?P<id>[^/]+)/transportfile/?`, http.MethodGet, a.transportFile)
	rt.Support(`/single/(?P<kind>senders|receivers)/(?P<id>[^/]+)/staged/?`, http.MethodPatch, a.patchStaged)
	return rt
}

func (a *API) lookup(w http.ResponseWriter, kind, id string) (*models.Resource, bool) {
	resourceType := endpointTypes[kind]
	res, ok := a.store.Find(id)
	if !ok || res.Type != resourceType {
		apierrors.WriteJSON(w, apierrors.NotFound(id))
		return nil, false
	}
	return res, true
}

// stubView backs /staged, /active, /constraints: this core has no
// transport-parameter negotiation, so every view past existence is
// unimplemented.
func (a *API) stubView(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
	if _, ok := a.lookup(w, params["kind"], params["id"]); !ok {
		return false
	}
	apierrors.WriteJSON(w, apierrors.NotImplemented())
	return false
}

// transportFile returns a minimal SDP document naming the resource,
// the one Connection API body this core can produce without a real
// transport-parameter model behind it.
func (a *API) transportFile(w http.ResponseWriter, r *http.Request, relPath string, relParams map[string]string) bool {
	res, ok := a.lookup(w, relParams["kind"], relParams["id"])
	if !ok {
		return false
	}
	sdp := fmt.Sprintf(
		"v=0\r\no=- %s 0 IN IP4 0.0.0.0\r\ns=%s\r\nt=0 0\r\nm=video 0 RTP/AVP 96\r\nc=IN IP4 0.0.0.0\r\n",
		res.ID, res.ID,
	)
	w.Header().Set("Content-Type", "application/sdp")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(sdp))
	return false
}

// activation describes the PATCH /staged body this core understands;
// every field is optional except mode, and only activate_immediate is
// honored.
type activation struct {
	MasterEnable *bool  `json:"master_enable,omitempty"`
	Activation   struct {
		Mode string `json:"mode"`
	} `json:"activation"`
	SenderID   *string `json:"sender_id,omitempty"`
	ReceiverID *string `json:"receiver_id,omitempty"`
}

// patchStaged handles PATCH /single/{senders|receivers}/{id}/staged.
// Only activation.mode == "activate_immediate" performs a mutation;
// every other mode (activate_scheduled_absolute/relative, or none) is
// 501, matching the stub split of the first three GET views.
func (a *API) patchStaged(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
	kind, id := params["kind"], params["id"]
	res, ok := a.lookup(w, kind, id)
	if !ok {
		return false
	}

	var body activation
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierrors.WriteJSON(w, apierrors.MalformedRequest("could not parse request body"))
		return false
	}
	if body.Activation.Mode != "activate_immediate" {
		apierrors.WriteJSON(w, apierrors.NotImplemented())
		return false
	}

	active := body.MasterEnable != nil && *body.MasterEnable

	var pairField, pairID string
	switch kind {
	case "senders":
		pairField = "receiver_id"
		if body.ReceiverID != nil {
			pairID = *body.ReceiverID
		}
	case "receivers":
		pairField = "sender_id"
		if body.SenderID != nil {
			pairID = *body.SenderID
		}
	}

	_, post, err := a.store.Modify(res.ID, func(data map[string]interface{}) error {
		sub, _ := data["subscription"].(map[string]interface{})
		if sub == nil {
			sub = map[string]interface{}{}
		}
		sub["active"] = active
		if !active {
			sub[pairField] = nil
		} else if pairID != "" {
			sub[pairField] = pairID
		}
		data["subscription"] = sub
		return nil
	})
	if err != nil {
		apierrors.WriteJSON(w, err)
		return false
	}

	writeJSON(w, http.StatusOK, post.Data["subscription"])
	return false
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
