package queryapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamspace/nmos-registry/internal/models"
	"github.com/streamspace/nmos-registry/internal/store"
	"github.com/streamspace/nmos-registry/internal/subscription"
)

func newTestAPI(t *testing.T) (*API, *store.Store) {
	t.Helper()
	s := store.New(false)
	subs := subscription.New(s, "ws://localhost:3213")
	return New(s, subs), s
}

func TestListReturnsTotalCountHeader(t *testing.T) {
	api, s := newTestAPI(t)
	node, err := models.NewResource(models.TypeNode, "n1", map[string]interface{}{"label": "x"})
	require.NoError(t, err)
	_, err = s.Insert(node)
	require.NoError(t, err)

	rt := api.Router()
	req := httptest.NewRequest(http.MethodGet, "/nodes", nil)
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("X-Total-Count"))

	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "n1", body[0]["id"])
}

func TestListAppliesBasicMatchFilter(t *testing.T) {
	api, s := newTestAPI(t)
	for _, lbl := range []string{"alpha", "beta"} {
		r, err := models.NewResource(models.TypeDevice, lbl, map[string]interface{}{"label": lbl})
		require.NoError(t, err)
		_, err = s.Insert(r)
		require.NoError(t, err)
	}

	rt := api.Router()
	req := httptest.NewRequest(http.MethodGet, "/devices?label=alpha", nil)
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)

	assert.Equal(t, "1", rr.Header().Get("X-Total-Count"))
}

func TestGetSingleResourceNotFound(t *testing.T) {
	api, _ := newTestAPI(t)
	rt := api.Router()
	req := httptest.NewRequest(http.MethodGet, "/nodes/missing", nil)
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPostSubscriptionCreates(t *testing.T) {
	api, _ := newTestAPI(t)
	rt := api.Router()

	body := []byte(`{"resource_path":"/nodes","persist":false,"max_update_rate_ms":100,"params":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/subscriptions", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.NotEmpty(t, got["id"])
	assert.NotEmpty(t, got["ws_href"])
}
