package nodeapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamspace/nmos-registry/internal/models"
	"github.com/streamspace/nmos-registry/internal/store"
)

func newTestAPI(t *testing.T) (*API, *store.Store) {
	t.Helper()
	s := store.New(false)
	return New(s), s
}

func TestSelfReturnsSoleNodeResource(t *testing.T) {
	api, s := newTestAPI(t)
	node, err := models.NewResource(models.TypeNode, "n1", map[string]interface{}{"label": "node-1"})
	require.NoError(t, err)
	_, err = s.Insert(node)
	require.NoError(t, err)

	rt := api.Router()
	req := httptest.NewRequest(http.MethodGet, "/self", nil)
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "n1", body["id"])
}

func TestSelfNotFoundWhenNoNode(t *testing.T) {
	api, _ := newTestAPI(t)
	rt := api.Router()
	req := httptest.NewRequest(http.MethodGet, "/self", nil)
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListSubresourceReturnsFullResourceBodies(t *testing.T) {
	api, s := newTestAPI(t)
	dev, err := models.NewResource(models.TypeDevice, "d1", map[string]interface{}{"node_id": "n1"})
	require.NoError(t, err)
	_, err = s.Insert(dev)
	require.NoError(t, err)

	rt := api.Router()
	req := httptest.NewRequest(http.MethodGet, "/devices", nil)
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body, 1)
	assert.Equal(t, "d1", body[0]["id"])
	assert.Equal(t, "n1", body[0]["node_id"])
}

func TestGetSubresourceNotFoundOnTypeMismatch(t *testing.T) {
	api, s := newTestAPI(t)
	dev, err := models.NewResource(models.TypeDevice, "d1", map[string]interface{}{"node_id": "n1"})
	require.NoError(t, err)
	_, err = s.Insert(dev)
	require.NoError(t, err)

	rt := api.Router()
	req := httptest.NewRequest(http.MethodGet, "/sources/d1", nil)
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestReceiverTargetNotImplementedWhenReceiverExists(t *testing.T) {
	api, s := newTestAPI(t)
	recv, err := models.NewResource(models.TypeReceiver, "r1", map[string]interface{}{"device_id": "d1"})
	require.NoError(t, err)
	_, err = s.Insert(recv)
	require.NoError(t, err)

	rt := api.Router()
	req := httptest.NewRequest(http.MethodGet, "/receivers/r1/target", nil)
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}

func TestReceiverTargetNotFoundWhenMissing(t *testing.T) {
	api, _ := newTestAPI(t)
	rt := api.Router()
	req := httptest.NewRequest(http.MethodGet, "/receivers/missing/target", nil)
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
