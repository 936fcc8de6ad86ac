package registration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamspace/nmos-registry/internal/store"
)

func newTestAPI() (*API, *store.Store) {
	s := store.New(false)
	return New(s), s
}

func postJSON(rt http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)
	return rr
}

func TestPostResourceCreatesAndReturns201(t *testing.T) {
	api, _ := newTestAPI()
	rt := api.Router()

	rr := postJSON(rt, "/resource", map[string]interface{}{
		"type": "node",
		"data": map[string]interface{}{"id": "n1", "label": "x"},
	})

	require.Equal(t, http.StatusCreated, rr.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "n1", got["id"])
	assert.NotEmpty(t, got["version"])
}

func TestPostResourceUpdateReturns200(t *testing.T) {
	api, s := newTestAPI()
	rt := api.Router()

	postJSON(rt, "/resource", map[string]interface{}{
		"type": "node",
		"data": map[string]interface{}{"id": "n1", "label": "x"},
	})
	rr := postJSON(rt, "/resource", map[string]interface{}{
		"type": "node",
		"data": map[string]interface{}{"id": "n1", "label": "y"},
	})

	require.Equal(t, http.StatusOK, rr.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "y", got["label"])

	n, ok := s.Find("n1")
	require.True(t, ok)
	assert.Greater(t, n.Health, int64(0))
}

func TestPostResourceParentMissingConflict(t *testing.T) {
	api, _ := newTestAPI()
	rt := api.Router()

	rr := postJSON(rt, "/resource", map[string]interface{}{
		"type": "device",
		"data": map[string]interface{}{"id": "d1", "node_id": "missing"},
	})

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestPostHealthUnknownNode(t *testing.T) {
	api, _ := newTestAPI()
	rt := api.Router()

	req := httptest.NewRequest(http.MethodPost, "/health/nodes/missing", nil)
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPostHealthRefreshesKnownNode(t *testing.T) {
	api, s := newTestAPI()
	rt := api.Router()

	postJSON(rt, "/resource", map[string]interface{}{
		"type": "node",
		"data": map[string]interface{}{"id": "n1"},
	})

	req := httptest.NewRequest(http.MethodPost, "/health/nodes/n1", nil)
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	n, ok := s.Find("n1")
	require.True(t, ok)
	assert.Greater(t, n.Health, int64(0))
}

func TestDeleteResourceCascades(t *testing.T) {
	api, s := newTestAPI()
	rt := api.Router()

	postJSON(rt, "/resource", map[string]interface{}{
		"type": "node",
		"data": map[string]interface{}{"id": "n1"},
	})
	postJSON(rt, "/resource", map[string]interface{}{
		"type": "device",
		"data": map[string]interface{}{"id": "d1", "node_id": "n1"},
	})

	req := httptest.NewRequest(http.MethodDelete, "/resource/nodes/n1", nil)
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	_, ok := s.Find("n1")
	assert.False(t, ok)
	_, ok = s.Find("d1")
	assert.False(t, ok)
}

func TestDeleteResourceTypeMismatchNotFound(t *testing.T) {
	api, _ := newTestAPI()
	rt := api.Router()

	postJSON(rt, "/resource", map[string]interface{}{
		"type": "node",
		"data": map[string]interface{}{"id": "n1"},
	})

	req := httptest.NewRequest(http.MethodDelete, "/resource/devices/n1", nil)
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}
