package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSupportEntireMatch(t *testing.T) {
	rt := New()
	rt.Support(`/nodes`, http.MethodGet, func(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return false
	})

	req := httptest.NewRequest(http.MethodGet, "/nodes", nil)
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestSupportDoesNotMatchSubpath(t *testing.T) {
	rt := New()
	rt.Support(`/nodes`, http.MethodGet, func(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
		w.WriteHeader(http.StatusOK)
		return false
	})

	req := httptest.NewRequest(http.MethodGet, "/nodes/extra", nil)
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMountPassesRemainderAndParams(t *testing.T) {
	var gotRemainder string
	var gotParams map[string]string

	sub := New()
	sub.Support(`/(?P<id>[^/]+)`, http.MethodGet, func(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
		gotParams = params
		w.WriteHeader(http.StatusOK)
		return false
	})

	rt := New()
	rt.Mount(`/devices`, "", func(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
		gotRemainder = relPath
		return sub.AsHandler()(w, r, relPath, params)
	})

	req := httptest.NewRequest(http.MethodGet, "/devices/d1", nil)
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)

	assert.Equal(t, "/d1", gotRemainder)
	assert.Equal(t, "d1", gotParams["id"])
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestNewRouteParamsOverrideExisting(t *testing.T) {
	var seen map[string]string

	inner := New()
	inner.Support(`/(?P<id>[^/]+)`, "", func(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
		seen = params
		return false
	})

	rt := New()
	rt.Mount(`/x/(?P<id>outer)`, "", func(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
		return inner.AsHandler()(w, r, relPath, params)
	})

	req := httptest.NewRequest(http.MethodGet, "/x/outer/inner-id", nil)
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)

	assert.Equal(t, "inner-id", seen["id"])
}

func TestMethodMismatchSetsAllowAndContinues(t *testing.T) {
	var secondInvoked bool

	rt := New()
	rt.Support(`/thing`, http.MethodPost, func(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
		return false
	})
	rt.Support(`/thing`, http.MethodGet, func(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
		secondInvoked = true
		return false
	})

	req := httptest.NewRequest(http.MethodDelete, "/thing", nil)
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)

	assert.False(t, secondInvoked)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.ElementsMatch(t, []string{"POST", "GET"}, rr.Header()["Allow"])
}

func TestHandlerFalseStopsDispatch(t *testing.T) {
	var secondInvoked bool

	rt := New()
	rt.Support(`/thing`, "", func(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
		w.WriteHeader(http.StatusOK)
		return false
	})
	rt.Support(`/thing`, "", func(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
		secondInvoked = true
		return false
	})

	req := httptest.NewRequest(http.MethodGet, "/thing", nil)
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)

	assert.False(t, secondInvoked)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestExceptionHandlerCatchesPanic(t *testing.T) {
	rt := New()
	rt.SetExceptionHandler(func(w http.ResponseWriter, r *http.Request, recovered interface{}) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	rt.Support(`/boom`, "", func(w http.ResponseWriter, r *http.Request, relPath string, params map[string]string) bool {
		panic("kaboom")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rr := httptest.NewRecorder()
	rt.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
