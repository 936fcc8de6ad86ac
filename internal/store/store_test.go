package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamspace/nmos-registry/internal/models"
)

func mustNode(t *testing.T, id string) *models.Resource {
	t.Helper()
	r, err := models.NewResource(models.TypeNode, id, map[string]interface{}{"label": "n"})
	require.NoError(t, err)
	return r
}

func mustDevice(t *testing.T, id, nodeID string) *models.Resource {
	t.Helper()
	r, err := models.NewResource(models.TypeDevice, id, map[string]interface{}{"node_id": nodeID})
	require.NoError(t, err)
	return r
}

func TestInsertAssignsStampsAndVersion(t *testing.T) {
	s := New(false)
	r := mustNode(t, "n1")
	stored, err := s.Insert(r)
	require.NoError(t, err)
	assert.Equal(t, stored.Updated, stored.Created)
	assert.Equal(t, stored.Updated.String(), stored.Data["version"])
}

func TestInsertDuplicateID(t *testing.T) {
	s := New(false)
	r := mustNode(t, "n1")
	_, err := s.Insert(r)
	require.NoError(t, err)
	_, err = s.Insert(mustNode(t, "n1"))
	assert.Error(t, err)
}

func TestInsertParentMissingRejected(t *testing.T) {
	s := New(false)
	_, err := s.Insert(mustDevice(t, "d1", "missing-node"))
	assert.Error(t, err)
}

func TestInsertAllowInvalidResources(t *testing.T) {
	s := New(true)
	_, err := s.Insert(mustDevice(t, "d1", "missing-node"))
	assert.NoError(t, err)
}

func TestCascadeDelete(t *testing.T) {
	s := New(false)
	_, err := s.Insert(mustNode(t, "n1"))
	require.NoError(t, err)
	_, err = s.Insert(mustDevice(t, "d1", "n1"))
	require.NoError(t, err)

	count, err := s.Erase("n1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, ok := s.Find("n1")
	assert.False(t, ok)
	_, ok = s.Find("d1")
	assert.False(t, ok)
}

func TestUpdatedStrictlyIncreasing(t *testing.T) {
	s := New(false)
	a, err := s.Insert(mustNode(t, "n1"))
	require.NoError(t, err)
	b, err := s.Insert(mustNode(t, "n2"))
	require.NoError(t, err)
	assert.True(t, a.Updated.Before(b.Updated))
}

func TestModifyReassignsUpdated(t *testing.T) {
	s := New(false)
	created, err := s.Insert(mustNode(t, "n1"))
	require.NoError(t, err)

	pre, post, err := s.Modify("n1", func(data map[string]interface{}) error {
		data["label"] = "renamed"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, created.Updated, pre.Updated)
	assert.True(t, post.Updated.After(pre.Updated))
	assert.Equal(t, "renamed", post.Data["label"])
}

func TestSetHealthCascades(t *testing.T) {
	s := New(false)
	_, err := s.Insert(mustNode(t, "n1"))
	require.NoError(t, err)
	_, err = s.Insert(mustDevice(t, "d1", "n1"))
	require.NoError(t, err)

	require.NoError(t, s.SetHealth("n1", 1000))

	node, _ := s.Find("n1")
	device, _ := s.Find("d1")
	assert.Equal(t, int64(1000), node.Health)
	assert.Equal(t, int64(1000), device.Health)
}

func TestEraseExpiredRemovesOnlyStale(t *testing.T) {
	s := New(false)
	_, err := s.Insert(mustNode(t, "fresh"))
	require.NoError(t, err)
	_, err = s.Insert(mustNode(t, "stale"))
	require.NoError(t, err)
	require.NoError(t, s.SetHealth("stale", 0))
	require.NoError(t, s.SetHealth("fresh", 1<<62))

	deleted := s.EraseExpired(1)
	require.Len(t, deleted, 1)
	assert.Equal(t, "stale", deleted[0].ID)

	_, ok := s.Find("fresh")
	assert.True(t, ok)
	_, ok = s.Find("stale")
	assert.False(t, ok)
}

func TestEventsSinceReplaysDeletions(t *testing.T) {
	s := New(false)
	_, err := s.Insert(mustNode(t, "n1"))
	require.NoError(t, err)
	watermark := s.LatestEventSeq()

	_, err = s.Erase("n1")
	require.NoError(t, err)

	events := s.EventsSince(watermark)
	require.Len(t, events, 1)
	assert.Equal(t, "n1", events[0].ID)
	assert.NotNil(t, events[0].Pre)
	assert.Nil(t, events[0].Post)
}
