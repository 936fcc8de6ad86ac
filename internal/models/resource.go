// Package models defines the registry's resource envelope, subscription
// record, and the wire types used by the query-subscription WebSocket
// (grains and changes).
package models

import (
	"fmt"

	"github.com/streamspace/nmos-registry/internal/tai"
)

// Type enumerates the kinds of resource the registry tracks.
type Type string

const (
	TypeNode         Type = "node"
	TypeDevice       Type = "device"
	TypeSource       Type = "source"
	TypeFlow         Type = "flow"
	TypeSender       Type = "sender"
	TypeReceiver     Type = "receiver"
	TypeSubscription Type = "subscription"
	TypeGrain        Type = "grain"
)

// ResourcePath returns the plural REST path segment for a resource type,
// e.g. TypeNode -> "nodes". TypeSubscription and TypeGrain have no REST
// listing of their own and return "".
func (t Type) ResourcePath() string {
	switch t {
	case TypeNode:
		return "nodes"
	case TypeDevice:
		return "devices"
	case TypeSource:
		return "sources"
	case TypeFlow:
		return "flows"
	case TypeSender:
		return "senders"
	case TypeReceiver:
		return "receivers"
	default:
		return ""
	}
}

// TypeFromResourcePath reverses Type.ResourcePath, returning ok=false for
// an unrecognized path segment.
func TypeFromResourcePath(path string) (Type, bool) {
	switch path {
	case "nodes":
		return TypeNode, true
	case "devices":
		return TypeDevice, true
	case "sources":
		return TypeSource, true
	case "flows":
		return TypeFlow, true
	case "senders":
		return TypeSender, true
	case "receivers":
		return TypeReceiver, true
	default:
		return "", false
	}
}

// parentField names the field on each resource type's data that carries
// its parent resource's id, and the parent's type.
var parentField = map[Type]struct {
	Field      string
	ParentType Type
}{
	TypeDevice:   {"node_id", TypeNode},
	TypeSource:   {"device_id", TypeDevice},
	TypeFlow:     {"source_id", TypeSource},
	TypeSender:   {"device_id", TypeDevice},
	TypeReceiver: {"device_id", TypeDevice},
}

// Resource is the envelope around an opaque JSON payload (Data).
//
// id is immutable after creation; Updated is strictly increasing across
// the whole store; Health is the TAI second of the last heartbeat.
type Resource struct {
	ID      string
	Type    Type
	Data    map[string]interface{}
	Created tai.Timestamp
	Updated tai.Timestamp
	Health  int64
}

// Parent returns the (type, id) of r's parent resource, if r's type
// declares one and the corresponding field is present in Data.
func (r *Resource) Parent() (Type, string, bool) {
	pf, ok := parentField[r.Type]
	if !ok {
		return "", "", false
	}
	v, ok := r.Data[pf.Field]
	if !ok {
		return "", "", false
	}
	id, ok := v.(string)
	if !ok || id == "" {
		return "", "", false
	}
	return pf.ParentType, id, true
}

// SetVersion rewrites Data["version"] to match Updated, keeping the
// invariant that data.version tracks updated in string form.
func (r *Resource) SetVersion() {
	if r.Data == nil {
		r.Data = map[string]interface{}{}
	}
	r.Data["version"] = r.Updated.String()
}

// Clone returns a deep copy of r, safe to hand out of the store's lock.
func (r *Resource) Clone() *Resource {
	clone := *r
	clone.Data = cloneJSONValue(r.Data).(map[string]interface{})
	return &clone
}

func cloneJSONValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, vv := range val {
			out[k] = cloneJSONValue(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, vv := range val {
			out[i] = cloneJSONValue(vv)
		}
		return out
	default:
		return val
	}
}

// NewResource builds a Resource envelope from a decoded JSON body of the
// form {"type": "...", "data": {...}}. It validates that data.id matches
// the supplied id when present.
func NewResource(resourceType Type, id string, data map[string]interface{}) (*Resource, error) {
	if data == nil {
		data = map[string]interface{}{}
	}
	if existing, ok := data["id"]; ok {
		if s, ok := existing.(string); !ok || s != id {
			return nil, fmt.Errorf("models: data.id %v does not match resource id %s", existing, id)
		}
	}
	data["id"] = id
	return &Resource{ID: id, Type: resourceType, Data: data}, nil
}

// DataEqual reports whether a and b are structurally equal JSON documents.
func DataEqual(a, b map[string]interface{}) bool {
	return jsonDeepEqual(a, b)
}

func jsonDeepEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !jsonDeepEqual(v, bvv) {
				return false
			}
		}
		return true
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !jsonDeepEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}
