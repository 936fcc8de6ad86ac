package models

// Subscription is a query-subscription record: the filter-defining
// fields, the ws_href clients connect to, and the creation stamp
// (LastSeenUpdate). Transient subscriptions are garbage-collected once
// their last session disconnects.
type Subscription struct {
	ID              string
	WSHref          string
	MaxUpdateRateMs int64
	Persist         bool
	Secure          bool
	ResourcePath    string
	Params          map[string]interface{}

	// LastSeenUpdate is the TAI time at which the subscription was
	// created. The fanout worker does not advance it; it tracks progress
	// by store event sequence number instead.
	LastSeenUpdate string
}

// FilterKey identifies the four fields that make two subscription
// requests equivalent, per the "equivalent subscriptions collapse to
// the existing one" rule.
type FilterKey struct {
	MaxUpdateRateMs int64
	Persist         bool
	ResourcePath    string
	ParamsJSON      string
}

// Data renders the subscription as the JSON body returned from
// POST /subscriptions and GET /subscriptions/{id}.
func (s *Subscription) Data() map[string]interface{} {
	return map[string]interface{}{
		"id":                 s.ID,
		"ws_href":            s.WSHref,
		"max_update_rate_ms": s.MaxUpdateRateMs,
		"persist":            s.Persist,
		"secure":             s.Secure,
		"resource_path":      s.ResourcePath,
		"params":             s.Params,
	}
}

// Change describes one resource's transition within a grain. Absence of
// Pre signals an addition; absence of Post signals a deletion; both
// present signals a modification (or, if Pre and Post are data-equal, a
// sync echo).
type Change struct {
	Path string                 `json:"path"`
	Pre  map[string]interface{} `json:"pre,omitempty"`
	Post map[string]interface{} `json:"post,omitempty"`
}

// ChangeKind classifies a Change per the grain truth table.
type ChangeKind int

const (
	ChangeNone ChangeKind = iota
	ChangeAddition
	ChangeDeletion
	ChangeModification
	ChangeSync
)

// ClassifyChange applies the truth table driving which changes a
// subscription's filter admits: presence of pre/post together with
// whether the resource matches the subscription's combined filter
// before and after the mutation.
func ClassifyChange(preMatch, postMatch bool, pre, post map[string]interface{}) ChangeKind {
	switch {
	case !preMatch && !postMatch:
		return ChangeNone
	case !preMatch && postMatch:
		return ChangeAddition
	case preMatch && !postMatch:
		return ChangeDeletion
	case pre != nil && post != nil && DataEqual(pre, post):
		return ChangeSync
	default:
		return ChangeModification
	}
}

// GrainPayload is the inner `grain` object of a WebSocket grain message.
type GrainPayload struct {
	Type  string   `json:"type"`
	Topic string   `json:"topic"`
	Data  []Change `json:"data"`
}

// Grain is the JSON text message format sent over a subscription's
// WebSocket connection.
type Grain struct {
	GrainType        string       `json:"grain_type"`
	SourceID         string       `json:"source_id"`
	FlowID           string       `json:"flow_id"`
	OriginTimestamp  string       `json:"origin_timestamp"`
	SyncTimestamp    string       `json:"sync_timestamp"`
	CreationTimestamp string      `json:"creation_timestamp"`
	Rate             Rational     `json:"rate"`
	Duration         Rational     `json:"duration"`
	Grain            GrainPayload `json:"grain"`
}

// Rational mirrors NMOS's {numerator, denominator} rate/duration pairs.
type Rational struct {
	Numerator   int64 `json:"numerator"`
	Denominator int64 `json:"denominator"`
}

// NewGrain builds a grain message. resourcePath is the subscription's
// resource_path (e.g. "/senders"); the topic is resourcePath + "/".
func NewGrain(resourcePath, timestamp string, changes []Change) *Grain {
	return &Grain{
		GrainType:         "event",
		OriginTimestamp:   timestamp,
		SyncTimestamp:     timestamp,
		CreationTimestamp: timestamp,
		Rate:              Rational{Numerator: 0, Denominator: 1},
		Duration:          Rational{Numerator: 0, Denominator: 1},
		Grain: GrainPayload{
			Type:  "urn:x-nmos:format:data.event",
			Topic: resourcePath + "/",
			Data:  changes,
		},
	}
}
