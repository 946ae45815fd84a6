// Package models defines the core data structures shared across all layers of
// routerpulse. These types represent the canonical in-memory form of router
// telemetry; every other package depends on this package and nothing here
// depends on any other internal package.
package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/tidwall/gjson"
)

// ErrNotJSON is returned by ParseSnapshot when the payload is not JSON at all.
var ErrNotJSON = errors.New("models: payload is not valid JSON")

// ErrNotObject marks a JSON payload whose top level is not an object.
var ErrNotObject = errors.New("models: payload is not a JSON object")

// ─────────────────────────────────────────────────────────────────────────────
// Snapshot
// ─────────────────────────────────────────────────────────────────────────────

// Snapshot is one telemetry payload representing router state at a point in
// time. The agent owns the schema; the relay treats the payload as opaque and
// only the recognised fields below are extracted. Every field is optional and
// a field of the wrong JSON type is treated as absent.
type Snapshot struct {
	// Raw is the payload exactly as received. It is what the relay serves back
	// and what gets persisted; the typed fields are a read-only projection.
	Raw json.RawMessage `json:"-"`

	// Uptime is the router uptime in seconds, as text (e.g. "12345.67").
	Uptime string `json:"uptime,omitempty"`

	// CPU holds the whitespace-separated load averages, e.g. "0.10 0.05 0.01".
	CPU string `json:"cpu,omitempty"`

	// Mem is "used/total", e.g. "30000/65536".
	Mem string `json:"mem,omitempty"`

	WAN     *WAN     `json:"wan,omitempty"`
	Clients []Client `json:"clients,omitempty"`

	// TS is an optional explicit timestamp in epoch milliseconds.
	TS int64 `json:"_ts,omitempty"`
}

// WAN carries the uplink counters and the instantaneous speed in kb/s.
type WAN struct {
	RX    uint64  `json:"rx"`
	TX    uint64  `json:"tx"`
	Speed float64 `json:"speed"`
}

// Client is one device attached to the router.
type Client struct {
	IP       string `json:"ip,omitempty"`
	MAC      string `json:"mac,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	RX       uint64 `json:"rx,omitempty"`
	TX       uint64 `json:"tx,omitempty"`
}

// Timestamp returns the explicit payload timestamp, or the zero time when the
// payload did not carry one.
func (s Snapshot) Timestamp() time.Time {
	if s.TS <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.TS)
}

// ─────────────────────────────────────────────────────────────────────────────
// Parsing
// ─────────────────────────────────────────────────────────────────────────────

// ParseSnapshot extracts the recognised fields from a raw payload. Any valid
// JSON value is accepted; non-object payloads simply yield a Snapshot with no
// recognised fields. Only bytes that are not JSON return ErrNotJSON.
func ParseSnapshot(data []byte) (Snapshot, error) {
	if !gjson.ValidBytes(data) {
		return Snapshot{}, ErrNotJSON
	}

	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	snap := Snapshot{Raw: raw}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return snap, nil
	}

	snap.Uptime = textField(root.Get("uptime"))
	snap.CPU = textField(root.Get("cpu"))
	snap.Mem = textField(root.Get("mem"))

	if w := root.Get("wan"); w.IsObject() {
		snap.WAN = &WAN{
			RX:    w.Get("rx").Uint(),
			TX:    w.Get("tx").Uint(),
			Speed: numberField(w.Get("speed")),
		}
	}

	if cs := root.Get("clients"); cs.IsArray() {
		snap.Clients = make([]Client, 0, len(cs.Array()))
		cs.ForEach(func(_, c gjson.Result) bool {
			if !c.IsObject() {
				return true
			}
			snap.Clients = append(snap.Clients, Client{
				IP:       textField(c.Get("ip")),
				MAC:      textField(c.Get("mac")),
				Hostname: textField(c.Get("hostname")),
				RX:       c.Get("rx").Uint(),
				TX:       c.Get("tx").Uint(),
			})
			return true
		})
	}

	if ts := root.Get("_ts"); ts.Type == gjson.Number {
		snap.TS = ts.Int()
	}

	return snap, nil
}

// textField returns strings verbatim and numbers in their JSON spelling.
// Everything else (objects, arrays, booleans, null) counts as absent.
func textField(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Number:
		return r.Raw
	default:
		return ""
	}
}

// numberField accepts JSON numbers and numeric strings; anything else is 0.
func numberField(r gjson.Result) float64 {
	switch r.Type {
	case gjson.Number, gjson.String:
		return r.Float()
	default:
		return 0
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// "No data yet" marker
// ─────────────────────────────────────────────────────────────────────────────

// Wire values of the relay's explicit "no data yet" response.
const (
	WaitingStatus  = "waiting"
	WaitingMessage = "No data yet"
)

// WaitingMarker is the body served by the relay before the first write.
type WaitingMarker struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewWaitingMarker returns the canonical marker.
func NewWaitingMarker() WaitingMarker {
	return WaitingMarker{Status: WaitingStatus, Message: WaitingMessage}
}

// IsObject reports whether data is a JSON object.
func IsObject(data []byte) bool {
	return gjson.ParseBytes(data).IsObject()
}

// IsWaitingMarker reports whether data is the relay's "no data yet" body
// rather than a telemetry snapshot. An agent payload that happens to carry a
// "status" key is not mistaken for the marker as long as it has any
// recognised telemetry field.
func IsWaitingMarker(data []byte) bool {
	root := gjson.ParseBytes(data)
	if !root.IsObject() || root.Get("status").String() != WaitingStatus {
		return false
	}
	for _, key := range []string{"uptime", "cpu", "mem", "wan", "clients"} {
		if root.Get(key).Exists() {
			return false
		}
	}
	return true
}
