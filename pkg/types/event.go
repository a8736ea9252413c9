// Package types provides core data types for the Beacon collector.
package types

// Kind distinguishes the two durable row spaces. Events and identify
// operations are stored in separate tables with independent auto-increment
// row ids.
type Kind string

const (
	KindEvent    Kind = "event"
	KindIdentify Kind = "identify"
)

// Special event types produced by the collector itself.
const (
	EventTypeIdentify     = "$identify"
	EventTypeSessionStart = "session_start"
	EventTypeRevenue      = "revenue_amount"
)

// OutOfSessionID is the session id assigned to events flagged as
// out-of-session.
const OutOfSessionID int64 = -1

// Event represents a single telemetry record, either a regular event or an
// identify operation. The same shape is used for both kinds; identify rows
// carry their operation set in UserProperties.
type Event struct {
	// RowID is the storage-assigned auto-increment id, scoped per Kind.
	// It is never serialized into the upload payload.
	RowID int64 `json:"-"`

	// Kind is the row space this record was read from. Event types are
	// caller-controlled, so the source table cannot be inferred from them.
	// Populated by the store on read, never serialized.
	Kind Kind `json:"-"`

	// EventType categorizes the event (e.g. "button_clicked", "$identify").
	EventType string `json:"event_type"`

	// EventProperties holds caller-supplied event data.
	EventProperties map[string]interface{} `json:"event_properties,omitempty"`

	// UserProperties holds the identify operation set (identify rows only).
	UserProperties map[string]interface{} `json:"user_properties,omitempty"`

	// APIProperties holds internal flags such as special-event markers and
	// ad-tracking limits.
	APIProperties map[string]interface{} `json:"api_properties,omitempty"`

	// Groups associates the event with group identifiers.
	Groups map[string]interface{} `json:"groups,omitempty"`

	// Timestamp is the client-supplied event time in milliseconds since epoch.
	Timestamp int64 `json:"timestamp"`

	// SessionID is the id of the session this event belongs to, or -1 for
	// out-of-session events.
	SessionID int64 `json:"session_id"`

	// SequenceNumber is the global monotonic ordering key across both kinds.
	// Zero means absent: rows written before sequence numbering existed sort
	// ahead of all numbered rows.
	SequenceNumber int64 `json:"sequence_number,omitempty"`

	// UUID is a fresh random identifier assigned at submission time, used by
	// the collector for deduplication.
	UUID string `json:"uuid"`

	// Identity and device boilerplate appended by the submission pipeline.
	UserID             string `json:"user_id,omitempty"`
	DeviceID           string `json:"device_id,omitempty"`
	Platform           string `json:"platform,omitempty"`
	OSName             string `json:"os_name,omitempty"`
	OSVersion          string `json:"os_version,omitempty"`
	DeviceBrand        string `json:"device_brand,omitempty"`
	DeviceManufacturer string `json:"device_manufacturer,omitempty"`
	DeviceModel        string `json:"device_model,omitempty"`
	Carrier            string `json:"carrier,omitempty"`
	Country            string `json:"country,omitempty"`
	Language           string `json:"language,omitempty"`
	VersionName        string `json:"version_name,omitempty"`

	// Library identifies the client library that produced the event.
	Library map[string]interface{} `json:"library,omitempty"`
}

// HasSequenceNumber reports whether the row was assigned a sequence number.
// Legacy rows written before numbering existed have none.
func (e *Event) HasSequenceNumber() bool {
	return e.SequenceNumber > 0
}
