// Package pipeline implements the event submission path: validation,
// opt-out gating, session resolution, property normalization and
// truncation, sequence numbering, durable append, and upload scheduling.
package pipeline

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/beaconlabs/beacon/internal/config"
	"github.com/beaconlabs/beacon/internal/device"
	"github.com/beaconlabs/beacon/internal/executor"
	"github.com/beaconlabs/beacon/internal/identify"
	"github.com/beaconlabs/beacon/internal/session"
	"github.com/beaconlabs/beacon/internal/store"
	"github.com/beaconlabs/beacon/internal/uploader"
	"github.com/beaconlabs/beacon/pkg/types"
)

const (
	libraryName    = "beacon-go"
	libraryVersion = "1.4.0"
)

// apiPropSpecial marks collector-internal events in api_properties.
const apiPropSpecial = "special"

// Submission is one caller-supplied event before the pipeline enriches it.
type Submission struct {
	EventType       string
	EventProperties map[string]interface{}
	Groups          map[string]interface{}

	// Timestamp in milliseconds since epoch; zero means now.
	Timestamp int64

	// OutOfSession assigns session id -1 and leaves session state untouched.
	OutOfSession bool
}

// Pipeline serializes event submission. Asynchronous submissions run on
// the write queue; synchronous ones run on the caller's goroutine. Both
// paths take p.mu, which keeps sequence assignment atomic with the store
// append so sequence order always matches arrival order.
type Pipeline struct {
	cfg      *config.Config
	st       *store.Store
	sessions *session.Manager
	up       *uploader.Uploader
	queue    *executor.Queue
	info     device.InfoProvider

	// now is the millisecond clock, replaceable in tests.
	now func() int64

	mu            sync.Mutex
	deviceID      string
	userID        string
	optOut        bool
	uploadPending bool
	uploadTimer   *time.Timer
}

// New creates a pipeline, restoring identity and opt-out state from the
// store.
func New(cfg *config.Config, st *store.Store, sessions *session.Manager, up *uploader.Uploader, queue *executor.Queue, info device.InfoProvider) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		st:       st,
		sessions: sessions,
		up:       up,
		queue:    queue,
		info:     info,
		now:      func() int64 { return time.Now().UnixMilli() },
		optOut:   cfg.OptOut,
	}

	p.deviceID = device.ResolveID(st)
	if id, ok, err := st.GetString(store.KeyUserID); err == nil && ok {
		p.userID = id
	}
	if v, ok, err := st.GetLong(store.KeyOptOut); err == nil && ok {
		p.optOut = v != 0
	}

	return p
}

// LogEvent submits an event asynchronously on the write queue.
func (p *Pipeline) LogEvent(sub Submission) {
	p.queue.Do(func() { p.logEvent(sub) })
}

// LogEventSync submits an event on the caller's goroutine and returns the
// storage row id, or -1 when the event was rejected or could not be
// persisted.
func (p *Pipeline) LogEventSync(sub Submission) int64 {
	return p.logEvent(sub)
}

// Identify submits the operation set as an identify record. An empty set
// is a no-op.
func (p *Pipeline) Identify(id *identify.Identify, outOfSession bool) {
	if id == nil || id.IsEmpty() {
		log.Printf("pipeline: ignoring empty identify")
		return
	}
	ops := id.Operations()
	timestamp := p.now()
	p.queue.Do(func() { p.logIdentify(ops, timestamp, outOfSession) })
}

// SetUserProperties submits a $set identify for each supplied property.
func (p *Pipeline) SetUserProperties(props map[string]interface{}) {
	if len(props) == 0 {
		return
	}
	id := identify.New()
	for k, v := range props {
		id.Set(k, v)
	}
	p.Identify(id, false)
}

// LogRevenue submits a revenue event. Price and quantity land in
// api_properties so the collector can verify them against the receipt
// fields separately from caller event data.
func (p *Pipeline) LogRevenue(productID string, quantity int, price float64) {
	p.LogEvent(Submission{
		EventType: types.EventTypeRevenue,
		EventProperties: map[string]interface{}{
			"productId": productID,
			"quantity":  quantity,
			"price":     price,
		},
	})
}

// SetUserID durably associates subsequent events with the given user id.
// An empty id clears the association.
func (p *Pipeline) SetUserID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userID = id
	if id == "" {
		if err := p.st.DeleteString(store.KeyUserID); err != nil {
			log.Printf("pipeline: failed to clear user id: %v", err)
		}
		return
	}
	if err := p.st.SetString(store.KeyUserID, id); err != nil {
		log.Printf("pipeline: failed to persist user id: %v", err)
	}
}

// UserID returns the current user id, or empty when none is set.
func (p *Pipeline) UserID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userID
}

// SetDeviceID overrides the resolved device id. Empty ids are rejected.
func (p *Pipeline) SetDeviceID(id string) {
	if id == "" {
		log.Printf("pipeline: ignoring empty device id")
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deviceID = id
	if err := p.st.SetString(store.KeyDeviceID, id); err != nil {
		log.Printf("pipeline: failed to persist device id: %v", err)
	}
}

// DeviceID returns the current device id.
func (p *Pipeline) DeviceID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deviceID
}

// SetOptOut toggles collection. While opted out, every submission is
// dropped before touching session state or storage.
func (p *Pipeline) SetOptOut(optOut bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.optOut = optOut
	v := int64(0)
	if optOut {
		v = 1
	}
	if err := p.st.SetLong(store.KeyOptOut, v); err != nil {
		log.Printf("pipeline: failed to persist opt-out: %v", err)
	}
}

// OptOut reports whether collection is disabled.
func (p *Pipeline) OptOut() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.optOut
}

// SessionID returns the active session id, or -1 when no session exists.
// Must not race with in-flight submissions on the write queue; callers
// wanting an ordered read go through the write queue.
func (p *Pipeline) SessionID() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions.CurrentSessionID()
}

// Close stops the delayed-upload timer. Queued submissions are drained by
// the owner closing the write queue.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.uploadTimer != nil {
		p.uploadTimer.Stop()
		p.uploadTimer = nil
	}
	p.uploadPending = false
}

func (p *Pipeline) logEvent(sub Submission) int64 {
	if sub.EventType == "" {
		log.Printf("pipeline: ignoring event with empty type")
		return -1
	}
	return p.submit(types.KindEvent, sub, nil)
}

func (p *Pipeline) logIdentify(ops map[string]interface{}, timestamp int64, outOfSession bool) int64 {
	return p.submit(types.KindIdentify, Submission{
		EventType:    types.EventTypeIdentify,
		Timestamp:    timestamp,
		OutOfSession: outOfSession,
	}, ops)
}

// submit runs the full submission path under p.mu. userProps is non-nil
// only for identify records.
func (p *Pipeline) submit(kind types.Kind, sub Submission, userProps map[string]interface{}) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.optOut {
		return -1
	}

	// Resolve the clock once so the timestamp that drives session
	// assignment is the one persisted on the record.
	timestamp := sub.Timestamp
	if timestamp <= 0 {
		timestamp = p.now()
	}
	sub.Timestamp = timestamp

	sessionID, startedNew := p.sessions.Assign(timestamp, sub.OutOfSession)
	if startedNew && p.cfg.Session.TrackEvents {
		p.appendLocked(types.KindEvent, p.buildEvent(Submission{
			EventType: types.EventTypeSessionStart,
			Timestamp: timestamp,
		}, map[string]interface{}{apiPropSpecial: types.EventTypeSessionStart}, nil, sessionID))
	}

	var apiProps map[string]interface{}
	if kind == types.KindEvent && sub.EventType == types.EventTypeRevenue {
		apiProps = map[string]interface{}{apiPropSpecial: types.EventTypeRevenue}
	}

	return p.appendLocked(kind, p.buildEvent(sub, apiProps, userProps, sessionID))
}

// buildEvent assembles the wire-shape record: normalized and truncated
// properties plus identity and device boilerplate. Caller holds p.mu.
func (p *Pipeline) buildEvent(sub Submission, apiProps, userProps map[string]interface{}, sessionID int64) *types.Event {
	info := p.info.Info()
	max := p.cfg.MaxStringLength

	ev := &types.Event{
		EventType:       sub.EventType,
		EventProperties: truncateMap(types.NormalizeMap(sub.EventProperties), max),
		UserProperties:  truncateMap(types.NormalizeMap(userProps), max),
		APIProperties:   apiProps,
		Groups:          truncateMap(types.NormalizeMap(sub.Groups), max),
		Timestamp:       sub.Timestamp,
		SessionID:       sessionID,
		UUID:            uuid.NewString(),

		UserID:             p.userID,
		DeviceID:           p.deviceID,
		Platform:           info.Platform,
		OSName:             info.OSName,
		OSVersion:          info.OSVersion,
		DeviceBrand:        info.DeviceBrand,
		DeviceManufacturer: info.DeviceManufacturer,
		DeviceModel:        info.DeviceModel,
		Carrier:            info.Carrier,
		Country:            info.Country,
		Language:           info.Language,
		VersionName:        info.VersionName,
		Library: map[string]interface{}{
			"name":    libraryName,
			"version": libraryVersion,
		},
	}
	if info.LimitAdTracking {
		if ev.APIProperties == nil {
			ev.APIProperties = make(map[string]interface{})
		}
		ev.APIProperties["limit_ad_tracking"] = true
	}
	return ev
}

// appendLocked assigns the sequence number, appends the record, and
// schedules an upload. A storage failure recreates the store: bounded
// data loss is preferred over wedging the host. Caller holds p.mu.
func (p *Pipeline) appendLocked(kind types.Kind, ev *types.Event) int64 {
	seq, err := p.st.NextSequenceNumber()
	if err != nil {
		log.Printf("pipeline: failed to assign sequence number: %v", err)
		p.recreateStore()
		return -1
	}
	ev.SequenceNumber = seq

	rowID, err := p.st.Append(kind, ev)
	if err != nil {
		log.Printf("pipeline: failed to append %s record: %v", kind, err)
		p.recreateStore()
		return -1
	}

	lastKey := store.KeyLastEventID
	if kind == types.KindIdentify {
		lastKey = store.KeyLastIdentifyID
	}
	if err := p.st.SetLong(lastKey, rowID); err != nil {
		log.Printf("pipeline: failed to persist last row id: %v", err)
	}

	p.scheduleUploadLocked()
	return rowID
}

func (p *Pipeline) recreateStore() {
	if err := p.st.Recreate(); err != nil {
		log.Printf("pipeline: failed to recreate store: %v", err)
	}
}

// scheduleUploadLocked triggers an immediate upload once the pending count
// reaches the threshold; below it, a single coalesced timer defers the
// upload by the configured period. Caller holds p.mu.
func (p *Pipeline) scheduleUploadLocked() {
	pending, err := p.st.TotalCount()
	if err != nil {
		log.Printf("pipeline: failed to count pending rows: %v", err)
		return
	}

	if pending >= int64(p.cfg.Upload.Threshold) {
		p.up.Trigger()
		return
	}

	if p.uploadPending {
		return
	}
	p.uploadPending = true
	p.uploadTimer = time.AfterFunc(p.cfg.Upload.Period, func() {
		p.mu.Lock()
		p.uploadPending = false
		p.uploadTimer = nil
		p.mu.Unlock()
		p.up.Trigger()
	})
}
