// Package uploader implements the background upload state machine: it
// drains batches from the durable store, submits them through the injected
// transport, removes acknowledged rows, and adapts its batch size when the
// collector rejects payloads as too large.
package uploader

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/beaconlabs/beacon/internal/executor"
	"github.com/beaconlabs/beacon/internal/signer"
	"github.com/beaconlabs/beacon/internal/store"
	"github.com/beaconlabs/beacon/internal/transport"
	"github.com/beaconlabs/beacon/pkg/types"
)

// Config holds the upload engine's static settings.
type Config struct {
	APIKey       string
	APIVersion   int
	MaxBatchSize int
	Threshold    int
}

// Uploader is the upload engine. All state transitions happen on the
// upload queue; only the uploading and offline flags are shared with
// other goroutines.
type Uploader struct {
	st    *store.Store
	tr    transport.Transport
	sg    signer.Signer
	queue *executor.Queue
	cfg   Config

	// uploading is true while an upload attempt is running on the upload
	// queue. Trigger reads it from arbitrary goroutines to drop requests
	// that arrive mid-upload; the active attempt re-checks the pending
	// count before going idle, so dropped requests lose nothing.
	uploading atomic.Bool

	// backoffLimit is the reduced batch limit while payload-too-large
	// backoff is active; 0 means no backoff. Persisted so a restart
	// resumes with the reduced limit.
	backoffLimit int

	offline atomic.Bool
}

// New creates an upload engine, restoring any persisted backoff limit.
func New(st *store.Store, tr transport.Transport, sg signer.Signer, queue *executor.Queue, cfg Config) *Uploader {
	u := &Uploader{
		st:    st,
		tr:    tr,
		sg:    sg,
		queue: queue,
		cfg:   cfg,
	}
	if limit, ok, err := st.GetLong(store.KeyBackoffBatchSize); err == nil && ok && limit > 0 {
		u.backoffLimit = int(limit)
	}
	return u
}

// Trigger requests an upload on the upload queue and returns immediately.
// A request observed while an upload is active is dropped, not queued.
func (u *Uploader) Trigger() {
	if u.uploading.Load() {
		return
	}
	u.queue.Do(u.run)
}

// TriggerSync requests an upload and blocks until the attempt completes.
// Used by explicit flush calls, which must queue behind an active upload
// rather than drop.
func (u *Uploader) TriggerSync() {
	u.queue.DoSync(u.run)
}

// SetOffline toggles offline mode. While offline, upload attempts return
// immediately without consulting the transport; turning offline off
// schedules a deferred upload.
func (u *Uploader) SetOffline(offline bool) {
	u.offline.Store(offline)
	if !offline {
		u.Trigger()
	}
}

// Offline reports whether offline mode is active.
func (u *Uploader) Offline() bool {
	return u.offline.Load()
}

// run executes on the upload queue. It loops while batches keep succeeding
// or the backoff algorithm asks for an immediate retry, then goes idle.
func (u *Uploader) run() {
	if u.offline.Load() {
		return
	}
	u.uploading.Store(true)
	defer u.uploading.Store(false)

	for u.uploadOnce() {
	}
}

// effectiveLimit returns min(configured max batch size, backoff limit).
func (u *Uploader) effectiveLimit() int {
	if u.backoffLimit > 0 && u.backoffLimit < u.cfg.MaxBatchSize {
		return u.backoffLimit
	}
	return u.cfg.MaxBatchSize
}

// uploadOnce reads one batch, submits it, and applies the response. The
// return value reports whether another attempt should run immediately.
func (u *Uploader) uploadOnce() bool {
	limit := int64(u.effectiveLimit())

	events, err := u.st.Read(types.KindEvent, -1, limit)
	if err != nil {
		log.Printf("uploader: failed to read events: %v", err)
		return false
	}
	identifys, err := u.st.Read(types.KindIdentify, -1, limit)
	if err != nil {
		log.Printf("uploader: failed to read identifys: %v", err)
		return false
	}

	batch, maxEventID, maxIdentifyID := mergeBatch(events, identifys, int(limit))
	if len(batch) == 0 {
		return false
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		log.Printf("uploader: failed to serialize batch: %v", err)
		return false
	}

	uploadTime := strconv.FormatInt(time.Now().UnixMilli(), 10)
	req := transport.Request{
		APIKey:     u.cfg.APIKey,
		APIVersion: u.cfg.APIVersion,
		Events:     string(payload),
		Count:      len(batch),
		UploadTime: uploadTime,
		Checksum:   u.sg.Checksum(u.cfg.APIVersion, u.cfg.APIKey, string(payload), uploadTime),
	}

	res := u.tr.Post(context.Background(), req)

	switch res.Status {
	case transport.StatusSuccess:
		if res.Added != len(batch) {
			log.Printf("uploader: collector acknowledged %d of %d records, leaving batch for retry", res.Added, len(batch))
			return false
		}
		return u.applyAck(maxEventID, maxIdentifyID)

	case transport.StatusTooLarge:
		return u.applyTooLarge(batch)

	default:
		if res.Err != nil {
			log.Printf("uploader: upload failed: %v", res.Err)
		}
		return false
	}
}

// applyAck deletes acknowledged rows and decides whether to continue
// draining. The backoff limit resets once the pending count drops back
// under the upload threshold.
func (u *Uploader) applyAck(maxEventID, maxIdentifyID int64) bool {
	if maxEventID > 0 {
		if err := u.st.DeleteUpTo(types.KindEvent, maxEventID); err != nil {
			log.Printf("uploader: failed to delete acknowledged events: %v", err)
			return false
		}
	}
	if maxIdentifyID > 0 {
		if err := u.st.DeleteUpTo(types.KindIdentify, maxIdentifyID); err != nil {
			log.Printf("uploader: failed to delete acknowledged identifys: %v", err)
			return false
		}
	}

	pending, err := u.st.TotalCount()
	if err != nil {
		log.Printf("uploader: failed to count pending rows: %v", err)
		return false
	}

	if u.backoffLimit > 0 && pending < int64(u.cfg.Threshold) {
		u.resetBackoff()
	}

	return pending > 0
}

// applyTooLarge runs the payload-too-large recovery: halve the batch limit
// (minimum 1) and retry immediately. A single-row batch that is still too
// large is a poison pill; its row is deleted unconditionally and the
// reduced limit stays in place.
func (u *Uploader) applyTooLarge(batch []types.Event) bool {
	if len(batch) == 1 {
		// Delete by the row's source kind, not its event type: row ids are
		// scoped per table and a caller event may carry any type.
		kind := batch[0].Kind
		log.Printf("uploader: dropping oversized row %d (%s)", batch[0].RowID, kind)
		if err := u.st.DeleteByID(kind, batch[0].RowID); err != nil {
			log.Printf("uploader: failed to drop oversized row: %v", err)
			return false
		}
		return true
	}

	u.setBackoffLimit((len(batch) + 1) / 2)
	return true
}

func (u *Uploader) setBackoffLimit(limit int) {
	if limit < 1 {
		limit = 1
	}
	u.backoffLimit = limit
	if err := u.st.SetLong(store.KeyBackoffBatchSize, int64(limit)); err != nil {
		log.Printf("uploader: failed to persist backoff limit: %v", err)
	}
	log.Printf("uploader: payload too large, reducing batch limit to %d", limit)
}

func (u *Uploader) resetBackoff() {
	u.backoffLimit = 0
	if err := u.st.DeleteLong(store.KeyBackoffBatchSize); err != nil {
		log.Printf("uploader: failed to clear backoff limit: %v", err)
	}
	log.Printf("uploader: pending count below threshold, restoring batch limit to %d", u.cfg.MaxBatchSize)
}
