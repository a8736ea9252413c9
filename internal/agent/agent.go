// Package agent wires the collector's components into a single client:
// durable store, session manager, submission pipeline, upload engine, and
// the configured transport.
package agent

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/beaconlabs/beacon/internal/config"
	"github.com/beaconlabs/beacon/internal/device"
	"github.com/beaconlabs/beacon/internal/executor"
	"github.com/beaconlabs/beacon/internal/identify"
	"github.com/beaconlabs/beacon/internal/pipeline"
	"github.com/beaconlabs/beacon/internal/session"
	"github.com/beaconlabs/beacon/internal/signer"
	"github.com/beaconlabs/beacon/internal/store"
	"github.com/beaconlabs/beacon/internal/transport"
	"github.com/beaconlabs/beacon/internal/uploader"
)

// Options carries optional collaborators. Zero-value fields fall back to
// the configuration-driven defaults.
type Options struct {
	// InfoProvider supplies device/app metadata. Nil yields empty metadata.
	InfoProvider device.InfoProvider

	// Transport overrides the configured transport. Used by tests and by
	// hosts with custom delivery paths.
	Transport transport.Transport

	// Signer overrides the default murmur3 checksum signer.
	Signer signer.Signer

	// DeviceIDSources is the platform fallback chain consulted when no
	// device id is persisted yet.
	DeviceIDSources []device.IDSource
}

// Client is one collector instance. All methods are safe for concurrent
// use; submission methods return immediately and do their work on the
// client's write queue.
type Client struct {
	cfg *config.Config
	st  *store.Store
	pl  *pipeline.Pipeline
	up  *uploader.Uploader

	writeQueue  *executor.Queue
	uploadQueue *executor.Queue

	closeOnce sync.Once
}

// New creates and starts a collector instance. If the store at the
// configured path cannot be opened it is recreated from scratch; a corrupt
// local queue must never block the host application.
func New(cfg *config.Config, opts Options) (*Client, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.DatabasePath(), cfg.EventMaxCount)
	if err != nil {
		log.Printf("agent: store unusable, recreating: %v", err)
		st, err = recoverStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	tr := opts.Transport
	if tr == nil {
		tr, err = buildTransport(cfg)
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	sg := opts.Signer
	if sg == nil {
		sg = signer.Murmur3Signer{}
	}

	writeQueue := executor.NewQueue("write")
	uploadQueue := executor.NewQueue("upload")

	up := uploader.New(st, tr, sg, uploadQueue, uploader.Config{
		APIKey:       cfg.APIKey,
		APIVersion:   cfg.Upload.APIVersion,
		MaxBatchSize: cfg.Upload.MaxBatchSize,
		Threshold:    cfg.Upload.Threshold,
	})
	if cfg.Offline {
		up.SetOffline(true)
	}

	sessions := session.NewManager(st, cfg.Session.Timeout.Milliseconds())

	info := opts.InfoProvider
	if info == nil {
		info = device.StaticInfo{I: device.Info{
			Platform:           cfg.Device.Platform,
			OSName:             cfg.Device.OSName,
			OSVersion:          cfg.Device.OSVersion,
			DeviceBrand:        cfg.Device.DeviceBrand,
			DeviceManufacturer: cfg.Device.DeviceManufacturer,
			DeviceModel:        cfg.Device.DeviceModel,
			Carrier:            cfg.Device.Carrier,
			Country:            cfg.Device.Country,
			Language:           cfg.Device.Language,
			VersionName:        cfg.Device.VersionName,
		}}
	}
	cached := device.NewCachedProvider(info)

	if len(opts.DeviceIDSources) > 0 {
		device.ResolveID(st, opts.DeviceIDSources...)
	}

	pl := pipeline.New(cfg, st, sessions, up, writeQueue, cached)

	return &Client{
		cfg:         cfg,
		st:          st,
		pl:          pl,
		up:          up,
		writeQueue:  writeQueue,
		uploadQueue: uploadQueue,
	}, nil
}

// recoverStore deletes the store files and opens a fresh one. Unsent rows
// are lost; the alternative is a permanently wedged collector.
func recoverStore(cfg *config.Config) (*store.Store, error) {
	path := cfg.DatabasePath()
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			log.Printf("agent: failed to remove %s%s: %v", path, suffix, err)
		}
	}
	return store.Open(path, cfg.EventMaxCount)
}

func buildTransport(cfg *config.Config) (transport.Transport, error) {
	switch cfg.Transport.Type {
	case "s3":
		return transport.NewS3Transport(context.Background(), transport.S3Config{
			Bucket:       cfg.Transport.S3.Bucket,
			Region:       cfg.Transport.S3.Region,
			Endpoint:     cfg.Transport.S3.Endpoint,
			Prefix:       cfg.Transport.S3.Prefix,
			UsePathStyle: cfg.Transport.S3.UsePathStyle,
		})
	default:
		return transport.NewHTTPTransport(cfg.Transport.URL, nil), nil
	}
}

// LogEvent queues an event with the given type and properties.
func (c *Client) LogEvent(eventType string, properties map[string]interface{}) {
	c.pl.LogEvent(pipeline.Submission{EventType: eventType, EventProperties: properties})
}

// LogEventWith queues an event with full submission control (timestamp,
// groups, out-of-session flag).
func (c *Client) LogEventWith(sub pipeline.Submission) {
	c.pl.LogEvent(sub)
}

// LogEventSync persists an event on the calling goroutine and returns the
// storage row id, or -1 when the event was dropped.
func (c *Client) LogEventSync(sub pipeline.Submission) int64 {
	return c.pl.LogEventSync(sub)
}

// Identify queues a user-property operation set. Empty sets are dropped.
func (c *Client) Identify(id *identify.Identify) {
	c.pl.Identify(id, false)
}

// IdentifyOutOfSession queues an operation set without touching session
// state.
func (c *Client) IdentifyOutOfSession(id *identify.Identify) {
	c.pl.Identify(id, true)
}

// SetUserProperties queues a $set identify for the given properties.
func (c *Client) SetUserProperties(properties map[string]interface{}) {
	c.pl.SetUserProperties(properties)
}

// LogRevenue queues a revenue event.
func (c *Client) LogRevenue(productID string, quantity int, price float64) {
	c.pl.LogRevenue(productID, quantity, price)
}

// SetUserID durably associates subsequent events with the given user.
func (c *Client) SetUserID(userID string) { c.pl.SetUserID(userID) }

// UserID returns the current user id.
func (c *Client) UserID() string { return c.pl.UserID() }

// SetDeviceID overrides the resolved device id. Empty ids are ignored.
func (c *Client) SetDeviceID(deviceID string) { c.pl.SetDeviceID(deviceID) }

// DeviceID returns the stable device id for this store.
func (c *Client) DeviceID() string { return c.pl.DeviceID() }

// SessionID returns the active session id, or -1 when none exists.
func (c *Client) SessionID() int64 { return c.pl.SessionID() }

// SetOptOut toggles collection. While opted out, submissions are dropped.
func (c *Client) SetOptOut(optOut bool) { c.pl.SetOptOut(optOut) }

// OptOut reports whether collection is disabled.
func (c *Client) OptOut() bool { return c.pl.OptOut() }

// SetOffline toggles offline mode. Events queue locally while offline;
// going back online triggers an upload.
func (c *Client) SetOffline(offline bool) { c.up.SetOffline(offline) }

// UploadEvents requests an upload of pending rows and returns immediately.
func (c *Client) UploadEvents() { c.up.Trigger() }

// Flush drains queued submissions and runs one upload attempt to
// completion before returning.
func (c *Client) Flush() {
	c.writeQueue.DoSync(func() {})
	c.up.TriggerSync()
}

// Close flushes queued work, stops both queues, and closes the store.
// The client is unusable afterwards.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.pl.Close()
		c.writeQueue.Close()
		c.uploadQueue.Close()
		err = c.st.Close()
	})
	return err
}
