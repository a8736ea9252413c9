// Package device provides the platform collaborator boundary: device/app
// metadata and the device identifier fallback chain. Implementations may be
// slow; the collector caches results and never calls them from its
// serialized queues.
package device

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/beaconlabs/beacon/internal/store"
)

// Info is the device/app metadata attached to every event.
type Info struct {
	Platform           string
	OSName             string
	OSVersion          string
	DeviceBrand        string
	DeviceManufacturer string
	DeviceModel        string
	Carrier            string
	Country            string
	Language           string
	VersionName        string
	AdvertisingID      string
	LimitAdTracking    bool
}

// InfoProvider is the synchronous metadata accessor supplied by the host
// platform.
type InfoProvider interface {
	Info() Info
}

// StaticInfo is an InfoProvider returning fixed metadata. Used by hosts
// that collect metadata once at startup, and by tests.
type StaticInfo struct {
	I Info
}

func (s StaticInfo) Info() Info { return s.I }

// CachedProvider wraps a possibly slow InfoProvider and fetches its result
// at most once. Safe for concurrent use.
type CachedProvider struct {
	provider InfoProvider

	once sync.Once
	info Info
}

// NewCachedProvider wraps the given provider. A nil provider yields empty
// metadata.
func NewCachedProvider(p InfoProvider) *CachedProvider {
	return &CachedProvider{provider: p}
}

func (c *CachedProvider) Info() Info {
	c.once.Do(func() {
		if c.provider != nil {
			c.info = c.provider.Info()
		}
	})
	return c.info
}

// IDSource produces a candidate device identifier. Sources returning an
// empty string are skipped.
type IDSource func() (string, error)

// RandomIDSuffix marks device ids generated locally rather than obtained
// from the platform, so downstream systems can tell the two apart.
const RandomIDSuffix = "R"

// ResolveID returns the stable device id for the store, walking the
// platform fallback chain on first initialization. The resolved id is
// persisted and immutable for the lifetime of the local store unless
// explicitly reset.
func ResolveID(st *store.Store, sources ...IDSource) string {
	if id, ok, err := st.GetString(store.KeyDeviceID); err == nil && ok && id != "" {
		return id
	}

	for _, source := range sources {
		id, err := source()
		if err != nil {
			log.Printf("device: id source failed: %v", err)
			continue
		}
		if id != "" {
			persistID(st, id)
			return id
		}
	}

	id := uuid.NewString() + RandomIDSuffix
	persistID(st, id)
	return id
}

func persistID(st *store.Store, id string) {
	if err := st.SetString(store.KeyDeviceID, id); err != nil {
		log.Printf("device: failed to persist device id: %v", err)
	}
}
