package rtspcore

import (
	"sync"

	"github.com/kinoglaz/kgd/internal/config"
)

// entry is one cached Container plus the DESCRIBE sessions currently
// sharing it.
type entry struct {
	container *Container
	refCount  int
}

// Cache is the process-wide singleton description cache (spec §4.6,
// §9's SHARE_DESCRIPTORS-gated sharing): the same on-disk resource opened
// by concurrent sessions reuses one Container and its already-loaded
// frames instead of re-demuxing the source per session.
type Cache struct {
	mu    sync.Mutex
	share bool
	byKey map[string]*entry
}

// NewCache creates an empty description cache. share mirrors
// Config.ShareDescriptors: when false, every Load call opens a fresh,
// unshared Container and Release closes it immediately.
func NewCache(share bool) *Cache {
	return &Cache{share: share, byKey: map[string]*entry{}}
}

// Load resolves name to a Container, reusing an existing one (and
// bumping its refcount) when sharing is enabled and one is already
// cached for this key.
func (c *Cache) Load(baseDir, name string, lc config.LiveCast) (*Container, error) {
	key := baseDir + "\x00" + name

	if c.share {
		c.mu.Lock()
		if e, ok := c.byKey[key]; ok {
			e.refCount++
			c.mu.Unlock()
			return e.container, nil
		}
		c.mu.Unlock()
	}

	container, err := OpenContainer(baseDir, name, lc)
	if err != nil {
		return nil, err
	}

	if c.share {
		c.mu.Lock()
		if e, ok := c.byKey[key]; ok {
			// lost the race with a concurrent Load: drop the one just
			// opened, reuse the winner instead.
			e.refCount++
			c.mu.Unlock()
			container.Stop()
			return e.container, nil
		}
		c.byKey[key] = &entry{container: container, refCount: 1}
		c.mu.Unlock()
	}

	return container, nil
}

// Release drops one reference on name's cached Container, stopping and
// evicting it once the last referencing session releases it. When sharing
// is disabled, Load never cached the Container, so Release stops it
// immediately.
func (c *Cache) Release(baseDir, name string, container *Container) {
	key := baseDir + "\x00" + name

	if !c.share {
		container.Stop()
		return
	}

	c.mu.Lock()
	e, ok := c.byKey[key]
	if !ok {
		c.mu.Unlock()
		container.Stop()
		return
	}
	e.refCount--
	stop := e.refCount <= 0
	if stop {
		delete(c.byKey, key)
	}
	c.mu.Unlock()

	if stop {
		container.Stop()
	}
}
