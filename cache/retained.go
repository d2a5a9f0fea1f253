package cache

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// retained holds slots that have no subscribers and no fetch in flight.
// Slots expire after the GC time; when the pool is full ristretto's admission
// policy decides what is kept. A slot missing from the pool has simply been
// garbage collected.
type retained struct {
	rc  *ristretto.Cache[string, *slot]
	ttl time.Duration
}

// newRetained creates a pool holding at most maxEntries slots (each slot has
// a cost of 1). A zero ttl means slots never expire on their own.
func newRetained(maxEntries int64, ttl time.Duration) (*retained, error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, *slot]{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &retained{rc: rc, ttl: ttl}, nil
}

func (r *retained) get(k Key) (*slot, bool) {
	return r.rc.Get(k.String())
}

func (r *retained) put(k Key, sl *slot) {
	r.rc.SetWithTTL(k.String(), sl, 1, r.ttl)
	r.rc.Wait()
}

func (r *retained) del(k Key) {
	r.rc.Del(k.String())
	r.rc.Wait()
}

func (r *retained) close() {
	r.rc.Close()
}
