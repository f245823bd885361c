package detect

import (
	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"
)

// resultCache remembers the detections of recently seen frames. Fixed
// cameras produce many identical frames; those skip inference.
type resultCache struct {
	raw *ristretto.Cache
}

func newResultCache(size int64) (*resultCache, error) {
	raw, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,
		// every entry costs 1, MaxCost counts frames
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating result cache")
	}
	return &resultCache{raw: raw}, nil
}

func frameKey(frame Frame) uint64 {
	d := xxhash.New()
	_, _ = d.Write(frame.Data)
	_, _ = d.WriteString(frame.Format)
	return d.Sum64() ^ uint64(frame.Width)<<32 ^ uint64(frame.Height)
}

func (c *resultCache) get(key uint64) ([]Detection, bool) {
	v, ok := c.raw.Get(key)
	if !ok {
		return nil, false
	}
	dets, ok := v.([]Detection)
	if !ok {
		return nil, false
	}
	return append([]Detection(nil), dets...), true
}

// set stores a private copy; buffers downstream own the slice they carry.
func (c *resultCache) set(key uint64, dets []Detection) {
	c.raw.Set(key, append([]Detection(nil), dets...), 1)
}

// wait blocks until buffered writes are visible to get.
func (c *resultCache) wait() {
	c.raw.Wait()
}

func (c *resultCache) close() {
	c.raw.Close()
}
