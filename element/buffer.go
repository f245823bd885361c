package element

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ClockTimeNone marks an unset timestamp or duration.
const ClockTimeNone time.Duration = -1

// Meta is extra data attached to a buffer, identified by its API name.
type Meta interface {
	API() string
}

// Buffer is a reference-counted unit of payload with timing metadata. The
// element never copies a buffer unless it has to modify a shared one.
type Buffer struct {
	PTS      time.Duration
	DTS      time.Duration
	Duration time.Duration
	Offset   uint64

	data  []byte
	metas []Meta
	refs  atomic.Int32
}

// NewBuffer wraps data in a buffer with a single reference and no timing.
func NewBuffer(data []byte) *Buffer {
	b := &Buffer{
		PTS:      ClockTimeNone,
		DTS:      ClockTimeNone,
		Duration: ClockTimeNone,
		data:     data,
	}
	b.refs.Store(1)
	return b
}

func (b *Buffer) Bytes() []byte {
	return b.data
}

func (b *Buffer) Size() int {
	return len(b.data)
}

// Ref takes an additional reference.
func (b *Buffer) Ref() *Buffer {
	b.refs.Add(1)
	return b
}

// Unref drops a reference; the payload is released with the last one.
func (b *Buffer) Unref() {
	if b.refs.Add(-1) == 0 {
		b.data = nil
		b.metas = nil
	}
}

// RefCount returns the number of live references.
func (b *Buffer) RefCount() int32 {
	return b.refs.Load()
}

// IsWritable reports whether the caller holds the only reference.
func (b *Buffer) IsWritable() bool {
	return b.refs.Load() == 1
}

// Copy returns a deep copy with its own reference.
func (b *Buffer) Copy() *Buffer {
	data := make([]byte, len(b.data))
	copy(data, b.data)
	out := NewBuffer(data)
	out.copyMetadataFrom(b)
	out.metas = append([]Meta(nil), b.metas...)
	return out
}

// MakeWritable returns b itself when writable, otherwise a copy; the
// reference held by the caller on b moves to the returned buffer.
func (b *Buffer) MakeWritable() *Buffer {
	if b.IsWritable() {
		return b
	}
	out := b.Copy()
	b.Unref()
	return out
}

// copyMetadataFrom copies timing and offset from another buffer.
func (b *Buffer) copyMetadataFrom(src *Buffer) {
	b.PTS = src.PTS
	b.DTS = src.DTS
	b.Duration = src.Duration
	b.Offset = src.Offset
}

// NewDerivedBuffer creates a buffer carrying data with src's timing.
func NewDerivedBuffer(src *Buffer, data []byte) *Buffer {
	out := NewBuffer(data)
	out.copyMetadataFrom(src)
	return out
}

// AddMeta attaches a meta, replacing one with the same API.
func (b *Buffer) AddMeta(m Meta) {
	for i, existing := range b.metas {
		if existing.API() == m.API() {
			b.metas[i] = m
			return
		}
	}
	b.metas = append(b.metas, m)
}

// Meta returns the meta registered under api, or nil.
func (b *Buffer) Meta(api string) Meta {
	for _, m := range b.metas {
		if m.API() == api {
			return m
		}
	}
	return nil
}

func (b *Buffer) Metas() []Meta {
	return b.metas
}

func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer(size=%d, pts=%s, dur=%s, offset=%d, metas=%d)",
		len(b.data), clockTimeString(b.PTS), clockTimeString(b.Duration), b.Offset, len(b.metas))
}

func clockTimeString(t time.Duration) string {
	if t < 0 {
		return "none"
	}
	return t.String()
}
