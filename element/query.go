package element

import (
	"fmt"
	"time"
)

// QueryType identifies a query.
type QueryType int

const (
	QueryPosition QueryType = iota + 1
	QueryDuration
	QueryLatency
	QuerySeeking
	QueryCaps
	QueryAcceptCaps
	QueryCustom
)

func (t QueryType) String() string {
	switch t {
	case QueryPosition:
		return "position"
	case QueryDuration:
		return "duration"
	case QueryLatency:
		return "latency"
	case QuerySeeking:
		return "seeking"
	case QueryCaps:
		return "caps"
	case QueryAcceptCaps:
		return "accept-caps"
	case QueryCustom:
		return "custom"
	}
	return fmt.Sprintf("QueryType(%d)", int(t))
}

// Format is the unit of position and duration answers.
type Format int

const (
	FormatTime Format = iota + 1
	FormatBytes
	FormatDefault
)

// Query is a synchronous request answered in place by the pad that handles
// it. Request fields are set by the caller, answer fields by the answering
// peer.
type Query struct {
	Type   QueryType
	Format Format
	Filter *Caps
	Fields map[string]interface{}

	Position   int64
	Duration   int64
	Live       bool
	MinLatency time.Duration
	MaxLatency time.Duration
	Seekable   bool
	ResultCaps *Caps
	Accepted   bool
}

// NewPositionQuery asks for the current stream position in format.
func NewPositionQuery(format Format) *Query {
	return &Query{Type: QueryPosition, Format: format, Position: -1}
}

// NewDurationQuery asks for the total stream duration in format.
func NewDurationQuery(format Format) *Query {
	return &Query{Type: QueryDuration, Format: format, Duration: -1}
}

func NewLatencyQuery() *Query {
	return &Query{Type: QueryLatency, MaxLatency: ClockTimeNone}
}

func NewSeekingQuery(format Format) *Query {
	return &Query{Type: QuerySeeking, Format: format}
}

// NewCapsQuery asks which caps the peer can produce or accept, optionally
// restricted to filter.
func NewCapsQuery(filter *Caps) *Query {
	return &Query{Type: QueryCaps, Filter: filter}
}

func NewAcceptCapsQuery(caps *Caps) *Query {
	return &Query{Type: QueryAcceptCaps, Filter: caps}
}

// copy returns a deep copy of q; the peer answering the original can not
// reach into it.
func (q *Query) copy() *Query {
	out := *q
	out.Filter = q.Filter.deepCopy()
	out.ResultCaps = q.ResultCaps.deepCopy()
	out.Fields = copyFields(q.Fields)
	return &out
}

func (q *Query) String() string {
	return fmt.Sprintf("Query(%s)", q.Type)
}
