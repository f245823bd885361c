package element

import (
	"sync"
	"time"
)

// MessageType identifies a bus message.
type MessageType int

const (
	MessageError MessageType = iota + 1
	MessageWarning
	MessageStateChanged
)

func (t MessageType) String() string {
	switch t {
	case MessageError:
		return "error"
	case MessageWarning:
		return "warning"
	case MessageStateChanged:
		return "state-changed"
	}
	return "unknown"
}

// Message is posted by an element for its host.
type Message struct {
	Type       MessageType
	Source     string
	Err        error
	Transition StateChange
	Time       time.Time
}

type watch struct {
	fn func(*Message) bool
}

// Bus delivers element messages to host watches.
type Bus struct {
	mu      sync.Mutex
	watches []*watch
}

func NewBus() *Bus {
	return &Bus{}
}

// AddWatch registers fn for every posted message until fn returns false.
func (b *Bus) AddWatch(fn func(*Message) bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watches = append(b.watches, &watch{fn: fn})
}

// Post delivers msg to the registered watches.
func (b *Bus) Post(msg *Message) {
	if msg.Time.IsZero() {
		msg.Time = time.Now()
	}
	b.mu.Lock()
	watches := append([]*watch(nil), b.watches...)
	b.mu.Unlock()

	for _, w := range watches {
		if !w.fn(msg) {
			b.remove(w)
		}
	}
}

func (b *Bus) remove(w *watch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, existing := range b.watches {
		if existing == w {
			b.watches = append(b.watches[:i], b.watches[i+1:]...)
			return
		}
	}
}
