package cart

import (
	"sync"
	"time"

	"github.com/angelmondragon/storefront-cart/pkg/enums"
)

// Event reports an asynchronous failure or authority change to the session owner.
type Event struct {
	Kind enums.SyncEventKind
	Err  error
	At   time.Time
}

// Notifier receives sync events. Implementations must not block.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) {
	if f != nil {
		f(e)
	}
}

// ChannelNotifier buffers events on a channel and drops them when the buffer is full.
type ChannelNotifier struct {
	mu      sync.Mutex
	ch      chan Event
	closed  bool
	dropped int
}

func NewChannelNotifier(buffer int) *ChannelNotifier {
	if buffer < 1 {
		buffer = 1
	}
	return &ChannelNotifier{ch: make(chan Event, buffer)}
}

func (n *ChannelNotifier) Notify(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.ch <- e:
	default:
		n.dropped++
	}
}

// Events is the receive side; it is closed by Close.
func (n *ChannelNotifier) Events() <-chan Event {
	return n.ch
}

// Dropped reports how many events were discarded because nobody was reading.
func (n *ChannelNotifier) Dropped() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dropped
}

func (n *ChannelNotifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	close(n.ch)
}
