// Package notify holds the user-visible notices raised by cart and checkout
// operations until the shopper's client collects them.
package notify

import (
	"sync"
	"time"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

type Notice struct {
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier is the write side used by the services.
type Notifier interface {
	Info(message string)
	Error(message string)
}

const defaultCapacity = 20

// Inbox is a bounded, per-session list of notices. When full the oldest
// notice is dropped.
type Inbox struct {
	mu       sync.Mutex
	notices  []Notice
	capacity int
	now      func() time.Time
}

func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Inbox{capacity: capacity, now: time.Now}
}

func (b *Inbox) Info(message string)  { b.push(LevelInfo, message) }
func (b *Inbox) Error(message string) { b.push(LevelError, message) }

func (b *Inbox) push(level Level, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.notices) == b.capacity {
		b.notices = b.notices[1:]
	}
	b.notices = append(b.notices, Notice{Level: level, Message: message, At: b.now().UTC()})
}

// Drain returns pending notices oldest first and empties the inbox.
func (b *Inbox) Drain() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.notices
	b.notices = nil
	if out == nil {
		out = []Notice{}
	}
	return out
}

// Discard drops everything written to it.
type Discard struct{}

func (Discard) Info(string)  {}
func (Discard) Error(string) {}
