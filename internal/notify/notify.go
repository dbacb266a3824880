package notify

import (
	"context"
	"log"
	"sync"
	"time"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

// Notice is a short user-visible message about the outcome of an action.
type Notice struct {
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type Notifier interface {
	Notify(ctx context.Context, ownerID string, n Notice) error
}

func Success(msg string) Notice { return Notice{Level: LevelSuccess, Message: msg, CreatedAt: time.Now()} }
func Info(msg string) Notice    { return Notice{Level: LevelInfo, Message: msg, CreatedAt: time.Now()} }
func Error(msg string) Notice   { return Notice{Level: LevelError, Message: msg, CreatedAt: time.Now()} }

// Multi delivers to every notifier; one failing does not stop the others.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ownerID string, n Notice) error {
	var first error
	for _, nt := range m {
		if err := nt.Notify(ctx, ownerID, n); err != nil {
			log.Printf("Notify: %T failed for %s: %v", nt, ownerID, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// LogNotifier writes notices to the process log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, ownerID string, n Notice) error {
	log.Printf("Notice [%s] for %s: %s", n.Level, ownerID, n.Message)
	return nil
}

const defaultFeedSize = 50

// Feed keeps the most recent notices per owner, newest first.
type Feed struct {
	mu      sync.Mutex
	size    int
	notices map[string][]Notice
}

func NewFeed(size int) *Feed {
	if size <= 0 {
		size = defaultFeedSize
	}
	return &Feed{size: size, notices: make(map[string][]Notice)}
}

func (f *Feed) Notify(_ context.Context, ownerID string, n Notice) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	list := append([]Notice{n}, f.notices[ownerID]...)
	if len(list) > f.size {
		list = list[:f.size]
	}
	f.notices[ownerID] = list
	return nil
}

// Recent returns up to limit notices, newest first. limit <= 0 means all.
func (f *Feed) Recent(ownerID string, limit int) []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()

	list := f.notices[ownerID]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	out := make([]Notice, len(list))
	copy(out, list)
	return out
}
