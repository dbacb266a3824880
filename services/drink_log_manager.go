package services

import (
	"context"
	"log"
	"sync"
	"time"

	"drinkLogAPI/internal/notify"
	"drinkLogAPI/internal/stats"
	"drinkLogAPI/internal/store"
	"drinkLogAPI/middleware"
)

// DrinkLogManager holds one DrinkLog per owner, starting them on first use
// and closing them once they sit idle with nobody listening.
type DrinkLogManager struct {
	store    store.RecordStore
	engine   stats.Engine
	notifier notify.Notifier
	idleTTL  time.Duration

	mu       sync.Mutex
	sessions map[string]*DrinkLog
}

func NewDrinkLogManager(st store.RecordStore, engine stats.Engine, notifier notify.Notifier, idleTTL time.Duration) *DrinkLogManager {
	return &DrinkLogManager{
		store:    st,
		engine:   engine,
		notifier: notifier,
		idleTTL:  idleTTL,
		sessions: make(map[string]*DrinkLog),
	}
}

// Get returns the owner's running session. Concurrent first calls share one
// Start; a failed Start is forgotten so the next call retries.
func (m *DrinkLogManager) Get(ctx context.Context, ownerID string) (*DrinkLog, error) {
	m.mu.Lock()
	s, ok := m.sessions[ownerID]
	if !ok {
		s = NewDrinkLog(ownerID, m.store, m.engine, m.notifier)
		m.sessions[ownerID] = s
		middleware.SetActiveSessions(len(m.sessions))
	}
	m.mu.Unlock()

	if !ok {
		if err := s.Start(ctx); err != nil {
			m.forget(ownerID, s)
			return nil, err
		}
		return s, nil
	}

	if err := s.Ready(ctx); err != nil {
		return nil, err
	}
	s.touch()
	return s, nil
}

func (m *DrinkLogManager) forget(ownerID string, s *DrinkLog) {
	m.mu.Lock()
	if m.sessions[ownerID] == s {
		delete(m.sessions, ownerID)
	}
	middleware.SetActiveSessions(len(m.sessions))
	m.mu.Unlock()
}

// Sessions reports how many sessions are held.
func (m *DrinkLogManager) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Cleanup evicts idle sessions every minute until done is closed.
func (m *DrinkLogManager) Cleanup(done <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			m.EvictIdle(now)
		}
	}
}

// EvictIdle closes every started session unused since now minus the idle TTL
// that has no listeners, and returns how many it closed.
func (m *DrinkLogManager) EvictIdle(now time.Time) int {
	var idle []*DrinkLog

	m.mu.Lock()
	for owner, s := range m.sessions {
		if !s.started.Load() || s.Listeners() > 0 {
			continue
		}
		if now.Sub(s.idleSince()) > m.idleTTL {
			delete(m.sessions, owner)
			idle = append(idle, s)
		}
	}
	middleware.SetActiveSessions(len(m.sessions))
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		log.Printf("DrinkLogManager: evicted %d idle sessions", len(idle))
	}
	return len(idle)
}

// CloseAll closes every session; used on shutdown.
func (m *DrinkLogManager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*DrinkLog)
	middleware.SetActiveSessions(0)
	m.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}
