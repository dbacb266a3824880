package store

import (
	"context"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"drinkLogAPI/internal/drink"
)

// MemoryStore keeps records in process. It backs tests and STORE_DRIVER=memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]drink.Record
	broker  *Broker
	failErr error
	closed  bool
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]drink.Record),
		broker:  NewBroker(),
		now:     time.Now,
	}
}

// FailWith makes every following call return err until cleared with nil.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

func (s *MemoryStore) check() error {
	if s.closed {
		return ErrClosed
	}
	return s.failErr
}

func (s *MemoryStore) FetchAll(_ context.Context, ownerID string) ([]drink.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	out := make([]drink.Record, len(s.records[ownerID]))
	copy(out, s.records[ownerID])
	drink.SortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) CreateRecords(ctx context.Context, ownerID string, date civil.Date, count int) error {
	return s.BulkCreate(ctx, ownerID, repeatDate(date, count))
}

func (s *MemoryStore) BulkCreate(_ context.Context, ownerID string, dates []civil.Date) error {
	s.mu.Lock()
	if err := s.check(); err != nil {
		s.mu.Unlock()
		return err
	}
	recs := newRecords(ownerID, dates, s.now())
	s.records[ownerID] = append(s.records[ownerID], recs...)
	s.mu.Unlock()

	s.broker.PublishAll(drink.InsertedAll(recs))
	return nil
}

func (s *MemoryStore) DeleteRecords(_ context.Context, ownerID string, ids []uuid.UUID) error {
	s.mu.Lock()
	if err := s.check(); err != nil {
		s.mu.Unlock()
		return err
	}

	doomed := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		doomed[id] = true
	}

	var (
		kept    []drink.Record
		removed []uuid.UUID
	)
	for _, r := range s.records[ownerID] {
		if doomed[r.ID] {
			removed = append(removed, r.ID)
			continue
		}
		kept = append(kept, r)
	}
	s.records[ownerID] = kept
	s.mu.Unlock()

	s.broker.PublishAll(drink.DeletedAll(ownerID, removed))
	return nil
}

func (s *MemoryStore) Subscribe(_ context.Context, ownerID string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.broker.Subscribe(ownerID), nil
}

func (s *MemoryStore) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.check()
}

func (s *MemoryStore) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.broker.CloseAll()
}
