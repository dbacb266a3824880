// DrinkLog is one owner's live view of their drink history. The Run loop is the
// only goroutine that writes the record list: it applies events pushed by the
// record store, swaps in fresh lists after an import, and fans every change out
// to the websocket listeners registered through the register channel.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/civil"

	"drinkLogAPI/internal/csvio"
	"drinkLogAPI/internal/drink"
	"drinkLogAPI/internal/notify"
	"drinkLogAPI/internal/reconcile"
	"drinkLogAPI/internal/stats"
	"drinkLogAPI/internal/store"
	"drinkLogAPI/middleware"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrSessionClosed = errors.New("drink log session is closed")
)

const (
	listenerBuffer = 256

	resyncMinBackoff = time.Second
	resyncMaxBackoff = 30 * time.Second
)

// StreamMessage is what listeners receive. A snapshot replaces the client's
// whole list; inserted and deleted carry a single confirmed change.
type StreamMessage struct {
	Kind    string         `json:"kind"`
	Event   *drink.Event   `json:"event,omitempty"`
	Records []drink.Record `json:"records,omitempty"`
}

// Listener receives encoded StreamMessages until its Send channel is closed.
type Listener struct {
	Send chan []byte
}

type DrinkLog struct {
	OwnerID string

	store      store.RecordStore
	reconciler *reconcile.Reconciler
	engine     stats.Engine
	notifier   notify.Notifier

	mu       sync.RWMutex
	records  []drink.Record
	lastUsed time.Time

	listeners     map[*Listener]bool
	listenerCount atomic.Int32
	register      chan *Listener
	unregister    chan *Listener
	refresh       chan []drink.Record

	ctx      context.Context
	cancel   context.CancelFunc
	ready    chan struct{}
	startErr error
	started  atomic.Bool
	done     chan struct{}
}

func NewDrinkLog(ownerID string, st store.RecordStore, engine stats.Engine, notifier notify.Notifier) *DrinkLog {
	ctx, cancel := context.WithCancel(context.Background())
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &DrinkLog{
		OwnerID:    ownerID,
		store:      st,
		reconciler: reconcile.New(st),
		engine:     engine,
		notifier:   notifier,
		lastUsed:   time.Now(),
		listeners:  make(map[*Listener]bool),
		register:   make(chan *Listener),
		unregister: make(chan *Listener),
		refresh:    make(chan []drink.Record),
		ctx:        ctx,
		cancel:     cancel,
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start subscribes before fetching so no change made in between is missed;
// events for records already in the fetched list are ignored by apply.
func (l *DrinkLog) Start(ctx context.Context) (err error) {
	defer func() {
		l.startErr = err
		close(l.ready)
	}()

	sub, err := l.store.Subscribe(ctx, l.OwnerID)
	if err != nil {
		middleware.ObserveStoreError("subscribe")
		return fmt.Errorf("failed to subscribe to drink changes: %w", err)
	}

	records, err := l.store.FetchAll(ctx, l.OwnerID)
	if err != nil {
		sub.Close()
		middleware.ObserveStoreError("fetch")
		l.notify(ctx, notify.Error("Could not fetch your drink history."))
		return fmt.Errorf("failed to fetch drink history: %w", err)
	}

	l.setRecords(records)
	l.started.Store(true)
	go l.Run(sub)

	log.Printf("[DrinkLog %s] Started with %d records", l.OwnerID, len(records))
	return nil
}

// Ready blocks until Start has returned and reports its error.
func (l *DrinkLog) Ready(ctx context.Context) error {
	select {
	case <-l.ready:
		return l.startErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *DrinkLog) Run(sub *store.Subscription) {
	defer close(l.done)

	events := sub.Events()
	for {
		select {
		case <-l.ctx.Done():
			if sub != nil {
				sub.Close()
			}
			for c := range l.listeners {
				l.dropListener(c)
			}
			log.Printf("[DrinkLog %s] Closed.", l.OwnerID)
			return

		case ev, ok := <-events:
			if !ok {
				log.Printf("[DrinkLog %s] Subscription ended, resyncing", l.OwnerID)
				sub = l.resync()
				if sub == nil {
					events = nil
					continue
				}
				events = sub.Events()
				l.broadcast(l.snapshot())
				continue
			}
			if l.apply(ev) {
				l.broadcast(StreamMessage{Kind: string(ev.Kind), Event: &ev})
			}

		case c := <-l.register:
			l.listeners[c] = true
			l.listenerCount.Store(int32(len(l.listeners)))
			l.sendTo(c, l.snapshot())

		case c := <-l.unregister:
			if l.listeners[c] {
				l.dropListener(c)
			}

		case records := <-l.refresh:
			l.setRecords(records)
			l.broadcast(l.snapshot())
		}
	}
}

// resync re-subscribes and re-fetches with backoff. It returns nil only when
// the session is closing.
func (l *DrinkLog) resync() *store.Subscription {
	backoff := resyncMinBackoff
	for {
		sub, err := l.store.Subscribe(l.ctx, l.OwnerID)
		if err == nil {
			records, ferr := l.store.FetchAll(l.ctx, l.OwnerID)
			if ferr == nil {
				l.setRecords(records)
				return sub
			}
			sub.Close()
			err = ferr
		}
		middleware.ObserveStoreError("resync")
		log.Printf("[DrinkLog %s] Resync failed, retrying in %s: %v", l.OwnerID, backoff, err)

		select {
		case <-l.ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, resyncMaxBackoff)
	}
}

// apply folds one confirmed change into the list and reports whether the list
// changed. Duplicate inserts and deletes of unknown IDs are ignored.
func (l *DrinkLog) apply(ev drink.Event) bool {
	if ev.UserID != l.OwnerID {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch ev.Kind {
	case drink.EventInserted:
		if ev.Record == nil {
			return false
		}
		for _, r := range l.records {
			if r.ID == ev.Record.ID {
				return false
			}
		}
		l.records = append(l.records, *ev.Record)
		drink.SortNewestFirst(l.records)
		return true

	case drink.EventDeleted:
		for i, r := range l.records {
			if r.ID == ev.ID {
				l.records = append(l.records[:i], l.records[i+1:]...)
				return true
			}
		}
	}
	return false
}

func (l *DrinkLog) setRecords(records []drink.Record) {
	sorted := make([]drink.Record, len(records))
	copy(sorted, records)
	drink.SortNewestFirst(sorted)

	l.mu.Lock()
	l.records = sorted
	l.mu.Unlock()
}

func (l *DrinkLog) snapshot() StreamMessage {
	records := l.Records()
	if records == nil {
		records = []drink.Record{}
	}
	return StreamMessage{Kind: "snapshot", Records: records}
}

func (l *DrinkLog) broadcast(msg StreamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[DrinkLog %s] Error marshalling %s message: %v", l.OwnerID, msg.Kind, err)
		return
	}
	for c := range l.listeners {
		select {
		case c.Send <- data:
		default:
			l.dropListener(c)
		}
	}
}

func (l *DrinkLog) sendTo(c *Listener, msg StreamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[DrinkLog %s] Error marshalling %s message: %v", l.OwnerID, msg.Kind, err)
		return
	}
	select {
	case c.Send <- data:
	default:
		l.dropListener(c)
	}
}

func (l *DrinkLog) dropListener(c *Listener) {
	delete(l.listeners, c)
	close(c.Send)
	l.listenerCount.Store(int32(len(l.listeners)))
}

// Listen registers a listener. The first message it receives is a snapshot.
func (l *DrinkLog) Listen(ctx context.Context) (*Listener, error) {
	if !l.started.Load() {
		return nil, ErrSessionClosed
	}
	c := &Listener{Send: make(chan []byte, listenerBuffer)}
	select {
	case l.register <- c:
		l.touch()
		return c, nil
	case <-l.ctx.Done():
		return nil, ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *DrinkLog) Unlisten(c *Listener) {
	select {
	case l.unregister <- c:
	case <-l.done:
	}
}

// Listeners reports how many listeners are registered.
func (l *DrinkLog) Listeners() int {
	return int(l.listenerCount.Load())
}

// Close stops the Run loop and closes every listener.
func (l *DrinkLog) Close() {
	l.cancel()
	if l.started.Load() {
		<-l.done
	}
}

func (l *DrinkLog) touch() {
	l.mu.Lock()
	l.lastUsed = time.Now()
	l.mu.Unlock()
}

func (l *DrinkLog) idleSince() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastUsed
}

// Records returns a copy of the list, newest first.
func (l *DrinkLog) Records() []drink.Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.records == nil {
		return nil
	}
	out := make([]drink.Record, len(l.records))
	copy(out, l.records)
	return out
}

func (l *DrinkLog) Stats(today civil.Date) *stats.DerivedStats {
	l.touch()
	return l.engine.Compute(l.Records(), today)
}

func (l *DrinkLog) Chart(period stats.Period, today civil.Date) []stats.ChartPoint {
	l.touch()
	return l.engine.Chart(l.Records(), period, today)
}

func (l *DrinkLog) Calendar(year, month int, today civil.Date) (*stats.CalendarResponse, error) {
	l.touch()
	return l.engine.Calendar(stats.Index(l.Records()), year, month, today)
}

func (l *DrinkLog) Heatmap(year int) []stats.HeatmapMonth {
	l.touch()
	return stats.YearHeatmap(l.Records(), year)
}

// SetDrinksForDate makes date hold exactly count records. Negative counts are
// treated as zero. The list itself changes only when the store confirms.
func (l *DrinkLog) SetDrinksForDate(ctx context.Context, date civil.Date, count int) (reconcile.Plan, error) {
	l.touch()
	if count < 0 {
		count = 0
	}

	plan, err := l.reconciler.SetCount(ctx, l.OwnerID, date, count, l.Records())
	if err != nil {
		if len(plan.Delete) > 0 {
			middleware.ObserveStoreError("delete")
			l.notify(ctx, notify.Error("Failed to remove drinks."))
		} else {
			middleware.ObserveStoreError("create")
			l.notify(ctx, notify.Error("Failed to add drinks."))
		}
		return plan, err
	}

	switch {
	case plan.Create > 0:
		middleware.ObserveReconcile("create")
	case len(plan.Delete) > 0:
		middleware.ObserveReconcile("delete")
	default:
		middleware.ObserveReconcile("noop")
	}

	l.notify(ctx, notify.Success("Your log has been updated."))
	return plan, nil
}

// ImportDrinks validates the whole CSV before writing anything, then appends
// one record per line in a single bulk call and re-fetches the list.
func (l *DrinkLog) ImportDrinks(ctx context.Context, r io.Reader) (int, error) {
	l.touch()

	dates, err := csvio.Parse(r)
	if err != nil {
		l.notify(ctx, notify.Error("Import failed: "+err.Error()))
		return 0, err
	}

	n, err := l.reconciler.Import(ctx, l.OwnerID, dates)
	if err != nil {
		middleware.ObserveStoreError("import")
		l.notify(ctx, notify.Error("Import failed: "+err.Error()))
		return 0, err
	}

	middleware.ObserveImport(n)
	l.notify(ctx, notify.Success(fmt.Sprintf("%d records imported successfully!", n)))

	if n > 0 {
		l.reload(ctx)
	}
	return n, nil
}

func (l *DrinkLog) reload(ctx context.Context) {
	records, err := l.store.FetchAll(ctx, l.OwnerID)
	if err != nil {
		middleware.ObserveStoreError("fetch")
		log.Printf("[DrinkLog %s] Reload after import failed: %v", l.OwnerID, err)
		return
	}
	select {
	case l.refresh <- records:
	case <-l.ctx.Done():
	case <-ctx.Done():
	}
}

// ExportCSV writes the history in import format. An empty history is
// ErrNotFound.
func (l *DrinkLog) ExportCSV(ctx context.Context, w io.Writer) error {
	l.touch()

	records := l.Records()
	if len(records) == 0 {
		l.notify(ctx, notify.Info("You don't have any data to export yet."))
		return ErrNotFound
	}
	if err := csvio.Export(w, records); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	l.notify(ctx, notify.Success("Your data has been exported."))
	return nil
}

func (l *DrinkLog) notify(ctx context.Context, n notify.Notice) {
	if err := l.notifier.Notify(context.WithoutCancel(ctx), l.OwnerID, n); err != nil {
		log.Printf("[DrinkLog %s] Notification failed: %v", l.OwnerID, err)
	}
}
