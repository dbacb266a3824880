package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"drinkLogAPI/internal/drink"
)

const notifyChannel = "drinks_changes"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS drinks (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		drink_date DATE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_drinks_user_date ON drinks(user_id, drink_date)`,
	`CREATE OR REPLACE FUNCTION notify_drinks_change() RETURNS trigger AS $$
	BEGIN
		IF TG_OP = 'DELETE' THEN
			PERFORM pg_notify('drinks_changes', json_build_object(
				'op', 'DELETE', 'id', OLD.id, 'user_id', OLD.user_id)::text);
			RETURN OLD;
		END IF;
		PERFORM pg_notify('drinks_changes', json_build_object(
			'op', 'INSERT', 'id', NEW.id, 'user_id', NEW.user_id,
			'drink_date', NEW.drink_date, 'created_at', NEW.created_at)::text);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS drinks_notify ON drinks`,
	`CREATE TRIGGER drinks_notify AFTER INSERT OR DELETE ON drinks
		FOR EACH ROW EXECUTE FUNCTION notify_drinks_change()`,
}

// PostgresStore keeps records in a drinks table and turns row changes into
// events with LISTEN/NOTIFY, so edits made by other sessions of the same
// account reach every subscriber.
type PostgresStore struct {
	db     *pgxpool.Pool
	broker *Broker
	cancel context.CancelFunc
	done   chan struct{}

	// listening is closed while a connection holds LISTEN and replaced with
	// an open channel when that connection drops.
	mu          sync.Mutex
	listening   chan struct{}
	listenerPID atomic.Uint32
}

func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	if dbURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{
		db:        db,
		broker:    NewBroker(),
		done:      make(chan struct{}),
		listening: make(chan struct{}),
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.listen(listenCtx)

	select {
	case <-s.listeningGate():
	case <-ctx.Done():
		s.Close()
		return nil, fmt.Errorf("waiting for LISTEN %s: %w", notifyChannel, ctx.Err())
	}

	log.Println("Postgres store: connected, listening on", notifyChannel)
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	for _, stmt := range postgresSchema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate drinks schema: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) FetchAll(ctx context.Context, ownerID string) ([]drink.Record, error) {
	query := `
	SELECT id, user_id, drink_date, created_at
	FROM drinks
	WHERE user_id = $1
	ORDER BY drink_date DESC, created_at
	`

	rows, err := s.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch drinks: %w", err)
	}
	defer rows.Close()

	var recs []drink.Record
	for rows.Next() {
		var (
			r    drink.Record
			date time.Time
		)
		if err := rows.Scan(&r.ID, &r.UserID, &date, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan drink: %w", err)
		}
		r.Date = civil.DateOf(date)
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read drinks: %w", err)
	}

	return recs, nil
}

func (s *PostgresStore) CreateRecords(ctx context.Context, ownerID string, date civil.Date, count int) error {
	return s.BulkCreate(ctx, ownerID, repeatDate(date, count))
}

// BulkCreate copies all rows in one COPY statement; it either lands whole or
// not at all.
func (s *PostgresStore) BulkCreate(ctx context.Context, ownerID string, dates []civil.Date) error {
	if len(dates) == 0 {
		return nil
	}

	recs := newRecords(ownerID, dates, time.Now())
	n, err := s.db.CopyFrom(
		ctx,
		pgx.Identifier{"drinks"},
		[]string{"id", "user_id", "drink_date", "created_at"},
		pgx.CopyFromSlice(len(recs), func(i int) ([]any, error) {
			r := recs[i]
			return []any{r.ID, r.UserID, r.Date.In(time.UTC), r.CreatedAt}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to insert drinks: %w", err)
	}
	if int(n) != len(recs) {
		return fmt.Errorf("inserted %d of %d drinks", n, len(recs))
	}

	return nil
}

func (s *PostgresStore) DeleteRecords(ctx context.Context, ownerID string, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	query := `
		DELETE FROM drinks
		WHERE user_id = $1 AND id = ANY($2::uuid[])
	`

	if _, err := s.db.Exec(ctx, query, ownerID, strIDs); err != nil {
		return fmt.Errorf("failed to remove drinks: %w", err)
	}
	return nil
}

// Subscribe waits until a connection is listening, so a fetch made after it
// returns cannot miss a change.
func (s *PostgresStore) Subscribe(ctx context.Context, ownerID string) (*Subscription, error) {
	select {
	case <-s.done:
		return nil, ErrClosed
	default:
	}

	select {
	case <-s.listeningGate():
	case <-s.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.broker.Subscribe(ownerID), nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.cancel()
	<-s.done
	s.broker.CloseAll()
	s.db.Close()
}

type changePayload struct {
	Op        string    `json:"op"`
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	DrinkDate string    `json:"drink_date"`
	CreatedAt time.Time `json:"created_at"`
}

// decodeChange turns a NOTIFY payload into an event.
func decodeChange(payload string) (drink.Event, error) {
	var p changePayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return drink.Event{}, fmt.Errorf("bad change payload: %w", err)
	}

	switch p.Op {
	case "INSERT":
		d, err := civil.ParseDate(p.DrinkDate)
		if err != nil {
			return drink.Event{}, fmt.Errorf("bad drink_date in payload: %w", err)
		}
		return drink.Inserted(drink.Record{ID: p.ID, UserID: p.UserID, Date: d, CreatedAt: p.CreatedAt}), nil
	case "DELETE":
		return drink.Deleted(p.UserID, p.ID), nil
	default:
		return drink.Event{}, fmt.Errorf("unknown change op %q", p.Op)
	}
}

// listen holds one pooled connection on LISTEN and republishes every
// notification to the broker. Subscribers stay open while the connection is
// down and are closed once LISTEN is back, so the fetch they redo sees every
// change made during the gap.
func (s *PostgresStore) listen(ctx context.Context) {
	defer close(s.done)

	for reconnect := false; ; reconnect = true {
		err := s.listenOnce(ctx, reconnect)
		s.setListening(false)
		if ctx.Err() != nil {
			return
		}
		log.Printf("Postgres store: listener stopped: %v, reconnecting", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (s *PostgresStore) listeningGate() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

func (s *PostgresStore) setListening(up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.listening:
		if !up {
			s.listening = make(chan struct{})
		}
	default:
		if up {
			close(s.listening)
		}
	}
}

func (s *PostgresStore) listenOnce(ctx context.Context, reconnect bool) error {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if !conn.Conn().IsClosed() {
			_, _ = conn.Exec(context.Background(), "UNLISTEN *")
		}
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}
	s.listenerPID.Store(conn.Conn().PgConn().PID())
	s.setListening(true)
	if reconnect {
		s.broker.CloseAll()
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		ev, err := decodeChange(n.Payload)
		if err != nil {
			log.Printf("Postgres store: %v", err)
			continue
		}
		s.broker.Publish(ev)
	}
}
