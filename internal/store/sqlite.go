package store

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"drinkLogAPI/internal/drink"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS drinks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		drink_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_drinks_user_date ON drinks(user_id, drink_date)`,
}

type sqliteRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	DrinkDate string `db:"drink_date"`
	CreatedAt string `db:"created_at"`
}

func (r sqliteRow) record() (drink.Record, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return drink.Record{}, fmt.Errorf("bad id %q: %w", r.ID, err)
	}
	d, err := civil.ParseDate(r.DrinkDate)
	if err != nil {
		return drink.Record{}, fmt.Errorf("bad drink_date %q: %w", r.DrinkDate, err)
	}
	created, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
	return drink.Record{ID: id, UserID: r.UserID, Date: d, CreatedAt: created}, nil
}

// SQLiteStore is a single-machine store. Only this process writes to the
// file, so events are published after each committed transaction.
type SQLiteStore struct {
	db     *sqlx.DB
	broker *Broker
}

// NewSQLiteStore opens (or creates) the database at path in WAL mode.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is not set")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating sqlite dir: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One writer at a time; keeps :memory: databases on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	log.Printf("SQLite store: opened %s", path)
	return &SQLiteStore{db: db, broker: NewBroker()}, nil
}

func (s *SQLiteStore) FetchAll(ctx context.Context, ownerID string) ([]drink.Record, error) {
	var rows []sqliteRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, drink_date, created_at
		FROM drinks
		WHERE user_id = ?
		ORDER BY drink_date DESC, rowid`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch drinks: %w", err)
	}

	recs := make([]drink.Record, 0, len(rows))
	for _, row := range rows {
		r, err := row.record()
		if err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, nil
}

func (s *SQLiteStore) CreateRecords(ctx context.Context, ownerID string, date civil.Date, count int) error {
	return s.BulkCreate(ctx, ownerID, repeatDate(date, count))
}

func (s *SQLiteStore) BulkCreate(ctx context.Context, ownerID string, dates []civil.Date) error {
	if len(dates) == 0 {
		return nil
	}

	recs := newRecords(ownerID, dates, time.Now().UTC())
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, `
		INSERT INTO drinks (id, user_id, drink_date, created_at)
		VALUES (:id, :user_id, :drink_date, :created_at)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		row := sqliteRow{
			ID:        r.ID.String(),
			UserID:    r.UserID,
			DrinkDate: r.Date.String(),
			CreatedAt: r.CreatedAt.Format(time.RFC3339Nano),
		}
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return fmt.Errorf("failed to insert drinks: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing insert: %w", err)
	}

	s.broker.PublishAll(drink.InsertedAll(recs))
	return nil
}

func (s *SQLiteStore) DeleteRecords(ctx context.Context, ownerID string, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete: %w", err)
	}
	defer tx.Rollback()

	query, args, err := sqlx.In(`SELECT id FROM drinks WHERE user_id = ? AND id IN (?)`, ownerID, strIDs)
	if err != nil {
		return err
	}
	var found []string
	if err := tx.SelectContext(ctx, &found, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to look up drinks: %w", err)
	}

	query, args, err = sqlx.In(`DELETE FROM drinks WHERE user_id = ? AND id IN (?)`, ownerID, strIDs)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to remove drinks: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}

	removed := make([]uuid.UUID, 0, len(found))
	for _, id := range found {
		removed = append(removed, uuid.MustParse(id))
	}
	s.broker.PublishAll(drink.DeletedAll(ownerID, removed))
	return nil
}

func (s *SQLiteStore) Subscribe(_ context.Context, ownerID string) (*Subscription, error) {
	return s.broker.Subscribe(ownerID), nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() {
	s.broker.CloseAll()
	if err := s.db.Close(); err != nil {
		log.Printf("SQLite store: close: %v", err)
	}
}
