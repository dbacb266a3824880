package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"drinkLogAPI/internal/drink"
)

var (
	ErrClosed        = errors.New("record store is closed")
	ErrUnknownDriver = errors.New("unknown store driver")
)

// RecordStore is the authoritative home of drink records. Mutations are
// confirmed to subscribers through Subscribe, never by mutating caller state.
type RecordStore interface {
	FetchAll(ctx context.Context, ownerID string) ([]drink.Record, error)
	CreateRecords(ctx context.Context, ownerID string, date civil.Date, count int) error
	BulkCreate(ctx context.Context, ownerID string, dates []civil.Date) error
	DeleteRecords(ctx context.Context, ownerID string, ids []uuid.UUID) error
	Subscribe(ctx context.Context, ownerID string) (*Subscription, error)
	Ping(ctx context.Context) error
	Close()
}

// Options selects and configures a RecordStore implementation.
type Options struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
}

// Open builds the store named by opts.Driver.
func Open(ctx context.Context, opts Options) (RecordStore, error) {
	switch opts.Driver {
	case "postgres", "":
		return NewPostgresStore(ctx, opts.DatabaseURL)
	case "sqlite":
		return NewSQLiteStore(opts.SQLitePath)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}
}

func repeatDate(date civil.Date, count int) []civil.Date {
	if count <= 0 {
		return nil
	}
	dates := make([]civil.Date, count)
	for i := range dates {
		dates[i] = date
	}
	return dates
}

func newRecords(ownerID string, dates []civil.Date, now time.Time) []drink.Record {
	recs := make([]drink.Record, len(dates))
	for i, d := range dates {
		recs[i] = drink.Record{
			ID:        uuid.New(),
			UserID:    ownerID,
			Date:      d,
			CreatedAt: now,
		}
	}
	return recs
}
