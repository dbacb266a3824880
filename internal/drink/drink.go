package drink

import (
	"sort"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// DateLayout is the wire format of a drink date (ISO calendar date).
const DateLayout = "2006-01-02"

// Record is one logged drink. Records are immutable; the count for a day is
// the number of records bearing that date.
type Record struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	Date      civil.Date `json:"drink_date" db:"drink_date"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

type EventKind string

const (
	EventInserted EventKind = "inserted"
	EventDeleted  EventKind = "deleted"
)

// Event is a confirmed change pushed by a record store.
type Event struct {
	Kind   EventKind `json:"kind"`
	UserID string    `json:"user_id"`
	ID     uuid.UUID `json:"id"`
	Record *Record   `json:"record,omitempty"`
}

func Inserted(r Record) Event {
	return Event{Kind: EventInserted, UserID: r.UserID, ID: r.ID, Record: &r}
}

func Deleted(userID string, id uuid.UUID) Event {
	return Event{Kind: EventDeleted, UserID: userID, ID: id}
}

// InsertedAll builds one insert event per record.
func InsertedAll(records []Record) []Event {
	evs := make([]Event, len(records))
	for i, r := range records {
		evs[i] = Inserted(r)
	}
	return evs
}

// DeletedAll builds one delete event per id.
func DeletedAll(userID string, ids []uuid.UUID) []Event {
	evs := make([]Event, len(ids))
	for i, id := range ids {
		evs[i] = Deleted(userID, id)
	}
	return evs
}

// CountOn returns how many records fall on date.
func CountOn(records []Record, date civil.Date) int {
	n := 0
	for _, r := range records {
		if r.Date == date {
			n++
		}
	}
	return n
}

// IDsOn returns the IDs of at most n records on date, in input order.
func IDsOn(records []Record, date civil.Date, n int) []uuid.UUID {
	if n <= 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, n)
	for _, r := range records {
		if len(ids) == n {
			break
		}
		if r.Date == date {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// Dates projects records onto their dates, keeping order.
func Dates(records []Record) []civil.Date {
	dates := make([]civil.Date, len(records))
	for i, r := range records {
		dates[i] = r.Date
	}
	return dates
}

// SortNewestFirst orders records by date descending. Records on the same day
// keep their relative order.
func SortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.After(records[j].Date)
	})
}

// Today returns the civil date of now in loc.
func Today(now time.Time, loc *time.Location) civil.Date {
	if loc == nil {
		loc = time.Local
	}
	return civil.DateOf(now.In(loc))
}

// Weekday of a civil date. The date is anchored at UTC midnight so no zone
// offset can shift it.
func Weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}
