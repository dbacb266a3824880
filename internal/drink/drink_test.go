package drink

import (
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	d1 = civil.Date{Year: 2024, Month: time.June, Day: 1}
	d2 = civil.Date{Year: 2024, Month: time.June, Day: 2}
)

func rec(d civil.Date) Record {
	return Record{ID: uuid.New(), UserID: "u", Date: d}
}

func TestCountAndIDsOn(t *testing.T) {
	records := []Record{rec(d1), rec(d2), rec(d1), rec(d1)}

	assert.Equal(t, 3, CountOn(records, d1))
	assert.Equal(t, 0, CountOn(records, civil.Date{Year: 2024, Month: time.June, Day: 3}))

	assert.Equal(t, []uuid.UUID{records[0].ID, records[2].ID}, IDsOn(records, d1, 2))
	assert.Len(t, IDsOn(records, d1, 10), 3)
	assert.Nil(t, IDsOn(records, d1, 0))
}

func TestSortNewestFirstIsStable(t *testing.T) {
	a, b, c := rec(d1), rec(d2), rec(d1)
	records := []Record{a, b, c}

	SortNewestFirst(records)

	assert.Equal(t, []uuid.UUID{b.ID, a.ID, c.ID}, []uuid.UUID{records[0].ID, records[1].ID, records[2].ID})
	assert.Equal(t, []civil.Date{d2, d1, d1}, Dates(records))
}

func TestTodayUsesLocation(t *testing.T) {
	now := time.Date(2024, time.June, 12, 23, 30, 0, 0, time.UTC)
	sofia, err := time.LoadLocation("Europe/Sofia")
	require.NoError(t, err)

	assert.Equal(t, civil.Date{Year: 2024, Month: time.June, Day: 12}, Today(now, time.UTC))
	assert.Equal(t, civil.Date{Year: 2024, Month: time.June, Day: 13}, Today(now, sofia))
}

func TestWeekday(t *testing.T) {
	assert.Equal(t, time.Wednesday, Weekday(civil.Date{Year: 2024, Month: time.June, Day: 12}))
	assert.Equal(t, time.Sunday, Weekday(civil.Date{Year: 2024, Month: time.June, Day: 9}))
}

func TestRecordJSONUsesDrinkDate(t *testing.T) {
	data, err := json.Marshal(rec(d1))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"drink_date":"2024-06-01"`)

	ev := Deleted("u", uuid.Nil)
	assert.Equal(t, EventDeleted, ev.Kind)
	assert.Nil(t, ev.Record)
}

func TestEventBatches(t *testing.T) {
	a, b := rec(d1), rec(d2)

	ins := InsertedAll([]Record{a, b})
	require.Len(t, ins, 2)
	assert.Equal(t, EventInserted, ins[1].Kind)
	assert.Equal(t, b.ID, ins[1].Record.ID)

	del := DeletedAll("u", []uuid.UUID{a.ID})
	assert.Equal(t, []Event{Deleted("u", a.ID)}, del)
	assert.Empty(t, InsertedAll(nil))
}
