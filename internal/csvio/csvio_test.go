package csvio

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drinkLogAPI/internal/drink"
)

func TestParseValid(t *testing.T) {
	in := "drink_date\n2024-06-01\n\n2024-06-01\r\n  2024-06-03  \n"

	dates, err := Parse(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, []civil.Date{
		{Year: 2024, Month: time.June, Day: 1},
		{Year: 2024, Month: time.June, Day: 1},
		{Year: 2024, Month: time.June, Day: 3},
	}, dates)
}

func TestParseHeaderOnly(t *testing.T) {
	dates, err := Parse(strings.NewReader("drink_date\n"))
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestParseInvalidHeader(t *testing.T) {
	for _, in := range []string{"", "\n\n", "date\n2024-06-01\n", "drink_date,count\n2024-06-01,2\n"} {
		_, err := Parse(strings.NewReader(in))
		assert.ErrorIs(t, err, ErrInvalidHeader, "input %q", in)
	}
}

func TestParseBadDateAbortsEverything(t *testing.T) {
	in := "drink_date\n2024-06-01\nyesterday\n2024-06-03\n"

	dates, err := Parse(strings.NewReader(in))
	require.Error(t, err)
	assert.Nil(t, dates)

	var lineErr *LineError
	require.True(t, errors.As(err, &lineErr))
	assert.Equal(t, 3, lineErr.Line)
	assert.Equal(t, "yesterday", lineErr.Value)
	assert.Contains(t, err.Error(), "invalid date format: yesterday")
}

func TestParseRejectsImpossibleDate(t *testing.T) {
	_, err := Parse(strings.NewReader("drink_date\n2023-02-29\n"))
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	recs := []drink.Record{
		{ID: uuid.New(), Date: civil.Date{Year: 2024, Month: time.June, Day: 3}},
		{ID: uuid.New(), Date: civil.Date{Year: 2024, Month: time.June, Day: 1}},
	}

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, recs))
	assert.Equal(t, "drink_date\n2024-06-03\n2024-06-01\n", buf.String())
}

func TestTemplate(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Template(&buf))
	assert.Equal(t, "drink_date\n", buf.String())
}

func TestRoundTrip(t *testing.T) {
	recs := []drink.Record{
		{ID: uuid.New(), Date: civil.Date{Year: 2023, Month: time.December, Day: 31}},
		{ID: uuid.New(), Date: civil.Date{Year: 2024, Month: time.January, Day: 1}},
		{ID: uuid.New(), Date: civil.Date{Year: 2023, Month: time.December, Day: 31}},
	}

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, recs))

	dates, err := Parse(&buf)
	require.NoError(t, err)
	assert.ElementsMatch(t, drink.Dates(recs), dates)
}
