package stats

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod(t *testing.T) {
	p, err := ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, PeriodWeek, p)

	p, err = ParsePeriod("year")
	require.NoError(t, err)
	assert.Equal(t, PeriodYear, p)

	_, err = ParsePeriod("decade")
	assert.Error(t, err)
}

func TestChartWeek(t *testing.T) {
	recs := records(day(-4), day(-3), day(0), day(0), day(3), day(4))
	points := Engine{}.Chart(recs, PeriodWeek, today)

	require.Len(t, points, 7)
	assert.Equal(t, "Sun", points[0].Name)
	assert.Equal(t, "Sat", points[6].Name)
	assert.Equal(t, 1, points[0].Drinks) // Jun 9
	assert.Equal(t, 2, points[3].Drinks) // Jun 12
	assert.Equal(t, 1, points[6].Drinks) // Jun 15
	assert.Equal(t, 0, points[1].Drinks)

	mon := Engine{WeekStart: time.Monday}.Chart(recs, PeriodWeek, today)
	assert.Equal(t, "Mon", mon[0].Name)
	assert.Equal(t, "Sun", mon[6].Name)
	assert.Equal(t, 2, mon[2].Drinks)
	assert.Equal(t, 1, mon[5].Drinks) // Jun 15
	assert.Equal(t, 1, mon[6].Drinks) // Jun 16
}

func TestChartMonth(t *testing.T) {
	recs := records(
		civil.Date{Year: 2024, Month: time.June, Day: 1},
		civil.Date{Year: 2024, Month: time.June, Day: 7},
		civil.Date{Year: 2024, Month: time.June, Day: 8},
		civil.Date{Year: 2024, Month: time.June, Day: 29},
		civil.Date{Year: 2024, Month: time.June, Day: 30},
		civil.Date{Year: 2024, Month: time.May, Day: 30},
		civil.Date{Year: 2023, Month: time.June, Day: 2},
	)
	points := Engine{}.Chart(recs, PeriodMonth, today)

	require.Len(t, points, 4)
	assert.Equal(t, []ChartPoint{
		{Name: "Week 1", Drinks: 2},
		{Name: "Week 2", Drinks: 1},
		{Name: "Week 3", Drinks: 0},
		{Name: "Week 4", Drinks: 2},
	}, points)
}

func TestChartYear(t *testing.T) {
	recs := records(
		civil.Date{Year: 2024, Month: time.January, Day: 31},
		civil.Date{Year: 2024, Month: time.December, Day: 1},
		civil.Date{Year: 2024, Month: time.December, Day: 24},
		civil.Date{Year: 2023, Month: time.December, Day: 24},
	)
	points := Engine{}.Chart(recs, PeriodYear, today)

	require.Len(t, points, 12)
	assert.Equal(t, ChartPoint{Name: "Jan", Drinks: 1}, points[0])
	assert.Equal(t, ChartPoint{Name: "Dec", Drinks: 2}, points[11])
}

func TestCalendar(t *testing.T) {
	idx := Index(records(
		civil.Date{Year: 2024, Month: time.June, Day: 1},
		day(0), day(0), day(0),
		civil.Date{Year: 2024, Month: time.May, Day: 31},
	))

	cal, err := Engine{}.Calendar(idx, 2024, 6, today)
	require.NoError(t, err)

	require.Len(t, cal.Weeks, 6)
	first := cal.Weeks[0][0]
	assert.Equal(t, civil.Date{Year: 2024, Month: time.May, Day: 26}, first.Date)
	assert.False(t, first.InCurrentMonth)

	may31 := cal.Weeks[0][5]
	assert.Equal(t, 1, may31.Count)
	assert.False(t, may31.InCurrentMonth)

	june1 := cal.Weeks[0][6]
	assert.True(t, june1.InCurrentMonth)
	assert.Equal(t, 1, june1.Level)

	june12 := cal.Weeks[2][3]
	assert.Equal(t, today, june12.Date)
	assert.True(t, june12.IsToday)
	assert.Equal(t, 3, june12.Count)
	assert.Equal(t, 2, june12.Level)

	last := cal.Weeks[5][6]
	assert.Equal(t, civil.Date{Year: 2024, Month: time.July, Day: 6}, last.Date)

	_, err = Engine{}.Calendar(idx, 2024, 13, today)
	assert.Error(t, err)
}

func TestLevels(t *testing.T) {
	assert.Equal(t, []int{0, 1, 1, 2, 2, 3}, []int{DayLevel(0), DayLevel(1), DayLevel(2), DayLevel(3), DayLevel(4), DayLevel(5)})
	assert.Equal(t, []int{0, 1, 1, 2, 3}, []int{MonthLevel(0), MonthLevel(1), MonthLevel(10), MonthLevel(20), MonthLevel(21)})
}

func TestYearHeatmap(t *testing.T) {
	var dates []civil.Date
	for i := 0; i < 12; i++ {
		dates = append(dates, civil.Date{Year: 2024, Month: time.March, Day: 1 + i})
	}
	dates = append(dates, civil.Date{Year: 2025, Month: time.March, Day: 1})

	months := YearHeatmap(records(dates...), 2024)
	require.Len(t, months, 12)
	assert.Equal(t, HeatmapMonth{Month: "Mar", Count: 12, Level: 2}, months[2])
	assert.Equal(t, HeatmapMonth{Month: "Jan", Count: 0, Level: 0}, months[0])
}
