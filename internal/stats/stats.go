package stats

import (
	"sort"
	"time"

	"cloud.google.com/go/civil"

	"drinkLogAPI/internal/drink"
)

// MaxStreakWalk bounds the backward walk of the current streak when no day
// with records is ever reached.
const MaxStreakWalk = 10000

type Weather string

const (
	Sunny  Weather = "sunny"
	Rainy  Weather = "rainy"
	Stormy Weather = "stormy"
)

var weatherMessages = map[Weather]string{
	Sunny:  "Smooth sailing! A beautiful day for mindful choices.",
	Rainy:  "A bit of rain. A good time to reflect and stay the course.",
	Stormy: "Rough seas ahead. Stay strong and navigate carefully.",
}

// Message is the dashboard caption for w. Unknown values read as sunny.
func (w Weather) Message() string {
	if m, ok := weatherMessages[w]; ok {
		return m
	}
	return weatherMessages[Sunny]
}

// DerivedStats is recomputed from the full record list on every change and
// never persisted.
type DerivedStats struct {
	DateIndex      map[civil.Date]int `json:"date_index"`
	CurrentStreak  int                `json:"current_streak"`
	LongestStreak  int                `json:"longest_streak"`
	DrinksThisWeek int                `json:"drinks_this_week"`
	Weather        Weather            `json:"weather"`
}

// Engine computes DerivedStats. The zero value uses Sunday-based weeks.
type Engine struct {
	WeekStart time.Weekday
}

// Compute uses a Sunday-based week.
func Compute(records []drink.Record, today civil.Date) *DerivedStats {
	return Engine{}.Compute(records, today)
}

func (e Engine) Compute(records []drink.Record, today civil.Date) *DerivedStats {
	st := &DerivedStats{
		DateIndex: Index(records),
		Weather:   Sunny,
	}
	if len(records) == 0 {
		return st
	}

	st.Weather = WeatherFor(st.DateIndex[today], st.DateIndex[today.AddDays(-1)])
	st.CurrentStreak = currentStreak(st.DateIndex, today)
	st.LongestStreak = longestStreak(st.DateIndex, st.CurrentStreak)

	weekStart := e.StartOfWeek(today)
	for _, r := range records {
		if !r.Date.Before(weekStart) && !r.Date.After(today) {
			st.DrinksThisWeek++
		}
	}

	return st
}

// StartOfWeek returns the first day of the week containing d.
func (e Engine) StartOfWeek(d civil.Date) civil.Date {
	offset := (int(drink.Weekday(d)) - int(e.WeekStart) + 7) % 7
	return d.AddDays(-offset)
}

// Index groups records by date.
func Index(records []drink.Record) map[civil.Date]int {
	idx := make(map[civil.Date]int)
	for _, r := range records {
		idx[r.Date]++
	}
	return idx
}

// WeatherFor evaluates the storm check before the rain check.
func WeatherFor(today, yesterday int) Weather {
	switch {
	case today > 2 || today+yesterday > 4:
		return Stormy
	case today > 0 || yesterday > 0:
		return Rainy
	default:
		return Sunny
	}
}

// currentStreak counts empty days walking backward from today, inclusive.
func currentStreak(idx map[civil.Date]int, today civil.Date) int {
	streak := 0
	for day := today; idx[day] == 0 && streak < MaxStreakWalk; day = day.AddDays(-1) {
		streak++
	}
	return streak
}

// longestStreak is the widest run of empty days between two dated days,
// never less than current.
func longestStreak(idx map[civil.Date]int, current int) int {
	dates := make([]civil.Date, 0, len(idx))
	for d := range idx {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	longest := current
	for i := 1; i < len(dates); i++ {
		if gap := dates[i].DaysSince(dates[i-1]) - 1; gap > longest {
			longest = gap
		}
	}
	return longest
}
