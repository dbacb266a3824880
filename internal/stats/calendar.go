package stats

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"drinkLogAPI/internal/drink"
)

type CalendarDay struct {
	Date           civil.Date `json:"date"`
	Count          int        `json:"count"`
	Level          int        `json:"level"`
	InCurrentMonth bool       `json:"in_current_month"`
	IsToday        bool       `json:"is_today"`
}

type CalendarResponse struct {
	Year  int             `json:"year"`
	Month int             `json:"month"`
	Weeks [][]CalendarDay `json:"weeks"`
}

// DayLevel buckets a day's count into the calendar shading: 0, >0, >2, >4.
func DayLevel(count int) int {
	switch {
	case count > 4:
		return 3
	case count > 2:
		return 2
	case count > 0:
		return 1
	default:
		return 0
	}
}

// Calendar lays out a month padded to whole weeks.
func (e Engine) Calendar(idx map[civil.Date]int, year, month int, today civil.Date) (*CalendarResponse, error) {
	first := civil.Date{Year: year, Month: time.Month(month), Day: 1}
	if month < 1 || month > 12 || !first.IsValid() {
		return nil, fmt.Errorf("invalid month %d-%d", year, month)
	}
	last := civil.DateOf(first.In(time.UTC).AddDate(0, 1, -1))

	start := e.StartOfWeek(first)
	end := e.StartOfWeek(last).AddDays(6)

	cal := &CalendarResponse{Year: year, Month: month}
	var week []CalendarDay
	for d := start; !d.After(end); d = d.AddDays(1) {
		count := idx[d]
		week = append(week, CalendarDay{
			Date:           d,
			Count:          count,
			Level:          DayLevel(count),
			InCurrentMonth: d.Month == first.Month && d.Year == first.Year,
			IsToday:        d == today,
		})
		if len(week) == 7 {
			cal.Weeks = append(cal.Weeks, week)
			week = nil
		}
	}
	return cal, nil
}

type HeatmapMonth struct {
	Month string `json:"month"`
	Count int    `json:"count"`
	Level int    `json:"level"`
}

// MonthLevel buckets a month's total: 0, up to 10, up to 20, more.
func MonthLevel(count int) int {
	switch {
	case count == 0:
		return 0
	case count <= 10:
		return 1
	case count <= 20:
		return 2
	default:
		return 3
	}
}

// YearHeatmap totals records per month of year.
func YearHeatmap(records []drink.Record, year int) []HeatmapMonth {
	months := make([]HeatmapMonth, 12)
	for _, r := range records {
		if r.Date.Year == year {
			months[r.Date.Month-1].Count++
		}
	}
	for i := range months {
		months[i].Month = time.Month(i + 1).String()[:3]
		months[i].Level = MonthLevel(months[i].Count)
	}
	return months
}
