package stats

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"drinkLogAPI/internal/drink"
)

type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodWeek, PeriodMonth, PeriodYear:
		return p, nil
	case "":
		return PeriodWeek, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// ChartPoint is one bar of the consumption overview.
type ChartPoint struct {
	Name   string `json:"name"`
	Drinks int    `json:"drinks"`
}

// monthBuckets is the number of "Week N" bars in the month view. Days past
// the 28th fold into the last one.
const monthBuckets = 4

// Chart buckets records for the period containing today.
func (e Engine) Chart(records []drink.Record, period Period, today civil.Date) []ChartPoint {
	switch period {
	case PeriodMonth:
		points := make([]ChartPoint, monthBuckets)
		for i := range points {
			points[i].Name = fmt.Sprintf("Week %d", i+1)
		}
		for _, r := range records {
			if r.Date.Year != today.Year || r.Date.Month != today.Month {
				continue
			}
			week := (r.Date.Day + 6) / 7
			points[min(week, monthBuckets)-1].Drinks++
		}
		return points

	case PeriodYear:
		points := make([]ChartPoint, 12)
		for i := range points {
			points[i].Name = time.Month(i + 1).String()[:3]
		}
		for _, r := range records {
			if r.Date.Year == today.Year {
				points[r.Date.Month-1].Drinks++
			}
		}
		return points

	default:
		start := e.StartOfWeek(today)
		end := start.AddDays(6)
		points := make([]ChartPoint, 7)
		for i := range points {
			points[i].Name = drink.Weekday(start.AddDays(i)).String()[:3]
		}
		for _, r := range records {
			if r.Date.Before(start) || r.Date.After(end) {
				continue
			}
			points[r.Date.DaysSince(start)].Drinks++
		}
		return points
	}
}
