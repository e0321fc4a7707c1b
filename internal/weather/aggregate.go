package weather

import "time"

type dayGroup struct {
	first       time.Time
	icon        string
	description string
	min         float64
	max         float64
}

// ReduceForecast collapses 3-hourly samples into daily summaries.
// Samples are grouped by calendar date in loc, keeping the order in which dates
// are first seen. Icon and description come from the first sample of a day.
// The first group is treated as the partial current day and dropped; at most
// ForecastDays summaries follow it.
func ReduceForecast(samples []ForecastSample, loc *time.Location) []DaySummary {
	if loc == nil {
		loc = time.Local
	}

	var (
		order  []string
		groups = make(map[string]*dayGroup)
	)

	for _, s := range samples {
		key := s.Time.In(loc).Format(time.DateOnly)

		g, ok := groups[key]
		if !ok {
			g = &dayGroup{
				first:       s.Time,
				icon:        s.Icon,
				description: s.Description,
				min:         s.Temperature,
				max:         s.Temperature,
			}
			groups[key] = g
			order = append(order, key)
			continue
		}

		if s.Temperature < g.min {
			g.min = s.Temperature
		}
		if s.Temperature > g.max {
			g.max = s.Temperature
		}
	}

	if len(order) <= 1 {
		return []DaySummary{}
	}

	order = order[1:]
	if len(order) > ForecastDays {
		order = order[:ForecastDays]
	}

	days := make([]DaySummary, 0, len(order))
	for _, key := range order {
		g := groups[key]
		days = append(days, DaySummary{
			Date:        g.first,
			MinTemp:     RoundHalfUp(g.min),
			MaxTemp:     RoundHalfUp(g.max),
			Icon:        g.icon,
			Description: g.description,
		})
	}
	return days
}
