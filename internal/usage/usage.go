// Package usage derives a per-day consumption series from raw cumulative
// remaining-allowance readings.
package usage

import (
	"time"

	"gigawatch/internal/storage"
)

// Point is one bar of the usage chart.
type Point struct {
	Date   string `json:"date"`
	UsedMB int    `json:"used_mb"`
}

const dayFormat = "2006-01-02"

// Daily projects observations onto the window of `days` calendar days ending
// on now's UTC date, oldest first.
//
// Only the last reading of each day counts. Usage is the clamped decrease of
// remaining MB between consecutive observed days: a positive delta (the
// carrier's monthly reset) reads as zero rather than negative usage. Days
// without readings report zero and carry the previous remaining value
// forward, so a reading after a gap attributes the whole decrease to the day
// it was observed.
func Daily(rows []storage.Observation, now time.Time, days int) []Point {
	type reading struct {
		at        time.Time
		remaining int
	}

	lastByDay := make(map[string]reading)
	for _, r := range rows {
		day := r.DateTime.UTC().Format(dayFormat)
		if cur, ok := lastByDay[day]; !ok || r.DateTime.After(cur.at) {
			lastByDay[day] = reading{at: r.DateTime, remaining: r.RemainingDataMB}
		}
	}

	out := make([]Point, 0, days)
	prev := -1
	for i := days - 1; i >= 0; i-- {
		day := now.UTC().AddDate(0, 0, -i).Format(dayFormat)
		used := 0
		if curr, ok := lastByDay[day]; ok {
			if prev >= 0 && prev > curr.remaining {
				used = prev - curr.remaining
			}
			prev = curr.remaining
		}
		out = append(out, Point{Date: day, UsedMB: used})
	}
	return out
}
