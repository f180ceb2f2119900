package app

import (
	"context"
	"math/rand"
	"time"
)

// genSeed keeps synthetic history reproducible across runs.
const genSeed = 42

// GenTestData synthesises ~90 days of plausible observations so the chart
// and projection can be exercised without a live router. The generator is
// deterministic: monthly reset to the full plan shortly after midnight on
// the 1st, one to three readings per day with spaced hours, and a tiered
// daily usage distribution clamped to the remaining allowance.
func (a *App) GenTestData(ctx context.Context, planTotalMB int) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	rng := rand.New(rand.NewSource(genSeed))

	total := planTotalMB
	if total < 10*1024 {
		total = 10 * 1024
	}

	now := time.Now().UTC()
	day := truncateToDay(now.AddDate(0, 0, -90))
	endDay := truncateToDay(now)

	var remaining int
	if day.Day() == 1 {
		remaining = total
	} else {
		remaining = randRange(rng, int(float64(total)*0.3), total)
	}

	for !day.After(endDay) {
		if day.Day() == 1 {
			remaining = total
			resetAt := day.Add(time.Duration(randRange(rng, 0, 29))*time.Minute +
				time.Duration(randRange(rng, 0, 59))*time.Second)
			if !resetAt.After(now) {
				pct := percentOf(remaining, total)
				if _, _, err := store.InsertDataStatus(ctx, pct, remaining, resetAt); err != nil {
					return err
				}
			}
		}

		k := randRange(rng, 1, 3)
		sampleTimes := make([]time.Time, 0, k)
		lastHour := 0
		if day.Day() == 1 {
			lastHour = 1
		}
		for len(sampleTimes) < k {
			remainingSlots := k - len(sampleTimes)
			maxHourCap := 23 - (remainingSlots-1)*2
			if maxHourCap < lastHour {
				maxHourCap = lastHour
			}
			hour := randRange(rng, lastHour, maxHourCap)
			minute := randRange(rng, 0, 59)
			second := randRange(rng, 0, 59)
			lastHour = min(hour+2, 23)
			sampleTimes = append(sampleTimes, day.Add(
				time.Duration(hour)*time.Hour+
					time.Duration(minute)*time.Minute+
					time.Duration(second)*time.Second))
		}

		dailyUsage := rollDailyUsage(rng)
		if dailyUsage > remaining {
			dailyUsage = remaining
		}

		remainingUsage := dailyUsage
		for i, ts := range sampleTimes {
			if ts.After(now) {
				continue
			}
			var drop int
			if i+1 == k {
				drop = remainingUsage
			} else {
				evenShare := remainingUsage / (k - i)
				if evenShare < 0 {
					evenShare = 0
				}
				drop = randRange(rng, 0, evenShare)
			}
			remainingUsage -= drop
			remaining -= drop
			if remaining < 0 {
				remaining = 0
			}
			pct := percentOf(remaining, total)
			if _, _, err := store.InsertDataStatus(ctx, pct, remaining, ts); err != nil {
				return err
			}
		}

		day = day.AddDate(0, 0, 1)
	}

	a.Logger.Info().
		Time("end_day", endDay).
		Int("plan_total_mb", total).
		Msg("inserted synthetic data for ~90 days")
	return nil
}

// rollDailyUsage draws one day's consumption: mostly light days, a long
// tail of heavy ones.
func rollDailyUsage(rng *rand.Rand) int {
	roll := randRange(rng, 0, 99)
	switch {
	case roll < 55:
		return randRange(rng, 0, 2_000)
	case roll < 85:
		return randRange(rng, 2_000, 5_000)
	case roll < 98:
		return randRange(rng, 5_000, 8_000)
	default:
		return randRange(rng, 8_000, 10_240)
	}
}

func percentOf(remaining, total int) int {
	pct := int(float64(remaining)/float64(total)*100 + 0.5)
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

// randRange returns a uniform value in [lo, hi].
func randRange(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
