package app

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gigawatch/internal/config"
	"gigawatch/internal/storage"
	"gigawatch/internal/usage"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{}
	cfg.Database.DataDir = t.TempDir()
	cfg.Database.MaxOpenConns = 1
	cfg.Carrier.Shortcode = "4155"
	cfg.Carrier.Keyword = "Dati"
	return NewApp(cfg, zerolog.Nop())
}

func openAppStore(t *testing.T, a *App) *storage.Store {
	t.Helper()
	store, closeStore, err := a.openStore(context.Background())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(closeStore)
	return store
}

func TestGenTestDataPopulatesWindow(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	if err := a.GenTestData(ctx, 102_400); err != nil {
		t.Fatalf("gen-test-data: %v", err)
	}

	store := openAppStore(t, a)
	count, err := store.CountDataStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	// At least one reading per day over the 90-day walk.
	if count < 90 {
		t.Fatalf("count = %d, want at least 90", count)
	}

	rows, err := store.DataStatusSince(ctx, time.Now().UTC().AddDate(0, 0, -91))
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	now := time.Now().UTC()
	for _, obs := range rows {
		if obs.RemainingDataMB < 0 || obs.RemainingDataMB > 102_400 {
			t.Fatalf("remaining MB out of range: %+v", obs)
		}
		if obs.RemainingPercentage < 0 || obs.RemainingPercentage > 100 {
			t.Fatalf("percentage out of range: %+v", obs)
		}
		if obs.DateTime.After(now) {
			t.Fatalf("reading in the future: %v", obs.DateTime)
		}
	}
}

func TestGenTestDataIsDeterministic(t *testing.T) {
	ctx := context.Background()

	counts := make([]int64, 0, 2)
	var latest []*storage.Observation
	for i := 0; i < 2; i++ {
		a := newTestApp(t)
		if err := a.GenTestData(ctx, 102_400); err != nil {
			t.Fatalf("gen-test-data: %v", err)
		}
		store := openAppStore(t, a)
		count, err := store.CountDataStatus(ctx)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		counts = append(counts, count)
		obs, err := store.LatestDataStatus(ctx)
		if err != nil {
			t.Fatalf("latest: %v", err)
		}
		latest = append(latest, obs)
	}

	if counts[0] != counts[1] {
		t.Fatalf("counts differ: %d vs %d", counts[0], counts[1])
	}
	if latest[0] == nil || latest[1] == nil {
		t.Fatal("expected observations in both runs")
	}
	if latest[0].RemainingDataMB != latest[1].RemainingDataMB ||
		!latest[0].DateTime.Equal(latest[1].DateTime) {
		t.Fatalf("runs diverge: %+v vs %+v", latest[0], latest[1])
	}
}

func TestGenTestDataEnforcesPlanFloor(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	// A tiny plan is raised to the 10 GB floor.
	if err := a.GenTestData(ctx, 100); err != nil {
		t.Fatalf("gen-test-data: %v", err)
	}

	store := openAppStore(t, a)
	rows, err := store.DataStatusSince(ctx, time.Now().UTC().AddDate(0, 0, -91))
	if err != nil {
		t.Fatalf("since: %v", err)
	}
	for _, obs := range rows {
		if obs.RemainingDataMB > 10*1024 {
			t.Fatalf("remaining exceeds the floored plan: %+v", obs)
		}
	}
}

func TestGenTestDataProjectionIsSane(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	if err := a.GenTestData(ctx, 102_400); err != nil {
		t.Fatalf("gen-test-data: %v", err)
	}

	store := openAppStore(t, a)
	now := time.Now().UTC()
	rows, err := store.DataStatusSince(ctx, now.AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("since: %v", err)
	}

	points := usage.Daily(rows, now, 90)
	if len(points) != 90 {
		t.Fatalf("points = %d, want 90", len(points))
	}
	for _, p := range points {
		if p.UsedMB < 0 {
			t.Fatalf("negative projected usage on %s", p.Date)
		}
	}
}
