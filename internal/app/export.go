package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"gigawatch/internal/usage"
)

// Export renders the daily-usage series as CSV and/or a PNG bar chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	now := time.Now().UTC()
	days := a.Config.Usage.WindowDays
	rows, err := store.DataStatusSince(ctx, now.AddDate(0, 0, -days))
	if err != nil {
		return err
	}

	points := usage.Daily(rows, now, days)
	a.Logger.Info().Int("observations", len(rows)).Int("days", len(points)).Msg("exporting daily usage")

	if opts.CSVPath != "" {
		if err := writeUsageCSV(opts.CSVPath, points); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeUsagePNG(opts.PNGPath, points); err != nil {
			return err
		}
	}

	return nil
}

func writeUsageCSV(path string, points []usage.Point) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"date", "used_mb"}); err != nil {
		return err
	}
	for _, p := range points {
		if err := writer.Write([]string{p.Date, strconv.Itoa(p.UsedMB)}); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeUsagePNG(path string, points []usage.Point) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	bars := make([]chart.Value, len(points))
	for i, p := range points {
		label := ""
		// Label one bar per week; 90 date strings do not fit on one axis.
		if i%7 == 0 {
			label = p.Date
		}
		bars[i] = chart.Value{Value: float64(p.UsedMB), Label: label}
	}

	graph := chart.BarChart{
		Title:      "Daily usage (MB)",
		Width:      1280,
		Height:     720,
		BarWidth:   8,
		BarSpacing: 6,
		Bars:       bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
